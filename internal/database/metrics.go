package database

import (
	"errors"
	"time"

	"github.com/studypact/backend/internal/metrics"
	"gorm.io/gorm"
)

const queryStartKey = "metrics:query_start"

// registerMetricsCallbacks hooks into gorm's callback chain so every
// statement feeds the query duration and count vectors. ErrRecordNotFound is
// a normal outcome, not an error.
func registerMetricsCallbacks(db *gorm.DB) {
	before := func(d *gorm.DB) {
		d.InstanceSet(queryStartKey, time.Now())
	}
	after := func(queryType string) func(*gorm.DB) {
		return func(d *gorm.DB) {
			v, ok := d.InstanceGet(queryStartKey)
			if !ok {
				return
			}
			start, ok := v.(time.Time)
			if !ok {
				return
			}

			table := d.Statement.Table
			if table == "" {
				table = "unknown"
			}
			status := "success"
			if d.Error != nil && !errors.Is(d.Error, gorm.ErrRecordNotFound) {
				status = "error"
			}

			m := metrics.Get()
			m.DatabaseQueryDuration.WithLabelValues(queryType, table).Observe(time.Since(start).Seconds())
			m.DatabaseQueriesTotal.WithLabelValues(queryType, table, status).Inc()
		}
	}

	db.Callback().Create().Before("gorm:create").Register("metrics:before_create", before)
	db.Callback().Create().After("gorm:create").Register("metrics:after_create", after("create"))
	db.Callback().Query().Before("gorm:query").Register("metrics:before_query", before)
	db.Callback().Query().After("gorm:query").Register("metrics:after_query", after("query"))
	db.Callback().Update().Before("gorm:update").Register("metrics:before_update", before)
	db.Callback().Update().After("gorm:update").Register("metrics:after_update", after("update"))
	db.Callback().Delete().Before("gorm:delete").Register("metrics:before_delete", before)
	db.Callback().Delete().After("gorm:delete").Register("metrics:after_delete", after("delete"))
	db.Callback().Raw().Before("gorm:raw").Register("metrics:before_raw", before)
	db.Callback().Raw().After("gorm:raw").Register("metrics:after_raw", after("raw"))
	db.Callback().Row().Before("gorm:row").Register("metrics:before_row", before)
	db.Callback().Row().After("gorm:row").Register("metrics:after_row", after("row"))
}
