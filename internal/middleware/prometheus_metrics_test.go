package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/studypact/backend/internal/metrics"
)

func doRequest(router *gin.Engine, path string) {
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
}

func TestMetricsMiddlewareCountsRequests(t *testing.T) {
	m := metrics.Initialize()
	m.HTTPRequestsTotal.Reset()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(MetricsMiddleware())
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	doRequest(router, "/ok")
	doRequest(router, "/ok")

	// Status labels are numeric strings so dashboards can match status=~"5.."
	counter := m.HTTPRequestsTotal.WithLabelValues("GET", "/ok", "200")
	assert.Equal(t, 2.0, testutil.ToFloat64(counter))
}

func TestMetricsMiddlewareRecordsServerErrors(t *testing.T) {
	m := metrics.Initialize()
	m.ErrorsTotal.Reset()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(MetricsMiddleware())
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/boom", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	})

	doRequest(router, "/ok")
	doRequest(router, "/boom")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("server_error", "/boom")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("server_error", "/ok")))
}
