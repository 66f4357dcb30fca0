package repository

import (
	"context"
	"errors"

	"github.com/studypact/backend/internal/catalog"
	"github.com/studypact/backend/internal/models"
	"github.com/studypact/backend/internal/unlock"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// hour values are clamped inside the store; callers may clamp too but the
// store no longer trusts them.
const (
	minHours = 0
	maxHours = 99
)

// ProgressRepository handles per-user per-day study-hour records. Records are
// upsert-only, keyed by (user_id, date); a later write fully supersedes an
// earlier one for the same key.
type ProgressRepository interface {
	// RecordHours upserts one member's hours for a day. The unlocked flag is
	// evaluated against the given role and snapshotted into the row.
	RecordHours(ctx context.Context, userID, coupleID string, role unlock.Role, date string, hours []float64) (*models.ProgressRecord, error)

	// FetchRange returns both members' records from fromDate onward, newest
	// first. The caller partitions rows by user id.
	FetchRange(ctx context.Context, coupleID, fromDate string) ([]models.ProgressRecord, error)

	// GetByUserDate returns a single record, or (nil, nil) when absent.
	GetByUserDate(ctx context.Context, userID, date string) (*models.ProgressRecord, error)

	// WriterUnlocked reports the couple writer's unlock snapshot for a day.
	// Absent rows read as locked.
	WriterUnlocked(ctx context.Context, coupleID, date string) (bool, error)
}

type progressRepository struct {
	db *gorm.DB
}

// NewProgressRepository creates a new progress repository
func NewProgressRepository(db *gorm.DB) ProgressRepository {
	return &progressRepository{db: db}
}

// ClampHours bounds every element to [0,99] and returns a copy aligned to
// the catalog length.
func ClampHours(hours []float64) []float64 {
	out := catalog.PadHours(hours)
	for i, h := range out {
		if h < minHours {
			out[i] = minHours
		} else if h > maxHours {
			out[i] = maxHours
		}
	}
	return out
}

func (r *progressRepository) RecordHours(ctx context.Context, userID, coupleID string, role unlock.Role, date string, hours []float64) (*models.ProgressRecord, error) {
	if userID == "" || coupleID == "" || date == "" {
		return nil, ErrInvalidInput
	}
	if len(hours) != catalog.Len() {
		return nil, ErrHoursLength
	}

	clamped := ClampHours(hours)
	total := models.Float64Array(clamped).Sum()

	record := models.ProgressRecord{
		UserID:     userID,
		CoupleID:   coupleID,
		Date:       date,
		Hours:      clamped,
		TotalHours: total,
		Unlocked:   unlock.IsUnlocked(role, total, catalog.TotalTarget()),
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"hours", "total_hours", "unlocked", "updated_at"}),
		}).
		Create(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *progressRepository) FetchRange(ctx context.Context, coupleID, fromDate string) ([]models.ProgressRecord, error) {
	var records []models.ProgressRecord
	err := r.db.WithContext(ctx).
		Where("couple_id = ? AND date >= ?", coupleID, fromDate).
		Order("date DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *progressRepository) GetByUserDate(ctx context.Context, userID, date string) (*models.ProgressRecord, error) {
	var record models.ProgressRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND date = ?", userID, date).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *progressRepository) WriterUnlocked(ctx context.Context, coupleID, date string) (bool, error) {
	var record models.ProgressRecord
	err := r.db.WithContext(ctx).
		Joins("JOIN profiles ON profiles.user_id = progress_records.user_id").
		Where("progress_records.couple_id = ? AND progress_records.date = ? AND profiles.role = ?",
			coupleID, date, unlock.RoleWriter).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return record.Unlocked, nil
}
