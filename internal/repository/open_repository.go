package repository

import (
	"context"

	"github.com/studypact/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OpenRepository stores mutual content (per-subject notes and the shared
// diary). Open content is never gated; both partners always read all of it.
type OpenRepository interface {
	Save(ctx context.Context, content *models.OpenContent) (*models.OpenContent, error)

	// FetchRange returns the couple's rows from fromDate onward, newest
	// first.
	FetchRange(ctx context.Context, coupleID, fromDate string) ([]models.OpenContent, error)

	// GetByAuthorDate returns (nil, nil) when the row is absent.
	GetByAuthorDate(ctx context.Context, authorID, date string) (*models.OpenContent, error)
}

type openRepository struct {
	db *gorm.DB
}

func NewOpenRepository(db *gorm.DB) OpenRepository {
	return &openRepository{db: db}
}

func (r *openRepository) Save(ctx context.Context, content *models.OpenContent) (*models.OpenContent, error) {
	if content == nil || content.AuthorID == "" || content.CoupleID == "" || content.Date == "" {
		return nil, ErrInvalidInput
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "author_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"subject_notes", "diary_text", "updated_at",
			}),
		}).
		Create(content).Error
	if err != nil {
		return nil, err
	}
	return content, nil
}

func (r *openRepository) FetchRange(ctx context.Context, coupleID, fromDate string) ([]models.OpenContent, error) {
	var rows []models.OpenContent
	err := r.db.WithContext(ctx).
		Where("couple_id = ? AND date >= ?", coupleID, fromDate).
		Order("date DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *openRepository) GetByAuthorDate(ctx context.Context, authorID, date string) (*models.OpenContent, error) {
	var row models.OpenContent
	err := r.db.WithContext(ctx).
		Where("author_id = ? AND date = ?", authorID, date).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
