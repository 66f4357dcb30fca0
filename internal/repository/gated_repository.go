package repository

import (
	"context"

	"github.com/studypact/backend/internal/cache"
	"github.com/studypact/backend/internal/models"
	"github.com/studypact/backend/internal/unlock"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GatedRepository handles encouragement content that is hidden from the
// writer until their daily unlock holds. Visibility is enforced here, on the
// server side: a locked viewer simply gets no partner rows back, and clients
// must only render what was actually returned.
type GatedRepository interface {
	// Save upserts an author's content for a day, capping the daily photo
	// list at models.MaxDailyPhotos (most recent first).
	Save(ctx context.Context, content *models.GatedContent) (*models.GatedContent, error)

	// FetchForViewer returns the couple's rows for one day, filtered by the
	// gating rule for this viewer.
	FetchForViewer(ctx context.Context, viewer *models.Profile, date string) ([]models.GatedContent, error)

	// FetchRangeForViewer returns the couple's rows from fromDate onward,
	// newest first, filtered per date by the gating rule.
	FetchRangeForViewer(ctx context.Context, viewer *models.Profile, fromDate string) ([]models.GatedContent, error)

	// GetByAuthorDate returns the author's own row, or (nil, nil) when
	// absent. No gating: authors always see their own content.
	GetByAuthorDate(ctx context.Context, authorID, date string) (*models.GatedContent, error)
}

type gatedRepository struct {
	db       *gorm.DB
	progress ProgressRepository
	unlocks  *cache.UnlockCache
}

// NewGatedRepository creates a gated-content repository. unlocks may be nil;
// the database then answers every visibility check.
func NewGatedRepository(db *gorm.DB, progress ProgressRepository, unlocks *cache.UnlockCache) GatedRepository {
	return &gatedRepository{db: db, progress: progress, unlocks: unlocks}
}

func (r *gatedRepository) Save(ctx context.Context, content *models.GatedContent) (*models.GatedContent, error) {
	if content == nil || content.AuthorID == "" || content.CoupleID == "" || content.Date == "" {
		return nil, ErrInvalidInput
	}
	if len(content.DailyPhotoPaths) > models.MaxDailyPhotos {
		content.DailyPhotoPaths = content.DailyPhotoPaths[:models.MaxDailyPhotos]
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "author_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"message", "shared_photo_path", "daily_photo_paths", "updated_at",
			}),
		}).
		Create(content).Error
	if err != nil {
		return nil, err
	}
	return content, nil
}

// writerUnlocked consults the cache first, then the writer's progress
// snapshot for the day.
func (r *gatedRepository) writerUnlocked(ctx context.Context, coupleID, date string) (bool, error) {
	if unlocked, hit := r.unlocks.Get(ctx, coupleID, date); hit {
		return unlocked, nil
	}
	unlocked, err := r.progress.WriterUnlocked(ctx, coupleID, date)
	if err != nil {
		return false, err
	}
	r.unlocks.Set(ctx, coupleID, date, unlocked)
	return unlocked, nil
}

func (r *gatedRepository) FetchForViewer(ctx context.Context, viewer *models.Profile, date string) ([]models.GatedContent, error) {
	if viewer == nil {
		return nil, ErrInvalidInput
	}

	var rows []models.GatedContent
	err := r.db.WithContext(ctx).
		Where("couple_id = ? AND date = ?", viewer.CoupleID, date).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return r.filterVisible(ctx, viewer, rows)
}

func (r *gatedRepository) FetchRangeForViewer(ctx context.Context, viewer *models.Profile, fromDate string) ([]models.GatedContent, error) {
	if viewer == nil {
		return nil, ErrInvalidInput
	}

	var rows []models.GatedContent
	err := r.db.WithContext(ctx).
		Where("couple_id = ? AND date >= ?", viewer.CoupleID, fromDate).
		Order("date DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return r.filterVisible(ctx, viewer, rows)
}

// filterVisible drops partner rows the viewer has not unlocked. The
// supporter is never gated; the writer sees partner content only on days
// whose own unlock snapshot holds.
func (r *gatedRepository) filterVisible(ctx context.Context, viewer *models.Profile, rows []models.GatedContent) ([]models.GatedContent, error) {
	visible := make([]models.GatedContent, 0, len(rows))
	unlockedByDate := make(map[string]bool)

	for _, row := range rows {
		if row.AuthorID == viewer.UserID {
			visible = append(visible, row)
			continue
		}
		if viewer.Role == unlock.RoleSupporter {
			visible = append(visible, row)
			continue
		}

		unlocked, ok := unlockedByDate[row.Date]
		if !ok {
			var err error
			unlocked, err = r.writerUnlocked(ctx, viewer.CoupleID, row.Date)
			if err != nil {
				return nil, err
			}
			unlockedByDate[row.Date] = unlocked
		}
		if unlock.CanSeePartnerGated(viewer.Role, unlocked) {
			visible = append(visible, row)
		}
	}
	return visible, nil
}

func (r *gatedRepository) GetByAuthorDate(ctx context.Context, authorID, date string) (*models.GatedContent, error) {
	var row models.GatedContent
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
