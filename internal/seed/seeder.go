package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/studypact/backend/internal/catalog"
	"github.com/studypact/backend/internal/logger"
	"github.com/studypact/backend/internal/models"
	"github.com/studypact/backend/internal/repository"
	"github.com/studypact/backend/internal/unlock"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	_ = gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db}
}

// SeedDev seeds the development database with one demo couple and a month
// of history
func (s *Seeder) SeedDev() error {
	logger.Log.Info("creating demo couple")
	writer, supporter, err := s.seedCouple()
	if err != nil {
		return fmt.Errorf("failed to seed couple: %w", err)
	}

	logger.Log.Info("creating progress history")
	if err := s.seedProgress(writer, 30); err != nil {
		return fmt.Errorf("failed to seed progress: %w", err)
	}
	if err := s.seedProgress(supporter, 30); err != nil {
		return fmt.Errorf("failed to seed progress: %w", err)
	}

	logger.Log.Info("creating content history")
	if err := s.seedContent(writer, supporter, 30); err != nil {
		return fmt.Errorf("failed to seed content: %w", err)
	}

	logger.Log.Info("seeding complete")
	return nil
}

// SeedTest seeds a minimal dataset for manual testing: the couple plus
// today's rows only
func (s *Seeder) SeedTest() error {
	writer, supporter, err := s.seedCouple()
	if err != nil {
		return err
	}
	if err := s.seedProgress(writer, 1); err != nil {
		return err
	}
	return s.seedContent(writer, supporter, 1)
}

// Clean removes all seeded data. Destructive; only for development
// databases.
func (s *Seeder) Clean() error {
	for _, table := range []string{"progress_records", "gated_contents", "open_contents", "profiles"} {
		if err := s.db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clean %s: %w", table, err)
		}
	}
	return nil
}

func (s *Seeder) seedCouple() (*models.Profile, *models.Profile, error) {
	coupleID := uuid.New().String()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}
	hashStr := string(hash)

	writer := &models.Profile{
		UserID:       uuid.New().String(),
		CoupleID:     coupleID,
		Role:         unlock.RoleWriter,
		Email:        "writer@example.com",
		DisplayName:  gofakeit.FirstName(),
		PasswordHash: &hashStr,
	}
	supporter := &models.Profile{
		UserID:       uuid.New().String(),
		CoupleID:     coupleID,
		Role:         unlock.RoleSupporter,
		Email:        "supporter@example.com",
		DisplayName:  gofakeit.FirstName(),
		PasswordHash: &hashStr,
	}

	if err := s.db.Create(writer).Error; err != nil {
		return nil, nil, err
	}
	if err := s.db.Create(supporter).Error; err != nil {
		return nil, nil, err
	}
	return writer, supporter, nil
}

func (s *Seeder) seedProgress(profile *models.Profile, days int) error {
	repo := repository.NewProgressRepository(s.db)
	ctx := context.Background()

	for i := 0; i < days; i++ {
		date := time.Now().AddDate(0, 0, -i).Format(models.DateFormat)

		hours := make([]float64, catalog.Len())
		for j, subject := range catalog.Subjects {
			// Hover around the target so some days unlock and some don't
			hours[j] = gofakeit.Float64Range(0, subject.TargetHours*1.4)
		}

		if _, err := repo.RecordHours(ctx, profile.UserID, profile.CoupleID, profile.Role, date, hours); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) seedContent(writer, supporter *models.Profile, days int) error {
	for i := 0; i < days; i++ {
		date := time.Now().AddDate(0, 0, -i).Format(models.DateFormat)

		for _, p := range []*models.Profile{writer, supporter} {
			gated := &models.GatedContent{
				CoupleID: p.CoupleID,
				AuthorID: p.UserID,
				Date:     date,
				Role:     p.Role,
				Message:  gofakeit.Sentence(12),
			}
			if err := s.db.Create(gated).Error; err != nil {
				return err
			}

			notes := make(models.StringArray, catalog.Len())
			for j := range notes {
				if gofakeit.Bool() {
					notes[j] = gofakeit.Sentence(6)
				}
			}
			open := &models.OpenContent{
				CoupleID:     p.CoupleID,
				AuthorID:     p.UserID,
				Date:         date,
				Role:         p.Role,
				SubjectNotes: notes,
				DiaryText:    gofakeit.Paragraph(1, 3, 10, " "),
			}
			if err := s.db.Create(open).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
