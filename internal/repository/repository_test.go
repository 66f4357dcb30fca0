package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/studypact/backend/internal/catalog"
	"github.com/studypact/backend/internal/models"
	"github.com/studypact/backend/internal/unlock"
)

const (
	testCoupleID    = "couple-1"
	testWriterID    = "writer-1"
	testSupporterID = "supporter-1"
)

type RepositoryTestSuite struct {
	suite.Suite
	db       *gorm.DB
	progress ProgressRepository
	gated    GatedRepository
	open     OpenRepository
	ctx      context.Context
}

func (suite *RepositoryTestSuite) SetupSuite() {
	dbPath := filepath.Join(suite.T().TempDir(), "repo_test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	suite.Require().NoError(err)

	err = db.AutoMigrate(
		&models.Profile{},
		&models.ProgressRecord{},
		&models.GatedContent{},
		&models.OpenContent{},
	)
	suite.Require().NoError(err)

	suite.db = db
	suite.progress = NewProgressRepository(db)
	suite.gated = NewGatedRepository(db, suite.progress, nil)
	suite.open = NewOpenRepository(db)
	suite.ctx = context.Background()
}

func (suite *RepositoryTestSuite) SetupTest() {
	suite.db.Exec("DELETE FROM progress_records")
	suite.db.Exec("DELETE FROM gated_contents")
	suite.db.Exec("DELETE FROM open_contents")
	suite.db.Exec("DELETE FROM profiles")

	suite.createProfile(testWriterID, unlock.RoleWriter)
	suite.createProfile(testSupporterID, unlock.RoleSupporter)
}

func (suite *RepositoryTestSuite) createProfile(userID string, role unlock.Role) {
	profile := models.Profile{
		UserID:   userID,
		CoupleID: testCoupleID,
		Role:     role,
		Email:    userID + "@example.com",
	}
	suite.Require().NoError(suite.db.Create(&profile).Error)
}

func (suite *RepositoryTestSuite) viewer(userID string, role unlock.Role) *models.Profile {
	return &models.Profile{UserID: userID, CoupleID: testCoupleID, Role: role}
}

// unlockingHours returns an hours slice whose total meets the writer's
// unlock threshold.
func unlockingHours() []float64 {
	hours := make([]float64, catalog.Len())
	hours[0] = catalog.TotalTarget()
	return hours
}

func (suite *RepositoryTestSuite) TestRecordHoursValidation() {
	_, err := suite.progress.RecordHours(suite.ctx, "", testCoupleID, unlock.RoleWriter, "2026-08-01", unlockingHours())
	suite.ErrorIs(err, ErrInvalidInput)

	_, err = suite.progress.RecordHours(suite.ctx, testWriterID, testCoupleID, unlock.RoleWriter, "2026-08-01", []float64{1, 2})
	suite.ErrorIs(err, ErrHoursLength)
}

func (suite *RepositoryTestSuite) TestRecordHoursClampsAndSnapshotsUnlock() {
	hours := make([]float64, catalog.Len())
	hours[0] = 150 // clamped to 99
	hours[1] = -3  // clamped to 0

	record, err := suite.progress.RecordHours(suite.ctx, testWriterID, testCoupleID, unlock.RoleWriter, "2026-08-01", hours)
	suite.Require().NoError(err)
	suite.Equal(99.0, record.Hours[0])
	suite.Equal(0.0, record.Hours[1])
	suite.Equal(99.0, record.TotalHours)
	suite.True(record.Unlocked)
}

func (suite *RepositoryTestSuite) TestRecordHoursBelowThresholdStaysLocked() {
	hours := make([]float64, catalog.Len())
	hours[0] = 1

	record, err := suite.progress.RecordHours(suite.ctx, testWriterID, testCoupleID, unlock.RoleWriter, "2026-08-01", hours)
	suite.Require().NoError(err)
	suite.False(record.Unlocked)
}

func (suite *RepositoryTestSuite) TestRecordHoursUpsertsByUserAndDate() {
	low := make([]float64, catalog.Len())
	low[0] = 1

	_, err := suite.progress.RecordHours(suite.ctx, testWriterID, testCoupleID, unlock.RoleWriter, "2026-08-01", low)
	suite.Require().NoError(err)

	_, err = suite.progress.RecordHours(suite.ctx, testWriterID, testCoupleID, unlock.RoleWriter, "2026-08-01", unlockingHours())
	suite.Require().NoError(err)

	var count int64
	suite.db.Model(&models.ProgressRecord{}).Where("user_id = ?", testWriterID).Count(&count)
	suite.Equal(int64(1), count)

	stored, err := suite.progress.GetByUserDate(suite.ctx, testWriterID, "2026-08-01")
	suite.Require().NoError(err)
	suite.Require().NotNil(stored)
	suite.True(stored.Unlocked)
	suite.Equal(catalog.TotalTarget(), stored.TotalHours)
}

func (suite *RepositoryTestSuite) TestGetByUserDateAbsentIsNilNil() {
	record, err := suite.progress.GetByUserDate(suite.ctx, testWriterID, "2026-08-01")
	suite.NoError(err)
	suite.Nil(record)
}

func (suite *RepositoryTestSuite) TestFetchRangeNewestFirst() {
	for _, date := range []string{"2026-08-01", "2026-08-03", "2026-08-02"} {
		_, err := suite.progress.RecordHours(suite.ctx, testWriterID, testCoupleID, unlock.RoleWriter, date, unlockingHours())
		suite.Require().NoError(err)
	}
	_, err := suite.progress.RecordHours(suite.ctx, testSupporterID, testCoupleID, unlock.RoleSupporter, "2026-08-03", unlockingHours())
	suite.Require().NoError(err)

	records, err := suite.progress.FetchRange(suite.ctx, testCoupleID, "2026-08-02")
	suite.Require().NoError(err)
	suite.Len(records, 3)
	suite.Equal("2026-08-03", records[0].Date)
	for _, r := range records {
		suite.GreaterOrEqual(r.Date, "2026-08-02")
	}
}

func (suite *RepositoryTestSuite) TestWriterUnlocked() {
	unlocked, err := suite.progress.WriterUnlocked(suite.ctx, testCoupleID, "2026-08-01")
	suite.Require().NoError(err)
	suite.False(unlocked, "absent rows read as locked")

	// The supporter's row must not influence the writer gate.
	_, err = suite.progress.RecordHours(suite.ctx, testSupporterID, testCoupleID, unlock.RoleSupporter, "2026-08-01", unlockingHours())
	suite.Require().NoError(err)

	unlocked, err = suite.progress.WriterUnlocked(suite.ctx, testCoupleID, "2026-08-01")
	suite.Require().NoError(err)
	suite.False(unlocked)

	_, err = suite.progress.RecordHours(suite.ctx, testWriterID, testCoupleID, unlock.RoleWriter, "2026-08-01", unlockingHours())
	suite.Require().NoError(err)

	unlocked, err = suite.progress.WriterUnlocked(suite.ctx, testCoupleID, "2026-08-01")
	suite.Require().NoError(err)
	suite.True(unlocked)
}

func (suite *RepositoryTestSuite) TestGatedSaveCapsDailyPhotos() {
	paths := make([]string, models.MaxDailyPhotos+5)
	for i := range paths {
		paths[i] = fmt.Sprintf("couples/c/u/daily_%d.jpg", i)
	}

	saved, err := suite.gated.Save(suite.ctx, &models.GatedContent{
		CoupleID:        testCoupleID,
		AuthorID:        testSupporterID,
		Date:            "2026-08-01",
		Role:            unlock.RoleSupporter,
		DailyPhotoPaths: paths,
	})
	suite.Require().NoError(err)
	suite.Len(saved.DailyPhotoPaths, models.MaxDailyPhotos)
	suite.Equal("couples/c/u/daily_0.jpg", saved.DailyPhotoPaths[0])
}

func (suite *RepositoryTestSuite) TestGatedSaveUpserts() {
	_, err := suite.gated.Save(suite.ctx, &models.GatedContent{
		CoupleID: testCoupleID,
		AuthorID: testSupporterID,
		Date:     "2026-08-01",
		Role:     unlock.RoleSupporter,
		Message:  "first",
	})
	suite.Require().NoError(err)

	_, err = suite.gated.Save(suite.ctx, &models.GatedContent{
		CoupleID: testCoupleID,
		AuthorID: testSupporterID,
		Date:     "2026-08-01",
		Role:     unlock.RoleSupporter,
		Message:  "second",
	})
	suite.Require().NoError(err)

	var count int64
	suite.db.Model(&models.GatedContent{}).Count(&count)
	suite.Equal(int64(1), count)

	row, err := suite.gated.GetByAuthorDate(suite.ctx, testSupporterID, "2026-08-01")
	suite.Require().NoError(err)
	suite.Require().NotNil(row)
	suite.Equal("second", row.Message)
}

func (suite *RepositoryTestSuite) seedGatedDay(date string) {
	_, err := suite.gated.Save(suite.ctx, &models.GatedContent{
		CoupleID: testCoupleID,
		AuthorID: testSupporterID,
		Date:     date,
		Role:     unlock.RoleSupporter,
		Message:  "you've got this",
	})
	suite.Require().NoError(err)

	_, err = suite.gated.Save(suite.ctx, &models.GatedContent{
		CoupleID: testCoupleID,
		AuthorID: testWriterID,
		Date:     date,
		Role:     unlock.RoleWriter,
		Message:  "thanks",
	})
	suite.Require().NoError(err)
}

func (suite *RepositoryTestSuite) TestGatedVisibilityLockedWriter() {
	suite.seedGatedDay("2026-08-01")

	rows, err := suite.gated.FetchForViewer(suite.ctx, suite.viewer(testWriterID, unlock.RoleWriter), "2026-08-01")
	suite.Require().NoError(err)
	suite.Require().Len(rows, 1, "locked writer sees only their own row")
	suite.Equal(testWriterID, rows[0].AuthorID)
}

func (suite *RepositoryTestSuite) TestGatedVisibilityUnlockedWriter() {
	suite.seedGatedDay("2026-08-01")

	_, err := suite.progress.RecordHours(suite.ctx, testWriterID, testCoupleID, unlock.RoleWriter, "2026-08-01", unlockingHours())
	suite.Require().NoError(err)

	rows, err := suite.gated.FetchForViewer(suite.ctx, suite.viewer(testWriterID, unlock.RoleWriter), "2026-08-01")
	suite.Require().NoError(err)
	suite.Len(rows, 2)
}

func (suite *RepositoryTestSuite) TestGatedVisibilitySupporterSeesAll() {
	suite.seedGatedDay("2026-08-01")

	rows, err := suite.gated.FetchForViewer(suite.ctx, suite.viewer(testSupporterID, unlock.RoleSupporter), "2026-08-01")
	suite.Require().NoError(err)
	suite.Len(rows, 2)
}

func (suite *RepositoryTestSuite) TestGatedRangeFiltersPerDate() {
	suite.seedGatedDay("2026-08-01")
	suite.seedGatedDay("2026-08-02")

	// Unlock only the first day.
	_, err := suite.progress.RecordHours(suite.ctx, testWriterID, testCoupleID, unlock.RoleWriter, "2026-08-01", unlockingHours())
	suite.Require().NoError(err)

	rows, err := suite.gated.FetchRangeForViewer(suite.ctx, suite.viewer(testWriterID, unlock.RoleWriter), "2026-08-01")
	suite.Require().NoError(err)
	suite.Require().Len(rows, 3)
	suite.Equal("2026-08-02", rows[0].Date, "newest first")
	for _, row := range rows {
		if row.Date == "2026-08-02" {
			suite.Equal(testWriterID, row.AuthorID, "locked day exposes only the viewer's own row")
		}
	}
}

func (suite *RepositoryTestSuite) TestOpenSaveAndFetch() {
	notes := catalog.PadNotes([]string{"admin law ch. 3"})
	_, err := suite.open.Save(suite.ctx, &models.OpenContent{
		CoupleID:     testCoupleID,
		AuthorID:     testWriterID,
		Date:         "2026-08-01",
		Role:         unlock.RoleWriter,
		SubjectNotes: notes,
		DiaryText:    "long day",
	})
	suite.Require().NoError(err)

	// Open content is mutual: either member fetches everything.
	rows, err := suite.open.FetchRange(suite.ctx, testCoupleID, "2026-08-01")
	suite.Require().NoError(err)
	suite.Require().Len(rows, 1)
	suite.Equal("long day", rows[0].DiaryText)
	suite.Equal("admin law ch. 3", rows[0].SubjectNotes[0])
}

func (suite *RepositoryTestSuite) TestOpenSaveUpserts() {
	for _, diary := range []string{"draft", "final"} {
		_, err := suite.open.Save(suite.ctx, &models.OpenContent{
			CoupleID:     testCoupleID,
			AuthorID:     testWriterID,
			Date:         "2026-08-01",
			Role:         unlock.RoleWriter,
			SubjectNotes: catalog.PadNotes(nil),
			DiaryText:    diary,
		})
		suite.Require().NoError(err)
	}

	row, err := suite.open.GetByAuthorDate(suite.ctx, testWriterID, "2026-08-01")
	suite.Require().NoError(err)
	suite.Require().NotNil(row)
	suite.Equal("final", row.DiaryText)
}

func TestRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}
