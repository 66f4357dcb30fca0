package auth

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/studypact/backend/internal/database"
	"github.com/studypact/backend/internal/models"
	"github.com/studypact/backend/internal/unlock"
)

type AuthServiceTestSuite struct {
	suite.Suite
	service *Service
}

func (suite *AuthServiceTestSuite) SetupSuite() {
	dbPath := filepath.Join(suite.T().TempDir(), "auth_test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	suite.Require().NoError(err)

	suite.Require().NoError(db.AutoMigrate(&models.Profile{}))

	database.DB = db
	suite.service = NewService([]byte("test-secret"))
}

func (suite *AuthServiceTestSuite) SetupTest() {
	database.DB.Exec("DELETE FROM profiles")
}

func (suite *AuthServiceTestSuite) register(email, role string) *AuthResponse {
	resp, err := suite.service.Register(RegisterRequest{
		Email:       email,
		Password:    "password123",
		DisplayName: "Test User",
		CoupleID:    "couple-1",
		Role:        role,
	})
	suite.Require().NoError(err)
	return resp
}

func (suite *AuthServiceTestSuite) TestRegister() {
	resp := suite.register("writer@example.com", "writer")

	suite.NotEmpty(resp.Token)
	suite.NotEmpty(resp.Profile.UserID)
	suite.Equal(unlock.RoleWriter, resp.Profile.Role)
	suite.Equal("couple-1", resp.Profile.CoupleID)
	suite.Require().NotNil(resp.Profile.PasswordHash)
	suite.NotEqual("password123", *resp.Profile.PasswordHash)
}

func (suite *AuthServiceTestSuite) TestRegisterRejectsUnknownRole() {
	_, err := suite.service.Register(RegisterRequest{
		Email:       "x@example.com",
		Password:    "password123",
		DisplayName: "X",
		CoupleID:    "couple-1",
		Role:        "admin",
	})
	suite.ErrorIs(err, ErrInvalidRole)
}

func (suite *AuthServiceTestSuite) TestRegisterCoupleIsClosedAtTwo() {
	suite.register("writer@example.com", "writer")
	suite.register("supporter@example.com", "supporter")

	_, err := suite.service.Register(RegisterRequest{
		Email:       "third@example.com",
		Password:    "password123",
		DisplayName: "Third Wheel",
		CoupleID:    "couple-1",
		Role:        "supporter",
	})
	suite.ErrorIs(err, ErrCoupleFull)
}

func (suite *AuthServiceTestSuite) TestRegisterRoleTaken() {
	suite.register("writer@example.com", "writer")

	_, err := suite.service.Register(RegisterRequest{
		Email:       "writer2@example.com",
		Password:    "password123",
		DisplayName: "Second Writer",
		CoupleID:    "couple-1",
		Role:        "writer",
	})
	suite.ErrorIs(err, ErrRoleTaken)

	// The complementary role still fits.
	suite.register("supporter@example.com", "supporter")
}

func (suite *AuthServiceTestSuite) TestRegisterDuplicateEmail() {
	suite.register("writer@example.com", "writer")

	_, err := suite.service.Register(RegisterRequest{
		Email:       "WRITER@example.com",
		Password:    "password123",
		DisplayName: "Dup",
		CoupleID:    "couple-2",
		Role:        "supporter",
	})
	suite.ErrorIs(err, ErrUserExists)
}

func (suite *AuthServiceTestSuite) TestLogin() {
	suite.register("writer@example.com", "writer")

	resp, err := suite.service.Login(LoginRequest{
		Email:    "writer@example.com",
		Password: "password123",
	})
	suite.Require().NoError(err)
	suite.NotEmpty(resp.Token)
}

func (suite *AuthServiceTestSuite) TestLoginWrongPassword() {
	suite.register("writer@example.com", "writer")

	_, err := suite.service.Login(LoginRequest{
		Email:    "writer@example.com",
		Password: "wrong-password",
	})
	suite.ErrorIs(err, ErrInvalidCredentials)
}

func (suite *AuthServiceTestSuite) TestLoginUnknownUser() {
	_, err := suite.service.Login(LoginRequest{
		Email:    "nobody@example.com",
		Password: "password123",
	})
	suite.ErrorIs(err, ErrUserNotFound)
}

func (suite *AuthServiceTestSuite) TestValidateToken() {
	resp := suite.register("writer@example.com", "writer")

	profile, err := suite.service.ValidateToken(resp.Token)
	suite.Require().NoError(err)
	suite.Equal(resp.Profile.UserID, profile.UserID)
	suite.Equal(unlock.RoleWriter, profile.Role)
}

func (suite *AuthServiceTestSuite) TestValidateTokenRejectsBadSignature() {
	resp := suite.register("writer@example.com", "writer")

	other := NewService([]byte("different-secret"))
	_, err := other.ValidateToken(resp.Token)
	suite.Error(err)
}

func (suite *AuthServiceTestSuite) TestValidateTokenRejectsGarbage() {
	_, err := suite.service.ValidateToken("not-a-token")
	suite.Error(err)
}

func TestAuthServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}
