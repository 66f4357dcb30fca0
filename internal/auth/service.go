package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/studypact/backend/internal/database"
	"github.com/studypact/backend/internal/models"
	"github.com/studypact/backend/internal/unlock"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRole        = errors.New("role must be writer or supporter")
	ErrCoupleFull         = errors.New("couple already has two members")
	ErrRoleTaken          = errors.New("role already taken in this couple")
)

// Service handles all authentication operations
type Service struct {
	jwtSecret []byte
}

// NewService creates a new authentication service
func NewService(jwtSecret []byte) *Service {
	return &Service{jwtSecret: jwtSecret}
}

// AuthResponse represents authentication response
type AuthResponse struct {
	Token     string         `json:"token"`
	Profile   models.Profile `json:"profile"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// RegisterRequest represents registration request. A couple is formed by both
// partners registering with the same couple ID and complementary roles.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"required,min=1,max=50"`
	CoupleID    string `json:"couple_id" binding:"required"`
	Role        string `json:"role" binding:"required"`
}

// LoginRequest represents login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Register creates a new profile with email/password
func (s *Service) Register(req RegisterRequest) (*AuthResponse, error) {
	role := unlock.Role(req.Role)
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	var existing models.Profile
	err := database.DB.Where("LOWER(email) = LOWER(?)", req.Email).First(&existing).Error
	if err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	// A couple is exactly two members with complementary roles. The couple
	// ID is the tenancy boundary, so joining one is a closed operation: a
	// third account, or a second account with the same role, is rejected.
	var members []models.Profile
	if err := database.DB.Where("couple_id = ?", req.CoupleID).Find(&members).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if len(members) >= 2 {
		return nil, ErrCoupleFull
	}
	for _, m := range members {
		if m.Role == role {
			return nil, ErrRoleTaken
		}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	hashedPasswordStr := string(hashedPassword)
	profile := models.Profile{
		UserID:       uuid.New().String(),
		CoupleID:     req.CoupleID,
		Role:         role,
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: &hashedPasswordStr,
	}

	if err := database.DB.Create(&profile).Error; err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	return s.generateAuthResponse(&profile)
}

// Login authenticates with email/password
func (s *Service) Login(req LoginRequest) (*AuthResponse, error) {
	var profile models.Profile
	err := database.DB.Where("LOWER(email) = LOWER(?)", req.Email).First(&profile).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	} else if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	if profile.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}

	err = bcrypt.CompareHashAndPassword([]byte(*profile.PasswordHash), []byte(req.Password))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.generateAuthResponse(&profile)
}

// generateAuthResponse creates JWT token and auth response
func (s *Service) generateAuthResponse(profile *models.Profile) (*AuthResponse, error) {
	expiresAt := time.Now().Add(24 * time.Hour) // 24 hour tokens

	claims := jwt.MapClaims{
		"user_id":   profile.UserID,
		"email":     profile.Email,
		"couple_id": profile.CoupleID,
		"role":      string(profile.Role),
		"exp":       expiresAt.Unix(),
		"iat":       time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &AuthResponse{
		Token:     tokenString,
		Profile:   *profile,
		ExpiresAt: expiresAt,
	}, nil
}

// ValidateToken validates a JWT token and returns the fresh profile
func (s *Service) ValidateToken(tokenString string) (*models.Profile, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return nil, errors.New("invalid user_id in token")
	}

	// Fetch fresh profile data
	var profile models.Profile
	err = database.DB.Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	return &profile, nil
}
