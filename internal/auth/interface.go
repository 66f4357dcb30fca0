package auth

import "github.com/studypact/backend/internal/models"

// ServiceInterface defines the contract for authentication operations.
// This enables mocking for unit tests without requiring a real database.
type ServiceInterface interface {
	Register(req RegisterRequest) (*AuthResponse, error)
	Login(req LoginRequest) (*AuthResponse, error)
	ValidateToken(tokenString string) (*models.Profile, error)
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)
