package util

import (
	"github.com/gin-gonic/gin"
	"github.com/studypact/backend/internal/errors"
	"github.com/studypact/backend/internal/models"
)

// GetProfileFromContext extracts the authenticated profile from the Gin
// context. If the request is not authenticated it responds with a
// SESSION_MISSING error and returns false; callers just return.
func GetProfileFromContext(c *gin.Context) (*models.Profile, bool) {
	profile, exists := c.Get("profile")
	if !exists {
		RespondWithAPIError(c, errors.SessionMissing())
		return nil, false
	}
	p, ok := profile.(*models.Profile)
	if !ok {
		RespondWithAPIError(c, errors.InternalError("invalid profile data in context"))
		return nil, false
	}
	return p, true
}

// GetUserIDFromContext extracts the user ID from the Gin context.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		RespondWithAPIError(c, errors.SessionMissing())
		return "", false
	}
	s, ok := userID.(string)
	if !ok {
		RespondWithAPIError(c, errors.InternalError("invalid user ID in context"))
		return "", false
	}
	return s, true
}
