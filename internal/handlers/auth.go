package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/studypact/backend/internal/auth"
	"github.com/studypact/backend/internal/logger"
	"github.com/studypact/backend/internal/util"
	"go.uber.org/zap"
)

// Register creates a new profile with email/password
func (h *Handlers) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.authService.Register(req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			c.JSON(http.StatusConflict, gin.H{"error": "user already exists"})
		case errors.Is(err, auth.ErrCoupleFull), errors.Is(err, auth.ErrRoleTaken):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, auth.ErrInvalidRole):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			logger.Log.Error("registration failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		}
		return
	}

	logger.Log.Info("profile registered",
		logger.WithUserID(resp.Profile.UserID),
		logger.WithCoupleID(resp.Profile.CoupleID),
		zap.String("role", string(resp.Profile.Role)))

	c.JSON(http.StatusCreated, resp)
}

// Login authenticates with email/password
func (h *Handlers) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.authService.Login(req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		default:
			logger.Log.Error("login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Me returns the authenticated caller's profile along with the partner's
// public fields.
func (h *Handlers) Me(c *gin.Context) {
	profile, ok := util.GetProfileFromContext(c)
	if !ok {
		return
	}

	resp := gin.H{"profile": profile}

	partner, err := h.profiles.GetPartner(c.Request.Context(), profile.CoupleID, profile.UserID)
	if err == nil && partner != nil {
		resp["partner"] = gin.H{
			"user_id":      partner.UserID,
			"display_name": partner.DisplayName,
			"role":         partner.Role,
		}
	}

	c.JSON(http.StatusOK, resp)
}
