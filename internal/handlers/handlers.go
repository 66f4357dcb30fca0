package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/studypact/backend/internal/auth"
	"github.com/studypact/backend/internal/cache"
	apierrors "github.com/studypact/backend/internal/errors"
	"github.com/studypact/backend/internal/repository"
	"github.com/studypact/backend/internal/storage"
	"github.com/studypact/backend/internal/util"
	"github.com/studypact/backend/internal/websocket"
)

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	authService auth.ServiceInterface
	profiles    repository.ProfileRepository
	progress    repository.ProgressRepository
	gated       repository.GatedRepository
	open        repository.OpenRepository
	uploader    storage.PhotoUploader
	unlocks     *cache.UnlockCache
	wsHandler   *websocket.Handler
}

// NewHandlers creates a new handlers instance
func NewHandlers(
	authService auth.ServiceInterface,
	profiles repository.ProfileRepository,
	progress repository.ProgressRepository,
	gated repository.GatedRepository,
	open repository.OpenRepository,
	uploader storage.PhotoUploader,
	unlocks *cache.UnlockCache,
) *Handlers {
	return &Handlers{
		authService: authService,
		profiles:    profiles,
		progress:    progress,
		gated:       gated,
		open:        open,
		uploader:    uploader,
		unlocks:     unlocks,
	}
}

// SetWebSocketHandler sets the WebSocket handler for real-time notifications
func (h *Handlers) SetWebSocketHandler(ws *websocket.Handler) {
	h.wsHandler = ws
}

// AuthMiddleware validates the bearer token and loads the caller's profile
// into the request context under "user_id" and "profile".
func (h *Handlers) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			util.RespondWithAPIError(c, apierrors.SessionMissing())
			c.Abort()
			return
		}
		token = strings.TrimPrefix(token, "Bearer ")

		profile, err := h.authService.ValidateToken(token)
		if err != nil {
			util.RespondUnauthorized(c, "invalid token")
			c.Abort()
			return
		}

		c.Set("user_id", profile.UserID)
		c.Set("profile", profile)
		c.Next()
	}
}

// notifyChange pushes a change notification to the author's partner, if the
// realtime layer is wired up.
func (h *Handlers) notifyChange(coupleID, authorID, table, date string) {
	if h.wsHandler != nil {
		h.wsHandler.NotifyChange(coupleID, authorID, table, date)
	}
}
