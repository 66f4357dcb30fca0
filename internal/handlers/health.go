package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/studypact/backend/internal/database"
)

// Health reports service liveness plus database reachability
func (h *Handlers) Health(c *gin.Context) {
	status := "ok"
	code := http.StatusOK

	dbStatus := "ok"
	if err := database.Health(); err != nil {
		dbStatus = "unreachable"
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"database":  dbStatus,
		"timestamp": time.Now().UTC(),
		"service":   "studypact-backend",
	})
}
