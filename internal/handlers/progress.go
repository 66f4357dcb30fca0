package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/studypact/backend/internal/catalog"
	apierrors "github.com/studypact/backend/internal/errors"
	"github.com/studypact/backend/internal/logger"
	"github.com/studypact/backend/internal/metrics"
	"github.com/studypact/backend/internal/repository"
	"github.com/studypact/backend/internal/unlock"
	"github.com/studypact/backend/internal/util"
	"go.uber.org/zap"
)

// UpsertProgressRequest carries one day's per-subject hours
type UpsertProgressRequest struct {
	Date  string    `json:"date" binding:"required"`
	Hours []float64 `json:"hours" binding:"required"`
}

// UpsertProgress records the caller's study hours for a day. The whole row
// is replaced; the unlock snapshot is re-evaluated on every write.
func (h *Handlers) UpsertProgress(c *gin.Context) {
	profile, ok := util.GetProfileFromContext(c)
	if !ok {
		return
	}

	var req UpsertProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !util.ValidDate(req.Date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	// Remember the prior snapshot so we can detect the unlock transition.
	prior, err := h.progress.GetByUserDate(c.Request.Context(), profile.UserID, req.Date)
	if err != nil {
		logger.Log.Error("progress lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record progress"})
		return
	}
	wasUnlocked := prior != nil && prior.Unlocked

	record, err := h.progress.RecordHours(c.Request.Context(), profile.UserID, profile.CoupleID, profile.Role, req.Date, req.Hours)
	if err != nil {
		if errors.Is(err, repository.ErrHoursLength) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":    "hours must have one entry per subject",
				"expected": catalog.Len(),
			})
			return
		}
		logger.Log.Error("progress write failed",
			logger.WithUserID(profile.UserID),
			logger.WithDate(req.Date),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record progress"})
		return
	}

	metrics.Get().ProgressWritesTotal.WithLabelValues(string(profile.Role)).Inc()

	// The snapshot changed, so the cached unlock answer for this day is
	// stale either way.
	if profile.Role == unlock.RoleWriter {
		h.unlocks.Invalidate(c.Request.Context(), profile.CoupleID, req.Date)
	}

	h.notifyChange(profile.CoupleID, profile.UserID, "progress", req.Date)

	if profile.Role == unlock.RoleWriter && record.Unlocked && !wasUnlocked {
		metrics.Get().UnlocksTotal.WithLabelValues(profile.CoupleID).Inc()
		logger.Log.Info("day unlocked",
			logger.WithCoupleID(profile.CoupleID),
			logger.WithDate(req.Date),
			zap.Float64("total_hours", record.TotalHours))
		if h.wsHandler != nil {
			h.wsHandler.NotifyUnlocked(profile.CoupleID, req.Date)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"record": record,
		"hours_remaining": unlock.HoursRemaining(
			record.TotalHours, catalog.TotalTarget()),
	})
}

// BackfillProgressRequest lets the supporter restore a missing writer row
type BackfillProgressRequest struct {
	Date  string    `json:"date" binding:"required"`
	Hours []float64 `json:"hours" binding:"required"`
}

// BackfillProgress writes a progress row on behalf of the couple's writer.
// Supporter-only: used to restore days the writer logged elsewhere. The
// unlock snapshot is evaluated against the writer's role, not the caller's.
func (h *Handlers) BackfillProgress(c *gin.Context) {
	profile, ok := util.GetProfileFromContext(c)
	if !ok {
		return
	}
	if profile.Role != unlock.RoleSupporter {
		util.RespondWithAPIError(c, apierrors.Forbidden("only the supporter can backfill"))
		return
	}

	var req BackfillProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !util.ValidDate(req.Date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	writer, err := h.profiles.GetWriter(c.Request.Context(), profile.CoupleID)
	if err != nil {
		if errors.Is(err, repository.ErrWriterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "couple has no writer"})
			return
		}
		logger.Log.Error("writer lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to backfill"})
		return
	}

	record, err := h.progress.RecordHours(c.Request.Context(), writer.UserID, profile.CoupleID, unlock.RoleWriter, req.Date, req.Hours)
	if err != nil {
		if errors.Is(err, repository.ErrHoursLength) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":    "hours must have one entry per subject",
				"expected": catalog.Len(),
			})
			return
		}
		logger.Log.Error("backfill write failed",
			logger.WithCoupleID(profile.CoupleID),
			logger.WithDate(req.Date),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to backfill"})
		return
	}

	h.unlocks.Invalidate(c.Request.Context(), profile.CoupleID, req.Date)
	h.notifyChange(profile.CoupleID, profile.UserID, "progress", req.Date)

	c.JSON(http.StatusOK, gin.H{"record": record})
}

// GetProgress returns both members' progress records from the given date
// onward, newest first.
func (h *Handlers) GetProgress(c *gin.Context) {
	profile, ok := util.GetProfileFromContext(c)
	if !ok {
		return
	}

	from := c.Query("from")
	if from == "" {
		from = defaultWindowStart()
	}
	if !util.ValidDate(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
		return
	}

	records, err := h.progress.FetchRange(c.Request.Context(), profile.CoupleID, from)
	if err != nil {
		logger.Log.Error("progress fetch failed",
			logger.WithCoupleID(profile.CoupleID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch progress"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records":      records,
		"subjects":     catalog.Subjects,
		"target_total": catalog.TotalTarget(),
	})
}
