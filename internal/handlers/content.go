package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/studypact/backend/internal/catalog"
	"github.com/studypact/backend/internal/logger"
	"github.com/studypact/backend/internal/models"
	"github.com/studypact/backend/internal/util"
	"go.uber.org/zap"
)

// UpsertGatedContentRequest carries a day's encouragement message. Photo
// paths are managed by the photo endpoints, not here.
type UpsertGatedContentRequest struct {
	Date    string `json:"date" binding:"required"`
	Message string `json:"message"`
}

// UpsertGatedContent writes the caller's encouragement message for a day
func (h *Handlers) UpsertGatedContent(c *gin.Context) {
	profile, ok := util.GetProfileFromContext(c)
	if !ok {
		return
	}

	var req UpsertGatedContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !util.ValidDate(req.Date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	existing, err := h.gated.GetByAuthorDate(c.Request.Context(), profile.UserID, req.Date)
	if err != nil {
		logger.Log.Error("gated lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save content"})
		return
	}

	content := &models.GatedContent{
		CoupleID: profile.CoupleID,
		AuthorID: profile.UserID,
		Date:     req.Date,
		Role:     profile.Role,
		Message:  req.Message,
	}
	// Message writes must not clobber the photo columns.
	if existing != nil {
		content.SharedPhotoPath = existing.SharedPhotoPath
		content.DailyPhotoPaths = existing.DailyPhotoPaths
	}

	saved, err := h.gated.Save(c.Request.Context(), content)
	if err != nil {
		logger.Log.Error("gated save failed",
			logger.WithUserID(profile.UserID),
			logger.WithDate(req.Date),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save content"})
		return
	}

	h.notifyChange(profile.CoupleID, profile.UserID, "gated_content", req.Date)

	c.JSON(http.StatusOK, gin.H{"content": saved})
}

// GetGatedContent returns the couple's gated rows for one day, filtered by
// the caller's visibility. A locked writer receives only their own row.
func (h *Handlers) GetGatedContent(c *gin.Context) {
	profile, ok := util.GetProfileFromContext(c)
	if !ok {
		return
	}

	date := c.Query("date")
	if date == "" {
		date = models.Today()
	}
	if !util.ValidDate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	rows, err := h.gated.FetchForViewer(c.Request.Context(), profile, date)
	if err != nil {
		logger.Log.Error("gated fetch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch content"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"contents": rows})
}

// GetGatedHistory returns the couple's gated rows from a date onward,
// newest first, with per-day visibility filtering.
func (h *Handlers) GetGatedHistory(c *gin.Context) {
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

	rows, err := h.gated.FetchRangeForViewer(c.Request.Context(), profile, from)
	if err != nil {
		logger.Log.Error("gated history fetch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch content"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"contents": rows})
}

// UpsertOpenContentRequest carries a day's mutual content
type UpsertOpenContentRequest struct {
	Date         string   `json:"date" binding:"required"`
	SubjectNotes []string `json:"subject_notes"`
	DiaryText    string   `json:"diary_text"`
}

// UpsertOpenContent writes the caller's mutual notes and diary for a day.
// Open content is never gated.
func (h *Handlers) UpsertOpenContent(c *gin.Context) {
	profile, ok := util.GetProfileFromContext(c)
	if !ok {
		return
	}

	var req UpsertOpenContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !util.ValidDate(req.Date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	content := &models.OpenContent{
		CoupleID:     profile.CoupleID,
		AuthorID:     profile.UserID,
		Date:         req.Date,
		Role:         profile.Role,
		SubjectNotes: catalog.PadNotes(req.SubjectNotes),
		DiaryText:    req.DiaryText,
	}

	saved, err := h.open.Save(c.Request.Context(), content)
	if err != nil {
		logger.Log.Error("open save failed",
			logger.WithUserID(profile.UserID),
			logger.WithDate(req.Date),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save content"})
		return
	}

	h.notifyChange(profile.CoupleID, profile.UserID, "open_content", req.Date)

	c.JSON(http.StatusOK, gin.H{"content": saved})
}

// GetOpenContent returns the couple's open rows from a date onward, newest
// first.
func (h *Handlers) GetOpenContent(c *gin.Context) {
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

	rows, err := h.open.FetchRange(c.Request.Context(), profile.CoupleID, from)
	if err != nil {
		logger.Log.Error("open fetch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch content"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"contents": rows})
}
