package handlers

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/studypact/backend/internal/errors"
	"github.com/studypact/backend/internal/logger"
	"github.com/studypact/backend/internal/metrics"
	"github.com/studypact/backend/internal/models"
	"github.com/studypact/backend/internal/util"
	"go.uber.org/zap"
)

const (
	// Photos per daily upload batch
	maxPhotosPerBatch = 6

	// Per-file size limit
	maxPhotoBytes = 10 << 20 // 10MB
)

// UploadCouplePhoto replaces the caller's shared couple photo. The storage
// slot is fixed per author, so the old photo is overwritten in place.
func (h *Handlers) UploadCouplePhoto(c *gin.Context) {
	profile, ok := util.GetProfileFromContext(c)
	if !ok {
		return
	}

	date := c.PostForm("date")
	if date == "" {
		date = models.Today()
	}
	if !util.ValidDate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	fileHeader, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
		return
	}
	if fileHeader.Size > maxPhotoBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo exceeds 10MB limit"})
		return
	}

	data, err := readUpload(fileHeader)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read photo"})
		return
	}

	result, err := h.uploader.UploadCouplePhoto(c.Request.Context(), data, profile.CoupleID, profile.UserID, util.SafeFilename(fileHeader.Filename))
	if err != nil {
		metrics.Get().PhotoUploadsTotal.WithLabelValues("couple", "error").Inc()
		logger.Log.Error("couple photo upload failed",
			logger.WithUserID(profile.UserID),
			zap.Error(err))
		util.RespondWithAPIError(c, apierrors.RemoteFailure("photo upload"))
		return
	}
	metrics.Get().PhotoUploadsTotal.WithLabelValues("couple", "success").Inc()

	existing, err := h.gated.GetByAuthorDate(c.Request.Context(), profile.UserID, date)
	if err != nil {
		logger.Log.Error("gated lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save photo"})
		return
	}

	content := &models.GatedContent{
		CoupleID:        profile.CoupleID,
		AuthorID:        profile.UserID,
		Date:            date,
		Role:            profile.Role,
		SharedPhotoPath: result.Key,
	}
	if existing != nil {
		content.Message = existing.Message
		content.DailyPhotoPaths = existing.DailyPhotoPaths
	}

	saved, err := h.gated.Save(c.Request.Context(), content)
	if err != nil {
		logger.Log.Error("gated save failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save photo"})
		return
	}

	h.notifyChange(profile.CoupleID, profile.UserID, "gated_content", date)

	c.JSON(http.StatusOK, gin.H{
		"content": saved,
		"url":     result.URL,
	})
}

// UploadDailyPhotos adds up to six photos to the caller's daily list for a
// day. New photos go to the front; the list is capped at the most recent 24.
func (h *Handlers) UploadDailyPhotos(c *gin.Context) {
	profile, ok := util.GetProfileFromContext(c)
	if !ok {
		return
	}

	date := c.PostForm("date")
	if date == "" {
		date = models.Today()
	}
	if !util.ValidDate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form is required"})
		return
	}
	files := form.File["photos"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one photo is required"})
		return
	}
	if len(files) > maxPhotosPerBatch {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "too many photos in one batch",
			"max":   maxPhotosPerBatch,
		})
		return
	}

	uploaded := make([]string, 0, len(files))
	for _, fileHeader := range files {
		if fileHeader.Size > maxPhotoBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo exceeds 10MB limit"})
			return
		}
		data, err := readUpload(fileHeader)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read photo"})
			return
		}

		result, err := h.uploader.UploadDailyPhoto(c.Request.Context(), data, profile.CoupleID, profile.UserID, date, util.SafeFilename(fileHeader.Filename))
		if err != nil {
			metrics.Get().PhotoUploadsTotal.WithLabelValues("daily", "error").Inc()
			logger.Log.Error("daily photo upload failed",
				logger.WithUserID(profile.UserID),
				logger.WithDate(date),
				zap.Error(err))
			util.RespondWithAPIError(c, apierrors.RemoteFailure("photo upload"))
			return
		}
		metrics.Get().PhotoUploadsTotal.WithLabelValues("daily", "success").Inc()
		uploaded = append(uploaded, result.Key)
	}

	existing, err := h.gated.GetByAuthorDate(c.Request.Context(), profile.UserID, date)
	if err != nil {
		logger.Log.Error("gated lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save photos"})
		return
	}

	content := &models.GatedContent{
		CoupleID: profile.CoupleID,
		AuthorID: profile.UserID,
		Date:     date,
		Role:     profile.Role,
	}
	if existing != nil {
		content.Message = existing.Message
		content.SharedPhotoPath = existing.SharedPhotoPath
		content.DailyPhotoPaths = existing.DailyPhotoPaths
	}

	// Newest first, capped. The repository enforces the cap too.
	content.DailyPhotoPaths = append(models.StringArray(uploaded), content.DailyPhotoPaths...)
	if len(content.DailyPhotoPaths) > models.MaxDailyPhotos {
		content.DailyPhotoPaths = content.DailyPhotoPaths[:models.MaxDailyPhotos]
	}

	saved, err := h.gated.Save(c.Request.Context(), content)
	if err != nil {
		logger.Log.Error("gated save failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save photos"})
		return
	}

	h.notifyChange(profile.CoupleID, profile.UserID, "gated_content", date)

	c.JSON(http.StatusOK, gin.H{
		"content":  saved,
		"uploaded": uploaded,
	})
}

// DeleteDailyPhotoRequest names one photo in the caller's daily list
type DeleteDailyPhotoRequest struct {
	Date string `json:"date" binding:"required"`
	Path string `json:"path" binding:"required"`
}

// DeleteDailyPhoto removes one photo from the caller's daily list and from
// storage. Only the author can delete their own photos.
func (h *Handlers) DeleteDailyPhoto(c *gin.Context) {
	profile, ok := util.GetProfileFromContext(c)
	if !ok {
		return
	}

	var req DeleteDailyPhotoRequest
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
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete photo"})
		return
	}
	if existing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no content for that day"})
		return
	}

	remaining := make(models.StringArray, 0, len(existing.DailyPhotoPaths))
	found := false
	for _, p := range existing.DailyPhotoPaths {
		if p == req.Path && !found {
			found = true
			continue
		}
		remaining = append(remaining, p)
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found for that day"})
		return
	}

	existing.DailyPhotoPaths = remaining
	saved, err := h.gated.Save(c.Request.Context(), existing)
	if err != nil {
		logger.Log.Error("gated save failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete photo"})
		return
	}

	// Storage cleanup is best effort; the row is already consistent.
	if err := h.uploader.DeleteFile(c.Request.Context(), req.Path); err != nil {
		logger.Log.Warn("photo delete from storage failed",
			zap.String("key", req.Path),
			zap.Error(err))
	}

	h.notifyChange(profile.CoupleID, profile.UserID, "gated_content", req.Date)

	c.JSON(http.StatusOK, gin.H{"content": saved})
}

func readUpload(fileHeader *multipart.FileHeader) ([]byte, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(io.LimitReader(file, maxPhotoBytes))
}
