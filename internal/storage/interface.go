package storage

import "context"

// PhotoUploader defines the upload surface the handlers depend on.
// This interface allows for easy mocking in tests
type PhotoUploader interface {
	UploadCouplePhoto(ctx context.Context, photoData []byte, coupleID, userID, originalFilename string) (*UploadResult, error)
	UploadDailyPhoto(ctx context.Context, photoData []byte, coupleID, userID, date, originalFilename string) (*UploadResult, error)
	DeleteFile(ctx context.Context, key string) error
	PublicURL(key string) string
}

// Ensure S3Uploader implements PhotoUploader
var _ PhotoUploader = (*S3Uploader)(nil)
