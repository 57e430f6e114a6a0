package storage

import "context"

// ImageUploader is the storage surface the profile and product services use
type ImageUploader interface {
	UploadProductImage(ctx context.Context, data []byte, userID, filename string) (*UploadResult, error)
	UploadAvatar(ctx context.Context, data []byte, userID, filename string) (*UploadResult, error)
	DeleteFile(ctx context.Context, key string) error
	KeyFromURL(url string) (string, bool)
}

var _ ImageUploader = (*S3Uploader)(nil)
