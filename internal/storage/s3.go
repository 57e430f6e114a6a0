package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/lemarcheluxe/backend/internal/telemetry"
)

// MaxImageSize caps listing photos and avatars
const MaxImageSize = 10 << 20

var (
	ErrUnsupportedImage = errors.New("unsupported image type, use jpg, jpeg, png, webp or gif")
	ErrImageTooLarge    = fmt.Errorf("image exceeds %d MB", MaxImageSize>>20)
	ErrEmptyImage       = errors.New("image is empty")
)

var allowedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Uploader stores listing images and avatars in S3
type S3Uploader struct {
	client  s3API
	bucket  string
	region  string
	baseURL string
}

// UploadResult contains the result of an S3 upload
type UploadResult struct {
	Key    string `json:"key"`
	URL    string `json:"url"`
	Bucket string `json:"bucket"`
	Region string `json:"region"`
	Size   int64  `json:"size"`
}

// NewS3Uploader creates a new S3 uploader. baseURL is the CDN or bucket
// origin used to build public URLs.
func NewS3Uploader(ctx context.Context, region, bucket, baseURL string) (*S3Uploader, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return newS3Uploader(s3.NewFromConfig(cfg), region, bucket, baseURL), nil
}

func newS3Uploader(client s3API, region, bucket, baseURL string) *S3Uploader {
	return &S3Uploader{
		client:  client,
		bucket:  bucket,
		region:  region,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// UploadProductImage stores a listing photo under products/<uid>/<random>.<ext>
func (u *S3Uploader) UploadProductImage(ctx context.Context, data []byte, userID, filename string) (*UploadResult, error) {
	ext, contentType, err := checkImage(data, filename)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("products/%s/%s%s", userID, uuid.New().String(), ext)
	return u.put(ctx, key, data, contentType, "max-age=31536000", map[string]string{
		"user-id":           userID,
		"original-filename": filename,
		"file-type":         "product-image",
	})
}

// UploadAvatar stores the user's avatar at <uid>/avatar.<ext>, replacing any
// previous one with the same extension
func (u *S3Uploader) UploadAvatar(ctx context.Context, data []byte, userID, filename string) (*UploadResult, error) {
	ext, contentType, err := checkImage(data, filename)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s/avatar%s", userID, ext)
	// Same key on every upload, so keep it out of long-lived caches.
	return u.put(ctx, key, data, contentType, "no-cache", map[string]string{
		"user-id":   userID,
		"file-type": "avatar",
	})
}

func (u *S3Uploader) put(ctx context.Context, key string, data []byte, contentType, cacheControl string, metadata map[string]string) (_ *UploadResult, err error) {
	ctx, span := telemetry.GetBusinessEvents().TraceExternalAPI(ctx, "s3", "put_object")
	defer func() { telemetry.EndSpan(span, err) }()

	metadata["upload-timestamp"] = time.Now().UTC().Format(time.RFC3339)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(u.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(cacheControl),
		Metadata:     metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}
	return &UploadResult{
		Key:    key,
		URL:    u.PublicURL(key),
		Bucket: u.bucket,
		Region: u.region,
		Size:   int64(len(data)),
	}, nil
}

// PublicURL returns the URL a browser can load key from
func (u *S3Uploader) PublicURL(key string) string {
	return u.baseURL + "/" + strings.TrimPrefix(key, "/")
}

// KeyFromURL reverses PublicURL. ok is false for URLs outside this bucket.
func (u *S3Uploader) KeyFromURL(url string) (key string, ok bool) {
	prefix := u.baseURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

// DeleteFile deletes a file from S3
func (u *S3Uploader) DeleteFile(ctx context.Context, key string) error {
	_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// CheckBucketAccess verifies that we can access the S3 bucket
func (u *S3Uploader) CheckBucketAccess(ctx context.Context) error {
	_, err := u.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(u.bucket),
	})
	if err != nil {
		return fmt.Errorf("cannot access S3 bucket %s: %w", u.bucket, err)
	}
	return nil
}

func checkImage(data []byte, filename string) (ext, contentType string, err error) {
	if len(data) == 0 {
		return "", "", ErrEmptyImage
	}
	if len(data) > MaxImageSize {
		return "", "", ErrImageTooLarge
	}
	ext = strings.ToLower(filepath.Ext(filename))
	contentType, ok := allowedImageExtensions[ext]
	if !ok {
		return "", "", ErrUnsupportedImage
	}
	return ext, contentType, nil
}
