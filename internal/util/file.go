package util

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
)

var (
	ErrFilenameRequired = errors.New("filename is required")
	ErrFilenameInvalid  = errors.New("filename cannot contain directory paths")
	ErrFileTooLarge     = errors.New("file is too large")
)

// ValidateFilename checks an uploaded file's display name.
// Must be non-empty, <= 255 chars and free of directory separators.
func ValidateFilename(filename string) error {
	if filename == "" {
		return ErrFilenameRequired
	}
	if strings.Contains(filename, "/") || strings.Contains(filename, "\\") {
		return ErrFilenameInvalid
	}
	if len(filename) > 255 {
		return fmt.Errorf("filename too long (max 255 characters): %w", ErrFilenameInvalid)
	}
	return nil
}

// ReadUploadedFile reads a multipart file into memory, refusing anything over maxSize bytes
func ReadUploadedFile(file *multipart.FileHeader, maxSize int64) ([]byte, error) {
	if err := ValidateFilename(file.Filename); err != nil {
		return nil, err
	}
	if maxSize > 0 && file.Size > maxSize {
		return nil, ErrFileTooLarge
	}

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	r := io.Reader(src)
	if maxSize > 0 {
		r = io.LimitReader(src, maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}
