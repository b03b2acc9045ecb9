package api

import (
	"errors"
	"mime"
	"net/url"
	"path/filepath"
	"strings"
)

// MaxUploadBytes is the largest document accepted for upload (50 MiB).
const MaxUploadBytes = 50 << 20

var (
	ErrEmptyContent        = errors.New("message content is empty")
	ErrUnsupportedFileType = errors.New("unsupported file type: use TXT, PDF, DOCX or CSV")
	ErrFileTooLarge        = errors.New("file too large: maximum size is 50MB")
	ErrInvalidURL          = errors.New("invalid url: expected an absolute http(s) address")
)

var allowedUploadTypes = map[string]bool{
	"text/plain":      true,
	"application/pdf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/csv": true,
}

var allowedUploadExtensions = map[string]bool{
	".txt":  true,
	".pdf":  true,
	".docx": true,
	".csv":  true,
}

// ValidateContent rejects message content that is empty after trimming.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	return nil
}

// ValidateUpload accepts a file when either its media type or its extension
// is allowed, and its size is within MaxUploadBytes.
func ValidateUpload(filename, contentType string, size int64) error {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = ""
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedUploadTypes[mediaType] && !allowedUploadExtensions[ext] {
		return ErrUnsupportedFileType
	}
	if size > MaxUploadBytes {
		return ErrFileTooLarge
	}
	return nil
}

// ValidateCrawlURL accepts absolute http and https URLs with a host.
func ValidateCrawlURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	return nil
}

// IsValidation reports whether err is a client-side validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyContent) ||
		errors.Is(err, ErrUnsupportedFileType) ||
		errors.Is(err, ErrFileTooLarge) ||
		errors.Is(err, ErrInvalidURL)
}
