package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

const (
	// MaxPhotoSize is the maximum allowed size for a student photo (2MB).
	MaxPhotoSize = 2 * 1024 * 1024
	// MaxIDDocumentSize is the maximum allowed size for a national ID document (5MB).
	MaxIDDocumentSize = 5 * 1024 * 1024
	// FolderEnrollments is the object prefix for enrollment uploads.
	FolderEnrollments = "enrollments"
)

// Kind identifies what an uploaded file is for.
type Kind string

const (
	KindPhoto      Kind = "photo"
	KindIDDocument Kind = "id_document"
)

var (
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
)

// Allowed MIME types and extensions per upload kind.
var (
	allowedTypes = map[Kind]map[string]string{
		KindPhoto: {
			"image/jpeg": ".jpg",
			"image/jpg":  ".jpg",
			"image/png":  ".png",
		},
		KindIDDocument: {
			"application/pdf": ".pdf",
		},
	}
	allowedExtensions = map[Kind]map[string]string{
		KindPhoto: {
			".jpg":  "image/jpeg",
			".jpeg": "image/jpeg",
			".png":  "image/png",
		},
		KindIDDocument: {
			".pdf": "application/pdf",
		},
	}
	maxSizes = map[Kind]int64{
		KindPhoto:      MaxPhotoSize,
		KindIDDocument: MaxIDDocumentSize,
	}
)

// Uploader stores an object and returns its URL. Implemented by S3 and Cloudinary.
type Uploader interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
}

// Validate checks the size and type of an upload and returns the content type to store it with.
// The content type wins over the extension when both are present.
func Validate(kind Kind, contentType, filename string, size int64) (string, error) {
	limit, ok := maxSizes[kind]
	if !ok {
		return "", fmt.Errorf("unknown upload kind %q", kind)
	}
	if size > limit {
		return "", fmt.Errorf("%s: %w (max %d bytes)", kind, ErrFileTooLarge, limit)
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct != "" && ct != "application/octet-stream" {
		if _, ok := allowedTypes[kind][ct]; ok {
			if ct == "image/jpg" {
				ct = "image/jpeg"
			}
			return ct, nil
		}
		return "", fmt.Errorf("%s: %w: %s", kind, ErrUnsupportedType, ct)
	}
	if byExt, ok := allowedExtensions[kind][strings.ToLower(path.Ext(filename))]; ok {
		return byExt, nil
	}
	return "", fmt.Errorf("%s: %w", kind, ErrUnsupportedType)
}

// DocumentKey returns the object key: enrollments/{enrollment_id}/{kind}{ext}.
func DocumentKey(enrollmentID string, kind Kind, contentType string) string {
	ext := allowedTypes[kind][contentType]
	return path.Join(FolderEnrollments, enrollmentID, string(kind)+ext)
}
