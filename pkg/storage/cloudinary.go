package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/config"
)

// CloudinaryConfig holds Cloudinary credentials.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Cloudinary stores uploads as Cloudinary assets. Images go up as image
// resources, everything else as raw.
type Cloudinary struct {
	uploader *uploader.API
	folder   string
}

// NewCloudinary builds an uploader from cloud name, API key and secret.
func NewCloudinary(cfg CloudinaryConfig) (*Cloudinary, error) {
	cc, err := config.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config: %w", err)
	}
	up, err := uploader.NewWithConfiguration(cc)
	if err != nil {
		return nil, fmt.Errorf("cloudinary uploader: %w", err)
	}
	return &Cloudinary{uploader: up, folder: cfg.Folder}, nil
}

// Put uploads body and returns the secure URL. The key minus its extension becomes the public ID.
func (c *Cloudinary) Put(ctx context.Context, key, contentType string, body io.Reader, _ int64) (string, error) {
	resourceType := "raw"
	if strings.HasPrefix(contentType, "image/") {
		resourceType = "image"
	}
	publicID := strings.TrimSuffix(key, path.Ext(key))
	overwrite := true
	result, err := c.uploader.Upload(ctx, body, uploader.UploadParams{
		Folder:       c.folder,
		PublicID:     publicID,
		ResourceType: resourceType,
		Overwrite:    &overwrite,
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload: %s", result.Error.Message)
	}
	return result.SecureURL, nil
}
