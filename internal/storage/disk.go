// Package storage stores uploaded media on the local filesystem or on an
// S3-compatible bucket (AWS S3, MinIO, Cloudflare R2).
package storage

import (
	"context"
	"strings"

	"github.com/go-faster/errors"

	"github.com/example/freshcart/internal/config"
)

// Disk is the media driver interface.
type Disk interface {
	// Put writes content to path, creating parent directories as needed.
	Put(ctx context.Context, path string, content []byte, contentType string) error

	// Delete removes a file. Returns nil if the file did not exist.
	Delete(ctx context.Context, path string) error

	// URL returns the public URL for path.
	URL(path string) string
}

// New builds the disk selected by cfg.StorageDisk.
func New(ctx context.Context, cfg *config.Config) (Disk, error) {
	switch cfg.StorageDisk {
	case "", "local":
		return NewLocal(cfg.UploadDir, cfg.PublicBaseURL+"/uploads")
	case "s3":
		return NewS3(ctx, cfg.S3)
	default:
		return nil, errors.Errorf("unknown storage disk %q", cfg.StorageDisk)
	}
}

// PathFromURL returns the disk path of a URL produced by d.URL, or false when
// the URL does not belong to d.
func PathFromURL(d Disk, url string) (string, bool) {
	base := d.URL("")
	if url == "" || !strings.HasPrefix(url, base) {
		return "", false
	}
	path := strings.TrimPrefix(url, base)
	if path == "" {
		return "", false
	}
	return path, true
}
