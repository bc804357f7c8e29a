// Package storage keeps uploaded avatar files either on local disk or in an
// S3 compatible bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"prediction-platform/internal/config"
)

// Storage saves and removes public objects addressed by a flat key.
type Storage interface {
	// Save writes r under key and returns the public URL of the object.
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	// KeyFromURL returns the key of an object previously returned by Save.
	KeyFromURL(url string) (string, bool)
}

// New builds the Storage selected by cfg.Driver.
func New(ctx context.Context, cfg *config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocal(cfg.LocalDir, cfg.PublicBaseURL)
	case "s3":
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}

func keyFromURL(base, url string) (string, bool) {
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	if key == "" || strings.Contains(key, "/") {
		return "", false
	}
	return key, true
}
