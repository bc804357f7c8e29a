package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Local stores objects as files in a directory served under publicBaseURL.
type Local struct {
	fs            afero.Fs
	dir           string
	publicBaseURL string
}

func NewLocal(dir, publicBaseURL string) (*Local, error) {
	return NewLocalWithFs(afero.NewOsFs(), dir, publicBaseURL)
}

// NewLocalWithFs is used by tests to run against an in-memory filesystem.
func NewLocalWithFs(fs afero.Fs, dir, publicBaseURL string) (*Local, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir %s: %w", dir, err)
	}
	return &Local{fs: fs, dir: dir, publicBaseURL: publicBaseURL}, nil
}

func (l *Local) Dir() string {
	return l.dir
}

func (l *Local) Save(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	path, err := l.path(key)
	if err != nil {
		return "", err
	}

	f, err := l.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = l.fs.Remove(path)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = l.fs.Remove(path)
		return "", fmt.Errorf("failed to close file: %w", err)
	}

	return joinURL(l.publicBaseURL, key), nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	path, err := l.path(key)
	if err != nil {
		return err
	}
	if err := l.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (l *Local) KeyFromURL(url string) (string, bool) {
	return keyFromURL(l.publicBaseURL, url)
}

// Exists reports whether key is present on disk.
func (l *Local) Exists(key string) bool {
	path, err := l.path(key)
	if err != nil {
		return false
	}
	ok, err := afero.Exists(l.fs, path)
	return err == nil && ok
}

func (l *Local) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(l.dir, key), nil
}
