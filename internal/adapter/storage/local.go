package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const uploadPrefix = ".upload-"

// LocalStorage keeps copies in a directory on a mounted disk. Directories are
// created owner-only and copies are written 0600.
type LocalStorage struct {
	basePath string
}

func NewLocal(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0700); err != nil {
		return nil, fmt.Errorf("create %s: %w", basePath, err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (l *LocalStorage) Upload(ctx context.Context, localPath string, remoteName string) error {
	destPath := l.GetPath(remoteName)
	if same, _ := samePath(localPath, destPath); same {
		return nil
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer src.Close()

	// CreateTemp opens with 0600; the rename keeps that mode.
	tmp, err := os.CreateTemp(l.basePath, uploadPrefix+"*")
	if err != nil {
		return fmt.Errorf("create copy in %s: %w", l.basePath, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: src}); err != nil {
		tmp.Close()
		return fmt.Errorf("copy %s: %w", remoteName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("copy %s: %w", remoteName, err)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return fmt.Errorf("move %s into place: %w", remoteName, err)
	}
	return nil
}

// List returns the regular files in the directory. In-flight copies are
// skipped.
func (l *LocalStorage) List(ctx context.Context) ([]string, error) {
	return l.scan(func(fs.FileInfo) bool { return true })
}

func (l *LocalStorage) Delete(ctx context.Context, remoteName string) error {
	if err := os.Remove(l.GetPath(remoteName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", remoteName, err)
	}
	return nil
}

func (l *LocalStorage) GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error) {
	return l.scan(func(info fs.FileInfo) bool { return info.ModTime().Before(cutoffTime) })
}

// GetPath maps a remote name to its file, never leaving the directory.
func (l *LocalStorage) GetPath(remoteName string) string {
	return filepath.Join(l.basePath, filepath.Base(remoteName))
}

func (l *LocalStorage) scan(keep func(fs.FileInfo) bool) ([]string, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", l.basePath, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), uploadPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		if keep(info) {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

func samePath(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(ai, bi), nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
