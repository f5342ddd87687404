package domain

import (
	"context"
	"time"
)

// Storage is an offsite destination that finished artifacts are copied to.
type Storage interface {
	Upload(ctx context.Context, localPath string, remoteName string) error
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, remoteName string) error
	GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error)
}

// Notifier is implemented by targets that can also deliver a text message.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}
