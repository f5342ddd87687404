package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/semmidev/keepsake/internal/domain"
)

type UploadTarget struct {
	Name    string
	Storage domain.Storage
}

// Uploader copies finished artifacts to offsite targets. Failures are logged
// and never change the outcome of the run that produced the artifact.
type Uploader struct {
	targets []UploadTarget
	logger  domain.Logger
}

func NewUploader(targets []UploadTarget, logger domain.Logger) *Uploader {
	if logger == nil {
		logger = domain.NopLogger()
	}
	return &Uploader{targets: targets, logger: logger}
}

func (u *Uploader) Targets() []UploadTarget {
	return u.targets
}

// Distribute uploads the artifact to every target in parallel. Targets that
// can deliver messages get a summary with the digest instead of the sidecar.
func (u *Uploader) Distribute(ctx context.Context, art domain.Artifact) {
	if len(u.targets) == 0 {
		return
	}

	final := art.FinalPath()
	summary := fmt.Sprintf("Backup created\nFile: %s\nSize: %s\nSHA-256: %s\nMode: %s",
		filepath.Base(final), humanize.IBytes(uint64(art.SizeBytes)), art.Digest, art.Mode)

	var wg sync.WaitGroup
	for _, target := range u.targets {
		wg.Add(1)
		go func(t UploadTarget) {
			defer wg.Done()

			u.logger.Infof("Uploading %s to %s...", filepath.Base(final), t.Name)
			if err := t.Storage.Upload(ctx, final, filepath.Base(final)); err != nil {
				u.logger.Warnf("Failed to upload to %s: %v", t.Name, err)
				return
			}

			if notifier, ok := t.Storage.(domain.Notifier); ok {
				if err := notifier.Notify(ctx, summary); err != nil {
					u.logger.Warnf("Failed to notify via %s: %v", t.Name, err)
				}
			} else if art.DigestPath != "" {
				if err := t.Storage.Upload(ctx, art.DigestPath, filepath.Base(art.DigestPath)); err != nil {
					u.logger.Warnf("Failed to upload digest to %s: %v", t.Name, err)
					return
				}
			}
			u.logger.Infof("Successfully uploaded to %s", t.Name)
		}(target)
	}

	wg.Wait()
}
