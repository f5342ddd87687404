package usecase

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/semmidev/keepsake/internal/domain"
)

const (
	archiveExt   = ".tar.gz"
	encryptedExt = ".gpg"
	notesExt     = ".RESTORE.txt"
	stampLayout  = "20060102_150405"
)

// EngineContext carries everything one run needs. It is built once before
// discovery starts and only read afterwards.
type EngineContext struct {
	RunID        string
	Mode         domain.BackupMode
	Home         string
	DestDir      string
	Name         string
	Encrypt      bool
	Passphrase   domain.Passphrase
	MinFreeBytes uint64
	StartedAt    time.Time
}

// NewEngineContext names the run's artifacts <prefix>_<timestamp> inside
// destDir and assigns a fresh run id.
func NewEngineContext(mode domain.BackupMode, home, destDir, prefix string, now time.Time) EngineContext {
	return EngineContext{
		RunID:     uuid.NewString(),
		Mode:      mode,
		Home:      filepath.Clean(home),
		DestDir:   filepath.Clean(destDir),
		Name:      prefix + "_" + now.Format(stampLayout),
		StartedAt: now,
	}
}

func (ec EngineContext) ArchivePath() string {
	return filepath.Join(ec.DestDir, ec.Name+archiveExt)
}

func (ec EngineContext) EncryptedPath() string {
	return ec.ArchivePath() + encryptedExt
}

func (ec EngineContext) NotesPath() string {
	return filepath.Join(ec.DestDir, ec.Name+notesExt)
}
