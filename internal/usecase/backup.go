package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/semmidev/keepsake/internal/adapter/archiver"
	"github.com/semmidev/keepsake/internal/discovery"
	"github.com/semmidev/keepsake/internal/domain"
	"github.com/semmidev/keepsake/internal/infrastructure/diskspace"
	"github.com/semmidev/keepsake/internal/integrity"
	"github.com/semmidev/keepsake/internal/sources"
)

type State string

const (
	StateDiscovering  State = "DISCOVERING"
	StateBuildingList State = "BUILDING_LIST"
	StateArchiving    State = "ARCHIVING"
	StateHashing      State = "HASHING"
	StateEncrypting   State = "ENCRYPTING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// Policy is what the engine reads from the policy store.
type Policy interface {
	sources.PolicyReader
	Exclusions(mode domain.BackupMode) []string
	SecurityWarning(mode domain.BackupMode) string
}

type Discoverer interface {
	Discover(ctx context.Context, includeSizes bool) ([]domain.Candidate, error)
}

type ArchiveChecker interface {
	Check(path string) (int, error)
}

type ToolChecker interface {
	Check(encrypt bool) ([]string, error)
}

// Preflight proves the destination can take need bytes plus reserve.
type Preflight func(ctx context.Context, dir string, need, reserve uint64) error

func defaultPreflight(ctx context.Context, dir string, need, reserve uint64) error {
	if err := diskspace.CheckWritable(dir); err != nil {
		return err
	}
	return diskspace.CheckSpace(ctx, dir, need, reserve)
}

// Result is what a run reports back, successful or not.
type Result struct {
	RunID    string
	State    State
	Sources  domain.SourceList
	Entries  int64
	Artifact domain.Artifact
	Kept     []string
}

type Backup struct {
	policy     Policy
	discoverer Discoverer
	archiver   domain.Archiver
	cipher     domain.Cipher
	shredder   domain.Shredder
	checker    ArchiveChecker
	tools      ToolChecker
	preflight  Preflight
	progress   domain.ProgressSink
	logger     domain.Logger
	uploads    *Uploader
	count      func(req domain.ArchiveRequest) int64
}

type BackupOption func(*Backup)

func WithToolCheck(t ToolChecker) BackupOption {
	return func(b *Backup) { b.tools = t }
}

func WithPreflight(p Preflight) BackupOption {
	return func(b *Backup) { b.preflight = p }
}

func WithUploader(u *Uploader) BackupOption {
	return func(b *Backup) { b.uploads = u }
}

func WithArchiveChecker(c ArchiveChecker) BackupOption {
	return func(b *Backup) { b.checker = c }
}

func NewBackup(
	policy Policy,
	discoverer Discoverer,
	arch domain.Archiver,
	cipher domain.Cipher,
	shredder domain.Shredder,
	sink domain.ProgressSink,
	logger domain.Logger,
	opts ...BackupOption,
) *Backup {
	if logger == nil {
		logger = domain.NopLogger()
	}
	b := &Backup{
		policy:     policy,
		discoverer: discoverer,
		archiver:   arch,
		cipher:     cipher,
		shredder:   shredder,
		progress:   sink,
		logger:     logger,
		preflight:  defaultPreflight,
		count:      archiver.CountEntries,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Resolve runs discovery and builds the source list without archiving.
func (uc *Backup) Resolve(ctx context.Context, mode domain.BackupMode, home string) (domain.SourceList, error) {
	candidates, err := uc.discoverer.Discover(ctx, false)
	if err != nil {
		return domain.SourceList{}, err
	}
	return sources.NewBuilder(home, uc.logger).Build(mode, uc.policy, candidates), nil
}

// run is the mutable bookkeeping of a single Execute call.
type run struct {
	ec      EngineContext
	state   State
	created []string
	keep    map[string]bool
	result  *Result
}

func (r *run) track(path string) {
	r.created = append(r.created, path)
}

func (r *run) untrack(path string) {
	for i, p := range r.created {
		if p == path {
			r.created = append(r.created[:i], r.created[i+1:]...)
			return
		}
	}
}

// Execute drives one backup from discovery to a finished artifact. On any
// fatal error every file the run wrote is removed, unless it is the intact
// plaintext of an optional encryption that was interrupted.
func (uc *Backup) Execute(ctx context.Context, ec EngineContext) (*Result, error) {
	start := time.Now()
	r := &run{ec: ec, keep: map[string]bool{}, result: &Result{RunID: ec.RunID}}

	uc.logger.Infof("[%s] Starting %s backup of %s into %s", ec.RunID, ec.Mode, ec.Home, ec.DestDir)
	if warning := uc.policy.SecurityWarning(ec.Mode); warning != "" {
		uc.logger.Warnf("[%s] %s", ec.RunID, warning)
	}

	if err := uc.pipeline(ctx, r); err != nil {
		uc.fail(r, err)
		r.result.State = StateFailed
		return r.result, err
	}

	r.state = StateDone
	r.result.State = StateDone
	art := r.result.Artifact
	uc.step(domain.PhaseCompleted, 1, 1, map[string]any{
		"status":  "completed",
		"archive": art.FinalPath(),
		"hash":    art.Digest,
		"size":    art.SizeBytes,
		"run_id":  ec.RunID,
	})
	uc.logger.Infof("[%s] Backup completed in %s: %s (%s)",
		ec.RunID, time.Since(start).Round(time.Second), art.FinalPath(), humanize.IBytes(uint64(art.SizeBytes)))

	if uc.uploads != nil {
		uc.uploads.Distribute(ctx, art)
	}
	return r.result, nil
}

func (uc *Backup) pipeline(ctx context.Context, r *run) error {
	ec := r.ec
	if err := uc.validate(ec); err != nil {
		return err
	}

	if uc.tools != nil {
		absent, err := uc.tools.Check(ec.Encrypt)
		if err != nil {
			return err
		}
		for _, tool := range absent {
			uc.logger.Warnf("[%s] Optional tool %s not found", ec.RunID, tool)
		}
	}
	if err := uc.preflight(ctx, ec.DestDir, 0, 0); err != nil {
		return err
	}
	for _, p := range []string{ec.ArchivePath(), ec.EncryptedPath()} {
		if _, err := os.Lstat(p); err == nil {
			return domain.PreconditionError("prepare destination", fmt.Errorf("%s already exists", p))
		}
	}

	// DISCOVERING
	r.state = StateDiscovering
	uc.step(domain.PhaseDiscovery, 0, 1, nil)
	candidates, err := uc.discoverer.Discover(ctx, false)
	if err != nil {
		return err
	}
	if err := interrupted(ctx, r.state); err != nil {
		return err
	}
	uc.logger.Infof("[%s] Discovered %d candidate(s)", ec.RunID, len(candidates))

	// BUILDING_LIST
	r.state = StateBuildingList
	list := sources.NewBuilder(ec.Home, uc.logger).Build(ec.Mode, uc.policy, candidates)
	r.result.Sources = list
	uc.step(domain.PhaseDiscovery, 1, 1, map[string]any{
		"candidates": len(candidates),
		"sources":    list.Len(),
		"excluded":   len(list.Excluded),
	})
	if list.Len() == 0 {
		return domain.ArchiveError("build source list", errors.New("no existing paths to back up"), "")
	}
	uc.logger.Infof("[%s] Source list: %d path(s), %d excluded, %d masked",
		ec.RunID, list.Len(), len(list.Excluded), len(list.Masked))

	var need uint64
	for _, p := range list.Paths {
		need += uint64(discovery.SizeOf(p))
	}
	if err := uc.preflight(ctx, ec.DestDir, need, ec.MinFreeBytes); err != nil {
		return err
	}
	if err := interrupted(ctx, r.state); err != nil {
		return err
	}

	// ARCHIVING
	r.state = StateArchiving
	if err := uc.buildArchive(ctx, r, list); err != nil {
		return err
	}

	// HASHING
	r.state = StateHashing
	archivePath := ec.ArchivePath()
	r.track(integrity.SidecarPath(archivePath))
	digest, digestPath, err := integrity.ComputeDigest(ctx, archivePath, uc.progress)
	if err != nil {
		return err
	}
	info, err := os.Stat(archivePath)
	if err != nil {
		return domain.IOError("stat "+archivePath, err)
	}
	r.result.Artifact = domain.Artifact{
		Path:       archivePath,
		SizeBytes:  info.Size(),
		Digest:     digest,
		DigestPath: digestPath,
		CreatedAt:  ec.StartedAt,
		Mode:       ec.Mode,
	}
	uc.logger.Infof("[%s] SHA-256 %s", ec.RunID, digest)

	// ENCRYPTING
	if ec.Encrypt {
		r.state = StateEncrypting
		if err := uc.encrypt(ctx, r); err != nil {
			return err
		}
	}

	uc.writeNotes(r, list)
	return nil
}

func (uc *Backup) validate(ec EngineContext) error {
	if ec.Mode.RequiresEncryption() && !ec.Encrypt {
		return domain.ConfigError("validate run", fmt.Errorf("%s mode requires encryption", ec.Mode))
	}
	if ec.Encrypt && ec.Passphrase.File == "" && len(ec.Passphrase.Secret) == 0 {
		return domain.ConfigError("validate run", errors.New("encryption requested without a passphrase"))
	}
	if !filepath.IsAbs(ec.Home) || !filepath.IsAbs(ec.DestDir) {
		return domain.ConfigError("validate run", errors.New("home and destination must be absolute paths"))
	}
	return nil
}

func (uc *Backup) buildArchive(ctx context.Context, r *run, list domain.SourceList) error {
	ec := r.ec
	archivePath := ec.ArchivePath()
	req := domain.ArchiveRequest{
		Root:       ec.Home,
		Sources:    list.Paths,
		Exclusions: uc.policy.Exclusions(ec.Mode),
		Masked:     relativeAll(ec.Home, list.Masked),
		Dest:       archivePath,
	}

	total := uc.count(req)
	checkpoint := total / 100
	if checkpoint < 1 {
		checkpoint = 1
	}
	uc.step(domain.PhaseArchiving, 0, total, map[string]any{"sources": list.Len()})

	var written int64
	onEntry := func(name string) {
		written++
		uc.logger.Debugf("[%s] a %s", ec.RunID, name)
		if written%checkpoint == 0 && written < total {
			uc.step(domain.PhaseArchiving, written, total, nil)
		}
	}

	r.track(archivePath)
	if err := uc.archiver.Create(ctx, req, onEntry); err != nil {
		return err
	}
	r.result.Entries = written

	if err := os.Chmod(archivePath, 0600); err != nil {
		return domain.IOError("restrict "+archivePath, err)
	}
	if uc.checker != nil {
		members, err := uc.checker.Check(archivePath)
		if err != nil {
			return err
		}
		uc.logger.Debugf("[%s] Archive check passed: %d member(s)", ec.RunID, members)
	}

	uc.step(domain.PhaseArchiving, total, total, map[string]any{"status": "completed", "entries": written})
	uc.logger.Infof("[%s] Archived %d entries into %s", ec.RunID, written, archivePath)
	return nil
}

// encrypt replaces the plaintext archive with its gpg counterpart. The
// plaintext is removed only after the cipher succeeded.
func (uc *Backup) encrypt(ctx context.Context, r *run) error {
	ec := r.ec
	art := &r.result.Artifact
	plain := art.Path
	encrypted := ec.EncryptedPath()

	uc.step(domain.PhaseEncryption, 0, 3, map[string]any{"status": "started"})
	r.track(encrypted)
	if err := uc.cipher.EncryptSymmetric(ctx, plain, encrypted, ec.Passphrase); err != nil {
		os.Remove(encrypted)
		r.untrack(encrypted)

		if ec.Mode.RequiresEncryption() {
			return err
		}
		if ctx.Err() != nil {
			// The plaintext archive and its digest are complete; keep them.
			r.keep[plain] = true
			r.keep[art.DigestPath] = true
			uc.logger.Warnf("[%s] Encryption interrupted; unencrypted archive kept at %s", ec.RunID, plain)
			return err
		}
		uc.logger.Warnf("[%s] Encryption failed, keeping unencrypted archive %s: %v", ec.RunID, plain, err)
		return nil
	}
	uc.step(domain.PhaseEncryption, 1, 3, map[string]any{"status": "encrypted"})

	// Removal must finish even if the run is being interrupted.
	secure, err := uc.shredder.Remove(context.WithoutCancel(ctx), plain)
	if err != nil {
		return err
	}
	r.untrack(plain)
	os.Remove(art.DigestPath)
	r.untrack(art.DigestPath)
	if !secure {
		uc.logger.Warnf("[%s] Plaintext archive removed without overwrite", ec.RunID)
	}
	uc.step(domain.PhaseEncryption, 2, 3, map[string]any{"status": "plaintext_removed", "secure": secure})

	r.track(integrity.SidecarPath(encrypted))
	digest, digestPath, err := integrity.ComputeDigest(context.WithoutCancel(ctx), encrypted, nil)
	if err != nil {
		return err
	}
	info, err := os.Stat(encrypted)
	if err != nil {
		return domain.IOError("stat "+encrypted, err)
	}

	art.Path = ""
	art.EncryptedPath = encrypted
	art.Digest = digest
	art.DigestPath = digestPath
	art.SizeBytes = info.Size()

	uc.step(domain.PhaseEncryption, 3, 3, map[string]any{"status": "completed", "hash": digest})
	uc.logger.Infof("[%s] Encrypted archive %s, SHA-256 %s", ec.RunID, encrypted, digest)
	return nil
}

func (uc *Backup) writeNotes(r *run, list domain.SourceList) {
	ec := r.ec
	data, err := RenderNotes(ec, list, uc.policy.Categories(ec.Mode), r.result.Artifact)
	if err == nil {
		err = writeNotes(ec.NotesPath(), data)
	}
	if err != nil {
		uc.logger.Warnf("[%s] Could not write restore notes: %v", ec.RunID, err)
		return
	}
	r.result.Artifact.NotesPath = ec.NotesPath()
}

func (uc *Backup) fail(r *run, err error) {
	uc.logger.Errorf("[%s] Backup failed during %s: %v", r.ec.RunID, stateOrStart(r.state), err)
	for i := len(r.created) - 1; i >= 0; i-- {
		path := r.created[i]
		if r.keep[path] {
			r.result.Kept = append(r.result.Kept, path)
			continue
		}
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			uc.logger.Errorf("[%s] Could not remove partial artifact %s: %v", r.ec.RunID, path, rmErr)
		}
	}
}

func stateOrStart(s State) State {
	if s == "" {
		return "PREFLIGHT"
	}
	return s
}

func (uc *Backup) step(phase domain.Phase, current, total int64, data map[string]any) {
	if uc.progress == nil {
		return
	}
	uc.progress.Emit(domain.ProgressEvent{
		Phase:      phase,
		Current:    current,
		Total:      total,
		Percentage: domain.Percent(current, total),
		Timestamp:  time.Now().UTC(),
		Data:       data,
	})
}

func interrupted(ctx context.Context, state State) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("interrupted during %s: %w", state, err)
	}
	return nil
}

func relativeAll(home string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(home, p)
		if err != nil || rel == "." {
			continue
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}
