package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/semmidev/keepsake/internal/adapter/inspect"
	"github.com/semmidev/keepsake/internal/domain"
	"github.com/semmidev/keepsake/internal/integrity"
)

type MemberReader interface {
	Members(path string) ([]inspect.Member, error)
}

// ArtifactInfo describes one archive found in a backup directory.
type ArtifactInfo struct {
	Name      string
	Path      string
	SizeBytes int64
	ModTime   time.Time
	Encrypted bool
	HasDigest bool
}

// ListArtifacts returns the archives in dir whose names start with prefix,
// newest first. An empty prefix matches every archive.
func ListArtifacts(dir, prefix string) ([]ArtifactInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, domain.IOError("read "+dir, err)
	}

	var out []ArtifactInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		encrypted := strings.HasSuffix(name, archiveExt+encryptedExt)
		if !encrypted && !strings.HasSuffix(name, archiveExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, name)
		_, digestErr := os.Stat(integrity.SidecarPath(path))
		out = append(out, ArtifactInfo{
			Name:      name,
			Path:      path,
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
			Encrypted: encrypted,
			HasDigest: digestErr == nil,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].Name > out[j].Name
		}
		return out[i].ModTime.After(out[j].ModTime)
	})
	return out, nil
}

// Restore verifies, decrypts when needed, and extracts archives.
type Restore struct {
	archiver domain.Archiver
	cipher   domain.Cipher
	shredder domain.Shredder
	reader   MemberReader
	logger   domain.Logger
	tempDir  string
}

func NewRestore(arch domain.Archiver, cipher domain.Cipher, shredder domain.Shredder, reader MemberReader, logger domain.Logger) *Restore {
	if logger == nil {
		logger = domain.NopLogger()
	}
	return &Restore{
		archiver: arch,
		cipher:   cipher,
		shredder: shredder,
		reader:   reader,
		logger:   logger,
	}
}

func IsEncrypted(artifact string) bool {
	return strings.HasSuffix(artifact, encryptedExt)
}

// Verify checks artifact against its sidecar digest.
func (uc *Restore) Verify(ctx context.Context, artifact string) (string, error) {
	digest, err := integrity.Verify(ctx, artifact)
	if err != nil {
		return "", err
	}
	uc.logger.Infof("Digest verified for %s: %s", filepath.Base(artifact), digest)
	return digest, nil
}

// Members lists what artifact contains.
func (uc *Restore) Members(ctx context.Context, artifact string, pass *domain.Passphrase) ([]inspect.Member, error) {
	var members []inspect.Member
	err := uc.withPlaintext(ctx, artifact, pass, func(plain string) error {
		var err error
		members, err = uc.reader.Members(plain)
		return err
	})
	return members, err
}

// Run extracts the requested items, or everything when items is empty, into
// target. It returns the member names handed to the archiver.
func (uc *Restore) Run(ctx context.Context, artifact, target string, items []string, pass *domain.Passphrase) ([]string, error) {
	if err := uc.checkDigest(ctx, artifact); err != nil {
		return nil, err
	}

	var selected []string
	err := uc.withPlaintext(ctx, artifact, pass, func(plain string) error {
		if len(items) > 0 {
			members, err := uc.reader.Members(plain)
			if err != nil {
				return err
			}
			var missing []string
			for _, item := range items {
				picked := inspect.Select(members, item)
				if len(picked) == 0 {
					missing = append(missing, item)
				}
				selected = append(selected, picked...)
			}
			if len(missing) > 0 {
				return domain.ArchiveError("select items", fmt.Errorf("not in archive: %s", strings.Join(missing, ", ")), "")
			}
			selected = dedupe(selected)
		}

		uc.logger.Infof("Restoring %s into %s", describeSelection(selected), target)
		return uc.archiver.Extract(ctx, plain, target, topLevel(selected))
	})
	if err != nil {
		return nil, err
	}
	uc.logger.Infof("Restore from %s completed", filepath.Base(artifact))
	return selected, nil
}

func (uc *Restore) checkDigest(ctx context.Context, artifact string) error {
	if _, err := os.Stat(integrity.SidecarPath(artifact)); errors.Is(err, os.ErrNotExist) {
		uc.logger.Warnf("No digest file for %s, skipping integrity check", filepath.Base(artifact))
		return nil
	}
	_, err := uc.Verify(ctx, artifact)
	return err
}

// withPlaintext hands fn a readable gzip tar for artifact. Encrypted
// artifacts are decrypted into an owner-only temp file removed afterwards.
func (uc *Restore) withPlaintext(ctx context.Context, artifact string, pass *domain.Passphrase, fn func(plain string) error) error {
	if !IsEncrypted(artifact) {
		return fn(artifact)
	}
	if pass == nil {
		return domain.EncryptionError("decrypt "+filepath.Base(artifact), errors.New("passphrase required"), "")
	}

	tmp, err := os.CreateTemp(uc.tempDir, "keepsake-restore-*"+archiveExt)
	if err != nil {
		return domain.IOError("create temp file", err)
	}
	plain := tmp.Name()
	tmp.Close()
	defer func() {
		if _, err := uc.shredder.Remove(context.WithoutCancel(ctx), plain); err != nil {
			uc.logger.Errorf("Could not remove decrypted copy %s: %v", plain, err)
		}
	}()

	if err := uc.cipher.Decrypt(ctx, artifact, plain, *pass); err != nil {
		return err
	}
	return fn(plain)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// topLevel drops members already covered by a selected parent directory so
// tar does not extract them twice.
func topLevel(members []string) []string {
	var dirs []string
	var out []string
	for _, m := range members {
		covered := false
		for _, d := range dirs {
			if strings.HasPrefix(m, d) {
				covered = true
				break
			}
		}
		if covered {
			continue
		}
		if strings.HasSuffix(m, "/") {
			dirs = append(dirs, m)
		}
		out = append(out, strings.TrimSuffix(m, "/"))
	}
	return out
}

func describeSelection(selected []string) string {
	if len(selected) == 0 {
		return "all members"
	}
	return fmt.Sprintf("%d member(s)", len(selected))
}
