// Package integrity computes and checks SHA-256 sidecar digests in the
// two-space format understood by sha256sum -c.
package integrity

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/semmidev/keepsake/internal/domain"
)

const (
	Suffix   = ".sha256"
	fileMode = 0o600
)

// SidecarPath returns where the digest for artifact lives.
func SidecarPath(artifact string) string {
	return artifact + Suffix
}

// Sum hashes the file at path.
func Sum(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", domain.IOError("open "+path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, &contextReader{ctx: ctx, r: f}); err != nil {
		return "", domain.IOError("hash "+path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeDigest hashes archivePath and writes "<hex>  <basename>" next to it
// with owner-only permissions. When sink is non-nil it receives hashing
// events at 0/1 and 1/1.
func ComputeDigest(ctx context.Context, archivePath string, sink domain.ProgressSink) (string, string, error) {
	emit(sink, 0, nil)

	digest, err := Sum(ctx, archivePath)
	if err != nil {
		return "", "", err
	}

	digestPath := SidecarPath(archivePath)
	line := fmt.Sprintf("%s  %s\n", digest, filepath.Base(archivePath))
	if err := writePrivate(digestPath, []byte(line)); err != nil {
		return "", "", domain.IOError("write "+digestPath, err)
	}

	emit(sink, 1, map[string]any{"hash": digest, "file": filepath.Base(digestPath), "status": "completed"})
	return digest, digestPath, nil
}

// ReadSidecar parses a digest file and returns the hex digest and file name.
func ReadSidecar(path string) (string, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", domain.IOError("open "+path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", "", domain.IOError("read "+path, err)
		}
		return "", "", domain.IOError("read "+path, fmt.Errorf("empty digest file"))
	}

	digest, name, ok := strings.Cut(scanner.Text(), "  ")
	if !ok || len(digest) != sha256.Size*2 {
		return "", "", domain.IOError("parse "+path, fmt.Errorf("not a sha256sum line"))
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", "", domain.IOError("parse "+path, err)
	}
	return strings.ToLower(digest), strings.TrimPrefix(name, "*"), nil
}

// Verify recomputes the digest of artifact and compares it to its sidecar.
func Verify(ctx context.Context, artifact string) (string, error) {
	want, name, err := ReadSidecar(SidecarPath(artifact))
	if err != nil {
		return "", err
	}
	if name != filepath.Base(artifact) {
		return "", domain.IOError("verify "+artifact, fmt.Errorf("digest file names %q", name))
	}

	got, err := Sum(ctx, artifact)
	if err != nil {
		return "", err
	}
	if got != want {
		return got, domain.IOError("verify "+artifact, fmt.Errorf("digest mismatch: have %s, want %s", got, want))
	}
	return got, nil
}

func writePrivate(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fileMode)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// O_CREATE does not change the mode of a file that already existed.
	return os.Chmod(path, fileMode)
}

func emit(sink domain.ProgressSink, current int64, data map[string]any) {
	if sink == nil {
		return
	}
	sink.Emit(domain.ProgressEvent{
		Phase:      domain.PhaseHashing,
		Current:    current,
		Total:      1,
		Percentage: domain.Percent(current, 1),
		Timestamp:  time.Now().UTC(),
		Data:       data,
	})
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
