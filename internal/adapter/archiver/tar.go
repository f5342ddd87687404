// Package archiver drives GNU tar to build and extract gzip archives.
package archiver

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/semmidev/keepsake/internal/domain"
)

type Tar struct {
	binary string
}

func NewTar(binary string) *Tar {
	if binary == "" {
		binary = "tar"
	}
	return &Tar{binary: binary}
}

// CreateArgs builds the tar command line: exclusions first, then the change
// to root so stored names are root-relative, then the sources in order.
// Masked names follow --no-wildcards, which applies to every later
// --exclude, so they only ever match themselves.
func CreateArgs(req domain.ArchiveRequest) ([]string, error) {
	args := []string{"--create", "--gzip", "--verbose", fmt.Sprintf("--file=%s", req.Dest)}
	for _, pattern := range req.Exclusions {
		args = append(args, fmt.Sprintf("--exclude=%s", pattern))
	}
	if len(req.Masked) > 0 {
		args = append(args, "--no-wildcards")
		for _, name := range req.Masked {
			args = append(args, fmt.Sprintf("--exclude=%s", name))
		}
	}
	args = append(args, fmt.Sprintf("--directory=%s", req.Root))

	for _, src := range req.Sources {
		rel, err := relativeTo(req.Root, src)
		if err != nil {
			return nil, err
		}
		args = append(args, rel)
	}
	return args, nil
}

func relativeTo(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is not inside %s", path, root)
	}
	// A leading ./ keeps names like "-foo" from being read as options.
	return "./" + filepath.ToSlash(rel), nil
}

func (t *Tar) Create(ctx context.Context, req domain.ArchiveRequest, onEntry func(name string)) error {
	if len(req.Sources) == 0 {
		return domain.ArchiveError("tar create", errors.New("no sources"), "")
	}

	args, err := CreateArgs(req)
	if err != nil {
		return domain.ArchiveError("tar create", err, "")
	}

	cmd := exec.CommandContext(ctx, t.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return domain.ArchiveError("tar create", err, "")
	}
	if err := cmd.Start(); err != nil {
		return domain.ArchiveError("tar create", err, "")
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if onEntry != nil {
			onEntry(scanner.Text())
		}
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		// Keep tar from blocking on a full pipe.
		_, _ = io.Copy(io.Discard, stdout)
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (%v)", ctx.Err(), err)
		}
		return domain.ArchiveError("tar create", err, strings.TrimSpace(stderr.String()))
	}
	if scanErr != nil {
		return domain.ArchiveError("tar create", scanErr, "")
	}
	return nil
}

// Extract unpacks members (or everything when members is empty) into targetDir.
func (t *Tar) Extract(ctx context.Context, archivePath, targetDir string, members []string) error {
	if err := os.MkdirAll(targetDir, 0700); err != nil {
		return domain.IOError("create restore target", err)
	}

	args := []string{"--extract", "--gzip", fmt.Sprintf("--file=%s", archivePath), fmt.Sprintf("--directory=%s", targetDir)}
	args = append(args, members...)

	cmd := exec.CommandContext(ctx, t.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return domain.ArchiveError("tar extract", err, strings.TrimSpace(string(output)))
	}
	return nil
}
