// Package shredder removes plaintext files, overwriting them first when
// coreutils shred is available.
package shredder

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/semmidev/keepsake/internal/domain"
)

type Shred struct {
	binary string
	logger domain.Logger
}

func New(binary string, logger domain.Logger) *Shred {
	if binary == "" {
		binary = "shred"
	}
	if logger == nil {
		logger = domain.NopLogger()
	}
	return &Shred{binary: binary, logger: logger}
}

func Args(path string) []string {
	return []string{"-u", "-z", "-n", "3", path}
}

// Remove always deletes path. The overwrite is best effort: when shred is
// missing or fails the file is unlinked plainly and secure is false.
func (s *Shred) Remove(ctx context.Context, path string) (bool, error) {
	if _, err := exec.LookPath(s.binary); err == nil {
		output, err := exec.CommandContext(ctx, s.binary, Args(path)...).CombinedOutput()
		if err == nil {
			return true, nil
		}
		s.logger.Warnf("shred %s failed, falling back to unlink: %v %s", path, err, strings.TrimSpace(string(output)))
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, domain.IOError("remove "+path, err)
	}
	return false, nil
}
