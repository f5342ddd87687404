// Package cipher wraps gpg for symmetric encryption of finished archives.
package cipher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/semmidev/keepsake/internal/domain"
)

// ErrUnavailable is returned when the gpg binary cannot be found.
var ErrUnavailable = errors.New("gpg is not installed")

type GPG struct {
	binary string
}

func NewGPG(binary string) *GPG {
	if binary == "" {
		binary = "gpg"
	}
	return &GPG{binary: binary}
}

// Available reports whether the binary resolves on PATH.
func (g *GPG) Available() bool {
	_, err := exec.LookPath(g.binary)
	return err == nil
}

func passphraseArgs(pass domain.Passphrase) ([]string, error) {
	switch {
	case pass.File != "":
		return []string{"--passphrase-file", pass.File}, nil
	case len(pass.Secret) > 0:
		return []string{"--passphrase-fd", "0"}, nil
	}
	return nil, errors.New("no passphrase supplied")
}

// EncryptArgs builds the gpg command line for AES256 symmetric encryption
// with a slow SHA512 string-to-key.
func EncryptArgs(src, dest string, pass domain.Passphrase) ([]string, error) {
	passArgs, err := passphraseArgs(pass)
	if err != nil {
		return nil, err
	}
	args := []string{"--batch", "--yes", "--pinentry-mode", "loopback"}
	args = append(args, passArgs...)
	args = append(args,
		"--symmetric",
		"--cipher-algo", "AES256",
		"--s2k-mode", "3",
		"--s2k-digest-algo", "SHA512",
		"--s2k-count", "65011712",
		"--output", dest,
		src,
	)
	return args, nil
}

func DecryptArgs(src, dest string, pass domain.Passphrase) ([]string, error) {
	passArgs, err := passphraseArgs(pass)
	if err != nil {
		return nil, err
	}
	args := []string{"--batch", "--yes", "--pinentry-mode", "loopback"}
	args = append(args, passArgs...)
	args = append(args, "--decrypt", "--output", dest, src)
	return args, nil
}

func (g *GPG) run(ctx context.Context, op string, args []string, dest string, pass domain.Passphrase) error {
	if !g.Available() {
		return domain.EncryptionError(op, ErrUnavailable, "")
	}

	cmd := exec.CommandContext(ctx, g.binary, args...)
	if pass.File == "" {
		cmd.Stdin = bytes.NewReader(pass.Secret)
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(dest)
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (%v)", ctx.Err(), err)
		}
		return domain.EncryptionError(op, err, strings.TrimSpace(string(output)))
	}

	if err := os.Chmod(dest, 0600); err != nil {
		os.Remove(dest)
		return domain.IOError("restrict permissions on "+dest, err)
	}
	return nil
}

func (g *GPG) EncryptSymmetric(ctx context.Context, src, dest string, pass domain.Passphrase) error {
	args, err := EncryptArgs(src, dest, pass)
	if err != nil {
		return domain.EncryptionError("gpg encrypt", err, "")
	}
	return g.run(ctx, "gpg encrypt", args, dest, pass)
}

func (g *GPG) Decrypt(ctx context.Context, src, dest string, pass domain.Passphrase) error {
	args, err := DecryptArgs(src, dest, pass)
	if err != nil {
		return domain.EncryptionError("gpg decrypt", err, "")
	}
	return g.run(ctx, "gpg decrypt", args, dest, pass)
}
