package usecase

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/semmidev/keepsake/internal/config"
	"github.com/semmidev/keepsake/internal/domain"
)

// ToolCheck confirms the external programs a run shells out to are on PATH.
type ToolCheck struct {
	tar      string
	gpg      string
	shred    string
	lookPath func(string) (string, error)
}

func NewToolCheck(cfg config.ToolsConfig) *ToolCheck {
	return &ToolCheck{
		tar:      orDefault(cfg.Tar, "tar"),
		gpg:      orDefault(cfg.GPG, "gpg"),
		shred:    orDefault(cfg.Shred, "shred"),
		lookPath: exec.LookPath,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Check fails when a required tool is missing. tar needs gzip for --gzip;
// gpg is required only when encrypting. Missing optional tools are returned
// so the caller can warn.
func (t *ToolCheck) Check(encrypt bool) ([]string, error) {
	required := []string{t.tar, "gzip"}
	optional := []string{t.shred}
	if encrypt {
		required = append(required, t.gpg)
	} else {
		optional = append(optional, t.gpg)
	}

	var missing []string
	for _, tool := range required {
		if _, err := t.lookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		return nil, domain.PreconditionError("check tools",
			fmt.Errorf("required tools not found: %s", strings.Join(missing, ", ")))
	}

	var absent []string
	for _, tool := range optional {
		if _, err := t.lookPath(tool); err != nil {
			absent = append(absent, tool)
		}
	}
	return absent, nil
}
