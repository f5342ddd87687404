// Package sources resolves the final list of paths a run archives.
package sources

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/semmidev/keepsake/internal/domain"
	"github.com/semmidev/keepsake/internal/sensitivity"
)

// PolicyReader is the part of the policy store the builder needs.
type PolicyReader interface {
	Categories(mode domain.BackupMode) []domain.Category
	ItemsFor(mode domain.BackupMode, category domain.Category) []string
}

type Builder struct {
	home   string
	logger domain.Logger
}

func NewBuilder(home string, logger domain.Logger) *Builder {
	if logger == nil {
		logger = domain.NopLogger()
	}
	return &Builder{home: filepath.Clean(home), logger: logger}
}

type origin string

const (
	fromPolicy    origin = "policy"
	fromDiscovery origin = "discovery"
)

// Build merges policy-declared paths and discovered candidates for mode.
func (b *Builder) Build(mode domain.BackupMode, policy PolicyReader, candidates []domain.Candidate) domain.SourceList {
	var included, excluded []string

	admit := func(path string, category domain.Category, from origin) {
		path, ok := b.canonical(path)
		if !ok {
			return
		}
		if !exists(path) {
			return
		}
		if ClassifierWins(mode, path, category) {
			if from == fromPolicy && category != domain.CategoryCredentials {
				b.logger.Warnf("Policy lists %s under %s but it looks sensitive (%s); excluding it in %s mode",
					path, category, sensitivity.Warning(path), mode)
			} else {
				b.logger.Debugf("Excluding sensitive %s from %s mode", path, mode)
			}
			excluded = append(excluded, path)
			return
		}
		included = append(included, path)
	}

	for _, category := range policy.Categories(mode) {
		if mode == domain.ModeSecure && category == domain.CategoryCredentials {
			b.logger.Debugf("Skipping credentials category in secure mode")
			continue
		}
		for _, pattern := range policy.ItemsFor(mode, category) {
			for _, path := range b.resolve(pattern) {
				admit(path, category, fromPolicy)
			}
		}
	}

	for _, c := range candidates {
		admit(c.Path, c.Category, fromDiscovery)
	}

	list := domain.NewSourceList(mode, b.home, collapseNested(included), excluded)
	if mode == domain.ModeSecure {
		list.Masked = b.sensitiveDescendants(list.Paths)
	}

	b.logger.Infof("Resolved %d source path(s) for %s mode, %d excluded, %d masked",
		len(list.Paths), mode, len(list.Excluded), len(list.Masked))
	return list
}

// ClassifierWins decides whether a path is kept out of a run. In secure mode
// anything the classifier flags, and anything filed under credentials, is
// dropped regardless of what the policy says. Complete mode keeps everything.
func ClassifierWins(mode domain.BackupMode, path string, category domain.Category) bool {
	if mode != domain.ModeSecure {
		return false
	}
	return category == domain.CategoryCredentials || sensitivity.IsSensitive(path)
}

// resolve expands a home-relative pattern to existing absolute paths.
func (b *Builder) resolve(pattern string) []string {
	if filepath.IsAbs(pattern) {
		b.logger.Warnf("Ignoring absolute policy path %s; entries must be relative to home", pattern)
		return nil
	}
	full := filepath.Join(b.home, pattern)
	if !strings.ContainsAny(pattern, "*?[") {
		return []string{full}
	}
	matches, err := filepath.Glob(full)
	if err != nil {
		b.logger.Warnf("Bad policy pattern %q: %v", pattern, err)
		return nil
	}
	return matches
}

// canonical cleans path and rejects anything outside the home directory.
func (b *Builder) canonical(path string) (string, bool) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(b.home, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(b.home, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		b.logger.Warnf("Ignoring %s: not inside %s", path, b.home)
		return "", false
	}
	return path, true
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// collapseNested drops paths already covered by an included ancestor.
func collapseNested(paths []string) []string {
	sorted := domain.NewSourceList("", "", paths, nil).Paths
	out := make([]string, 0, len(sorted))
	for _, p := range sorted {
		covered := false
		for _, kept := range out {
			if strings.HasPrefix(p, kept+string(filepath.Separator)) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, p)
		}
	}
	return out
}

// sensitiveDescendants walks included directories and returns the topmost
// sensitive entries below them.
func (b *Builder) sensitiveDescendants(roots []string) []string {
	var masked []string
	for _, root := range roots {
		info, err := os.Lstat(root)
		if err != nil || !info.IsDir() {
			continue
		}
		_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrPermission) {
					b.logger.Warnf("Cannot inspect %s: %v", path, err)
				}
				if entry != nil && entry.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if path == root {
				return nil
			}
			if sensitivity.IsSensitive(path) {
				masked = append(masked, path)
				if entry.IsDir() {
					return fs.SkipDir
				}
			}
			return nil
		})
	}
	return domain.NewSourceList("", "", masked, nil).Paths
}
