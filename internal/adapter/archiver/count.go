package archiver

import (
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/semmidev/keepsake/internal/domain"
)

// Excluded reports whether a root-relative, slash-separated name matches any
// pattern the way tar's unanchored exclusion does: a pattern may match any
// contiguous run of the name's components, which also covers everything
// below an excluded directory.
func Excluded(name string, patterns []string) bool {
	return anyRun(name, patterns, func(pattern, run string) bool {
		ok, _ := path.Match(pattern, run)
		return ok
	})
}

// ExcludedLiteral is Excluded for names that must match exactly, as tar
// does under --no-wildcards.
func ExcludedLiteral(name string, names []string) bool {
	return anyRun(name, names, func(literal, run string) bool {
		return literal == run
	})
}

func anyRun(name string, patterns []string, match func(pattern, run string) bool) bool {
	name = strings.TrimPrefix(path.Clean(filepath.ToSlash(name)), "./")
	parts := strings.Split(name, "/")
	for _, pattern := range patterns {
		pattern = strings.TrimSuffix(strings.TrimPrefix(pattern, "./"), "/")
		if pattern == "" {
			continue
		}
		for i := range parts {
			for j := i + 1; j <= len(parts); j++ {
				if match(pattern, strings.Join(parts[i:j], "/")) {
					return true
				}
			}
		}
	}
	return false
}

// CountEntries estimates how many members tar will list for req. Unreadable
// subtrees are skipped, so the estimate may run short.
func CountEntries(req domain.ArchiveRequest) int64 {
	var total int64
	for _, src := range req.Sources {
		_ = filepath.WalkDir(src, func(p string, entry fs.DirEntry, err error) error {
			if err != nil {
				if entry != nil && entry.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			rel, relErr := filepath.Rel(req.Root, p)
			if relErr != nil {
				return nil
			}
			if Excluded(rel, req.Exclusions) || ExcludedLiteral(rel, req.Masked) {
				if entry.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			total++
			return nil
		})
	}
	return total
}
