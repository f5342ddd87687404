package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type BackupMode string

const (
	ModeSecure   BackupMode = "secure"
	ModeComplete BackupMode = "complete"
)

func AllModes() []BackupMode {
	return []BackupMode{ModeSecure, ModeComplete}
}

func ParseMode(s string) (BackupMode, error) {
	switch BackupMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSecure:
		return ModeSecure, nil
	case ModeComplete:
		return ModeComplete, nil
	}
	return "", fmt.Errorf("unknown backup mode %q (want secure or complete)", s)
}

// RequiresEncryption reports whether a run in this mode may only finish with
// an encrypted artifact.
func (m BackupMode) RequiresEncryption() bool {
	return m == ModeComplete
}

type Category string

const (
	CategoryDotfiles     Category = "dotfiles"
	CategoryConfigs      Category = "configs"
	CategoryCredentials  Category = "credentials"
	CategoryDevelopment  Category = "development"
	CategoryApplications Category = "applications"
	CategoryDocuments    Category = "documents"
	CategorySystem       Category = "system"
)

func AllCategories() []Category {
	return []Category{
		CategoryDotfiles,
		CategoryConfigs,
		CategoryCredentials,
		CategoryDevelopment,
		CategoryApplications,
		CategoryDocuments,
		CategorySystem,
	}
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllCategories() {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Candidate is a discovered, not yet filtered backup unit.
type Candidate struct {
	Name        string
	Description string
	Category    Category
	Path        string
	SizeBytes   int64
	IsDir       bool
}

// SourceList is the sorted, de-duplicated set of absolute paths for one run.
// Excluded records paths that were considered and dropped; Masked holds
// descendants of included directories that must be kept out of the archive.
type SourceList struct {
	Mode     BackupMode
	Home     string
	Paths    []string
	Excluded []string
	Masked   []string
}

func NewSourceList(mode BackupMode, home string, paths, excluded []string) SourceList {
	return SourceList{
		Mode:     mode,
		Home:     home,
		Paths:    sortedUnique(paths),
		Excluded: sortedUnique(excluded),
	}
}

func (s SourceList) Len() int {
	return len(s.Paths)
}

func (s SourceList) Contains(path string) bool {
	i := sort.SearchStrings(s.Paths, path)
	return i < len(s.Paths) && s.Paths[i] == path
}

func sortedUnique(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, p := range in {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Artifact describes what a run left on disk.
type Artifact struct {
	Path          string
	SizeBytes     int64
	Digest        string
	DigestPath    string
	EncryptedPath string
	NotesPath     string
	CreatedAt     time.Time
	Mode          BackupMode
}

// FinalPath is the file that represents the backup once the run is done.
func (a Artifact) FinalPath() string {
	if a.EncryptedPath != "" {
		return a.EncryptedPath
	}
	return a.Path
}
