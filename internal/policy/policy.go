// Package policy loads the declarative description of what each backup mode
// includes and which patterns are always excluded.
package policy

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/semmidev/keepsake/internal/domain"
)

// ModePolicy is the resolved policy for a single backup mode.
type ModePolicy struct {
	Description     string
	SecurityWarning string
	Categories      map[domain.Category][]string
	Exclusions      []string
}

// Policy is immutable after Load.
type Policy struct {
	Source   string
	Warnings []string
	modes    map[domain.BackupMode]ModePolicy
}

type modeDocument struct {
	Description     string              `mapstructure:"description"`
	SecurityWarning string              `mapstructure:"security_warning"`
	ExcludesSecrets bool                `mapstructure:"excludes_sensitive"`
	Categories      map[string][]string `mapstructure:"categories"`
	Exclusions      []string            `mapstructure:"exclusions"`
	Remain          map[string]any      `mapstructure:",remain"`
}

// Load parses the policy document at path. JSON, YAML and TOML are accepted
// by extension. Missing files, syntax errors, unknown category names and a
// document with no mode at all are configuration errors. A single missing
// mode is treated as empty and recorded in Warnings.
func Load(path string) (*Policy, error) {
	v := viper.New()
	v.SetConfigFile(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		v.SetConfigType("json")
	case ".toml":
		v.SetConfigType("toml")
	default:
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, domain.ConfigError("read policy "+path, err)
	}

	// Older policy files nest modes under backup_modes.
	prefix := ""
	if v.IsSet("backup_modes") {
		prefix = "backup_modes."
	}

	p := &Policy{
		Source: path,
		modes:  make(map[domain.BackupMode]ModePolicy, 2),
	}

	found := 0
	for _, mode := range domain.AllModes() {
		key := prefix + string(mode)
		if !v.IsSet(key) {
			p.Warnings = append(p.Warnings, fmt.Sprintf("mode %q not declared, treating as empty", mode))
			p.modes[mode] = ModePolicy{Categories: map[domain.Category][]string{}}
			continue
		}
		found++

		var doc modeDocument
		if err := v.UnmarshalKey(key, &doc); err != nil {
			return nil, domain.ConfigError(fmt.Sprintf("parse policy mode %q", mode), err)
		}

		mp, err := resolveMode(doc)
		if err != nil {
			return nil, domain.ConfigError(fmt.Sprintf("policy mode %q", mode), err)
		}
		p.modes[mode] = mp
	}

	if found == 0 {
		return nil, domain.ConfigError("read policy "+path, fmt.Errorf("no backup mode declared (want %q and %q)", domain.ModeSecure, domain.ModeComplete))
	}

	return p, nil
}

func resolveMode(doc modeDocument) (ModePolicy, error) {
	mp := ModePolicy{
		Description:     doc.Description,
		SecurityWarning: doc.SecurityWarning,
		Categories:      make(map[domain.Category][]string),
		Exclusions:      cleanPatterns(doc.Exclusions),
	}

	for name, patterns := range doc.Categories {
		c, err := domain.ParseCategory(name)
		if err != nil {
			return ModePolicy{}, err
		}
		mp.Categories[c] = append(mp.Categories[c], cleanPatterns(patterns)...)
	}

	// Categories may also sit directly under the mode key.
	for name, raw := range doc.Remain {
		c, err := domain.ParseCategory(name)
		if err != nil {
			return ModePolicy{}, err
		}
		patterns, err := stringList(raw)
		if err != nil {
			return ModePolicy{}, fmt.Errorf("category %q: %w", name, err)
		}
		mp.Categories[c] = append(mp.Categories[c], cleanPatterns(patterns)...)
	}

	return mp, nil
}

func stringList(raw any) ([]string, error) {
	switch vals := raw.(type) {
	case nil:
		return nil, nil
	case []string:
		return vals, nil
	case []any:
		out := make([]string, 0, len(vals))
		for _, v := range vals {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("expected a list of strings, got %T element", v)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list of strings, got %T", raw)
}

func cleanPatterns(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ItemsFor returns the relative path patterns declared for category under
// mode. An undeclared mode or category yields an empty list.
func (p *Policy) ItemsFor(mode domain.BackupMode, category domain.Category) []string {
	mp, ok := p.modes[mode]
	if !ok {
		return []string{}
	}
	items := mp.Categories[category]
	out := make([]string, len(items))
	copy(out, items)
	return out
}

// Categories lists the categories declared for mode in enumeration order.
func (p *Policy) Categories(mode domain.BackupMode) []domain.Category {
	mp, ok := p.modes[mode]
	if !ok {
		return nil
	}
	var out []domain.Category
	for _, c := range domain.AllCategories() {
		if _, ok := mp.Categories[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Exclusions returns the glob patterns excluded from every archive entry in mode.
func (p *Policy) Exclusions(mode domain.BackupMode) []string {
	mp := p.modes[mode]
	out := make([]string, len(mp.Exclusions))
	copy(out, mp.Exclusions)
	sort.Strings(out)
	return out
}

func (p *Policy) SecurityWarning(mode domain.BackupMode) string {
	return p.modes[mode].SecurityWarning
}

func (p *Policy) Description(mode domain.BackupMode) string {
	return p.modes[mode].Description
}
