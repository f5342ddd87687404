// Package sensitivity decides whether a path is likely to hold credentials.
// Classification looks only at the path string; files are never opened.
package sensitivity

import (
	"path"
	"path/filepath"
	"strings"
)

// Level is how dangerous it is to store a path unencrypted.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

type matchKind int

const (
	// matchComponent matches a whole path element, anywhere in the path.
	matchComponent matchKind = iota
	// matchBase matches the final element exactly.
	matchBase
	// matchBasePrefix matches the start of the final element.
	matchBasePrefix
	// matchSuffix matches the end of the slash-separated path.
	matchSuffix
	// matchSegment matches a run of consecutive path elements.
	matchSegment
)

// Rule is one entry of the classification table.
type Rule struct {
	Name    string
	Pattern string
	Level   Level
	Warning string
	kind    matchKind
}

func (r Rule) matches(p string, elems []string) bool {
	switch r.kind {
	case matchComponent:
		for _, e := range elems {
			if e == r.Pattern {
				return true
			}
		}
	case matchBase:
		return len(elems) > 0 && elems[len(elems)-1] == r.Pattern
	case matchBasePrefix:
		return len(elems) > 0 && strings.HasPrefix(elems[len(elems)-1], r.Pattern)
	case matchSuffix:
		return strings.HasSuffix(p, r.Pattern)
	case matchSegment:
		return p == r.Pattern || strings.HasPrefix(p, r.Pattern+"/") ||
			strings.Contains(p, "/"+r.Pattern+"/") || strings.HasSuffix(p, "/"+r.Pattern)
	}
	return false
}

// rules is evaluated in order; the first match decides.
var rules = []Rule{
	{Name: "ssh", Pattern: ".ssh", kind: matchComponent, Level: LevelHigh,
		Warning: "Contains SSH private keys and authentication data"},
	{Name: "gnupg", Pattern: ".gnupg", kind: matchComponent, Level: LevelHigh,
		Warning: "Contains GPG private keys and trust database"},
	{Name: "aws", Pattern: ".aws", kind: matchComponent, Level: LevelHigh,
		Warning: "Contains AWS credentials and configuration"},
	{Name: "kube", Pattern: ".kube", kind: matchComponent, Level: LevelHigh,
		Warning: "Contains Kubernetes cluster credentials"},
	{Name: "azure", Pattern: ".azure", kind: matchComponent, Level: LevelHigh,
		Warning: "Contains Azure CLI tokens"},
	{Name: "password-store", Pattern: ".password-store", kind: matchComponent, Level: LevelHigh,
		Warning: "Contains the pass password store"},
	{Name: "keyrings", Pattern: ".local/share/keyrings", kind: matchSegment, Level: LevelHigh,
		Warning: "Contains desktop keyring secrets"},
	{Name: "gcloud", Pattern: ".config/gcloud", kind: matchSegment, Level: LevelHigh,
		Warning: "Contains Google Cloud credentials"},
	{Name: "docker-config", Pattern: ".docker/config.json", kind: matchSuffix, Level: LevelHigh,
		Warning: "Contains container registry credentials"},
	{Name: "gh", Pattern: ".config/gh", kind: matchSegment, Level: LevelMedium,
		Warning: "Contains GitHub CLI tokens"},
	{Name: "git-credentials", Pattern: ".git-credentials", kind: matchBase, Level: LevelMedium,
		Warning: "Contains Git repository credentials"},
	{Name: "netrc", Pattern: ".netrc", kind: matchBase, Level: LevelMedium,
		Warning: "Contains machine login passwords"},
	{Name: "pgpass", Pattern: ".pgpass", kind: matchBase, Level: LevelMedium,
		Warning: "Contains PostgreSQL passwords"},
	{Name: "npmrc", Pattern: ".npmrc", kind: matchBase, Level: LevelMedium,
		Warning: "May contain npm registry tokens"},
	{Name: "pypirc", Pattern: ".pypirc", kind: matchBase, Level: LevelMedium,
		Warning: "May contain PyPI upload tokens"},
	{Name: "vault-token", Pattern: ".vault-token", kind: matchBase, Level: LevelHigh,
		Warning: "Contains a HashiCorp Vault token"},
	{Name: "dotenv", Pattern: ".env", kind: matchBase, Level: LevelMedium,
		Warning: "Environment files usually hold secrets"},
	{Name: "dotenv-variant", Pattern: ".env.", kind: matchBasePrefix, Level: LevelMedium,
		Warning: "Environment files usually hold secrets"},
	{Name: "ssh-key-name", Pattern: "id_", kind: matchBasePrefix, Level: LevelHigh,
		Warning: "Looks like an SSH key"},
	{Name: "pem", Pattern: ".pem", kind: matchSuffix, Level: LevelHigh,
		Warning: "Certificate or private key material"},
	{Name: "key", Pattern: ".key", kind: matchSuffix, Level: LevelHigh,
		Warning: "Private key material"},
	{Name: "p12", Pattern: ".p12", kind: matchSuffix, Level: LevelHigh,
		Warning: "PKCS#12 key bundle"},
	{Name: "pfx", Pattern: ".pfx", kind: matchSuffix, Level: LevelHigh,
		Warning: "PKCS#12 key bundle"},
	{Name: "keystore", Pattern: ".keystore", kind: matchSuffix, Level: LevelHigh,
		Warning: "Java keystore"},
	{Name: "jks", Pattern: ".jks", kind: matchSuffix, Level: LevelHigh,
		Warning: "Java keystore"},
}

// Rules returns a copy of the classification table.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

func normalize(p string) (string, []string) {
	p = filepath.ToSlash(p)
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}
	clean := path.Clean(p)
	var elems []string
	for _, e := range strings.Split(clean, "/") {
		if e != "" && e != "." {
			elems = append(elems, e)
		}
	}
	return clean, elems
}

// Match returns the first rule matching p.
func Match(p string) (Rule, bool) {
	clean, elems := normalize(p)
	for _, r := range rules {
		if r.matches(clean, elems) {
			return r, true
		}
	}
	return Rule{}, false
}

// IsSensitive reports whether p looks credential-bearing. Matching is
// case-sensitive.
func IsSensitive(p string) bool {
	_, ok := Match(p)
	return ok
}

func LevelOf(p string) Level {
	if r, ok := Match(p); ok {
		return r.Level
	}
	return LevelLow
}

// Warning returns the user-facing warning for p, or "".
func Warning(p string) string {
	if r, ok := Match(p); ok {
		return r.Warning
	}
	return ""
}
