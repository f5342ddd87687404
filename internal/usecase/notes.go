package usecase

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/dustin/go-humanize"

	"github.com/semmidev/keepsake/internal/domain"
)

var notesTemplate = template.Must(template.New("restore").Funcs(template.FuncMap{
	"bytes": func(n int64) string { return humanize.IBytes(uint64(n)) },
	"rel":   relHome,
}).Parse(`KEEPSAKE RESTORE INSTRUCTIONS
=============================

Run:        {{.RunID}}
Created:    {{.Created}}
Mode:       {{.Mode}}
Archive:    {{.Archive}} ({{bytes .Size}})
SHA-256:    {{.Digest}}
Digest file: {{.DigestFile}}
{{- if .Encrypted}}
Encrypted:  yes (gpg, AES256)
{{- end}}

Included categories:
{{- range .Included}}
  - {{.}}
{{- else}}
  (none)
{{- end}}

Excluded categories:
{{- range .ExcludedCategories}}
  - {{.}}
{{- else}}
  (none)
{{- end}}

Included paths ({{len .Paths}}):
{{- range .Paths}}
  ~/{{rel $.Home .}}
{{- end}}
{{- if .Excluded}}

Left out as sensitive or unsafe ({{len .Excluded}}):
{{- range .Excluded}}
  ~/{{rel $.Home .}}
{{- end}}
{{- end}}

Manual restore:
  1. Check integrity:
       cd {{.Dir}} && sha256sum -c {{.DigestFile}}
{{- if .Encrypted}}
  2. Decrypt:
       gpg --output {{.Plain}} --decrypt {{.Archive}}
  3. Inspect:
       tar --list --gzip --file={{.Plain}}
  4. Extract into your home directory:
       tar --extract --gzip --file={{.Plain}} --directory="$HOME"
  5. Remove the decrypted copy:
       shred -u {{.Plain}}
{{- else}}
  2. Inspect:
       tar --list --gzip --file={{.Archive}}
  3. Extract into your home directory:
       tar --extract --gzip --file={{.Archive}} --directory="$HOME"
{{- end}}

Or with keepsake:
  keepsake restore {{.Dir}}/{{.Archive}} [--item PATH]...
`))

type notesData struct {
	RunID              string
	Created            string
	Mode               domain.BackupMode
	Home               string
	Dir                string
	Archive            string
	Plain              string
	Size               int64
	Digest             string
	DigestFile         string
	Encrypted          bool
	Included           []domain.Category
	ExcludedCategories []domain.Category
	Paths              []string
	Excluded           []string
}

func relHome(home, path string) string {
	rel, err := filepath.Rel(home, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// RenderNotes produces the restore instructions for a finished artifact.
func RenderNotes(ec EngineContext, list domain.SourceList, included []domain.Category, art domain.Artifact) ([]byte, error) {
	final := art.FinalPath()
	data := notesData{
		RunID:      ec.RunID,
		Created:    art.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"),
		Mode:       ec.Mode,
		Home:       ec.Home,
		Dir:        filepath.Dir(final),
		Archive:    filepath.Base(final),
		Plain:      strings.TrimSuffix(filepath.Base(final), encryptedExt),
		Size:       art.SizeBytes,
		Digest:     art.Digest,
		DigestFile: filepath.Base(art.DigestPath),
		Encrypted:  art.EncryptedPath != "",
		Included:   included,
		Paths:      list.Paths,
		Excluded:   list.Excluded,
	}
	for _, c := range domain.AllCategories() {
		if !containsCategory(included, c) {
			data.ExcludedCategories = append(data.ExcludedCategories, c)
		}
	}

	var buf bytes.Buffer
	if err := notesTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render restore notes: %w", err)
	}
	return buf.Bytes(), nil
}

func containsCategory(list []domain.Category, c domain.Category) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}

func writeNotes(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0600); err != nil {
		return domain.IOError("write "+path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		return domain.IOError("restrict "+path, err)
	}
	return nil
}
