// Package inspect reads gzip tar archives in-process to list and check them
// without shelling out.
package inspect

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/semmidev/keepsake/internal/domain"
)

type Member struct {
	Name  string
	Size  int64
	IsDir bool
	Mode  os.FileMode
}

type Reader struct{}

func New() *Reader {
	return &Reader{}
}

// Walk calls fn for every header in the archive. It fails if the gzip stream
// or the tar structure is damaged anywhere, including past the last header.
func (r *Reader) Walk(path string, fn func(Member) error) error {
	file, err := os.Open(path)
	if err != nil {
		return domain.IOError("open archive", err)
	}
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return domain.ArchiveError("read gzip header", err, "")
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.ArchiveError("read tar header", err, "")
		}
		// Reading the body forces the gzip checksum to be validated.
		if _, err := io.Copy(io.Discard, tarReader); err != nil {
			return domain.ArchiveError("read member "+header.Name, err, "")
		}
		if fn != nil {
			member := Member{
				Name:  header.Name,
				Size:  header.Size,
				IsDir: header.Typeflag == tar.TypeDir,
				Mode:  header.FileInfo().Mode(),
			}
			if err := fn(member); err != nil {
				return err
			}
		}
	}

	if _, err := io.Copy(io.Discard, gzipReader); err != nil {
		return domain.ArchiveError("read gzip trailer", err, "")
	}
	return nil
}

func (r *Reader) Members(path string) ([]Member, error) {
	var members []Member
	err := r.Walk(path, func(m Member) error {
		members = append(members, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// Check verifies the archive is readable end to end and holds at least one
// member. It returns the member count.
func (r *Reader) Check(path string) (int, error) {
	count := 0
	if err := r.Walk(path, func(Member) error {
		count++
		return nil
	}); err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, domain.ArchiveError("check archive", fmt.Errorf("%s has no members", path), "")
	}
	return count, nil
}

// Select returns the members named by item: the exact entry and, for a
// directory, everything beneath it. Names compare without a leading "./".
func Select(members []Member, item string) []string {
	want := strings.TrimSuffix(strings.TrimPrefix(item, "./"), "/")
	var out []string
	for _, m := range members {
		name := strings.TrimSuffix(strings.TrimPrefix(m.Name, "./"), "/")
		if name == want || strings.HasPrefix(name, want+"/") {
			out = append(out, m.Name)
		}
	}
	return out
}
