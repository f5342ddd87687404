package inspect

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/keepsake/internal/domain"
)

type entry struct {
	name string
	body string
	dir  bool
}

func writeArchive(path string, entries []entry) {
	file, err := os.Create(path)
	So(err, ShouldBeNil)
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	tarWriter := tar.NewWriter(gzipWriter)
	for _, e := range entries {
		header := &tar.Header{Name: e.name, Mode: 0600, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		if e.dir {
			header = &tar.Header{Name: e.name, Mode: 0700, Typeflag: tar.TypeDir}
		}
		So(tarWriter.WriteHeader(header), ShouldBeNil)
		if !e.dir {
			_, err := tarWriter.Write([]byte(e.body))
			So(err, ShouldBeNil)
		}
	}
	So(tarWriter.Close(), ShouldBeNil)
	So(gzipWriter.Close(), ShouldBeNil)
}

func TestReader(t *testing.T) {
	Convey("Given a gzip tar archive", t, func() {
		dir, err := os.MkdirTemp("", "inspect")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		archive := filepath.Join(dir, "profile_backup.tar.gz")
		writeArchive(archive, []entry{
			{name: "./.bashrc", body: "export EDITOR=nvim"},
			{name: "./.config/nvim/", dir: true},
			{name: "./.config/nvim/init.lua", body: "-- init"},
		})
		reader := New()

		Convey("Members lists every entry in order", func() {
			members, err := reader.Members(archive)
			So(err, ShouldBeNil)
			So(len(members), ShouldEqual, 3)
			So(members[0].Name, ShouldEqual, "./.bashrc")
			So(members[0].Size, ShouldEqual, int64(18))
			So(members[1].IsDir, ShouldBeTrue)

			Convey("Select picks a directory and its descendants", func() {
				So(Select(members, ".config/nvim"), ShouldResemble, []string{"./.config/nvim/", "./.config/nvim/init.lua"})
				So(Select(members, "./.bashrc"), ShouldResemble, []string{"./.bashrc"})
				So(Select(members, ".config/nv"), ShouldBeEmpty)
			})
		})

		Convey("Check counts members", func() {
			count, err := reader.Check(archive)
			So(err, ShouldBeNil)
			So(count, ShouldEqual, 3)
		})

		Convey("A truncated archive fails the check", func() {
			data, err := os.ReadFile(archive)
			So(err, ShouldBeNil)
			broken := filepath.Join(dir, "broken.tar.gz")
			So(os.WriteFile(broken, data[:len(data)/2], 0600), ShouldBeNil)

			_, err = reader.Check(broken)
			So(domain.KindOf(err), ShouldEqual, domain.KindArchive)
		})

		Convey("An empty archive fails the check", func() {
			empty := filepath.Join(dir, "empty.tar.gz")
			writeArchive(empty, nil)
			_, err := reader.Check(empty)
			So(err, ShouldNotBeNil)
		})

		Convey("A file that is not gzip fails", func() {
			plain := filepath.Join(dir, "plain.txt")
			So(os.WriteFile(plain, []byte("hello"), 0600), ShouldBeNil)
			_, err := reader.Members(plain)
			So(domain.KindOf(err), ShouldEqual, domain.KindArchive)
		})

		Convey("A missing file is an io error", func() {
			_, err := reader.Members(filepath.Join(dir, "nope.tar.gz"))
			So(domain.KindOf(err), ShouldEqual, domain.KindIO)
		})
	})
}
