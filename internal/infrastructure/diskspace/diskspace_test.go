package diskspace

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/keepsake/internal/domain"
)

func TestDiskSpace(t *testing.T) {
	Convey("Given a destination directory", t, func() {
		dir, err := os.MkdirTemp("", "diskspace_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)
		ctx := context.Background()

		Convey("Free reports a positive amount", func() {
			free, err := Free(ctx, dir)
			So(err, ShouldBeNil)
			So(free, ShouldBeGreaterThan, uint64(0))
		})

		Convey("A tiny requirement passes", func() {
			So(CheckSpace(ctx, dir, 1, 0), ShouldBeNil)
		})

		Convey("An impossible requirement is a precondition error", func() {
			err := CheckSpace(ctx, dir, math.MaxUint64/2, 0)
			So(err, ShouldNotBeNil)
			So(domain.KindOf(err), ShouldEqual, domain.KindPrecondition)
			So(err.Error(), ShouldContainSubstring, "insufficient space")
		})

		Convey("CheckWritable creates missing directories and leaves nothing behind", func() {
			nested := filepath.Join(dir, "a", "b")
			So(CheckWritable(nested), ShouldBeNil)

			entries, err := os.ReadDir(nested)
			So(err, ShouldBeNil)
			So(entries, ShouldBeEmpty)
		})

		Convey("CheckWritable fails under a regular file", func() {
			file := filepath.Join(dir, "file")
			So(os.WriteFile(file, []byte("x"), 0600), ShouldBeNil)

			err := CheckWritable(filepath.Join(file, "sub"))
			So(err, ShouldNotBeNil)
			So(domain.KindOf(err), ShouldEqual, domain.KindPrecondition)
		})
	})
}
