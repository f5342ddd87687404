package integrity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/keepsake/internal/domain"
)

type eventRecorder struct {
	events []domain.ProgressEvent
}

func (r *eventRecorder) Emit(e domain.ProgressEvent) {
	r.events = append(r.events, e)
}

func TestComputeDigest(t *testing.T) {
	Convey("Given an archive on disk", t, func() {
		dir, err := os.MkdirTemp("", "integrity_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		content := []byte("pretend this is a tarball")
		archive := filepath.Join(dir, "profile_backup.tar.gz")
		So(os.WriteFile(archive, content, 0600), ShouldBeNil)

		sum := sha256.Sum256(content)
		expected := hex.EncodeToString(sum[:])
		ctx := context.Background()

		Convey("When computing its digest", func() {
			rec := &eventRecorder{}
			digest, digestPath, err := ComputeDigest(ctx, archive, rec)

			Convey("It should match a direct SHA-256 of the bytes", func() {
				So(err, ShouldBeNil)
				So(digest, ShouldEqual, expected)
				So(digestPath, ShouldEqual, archive+".sha256")
			})

			Convey("It should write a sha256sum compatible line with 0600", func() {
				data, err := os.ReadFile(digestPath)
				So(err, ShouldBeNil)
				So(string(data), ShouldEqual, expected+"  profile_backup.tar.gz\n")

				info, err := os.Stat(digestPath)
				So(err, ShouldBeNil)
				So(info.Mode().Perm(), ShouldEqual, os.FileMode(0600))
			})

			Convey("It should emit hashing 0/1 then 1/1", func() {
				So(len(rec.events), ShouldEqual, 2)
				So(rec.events[0].Phase, ShouldEqual, domain.PhaseHashing)
				So(rec.events[0].Current, ShouldEqual, int64(0))
				So(rec.events[1].Current, ShouldEqual, int64(1))
				So(rec.events[1].Total, ShouldEqual, int64(1))
				So(rec.events[1].Percentage, ShouldEqual, 100.0)
				So(rec.events[1].Data["hash"], ShouldEqual, expected)
			})

			Convey("Re-hashing the same bytes gives the same digest", func() {
				again, err := Sum(ctx, archive)
				So(err, ShouldBeNil)
				So(again, ShouldEqual, digest)

				verified, err := Verify(ctx, archive)
				So(err, ShouldBeNil)
				So(verified, ShouldEqual, digest)
			})

			Convey("Mutating one byte changes the digest and fails verification", func() {
				mutated := append([]byte{}, content...)
				mutated[3] ^= 0xff
				So(os.WriteFile(archive, mutated, 0600), ShouldBeNil)

				changed, err := Sum(ctx, archive)
				So(err, ShouldBeNil)
				So(changed, ShouldNotEqual, digest)

				_, err = Verify(ctx, archive)
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "digest mismatch")
			})
		})

		Convey("When an old sidecar with loose permissions exists", func() {
			So(os.WriteFile(archive+".sha256", []byte("stale"), 0644), ShouldBeNil)
			_, digestPath, err := ComputeDigest(ctx, archive, nil)
			So(err, ShouldBeNil)

			info, err := os.Stat(digestPath)
			So(err, ShouldBeNil)
			So(info.Mode().Perm(), ShouldEqual, os.FileMode(0600))
		})

		Convey("When the archive is missing", func() {
			_, _, err := ComputeDigest(ctx, filepath.Join(dir, "gone.tar.gz"), nil)

			Convey("It should be an IO error", func() {
				So(err, ShouldNotBeNil)
				So(domain.KindOf(err), ShouldEqual, domain.KindIO)
			})
		})

		Convey("When the sidecar is not a checksum line", func() {
			So(os.WriteFile(archive+".sha256", []byte("garbage\n"), 0600), ShouldBeNil)
			_, err := Verify(ctx, archive)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "not a sha256sum line")
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := Sum(cctx, archive)
			So(err, ShouldNotBeNil)
		})
	})
}
