package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/keepsake/internal/domain"
)

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debugf(string, ...interface{}) {}
func (l *recordingLogger) Infof(string, ...interface{})  {}
func (l *recordingLogger) Errorf(string, ...interface{}) {}
func (l *recordingLogger) Warnf(template string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(template, args...))
}

func mustWrite(path, content string) {
	So(os.MkdirAll(filepath.Dir(path), 0700), ShouldBeNil)
	So(os.WriteFile(path, []byte(content), 0600), ShouldBeNil)
}

func names(cs []domain.Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Name)
	}
	return out
}

func TestDiscover(t *testing.T) {
	Convey("Given a home directory", t, func() {
		home, err := os.MkdirTemp("", "discovery_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(home)

		ctx := context.Background()

		Convey("When no known location exists", func() {
			cs, err := New(home).Discover(ctx, true)

			Convey("It should return an empty list, not an error", func() {
				So(err, ShouldBeNil)
				So(cs, ShouldNotBeNil)
				So(cs, ShouldBeEmpty)
			})
		})

		Convey("When a few known locations exist", func() {
			mustWrite(filepath.Join(home, ".bashrc"), "export EDITOR=nvim\n")
			mustWrite(filepath.Join(home, ".ssh", "id_rsa"), "-----BEGIN KEY-----")
			mustWrite(filepath.Join(home, ".config", "nvim", "init.lua"), "vim.opt.number = true")
			mustWrite(filepath.Join(home, ".config", "nvim", "lua", "plugins.lua"), "return {}")

			cs, err := New(home).Discover(ctx, true)
			So(err, ShouldBeNil)

			Convey("It should emit only existing items in table order", func() {
				So(names(cs), ShouldResemble, []string{"nvim", "ssh", "bashrc"})
			})

			Convey("It should carry the static category and absolute path", func() {
				So(cs[1].Category, ShouldEqual, domain.CategoryCredentials)
				So(cs[1].Path, ShouldEqual, filepath.Join(home, ".ssh"))
				So(cs[1].IsDir, ShouldBeTrue)
				So(cs[2].Category, ShouldEqual, domain.CategoryDotfiles)
			})

			Convey("It should compute recursive sizes", func() {
				So(cs[0].SizeBytes, ShouldEqual, int64(len("vim.opt.number = true")+len("return {}")))
				So(cs[2].SizeBytes, ShouldEqual, int64(len("export EDITOR=nvim\n")))
			})

			Convey("It should skip sizes when not asked", func() {
				cs, err := New(home).Discover(ctx, false)
				So(err, ShouldBeNil)
				for _, c := range cs {
					So(c.SizeBytes, ShouldEqual, int64(0))
				}
			})

			Convey("It should be idempotent", func() {
				again, err := New(home).Discover(ctx, true)
				So(err, ShouldBeNil)
				So(again, ShouldResemble, cs)
			})
		})

		Convey("When a location cannot be inspected", func() {
			mustWrite(filepath.Join(home, ".bashrc"), "x")
			logger := &recordingLogger{}
			d := New(home,
				WithLogger(logger),
				WithLocations([]Location{
					{"broken", "under a regular file", domain.CategorySystem, ".bashrc/child"},
					{"bashrc", "bash", domain.CategoryDotfiles, ".bashrc"},
				}))

			cs, err := d.Discover(ctx, false)

			Convey("It should warn and continue without it", func() {
				So(err, ShouldBeNil)
				So(names(cs), ShouldResemble, []string{"bashrc"})
				So(len(logger.warns), ShouldEqual, 1)
				So(logger.warns[0], ShouldContainSubstring, "broken")
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := New(home).Discover(cctx, false)

			Convey("It should stop with the context error", func() {
				So(err, ShouldEqual, context.Canceled)
			})
		})
	})
}

func TestSizeOf(t *testing.T) {
	Convey("SizeOf returns 0 for a missing path", t, func() {
		So(SizeOf("/definitely/not/here"), ShouldEqual, int64(0))
	})
}
