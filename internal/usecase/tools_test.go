package usecase

import (
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/keepsake/internal/config"
	"github.com/semmidev/keepsake/internal/domain"
)

func TestToolCheck(t *testing.T) {
	Convey("Given a PATH with only some tools", t, func() {
		installed := map[string]bool{"tar": true, "gzip": true}
		check := NewToolCheck(config.ToolsConfig{})
		check.lookPath = func(name string) (string, error) {
			if installed[name] {
				return "/usr/bin/" + name, nil
			}
			return "", errors.New("not found")
		}

		Convey("Without encryption gpg and shred are optional", func() {
			absent, err := check.Check(false)
			So(err, ShouldBeNil)
			So(absent, ShouldResemble, []string{"shred", "gpg"})
		})

		Convey("With encryption gpg is required", func() {
			_, err := check.Check(true)
			So(domain.KindOf(err), ShouldEqual, domain.KindPrecondition)
			So(err.Error(), ShouldContainSubstring, "gpg")
		})

		Convey("Configured binary names are honoured", func() {
			installed["gpg2"] = true
			check.gpg = "gpg2"
			absent, err := check.Check(true)
			So(err, ShouldBeNil)
			So(absent, ShouldResemble, []string{"shred"})
		})
	})
}

func TestEngineContext(t *testing.T) {
	Convey("Artifact names derive from prefix and start time", t, func() {
		now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
		ec := NewEngineContext(domain.ModeSecure, "/home/u/", "/backups/", "profile_backup", now)

		So(ec.RunID, ShouldNotBeEmpty)
		So(ec.Home, ShouldEqual, "/home/u")
		So(ec.ArchivePath(), ShouldEqual, "/backups/profile_backup_20260102_030405.tar.gz")
		So(ec.EncryptedPath(), ShouldEqual, "/backups/profile_backup_20260102_030405.tar.gz.gpg")
		So(ec.NotesPath(), ShouldEqual, "/backups/profile_backup_20260102_030405.RESTORE.txt")

		other := NewEngineContext(domain.ModeSecure, "/home/u", "/backups", "profile_backup", now)
		So(other.RunID, ShouldNotEqual, ec.RunID)
	})
}
