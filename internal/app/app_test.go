package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/keepsake/internal/config"
	"github.com/semmidev/keepsake/internal/domain"
	"github.com/semmidev/keepsake/internal/infrastructure/logger"
)

const appPolicy = `
secure:
  dotfiles: [.bashrc, .gitconfig]
  exclusions: ["*.log"]
complete:
  dotfiles: [.bashrc, .gitconfig]
  credentials: [.ssh]
`

func testConfig(dir string) *config.Config {
	home := filepath.Join(dir, "home")
	return &config.Config{
		App: config.AppConfig{Name: "keepsake", LogLevel: "info", LogDir: filepath.Join(dir, "logs")},
		Backup: config.BackupConfig{
			PolicyFile:    filepath.Join(dir, "policy.yaml"),
			Home:          home,
			DestDir:       filepath.Join(dir, "dest"),
			NamePrefix:    "profile_backup",
			Mode:          string(domain.ModeSecure),
			RetentionDays: 0,
		},
		Tools: config.ToolsConfig{Tar: "tar", GPG: "gpg", Shred: "shred"},
	}
}

func TestApp(t *testing.T) {
	Convey("Given a home directory and a policy", t, func() {
		dir, err := os.MkdirTemp("", "app_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		cfg := testConfig(dir)
		So(os.WriteFile(cfg.Backup.PolicyFile, []byte(appPolicy), 0600), ShouldBeNil)
		for _, rel := range []string{".bashrc", ".gitconfig", ".ssh/id_rsa"} {
			p := filepath.Join(cfg.Backup.Home, rel)
			So(os.MkdirAll(filepath.Dir(p), 0700), ShouldBeNil)
			So(os.WriteFile(p, []byte("x"), 0600), ShouldBeNil)
		}
		So(os.MkdirAll(cfg.Backup.DestDir, 0700), ShouldBeNil)

		application, err := New(cfg, Options{Quiet: true})
		So(err, ShouldBeNil)
		defer application.Shutdown()

		Convey("The run log lives in the configured directory", func() {
			So(filepath.Dir(application.LogPath()), ShouldEqual, cfg.App.LogDir)
		})

		Convey("Secure sources leave credentials out", func() {
			list, err := application.Sources(context.Background(), domain.ModeSecure)
			So(err, ShouldBeNil)
			So(list.Paths, ShouldResemble, []string{
				filepath.Join(cfg.Backup.Home, ".bashrc"),
				filepath.Join(cfg.Backup.Home, ".gitconfig"),
			})
		})

		Convey("Complete sources add them", func() {
			list, err := application.Sources(context.Background(), domain.ModeComplete)
			So(err, ShouldBeNil)
			So(list.Contains(filepath.Join(cfg.Backup.Home, ".ssh")), ShouldBeTrue)
		})

		Convey("A complete backup without encryption fails before writing anything", func() {
			_, err := application.Backup(context.Background(), BackupRequest{
				Mode:    domain.ModeComplete,
				DestDir: cfg.Backup.DestDir,
			})
			So(domain.KindOf(err), ShouldEqual, domain.KindConfig)

			entries, err := os.ReadDir(cfg.Backup.DestDir)
			So(err, ShouldBeNil)
			So(entries, ShouldBeEmpty)
		})

		Convey("A scheduled backup logs into a file of its own", func() {
			result, err := application.scheduledBackup(context.Background(), BackupRequest{
				Mode:    domain.ModeComplete,
				DestDir: cfg.Backup.DestDir,
			})
			So(domain.KindOf(err), ShouldEqual, domain.KindConfig)
			So(result.RunID, ShouldNotBeBlank)
			So(result.RunID, ShouldNotEqual, application.runID)

			runLog := logger.RunLogPath(cfg.App.LogDir, result.RunID)
			So(runLog, ShouldNotEqual, application.LogPath())
			data, err := os.ReadFile(runLog)
			So(err, ShouldBeNil)
			So(string(data), ShouldContainSubstring, "["+result.RunID+"] Starting complete backup")

			daemon, err := os.ReadFile(application.LogPath())
			So(err, ShouldBeNil)
			So(string(daemon), ShouldContainSubstring, "logging to "+runLog)
			So(string(daemon), ShouldNotContainSubstring, "["+result.RunID+"] Starting")
		})

		Convey("An empty destination lists no artifacts", func() {
			artifacts, err := application.Artifacts("")
			So(err, ShouldBeNil)
			So(artifacts, ShouldBeEmpty)
		})

		Convey("A missing policy file is a config error", func() {
			cfg.Backup.PolicyFile = filepath.Join(dir, "missing.yaml")
			_, err := application.Sources(context.Background(), domain.ModeSecure)
			So(domain.KindOf(err), ShouldEqual, domain.KindConfig)
		})
	})
}
