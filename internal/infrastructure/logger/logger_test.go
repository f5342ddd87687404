package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given the Logger package", t, func() {
		Convey("New function", func() {
			Convey("When creating a logger with console output only", func() {
				console := &bytes.Buffer{}
				logger, err := New(Options{Level: "info", Console: console})

				Convey("It should create a logger successfully", func() {
					So(err, ShouldBeNil)
					So(logger, ShouldNotBeNil)

					logger.Info("Test log")
					So(console.String(), ShouldContainSubstring, "Test log")
				})
			})

			Convey("When creating a logger with a run log file", func() {
				tempDir, err := os.MkdirTemp("", "logger_test")
				So(err, ShouldBeNil)
				defer os.RemoveAll(tempDir)

				logFile := RunLogPath(tempDir, "run-1")
				logger, err := New(Options{Level: "info", File: logFile, Console: &bytes.Buffer{}})

				Convey("It should create an owner-only log file", func() {
					So(err, ShouldBeNil)
					So(logger.Path(), ShouldEqual, filepath.Join(tempDir, "keepsake-run-1.log"))

					logger.Info("Test info log")
					logger.Close()

					info, err := os.Stat(logFile)
					So(err, ShouldBeNil)
					So(info.Mode().Perm(), ShouldEqual, os.FileMode(0600))

					data, err := os.ReadFile(logFile)
					So(err, ShouldBeNil)
					So(string(data), ShouldContainSubstring, "Test info log")

					Convey("And the file holds plain-text lines", func() {
						line := strings.TrimSpace(string(data))
						So(line, ShouldNotStartWith, "{")
						So(line, ShouldContainSubstring, "\tINFO\t")
						So(line, ShouldEndWith, "Test info log")
					})
				})
			})

			Convey("When debug is requested without verbose", func() {
				console := &bytes.Buffer{}
				logger, err := New(Options{Level: "debug", Console: console})
				So(err, ShouldBeNil)

				logger.Debug("hidden")
				logger.Info("shown")

				Convey("Debug output stays gated", func() {
					So(console.String(), ShouldNotContainSubstring, "hidden")
					So(console.String(), ShouldContainSubstring, "shown")
				})
			})

			Convey("When verbose is set", func() {
				console := &bytes.Buffer{}
				logger, err := New(Options{Level: "info", Verbose: true, Console: console})
				So(err, ShouldBeNil)

				logger.Debug("details")
				So(console.String(), ShouldContainSubstring, "DEBUG")
				So(console.String(), ShouldContainSubstring, "details")
			})

			Convey("When quiet is set", func() {
				console := &bytes.Buffer{}
				logger, err := New(Options{Level: "info", Quiet: true, Console: console})
				So(err, ShouldBeNil)

				logger.Info("chatty")
				logger.Warn("careful")
				So(console.String(), ShouldNotContainSubstring, "chatty")
				So(strings.Count(console.String(), "careful"), ShouldEqual, 1)
			})

			Convey("When creating a logger with an invalid log level", func() {
				logger, err := New(Options{Level: "invalid", Console: &bytes.Buffer{}})

				Convey("It should default to Info level and create a logger", func() {
					So(err, ShouldBeNil)
					So(logger, ShouldNotBeNil)
					So(func() { logger.Info("Test info log") }, ShouldNotPanic)
				})
			})

			Convey("When creating a logger with an invalid log file path", func() {
				tempDir, err := os.MkdirTemp("", "logger_test")
				So(err, ShouldBeNil)
				defer os.RemoveAll(tempDir)

				blocker := filepath.Join(tempDir, "file")
				So(os.WriteFile(blocker, []byte("x"), 0600), ShouldBeNil)

				logger, err := New(Options{Level: "info", File: filepath.Join(blocker, "sub", "test.log")})

				Convey("It should return an error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to create log directory")
					So(logger, ShouldBeNil)
				})
			})
		})

		Convey("Close method", func() {
			Convey("When closing a logger with console output only", func() {
				logger, err := New(Options{Level: "info", Console: &bytes.Buffer{}})
				So(err, ShouldBeNil)

				Convey("It should close without error", func() {
					So(func() { logger.Close() }, ShouldNotPanic)
				})
			})
		})
	})
}
