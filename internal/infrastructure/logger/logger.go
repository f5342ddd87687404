package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileMode = 0o600

type Logger struct {
	*zap.SugaredLogger
	file *lumberjack.Logger
	path string
}

type Options struct {
	// Level is one of error, warn, info. Debug output additionally needs Verbose.
	Level   string
	Verbose bool
	// Quiet limits console output to warnings and errors.
	Quiet bool
	// File is the run log. Empty disables file output.
	File    string
	Console io.Writer
}

func New(opts Options) (*Logger, error) {
	if opts.File != "" {
		logDir := filepath.Dir(opts.File)
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		// lumberjack keeps the mode of an existing file, so create it owner-only first.
		f, err := os.OpenFile(opts.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, logFileMode)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		f.Close()
		if err := os.Chmod(opts.File, logFileMode); err != nil {
			return nil, fmt.Errorf("failed to restrict log file: %w", err)
		}
	}

	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		level = zapcore.InfoLevel
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	} else if level < zapcore.InfoLevel {
		level = zapcore.InfoLevel
	}

	consoleLevel := level
	if opts.Quiet && consoleLevel < zapcore.WarnLevel {
		consoleLevel = zapcore.WarnLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	// The run log is plain text; the progress stream is the machine-readable channel.
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)
	fileEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	consoleWriter := zapcore.Lock(zapcore.AddSync(console))

	l := &Logger{path: opts.File}

	var core zapcore.Core
	if opts.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		core = zapcore.NewTee(
			zapcore.NewCore(consoleEncoder, consoleWriter, consoleLevel),
			zapcore.NewCore(fileEncoder, zapcore.AddSync(l.file), level),
		)
	} else {
		core = zapcore.NewCore(consoleEncoder, consoleWriter, consoleLevel)
	}

	zapLogger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	l.SugaredLogger = zapLogger.Sugar()
	return l, nil
}

// RunLogPath returns the per-run log file name inside dir.
func RunLogPath(dir, runID string) string {
	return filepath.Join(dir, fmt.Sprintf("keepsake-%s.log", runID))
}

func (l *Logger) Path() string {
	return l.path
}

func (l *Logger) Close() {
	_ = l.Sync()
	if l.file != nil {
		_ = l.file.Close()
	}
}
