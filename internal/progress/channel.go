// Package progress writes machine-readable progress records to a dedicated
// stream and routes human-readable log lines to the run logger.
package progress

import (
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/semmidev/keepsake/internal/domain"
)

// RecordVersion is bumped whenever the record layout changes.
const RecordVersion = 1

type Level string

const (
	LevelError Level = "ERROR"
	LevelWarn  Level = "WARN"
	LevelInfo  Level = "INFO"
	LevelDebug Level = "DEBUG"
)

// Channel serializes progress events one JSON object per line. Events from a
// phase earlier than the current one are dropped and percentages within a
// phase never go backwards.
type Channel struct {
	mu      sync.Mutex
	core    zapcore.Core
	logger  domain.Logger
	phase   domain.Phase
	started bool
	percent float64
	last    *domain.ProgressEvent
}

func newEncoder() zapcore.Encoder {
	return zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		LineEnding:     zapcore.DefaultLineEnding,
	})
}

// New returns a channel writing to w. A nil w discards records but still
// tracks state.
func New(w io.Writer, logger domain.Logger) *Channel {
	if w == nil {
		w = io.Discard
	}
	if logger == nil {
		logger = domain.NopLogger()
	}
	return &Channel{
		core:   zapcore.NewCore(newEncoder(), zapcore.Lock(zapcore.AddSync(w)), zapcore.DebugLevel),
		logger: logger,
	}
}

func (c *Channel) Emit(event domain.ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started && event.Phase.Order() < c.phase.Order() {
		c.logger.Debugf("Dropping out-of-order progress event for %s during %s", event.Phase, c.phase)
		return
	}
	if !c.started || event.Phase != c.phase {
		c.phase = event.Phase
		c.percent = 0
		c.started = true
	}

	if event.Total > 0 && event.Current > event.Total {
		event.Current = event.Total
	}
	if event.Percentage < c.percent {
		event.Percentage = c.percent
	}
	if event.Percentage > 100 {
		event.Percentage = 100
	}
	c.percent = event.Percentage

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Timestamp = event.Timestamp.UTC()
	if event.Data == nil {
		event.Data = map[string]any{}
	}

	entry := zapcore.Entry{Level: zapcore.InfoLevel, Time: event.Timestamp}
	fields := []zap.Field{
		zap.Int("v", RecordVersion),
		zap.String("phase", string(event.Phase)),
		zap.Int64("current", event.Current),
		zap.Int64("total", event.Total),
		zap.Float64("percentage", event.Percentage),
		zap.Any("data", event.Data),
	}
	if err := c.core.Write(entry, fields); err != nil {
		c.logger.Warnf("Failed to write progress record: %v", err)
	}
	_ = c.core.Sync()

	saved := event
	c.last = &saved
}

// Last returns the most recently written event.
func (c *Channel) Last() (domain.ProgressEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return domain.ProgressEvent{}, false
	}
	return *c.last, true
}

// Log writes a human-readable line through the run logger.
func (c *Channel) Log(level Level, message string) {
	switch level {
	case LevelError:
		c.logger.Errorf("%s", message)
	case LevelWarn:
		c.logger.Warnf("%s", message)
	case LevelDebug:
		c.logger.Debugf("%s", message)
	default:
		c.logger.Infof("%s", message)
	}
}

// Step emits a phase event for current/total with optional data.
func (c *Channel) Step(phase domain.Phase, current, total int64, data map[string]any) {
	c.Emit(domain.ProgressEvent{
		Phase:      phase,
		Current:    current,
		Total:      total,
		Percentage: domain.Percent(current, total),
		Timestamp:  time.Now().UTC(),
		Data:       data,
	})
}
