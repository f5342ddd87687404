package progress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/keepsake/internal/domain"
)

type record struct {
	V          int            `json:"v"`
	Phase      string         `json:"phase"`
	Current    int64          `json:"current"`
	Total      int64          `json:"total"`
	Percentage float64        `json:"percentage"`
	Timestamp  string         `json:"timestamp"`
	Data       map[string]any `json:"data"`
}

func parse(buf *bytes.Buffer) []record {
	var out []record
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var r record
		So(json.Unmarshal([]byte(line), &r), ShouldBeNil)
		out = append(out, r)
	}
	return out
}

type lineLogger struct {
	lines []string
}

func (l *lineLogger) add(level, template string, args ...interface{}) {
	l.lines = append(l.lines, level+" "+fmt.Sprintf(template, args...))
}
func (l *lineLogger) Debugf(t string, a ...interface{}) { l.add("DEBUG", t, a...) }
func (l *lineLogger) Infof(t string, a ...interface{})  { l.add("INFO", t, a...) }
func (l *lineLogger) Warnf(t string, a ...interface{})  { l.add("WARN", t, a...) }
func (l *lineLogger) Errorf(t string, a ...interface{}) { l.add("ERROR", t, a...) }

func TestChannel(t *testing.T) {
	Convey("Given a progress channel over a buffer", t, func() {
		buf := &bytes.Buffer{}
		logger := &lineLogger{}
		ch := New(buf, logger)

		Convey("Each event becomes one JSON line with the documented fields", func() {
			ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
			ch.Emit(domain.ProgressEvent{
				Phase: domain.PhaseHashing, Current: 1, Total: 1, Percentage: 100,
				Timestamp: ts, Data: map[string]any{"hash": "abc", "status": "completed"},
			})

			recs := parse(buf)
			So(len(recs), ShouldEqual, 1)
			So(recs[0].V, ShouldEqual, RecordVersion)
			So(recs[0].Phase, ShouldEqual, "hashing")
			So(recs[0].Current, ShouldEqual, int64(1))
			So(recs[0].Total, ShouldEqual, int64(1))
			So(recs[0].Percentage, ShouldEqual, float64(100))
			So(recs[0].Timestamp, ShouldStartWith, "2026-03-01T11:00:00")
			So(recs[0].Timestamp, ShouldEndWith, "Z")
			So(recs[0].Data["hash"], ShouldEqual, "abc")
			So(recs[0].Data["status"], ShouldEqual, "completed")
		})

		Convey("Data defaults to an empty object", func() {
			ch.Step(domain.PhaseDiscovery, 0, 1, nil)
			So(buf.String(), ShouldContainSubstring, `"data":{}`)
		})

		Convey("Percentage never decreases within a phase", func() {
			ch.Step(domain.PhaseArchiving, 0, 10, nil)
			ch.Step(domain.PhaseArchiving, 6, 10, nil)
			ch.Emit(domain.ProgressEvent{Phase: domain.PhaseArchiving, Current: 4, Total: 10, Percentage: 40})
			ch.Step(domain.PhaseArchiving, 10, 10, nil)

			recs := parse(buf)
			So(len(recs), ShouldEqual, 4)
			for i := 1; i < len(recs); i++ {
				So(recs[i].Percentage, ShouldBeGreaterThanOrEqualTo, recs[i-1].Percentage)
			}
			So(recs[3].Percentage, ShouldEqual, float64(100))
			So(recs[3].Current, ShouldEqual, recs[3].Total)
		})

		Convey("A new phase starts again from zero", func() {
			ch.Step(domain.PhaseArchiving, 10, 10, nil)
			ch.Step(domain.PhaseHashing, 0, 1, nil)

			recs := parse(buf)
			So(recs[1].Phase, ShouldEqual, "hashing")
			So(recs[1].Percentage, ShouldEqual, float64(0))
		})

		Convey("Events for an earlier phase are dropped", func() {
			ch.Step(domain.PhaseHashing, 0, 1, nil)
			ch.Step(domain.PhaseArchiving, 5, 10, nil)

			So(len(parse(buf)), ShouldEqual, 1)
			last, ok := ch.Last()
			So(ok, ShouldBeTrue)
			So(last.Phase, ShouldEqual, domain.PhaseHashing)
		})

		Convey("Current is clamped to total", func() {
			ch.Step(domain.PhaseArchiving, 12, 10, nil)
			recs := parse(buf)
			So(recs[0].Current, ShouldEqual, int64(10))
			So(recs[0].Percentage, ShouldEqual, float64(100))
		})

		Convey("Log routes by level and never touches the progress stream", func() {
			ch.Log(LevelError, "tar failed")
			ch.Log(LevelWarn, "weak passphrase")
			ch.Log(LevelInfo, "starting")
			ch.Log(LevelDebug, "details")

			So(buf.Len(), ShouldEqual, 0)
			So(logger.lines, ShouldResemble, []string{
				"ERROR tar failed", "WARN weak passphrase", "INFO starting", "DEBUG details",
			})
		})
	})

	Convey("Given a channel without a writer", t, func() {
		ch := New(nil, nil)
		ch.Step(domain.PhaseCompleted, 1, 1, nil)
		_, ok := ch.Last()
		So(ok, ShouldBeTrue)
	})
}
