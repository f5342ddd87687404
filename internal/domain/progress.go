package domain

import "time"

type Phase string

const (
	PhaseDiscovery  Phase = "discovery"
	PhaseArchiving  Phase = "archiving"
	PhaseHashing    Phase = "hashing"
	PhaseEncryption Phase = "encryption"
	PhaseCompleted  Phase = "completed"
)

// Order returns the position of the phase in a run. Unknown phases sort last.
func (p Phase) Order() int {
	switch p {
	case PhaseDiscovery:
		return 0
	case PhaseArchiving:
		return 1
	case PhaseHashing:
		return 2
	case PhaseEncryption:
		return 3
	case PhaseCompleted:
		return 4
	}
	return 5
}

type ProgressEvent struct {
	Phase      Phase
	Current    int64
	Total      int64
	Percentage float64
	Timestamp  time.Time
	Data       map[string]any
}

// ProgressSink receives progress events from long-running components.
type ProgressSink interface {
	Emit(event ProgressEvent)
}

// Percent computes a clamped percentage of current over total.
func Percent(current, total int64) float64 {
	if total <= 0 {
		return 0
	}
	if current >= total {
		return 100
	}
	if current <= 0 {
		return 0
	}
	return float64(current) * 100 / float64(total)
}
