package pipeline

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// EventType enumerates the structured pipeline events. Events are persisted
// in the session store and replayed by `gantry status --events`.
type EventType string

const (
	EventRunStarted     EventType = "RUN_STARTED"
	EventPhaseStarted   EventType = "PHASE_STARTED"
	EventPhaseCompleted EventType = "PHASE_COMPLETED"
	EventRunCompleted   EventType = "RUN_COMPLETED"
)

// Phase names as they appear in events.
const (
	PhaseDetect    = "detect"
	PhaseBuild     = "build"
	PhaseProvision = "provision"
	PhaseDeploy    = "deploy"
)

// Event is one structured pipeline occurrence.
type Event struct {
	TS             string    `json:"ts"`
	SessionID      string    `json:"session_id"`
	Type           EventType `json:"type"`
	Phase          string    `json:"phase,omitempty"`
	Status         string    `json:"status,omitempty"`
	Message        string    `json:"message,omitempty"`
	ElapsedSeconds float64   `json:"elapsed_seconds,omitempty"`
}

func newEvent(sessionID string, typ EventType) Event {
	return Event{
		TS:        time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: sessionID,
		Type:      typ,
	}
}

// EventObserver receives every event emitted by a pipeline run, in order.
// Observers must not block for long; they run on the orchestrator goroutine.
type EventObserver interface {
	ObserveEvent(Event)
}

// EventObserverFunc adapts a function to EventObserver.
type EventObserverFunc func(Event)

func (f EventObserverFunc) ObserveEvent(ev Event) {
	if f == nil {
		return
	}
	f(ev)
}

// JSONLObserver appends one JSON line per event to a writer.
type JSONLObserver struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONLObserver wraps a writer. The caller keeps ownership of the writer
// and closes it after the run.
func NewJSONLObserver(w io.Writer) *JSONLObserver {
	return &JSONLObserver{w: w}
}

func (o *JSONLObserver) ObserveEvent(ev Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	_, _ = o.w.Write(append(raw, '\n'))
}
