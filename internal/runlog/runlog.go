// Package runlog carries pipeline status events to an explicit sink so a run's
// audit trail does not depend on global file state.
package runlog

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status of an event.
type Status string

const (
	StatusStarted   Status = "started"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusWarning   Status = "warning"
	StatusInfo      Status = "info"
)

// Event is one pipeline milestone.
type Event struct {
	Time    time.Time
	RunID   string
	Step    string // empty for run-level events
	Status  Status
	Message string
	Err     error
	Fields  map[string]interface{}
}

// Sink receives events in emission order.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// LogSink writes events as zerolog lines, one per event.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink returns a sink writing to log.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

// Emit implements Sink.
func (s *LogSink) Emit(ctx context.Context, ev Event) {
	var e *zerolog.Event
	switch ev.Status {
	case StatusFailed:
		e = s.log.Error()
	case StatusWarning:
		e = s.log.Warn()
	default:
		e = s.log.Info()
	}

	if ev.RunID != "" {
		e = e.Str("run_id", ev.RunID)
	}
	if ev.Step != "" {
		e = e.Str("step", ev.Step)
	}
	e = e.Str("status", string(ev.Status))
	if ev.Err != nil {
		e = e.Err(ev.Err)
	}
	if len(ev.Fields) > 0 {
		e = e.Fields(ev.Fields)
	}
	e.Msg(ev.Message)
}

// Memory records events; it is safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Sink.
func (m *Memory) Emit(ctx context.Context, ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Multi fans events out to every sink in order.
type Multi []Sink

// Emit implements Sink.
func (m Multi) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}

// Discard drops every event.
type Discard struct{}

// Emit implements Sink.
func (Discard) Emit(context.Context, Event) {}
