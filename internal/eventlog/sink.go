// internal/eventlog/sink.go

// Package eventlog persists the orchestrator's event feed as JSON lines and
// lets other processes follow it live. One line per event keeps the file
// greppable and makes `deskpilot watch` a thin tail.
package eventlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// FileSink appends events to a JSONL file. Emit never blocks task progress
// on log problems; write failures are logged and dropped.
type FileSink struct {
	logger *zap.Logger
	path   string

	mu     sync.Mutex
	file   *os.File
	closed bool
}

var _ schemas.EventSink = (*FileSink)(nil)

// NewFileSink opens (or creates) the event log at path in append mode.
func NewFileSink(logger *zap.Logger, path string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("event log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating event log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &FileSink{
		logger: logger.Named("event_sink"),
		path:   path,
		file:   f,
	}, nil
}

// Path reports where events are written.
func (s *FileSink) Path() string {
	return s.path
}

// Emit stamps missing identity fields and appends the event as one line.
func (s *FileSink) Emit(event schemas.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	line, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("Could not marshal event", zap.String("type", string(event.Type)), zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, err := s.file.Write(append(line, '\n')); err != nil {
		s.logger.Warn("Could not append event", zap.Error(err))
	}
}

// Close flushes and closes the underlying file. Emit calls after Close are
// silently dropped.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// -- Nop sink --

// NopSink discards every event. It stands in when no event log is configured.
type NopSink struct{}

var _ schemas.EventSink = (*NopSink)(nil)

func (NopSink) Emit(schemas.Event) {}
func (NopSink) Close() error       { return nil }

// -- Memory sink --

// MemorySink retains events in order. Useful for tests and for embedding the
// engine behind a UI that renders the feed directly.
type MemorySink struct {
	mu     sync.Mutex
	events []schemas.Event
}

var _ schemas.EventSink = (*MemorySink)(nil)

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Emit(event schemas.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *MemorySink) Close() error { return nil }

// Events returns a snapshot copy of everything emitted so far.
func (s *MemorySink) Events() []schemas.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schemas.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Types returns just the event types, in emission order. Handy in assertions.
func (s *MemorySink) Types() []schemas.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schemas.EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

// -- Fanout sink --

// FanoutSink forwards each event to every child sink.
type FanoutSink struct {
	sinks []schemas.EventSink
}

var _ schemas.EventSink = (*FanoutSink)(nil)

func NewFanoutSink(sinks ...schemas.EventSink) *FanoutSink {
	return &FanoutSink{sinks: sinks}
}

func (s *FanoutSink) Emit(event schemas.Event) {
	for _, sink := range s.sinks {
		sink.Emit(event)
	}
}

func (s *FanoutSink) Close() error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
