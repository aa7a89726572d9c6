package eventlog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// -- Test Doubles --

// failingSink records calls and fails Close with a scripted error.
type failingSink struct {
	mu     sync.Mutex
	emits  int
	closes int
	err    error
}

func (s *failingSink) Emit(schemas.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emits++
}

func (s *failingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return s.err
}

// -- Helpers --

func feedEvent(taskID string, typ schemas.EventType, detail string) schemas.Event {
	return schemas.Event{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Type:      typ,
		Detail:    detail,
		Timestamp: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
	}
}

func readEventLines(t *testing.T, path string) []string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	trimmed := strings.TrimRight(string(raw), "\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

// -- Test Cases --

func TestNewFileSink(t *testing.T) {
	t.Run("should reject an empty path", func(t *testing.T) {
		_, err := NewFileSink(zaptest.NewLogger(t), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "event log path is empty")
	})

	t.Run("should create missing parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state", "logs", "events.jsonl")
		sink, err := NewFileSink(zaptest.NewLogger(t), path)
		require.NoError(t, err)
		defer sink.Close()

		assert.Equal(t, path, sink.Path())
		_, err = os.Stat(filepath.Dir(path))
		assert.NoError(t, err, "Parent directory should exist after construction")
	})

	t.Run("should append to an existing log", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "events.jsonl")
		prior := feedEvent("task-0", schemas.EventTaskCompleted, "done")
		priorLine, err := json.Marshal(prior)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, append(priorLine, '\n'), 0o644))

		sink, err := NewFileSink(zaptest.NewLogger(t), path)
		require.NoError(t, err)
		sink.Emit(feedEvent("task-1", schemas.EventTaskSubmitted, "goal accepted"))
		require.NoError(t, sink.Close())

		lines := readEventLines(t, path)
		require.Len(t, lines, 2, "New events should append after existing ones")
		assert.Equal(t, string(priorLine), lines[0])
	})
}

func TestFileSinkEmit(t *testing.T) {
	t.Run("should write one decodable JSON line per event", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "events.jsonl")
		sink, err := NewFileSink(zaptest.NewLogger(t), path)
		require.NoError(t, err)

		first := feedEvent("task-1", schemas.EventTaskSubmitted, "goal accepted")
		second := feedEvent("task-1", schemas.EventStatusChanged, "PENDING -> RUNNING")
		second.Status = schemas.StatusRunning
		sink.Emit(first)
		sink.Emit(second)
		require.NoError(t, sink.Close())

		lines := readEventLines(t, path)
		require.Len(t, lines, 2)

		var got schemas.Event
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
		assert.Equal(t, first.ID, got.ID)
		assert.Equal(t, first.Type, got.Type)
		assert.Equal(t, first.Detail, got.Detail)
		assert.True(t, got.Timestamp.Equal(first.Timestamp))

		require.NoError(t, json.Unmarshal([]byte(lines[1]), &got))
		assert.Equal(t, second.ID, got.ID)
		assert.Equal(t, schemas.StatusRunning, got.Status)
	})

	t.Run("should stamp a missing id and timestamp", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "events.jsonl")
		sink, err := NewFileSink(zaptest.NewLogger(t), path)
		require.NoError(t, err)

		sink.Emit(schemas.Event{TaskID: "task-1", Type: schemas.EventTaskStarted})
		require.NoError(t, sink.Close())

		lines := readEventLines(t, path)
		require.Len(t, lines, 1)

		var got schemas.Event
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
		_, err = uuid.Parse(got.ID)
		assert.NoError(t, err, "Stamped id should be a UUID")
		assert.False(t, got.Timestamp.IsZero())
		assert.WithinDuration(t, time.Now(), got.Timestamp, time.Minute)
	})

	t.Run("should warn and drop an event that cannot be marshaled", func(t *testing.T) {
		observedCore, observedLogs := observer.New(zap.WarnLevel)
		path := filepath.Join(t.TempDir(), "events.jsonl")
		sink, err := NewFileSink(zap.New(observedCore), path)
		require.NoError(t, err)

		bad := feedEvent("task-1", schemas.EventStepCompleted, "")
		bad.Step = &schemas.Step{
			Index:  0,
			Result: schemas.ActionResult{Data: map[string]interface{}{"stream": make(chan int)}},
		}
		sink.Emit(bad)
		require.NoError(t, sink.Close())

		assert.Empty(t, readEventLines(t, path), "Undecodable event should not reach the file")
		logs := observedLogs.FilterMessage("Could not marshal event").All()
		require.Len(t, logs, 1)
		assert.Equal(t, "step_completed", logs[0].ContextMap()["type"])
	})

	t.Run("should drop emits after close", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "events.jsonl")
		sink, err := NewFileSink(zaptest.NewLogger(t), path)
		require.NoError(t, err)

		sink.Emit(feedEvent("task-1", schemas.EventTaskSubmitted, "goal accepted"))
		require.NoError(t, sink.Close())
		sink.Emit(feedEvent("task-1", schemas.EventTaskStarted, ""))

		assert.Len(t, readEventLines(t, path), 1, "Events after Close should be dropped")
		assert.NoError(t, sink.Close(), "Second Close should be a no-op")
	})

	t.Run("should keep lines whole under concurrent emits", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "events.jsonl")
		sink, err := NewFileSink(zaptest.NewLogger(t), path)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 25; i++ {
					sink.Emit(feedEvent("task-1", schemas.EventStatusChanged, "tick"))
				}
			}(g)
		}
		wg.Wait()
		require.NoError(t, sink.Close())

		lines := readEventLines(t, path)
		require.Len(t, lines, 200)
		for _, line := range lines {
			var got schemas.Event
			require.NoError(t, json.Unmarshal([]byte(line), &got), "Every line should decode on its own")
		}
	})
}

func TestMemorySink(t *testing.T) {
	t.Run("should retain events in emission order", func(t *testing.T) {
		sink := NewMemorySink()
		sink.Emit(feedEvent("task-1", schemas.EventTaskSubmitted, ""))
		sink.Emit(feedEvent("task-1", schemas.EventTaskStarted, ""))
		sink.Emit(feedEvent("task-1", schemas.EventTaskCompleted, "done"))

		assert.Equal(t, []schemas.EventType{
			schemas.EventTaskSubmitted,
			schemas.EventTaskStarted,
			schemas.EventTaskCompleted,
		}, sink.Types())
		assert.NoError(t, sink.Close())
	})

	t.Run("should stamp a missing timestamp", func(t *testing.T) {
		sink := NewMemorySink()
		sink.Emit(schemas.Event{TaskID: "task-1", Type: schemas.EventTaskStarted})

		events := sink.Events()
		require.Len(t, events, 1)
		assert.False(t, events[0].Timestamp.IsZero())
	})

	t.Run("should hand out snapshot copies", func(t *testing.T) {
		sink := NewMemorySink()
		sink.Emit(feedEvent("task-1", schemas.EventTaskSubmitted, ""))

		snapshot := sink.Events()
		snapshot[0].TaskID = "mutated"
		assert.Equal(t, "task-1", sink.Events()[0].TaskID, "Mutating a snapshot should not affect the sink")
	})
}

func TestNopSink(t *testing.T) {
	t.Run("should accept events and close without error", func(t *testing.T) {
		var sink NopSink
		sink.Emit(feedEvent("task-1", schemas.EventTaskSubmitted, ""))
		assert.NoError(t, sink.Close())
	})
}

func TestFanoutSink(t *testing.T) {
	t.Run("should forward every event to every child in order", func(t *testing.T) {
		first := NewMemorySink()
		second := NewMemorySink()
		fan := NewFanoutSink(first, second)

		fan.Emit(feedEvent("task-1", schemas.EventTaskSubmitted, ""))
		fan.Emit(feedEvent("task-1", schemas.EventTaskCompleted, "done"))

		want := []schemas.EventType{schemas.EventTaskSubmitted, schemas.EventTaskCompleted}
		assert.Equal(t, want, first.Types())
		assert.Equal(t, want, second.Types())
	})

	t.Run("should close every child and report the first error", func(t *testing.T) {
		errFirst := errors.New("flush failed")
		errSecond := errors.New("already closed")
		failing := &failingSink{err: errFirst}
		alsoFailing := &failingSink{err: errSecond}
		healthy := NewMemorySink()
		fan := NewFanoutSink(failing, alsoFailing, healthy)

		err := fan.Close()
		assert.ErrorIs(t, err, errFirst)
		assert.NotErrorIs(t, err, errSecond)
		assert.Equal(t, 1, failing.closes)
		assert.Equal(t, 1, alsoFailing.closes, "Later children still close after an earlier failure")
	})

	t.Run("should tolerate an empty fanout", func(t *testing.T) {
		fan := NewFanoutSink()
		fan.Emit(feedEvent("task-1", schemas.EventTaskSubmitted, ""))
		assert.NoError(t, fan.Close())
	})
}
