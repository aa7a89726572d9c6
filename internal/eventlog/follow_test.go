package eventlog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

func appendRawLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(line + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func appendEventLine(t *testing.T, path string, e schemas.Event) {
	t.Helper()
	raw, err := json.Marshal(e)
	require.NoError(t, err)
	appendRawLine(t, path, string(raw))
}

func TestFollow(t *testing.T) {
	t.Run("should return error when the log does not exist", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing.jsonl")
		err := Follow(context.Background(), zaptest.NewLogger(t), path, FollowOptions{}, func(schemas.Event) {})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to tail event log")
	})

	t.Run("should replay the log from the start and skip corrupt lines", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "events.jsonl")
		first := feedEvent("task-1", schemas.EventTaskSubmitted, "goal accepted")
		second := feedEvent("task-1", schemas.EventTaskCompleted, "done")

		appendEventLine(t, path, first)
		appendRawLine(t, path, `{"id": 17,`)
		appendRawLine(t, path, "")
		appendEventLine(t, path, second)

		observedCore, observedLogs := observer.New(zap.WarnLevel)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		events := make(chan schemas.Event, 16)
		done := make(chan error, 1)
		go func() {
			done <- Follow(ctx, zap.New(observedCore), path, FollowOptions{FromStart: true}, func(e schemas.Event) {
				events <- e
			})
		}()

		var got []schemas.Event
		for len(got) < 2 {
			select {
			case e := <-events:
				got = append(got, e)
			case <-time.After(5 * time.Second):
				t.Fatalf("timed out waiting for replayed events, got %d", len(got))
			}
		}
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("Follow did not stop after cancellation")
		}

		require.Len(t, got, 2)
		assert.Equal(t, first.ID, got[0].ID)
		assert.Equal(t, second.ID, got[1].ID)
		assert.Equal(t, 1, observedLogs.FilterMessage("Skipping undecodable event line").Len())
	})

	t.Run("should deliver only lines appended after the follow starts", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "events.jsonl")
		old := feedEvent("task-1", schemas.EventTaskSubmitted, "goal accepted")
		appendEventLine(t, path, old)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		events := make(chan schemas.Event, 16)
		done := make(chan error, 1)
		go func() {
			done <- Follow(ctx, zaptest.NewLogger(t), path, FollowOptions{}, func(e schemas.Event) {
				events <- e
			})
		}()

		// Give the tail a moment to seek to the end before appending.
		time.Sleep(300 * time.Millisecond)
		fresh := feedEvent("task-1", schemas.EventTaskCompleted, "done")
		appendEventLine(t, path, fresh)

		select {
		case e := <-events:
			assert.Equal(t, fresh.ID, e.ID, "Only the freshly appended event should be delivered")
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for the appended event")
		}

		select {
		case e := <-events:
			t.Fatalf("unexpected extra event: %s", e.ID)
		case <-time.After(150 * time.Millisecond):
		}
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("Follow did not stop after cancellation")
		}
	})
}
