// internal/eventlog/follow.go
package eventlog

import (
	"context"
	"fmt"

	"github.com/hpcloud/tail"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// FollowOptions controls where a follow starts reading.
type FollowOptions struct {
	// FromStart replays the whole log before following new lines. The
	// default picks up at the current end of file.
	FromStart bool
}

// Follow tails the event log at path and invokes fn for each decoded event
// until ctx is cancelled. Lines that do not decode as events are skipped
// with a warning so a corrupt line cannot stall the feed.
func Follow(ctx context.Context, logger *zap.Logger, path string, opts FollowOptions, fn func(schemas.Event)) error {
	logger = logger.Named("event_follow")

	location := &tail.SeekInfo{Offset: 0, Whence: 2}
	if opts.FromStart {
		location = nil
	}
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Location:  location,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail event log %s: %w", path, err)
	}
	defer func() {
		t.Stop()
		t.Cleanup()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				logger.Warn("Error reading event log line", zap.Error(line.Err))
				continue
			}
			if line.Text == "" {
				continue
			}

			var event schemas.Event
			if err := json.Unmarshal([]byte(line.Text), &event); err != nil {
				logger.Warn("Skipping undecodable event line", zap.Error(err))
				continue
			}
			fn(event)
		}
	}
}
