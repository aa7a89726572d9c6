package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/eventlog"
	"github.com/xkilldash9x/deskpilot/internal/observability"
)

// newWatchCmd creates and configures the `watch` command.
func newWatchCmd() *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follows the event feed of running tasks",
		Long: `Watch tails the JSONL event log that every run appends to, rendering
each event as it arrives. Use it from a second terminal to observe a
task that was started elsewhere.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlag("event_log.path", cmd.Flags().Lookup("event-log"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			path := viper.GetString("event_log.path")
			if path == "" {
				return fmt.Errorf("no event log configured (set event_log.path or pass --event-log)")
			}
			fromStart, _ := cmd.Flags().GetBool("from-start")

			logger.Info("Following event log", zap.String("path", path), zap.Bool("from_start", fromStart))
			fmt.Printf("Watching %s (Ctrl+C to stop)\n\n", path)

			err := eventlog.Follow(ctx, logger, path, eventlog.FollowOptions{FromStart: fromStart}, func(e schemas.Event) {
				fmt.Fprintln(os.Stdout, eventlog.FormatEvent(e))
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	watchCmd.Flags().Bool("from-start", false, "Replay the whole log before following new events.")
	watchCmd.Flags().String("event-log", "", "Event log path. (Overrides config/env)")

	return watchCmd
}
