package cmd

import (
	"errors"
	"fmt"
	"os"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/observability"
	"github.com/xkilldash9x/deskpilot/internal/store"
)

// newShowCmd creates and configures the `show` command.
func newShowCmd() *cobra.Command {
	showCmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Displays an archived task and its step history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			taskID := args[0]

			if !cfg.Store.Enabled || cfg.Store.URL == "" {
				return fmt.Errorf("the archive is not configured (set store.enabled and store.url)")
			}

			pool, err := store.Connect(ctx, cfg.Store.URL)
			if err != nil {
				return fmt.Errorf("failed to connect to archive database: %w", err)
			}
			archive, err := store.New(ctx, pool, logger, cfg.Store.CompressMinBytes)
			if err != nil {
				pool.Close()
				return fmt.Errorf("failed to initialize archive: %w", err)
			}
			defer archive.Close()

			task, err := archive.GetTask(ctx, taskID)
			if err != nil {
				if errors.Is(err, store.ErrTaskNotFound) {
					return fmt.Errorf("no archived task with id %s", taskID)
				}
				return fmt.Errorf("failed to load task: %w", err)
			}

			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(task)
			}

			printArchivedTask(task)
			return nil
		},
	}

	showCmd.Flags().Bool("json", false, "Print the full task record as indented JSON.")

	return showCmd
}

// printArchivedTask renders a task and its history in a compact form.
func printArchivedTask(task *schemas.Task) {
	fmt.Printf("Task %s\n", task.ID)
	fmt.Printf("Goal:      %s\n", task.Goal.Text)
	fmt.Printf("Status:    %s\n", task.Status)
	if task.Summary != "" {
		fmt.Printf("Summary:   %s\n", task.Summary)
	}
	if task.Reason != "" {
		fmt.Printf("Reason:    %s\n", task.Reason)
		if task.Detail != "" {
			fmt.Printf("Detail:    %s\n", task.Detail)
		}
	}
	fmt.Printf("Submitted: %s\n", task.SubmittedAt.Format("2006-01-02 15:04:05"))
	if !task.EndedAt.IsZero() {
		fmt.Printf("Ended:     %s\n", task.EndedAt.Format("2006-01-02 15:04:05"))
	}

	if len(task.Steps) == 0 {
		fmt.Println("\nNo steps recorded.")
		return
	}

	fmt.Printf("\nSteps (%d):\n", len(task.Steps))
	for _, s := range task.Steps {
		marker := " "
		if !s.Result.OK() {
			marker = "!"
		}
		fmt.Printf("  %s %2d. %-24s %-9s attempts=%d screen_changed=%t\n",
			marker, s.Index, s.Action.Describe(), s.Result.Status, s.Attempts, s.ScreenChanged)
		if s.Result.ErrDetail != "" {
			fmt.Printf("        %s: %s\n", s.Result.ErrCode, s.Result.ErrDetail)
		}
	}
}
