package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/eventlog"
	"github.com/xkilldash9x/deskpilot/internal/executor"
	"github.com/xkilldash9x/deskpilot/internal/llmclient"
	"github.com/xkilldash9x/deskpilot/internal/observability"
	"github.com/xkilldash9x/deskpilot/internal/observer"
	"github.com/xkilldash9x/deskpilot/internal/orchestrator"
	"github.com/xkilldash9x/deskpilot/internal/planner"
	"github.com/xkilldash9x/deskpilot/internal/store"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run \"goal ...\"",
		Short: "Submits a goal and drives it to a terminal status",
		Long: `Run submits a natural language goal and blocks until the task reaches
COMPLETED, FAILED or CANCELLED. Progress is printed as it happens; the same
feed is appended to the event log for 'deskpilot watch'.`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags onto their Viper keys so command-line values override
			// the config file and environment with the right precedence.
			if err := viper.BindPFlag("executors.browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			if err := viper.BindPFlag("event_log.path", cmd.Flags().Lookup("event-log")); err != nil {
				return err
			}
			return viper.BindPFlag("orchestrator.verify_completion", cmd.Flags().Lookup("verify"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// The context from main is signal-aware; Ctrl+C cancels the task.
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-resolve the config now that the flags are bound.
			finalCfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to resolve config with flag overrides: %w", err)
			}
			cfg = finalCfg

			goalText := strings.Join(args, " ")
			goal := schemas.Goal{Text: goalText, Constraints: constraintsFromFlags(cmd)}

			logger.Info("Submitting goal",
				zap.String("goal", goalText),
				zap.Int("max_steps_override", goal.Constraints.MaxSteps),
				zap.Duration("max_duration_override", goal.Constraints.MaxDuration))

			components, err := initializeRunComponents(ctx, cfg, logger)
			if err != nil {
				if components != nil {
					components.Shutdown()
				}
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			task, err := components.Orchestrator.Submit(goal)
			if err != nil {
				return fmt.Errorf("failed to submit goal: %w", err)
			}
			fmt.Printf("Task %s submitted.\n\n", task.ID)

			final, err := components.Orchestrator.Wait(ctx, task.ID)
			if err != nil && ctx.Err() != nil {
				// Interrupted. Cancel the task and give the loop a moment to
				// unwind cleanly before reporting.
				logger.Warn("Interrupt received, cancelling task", zap.String("task_id", task.ID))
				_ = components.Orchestrator.Cancel(task.ID)
				graceCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				final, _ = components.Orchestrator.Wait(graceCtx, task.ID)
			} else if err != nil {
				return fmt.Errorf("failed waiting for task: %w", err)
			}

			printOutcome(final)

			switch final.Status {
			case schemas.StatusCompleted:
				return nil
			case schemas.StatusCancelled:
				return context.Canceled
			default:
				return fmt.Errorf("task %s: %s", final.ID, final.Reason)
			}
		},
	}

	// Per-task constraint overrides.
	runCmd.Flags().Int("max-steps", 0, "Step budget for this task. (Overrides config)")
	runCmd.Flags().Duration("max-duration", 0, "Wall-time budget for this task. (Overrides config)")
	runCmd.Flags().StringSlice("kinds", nil, "Restrict the planner to these action kinds (e.g. GUI,BROWSER).")

	// Config override flags.
	runCmd.Flags().Bool("headless", false, "Run the browser headless. (Overrides config/env)")
	runCmd.Flags().String("event-log", "", "Event log path. (Overrides config/env)")
	runCmd.Flags().Bool("verify", true, "Verify COMPLETE verdicts against a final observation. (Overrides config/env)")

	return runCmd
}

// constraintsFromFlags translates the per-task override flags into goal
// constraints. Unset flags leave the zero value, which means "use defaults".
func constraintsFromFlags(cmd *cobra.Command) schemas.Constraints {
	var c schemas.Constraints
	c.MaxSteps, _ = cmd.Flags().GetInt("max-steps")
	c.MaxDuration, _ = cmd.Flags().GetDuration("max-duration")

	kinds, _ := cmd.Flags().GetStringSlice("kinds")
	for _, k := range kinds {
		c.AllowedKinds = append(c.AllowedKinds, schemas.ActionKind(strings.ToUpper(strings.TrimSpace(k))))
	}
	return c
}

// runComponents holds the initialized services behind one task run.
type runComponents struct {
	Orchestrator   *orchestrator.Orchestrator
	LLM            schemas.LLMClient
	Events         schemas.EventSink
	Archive        *store.Store
	browserCleanup func() error
	logger         *zap.Logger
}

// Shutdown gracefully closes all components in dependency order.
func (rc *runComponents) Shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if rc.Orchestrator != nil {
		if err := rc.Orchestrator.Shutdown(shutdownCtx); err != nil {
			rc.logger.Warn("Orchestrator shutdown incomplete", zap.Error(err))
		}
	}
	if rc.browserCleanup != nil {
		if err := rc.browserCleanup(); err != nil {
			rc.logger.Warn("Error during browser shutdown", zap.Error(err))
		}
	}
	if rc.LLM != nil {
		if err := rc.LLM.Close(); err != nil {
			rc.logger.Warn("Error closing LLM client", zap.Error(err))
		}
	}
	if rc.Events != nil {
		if err := rc.Events.Close(); err != nil {
			rc.logger.Warn("Error closing event sink", zap.Error(err))
		}
	}
	if rc.Archive != nil {
		rc.Archive.Close()
	}
}

// initializeRunComponents handles dependency injection for a task run.
func initializeRunComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runComponents, error) {
	components := &runComponents{logger: logger}

	// 1. LLM router (fast + powerful tiers).
	llm, err := llmclient.NewRouterFromConfig(cfg.LLM, logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize LLM clients: %w", err)
	}
	components.LLM = llm

	// 2. Planner.
	plnr := planner.New(llm, logger)

	// 3. Observation provider (screen capture + OCR + active window).
	capturer, err := observer.NewExecCapturer(cfg.Observer, logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize screen capturer: %w", err)
	}
	extractor := observer.NewTesseractExtractor(cfg.Observer, logger)
	obsProvider := observer.New(capturer, extractor, cfg.Observer, logger,
		observer.WithWindowInspector(observer.NewExecWindowInspector(cfg.Observer)))

	// 4. Executor registry.
	registry, browserCleanup, err := executor.NewDefaultRegistry(logger, cfg, llm, obsProvider)
	if err != nil {
		return components, fmt.Errorf("failed to initialize executors: %w", err)
	}
	components.browserCleanup = browserCleanup

	// 5. Event feed: console plus the JSONL log for `deskpilot watch`.
	sinks := []schemas.EventSink{eventlog.NewWriterSink(os.Stdout)}
	if cfg.EventLog.Path != "" {
		fileSink, err := eventlog.NewFileSink(logger, cfg.EventLog.Path)
		if err != nil {
			logger.Warn("Event log unavailable, continuing without it", zap.Error(err))
		} else {
			sinks = append(sinks, fileSink)
		}
	}
	events := eventlog.NewFanoutSink(sinks...)
	components.Events = events

	// 6. Optional Postgres archive.
	var opts []orchestrator.Option
	if cfg.Store.Enabled {
		pool, err := store.Connect(ctx, cfg.Store.URL)
		if err != nil {
			return components, fmt.Errorf("failed to connect to archive database: %w", err)
		}
		archive, err := store.New(ctx, pool, logger, cfg.Store.CompressMinBytes)
		if err != nil {
			pool.Close()
			return components, fmt.Errorf("failed to initialize archive: %w", err)
		}
		components.Archive = archive
		opts = append(opts, orchestrator.WithArchive(archive))
	}

	// 7. Orchestrator.
	orch, err := orchestrator.New(cfg.Orchestrator, logger, plnr, registry, obsProvider, events, opts...)
	if err != nil {
		return components, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	components.Orchestrator = orch

	return components, nil
}

// printOutcome renders the terminal task state for the operator.
func printOutcome(task *schemas.Task) {
	if task == nil {
		fmt.Println("\nNo final task state available.")
		return
	}

	var elapsed time.Duration
	if !task.StartedAt.IsZero() && !task.EndedAt.IsZero() {
		elapsed = task.EndedAt.Sub(task.StartedAt).Round(time.Millisecond)
	}

	fmt.Printf("\nTask %s: %s\n", task.ID, task.Status)
	fmt.Printf("Steps: %d", len(task.Steps))
	if elapsed > 0 {
		fmt.Printf("  Elapsed: %s", elapsed)
	}
	fmt.Println()

	switch task.Status {
	case schemas.StatusCompleted:
		fmt.Printf("Summary: %s\n", task.Summary)
		if task.Detail != "" {
			fmt.Printf("Verification: %s\n", task.Detail)
		}
	case schemas.StatusFailed:
		fmt.Printf("Reason: %s\n", task.Reason)
		if task.Detail != "" {
			fmt.Printf("Detail: %s\n", task.Detail)
		}
	}
}

