// File: cmd/run_test.go
package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// -- Test Cases --

func TestConstraintsFromFlags(t *testing.T) {
	t.Run("should leave everything unset when no flags are given", func(t *testing.T) {
		runCmd := newRunCmd()
		require.NoError(t, runCmd.ParseFlags(nil))

		c := constraintsFromFlags(runCmd)
		assert.Zero(t, c.MaxSteps)
		assert.Zero(t, c.MaxDuration)
		assert.Nil(t, c.AllowedKinds)
	})

	t.Run("should translate the budget flags", func(t *testing.T) {
		runCmd := newRunCmd()
		require.NoError(t, runCmd.ParseFlags([]string{"--max-steps=7", "--max-duration=3m"}))

		c := constraintsFromFlags(runCmd)
		assert.Equal(t, 7, c.MaxSteps)
		assert.Equal(t, 3*time.Minute, c.MaxDuration)
		assert.Nil(t, c.AllowedKinds)
	})

	t.Run("should normalize action kinds to their canonical form", func(t *testing.T) {
		runCmd := newRunCmd()
		require.NoError(t, runCmd.ParseFlags([]string{"--kinds=gui, browser", "--kinds=File"}))

		c := constraintsFromFlags(runCmd)
		assert.Equal(t, []schemas.ActionKind{
			schemas.KindGUI,
			schemas.KindBrowser,
			schemas.KindFile,
		}, c.AllowedKinds)
	})
}

func TestRunCmdValidation(t *testing.T) {
	resetForTest(t)

	_, err := executeCommand(t, context.Background(), "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestPrintOutcome(t *testing.T) {
	submitted := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	started := submitted.Add(2 * time.Second)
	ended := started.Add(90 * time.Second)

	t.Run("should report a completed task", func(t *testing.T) {
		buf, cleanup := captureStdout(t)

		task := &schemas.Task{
			ID:          "task-1",
			Goal:        schemas.Goal{Text: "open the calculator"},
			Status:      schemas.StatusCompleted,
			Summary:     "opened the calculator",
			Detail:      "verification observed the calculator window",
			Steps:       []schemas.Step{{Index: 0}, {Index: 1}},
			SubmittedAt: submitted,
			StartedAt:   started,
			EndedAt:     ended,
		}
		printOutcome(task)
		cleanup()

		out := buf.String()
		assert.Contains(t, out, "Task task-1: COMPLETED")
		assert.Contains(t, out, "Steps: 2")
		assert.Contains(t, out, "Elapsed: 1m30s")
		assert.Contains(t, out, "Summary: opened the calculator")
		assert.Contains(t, out, "Verification: verification observed the calculator window")
	})

	t.Run("should report the reason for a failed task", func(t *testing.T) {
		buf, cleanup := captureStdout(t)

		task := &schemas.Task{
			ID:          "task-2",
			Goal:        schemas.Goal{Text: "tidy the downloads folder"},
			Status:      schemas.StatusFailed,
			Reason:      schemas.ReasonBudgetExhausted,
			Detail:      "step budget of 25 reached",
			SubmittedAt: submitted,
			StartedAt:   started,
		}
		printOutcome(task)
		cleanup()

		out := buf.String()
		assert.Contains(t, out, "Task task-2: FAILED")
		assert.Contains(t, out, "Reason: BUDGET_EXHAUSTED")
		assert.Contains(t, out, "Detail: step budget of 25 reached")
	})

	t.Run("should tolerate a missing task", func(t *testing.T) {
		buf, cleanup := captureStdout(t)
		printOutcome(nil)
		cleanup()

		assert.Contains(t, buf.String(), "No final task state available.")
	})
}
