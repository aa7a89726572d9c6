// File: cmd/show_test.go
package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

func TestShowCmdValidation(t *testing.T) {
	resetForTest(t)

	_, err := executeCommand(t, context.Background(), "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s), received 0")
}

func TestPrintArchivedTask(t *testing.T) {
	submitted := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	ended := submitted.Add(4 * time.Minute)

	t.Run("should render a failed task with its step history", func(t *testing.T) {
		task := &schemas.Task{
			ID:          "task-9f3",
			Goal:        schemas.Goal{Text: "open the calculator"},
			Status:      schemas.StatusFailed,
			Reason:      schemas.ReasonUnrecoverable,
			Detail:      "the calculator package is not installed",
			SubmittedAt: submitted,
			EndedAt:     ended,
			Steps: []schemas.Step{
				{
					Index: 0,
					Action: schemas.Action{
						Kind:   schemas.KindSystem,
						System: &schemas.SystemParams{Op: schemas.SystemLaunch, App: "gnome-calculator"},
					},
					Result:        schemas.ActionResult{Status: schemas.ResultSuccess},
					Attempts:      1,
					ScreenChanged: true,
				},
				{
					Index: 1,
					Action: schemas.Action{
						Kind: schemas.KindGUI,
						GUI:  &schemas.GUIParams{Op: schemas.GUIWaitForText, Text: "Calculator"},
					},
					Result: schemas.ActionResult{
						Status:    schemas.ResultFailed,
						ErrCode:   schemas.ErrCodeElementNotFound,
						ErrDetail: "text never appeared",
					},
					Attempts: 3,
				},
			},
		}

		buf, cleanup := captureStdout(t)
		printArchivedTask(task)
		cleanup()

		out := buf.String()
		assert.Contains(t, out, "Task task-9f3")
		assert.Contains(t, out, "Goal:      open the calculator")
		assert.Contains(t, out, "Status:    FAILED")
		assert.Contains(t, out, "Reason:    UNRECOVERABLE")
		assert.Contains(t, out, "Detail:    the calculator package is not installed")
		assert.Contains(t, out, "Submitted: 2025-03-14 09:26:53")
		assert.Contains(t, out, "Ended:     2025-03-14 09:30:53")
		assert.Contains(t, out, "Steps (2):")
		assert.Contains(t, out, "SYSTEM/LAUNCH_APP")
		assert.Contains(t, out, "attempts=1 screen_changed=true")
		assert.Contains(t, out, "! ")
		assert.Contains(t, out, "GUI/WAIT_FOR_TEXT")
		assert.Contains(t, out, "attempts=3 screen_changed=false")
		assert.Contains(t, out, "ELEMENT_NOT_FOUND: text never appeared")
	})

	t.Run("should render a completed task without steps", func(t *testing.T) {
		task := &schemas.Task{
			ID:          "task-a41",
			Goal:        schemas.Goal{Text: "check the weather"},
			Status:      schemas.StatusCompleted,
			Summary:     "the forecast is sunny",
			SubmittedAt: submitted,
			EndedAt:     ended,
		}

		buf, cleanup := captureStdout(t)
		printArchivedTask(task)
		cleanup()

		out := buf.String()
		assert.Contains(t, out, "Status:    COMPLETED")
		assert.Contains(t, out, "Summary:   the forecast is sunny")
		assert.Contains(t, out, "No steps recorded.")
		assert.NotContains(t, out, "Reason:")
	})
}
