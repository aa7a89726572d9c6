package executor

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// -- Test Doubles --

type driverCall struct {
	op     string
	x, y   int
	double bool
	text   string
	amount int
}

// fakeInputDriver records every call and replays configured errors. Ops listed
// in blockOps hang until the context dies, which drives the timeout paths.
type fakeInputDriver struct {
	mu       sync.Mutex
	calls    []driverCall
	errs     map[string]error
	blockOps map[string]bool
}

func newFakeInputDriver() *fakeInputDriver {
	return &fakeInputDriver{
		errs:     map[string]error{},
		blockOps: map[string]bool{},
	}
}

func (f *fakeInputDriver) record(ctx context.Context, c driverCall) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	block := f.blockOps[c.op]
	err := f.errs[c.op]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeInputDriver) MoveMouse(ctx context.Context, x, y int) error {
	return f.record(ctx, driverCall{op: "move", x: x, y: y})
}

func (f *fakeInputDriver) Click(ctx context.Context, x, y int, double bool) error {
	return f.record(ctx, driverCall{op: "click", x: x, y: y, double: double})
}

func (f *fakeInputDriver) TypeText(ctx context.Context, text string) error {
	return f.record(ctx, driverCall{op: "type", text: text})
}

func (f *fakeInputDriver) PressKeys(ctx context.Context, combo string) error {
	return f.record(ctx, driverCall{op: "press", text: combo})
}

func (f *fakeInputDriver) Scroll(ctx context.Context, amount int) error {
	return f.record(ctx, driverCall{op: "scroll", amount: amount})
}

func (f *fakeInputDriver) ActivateWindow(ctx context.Context, title string) error {
	return f.record(ctx, driverCall{op: "activate", text: title})
}

func (f *fakeInputDriver) last(t *testing.T) driverCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

// fakeScreenProvider replays a scripted sequence of screen texts, one per
// Capture call. Entries in errs fail the corresponding call instead.
type fakeScreenProvider struct {
	mu         sync.Mutex
	calls      int
	errs       []error
	texts      []string
	lastTaskID string
}

func (f *fakeScreenProvider) Capture(ctx context.Context, taskID string, roi *schemas.BoundingBox) (*schemas.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	f.lastTaskID = taskID

	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	text := ""
	if len(f.texts) > 0 {
		if idx >= len(f.texts) {
			idx = len(f.texts) - 1
		}
		text = f.texts[idx]
	}
	return &schemas.Observation{
		TaskID:  taskID,
		Regions: []schemas.TextRegion{{Text: text}},
	}, nil
}

func setupGUIExecutor(t *testing.T, cfg config.GUIConfig, observer schemas.ObservationProvider) (*GUIExecutor, *fakeInputDriver) {
	t.Helper()
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 2 * time.Second
	}
	driver := newFakeInputDriver()
	return NewGUIExecutor(zaptest.NewLogger(t), cfg, driver, observer), driver
}

func runGUI(t *testing.T, exec *GUIExecutor, p schemas.GUIParams) *schemas.ActionResult {
	t.Helper()
	res, err := exec.Execute(context.Background(), &schemas.Action{Kind: schemas.KindGUI, GUI: &p})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

// -- Tests --

func TestGUIDispatch(t *testing.T) {
	t.Run("should move the pointer", func(t *testing.T) {
		exec, driver := setupGUIExecutor(t, config.GUIConfig{}, nil)
		res := runGUI(t, exec, schemas.GUIParams{Op: schemas.GUIMove, X: 10, Y: 20})

		require.True(t, res.OK())
		assert.Equal(t, "moved pointer to (10, 20)", res.Output)
		assert.False(t, res.NonIdempotent)
		assert.Equal(t, driverCall{op: "move", x: 10, y: 20}, driver.last(t))
	})

	t.Run("should click and mark the result non-idempotent", func(t *testing.T) {
		exec, driver := setupGUIExecutor(t, config.GUIConfig{}, nil)
		res := runGUI(t, exec, schemas.GUIParams{Op: schemas.GUIClick, X: 5, Y: 6})

		require.True(t, res.OK())
		assert.Equal(t, "clicked at (5, 6)", res.Output)
		assert.True(t, res.NonIdempotent)
		assert.False(t, driver.last(t).double)
	})

	t.Run("should double click", func(t *testing.T) {
		exec, driver := setupGUIExecutor(t, config.GUIConfig{}, nil)
		res := runGUI(t, exec, schemas.GUIParams{Op: schemas.GUIDoubleClick, X: 5, Y: 6})

		assert.Equal(t, "double-clicked at (5, 6)", res.Output)
		assert.True(t, driver.last(t).double)
	})

	t.Run("should type text", func(t *testing.T) {
		exec, driver := setupGUIExecutor(t, config.GUIConfig{}, nil)
		res := runGUI(t, exec, schemas.GUIParams{Op: schemas.GUIType, Text: "hello"})

		assert.Equal(t, "typed 5 characters", res.Output)
		assert.True(t, res.NonIdempotent)
		assert.Equal(t, "hello", driver.last(t).text)
	})

	t.Run("should reject TYPE without text", func(t *testing.T) {
		exec, driver := setupGUIExecutor(t, config.GUIConfig{}, nil)
		res := runGUI(t, exec, schemas.GUIParams{Op: schemas.GUIType})

		assert.Equal(t, schemas.ErrCodeExecution, res.ErrCode)
		assert.Equal(t, "GUI TYPE requires non-empty text", res.ErrDetail)
		assert.Empty(t, driver.calls)
	})

	t.Run("should press key combinations", func(t *testing.T) {
		exec, driver := setupGUIExecutor(t, config.GUIConfig{}, nil)
		res := runGUI(t, exec, schemas.GUIParams{Op: schemas.GUIPress, Text: "ctrl+s"})

		assert.Equal(t, "pressed ctrl+s", res.Output)
		assert.True(t, res.NonIdempotent)
		assert.Equal(t, "ctrl+s", driver.last(t).text)
	})

	t.Run("should reject PRESS without a combination", func(t *testing.T) {
		exec, _ := setupGUIExecutor(t, config.GUIConfig{}, nil)
		res := runGUI(t, exec, schemas.GUIParams{Op: schemas.GUIPress})

		assert.Equal(t, "GUI PRESS requires a key combination in 'text'", res.ErrDetail)
	})

	t.Run("should scroll down by a default amount", func(t *testing.T) {
		exec, driver := setupGUIExecutor(t, config.GUIConfig{}, nil)
		res := runGUI(t, exec, schemas.GUIParams{Op: schemas.GUIScroll})

		assert.Equal(t, "scrolled down by 3", res.Output)
		assert.Equal(t, -3, driver.last(t).amount)
	})

	t.Run("should scroll up when the amount is positive", func(t *testing.T) {
		exec, driver := setupGUIExecutor(t, config.GUIConfig{}, nil)
		res := runGUI(t, exec, schemas.GUIParams{Op: schemas.GUIScroll, Amount: 2})

		assert.Equal(t, "scrolled up by 2", res.Output)
		assert.Equal(t, 2, driver.last(t).amount)
	})

	t.Run("should activate a window", func(t *testing.T) {
		exec, driver := setupGUIExecutor(t, config.GUIConfig{}, nil)
		res := runGUI(t, exec, schemas.GUIParams{Op: schemas.GUIActivateWindow, Window: "Calculator"})

		require.True(t, res.OK())
		assert.Equal(t, `activated window "Calculator"`, res.Output)
		assert.Equal(t, "Calculator", driver.last(t).text)
	})

	t.Run("should report a window that cannot be activated", func(t *testing.T) {
		exec, driver := setupGUIExecutor(t, config.GUIConfig{}, nil)
		driver.errs["activate"] = errors.New("no window matched")

		res := runGUI(t, exec, schemas.GUIParams{Op: schemas.GUIActivateWindow, Window: "Ghost"})

		assert.Equal(t, schemas.ErrCodeElementNotFound, res.ErrCode)
		assert.Equal(t, `could not activate window "Ghost": no window matched`, res.ErrDetail)
	})

	t.Run("should reject ACTIVATE_WINDOW without a title", func(t *testing.T) {
		exec, _ := setupGUIExecutor(t, config.GUIConfig{}, nil)
		res := runGUI(t, exec, schemas.GUIParams{Op: schemas.GUIActivateWindow})

		assert.Equal(t, "GUI ACTIVATE_WINDOW requires a window title", res.ErrDetail)
	})

	t.Run("should turn driver errors into execution failures", func(t *testing.T) {
		exec, driver := setupGUIExecutor(t, config.GUIConfig{}, nil)
		driver.errs["click"] = errors.New("no display server")

		res := runGUI(t, exec, schemas.GUIParams{Op: schemas.GUIClick, X: 1, Y: 1})

		assert.Equal(t, schemas.ResultFailed, res.Status)
		assert.Equal(t, schemas.ErrCodeExecution, res.ErrCode)
		assert.Equal(t, "no display server", res.ErrDetail)
	})

	t.Run("should fail unknown operations", func(t *testing.T) {
		exec, _ := setupGUIExecutor(t, config.GUIConfig{}, nil)
		res := runGUI(t, exec, schemas.GUIParams{Op: schemas.GUIOp("HOVER")})

		assert.Equal(t, schemas.ErrCodeUnsupported, res.ErrCode)
		assert.Equal(t, "unknown GUI operation: HOVER", res.ErrDetail)
	})

	t.Run("should fail when the action carries no GUI parameters", func(t *testing.T) {
		exec, _ := setupGUIExecutor(t, config.GUIConfig{}, nil)
		res, err := exec.Execute(context.Background(), &schemas.Action{Kind: schemas.KindGUI})

		require.NoError(t, err)
		assert.Equal(t, schemas.ErrCodeInternal, res.ErrCode)
		assert.Equal(t, "action carries no GUI parameters", res.ErrDetail)
	})
}

func TestGUITimeouts(t *testing.T) {
	t.Run("should mark a timed-out mutating op non-idempotent", func(t *testing.T) {
		exec, driver := setupGUIExecutor(t, config.GUIConfig{ActionTimeout: 50 * time.Millisecond}, nil)
		driver.blockOps["type"] = true

		res := runGUI(t, exec, schemas.GUIParams{Op: schemas.GUIType, Text: "slow"})

		assert.Equal(t, schemas.ResultTimedOut, res.Status)
		assert.Equal(t, schemas.ErrCodeTimeout, res.ErrCode)
		assert.Equal(t, "GUI TYPE did not finish within 50ms", res.ErrDetail)
		assert.True(t, res.NonIdempotent)
	})

	t.Run("should leave a timed-out read-only op retryable", func(t *testing.T) {
		exec, driver := setupGUIExecutor(t, config.GUIConfig{ActionTimeout: 50 * time.Millisecond}, nil)
		driver.blockOps["move"] = true

		res := runGUI(t, exec, schemas.GUIParams{Op: schemas.GUIMove, X: 1, Y: 1})

		assert.Equal(t, schemas.ResultTimedOut, res.Status)
		assert.False(t, res.NonIdempotent)
	})

	t.Run("should surface parent cancellation as an error", func(t *testing.T) {
		exec, driver := setupGUIExecutor(t, config.GUIConfig{}, nil)
		driver.blockOps["press"] = true

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(30*time.Millisecond, cancel)
		res, err := exec.Execute(ctx, &schemas.Action{
			Kind: schemas.KindGUI,
			GUI:  &schemas.GUIParams{Op: schemas.GUIPress, Text: "ctrl+q"},
		})

		assert.Nil(t, res)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestGUIWaitForText(t *testing.T) {
	quickPoll := config.GUIConfig{PollInterval: 10 * time.Millisecond, WaitTimeout: 2 * time.Second}

	t.Run("should succeed once the text shows up", func(t *testing.T) {
		screen := &fakeScreenProvider{texts: []string{"", "", "Download complete"}}
		exec, _ := setupGUIExecutor(t, quickPoll, screen)

		res, err := exec.Execute(context.Background(), &schemas.Action{
			Kind:   schemas.KindGUI,
			TaskID: "task-9",
			GUI:    &schemas.GUIParams{Op: schemas.GUIWaitForText, Text: "download complete"},
		})

		require.NoError(t, err)
		require.True(t, res.OK())
		assert.Equal(t, `text "download complete" appeared after 3 polls`, res.Output)
		assert.Equal(t, 3, res.Data["polls"])
		assert.Equal(t, "task-9", screen.lastTaskID)
	})

	t.Run("should keep polling through capture failures", func(t *testing.T) {
		screen := &fakeScreenProvider{
			errs:  []error{errors.New("capture busy"), errors.New("capture busy")},
			texts: []string{"", "", "Ready"},
		}
		exec, _ := setupGUIExecutor(t, quickPoll, screen)

		res := runGUI(t, exec, schemas.GUIParams{Op: schemas.GUIWaitForText, Text: "Ready"})

		require.True(t, res.OK())
		assert.Equal(t, 3, res.Data["polls"])
	})

	t.Run("should time out when the text never appears", func(t *testing.T) {
		screen := &fakeScreenProvider{texts: []string{"nothing here"}}
		cfg := quickPoll
		cfg.WaitTimeout = 80 * time.Millisecond
		exec, _ := setupGUIExecutor(t, cfg, screen)

		res := runGUI(t, exec, schemas.GUIParams{Op: schemas.GUIWaitForText, Text: "Ready"})

		assert.Equal(t, schemas.ResultTimedOut, res.Status)
		assert.Equal(t, "GUI WAIT_FOR_TEXT did not finish within 80ms", res.ErrDetail)
		assert.False(t, res.NonIdempotent)
	})

	t.Run("should require the text to wait for", func(t *testing.T) {
		exec, _ := setupGUIExecutor(t, quickPoll, &fakeScreenProvider{})
		res := runGUI(t, exec, schemas.GUIParams{Op: schemas.GUIWaitForText})

		assert.Equal(t, "GUI WAIT_FOR_TEXT requires the text to wait for", res.ErrDetail)
	})

	t.Run("should fail without an observation provider", func(t *testing.T) {
		exec, _ := setupGUIExecutor(t, quickPoll, nil)
		res := runGUI(t, exec, schemas.GUIParams{Op: schemas.GUIWaitForText, Text: "anything"})

		assert.Equal(t, schemas.ErrCodeUnsupported, res.ErrCode)
		assert.Equal(t, "no observation provider configured for WAIT_FOR_TEXT", res.ErrDetail)
	})
}

func TestNewInputDriverForOS(t *testing.T) {
	driver, err := NewInputDriverForOS(zaptest.NewLogger(t))
	switch runtime.GOOS {
	case "linux":
		require.NoError(t, err)
		assert.IsType(t, &xdotoolDriver{}, driver)
	case "darwin":
		require.NoError(t, err)
		assert.IsType(t, &cliclickDriver{}, driver)
	default:
		assert.Error(t, err)
	}
}
