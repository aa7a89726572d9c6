// internal/executor/gui.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// InputDriver abstracts the OS-level input tool so the executor logic can be
// tested without a display server. Implementations translate the primitive
// operations into whatever tool the host platform provides.
type InputDriver interface {
	MoveMouse(ctx context.Context, x, y int) error
	Click(ctx context.Context, x, y int, double bool) error
	TypeText(ctx context.Context, text string) error
	PressKeys(ctx context.Context, combo string) error
	Scroll(ctx context.Context, amount int) error
	ActivateWindow(ctx context.Context, title string) error
}

// NewInputDriverForOS selects the driver for the current platform. Linux uses
// xdotool, macOS uses cliclick plus osascript for window activation.
func NewInputDriverForOS(logger *zap.Logger) (InputDriver, error) {
	switch runtime.GOOS {
	case "linux":
		return newXdotoolDriver(logger), nil
	case "darwin":
		return newCliclickDriver(logger), nil
	default:
		return nil, fmt.Errorf("no input driver available for GOOS %q", runtime.GOOS)
	}
}

// -- GUI Executor --

type guiHandler func(ctx context.Context, action *schemas.Action) (*schemas.ActionResult, error)

// mutatingGUIOps marks operations whose input events change desktop state.
// Their timed-out results are flagged non-idempotent so they are not re-run
// without the planner looking at the screen first.
var mutatingGUIOps = map[schemas.GUIOp]bool{
	schemas.GUIClick:       true,
	schemas.GUIDoubleClick: true,
	schemas.GUIType:        true,
	schemas.GUIPress:       true,
	schemas.GUIScroll:      true,
}

// GUIExecutor performs desktop input actions through an InputDriver. The
// WAIT_FOR_TEXT operation additionally polls the observation provider until
// the requested text shows up on screen.
type GUIExecutor struct {
	logger   *zap.Logger
	driver   InputDriver
	observer schemas.ObservationProvider
	cfg      config.GUIConfig
	handlers map[schemas.GUIOp]guiHandler
}

var _ schemas.ActionExecutor = (*GUIExecutor)(nil)

// NewGUIExecutor creates a GUI executor. The observation provider may be nil,
// in which case WAIT_FOR_TEXT reports an unsupported operation.
func NewGUIExecutor(logger *zap.Logger, cfg config.GUIConfig, driver InputDriver, observer schemas.ObservationProvider) *GUIExecutor {
	e := &GUIExecutor{
		logger:   logger.Named("gui_executor"),
		driver:   driver,
		observer: observer,
		cfg:      cfg,
	}
	e.handlers = map[schemas.GUIOp]guiHandler{
		schemas.GUIMove:           e.handleMove,
		schemas.GUIClick:          e.handleClick,
		schemas.GUIDoubleClick:    e.handleClick,
		schemas.GUIType:           e.handleType,
		schemas.GUIPress:          e.handlePress,
		schemas.GUIScroll:         e.handleScroll,
		schemas.GUIActivateWindow: e.handleActivateWindow,
		schemas.GUIWaitForText:    e.handleWaitForText,
	}
	return e
}

// Execute dispatches the GUI operation to its handler under the configured
// per-action timeout. WAIT_FOR_TEXT manages its own, longer deadline.
func (e *GUIExecutor) Execute(ctx context.Context, action *schemas.Action) (*schemas.ActionResult, error) {
	p := action.GUI
	if p == nil {
		return schemas.FailureResult(schemas.ErrCodeInternal, "action carries no GUI parameters"), nil
	}
	handler, ok := e.handlers[p.Op]
	if !ok {
		return schemas.FailureResult(schemas.ErrCodeUnsupported, fmt.Sprintf("unknown GUI operation: %s", p.Op)), nil
	}

	timeout := e.cfg.ActionTimeout
	if p.Op == schemas.GUIWaitForText {
		timeout = e.cfg.WaitTimeout
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := handler(opCtx, action)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			res := schemas.TimeoutResult(fmt.Sprintf("GUI %s did not finish within %s", p.Op, timeout))
			// Input may have partially landed before the deadline.
			res.NonIdempotent = mutatingGUIOps[p.Op]
			return res, nil
		}
		if ctx.Err() != nil {
			// Task-level cancellation or deadline. Surface it to the orchestrator.
			return nil, ctx.Err()
		}
		return schemas.FailureResult(schemas.ErrCodeExecution, err.Error()), nil
	}
	return result, nil
}

func (e *GUIExecutor) handleMove(ctx context.Context, action *schemas.Action) (*schemas.ActionResult, error) {
	p := action.GUI
	if err := e.driver.MoveMouse(ctx, p.X, p.Y); err != nil {
		return nil, err
	}
	return &schemas.ActionResult{
		Status: schemas.ResultSuccess,
		Output: fmt.Sprintf("moved pointer to (%d, %d)", p.X, p.Y),
	}, nil
}

func (e *GUIExecutor) handleClick(ctx context.Context, action *schemas.Action) (*schemas.ActionResult, error) {
	p := action.GUI
	double := p.Op == schemas.GUIDoubleClick
	if err := e.driver.Click(ctx, p.X, p.Y, double); err != nil {
		return nil, err
	}
	verb := "clicked"
	if double {
		verb = "double-clicked"
	}
	return &schemas.ActionResult{
		Status:        schemas.ResultSuccess,
		Output:        fmt.Sprintf("%s at (%d, %d)", verb, p.X, p.Y),
		NonIdempotent: true,
	}, nil
}

func (e *GUIExecutor) handleType(ctx context.Context, action *schemas.Action) (*schemas.ActionResult, error) {
	p := action.GUI
	if p.Text == "" {
		return schemas.FailureResult(schemas.ErrCodeExecution, "GUI TYPE requires non-empty text"), nil
	}
	if err := e.driver.TypeText(ctx, p.Text); err != nil {
		return nil, err
	}
	return &schemas.ActionResult{
		Status:        schemas.ResultSuccess,
		Output:        fmt.Sprintf("typed %d characters", len(p.Text)),
		NonIdempotent: true,
	}, nil
}

func (e *GUIExecutor) handlePress(ctx context.Context, action *schemas.Action) (*schemas.ActionResult, error) {
	p := action.GUI
	if p.Text == "" {
		return schemas.FailureResult(schemas.ErrCodeExecution, "GUI PRESS requires a key combination in 'text'"), nil
	}
	if err := e.driver.PressKeys(ctx, p.Text); err != nil {
		return nil, err
	}
	return &schemas.ActionResult{
		Status:        schemas.ResultSuccess,
		Output:        fmt.Sprintf("pressed %s", p.Text),
		NonIdempotent: true,
	}, nil
}

func (e *GUIExecutor) handleScroll(ctx context.Context, action *schemas.Action) (*schemas.ActionResult, error) {
	p := action.GUI
	amount := p.Amount
	if amount == 0 {
		amount = -3 // Default to a small scroll down.
	}
	if err := e.driver.Scroll(ctx, amount); err != nil {
		return nil, err
	}
	direction := "down"
	if amount > 0 {
		direction = "up"
	}
	return &schemas.ActionResult{
		Status: schemas.ResultSuccess,
		Output: fmt.Sprintf("scrolled %s by %d", direction, abs(amount)),
	}, nil
}

func (e *GUIExecutor) handleActivateWindow(ctx context.Context, action *schemas.Action) (*schemas.ActionResult, error) {
	p := action.GUI
	if p.Window == "" {
		return schemas.FailureResult(schemas.ErrCodeExecution, "GUI ACTIVATE_WINDOW requires a window title"), nil
	}
	if err := e.driver.ActivateWindow(ctx, p.Window); err != nil {
		return schemas.FailureResult(schemas.ErrCodeElementNotFound, fmt.Sprintf("could not activate window %q: %v", p.Window, err)), nil
	}
	return &schemas.ActionResult{
		Status: schemas.ResultSuccess,
		Output: fmt.Sprintf("activated window %q", p.Window),
	}, nil
}

// handleWaitForText polls fresh observations until the wanted text appears.
// Capture failures during a poll are tolerated; only the deadline ends the wait.
func (e *GUIExecutor) handleWaitForText(ctx context.Context, action *schemas.Action) (*schemas.ActionResult, error) {
	p := action.GUI
	if p.Text == "" {
		return schemas.FailureResult(schemas.ErrCodeExecution, "GUI WAIT_FOR_TEXT requires the text to wait for"), nil
	}
	if e.observer == nil {
		return schemas.FailureResult(schemas.ErrCodeUnsupported, "no observation provider configured for WAIT_FOR_TEXT"), nil
	}

	interval := e.cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	polls := 0
	for {
		obs, err := e.observer.Capture(ctx, action.TaskID, nil)
		polls++
		if err == nil && obs.Contains(p.Text) {
			return &schemas.ActionResult{
				Status: schemas.ResultSuccess,
				Output: fmt.Sprintf("text %q appeared after %d polls", p.Text, polls),
				Data:   map[string]interface{}{"polls": polls},
			}, nil
		}
		if err != nil {
			e.logger.Debug("Poll capture failed, retrying", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// -- xdotool driver (Linux) --

type xdotoolDriver struct {
	logger *zap.Logger
	tool   string
}

var _ InputDriver = (*xdotoolDriver)(nil)

func newXdotoolDriver(logger *zap.Logger) *xdotoolDriver {
	return &xdotoolDriver{logger: logger.Named("xdotool"), tool: "xdotool"}
}

func (d *xdotoolDriver) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, d.tool, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w (output: %s)", d.tool, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (d *xdotoolDriver) MoveMouse(ctx context.Context, x, y int) error {
	return d.run(ctx, "mousemove", strconv.Itoa(x), strconv.Itoa(y))
}

func (d *xdotoolDriver) Click(ctx context.Context, x, y int, double bool) error {
	if err := d.MoveMouse(ctx, x, y); err != nil {
		return err
	}
	if double {
		return d.run(ctx, "click", "--repeat", "2", "--delay", "120", "1")
	}
	return d.run(ctx, "click", "1")
}

func (d *xdotoolDriver) TypeText(ctx context.Context, text string) error {
	return d.run(ctx, "type", "--delay", "12", "--", text)
}

func (d *xdotoolDriver) PressKeys(ctx context.Context, combo string) error {
	return d.run(ctx, "key", "--", combo)
}

func (d *xdotoolDriver) Scroll(ctx context.Context, amount int) error {
	// X11 maps the wheel to buttons 4 (up) and 5 (down).
	button := "5"
	if amount > 0 {
		button = "4"
	}
	return d.run(ctx, "click", "--repeat", strconv.Itoa(abs(amount)), "--delay", "60", button)
}

func (d *xdotoolDriver) ActivateWindow(ctx context.Context, title string) error {
	return d.run(ctx, "search", "--name", title, "windowactivate", "--sync")
}

// -- cliclick driver (macOS) --

type cliclickDriver struct {
	logger *zap.Logger
	tool   string
}

var _ InputDriver = (*cliclickDriver)(nil)

func newCliclickDriver(logger *zap.Logger) *cliclickDriver {
	return &cliclickDriver{logger: logger.Named("cliclick"), tool: "cliclick"}
}

func (d *cliclickDriver) run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w (output: %s)", name, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (d *cliclickDriver) MoveMouse(ctx context.Context, x, y int) error {
	return d.run(ctx, d.tool, fmt.Sprintf("m:%d,%d", x, y))
}

func (d *cliclickDriver) Click(ctx context.Context, x, y int, double bool) error {
	spec := fmt.Sprintf("c:%d,%d", x, y)
	if double {
		spec = fmt.Sprintf("dc:%d,%d", x, y)
	}
	return d.run(ctx, d.tool, spec)
}

func (d *cliclickDriver) TypeText(ctx context.Context, text string) error {
	return d.run(ctx, d.tool, "t:"+text)
}

func (d *cliclickDriver) PressKeys(ctx context.Context, combo string) error {
	return d.run(ctx, d.tool, "kp:"+strings.ToLower(combo))
}

func (d *cliclickDriver) Scroll(ctx context.Context, amount int) error {
	// cliclick has no wheel support, so fall back to page keys.
	key := "page-down"
	if amount > 0 {
		key = "page-up"
	}
	for i := 0; i < abs(amount); i++ {
		if err := d.run(ctx, d.tool, "kp:"+key); err != nil {
			return err
		}
	}
	return nil
}

func (d *cliclickDriver) ActivateWindow(ctx context.Context, title string) error {
	script := fmt.Sprintf(`tell application %q to activate`, title)
	return d.run(ctx, "osascript", "-e", script)
}
