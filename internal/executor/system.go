// internal/executor/system.go
package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// builtinBlocked lists command fragments that are never allowed to run, no
// matter what the planner asks for. Matching is case-insensitive on
// whitespace-normalized input.
var builtinBlocked = []string{
	"rm -rf /",
	"rm -rf /*",
	"mkfs",
	"dd if=",
	"> /dev/sd",
	"shutdown",
	"reboot",
	"poweroff",
	"halt",
	"init 0",
	"init 6",
	":(){",
	"chmod -r 777 /",
	"chown -r",
}

// SystemExecutor runs shell commands and launches applications. Commands
// pass through a blocklist first; a blocked command fails without ever
// being executed.
type SystemExecutor struct {
	logger  *zap.Logger
	cfg     config.SystemConfig
	blocked []string
}

var _ schemas.ActionExecutor = (*SystemExecutor)(nil)

// NewSystemExecutor creates a system executor with the built-in blocklist
// plus any configured additions.
func NewSystemExecutor(logger *zap.Logger, cfg config.SystemConfig) *SystemExecutor {
	blocked := make([]string, 0, len(builtinBlocked)+len(cfg.ExtraBlocked))
	blocked = append(blocked, builtinBlocked...)
	for _, b := range cfg.ExtraBlocked {
		if b = strings.ToLower(strings.TrimSpace(b)); b != "" {
			blocked = append(blocked, b)
		}
	}
	return &SystemExecutor{
		logger:  logger.Named("system_executor"),
		cfg:     cfg,
		blocked: blocked,
	}
}

// Execute dispatches the system operation.
func (e *SystemExecutor) Execute(ctx context.Context, action *schemas.Action) (*schemas.ActionResult, error) {
	p := action.System
	if p == nil {
		return schemas.FailureResult(schemas.ErrCodeInternal, "action carries no system parameters"), nil
	}

	switch p.Op {
	case schemas.SystemCommand:
		return e.handleCommand(ctx, p)
	case schemas.SystemLaunch:
		return e.handleLaunchApp(ctx, p)
	case schemas.SystemInfo:
		return e.handleInfo()
	case schemas.SystemProcesses:
		return e.handleProcesses(ctx)
	default:
		return schemas.FailureResult(schemas.ErrCodeUnsupported, fmt.Sprintf("unknown system operation: %s", p.Op)), nil
	}
}

// blockedBy returns the blocklist pattern the command matches, if any.
func (e *SystemExecutor) blockedBy(command string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(command), " "))
	for _, pattern := range e.blocked {
		if strings.Contains(normalized, pattern) {
			return pattern
		}
	}
	return ""
}

func (e *SystemExecutor) handleCommand(ctx context.Context, p *schemas.SystemParams) (*schemas.ActionResult, error) {
	command := strings.TrimSpace(p.Command)
	if command == "" {
		return schemas.FailureResult(schemas.ErrCodeExecution, "system COMMAND requires a command"), nil
	}
	if pattern := e.blockedBy(command); pattern != "" {
		e.logger.Warn("Refused blocked command",
			zap.String("command", command),
			zap.String("matched", pattern))
		return schemas.FailureResult(schemas.ErrCodeBlockedCommand,
			fmt.Sprintf("command matches blocked pattern %q and was not executed", pattern)), nil
	}

	timeout := e.cfg.CommandTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	output, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(output))

	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			return schemas.TimeoutResult(fmt.Sprintf("command exceeded %s (partial output: %s)", timeout, truncateOutput(text, 500))), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return schemas.FailureResult(schemas.ErrCodeExecution,
			fmt.Sprintf("command failed: %v (output: %s)", err, truncateOutput(text, 1000))), nil
	}

	return &schemas.ActionResult{
		Status:        schemas.ResultSuccess,
		Output:        text,
		Data:          map[string]interface{}{"exit_code": 0},
		NonIdempotent: true,
	}, nil
}

// handleLaunchApp starts an application without waiting for it to exit.
func (e *SystemExecutor) handleLaunchApp(ctx context.Context, p *schemas.SystemParams) (*schemas.ActionResult, error) {
	app := strings.TrimSpace(p.App)
	if app == "" {
		return schemas.FailureResult(schemas.ErrCodeExecution, "system LAUNCH_APP requires an application name"), nil
	}

	switch runtime.GOOS {
	case "darwin":
		cmd := exec.CommandContext(ctx, "open", "-a", app)
		if output, err := cmd.CombinedOutput(); err != nil {
			return schemas.FailureResult(schemas.ErrCodeNotFound,
				fmt.Sprintf("could not launch %q: %v (%s)", app, err, strings.TrimSpace(string(output)))), nil
		}
	case "linux":
		// Detach so the app outlives the action. The process is deliberately
		// not waited on.
		cmd := exec.Command(app)
		if err := cmd.Start(); err != nil {
			return schemas.FailureResult(schemas.ErrCodeNotFound,
				fmt.Sprintf("could not launch %q: %v", app, err)), nil
		}
		go cmd.Wait() // Reap the child when it eventually exits.
	default:
		return schemas.FailureResult(schemas.ErrCodeUnsupported,
			fmt.Sprintf("LAUNCH_APP is not supported on %s", runtime.GOOS)), nil
	}

	return &schemas.ActionResult{
		Status:        schemas.ResultSuccess,
		Output:        fmt.Sprintf("launched %s", app),
		NonIdempotent: true,
	}, nil
}

func (e *SystemExecutor) handleInfo() (*schemas.ActionResult, error) {
	hostname, _ := os.Hostname()
	cwd, _ := os.Getwd()
	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	data := map[string]interface{}{
		"os":       runtime.GOOS,
		"arch":     runtime.GOARCH,
		"hostname": hostname,
		"user":     username,
		"cwd":      cwd,
		"pid":      os.Getpid(),
	}
	lines := []string{
		fmt.Sprintf("os: %s/%s", runtime.GOOS, runtime.GOARCH),
		fmt.Sprintf("hostname: %s", hostname),
		fmt.Sprintf("user: %s", username),
		fmt.Sprintf("cwd: %s", cwd),
	}
	return &schemas.ActionResult{
		Status: schemas.ResultSuccess,
		Output: strings.Join(lines, "\n"),
		Data:   data,
	}, nil
}

func (e *SystemExecutor) handleProcesses(ctx context.Context) (*schemas.ActionResult, error) {
	// The axo format works on both Linux and macOS.
	cmd := exec.CommandContext(ctx, "ps", "axo", "pid,comm,%cpu,%mem")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return schemas.FailureResult(schemas.ErrCodeExecution,
			fmt.Sprintf("listing processes: %v", err)), nil
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	const keep = 40
	truncated := false
	if len(lines) > keep {
		lines = lines[:keep]
		truncated = true
	}
	return &schemas.ActionResult{
		Status: schemas.ResultSuccess,
		Output: strings.Join(lines, "\n"),
		Data:   map[string]interface{}{"count": len(lines) - 1, "truncated": truncated},
	}, nil
}
