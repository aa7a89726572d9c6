// internal/executor/build.go
package executor

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// NewDefaultRegistry wires up every executor the host can support and
// registers each under its action kind. GUI registration is skipped with a
// warning when the platform has no input driver; the registry's Kinds()
// then scopes what the planner may ask for.
//
// The returned cleanup func shuts down resources that hold OS processes
// (currently the browser session) and must be called on shutdown.
func NewDefaultRegistry(logger *zap.Logger, cfg *config.Config, llm schemas.LLMClient, observer schemas.ObservationProvider) (*Registry, func() error, error) {
	r := NewRegistry(logger)

	if driver, err := NewInputDriverForOS(logger); err != nil {
		logger.Warn("GUI actions unavailable on this platform", zap.Error(err))
	} else {
		gui := NewGUIExecutor(logger, cfg.Executors.GUI, driver, observer)
		r.Register(gui, ResourceDisplay, schemas.KindGUI)
	}

	session := NewChromeSession(logger, cfg.Executors.Browser)
	browser := NewBrowserExecutor(logger, cfg.Executors.Browser, session)
	r.Register(browser, ResourceBrowser, schemas.KindBrowser)

	code := NewCodeExecutor(logger, cfg.Executors.Code, llm)
	r.Register(code, "", schemas.KindCode)

	file, err := NewFileExecutor(logger, cfg.Executors.File)
	if err != nil {
		return nil, nil, fmt.Errorf("building file executor: %w", err)
	}
	r.Register(file, "", schemas.KindFile)

	system := NewSystemExecutor(logger, cfg.Executors.System)
	r.Register(system, "", schemas.KindSystem)

	cleanup := func() error {
		return browser.Close()
	}
	return r, cleanup, nil
}
