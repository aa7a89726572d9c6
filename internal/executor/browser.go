// internal/executor/browser.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// BrowserSession abstracts the chromedp context so executor logic can be
// tested without launching a real browser.
type BrowserSession interface {
	// Run executes chromedp actions against the session, honoring ctx for
	// cancellation and deadlines.
	Run(ctx context.Context, actions ...chromedp.Action) error
	Close() error
}

// -- Chrome session --

// chromeSession owns a lazily-launched headless Chrome. The browser process
// starts on first use and survives across actions so page state (cookies,
// the current document) carries from one step to the next.
type chromeSession struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	initOnce sync.Once
	initErr  error

	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc
}

var _ BrowserSession = (*chromeSession)(nil)

// NewChromeSession creates a session whose browser launches on first Run.
func NewChromeSession(logger *zap.Logger, cfg config.BrowserConfig) *chromeSession {
	return &chromeSession{
		logger: logger.Named("chrome_session"),
		cfg:    cfg,
	}
}

func (s *chromeSession) initialize() error {
	s.initOnce.Do(func() {
		s.logger.Info("Launching browser.", zap.Bool("headless", s.cfg.Headless))

		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", s.cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if s.cfg.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(s.cfg.UserAgent))
		}

		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
		browserCtx, browserStop := chromedp.NewContext(allocCtx)

		// Prime the browser now so launch failures surface here instead of
		// inside the first action.
		if err := chromedp.Run(browserCtx); err != nil {
			browserStop()
			allocCancel()
			s.initErr = fmt.Errorf("failed to launch browser: %w", err)
			return
		}

		s.allocCancel = allocCancel
		s.browserCtx = browserCtx
		s.browserStop = browserStop
	})
	return s.initErr
}

// Run executes the actions on the shared browser context while honoring the
// caller's context. The browser context itself must outlive individual
// actions, so cancellation is bridged rather than inherited.
func (s *chromeSession) Run(ctx context.Context, actions ...chromedp.Action) error {
	if err := s.initialize(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(s.browserCtx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(runCtx, actions...)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func (s *chromeSession) Close() error {
	if s.browserStop != nil {
		s.browserStop()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	return nil
}

// -- Browser Executor --

type browserHandler func(ctx context.Context, p *schemas.BrowserParams) (*schemas.ActionResult, error)

// BrowserExecutor drives a single browser session. The registry serializes
// access to it, so handlers never race on page state.
type BrowserExecutor struct {
	logger   *zap.Logger
	session  BrowserSession
	cfg      config.BrowserConfig
	handlers map[schemas.BrowserOp]browserHandler
}

var _ schemas.ActionExecutor = (*BrowserExecutor)(nil)

// NewBrowserExecutor creates a browser executor bound to the given session.
func NewBrowserExecutor(logger *zap.Logger, cfg config.BrowserConfig, session BrowserSession) *BrowserExecutor {
	e := &BrowserExecutor{
		logger:  logger.Named("browser_executor"),
		session: session,
		cfg:     cfg,
	}
	e.handlers = map[schemas.BrowserOp]browserHandler{
		schemas.BrowserNavigate:   e.handleNavigate,
		schemas.BrowserClick:      e.handleClick,
		schemas.BrowserType:       e.handleType,
		schemas.BrowserExtract:    e.handleExtract,
		schemas.BrowserScreenshot: e.handleScreenshot,
		schemas.BrowserVerify:     e.handleVerifyText,
	}
	return e
}

// Close shuts the underlying browser session down.
func (e *BrowserExecutor) Close() error {
	return e.session.Close()
}

// Execute dispatches the browser operation under a per-operation timeout and
// converts chromedp failures into structured results for the planner.
func (e *BrowserExecutor) Execute(ctx context.Context, action *schemas.Action) (*schemas.ActionResult, error) {
	p := action.Browser
	if p == nil {
		return schemas.FailureResult(schemas.ErrCodeInternal, "action carries no browser parameters"), nil
	}
	handler, ok := e.handlers[p.Op]
	if !ok {
		return schemas.FailureResult(schemas.ErrCodeUnsupported, fmt.Sprintf("unknown browser operation: %s", p.Op)), nil
	}

	timeout := e.cfg.ActionTimeout
	if p.Op == schemas.BrowserNavigate {
		timeout = e.cfg.NavigationTimeout
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := handler(opCtx, p)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		code, detail := classifyBrowserError(err, p)
		if code == schemas.ErrCodeTimeout {
			res := schemas.TimeoutResult(detail)
			// A click or keystroke may have reached the page before the
			// deadline, so these must not be blindly replayed.
			res.NonIdempotent = p.Op == schemas.BrowserClick || p.Op == schemas.BrowserType
			return res, nil
		}
		e.logger.Warn("Browser action failed",
			zap.String("op", string(p.Op)),
			zap.String("error_code", code),
			zap.Error(err))
		return schemas.FailureResult(code, detail), nil
	}
	return result, nil
}

// classifyBrowserError maps raw chromedp errors onto stable error codes the
// planner can reason about. The classification is heuristic, keyed on the
// error strings chromedp and the DevTools protocol actually produce.
func classifyBrowserError(err error, p *schemas.BrowserParams) (string, string) {
	msg := err.Error()

	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "timeout") {
		return schemas.ErrCodeTimeout, fmt.Sprintf("browser %s timed out: %v", p.Op, err)
	}
	if strings.Contains(msg, "net::ERR") || strings.Contains(msg, "page load error") {
		return schemas.ErrCodeNavigation, fmt.Sprintf("navigation failed for %q: %v", p.URL, err)
	}
	if strings.Contains(msg, "could not find node") ||
		strings.Contains(msg, "waiting for selector") ||
		strings.Contains(msg, "no nodes") {
		return schemas.ErrCodeElementNotFound, fmt.Sprintf("no element matched selector %q: %v", p.Selector, err)
	}
	return schemas.ErrCodeExecution, msg
}

func (e *BrowserExecutor) handleNavigate(ctx context.Context, p *schemas.BrowserParams) (*schemas.ActionResult, error) {
	if p.URL == "" {
		return schemas.FailureResult(schemas.ErrCodeNavigation, "browser NAVIGATE requires a URL"), nil
	}
	var title string
	err := e.session.Run(ctx,
		chromedp.Navigate(p.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Title(&title),
	)
	if err != nil {
		return nil, err
	}
	return &schemas.ActionResult{
		Status: schemas.ResultSuccess,
		Output: fmt.Sprintf("navigated to %s (%q)", p.URL, title),
		Data:   map[string]interface{}{"url": p.URL, "title": title},
	}, nil
}

func (e *BrowserExecutor) handleClick(ctx context.Context, p *schemas.BrowserParams) (*schemas.ActionResult, error) {
	if p.Selector == "" {
		return schemas.FailureResult(schemas.ErrCodeElementNotFound, "browser CLICK requires a selector"), nil
	}
	err := e.session.Run(ctx,
		chromedp.WaitVisible(p.Selector, chromedp.ByQuery),
		chromedp.Click(p.Selector, chromedp.ByQuery),
	)
	if err != nil {
		return nil, err
	}
	return &schemas.ActionResult{
		Status:        schemas.ResultSuccess,
		Output:        fmt.Sprintf("clicked %q", p.Selector),
		NonIdempotent: true,
	}, nil
}

func (e *BrowserExecutor) handleType(ctx context.Context, p *schemas.BrowserParams) (*schemas.ActionResult, error) {
	if p.Selector == "" {
		return schemas.FailureResult(schemas.ErrCodeElementNotFound, "browser TYPE requires a selector"), nil
	}
	err := e.session.Run(ctx,
		chromedp.WaitVisible(p.Selector, chromedp.ByQuery),
		chromedp.SendKeys(p.Selector, p.Text, chromedp.ByQuery),
	)
	if err != nil {
		return nil, err
	}
	return &schemas.ActionResult{
		Status:        schemas.ResultSuccess,
		Output:        fmt.Sprintf("typed %d characters into %q", len(p.Text), p.Selector),
		NonIdempotent: true,
	}, nil
}

func (e *BrowserExecutor) handleExtract(ctx context.Context, p *schemas.BrowserParams) (*schemas.ActionResult, error) {
	var raw, title string
	err := e.session.Run(ctx,
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &raw, chromedp.ByQuery),
	)
	if err != nil {
		return nil, err
	}

	text, err := visibleText(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("extracting page text: %w", err)
	}
	return &schemas.ActionResult{
		Status: schemas.ResultSuccess,
		Output: fmt.Sprintf("extracted %d characters from %q", len(text), title),
		Data:   map[string]interface{}{"title": title, "text": text},
	}, nil
}

func (e *BrowserExecutor) handleScreenshot(ctx context.Context, p *schemas.BrowserParams) (*schemas.ActionResult, error) {
	var buf []byte
	if err := e.session.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}

	dir := e.cfg.ScreenshotDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating screenshot dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("page-%s.png", uuid.NewString()))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return nil, fmt.Errorf("writing screenshot: %w", err)
	}

	return &schemas.ActionResult{
		Status: schemas.ResultSuccess,
		Output: fmt.Sprintf("saved page screenshot to %s", path),
		Data:   map[string]interface{}{"path": path},
	}, nil
}

// handleVerifyText checks that the current page's visible text contains the
// expected string. Absence is an action failure so the planner sees it and
// can correct course.
func (e *BrowserExecutor) handleVerifyText(ctx context.Context, p *schemas.BrowserParams) (*schemas.ActionResult, error) {
	if p.Text == "" {
		return schemas.FailureResult(schemas.ErrCodeExecution, "browser VERIFY_TEXT requires the text to verify"), nil
	}

	var raw string
	if err := e.session.Run(ctx, chromedp.OuterHTML("html", &raw, chromedp.ByQuery)); err != nil {
		return nil, err
	}
	text, err := visibleText(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("extracting page text: %w", err)
	}

	if !strings.Contains(strings.ToLower(text), strings.ToLower(p.Text)) {
		return schemas.FailureResult(schemas.ErrCodeElementNotFound,
			fmt.Sprintf("page does not contain %q", p.Text)), nil
	}
	return &schemas.ActionResult{
		Status: schemas.ResultSuccess,
		Output: fmt.Sprintf("page contains %q", p.Text),
		Data:   map[string]interface{}{"found": true},
	}, nil
}
