// Package observer produces structured screen snapshots: a capture image,
// the text extracted from it, and active-window metadata. Capture is bounded
// by a timeout so a wedged screenshot or OCR process fails the step instead
// of hanging the control loop.
package observer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// ErrCaptureTimeout marks captures that exceeded the configured timeout.
var ErrCaptureTimeout = errors.New("observation capture timed out")

// ScreenCapturer takes a screenshot and returns the image path. roi crops the
// capture when non-nil.
type ScreenCapturer interface {
	CaptureImage(ctx context.Context, roi *schemas.BoundingBox) (string, error)
}

// TextExtractor runs OCR over a capture and returns the text regions found.
type TextExtractor interface {
	Extract(ctx context.Context, imagePath string) ([]schemas.TextRegion, error)
}

// WindowInspector reports the currently focused window. Implementations
// return (nil, nil) when the information is unavailable.
type WindowInspector interface {
	ActiveWindow(ctx context.Context) (*schemas.WindowInfo, error)
}

// Provider assembles observations from a capturer, an extractor and an
// optional window inspector. It implements schemas.ObservationProvider and is
// safe for concurrent use by independent tasks.
type Provider struct {
	capturer  ScreenCapturer
	extractor TextExtractor
	inspector WindowInspector
	timeout   time.Duration
	logger    *zap.Logger
}

var _ schemas.ObservationProvider = (*Provider)(nil)

// Option customizes a Provider.
type Option func(*Provider)

// WithWindowInspector attaches active-window metadata to captures.
func WithWindowInspector(w WindowInspector) Option {
	return func(p *Provider) { p.inspector = w }
}

// New creates a Provider. A zero capture timeout defaults to 10 seconds.
func New(capturer ScreenCapturer, extractor TextExtractor, cfg config.ObserverConfig, logger *zap.Logger, opts ...Option) *Provider {
	timeout := cfg.CaptureTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	p := &Provider{
		capturer:  capturer,
		extractor: extractor,
		timeout:   timeout,
		logger:    logger.Named("observer"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Capture takes a screenshot, extracts its text and returns the assembled
// observation. It is side-effect-free with respect to task state.
func (p *Provider) Capture(ctx context.Context, taskID string, roi *schemas.BoundingBox) (*schemas.Observation, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()

	imagePath, err := p.capturer.CaptureImage(ctx, roi)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: screenshot after %s", ErrCaptureTimeout, p.timeout)
		}
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}

	regions, err := p.extractor.Extract(ctx, imagePath)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: text extraction after %s", ErrCaptureTimeout, p.timeout)
		}
		return nil, fmt.Errorf("text extraction failed: %w", err)
	}

	obs := &schemas.Observation{
		ID:         uuid.NewString(),
		TaskID:     taskID,
		ImagePath:  imagePath,
		Regions:    regions,
		CapturedAt: time.Now().UTC(),
	}

	if p.inspector != nil {
		win, werr := p.inspector.ActiveWindow(ctx)
		if werr != nil {
			// Window metadata is best effort; the capture stands without it.
			p.logger.Debug("Active window lookup failed", zap.Error(werr))
		} else {
			obs.Window = win
		}
	}

	p.logger.Debug("Observation captured",
		zap.String("task_id", taskID),
		zap.Int("regions", len(regions)),
		zap.Duration("duration", time.Since(start)),
	)
	return obs, nil
}
