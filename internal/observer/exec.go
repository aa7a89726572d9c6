package observer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// ExecCapturer shells out to a screenshot tool. The command is a template
// where "{output}" is replaced with the destination image path.
type ExecCapturer struct {
	command string
	shotDir string
	keep    bool
	logger  *zap.Logger
}

var _ ScreenCapturer = (*ExecCapturer)(nil)

// NewExecCapturer builds a capturer from configuration, falling back to the
// platform's stock screenshot tool when no command is configured.
func NewExecCapturer(cfg config.ObserverConfig, logger *zap.Logger) (*ExecCapturer, error) {
	command := cfg.CaptureCommand
	if command == "" {
		switch runtime.GOOS {
		case "darwin":
			command = "screencapture -x {output}"
		case "windows":
			return nil, fmt.Errorf("no capture_command configured and no default exists for windows")
		default:
			command = "scrot --overwrite {output}"
		}
	}

	shotDir := cfg.ShotDir
	if shotDir == "" {
		shotDir = filepath.Join(os.TempDir(), "deskpilot-shots")
	}
	if err := os.MkdirAll(shotDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating shot directory: %w", err)
	}

	return &ExecCapturer{
		command: command,
		shotDir: shotDir,
		keep:    cfg.KeepCaptures,
		logger:  logger.Named("observer.capture"),
	}, nil
}

// CaptureImage runs the screenshot command and returns the image path.
func (c *ExecCapturer) CaptureImage(ctx context.Context, roi *schemas.BoundingBox) (string, error) {
	out := filepath.Join(c.shotDir, fmt.Sprintf("shot-%d.png", time.Now().UnixNano()))

	parts := strings.Fields(strings.ReplaceAll(c.command, "{output}", out))
	if len(parts) == 0 {
		return "", fmt.Errorf("empty capture command")
	}

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("capture command %q: %w (%s)", parts[0], err, strings.TrimSpace(string(output)))
	}

	if roi != nil {
		c.logger.Debug("Region of interest requested; cropping is left to the extractor",
			zap.Int("x", roi.X), zap.Int("y", roi.Y))
	}
	return out, nil
}

// Cleanup removes a capture image unless captures are being retained.
func (c *ExecCapturer) Cleanup(path string) {
	if c.keep || path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.logger.Debug("Failed to remove capture image", zap.String("path", path), zap.Error(err))
	}
}

// TesseractExtractor runs tesseract in TSV mode and groups the recognized
// words into line regions.
type TesseractExtractor struct {
	command string
	logger  *zap.Logger
}

var _ TextExtractor = (*TesseractExtractor)(nil)

// NewTesseractExtractor builds an extractor from configuration. The command
// template receives "{input}"; the default emits TSV on stdout.
func NewTesseractExtractor(cfg config.ObserverConfig, logger *zap.Logger) *TesseractExtractor {
	command := cfg.ExtractCommand
	if command == "" {
		command = "tesseract {input} stdout tsv"
	}
	return &TesseractExtractor{
		command: command,
		logger:  logger.Named("observer.ocr"),
	}
}

// Extract runs OCR and parses the TSV output into text regions.
func (e *TesseractExtractor) Extract(ctx context.Context, imagePath string) ([]schemas.TextRegion, error) {
	parts := strings.Fields(strings.ReplaceAll(e.command, "{input}", imagePath))
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty extract command")
	}

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("extract command %q: %w", parts[0], err)
	}
	return parseTesseractTSV(string(output)), nil
}

// parseTesseractTSV merges word rows into one region per text line. Columns:
// level page block par line word left top width height conf text.
func parseTesseractTSV(tsv string) []schemas.TextRegion {
	type lineKey struct{ block, par, line string }

	var order []lineKey
	words := make(map[lineKey][]string)
	boxes := make(map[lineKey]schemas.BoundingBox)
	confs := make(map[lineKey][]float64)

	for i, row := range strings.Split(tsv, "\n") {
		cols := strings.Split(row, "\t")
		if i == 0 || len(cols) < 12 {
			continue // Header or malformed row.
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			continue // Non-word rows carry confidence -1.
		}

		left, _ := strconv.Atoi(cols[6])
		top, _ := strconv.Atoi(cols[7])
		width, _ := strconv.Atoi(cols[8])
		height, _ := strconv.Atoi(cols[9])

		key := lineKey{cols[2], cols[3], cols[4]}
		if _, seen := words[key]; !seen {
			order = append(order, key)
			boxes[key] = schemas.BoundingBox{X: left, Y: top, Width: width, Height: height}
		} else {
			b := boxes[key]
			right := max(b.X+b.Width, left+width)
			bottom := max(b.Y+b.Height, top+height)
			if left < b.X {
				b.X = left
			}
			if top < b.Y {
				b.Y = top
			}
			b.Width = right - b.X
			b.Height = bottom - b.Y
			boxes[key] = b
		}
		words[key] = append(words[key], text)
		confs[key] = append(confs[key], conf)
	}

	regions := make([]schemas.TextRegion, 0, len(order))
	for _, key := range order {
		var sum float64
		for _, c := range confs[key] {
			sum += c
		}
		regions = append(regions, schemas.TextRegion{
			Text:       strings.Join(words[key], " "),
			Box:        boxes[key],
			Confidence: sum / float64(len(confs[key])) / 100.0,
		})
	}
	return regions
}

// ExecWindowInspector shells out to a window-manager query tool for the
// active window title.
type ExecWindowInspector struct {
	args []string
}

var _ WindowInspector = (*ExecWindowInspector)(nil)

// NewExecWindowInspector builds an inspector, defaulting to xdotool on Linux
// and AppleScript on macOS. Returns nil when no tool is available for the
// platform, which disables window metadata.
func NewExecWindowInspector(cfg config.ObserverConfig) *ExecWindowInspector {
	if cfg.WindowCommand != "" {
		return &ExecWindowInspector{args: strings.Fields(cfg.WindowCommand)}
	}
	switch runtime.GOOS {
	case "darwin":
		return &ExecWindowInspector{args: []string{
			"osascript", "-e",
			`tell application "System Events" to get name of first process whose frontmost is true`,
		}}
	case "linux":
		return &ExecWindowInspector{args: []string{"xdotool", "getactivewindow", "getwindowname"}}
	default:
		return nil
	}
}

// ActiveWindow returns the focused window's title.
func (w *ExecWindowInspector) ActiveWindow(ctx context.Context) (*schemas.WindowInfo, error) {
	if w == nil || len(w.args) == 0 {
		return nil, nil
	}
	output, err := exec.CommandContext(ctx, w.args[0], w.args[1:]...).Output()
	if err != nil {
		return nil, fmt.Errorf("window command %q: %w", w.args[0], err)
	}
	title := strings.TrimSpace(string(output))
	if title == "" {
		return nil, nil
	}
	return &schemas.WindowInfo{Title: title}, nil
}
