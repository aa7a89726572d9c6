package observer

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// sampleTSV is shaped like real tesseract TSV output: a header, a page-level
// row with confidence -1, and word rows grouped into two text lines.
const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t1920\t1080\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t100\t200\t50\t20\t96.5\tHello\n" +
	"5\t1\t1\t1\t1\t2\t160\t200\t60\t22\t92.1\tworld\n" +
	"5\t1\t1\t2\t1\t1\t100\t300\t80\t20\t88\tSubmit\n"

func TestParseTesseractTSV(t *testing.T) {
	t.Run("should group word rows into line regions", func(t *testing.T) {
		regions := parseTesseractTSV(sampleTSV)
		require.Len(t, regions, 2)

		first := regions[0]
		assert.Equal(t, "Hello world", first.Text)
		assert.Equal(t, schemas.BoundingBox{X: 100, Y: 200, Width: 120, Height: 22}, first.Box, "line box should be the union of its word boxes")
		assert.InDelta(t, 0.943, first.Confidence, 0.001, "line confidence should be the word average, scaled to [0,1]")

		second := regions[1]
		assert.Equal(t, "Submit", second.Text)
		assert.Equal(t, schemas.BoundingBox{X: 100, Y: 300, Width: 80, Height: 20}, second.Box)
		assert.InDelta(t, 0.88, second.Confidence, 0.001)
	})

	t.Run("should skip header, meta and malformed rows", func(t *testing.T) {
		tsv := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
			"1\t1\t0\t0\t0\t0\t0\t0\t100\t100\t-1\t\n" + // page row, conf -1
			"5\t1\t1\t1\t1\t1\t10\t10\t10\t10\t90\t \n" + // whitespace-only text
			"short\trow\n" + // malformed
			"5\t1\t1\t1\t1\t1\t10\t10\t10\t10\tabc\tBad\n" + // unparseable confidence
			"5\t1\t1\t1\t1\t1\t10\t10\t10\t10\t75\tOnly\n"

		regions := parseTesseractTSV(tsv)
		require.Len(t, regions, 1)
		assert.Equal(t, "Only", regions[0].Text)
	})

	t.Run("should keep separate blocks as separate regions", func(t *testing.T) {
		tsv := "header\n" +
			"5\t1\t1\t1\t1\t1\t0\t0\t10\t10\t90\tleft\n" +
			"5\t1\t2\t1\t1\t1\t500\t0\t10\t10\t90\tright\n"

		regions := parseTesseractTSV(tsv)
		require.Len(t, regions, 2)
		assert.Equal(t, "left", regions[0].Text)
		assert.Equal(t, "right", regions[1].Text)
	})

	t.Run("should return no regions for empty output", func(t *testing.T) {
		assert.Empty(t, parseTesseractTSV(""))
	})
}

func TestExecCapturer(t *testing.T) {
	t.Run("should create the shot directory and run the command", func(t *testing.T) {
		shotDir := filepath.Join(t.TempDir(), "shots")
		cfg := config.ObserverConfig{
			CaptureCommand: "true {output}",
			ShotDir:        shotDir,
		}

		c, err := NewExecCapturer(cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		info, err := os.Stat(shotDir)
		require.NoError(t, err, "shot directory should exist after construction")
		assert.True(t, info.IsDir())

		path, err := c.CaptureImage(context.Background(), nil)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(path, shotDir), "capture path should live in the shot directory")
		assert.True(t, strings.HasSuffix(path, ".png"))
	})

	t.Run("should log and continue when a region of interest is requested", func(t *testing.T) {
		cfg := config.ObserverConfig{CaptureCommand: "true {output}", ShotDir: t.TempDir()}
		c, err := NewExecCapturer(cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		path, err := c.CaptureImage(context.Background(), &schemas.BoundingBox{X: 1, Y: 2})
		require.NoError(t, err)
		assert.NotEmpty(t, path)
	})

	t.Run("should surface command failures", func(t *testing.T) {
		cfg := config.ObserverConfig{CaptureCommand: "false", ShotDir: t.TempDir()}
		c, err := NewExecCapturer(cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = c.CaptureImage(context.Background(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `capture command "false"`)
	})

	t.Run("should reject an empty command at capture time", func(t *testing.T) {
		c := &ExecCapturer{command: "", shotDir: t.TempDir(), logger: zaptest.NewLogger(t)}

		_, err := c.CaptureImage(context.Background(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty capture command")
	})
}

func TestExecCapturerCleanup(t *testing.T) {
	newCapture := func(t *testing.T, dir string) string {
		t.Helper()
		path := filepath.Join(dir, "shot.png")
		require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))
		return path
	}

	t.Run("should remove the capture by default", func(t *testing.T) {
		dir := t.TempDir()
		cfg := config.ObserverConfig{CaptureCommand: "true {output}", ShotDir: dir}
		c, err := NewExecCapturer(cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		path := newCapture(t, dir)
		c.Cleanup(path)

		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr), "capture image should be deleted")
	})

	t.Run("should retain the capture when configured", func(t *testing.T) {
		dir := t.TempDir()
		cfg := config.ObserverConfig{CaptureCommand: "true {output}", ShotDir: dir, KeepCaptures: true}
		c, err := NewExecCapturer(cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		path := newCapture(t, dir)
		c.Cleanup(path)

		_, statErr := os.Stat(path)
		assert.NoError(t, statErr, "capture image should survive cleanup")
	})

	t.Run("should tolerate missing files and empty paths", func(t *testing.T) {
		cfg := config.ObserverConfig{CaptureCommand: "true {output}", ShotDir: t.TempDir()}
		c, err := NewExecCapturer(cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		c.Cleanup(filepath.Join(t.TempDir(), "never-existed.png"))
		c.Cleanup("")
	})
}

func TestTesseractExtractor(t *testing.T) {
	t.Run("should default to tesseract TSV output", func(t *testing.T) {
		e := NewTesseractExtractor(config.ObserverConfig{}, zaptest.NewLogger(t))
		assert.Equal(t, "tesseract {input} stdout tsv", e.command)
	})

	t.Run("should parse the command output into regions", func(t *testing.T) {
		// "cat {input}" stands in for OCR: the fixture file plays the role of
		// tesseract's stdout.
		tsvPath := filepath.Join(t.TempDir(), "ocr.tsv")
		require.NoError(t, os.WriteFile(tsvPath, []byte(sampleTSV), 0o644))

		e := NewTesseractExtractor(config.ObserverConfig{ExtractCommand: "cat {input}"}, zaptest.NewLogger(t))

		regions, err := e.Extract(context.Background(), tsvPath)
		require.NoError(t, err)
		require.Len(t, regions, 2)
		assert.Equal(t, "Hello world", regions[0].Text)
	})

	t.Run("should surface command failures", func(t *testing.T) {
		e := NewTesseractExtractor(config.ObserverConfig{ExtractCommand: "false"}, zaptest.NewLogger(t))

		_, err := e.Extract(context.Background(), "ignored.png")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `extract command "false"`)
	})

	t.Run("should reject an empty command", func(t *testing.T) {
		e := &TesseractExtractor{command: "", logger: zaptest.NewLogger(t)}

		_, err := e.Extract(context.Background(), "ignored.png")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty extract command")
	})
}

func TestExecWindowInspector(t *testing.T) {
	t.Run("should report the command output as the window title", func(t *testing.T) {
		w := NewExecWindowInspector(config.ObserverConfig{WindowCommand: "echo Calculator"})
		require.NotNil(t, w)

		win, err := w.ActiveWindow(context.Background())
		require.NoError(t, err)
		require.NotNil(t, win)
		assert.Equal(t, "Calculator", win.Title)
	})

	t.Run("should return nothing for empty output", func(t *testing.T) {
		w := NewExecWindowInspector(config.ObserverConfig{WindowCommand: "true"})

		win, err := w.ActiveWindow(context.Background())
		assert.NoError(t, err)
		assert.Nil(t, win)
	})

	t.Run("should surface command failures", func(t *testing.T) {
		w := NewExecWindowInspector(config.ObserverConfig{WindowCommand: "false"})

		_, err := w.ActiveWindow(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), `window command "false"`)
	})

	t.Run("should be a no-op on a nil inspector", func(t *testing.T) {
		var w *ExecWindowInspector

		win, err := w.ActiveWindow(context.Background())
		assert.NoError(t, err)
		assert.Nil(t, win)
	})

	t.Run("should pick a platform default", func(t *testing.T) {
		w := NewExecWindowInspector(config.ObserverConfig{})
		switch runtime.GOOS {
		case "linux":
			require.NotNil(t, w)
			assert.Equal(t, "xdotool", w.args[0])
		case "darwin":
			require.NotNil(t, w)
			assert.Equal(t, "osascript", w.args[0])
		default:
			assert.Nil(t, w)
		}
	})
}
