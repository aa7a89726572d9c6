// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/deskpilot/internal/config"
)

// -- Test Cases --

func TestInitialize(t *testing.T) {

	t.Run("should emit colorized console output", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer

		cfg := config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "console-test",
		}
		Initialize(cfg, zapcore.AddSync(&buf))
		logger := GetLogger()
		logger.Info("This is a test message.")
		Sync() // -- ensure the log is flushed --

		output := buf.String()
		assert.Contains(t, output, "INFO", "Output should contain the log level")
		assert.Contains(t, output, "This is a test message.", "Output should contain the message")
		assert.Contains(t, output, "\x1b[", "Console levels should be colorized")
		assert.Contains(t, output, "console-test.", "Output should carry the service name")
	})

	t.Run("should emit structured json output", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer

		cfg := config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "json-test",
		}
		Initialize(cfg, zapcore.AddSync(&buf))
		logger := GetLogger()
		logger.Warn("This is a JSON message.", zap.String("key", "value"))
		Sync()

		// -- the output should be a valid JSON object --
		var logEntry map[string]interface{}
		err := json.Unmarshal(buf.Bytes(), &logEntry)
		require.NoError(t, err, "Log output should be valid JSON")

		assert.Equal(t, "WARN", logEntry["level"])
		assert.Equal(t, "json-test", logEntry["logger"])
		assert.Equal(t, "This is a JSON message.", logEntry["msg"])
		assert.Equal(t, "value", logEntry["key"])
	})

	t.Run("should tee to a json log file when configured", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer
		logFile := filepath.Join(t.TempDir(), "deskpilot-test.log")

		cfg := config.LoggerConfig{
			Level:   "debug",
			Format:  "console",
			LogFile: logFile,
			MaxSize: 1, // 1 MB
		}
		Initialize(cfg, zapcore.AddSync(&buf))
		logger := GetLogger()
		logger.Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.", "Log file should contain the message")

		// The file core is always JSON regardless of the console format.
		var logEntry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(content))), &logEntry))
		assert.Equal(t, "ERROR", logEntry["level"])
		assert.Contains(t, buf.String(), "This should go to the file.", "Console core should receive the entry too")
	})

	t.Run("should only initialize once", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer

		// -- first initialization --
		cfg1 := config.LoggerConfig{Level: "info", Format: "console", ServiceName: "first-service"}
		Initialize(cfg1, zapcore.AddSync(&buf))
		logger1 := GetLogger()

		// -- second, should be ignored --
		cfg2 := config.LoggerConfig{Level: "debug", Format: "console", ServiceName: "second-service"}
		Initialize(cfg2, zapcore.AddSync(&bytes.Buffer{}))
		logger2 := GetLogger()

		// -- check that the logger is the same instance with the first config --
		assert.Same(t, logger1, logger2)
		logger2.Info("test")
		Sync()

		assert.True(t, strings.Contains(buf.String(), "first-service"))
		assert.False(t, strings.Contains(buf.String(), "second-service"))
	})

	t.Run("should fall back to info for an unknown level", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer

		cfg := config.LoggerConfig{Level: "verbose", Format: "console", ServiceName: "level-test"}
		Initialize(cfg, zapcore.AddSync(&buf))
		logger := GetLogger()

		logger.Debug("below the fallback level")
		logger.Info("at the fallback level")
		Sync()

		assert.NotContains(t, buf.String(), "below the fallback level")
		assert.Contains(t, buf.String(), "at the fallback level")
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("should return a fallback logger if not initialized", func(t *testing.T) {
		ResetForTest()
		// -- we do not call Initialize here --
		logger := GetLogger()
		require.NotNil(t, logger)
	})

	t.Run("should return the global logger after initialization", func(t *testing.T) {
		ResetForTest()
		cfg := config.LoggerConfig{Level: "info", Format: "console", ServiceName: "global-test"}
		Initialize(cfg, zapcore.AddSync(&bytes.Buffer{}))

		logger := GetLogger()
		assert.Same(t, globalLogger.Load(), logger)
	})
}

func TestSync(t *testing.T) {
	t.Run("should be a no-op before initialization", func(t *testing.T) {
		ResetForTest()
		Sync()
	})
}
