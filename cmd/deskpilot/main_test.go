// File: cmd/deskpilot/main_test.go
package main

import (
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Test Doubles --

// mockExiter records exit codes without terminating the test process.
type mockExiter struct {
	mu    sync.Mutex
	codes []int
}

func (m *mockExiter) Exit(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes = append(m.codes, code)
}

func (m *mockExiter) Codes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.codes...)
}

// mockWriter records the file writes handlePanic attempts.
type mockWriter struct {
	mu    sync.Mutex
	name  string
	data  []byte
	calls int
	err   error
}

func (m *mockWriter) WriteFile(name string, data []byte, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.name = name
	m.data = append([]byte(nil), data...)
	return m.err
}

// -- Helpers --

// resetMocks restores the real implementations after a test.
func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

// -- Test Cases --

func TestHandlePanic(t *testing.T) {
	t.Run("should write the panic log and exit non-zero", func(t *testing.T) {
		defer resetMocks()
		writer := &mockWriter{}
		exiter := &mockExiter{}
		osWriteFile = writer.WriteFile
		osExit = exiter.Exit

		func() {
			defer handlePanic()
			panic("boom")
		}()

		require.Equal(t, 1, writer.calls, "expected exactly one panic log write")
		assert.Equal(t, panicLogFile, writer.name)
		assert.Contains(t, string(writer.data), "panic: boom")
		assert.Contains(t, string(writer.data), "goroutine", "panic log should carry a stack trace")
		assert.Equal(t, []int{1}, exiter.Codes())
	})

	t.Run("should still exit non-zero when the log cannot be written", func(t *testing.T) {
		defer resetMocks()
		writer := &mockWriter{err: errors.New("disk full")}
		exiter := &mockExiter{}
		osWriteFile = writer.WriteFile
		osExit = exiter.Exit

		func() {
			defer handlePanic()
			panic("boom")
		}()

		require.Equal(t, 1, writer.calls)
		assert.Equal(t, []int{1}, exiter.Codes())
	})

	t.Run("should do nothing on a clean return", func(t *testing.T) {
		defer resetMocks()
		writer := &mockWriter{}
		exiter := &mockExiter{}
		osWriteFile = writer.WriteFile
		osExit = exiter.Exit

		func() {
			defer handlePanic()
		}()

		assert.Zero(t, writer.calls)
		assert.Empty(t, exiter.Codes())
	})
}
