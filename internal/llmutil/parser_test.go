// internal/llmutil/parser_test.go
package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "bare object passes through",
			input:    `{"decision":"COMPLETE"}`,
			expected: `{"decision":"COMPLETE"}`,
		},
		{
			name:     "fenced object with language tag",
			input:    "```json\n{\"decision\":\"COMPLETE\"}\n```",
			expected: `{"decision":"COMPLETE"}`,
		},
		{
			name:     "fenced object without language tag",
			input:    "```\n{\"a\":1}\n```",
			expected: `{"a":1}`,
		},
		{
			name:     "object embedded in prose",
			input:    `Here you go: {"a":1} hope that helps!`,
			expected: `{"a":1}`,
		},
		{
			name:     "nested braces keep the outermost pair",
			input:    `prefix {"outer":{"inner":2}} suffix`,
			expected: `{"outer":{"inner":2}}`,
		},
		{
			name:     "no json returns the trimmed input",
			input:    "  nothing structured here  ",
			expected: "nothing structured here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractJSON(tt.input))
		})
	}
}

func TestCleanCodeOutput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "python fence stripped",
			input:    "```python\nprint('hi')\n```",
			expected: "print('hi')",
		},
		{
			name:     "bare fence stripped",
			input:    "```\nls -la\n```",
			expected: "ls -la",
		},
		{
			name:     "unfenced content untouched",
			input:    "print('hi')",
			expected: "print('hi')",
		},
		{
			name:     "inner backtick content preserved",
			input:    "```javascript\nconst s = 1 + 2;\nconsole.log(s);\n```",
			expected: "const s = 1 + 2;\nconsole.log(s);",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanCodeOutput(tt.input))
		})
	}
}
