// internal/llmutil/parser.go
package llmutil

import (
	"regexp"
	"strings"
)

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// jsonObjectRegex extracts a JSON object if the response is wrapped in markdown.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")

	// codeBlockRegex extracts content wrapped in markdown, supporting language tags (python, javascript, etc.).
	codeBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60[a-zA-Z]*\\s*(.*?)\\s*\x60\x60\x60")
)

// ExtractJSON pulls the JSON object out of an LLM response, tolerating the
// formatting quirks models actually produce: markdown fences around the
// object, or conversational text surrounding it. The returned string is the
// best candidate for unmarshaling; validation stays with the caller.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	// Markdown-wrapped object is the most common case.
	if strings.HasPrefix(response, "```") {
		if matches := jsonObjectRegex.FindStringSubmatch(response); len(matches) > 1 {
			return matches[1]
		}
	}

	// Object embedded in prose: take the outermost brace pair.
	if !strings.HasPrefix(response, "{") {
		first := strings.Index(response, "{")
		last := strings.LastIndex(response, "}")
		if first != -1 && last > first {
			return response[first : last+1]
		}
	}

	return response
}

// CleanCodeOutput removes markdown fences (like ```python) from a generated
// code string. Content without fences passes through unchanged.
func CleanCodeOutput(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if matches := codeBlockRegex.FindStringSubmatch(content); len(matches) > 1 {
			return strings.TrimSpace(matches[1])
		}
	}
	return content
}
