// internal/executor/htmltext.go
package executor

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Elements whose subtrees never contribute visible text.
var skipSubtree = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
	"svg":      true,
}

// Elements that end a visual line, so their boundary becomes a newline in
// the extracted text.
var blockBoundary = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "tr": true, "br": true, "table": true, "ul": true, "ol": true,
	"header": true, "footer": true, "nav": true, "blockquote": true, "pre": true,
}

// visibleText reduces an HTML document to the text a user would see,
// preserving rough line structure. Inline whitespace is collapsed and empty
// lines are dropped.
func visibleText(r io.Reader) (string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipSubtree[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if t := collapseSpace(n.Data); t != "" {
				if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
					sb.WriteByte(' ')
				}
				sb.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockBoundary[n.Data] {
			sb.WriteByte('\n')
		}
	}
	walk(root)

	lines := strings.Split(sb.String(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n"), nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
