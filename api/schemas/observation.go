package schemas

import (
	"strings"
	"time"
)

// BoundingBox locates a text region on screen in pixel coordinates.
type BoundingBox struct {
	X      int `json:"x"`      // Left edge.
	Y      int `json:"y"`      // Top edge.
	Width  int `json:"width"`  // Region width.
	Height int `json:"height"` // Region height.
}

// TextRegion is one piece of text extracted from a screen capture, with its
// location and the extractor's confidence in the reading.
type TextRegion struct {
	Text       string      `json:"text"`       // The extracted text.
	Box        BoundingBox `json:"box"`        // Where the text was found.
	Confidence float64     `json:"confidence"` // Extractor confidence in [0,1].
}

// WindowInfo describes the active window at capture time.
type WindowInfo struct {
	Title  string      `json:"title"`         // Window title.
	App    string      `json:"app,omitempty"` // Owning application name, when known.
	Bounds BoundingBox `json:"bounds"`        // Window geometry.
}

// Observation is a structured snapshot of the screen at one point in time:
// an image reference plus the text regions extracted from it and optional
// active-window metadata. Observations are immutable once produced.
type Observation struct {
	ID         string       `json:"id"`                   // Unique identifier for this observation.
	TaskID     string       `json:"task_id"`              // The task the capture was taken for.
	ImagePath  string       `json:"image_path,omitempty"` // Reference to the raw capture on disk.
	Regions    []TextRegion `json:"regions"`              // Extracted text regions.
	Window     *WindowInfo  `json:"window,omitempty"`     // Active window metadata, when available.
	CapturedAt time.Time    `json:"captured_at"`          // Capture timestamp.
}

// Text flattens the extracted regions into a single newline-joined string,
// in region order. This is the representation handed to the planner.
func (o *Observation) Text() string {
	if o == nil || len(o.Regions) == 0 {
		return ""
	}
	parts := make([]string, 0, len(o.Regions))
	for _, r := range o.Regions {
		if t := strings.TrimSpace(r.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// Contains reports whether any extracted region contains the given substring,
// case-insensitively. Used by wait-for-text polling and page verification.
func (o *Observation) Contains(needle string) bool {
	if o == nil || needle == "" {
		return false
	}
	needle = strings.ToLower(needle)
	for _, r := range o.Regions {
		if strings.Contains(strings.ToLower(r.Text), needle) {
			return true
		}
	}
	return false
}
