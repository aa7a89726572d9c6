package observer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

func observationAt(id string, captured time.Time, regions ...schemas.TextRegion) *schemas.Observation {
	return &schemas.Observation{
		ID:         id,
		TaskID:     "task-" + id,
		ImagePath:  "/tmp/" + id + ".png",
		Regions:    regions,
		CapturedAt: captured,
	}
}

func TestSame(t *testing.T) {
	region := schemas.TextRegion{Text: "Hello", Box: schemas.BoundingBox{X: 1, Y: 2, Width: 3, Height: 4}, Confidence: 0.9}

	t.Run("should ignore identifiers, paths and timestamps", func(t *testing.T) {
		a := observationAt("a", time.Now(), region)
		b := observationAt("b", time.Now().Add(5*time.Second), region)

		assert.True(t, Same(a, b), "two captures of an unchanged screen should compare equal")
	})

	t.Run("should detect changed text", func(t *testing.T) {
		a := observationAt("a", time.Now(), region)
		changed := region
		changed.Text = "Goodbye"
		b := observationAt("b", time.Now(), changed)

		assert.False(t, Same(a, b))
	})

	t.Run("should detect moved text", func(t *testing.T) {
		a := observationAt("a", time.Now(), region)
		moved := region
		moved.Box.Y += 100
		b := observationAt("b", time.Now(), moved)

		assert.False(t, Same(a, b))
	})

	t.Run("should treat window changes as content changes", func(t *testing.T) {
		a := observationAt("a", time.Now(), region)
		a.Window = &schemas.WindowInfo{Title: "Editor"}
		b := observationAt("b", time.Now(), region)
		b.Window = &schemas.WindowInfo{Title: "Browser"}

		assert.False(t, Same(a, b))
	})

	t.Run("should equate empty and nil region slices", func(t *testing.T) {
		a := observationAt("a", time.Now())
		a.Regions = nil
		b := observationAt("b", time.Now())
		b.Regions = []schemas.TextRegion{}

		assert.True(t, Same(a, b))
	})

	t.Run("should handle nil observations", func(t *testing.T) {
		obs := observationAt("a", time.Now(), region)

		assert.True(t, Same(nil, nil))
		assert.False(t, Same(obs, nil))
		assert.False(t, Same(nil, obs))
	})
}

func TestDiff(t *testing.T) {
	region := schemas.TextRegion{Text: "Hello", Confidence: 0.9}

	t.Run("should be empty for matching content", func(t *testing.T) {
		a := observationAt("a", time.Now(), region)
		b := observationAt("b", time.Now().Add(time.Minute), region)

		assert.Empty(t, Diff(a, b))
	})

	t.Run("should describe content changes", func(t *testing.T) {
		a := observationAt("a", time.Now(), region)
		changed := region
		changed.Text = "Goodbye"
		b := observationAt("b", time.Now(), changed)

		diff := Diff(a, b)
		assert.Contains(t, diff, "Hello")
		assert.Contains(t, diff, "Goodbye")
	})

	t.Run("should note a nil side", func(t *testing.T) {
		obs := observationAt("a", time.Now(), region)

		assert.Equal(t, "one observation is nil", Diff(obs, nil))
		assert.Empty(t, Diff(nil, nil))
	})
}
