package observer

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// compareOpts ignores the fields that differ between two captures of an
// unchanged screen: identifiers, image paths and timestamps. What remains is
// the perceived content.
var compareOpts = []cmp.Option{
	cmpopts.IgnoreFields(schemas.Observation{}, "ID", "TaskID", "ImagePath", "CapturedAt"),
	cmpopts.EquateEmpty(),
}

// Same reports whether two observations show the same screen content. This
// is the comparison the planning layer relies on for no-change detection:
// capturing an unchanged screen twice yields Same == true.
func Same(a, b *schemas.Observation) bool {
	if a == nil || b == nil {
		return a == b
	}
	return cmp.Equal(a, b, compareOpts...)
}

// Diff renders the content difference between two observations for debug
// logging; empty when Same(a, b).
func Diff(a, b *schemas.Observation) string {
	if a == nil || b == nil {
		if a == b {
			return ""
		}
		return "one observation is nil"
	}
	return cmp.Diff(a, b, compareOpts...)
}
