// Package difference defines the divergences reported by the baseline
// comparators and the two error kinds a regression run can fail with.
package difference

import "fmt"

// Kind classifies a single divergence between a baseline and a current snapshot.
type Kind string

const (
	Added             Kind = "added"
	Removed           Kind = "removed"
	SizeMismatch      Kind = "size-mismatch"
	TypeMismatch      Kind = "type-mismatch"
	ValueMismatch     Kind = "value-mismatch"
	CountMismatch     Kind = "count-mismatch"
	DimensionMismatch Kind = "dimension-mismatch"
	PixelMismatch     Kind = "pixel-mismatch"
)

// Difference is one divergence. Location is a slash path for tree entries, a
// value path ("$.a[2]") for structured data, or a file path for images.
type Difference struct {
	Kind        Kind   `json:"kind"`
	Location    string `json:"location"`
	Description string `json:"description,omitempty"`
}

func (d Difference) String() string {
	if d.Description == "" {
		return fmt.Sprintf("%s %s", d.Kind, d.Location)
	}
	return fmt.Sprintf("%s %s: %s", d.Kind, d.Location, d.Description)
}

// New is a shorthand for building a Difference with a formatted description.
func New(kind Kind, location, format string, args ...any) Difference {
	return Difference{Kind: kind, Location: location, Description: fmt.Sprintf(format, args...)}
}
