// Package records compares ordered lists of derivative records: scene
// fragments, materials and geometry metadata.
//
// Unlike the tree reconciler, these comparisons stop at the first divergent
// index. A length mismatch fails before any element is inspected.
package records

import (
	"fmt"

	"derivdiff/internal/difference"
	"derivdiff/internal/value"
)

// ElementFunc compares the records at index i and returns a non-nil error
// when they diverge.
type ElementFunc[T any] func(i int, a, b T) error

// Ordered compares a and b index by index and returns the first failure.
func Ordered[T any](subject string, a, b []T, cmp ElementFunc[T]) error {
	if len(a) != len(b) {
		return &difference.ComparisonError{
			Subject: subject,
			Differences: []difference.Difference{
				difference.New(difference.CountMismatch, subject,
					"baseline has %d records, current has %d", len(a), len(b)),
			},
		}
	}
	for i := range a {
		if err := cmp(i, a[i], b[i]); err != nil {
			return err
		}
	}
	return nil
}

// Fragment is the identity of a scene fragment. Two fragments at the same
// index are equal when these three fields are equal.
type Fragment struct {
	InstanceID uint64 `json:"instanceId"`
	GeometryID uint64 `json:"geometryId"`
	MaterialID uint64 `json:"materialId"`
}

// Fragments compares two fragment lists.
func Fragments(a, b []Fragment) error {
	const subject = "fragments"
	return Ordered(subject, a, b, func(i int, x, y Fragment) error {
		var diffs []difference.Difference
		field := func(name string, xv, yv uint64) {
			if xv != yv {
				diffs = append(diffs, difference.New(difference.ValueMismatch,
					fmt.Sprintf("[%d].%s", i, name), "baseline %d, current %d", xv, yv))
			}
		}
		field("instanceId", x.InstanceID, y.InstanceID)
		field("geometryId", x.GeometryID, y.GeometryID)
		field("materialId", x.MaterialID, y.MaterialID)
		return difference.Compare(fmt.Sprintf("%s at index %d", subject, i), diffs)
	})
}

// Structured compares two lists of opaque records by full structural
// equality, e.g. materials or geometry metadata.
func Structured(subject string, a, b []value.Value) error {
	return Ordered(subject, a, b, func(i int, x, y value.Value) error {
		return value.Compare(fmt.Sprintf("%s at index %d", subject, i), x, y)
	})
}

// Values converts typed records into Values for Structured.
func Values[T any](items []T) ([]value.Value, error) {
	out := make([]value.Value, len(items))
	for i, it := range items {
		v, err := value.Of(it)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
