package value

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"derivdiff/internal/diff"
	"derivdiff/internal/difference"
)

// Step is one element of a Path: a map key or a sequence index.
type Step struct {
	Key     string
	Index   int
	IsIndex bool
}

// Path locates a node inside a Value, from the root.
type Path []Step

func (p Path) String() string {
	var b strings.Builder
	b.WriteString("$")
	for _, s := range p {
		if s.IsIndex {
			fmt.Fprintf(&b, "[%d]", s.Index)
			continue
		}
		if isIdent(s.Key) {
			b.WriteString(".")
			b.WriteString(s.Key)
		} else {
			b.WriteString("[")
			b.WriteString(strconv.Quote(s.Key))
			b.WriteString("]")
		}
	}
	return b.String()
}

func (p Path) key(k string) Path { return append(p[:len(p):len(p)], Step{Key: k}) }
func (p Path) index(i int) Path  { return append(p[:len(p):len(p)], Step{Index: i, IsIndex: true}) }

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// Delta is a single structural divergence between a baseline value (A) and a
// current value (B).
type Delta struct {
	Path Path
	Kind difference.Kind
	A, B Value
}

// Difference converts d into the common difference form.
func (d Delta) Difference() difference.Difference {
	loc := d.Path.String()
	switch d.Kind {
	case difference.Added:
		return difference.New(d.Kind, loc, "current has %s", d.B)
	case difference.Removed:
		return difference.New(d.Kind, loc, "baseline has %s", d.A)
	case difference.CountMismatch:
		return difference.New(d.Kind, loc, "baseline has %d elements, current has %d", d.A.Len(), d.B.Len())
	case difference.TypeMismatch:
		return difference.New(d.Kind, loc, "baseline is %s, current is %s", d.A.Kind(), d.B.Kind())
	default:
		return difference.New(d.Kind, loc, "%s != %s", d.A, d.B)
	}
}

// Diff returns every structural divergence between a and b, or nil when they
// are equal. Map equality ignores key order; sequences are index-aligned and
// order-sensitive; numbers compare exactly. The result is deterministic: map
// keys are visited in sorted order.
func Diff(a, b Value) []Delta {
	return diffAt(nil, a, b)
}

// Equal reports whether a and b are structurally equal.
func Equal(a, b Value) bool {
	return len(Diff(a, b)) == 0
}

func diffAt(p Path, a, b Value) []Delta {
	if a.kind != b.kind {
		return []Delta{{Path: p, Kind: difference.TypeMismatch, A: a, B: b}}
	}
	switch a.kind {
	case Null:
		return nil
	case Bool:
		if a.b != b.b {
			return []Delta{{Path: p, Kind: difference.ValueMismatch, A: a, B: b}}
		}
	case Number:
		if !numbersEqual(a.num.String(), b.num.String()) {
			return []Delta{{Path: p, Kind: difference.ValueMismatch, A: a, B: b}}
		}
	case String:
		if a.str != b.str {
			return []Delta{{Path: p, Kind: difference.ValueMismatch, A: a, B: b}}
		}
	case Sequence:
		return diffSequences(p, a, b)
	case Map:
		return diffMaps(p, a, b)
	}
	return nil
}

func diffSequences(p Path, a, b Value) []Delta {
	var out []Delta
	if len(a.seq) != len(b.seq) {
		out = append(out, Delta{Path: p, Kind: difference.CountMismatch, A: a, B: b})
	}
	n := min(len(a.seq), len(b.seq))
	for i := 0; i < n; i++ {
		out = append(out, diffAt(p.index(i), a.seq[i], b.seq[i])...)
	}
	return out
}

func diffMaps(p Path, a, b Value) []Delta {
	var out []Delta
	for _, k := range unionKeys(a, b) {
		av, inA := a.m[k]
		bv, inB := b.m[k]
		switch {
		case !inB:
			out = append(out, Delta{Path: p.key(k), Kind: difference.Removed, A: av})
		case !inA:
			out = append(out, Delta{Path: p.key(k), Kind: difference.Added, B: bv})
		default:
			out = append(out, diffAt(p.key(k), av, bv)...)
		}
	}
	return out
}

func unionKeys(a, b Value) []string {
	seen := make(map[string]struct{}, len(a.m)+len(b.m))
	for k := range a.m {
		seen[k] = struct{}{}
	}
	for k := range b.m {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// numbersEqual compares two JSON number literals exactly, as rationals, so
// 1, 1.0 and 1e0 are equal while large integers never round together.
func numbersEqual(a, b string) bool {
	if a == b {
		return true
	}
	x, okA := new(big.Rat).SetString(a)
	y, okB := new(big.Rat).SetString(b)
	if !okA || !okB {
		return false
	}
	return x.Cmp(y) == 0
}

// Compare runs Diff and turns any divergence into a ComparisonError that
// lists every path difference, followed by a unified patch of both documents.
func Compare(subject string, a, b Value) error {
	deltas := Diff(a, b)
	if len(deltas) == 0 {
		return nil
	}
	diffs := make([]difference.Difference, len(deltas))
	for i, d := range deltas {
		diffs[i] = d.Difference()
	}
	patch, _ := diff.JSON("baseline", "current", a, b, diff.DefaultOptions)
	return &difference.ComparisonError{Subject: subject, Differences: diffs, Detail: patch}
}
