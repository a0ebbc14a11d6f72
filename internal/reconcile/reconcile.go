// Package reconcile diffs two directory trees by entry name.
//
// Files are compared by size only: two files of equal size are equal
// regardless of content. Every divergence in the whole tree is collected and
// reported together.
package reconcile

import (
	"path"
	"path/filepath"
	"sort"

	"derivdiff/internal/difference"
	"derivdiff/internal/scan"
)

// pair holds the entries found under one name on each side.
type pair struct {
	a, b *scan.Entry
}

// Trees returns all differences between the baseline tree a and the current
// tree b, in sorted path order.
func Trees(a, b string) ([]difference.Difference, error) {
	return level(a, b, "")
}

// Compare reconciles a and b and fails with one aggregated ComparisonError
// when any difference exists.
func Compare(a, b string) error {
	diffs, err := Trees(a, b)
	if err != nil {
		return err
	}
	return difference.Compare("folder structures", diffs)
}

func level(aDir, bDir, rel string) ([]difference.Difference, error) {
	aEntries, err := scan.Level(aDir)
	if err != nil {
		return nil, difference.Transport("scan", aDir, err)
	}
	bEntries, err := scan.Level(bDir)
	if err != nil {
		return nil, difference.Transport("scan", bDir, err)
	}
	byName := indexByName(aEntries, bEntries)

	var out []difference.Difference
	for _, name := range sortedNames(byName) {
		p := byName[name]
		loc := path.Join(rel, name)
		switch {
		case p.a == nil:
			out = append(out, difference.New(difference.Added, loc, "%s present only in current", p.b.Kind))
		case p.b == nil:
			out = append(out, difference.New(difference.Removed, loc, "%s present only in baseline", p.a.Kind))
		case p.a.Kind == scan.Dir && p.b.Kind == scan.Dir:
			sub, err := level(filepath.Join(aDir, name), filepath.Join(bDir, name), loc)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		case p.a.Kind == scan.File && p.b.Kind == scan.File:
			if p.a.Size != p.b.Size {
				out = append(out, difference.New(difference.SizeMismatch, loc,
					"baseline %d bytes, current %d bytes", p.a.Size, p.b.Size))
			}
		case p.a.Kind == p.b.Kind:
			// Neither file nor directory on both sides; nothing to compare.
		default:
			out = append(out, difference.New(difference.TypeMismatch, loc,
				"baseline is a %s, current is a %s", p.a.Kind, p.b.Kind))
		}
	}
	return out, nil
}

func indexByName(aEntries, bEntries []scan.Entry) map[string]*pair {
	m := make(map[string]*pair, len(aEntries)+len(bEntries))
	for i := range aEntries {
		m[aEntries[i].Name] = &pair{a: &aEntries[i]}
	}
	for i := range bEntries {
		e := &bEntries[i]
		if p, ok := m[e.Name]; ok {
			p.b = e
			continue
		}
		m[e.Name] = &pair{b: e}
	}
	return m
}

func sortedNames(m map[string]*pair) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
