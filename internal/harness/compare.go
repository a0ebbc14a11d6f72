package harness

import (
	"os"
	"path/filepath"

	"github.com/go-kit/log/level"

	"derivdiff/internal/difference"
	"derivdiff/internal/imagediff"
	"derivdiff/internal/propdb"
	"derivdiff/internal/reconcile"
	"derivdiff/internal/records"
	"derivdiff/internal/scan"
	"derivdiff/internal/svf"
	"derivdiff/internal/value"
)

// Compare runs the comparison chain over a baseline and a current derivative
// tree and returns the first failure:
//
//  1. folder structures of both trees (every difference reported)
//  2. per derivative directory, in name order: the property database
//  3. per viewable with a scene package, in name order: fragments,
//     materials, geometry metadata, then textures
func (h *Harness) Compare(baselineDir, currentDir string) error {
	if err := h.check("folder structures", func() error {
		return reconcile.Compare(baselineDir, currentDir)
	}); err != nil {
		return err
	}

	derivatives, err := scan.Subdirs(baselineDir)
	if err != nil {
		return difference.Transport("scan", baselineDir, err)
	}
	for _, d := range derivatives {
		bd, cd := filepath.Join(baselineDir, d), filepath.Join(currentDir, d)
		if propdb.Present(bd) {
			if err := h.check("property database", func() error {
				return propdb.Compare(bd, cd)
			}); err != nil {
				return err
			}
		}
		viewables, err := scan.Subdirs(bd)
		if err != nil {
			return difference.Transport("scan", bd, err)
		}
		for _, v := range viewables {
			bv, cv := filepath.Join(bd, v), filepath.Join(cd, v)
			if !isFile(filepath.Join(bv, svf.FileName)) {
				continue
			}
			if err := h.compareViewable(bv, cv); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Harness) compareViewable(baselineDir, currentDir string) error {
	a, err := svf.Open(baselineDir)
	if err != nil {
		return err
	}
	b, err := svf.Open(currentDir)
	if err != nil {
		return err
	}

	if err := h.check("fragments", func() error {
		fa, err := fragments(a)
		if err != nil {
			return err
		}
		fb, err := fragments(b)
		if err != nil {
			return err
		}
		return records.Fragments(fa, fb)
	}); err != nil {
		return err
	}

	if err := h.check("materials", func() error {
		ma, err := a.Materials()
		if err != nil {
			return err
		}
		mb, err := b.Materials()
		if err != nil {
			return err
		}
		return records.Structured("materials", ma, mb)
	}); err != nil {
		return err
	}

	if err := h.check("geometry metadata", func() error {
		ga, err := geometries(a)
		if err != nil {
			return err
		}
		gb, err := geometries(b)
		if err != nil {
			return err
		}
		return records.Structured("geometry metadata", ga, gb)
	}); err != nil {
		return err
	}

	return h.check("textures", func() error {
		return imagediff.CompareTextures(a, baselineDir, b, currentDir, h.Threshold)
	})
}

// check runs one comparator and logs which one failed.
func (h *Harness) check(comparator string, fn func() error) error {
	logger := h.logger()
	level.Debug(logger).Log("msg", "comparing", "comparator", comparator)
	err := fn()
	if err != nil {
		level.Warn(logger).Log("msg", "comparator failed", "comparator", comparator, "kind", difference.KindOf(err))
	}
	return err
}

func fragments(r *svf.Reader) ([]records.Fragment, error) {
	frags, err := r.Fragments()
	if err != nil {
		return nil, err
	}
	out := make([]records.Fragment, len(frags))
	for i, f := range frags {
		out[i] = records.Fragment{InstanceID: f.DBID, GeometryID: f.GeometryID, MaterialID: f.MaterialID}
	}
	return out, nil
}

func geometries(r *svf.Reader) ([]value.Value, error) {
	geoms, err := r.GeometryMetadata()
	if err != nil {
		return nil, err
	}
	vs, err := records.Values(geoms)
	if err != nil {
		return nil, difference.Transport("decode geometry metadata", r.Dir(), err)
	}
	return vs, nil
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
