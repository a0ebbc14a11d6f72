package svf

import (
	"github.com/pkg/errors"

	"derivdiff/internal/difference"
)

// Transform kinds stored in fragment entries.
const (
	XformTranslation uint8 = iota
	XformRotationTranslation
	XformUniformScaleRotationTranslation
	XformAffine
)

// Transform places a fragment in the scene. Only the fields relevant to Kind
// are set.
type Transform struct {
	Kind        uint8       `json:"kind"`
	Translation [3]float64  `json:"t"`
	Rotation    *[4]float32 `json:"q,omitempty"`
	Scale       *float32    `json:"s,omitempty"`
	Matrix      *[9]float32 `json:"matrix,omitempty"`
}

// Fragment is one scene placement record.
type Fragment struct {
	Visible    bool       `json:"visible"`
	MaterialID uint64     `json:"materialId"`
	GeometryID uint64     `json:"geometryId"`
	Transform  Transform  `json:"transform"`
	BBox       [6]float32 `json:"bbox"`
	DBID       uint64     `json:"dbId"`
}

// Fragments decodes every fragment list asset, in manifest order.
func (r *Reader) Fragments() ([]Fragment, error) {
	var out []Fragment
	for _, a := range r.Assets(TypeFragmentList) {
		data, err := r.ReadAsset(a)
		if err != nil {
			return nil, err
		}
		frags, err := ParseFragments(data)
		if err != nil {
			return nil, difference.Transport("decode fragments", a.URI, err)
		}
		out = append(out, frags...)
	}
	return out, nil
}

// ParseFragments decodes a fragment list pack file.
func ParseFragments(data []byte) ([]Fragment, error) {
	p, err := ParsePack(data)
	if err != nil {
		return nil, err
	}
	out := make([]Fragment, 0, p.Len())
	for i := 0; i < p.Len(); i++ {
		c, _, err := p.entry(i)
		if err != nil {
			return nil, err
		}
		var f Fragment
		f.Visible = c.uint8()&0x01 != 0
		f.MaterialID = c.varint()
		f.GeometryID = c.varint()
		f.Transform, err = readTransform(c)
		if err != nil {
			return nil, errors.Wrapf(err, "fragment %d", i)
		}
		for j := range f.BBox {
			f.BBox[j] = c.float32()
		}
		f.DBID = c.varint()
		if c.err != nil {
			return nil, errors.Wrapf(c.err, "fragment %d", i)
		}
		out = append(out, f)
	}
	return out, nil
}

func readTransform(c *cursor) (Transform, error) {
	t := Transform{Kind: c.uint8()}
	switch t.Kind {
	case XformTranslation:
	case XformRotationTranslation:
		t.Rotation = readQuat(c)
	case XformUniformScaleRotationTranslation:
		s := c.float32()
		t.Scale = &s
		t.Rotation = readQuat(c)
	case XformAffine:
		var m [9]float32
		for i := range m {
			m[i] = c.float32()
		}
		t.Matrix = &m
	default:
		return t, errors.Errorf("unknown transform kind %d", t.Kind)
	}
	for i := range t.Translation {
		t.Translation[i] = c.float64()
	}
	return t, nil
}

func readQuat(c *cursor) *[4]float32 {
	var q [4]float32
	for i := range q {
		q[i] = c.float32()
	}
	return &q
}
