package svf

import (
	"github.com/pkg/errors"

	"derivdiff/internal/difference"
)

// GeometryMetadata describes one geometry referenced by fragments.
type GeometryMetadata struct {
	FragType  uint8  `json:"fragType"`
	PrimCount uint16 `json:"primCount"`
	PackID    uint64 `json:"packId"`
	EntityID  uint64 `json:"entityId"`
	TopoID    *int32 `json:"topoId,omitempty"`
}

// GeometryMetadata decodes every geometry metadata asset, in manifest order.
func (r *Reader) GeometryMetadata() ([]GeometryMetadata, error) {
	var out []GeometryMetadata
	for _, a := range r.Assets(TypeGeometryMetadata) {
		data, err := r.ReadAsset(a)
		if err != nil {
			return nil, err
		}
		geoms, err := ParseGeometryMetadata(data)
		if err != nil {
			return nil, difference.Transport("decode geometry metadata", a.URI, err)
		}
		out = append(out, geoms...)
	}
	return out, nil
}

// ParseGeometryMetadata decodes a geometry metadata pack file. The topology
// id is present from type set version 3 on.
func ParseGeometryMetadata(data []byte) ([]GeometryMetadata, error) {
	p, err := ParsePack(data)
	if err != nil {
		return nil, err
	}
	out := make([]GeometryMetadata, 0, p.Len())
	for i := 0; i < p.Len(); i++ {
		c, ts, err := p.entry(i)
		if err != nil {
			return nil, err
		}
		var g GeometryMetadata
		g.FragType = c.uint8()
		c.uint8()
		g.PrimCount = c.uint16()
		g.PackID = c.varint()
		g.EntityID = c.varint()
		if ts.Version > 2 {
			topo := c.int32()
			g.TopoID = &topo
		}
		if c.err != nil {
			return nil, errors.Wrapf(c.err, "geometry %d", i)
		}
		out = append(out, g)
	}
	return out, nil
}
