// Package svftest writes synthetic viewable directories for tests: an
// output.svf scene package with fragment, geometry and material assets, plus
// external image and pack files.
package svftest

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"derivdiff/internal/svf"
)

// File is an external asset written next to the scene package.
type File struct {
	URI  string
	Type string
	Data []byte
}

// Viewable describes the content of one synthetic viewable.
type Viewable struct {
	Fragments  []svf.Fragment
	Geometries []svf.GeometryMetadata
	// GeometryVersion is the type set version of geometry entries; 0 means 3.
	GeometryVersion uint64
	Materials       []map[string]any
	// Files are written relative to the viewable directory and listed in the
	// manifest in order.
	Files []File
}

// Image is a convenience constructor for an external image asset.
func Image(uri string, data []byte) File {
	return File{URI: uri, Type: svf.TypeImage, Data: data}
}

// Write creates dir and writes the viewable into it. Scene package entries
// are stored uncompressed, so payloads of equal length give packages of
// equal size.
func Write(dir string, v Viewable) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	gv := v.GeometryVersion
	if gv == 0 {
		gv = 3
	}
	mats, err := materialsDoc(v.Materials)
	if err != nil {
		return err
	}
	embedded := []struct {
		name, typ string
		data      []byte
	}{
		{"FragmentList.pack", svf.TypeFragmentList, EncodeFragments(v.Fragments)},
		{"GeometryMetadata.pf", svf.TypeGeometryMetadata, EncodeGeometryMetadata(v.Geometries, gv)},
		{"Materials.json.gz", svf.TypeMaterials, mats},
	}

	man := svf.Manifest{Name: "LMV Manifest", Version: "1.0"}
	for _, e := range embedded {
		man.Assets = append(man.Assets, svf.Asset{
			ID: e.name, Type: e.typ, URI: svf.EmbedPrefix + e.name, Size: int64(len(e.data)),
		})
	}
	for _, f := range v.Files {
		man.Assets = append(man.Assets, svf.Asset{
			ID: filepath.Base(f.URI), Type: f.Type, URI: f.URI, Size: int64(len(f.Data)),
		})
		path := filepath.Join(dir, filepath.FromSlash(f.URI))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			return err
		}
	}
	manJSON, err := json.Marshal(man)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(name string, data []byte) error {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	if err := add("manifest.json", manJSON); err != nil {
		return err
	}
	for _, e := range embedded {
		if err := add(e.name, e.data); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, svf.FileName), buf.Bytes(), 0o644)
}

func materialsDoc(mats []map[string]any) ([]byte, error) {
	m := make(map[string]any, len(mats))
	for i, mat := range mats {
		m[strconv.Itoa(i)] = mat
	}
	raw, err := json.Marshal(map[string]any{
		"name":      "LMVTK Simple Materials",
		"version":   "1.0",
		"materials": m,
	})
	if err != nil {
		return nil, err
	}
	return Gzip(raw), nil
}

// Gzip compresses b.
func Gzip(b []byte) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write(b)
	_ = zw.Close()
	return buf.Bytes()
}

// EncodeFragments encodes a fragment list pack file.
func EncodeFragments(frags []svf.Fragment) []byte {
	entries := make([][]byte, len(frags))
	for i, f := range frags {
		var e encoder
		flags := uint8(0)
		if f.Visible {
			flags = 1
		}
		e.u8(flags)
		e.varint(f.MaterialID)
		e.varint(f.GeometryID)
		e.transform(f.Transform)
		for _, v := range f.BBox {
			e.f32(v)
		}
		e.varint(f.DBID)
		entries[i] = e.Bytes()
	}
	return EncodePack("Autodesk.CloudPlatform.FragmentList", 2,
		[]svf.TypeSet{{Class: "Autodesk.CloudPlatform.FragmentList", Type: "Autodesk.CloudPlatform.Fragment", Version: 5}},
		entries)
}

// EncodeGeometryMetadata encodes a geometry metadata pack file whose entries
// use the given type set version.
func EncodeGeometryMetadata(geoms []svf.GeometryMetadata, version uint64) []byte {
	entries := make([][]byte, len(geoms))
	for i, g := range geoms {
		var e encoder
		e.u8(g.FragType)
		e.u8(0)
		e.u16(g.PrimCount)
		e.varint(g.PackID)
		e.varint(g.EntityID)
		if version > 2 {
			var topo int32
			if g.TopoID != nil {
				topo = *g.TopoID
			}
			e.u32(uint32(topo))
		}
		entries[i] = e.Bytes()
	}
	return EncodePack("Autodesk.CloudPlatform.GeometryMetadataList", 1,
		[]svf.TypeSet{{Class: "Autodesk.CloudPlatform.GeometryMetadataList", Type: "Autodesk.CloudPlatform.GeometryMetadata", Version: version}},
		entries)
}

// EncodePack lays out a pack file whose entries all use type set 0.
func EncodePack(typ string, version int32, types []svf.TypeSet, entries [][]byte) []byte {
	var e encoder
	e.str(typ)
	e.u32(uint32(version))

	offsets := make([]uint32, len(entries))
	for i, payload := range entries {
		offsets[i] = uint32(e.Len())
		e.u32(0)
		e.Write(payload)
	}

	entriesOff := uint32(e.Len())
	e.varint(uint64(len(offsets)))
	for _, o := range offsets {
		e.u32(o)
	}

	typesOff := uint32(e.Len())
	e.varint(uint64(len(types)))
	for _, ts := range types {
		e.str(ts.Class)
		e.str(ts.Type)
		e.varint(ts.Version)
	}

	e.u32(entriesOff)
	e.u32(typesOff)
	return e.Bytes()
}

type encoder struct{ bytes.Buffer }

func (e *encoder) u8(v uint8) { e.WriteByte(v) }

func (e *encoder) u16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.Write(b[:])
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.Write(b[:])
}

func (e *encoder) f32(v float32) { e.u32(math.Float32bits(v)) }

func (e *encoder) f64(v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	e.Write(b[:])
}

func (e *encoder) varint(v uint64) {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], v)
	e.Write(b[:n])
}

func (e *encoder) str(s string) {
	e.varint(uint64(len(s)))
	e.WriteString(s)
}

func (e *encoder) transform(t svf.Transform) {
	e.u8(t.Kind)
	switch t.Kind {
	case svf.XformRotationTranslation:
		e.quat(t.Rotation)
	case svf.XformUniformScaleRotationTranslation:
		var s float32 = 1
		if t.Scale != nil {
			s = *t.Scale
		}
		e.f32(s)
		e.quat(t.Rotation)
	case svf.XformAffine:
		var m [9]float32
		if t.Matrix != nil {
			m = *t.Matrix
		}
		for _, v := range m {
			e.f32(v)
		}
	}
	for _, v := range t.Translation {
		e.f64(v)
	}
}

func (e *encoder) quat(q *[4]float32) {
	v := [4]float32{0, 0, 0, 1}
	if q != nil {
		v = *q
	}
	for _, x := range v {
		e.f32(x)
	}
}
