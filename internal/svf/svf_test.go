package svf_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivdiff/internal/difference"
	"derivdiff/internal/svf"
	"derivdiff/internal/svf/svftest"
)

func f32(v float32) *float32 { return &v }
func i32(v int32) *int32     { return &v }

func sampleFragments() []svf.Fragment {
	return []svf.Fragment{
		{Visible: true, MaterialID: 0, GeometryID: 3, DBID: 17,
			Transform: svf.Transform{Kind: svf.XformTranslation, Translation: [3]float64{1, 2, 3}},
			BBox:      [6]float32{0, 0, 0, 1, 1, 1}},
		{Visible: false, MaterialID: 1, GeometryID: 4, DBID: 300,
			Transform: svf.Transform{Kind: svf.XformRotationTranslation, Rotation: &[4]float32{0, 0, 0.7071, 0.7071}, Translation: [3]float64{-5, 0, 1e6}}},
		{Visible: true, MaterialID: 2, GeometryID: 5, DBID: 18,
			Transform: svf.Transform{Kind: svf.XformUniformScaleRotationTranslation, Scale: f32(2.5), Rotation: &[4]float32{0, 0, 0, 1}}},
		{Visible: true, MaterialID: 0, GeometryID: 6, DBID: 19,
			Transform: svf.Transform{Kind: svf.XformAffine, Matrix: &[9]float32{1, 0, 0, 0, 1, 0, 0, 0, 1}, Translation: [3]float64{0.5, 0.5, 0.5}}},
	}
}

func TestReaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	geoms := []svf.GeometryMetadata{
		{FragType: 1, PrimCount: 12, PackID: 0, EntityID: 4, TopoID: i32(-1)},
		{FragType: 1, PrimCount: 300, PackID: 1, EntityID: 0, TopoID: i32(7)},
	}
	require.NoError(t, svftest.Write(dir, svftest.Viewable{
		Fragments:  sampleFragments(),
		Geometries: geoms,
		Materials: []map[string]any{
			{"definition": "SimplePhong", "tag": "a"},
			{"definition": "SimplePhong", "tag": "b"},
		},
		Files: []svftest.File{
			{URI: "0.pf", Type: svf.TypePackFile, Data: []byte("geometry")},
			svftest.Image("Resource/tex/wood.png", []byte("png")),
			svftest.Image("Resource/tex/steel.png", []byte("png")),
		},
	}))

	r, err := svf.Open(dir)
	require.NoError(t, err)

	frags, err := r.Fragments()
	require.NoError(t, err)
	assert.Equal(t, sampleFragments(), frags)

	got, err := r.GeometryMetadata()
	require.NoError(t, err)
	assert.Equal(t, geoms, got)

	mats, err := r.Materials()
	require.NoError(t, err)
	require.Len(t, mats, 2)
	tag, _ := mats[1].Get("tag")
	assert.Equal(t, "b", tag.Str())

	assert.Equal(t, []string{"Resource/tex/wood.png", "Resource/tex/steel.png"}, r.ListImages())

	data, err := r.ReadAsset(r.Assets(svf.TypePackFile)[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("geometry"), data)
}

func TestGeometryWithoutTopology(t *testing.T) {
	geoms := []svf.GeometryMetadata{{FragType: 2, PrimCount: 1, PackID: 9, EntityID: 1}}
	got, err := svf.ParseGeometryMetadata(svftest.EncodeGeometryMetadata(geoms, 2))
	require.NoError(t, err)
	assert.Equal(t, geoms, got)
}

func TestGzippedPack(t *testing.T) {
	frags, err := svf.ParseFragments(svftest.Gzip(svftest.EncodeFragments(sampleFragments())))
	require.NoError(t, err)
	assert.Len(t, frags, 4)
}

func TestMaterialsOrderedNumerically(t *testing.T) {
	mats := make([]map[string]any, 12)
	for i := range mats {
		mats[i] = map[string]any{"n": i}
	}
	dir := t.TempDir()
	require.NoError(t, svftest.Write(dir, svftest.Viewable{Materials: mats}))
	r, err := svf.Open(dir)
	require.NoError(t, err)
	got, err := r.Materials()
	require.NoError(t, err)
	require.Len(t, got, 12)
	for i, m := range got {
		n, _ := m.Get("n")
		assert.Equal(t, strconv.Itoa(i), n.Num().String())
	}
}

func TestTruncatedPack(t *testing.T) {
	data := svftest.EncodeFragments(sampleFragments())
	binary.LittleEndian.PutUint32(data[len(data)-8:], uint32(len(data)+10))
	_, err := svf.ParseFragments(data)
	assert.Error(t, err)
	_, err = svf.ParsePack([]byte{1, 2})
	assert.Error(t, err)
}

func TestOpenMissingPackage(t *testing.T) {
	_, err := svf.Open(t.TempDir())
	require.Error(t, err)
	assert.True(t, difference.IsTransport(err))
}

func TestOpenRejectsNonZip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, svf.FileName), []byte("nope"), 0o644))
	_, err := svf.Open(dir)
	require.Error(t, err)
	assert.True(t, difference.IsTransport(err))
}

func TestMissingExternalAsset(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, svftest.Write(dir, svftest.Viewable{
		Files: []svftest.File{svftest.Image("Resource/a.png", []byte("x"))},
	}))
	require.NoError(t, os.Remove(filepath.Join(dir, "Resource", "a.png")))
	r, err := svf.Open(dir)
	require.NoError(t, err)
	_, err = r.ReadAsset(r.Assets(svf.TypeImage)[0])
	assert.True(t, difference.IsTransport(err))
}
