package forge_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivdiff/internal/difference"
	"derivdiff/internal/forge"
	"derivdiff/internal/forge/forgetest"
	"derivdiff/internal/svf"
	"derivdiff/internal/svf/svftest"
)

func newClient(s *forgetest.Service, creds forge.Credentials) *forge.Client {
	return forge.NewClient(context.Background(), creds,
		forge.WithBaseURL(s.URL), forge.WithHTTPClient(s.Client()))
}

var goodCreds = forge.Credentials{ClientID: forgetest.ClientID, ClientSecret: forgetest.ClientSecret}

func TestURN(t *testing.T) {
	assert.Equal(t, "dXJuOmFkc2sub2JqZWN0czpvcy5vYmplY3Q6YnVja2V0L2ZpbGUucnZ0",
		forge.URN("urn:adsk.objects:os.object:bucket/file.rvt"))
}

func writeViewable(t *testing.T, files ...svftest.File) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "derivative", "viewable")
	require.NoError(t, svftest.Write(dir, svftest.Viewable{
		Fragments: []svf.Fragment{{Visible: true, GeometryID: 1, DBID: 2}},
		Materials: []map[string]any{{"definition": "SimplePhong"}},
		Files:     files,
	}))
	return dir
}

func TestObjectDetails(t *testing.T) {
	obj := forgetest.Object{Bucket: "ci-models", Key: "house.rvt"}
	s := forgetest.New(t, obj)
	d, err := newClient(s, goodCreds).ObjectDetails(context.Background(), "ci-models", "house.rvt")
	require.NoError(t, err)
	assert.Equal(t, obj.ObjectID(), d.ObjectID)
	assert.Equal(t, obj.URN(), forge.URN(d.ObjectID))
}

func TestNotFoundIsTransportError(t *testing.T) {
	s := forgetest.New(t)
	_, err := newClient(s, goodCreds).ObjectDetails(context.Background(), "b", "missing.rvt")
	require.Error(t, err)
	assert.True(t, difference.IsTransport(err))
	assert.Contains(t, err.Error(), "404")
}

func TestBadCredentials(t *testing.T) {
	s := forgetest.New(t, forgetest.Object{Bucket: "b", Key: "o"})
	_, err := newClient(s, forge.Credentials{ClientID: "x", ClientSecret: "y"}).ObjectDetails(context.Background(), "b", "o")
	require.Error(t, err)
	assert.True(t, difference.IsTransport(err))
}

func TestManifestSearch(t *testing.T) {
	m, err := forge.ParseManifest([]byte(`{
		"urn": "u", "status": "success",
		"derivatives": [{"outputType": "svf", "children": [
			{"guid": "g1", "type": "geometry", "role": "3d", "children": [
				{"guid": "a", "type": "resource", "role": "graphics", "mime": "application/autodesk-svf", "urn": "x/0.svf"},
				{"guid": "b", "type": "resource", "role": "thumbnail", "mime": "image/png"}
			]},
			{"guid": "g2", "type": "geometry", "role": "2d", "children": [
				{"guid": "c", "type": "resource", "role": "graphics", "mime": "application/autodesk-f2d"}
			]}
		]}]
	}`))
	require.NoError(t, err)
	views := m.SVFViewables()
	require.Len(t, views, 1)
	assert.Equal(t, "a", views[0].GUID)
}

func TestExtract(t *testing.T) {
	view := writeViewable(t,
		svftest.Image("Resource/tex/wood.png", []byte("png-bytes")),
		svftest.File{URI: "0.pf", Type: svf.TypePackFile, Data: []byte("geom")},
		svftest.File{URI: "../objects_attrs.json.gz", Type: "Autodesk.CloudPlatform.PropertyAttributes", Data: []byte("attrs")},
	)
	obj := forgetest.Object{Bucket: "ci-models", Key: "house.rvt", Viewables: []forgetest.Viewable{{GUID: "6fb2", Dir: view}}}
	s := forgetest.New(t, obj)

	out := t.TempDir()
	ex := &forge.Extractor{Client: newClient(s, goodCreds)}
	urn, err := ex.Extract(context.Background(), "ci-models", "house.rvt", out)
	require.NoError(t, err)
	assert.Equal(t, obj.URN(), urn)

	urnDir := filepath.Join(out, urn)
	assert.FileExists(t, filepath.Join(urnDir, "manifest.json"))
	assert.FileExists(t, filepath.Join(urnDir, "6fb2", svf.FileName))
	assert.FileExists(t, filepath.Join(urnDir, "6fb2", "0.pf"))
	assert.FileExists(t, filepath.Join(urnDir, "objects_attrs.json.gz"))
	b, err := os.ReadFile(filepath.Join(urnDir, "6fb2", "Resource", "tex", "wood.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(b))

	// Embedded assets are never requested separately.
	for _, p := range s.Requests() {
		assert.NotContains(t, p, "FragmentList.pack")
	}

	r, err := svf.Open(filepath.Join(urnDir, "6fb2"))
	require.NoError(t, err)
	frags, err := r.Fragments()
	require.NoError(t, err)
	assert.Len(t, frags, 1)
}

func TestExtractRefusesEscapingAssets(t *testing.T) {
	view := writeViewable(t, svftest.File{URI: "../../../escape.bin", Type: "x", Data: []byte("x")})
	obj := forgetest.Object{Bucket: "b", Key: "o", Viewables: []forgetest.Viewable{{GUID: "g", Dir: view}}}
	s := forgetest.New(t, obj)

	out := filepath.Join(t.TempDir(), "out")
	_, err := (&forge.Extractor{Client: newClient(s, goodCreds)}).Extract(context.Background(), "b", "o", out)
	require.Error(t, err)
	assert.True(t, difference.IsTransport(err))
}

func TestExtractUnwritableOutputIsTransportError(t *testing.T) {
	obj := forgetest.Object{Bucket: "b", Key: "o", Viewables: []forgetest.Viewable{{GUID: "g", Dir: writeViewable(t)}}}
	s := forgetest.New(t, obj)

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	_, err := (&forge.Extractor{Client: newClient(s, goodCreds)}).Extract(context.Background(), "b", "o", filepath.Join(blocker, "out"))
	require.Error(t, err)
	assert.True(t, difference.IsTransport(err))
	assert.Empty(t, s.Requests(), "no request should be made before the output directory exists")
}
