package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivdiff/internal/reconcile"
)

func writeTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"manifest.json":              `{"urn":"x"}`,
		"guid/output.svf":            "zipbytes",
		"guid/Resource/tex/wood.png": "png",
		"objects_attrs.json.gz":      "gz",
	}
	for rel, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o755))
	return dir
}

func TestPackUnpackRoundTrip(t *testing.T) {
	src := writeTree(t)
	var buf bytes.Buffer
	require.NoError(t, Pack(&buf, src))

	dst := filepath.Join(t.TempDir(), "nested", "out")
	require.NoError(t, Unpack(&buf, dst))

	assert.NoError(t, reconcile.Compare(src, dst))
	b, err := os.ReadFile(filepath.Join(dst, "guid", "Resource", "tex", "wood.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(b))
	assert.DirExists(t, filepath.Join(dst, "empty"))
}

func TestPackUnpackRoundTripWithSymlinks(t *testing.T) {
	src := writeTree(t)
	if err := os.Symlink(filepath.Join(src, "manifest.json"), filepath.Join(src, "link.json")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(src, "guid"), filepath.Join(src, "guid-link")))

	var buf bytes.Buffer
	require.NoError(t, Pack(&buf, src))
	dst := t.TempDir()
	require.NoError(t, Unpack(&buf, dst))

	diffs, err := reconcile.Trees(src, dst)
	require.NoError(t, err)
	assert.Empty(t, diffs)
	b, err := os.ReadFile(filepath.Join(dst, "link.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"urn":"x"}`, string(b))
	assert.FileExists(t, filepath.Join(dst, "guid-link", "output.svf"))
}

func TestPackIsReproducible(t *testing.T) {
	src := writeTree(t)
	var a, b bytes.Buffer
	require.NoError(t, Pack(&a, src))
	require.NoError(t, Pack(&b, src))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestUnpackDoesNotEscape(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	body := []byte("owned")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../../evil.txt", Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	_, err := tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())

	root := t.TempDir()
	dst := filepath.Join(root, "a", "b")
	require.NoError(t, Unpack(&buf, dst))
	assert.FileExists(t, filepath.Join(dst, "evil.txt"))
	assert.NoFileExists(t, filepath.Join(root, "evil.txt"))
}

func TestUnpackRejectsGarbage(t *testing.T) {
	assert.Error(t, Unpack(bytes.NewReader([]byte("not a tarball")), t.TempDir()))
}

func TestSanitizePath(t *testing.T) {
	cases := map[string]string{
		"a/b/c.txt":   "a/b/c.txt",
		"/abs/path":   "abs/path",
		"a/../../b":   "b",
		"./x/./y":     "x/y",
		"C:/win/file": "win/file",
		"..":          "",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizePath(in), in)
	}
}
