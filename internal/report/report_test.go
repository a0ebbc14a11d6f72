package report

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivdiff/internal/difference"
)

func entries(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = b
	}
	return out
}

func TestComparisonFailure(t *testing.T) {
	cmpErr := &difference.ComparisonError{
		Subject: "objects_ids.json.gz",
		Differences: []difference.Difference{
			difference.New(difference.ValueMismatch, "$[2]", `"c3d4" != "ffff"`),
		},
		Detail: "--- baseline\n+++ current\n@@ -1 +1 @@\n",
	}
	r := New("model-derivative/basic/b/o", "compare", errors.Wrap(cmpErr, "compare chain"))
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, "comparison", r.ErrorKind)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, r))
	files := entries(t, buf.Bytes())
	require.Contains(t, files, "report.json")
	assert.Equal(t, cmpErr.Detail, string(files["detail.patch"]))

	var got map[string]any
	require.NoError(t, json.Unmarshal(files["report.json"], &got))
	assert.Equal(t, "objects_ids.json.gz", got["subject"])
	assert.Len(t, got["differences"], 1)
}

func TestPassHasNoDetail(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, New("t", "compare", nil)))
	files := entries(t, buf.Bytes())
	assert.Len(t, files, 1)
	assert.Contains(t, string(files["report.json"]), `"status": "passed"`)
}

func TestTransportFailure(t *testing.T) {
	r := New("t", "run", difference.Transport("download baseline", "baselines/t.tar.gz", errors.New("timeout")))
	assert.Equal(t, "transport", r.ErrorKind)
	assert.Empty(t, r.Differences)
}

func TestWriteIsReproducible(t *testing.T) {
	r := New("t", "compare", difference.Compare("folder structures", []difference.Difference{
		difference.New(difference.Added, "c.txt", "file present only in current"),
	}))
	var a, b bytes.Buffer
	require.NoError(t, Write(&a, r))
	require.NoError(t, Write(&b, r))
	assert.Equal(t, a.Bytes(), b.Bytes())

	path := filepath.Join(t.TempDir(), "out", "report.zip")
	require.NoError(t, WriteFile(path, r))
	assert.FileExists(t, path)
}
