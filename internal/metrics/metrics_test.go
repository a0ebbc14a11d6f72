package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepRecordsOutcomeAndDuration(t *testing.T) {
	r := NewRecorder()
	clock := time.Unix(1000, 0)
	r.now = func() time.Time {
		clock = clock.Add(2 * time.Second)
		return clock
	}

	boom := errors.New("boom")
	assert.NoError(t, r.Step("t", "download", func() error { return nil }))
	assert.Equal(t, boom, r.Step("t", "compare", func() error { return boom }))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepTotal.WithLabelValues("t", "download", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepTotal.WithLabelValues("t", "compare", "failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.stepSeconds.WithLabelValues("t", "compare")))
}

func TestWriteFile(t *testing.T) {
	r := NewRecorder()
	r.Differences("t", "folder structures", 3)
	r.Finish("t", nil)

	path := filepath.Join(t.TempDir(), "derivdiff.prom")
	require.NoError(t, r.WriteFile(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `derivdiff_differences{comparator="folder structures",test="t"} 3`)
	assert.Contains(t, string(b), `derivdiff_last_run_timestamp_seconds{result="success",test="t"}`)
}
