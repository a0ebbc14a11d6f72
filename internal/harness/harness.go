// Package harness drives a derivative regression run: it fetches the
// accepted baseline, extracts fresh derivatives, runs the comparison chain
// and, on request, promotes the fresh derivatives to be the new baseline.
//
// Every step runs to completion before the next starts, and the first error
// aborts the run.
package harness

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"derivdiff/internal/difference"
	"derivdiff/internal/imagediff"
	"derivdiff/internal/metrics"
	"derivdiff/internal/validate"
)

// Run steps.
const (
	StepDownload = "download"
	StepExtract  = "extract"
	StepCompare  = "compare"
	StepUpload   = "upload"
)

// Snapshots stores and restores baseline trees by test name.
type Snapshots interface {
	Download(ctx context.Context, testName, dstDir string) error
	Upload(ctx context.Context, testName, srcDir string) error
}

// Extractor writes the current derivatives of bucket/object into outDir.
type Extractor interface {
	Extract(ctx context.Context, bucket, object, outDir string) (string, error)
}

// Harness holds the collaborators of a run.
type Harness struct {
	Snapshots Snapshots
	Extractor Extractor
	Metrics   *metrics.Recorder
	Logger    log.Logger
	// WorkDir holds <testName>/baseline and <testName>/current.
	WorkDir string
	// Threshold is the image comparison tolerance, used as is: 0 is the
	// strictest setting.
	Threshold float64
}

// New returns a Harness with the default image threshold, a fresh metrics
// recorder and a no-op logger.
func New(snapshots Snapshots, extractor Extractor, workDir string) *Harness {
	return &Harness{
		Snapshots: snapshots,
		Extractor: extractor,
		Metrics:   metrics.NewRecorder(),
		Logger:    log.NewNopLogger(),
		WorkDir:   workDir,
		Threshold: imagediff.DefaultThreshold,
	}
}

// TestName returns the baseline name for an uploaded object.
func TestName(bucket, object string) string {
	return "model-derivative/basic/" + bucket + "/" + object
}

// Dirs returns the scratch directories of testName.
func (h *Harness) Dirs(testName string) (baseline, current string) {
	root := filepath.Join(h.WorkDir, filepath.FromSlash(testName))
	return filepath.Join(root, "baseline"), filepath.Join(root, "current")
}

func (h *Harness) logger() log.Logger {
	if h.Logger == nil {
		return log.NewNopLogger()
	}
	return h.Logger
}

func (h *Harness) recorder() *metrics.Recorder {
	if h.Metrics == nil {
		h.Metrics = metrics.NewRecorder()
	}
	return h.Metrics
}

// Run executes the regression test for bucket/object. With update set, the
// fresh derivatives are extracted and uploaded as the new baseline without
// any comparison; otherwise the baseline is downloaded and compared.
func (h *Harness) Run(ctx context.Context, bucket, object string, update bool) error {
	testName := TestName(bucket, object)
	if err := validate.TestName(testName); err != nil {
		return err
	}
	logger := log.With(h.logger(), "test", testName)
	rec := h.recorder()
	baselineDir, currentDir := h.Dirs(testName)

	err := h.run(ctx, logger, rec, testName, bucket, object, baselineDir, currentDir, update)
	rec.Finish(testName, err)
	if err != nil {
		level.Error(logger).Log("msg", "run failed", "kind", difference.KindOf(err), "err", err)
		return err
	}
	level.Info(logger).Log("msg", "run passed", "update", update)
	return nil
}

func (h *Harness) run(ctx context.Context, logger log.Logger, rec *metrics.Recorder, testName, bucket, object, baselineDir, currentDir string, update bool) error {
	step := func(name string, fn func() error) error {
		level.Info(logger).Log("step", name)
		return rec.Step(testName, name, fn)
	}

	if !update {
		if err := step(StepDownload, func() error {
			if err := resetDir(baselineDir); err != nil {
				return difference.Transport("prepare", baselineDir, err)
			}
			return h.Snapshots.Download(ctx, testName, baselineDir)
		}); err != nil {
			return err
		}
	}

	if err := step(StepExtract, func() error {
		if err := resetDir(currentDir); err != nil {
			return difference.Transport("prepare", currentDir, err)
		}
		urn, err := h.Extractor.Extract(ctx, bucket, object, currentDir)
		if err == nil {
			level.Debug(logger).Log("msg", "extracted", "urn", urn)
		}
		return err
	}); err != nil {
		return err
	}

	if update {
		return step(StepUpload, func() error {
			return h.Snapshots.Upload(ctx, testName, currentDir)
		})
	}

	return step(StepCompare, func() error {
		err := h.Compare(baselineDir, currentDir)
		var ce *difference.ComparisonError
		if stderrors.As(err, &ce) {
			rec.Differences(testName, ce.Subject, len(ce.Differences))
		}
		return err
	})
}

// resetDir empties dir, creating it when absent.
func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
