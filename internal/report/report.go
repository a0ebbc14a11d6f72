// Package report writes the outcome of a regression run as a reproducible
// zip archive:
//
//	report.json     # test name, status, error kind and differences
//	detail.patch    # unified patch of the failing documents, when available
//
// Entries have fixed timestamps and sanitized names so identical outcomes
// yield identical archives.
package report

import (
	"archive/zip"
	"encoding/json"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"derivdiff/internal/archive"
	"derivdiff/internal/difference"
)

// Status values.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
)

// Report is the content of report.json.
type Report struct {
	Test        string                  `json:"test"`
	Mode        string                  `json:"mode,omitempty"`
	Status      string                  `json:"status"`
	ErrorKind   string                  `json:"errorKind,omitempty"`
	Error       string                  `json:"error,omitempty"`
	Subject     string                  `json:"subject,omitempty"`
	Differences []difference.Difference `json:"differences,omitempty"`

	detail string
}

// New summarizes the outcome err of the run test. A nil err is a pass.
func New(test, mode string, err error) Report {
	r := Report{Test: test, Mode: mode, Status: StatusPassed}
	if err == nil {
		return r
	}
	r.Status = StatusFailed
	r.ErrorKind = difference.KindOf(err)
	r.Error = err.Error()
	var ce *difference.ComparisonError
	if stderrors.As(err, &ce) {
		r.Subject = ce.Subject
		r.Differences = ce.Differences
		r.detail = ce.Detail
	}
	return r
}

// Detail returns the unified patch carried by the failure, if any.
func (r Report) Detail() string { return r.detail }

// WriteFile writes the report archive to path, creating parent directories.
func WriteFile(path string, r Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Write writes the report archive to w.
func Write(w io.Writer, r Report) error {
	zw := zip.NewWriter(w)
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode report.json")
	}
	if err := writeEntry(zw, "report.json", append(b, '\n')); err != nil {
		return err
	}
	if r.detail != "" {
		if err := writeEntry(zw, "detail.patch", []byte(r.detail)); err != nil {
			return err
		}
	}
	return errors.Wrap(zw.Close(), "close report")
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	h := &zip.FileHeader{Name: archive.SanitizePath(name), Method: zip.Deflate}
	h.SetMode(0o644)
	h.Modified = archive.FixedTime
	w, err := zw.CreateHeader(h)
	if err != nil {
		return errors.Wrapf(err, "create %s", name)
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrapf(err, "write %s", name)
	}
	return nil
}
