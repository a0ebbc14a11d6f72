package difference

import (
	"errors"
	"fmt"
	"strings"
)

// ComparisonError reports a detected baseline/current mismatch. Depending on
// the comparator it carries every divergence found (tree reconciler) or only
// the first one (tables, ordered records, images).
type ComparisonError struct {
	// Subject names what was compared, e.g. "folder structures" or a table file.
	Subject     string
	Differences []Difference
	// Detail is an optional human-readable rendering, such as a unified patch.
	Detail string
}

func (e *ComparisonError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "compared %s not equal", e.Subject)
	if len(e.Differences) > 0 {
		b.WriteString(":")
	}
	for _, d := range e.Differences {
		b.WriteString("\n  ")
		b.WriteString(d.String())
	}
	if e.Detail != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(e.Detail, "\n"))
	}
	return b.String()
}

// Compare builds a ComparisonError, or returns nil when diffs is empty.
func Compare(subject string, diffs []Difference) error {
	if len(diffs) == 0 {
		return nil
	}
	return &ComparisonError{Subject: subject, Differences: diffs}
}

// TransportError reports a failure to retrieve, store or decode an artifact.
// It is propagated unmodified up to the harness.
type TransportError struct {
	Op     string
	Target string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Transport wraps err as a TransportError. A nil err yields nil, and an error
// that already is a TransportError is returned as is.
func Transport(op, target string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Target: target, Err: err}
}

// IsComparison reports whether err is (or wraps) a ComparisonError.
func IsComparison(err error) bool {
	var ce *ComparisonError
	return errors.As(err, &ce)
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// KindOf names the error kind for logs and reports.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case IsComparison(err):
		return "comparison"
	case IsTransport(err):
		return "transport"
	default:
		return "other"
	}
}
