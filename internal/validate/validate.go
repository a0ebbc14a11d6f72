// Package validate checks user-supplied inputs (test names, thresholds,
// settings) before any work starts, aggregating every issue found into a
// single error so one run reports all of them.
package validate

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"unicode"
)

// Errors aggregates multiple validation issues into a single error.
// The zero value is ready to use.
type Errors struct {
	msgs []string
}

// Add records one issue.
func (e *Errors) Add(format string, args ...any) {
	if e == nil {
		return
	}
	e.msgs = append(e.msgs, fmt.Sprintf(format, args...))
}

// Merge records every line of err as a separate issue. A nil err is ignored.
func (e *Errors) Merge(err error) {
	if e == nil || err == nil {
		return
	}
	e.msgs = append(e.msgs, strings.Split(err.Error(), "\n")...)
}

// Len returns the number of issues recorded.
func (e *Errors) Len() int {
	if e == nil {
		return 0
	}
	return len(e.msgs)
}

// Err returns nil when no issue was recorded, or one error listing them all.
func (e *Errors) Err() error {
	if e == nil || len(e.msgs) == 0 {
		return nil
	}
	// Join with newline for readability.
	return errors.New(strings.Join(e.msgs, "\n"))
}

// TestName checks a hierarchical, slash-separated baseline name:
//
//   - non-empty, no leading or trailing slash, no empty segments
//   - no "." or ".." segments and no backslashes
//   - no control characters
func TestName(name string) error {
	var errs Errors
	if strings.TrimSpace(name) == "" {
		errs.Add("test name must be non-empty")
		return errs.Err()
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		errs.Add("test name %q must not start or end with '/'", name)
	}
	if strings.Contains(name, `\`) {
		errs.Add("test name %q must use forward slashes", name)
	}
	for i, seg := range strings.Split(strings.Trim(name, "/"), "/") {
		switch seg {
		case "":
			errs.Add("test name %q: segment %d is empty", name, i)
		case ".", "..":
			errs.Add("test name %q: segment %d must not be %q", name, i, seg)
		}
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		errs.Add("test name %q must not contain control characters", name)
	}
	return errs.Err()
}

// Threshold checks an image comparison threshold is within [0,1].
func Threshold(t float64) error {
	if math.IsNaN(t) || t < 0 || t > 1 {
		return fmt.Errorf("image threshold must be within [0,1] (got %v)", t)
	}
	return nil
}

// Dir checks that path names an existing directory. what describes the
// directory in the message, e.g. "baseline directory".
func Dir(what, path string) error {
	if path == "" {
		return fmt.Errorf("%s must be non-empty", what)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s %q: %v", what, path, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s %q is not a directory", what, path)
	}
	return nil
}

// OneOf checks that value is one of allowed.
func OneOf(setting, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s (got %q)", setting, strings.Join(allowed, ", "), value)
}
