// Package blob stores and retrieves whole objects by key. Backends exist for
// Amazon S3, S3-compatible servers through the MinIO client, and a local
// directory.
package blob

import (
	"context"
	"errors"
	"io"

	"github.com/gabriel-vasile/mimetype"
)

// ErrNotFound is returned (possibly wrapped) by Get when no object is stored
// under the key.
var ErrNotFound = errors.New("blob: object not found")

// Store is a flat key/value object store. Put overwrites unconditionally.
type Store interface {
	// Get opens the object stored under key and reports its size, or -1 when
	// the backend does not know it.
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Put(ctx context.Context, key string, body io.ReadSeeker, size int64) error
}

// detectContentType sniffs the first bytes of body and rewinds it.
func detectContentType(body io.ReadSeeker) (string, error) {
	buf := make([]byte, 512)
	n, err := io.ReadFull(body, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return mimetype.Detect(buf[:n]).String(), nil
}
