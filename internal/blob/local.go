package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// LocalStore keeps objects as files under Root, one file per key. Writes are
// atomic: data goes to a temporary sibling first and is renamed into place,
// so readers never observe a partially written object.
type LocalStore struct {
	Root string
}

// NewLocalStore returns a store rooted at root.
func NewLocalStore(root string) *LocalStore { return &LocalStore{Root: root} }

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	if clean == string(filepath.Separator) || strings.HasSuffix(key, "/") {
		return "", errors.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.Root, clean), nil
}

// Get opens the file stored under key.
func (s *LocalStore) Get(_ context.Context, key string) (io.ReadCloser, int64, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, errors.Wrapf(ErrNotFound, "%s", key)
		}
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, fi.Size(), nil
}

// Put writes body under key, replacing any previous object.
func (s *LocalStore) Put(ctx context.Context, key string, body io.ReadSeeker, size int64) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, f, err := createTempFile(dir, filepath.Base(p))
	if err != nil {
		return err
	}
	n, err := io.Copy(f, body)
	if err == nil && size >= 0 && n != size {
		err = errors.Errorf("short write: %d of %d bytes", n, size)
	}
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp) // best-effort cleanup
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, p)
}

// createTempFile creates ".tmp-<base>-<rand>" in dir, returning its path and
// an open handle. The caller closes it.
func createTempFile(dir, base string) (string, *os.File, error) {
	f, err := os.CreateTemp(dir, ".tmp-"+base+"-")
	if err != nil {
		return "", nil, err
	}
	return f.Name(), f, nil
}
