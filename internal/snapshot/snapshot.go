// Package snapshot archives named baseline trees into a blob store and
// restores them.
//
// A baseline named "model-derivative/basic/bucket/object" is stored as one
// tar.gz object under "baselines/model-derivative/basic/bucket/object.tar.gz".
// Uploads overwrite unconditionally; there is no versioning.
package snapshot

import (
	"context"
	"io"
	"os"

	"github.com/cheggaaa/pb/v3"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"derivdiff/internal/archive"
	"derivdiff/internal/blob"
	"derivdiff/internal/difference"
)

// KeyPrefix is the blob key prefix shared by all baselines.
const KeyPrefix = "baselines/"

// Key returns the blob key of a baseline.
func Key(testName string) string {
	return KeyPrefix + testName + ".tar.gz"
}

// Store moves baseline snapshots between local directories and a blob store.
type Store struct {
	blobs    blob.Store
	logger   log.Logger
	progress io.Writer
	tempDir  string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for transfer events.
func WithLogger(l log.Logger) Option { return func(s *Store) { s.logger = l } }

// WithProgress renders transfer progress bars to w.
func WithProgress(w io.Writer) Option { return func(s *Store) { s.progress = w } }

// WithTempDir sets where upload archives are staged. Empty means os.TempDir.
func WithTempDir(dir string) Option { return func(s *Store) { s.tempDir = dir } }

// New returns a Store backed by blobs.
func New(blobs blob.Store, opts ...Option) *Store {
	s := &Store{blobs: blobs, logger: log.NewNopLogger()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Download fetches the baseline testName and extracts it into dstDir,
// creating dstDir when absent. Every failure is a TransportError.
func (s *Store) Download(ctx context.Context, testName, dstDir string) error {
	key := Key(testName)
	rc, size, err := s.blobs.Get(ctx, key)
	if err != nil {
		return difference.Transport("download baseline", key, err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if bar := s.bar(size); bar != nil {
		r = bar.NewProxyReader(rc)
		defer bar.Finish()
	}
	if err := archive.Unpack(r, dstDir); err != nil {
		return difference.Transport("download baseline", key, err)
	}
	level.Info(s.logger).Log("msg", "baseline downloaded", "key", key, "bytes", size, "dir", dstDir)
	return nil
}

// Upload archives srcDir and stores it as the baseline testName, replacing
// any previous baseline. The archive is staged in a temporary file so the
// blob store receives a seekable body of known size.
func (s *Store) Upload(ctx context.Context, testName, srcDir string) error {
	key := Key(testName)
	if _, err := os.Stat(srcDir); err != nil {
		return difference.Transport("upload baseline", key, err)
	}
	tmp, err := os.CreateTemp(s.tempDir, "baseline-*.tar.gz")
	if err != nil {
		return difference.Transport("upload baseline", key, errors.Wrap(err, "stage archive"))
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if err := archive.Pack(tmp, srcDir); err != nil {
		return difference.Transport("upload baseline", key, err)
	}
	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return difference.Transport("upload baseline", key, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return difference.Transport("upload baseline", key, err)
	}

	var body io.ReadSeeker = tmp
	if bar := s.bar(size); bar != nil {
		body = &progressReadSeeker{ReadSeeker: tmp, bar: bar}
		defer bar.Finish()
	}
	if err := s.blobs.Put(ctx, key, body, size); err != nil {
		return difference.Transport("upload baseline", key, err)
	}
	level.Info(s.logger).Log("msg", "baseline uploaded", "key", key, "bytes", size, "dir", srcDir)
	return nil
}

func (s *Store) bar(size int64) *pb.ProgressBar {
	if s.progress == nil {
		return nil
	}
	if size < 0 {
		size = 0
	}
	return pb.New64(size).SetWriter(s.progress).Set(pb.Bytes, true).Start()
}

// progressReadSeeker advances bar as the body is read and follows seeks,
// since a blob backend may rewind the body to sniff or retry.
type progressReadSeeker struct {
	io.ReadSeeker
	bar *pb.ProgressBar
}

func (p *progressReadSeeker) Read(b []byte) (int, error) {
	n, err := p.ReadSeeker.Read(b)
	p.bar.Add(n)
	return n, err
}

func (p *progressReadSeeker) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.ReadSeeker.Seek(offset, whence)
	if err == nil {
		p.bar.SetCurrent(pos)
	}
	return pos, err
}
