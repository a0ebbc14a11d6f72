// Package archive packs a directory tree into a reproducible tar.gz stream
// and unpacks such a stream back into a directory.
//
// Entries are written in sorted order with a fixed timestamp, fixed owner and
// normalized permissions, so packing the same tree twice yields the same bytes.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"derivdiff/internal/scan"
)

// FixedTime is the modification time recorded for every entry (1980-01-01 UTC).
var FixedTime = time.Unix(315532800, 0).UTC()

// SanitizePath normalizes archive entry paths (forward slashes, no drive, no
// leading '/') and removes '.' and '..' segments without escaping the root.
// It returns "" for paths that normalize to nothing.
func SanitizePath(p string) string {
	s := filepath.ToSlash(p)
	if len(s) > 1 && s[1] == ':' {
		s = s[2:]
	}
	s = strings.TrimLeft(s, "/")
	parts := strings.Split(s, "/")
	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		if part == ".." {
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
			continue
		}
		stack = append(stack, part)
	}
	return strings.Join(stack, "/")
}

// Pack writes every file and directory under srcDir to w as a gzip-compressed
// tar stream. Entry names are relative to srcDir.
func Pack(w io.Writer, srcDir string) error {
	files, err := scan.Walk(srcDir)
	if err != nil {
		return errors.Wrapf(err, "walk %s", srcDir)
	}
	zw := gzip.NewWriter(w)
	zw.ModTime = FixedTime
	tw := tar.NewWriter(zw)
	for _, fi := range files {
		if err := writeEntry(tw, fi); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return errors.Wrap(err, "close tar")
	}
	return errors.Wrap(zw.Close(), "close gzip")
}

func writeEntry(tw *tar.Writer, fi scan.FileInfo) error {
	h := &tar.Header{
		Name:    fi.RelPath,
		ModTime: FixedTime,
		Format:  tar.FormatPAX,
	}
	if fi.Kind == scan.Dir {
		h.Typeflag = tar.TypeDir
		h.Name += "/"
		h.Mode = 0o755
		return errors.Wrapf(tw.WriteHeader(h), "write %s", h.Name)
	}
	h.Typeflag = tar.TypeReg
	h.Mode = 0o644
	h.Size = fi.Size
	if err := tw.WriteHeader(h); err != nil {
		return errors.Wrapf(err, "write %s", h.Name)
	}
	f, err := os.Open(fi.AbsPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.CopyN(tw, f, fi.Size); err != nil {
		return errors.Wrapf(err, "write %s", h.Name)
	}
	return nil
}

// Unpack extracts a gzip-compressed tar stream into dstDir, creating it when
// absent. Entry names are sanitized so nothing is written outside dstDir;
// links and special entries are skipped.
func Unpack(r io.Reader, dstDir string) error {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return err
	}
	zr, err := gzip.NewReader(r)
	if err != nil {
		return errors.Wrap(err, "open gzip")
	}
	defer zr.Close()
	tr := tar.NewReader(zr)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read tar")
		}
		name := SanitizePath(h.Name)
		if name == "" {
			continue
		}
		target := filepath.Join(dstDir, filepath.FromSlash(name))
		switch h.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := extractFile(tr, target); err != nil {
				return errors.Wrapf(err, "extract %s", name)
			}
		}
	}
}

func extractFile(r io.Reader, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
