// Package scan lists directory trees deterministically for the reconciler
// and the snapshot archiver.
package scan

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// Kind is the filesystem kind of an entry.
type Kind int

const (
	File Kind = iota
	Dir
	Other
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Dir:
		return "directory"
	default:
		return "other"
	}
}

// Entry describes one directory entry at comparison time.
type Entry struct {
	Name string
	Kind Kind
	Size int64 // regular files only
}

// Level returns the entries directly under dir, sorted by name. Symlinks
// are resolved so a link to a directory counts as a directory.
func Level(dir string) ([]Entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(des))
	for _, d := range des {
		e, err := entryOf(filepath.Join(dir, d.Name()), d)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func entryOf(path string, d fs.DirEntry) (Entry, error) {
	info, err := d.Info()
	if err != nil {
		return Entry{}, err
	}
	if isSymlink(d) {
		if info, err = os.Stat(path); err != nil {
			return Entry{}, err
		}
	}
	e := Entry{Name: d.Name()}
	switch {
	case info.IsDir():
		e.Kind = Dir
	case info.Mode().IsRegular():
		e.Kind = File
		e.Size = info.Size()
	default:
		e.Kind = Other
	}
	return e, nil
}

// FileInfo is a minimal, deterministic descriptor of a walked entry.
type FileInfo struct {
	RelPath string // root-relative path with forward slashes
	AbsPath string
	Kind    Kind
	Size    int64
	Mode    fs.FileMode
}

// Walk returns every file and directory below root (root itself excluded),
// sorted by RelPath so parents precede their children. Symlinks are resolved
// as in Level: a link is reported, under its own name, with the kind and
// content of its target. Special files are skipped. A link to one of its own
// ancestors is an error.
func Walk(root string) ([]FileInfo, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	resolved, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return nil, err
	}
	w := &walker{ancestors: map[string]bool{resolved: true}}
	if err := w.dir(rootAbs, ""); err != nil {
		return nil, err
	}
	sort.Slice(w.out, func(i, j int) bool { return w.out[i].RelPath < w.out[j].RelPath })
	return w.out, nil
}

type walker struct {
	out       []FileInfo
	ancestors map[string]bool // resolved paths of the directories being walked
}

func (w *walker) dir(abs, rel string) error {
	des, err := os.ReadDir(abs)
	if err != nil {
		return err
	}
	for _, d := range des {
		p := filepath.Join(abs, d.Name())
		r := path.Join(rel, d.Name())
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		switch {
		case info.IsDir():
			resolved, err := filepath.EvalSymlinks(p)
			if err != nil {
				return err
			}
			if w.ancestors[resolved] {
				return errors.Errorf("symlink cycle at %s", p)
			}
			w.out = append(w.out, FileInfo{RelPath: r, AbsPath: p, Kind: Dir, Mode: info.Mode().Perm()})
			w.ancestors[resolved] = true
			err = w.dir(p, r)
			delete(w.ancestors, resolved)
			if err != nil {
				return err
			}
		case info.Mode().IsRegular():
			w.out = append(w.out, FileInfo{RelPath: r, AbsPath: p, Kind: File, Size: info.Size(), Mode: info.Mode().Perm()})
		}
	}
	return nil
}

// Subdirs returns the names of the directories directly under dir, sorted.
func Subdirs(dir string) ([]string, error) {
	entries, err := Level(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Kind == Dir {
			out = append(out, e.Name)
		}
	}
	return out, nil
}

// isSymlink reports whether the DirEntry is a symlink (file or directory).
func isSymlink(d fs.DirEntry) bool {
	return d.Type()&fs.ModeSymlink != 0
}
