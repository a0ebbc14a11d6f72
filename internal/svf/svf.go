// Package svf reads the scene package of one derivative viewable: the
// output.svf archive, its asset manifest, and the pack files and material
// descriptors it references.
package svf

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"derivdiff/internal/difference"
)

// FileName is the scene package file in a viewable directory.
const FileName = "output.svf"

// EmbedPrefix marks asset URIs stored inside the scene package.
const EmbedPrefix = "embed:/"

// Asset types used by the comparators.
const (
	TypeImage            = "Autodesk.CloudPlatform.Image"
	TypeFragmentList     = "Autodesk.CloudPlatform.FragmentList"
	TypeGeometryMetadata = "Autodesk.CloudPlatform.GeometryMetadataList"
	TypePackFile         = "Autodesk.CloudPlatform.PackFile"
	TypeMaterials        = "ProteinMaterials"
)

// Asset is one entry of the scene package manifest.
type Asset struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	URI   string `json:"URI"`
	Size  int64  `json:"size,omitempty"`
	USize int64  `json:"usize,omitempty"`
}

// Embedded reports whether the asset is stored inside the scene package.
func (a Asset) Embedded() bool { return strings.HasPrefix(a.URI, EmbedPrefix) }

// Manifest is the manifest.json stored in the scene package.
type Manifest struct {
	Name    string  `json:"name,omitempty"`
	Version string  `json:"version,omitempty"`
	Assets  []Asset `json:"assets"`
}

// Reader gives access to a viewable's scene package and referenced assets.
type Reader struct {
	dir      string
	embedded map[string][]byte
	manifest Manifest
}

// Open loads <dir>/output.svf and its manifest.
func Open(dir string) (*Reader, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, difference.Transport("open svf", path, err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, difference.Transport("open svf", path, errors.Wrap(err, "read zip"))
	}
	r := &Reader{dir: dir, embedded: make(map[string][]byte, len(zr.File))}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		b, err := readZipFile(f)
		if err != nil {
			return nil, difference.Transport("open svf", path, err)
		}
		r.embedded[f.Name] = b
	}
	raw, ok := r.embedded["manifest.json"]
	if !ok {
		return nil, difference.Transport("open svf", path, errors.New("manifest.json missing"))
	}
	if err := json.Unmarshal(raw, &r.manifest); err != nil {
		return nil, difference.Transport("open svf", path, errors.Wrap(err, "decode manifest.json"))
	}
	return r, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", f.Name)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	return b, errors.Wrapf(err, "read %s", f.Name)
}

// Dir returns the viewable directory.
func (r *Reader) Dir() string { return r.dir }

// Manifest returns the decoded scene package manifest.
func (r *Reader) Manifest() Manifest { return r.manifest }

// Assets returns the manifest assets of the given type, in manifest order.
func (r *Reader) Assets(typ string) []Asset {
	var out []Asset
	for _, a := range r.manifest.Assets {
		if a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

// ReadAsset returns the raw bytes of an asset, from the scene package for
// embedded assets and from the viewable directory otherwise.
func (r *Reader) ReadAsset(a Asset) ([]byte, error) {
	if a.Embedded() {
		name := strings.TrimPrefix(a.URI, EmbedPrefix)
		b, ok := r.embedded[name]
		if !ok {
			return nil, difference.Transport("read asset", a.URI, errors.New("not found in scene package"))
		}
		return b, nil
	}
	path := filepath.Join(r.dir, filepath.FromSlash(a.URI))
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, difference.Transport("read asset", path, err)
	}
	return b, nil
}

// ListImages returns the URIs of external image assets in manifest order.
func (r *Reader) ListImages() []string {
	var out []string
	for _, a := range r.Assets(TypeImage) {
		if !a.Embedded() {
			out = append(out, a.URI)
		}
	}
	return out
}
