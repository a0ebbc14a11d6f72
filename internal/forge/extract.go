package forge

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"derivdiff/internal/difference"
	"derivdiff/internal/svf"
)

// Extractor downloads the derivatives of one object into a local tree:
//
//	<outDir>/<urn>/manifest.json
//	<outDir>/<urn>/<guid>/output.svf
//	<outDir>/<urn>/<guid>/<asset URI>   (external assets only)
type Extractor struct {
	Client *Client
	Logger log.Logger
}

// Extract writes the derivative tree of bucket/object below outDir and
// returns the object's URN. Requests are made one at a time.
func (e *Extractor) Extract(ctx context.Context, bucket, object, outDir string) (string, error) {
	logger := e.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", difference.Transport("extract", outDir, err)
	}
	level.Debug(logger).Log("msg", "retrieving object details", "bucket", bucket, "object", object)
	details, err := e.Client.ObjectDetails(ctx, bucket, object)
	if err != nil {
		return "", err
	}
	urn := URN(details.ObjectID)
	urnDir := filepath.Join(outDir, urn)

	level.Debug(logger).Log("msg", "extracting manifest", "urn", urn)
	raw, err := e.Client.Manifest(ctx, urn)
	if err != nil {
		return "", err
	}
	manifest, err := ParseManifest(raw)
	if err != nil {
		return "", difference.Transport("manifest", urn, err)
	}
	if err := writeFile(outDir, filepath.Join(urnDir, "manifest.json"), raw); err != nil {
		return "", err
	}

	for _, d := range manifest.SVFViewables() {
		level.Debug(logger).Log("msg", "extracting viewable", "guid", d.GUID)
		if err := e.extractViewable(ctx, logger, urn, d, outDir, filepath.Join(urnDir, d.GUID)); err != nil {
			return "", err
		}
	}
	return urn, nil
}

func (e *Extractor) extractViewable(ctx context.Context, logger log.Logger, urn string, d Node, outDir, viewDir string) error {
	pkg, err := e.Client.Derivative(ctx, urn, d.URN)
	if err != nil {
		return err
	}
	if err := writeFile(outDir, filepath.Join(viewDir, svf.FileName), pkg); err != nil {
		return err
	}
	man, err := packageManifest(pkg)
	if err != nil {
		return difference.Transport("read scene package", d.URN, err)
	}
	base := path.Dir(d.URN)
	for _, a := range man.Assets {
		if a.Embedded() {
			level.Debug(logger).Log("msg", "skipping embedded asset", "asset", a.ID)
			continue
		}
		level.Debug(logger).Log("msg", "extracting asset", "asset", a.ID)
		data, err := e.Client.Derivative(ctx, urn, path.Join(base, a.URI))
		if err != nil {
			return err
		}
		if err := writeFile(outDir, filepath.Join(viewDir, filepath.FromSlash(a.URI)), data); err != nil {
			return err
		}
	}
	return nil
}

func packageManifest(pkg []byte) (*svf.Manifest, error) {
	zr, err := zip.NewReader(bytes.NewReader(pkg), int64(len(pkg)))
	if err != nil {
		return nil, errors.Wrap(err, "read zip")
	}
	f, err := zr.Open("manifest.json")
	if err != nil {
		return nil, errors.Wrap(err, "open manifest.json")
	}
	defer f.Close()
	var m svf.Manifest
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return nil, errors.Wrap(err, "decode manifest.json")
	}
	return &m, nil
}

// writeFile writes data to target, refusing targets outside root.
func writeFile(root, target string, data []byte) error {
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return difference.Transport("write", target, errors.New("path escapes output directory"))
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return difference.Transport("write", target, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return difference.Transport("write", target, err)
	}
	return nil
}
