// Package propdb compares the property database of two derivative snapshots.
//
// The database is five gzip-compressed JSON tables. Tables are checked in a
// fixed order and the comparison stops at the first table that diverges.
package propdb

import (
	"compress/gzip"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"derivdiff/internal/difference"
	"derivdiff/internal/value"
)

// Table file names, in comparison order.
const (
	AttrsTable = "objects_attrs.json.gz"
	AvsTable   = "objects_avs.json.gz"
	IDsTable   = "objects_ids.json.gz"
	OffsTable  = "objects_offs.json.gz"
	ValsTable  = "objects_vals.json.gz"
)

// Tables lists the property database files in the order they are compared.
var Tables = []string{AttrsTable, AvsTable, IDsTable, OffsTable, ValsTable}

// Present reports whether dir holds a property database, judged by the
// attributes table.
func Present(dir string) bool {
	fi, err := os.Stat(filepath.Join(dir, AttrsTable))
	return err == nil && fi.Mode().IsRegular()
}

// Compare decodes each table from baselineDir and currentDir and fails on the
// first table whose contents differ. Later tables are not read.
func Compare(baselineDir, currentDir string) error {
	for _, name := range Tables {
		if err := CompareTable(baselineDir, currentDir, name); err != nil {
			return err
		}
	}
	return nil
}

// CompareTable compares a single named table from both directories.
func CompareTable(baselineDir, currentDir, name string) error {
	a, err := ReadTable(filepath.Join(baselineDir, name))
	if err != nil {
		return err
	}
	b, err := ReadTable(filepath.Join(currentDir, name))
	if err != nil {
		return err
	}
	return value.Compare(name, a, b)
}

// ReadTable decompresses and decodes one table file. Failures are reported as
// TransportErrors.
func ReadTable(path string) (value.Value, error) {
	f, err := os.Open(path)
	if err != nil {
		return value.Value{}, difference.Transport("read table", path, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return value.Value{}, difference.Transport("read table", path, errors.Wrap(err, "gunzip"))
	}
	defer zr.Close()

	v, err := value.Decode(zr)
	if err != nil {
		return value.Value{}, difference.Transport("read table", path, err)
	}
	return v, nil
}
