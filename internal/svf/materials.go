package svf

import (
	"bytes"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"derivdiff/internal/difference"
	"derivdiff/internal/value"
)

// Materials decodes every material descriptor asset and returns the
// materials ordered by their numeric key.
func (r *Reader) Materials() ([]value.Value, error) {
	var out []value.Value
	for _, a := range r.Assets(TypeMaterials) {
		data, err := r.ReadAsset(a)
		if err != nil {
			return nil, err
		}
		mats, err := ParseMaterials(data)
		if err != nil {
			return nil, difference.Transport("decode materials", a.URI, err)
		}
		out = append(out, mats...)
	}
	return out, nil
}

// ParseMaterials decodes a (possibly gzipped) material descriptor document.
func ParseMaterials(data []byte) ([]value.Value, error) {
	data, err := maybeGunzip(data)
	if err != nil {
		return nil, err
	}
	doc, err := value.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	mats, ok := doc.Get("materials")
	if !ok {
		return nil, nil
	}
	if mats.Kind() != value.Map {
		return nil, errors.Errorf("materials is a %s, want map", mats.Kind())
	}
	keys := mats.Keys()
	sort.SliceStable(keys, func(i, j int) bool { return lessNumeric(keys[i], keys[j]) })
	out := make([]value.Value, len(keys))
	for i, k := range keys {
		out[i], _ = mats.Get(k)
	}
	return out, nil
}

// lessNumeric orders numeric keys by value and puts other keys after them in
// lexical order.
func lessNumeric(a, b string) bool {
	ai, errA := strconv.ParseUint(a, 10, 64)
	bi, errB := strconv.ParseUint(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return ai < bi
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
