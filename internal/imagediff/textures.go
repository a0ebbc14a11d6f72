package imagediff

import (
	"path/filepath"

	"derivdiff/internal/value"
)

// ImageLister is the part of a derivative reader that knows which image
// files a viewable references.
type ImageLister interface {
	ListImages() []string
}

// CompareTextures checks that both derivatives reference the same image URIs
// in the same order, then compares each image pair under dirA and dirB. The
// first failing image aborts the comparison.
func CompareTextures(a ImageLister, dirA string, b ImageLister, dirB string, threshold float64) error {
	uris := a.ListImages()
	if err := value.Compare("texture lists", uriList(uris), uriList(b.ListImages())); err != nil {
		return err
	}
	for _, uri := range uris {
		rel := filepath.FromSlash(uri)
		if err := CompareImages(filepath.Join(dirA, rel), filepath.Join(dirB, rel), threshold); err != nil {
			return err
		}
	}
	return nil
}

func uriList(uris []string) value.Value {
	vs := make([]value.Value, len(uris))
	for i, u := range uris {
		vs[i] = value.StringValue(u)
	}
	return value.SequenceOf(vs...)
}
