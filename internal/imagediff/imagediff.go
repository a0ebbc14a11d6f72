// Package imagediff compares raster textures with a perceptual per-pixel
// tolerance, and compares the texture sets referenced by two derivatives.
package imagediff

import (
	"bytes"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"derivdiff/internal/difference"
)

// DefaultThreshold is the per-pixel tolerance used when none is given.
const DefaultThreshold = 0.1

// ErrThresholdRange is returned for a threshold outside [0,1]. It is an
// argument error, neither a comparison nor a transport failure.
var ErrThresholdRange = errors.New("image threshold out of range [0,1]")

// maxYIQDelta is the largest possible value of colorDelta.
const maxYIQDelta = 35215

// CompareImages decodes the images at pathA and pathB and fails when their
// dimensions differ or when any pixel differs by more than threshold
// (0 is strictest, 1 accepts everything).
func CompareImages(pathA, pathB string, threshold float64) error {
	if !(threshold >= 0 && threshold <= 1) {
		return errors.Wrapf(ErrThresholdRange, "threshold %v", threshold)
	}
	a, err := Load(pathA)
	if err != nil {
		return err
	}
	b, err := Load(pathB)
	if err != nil {
		return err
	}
	if !sameSize(a, b) {
		return difference.Compare("images", []difference.Difference{
			difference.New(difference.DimensionMismatch, pathA, "%dx%d vs %dx%d",
				a.Rect.Dx(), a.Rect.Dy(), b.Rect.Dx(), b.Rect.Dy()),
		})
	}
	if n := Mismatched(a, b, threshold); n > 0 {
		return difference.Compare("images", []difference.Difference{
			difference.New(difference.PixelMismatch, pathA, "%d pixels differ", n),
		})
	}
	return nil
}

// Load reads and decodes an image file into a non-premultiplied RGBA buffer.
// PNG, JPEG, BMP, TIFF and WebP are accepted.
func Load(path string) (*image.NRGBA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, difference.Transport("load image", path, err)
	}
	if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "image/") {
		return nil, difference.Transport("load image", path, errors.Errorf("not an image (%s)", mt.String()))
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, difference.Transport("load image", path, errors.Wrap(err, "decode"))
	}
	return toNRGBA(img), nil
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
	return dst
}

func sameSize(a, b *image.NRGBA) bool {
	return a.Rect.Dx() == b.Rect.Dx() && a.Rect.Dy() == b.Rect.Dy()
}

// Mismatched counts the pixels of a and b whose perceptual distance exceeds
// the bound derived from threshold. Both images must have the same size.
func Mismatched(a, b *image.NRGBA, threshold float64) int {
	maxDelta := maxYIQDelta * threshold * threshold
	w, h := a.Rect.Dx(), a.Rect.Dy()
	n := 0
	for y := 0; y < h; y++ {
		ra := a.Pix[y*a.Stride : y*a.Stride+w*4]
		rb := b.Pix[y*b.Stride : y*b.Stride+w*4]
		for x := 0; x < w*4; x += 4 {
			if colorDelta(ra[x:x+4], rb[x:x+4]) > maxDelta {
				n++
			}
		}
	}
	return n
}

// colorDelta is the squared YIQ distance between two RGBA pixels, with
// translucent pixels blended onto white first.
func colorDelta(p, q []byte) float64 {
	if p[0] == q[0] && p[1] == q[1] && p[2] == q[2] && p[3] == q[3] {
		return 0
	}
	r1, g1, b1 := blendRGB(p)
	r2, g2, b2 := blendRGB(q)

	y := rgb2y(r1, g1, b1) - rgb2y(r2, g2, b2)
	i := rgb2i(r1, g1, b1) - rgb2i(r2, g2, b2)
	v := rgb2q(r1, g1, b1) - rgb2q(r2, g2, b2)
	return 0.5053*y*y + 0.299*i*i + 0.1957*v*v
}

func blendRGB(p []byte) (r, g, b float64) {
	r, g, b = float64(p[0]), float64(p[1]), float64(p[2])
	if p[3] < 255 {
		a := float64(p[3]) / 255
		r, g, b = blend(r, a), blend(g, a), blend(b, a)
	}
	return r, g, b
}

func blend(c, a float64) float64 { return 255 + (c-255)*a }

func rgb2y(r, g, b float64) float64 { return r*0.29889531 + g*0.58662247 + b*0.11448223 }
func rgb2i(r, g, b float64) float64 { return r*0.59597799 - g*0.27417610 - b*0.32180189 }
func rgb2q(r, g, b float64) float64 { return r*0.21147017 - g*0.52261711 + b*0.31114694 }
