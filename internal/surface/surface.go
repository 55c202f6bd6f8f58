// Package surface owns the pixel buffers behind the studio: the loaded source, the working
// copy that workers see, and the transformed result.
package surface

import (
	"errors"
	"fmt"
	"image"
	"io"
)

var (
	ErrEmpty      = errors.New("surface has no image")
	ErrBufferSize = errors.New("pixel buffer does not match surface size")
	ErrScale      = errors.New("scale must be in (0, 100]")
)

// Surface holds three buffers. The source is what was loaded, after any fit. The working
// buffer is the source after the pixelation scale, and it is what workers dither. The
// transform receives dithered pixels and always has the working size.
type Surface interface {
	Load(r io.Reader) error
	SetImage(img image.Image) error
	// FitWithin shrinks the source so its longest side is maxSide. It reports whether the
	// source was resized.
	FitWithin(maxSide int) (bool, error)
	// Scale rebuilds the working buffer at percent of the source size.
	Scale(percent int) error
	// Source returns the source pixels. Callers must not modify them.
	Source() *image.RGBA
	SourceBounds() image.Rectangle
	Bounds() image.Rectangle
	// Pixels returns the working buffer as contiguous RGBA. The slice is replaced, never
	// mutated, by later calls, so it may be shared with readers.
	Pixels() []byte
	Replace(pix []byte) error
	Working() *image.RGBA
	Transformed() *image.RGBA
	Close() error
}

const (
	KindRGBA   = "rgba"
	KindOpenCV = "opencv"
)

func New(kind string) (Surface, error) {
	switch kind {
	case "", KindRGBA:
		return NewRGBA(), nil
	case KindOpenCV:
		return NewOpenCV(), nil
	default:
		return nil, fmt.Errorf("unknown surface %q", kind)
	}
}

// ScaledSize is the working size for percent of width x height, rounded up so that no
// side collapses to zero.
func ScaledSize(width, height, percent int) (int, int) {
	if percent >= 100 {
		return width, height
	}
	return ceilDiv(width*percent, 100), ceilDiv(height*percent, 100)
}

// FitSize is width x height shrunk so the longest side is maxSide, keeping the aspect.
func FitSize(width, height, maxSide int) (int, int, bool) {
	if maxSide <= 0 || (width <= maxSide && height <= maxSide) {
		return width, height, false
	}
	if width >= height {
		return maxSide, max(1, height*maxSide/width), true
	}
	return max(1, width*maxSide/height), maxSide, true
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func checkScale(percent int) error {
	if percent <= 0 || percent > 100 {
		return fmt.Errorf("%d: %w", percent, ErrScale)
	}
	return nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) && rgba.Stride == 4*rgba.Rect.Dx() {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}
