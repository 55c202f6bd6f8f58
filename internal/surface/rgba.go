package surface

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"sync"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// RGBA is the pure Go surface.
type RGBA struct {
	mu          sync.RWMutex
	source      *image.RGBA
	working     *image.RGBA
	transformed *image.RGBA
}

func NewRGBA() *RGBA {
	return &RGBA{}
}

func (s *RGBA) Load(r io.Reader) error {
	img, format, err := image.Decode(r)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	if err := s.SetImage(img); err != nil {
		return fmt.Errorf("%s image: %w", format, err)
	}
	return nil
}

func (s *RGBA) SetImage(img image.Image) error {
	if img.Bounds().Empty() {
		return ErrEmpty
	}
	// copied so the caller keeps ownership of img
	b := img.Bounds()
	src := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(src, src.Rect, img, b.Min, draw.Src)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
	s.resetWorking()
	return nil
}

func (s *RGBA) FitWithin(maxSide int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil {
		return false, ErrEmpty
	}
	w, h, ok := FitSize(s.source.Rect.Dx(), s.source.Rect.Dy(), maxSide)
	if !ok {
		return false, nil
	}
	s.source = toRGBA(resize.Resize(uint(w), uint(h), s.source, resize.Lanczos3))
	s.resetWorking()
	return true, nil
}

func (s *RGBA) Scale(percent int) error {
	if err := checkScale(percent); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil {
		return ErrEmpty
	}
	if percent == 100 {
		s.resetWorking()
		return nil
	}
	w, h := ScaledSize(s.source.Rect.Dx(), s.source.Rect.Dy(), percent)
	working := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(working, working.Rect, s.source, s.source.Rect, draw.Src, nil)
	s.working = working
	s.transformed = image.NewRGBA(working.Rect)
	return nil
}

// resetWorking makes a fresh working copy of the source; the previous working buffer may
// still be held by workers.
func (s *RGBA) resetWorking() {
	working := image.NewRGBA(s.source.Rect)
	copy(working.Pix, s.source.Pix)
	s.working = working
	s.transformed = image.NewRGBA(working.Rect)
}

// Source is shared, not copied: the source buffer is only ever replaced.
func (s *RGBA) Source() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

func (s *RGBA) SourceBounds() image.Rectangle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.source == nil {
		return image.Rectangle{}
	}
	return s.source.Rect
}

func (s *RGBA) Bounds() image.Rectangle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.working == nil {
		return image.Rectangle{}
	}
	return s.working.Rect
}

func (s *RGBA) Pixels() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.working == nil {
		return nil
	}
	return s.working.Pix
}

func (s *RGBA) Replace(pix []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.working == nil {
		return ErrEmpty
	}
	if len(pix) != len(s.working.Pix) {
		return fmt.Errorf("%d bytes for %v: %w", len(pix), s.working.Rect.Size(), ErrBufferSize)
	}
	t := image.NewRGBA(s.working.Rect)
	copy(t.Pix, pix)
	s.transformed = t
	return nil
}

func (s *RGBA) Working() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.working
}

func (s *RGBA) Transformed() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transformed
}

func (s *RGBA) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source, s.working, s.transformed = nil, nil, nil
	return nil
}
