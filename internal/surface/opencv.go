package surface

import (
	"fmt"
	"image"
	"io"
	"sync"

	"gocv.io/x/gocv"
)

// OpenCV keeps the source and working buffers as 4 channel Mats in RGBA order. Decoding,
// fitting and scaling are done by OpenCV.
type OpenCV struct {
	mu          sync.RWMutex
	source      gocv.Mat
	working     gocv.Mat
	pixels      []byte
	transformed *image.RGBA
}

func NewOpenCV() *OpenCV {
	return &OpenCV{source: gocv.NewMat(), working: gocv.NewMat()}
}

func (s *OpenCV) Load(r io.Reader) error {
	buf, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	decoded, err := gocv.IMDecode(buf, gocv.IMReadColor)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	defer decoded.Close()
	if decoded.Empty() {
		return fmt.Errorf("decode image: %w", ErrEmpty)
	}

	rgba := gocv.NewMat()
	gocv.CvtColor(decoded, &rgba, gocv.ColorBGRToRGBA)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceSource(rgba)
	return nil
}

func (s *OpenCV) SetImage(img image.Image) error {
	if img.Bounds().Empty() {
		return ErrEmpty
	}
	rgba := toRGBA(img)
	mat, err := gocv.NewMatFromBytes(rgba.Rect.Dy(), rgba.Rect.Dx(), gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return fmt.Errorf("image to mat: %w", err)
	}
	// NewMatFromBytes shares the Go buffer; clone so the Mat owns its memory
	owned := mat.Clone()
	mat.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceSource(owned)
	return nil
}

func (s *OpenCV) replaceSource(m gocv.Mat) {
	s.source.Close()
	s.source = m
	s.resetWorking()
}

func (s *OpenCV) resetWorking() {
	s.working.Close()
	s.working = s.source.Clone()
	s.refresh()
}

// refresh copies the working Mat out to Go memory and clears the transform.
func (s *OpenCV) refresh() {
	s.pixels = s.working.ToBytes()
	s.transformed = image.NewRGBA(image.Rect(0, 0, s.working.Cols(), s.working.Rows()))
}

func (s *OpenCV) FitWithin(maxSide int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source.Empty() {
		return false, ErrEmpty
	}
	w, h, ok := FitSize(s.source.Cols(), s.source.Rows(), maxSide)
	if !ok {
		return false, nil
	}
	fitted := gocv.NewMat()
	gocv.Resize(s.source, &fitted, image.Pt(w, h), 0, 0, gocv.InterpolationArea)
	s.replaceSource(fitted)
	return true, nil
}

func (s *OpenCV) Scale(percent int) error {
	if err := checkScale(percent); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source.Empty() {
		return ErrEmpty
	}
	if percent == 100 {
		s.resetWorking()
		return nil
	}
	w, h := ScaledSize(s.source.Cols(), s.source.Rows(), percent)
	scaled := gocv.NewMat()
	gocv.Resize(s.source, &scaled, image.Pt(w, h), 0, 0, gocv.InterpolationNearestNeighbor)
	s.working.Close()
	s.working = scaled
	s.refresh()
	return nil
}

func (s *OpenCV) Source() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.source.Empty() {
		return nil
	}
	return &image.RGBA{
		Pix:    s.source.ToBytes(),
		Stride: 4 * s.source.Cols(),
		Rect:   image.Rect(0, 0, s.source.Cols(), s.source.Rows()),
	}
}

func (s *OpenCV) SourceBounds() image.Rectangle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return image.Rect(0, 0, s.source.Cols(), s.source.Rows())
}

func (s *OpenCV) Bounds() image.Rectangle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return image.Rect(0, 0, s.working.Cols(), s.working.Rows())
}

func (s *OpenCV) Pixels() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pixels
}

func (s *OpenCV) Replace(pix []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.working.Empty() {
		return ErrEmpty
	}
	if len(pix) != len(s.pixels) {
		return fmt.Errorf("%d bytes for %dx%d: %w", len(pix), s.working.Cols(), s.working.Rows(), ErrBufferSize)
	}
	t := image.NewRGBA(image.Rect(0, 0, s.working.Cols(), s.working.Rows()))
	copy(t.Pix, pix)
	s.transformed = t
	return nil
}

func (s *OpenCV) Working() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pixels == nil {
		return nil
	}
	return &image.RGBA{
		Pix:    s.pixels,
		Stride: 4 * s.working.Cols(),
		Rect:   image.Rect(0, 0, s.working.Cols(), s.working.Rows()),
	}
}

func (s *OpenCV) Transformed() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transformed
}

func (s *OpenCV) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pixels, s.transformed = nil, nil
	if err := s.working.Close(); err != nil {
		return fmt.Errorf("close working mat: %w", err)
	}
	if err := s.source.Close(); err != nil {
		return fmt.Errorf("close source mat: %w", err)
	}
	return nil
}
