package studio

import (
	"fmt"
	"image"
	"io"
	"math"
	"os"

	"dither-studio/internal/protocol"
)

// PixelationZooms are the selectable pixelation steps, as percent of the source size.
var PixelationZooms = []int{100, 70, 60, 50, 35, 30, 25, 20, 15, 12, 10, 7, 5, 2}

// pixelationBase is the pixel count of a 960x720 image. Larger images are pixelated as if
// they had this many pixels, otherwise the steps would barely show.
const pixelationBase = 691200

// PixelationZoom adjusts a zoom step for an image of the given pixel count.
func PixelationZoom(pixels, percent int) int {
	if percent >= 100 || pixels <= 0 {
		return 100
	}
	base := min(pixelationBase, pixels) * percent
	return (base + pixels - 1) / pixels
}

func (s *Session) LoadImage(img image.Image) error {
	s.lock()
	defer s.unlock()
	return s.replaceImage(func() error { return s.surface.SetImage(img) })
}

func (s *Session) LoadReader(r io.Reader) error {
	s.lock()
	defer s.unlock()
	return s.replaceImage(func() error { return s.surface.Load(r) })
}

func (s *Session) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	if err := s.LoadReader(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// SetPixelation selects a step of PixelationZooms. A change rebuilds the working pixels and
// distributes them as a new generation.
func (s *Session) SetPixelation(index int) error {
	s.lock()
	defer s.unlock()

	if index < 0 || index >= len(PixelationZooms) {
		return fmt.Errorf("pixelation step %d out of range", index)
	}
	if index == s.pixelation {
		return nil
	}
	if s.image == nil {
		s.pixelation = index
		return nil
	}

	restore := s.checkpoint()
	previous := s.pixelation
	s.pixelation = index
	if err := s.applyPixelation(); err != nil {
		s.pixelation = previous
		s.rollback(restore)
		return err
	}
	return s.distribute()
}

// replaceImage adopts a new source. An image that cannot be distributed leaves the surface
// as the workers last saw it.
func (s *Session) replaceImage(load func() error) error {
	restore := s.checkpoint()
	if err := load(); err != nil {
		return fmt.Errorf("loading image: %w", err)
	}
	if err := s.prepareImage(); err != nil {
		s.rollback(restore)
		return err
	}
	return s.distribute()
}

// checkpoint captures the distributed image so the surface can be put back after a
// rejected change. It is a no-op before the first image.
func (s *Session) checkpoint() func() error {
	if s.image == nil {
		return nil
	}
	source := s.surface.Source()
	transformed := s.surface.Transformed()
	zoom := s.zoom(source.Rect)
	return func() error {
		if err := s.surface.SetImage(source); err != nil {
			return err
		}
		if err := s.surface.Scale(zoom); err != nil {
			return err
		}
		if transformed == nil {
			return nil
		}
		return s.surface.Replace(transformed.Pix)
	}
}

func (s *Session) rollback(restore func() error) {
	if restore == nil {
		return
	}
	if err := restore(); err != nil {
		s.logger.Error("Session", fmt.Errorf("restoring previous image: %w", err), nil)
	}
}

func (s *Session) prepareImage() error {
	if s.autoResize {
		src := s.surface.SourceBounds()
		resized, err := s.surface.FitWithin(s.largeImage)
		if err != nil {
			return fmt.Errorf("resizing image: %w", err)
		}
		if resized {
			s.logger.Info("Session", "large image resized", map[string]interface{}{
				"from":     src.Size().String(),
				"to":       s.surface.SourceBounds().Size().String(),
				"max_side": s.largeImage,
			})
		}
	}
	return s.applyPixelation()
}

func (s *Session) zoom(source image.Rectangle) int {
	return PixelationZoom(source.Dx()*source.Dy(), PixelationZooms[s.pixelation])
}

// applyPixelation rebuilds the working pixels and checks that they fit the LoadImage record.
func (s *Session) applyPixelation() error {
	if err := s.surface.Scale(s.zoom(s.surface.SourceBounds())); err != nil {
		return fmt.Errorf("pixelating image: %w", err)
	}
	b := s.surface.Bounds()
	if b.Dx() > math.MaxUint16 || b.Dy() > math.MaxUint16 {
		return fmt.Errorf("%v: %w", b.Size(), ErrImageTooLarge)
	}
	return nil
}

// distribute starts a new generation and sends the header and the shared working pixels to
// every worker. Optimized palettes belong to the previous pixels and are dropped.
func (s *Session) distribute() error {
	b := s.surface.Bounds()
	s.generation++
	loaded := LoadedImage{Width: b.Dx(), Height: b.Dy(), Generation: s.generation}
	s.image = &loaded

	dropped := s.cache.Invalidate()
	clear(s.inFlight)
	clear(s.histograms)
	s.progress = ""
	s.metrics.SetGeneration(s.generation)

	header := protocol.LoadImage{
		Width:      uint16(loaded.Width),
		Height:     uint16(loaded.Height),
		Generation: loaded.Generation,
	}
	if err := s.dispatcher.Broadcast(header.Encode(), s.surface.Pixels()); err != nil {
		return fmt.Errorf("distributing image: %w", err)
	}
	s.metrics.RecordRequest(protocol.OpLoadImage.String())

	s.logger.Info("Session", "image distributed", map[string]interface{}{
		"width":          loaded.Width,
		"height":         loaded.Height,
		"generation":     loaded.Generation,
		"palettes_freed": dropped,
	})

	working := s.surface.Working()
	s.notify(func(l Listener) { l.ImageLoaded(loaded, working) })

	if err := s.requestHistogram(); err != nil {
		s.logger.Warning("Session", "histogram request failed", map[string]interface{}{"error": err.Error()})
	}
	return s.retrigger(s.section)
}
