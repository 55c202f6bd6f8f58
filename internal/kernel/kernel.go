// Package kernel is the code each pool worker runs: it keeps the worker's copy of the
// current image and answers dither, histogram and palette requests against it.
package kernel

import (
	"errors"
	"fmt"
	"image"

	"dither-studio/internal/algorithms"
	"dither-studio/internal/logger"
	"dither-studio/internal/palette"
	"dither-studio/internal/protocol"
	"dither-studio/internal/workers"
)

var (
	ErrNoImage       = errors.New("no image loaded")
	ErrImageMismatch = errors.New("request dimensions do not match loaded image")
)

type Kernel struct {
	id      int
	catalog *algorithms.Catalog
	logger  logger.Logger

	// header of a LoadImage whose pixel frame has not arrived yet
	awaiting   *protocol.LoadImage
	image      *image.RGBA
	generation uint8
}

func New(id int, catalog *algorithms.Catalog, log logger.Logger) *Kernel {
	if log == nil {
		log = logger.NewNop()
	}
	return &Kernel{id: id, catalog: catalog, logger: log}
}

// Factory builds one Kernel per pool worker, all sharing the read-only catalog.
func Factory(catalog *algorithms.Catalog, log logger.Logger) workers.HandlerFactory {
	return func(workerID int) workers.Handler {
		return New(workerID, catalog, log)
	}
}

// Generation is the generation of the last fully received image.
func (k *Kernel) Generation() uint8 {
	return k.generation
}

// Handle processes one frame. The frame following a LoadImage header is always taken as
// that image's pixels, whatever its first bytes look like.
func (k *Kernel) Handle(frame []byte, emit workers.EmitFunc) error {
	if k.awaiting != nil {
		return k.receivePixels(frame)
	}

	op, err := protocol.RequestOpcode(frame)
	if err != nil {
		return fmt.Errorf("worker %d: %w", k.id, err)
	}

	switch op {
	case protocol.OpLoadImage:
		req, err := protocol.DecodeLoadImage(frame)
		if err != nil {
			return err
		}
		k.awaiting = &req
		return nil
	case protocol.OpDither:
		req, err := protocol.DecodeDitherRequest(frame)
		if err != nil {
			return err
		}
		return k.dither(op, req.Width, req.Height, req.AlgorithmID, algorithms.Params{
			Threshold: clampThreshold(req.Threshold),
			Black:     req.Black,
			White:     req.White,
		}, emit)
	case protocol.OpDitherBW:
		req, err := protocol.DecodeDitherBWRequest(frame)
		if err != nil {
			return err
		}
		return k.dither(op, req.Width, req.Height, req.AlgorithmID, algorithms.Params{
			Threshold: clampThreshold(req.Threshold),
			Black:     palette.Black,
			White:     palette.White,
		}, emit)
	case protocol.OpDitherColor:
		req, err := protocol.DecodeDitherColorRequest(frame)
		if err != nil {
			return err
		}
		return k.dither(op, req.Width, req.Height, req.AlgorithmID, algorithms.Params{
			Colors: req.Colors,
			Mode:   algorithms.ColorMode(req.ColorModeID),
		}, emit)
	case protocol.OpHistogram, protocol.OpHueHistogram:
		if _, err := protocol.DecodeEmpty(frame); err != nil {
			return err
		}
		if k.image == nil {
			return fmt.Errorf("%s: %w", op, ErrNoImage)
		}
		var bins []byte
		if op == protocol.OpHistogram {
			bins = LuminanceHistogram(k.image)
		} else {
			bins = HueHistogram(k.image)
		}
		emit(k.generation, protocol.PixelsReply{Op: op, Pixels: bins}.Encode())
		return nil
	case protocol.OpOptimizePalette:
		req, err := protocol.DecodeOptimizePaletteRequest(frame)
		if err != nil {
			return err
		}
		return k.optimizePalette(req, emit)
	default:
		return fmt.Errorf("worker %d: %s: %w", k.id, op, protocol.ErrUnknownOpcode)
	}
}

func (k *Kernel) receivePixels(frame []byte) error {
	header := *k.awaiting
	k.awaiting = nil

	if len(frame) != header.PayloadSize() {
		k.image = nil
		return fmt.Errorf("worker %d: image %dx%d needs %d bytes, got %d: %w",
			k.id, header.Width, header.Height, header.PayloadSize(), len(frame), protocol.ErrPayloadLength)
	}
	// the frame is shared with every other worker and must stay read only
	k.image = &image.RGBA{
		Pix:    frame,
		Stride: 4 * int(header.Width),
		Rect:   image.Rect(0, 0, int(header.Width), int(header.Height)),
	}
	k.generation = header.Generation

	k.logger.Debug("Kernel", "image loaded", map[string]interface{}{
		"worker_id":  k.id,
		"width":      header.Width,
		"height":     header.Height,
		"generation": header.Generation,
	})
	return nil
}

func (k *Kernel) dither(op protocol.Opcode, width, height, algorithmID uint16, params algorithms.Params, emit workers.EmitFunc) error {
	if k.image == nil {
		return fmt.Errorf("%s: %w", op, ErrNoImage)
	}
	if int(width) != k.image.Rect.Dx() || int(height) != k.image.Rect.Dy() {
		return fmt.Errorf("%s %dx%d against %dx%d: %w", op, width, height, k.image.Rect.Dx(), k.image.Rect.Dy(), ErrImageMismatch)
	}
	alg, err := k.catalog.Lookup(algorithmID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	wantKind := algorithms.KindBW
	if op == protocol.OpDitherColor {
		wantKind = algorithms.KindColor
	}
	if alg.Kind != wantKind {
		return fmt.Errorf("%s with %s algorithm %q: %w", op, alg.Kind, alg.Name, algorithms.ErrUnknownAlgorithm)
	}

	out := algorithms.Run(alg, k.image, params)
	emit(k.generation, protocol.PixelsReply{Op: op, Pixels: out.Pix}.Encode())
	return nil
}

func (k *Kernel) optimizePalette(req protocol.OptimizePaletteRequest, emit workers.EmitFunc) error {
	if k.image == nil {
		return fmt.Errorf("%s: %w", protocol.OpOptimizePalette, ErrNoImage)
	}
	mode := algorithms.QuantizationMode(req.ModeID)
	if !mode.Valid() || req.ModeID > 0xff {
		return fmt.Errorf("%s mode %d: %w", protocol.OpOptimizePalette, req.ModeID, protocol.ErrFieldRange)
	}
	if req.NumColors < 1 || req.NumColors > 0xff {
		return fmt.Errorf("%s with %d colors: %w", protocol.OpOptimizePalette, req.NumColors, protocol.ErrFieldRange)
	}

	generation := k.generation
	progress := func(percentage int) {
		emit(generation, protocol.OptimizePaletteProgress{
			ModeID:     uint8(req.ModeID),
			NumColors:  uint8(req.NumColors),
			Percentage: uint8(percentage),
		}.Encode())
	}

	colors := Quantize(k.image, int(req.NumColors), mode, progress)
	emit(generation, protocol.OptimizePaletteReply{ModeID: uint8(req.ModeID), Colors: colors}.Encode())
	return nil
}

func clampThreshold(t uint16) uint8 {
	if t > 0xff {
		return 0xff
	}
	return uint8(t)
}
