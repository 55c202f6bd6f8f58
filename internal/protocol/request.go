package protocol

import (
	"fmt"

	"dither-studio/internal/palette"
)

// LoadImage announces the next frame on the same mailbox as the raw RGBA pixels of a
// width x height image for the given generation.
type LoadImage struct {
	Width      uint16
	Height     uint16
	Generation uint8
}

func (m LoadImage) Opcode() Opcode { return OpLoadImage }

func (m LoadImage) Encode() []byte {
	e := newElements(OpLoadImage, 4)
	e[1] = m.Width
	e[2] = m.Height
	e[3] = uint16(m.Generation)
	return e.bytes()
}

// PayloadSize is the byte length of the pixel frame that must follow the header.
func (m LoadImage) PayloadSize() int {
	return int(m.Width) * int(m.Height) * 4
}

func DecodeLoadImage(frame []byte) (LoadImage, error) {
	e, err := readFixed(frame, OpLoadImage, 4)
	if err != nil {
		return LoadImage{}, err
	}
	if e[3] > 0xff {
		return LoadImage{}, fmt.Errorf("generation %d: %w", e[3], ErrFieldRange)
	}
	return LoadImage{Width: e[1], Height: e[2], Generation: uint8(e[3])}, nil
}

// DitherRequest is the black and white request with color substitution.
type DitherRequest struct {
	Width       uint16
	Height      uint16
	AlgorithmID uint16
	Threshold   uint16
	Black       palette.RGB
	White       palette.RGB
}

func (m DitherRequest) Opcode() Opcode { return OpDither }

func (m DitherRequest) Encode() []byte {
	e := newElements(OpDither, 11)
	e[1] = m.Width
	e[2] = m.Height
	e[3] = m.AlgorithmID
	e[4] = m.Threshold
	putRGB(e[5:8], m.Black)
	putRGB(e[8:11], m.White)
	return e.bytes()
}

func DecodeDitherRequest(frame []byte) (DitherRequest, error) {
	e, err := readFixed(frame, OpDither, 11)
	if err != nil {
		return DitherRequest{}, err
	}
	black, err := readRGB(e[5:8])
	if err != nil {
		return DitherRequest{}, fmt.Errorf("black: %w", err)
	}
	white, err := readRGB(e[8:11])
	if err != nil {
		return DitherRequest{}, fmt.Errorf("white: %w", err)
	}
	return DitherRequest{
		Width:       e[1],
		Height:      e[2],
		AlgorithmID: e[3],
		Threshold:   e[4],
		Black:       black,
		White:       white,
	}, nil
}

// DitherBWRequest is the black and white request without substitution.
type DitherBWRequest struct {
	Width       uint16
	Height      uint16
	AlgorithmID uint16
	Threshold   uint16
}

func (m DitherBWRequest) Opcode() Opcode { return OpDitherBW }

func (m DitherBWRequest) Encode() []byte {
	e := newElements(OpDitherBW, 5)
	e[1] = m.Width
	e[2] = m.Height
	e[3] = m.AlgorithmID
	e[4] = m.Threshold
	return e.bytes()
}

func DecodeDitherBWRequest(frame []byte) (DitherBWRequest, error) {
	e, err := readFixed(frame, OpDitherBW, 5)
	if err != nil {
		return DitherBWRequest{}, err
	}
	return DitherBWRequest{Width: e[1], Height: e[2], AlgorithmID: e[3], Threshold: e[4]}, nil
}

// DitherColorRequest carries the selected palette as trailing RGB triples.
type DitherColorRequest struct {
	Width       uint16
	Height      uint16
	AlgorithmID uint16
	ColorModeID uint16
	Colors      []palette.RGB
}

func (m DitherColorRequest) Opcode() Opcode { return OpDitherColor }

func (m DitherColorRequest) Encode() []byte {
	e := newElements(OpDitherColor, 5+3*len(m.Colors))
	e[1] = m.Width
	e[2] = m.Height
	e[3] = m.AlgorithmID
	e[4] = m.ColorModeID
	for i, c := range m.Colors {
		putRGB(e[5+3*i:8+3*i], c)
	}
	return e.bytes()
}

func DecodeDitherColorRequest(frame []byte) (DitherColorRequest, error) {
	e, err := readElements(frame, OpDitherColor)
	if err != nil {
		return DitherColorRequest{}, err
	}
	if len(e) < 5 || (len(e)-5)%3 != 0 {
		return DitherColorRequest{}, fmt.Errorf("%s has %d fields: %w", OpDitherColor, len(e), ErrPayloadLength)
	}
	n := (len(e) - 5) / 3
	if n > MaxColors {
		return DitherColorRequest{}, fmt.Errorf("%s with %d colors: %w", OpDitherColor, n, ErrTooManyColors)
	}
	colors := make([]palette.RGB, n)
	for i := range colors {
		c, err := readRGB(e[5+3*i : 8+3*i])
		if err != nil {
			return DitherColorRequest{}, fmt.Errorf("color %d: %w", i, err)
		}
		colors[i] = c
	}
	return DitherColorRequest{
		Width:       e[1],
		Height:      e[2],
		AlgorithmID: e[3],
		ColorModeID: e[4],
		Colors:      colors,
	}, nil
}

// OptimizePaletteRequest asks a worker to quantize its current image.
type OptimizePaletteRequest struct {
	NumColors uint16
	ModeID    uint16
}

func (m OptimizePaletteRequest) Opcode() Opcode { return OpOptimizePalette }

func (m OptimizePaletteRequest) Encode() []byte {
	e := newElements(OpOptimizePalette, 3)
	e[1] = m.NumColors
	e[2] = m.ModeID
	return e.bytes()
}

func DecodeOptimizePaletteRequest(frame []byte) (OptimizePaletteRequest, error) {
	e, err := readFixed(frame, OpOptimizePalette, 3)
	if err != nil {
		return OptimizePaletteRequest{}, err
	}
	if e[1] > MaxColors {
		return OptimizePaletteRequest{}, fmt.Errorf("%s for %d colors: %w", OpOptimizePalette, e[1], ErrTooManyColors)
	}
	return OptimizePaletteRequest{NumColors: e[1], ModeID: e[2]}, nil
}

// Empty is a request with no fields beyond its opcode (histogram requests).
type Empty struct {
	Op Opcode
}

func (m Empty) Opcode() Opcode { return m.Op }

func (m Empty) Encode() []byte {
	return EncodeEmpty(m.Op)
}

func EncodeEmpty(op Opcode) []byte {
	return newElements(op, 1).bytes()
}

func DecodeEmpty(frame []byte) (Empty, error) {
	op, err := RequestOpcode(frame)
	if err != nil {
		return Empty{}, err
	}
	if len(frame) != elementSize {
		return Empty{}, fmt.Errorf("%s has %d bytes, want %d: %w", op, len(frame), elementSize, ErrPayloadLength)
	}
	return Empty{Op: op}, nil
}

func putRGB(dst elements, c palette.RGB) {
	dst[0] = uint16(c.R)
	dst[1] = uint16(c.G)
	dst[2] = uint16(c.B)
}

func readRGB(src elements) (palette.RGB, error) {
	for _, v := range src {
		if v > 0xff {
			return palette.RGB{}, fmt.Errorf("component %d: %w", v, ErrFieldRange)
		}
	}
	return palette.RGB{R: uint8(src[0]), G: uint8(src[1]), B: uint8(src[2])}, nil
}
