package protocol

import (
	"fmt"

	"dither-studio/internal/palette"
)

// PixelsReply is a reply whose body is an opaque byte buffer: dithered RGBA pixels for the
// dither opcodes, histogram bins for the histogram opcodes.
type PixelsReply struct {
	Op     Opcode
	Pixels []byte
}

func (m PixelsReply) Opcode() Opcode { return m.Op }

func (m PixelsReply) Encode() []byte {
	buf := make([]byte, 1+len(m.Pixels))
	buf[0] = byte(m.Op)
	copy(buf[1:], m.Pixels)
	return buf
}

// DecodePixelsReply splits the opcode from the body. Pixels aliases frame; ownership of the
// frame passes to the caller.
func DecodePixelsReply(frame []byte) (PixelsReply, error) {
	op, err := ReplyOpcode(frame)
	if err != nil {
		return PixelsReply{}, err
	}
	return PixelsReply{Op: op, Pixels: frame[1:]}, nil
}

// OptimizePaletteReply carries the optimized colors for one quantization mode. The color
// count is implied by the body length.
type OptimizePaletteReply struct {
	ModeID uint8
	Colors []palette.RGB
}

func (m OptimizePaletteReply) Opcode() Opcode { return OpOptimizePalette }

func (m OptimizePaletteReply) Encode() []byte {
	buf := make([]byte, 2+3*len(m.Colors))
	buf[0] = byte(OpOptimizePalette)
	buf[1] = m.ModeID
	for i, c := range m.Colors {
		buf[2+3*i] = c.R
		buf[3+3*i] = c.G
		buf[4+3*i] = c.B
	}
	return buf
}

func DecodeOptimizePaletteReply(frame []byte) (OptimizePaletteReply, error) {
	op, err := ReplyOpcode(frame)
	if err != nil {
		return OptimizePaletteReply{}, err
	}
	if op != OpOptimizePalette {
		return OptimizePaletteReply{}, fmt.Errorf("got %s, want %s: %w", op, OpOptimizePalette, ErrOpcode)
	}
	if len(frame) < 2 {
		return OptimizePaletteReply{}, fmt.Errorf("%s without mode: %w", op, ErrShortFrame)
	}
	body := frame[2:]
	if len(body)%3 != 0 {
		return OptimizePaletteReply{}, fmt.Errorf("%s color bytes %d not a multiple of 3: %w", op, len(body), ErrPayloadLength)
	}
	colors := make([]palette.RGB, len(body)/3)
	for i := range colors {
		colors[i] = palette.RGB{R: body[3*i], G: body[3*i+1], B: body[3*i+2]}
	}
	return OptimizePaletteReply{ModeID: frame[1], Colors: colors}, nil
}

// OptimizePaletteProgress reports percentage 0..100 for an in-flight quantization.
type OptimizePaletteProgress struct {
	ModeID     uint8
	NumColors  uint8
	Percentage uint8
}

func (m OptimizePaletteProgress) Opcode() Opcode { return OpOptimizePaletteProgress }

func (m OptimizePaletteProgress) Encode() []byte {
	return []byte{byte(OpOptimizePaletteProgress), m.ModeID, m.NumColors, m.Percentage}
}

func DecodeOptimizePaletteProgress(frame []byte) (OptimizePaletteProgress, error) {
	op, err := ReplyOpcode(frame)
	if err != nil {
		return OptimizePaletteProgress{}, err
	}
	if op != OpOptimizePaletteProgress {
		return OptimizePaletteProgress{}, fmt.Errorf("got %s, want %s: %w", op, OpOptimizePaletteProgress, ErrOpcode)
	}
	if len(frame) != 4 {
		return OptimizePaletteProgress{}, fmt.Errorf("%s has %d bytes, want 4: %w", op, len(frame), ErrPayloadLength)
	}
	return OptimizePaletteProgress{ModeID: frame[1], NumColors: frame[2], Percentage: frame[3]}, nil
}
