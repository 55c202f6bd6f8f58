// Package protocol frames the binary messages exchanged between the session and its workers.
//
// Requests are sequences of little-endian uint16 elements whose first element is the
// opcode. Replies are byte sequences whose first byte is the opcode. The package is a
// framing layer only: it never decides whether an opcode is acceptable to a receiver.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

type Opcode uint8

const (
	OpLoadImage Opcode = iota + 1
	OpDither
	OpDitherBW
	OpDitherColor
	OpHistogram
	OpHueHistogram
	OpOptimizePalette
	OpOptimizePaletteProgress
)

func (o Opcode) String() string {
	switch o {
	case OpLoadImage:
		return "load_image"
	case OpDither:
		return "dither"
	case OpDitherBW:
		return "dither_bw"
	case OpDitherColor:
		return "dither_color"
	case OpHistogram:
		return "histogram"
	case OpHueHistogram:
		return "hue_histogram"
	case OpOptimizePalette:
		return "optimize_palette"
	case OpOptimizePaletteProgress:
		return "optimize_palette_progress"
	default:
		return fmt.Sprintf("opcode(%d)", uint8(o))
	}
}

var (
	ErrShortFrame    = errors.New("frame too short")
	ErrPayloadLength = errors.New("payload length mismatch")
	ErrFieldRange    = errors.New("field out of range")
	ErrOpcode        = errors.New("unexpected opcode")
	ErrTooManyColors = errors.New("too many colors")
	// ErrUnknownOpcode is returned by receivers for opcodes they do not handle.
	ErrUnknownOpcode = errors.New("unknown opcode")
)

// MaxColors bounds a palette on the wire. Progress replies carry the color count in a byte.
const MaxColors = 255

// Message is any record that can be framed.
type Message interface {
	Opcode() Opcode
	Encode() []byte
}

const elementSize = 2

// RequestOpcode reads the opcode element of a request frame.
func RequestOpcode(frame []byte) (Opcode, error) {
	if len(frame) < elementSize {
		return 0, fmt.Errorf("request of %d bytes: %w", len(frame), ErrShortFrame)
	}
	if len(frame)%elementSize != 0 {
		return 0, fmt.Errorf("request of %d bytes is not element aligned: %w", len(frame), ErrPayloadLength)
	}
	op := binary.LittleEndian.Uint16(frame)
	if op > 0xff {
		return 0, fmt.Errorf("request opcode %d: %w", op, ErrFieldRange)
	}
	return Opcode(op), nil
}

// ReplyOpcode reads the opcode byte of a reply frame.
func ReplyOpcode(frame []byte) (Opcode, error) {
	if len(frame) < 1 {
		return 0, fmt.Errorf("empty reply: %w", ErrShortFrame)
	}
	return Opcode(frame[0]), nil
}

type elements []uint16

func newElements(op Opcode, n int) elements {
	e := make(elements, n)
	e[0] = uint16(op)
	return e
}

func (e elements) bytes() []byte {
	buf := make([]byte, len(e)*elementSize)
	for i, v := range e {
		binary.LittleEndian.PutUint16(buf[i*elementSize:], v)
	}
	return buf
}

// readElements checks the opcode and returns the frame as uint16 elements.
func readElements(frame []byte, want Opcode) (elements, error) {
	op, err := RequestOpcode(frame)
	if err != nil {
		return nil, err
	}
	if op != want {
		return nil, fmt.Errorf("got %s, want %s: %w", op, want, ErrOpcode)
	}
	e := make(elements, len(frame)/elementSize)
	for i := range e {
		e[i] = binary.LittleEndian.Uint16(frame[i*elementSize:])
	}
	return e, nil
}

func readFixed(frame []byte, want Opcode, n int) (elements, error) {
	e, err := readElements(frame, want)
	if err != nil {
		return nil, err
	}
	if len(e) != n {
		return nil, fmt.Errorf("%s has %d fields, want %d: %w", want, len(e), n, ErrPayloadLength)
	}
	return e, nil
}
