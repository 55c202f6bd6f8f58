// Package palette holds color values and the palettes the color dither section works with.
package palette

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// RGB is an opaque 8-bit color. It satisfies color.Color so palettes can be handed
// straight to image libraries.
type RGB struct {
	R, G, B uint8
}

var (
	Black = RGB{0, 0, 0}
	White = RGB{255, 255, 255}
)

func (c RGB) RGBA() (r, g, b, a uint32) {
	r = uint32(c.R)
	r |= r << 8
	g = uint32(c.G)
	g |= g << 8
	b = uint32(c.B)
	b |= b << 8
	return r, g, b, 0xffff
}

// Hex formats the color as #rrggbb.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c RGB) String() string {
	return c.Hex()
}

// FromColor converts any color.Color, dropping alpha.
func FromColor(c color.Color) RGB {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return RGB{R: n.R, G: n.G, B: n.B}
}

// ParseHex accepts #rrggbb or rrggbb, case-insensitive.
func ParseHex(hex string) (RGB, error) {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) != 6 {
		return RGB{}, fmt.Errorf("invalid hex color: #%s (expected 6 hex digits)", hex)
	}
	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		val, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			return RGB{}, fmt.Errorf("invalid hex color: #%s: %w", hex, err)
		}
		rgb[i] = uint8(val)
	}
	return RGB{R: rgb[0], G: rgb[1], B: rgb[2]}, nil
}

func MustParseHex(hex string) RGB {
	c, err := ParseHex(hex)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseHexList parses every entry or fails on the first bad one.
func ParseHexList(hexes []string) ([]RGB, error) {
	colors := make([]RGB, len(hexes))
	for i, h := range hexes {
		c, err := ParseHex(h)
		if err != nil {
			return nil, fmt.Errorf("color %d: %w", i, err)
		}
		colors[i] = c
	}
	return colors, nil
}

// ColorPalette adapts a slice of RGB values for image libraries.
func ColorPalette(colors []RGB) color.Palette {
	p := make(color.Palette, len(colors))
	for i, c := range colors {
		p[i] = c
	}
	return p
}

// Equal reports whether both slices hold the same colors in the same order.
func Equal(a, b []RGB) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
