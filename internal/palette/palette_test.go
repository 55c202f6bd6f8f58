package palette

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#D2ebf0")
	require.NoError(t, err)
	assert.Equal(t, RGB{0xd2, 0xeb, 0xf0}, c)
	assert.Equal(t, "#d2ebf0", c.Hex())

	c, err = ParseHex("ff8800")
	require.NoError(t, err)
	assert.Equal(t, RGB{0xff, 0x88, 0x00}, c)

	_, err = ParseHex("#fff")
	assert.Error(t, err)
	_, err = ParseHex("#gg0000")
	assert.Error(t, err)
}

func TestRGBIsColor(t *testing.T) {
	var c color.Color = RGB{R: 255, G: 128, B: 0}
	r, g, b, a := c.RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0x8080), g)
	assert.Equal(t, uint32(0), b)
	assert.Equal(t, uint32(0xffff), a)
	assert.Equal(t, RGB{255, 128, 0}, FromColor(c))
}

func TestBuiltinsAreFreshCopies(t *testing.T) {
	first := Builtins()
	require.Len(t, first, 5)
	first[0].Colors[0] = White

	again, ok := Lookup("Cosmic")
	require.True(t, ok)
	assert.Equal(t, MustParseHex("#022e75"), again.Colors[0])
}

func TestActiveClampsNumColors(t *testing.T) {
	a := NewActive(Builtins()[4].Colors, 2, 18)
	assert.Equal(t, 18, a.NumColors())

	n, changed := a.SetNumColors(1)
	assert.Equal(t, 2, n)
	assert.True(t, changed)

	n, changed = a.SetNumColors(40)
	assert.Equal(t, 18, n)
	assert.True(t, changed)

	_, changed = a.SetNumColors(18)
	assert.False(t, changed)
}

func TestActiveApplyReplacesLeadingSlots(t *testing.T) {
	a := NewActive([]RGB{Black, White}, 2, 6)
	a.SetNumColors(3)

	changed := a.Apply([]RGB{{1, 1, 1}, {2, 2, 2}, {3, 3, 3}})
	assert.True(t, changed)
	assert.Equal(t, []RGB{{1, 1, 1}, {2, 2, 2}, {3, 3, 3}}, a.Selected())
	assert.Equal(t, White, a.All()[3])

	assert.False(t, a.Apply([]RGB{{1, 1, 1}, {2, 2, 2}, {3, 3, 3}}))
}
