package kernel

import (
	"image"

	"dither-studio/internal/algorithms"
)

const (
	LuminanceBins = 256
	HueBins       = 360
)

// LuminanceHistogram counts pixels per luma value, scaled so the fullest bin is 100.
func LuminanceHistogram(img *image.RGBA) []byte {
	counts := make([]int, LuminanceBins)
	b := img.Rect
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := img.PixOffset(x, y)
			counts[algorithms.Luminance(img.Pix[i], img.Pix[i+1], img.Pix[i+2])]++
		}
	}
	return percentages(counts)
}

// HueHistogram counts pixels per degree of hue. Gray pixels have no hue and are skipped.
func HueHistogram(img *image.RGBA) []byte {
	counts := make([]int, HueBins)
	b := img.Rect
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := img.PixOffset(x, y)
			if h, ok := hue(img.Pix[i], img.Pix[i+1], img.Pix[i+2]); ok {
				counts[h]++
			}
		}
	}
	return percentages(counts)
}

func hue(r, g, b uint8) (int, bool) {
	hi := max(r, g, b)
	lo := min(r, g, b)
	if hi == lo {
		return 0, false
	}
	delta := float64(hi) - float64(lo)
	var h float64
	switch hi {
	case r:
		h = (float64(g) - float64(b)) / delta
	case g:
		h = 2 + (float64(b)-float64(r))/delta
	default:
		h = 4 + (float64(r)-float64(g))/delta
	}
	deg := int(h*60+360) % 360
	return deg, true
}

func percentages(counts []int) []byte {
	peak := 0
	for _, c := range counts {
		peak = max(peak, c)
	}
	bins := make([]byte, len(counts))
	if peak == 0 {
		return bins
	}
	for i, c := range counts {
		bins[i] = byte(c * 100 / peak)
	}
	return bins
}
