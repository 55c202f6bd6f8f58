package kernel

import (
	"image"
	"image/color"
	"sort"

	"github.com/ericpauley/go-quantize/quantize"
	"github.com/soniakeys/quant/median"

	"dither-studio/internal/algorithms"
	"dither-studio/internal/palette"
)

// ProgressFunc receives percentages in [0, 100], in non-decreasing order.
type ProgressFunc func(percentage int)

// Quantize computes an n color palette for img. The result always has exactly n entries:
// short palettes are padded by repeating their last color.
func Quantize(img *image.RGBA, n int, mode algorithms.QuantizationMode, progress ProgressFunc) []palette.RGB {
	if progress == nil {
		progress = func(int) {}
	}
	progress(0)

	var found color.Palette
	switch mode {
	case algorithms.QuantizeMedianCutMode:
		q := quantize.MedianCutQuantizer{Aggregation: quantize.Mode}
		found = q.Quantize(make(color.Palette, 0, n), img)
	case algorithms.QuantizeVarianceMedian:
		found = median.Quantizer(n).Palette(img).ColorPalette()
	case algorithms.QuantizePopularity:
		found = popularity(img, n, progress)
	default:
		q := quantize.MedianCutQuantizer{Aggregation: quantize.Mean}
		found = q.Quantize(make(color.Palette, 0, n), img)
	}

	colors := pad(found, n)
	progress(100)
	return colors
}

func pad(found color.Palette, n int) []palette.RGB {
	colors := make([]palette.RGB, n)
	last := palette.Black
	for i := range colors {
		if i < len(found) {
			last = palette.FromColor(found[i])
		}
		colors[i] = last
	}
	return colors
}

// popularity keeps the n most frequent colors after reducing each channel to 5 bits. Each
// bucket is represented by the mean of the pixels that fell into it.
func popularity(img *image.RGBA, n int, progress ProgressFunc) color.Palette {
	type bucket struct {
		key     uint16
		count   int
		r, g, b int
	}
	buckets := make(map[uint16]*bucket)

	bounds := img.Rect
	rows := bounds.Dy()
	reported := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			i := img.PixOffset(x, y)
			r, g, b := img.Pix[i], img.Pix[i+1], img.Pix[i+2]
			key := uint16(r>>3)<<10 | uint16(g>>3)<<5 | uint16(b>>3)
			bk, ok := buckets[key]
			if !ok {
				bk = &bucket{key: key}
				buckets[key] = bk
			}
			bk.count++
			bk.r += int(r)
			bk.g += int(g)
			bk.b += int(b)
		}
		// counting is most of the work; the last tenth is left for completion
		pct := (y - bounds.Min.Y + 1) * 90 / rows
		if pct/10 > reported/10 {
			reported = pct
			progress(pct)
		}
	}

	sorted := make([]*bucket, 0, len(buckets))
	for _, bk := range buckets {
		sorted = append(sorted, bk)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].key < sorted[j].key
	})

	if len(sorted) > n {
		sorted = sorted[:n]
	}
	out := make(color.Palette, len(sorted))
	for i, bk := range sorted {
		out[i] = palette.RGB{
			R: uint8(bk.r / bk.count),
			G: uint8(bk.g / bk.count),
			B: uint8(bk.b / bk.count),
		}
	}
	return out
}
