package algorithms

import (
	"image"
	"image/color"
	"runtime"
	"sync"

	"github.com/makeworld-the-better-one/dither/v2"

	"dither-studio/internal/palette"
)

// Params are the per-request inputs of a dithering run.
type Params struct {
	// Threshold shifts the black and white decision point; 128 is neutral.
	Threshold uint8
	Black     palette.RGB
	White     palette.RGB
	Colors    []palette.RGB
	Mode      ColorMode
}

// Run dithers src and returns a new image with the same bounds. src is read only, so the
// same pixel buffer can be shared by every worker.
func Run(a Algorithm, src *image.RGBA, p Params) *image.RGBA {
	p = normalize(a, p)
	switch {
	case a.PerPixel():
		dst := image.NewRGBA(src.Bounds())
		m := newPixelMapper(a, p)
		for y := src.Rect.Min.Y; y < src.Rect.Max.Y; y++ {
			m.row(src, dst, y)
		}
		return dst
	case a.Kind == KindBW:
		return diffuseBW(a, src, p)
	case p.Mode == ColorModeLinear:
		return diffuseLinear(a, src, p)
	default:
		return diffuse(a, src, p)
	}
}

func normalize(a Algorithm, p Params) Params {
	if a.Kind == KindColor && len(p.Colors) == 0 {
		p.Colors = []palette.RGB{palette.Black, palette.White}
	}
	if !p.Mode.Valid() {
		p.Mode = ColorModeLinear
	}
	return p
}

// runBanded is the accelerated form of a per-pixel run: rows are split into bands that are
// processed in parallel before returning.
func runBanded(a Algorithm, src *image.RGBA, p Params) *image.RGBA {
	p = normalize(a, p)
	dst := image.NewRGBA(src.Bounds())
	m := newPixelMapper(a, p)

	rows := src.Rect.Dy()
	bands := runtime.NumCPU()
	if bands > rows {
		bands = rows
	}
	if bands < 1 {
		return dst
	}
	step := (rows + bands - 1) / bands

	var wg sync.WaitGroup
	for start := src.Rect.Min.Y; start < src.Rect.Max.Y; start += step {
		end := min(start+step, src.Rect.Max.Y)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for y := s; y < e; y++ {
				m.row(src, dst, y)
			}
		}(start, end)
	}
	wg.Wait()
	return dst
}

type pixelMapper struct {
	a      Algorithm
	p      Params
	points [][3]float32
}

func newPixelMapper(a Algorithm, p Params) *pixelMapper {
	m := &pixelMapper{a: a, p: p}
	if a.Kind == KindColor {
		m.points = make([][3]float32, len(p.Colors))
		for i, c := range p.Colors {
			m.points[i] = m.point(toLinear[c.R], toLinear[c.G], toLinear[c.B])
		}
	}
	return m
}

// point places a linear color in the space the color mode measures distance in.
func (m *pixelMapper) point(r, g, b uint16) [3]float32 {
	if m.p.Mode == ColorModeLinear {
		return [3]float32{float32(r), float32(g), float32(b)}
	}
	return [3]float32{float32(toSRGB(r)), float32(toSRGB(g)), float32(toSRGB(b))}
}

func (m *pixelMapper) row(src, dst *image.RGBA, y int) {
	for x := src.Rect.Min.X; x < src.Rect.Max.X; x++ {
		i := src.PixOffset(x, y)
		j := dst.PixOffset(x, y)
		r, g, b := src.Pix[i], src.Pix[i+1], src.Pix[i+2]

		var c palette.RGB
		if m.a.Kind == KindBW {
			v := biasedGray(r, g, b, m.p.Threshold)
			white := v >= 128
			if m.a.Mapper != nil {
				// mapped values are linear; pick the closer of the two extremes
				l := toLinear[v]
				lr, _, _ := m.a.Mapper(x, y, l, l, l)
				white = lr >= 1<<15
			}
			c = m.p.Black
			if white {
				c = m.p.White
			}
		} else {
			lr, lg, lb := toLinear[r], toLinear[g], toLinear[b]
			if m.a.Mapper != nil {
				lr, lg, lb = m.a.Mapper(x, y, lr, lg, lb)
			}
			c = m.p.Colors[nearest(m.points, m.point(lr, lg, lb), m.p.Mode)]
		}

		dst.Pix[j] = c.R
		dst.Pix[j+1] = c.G
		dst.Pix[j+2] = c.B
		dst.Pix[j+3] = src.Pix[i+3]
	}
}

func diffuseBW(a Algorithm, src *image.RGBA, p Params) *image.RGBA {
	bounds := src.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			i := src.PixOffset(x, y)
			gray.Pix[gray.PixOffset(x, y)] = biasedGray(src.Pix[i], src.Pix[i+1], src.Pix[i+2], p.Threshold)
		}
	}

	d := dither.NewDitherer([]color.Color{color.Black, color.White})
	d.Matrix = a.Matrix
	out := d.DitherCopy(gray)

	dst := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			i := src.PixOffset(x, y)
			j := dst.PixOffset(x, y)
			c := p.Black
			if out.Pix[out.PixOffset(x, y)] > 127 {
				c = p.White
			}
			dst.Pix[j], dst.Pix[j+1], dst.Pix[j+2], dst.Pix[j+3] = c.R, c.G, c.B, src.Pix[i+3]
		}
	}
	return dst
}

func diffuseLinear(a Algorithm, src *image.RGBA, p Params) *image.RGBA {
	d := dither.NewDitherer(palette.ColorPalette(p.Colors))
	d.Matrix = a.Matrix
	out := d.DitherCopy(src)

	bounds := src.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			out.Pix[out.PixOffset(x, y)+3] = src.Pix[src.PixOffset(x, y)+3]
		}
	}
	return out
}

// diffuse is error diffusion in gamma encoded space, with the distance of the color mode.
func diffuse(a Algorithm, src *image.RGBA, p Params) *image.RGBA {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	buf := make([]float32, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := src.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			k := (y*w + x) * 3
			buf[k], buf[k+1], buf[k+2] = float32(src.Pix[i]), float32(src.Pix[i+1]), float32(src.Pix[i+2])
		}
	}

	points := make([][3]float32, len(p.Colors))
	for i, c := range p.Colors {
		points[i] = [3]float32{float32(c.R), float32(c.G), float32(c.B)}
	}
	curr := currentPixel(a.Matrix)

	dst := image.NewRGBA(bounds)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			k := (y*w + x) * 3
			old := [3]float32{clamp255(buf[k]), clamp255(buf[k+1]), clamp255(buf[k+2])}
			c := p.Colors[nearest(points, old, p.Mode)]

			i := src.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			j := dst.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			dst.Pix[j], dst.Pix[j+1], dst.Pix[j+2], dst.Pix[j+3] = c.R, c.G, c.B, src.Pix[i+3]

			er := old[0] - float32(c.R)
			eg := old[1] - float32(c.G)
			eb := old[2] - float32(c.B)
			for dy, row := range a.Matrix {
				ny := y + dy
				if ny >= h {
					break
				}
				for col, weight := range row {
					if weight == 0 {
						continue
					}
					nx := x + col - curr
					if nx < 0 || nx >= w {
						continue
					}
					n := (ny*w + nx) * 3
					buf[n] += er * weight
					buf[n+1] += eg * weight
					buf[n+2] += eb * weight
				}
			}
		}
	}
	return dst
}

// currentPixel is the column of the pixel being processed in the first matrix row.
func currentPixel(m dither.ErrorDiffusionMatrix) int {
	for i, v := range m[0] {
		if v != 0 {
			return i - 1
		}
	}
	return 0
}

func nearest(points [][3]float32, c [3]float32, mode ColorMode) int {
	best := 0
	bestDist := float32(-1)
	for i, p := range points {
		d := distance(p, c, mode)
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
			if d == 0 {
				break
			}
		}
	}
	return best
}

func distance(a, b [3]float32, mode ColorMode) float32 {
	dr, dg, db := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	if mode == ColorModeLuma {
		dl := 0.299*dr + 0.587*dg + 0.114*db
		return (0.299*dr*dr+0.587*dg*dg+0.114*db*db)*0.75 + dl*dl
	}
	return dr*dr + dg*dg + db*db
}

func clamp255(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
