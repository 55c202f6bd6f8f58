package algorithms

import "github.com/makeworld-the-better-one/dither/v2"

const colorIDOffset = 64

type family struct {
	name      string
	colorName string
	matrix    dither.ErrorDiffusionMatrix
	mapper    func(kind Kind) dither.PixelMapper
}

func ordered(m dither.OrderedDitherMatrix) func(Kind) dither.PixelMapper {
	return func(kind Kind) dither.PixelMapper {
		return dither.PixelMapperFromMatrix(m, orderedStrength(kind))
	}
}

func bayer(x, y uint) func(Kind) dither.PixelMapper {
	return func(kind Kind) dither.PixelMapper {
		return dither.Bayer(x, y, orderedStrength(kind))
	}
}

func orderedStrength(kind Kind) float32 {
	if kind == KindColor {
		return 0.64
	}
	return 1.0
}

// families is ordered; black and white ids start at 1 and color ids at 65.
var families = []family{
	{name: "Threshold", colorName: "Closest Color"},
	{name: "Random", mapper: func(kind Kind) dither.PixelMapper {
		if kind == KindColor {
			return dither.RandomNoiseRGB(-0.2, 0.2, -0.2, 0.2, -0.2, 0.2)
		}
		return dither.RandomNoiseGrayscale(-0.5, 0.5)
	}},
	{name: "Atkinson", matrix: dither.Atkinson},
	{name: "Floyd-Steinberg", matrix: dither.FloydSteinberg},
	{name: "False Floyd-Steinberg", matrix: dither.FalseFloydSteinberg},
	{name: "Jarvis-Judice-Ninke", matrix: dither.JarvisJudiceNinke},
	{name: "Stucki", matrix: dither.Stucki},
	{name: "Burkes", matrix: dither.Burkes},
	{name: "Sierra 3", matrix: dither.Sierra3},
	{name: "Sierra 2", matrix: dither.Sierra2},
	{name: "Sierra Lite", matrix: dither.SierraLite},
	{name: "Steven Pigeon", matrix: dither.StevenPigeon},
	{name: "Bayer 2x2", mapper: bayer(2, 2)},
	{name: "Bayer 4x4", mapper: bayer(4, 4)},
	{name: "Bayer 8x8", mapper: bayer(8, 8)},
	{name: "Bayer 16x16", mapper: bayer(16, 16)},
	{name: "Clustered Dot 4x4", mapper: ordered(dither.ClusteredDot4x4)},
	{name: "Clustered Dot 8x8", mapper: ordered(dither.ClusteredDot8x8)},
	{name: "Clustered Dot Spiral 5x5", mapper: ordered(dither.ClusteredDotSpiral5x5)},
	{name: "Horizontal Lines 3x5", mapper: ordered(dither.Horizontal3x5)},
	{name: "Vertical Lines 5x3", mapper: ordered(dither.Vertical5x3)},
}

func builtins() []Algorithm {
	list := make([]Algorithm, 0, 2*len(families))
	for i, f := range families {
		for _, kind := range []Kind{KindBW, KindColor} {
			a := Algorithm{
				ID:     uint16(i + 1),
				Name:   f.name,
				Kind:   kind,
				Matrix: f.matrix,
			}
			if kind == KindColor {
				a.ID += colorIDOffset
				if f.colorName != "" {
					a.Name = f.colorName
				}
			}
			if f.mapper != nil {
				a.Mapper = f.mapper(kind)
			}
			list = append(list, a)
		}
	}
	return list
}
