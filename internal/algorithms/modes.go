package algorithms

import "fmt"

// ColorMode picks how the color section measures the distance between two colors.
type ColorMode uint16

const (
	// ColorModeLinear compares colors in linear RGB.
	ColorModeLinear ColorMode = iota
	// ColorModeRGB compares gamma encoded RGB directly.
	ColorModeRGB
	// ColorModeLuma weights channels by their contribution to perceived brightness.
	ColorModeLuma
)

func (m ColorMode) String() string {
	switch m {
	case ColorModeLinear:
		return "Linear RGB"
	case ColorModeRGB:
		return "RGB"
	case ColorModeLuma:
		return "Luma"
	default:
		return fmt.Sprintf("color mode %d", uint16(m))
	}
}

func (m ColorMode) Valid() bool {
	return m <= ColorModeLuma
}

func ColorModes() []ColorMode {
	return []ColorMode{ColorModeLinear, ColorModeRGB, ColorModeLuma}
}

// QuantizationMode picks the palette optimization strategy.
type QuantizationMode uint16

const (
	QuantizeMedianCutMean QuantizationMode = iota
	QuantizeMedianCutMode
	QuantizeVarianceMedian
	QuantizePopularity
)

func (m QuantizationMode) String() string {
	switch m {
	case QuantizeMedianCutMean:
		return "Median Cut (mean)"
	case QuantizeMedianCutMode:
		return "Median Cut (mode)"
	case QuantizeVarianceMedian:
		return "Variance Median"
	case QuantizePopularity:
		return "Popularity"
	default:
		return fmt.Sprintf("quantization mode %d", uint16(m))
	}
}

func (m QuantizationMode) Valid() bool {
	return m <= QuantizePopularity
}

func QuantizationModes() []QuantizationMode {
	return []QuantizationMode{QuantizeMedianCutMean, QuantizeMedianCutMode, QuantizeVarianceMedian, QuantizePopularity}
}
