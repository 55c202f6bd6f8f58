package algorithms

import "math"

var toLinear [256]uint16

func init() {
	for i := range toLinear {
		v := float64(i) / 255
		if v <= 0.04045 {
			v /= 12.92
		} else {
			v = math.Pow((v+0.055)/1.055, 2.4)
		}
		toLinear[i] = uint16(math.Round(v * 65535))
	}
}

func toSRGB(l uint16) uint8 {
	v := float64(l) / 65535
	if v <= 0.0031308 {
		v *= 12.92
	} else {
		v = 1.055*math.Pow(v, 1/2.4) - 0.055
	}
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

// Luminance is the Rec. 601 luma of an 8-bit color.
func Luminance(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}

func biasedGray(r, g, b, threshold uint8) uint8 {
	v := int(Luminance(r, g, b)) + 128 - int(threshold)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
