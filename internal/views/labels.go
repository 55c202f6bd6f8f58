package views

import (
	"fmt"

	"dither-studio/internal/algorithms"
	"dither-studio/internal/palette"
	"dither-studio/internal/studio"
)

func sectionKind(index int) algorithms.Kind {
	if index == 1 {
		return algorithms.KindColor
	}
	return algorithms.KindBW
}

func sectionIndex(kind algorithms.Kind) int {
	if kind == algorithms.KindColor {
		return 1
	}
	return 0
}

func pixelationTitles() []string {
	titles := make([]string, len(studio.PixelationZooms))
	for i, zoom := range studio.PixelationZooms {
		if i == 0 {
			titles[i] = "None"
			continue
		}
		titles[i] = fmt.Sprintf("%d (%d%%)", i, zoom)
	}
	return titles
}

func colorModeTitles() []string {
	modes := algorithms.ColorModes()
	titles := make([]string, len(modes))
	for i, m := range modes {
		titles[i] = m.String()
	}
	return titles
}

func quantizationTitles() []string {
	modes := algorithms.QuantizationModes()
	titles := make([]string, len(modes))
	for i, m := range modes {
		titles[i] = m.String()
	}
	return titles
}

func paletteTitles() []string {
	builtins := palette.Builtins()
	titles := make([]string, len(builtins))
	for i, n := range builtins {
		titles[i] = n.Title
	}
	return titles
}

// HistogramSummary describes the peak of a histogram reply in one line. Luminance bins are
// brightness levels and hue bins are degrees.
func HistogramSummary(section algorithms.Kind, bins []byte) string {
	label, unit := "Luminance", ""
	if section == algorithms.KindColor {
		label, unit = "Hue", "°"
	}

	peak, weighted, total := -1, 0, 0
	for i, b := range bins {
		if b == 100 && peak < 0 {
			peak = i
		}
		weighted += i * int(b)
		total += int(b)
	}
	if peak < 0 || total == 0 {
		return label + ": --"
	}
	return fmt.Sprintf("%s: peak %d%s, mean %d%s", label, peak, unit, weighted/total, unit)
}
