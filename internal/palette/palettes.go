package palette

// Named is a preset palette offered by the color section.
type Named struct {
	Title  string
	Colors []RGB
}

var builtins = []struct {
	title string
	hexes []string
}{
	{"Cosmic", []string{"#022e75", "#d2ebf0", "#763a70", "#facbf5", "#0000ff", "#ff00ff", "#ffff00", "#ff8800"}},
	{"Ketchup", []string{"#064000", "#fed9ff", "#cf0e0e", "#e1fade", "#82119d", "#ff00ff", "#ffff71", "#ff8800"}},
	{"Rust", []string{"#060338", "#fadafe", "#bd6a2d", "#e4fafc", "#e2a867", "#203e8a", "#cd3232", "#3f7c62"}},
	{"Slime", []string{"#28012e", "#fcfde1", "#eedb51", "#8ab32d", "#852d97", "#271784", "#a93e2e", "#613f4e"}},
	{"Primaries", []string{"#000000", "#ffffff", "#ff0000", "#00ff00", "#0000ff", "#ff00ff", "#ffff00", "#ff8800"}},
}

// Builtins returns fresh copies of the preset palettes.
func Builtins() []Named {
	named := make([]Named, len(builtins))
	for i, b := range builtins {
		colors := make([]RGB, len(b.hexes))
		for j, h := range b.hexes {
			colors[j] = MustParseHex(h)
		}
		named[i] = Named{Title: b.title, Colors: colors}
	}
	return named
}

// Lookup finds a preset by case-sensitive title.
func Lookup(title string) (Named, bool) {
	for _, n := range Builtins() {
		if n.Title == title {
			return n, true
		}
	}
	return Named{}, false
}
