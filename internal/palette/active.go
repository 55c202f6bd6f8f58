package palette

// Active is the color section's working palette: a fixed number of slots of which the
// first NumColors are selected for dithering.
type Active struct {
	colors    []RGB
	numColors int
	min       int
}

// NewActive fills maxColors slots from seed, cycling it when seed is shorter.
func NewActive(seed []RGB, minColors, maxColors int) *Active {
	if maxColors < 1 {
		maxColors = 1
	}
	if minColors < 1 {
		minColors = 1
	}
	if minColors > maxColors {
		minColors = maxColors
	}
	a := &Active{
		colors:    make([]RGB, maxColors),
		numColors: maxColors,
		min:       minColors,
	}
	a.fill(seed)
	return a
}

func (a *Active) fill(seed []RGB) {
	if len(seed) == 0 {
		return
	}
	for i := range a.colors {
		a.colors[i] = seed[i%len(seed)]
	}
}

// Max is the number of slots.
func (a *Active) Max() int { return len(a.colors) }

// Min is the lower clamp for NumColors.
func (a *Active) Min() int { return a.min }

func (a *Active) NumColors() int { return a.numColors }

// SetNumColors clamps n into [Min, Max] and reports the stored value and whether it changed.
func (a *Active) SetNumColors(n int) (int, bool) {
	if n < a.min {
		n = a.min
	} else if n > len(a.colors) {
		n = len(a.colors)
	}
	changed := n != a.numColors
	a.numColors = n
	return n, changed
}

// Selected returns a copy of the first NumColors slots.
func (a *Active) Selected() []RGB {
	out := make([]RGB, a.numColors)
	copy(out, a.colors[:a.numColors])
	return out
}

// All returns a copy of every slot.
func (a *Active) All() []RGB {
	out := make([]RGB, len(a.colors))
	copy(out, a.colors)
	return out
}

// Apply overwrites the leading slots with colors and reports whether the selected colors
// changed. Extra colors beyond Max are ignored.
func (a *Active) Apply(colors []RGB) bool {
	before := a.Selected()
	copy(a.colors, colors)
	return !Equal(before, a.colors[:a.numColors])
}

// Load replaces all slots from a preset, cycling it to fill.
func (a *Active) Load(n Named) bool {
	before := a.Selected()
	a.fill(n.Colors)
	return !Equal(before, a.colors[:a.numColors])
}
