package components

import (
	"fmt"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

const swatchSize = 22

// SectionOptions lists the choices offered by the two dither sections
type SectionOptions struct {
	BWAlgorithms      []string
	ColorAlgorithms   []string
	ColorModes        []string
	QuantizationModes []string
	Palettes          []string
	MinColors         int
	MaxColors         int
}

// SectionState is what the sections display
type SectionState struct {
	Section          int
	BWAlgorithm      string
	Threshold        uint8
	ColorAlgorithm   string
	ColorMode        int
	QuantizationMode int
	NumColors        int
	Colors           []color.Color
	Progress         string
}

// SectionHandlers receive user changes; nil handlers are skipped
type SectionHandlers struct {
	SectionChanged          func(index int)
	BWAlgorithmChanged      func(name string)
	ThresholdChanged        func(threshold uint8)
	ColorAlgorithmChanged   func(name string)
	ColorModeChanged        func(index int)
	QuantizationModeChanged func(index int)
	NumColorsChanged        func(n int)
	PresetChanged           func(title string)
	OptimizePalette         func()
}

// Sections is the tabbed black and white / color settings panel
type Sections struct {
	tabs *container.AppTabs

	bwAlgorithm    *widget.Select
	threshold      *widget.Slider
	thresholdLabel *widget.Label
	bwHistogram    *widget.Label

	colorAlgorithm *widget.Select
	colorMode      *widget.Select
	quantMode      *widget.Select
	numColors      *widget.Slider
	numColorsLabel *widget.Label
	preset         *widget.Select
	optimizeButton *widget.Button
	progressLabel  *widget.Label
	swatches       *fyne.Container
	hueHistogram   *widget.Label

	handlers SectionHandlers
	applying bool
}

func NewSections(opts SectionOptions) *Sections {
	s := &Sections{}
	s.createComponents(opts)
	s.buildLayout()
	return s
}

func (s *Sections) createComponents(opts SectionOptions) {
	s.bwAlgorithm = widget.NewSelect(opts.BWAlgorithms, func(name string) {
		if !s.applying && s.handlers.BWAlgorithmChanged != nil {
			s.handlers.BWAlgorithmChanged(name)
		}
	})
	s.thresholdLabel = widget.NewLabel("")
	s.threshold = widget.NewSlider(0, 255)
	s.threshold.Step = 1
	s.threshold.OnChanged = func(v float64) {
		s.thresholdLabel.SetText(fmt.Sprintf("Threshold: %d", int(v)))
	}
	s.threshold.OnChangeEnded = func(v float64) {
		if !s.applying && s.handlers.ThresholdChanged != nil {
			s.handlers.ThresholdChanged(uint8(v))
		}
	}
	s.bwHistogram = widget.NewLabel("Luminance: --")

	s.colorAlgorithm = widget.NewSelect(opts.ColorAlgorithms, func(name string) {
		if !s.applying && s.handlers.ColorAlgorithmChanged != nil {
			s.handlers.ColorAlgorithmChanged(name)
		}
	})
	s.colorMode = widget.NewSelect(opts.ColorModes, nil)
	s.colorMode.OnChanged = func(string) {
		if !s.applying && s.handlers.ColorModeChanged != nil {
			s.handlers.ColorModeChanged(s.colorMode.SelectedIndex())
		}
	}
	s.quantMode = widget.NewSelect(opts.QuantizationModes, nil)
	s.quantMode.OnChanged = func(string) {
		if !s.applying && s.handlers.QuantizationModeChanged != nil {
			s.handlers.QuantizationModeChanged(s.quantMode.SelectedIndex())
		}
	}

	s.numColorsLabel = widget.NewLabel("")
	s.numColors = widget.NewSlider(float64(opts.MinColors), float64(opts.MaxColors))
	s.numColors.Step = 1
	s.numColors.OnChanged = func(v float64) {
		s.numColorsLabel.SetText(fmt.Sprintf("Colors: %d", int(v)))
	}
	s.numColors.OnChangeEnded = func(v float64) {
		if !s.applying && s.handlers.NumColorsChanged != nil {
			s.handlers.NumColorsChanged(int(v))
		}
	}

	s.preset = widget.NewSelect(opts.Palettes, func(title string) {
		if !s.applying && s.handlers.PresetChanged != nil {
			s.handlers.PresetChanged(title)
		}
	})
	s.preset.PlaceHolder = "Load palette"

	s.optimizeButton = widget.NewButton("Optimize Palette", func() {
		if s.handlers.OptimizePalette != nil {
			s.handlers.OptimizePalette()
		}
	})
	s.progressLabel = widget.NewLabel("")
	s.swatches = container.NewGridWrap(fyne.NewSize(swatchSize, swatchSize))
	s.hueHistogram = widget.NewLabel("Hue: --")
}

func (s *Sections) buildLayout() {
	bw := container.NewVBox(
		widget.NewLabel("Algorithm"),
		s.bwAlgorithm,
		s.thresholdLabel,
		s.threshold,
		widget.NewSeparator(),
		s.bwHistogram,
	)

	colorSection := container.NewVBox(
		widget.NewLabel("Algorithm"),
		s.colorAlgorithm,
		widget.NewLabel("Color comparison"),
		s.colorMode,
		s.numColorsLabel,
		s.numColors,
		s.swatches,
		s.preset,
		widget.NewSeparator(),
		widget.NewLabel("Palette optimization"),
		s.quantMode,
		container.NewHBox(s.optimizeButton, s.progressLabel),
		widget.NewSeparator(),
		s.hueHistogram,
	)

	s.tabs = container.NewAppTabs(
		container.NewTabItem("Black & White", bw),
		container.NewTabItem("Color", colorSection),
	)
	s.tabs.OnSelected = func(*container.TabItem) {
		if !s.applying && s.handlers.SectionChanged != nil {
			s.handlers.SectionChanged(s.tabs.SelectedIndex())
		}
	}
}

func (s *Sections) SetHandlers(h SectionHandlers) {
	s.handlers = h
}

// Apply shows state without reporting it back through the handlers
func (s *Sections) Apply(state SectionState) {
	s.applying = true
	defer func() { s.applying = false }()

	s.tabs.SelectIndex(state.Section)
	s.bwAlgorithm.SetSelected(state.BWAlgorithm)
	s.threshold.SetValue(float64(state.Threshold))
	s.colorAlgorithm.SetSelected(state.ColorAlgorithm)
	s.colorMode.SetSelectedIndex(state.ColorMode)
	s.quantMode.SetSelectedIndex(state.QuantizationMode)
	s.numColors.SetValue(float64(state.NumColors))
	s.SetSwatches(state.Colors)
	s.SetProgress(state.Progress)
}

// SetSwatches shows one square per selected color
func (s *Sections) SetSwatches(colors []color.Color) {
	objects := make([]fyne.CanvasObject, len(colors))
	for i, c := range colors {
		rect := canvas.NewRectangle(c)
		rect.SetMinSize(fyne.NewSize(swatchSize, swatchSize))
		objects[i] = rect
	}
	s.swatches.Objects = objects
	s.swatches.Refresh()
}

func (s *Sections) SetProgress(message string) {
	s.progressLabel.SetText(message)
}

// SetHistogramSummary updates the summary line of a section
func (s *Sections) SetHistogramSummary(section int, summary string) {
	if section == 0 {
		s.bwHistogram.SetText(summary)
		return
	}
	s.hueHistogram.SetText(summary)
}

// GetContainer returns the tab container
func (s *Sections) GetContainer() fyne.CanvasObject {
	return s.tabs
}
