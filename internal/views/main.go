// Package views is the desktop front end of a studio session.
package views

import (
	"fmt"
	"image"
	"image/color"
	"image/png"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"

	"dither-studio/internal/algorithms"
	"dither-studio/internal/logger"
	"dither-studio/internal/palette"
	"dither-studio/internal/studio"
	"dither-studio/internal/views/components"
)

// MainView lays out the studio window and mirrors session changes into it
type MainView struct {
	window   fyne.Window
	session  *studio.Session
	logger   logger.Logger
	poolSize int

	mainContainer *fyne.Container
	toolbar       *components.Toolbar
	images        *components.ImageDisplay
	sections      *components.Sections
	statusBar     *components.StatusBar
}

// NewMainView builds the window content and registers the view as the session listener
func NewMainView(window fyne.Window, session *studio.Session, catalog *algorithms.Catalog, poolSize int, log logger.Logger) *MainView {
	if log == nil {
		log = logger.NewNop()
	}
	st := session.State()

	mv := &MainView{
		window:   window,
		session:  session,
		logger:   log,
		poolSize: poolSize,
		toolbar:  components.NewToolbar(pixelationTitles()),
		images:   components.NewImageDisplay(),
		sections: components.NewSections(components.SectionOptions{
			BWAlgorithms:      catalog.Names(algorithms.KindBW),
			ColorAlgorithms:   catalog.Names(algorithms.KindColor),
			ColorModes:        colorModeTitles(),
			QuantizationModes: quantizationTitles(),
			Palettes:          paletteTitles(),
			MinColors:         st.MinColors,
			MaxColors:         st.MaxColors,
		}),
		statusBar: components.NewStatusBar(),
	}

	mv.buildLayout()
	mv.setupEventHandlers()
	mv.applyState(st)
	mv.statusBar.SetWorkers(poolSize, poolSize)

	session.SetListener(mv)
	return mv
}

func (mv *MainView) buildLayout() {
	mv.mainContainer = container.NewBorder(
		mv.toolbar.GetContainer(),
		mv.statusBar.GetContainer(),
		nil,
		container.NewVScroll(mv.sections.GetContainer()),
		mv.images.GetContainer(),
	)
	mv.window.SetContent(mv.mainContainer)
}

// setupEventHandlers forwards widget changes to the session. Session calls may dither
// synchronously, so they run off the UI goroutine.
func (mv *MainView) setupEventHandlers() {
	mv.toolbar.SetOpenHandler(mv.showOpenDialog)
	mv.toolbar.SetSaveHandler(mv.showSaveDialog)
	mv.toolbar.SetDitherHandler(func() {
		mv.run("Dither", mv.session.Dispatch)
	})
	mv.toolbar.SetLivePreviewHandler(func(on bool) {
		mv.run("Live preview", func() error { return mv.session.SetLivePreview(on) })
	})
	mv.toolbar.SetAccelerationHandler(func(on bool) {
		mv.session.SetAcceleration(on)
	})
	mv.toolbar.SetPixelationHandler(func(index int) {
		mv.run("Pixelation", func() error { return mv.session.SetPixelation(index) })
	})

	mv.sections.SetHandlers(components.SectionHandlers{
		SectionChanged: func(index int) {
			mv.run("Section", func() error { return mv.session.SetSection(sectionKind(index)) })
		},
		BWAlgorithmChanged: func(name string) {
			mv.run("Algorithm", func() error { return mv.session.SetAlgorithm(algorithms.KindBW, name) })
		},
		ThresholdChanged: func(threshold uint8) {
			mv.run("Threshold", func() error { return mv.session.SetThreshold(threshold) })
		},
		ColorAlgorithmChanged: func(name string) {
			mv.run("Algorithm", func() error { return mv.session.SetAlgorithm(algorithms.KindColor, name) })
		},
		ColorModeChanged: func(index int) {
			mv.run("Color mode", func() error { return mv.session.SetColorMode(algorithms.ColorMode(index)) })
		},
		QuantizationModeChanged: func(index int) {
			mv.run("Quantization mode", func() error {
				return mv.session.SetQuantizationMode(algorithms.QuantizationMode(index))
			})
		},
		NumColorsChanged: func(n int) {
			mv.run("Colors", func() error {
				_, err := mv.session.SetNumColors(n)
				return err
			})
		},
		PresetChanged: func(title string) {
			mv.run("Palette", func() error { return mv.session.LoadPalette(title) })
		},
		OptimizePalette: func() {
			mv.run("Optimize palette", mv.session.RequestPalette)
		},
	})
}

// run calls fn in the background and reports its error in a dialog
func (mv *MainView) run(action string, fn func() error) {
	go func() {
		if err := fn(); err != nil {
			mv.logger.Error("MainView", err, map[string]interface{}{"action": action})
			mv.ShowError(fmt.Errorf("%s: %w", action, err))
		}
	}()
}

func (mv *MainView) showOpenDialog() {
	dialog.ShowFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			mv.ShowError(err)
			return
		}
		if reader == nil {
			return
		}
		mv.statusBar.SetStatus("Loading image...")

		mv.run("Open image", func() error {
			defer reader.Close()
			if err := mv.session.LoadReader(reader); err != nil {
				return err
			}
			fyne.Do(func() {
				mv.statusBar.SetStatus("Loaded " + reader.URI().Name())
				mv.toolbar.EnableImageOperations(true)
			})
			return nil
		})
	}, mv.window)
}

func (mv *MainView) showSaveDialog() {
	img := mv.session.Transformed()
	if img == nil {
		mv.ShowError(studio.ErrNoImage)
		return
	}

	dialog.ShowFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil {
			mv.ShowError(err)
			return
		}
		if writer == nil {
			return
		}

		mv.run("Save image", func() error {
			defer writer.Close()
			if err := png.Encode(writer, img); err != nil {
				return err
			}
			fyne.Do(func() { mv.statusBar.SetStatus("Saved " + writer.URI().Name()) })
			return nil
		})
	}, mv.window)
}

func (mv *MainView) applyState(st studio.State) {
	mv.toolbar.Apply(st.LivePreview, st.Acceleration, st.Pixelation)
	mv.sections.Apply(components.SectionState{
		Section:          sectionIndex(st.Section),
		BWAlgorithm:      st.BWAlgorithm,
		Threshold:        st.Threshold,
		ColorAlgorithm:   st.ColorAlgorithm,
		ColorMode:        int(st.ColorMode),
		QuantizationMode: int(st.QuantizationMode),
		NumColors:        st.NumColors,
		Colors:           swatchColors(st.Colors),
		Progress:         st.Progress,
	})
}

// ShowError displays an error dialog
func (mv *MainView) ShowError(err error) {
	fyne.Do(func() {
		dialog.ShowError(err, mv.window)
	})
}

func (mv *MainView) ImageLoaded(img studio.LoadedImage, working *image.RGBA) {
	fyne.Do(func() {
		mv.images.SetSourceImage(working)
		mv.images.SetTransformedImage(nil)
		mv.statusBar.SetImageInfo(img.Width, img.Height, img.Generation)
		mv.sections.SetProgress("")
	})
}

func (mv *MainView) TransformUpdated(transformed *image.RGBA) {
	fyne.Do(func() {
		mv.images.SetTransformedImage(transformed)
	})
}

func (mv *MainView) PaletteChanged(colors []palette.RGB) {
	fyne.Do(func() {
		st := mv.session.State()
		st.Colors = colors
		mv.applyState(st)
	})
}

func (mv *MainView) QuantizationProgress(message string) {
	fyne.Do(func() {
		mv.sections.SetProgress(message)
	})
}

func (mv *MainView) HistogramUpdated(section algorithms.Kind, bins []byte) {
	summary := HistogramSummary(section, bins)
	fyne.Do(func() {
		mv.sections.SetHistogramSummary(sectionIndex(section), summary)
	})
}

func (mv *MainView) WorkerFailed(workerID int, err error, live int) {
	fyne.Do(func() {
		mv.statusBar.SetWorkers(live, mv.poolSize)
		mv.statusBar.SetStatus(fmt.Sprintf("Worker %d stopped", workerID))
	})
}

// GetContainer returns the main container
func (mv *MainView) GetContainer() *fyne.Container {
	return mv.mainContainer
}

func swatchColors(colors []palette.RGB) []color.Color {
	out := make([]color.Color, len(colors))
	for i, c := range colors {
		out[i] = c
	}
	return out
}
