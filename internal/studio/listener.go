package studio

import (
	"image"

	"dither-studio/internal/algorithms"
	"dither-studio/internal/palette"
)

// Listener receives session changes. Calls are made after the session lock is released,
// on whichever goroutine caused the change.
type Listener interface {
	ImageLoaded(img LoadedImage, working *image.RGBA)
	TransformUpdated(transformed *image.RGBA)
	PaletteChanged(colors []palette.RGB)
	QuantizationProgress(message string)
	HistogramUpdated(section algorithms.Kind, bins []byte)
	WorkerFailed(workerID int, err error, live int)
}

// NopListener ignores every change. Embed it to implement only part of Listener.
type NopListener struct{}

func (NopListener) ImageLoaded(LoadedImage, *image.RGBA) {}
func (NopListener) TransformUpdated(*image.RGBA) {}
func (NopListener) PaletteChanged([]palette.RGB) {}
func (NopListener) QuantizationProgress(string) {}
func (NopListener) HistogramUpdated(algorithms.Kind, []byte) {}
func (NopListener) WorkerFailed(workerID int, err error, live int) {}
