package components

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// StatusBar displays the last action, the loaded image and the worker pool
type StatusBar struct {
	container   *fyne.Container
	statusLabel *widget.Label
	imageInfo   *widget.Label
	workerInfo  *widget.Label
}

func NewStatusBar() *StatusBar {
	sb := &StatusBar{
		statusLabel: widget.NewLabel("Ready"),
		imageInfo:   widget.NewLabel("No image loaded"),
		workerInfo:  widget.NewLabel("Workers: --"),
	}
	sb.container = container.NewHBox(
		sb.statusLabel,
		widget.NewSeparator(),
		sb.imageInfo,
		widget.NewSeparator(),
		sb.workerInfo,
	)
	return sb
}

func (sb *StatusBar) SetStatus(status string) {
	sb.statusLabel.SetText(status)
}

func (sb *StatusBar) GetStatus() string {
	return sb.statusLabel.Text
}

// SetImageInfo shows the working size and generation
func (sb *StatusBar) SetImageInfo(width, height int, generation uint8) {
	sb.imageInfo.SetText(fmt.Sprintf("Image: %dx%d, generation %d", width, height, generation))
}

func (sb *StatusBar) SetWorkers(live, size int) {
	sb.workerInfo.SetText(fmt.Sprintf("Workers: %d/%d", live, size))
}

// GetContainer returns the status bar container
func (sb *StatusBar) GetContainer() *fyne.Container {
	return sb.container
}
