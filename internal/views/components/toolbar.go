package components

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// Toolbar holds the actions and switches that apply to both sections
type Toolbar struct {
	container         *fyne.Container
	openButton        *widget.Button
	saveButton        *widget.Button
	ditherButton      *widget.Button
	livePreviewCheck  *widget.Check
	accelerationCheck *widget.Check
	pixelationSelect  *widget.Select

	// Event handlers
	openHandler         func()
	saveHandler         func()
	ditherHandler       func()
	livePreviewHandler  func(bool)
	accelerationHandler func(bool)
	pixelationHandler   func(int)
}

// NewToolbar creates the toolbar; pixelation lists the zoom percentages offered
func NewToolbar(pixelation []string) *Toolbar {
	t := &Toolbar{}
	t.createComponents(pixelation)
	t.buildLayout()
	return t
}

func (t *Toolbar) createComponents(pixelation []string) {
	t.openButton = widget.NewButton("Open Image", func() {
		if t.openHandler != nil {
			t.openHandler()
		}
	})
	t.openButton.Importance = widget.HighImportance

	t.saveButton = widget.NewButton("Save Result", func() {
		if t.saveHandler != nil {
			t.saveHandler()
		}
	})
	t.saveButton.Disable()

	t.ditherButton = widget.NewButton("Dither", func() {
		if t.ditherHandler != nil {
			t.ditherHandler()
		}
	})
	t.ditherButton.Disable()

	t.livePreviewCheck = widget.NewCheck("Live preview", func(on bool) {
		if t.livePreviewHandler != nil {
			t.livePreviewHandler(on)
		}
	})
	t.accelerationCheck = widget.NewCheck("Acceleration", func(on bool) {
		if t.accelerationHandler != nil {
			t.accelerationHandler(on)
		}
	})

	t.pixelationSelect = widget.NewSelect(pixelation, nil)
	t.pixelationSelect.OnChanged = func(string) {
		if t.pixelationHandler != nil {
			t.pixelationHandler(t.pixelationSelect.SelectedIndex())
		}
	}
}

func (t *Toolbar) buildLayout() {
	t.container = container.NewHBox(
		t.openButton,
		t.saveButton,
		widget.NewSeparator(),
		t.ditherButton,
		t.livePreviewCheck,
		t.accelerationCheck,
		widget.NewSeparator(),
		widget.NewLabel("Pixelate"),
		t.pixelationSelect,
	)
}

func (t *Toolbar) SetOpenHandler(handler func()) { t.openHandler = handler }
func (t *Toolbar) SetSaveHandler(handler func()) { t.saveHandler = handler }
func (t *Toolbar) SetDitherHandler(handler func()) { t.ditherHandler = handler }
func (t *Toolbar) SetLivePreviewHandler(handler func(bool)) { t.livePreviewHandler = handler }
func (t *Toolbar) SetAccelerationHandler(handler func(bool)) { t.accelerationHandler = handler }
func (t *Toolbar) SetPixelationHandler(handler func(index int)) { t.pixelationHandler = handler }

// Apply shows the given switch states without firing handlers
func (t *Toolbar) Apply(livePreview, acceleration bool, pixelation int) {
	live, accel, pix := t.livePreviewHandler, t.accelerationHandler, t.pixelationHandler
	t.livePreviewHandler, t.accelerationHandler, t.pixelationHandler = nil, nil, nil
	defer func() {
		t.livePreviewHandler, t.accelerationHandler, t.pixelationHandler = live, accel, pix
	}()

	t.livePreviewCheck.SetChecked(livePreview)
	t.accelerationCheck.SetChecked(acceleration)
	t.pixelationSelect.SetSelectedIndex(pixelation)
}

// EnableImageOperations enables the actions that need a loaded image
func (t *Toolbar) EnableImageOperations(enabled bool) {
	if enabled {
		t.saveButton.Enable()
		t.ditherButton.Enable()
		return
	}
	t.saveButton.Disable()
	t.ditherButton.Disable()
}

// GetContainer returns the toolbar container
func (t *Toolbar) GetContainer() *fyne.Container {
	return t.container
}
