package components

import (
	"image"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

const (
	ImageAreaWidth  = 560
	ImageAreaHeight = 420
)

// ImageDisplay shows the working source next to the dithered result
type ImageDisplay struct {
	container   *container.Split
	source      *canvas.Image
	transformed *canvas.Image
	placeholder image.Image
}

func NewImageDisplay() *ImageDisplay {
	id := &ImageDisplay{placeholder: placeholderImage()}
	id.source = newPixelCanvas(id.placeholder)
	id.transformed = newPixelCanvas(id.placeholder)

	id.container = container.NewHSplit(
		titled("**Source**", id.source),
		titled("**Transformed**", id.transformed),
	)
	id.container.SetOffset(0.5)
	return id
}

// newPixelCanvas scales without smoothing so dither patterns stay visible
func newPixelCanvas(img image.Image) *canvas.Image {
	c := canvas.NewImageFromImage(img)
	c.FillMode = canvas.ImageFillContain
	c.ScaleMode = canvas.ImageScalePixels
	c.SetMinSize(fyne.NewSize(ImageAreaWidth, ImageAreaHeight))
	return c
}

func titled(title string, img *canvas.Image) fyne.CanvasObject {
	return container.NewBorder(
		widget.NewRichTextFromMarkdown(title),
		nil, nil, nil,
		container.NewStack(canvas.NewRectangle(color.RGBA{R: 252, G: 252, B: 252, A: 255}), img),
	)
}

func placeholderImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	gray := color.RGBA{R: 240, G: 240, B: 240, A: 255}
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = gray.R, gray.G, gray.B, gray.A
	}
	return img
}

// SetSourceImage shows img, or the placeholder for nil
func (id *ImageDisplay) SetSourceImage(img image.Image) {
	id.set(id.source, img)
}

// SetTransformedImage shows img, or the placeholder for nil
func (id *ImageDisplay) SetTransformedImage(img image.Image) {
	id.set(id.transformed, img)
}

func (id *ImageDisplay) set(c *canvas.Image, img image.Image) {
	if img == nil {
		img = id.placeholder
	}
	c.Image = img
	c.Refresh()
}

// GetContainer returns the split view
func (id *ImageDisplay) GetContainer() fyne.CanvasObject {
	return id.container
}
