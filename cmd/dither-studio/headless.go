package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"sync"
	"time"

	"dither-studio/internal/studio"
)

// renderTimeout bounds the wait for a worker reply in headless mode.
const renderTimeout = 2 * time.Minute

// headlessListener turns session notifications into channel events. Sends never block the
// session; a consumer that is not waiting misses nothing it needs, because each render
// drains the channels first.
type headlessListener struct {
	studio.NopListener
	transforms chan *image.RGBA
	// settled fires when no palette optimization is shown as in progress
	settled    chan struct{}
	faults     chan error
}

func newHeadlessListener() *headlessListener {
	return &headlessListener{
		transforms: make(chan *image.RGBA, 1),
		settled:    make(chan struct{}, 1),
		faults:     make(chan error, 1),
	}
}

func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

func drain[T any](ch chan T) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func (l *headlessListener) TransformUpdated(img *image.RGBA) {
	offer(l.transforms, img)
}

func (l *headlessListener) QuantizationProgress(message string) {
	if message == "" {
		offer(l.settled, struct{}{})
	}
}

func (l *headlessListener) WorkerFailed(workerID int, err error, live int) {
	if live == 0 {
		offer(l.faults, fmt.Errorf("worker %d: %w (no workers left)", workerID, err))
	}
}

func (a *Application) runHeadless() error {
	var mu sync.Mutex
	render := func() error {
		mu.Lock()
		defer mu.Unlock()
		return a.render(a.shutdown.Context())
	}

	if err := a.session.LoadFile(a.opts.Image); err != nil {
		return err
	}
	if err := render(); err != nil {
		return err
	}
	if !a.opts.Watch {
		return nil
	}

	err := a.startWatcher(func() {
		if err := render(); err != nil {
			a.logger.Error("Application", err, map[string]interface{}{"output": a.opts.Output})
		}
	})
	if err != nil {
		return err
	}
	a.logger.Info("Application", "watching for changes", map[string]interface{}{"image": a.opts.Image})
	<-a.shutdown.Done()
	return nil
}

// render optionally optimizes the palette, dispatches once and writes the result.
func (a *Application) render(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()
	l := a.listener

	if a.opts.Optimize >= 0 {
		drain(l.settled)
		if err := a.session.RequestPalette(); err != nil {
			return err
		}
		if _, err := wait(ctx, l.settled, l.faults); err != nil {
			return fmt.Errorf("optimizing palette: %w", err)
		}
		if !a.session.PaletteOptimized() {
			st := a.session.State()
			a.logger.Warning("Application", "palette optimization abandoned, dithering with the unoptimized palette", map[string]interface{}{
				"colors": st.NumColors,
				"mode":   st.QuantizationMode.String(),
				"output": a.opts.Output,
			})
		}
	}

	drain(l.transforms)
	if err := a.session.Dispatch(); err != nil {
		return err
	}
	img, err := wait(ctx, l.transforms, l.faults)
	if err != nil {
		return fmt.Errorf("dithering: %w", err)
	}
	return writePNG(a.opts.Output, img)
}

func wait[T any](ctx context.Context, ch chan T, faults chan error) (T, error) {
	var zero T
	select {
	case v := <-ch:
		return v, nil
	case err := <-faults:
		return zero, err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}
