package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dither-studio/internal/algorithms"
	"dither-studio/internal/config"
	"dither-studio/internal/logger"
	"dither-studio/internal/protocol"
	"dither-studio/internal/studio"
	"dither-studio/internal/surface"
	"dither-studio/internal/workers"
)

func TestApplyFlagsOverridesConfig(t *testing.T) {
	cfg := config.Default()
	applyFlags(cfg, Options{
		Surface:     config.SurfaceOpenCV,
		MaxWorkers:  3,
		NoAccel:     true,
		Palette:     "Rust",
		Trace:       "out.zst",
		MetricsAddr: ":9100",
		LogLevel:    "debug",
	})

	assert.Equal(t, config.SurfaceOpenCV, cfg.Studio.Surface)
	assert.Equal(t, 3, cfg.Workers.MaxWorkers)
	assert.False(t, cfg.Studio.Acceleration)
	assert.Equal(t, "Rust", cfg.Studio.Palette)
	assert.Equal(t, "out.zst", cfg.Trace.Path)
	assert.Equal(t, ":9100", cfg.Metrics.Address)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Studio.LivePreview, "headless runs never dispatch on their own")
}

func TestApplyFlagsKeepsConfigWhenUnset(t *testing.T) {
	cfg := config.Default()
	applyFlags(cfg, Options{GUI: true})
	assert.Equal(t, config.Default(), cfg)
}

func TestHeadlessListenerNeverBlocks(t *testing.T) {
	l := newHeadlessListener()
	for i := 0; i < 3; i++ {
		l.TransformUpdated(image.NewRGBA(image.Rect(0, 0, 1, 1)))
		l.QuantizationProgress("")
		l.QuantizationProgress("Working… 50%")
	}
	l.WorkerFailed(1, errors.New("boom"), 2)
	assert.Len(t, l.transforms, 1)
	assert.Len(t, l.settled, 1)
	assert.Empty(t, l.faults, "faults only matter once no worker is left")

	_, err := wait(context.Background(), l.settled, l.faults)
	require.NoError(t, err)

	l.WorkerFailed(2, errors.New("boom"), 0)
	_, err = wait(context.Background(), make(chan struct{}), l.faults)
	assert.ErrorContains(t, err, "no workers left")

	drain(l.transforms)
	assert.Empty(t, l.transforms)
}

func TestWaitHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := wait(ctx, make(chan int), make(chan error))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func writeSource(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 12, 8))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 7)
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestHeadlessRender(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts Options
	}{
		{name: "accelerated threshold", opts: Options{Section: "bw", Threshold: 128, Optimize: -1}},
		{name: "pooled diffusion", opts: Options{Section: "bw", Algorithm: "Floyd-Steinberg", Threshold: 100, Optimize: -1}},
		{name: "optimized color", opts: Options{Section: "color", Algorithm: "Atkinson", NumColors: 4, Optimize: 0}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			opts := tc.opts
			opts.Config = filepath.Join(dir, "missing.toml")
			opts.Image = filepath.Join(dir, "in.png")
			opts.Output = filepath.Join(dir, "out.png")
			opts.Black, opts.White = "#000000", "#ffffff"
			opts.LogLevel = "error"
			writeSource(t, opts.Image)

			a, err := NewApplication(opts)
			require.NoError(t, err)
			defer a.shutdown.Shutdown()

			require.NoError(t, a.runHeadless())

			f, err := os.Open(opts.Output)
			require.NoError(t, err)
			defer f.Close()
			out, err := png.Decode(f)
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 12, 8), out.Bounds())
		})
	}
}

// stubDispatcher records requests and never answers them.
type stubDispatcher struct {
	mu   sync.Mutex
	sent []protocol.Opcode
}

func (d *stubDispatcher) SendNext(frame []byte) (int, error) {
	op, err := protocol.RequestOpcode(frame)
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, op)
	return 0, nil
}

func (d *stubDispatcher) Broadcast(...[]byte) error { return nil }

func (d *stubDispatcher) Live() int { return 1 }

func (d *stubDispatcher) saw(op protocol.Opcode) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, o := range d.sent {
		if o == op {
			return true
		}
	}
	return false
}

func TestHeadlessRenderWarnsWhenOptimizationIsAbandoned(t *testing.T) {
	var logs bytes.Buffer
	d := &stubDispatcher{}
	a := &Application{
		opts:     Options{Output: filepath.Join(t.TempDir(), "out.png"), Optimize: 0},
		logger:   logger.NewZerolog(&logs, zerolog.WarnLevel),
		listener: newHeadlessListener(),
	}
	session, err := studio.New(studio.Options{
		Catalog:    algorithms.NewCatalog(),
		Surface:    surface.NewRGBA(),
		Dispatcher: d,
		Listener:   a.listener,
		Logger:     a.logger,
		MaxColors:  8,
		MinColors:  2,
	})
	require.NoError(t, err)
	a.session = session
	require.NoError(t, session.SetSection(algorithms.KindColor))
	require.NoError(t, session.LoadImage(image.NewRGBA(image.Rect(0, 0, 3, 2))))
	generation := session.State().Image.Generation

	done := make(chan error, 1)
	go func() { done <- a.render(context.Background()) }()

	require.Eventually(t, func() bool { return d.saw(protocol.OpOptimizePalette) }, time.Second, time.Millisecond)
	session.HandleFault(workers.Fault{WorkerID: 0, Err: errors.New("worker panicked")})

	require.Eventually(t, func() bool { return d.saw(protocol.OpDitherColor) }, time.Second, time.Millisecond)
	reply := protocol.PixelsReply{Op: protocol.OpDitherColor, Pixels: make([]byte, 4*3*2)}
	require.NoError(t, session.HandleReply(workers.Reply{Generation: generation, Frame: reply.Encode()}))

	require.NoError(t, <-done)
	assert.Contains(t, logs.String(), "palette optimization abandoned")
	assert.FileExists(t, a.opts.Output)
}
