package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"dither-studio/internal/algorithms"
	"dither-studio/internal/config"
	"dither-studio/internal/kernel"
	"dither-studio/internal/logger"
	"dither-studio/internal/metrics"
	"dither-studio/internal/palette"
	"dither-studio/internal/shutdown"
	"dither-studio/internal/studio"
	"dither-studio/internal/surface"
	"dither-studio/internal/timing"
	"dither-studio/internal/trace"
	"dither-studio/internal/watch"
	"dither-studio/internal/workers"
)

// Application wires the session to its pool and to whichever front end runs it
type Application struct {
	opts    Options
	cfg     *config.Config
	logger  logger.Logger
	catalog *algorithms.Catalog
	metrics *metrics.Metrics

	pool     *workers.Pool
	surface  surface.Surface
	session  *studio.Session
	recorder *trace.Recorder
	watcher  *watch.Watcher
	shutdown *shutdown.Manager

	// listener receives session changes in headless mode
	listener *headlessListener
}

func NewApplication(opts Options) (*Application, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := logger.ParseLevel(cfg.Log.Level)
	var appLogger logger.Logger
	if cfg.Log.Console {
		appLogger = logger.NewConsoleLogger(level)
	} else {
		appLogger = logger.NewZerolog(os.Stderr, level)
	}

	a := &Application{
		opts:     opts,
		cfg:      cfg,
		logger:   appLogger,
		catalog:  algorithms.NewCatalog(),
		metrics:  metrics.New(),
		shutdown: shutdown.NewManager(appLogger, 10*time.Second),
	}
	if err := a.wire(); err != nil {
		_ = a.shutdown.Shutdown()
		return nil, err
	}

	appLogger.Info("Application", "initialized", map[string]interface{}{
		"version":  AppVersion,
		"workers":  a.pool.Size(),
		"surface":  cfg.Studio.Surface,
		"gui":      opts.GUI,
		"metrics":  cfg.Metrics.Address,
		"trace":    cfg.Trace.Path,
		"watching": opts.Watch,
	})
	return a, nil
}

func applyFlags(cfg *config.Config, opts Options) {
	if opts.Surface != "" {
		cfg.Studio.Surface = opts.Surface
	}
	if opts.MaxWorkers > 0 {
		cfg.Workers.MaxWorkers = opts.MaxWorkers
	}
	if opts.NoAccel {
		cfg.Studio.Acceleration = false
	}
	if opts.Palette != "" {
		cfg.Studio.Palette = opts.Palette
	}
	if opts.Trace != "" {
		cfg.Trace.Path = opts.Trace
	}
	if opts.MetricsAddr != "" {
		cfg.Metrics.Address = opts.MetricsAddr
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	// headless runs dispatch explicitly
	if !opts.GUI {
		cfg.Studio.LivePreview = false
	}
}

// wire builds the components and registers them for shutdown. Shutdown runs in reverse
// order, so the trace is closed after the pool has stopped producing frames.
func (a *Application) wire() error {
	var tap workers.Tap
	if a.cfg.Trace.Path != "" {
		rec, err := trace.Create(a.cfg.Trace.Path)
		if err != nil {
			return err
		}
		a.recorder = rec
		tap = rec.Record
		a.shutdown.Register("trace", shutdown.Func(rec.Close))
	}

	surf, err := surface.New(a.cfg.Studio.Surface)
	if err != nil {
		return err
	}
	a.surface = surf
	a.shutdown.Register("surface", shutdown.Func(surf.Close))

	pool, err := workers.New(kernel.Factory(a.catalog, a.logger), workers.Options{
		Parallelism:      a.cfg.Workers.HardwareParallelism(),
		MaxWorkers:       a.cfg.Workers.MaxWorkers,
		MailboxWarnDepth: a.cfg.Workers.MailboxWarnDepth,
		Tap:              tap,
		Logger:           a.logger,
	})
	if err != nil {
		return err
	}
	a.pool = pool
	a.metrics.SetPool(pool.Size(), pool.Live())
	a.shutdown.Register("worker pool", pool)

	if a.cfg.Metrics.Address != "" {
		a.serveMetrics()
	}

	custom, err := a.cfg.Studio.CustomColors()
	if err != nil {
		return err
	}

	a.listener = newHeadlessListener()
	session, err := studio.New(studio.Options{
		Catalog:             a.catalog,
		Surface:             surf,
		Dispatcher:          pool,
		Listener:            a.listener,
		Logger:              a.logger,
		Metrics:             a.metrics,
		Timing:              timing.NewTracker(a.logger),
		MaxColors:           a.cfg.Studio.ColorDitherMaxColors,
		MinColors:           a.cfg.Studio.MinColors,
		Palette:             a.cfg.Studio.Palette,
		Colors:              custom,
		LivePreview:         a.cfg.Studio.LivePreview,
		Acceleration:        a.cfg.Studio.Acceleration,
		AutoResize:          a.cfg.Studio.AutoResizeLargeImages,
		LargeImageDimension: a.cfg.Studio.LargeImageDimension,
	})
	if err != nil {
		return err
	}
	a.session = session
	if err := a.applySelection(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := session.Run(ctx, pool.Replies(), pool.Faults()); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("Application", err, nil)
		}
	}()
	a.shutdown.Register("session", shutdown.Func(func() error {
		cancel()
		<-loopDone
		return nil
	}))
	return nil
}

func (a *Application) serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Metrics", err, map[string]interface{}{"address": srv.Addr})
		}
	}()
	a.shutdown.Register("metrics server", shutdown.Func(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}))
}

// applySelection moves the command line selection into the session before any image is
// loaded, so nothing is dispatched yet.
func (a *Application) applySelection() error {
	s := a.session
	section := algorithms.KindBW
	if a.opts.Section == "color" {
		section = algorithms.KindColor
	}
	if err := s.SetSection(section); err != nil {
		return err
	}
	if a.opts.Algorithm != "" {
		if err := s.SetAlgorithm(section, a.opts.Algorithm); err != nil {
			return fmt.Errorf("--algorithm: %w", err)
		}
	}
	if a.opts.Threshold < 0 || a.opts.Threshold > 255 {
		return fmt.Errorf("--threshold %d out of range", a.opts.Threshold)
	}
	if err := s.SetThreshold(uint8(a.opts.Threshold)); err != nil {
		return err
	}

	black, err := palette.ParseHex(a.opts.Black)
	if err != nil {
		return fmt.Errorf("--black: %w", err)
	}
	white, err := palette.ParseHex(a.opts.White)
	if err != nil {
		return fmt.Errorf("--white: %w", err)
	}
	if err := s.SetSubstitution(black, white); err != nil {
		return err
	}

	if a.opts.NumColors > 0 {
		if _, err := s.SetNumColors(a.opts.NumColors); err != nil {
			return err
		}
	}
	if err := s.SetColorMode(algorithms.ColorMode(a.opts.ColorMode)); err != nil {
		return fmt.Errorf("--color-mode: %w", err)
	}
	if a.opts.Optimize >= 0 {
		if err := s.SetQuantizationMode(algorithms.QuantizationMode(a.opts.Optimize)); err != nil {
			return fmt.Errorf("--optimize: %w", err)
		}
	}
	return s.SetPixelation(a.opts.Pixelate)
}

// startWatcher reloads the image file on change and calls after for each reload.
func (a *Application) startWatcher(after func()) error {
	w, err := watch.New(a.opts.Image, a.cfg.Watch.DebounceDuration(), func(path string) {
		if err := a.session.LoadFile(path); err != nil {
			a.logger.Error("Application", err, map[string]interface{}{"path": path})
			return
		}
		if after != nil {
			after()
		}
	}, a.logger)
	if err != nil {
		return err
	}
	a.watcher = w
	a.shutdown.Register("watcher", shutdown.Func(w.Close))

	go func() {
		if err := w.Run(a.shutdown.Context()); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("Watcher", err, nil)
		}
	}()
	return nil
}

func (a *Application) Run() error {
	a.shutdown.Listen()
	if a.opts.GUI {
		return a.runGUI()
	}
	return a.runHeadless()
}
