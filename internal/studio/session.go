// Package studio is the controller between the user's selections and the worker pool. It
// owns the loaded image and its generation, distributes pixels to workers, dispatches
// dither requests, and applies replies.
package studio

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"dither-studio/internal/algorithms"
	"dither-studio/internal/logger"
	"dither-studio/internal/metrics"
	"dither-studio/internal/palette"
	"dither-studio/internal/palettecache"
	"dither-studio/internal/surface"
	"dither-studio/internal/timing"
)

var (
	ErrNoImage       = errors.New("no image loaded")
	ErrStaleReply    = errors.New("stale reply")
	ErrImageTooLarge = errors.New("image dimensions exceed 65535")
)

// DefaultThreshold is the neutral black and white threshold.
const DefaultThreshold = 128

// Dispatcher is the part of the worker pool the session talks to.
type Dispatcher interface {
	SendNext(frame []byte) (int, error)
	Broadcast(frames ...[]byte) error
	Live() int
}

// LoadedImage describes the pixels every worker currently holds.
type LoadedImage struct {
	Width      int
	Height     int
	Generation uint8
}

type Options struct {
	Catalog    *algorithms.Catalog
	Surface    surface.Surface
	Dispatcher Dispatcher
	Listener   Listener
	Logger     logger.Logger
	Metrics    *metrics.Metrics
	Timing     *timing.Tracker

	MaxColors           int
	MinColors           int
	Palette             string
	// Colors seed the palette instead of the named preset when set.
	Colors              []palette.RGB
	LivePreview         bool
	Acceleration        bool
	AutoResize          bool
	LargeImageDimension int
}

// Session is safe for concurrent use. Every method runs under one lock, so replies and user
// changes are applied one at a time, in the order they acquire it.
type Session struct {
	mu     sync.Mutex
	events []func(Listener)

	catalog    *algorithms.Catalog
	surface    surface.Surface
	dispatcher Dispatcher
	listener   Listener
	logger     logger.Logger
	metrics    *metrics.Metrics
	timing     *timing.Tracker

	autoResize   bool
	largeImage   int
	livePreview  bool
	acceleration bool

	image      *LoadedImage
	generation uint8
	pixelation int

	section        algorithms.Kind
	bwAlgorithm    algorithms.Algorithm
	colorAlgorithm algorithms.Algorithm
	threshold      uint8
	black, white   palette.RGB
	colorMode      algorithms.ColorMode
	quantMode      algorithms.QuantizationMode
	active         *palette.Active
	progress       string

	cache *palettecache.Cache
	// inFlight remembers which worker computes each pending key, so a fault can release it.
	inFlight   map[palettecache.Key]int
	histograms map[algorithms.Kind][]byte
}

func New(opts Options) (*Session, error) {
	if opts.Catalog == nil || opts.Surface == nil || opts.Dispatcher == nil {
		return nil, fmt.Errorf("session needs a catalog, a surface and a dispatcher")
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Listener == nil {
		opts.Listener = NopListener{}
	}
	if opts.Timing == nil {
		opts.Timing = timing.NewTracker(opts.Logger)
	}

	bw := opts.Catalog.List(algorithms.KindBW)
	color := opts.Catalog.List(algorithms.KindColor)
	if len(bw) == 0 || len(color) == 0 {
		return nil, fmt.Errorf("catalog has no algorithms: %w", algorithms.ErrUnknownAlgorithm)
	}

	seed := palette.Builtins()[0]
	if opts.Palette != "" {
		named, ok := palette.Lookup(opts.Palette)
		if !ok {
			return nil, fmt.Errorf("unknown palette %q", opts.Palette)
		}
		seed = named
	}
	if len(opts.Colors) > 0 {
		seed = palette.Named{Title: "Custom", Colors: opts.Colors}
	}

	return &Session{
		catalog:        opts.Catalog,
		surface:        opts.Surface,
		dispatcher:     opts.Dispatcher,
		listener:       opts.Listener,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		timing:         opts.Timing,
		autoResize:     opts.AutoResize,
		largeImage:     opts.LargeImageDimension,
		livePreview:    opts.LivePreview,
		acceleration:   opts.Acceleration,
		section:        algorithms.KindBW,
		bwAlgorithm:    bw[0],
		colorAlgorithm: color[0],
		threshold:      DefaultThreshold,
		black:          palette.Black,
		white:          palette.White,
		colorMode:      algorithms.ColorModeLinear,
		quantMode:      algorithms.QuantizeMedianCutMean,
		active:         palette.NewActive(seed.Colors, opts.MinColors, opts.MaxColors),
		cache:          palettecache.New(),
		inFlight:       make(map[palettecache.Key]int),
		histograms:     make(map[algorithms.Kind][]byte),
	}, nil
}

func (s *Session) lock() {
	s.mu.Lock()
}

// unlock releases the session and then delivers the queued listener calls, so a listener
// may call back into the session.
func (s *Session) unlock() {
	events := s.events
	s.events = nil
	s.mu.Unlock()

	for _, fire := range events {
		fire(s.listener)
	}
}

func (s *Session) notify(fire func(Listener)) {
	s.events = append(s.events, fire)
}

// State is a snapshot of the session's selections.
type State struct {
	Image            *LoadedImage
	Section          algorithms.Kind
	BWAlgorithm      string
	ColorAlgorithm   string
	Threshold        uint8
	Black            palette.RGB
	White            palette.RGB
	ColorMode        algorithms.ColorMode
	QuantizationMode algorithms.QuantizationMode
	NumColors        int
	MinColors        int
	MaxColors        int
	Colors           []palette.RGB
	Pixelation       int
	LivePreview      bool
	Acceleration     bool
	Progress         string
}

func (s *Session) State() State {
	s.lock()
	defer s.unlock()

	st := State{
		Section:          s.section,
		BWAlgorithm:      s.bwAlgorithm.Name,
		ColorAlgorithm:   s.colorAlgorithm.Name,
		Threshold:        s.threshold,
		Black:            s.black,
		White:            s.white,
		ColorMode:        s.colorMode,
		QuantizationMode: s.quantMode,
		NumColors:        s.active.NumColors(),
		MinColors:        s.active.Min(),
		MaxColors:        s.active.Max(),
		Colors:           s.active.Selected(),
		Pixelation:       s.pixelation,
		LivePreview:      s.livePreview,
		Acceleration:     s.acceleration,
		Progress:         s.progress,
	}
	if s.image != nil {
		img := *s.image
		st.Image = &img
	}
	return st
}

// Transformed is the latest dithered image, or nil before the first result.
func (s *Session) Transformed() *image.RGBA {
	return s.surface.Transformed()
}

// Histogram returns the last bins received for a section.
func (s *Session) Histogram(section algorithms.Kind) []byte {
	s.lock()
	defer s.unlock()

	bins := s.histograms[section]
	out := make([]byte, len(bins))
	copy(out, bins)
	return out
}

func (s *Session) currentAlgorithm() algorithms.Algorithm {
	if s.section == algorithms.KindColor {
		return s.colorAlgorithm
	}
	return s.bwAlgorithm
}

func (s *Session) currentKey() palettecache.Key {
	return palettecache.Key{NumColors: s.active.NumColors(), ModeID: int(s.quantMode)}
}

// SetListener replaces the listener, for front ends built after the session.
func (s *Session) SetListener(l Listener) {
	if l == nil {
		l = NopListener{}
	}
	s.lock()
	defer s.unlock()
	s.listener = l
}
