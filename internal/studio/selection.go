package studio

import (
	"fmt"

	"dither-studio/internal/algorithms"
	"dither-studio/internal/palette"
	"dither-studio/internal/palettecache"
	"dither-studio/internal/protocol"
)

// SetSection switches between the black and white and the color section.
func (s *Session) SetSection(section algorithms.Kind) error {
	s.lock()
	defer s.unlock()

	if section != algorithms.KindBW && section != algorithms.KindColor {
		return fmt.Errorf("unknown section %d", section)
	}
	if section == s.section {
		return nil
	}
	s.section = section
	if s.image == nil {
		return nil
	}
	if err := s.requestHistogram(); err != nil {
		return err
	}
	return s.retrigger(section)
}

// SetAlgorithm selects an algorithm by name for the section of the given kind.
func (s *Session) SetAlgorithm(kind algorithms.Kind, name string) error {
	s.lock()
	defer s.unlock()

	alg, err := s.catalog.ByName(kind, name)
	if err != nil {
		return err
	}
	if kind == algorithms.KindColor {
		s.colorAlgorithm = alg
	} else {
		s.bwAlgorithm = alg
	}
	return s.retrigger(kind)
}

func (s *Session) SetThreshold(threshold uint8) error {
	s.lock()
	defer s.unlock()

	if threshold == s.threshold {
		return nil
	}
	s.threshold = threshold
	return s.retrigger(algorithms.KindBW)
}

// SetSubstitution replaces black and white in black and white results.
func (s *Session) SetSubstitution(black, white palette.RGB) error {
	s.lock()
	defer s.unlock()

	if black == s.black && white == s.white {
		return nil
	}
	s.black, s.white = black, white
	return s.retrigger(algorithms.KindBW)
}

func (s *Session) SetColorMode(mode algorithms.ColorMode) error {
	s.lock()
	defer s.unlock()

	if !mode.Valid() {
		return fmt.Errorf("unknown %s", mode)
	}
	if mode == s.colorMode {
		return nil
	}
	s.colorMode = mode
	return s.retrigger(algorithms.KindColor)
}

// SetNumColors clamps n into the palette's range and returns the stored value.
func (s *Session) SetNumColors(n int) (int, error) {
	s.lock()
	defer s.unlock()

	n, changed := s.active.SetNumColors(n)
	if !changed {
		return n, nil
	}
	s.updateProgressForKey()
	colors := s.active.Selected()
	s.notify(func(l Listener) { l.PaletteChanged(colors) })
	return n, s.retrigger(algorithms.KindColor)
}

// SetQuantizationMode selects the optimization strategy. With live preview on, the palette
// for the new key is requested right away.
func (s *Session) SetQuantizationMode(mode algorithms.QuantizationMode) error {
	s.lock()
	defer s.unlock()

	if !mode.Valid() {
		return fmt.Errorf("unknown %s", mode)
	}
	if mode == s.quantMode {
		return nil
	}
	s.quantMode = mode
	s.updateProgressForKey()
	if !s.livePreview || s.image == nil {
		return nil
	}
	return s.requestPalette()
}

// SetColors overwrites the leading palette slots, as when the user edits a color.
func (s *Session) SetColors(colors []palette.RGB) error {
	s.lock()
	defer s.unlock()
	return s.applyColors(colors)
}

// LoadPalette fills the palette from a built-in preset.
func (s *Session) LoadPalette(title string) error {
	s.lock()
	defer s.unlock()

	named, ok := palette.Lookup(title)
	if !ok {
		return fmt.Errorf("unknown palette %q", title)
	}
	if !s.active.Load(named) {
		return nil
	}
	colors := s.active.Selected()
	s.notify(func(l Listener) { l.PaletteChanged(colors) })
	return s.retrigger(algorithms.KindColor)
}

// SetLivePreview gates automatic dispatch. Turning it on dispatches immediately.
func (s *Session) SetLivePreview(on bool) error {
	s.lock()
	defer s.unlock()

	if on == s.livePreview {
		return nil
	}
	s.livePreview = on
	return s.retrigger(s.section)
}

func (s *Session) SetAcceleration(on bool) {
	s.lock()
	defer s.unlock()
	s.acceleration = on
}

// RequestPalette asks for the optimized palette of the current (numColors, mode) key. A
// pending key sends nothing; a cached key is applied at once.
func (s *Session) RequestPalette() error {
	s.lock()
	defer s.unlock()
	return s.requestPalette()
}

// PaletteOptimized reports whether the current (numColors, mode) key holds an optimized
// palette. It is false after a fault released the key before its reply arrived.
func (s *Session) PaletteOptimized() bool {
	s.lock()
	defer s.unlock()
	return s.cache.Lookup(s.currentKey()).State == palettecache.Cached
}

func (s *Session) requestPalette() error {
	if s.image == nil {
		return ErrNoImage
	}

	key := s.currentKey()
	before := s.cache.Begin(key)
	switch before.State {
	case palettecache.Pending:
		return nil
	case palettecache.Cached:
		s.metrics.RecordPaletteCacheHit()
		s.setProgress("")
		return s.applyColors(before.Colors)
	}

	req := protocol.OptimizePaletteRequest{NumColors: uint16(key.NumColors), ModeID: uint16(key.ModeID)}
	workerID, err := s.dispatcher.SendNext(req.Encode())
	if err != nil {
		s.cache.Abandon(key)
		return fmt.Errorf("requesting palette %s: %w", key, err)
	}
	s.inFlight[key] = workerID
	s.metrics.RecordRequest(req.Opcode().String())
	s.setProgress(palettecache.ProgressMessage(0))

	s.logger.Debug("Session", "palette requested", map[string]interface{}{
		"key":       key.String(),
		"worker_id": workerID,
	})
	return nil
}

func (s *Session) applyColors(colors []palette.RGB) error {
	if !s.active.Apply(colors) {
		return nil
	}
	selected := s.active.Selected()
	s.notify(func(l Listener) { l.PaletteChanged(selected) })
	return s.retrigger(algorithms.KindColor)
}

// updateProgressForKey shows the progress of the newly selected key, or nothing.
func (s *Session) updateProgressForKey() {
	entry := s.cache.Lookup(s.currentKey())
	message := ""
	if entry.State == palettecache.Pending {
		message = palettecache.ProgressMessage(entry.Progress)
	}
	if message != s.progress {
		s.setProgress(message)
	}
}
