package studio

import (
	"context"
	"errors"
	"fmt"

	"dither-studio/internal/algorithms"
	"dither-studio/internal/metrics"
	"dither-studio/internal/palettecache"
	"dither-studio/internal/protocol"
	"dither-studio/internal/workers"
)

// sectionOf routes a reply opcode to the section that consumes it.
func sectionOf(op protocol.Opcode) (algorithms.Kind, error) {
	switch op {
	case protocol.OpDither, protocol.OpDitherBW, protocol.OpHistogram:
		return algorithms.KindBW, nil
	case protocol.OpDitherColor, protocol.OpOptimizePalette, protocol.OpOptimizePaletteProgress, protocol.OpHueHistogram:
		return algorithms.KindColor, nil
	default:
		return 0, fmt.Errorf("reply %s: %w", op, protocol.ErrUnknownOpcode)
	}
}

// HandleReply applies one worker reply. Replies computed against an older generation, for a
// palette key that is no longer pending, or for a section that is no longer shown are
// dropped with ErrStaleReply.
func (s *Session) HandleReply(r workers.Reply) error {
	s.lock()
	defer s.unlock()

	op, err := protocol.ReplyOpcode(r.Frame)
	if err != nil {
		return err
	}
	section, err := sectionOf(op)
	if err != nil {
		return err
	}
	s.metrics.RecordReply(op.String())

	if s.image == nil || r.Generation != s.image.Generation {
		s.metrics.RecordStale(metrics.StaleGeneration)
		return fmt.Errorf("%s from generation %d: %w", op, r.Generation, ErrStaleReply)
	}

	switch op {
	case protocol.OpDither, protocol.OpDitherBW, protocol.OpDitherColor:
		return s.applyTransform(op, section, r.Frame)
	case protocol.OpHistogram, protocol.OpHueHistogram:
		return s.applyHistogram(section, r.Frame)
	case protocol.OpOptimizePaletteProgress:
		return s.applyProgress(r.Frame)
	default:
		return s.applyPalette(r.Frame)
	}
}

func (s *Session) applyTransform(op protocol.Opcode, section algorithms.Kind, frame []byte) error {
	if section != s.section {
		s.metrics.RecordStale(metrics.StaleSection)
		return fmt.Errorf("%s while showing %s: %w", op, s.section, ErrStaleReply)
	}
	reply, err := protocol.DecodePixelsReply(frame)
	if err != nil {
		return err
	}
	if err := s.surface.Replace(reply.Pixels); err != nil {
		return fmt.Errorf("applying %s: %w", op, err)
	}
	transformed := s.surface.Transformed()
	s.notify(func(l Listener) { l.TransformUpdated(transformed) })
	return nil
}

func (s *Session) applyHistogram(section algorithms.Kind, frame []byte) error {
	reply, err := protocol.DecodePixelsReply(frame)
	if err != nil {
		return err
	}
	bins := make([]byte, len(reply.Pixels))
	copy(bins, reply.Pixels)
	s.histograms[section] = bins
	s.notify(func(l Listener) { l.HistogramUpdated(section, bins) })
	return nil
}

func (s *Session) applyProgress(frame []byte) error {
	p, err := protocol.DecodeOptimizePaletteProgress(frame)
	if err != nil {
		return err
	}
	key := palettecache.Key{NumColors: int(p.NumColors), ModeID: int(p.ModeID)}
	if !s.cache.Progress(key, int(p.Percentage)) {
		s.metrics.RecordStale(metrics.StaleNotPending)
		return fmt.Errorf("progress for %s: %w", key, ErrStaleReply)
	}
	if key == s.currentKey() {
		s.setProgress(palettecache.ProgressMessage(int(p.Percentage)))
	}
	return nil
}

func (s *Session) applyPalette(frame []byte) error {
	reply, err := protocol.DecodeOptimizePaletteReply(frame)
	if err != nil {
		return err
	}
	key := palettecache.Key{NumColors: len(reply.Colors), ModeID: int(reply.ModeID)}
	if !s.cache.Resolve(key, reply.Colors) {
		s.metrics.RecordStale(metrics.StaleNotPending)
		return fmt.Errorf("palette for %s: %w", key, ErrStaleReply)
	}
	delete(s.inFlight, key)

	s.logger.Debug("Session", "palette optimized", map[string]interface{}{
		"key":     key.String(),
		"applied": key == s.currentKey(),
	})
	if key != s.currentKey() {
		return nil
	}
	s.setProgress("")
	return s.applyColors(reply.Colors)
}

func (s *Session) setProgress(message string) {
	s.progress = message
	s.notify(func(l Listener) { l.QuantizationProgress(message) })
}

// HandleFault records a dead worker. Palette keys it was computing are released so the next
// request for them is sent again.
func (s *Session) HandleFault(f workers.Fault) {
	s.lock()
	defer s.unlock()

	live := s.dispatcher.Live()
	s.metrics.RecordWorkerFault(live)

	released := 0
	for key, workerID := range s.inFlight {
		if workerID != f.WorkerID {
			continue
		}
		if s.cache.Abandon(key) {
			released++
		}
		delete(s.inFlight, key)
	}
	if released > 0 && s.cache.Lookup(s.currentKey()).State == palettecache.Absent {
		s.setProgress("")
	}

	s.logger.Error("Session", f.Err, map[string]interface{}{
		"worker_id":         f.WorkerID,
		"live_workers":      live,
		"palettes_released": released,
	})
	s.notify(func(l Listener) { l.WorkerFailed(f.WorkerID, f.Err, live) })
}

// Run applies replies and faults until ctx is done or the reply channel closes.
func (s *Session) Run(ctx context.Context, replies <-chan workers.Reply, faults <-chan workers.Fault) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case r, ok := <-replies:
			if !ok {
				return nil
			}
			if err := s.HandleReply(r); err != nil {
				s.logReplyError(r, err)
			}

		case f, ok := <-faults:
			if !ok {
				faults = nil
				continue
			}
			s.HandleFault(f)
		}
	}
}

func (s *Session) logReplyError(r workers.Reply, err error) {
	fields := map[string]interface{}{
		"worker_id":  r.WorkerID,
		"generation": r.Generation,
	}
	if errors.Is(err, ErrStaleReply) {
		fields["reason"] = err.Error()
		s.logger.Debug("Session", "stale reply dropped", fields)
		return
	}
	s.logger.Error("Session", err, fields)
}
