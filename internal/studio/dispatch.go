package studio

import (
	"fmt"

	"dither-studio/internal/algorithms"
	"dither-studio/internal/palette"
	"dither-studio/internal/protocol"
)

// Dispatch dithers the working image with the current section's selection.
func (s *Session) Dispatch() error {
	s.lock()
	defer s.unlock()
	return s.dispatch()
}

// retrigger dispatches when live preview is on and the change concerns the visible section.
func (s *Session) retrigger(section algorithms.Kind) error {
	if !s.livePreview || s.image == nil || section != s.section {
		return nil
	}
	return s.dispatch()
}

func (s *Session) dispatch() error {
	if s.image == nil {
		return ErrNoImage
	}

	alg := s.currentAlgorithm()
	if s.acceleration {
		if exec, ok := alg.Executor(); ok {
			return s.runAccelerated(alg, exec)
		}
	}

	msg := s.ditherRequest(alg)
	workerID, err := s.dispatcher.SendNext(msg.Encode())
	if err != nil {
		return fmt.Errorf("dispatching %s: %w", alg.Name, err)
	}
	s.metrics.RecordRequest(msg.Opcode().String())

	s.logger.Debug("Session", "dither dispatched", map[string]interface{}{
		"algorithm":  alg.Name,
		"opcode":     msg.Opcode().String(),
		"worker_id":  workerID,
		"generation": s.image.Generation,
	})
	return nil
}

func (s *Session) runAccelerated(alg algorithms.Algorithm, exec algorithms.Executor) error {
	working := s.surface.Working()
	pixels := working.Rect.Dx() * working.Rect.Dy()

	timer := s.timing.Start("accelerated " + alg.Name)
	out := exec(working, s.params())
	d := timer.Stop(pixels)
	s.metrics.RecordAccelerated(alg.Name, d)

	if err := s.surface.Replace(out.Pix); err != nil {
		return fmt.Errorf("applying %s: %w", alg.Name, err)
	}
	transformed := s.surface.Transformed()
	s.notify(func(l Listener) { l.TransformUpdated(transformed) })
	return nil
}

func (s *Session) params() algorithms.Params {
	if s.section == algorithms.KindColor {
		return algorithms.Params{Colors: s.active.Selected(), Mode: s.colorMode}
	}
	return algorithms.Params{Threshold: s.threshold, Black: s.black, White: s.white}
}

// ditherRequest picks the record for the selection. Black and white requests use the short
// record unless substitution colors are set.
func (s *Session) ditherRequest(alg algorithms.Algorithm) protocol.Message {
	w, h := uint16(s.image.Width), uint16(s.image.Height)

	if s.section == algorithms.KindColor {
		return protocol.DitherColorRequest{
			Width:       w,
			Height:      h,
			AlgorithmID: alg.ID,
			ColorModeID: uint16(s.colorMode),
			Colors:      s.active.Selected(),
		}
	}
	if s.black == palette.Black && s.white == palette.White {
		return protocol.DitherBWRequest{
			Width:       w,
			Height:      h,
			AlgorithmID: alg.ID,
			Threshold:   uint16(s.threshold),
		}
	}
	return protocol.DitherRequest{
		Width:       w,
		Height:      h,
		AlgorithmID: alg.ID,
		Threshold:   uint16(s.threshold),
		Black:       s.black,
		White:       s.white,
	}
}

func (s *Session) requestHistogram() error {
	if s.image == nil {
		return ErrNoImage
	}
	op := protocol.OpHistogram
	if s.section == algorithms.KindColor {
		op = protocol.OpHueHistogram
	}
	if _, err := s.dispatcher.SendNext(protocol.EncodeEmpty(op)); err != nil {
		return fmt.Errorf("requesting %s: %w", op, err)
	}
	s.metrics.RecordRequest(op.String())
	return nil
}
