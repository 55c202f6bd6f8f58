// Package timing records how long synchronous operations take and how many pixels they
// processed per second.
package timing

import (
	"sync"
	"time"

	"dither-studio/internal/logger"
)

// stat is a running average, so memory stays constant however many runs are recorded.
type stat struct {
	runs    int64
	average time.Duration
}

type Tracker struct {
	stats  map[string]stat
	mu     sync.Mutex
	logger logger.Logger
	now    func() time.Time
}

func NewTracker(log logger.Logger) *Tracker {
	if log == nil {
		log = logger.NewNop()
	}
	return &Tracker{
		stats:  make(map[string]stat),
		logger: log,
		now:    time.Now,
	}
}

// Timer is one running measurement.
type Timer struct {
	tracker   *Tracker
	operation string
	start     time.Time
}

func (tt *Tracker) Start(operation string) Timer {
	return Timer{tracker: tt, operation: operation, start: tt.now()}
}

// Stop records the duration and logs throughput for the given pixel count.
func (t Timer) Stop(pixels int) time.Duration {
	tt := t.tracker
	duration := tt.now().Sub(t.start)
	s := tt.record(t.operation, duration)

	tt.logger.Debug("Timing", "operation completed", map[string]interface{}{
		"operation":   t.operation,
		"duration_ms": float64(duration.Microseconds()) / 1000,
		"average_ms":  float64(s.average.Microseconds()) / 1000,
		"runs":        s.runs,
		"mp_per_sec":  MegapixelsPerSecond(pixels, duration),
	})
	return duration
}

func (tt *Tracker) record(operation string, d time.Duration) stat {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	s := tt.stats[operation]
	s.runs++
	s.average += (d - s.average) / time.Duration(s.runs)
	tt.stats[operation] = s
	return s
}

// MegapixelsPerSecond is 0 for a zero duration.
func MegapixelsPerSecond(pixels int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(pixels) / 1e6 / d.Seconds()
}
