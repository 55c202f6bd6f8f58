package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fakeClock(steps ...time.Duration) func() time.Time {
	t := time.Unix(0, 0)
	i := 0
	return func() time.Time {
		t = t.Add(steps[i%len(steps)])
		i++
		return t
	}
}

func TestTrackerKeepsRunningAverage(t *testing.T) {
	tt := NewTracker(nil)
	// start/stop pairs of 10ms, then 30ms
	tt.now = fakeClock(time.Millisecond, 10*time.Millisecond, time.Millisecond, 30*time.Millisecond)

	d := tt.Start("Bayer 4x4").Stop(1_000_000)
	assert.Equal(t, 10*time.Millisecond, d)
	tt.Start("Bayer 4x4").Stop(1_000_000)

	assert.Equal(t, stat{runs: 2, average: 20 * time.Millisecond}, tt.stats["Bayer 4x4"])
	assert.NotContains(t, tt.stats, "Threshold")
}

func TestTrackerMemoryIsBounded(t *testing.T) {
	tt := NewTracker(nil)
	tt.now = fakeClock(5 * time.Millisecond)

	for i := 0; i < 10_000; i++ {
		tt.Start("Threshold").Stop(10)
	}
	assert.Len(t, tt.stats, 1)
	assert.Equal(t, stat{runs: 10_000, average: 5 * time.Millisecond}, tt.stats["Threshold"])
}

func TestMegapixelsPerSecond(t *testing.T) {
	assert.InDelta(t, 100.0, MegapixelsPerSecond(1_000_000, 10*time.Millisecond), 1e-9)
	assert.Zero(t, MegapixelsPerSecond(1_000_000, 0))
}
