package palettecache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dither-studio/internal/palette"
)

func TestKeyString(t *testing.T) {
	assert.Equal(t, "8-0", Key{NumColors: 8, ModeID: 0}.String())
}

func TestLifecycle(t *testing.T) {
	c := New()
	k := Key{NumColors: 8, ModeID: 0}

	assert.Equal(t, Absent, c.Lookup(k).State)

	before := c.Begin(k)
	assert.Equal(t, Absent, before.State)
	assert.Equal(t, Entry{State: Pending, Progress: 0}, c.Lookup(k))

	// a second request while pending is a no-op
	assert.Equal(t, Pending, c.Begin(k).State)

	for _, p := range []int{0, 10, 55, 100} {
		require.True(t, c.Progress(k, p))
		assert.Equal(t, p, c.Lookup(k).Progress)
	}

	colors := palette.Builtins()[4].Colors
	require.True(t, c.Resolve(k, colors))

	got := c.Lookup(k)
	assert.Equal(t, Cached, got.State)
	assert.Equal(t, colors, got.Colors)

	// cached keys ignore further progress and results
	assert.False(t, c.Progress(k, 20))
	assert.False(t, c.Resolve(k, nil))
	assert.Equal(t, Cached, c.Begin(k).State)

	pending, cached := c.Len()
	assert.Equal(t, 0, pending)
	assert.Equal(t, 1, cached)
}

func TestResolveRequiresPending(t *testing.T) {
	c := New()
	k := Key{NumColors: 4, ModeID: 2}

	assert.False(t, c.Resolve(k, []palette.RGB{palette.Black}))
	assert.False(t, c.Progress(k, 50))
	assert.Equal(t, Absent, c.Lookup(k).State)
}

func TestInvalidateClearsEverything(t *testing.T) {
	c := New()
	a := Key{NumColors: 8, ModeID: 0}
	b := Key{NumColors: 4, ModeID: 1}

	c.Begin(a)
	c.Begin(b)
	c.Resolve(b, []palette.RGB{palette.Black, palette.White, palette.Black, palette.White})

	assert.Equal(t, 2, c.Invalidate())
	assert.Equal(t, Absent, c.Lookup(a).State)
	assert.Equal(t, Absent, c.Lookup(b).State)

	// a late reply for the invalidated key is dropped
	assert.False(t, c.Resolve(a, []palette.RGB{palette.Black}))
}

func TestAbandon(t *testing.T) {
	c := New()
	k := Key{NumColors: 2, ModeID: 0}

	assert.False(t, c.Abandon(k))
	c.Begin(k)
	assert.True(t, c.Abandon(k))
	assert.Equal(t, Absent, c.Lookup(k).State)
}

func TestProgressClamped(t *testing.T) {
	c := New()
	k := Key{NumColors: 2, ModeID: 0}
	c.Begin(k)

	c.Progress(k, 250)
	assert.Equal(t, 100, c.Lookup(k).Progress)
	c.Progress(k, -3)
	assert.Equal(t, 0, c.Lookup(k).Progress)
}

func TestLookupReturnsCopy(t *testing.T) {
	c := New()
	k := Key{NumColors: 1, ModeID: 0}
	c.Begin(k)
	c.Resolve(k, []palette.RGB{palette.White})

	got := c.Lookup(k)
	got.Colors[0] = palette.Black
	assert.Equal(t, palette.White, c.Lookup(k).Colors[0])
}

func TestConcurrentBeginSendsOnce(t *testing.T) {
	c := New()
	k := Key{NumColors: 8, ModeID: 3}

	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Begin(k).State == Absent {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, started)
}

func TestProgressMessage(t *testing.T) {
	assert.Equal(t, "Working…", ProgressMessage(0))
	assert.Equal(t, "Working…", ProgressMessage(1))
	assert.Equal(t, "Working… 2%", ProgressMessage(2))
	assert.Equal(t, "Working… 100%", ProgressMessage(100))
}
