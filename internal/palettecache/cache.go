// Package palettecache memoizes optimized palettes per (color count, quantization mode).
//
// Each key is in exactly one of three states: absent, pending with a progress value, or
// cached with its colors. Transitions are compare-and-set: a progress report or a result only
// lands on a key that is still pending, so late or duplicate worker replies are discarded.
package palettecache

import (
	"fmt"
	"sync"

	"dither-studio/internal/palette"
)

type Key struct {
	NumColors int
	ModeID    int
}

func (k Key) String() string {
	return fmt.Sprintf("%d-%d", k.NumColors, k.ModeID)
}

type State int

const (
	Absent State = iota
	Pending
	Cached
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Cached:
		return "cached"
	default:
		return "absent"
	}
}

// Entry is a snapshot of one key.
type Entry struct {
	State    State
	Progress int
	Colors   []palette.RGB
}

type Cache struct {
	mu      sync.Mutex
	pending map[Key]int
	cached  map[Key][]palette.RGB
}

func New() *Cache {
	return &Cache{
		pending: make(map[Key]int),
		cached:  make(map[Key][]palette.RGB),
	}
}

func (c *Cache) Lookup(k Key) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(k)
}

func (c *Cache) lookupLocked(k Key) Entry {
	if p, ok := c.pending[k]; ok {
		return Entry{State: Pending, Progress: p}
	}
	if colors, ok := c.cached[k]; ok {
		return Entry{State: Cached, Colors: clone(colors)}
	}
	return Entry{State: Absent}
}

// Begin moves an absent key to pending with progress 0. The returned entry is the state
// before the call; the caller sends a request only when it was Absent.
func (c *Cache) Begin(k Key) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.lookupLocked(k)
	if before.State == Absent {
		c.pending[k] = 0
	}
	return before
}

// Abandon drops a pending marker, used when the request could not be sent.
func (c *Cache) Abandon(k Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[k]; !ok {
		return false
	}
	delete(c.pending, k)
	return true
}

// Progress records a percentage for a pending key. Reports for any other state are dropped.
func (c *Cache) Progress(k Key, percentage int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[k]; !ok {
		return false
	}
	if percentage < 0 {
		percentage = 0
	} else if percentage > 100 {
		percentage = 100
	}
	c.pending[k] = percentage
	return true
}

// Resolve moves a pending key to cached. Results for keys that are not pending are dropped.
func (c *Cache) Resolve(k Key, colors []palette.RGB) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[k]; !ok {
		return false
	}
	delete(c.pending, k)
	c.cached[k] = clone(colors)
	return true
}

// Invalidate clears every pending and cached key and reports how many were dropped.
func (c *Cache) Invalidate() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.pending) + len(c.cached)
	c.pending = make(map[Key]int)
	c.cached = make(map[Key][]palette.RGB)
	return n
}

// Len reports the number of pending and cached keys.
func (c *Cache) Len() (pending, cached int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending), len(c.cached)
}

// ProgressMessage renders a pending percentage for display. Values at or below 1 show an
// indeterminate message.
func ProgressMessage(percentage int) string {
	const base = "Working…"
	if percentage <= 1 {
		return base
	}
	return fmt.Sprintf("%s %d%%", base, percentage)
}

func clone(colors []palette.RGB) []palette.RGB {
	out := make([]palette.RGB, len(colors))
	copy(out, colors)
	return out
}
