// Package algorithms is the registry of dithering algorithms and the routines that run them.
package algorithms

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/makeworld-the-better-one/dither/v2"
)

var ErrUnknownAlgorithm = errors.New("unknown algorithm")

// Kind selects the section an algorithm belongs to.
type Kind uint8

const (
	KindBW Kind = iota + 1
	KindColor
)

func (k Kind) String() string {
	switch k {
	case KindBW:
		return "bw"
	case KindColor:
		return "color"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Algorithm describes one dithering algorithm. Exactly one of Matrix and Mapper is set,
// or neither for plain closest-color mapping.
type Algorithm struct {
	ID     uint16
	Name   string
	Kind   Kind
	Matrix dither.ErrorDiffusionMatrix
	Mapper dither.PixelMapper
}

// PerPixel reports whether every output pixel depends only on its own input pixel, which
// is what makes an algorithm eligible for the accelerated executor.
func (a Algorithm) PerPixel() bool {
	return a.Matrix == nil
}

// Executor runs an algorithm synchronously on the caller's goroutine.
type Executor func(src *image.RGBA, p Params) *image.RGBA

// Executor returns the accelerated executor for per-pixel algorithms.
func (a Algorithm) Executor() (Executor, bool) {
	if !a.PerPixel() {
		return nil, false
	}
	return func(src *image.RGBA, p Params) *image.RGBA {
		return runBanded(a, src, p)
	}, true
}

type Catalog struct {
	byID   map[uint16]Algorithm
	byName map[Kind]map[string]uint16
	mu     sync.RWMutex
}

// NewCatalog returns a catalog holding the built-in black and white and color algorithms.
func NewCatalog() *Catalog {
	c := &Catalog{
		byID:   make(map[uint16]Algorithm),
		byName: make(map[Kind]map[string]uint16),
	}
	for _, a := range builtins() {
		if err := c.Register(a); err != nil {
			panic(err)
		}
	}
	return c
}

func (c *Catalog) Register(a Algorithm) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a.Matrix != nil && a.Mapper != nil {
		return fmt.Errorf("algorithm %q sets both a matrix and a mapper", a.Name)
	}
	if _, exists := c.byID[a.ID]; exists {
		return fmt.Errorf("algorithm id %d already registered", a.ID)
	}
	names, ok := c.byName[a.Kind]
	if !ok {
		names = make(map[string]uint16)
		c.byName[a.Kind] = names
	}
	if _, exists := names[a.Name]; exists {
		return fmt.Errorf("%s algorithm %q already registered", a.Kind, a.Name)
	}
	c.byID[a.ID] = a
	names[a.Name] = a.ID
	return nil
}

func (c *Catalog) Lookup(id uint16) (Algorithm, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if a, exists := c.byID[id]; exists {
		return a, nil
	}
	return Algorithm{}, fmt.Errorf("algorithm id %d: %w", id, ErrUnknownAlgorithm)
}

func (c *Catalog) ByName(kind Kind, name string) (Algorithm, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if id, exists := c.byName[kind][name]; exists {
		return c.byID[id], nil
	}
	return Algorithm{}, fmt.Errorf("%s algorithm %q: %w", kind, name, ErrUnknownAlgorithm)
}

// List returns the algorithms of one kind ordered by id.
func (c *Catalog) List(kind Kind) []Algorithm {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := make([]Algorithm, 0, len(c.byName[kind]))
	for _, id := range c.byName[kind] {
		list = append(list, c.byID[id])
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// Names lists display names of one kind in id order.
func (c *Catalog) Names(kind Kind) []string {
	list := c.List(kind)
	names := make([]string, len(list))
	for i, a := range list {
		names[i] = a.Name
	}
	return names
}
