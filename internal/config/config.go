// Package config loads the studio settings from a TOML file layered over defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"

	"dither-studio/internal/palette"
	"dither-studio/internal/protocol"
)

// Surface kinds accepted by studio.surface.
const (
	SurfaceRGBA   = "rgba"
	SurfaceOpenCV = "opencv"
)

type WorkersConfig struct {
	MaxWorkers       int `toml:"max_workers"`
	Parallelism      int `toml:"parallelism"` // 0 = runtime.NumCPU()
	MailboxWarnDepth int `toml:"mailbox_warn_depth"`
}

// HardwareParallelism resolves the parallelism hint the pool is sized from.
func (w WorkersConfig) HardwareParallelism() int {
	if w.Parallelism > 0 {
		return w.Parallelism
	}
	return runtime.NumCPU()
}

type StudioConfig struct {
	ColorDitherMaxColors  int    `toml:"color_dither_max_colors"`
	MinColors             int    `toml:"min_colors"`
	LivePreview           bool   `toml:"live_preview"`
	Acceleration          bool   `toml:"acceleration"`
	AutoResizeLargeImages bool   `toml:"auto_resize_large_images"`
	LargeImageDimension   int    `toml:"large_image_dimension"`
	Surface               string `toml:"surface"`
	Palette               string `toml:"palette"`

	// Colors, as hex triplets, replace the built-in palette when set.
	Colors []string `toml:"colors"`
}

// CustomColors parses studio.colors; it is empty when no custom palette is configured.
func (s StudioConfig) CustomColors() ([]palette.RGB, error) {
	colors, err := palette.ParseHexList(s.Colors)
	if err != nil {
		return nil, fmt.Errorf("studio.colors: %w", err)
	}
	return colors, nil
}

type LogConfig struct {
	Level   string `toml:"level"`
	Console bool   `toml:"console"`
}

type MetricsConfig struct {
	Address string `toml:"address"`
}

type TraceConfig struct {
	Path string `toml:"path"`
}

type WatchConfig struct {
	Debounce int `toml:"debounce_ms"`
}

func (w WatchConfig) DebounceDuration() time.Duration {
	if w.Debounce > 0 {
		return time.Duration(w.Debounce) * time.Millisecond
	}
	return 250 * time.Millisecond
}

type Config struct {
	Workers WorkersConfig `toml:"workers"`
	Studio  StudioConfig  `toml:"studio"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
	Trace   TraceConfig   `toml:"trace"`
	Watch   WatchConfig   `toml:"watch"`
}

func Default() *Config {
	return &Config{
		Workers: WorkersConfig{
			MaxWorkers:       8,
			MailboxWarnDepth: 64,
		},
		Studio: StudioConfig{
			ColorDitherMaxColors:  18,
			MinColors:             2,
			LivePreview:           true,
			Acceleration:          true,
			AutoResizeLargeImages: true,
			LargeImageDimension:   1200,
			Surface:               SurfaceRGBA,
			Palette:               "Cosmic",
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load returns defaults when path does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parsing config %s: unknown key %q", path, undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Workers.MaxWorkers < 1 {
		return fmt.Errorf("workers.max_workers must be at least 1, got %d", c.Workers.MaxWorkers)
	}
	if c.Workers.Parallelism < 0 {
		return fmt.Errorf("workers.parallelism must not be negative, got %d", c.Workers.Parallelism)
	}
	if c.Studio.ColorDitherMaxColors < 2 || c.Studio.ColorDitherMaxColors > protocol.MaxColors {
		return fmt.Errorf("studio.color_dither_max_colors must be in [2, %d], got %d", protocol.MaxColors, c.Studio.ColorDitherMaxColors)
	}
	if c.Studio.MinColors < 1 || c.Studio.MinColors > c.Studio.ColorDitherMaxColors {
		return fmt.Errorf("studio.min_colors must be in [1, %d], got %d", c.Studio.ColorDitherMaxColors, c.Studio.MinColors)
	}
	if c.Studio.AutoResizeLargeImages && c.Studio.LargeImageDimension < 1 {
		return fmt.Errorf("studio.large_image_dimension must be positive, got %d", c.Studio.LargeImageDimension)
	}
	switch c.Studio.Surface {
	case SurfaceRGBA, SurfaceOpenCV:
	default:
		return fmt.Errorf("studio.surface must be %q or %q, got %q", SurfaceRGBA, SurfaceOpenCV, c.Studio.Surface)
	}
	if _, err := c.Studio.CustomColors(); err != nil {
		return err
	}
	if len(c.Studio.Colors) > c.Studio.ColorDitherMaxColors {
		return fmt.Errorf("studio.colors has %d entries, more than color_dither_max_colors %d", len(c.Studio.Colors), c.Studio.ColorDitherMaxColors)
	}
	if _, ok := palette.Lookup(c.Studio.Palette); !ok {
		return fmt.Errorf("studio.palette %q is not a built-in palette", c.Studio.Palette)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}
