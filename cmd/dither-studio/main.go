package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

const (
	AppName    = "Dither Studio"
	AppID      = "com.imageprocessing.dither-studio"
	AppVersion = "1.0.0"
)

// Options are the command line flags. Flags that are set override the configuration file.
type Options struct {
	Config      string `short:"c" long:"config" default:"dither-studio.toml" description:"TOML configuration file"`
	Image       string `short:"i" long:"image" description:"Image to load at startup"`
	Output      string `short:"o" long:"output" description:"PNG file the dithered image is written to (headless mode)"`
	GUI         bool   `long:"gui" description:"Open the desktop window"`
	Watch       bool   `short:"w" long:"watch" description:"Reload the image whenever its file changes"`
	Section     string `long:"section" choice:"bw" choice:"color" default:"bw" description:"Dither section"`
	Algorithm   string `short:"a" long:"algorithm" description:"Algorithm name within the section"`
	Threshold   int    `short:"t" long:"threshold" default:"128" description:"Black and white threshold (0-255)"`
	Black       string `long:"black" default:"#000000" description:"Color substituted for black"`
	White       string `long:"white" default:"#ffffff" description:"Color substituted for white"`
	NumColors   int    `short:"n" long:"colors" description:"Number of palette colors for the color section"`
	Palette     string `short:"p" long:"palette" description:"Built-in palette"`
	ColorMode   int    `long:"color-mode" default:"0" description:"Color comparison: 0 linear, 1 RGB, 2 luma"`
	Optimize    int    `long:"optimize" default:"-1" description:"Optimize the palette with this quantization mode (0-3) before dithering"`
	Pixelate    int    `long:"pixelate" default:"0" description:"Pixelation step (0-13)"`
	Surface     string `long:"surface" choice:"rgba" choice:"opencv" description:"Pixel buffer implementation"`
	MaxWorkers  int    `long:"max-workers" description:"Upper bound on the worker pool"`
	NoAccel     bool   `long:"no-acceleration" description:"Send every algorithm to the worker pool"`
	Trace       string `long:"trace" description:"Record every worker frame to this zstd file"`
	MetricsAddr string `long:"metrics-address" description:"Serve Prometheus metrics on this address"`
	LogLevel    string `long:"log-level" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`
	Version     bool   `short:"v" long:"version" description:"Print the version and exit"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}
	if opts.Version {
		fmt.Println(AppName, AppVersion)
		return
	}
	if !opts.GUI && (opts.Image == "" || opts.Output == "") {
		fmt.Fprintln(os.Stderr, "headless mode needs --image and --output; use --gui for the desktop window")
		os.Exit(2)
	}

	application, err := NewApplication(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialization failed: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		application.logger.Error("Application", err, nil)
		_ = application.shutdown.Shutdown()
		os.Exit(1)
	}
	if err := application.shutdown.Shutdown(); err != nil {
		os.Exit(1)
	}
}
