package main

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// newLogger builds the logger:
// - format: empty (autodetect color support), color, json, text
// - level:  disabled, trace, debug, info, warn, error...
func newLogger(w io.Writer, cfg LogConfig) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if cfg.Level != "" {
		var err error
		if lvl, err = zerolog.ParseLevel(cfg.Level); err != nil {
			return zerolog.Nop(), err
		}
	}

	if cfg.Format != "json" {
		console := &zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}

		switch cfg.Format {
		case "text":
			console.NoColor = true
		case "color":
			console.NoColor = false
		default:
			if f, ok := w.(*os.File); ok {
				console.NoColor = !isatty.IsTerminal(f.Fd())
			} else {
				console.NoColor = true
			}
		}

		w = console
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
