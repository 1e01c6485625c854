package main

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds the simulator settings. Values come from the config file and are overridden by
// flags set on the command line.
type Config struct {
	TicksPerSecond uint64 `toml:"ticks_per_second" yaml:"ticks_per_second"`
	PeriodBytes    uint32 `toml:"period_bytes" yaml:"period_bytes"`
	Periods        uint32 `toml:"periods" yaml:"periods"`
	Devices        int    `toml:"devices" yaml:"devices"`
	Metrics        string `toml:"metrics" yaml:"metrics"`

	Log LogConfig `toml:"log" yaml:"log"`
}

// LogConfig selects the log level and output format (color, text or json).
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

const defaultConfigFile = "loopsim.toml"

func defaultConfig() Config {
	return Config{
		TicksPerSecond: 1000,
		PeriodBytes:    4096,
		Periods:        4,
		Devices:        1,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// loadConfig reads path into cfg, choosing the decoder by extension. A missing file is only an
// error when required is set.
func loadConfig(fsys afero.Fs, path string, required bool, cfg *Config) error {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}

		return fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("config %s: unsupported extension %q", path, ext)
	}

	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	return nil
}

// applyFlags copies every flag explicitly set on the command line over the config values.
func applyFlags(flags *pflag.FlagSet, cfg *Config) error {
	var err error

	flags.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}

		switch f.Name {
		case "ticks-per-second":
			cfg.TicksPerSecond, err = flags.GetUint64(f.Name)
		case "period-bytes":
			cfg.PeriodBytes, err = flags.GetUint32(f.Name)
		case "periods":
			cfg.Periods, err = flags.GetUint32(f.Name)
		case "devices":
			cfg.Devices, err = flags.GetInt(f.Name)
		case "metrics":
			cfg.Metrics, err = flags.GetString(f.Name)
		case "log-level":
			cfg.Log.Level, err = flags.GetString(f.Name)
		case "log-format":
			cfg.Log.Format, err = flags.GetString(f.Name)
		}
	})

	return err
}

func (c Config) validate() error {
	switch {
	case c.TicksPerSecond == 0:
		return errors.New("ticks_per_second must be positive")
	case c.PeriodBytes == 0:
		return errors.New("period_bytes must be positive")
	case c.Periods == 0:
		return errors.New("periods must be positive")
	case c.Devices <= 0:
		return errors.New("devices must be positive")
	}

	return nil
}
