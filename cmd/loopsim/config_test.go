package main

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	fsys := afero.NewMemMapFs()

	require.NoError(t, afero.WriteFile(fsys, "loopsim.toml", []byte(`
ticks_per_second = 250
period_bytes = 1920
periods = 8

[log]
level = "debug"
format = "json"
`), 0o644))

	require.NoError(t, afero.WriteFile(fsys, "loopsim.yaml", []byte(`
ticks_per_second: 1000000
devices: 4
metrics: ":9100"
log:
  level: warn
`), 0o644))

	require.NoError(t, afero.WriteFile(fsys, "loopsim.ini", []byte("x=1"), 0o644))

	t.Run("TOML", func(t *testing.T) {
		cfg := defaultConfig()
		require.NoError(t, loadConfig(fsys, "loopsim.toml", true, &cfg))

		assert.Equal(t, uint64(250), cfg.TicksPerSecond)
		assert.Equal(t, uint32(1920), cfg.PeriodBytes)
		assert.Equal(t, uint32(8), cfg.Periods)
		assert.Equal(t, 1, cfg.Devices, "unset keys keep their defaults")
		assert.Equal(t, LogConfig{Level: "debug", Format: "json"}, cfg.Log)
	})

	t.Run("YAML", func(t *testing.T) {
		cfg := defaultConfig()
		require.NoError(t, loadConfig(fsys, "loopsim.yaml", true, &cfg))

		assert.Equal(t, uint64(1_000_000), cfg.TicksPerSecond)
		assert.Equal(t, 4, cfg.Devices)
		assert.Equal(t, ":9100", cfg.Metrics)
		assert.Equal(t, "warn", cfg.Log.Level)
		assert.Equal(t, uint32(4096), cfg.PeriodBytes)
	})

	t.Run("MissingOptional", func(t *testing.T) {
		cfg := defaultConfig()
		require.NoError(t, loadConfig(fsys, "missing.toml", false, &cfg))
		assert.Equal(t, defaultConfig(), cfg)
	})

	t.Run("MissingRequired", func(t *testing.T) {
		cfg := defaultConfig()
		assert.Error(t, loadConfig(fsys, "missing.toml", true, &cfg))
	})

	t.Run("UnsupportedExtension", func(t *testing.T) {
		cfg := defaultConfig()
		assert.Error(t, loadConfig(fsys, "loopsim.ini", true, &cfg))
	})
}

func TestApplyFlags(t *testing.T) {
	a := &app{fs: afero.NewMemMapFs()}
	root := a.rootCmd()

	flags := root.PersistentFlags()
	require.NoError(t, flags.Set("periods", "16"))
	require.NoError(t, flags.Set("log-level", "trace"))

	cfg := defaultConfig()
	cfg.Periods = 2
	cfg.PeriodBytes = 960
	require.NoError(t, applyFlags(flags, &cfg))

	assert.Equal(t, uint32(16), cfg.Periods, "flags set on the command line win over the file")
	assert.Equal(t, uint32(960), cfg.PeriodBytes, "flags left alone keep the file value")
	assert.Equal(t, "trace", cfg.Log.Level)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, defaultConfig().validate())

	for _, mutate := range []func(*Config){
		func(c *Config) { c.TicksPerSecond = 0 },
		func(c *Config) { c.PeriodBytes = 0 },
		func(c *Config) { c.Periods = 0 },
		func(c *Config) { c.Devices = 0 },
	} {
		cfg := defaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.validate())
	}
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger(nil, LogConfig{Level: "loud"})
	assert.Error(t, err)

	var flags pflag.FlagSet
	flags.String("log-level", "", "")
	require.NoError(t, flags.Set("log-level", "debug"))

	cfg := defaultConfig()
	require.NoError(t, applyFlags(&flags, &cfg))

	log, err := newLogger(nil, cfg.Log)
	require.NoError(t, err)
	assert.Equal(t, "debug", log.GetLevel().String())
}
