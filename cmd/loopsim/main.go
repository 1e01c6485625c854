// Command loopsim drives simulated loopback devices from audio files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

type app struct {
	fs  afero.Fs
	cfg Config
	log zerolog.Logger

	configPath string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{fs: afero.NewOsFs()}
	if err := a.rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	def := defaultConfig()

	root := &cobra.Command{
		Use:           "loopsim",
		Short:         "Simulated PCM loopback devices",
		Long:          `loopsim runs audio through software loopback devices timed by a periodic scheduler, the way a timer driven sound card moves its DMA pointer.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", defaultConfigFile, "Path to configuration file (toml or yaml)")
	flags.Uint64("ticks-per-second", def.TicksPerSecond, "Scheduler tick rate")
	flags.Uint32("period-bytes", def.PeriodBytes, "Period size in bytes, rounded down to whole frames")
	flags.Uint32("periods", def.Periods, "Number of periods in the buffer")
	flags.Int("devices", def.Devices, "Number of devices on the card")
	flags.String("metrics", def.Metrics, "Serve Prometheus metrics on this address (e.g. :9100)")
	flags.String("log-level", def.Log.Level, "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", def.Log.Format, "Log format (color, text, json)")

	root.AddCommand(a.infoCmd(), a.loopCmd(), a.playCmd())

	return root
}

// init loads the configuration, lets command line flags override it and builds the logger.
func (a *app) init(cmd *cobra.Command) error {
	a.cfg = defaultConfig()

	required := cmd.Flags().Changed("config")
	if err := loadConfig(a.fs, a.configPath, required, &a.cfg); err != nil {
		return err
	}

	if err := applyFlags(cmd.Flags(), &a.cfg); err != nil {
		return err
	}

	if err := a.cfg.validate(); err != nil {
		return err
	}

	log, err := newLogger(os.Stderr, a.cfg.Log)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	a.log = log

	return nil
}
