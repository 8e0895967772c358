package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dlorp/synapse-engine-sub012/internal/config"
)

type rootOpts struct {
	configPath string
	logLevel   string
	logJSON    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOpts{}
	root := &cobra.Command{
		Use:           "synapsed",
		Short:         "Local model server fleet daemon",
		Long:          "synapsed discovers GGUF model artifacts, assigns tiers and ports,\nand supervises one llama-server process per enabled model.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (.yaml|.json|.toml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "Emit JSON logs instead of console output")

	root.AddCommand(newServeCmd(opts), newScanCmd(opts), newModelsCmd(opts))
	return root
}

// loadConfig resolves the effective config: file, then SYNAPSED_* env
// overlay, then flag overrides, then defaults.
func (o *rootOpts) loadConfig() (config.Config, error) {
	var cfg config.Config
	var err error
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}
	cfg, err = config.FromEnv(cfg)
	if err != nil {
		return cfg, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return config.Normalize(cfg)
}

// newLogger builds the process logger from the effective config.
func (o *rootOpts) newLogger(cfg config.Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if o.logJSON {
		log = zerolog.New(os.Stderr)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
	return log.Level(lvl).With().Timestamp().Logger()
}
