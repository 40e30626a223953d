// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the ciu-engine CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/ciu-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// engineCfg is the resolved configuration, loaded before every command.
	engineCfg types.EngineConfig

	logger *slog.Logger
)

// rootCmd is the base command for the ciu-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "ciu-engine",
	Short: "Scan-to-voltage reduction for collision induced unfolding data",
	Long: `ciu-engine turns raw ion-mobility data acquired under a ramped collision
voltage into voltage-resolved heatmaps.

Documents wrap a raw export and its acquisition parameters. Ions are
extracted by m/z window, combined according to the ramp protocol (linear,
exponential, boltzmann or user-defined), stored in a local SQLite database
and exported as YAML or JSON.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		engineCfg = cfg

		l, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(l)
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./ciu-engine.yaml or ~/.config/ciu-engine/ciu-engine.yaml)")
	pf.String("data-dir", types.DefaultDataDir, "base directory for the document database and exports")
	pf.String("log-level", types.DefaultLogLevel, "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	pf.Int("concurrency", types.DefaultConcurrency, "maximum ions extracted at once by --concurrent batches")
	pf.Bool("background", false, "run tasks on a worker goroutine")
	pf.Float64("resample-tolerance", types.DefaultResampleTolerance, "relative voltage-step spread above which the axis is resampled")

	bindings := map[string]string{
		"store.data_dir":               "data-dir",
		"log.level":                    "log-level",
		"log.format":                   "log-format",
		"dispatch.concurrency":         "concurrency",
		"dispatch.background":          "background",
		"reduction.resample_tolerance": "resample-tolerance",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ciu-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "ciu-engine"))
		}
	}

	viper.SetEnvPrefix("CIU_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig resolves flags, environment and config file into an
// EngineConfig with defaults applied.
func loadConfig() (types.EngineConfig, error) {
	var cfg types.EngineConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return types.EngineConfig{}, fmt.Errorf("decoding configuration: %w", err)
	}
	return cfg.WithDefaults(), nil
}

// newLogger builds the stderr logger described by cfg.
func newLogger(cfg types.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q (want text or json)", cfg.Format)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
