// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// ReductionConfig holds settings for the scan-to-voltage reduction engine.
type ReductionConfig struct {
	// ResampleTolerance is the relative spread of consecutive voltage deltas
	// above which the voltage axis is resampled (default 1e-6).
	ResampleTolerance float64 `json:"resample_tolerance" yaml:"resample_tolerance" mapstructure:"resample_tolerance"`
}

// DispatchConfig holds settings for the task dispatcher.
type DispatchConfig struct {
	// Concurrency limits the number of ions extracted at once by concurrent
	// batch tasks (default 4).
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`

	// Background runs CLI tasks on a worker goroutine instead of inline.
	Background bool `json:"background" yaml:"background" mapstructure:"background"`
}

// StoreConfig holds settings for document persistence.
type StoreConfig struct {
	// DataDir is the base directory for persisted documents (contains
	// index/ and export/).
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error (default info).
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is text or json (default text).
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// EngineConfig groups all configuration sections.
type EngineConfig struct {
	Reduction ReductionConfig `json:"reduction" yaml:"reduction" mapstructure:"reduction"`
	Dispatch  DispatchConfig  `json:"dispatch" yaml:"dispatch" mapstructure:"dispatch"`
	Store     StoreConfig     `json:"store" yaml:"store" mapstructure:"store"`
	Log       LogConfig       `json:"log" yaml:"log" mapstructure:"log"`
}

const (
	DefaultResampleTolerance = 1e-6
	DefaultConcurrency       = 4
	DefaultDataDir           = "data"
	DefaultLogLevel          = "info"
)

// WithDefaults returns a copy of cfg with zero values replaced by defaults.
func (cfg EngineConfig) WithDefaults() EngineConfig {
	if cfg.Reduction.ResampleTolerance <= 0 {
		cfg.Reduction.ResampleTolerance = DefaultResampleTolerance
	}
	if cfg.Dispatch.Concurrency <= 0 {
		cfg.Dispatch.Concurrency = DefaultConcurrency
	}
	if cfg.Store.DataDir == "" {
		cfg.Store.DataDir = DefaultDataDir
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return cfg
}
