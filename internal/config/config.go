// Package config loads sampler run configuration: defaults, then a YAML
// file, then BAYESGRAPH_* environment variables, then validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/bayesgraph/internal/eval"
	"github.com/danielpatrickdp/bayesgraph/internal/mcmc"
)

// #region types
// RunConfig is the full configuration of one sampler run.
type RunConfig struct {
	Model       ModelConfig `yaml:"model"`
	Chain       ChainConfig `yaml:"chain"`
	MC3         MC3Config   `yaml:"mc3"`
	Store       StoreConfig `yaml:"store"`
	Log         LogConfig   `yaml:"log"`
	Eval        EvalConfig  `yaml:"eval"`
	MetricsAddr string      `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

// ModelConfig selects a model builder and its data.
type ModelConfig struct {
	Name      string    `yaml:"name" validate:"oneof=normal-mean"`
	Data      []float64 `yaml:"data" validate:"required,min=1"`
	PriorMean float64   `yaml:"prior_mean"`
	PriorSD   float64   `yaml:"prior_sd" validate:"gt=0"`
}

// ChainConfig holds per-chain sampler settings.
type ChainConfig struct {
	Generations        int     `yaml:"generations" validate:"gt=0"`
	Seed               uint64  `yaml:"seed"`
	Schedule           string  `yaml:"schedule" validate:"oneof=random sequential"`
	Window             float64 `yaml:"window" validate:"gt=0"`
	AutoTune           bool    `yaml:"auto_tune"`
	TuneEvery          int     `yaml:"tune_every" validate:"gte=0"`
	CheckpointEvery    int     `yaml:"checkpoint_every" validate:"gte=0"`
	ValidateEvery      int     `yaml:"validate_every" validate:"gte=0"`
	LogEvery           int     `yaml:"log_every" validate:"gte=0"`
	HeatLikelihoodOnly bool    `yaml:"heat_likelihood_only"`
}

// MC3Config enables Metropolis coupling when Chains > 1.
type MC3Config struct {
	Chains       int     `yaml:"chains" validate:"gte=1"`
	DeltaHeat    float64 `yaml:"delta_heat" validate:"gte=0"`
	SwapInterval int     `yaml:"swap_interval" validate:"gt=0"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// LogConfig sets the log level and an optional JSON log file.
type LogConfig struct {
	Level    string `yaml:"level" validate:"oneof=debug info warn error"`
	JSONPath string `yaml:"json_path"`
}

// EvalConfig tunes the between-generation validator.
type EvalConfig struct {
	VerifyCaches     bool `yaml:"verify_caches"`
	AllowZeroDensity bool `yaml:"allow_zero_density"`
}

// #endregion types

// #region defaults
// DefaultRunConfig returns a single-chain run of the normal-mean model with
// no data. Data must come from the file.
func DefaultRunConfig() RunConfig {
	chain := mcmc.DefaultChainConfig()
	mc3 := mcmc.DefaultMC3Config()
	return RunConfig{
		Model: ModelConfig{
			Name:      "normal-mean",
			PriorMean: 0,
			PriorSD:   10,
		},
		Chain: ChainConfig{
			Generations:     10000,
			Seed:            1,
			Schedule:        chain.Schedule,
			Window:          1.0,
			AutoTune:        true,
			TuneEvery:       chain.TuneEvery,
			CheckpointEvery: chain.CheckpointEvery,
			ValidateEvery:   chain.ValidateEvery,
			LogEvery:        chain.LogEvery,
		},
		MC3: MC3Config{
			Chains:       1,
			DeltaHeat:    mc3.DeltaHeat,
			SwapInterval: mc3.SwapInterval,
		},
		Store: StoreConfig{Path: "bayesgraph.db"},
		Log:   LogConfig{Level: "info"},
		Eval:  EvalConfig{VerifyCaches: true},
	}
}

// #endregion defaults

// #region load
// Load builds a RunConfig with priority env > file > defaults. A missing
// file is not an error; an unreadable or invalid one is.
func Load(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := loadEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *RunConfig) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func loadEnv(cfg *RunConfig) error {
	cfg.Store.Path = envOr("BAYESGRAPH_DB", cfg.Store.Path)
	cfg.Log.Level = envOr("BAYESGRAPH_LOG_LEVEL", cfg.Log.Level)
	cfg.MetricsAddr = envOr("BAYESGRAPH_METRICS_ADDR", cfg.MetricsAddr)
	if v := os.Getenv("BAYESGRAPH_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("BAYESGRAPH_SEED: %w", err)
		}
		cfg.Chain.Seed = seed
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var validate = validator.New()

// Validate checks field constraints.
func (c RunConfig) Validate() error {
	return validate.Struct(c)
}

// #endregion load

// #region conversions
// Cadences returns the mcmc cadences for this run.
func (c ChainConfig) Cadences() mcmc.ChainConfig {
	return mcmc.ChainConfig{
		Schedule:        c.Schedule,
		TuneEvery:       c.TuneEvery,
		CheckpointEvery: c.CheckpointEvery,
		ValidateEvery:   c.ValidateEvery,
		LogEvery:        c.LogEvery,
	}
}

// Gate returns the acceptance gate settings.
func (c ChainConfig) Gate() mcmc.GateConfig {
	return mcmc.GateConfig{HeatLikelihoodOnly: c.HeatLikelihoodOnly}
}

// Coupling returns the MC3 settings, seeded from the chain seed.
func (c RunConfig) Coupling() mcmc.MC3Config {
	return mcmc.MC3Config{
		Chains:       c.MC3.Chains,
		DeltaHeat:    c.MC3.DeltaHeat,
		SwapInterval: c.MC3.SwapInterval,
		Seed:         c.Chain.Seed,
		Gate:         c.Chain.Gate(),
	}
}

// Harness returns the validator thresholds used when ValidateEvery > 0.
func (c EvalConfig) Harness() eval.EvalConfig {
	cfg := eval.DefaultEvalConfig()
	cfg.VerifyCaches = c.VerifyCaches
	cfg.AllowNegativeInfs = c.AllowZeroDensity
	return cfg
}

// #endregion conversions
