// Package config defines the JSON configuration of a meshprune run.
package config

import (
	"io"
	"os"
	"path"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"go.viam.com/utils"

	"go.viam.com/meshprune/logging"
	"go.viam.com/meshprune/prune"
	"go.viam.com/meshprune/reconstruction"
)

// Config is the whole configuration file. Any field left out keeps its default.
type Config struct {
	Prune    prune.Config  `json:"prune"`
	Outlier  OutlierConfig `json:"outlier"`
	Normals  NormalsConfig `json:"normals"`
	Poisson  PoissonConfig `json:"poisson"`
	LogLevel string        `json:"log_level,omitempty"`
}

// OutlierConfig configures statistical outlier removal.
type OutlierConfig struct {
	MeanK           int     `json:"mean_k"`
	StdDevMulThresh float64 `json:"std_dev_mul_thresh"`
}

// NormalsConfig configures normal estimation.
type NormalsConfig struct {
	K int `json:"k"`
}

// PoissonConfig configures the external surface reconstruction binary.
type PoissonConfig struct {
	Binary    string   `json:"binary"`
	Depth     int      `json:"depth"`
	ExtraArgs []string `json:"extra_args,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Prune:    prune.DefaultConfig(),
		Outlier:  OutlierConfig{MeanK: 20, StdDevMulThresh: 1.0},
		Normals:  NormalsConfig{K: 10},
		Poisson:  PoissonConfig{Binary: reconstruction.DefaultPoissonBinary, Depth: reconstruction.DefaultPoissonDepth},
		LogLevel: "info",
	}
}

// Read reads and validates the config file at path.
func Read(path string) (*Config, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read config file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	cfg, err := FromReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "config file %q", path)
	}
	return cfg, nil
}

// FromReader reads and validates a config. The input may use JSON5 syntax, so comments
// and trailing commas are accepted.
func FromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "cannot parse config")
	}
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if err := cfg.Prune.Validate(join(path, "prune")); err != nil {
		return err
	}
	if err := cfg.Outlier.Validate(join(path, "outlier")); err != nil {
		return err
	}
	if err := cfg.Normals.Validate(join(path, "normals")); err != nil {
		return err
	}
	if err := cfg.Poisson.Validate(join(path, "poisson")); err != nil {
		return err
	}
	if _, err := logging.LevelFromString(cfg.LogLevel); err != nil {
		return utils.NewConfigValidationError(join(path, "log_level"), err)
	}
	return nil
}

// Level returns the configured log level.
func (cfg *Config) Level() logging.Level {
	level, err := logging.LevelFromString(cfg.LogLevel)
	if err != nil {
		return logging.INFO
	}
	return level
}

// Validate ensures all parts of the config are valid.
func (cfg *OutlierConfig) Validate(path string) error {
	if cfg.MeanK <= 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("mean_k must be positive, got %d", cfg.MeanK))
	}
	if cfg.StdDevMulThresh < 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("std_dev_mul_thresh must not be negative, got %v", cfg.StdDevMulThresh))
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (cfg *NormalsConfig) Validate(path string) error {
	if cfg.K <= 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("k must be positive, got %d", cfg.K))
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (cfg *PoissonConfig) Validate(path string) error {
	if cfg.Binary == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "binary")
	}
	if cfg.Depth < 1 {
		return utils.NewConfigValidationError(path, errors.Errorf("depth must be at least 1, got %d", cfg.Depth))
	}
	return nil
}

// Schema returns the JSON schema of the config file. Definitions are named after their
// package since several sections share a type name. No field is required because missing
// fields keep their defaults.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		Namer:                      qualifiedTypeName,
	}
	return r.Reflect(&Config{})
}

func qualifiedTypeName(t reflect.Type) string {
	if t.Name() == "" || t.PkgPath() == "" {
		return ""
	}
	return path.Base(t.PkgPath()) + "." + t.Name()
}

func join(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}
