package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/zooexport/internal/logger"
)

// Config is the optional zooexport configuration file
// (~/.config/zooexport/config.yaml). Pointer fields tell "not set" apart
// from zero values.
type Config struct {
	Model      *string `yaml:"model"`
	Weights    *string `yaml:"weights"`
	Output     *string `yaml:"output"`
	InputName  *string `yaml:"input_name"`
	OutputName *string `yaml:"output_name"`
	Opset      *int64  `yaml:"opset"`
	Seed       *int64  `yaml:"seed"`

	FoldBatchNorm *bool `yaml:"fold_batchnorm"`
	Manifest      *bool `yaml:"manifest"`

	CacheDir string `yaml:"cache_dir"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "zooexport", "config.yaml")
}

// loadConfig reads the config file. A missing file at the default location
// gives a zero Config; a file named with --config must exist.
func loadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = configPath()
		if path == "" {
			return Config{}, nil
		}
	}
	//nolint:gosec // G304: config path comes from the user
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// setup loads the config file and returns a context carrying the logger.
func setup(ctx context.Context, c *cli.Command) (context.Context, Config, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return ctx, Config{}, err
	}
	level, format := logLevel, logFormat
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		level = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		format = cfg.LogFormat
	}
	log, err := logger.NewWithFormat(os.Stderr, level, format)
	if err != nil {
		return ctx, Config{}, err
	}
	return logger.WithContext(ctx, log), cfg, nil
}

// applyExportConfig applies config file defaults to export options when the
// corresponding flag was not explicitly set.
func applyExportConfig(c *cli.Command, cfg Config, o *exportOptions) {
	if cfg.Model != nil && !c.IsSet("model") {
		o.model = *cfg.Model
	}
	if cfg.Weights != nil && !c.IsSet("weights") {
		o.weights = *cfg.Weights
	}
	if cfg.Output != nil && !c.IsSet("output") {
		o.output = *cfg.Output
	}
	if cfg.InputName != nil && !c.IsSet("input-name") {
		o.inputName = *cfg.InputName
	}
	if cfg.OutputName != nil && !c.IsSet("output-name") {
		o.outputName = *cfg.OutputName
	}
	if cfg.Opset != nil && !c.IsSet("opset") {
		o.opset = *cfg.Opset
	}
	if c.IsSet("seed") {
		o.seedSet = true
	} else if cfg.Seed != nil {
		o.seed = *cfg.Seed
		o.seedSet = true
	}
	if cfg.FoldBatchNorm != nil && !c.IsSet("no-fold-bn") {
		o.noFoldBN = !*cfg.FoldBatchNorm
	}
	if cfg.Manifest != nil && !c.IsSet("manifest") {
		o.manifest = *cfg.Manifest
	}
	if cfg.CacheDir != "" && !c.IsSet("cache-dir") {
		o.cacheDir = cfg.CacheDir
	}
}
