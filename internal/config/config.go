// Package config holds the batch configuration read from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvPostgresDSN = "SPINESUV_POSTGRES_DSN"
	EnvRedisAddr   = "SPINESUV_REDIS_ADDR"
	EnvLogLevel    = "SPINESUV_LOG_LEVEL"
)

// Segmentation engines.
const (
	EngineTotalSegmentator = "totalsegmentator"
	EnginePrecomputed      = "precomputed"
)

// Config is the complete batch configuration.
type Config struct {
	// DataFolder holds one directory per patient.
	DataFolder string `yaml:"data_folder"`
	// WorkDir receives staged series, engine outputs and file checkpoints.
	WorkDir string `yaml:"work_dir"`

	Padding        int  `yaml:"padding"`
	CTMasksFlipped bool `yaml:"ct_masks_flipped"`
	// ResampleSpacing is recorded with the run; the resampler follows the CT grid.
	ResampleSpacing [3]float64 `yaml:"resample_spacing"`

	CT           CTConfig           `yaml:"ct"`
	PET          PETConfig          `yaml:"pet"`
	Segmentation SegmentationConfig `yaml:"segmentation"`
	Exclude      ExcludeConfig      `yaml:"exclude"`
	Density      DensityConfig      `yaml:"density"`
	Checkpoint   CheckpointConfig   `yaml:"checkpoint"`
	Results      ResultsConfig      `yaml:"results"`
	Log          LogConfig          `yaml:"log"`
}

// CTConfig selects the CT series and drives the staging fallback ladder.
type CTConfig struct {
	StudyDescription     string `yaml:"study_description"`
	SeriesNumber         int    `yaml:"series_number"`
	FallbackSeriesNumber int    `yaml:"fallback_series_number"`
	Marker               string `yaml:"marker"`
	MarkerSeriesNumber   int    `yaml:"marker_series_number"`
}

// PETConfig selects the PET series.
type PETConfig struct {
	SeriesDescription       string `yaml:"series_description"`
	Marker                  string `yaml:"marker"`
	MarkerSeriesDescription string `yaml:"marker_series_description"`
}

// SegmentationConfig configures the segmentation engine.
type SegmentationConfig struct {
	Engine       string        `yaml:"engine"`
	Command      string        `yaml:"command"`
	Args         []string      `yaml:"args,omitempty"`
	Timeout      time.Duration `yaml:"timeout"`
	OutputPrefix string        `yaml:"output_prefix"`
}

// ExcludeConfig drops patients per stage by listing index, and everywhere by id.
type ExcludeConfig struct {
	Segmentation []int    `yaml:"segmentation,omitempty"`
	Registration []int    `yaml:"registration,omitempty"`
	Metadata     []int    `yaml:"metadata,omitempty"`
	SUV          []int    `yaml:"suv,omitempty"`
	IDs          []string `yaml:"ids,omitempty"`
}

// DensityConfig enables the CT density report. Patients in FlipSet have
// their CT reversed along the slice axis before measuring.
type DensityConfig struct {
	Enabled bool     `yaml:"enabled"`
	FlipSet []string `yaml:"flip_set,omitempty"`
}

// CheckpointConfig selects the checkpoint backend. A Redis address wins
// over the directory.
type CheckpointConfig struct {
	Dir   string      `yaml:"dir"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig is the optional Redis checkpoint backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// ResultsConfig enables the PostgreSQL sink when a DSN is set.
type ResultsConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		DataFolder:      "data",
		WorkDir:         "work",
		Padding:         20,
		ResampleSpacing: [3]float64{1, 1, 1},
	}

	cfg.CT = CTConfig{
		StudyDescription:     "PET",
		SeriesNumber:         3,
		FallbackSeriesNumber: 5,
		Marker:               "iMAR",
		MarkerSeriesNumber:   4,
	}
	cfg.PET = PETConfig{
		SeriesDescription:       "[WB_CTAC]",
		Marker:                  "E2T",
		MarkerSeriesDescription: "PET AC Sag",
	}
	cfg.Segmentation = SegmentationConfig{
		Engine:       EngineTotalSegmentator,
		Command:      "TotalSegmentator",
		OutputPrefix: "segmentations_totalsegmentator_",
	}
	cfg.Checkpoint.Redis.Prefix = "spinesuv"
	cfg.Log = LogConfig{Level: "info", Format: "text"}

	return cfg
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("error reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// ApplyEnv overrides secrets and the log level from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvPostgresDSN); ok {
		c.Results.PostgresDSN = v
	}
	if v, ok := lookup(EnvRedisAddr); ok {
		c.Checkpoint.Redis.Addr = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// Save writes the configuration as YAML.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// CheckpointDir is where file checkpoints go.
func (c *Config) CheckpointDir() string {
	if c.Checkpoint.Dir != "" {
		return c.Checkpoint.Dir
	}
	return filepath.Join(c.WorkDir, "checkpoints")
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.DataFolder == "" {
		return fmt.Errorf("data_folder is required")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("work_dir is required")
	}
	if c.Padding < 0 {
		return fmt.Errorf("padding must be >= 0, got %d", c.Padding)
	}
	for i, s := range c.ResampleSpacing {
		if s <= 0 {
			return fmt.Errorf("resample_spacing[%d] must be > 0, got %g", i, s)
		}
	}
	if c.CT.SeriesNumber <= 0 {
		return fmt.Errorf("ct.series_number must be > 0, got %d", c.CT.SeriesNumber)
	}
	if c.PET.SeriesDescription == "" {
		return fmt.Errorf("pet.series_description is required")
	}

	switch c.Segmentation.Engine {
	case EngineTotalSegmentator:
		if c.Segmentation.Command == "" {
			return fmt.Errorf("segmentation.command is required for the %s engine", EngineTotalSegmentator)
		}
	case EnginePrecomputed:
	default:
		return fmt.Errorf("invalid segmentation.engine %q (valid: %s, %s)", c.Segmentation.Engine, EngineTotalSegmentator, EnginePrecomputed)
	}
	if c.Segmentation.Timeout < 0 {
		return fmt.Errorf("segmentation.timeout must be >= 0")
	}
	if c.Segmentation.OutputPrefix == "" {
		return fmt.Errorf("segmentation.output_prefix is required")
	}

	for _, ex := range []struct {
		stage   string
		indexes []int
	}{
		{"segmentation", c.Exclude.Segmentation},
		{"registration", c.Exclude.Registration},
		{"metadata", c.Exclude.Metadata},
		{"suv", c.Exclude.SUV},
	} {
		for _, i := range ex.indexes {
			if i < 0 {
				return fmt.Errorf("exclude.%s: negative index %d", ex.stage, i)
			}
		}
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log.format %q (valid: text, json)", c.Log.Format)
	}
	return nil
}
