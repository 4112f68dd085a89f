// Package config provides configuration loading and management for aortec.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Loader controls which files in a series directory are considered
	Loader struct {
		// Extensions are the accepted file suffixes, compared case-insensitively
		Extensions []string `yaml:"extensions"`

		// AcceptExtensionless allows files without any suffix (common for DICOM exports)
		AcceptExtensionless bool `yaml:"acceptExtensionless"`
	} `yaml:"loader"`

	// Volume assembly parameters
	Volume struct {
		// DefaultSpacing is used on any axis with no spacing metadata, in mm
		DefaultSpacing float64 `yaml:"defaultSpacing"`

		// InterpolationFactor inserts factor-1 linearly interpolated planes
		// between consecutive slices; 1 disables interpolation
		InterpolationFactor int `yaml:"interpolationFactor"`
	} `yaml:"volume"`

	// Threshold selection parameters
	Threshold struct {
		SampleCap       int     `yaml:"sampleCap"`
		LowerPercentile float64 `yaml:"lowerPercentile"`
		UpperPercentile float64 `yaml:"upperPercentile"`
		WidenedLower    float64 `yaml:"widenedLower"`
		WidenedUpper    float64 `yaml:"widenedUpper"`
		MedianFactor    float64 `yaml:"medianFactor"`
		MinVoxels       int     `yaml:"minVoxels"`
		FallbackLower   float64 `yaml:"fallbackLower"`
		FallbackUpper   float64 `yaml:"fallbackUpper"`
	} `yaml:"threshold"`

	// Surface extraction parameters
	Surface struct {
		IsoValue      float64 `yaml:"isoValue"`
		RetryIsoValue float64 `yaml:"retryIsoValue"`
	} `yaml:"surface"`

	// Mesh post-processing parameters
	Mesh struct {
		SmoothingIterations int     `yaml:"smoothingIterations"`
		Relaxation          float64 `yaml:"relaxation"`
		Decimate            bool    `yaml:"decimate"`
		TargetReduction     float64 `yaml:"targetReduction"`
	} `yaml:"mesh"`

	// Render controls the preview raster
	Render struct {
		Width       int        `yaml:"width"`
		Height      int        `yaml:"height"`
		Supersample int        `yaml:"supersample"`
		Azimuth     float64    `yaml:"azimuth"`
		Elevation   float64    `yaml:"elevation"`
		Zoom        float64    `yaml:"zoom"`
		Color       [3]float64 `yaml:"color"`
		Background  [3]float64 `yaml:"background"`
	} `yaml:"render"`

	// Storage controls where artifacts are published after a conversion
	Storage struct {
		// Backend is "local" or "s3"
		Backend string `yaml:"backend"`
		Bucket  string `yaml:"bucket"`
		Prefix  string `yaml:"prefix"`
		Region  string `yaml:"region"`
	} `yaml:"storage"`

	// Metrics controls the Prometheus textfile export
	Metrics struct {
		TextfilePath string `yaml:"textfilePath"`
	} `yaml:"metrics"`

	// Sentry error reporting; disabled when DSN is empty
	Sentry struct {
		DSN         string `yaml:"dsn"`
		Environment string `yaml:"environment"`
	} `yaml:"sentry"`

	// Output parameters
	Output struct {
		// LogLevel is one of debug, info, error
		LogLevel string `yaml:"logLevel"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Loader.Extensions = []string{".dcm", ".dicom", ".ima"}
	cfg.Loader.AcceptExtensionless = true

	cfg.Volume.DefaultSpacing = 1.0
	cfg.Volume.InterpolationFactor = 1

	cfg.Threshold.SampleCap = 200000
	cfg.Threshold.LowerPercentile = 25
	cfg.Threshold.UpperPercentile = 75
	cfg.Threshold.WidenedLower = 10
	cfg.Threshold.WidenedUpper = 90
	cfg.Threshold.MedianFactor = 0.8
	cfg.Threshold.MinVoxels = 100
	cfg.Threshold.FallbackLower = 50
	cfg.Threshold.FallbackUpper = 200

	cfg.Surface.IsoValue = 0.5
	cfg.Surface.RetryIsoValue = 0.1

	cfg.Mesh.SmoothingIterations = 10
	cfg.Mesh.Relaxation = 0.1
	cfg.Mesh.Decimate = false
	cfg.Mesh.TargetReduction = 0.5

	cfg.Render.Width = 800
	cfg.Render.Height = 600
	cfg.Render.Supersample = 2
	cfg.Render.Azimuth = 45
	cfg.Render.Elevation = 30
	cfg.Render.Zoom = 1.2
	cfg.Render.Color = [3]float64{0.8, 0.2, 0.2}
	cfg.Render.Background = [3]float64{0, 0, 0}

	cfg.Storage.Backend = "local"

	cfg.Output.LogLevel = "info"
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}

	return cfg, cfg.Validate()
}

// Validate rejects values the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Volume.DefaultSpacing <= 0 {
		return errors.Errorf("volume.defaultSpacing must be positive, got %v", c.Volume.DefaultSpacing)
	}
	if c.Volume.InterpolationFactor < 1 {
		return errors.Errorf("volume.interpolationFactor must be >= 1, got %v", c.Volume.InterpolationFactor)
	}
	if c.Threshold.LowerPercentile < 0 || c.Threshold.UpperPercentile > 100 || c.Threshold.LowerPercentile > c.Threshold.UpperPercentile {
		return errors.Errorf("threshold percentiles out of order: %v/%v", c.Threshold.LowerPercentile, c.Threshold.UpperPercentile)
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return errors.Errorf("render size must be positive, got %vx%v", c.Render.Width, c.Render.Height)
	}
	if c.Mesh.TargetReduction < 0 || c.Mesh.TargetReduction >= 1 {
		return errors.Errorf("mesh.targetReduction must be in [0,1), got %v", c.Mesh.TargetReduction)
	}
	switch c.Storage.Backend {
	case "", "local":
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket is required for the s3 backend")
		}
	default:
		return errors.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "error marshaling config")
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
