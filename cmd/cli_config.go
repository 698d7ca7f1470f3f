package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/geofetch/geofetch/pkg/acquire"
	"github.com/geofetch/geofetch/pkg/api"
	"github.com/geofetch/geofetch/pkg/redis"
	"github.com/geofetch/geofetch/pkg/scheduler"
)

// ErrBasePathRequired is returned when no data directory is configured
var ErrBasePathRequired = errors.New("base path is required")

// CLIConfig is the optional geofetch.yaml file
type CLIConfig struct {
	// MetricsAddr serves /metrics when set; --metrics-addr overrides it
	MetricsAddr string `yaml:"metricsAddr"`

	// BasePath is the default root for dataset directories
	BasePath string `yaml:"basePath" default:"./data" validate:"required"`

	// Redis is optional. Without it watch mode tracks runs in memory and
	// ESGF searches are cached per process.
	Redis redis.Config `yaml:"redis"`

	Sources   acquire.SourcesConfig `yaml:"sources"`
	Scheduler scheduler.Config      `yaml:"scheduler"`
	API       api.Config            `yaml:"api"`
}

// Validate validates the CLI configuration
func (c *CLIConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.BasePath == "" {
		return ErrBasePathRequired
	}

	if c.Redis.Enabled() {
		if err := c.Redis.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// LoadCLIConfig loads CLI configuration from a YAML file
func LoadCLIConfig(path string) (*CLIConfig, error) {
	if path == "" {
		path = "geofetch.yaml"
	}

	config := &CLIConfig{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	// Try to read the file, but allow it to not exist
	yamlFile, err := os.ReadFile(path) //nolint:gosec // User-provided config file path
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(yamlFile, config); err != nil {
		return nil, err
	}

	if config.API.BasePath == "" {
		config.API.BasePath = config.BasePath
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}
