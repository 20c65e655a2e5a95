package eit

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPublishPrefix is the MQTT topic prefix for published results
	DefaultPublishPrefix = "eitvis"

	// DefaultRenderSize is the default edge length of rendered images in pixels
	DefaultRenderSize = 480

	// DefaultHTTPPort is the default HTTP server port
	DefaultHTTPPort = 8080
)

// DefaultConfig returns a configuration with every default filled in and no sensors
func DefaultConfig() *Config {
	config := &Config{}
	config.applyDefaults()
	return config
}

func (c *Config) applyDefaults() {
	if c.MQTT.PublishPrefix == "" {
		c.MQTT.PublishPrefix = DefaultPublishPrefix
	}
	if c.Engine.GridSize <= 0 {
		c.Engine.GridSize = DefaultGridSize
	}
	if c.Engine.Lambda <= 0 {
		c.Engine.Lambda = DefaultLambda
	}
	if c.Render.Size <= 0 {
		c.Render.Size = DefaultRenderSize
	}
	if c.Render.Format == "" {
		c.Render.Format = "raster"
	}
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	if c.Pipeline.Flatten != nil && *c.Pipeline.Flatten < 0 {
		return fmt.Errorf("pipeline.flatten must be non-negative")
	}
	if c.Render.Format != "raster" && c.Render.Format != "vector" {
		return fmt.Errorf("render.format must be raster or vector, got %q", c.Render.Format)
	}

	seen := make(map[string]bool)
	for i, sc := range c.Sensors {
		if sc.ID == "" {
			return fmt.Errorf("sensor[%d].id is required", i)
		}
		if seen[sc.ID] {
			return fmt.Errorf("sensor[%d].id %q is duplicated", i, sc.ID)
		}
		seen[sc.ID] = true
		if sc.Topic == "" {
			return fmt.Errorf("sensor[%d].topic is required for %s", i, sc.ID)
		}
		if sc.Frequency != 0 {
			if err := ValidateFrequency(sc.Frequency); err != nil {
				return fmt.Errorf("sensor[%d].frequency: %w", i, err)
			}
		}
		if sc.Flatten != nil && *sc.Flatten < 0 {
			return fmt.Errorf("sensor[%d].flatten must be non-negative", i)
		}
	}
	return nil
}

// LoadConfig loads the configuration from a YAML file, fills defaults and validates it
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: config %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
