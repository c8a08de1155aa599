package config

import (
	"fmt"
	"os"

	"chart-hub/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyChartDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// applyChartDefaults fills the chart tuning knobs left unset in the YAML.
// The gap factor and extreme-move threshold defaults match the values the
// hub has always shipped with.
func (c *Config) applyChartDefaults() {
	chart := &c.Chart
	if chart.MaxBufferBars <= 0 {
		chart.MaxBufferBars = 500
	}
	if chart.MaxMinuteBars <= 0 {
		chart.MaxMinuteBars = 720
	}
	if chart.GapFactor <= 0 {
		chart.GapFactor = 1.5
	}
	if chart.ExtremeMoveThreshold <= 0 {
		chart.ExtremeMoveThreshold = 0.20
	}
	if chart.QualityLogSize <= 0 {
		chart.QualityLogSize = 100
	}
	if chart.DefaultTimeframe == "" {
		chart.DefaultTimeframe = "5/minute"
	}
	if c.Storage.DataRetentionDays <= 0 {
		c.Storage.DataRetentionDays = 7
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	// Validate App configuration (Flattened)
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration (Flattened)
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Validate Storage configuration
	if c.Storage.DBType == "" {
		return fmt.Errorf("database type cannot be empty")
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}

	// Validate Network configuration
	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.Network.ConcurrentRequests <= 0 {
		return fmt.Errorf("concurrent requests must be greater than 0")
	}

	// Validate Upstream configuration
	if c.Upstream.RestBaseURL == "" {
		return fmt.Errorf("upstream rest base url cannot be empty")
	}

	// Validate Chart configuration
	if c.Chart.GapFactor < 1.0 {
		return fmt.Errorf("gap factor must be at least 1.0, got %v", c.Chart.GapFactor)
	}
	if c.Chart.ExtremeMoveThreshold >= 1.0 {
		return fmt.Errorf("extreme move threshold must be a fraction below 1.0, got %v", c.Chart.ExtremeMoveThreshold)
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
