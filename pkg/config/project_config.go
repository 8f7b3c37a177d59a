// Package config provides loading of the handoff.yaml project configuration
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no config path is given.
const DefaultFile = "handoff.yaml"

var supportedEventBuses = []string{"none", "gochannel", "kafka"}

// ProjectConfig holds the defaults a project checks in next to its workflows.
// Command line flags and environment variables take precedence over every field.
type ProjectConfig struct {
	ArtifactsDir string `yaml:"artifacts_dir"`
	WorkflowsDir string `yaml:"workflows_dir"`
	SchemaPath   string `yaml:"schema_path"`
	DatabaseURL  string `yaml:"database_url"`
	EventBus     string `yaml:"event_bus"`
	KafkaBrokers string `yaml:"kafka_brokers"`
}

// Default returns the configuration used when no handoff.yaml exists.
func Default() ProjectConfig {
	return ProjectConfig{
		ArtifactsDir: "artifacts",
		WorkflowsDir: "workflows",
		EventBus:     "none",
	}
}

// LoadProjectConfig reads a YAML project config. Fields left out keep their defaults.
func LoadProjectConfig(path string) (ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ProjectConfig{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()

	if err := yaml.Unmarshal(data, &config); err != nil {
		return ProjectConfig{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := ValidateProjectConfig(config); err != nil {
		return ProjectConfig{}, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return config, nil
}

// LoadProjectConfigOrDefault loads path, or DefaultFile when path is empty. A missing
// DefaultFile yields Default(); a missing explicit path is an error.
func LoadProjectConfigOrDefault(path string) (ProjectConfig, error) {
	if path != "" {
		return LoadProjectConfig(path)
	}

	config, err := LoadProjectConfig(DefaultFile)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}

	return config, err
}

// ValidateProjectConfig validates the project configuration
func ValidateProjectConfig(config ProjectConfig) error {
	if strings.TrimSpace(config.ArtifactsDir) == "" {
		return errors.New("artifacts_dir is required")
	}

	if strings.TrimSpace(config.WorkflowsDir) == "" {
		return errors.New("workflows_dir is required")
	}

	known := false

	for _, bus := range supportedEventBuses {
		if config.EventBus == bus {
			known = true
		}
	}

	if !known {
		return fmt.Errorf("unknown event_bus '%s'", config.EventBus)
	}

	if config.EventBus == "kafka" && strings.TrimSpace(config.KafkaBrokers) == "" {
		return errors.New("kafka_brokers is required when event_bus is kafka")
	}

	return nil
}
