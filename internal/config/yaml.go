package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// mergeYAMLFile decodes the YAML file at path over cfg. Keys absent from the
// file keep their current values. A missing file is not an error.
func mergeYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read YAML config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// LoadYAMLConfig loads configuration from a YAML file on top of the defaults.
// Returns the defaults if the file doesn't exist.
func LoadYAMLConfig(path string) (*Config, error) {
	cfg := Default()
	if err := mergeYAMLFile(cfg, path); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}
