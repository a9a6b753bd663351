package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and parses the casement.yaml manifest at path. Environment
// references are expanded before the YAML is parsed, so ${VAR} works
// inside any field.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("manifest not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &cfg, nil
}
