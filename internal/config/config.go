package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	AllowAutoCreateLogs bool   `json:"allowAutoCreateLogs" yaml:"allowAutoCreateLogs"`
	LogNameRegex        string `json:"logNameRegex" yaml:"logNameRegex"`
	MaxLogs             int    `json:"maxLogs" yaml:"maxLogs"`
	Limits              Limits `json:"limits" yaml:"limits"`
}

// Limits captures per-entry baseline limits enforced on append.
type Limits struct {
	MaxFieldsPerEntry int `json:"maxFieldsPerEntry" yaml:"maxFieldsPerEntry"`
	MaxKeyBytes       int `json:"maxKeyBytes" yaml:"maxKeyBytes"`
	MaxValueBytes     int `json:"maxValueBytes" yaml:"maxValueBytes"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		AllowAutoCreateLogs: true,
		LogNameRegex:        "[a-z0-9-_.]{1,128}",
		Limits: Limits{
			MaxFieldsPerEntry: 64,
			MaxKeyBytes:       256,
			MaxValueBytes:     1 << 20,
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	ext := filepath.Ext(path)
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}
