package config

import (
	"os"
	"strconv"
)

// FromEnv overlays EVPIPE_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("EVPIPE_ALLOW_AUTO_CREATE_LOGS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AllowAutoCreateLogs = b
		}
	}
	if v := os.Getenv("EVPIPE_LOG_NAME_REGEX"); v != "" {
		cfg.LogNameRegex = v
	}
	if v := os.Getenv("EVPIPE_MAX_LOGS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxLogs = n
		}
	}
	if v := os.Getenv("EVPIPE_MAX_FIELDS_PER_ENTRY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MaxFieldsPerEntry = n
		}
	}
	if v := os.Getenv("EVPIPE_MAX_KEY_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MaxKeyBytes = n
		}
	}
	if v := os.Getenv("EVPIPE_MAX_VALUE_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MaxValueBytes = n
		}
	}
}
