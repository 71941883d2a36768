package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Settings mirrors the optional JSON settings file shipped next to the
// agent binary. Pointer fields distinguish an absent key from a zero value
// so a settings file can override some knobs and leave the rest alone.
type Settings struct {
	APIBaseURL        *string `json:"api_base_url"`
	EventPath         *string `json:"event_path"`
	SendTimeout       *string `json:"send_timeout"`
	MaxAttempts       *int    `json:"max_attempts"`
	RetryBackoffMS    *int    `json:"retry_backoff_ms"`
	MaxBackoffMS      *int    `json:"max_backoff_ms"`
	AuthMode          *string `json:"auth_mode"`
	AuthValue         *string `json:"auth_value"`
	AuthHeader        *string `json:"auth_header"`
	MaxQueueSize      *int    `json:"max_queue_size"`
	BatchSize         *int    `json:"batch_size"`
	HeartbeatInterval *string `json:"heartbeat_interval"`
	SendOnProduce     *bool   `json:"send_on_produce"`
	ServerLogin       *string `json:"server_login"`
	ProducerVersion   *string `json:"producer_version"`
}

// LoadSettings reads the settings file at path. A missing file is not an
// error (the agent runs on env and defaults alone); a malformed one is.
func LoadSettings(path string) (*Settings, error) {
	if path == "" {
		return &Settings{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return &s, nil
}

// Resolution order for every knob: environment variable, then settings
// file, then built-in default.

func resolveString(envKey string, fileVal *string, defaultValue string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	if fileVal != nil && *fileVal != "" {
		return *fileVal
	}
	return defaultValue
}

func resolveInt(envKey string, fileVal *int, defaultValue int) int {
	if os.Getenv(envKey) != "" {
		return GetIntEnv(envKey, defaultValue)
	}
	if fileVal != nil {
		return *fileVal
	}
	return defaultValue
}

func resolveDuration(envKey string, fileVal *string, defaultValue time.Duration) time.Duration {
	if os.Getenv(envKey) != "" {
		return GetDurationEnv(envKey, defaultValue)
	}
	if fileVal != nil && *fileVal != "" {
		if d, err := time.ParseDuration(*fileVal); err == nil {
			return d
		}
	}
	return defaultValue
}

func resolveBool(envKey string, fileVal *bool, defaultValue bool) bool {
	if os.Getenv(envKey) != "" {
		return GetBoolEnv(envKey, defaultValue)
	}
	if fileVal != nil {
		return *fileVal
	}
	return defaultValue
}
