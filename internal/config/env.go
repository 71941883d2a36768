package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnv returns the environment variable value, or defaultValue when the
// variable is unset or empty.
func GetEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

// GetIntEnv parses an integer environment variable. Unset, empty, or
// unparseable values fall back to defaultValue.
func GetIntEnv(key string, defaultValue int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// GetDurationEnv parses a duration environment variable in Go syntax
// ("10s", "2m"). Falls back to defaultValue on unset or unparseable input.
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// GetBoolEnv parses a boolean environment variable, accepting the usual
// strconv spellings (1/0, t/f, true/false). Falls back to defaultValue on
// unset or unparseable input.
func GetBoolEnv(key string, defaultValue bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// GetSecretFile reads a secret from a mounted file, the usual way an
// auth token reaches an agent or the ingest service in a container
// deployment. Returns "" when path is empty or unreadable.
func GetSecretFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
