// Package config provides configuration loading for the relay agent and the
// ingest service. Every knob resolves environment first, then the optional
// JSON settings file, then a built-in default.
package config

import (
	"time"
)

// AgentConfig holds configuration for the relay agent.
type AgentConfig struct {
	// Delivery target.
	APIBaseURL  string
	EventPath   string
	SendTimeout time.Duration

	// Retry behavior.
	MaxAttempts  int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration

	// Authentication against the ingest service.
	AuthMode   string
	AuthValue  string
	AuthHeader string

	// Local queue.
	MaxQueueSize  int
	BatchSize     int
	SendOnProduce bool

	// Scheduling.
	TickInterval      time.Duration
	HeartbeatInterval time.Duration

	// Producer identity sent on every envelope.
	ServerLogin     string
	ProducerVersion string

	// Local HTTP surface (intake + health + metrics).
	IntakePort      string
	MetricsPort     string
	ShutdownTimeout time.Duration
}

// LoadAgentConfig loads agent configuration. The settings file path comes
// from SETTINGS_FILE; a missing file means env and defaults only.
func LoadAgentConfig() (*AgentConfig, error) {
	s, err := LoadSettings(GetEnv("SETTINGS_FILE", ""))
	if err != nil {
		return nil, err
	}

	authValue := GetSecretFile(GetEnv("AUTH_VALUE_FILE", ""))
	if authValue == "" {
		authValue = resolveString("AUTH_VALUE", s.AuthValue, "")
	}

	return &AgentConfig{
		APIBaseURL:  resolveString("API_BASE_URL", s.APIBaseURL, "http://localhost:8080"),
		EventPath:   resolveString("EVENT_PATH", s.EventPath, "/v1/events"),
		SendTimeout: resolveDuration("SEND_TIMEOUT", s.SendTimeout, 10*time.Second),

		MaxAttempts:  resolveInt("MAX_ATTEMPTS", s.MaxAttempts, 5),
		RetryBackoff: time.Duration(resolveInt("RETRY_BACKOFF_MS", s.RetryBackoffMS, 1000)) * time.Millisecond,
		MaxBackoff:   time.Duration(resolveInt("MAX_BACKOFF_MS", s.MaxBackoffMS, 30000)) * time.Millisecond,

		AuthMode:   resolveString("AUTH_MODE", s.AuthMode, "none"),
		AuthValue:  authValue,
		AuthHeader: resolveString("AUTH_HEADER", s.AuthHeader, ""),

		MaxQueueSize:  resolveInt("MAX_QUEUE_SIZE", s.MaxQueueSize, 1000),
		BatchSize:     resolveInt("BATCH_SIZE", s.BatchSize, 25),
		SendOnProduce: resolveBool("SEND_ON_PRODUCE", s.SendOnProduce, true),

		TickInterval:      GetDurationEnv("TICK_INTERVAL", 1*time.Second),
		HeartbeatInterval: resolveDuration("HEARTBEAT_INTERVAL", s.HeartbeatInterval, 60*time.Second),

		ServerLogin:     resolveString("SERVER_LOGIN", s.ServerLogin, ""),
		ProducerVersion: resolveString("PRODUCER_VERSION", s.ProducerVersion, "dev"),

		IntakePort:      GetEnv("INTAKE_PORT", "8081"),
		MetricsPort:     GetEnv("METRICS_PORT", "9091"),
		ShutdownTimeout: GetDurationEnv("SHUTDOWN_TIMEOUT", 15*time.Second),
	}, nil
}

// ServiceConfig holds configuration for the ingest service.
type ServiceConfig struct {
	Port        string
	MetricsPort string

	DatabasePath string

	// Authentication expected from producers.
	AuthMode   string
	AuthValue  string
	AuthHeader string

	// Producers older than this are reported offline.
	OnlineThreshold time.Duration

	ShutdownDrainWait time.Duration
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	authValue := GetSecretFile(GetEnv("AUTH_VALUE_FILE", ""))
	if authValue == "" {
		authValue = GetEnv("AUTH_VALUE", "")
	}

	return &ServiceConfig{
		Port:        GetEnv("PORT", "8080"),
		MetricsPort: GetEnv("METRICS_PORT", "9090"),

		DatabasePath: GetEnv("DATABASE_PATH", "telemetry.db"),

		AuthMode:   GetEnv("AUTH_MODE", "none"),
		AuthValue:  authValue,
		AuthHeader: GetEnv("AUTH_HEADER", ""),

		OnlineThreshold:   GetDurationEnv("ONLINE_THRESHOLD", 2*time.Minute),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
	}
}
