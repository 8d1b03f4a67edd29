package config

import "time"

// Warning is a non-fatal configuration issue shown to operators.
type Warning struct {
	Message string
}

// Config is the full runtime configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Protocol  ProtocolConfig  `yaml:"protocol"`
	Auth      AuthConfig      `yaml:"auth"`
	Admin     AdminConfig     `yaml:"admin"`
	Health    HealthConfig    `yaml:"health"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Limits    LimitsConfig    `yaml:"limits"`
}

// ListenConfig is where the session protocol is served.
type ListenConfig struct {
	// Network is "unix" or "tcp".
	Network string `yaml:"network"`
	// Address is a socket path for unix; empty resolves to the runtime dir.
	Address string `yaml:"address"`
}

type ProtocolConfig struct {
	Version string `yaml:"version"`
}

type AuthConfig struct {
	Enabled            bool          `yaml:"enabled"`
	CredentialLifetime time.Duration `yaml:"credential_lifetime"`
	Users              []UserConfig  `yaml:"users"`
}

type UserConfig struct {
	Name               string `yaml:"name"`
	PasswordHash       string `yaml:"password_hash"`
	CredentialsExpired bool   `yaml:"credentials_expired"`
}

// AdminConfig controls the HTTP admin API. An empty address disables it.
type AdminConfig struct {
	Address       string `yaml:"address"`
	RatePerMinute int    `yaml:"rate_per_minute"`
}

// HealthConfig controls the gRPC health service. An empty address disables it.
type HealthConfig struct {
	Address string `yaml:"address"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

type LimitsConfig struct {
	MaxConnections  int     `yaml:"max_connections"`
	AcceptPerSecond float64 `yaml:"accept_per_second"`
	QueueDepth      int     `yaml:"queue_depth"`
}
