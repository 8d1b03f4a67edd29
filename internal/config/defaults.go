package config

import "time"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Listen:   ListenConfig{Network: "unix"},
		Protocol: ProtocolConfig{Version: "5.1"},
		Auth: AuthConfig{
			Enabled:            true,
			CredentialLifetime: 12 * time.Hour,
		},
		Admin:  AdminConfig{Address: "127.0.0.1:7475", RatePerMinute: 120},
		Health: HealthConfig{Address: "127.0.0.1:7476"},
		Log:    LogConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			Exporter:     "otlphttp",
			Endpoint:     "localhost:4318",
			SamplingRate: 1,
		},
		Limits: LimitsConfig{
			MaxConnections:  256,
			AcceptPerSecond: 100,
			QueueDepth:      64,
		},
	}
}
