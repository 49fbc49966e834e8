// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; signs access tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "authcore").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "authcore-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// RefreshTTLRaw is the refresh token chain-link lifetime (e.g. "720h" = 30d).
	RefreshTTLRaw string `mapstructure:"REFRESH_TTL"`

	// SessionTouchIntervalRaw is the minimum gap between last-seen writes per session (default 60s).
	SessionTouchIntervalRaw string `mapstructure:"SESSION_TOUCH_INTERVAL"`

	// AnomalyCacheTTLRaw is how long a computed anomaly score is reused (default 60s).
	AnomalyCacheTTLRaw string `mapstructure:"ANOMALY_CACHE_TTL"`
	// AnomalyCacheMax is the score cache size ceiling; the cache hard-clears past it.
	AnomalyCacheMax int `mapstructure:"ANOMALY_CACHE_MAX"`
	// AnomalyLookback is how many recent sessions feed the known device/country/city sets.
	AnomalyLookback int `mapstructure:"ANOMALY_LOOKBACK"`
	// AnomalySessionThreshold is the active-session count at which fan-out scores (default 5).
	AnomalySessionThreshold int `mapstructure:"ANOMALY_ACTIVE_SESSION_THRESHOLD"`

	// StepUpChallengeTTLRaw is how long an OTP challenge accepts codes (default 5m).
	StepUpChallengeTTLRaw string `mapstructure:"STEPUP_CHALLENGE_TTL"`
	// StepUpFreshnessRaw is the default window during which a past verification authorizes
	// a new sensitive action (default 600s). Callers may pass their own window.
	StepUpFreshnessRaw string `mapstructure:"STEPUP_FRESHNESS_WINDOW"`
	// StepUpIssuer is the issuer shown in authenticator apps for enrollment URIs.
	StepUpIssuer string `mapstructure:"STEPUP_ISSUER"`

	// CleanupEveryRaw is the fixed clock cadence of the retention sweep (default 6h).
	CleanupEveryRaw string `mapstructure:"CLEANUP_EVERY"`
	// RetentionRevokedRaw is how long revoked tokens are kept before hard delete (default 720h = 30d).
	RetentionRevokedRaw string `mapstructure:"RETENTION_REVOKED"`
	// RetentionReuseEvidenceRaw is how long reuse-detected tokens are kept (default 2160h = 90d).
	RetentionReuseEvidenceRaw string `mapstructure:"RETENTION_REUSE_EVIDENCE"`

	// AlertKafkaBrokers is a comma-separated list of Kafka broker addresses; empty disables publishing.
	AlertKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AlertKafkaTopic is the Kafka topic for security alerts (default authcore-security-alerts).
	AlertKafkaTopic string `mapstructure:"ALERT_KAFKA_TOPIC"`

	// OTLPEndpoint is the OTLP gRPC endpoint for telemetry; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "authcore")
	v.SetDefault("JWT_AUDIENCE", "authcore-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("REFRESH_TTL", "720h") // 30d
	v.SetDefault("SESSION_TOUCH_INTERVAL", "60s")
	v.SetDefault("ANOMALY_CACHE_TTL", "60s")
	v.SetDefault("ANOMALY_CACHE_MAX", 10000)
	v.SetDefault("ANOMALY_LOOKBACK", 12)
	v.SetDefault("ANOMALY_ACTIVE_SESSION_THRESHOLD", 5)
	v.SetDefault("STEPUP_CHALLENGE_TTL", "5m")
	v.SetDefault("STEPUP_FRESHNESS_WINDOW", "600s")
	v.SetDefault("STEPUP_ISSUER", "authcore")
	v.SetDefault("CLEANUP_EVERY", "6h")
	v.SetDefault("RETENTION_REVOKED", "720h")
	v.SetDefault("RETENTION_REUSE_EVIDENCE", "2160h")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("ALERT_KAFKA_TOPIC", "authcore-security-alerts")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.AnomalyLookback <= 0 {
		return nil, errors.New("config: ANOMALY_LOOKBACK must be positive")
	}
	if cfg.AnomalySessionThreshold <= 0 {
		return nil, errors.New("config: ANOMALY_ACTIVE_SESSION_THRESHOLD must be positive")
	}
	if cfg.AnomalyCacheMax <= 0 {
		return nil, errors.New("config: ANOMALY_CACHE_MAX must be positive")
	}
	if cfg.RetentionReuseEvidence() < cfg.RetentionRevoked() {
		return nil, errors.New("config: RETENTION_REUSE_EVIDENCE must not be shorter than RETENTION_REVOKED")
	}

	return &cfg, nil
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// AccessTTL parses JWT_ACCESS_TTL. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration { return durationOr(c.JWTAccessTTL, 15*time.Minute) }

// RefreshTTL parses REFRESH_TTL. Returns 720h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration { return durationOr(c.RefreshTTLRaw, 720*time.Hour) }

// SessionTouchInterval parses SESSION_TOUCH_INTERVAL. Returns 60s if unset or invalid.
func (c *Config) SessionTouchInterval() time.Duration {
	return durationOr(c.SessionTouchIntervalRaw, 60*time.Second)
}

// AnomalyCacheTTL parses ANOMALY_CACHE_TTL. Returns 60s if unset or invalid.
func (c *Config) AnomalyCacheTTL() time.Duration {
	return durationOr(c.AnomalyCacheTTLRaw, 60*time.Second)
}

// StepUpChallengeTTL parses STEPUP_CHALLENGE_TTL. Returns 5m if unset or invalid.
func (c *Config) StepUpChallengeTTL() time.Duration {
	return durationOr(c.StepUpChallengeTTLRaw, 5*time.Minute)
}

// StepUpFreshness parses STEPUP_FRESHNESS_WINDOW. Returns 600s if unset or invalid.
func (c *Config) StepUpFreshness() time.Duration {
	return durationOr(c.StepUpFreshnessRaw, 600*time.Second)
}

// CleanupEvery parses CLEANUP_EVERY. Returns 6h if unset or invalid.
func (c *Config) CleanupEvery() time.Duration { return durationOr(c.CleanupEveryRaw, 6*time.Hour) }

// RetentionRevoked parses RETENTION_REVOKED. Returns 720h if unset or invalid.
func (c *Config) RetentionRevoked() time.Duration {
	return durationOr(c.RetentionRevokedRaw, 720*time.Hour)
}

// RetentionReuseEvidence parses RETENTION_REUSE_EVIDENCE. Returns 2160h if unset or invalid.
func (c *Config) RetentionReuseEvidence() time.Duration {
	return durationOr(c.RetentionReuseEvidenceRaw, 2160*time.Hour)
}

// AlertKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if alert publishing is enabled (non-empty list) and to create the producer.
func (c *Config) AlertKafkaBrokersList() []string {
	if c == nil || c.AlertKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.AlertKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
