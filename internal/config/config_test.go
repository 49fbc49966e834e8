package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JWTIssuer != "authcore" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "authcore")
	}
	if cfg.JWTAudience != "authcore-api" {
		t.Errorf("JWTAudience = %q, want %q", cfg.JWTAudience, "authcore-api")
	}
	if got := cfg.AccessTTL(); got != 15*time.Minute {
		t.Errorf("AccessTTL = %v, want 15m", got)
	}
	if got := cfg.RefreshTTL(); got != 720*time.Hour {
		t.Errorf("RefreshTTL = %v, want 720h", got)
	}
	if got := cfg.SessionTouchInterval(); got != 60*time.Second {
		t.Errorf("SessionTouchInterval = %v, want 60s", got)
	}
	if got := cfg.AnomalyCacheTTL(); got != 60*time.Second {
		t.Errorf("AnomalyCacheTTL = %v, want 60s", got)
	}
	if cfg.AnomalyLookback != 12 {
		t.Errorf("AnomalyLookback = %d, want 12", cfg.AnomalyLookback)
	}
	if cfg.AnomalySessionThreshold != 5 {
		t.Errorf("AnomalySessionThreshold = %d, want 5", cfg.AnomalySessionThreshold)
	}
	if got := cfg.StepUpChallengeTTL(); got != 5*time.Minute {
		t.Errorf("StepUpChallengeTTL = %v, want 5m", got)
	}
	if got := cfg.StepUpFreshness(); got != 10*time.Minute {
		t.Errorf("StepUpFreshness = %v, want 10m", got)
	}
	if got := cfg.CleanupEvery(); got != 6*time.Hour {
		t.Errorf("CleanupEvery = %v, want 6h", got)
	}
	if got := cfg.RetentionRevoked(); got != 720*time.Hour {
		t.Errorf("RetentionRevoked = %v, want 720h (30d)", got)
	}
	if got := cfg.RetentionReuseEvidence(); got != 2160*time.Hour {
		t.Errorf("RetentionReuseEvidence = %v, want 2160h (90d)", got)
	}
	if cfg.AlertKafkaTopic != "authcore-security-alerts" {
		t.Errorf("AlertKafkaTopic = %q", cfg.AlertKafkaTopic)
	}
	if got := cfg.AlertKafkaBrokersList(); got != nil {
		t.Errorf("AlertKafkaBrokersList with no brokers = %v, want nil", got)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("JWT_ISSUER", "custom-issuer")
	os.Setenv("REFRESH_TTL", "336h")
	os.Setenv("ANOMALY_LOOKBACK", "20")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "custom-issuer")
	}
	if got := cfg.RefreshTTL(); got != 336*time.Hour {
		t.Errorf("RefreshTTL = %v, want 336h", got)
	}
	if cfg.AnomalyLookback != 20 {
		t.Errorf("AnomalyLookback = %d, want 20", cfg.AnomalyLookback)
	}
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	os.Clearenv()
	os.Setenv("REFRESH_TTL", "not-a-duration")
	os.Setenv("CLEANUP_EVERY", "-1h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.RefreshTTL(); got != 720*time.Hour {
		t.Errorf("invalid REFRESH_TTL: got %v, want 720h default", got)
	}
	if got := cfg.CleanupEvery(); got != 6*time.Hour {
		t.Errorf("negative CLEANUP_EVERY: got %v, want 6h default", got)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"zero lookback", map[string]string{"ANOMALY_LOOKBACK": "0"}},
		{"negative fanout threshold", map[string]string{"ANOMALY_ACTIVE_SESSION_THRESHOLD": "-1"}},
		{"zero cache max", map[string]string{"ANOMALY_CACHE_MAX": "0"}},
		{"reuse window shorter than revoked", map[string]string{
			"RETENTION_REVOKED":        "2160h",
			"RETENTION_REUSE_EVIDENCE": "720h",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tc.env {
				os.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Load should reject the configuration")
			}
		})
	}
}

func TestAlertKafkaBrokersList(t *testing.T) {
	cfg := &Config{AlertKafkaBrokers: "broker-1:9092, broker-2:9092 ,,"}
	got := cfg.AlertKafkaBrokersList()
	if len(got) != 2 || got[0] != "broker-1:9092" || got[1] != "broker-2:9092" {
		t.Errorf("AlertKafkaBrokersList = %v", got)
	}
}
