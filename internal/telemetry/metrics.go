// Package telemetry exposes the engine's operational counters over OpenTelemetry.
// The OTLP providers live in the otel subpackage; a nil *Metrics is a no-op so the
// engine runs unchanged when telemetry is disabled.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the engine's counters. All methods are nil-safe.
type Metrics struct {
	reuseDetected    metric.Int64Counter
	versionBumps     metric.Int64Counter
	cleanupRuns      metric.Int64Counter
	cleanupFailures  metric.Int64Counter
	anomalyCacheHits metric.Int64Counter
	anomalySkipped   metric.Int64Counter
}

// NewMetrics creates the engine counters on the given meter provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("authcore")
	var m Metrics
	var err error
	if m.reuseDetected, err = meter.Int64Counter("auth.reuse_detected",
		metric.WithDescription("Refresh token reuse events detected")); err != nil {
		return nil, err
	}
	if m.versionBumps, err = meter.Int64Counter("auth.version_bumps",
		metric.WithDescription("Principal session-version bumps")); err != nil {
		return nil, err
	}
	if m.cleanupRuns, err = meter.Int64Counter("auth.cleanup_runs",
		metric.WithDescription("Retention sweep executions")); err != nil {
		return nil, err
	}
	if m.cleanupFailures, err = meter.Int64Counter("auth.cleanup_failures",
		metric.WithDescription("Retention sweep failures")); err != nil {
		return nil, err
	}
	if m.anomalyCacheHits, err = meter.Int64Counter("auth.anomaly_cache_hits",
		metric.WithDescription("Anomaly scores served from cache")); err != nil {
		return nil, err
	}
	if m.anomalySkipped, err = meter.Int64Counter("auth.anomaly_skipped",
		metric.WithDescription("Anomaly scores skipped due to datastore errors")); err != nil {
		return nil, err
	}
	return &m, nil
}

// ReuseDetected counts one token reuse event.
func (m *Metrics) ReuseDetected(ctx context.Context) {
	if m != nil && m.reuseDetected != nil {
		m.reuseDetected.Add(ctx, 1)
	}
}

// VersionBump counts one principal version bump.
func (m *Metrics) VersionBump(ctx context.Context) {
	if m != nil && m.versionBumps != nil {
		m.versionBumps.Add(ctx, 1)
	}
}

// CleanupRun counts one sweep; failed sweeps also count toward cleanup_failures.
func (m *Metrics) CleanupRun(ctx context.Context, failed bool) {
	if m == nil {
		return
	}
	if m.cleanupRuns != nil {
		m.cleanupRuns.Add(ctx, 1)
	}
	if failed && m.cleanupFailures != nil {
		m.cleanupFailures.Add(ctx, 1)
	}
}

// AnomalyCacheHit counts one score served from cache.
func (m *Metrics) AnomalyCacheHit(ctx context.Context) {
	if m != nil && m.anomalyCacheHits != nil {
		m.anomalyCacheHits.Add(ctx, 1)
	}
}

// AnomalySkipped counts one score that fell back to the safe default.
func (m *Metrics) AnomalySkipped(ctx context.Context) {
	if m != nil && m.anomalySkipped != nil {
		m.anomalySkipped.Add(ctx, 1)
	}
}
