// Worker runs the retention sweep on fixed clock boundaries. Set DATABASE_URL;
// CLEANUP_EVERY, RETENTION_REVOKED, and RETENTION_REUSE_EVIDENCE tune the cadence
// and windows. KAFKA_BROKERS enables alert mirroring, OTEL_EXPORTER_OTLP_ENDPOINT
// enables telemetry export; both are optional.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"authcore/backend/internal/audit"
	auditrepo "authcore/backend/internal/audit/repository"
	"authcore/backend/internal/cleanup"
	"authcore/backend/internal/config"
	"authcore/backend/internal/db"
	stepuprepo "authcore/backend/internal/stepup/repository"
	"authcore/backend/internal/telemetry"
	"authcore/backend/internal/telemetry/otel"
	tokenrepo "authcore/backend/internal/tokenchain/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("worker: DATABASE_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("worker: shutting down...")
		cancel()
	}()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "authcore-worker", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("worker: telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	metrics, err := telemetry.NewMetrics(providers.MeterProvider)
	if err != nil {
		log.Fatalf("worker: metrics: %v", err)
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("worker: db: %v", err)
	}
	defer conn.Close()

	auditLog := audit.NewLogger(auditrepo.NewPostgresRepository(conn), nil)
	sweeper := cleanup.NewSweeper(
		tokenrepo.NewPostgresRepository(conn),
		stepuprepo.NewPostgresRepository(conn),
		cfg.RetentionRevoked(),
		cfg.RetentionReuseEvidence(),
		auditLog,
	)
	job := cleanup.NewJob(sweeper, cfg.CleanupEvery(), metrics)

	log.Printf("worker: sweeping every %s (revoked retention %s, reuse evidence %s)",
		cfg.CleanupEvery(), cfg.RetentionRevoked(), cfg.RetentionReuseEvidence())
	job.Start(ctx)
	log.Println("worker: stopped")
}
