// seed inserts development sample data for local testing: one demo principal
// with an active session and a root refresh token. Idempotent: skips inserts if
// the demo principal already has an active session. The raw refresh token is
// printed once; it is not recoverable afterwards.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"authcore/backend/internal/authctx"
	"authcore/backend/internal/cache"
	"authcore/backend/internal/config"
	"authcore/backend/internal/db"
	"authcore/backend/internal/session"
	sessionrepo "authcore/backend/internal/session/repository"
	"authcore/backend/internal/tokenchain"
	tokenrepo "authcore/backend/internal/tokenchain/repository"
)

const (
	seedTenantID = "tenant-dev"
	seedUserID   = "user-dev"
	seedDevice   = "seed-device"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("seed: DATABASE_URL is required")
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("seed: db: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sc := authctx.Scope{TenantID: seedTenantID, UserID: seedUserID}
	sessions := sessionrepo.NewPostgresRepository(conn)

	lb, err := sessions.LookbackByUser(ctx, sc.TenantID, sc.UserID, 1)
	if err != nil {
		log.Fatalf("seed: lookback: %v", err)
	}
	if lb.ActiveCount > 0 {
		fmt.Println("seed: demo principal already has an active session; nothing to do")
		return
	}

	throttle := cache.New[struct{}](1024)
	registry := session.NewRegistry(sessions, throttle, cfg.SessionTouchInterval(), cfg.RefreshTTL(), nil, nil)
	s, err := registry.Create(ctx, sc, 0, seedDevice, session.Origin{IP: "127.0.0.1", Country: "US", City: "Portland"})
	if err != nil {
		log.Fatalf("seed: create session: %v", err)
	}

	tokens := tokenchain.NewStore(tokenrepo.NewPostgresRepository(conn), nil, nil, nil, cfg.RefreshTTL())
	issued, err := tokens.IssueRoot(ctx, sc, seedDevice)
	if err != nil {
		log.Fatalf("seed: issue refresh token: %v", err)
	}

	fmt.Printf("seed: tenant=%s user=%s\n", sc.TenantID, sc.UserID)
	fmt.Printf("seed: session id=%s version=%d\n", s.ID, s.SessionVersion)
	fmt.Printf("seed: refresh token (save it now): %s\n", issued.Raw)
}
