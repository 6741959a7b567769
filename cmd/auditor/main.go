// Command auditor archives guard alerts. It subscribes to the suspicious
// and blocked subjects on NATS and writes every alert to PostgreSQL, giving
// moderators a history that outlives the capped client-side audit log.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/BlediN/hobby-hub/internal/alerts"
	"github.com/BlediN/hobby-hub/internal/archive"
	"github.com/BlediN/hobby-hub/internal/config"
)

func main() {
	log.Println("Starting HobbyHub auditor...")

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if cfg.DatabaseURL == "" {
		log.Fatalf("DATABASE_URL is required")
	}

	migrationsPath := "file://migrations"
	if v := os.Getenv("MIGRATIONS_PATH"); v != "" {
		migrationsPath = v
	}
	if err := runMigrations(migrationsPath, cfg.DatabaseURL); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	// Postgres setup.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open Postgres: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(ctx); err != nil {
		cancel()
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	cancel()
	store := archive.NewStore(db)

	// NATS setup.
	natsConfig := alerts.DefaultConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "hobbyhub-auditor"

	natsClient, err := alerts.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	archiveAlert := func(kind string) func(alerts.Alert) {
		return func(alert alerts.Alert) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Insert(ctx, kind, alert); err != nil {
				log.Printf("[auditor] archive %s alert fp=%s: %v", kind, alert.Fingerprint, err)
				return
			}
			log.Printf("[auditor] archived %s fp=%s reason=%q", kind, alert.Fingerprint, alert.Reason)
		}
	}

	if _, err := natsClient.SubscribeSuspicious(archiveAlert("suspicious")); err != nil {
		log.Fatalf("failed to subscribe to suspicious alerts: %v", err)
	}
	if _, err := natsClient.SubscribeBlocked(archiveAlert("blocked")); err != nil {
		log.Fatalf("failed to subscribe to block alerts: %v", err)
	}

	log.Printf("HobbyHub auditor running")
	log.Printf("  nats_url:     %s", cfg.NATSURL)
	log.Printf("  database_url: %s", redactURL(cfg.DatabaseURL))

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	natsClient.Close()
	db.Close()
}

// runMigrations brings the schema up to date. An already current schema is
// not an error.
func runMigrations(sourceURL, databaseURL string) error {
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	log.Printf("[auditor] schema up to date")
	return nil
}

// redactURL strips credentials from a connection URL before logging it.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable)"
	}
	return u.Redacted()
}
