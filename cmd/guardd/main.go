// Command guardd serves the abuse-detection API for the hobby board: the
// pre-submission check, the session and role endpoints, and the admin review
// surface, plus Prometheus metrics and a WebSocket feed of new audit events.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BlediN/hobby-hub/internal/alerts"
	"github.com/BlediN/hobby-hub/internal/audit"
	"github.com/BlediN/hobby-hub/internal/blocklist"
	"github.com/BlediN/hobby-hub/internal/classifier"
	"github.com/BlediN/hobby-hub/internal/config"
	"github.com/BlediN/hobby-hub/internal/guard"
	"github.com/BlediN/hobby-hub/internal/metrics"
	"github.com/BlediN/hobby-hub/internal/ratelimit"
	"github.com/BlediN/hobby-hub/internal/storage"
	"github.com/BlediN/hobby-hub/internal/stream"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SessionTTL = d
		}
	}

	// --- Redis ---
	durable, err := storage.NewRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	defer durable.Close()
	tabs := durable.WithTTL(cfg.SessionTTL)

	// --- NATS ---
	natsConfig := alerts.DefaultConfig()
	natsConfig.URL = cfg.NATSURL

	var publisher alerts.Publisher = alerts.Noop{}
	natsClient, err := alerts.NewClient(natsConfig)
	if err != nil {
		// Alerting is best effort; the guard runs without it.
		log.Printf("NATS unavailable, alerts disabled: %v", err)
	} else {
		publisher = natsClient
		defer natsClient.Close()
	}

	// --- Guard pipeline ---
	hub := stream.NewHub()
	defer hub.Close()

	blocks := blocklist.NewRegistry(durable)
	auditLog := audit.NewLog(durable, blocks)
	limiter := ratelimit.NewLimiter(durable)
	cls := classifier.NewWithKeywords(cfg.Guard.SpamKeywords)

	g := guard.New(cls, limiter, blocks, auditLog, durable, teePublisher{
		next: publisher,
		hub:  hub,
	})

	srv := &api{
		cfg:      cfg,
		guard:    g,
		blocks:   blocks,
		auditLog: auditLog,
		hub:      hub,
		durable:  durable,
		tabs:     tabs,
		rulePost: ratelimit.Rule{
			Key:         ratelimit.RulePost.Key,
			MinInterval: cfg.Guard.PostInterval,
		},
		ruleComment: ratelimit.Rule{
			Key:         ratelimit.RuleComment.Key,
			MinInterval: cfg.Guard.CommentInterval,
		},
	}

	mux := http.NewServeMux()
	srv.routes(mux)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Printf("HobbyHub guard service starting")
	log.Printf("  listen_addr:      %s", cfg.ListenAddr)
	log.Printf("  redis_addr:       %s", cfg.RedisAddr)
	log.Printf("  nats_url:         %s", cfg.NATSURL)
	log.Printf("  session_ttl:      %s", cfg.SessionTTL)
	log.Printf("  post_interval:    %s", cfg.Guard.PostInterval)
	log.Printf("  comment_interval: %s", cfg.Guard.CommentInterval)
	log.Printf("  block_duration:   %s", cfg.Guard.BlockDuration)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
	log.Printf("guard service stopped")
}

// teePublisher forwards alerts to the bus and mirrors them onto the audit
// stream so connected dashboards see events as they happen.
type teePublisher struct {
	next alerts.Publisher
	hub  *stream.Hub
}

func (t teePublisher) PublishSuspicious(alert alerts.Alert) {
	t.next.PublishSuspicious(alert)
	t.hub.Broadcast(map[string]any{"kind": "suspicious", "alert": alert})
}

func (t teePublisher) PublishBlocked(alert alerts.Alert) {
	t.next.PublishBlocked(alert)
	t.hub.Broadcast(map[string]any{"kind": "blocked", "alert": alert})
}
