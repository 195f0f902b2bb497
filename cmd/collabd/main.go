package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"propdesk/collab/internal/audit"
	"propdesk/collab/internal/checkpoint"
	"propdesk/collab/internal/collab"
	"propdesk/collab/internal/config"
	"propdesk/collab/internal/server"
	"propdesk/collab/internal/transport"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	var store checkpoint.Store
	switch {
	case strings.TrimSpace(cfg.RedisURL) != "":
		log.Printf("Using Redis for session checkpoints")
		redisStore, err := checkpoint.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		store = redisStore
	case strings.TrimSpace(cfg.DatabaseURL) != "":
		log.Printf("Using PostgreSQL for session checkpoints")
		pgStore, err := checkpoint.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		store = pgStore
	default:
		log.Printf("No checkpoint backend configured, state is in-memory only")
		store = checkpoint.NewMemoryStore()
	}
	defer store.Close()

	hub := transport.NewHub(log.Default())
	defer hub.Close()

	var channel transport.Channel = hub
	if cfg.Transport == "redis" {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Fatalf("COLLAB_TRANSPORT=redis requires REDIS_URL")
		}
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis transport failed: %v", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		redisChannel := transport.NewRedisChannel(client, "collab:updates", log.Default())
		channel = transport.NewFanout(hub, redisChannel)
	}

	engine := collab.New(collab.Deps{
		Store:     store,
		Transport: channel,
		Audit:     audit.NewLogSink(log.Default()),
	})
	defer engine.Close()

	srv := server.New(engine, hub, store, []byte(cfg.JWTSecret), cfg.TokenTTL, cfg.CORSOrigin, log.Default())
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Collab engine listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
