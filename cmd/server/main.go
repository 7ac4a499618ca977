package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jxiee/campus-qa/internal/auth"
	"github.com/jxiee/campus-qa/internal/cache"
	"github.com/jxiee/campus-qa/internal/config"
	"github.com/jxiee/campus-qa/internal/generate"
	"github.com/jxiee/campus-qa/internal/models"
	"github.com/jxiee/campus-qa/internal/ratelimit"
	"github.com/jxiee/campus-qa/internal/repository"
	"github.com/jxiee/campus-qa/internal/retrieval"
	"github.com/jxiee/campus-qa/internal/services"
	"github.com/jxiee/campus-qa/internal/store"
	"github.com/jxiee/campus-qa/pkg/server"
)

func main() {
	var envFile = flag.String("env", "", "Optional .env file to load")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize database
	_ = os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	db.Event("info", "startup", "Server starting", map[string]interface{}{
		"http_addr":  cfg.HTTPAddr,
		"model_name": cfg.ModelName,
		"db_path":    cfg.DBPath,
	})

	repo := repository.NewSQLiteRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := seedDefaultUsers(ctx, repo.User()); err != nil {
		slog.Error("Failed to seed default users", "error", err)
		os.Exit(1)
	}

	// Optional NATS connection for knowledge base search and metrics
	var nc *nats.Conn
	if cfg.NatsURL != "" {
		nc, err = nats.Connect(cfg.NatsURL,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second))
		if err != nil {
			db.Event("error", "nats.failed", "NATS connection failed", map[string]interface{}{
				"nats_url": cfg.NatsURL,
				"error":    err.Error(),
			})
			slog.Warn("NATS unavailable, knowledge base search disabled", "error", err)
			nc = nil
		} else {
			defer nc.Close()
		}
	}

	// Initialize core components
	answerCache := cache.New(cfg.CacheMaxEntries, cfg.CacheDefaultTTL)
	limiter := ratelimit.NewLimiter(cfg.TokensPerMinute, cfg.BurstLimit, cfg.RetryAfter)
	go limiter.StartSweeper(ctx, cfg.BucketIdleSweep)

	sessions := auth.NewSessionStore(cfg.SessionTTL, cfg.SessionSliding, repo.Session())
	if err := sessions.Restore(ctx); err != nil {
		slog.Warn("Session restore failed", "error", err)
	}

	metrics := services.NewMetrics()
	history := services.NewHistoryService(repo.History(), cfg.HistoryFlushSize, cfg.HistoryFlushInterval, cfg.HistoryMaxRecords)
	defer history.Close()

	retriever := retrieval.NewNATSRetriever(nc, cfg.SearchSubject, cfg.SearchTimeout)
	generator := generate.NewOpenAIGenerator(cfg.ModelAPIBase, cfg.ModelAPIKey, cfg.ModelName, cfg.ModelTimeout)
	qa := services.NewQAService(answerCache, retriever, generator, history, metrics, cfg.WorkerSlots, cfg.SearchTopK)

	heartbeat := services.NewHeartbeat(nc, cfg.MetricsTopic, "campus-qa", metrics)
	heartbeat.Start(30 * time.Second)
	defer heartbeat.Stop()

	db.Event("info", "server.ready", "Server ready to accept requests", map[string]interface{}{
		"http_addr":  cfg.HTTPAddr,
		"model_name": cfg.ModelName,
		"nats_url":   cfg.NatsURL,
	})

	httpServer := server.NewServer(cfg, repo, answerCache, limiter, sessions, qa, history, metrics)

	go func() {
		if err := httpServer.Start(ctx); err != nil {
			db.Event("error", "http.failed", "HTTP server failed", map[string]interface{}{
				"error": err.Error(),
			})
			slog.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	cancel()
}

// seedDefaultUsers creates the initial accounts on an empty database so a
// fresh deployment is immediately usable.
func seedDefaultUsers(ctx context.Context, users repository.UserRepository) error {
	count, err := users.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	defaults := []struct {
		username, password, role string
	}{
		{"student1", "password123", "student"},
		{"teacher1", "teacher123", "teacher"},
		{"admin", "admin123", "admin"},
	}
	for _, d := range defaults {
		hash, err := auth.HashPassword(d.password)
		if err != nil {
			return err
		}
		user := &models.User{
			Username:  d.username,
			Password:  hash,
			Role:      d.role,
			CreatedAt: time.Now(),
		}
		if err := users.CreateUser(ctx, user); err != nil {
			return err
		}
	}
	slog.Info("Seeded default users", "count", len(defaults))
	return nil
}
