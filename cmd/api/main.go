package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telehealth-signaling/internal/audit"
	"telehealth-signaling/internal/auth"
	"telehealth-signaling/internal/config"
	"telehealth-signaling/internal/directory"
	"telehealth-signaling/internal/events"
	"telehealth-signaling/internal/httpapi"
	"telehealth-signaling/internal/janitor"
	"telehealth-signaling/internal/media"
	"telehealth-signaling/internal/signaling"
	"telehealth-signaling/pkg/logger"
	"telehealth-signaling/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	store, err := events.NewRedisStore(rdb, events.RedisStoreConfig{Retention: cfg.Signaling.EventRetention})
	if err != nil {
		log.Error("event store init failed", "err", err)
		os.Exit(1)
	}

	// Gate TTL outlives the ring timeout so the janitor ends a stale call
	// before the slot can leak back.
	gate, err := signaling.NewRedisCallGate(rdb, cfg.Signaling.RingingCallCap, 2*cfg.Signaling.RingTimeout)
	if err != nil {
		log.Error("call gate init failed", "err", err)
		os.Exit(1)
	}

	registry := signaling.NewPostgresRegistry(db)
	dir := directory.NewPostgresDirectory(db)
	auditor := audit.NewService(audit.NewPostgresRepo(db))

	signalSvc := signaling.NewService(registry, store, dir).
		WithGate(gate).
		WithAudit(auditor)

	tokenProvider, err := media.NewAgoraProvider(cfg.Agora, cfg.IsProduction())
	if err != nil {
		log.Error("media provider init failed", "err", err)
		os.Exit(1)
	}

	sweeper := janitor.New(janitor.Config{
		RingTimeout: cfg.Signaling.RingTimeout,
		Retention:   cfg.Signaling.EventRetention,
	}, signalSvc, store, registry, log)
	if err := sweeper.Start(); err != nil {
		log.Error("janitor init failed", "err", err)
		os.Exit(1)
	}
	defer sweeper.Stop()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, httpapi.Handlers{
		Auth:      authManager,
		Directory: dir,
		Signaling: signalSvc,
		Events:    store,
		Media:     tokenProvider,
	}, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
