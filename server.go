package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	apirest "github.com/Fixen7/lifequest-app/api/rest"
	"github.com/Fixen7/lifequest-app/api/sse"
	"github.com/Fixen7/lifequest-app/audit"
	"github.com/Fixen7/lifequest-app/cache"
	"github.com/Fixen7/lifequest-app/config"
	dbadapter "github.com/Fixen7/lifequest-app/db"
	"github.com/Fixen7/lifequest-app/docstore"
	"github.com/Fixen7/lifequest-app/game/daily"
	"github.com/Fixen7/lifequest-app/game/player"
	"github.com/Fixen7/lifequest-app/genai"
	mw "github.com/Fixen7/lifequest-app/middleware"
	"github.com/Fixen7/lifequest-app/model"
	"github.com/Fixen7/lifequest-app/scheduler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}
	if cfg.Security.JWTSecret == "" || cfg.Security.JWTSecret == "change-me" {
		logger.Warn("security.jwt_secret is unset or the sample value")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	c, err := cache.NewCache(cfg.Cache)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	pubsub, err := cache.NewPubSub(cfg.Cache)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Document store ----
	docs, err := docstore.New(cfg.Store.Backend, db, c, pubsub, logger)
	if err != nil {
		return fmt.Errorf("docstore: %w", err)
	}

	// ---- Player sessions ----
	loc := cfg.Game.Location()
	deps := &player.Deps{
		Docs:    docs,
		Cache:   c,
		PubSub:  pubsub,
		Journal: auditSvc,
		Desires: daily.DefaultDesires,
		Gate:    daily.NewGate(daily.SystemClock{}, loc),
		Game:    cfg.Game,
		Logger:  logger,
	}
	if ai := genai.New(cfg.GenAI, logger); ai.Enabled() {
		deps.Desires = ai
		deps.Assistant = ai
		logger.Info("generative service enabled", zap.String("model", cfg.GenAI.Model))
	}
	sm := player.NewSessionManager(deps)
	defer sm.CloseAllSessions()
	if err := sm.ListenRollover(ctx); err != nil {
		return fmt.Errorf("rollover listener: %w", err)
	}

	// ---- Scheduler ----
	sched := scheduler.New(logger, loc, cfg.Scheduler.JobTimeout)
	defer sched.Stop()
	if err := apirest.RegisterJobs(sched, sm, cfg.Scheduler); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": sm.Count()})
	})

	auth := mw.Auth(cfg.Security, c)
	limit := mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst)

	authH := apirest.NewAuthHandler(c, cfg.Security)
	playerH := apirest.NewPlayerHandler(sm, c, auditSvc, logger)
	adminH := apirest.NewAdminHandler(sm, sched, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth", auth)
		authG.POST("/logout", authH.Logout)
		authG.POST("/refresh", authH.Refresh)

		playerH.Register(api.Group("", auth, limit))

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Security.AdminIPs), apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/sessions", adminH.ListSessions)
		adminG.POST("/sessions/:user/close", adminH.CloseSession)
		adminG.POST("/rollover", adminH.Rollover)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, logger)
	r.GET("/sse", auth, sseH.ServeSSE)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(sseH.Shutdown)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	return nil
}
