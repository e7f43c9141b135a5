// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"websentinel/go-server/internal/config"
	"websentinel/go-server/internal/handlers"
	"websentinel/go-server/internal/middleware"
	"websentinel/go-server/internal/pipeline"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("Failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := pipeline.NewLogger(cfg.LogFormat, os.Stdout, slog.LevelInfo)
	slog.SetDefault(logger)

	p, err := pipeline.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize analyzer", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	router := newRouter(cfg, p, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.AnalysisTimeout + 10*time.Second,
	}

	go func() {
		logger.Info("Starting WebSentinel server", "address", srv.Addr, "version", cfg.AppVersion)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	logger.Info("Server exited")
}

func newRouter(cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.Recovery(logger))
	router.Use(gzip.Gzip(gzip.DefaultCompression))
	router.Use(middleware.RequestContext(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	limiter := middleware.NewTokenBucketLimiter(cfg.RateLimitPerMinute)
	logger.Info("Rate limiter initialized", "backend", "in-memory", "per_minute", cfg.RateLimitPerMinute)

	caches := make([]handlers.CacheReporter, 0, len(p.Caches))
	for _, c := range p.Caches {
		caches = append(caches, c)
	}
	predictHandler := handlers.NewPredictHandler(p.Analyzer, logger)
	healthHandler := handlers.NewHealthHandler(cfg.AppVersion, p.Telemetry, p.Analyzer, caches...)

	router.POST("/predict", middleware.RateLimit(limiter, logger), predictHandler.Predict)
	router.GET("/test", handlers.Test)
	router.GET("/api/health", healthHandler.HealthCheck)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return router
}
