package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sprintdeck/sprintdeck/internal/api"
	"github.com/sprintdeck/sprintdeck/internal/audit"
	"github.com/sprintdeck/sprintdeck/internal/auth"
	"github.com/sprintdeck/sprintdeck/internal/database"
	"github.com/sprintdeck/sprintdeck/internal/gateway"
	"github.com/sprintdeck/sprintdeck/internal/store"
	"github.com/sprintdeck/sprintdeck/pkg/config"
	"github.com/sprintdeck/sprintdeck/pkg/health"
	"github.com/sprintdeck/sprintdeck/pkg/logging"
	"github.com/sprintdeck/sprintdeck/pkg/metrics"
	"github.com/sprintdeck/sprintdeck/pkg/tracing"
)

func main() {
	// Local development convenience; missing .env is fine
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: "sprintdeck-gateway",
		Version:     "1.0.0",
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logging.SetGlobalLogger(logger)

	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err.Error())
	}
	defer db.Close()
	logger.Info("Database connection established")

	redis, err := store.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", "error", err.Error())
	}
	defer redis.Close()
	logger.Info("Redis connection established")

	tracer, err := tracing.NewService(&tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    "sprintdeck-gateway",
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracing", "error", err.Error())
	}

	m := metrics.NewMetrics(nil)

	stateStore := store.NewCircuitStateStore(redis, cfg.Gateway.Namespace)
	auditSink := audit.NewPostgresSink(db, logger)
	permissions := auth.NewPostgresChecker(db, logger)

	gw := gateway.New(gateway.Options{
		Defaults: gateway.BreakerConfig{
			Timeout:                  cfg.Gateway.DefaultTimeout,
			ErrorThresholdPercentage: cfg.Gateway.ErrorThresholdPercentage,
			ResetTimeout:             cfg.Gateway.ResetTimeout,
			VolumeThreshold:          cfg.Gateway.VolumeThreshold,
			WindowSize:               cfg.Gateway.WindowSize,
			WindowBuckets:            cfg.Gateway.WindowBuckets,
		},
		StateTTL:    cfg.Gateway.StateTTL,
		Store:       stateStore,
		Permissions: permissions,
		Audit:       auditSink,
		Metrics:     gateway.NewPrometheusSink(m),
		Logger:      logger,
		Tracer:      tracer,
	})
	defer gw.Close()

	var verifier *auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewTokenVerifier(cfg.Auth.JWTSecret)
	} else {
		logger.Warn("JWT_SECRET not set, admin API runs without authentication")
	}

	checker := health.NewChecker()
	checker.Register("database", db.Health)
	checker.Register("redis", redis.Health)

	handler := api.NewBreakerHandler(gw, auditSink, logger)
	router := api.NewRouter(cfg, api.RouterDeps{
		Handler:  handler,
		Verifier: verifier,
		Checker:  checker,
		Metrics:  m,
		Tracer:   tracer,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting gateway server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err.Error())
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err.Error())
	}

	if err := tracer.Shutdown(ctx); err != nil {
		logger.Error("Tracing shutdown failed", "error", err.Error())
	}

	logger.Info("Server exited")
}
