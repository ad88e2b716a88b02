package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"healthai/internal/analytics"
	"healthai/internal/cache"
	"healthai/internal/config"
	"healthai/internal/generator"
	"healthai/internal/handlers"
	"healthai/internal/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg, err := logger.New(logger.Options{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		File:        cfg.Log.File,
		ServiceName: "healthai",
	})
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logg.Sync()

	logg.Info("starting HealthAI backend", zap.String("port", cfg.Server.Port))

	// Кэш алертов необязателен
	var alerts handlers.AlertStore
	if cfg.Redis.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisCache, err := cache.NewRedisCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Retention)
		cancel()
		if err != nil {
			logg.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer redisCache.Close()
		alerts = redisCache
		logg.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		logg.Info("alert cache disabled")
	}

	// Детектор обучается на синтетической выборке до приема запросов
	detector := analytics.NewDetector(analytics.Config{
		Trees:         cfg.Detector.Trees,
		Contamination: cfg.Detector.Contamination,
		Seed:          cfg.Detector.Seed,
	}, logg.Named("detector"))
	if err := detector.Bootstrap(); err != nil {
		logg.Fatal("failed to bootstrap detector", zap.Error(err))
	}

	gen := generator.NewSeeded(uint64(time.Now().UnixNano()))

	handler := handlers.NewHandler(detector, gen, alerts, logg.Named("http")).
		WithStreamInterval(cfg.Stream.Interval)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.NewRouter(handler, cfg.CORS.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		logg.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logg.Error("server forced to shutdown", zap.Error(err))
		return
	}

	logg.Info("server stopped gracefully")
}
