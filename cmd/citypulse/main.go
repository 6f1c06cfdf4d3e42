package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Sadiqib0/Citypulse/internal/analytics"
	"github.com/Sadiqib0/Citypulse/internal/bus"
	"github.com/Sadiqib0/Citypulse/internal/collector"
	"github.com/Sadiqib0/Citypulse/internal/config"
	"github.com/Sadiqib0/Citypulse/internal/recorder"
	"github.com/Sadiqib0/Citypulse/internal/server"
	"github.com/Sadiqib0/Citypulse/internal/store"
	"github.com/Sadiqib0/Citypulse/internal/stream"
)

func main() {
	cfg := config.Load()

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Entity store.
	st, err := store.Open(cfg.Database, log)
	if err != nil {
		log.Fatal("failed to open entity store", zap.Error(err))
	}
	defer st.Close()

	// Analytics response cache. A dead redis only disables caching.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Warn("redis unreachable, analytics cache disabled", zap.Error(err))
		rdb = nil
	}

	// The bus is the one dependency the pipeline cannot run without.
	b, err := bus.NewNATSBus(cfg.NATS, log)
	if err != nil {
		log.Fatal("failed to connect to bus", zap.Error(err))
	}
	defer b.Close()

	manager := stream.NewManager(log)
	bridge := stream.NewBridge(b, manager, log)

	cache := analytics.NewCache(rdb, cfg.Analytics.CacheTTL, log)
	engine := analytics.New(st, cache, cfg.Analytics.AnomalyThreshold, cfg.Collector.SensorCount, log)

	rec := recorder.New(b, st, cfg.Influx, log)
	if err := rec.Start(context.Background()); err != nil {
		log.Fatal("failed to start recorder", zap.Error(err))
	}

	col := collector.New(cfg.Collector, b, st, log)
	if err := col.Start(context.Background()); err != nil {
		log.Fatal("failed to start collector", zap.Error(err))
	}

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: server.New(engine, manager, bridge, log).Handler(),
	}

	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	col.Stop()
	rec.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}

	manager.CloseAll()
	bridge.Close()
	log.Info("shutdown complete")
}

func newLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build(zap.Fields(zap.String("service", "citypulse")))
}
