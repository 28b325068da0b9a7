package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/config"
	"github.com/aman-churiwal/edge-gateway/internal/logger"
	"github.com/aman-churiwal/edge-gateway/internal/server"
	"github.com/aman-churiwal/edge-gateway/internal/storage"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type closableStore interface {
	server.StateStore
	Close() error
}

func main() {
	// Load env if it exists
	godotenv.Load()

	configPath := os.Getenv("GATEWAY_CONFIG_FILE")
	if configPath == "" {
		configPath = "config.json"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	store, err := openStore(cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to open state store", zap.String("driver", cfg.State.Driver), zap.Error(err))
	}
	defer store.Close()

	var pg *storage.Postgres
	if cfg.Postgres.DSN != "" {
		pg, err = storage.NewPostgres(cfg.Postgres.DSN)
		if err != nil {
			zlog.Fatal("Failed to connect to Postgres", zap.Error(err))
		}
		defer pg.Close()

		if err := pg.AutoMigrate(); err != nil {
			zlog.Fatal("Failed to migrate request log", zap.Error(err))
		}
		zlog.Info("Request log enabled")
	}

	srv, err := server.New(server.Options{
		Config:   cfg,
		Store:    store,
		Postgres: pg,
		Logger:   zlog,
	})
	if err != nil {
		zlog.Fatal("Failed to build server", zap.Error(err))
	}

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil {
			zlog.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("Server forced to shutdown", zap.Error(err))
	}

	zlog.Info("Server exited")
}

func openStore(cfg *config.Config, zlog *zap.Logger) (closableStore, error) {
	if cfg.State.Driver == "memory" {
		zlog.Warn("Using in-process state store; counters and cache are not shared between instances")
		return storage.NewMemoryStore(time.Minute), nil
	}

	redis, err := storage.NewRedis(cfg.Redis.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	zlog.Info("Connected to redis", zap.String("addr", cfg.Redis.GetRedisAddr()))
	return redis, nil
}
