package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/elmynz/subasta-server/internal/config"
	"github.com/elmynz/subasta-server/internal/logger"
	"github.com/elmynz/subasta-server/internal/server"
)

func main() {
	// Local .env is a dev convenience only.
	_ = godotenv.Load()

	cfg := config.Load()
	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()

	srv := server.New(server.Options{
		Port:      cfg.Port,
		StaticDir: cfg.StaticDir,
		PhotosDir: cfg.PhotosDir,
	}, zlog)

	if err := srv.Start(); err != nil {
		zlog.Fatal("start", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down")
	if err := srv.Stop(); err != nil {
		zlog.Error("shutdown", zap.Error(err))
	}
}
