package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"quotecore/config"
	"quotecore/internal/app"
	"quotecore/logger"

	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg := config.Load()

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}

	err = a.Run(ctx)
	a.Close()
	if err != nil {
		log.Error("quotecore stopped", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("quotecore stopped")
}
