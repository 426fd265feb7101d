package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"PPRealtime/global/config"
	"PPRealtime/logger"
	"PPRealtime/tools/ids"

	"go.uber.org/zap"
)

func main() {
	path := flag.String("config", os.Getenv("PPRT_CONFIG"), "YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		logger.Error("load config failed", zap.Error(err))
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)
	defer logger.Sync()
	ids.SetNodeID(cfg.NodeID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		logger.Error("start failed", zap.Error(err))
		os.Exit(1)
	}
	if err := app.run(ctx); err != nil {
		logger.Error("stopped with error", zap.Error(err))
		os.Exit(1)
	}
}
