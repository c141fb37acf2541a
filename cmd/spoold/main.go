// Command spoold is the library's example embedding: load config, open
// the spool, wait for a shutdown signal, close.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/shyding/kura-spool"
	"github.com/shyding/kura-spool/internal/config"
	"github.com/shyding/kura-spool/internal/pkg/logger"
	"github.com/shyding/kura-spool/internal/pkg/metrics"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	log.Info("starting spoold", zap.String("version", Version), zap.String("build_time", BuildTime))

	metrics.Init("kura_spool")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sp, err := spool.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open spool", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("received shutdown signal")

	sp.Close(context.Background())

	log.Info("spoold stopped")
}
