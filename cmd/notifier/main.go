package main

import (
	"context"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/config"
	kafkax "github.com/ariefcatur/go-delivery-ledger.git/internal/kafka"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/notify"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/redisx"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/relay"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zcfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zcfg.Build()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &relay.Service{
		Dedup:    &relay.RedisDedup{RDB: rdb},
		Notifier: notify.Log{Logger: logger.Named("notification")},
		Name:     cfg.ServiceName + "-notifier",
		Log:      logger,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifyGroup, cfg.NotifyTopic, cfg.Workers, logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("notification consumer started",
			zap.String("group", cfg.NotifyGroup), zap.String("topic", cfg.NotifyTopic), zap.Int("workers", cfg.Workers))
		if err := cons.Start(ctx, svc.HandleNotification); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down consumer")
	cancel()
	<-done
}
