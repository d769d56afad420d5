package main

import (
	"context"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/config"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/contract"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/delivery"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/httpx"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/inflight"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/journal"
	kafkax "github.com/ariefcatur/go-delivery-ledger.git/internal/kafka"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/nearrpc"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/notify"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/postgres"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/redisx"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/session"
	"github.com/ariefcatur/go-delivery-ledger.git/internal/wallet"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zcfg.Build()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	return logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	jrnl := &journal.Repo{DB: db}
	if err := jrnl.Migrate(ctx); err != nil {
		logger.Fatal("journal migrate", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer for notifications
	prod := kafkax.NewProducer(cfg.KafkaBrokers, cfg.NotifyTopic, 1024, logger)
	prod.Start()

	// Ledger and wallet
	rpc := nearrpc.New(cfg.NearRPCURL, 10*time.Second, logger)
	w := &wallet.Redirect{
		WalletURL:   cfg.WalletURL,
		ContractID:  cfg.ContractID,
		CallbackURL: cfg.CallbackURL,
		Sessions:    &wallet.RedisSessions{RDB: rdb},
	}
	if cfg.AccessKey {
		w.RPC = rpc
	}
	if err := w.Restore(ctx); err != nil {
		logger.Warn("wallet session not restored", zap.Error(err))
	}
	logger.Info("wallet session", zap.String("account", w.CurrentIdentity()), zap.Bool("local_signing", w.CanSignLocally()))
	gw := &contract.Gateway{
		ContractID:   cfg.ContractID,
		View:         rpc,
		Tx:           rpc,
		Signer:       w,
		ReadMode:     contract.ReadMode(cfg.ReadMode),
		PollInterval: cfg.TxPollInterval,
		Timeout:      cfg.TxTimeout,
		Log:          logger,
	}

	store := session.NewStore()
	store.Observe = func(s session.Snapshot) {
		logger.Debug("session changed", zap.String("state", string(s.State)), zap.Bool("loading", s.Loading), zap.Int("orders", len(s.Orders)))
	}
	notifier := notify.Multi{notify.Log{Logger: logger}, notify.NewKafka(prod, cfg.ServiceName, logger)}

	svc := &delivery.Service{
		Gateway:     gw,
		Identity:    w,
		Store:       store,
		Guard:       inflight.New(rdb, cfg.InflightTTL, logger),
		Pending:     &session.RedisPending{RDB: rdb, TTL: cfg.PendingTTL},
		Journal:     jrnl,
		Notifier:    notifier,
		Confirmer:   notify.ContextConfirmer{},
		Validate:    delivery.NewValidator(),
		Log:         logger,
		PendingHold: cfg.InflightTTL,
	}
	resolver := &session.Resolver{Gateway: gw, Wallet: w, Store: store, Commands: svc, Notifier: notifier, Log: logger}

	// startup resolution; the wallet callback resolves again with its nav context
	if _, err := resolver.Resolve(ctx, session.NavContext{}); err != nil {
		logger.Warn("initial session resolution failed", zap.Error(err))
	}

	router := httpx.NewRouter(cfg.TxTimeout + 30*time.Second)
	h := &httpx.Handler{
		Resolver: resolver,
		Store:    store,
		Commands: svc,
		Wallet:   w,
		Journal:  jrnl,
		Log:      logger,
	}
	h.Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("contract", cfg.ContractID), zap.String("read_mode", cfg.ReadMode))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	svc.CancelAll()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()
	cancel()
	prod.WaitClosed()
}
