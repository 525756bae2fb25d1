package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-pharma-stock/internal/config"
	kafkax "github.com/ariefcatur/go-pharma-stock/internal/kafka"
	"github.com/ariefcatur/go-pharma-stock/internal/logx"
	"github.com/ariefcatur/go-pharma-stock/internal/notify"
	"github.com/ariefcatur/go-pharma-stock/internal/orders"
	"github.com/ariefcatur/go-pharma-stock/internal/redisx"
	"github.com/ariefcatur/go-pharma-stock/internal/telemetry"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-notifier"

	log, err := logx.New(service, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, service, cfg.OtelEndpoint)
	if err != nil {
		log.Fatal("tracing", zap.Error(err))
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	d := &notify.Dispatcher{
		Dedup:  &redisx.Dedup{RDB: rdb, Service: "notifier"},
		Mailer: notify.LogMailer{Log: log},
		Log:    log,
	}

	// satu consumer per topic, berbagi dispatcher yang sama
	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range []string{orders.TopicOrderEvents, orders.TopicPurchaseOrderEvents} {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, topic, cfg.NotifierWorkers, log)
		g.Go(func() error {
			log.Info("notifier consumer started",
				zap.String("group", cfg.NotifierGroup), zap.String("topic", topic), zap.Int("workers", cfg.NotifierWorkers))
			return cons.Start(gctx, d.Handle)
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("consumer exit", zap.Error(err))
	}
	log.Info("notifier stopped")
}
