package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-pharma-stock/internal/audit"
	"github.com/ariefcatur/go-pharma-stock/internal/config"
	"github.com/ariefcatur/go-pharma-stock/internal/httpx"
	kafkax "github.com/ariefcatur/go-pharma-stock/internal/kafka"
	"github.com/ariefcatur/go-pharma-stock/internal/lifecycle"
	"github.com/ariefcatur/go-pharma-stock/internal/logx"
	"github.com/ariefcatur/go-pharma-stock/internal/notify"
	"github.com/ariefcatur/go-pharma-stock/internal/orders"
	"github.com/ariefcatur/go-pharma-stock/internal/postgres"
	"github.com/ariefcatur/go-pharma-stock/internal/purchase"
	"github.com/ariefcatur/go-pharma-stock/internal/reconcile"
	"github.com/ariefcatur/go-pharma-stock/internal/redisx"
	"github.com/ariefcatur/go-pharma-stock/internal/stock"
	"github.com/ariefcatur/go-pharma-stock/internal/telemetry"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logx.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("api exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.ServiceName, cfg.OtelEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	// background workers are stopped explicitly after the HTTP server drains
	bg, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	var (
		ledger    stock.Ledger
		store     orders.Store
		invoices  orders.InvoiceStore
		poStore   purchase.Store
		cache     *redisx.Cache
		notifier  notify.Notifier = notify.Nop{}
		producers []*kafkax.Producer
	)

	switch cfg.Store {
	case "memory":
		seed, err := config.ParseSeed(cfg.MemorySeed)
		if err != nil {
			return err
		}
		mem := stock.NewMemoryLedger(cfg.AllowNegativeStock)
		for id, n := range seed {
			mem.Seed(id, n)
		}
		ledger, store, invoices, poStore = mem, orders.NewMemStore(), orders.NewMemInvoices(), purchase.NewMemStore()
		log.Warn("running with in-memory stores; data is lost on exit", zap.Int("sizes", len(seed)))

	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		ledger = &stock.PostgresLedger{DB: db, AllowNegative: cfg.AllowNegativeStock}
		store, invoices, poStore = &orders.Repo{DB: db}, &orders.InvoiceRepo{DB: db}, &purchase.Repo{DB: db}

		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		cache = &redisx.Cache{RDB: rdb}

		orderEvents := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderEvents, 1024, log)
		orderEvents.Start(bg)
		poEvents := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPurchaseOrderEvents, 256, log)
		poEvents.Start(bg)
		producers = append(producers, orderEvents, poEvents)
		notifier = notify.NewPublisher(orderEvents, poEvents, cfg.ServiceName)

	default:
		return fmt.Errorf("unknown STORE %q", cfg.Store)
	}

	var recorder audit.Recorder = audit.Nop{}
	var auditClient *audit.Client
	if cfg.AuditURL != "" {
		auditClient = audit.New(cfg.AuditURL, cfg.AuditQueue, log)
		auditClient.Start(bg)
		recorder = auditClient
	}

	ledger = stock.NewRetrying(ledger, cfg.StockMaxRetries, 20*time.Millisecond, log)
	engine := reconcile.New(ledger, log)

	mgr := lifecycle.New(store, invoices, engine, log)
	mgr.Audit, mgr.Notify = recorder, notifier
	wf := purchase.NewWorkflow(poStore, invoices, engine, log)
	wf.Audit, wf.Notify = recorder, notifier

	router := httpx.NewRouter(log, 3*cfg.RequestTimeout)
	oh := &httpx.OrdersHandler{Orders: mgr, Timeout: cfg.RequestTimeout, Log: log}
	if cache != nil {
		mgr.Cache, oh.Cache = cache, cache
	}
	oh.Register(router)
	(&httpx.PurchaseHandler{Workflow: wf, Timeout: cfg.RequestTimeout, Log: log}).Register(router)
	(&httpx.StockHandler{Ledger: ledger, Audit: recorder, Timeout: cfg.RequestTimeout, Log: log}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	err = g.Wait()

	// no request can enqueue any more: flush events and audit entries
	for _, p := range producers {
		p.Close()
	}
	if auditClient != nil {
		auditClient.Close()
	}
	for _, p := range producers {
		p.WaitClosed()
	}
	if auditClient != nil {
		auditClient.WaitClosed()
	}
	return err
}
