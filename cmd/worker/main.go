package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	natsbroker "github.com/lupppig/notifyflow/internal/broker/nats"
	"github.com/lupppig/notifyflow/internal/config"
	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/events"
	"github.com/lupppig/notifyflow/internal/httpclient"
	"github.com/lupppig/notifyflow/internal/logging"
	"github.com/lupppig/notifyflow/internal/pipeline"
	"github.com/lupppig/notifyflow/internal/reconcile"
	"github.com/lupppig/notifyflow/internal/resilience"
	"github.com/lupppig/notifyflow/internal/sender"
	"github.com/lupppig/notifyflow/internal/server"
	"github.com/lupppig/notifyflow/internal/store/postgres"
	"github.com/lupppig/notifyflow/internal/templates"
	"github.com/lupppig/notifyflow/internal/worker"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigFileName, "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", slog.String("code", "SYS_STARTUP"), slog.Any("error", err))
		os.Exit(1)
	}
	logging.Init(cfg.Log.Level, cfg.Log.File)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("worker stopped with error", slog.String("code", "SYS_SHUTDOWN"), slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := postgres.New(ctx, cfg.Postgres.URL, postgres.Options{
		MaxConns:      cfg.Postgres.MaxConns,
		RetryAttempts: cfg.Postgres.RetryAttempts,
		RetryInterval: cfg.Postgres.RetryInterval,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	notifications := postgres.NewNotificationStore(db)
	stats := postgres.NewStatsStore(db)

	cache, closeCache, err := templateCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()
	tpl := templates.NewService(cache, postgres.NewTemplateStore(db), templates.NewRenderer(), cfg.Templates.CacheTTL)

	bus, err := natsbroker.New(ctx, cfg.NATS.URL, cfg.NATS.Stream)
	if err != nil {
		return err
	}
	defer bus.Close()

	registry, err := sender.NewRegistry(senders(cfg))
	if err != nil {
		return err
	}
	slog.Info("senders registered", slog.String("code", "SYS_STARTUP"), slog.Any("channels", registry.Channels()))
	policies := resilience.NewPolicies(cfg.Policy)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := events.NewMetrics(reg)
	if err != nil {
		return err
	}
	hub := events.NewHub()
	sink := events.NewSink(events.WithHandlerTimeout(cfg.Worker.OutcomeTimeout))
	sink.Subscribe("metrics", metrics)
	sink.Subscribe("hub", hub)
	sink.Subscribe("stats", events.NewStatsRecorder(stats))
	sink.Subscribe("forwarder", events.NewForwarder(bus))

	orchestrator := pipeline.NewOrchestrator(tpl, registry, policies, notifications, sink,
		pipeline.WithPersistRetry(cfg.Worker.PersistRetries, cfg.Worker.PersistBackoff),
		pipeline.WithFinishTimeout(cfg.Worker.FinishTimeout),
	)

	consumer, err := bus.DeliveryConsumer(ctx, natsbroker.ConsumerOptions{
		Durable:       cfg.NATS.Durable,
		AckWait:       cfg.Worker.AckWait,
		MaxDeliver:    cfg.Worker.MaxDeliver,
		MaxAckPending: cfg.Worker.Workers * cfg.Worker.Batch * 2,
	})
	if err != nil {
		return err
	}
	pool := worker.NewPool(worker.NewJetStreamSource(consumer, cfg.Worker.FetchWait), orchestrator, worker.Config{
		Workers:         cfg.Worker.Workers,
		Batch:           cfg.Worker.Batch,
		RedeliveryDelay: cfg.Worker.PersistBackoff * 10,
	})

	sweeper := reconcile.NewSweeper(reconcile.Config{
		Interval:    cfg.Sweep.Interval,
		MaxAttempts: cfg.Sweep.MaxAttempts,
		BatchSize:   cfg.Sweep.BatchSize,
	}, notifications, bus)

	auth := server.NewAuthInterceptor(cfg.AdminToken)
	grpcServer, health := server.NewGRPCServer(auth)
	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewAdminRouter(server.AdminConfig{
			Hub:      hub,
			Gatherer: reg,
			Checks: map[string]server.HealthCheck{
				"postgres": db.Healthcheck(),
				"nats":     bus.Healthcheck,
			},
			Breakers: policies.BreakerStates,
			Auth:     auth,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("gRPC server listening", slog.String("code", "SYS_STARTUP"), slog.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(listener); err != nil {
			errs <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("admin HTTP server listening", slog.String("code", "SYS_STARTUP"), slog.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Start(ctx)
	}()

	health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	poolDone := make(chan struct{})
	go func() {
		_ = pool.Run(ctx)
		close(poolDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
	}

	slog.Info("shutting down", slog.String("code", "SYS_SHUTDOWN"))
	health.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()

	if runErr != nil {
		// Servers failed while the pool may still be running.
		return runErr
	}
	<-poolDone
	wg.Wait()
	return nil
}

func templateCache(ctx context.Context, cfg *config.Config) (templates.Cache, func(), error) {
	if cfg.Redis.URL == "" {
		slog.Info("using in-process template cache", slog.String("code", "SYS_STARTUP"))
		return templates.NewMemoryCache(), func() {}, nil
	}
	client, err := templates.ConnectRedis(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	return templates.NewRedisCache(client), func() { _ = client.Close() }, nil
}

func senders(cfg *config.Config) map[domain.Channel]sender.Sender {
	out := map[domain.Channel]sender.Sender{
		domain.ChannelEmail: sender.LogSender{},
		domain.ChannelSMS:   sender.LogSender{},
		domain.ChannelPush:  sender.LogSender{},
	}
	if cfg.Postmark.ServerToken != "" {
		client := sender.NewPostmarkClient(cfg.Postmark.ServerToken, cfg.Postmark.AccountToken)
		out[domain.ChannelEmail] = sender.NewPostmarkSender(client, cfg.Postmark.SenderEmail, cfg.Postmark.DefaultSubject)
	}
	if gw := cfg.SMSGateway; gw.URL != "" {
		out[domain.ChannelSMS] = sender.NewSMSGateway(httpclient.New(gw.Timeout, httpclient.WithBearerToken(gw.APIKey)), gw.URL)
	}
	if gw := cfg.PushGateway; gw.URL != "" {
		out[domain.ChannelPush] = sender.NewPushGateway(httpclient.New(gw.Timeout, httpclient.WithBearerToken(gw.APIKey)), gw.URL)
	}
	for ch, s := range out {
		if _, ok := s.(sender.LogSender); ok {
			slog.Warn("no provider configured, deliveries are only logged",
				slog.String("code", "SYS_STARTUP"),
				slog.String("channel", string(ch)),
			)
		}
	}
	return out
}
