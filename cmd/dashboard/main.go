package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"devdash/internal/application"
	"devdash/internal/config"
	"devdash/internal/infrastructure/ethrpc"
	"devdash/internal/infrastructure/kafka"
	"devdash/internal/infrastructure/logging"
	"devdash/internal/infrastructure/secrets"
	"devdash/internal/infrastructure/solc"
	"devdash/internal/infrastructure/storage"
	"devdash/internal/infrastructure/telemetry"
	"devdash/internal/interfaces/httpapi"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logCloser, err := logging.Init(logging.Config{
		Service:    "devdash",
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	if err != nil {
		log.Fatalf("logging error: %v", err)
	}
	defer logCloser.Close()

	shutdownTracing, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "devdash",
		ServiceVersion: version,
		Endpoint:       cfg.OtelEndpoint,
	})
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			slog.Warn("tracing shutdown", "error", err)
		}
	}()

	repo, err := storage.Open(storage.Config{
		Driver:    cfg.StoreDriver,
		Path:      cfg.DBPath,
		DSN:       cfg.DBDSN,
		RedisAddr: cfg.RedisAddr,
		CacheTTL:  cfg.CacheTTL,
	})
	if err != nil {
		log.Fatalf("store error: %v", err)
	}
	defer repo.Close()

	var sealer application.KeySealer
	if cfg.SecretPassphrase != "" {
		box, err := secrets.NewBox(cfg.SecretPassphrase)
		if err != nil {
			log.Fatalf("secrets error: %v", err)
		}
		sealer = box
	} else {
		slog.Info("SECRET_PASSPHRASE not set, signing keys will not be remembered")
	}

	metrics := httpapi.NewMetrics()
	session, err := application.NewSession(ethrpc.Dialer(ethrpc.Config{Timeout: cfg.RPCTimeout}), repo, sealer, metrics, application.SessionConfig{
		PollInterval: cfg.PollInterval,
		BlockWindow:  cfg.BlockWindow,
		TxCap:        cfg.TxCap,
	})
	if err != nil {
		log.Fatalf("session error: %v", err)
	}
	defer session.Close()

	var sink application.EventSink
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			log.Fatalf("kafka error: %v", err)
		}
		defer producer.Close()
		sink = producer
	}

	scanner := application.NewScanner(repo, metrics, application.ScannerConfig{
		Window:    cfg.ScanWindow,
		BatchSize: cfg.ScanBatchSize,
	})
	contracts, err := application.NewContractIndex(session, scanner, repo, sink)
	if err != nil {
		log.Fatalf("contract index error: %v", err)
	}
	playground, err := application.NewPlayground(solc.New(solc.Config{Path: cfg.SolcPath}), session, repo)
	if err != nil {
		log.Fatalf("playground error: %v", err)
	}

	httpServer, err := httpapi.NewServer(httpapi.Dependencies{
		Session:       session,
		Contracts:     contracts,
		Playground:    playground,
		Tools:         application.NewNodeTools(session),
		Metrics:       metrics,
		ActionTimeout: cfg.DeployTimeout,
		Build: httpapi.BuildInfo{
			Version:   version,
			Commit:    commit,
			BuildTime: buildTime,
		},
	})
	if err != nil {
		log.Fatalf("http server error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	background := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("background task stopped", "task", name, "error", err)
			}
		}()
	}
	background("contracts", contracts.Run)
	background("metrics", func(ctx context.Context) error {
		metrics.Track(ctx, session)
		return nil
	})
	if sink != nil {
		background("events", func(ctx context.Context) error {
			return application.ForwardSnapshots(ctx, session, sink)
		})
	}

	restoreConnection(ctx, cfg, session)

	slog.Info("http server listening", "addr", cfg.HTTPAddr, "version", version)
	if err := httpServer.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
		slog.Error("http server error", "error", err)
		cancel()
	}
	<-ctx.Done()
	session.Disconnect()
	wg.Wait()
	slog.Info("shutdown complete")
}

// restoreConnection prefills the remembered connection and, with AUTO_CONNECT,
// connects to it or to RPC_URL.
func restoreConnection(ctx context.Context, cfg config.Config, session *application.Session) {
	endpoint, key := cfg.RPCURL, cfg.PrivateKey
	remembered, ok, err := session.RestoreConnection(ctx)
	if err != nil {
		slog.Warn("restore connection", "error", err)
	}
	if ok {
		endpoint = remembered.Endpoint
		if key == "" {
			key = remembered.SigningKey
		}
	}
	if !cfg.AutoConnect {
		return
	}
	go func() {
		connectCtx, cancel := context.WithTimeout(ctx, cfg.RPCTimeout)
		defer cancel()
		if _, err := session.Connect(connectCtx, endpoint, key); err != nil {
			slog.Warn("auto connect failed", "endpoint", endpoint, "error", err)
		}
	}()
}
