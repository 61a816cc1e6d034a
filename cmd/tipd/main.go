package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tipledger/config"
	"tipledger/core/events"
	"tipledger/core/state"
	"tipledger/native/tipvault"
	"tipledger/observability"
	"tipledger/observability/logging"
	"tipledger/observability/otel"
	"tipledger/rpc"
	"tipledger/services/indexer"
	"tipledger/storage"
)

const dropReportInterval = 15 * time.Second

func main() {
	configFile := flag.String("config", "./tipd.toml", "Path to the configuration file (.toml or .yaml)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile); err != nil {
		fmt.Fprintf(os.Stderr, "tipd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.SetupWithOptions("tipd", cfg.Environment, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	shutdownTelemetry, err := otel.Init(ctx, otel.Config{
		ServiceName: "tipd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     otel.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data dir: %w", err)
	}
	db, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()
	logger.Info("storage opened", slog.String("backend", cfg.Storage.Backend))

	mgr := state.NewManager(db)
	bus := events.NewBus()
	defer bus.Close()
	eventMetrics := observability.Events()
	bus.Attach(eventMetrics)
	bus.OnSinkError(func(err error) {
		logger.Warn("event sink publish failed", slog.Any("error", err))
	})

	var natsSink *events.NATSSink
	if cfg.Events.NATSURL != "" {
		sink, err := events.ConnectNATS(events.NATSOptions{
			URL:            cfg.Events.NATSURL,
			SubjectPrefix:  cfg.Events.SubjectPrefix,
			ConnectTimeout: cfg.Events.ConnectTimeout.Duration,
			Logger:         logger.With(slog.String("component", "nats")),
		})
		if err != nil {
			return err
		}
		defer sink.Close()
		bus.Attach(sink)
		natsSink = sink
		logger.Info("nats sink attached", logging.MaskField("nats_url", cfg.Events.NATSURL))
	}

	engine := tipvault.NewEngine()
	engine.SetStore(mgr.TipvaultStore())
	engine.SetEmitter(bus)
	engine.SetTipReplayGuard(cfg.Ledger.TipReplayGuard)

	if err := bootstrapLedger(engine, mgr, cfg.Bootstrap, logger); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	if cfg.Indexer.Enabled {
		gdb, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
		if err != nil {
			return err
		}
		ix, err := indexer.New(gdb, logger.With(slog.String("component", "indexer")))
		if err != nil {
			return err
		}
		defer ix.Close()
		source := "bus"
		wg.Add(1)
		if natsSink != nil {
			source = "nats"
			go func() {
				defer wg.Done()
				if err := ix.ConsumeNATS(runCtx, natsSink.Conn(), natsSink.Prefix()); err != nil {
					logger.Error("indexer stopped", slog.Any("error", err))
				}
			}()
		} else {
			sub := bus.Subscribe(cfg.Events.SubscriberBuffer)
			go func() {
				defer wg.Done()
				ix.Run(runCtx, sub)
			}()
		}
		logger.Info("indexer started", slog.String("driver", cfg.Indexer.Driver), slog.String("source", source))
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		reportDrops(runCtx, bus, eventMetrics)
	}()

	srv := rpc.NewServer(engine, bus, rpc.ServerConfig{
		RequestsPerMinute: cfg.RPC.RequestsPerMinute,
		Burst:             cfg.RPC.Burst,
		MaxBodyBytes:      cfg.RPC.MaxBodyBytes,
		ReadTimeout:       cfg.RPC.ReadTimeout.Duration,
		WriteTimeout:      cfg.RPC.WriteTimeout.Duration,
		SubscriberBuffer:  cfg.Events.SubscriberBuffer,
		Nonces:            mgr,
	}, logger.With(slog.String("component", "rpc")))

	serveErr := srv.Serve(runCtx, cfg.ListenAddress)
	cancel()
	bus.Close()
	wg.Wait()
	logger.Info("tipd stopped")
	return serveErr
}

type dropRecorder interface {
	RecordDropped(n uint64)
}

// reportDrops forwards the bus drop counter to metrics until ctx ends.
func reportDrops(ctx context.Context, bus *events.Bus, rec dropRecorder) {
	ticker := time.NewTicker(dropReportInterval)
	defer ticker.Stop()
	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if current := bus.Dropped(); current > last {
				rec.RecordDropped(current - last)
				last = current
			}
		}
	}
}
