package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"moneymarket/config"
	"moneymarket/core"
	"moneymarket/core/events"
	"moneymarket/crypto"
	"moneymarket/integrations/eventlog"
	"moneymarket/observability/logging"
	telemetry "moneymarket/observability/otel"
	"moneymarket/rpc"
	"moneymarket/storage"
)

func main() {
	cfgPath := flag.String("config", "./config.toml", "path to lendingd config (toml or yaml)")
	blockInterval := flag.Duration("block-interval", 2*time.Second, "interval between block height increments")
	flag.Parse()

	if err := run(*cfgPath, *blockInterval); err != nil {
		fmt.Fprintf(os.Stderr, "lendingd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string, blockInterval time.Duration) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("MM_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger, logCloser := logging.SetupWithOptions("lendingd", env, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer logCloser.Close()

	endpoint := strings.TrimSpace(cfg.Telemetry.Endpoint)
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "lendingd",
		Environment: env,
		Endpoint:    endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     endpoint != "" && cfg.Telemetry.Metrics,
		Traces:      endpoint != "" && cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,

		ChainID:         cfg.ChainID,
		GovernanceAsset: cfg.Genesis.GovernanceAsset,
		Modules: map[string]bool{
			core.ModuleLending: cfg.Pauses.Lending,
			core.ModuleVotes:   cfg.Pauses.Votes,
		},
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	admin, err := crypto.ParseAddress(cfg.Genesis.Admin)
	if err != nil {
		return fmt.Errorf("genesis admin: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}

	var sink events.Emitter
	var source rpc.EventSource
	if driver := strings.TrimSpace(cfg.EventLog.Driver); driver != "" {
		store, err := eventlog.Open(driver, cfg.EventLog.DSN, logger)
		if err != nil {
			db.Close()
			return fmt.Errorf("open event log: %w", err)
		}
		defer store.Close()
		sink, source = store, store
		logger.Info("event log enabled",
			slog.String("driver", driver),
			logging.MaskField("dsn", logging.RedactDSN(cfg.EventLog.DSN)))
	}

	node, err := core.NewNode(db, core.Options{
		Admin:           admin,
		ChainID:         cfg.ChainID,
		GovernanceAsset: cfg.Genesis.GovernanceAsset,
		Emitter:         sink,
		Logger:          logger,
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("create node: %w", err)
	}
	defer node.Close()

	height := uint64(1)
	if last, ok, err := node.LastBlock(); err != nil {
		return fmt.Errorf("read last block: %w", err)
	} else if ok {
		height = last + 1
	}
	node.SetBlock(height, uint64(time.Now().Unix()))
	applied, err := node.ApplyGenesis(cfg.Genesis)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	if !applied {
		logger.Info("existing state found, genesis skipped")
	}
	node.SetModulePaused(core.ModuleLending, cfg.Pauses.Lending)
	node.SetModulePaused(core.ModuleVotes, cfg.Pauses.Votes)

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
	}
	server := rpc.NewServer(node, source, rpc.Config{
		RateLimit:   rpc.RateLimit{RequestsPerMinute: cfg.RateLimit.RequestsPerMinute, Burst: cfg.RateLimit.Burst},
		ServiceName: "lendingd",
		Logger:      logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go advanceBlocks(ctx, node, height, blockInterval)

	logger.Info("lendingd listening",
		slog.String("listen", listener.Addr().String()),
		slog.String("database", cfg.Database),
		slog.Uint64("chain_id", cfg.ChainID),
		slog.String("admin", admin.String()))
	if err := server.Serve(ctx, listener); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.Database {
	case config.DatabaseMemory:
		return storage.NewMemDB(), nil
	default:
		path := filepath.Join(cfg.DataDir, "state")
		db, err := storage.NewLevelDB(path)
		if err != nil {
			return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
		}
		return db, nil
	}
}

type blockClock interface {
	SetBlock(height, timestamp uint64)
}

// advanceBlocks moves the node clock forward one height per tick.
func advanceBlocks(ctx context.Context, node blockClock, height uint64, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			height++
			node.SetBlock(height, uint64(now.Unix()))
		}
	}
}
