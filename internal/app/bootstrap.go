package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"option_go/internal/domain"
	"option_go/internal/engine"
	"option_go/internal/infra"
	"option_go/internal/infra/feed"
	"option_go/internal/infra/storage"
	"option_go/internal/service"
)

// DefaultConfigPath is read when no config path is given and the file exists.
const DefaultConfigPath = "configs/config.yaml"

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config     *infra.Config
	Logger     *slog.Logger
	Metrics    *infra.Metrics
	Storage    *storage.Storage
	Controller *engine.Controller
	Sequencer  *engine.Sequencer
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{Metrics: infra.GlobalMetrics}
}

// Initialize performs core system initialization: config, logger, storage,
// controller and sequencer.
func (b *Bootstrap) Initialize(configPath string) error {
	// 1. Load Config
	if configPath == "" {
		if _, err := os.Stat(DefaultConfigPath); err == nil {
			configPath = DefaultConfigPath
		}
	}
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	b.Logger = infra.NewLogger(cfg)
	slog.SetDefault(b.Logger)
	b.Logger.Debug("Bootstrapping option engine", slog.String("config", configPath))

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	b.Storage = store
	b.Logger.Debug("Database initialized")

	// 4. Controller and Sequencer
	b.Controller = engine.NewController(store, domain.Principal(cfg.Engine.Principal),
		engine.WithOracleWindow(cfg.Oracle.WindowSeconds),
		engine.WithLogger(b.Logger),
		engine.WithMetrics(b.Metrics),
	)
	b.Sequencer = engine.NewSequencer(cfg.Engine.InboxSize, b.Controller, nil)
	return nil
}

// Close releases storage.
func (b *Bootstrap) Close() error {
	if b.Storage == nil {
		return nil
	}
	return b.Storage.Close()
}

// Serve runs the sequencer, the oracle feed and the settlement keeper until
// ctx is done.
func (b *Bootstrap) Serve(ctx context.Context, clock domain.Clock) error {
	if b.Sequencer == nil {
		return errors.New("bootstrap not initialized")
	}
	cfg := b.Config

	// Start Sequencer in its own goroutine
	seqDone := make(chan struct{})
	go func() {
		defer close(seqDone)
		b.Sequencer.Run(ctx)
	}()
	b.Logger.InfoContext(ctx, "Sequencer started")

	if len(cfg.Oracle.Instances) > 0 && (cfg.Oracle.FeedURL != "" || cfg.Oracle.PollURL != "") {
		oracleSvc := service.NewOracleService(b.Sequencer, clock, service.OracleConfig{
			Oracle:    domain.Principal(cfg.Oracle.Principal),
			Symbol:    cfg.Oracle.Symbol,
			Decimals:  cfg.Oracle.Decimals,
			Instances: toIDs(cfg.Oracle.Instances),
			// Unposted instances are retried at the poll cadence.
			RetryInterval: time.Duration(cfg.Oracle.PollSec) * time.Second,
		}, b.Logger)
		oracleSvc.StartTickProcessor(ctx)

		src := b.priceFeed(oracleSvc.TickChan())
		if err := src.Connect(ctx); err != nil {
			return fmt.Errorf("start price feed: %w", err)
		}
		defer src.Disconnect()
		b.Logger.InfoContext(ctx, "Oracle feed started", slog.String("symbol", cfg.Oracle.Symbol), slog.Int("instances", len(cfg.Oracle.Instances)))
	}

	if cfg.Keeper.Enabled {
		keeper := service.NewSettlementKeeper(b.Controller, b.Sequencer, clock,
			domain.Principal(cfg.Keeper.Principal),
			time.Duration(cfg.Keeper.PollIntervalSec)*time.Second,
			toIDs(cfg.Keeper.Instances), b.Storage, b.Logger)
		go keeper.Run(ctx)
		b.Logger.InfoContext(ctx, "Settlement keeper started", slog.Int("poll_sec", cfg.Keeper.PollIntervalSec))
	}

	b.Logger.InfoContext(ctx, "Option engine operational. Press Ctrl+C to exit.")
	<-ctx.Done()
	<-seqDone

	snap := b.Metrics.Snapshot()
	b.Logger.Info("Shutting down gracefully",
		slog.Uint64("applied", snap.TransitionsApplied),
		slog.Any("rejected", snap.RejectedByKind),
		slog.Any("outcomes", snap.Outcomes))
	return nil
}

// priceFeed prefers the websocket feed and falls back to REST polling.
func (b *Bootstrap) priceFeed(ticks chan<- domain.PriceTick) domain.PriceFeed {
	cfg := b.Config
	symbols := []string{cfg.Oracle.Symbol}
	if cfg.Oracle.FeedURL != "" {
		return feed.NewWorker(cfg.Oracle.FeedURL, quoteMarket(cfg), symbols, ticks, b.Metrics)
	}
	return feed.NewPoller(cfg.Oracle.PollURL, quoteMarket(cfg), symbols, cfg.Oracle.PollSec, ticks, b.Metrics)
}

// quoteMarket is the feed market code the oracle symbol is quoted in.
func quoteMarket(cfg *infra.Config) string {
	if cfg.Oracle.Market != "" {
		return cfg.Oracle.Market
	}
	return "USDC"
}

func toIDs(ids []string) []domain.InstanceID {
	out := make([]domain.InstanceID, len(ids))
	for i, id := range ids {
		out[i] = domain.InstanceID(id)
	}
	return out
}
