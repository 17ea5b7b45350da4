package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"feeledger/internal/chain"
	"feeledger/internal/collector"
	"feeledger/internal/config"
	"feeledger/internal/contracts"
	"feeledger/internal/indexer"
	"feeledger/internal/routing"
	"feeledger/internal/store"
	"feeledger/internal/store/memory"
	"feeledger/internal/store/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "feeledger",
		Short:        "Fee ledger and routing reconciliation engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the indexer and fee collector loops",
		RunE:  runService,
	}
	addCommonFlags(runCmd)
	runCmd.Flags().Duration("poll-interval", 15*time.Second, "indexer poll interval")
	runCmd.Flags().Duration("collect-interval", time.Minute, "fee collection interval")
	runCmd.Flags().Uint64("lag-degraded", 10, "indexer lag threshold for degraded status")
	runCmd.Flags().Uint64("lag-unhealthy", 100, "indexer lag threshold for unhealthy status")
	root.AddCommand(runCmd)

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Run the routing backfill sweep over every project with a pool",
		RunE:  runBackfill,
	}
	addCommonFlags(backfillCmd)
	root.AddCommand(backfillCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print aggregate distribution statistics",
		RunE:  runStats,
	}
	statsCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	statsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(statsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "chain RPC URL")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN (empty falls back to in-memory storage)")
	cmd.Flags().String("private-key", "", "hex signing key for contract writes")
	cmd.Flags().String("vault", "", "fee vault contract address")
	cmd.Flags().String("hook", "", "fee hook contract address (optional)")
	cmd.Flags().StringSlice("locker", nil, "locker contract addresses, current first then legacy")
	cmd.Flags().Uint64("start-block", 0, "first block to index when no cursor exists")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	cmd.Flags().Duration("sweep-delay", 500*time.Millisecond, "delay between pools during backfill")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func runService(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(true); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	runner, err := indexer.NewRunner(indexer.RunConfig{
		VaultAddress: common.HexToAddress(cfg.VaultAddress),
		StartBlock:   cfg.StartBlock,
		BatchSize:    cfg.BatchSize,
		PollInterval: cfg.PollInterval,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		LagDegraded:  cfg.LagDegraded,
		LagUnhealthy: cfg.LagUnhealthy,
	}, deps.chain, deps.store, logger)
	if err != nil {
		return err
	}

	positionLockers := make([]collector.PositionLocker, 0, len(deps.lockers))
	for _, l := range deps.lockers {
		positionLockers = append(positionLockers, l)
	}
	feeCollector, err := collector.New(collector.Config{
		Interval:   cfg.CollectInterval,
		SweepDelay: cfg.SweepDelay,
	}, positionLockers, deps.coordinator, logger)
	if err != nil {
		return err
	}

	logger.Info("service start",
		zap.String("vault", cfg.VaultAddress),
		zap.Int("lockers", len(cfg.LockerAddresses)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Duration("collect_interval", cfg.CollectInterval),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })
	g.Go(func() error { return feeCollector.Run(gctx) })

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(true); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	summary, err := deps.coordinator.Sweep(ctx, routing.SweepConfig{InterCallDelay: cfg.SweepDelay})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.AggregateStats(ctx)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

type deps struct {
	chain       *chain.Client
	store       store.Store
	lockers     []*contracts.Locker
	coordinator *routing.Coordinator
}

func (d *deps) close() {
	if d.store != nil {
		d.store.Close()
	}
	if d.chain != nil {
		d.chain.Close()
	}
}

func buildDeps(ctx context.Context, cfg config.Config, logger *zap.Logger) (*deps, error) {
	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}

	sender, err := chain.NewTransactor(ctx, chainClient, cfg.PrivateKey)
	if err != nil {
		chainClient.Close()
		return nil, err
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		chainClient.Close()
		return nil, err
	}

	vault := contracts.NewVault(chainClient, sender, common.HexToAddress(cfg.VaultAddress))

	lockers := make([]*contracts.Locker, 0, len(cfg.LockerAddresses))
	lockerRoutes := make([]routing.LockerRouting, 0, len(cfg.LockerAddresses))
	for i, addr := range cfg.LockerAddresses {
		version := "current"
		if i > 0 {
			version = fmt.Sprintf("legacy-%d", i)
		}
		locker := contracts.NewLocker(chainClient, sender, common.HexToAddress(addr), version)
		lockers = append(lockers, locker)
		lockerRoutes = append(lockerRoutes, locker)
	}

	var hook routing.HookContract
	if cfg.HookAddress != "" {
		hook = contracts.NewHook(chainClient, sender, common.HexToAddress(cfg.HookAddress))
	}

	coordinator := routing.NewCoordinator(vault, lockerRoutes, hook, st, logger)

	return &deps{
		chain:       chainClient,
		store:       st,
		lockers:     lockers,
		coordinator: coordinator,
	}, nil
}

// openStore picks the backend once at startup: Postgres when a DSN is
// configured and reachable, otherwise the in-memory fallback with the
// identical contract (state is lost on restart in that mode).
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.PGDSN != "" {
		pg, err := postgres.New(ctx, cfg.PGDSN)
		if err == nil {
			if err := pg.EnsureSchema(ctx); err != nil {
				pg.Close()
				return nil, fmt.Errorf("ensure schema: %w", err)
			}
			return pg, nil
		}
		logger.Warn("postgres unavailable, falling back to in-memory storage", zap.Error(err))
	} else {
		logger.Warn("no pg-dsn configured, using in-memory storage")
	}
	return memory.New(), nil
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
