package collector

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"feeledger/internal/routing"
)

// PositionLocker enumerates locked positions and harvests their fees.
type PositionLocker interface {
	Version() string
	LockedCount(ctx context.Context) (uint64, error)
	LockedTokenID(ctx context.Context, index uint64) (*big.Int, error)
	CollectFees(ctx context.Context, tokenID *big.Int) (common.Hash, error)
}

// Sweeper runs the routing backfill; satisfied by routing.Coordinator.
type Sweeper interface {
	Sweep(ctx context.Context, cfg routing.SweepConfig) (routing.Summary, error)
}

// Config controls the collection cycle.
type Config struct {
	Interval   time.Duration
	SweepDelay time.Duration
}

// Status is the collector's health report.
type Status struct {
	Running      bool   `json:"running"`
	CollectCount uint64 `json:"collect_count"`
	LastError    string `json:"last_error,omitempty"`
	StartedAt    string `json:"started_at,omitempty"`
}

// Collector periodically harvests accrued fees from every locked
// position across the current and legacy lockers. On start it runs a
// full routing backfill sweep before the first cycle.
type Collector struct {
	cfg     Config
	lockers []PositionLocker
	sweeper Sweeper
	logger  *zap.Logger

	mu           sync.RWMutex
	running      bool
	collectCount uint64
	lastErr      error
	startedAt    time.Time
}

func New(cfg Config, lockers []PositionLocker, sweeper Sweeper, logger *zap.Logger) (*Collector, error) {
	if len(lockers) == 0 {
		return nil, fmt.Errorf("at least one locker is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		cfg:     cfg,
		lockers: lockers,
		sweeper: sweeper,
		logger:  logger,
	}, nil
}

// Run executes the collection loop until the context is cancelled. The
// position in flight finishes before the loop exits.
func (c *Collector) Run(ctx context.Context) error {
	c.mu.Lock()
	c.running = true
	c.startedAt = time.Now().UTC()
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	if c.sweeper != nil {
		if _, err := c.sweeper.Sweep(ctx, routing.SweepConfig{InterCallDelay: c.cfg.SweepDelay}); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("startup backfill sweep failed", zap.Error(err))
			c.setLastError(err)
		}
	}

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		collected, skipped := c.Collect(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Info("collection cycle complete", zap.Int("collected", collected), zap.Int("skipped", skipped))
	}
}

// Collect runs one harvest cycle over every locker. A failing position
// is counted as skipped and never aborts the rest of the cycle.
func (c *Collector) Collect(ctx context.Context) (collected, skipped int) {
	for _, locker := range c.lockers {
		count, err := locker.LockedCount(ctx)
		if err != nil {
			c.logger.Warn("locked count read failed",
				zap.String("locker", locker.Version()), zap.Error(err))
			c.setLastError(err)
			continue
		}

		for i := uint64(0); i < count; i++ {
			if ctx.Err() != nil {
				return collected, skipped
			}

			tokenID, err := locker.LockedTokenID(ctx, i)
			if err != nil {
				c.logger.Warn("position id read failed",
					zap.String("locker", locker.Version()), zap.Uint64("index", i), zap.Error(err))
				c.setLastError(err)
				skipped++
				continue
			}

			if _, err := locker.CollectFees(ctx, tokenID); err != nil {
				c.logger.Warn("fee harvest failed",
					zap.String("locker", locker.Version()), zap.String("token_id", tokenID.String()), zap.Error(err))
				c.setLastError(err)
				skipped++
				continue
			}
			collected++

			c.mu.Lock()
			c.collectCount++
			c.mu.Unlock()
		}
	}
	return collected, skipped
}

// Status reports the collector's health.
func (c *Collector) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := Status{
		Running:      c.running,
		CollectCount: c.collectCount,
	}
	if c.lastErr != nil {
		status.LastError = c.lastErr.Error()
	}
	if !c.startedAt.IsZero() {
		status.StartedAt = c.startedAt.Format(time.RFC3339Nano)
	}
	return status
}

func (c *Collector) setLastError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}
