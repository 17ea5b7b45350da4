package indexer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"feeledger/internal/store"
)

// ChainSource is the read surface of the chain the indexer depends on.
type ChainSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// RunConfig holds runtime settings for the ledger indexer.
type RunConfig struct {
	VaultAddress common.Address
	StartBlock   uint64
	BatchSize    uint64
	PollInterval time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	LagDegraded  uint64
	LagUnhealthy uint64
}

// Runner polls the chain for fee vault logs, classifies them into
// distribution records, and advances the resumable cursor. The cursor
// moves only after a full batch is durably stored, so an interruption
// replays into the idempotent insert rather than losing records.
type Runner struct {
	cfg        RunConfig
	chain      ChainSource
	store      store.Store
	classifier *Classifier
	logger     *zap.Logger

	mu            sync.RWMutex
	currentBlock  uint64
	lastProcessed uint64
	lastErr       error
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, chainSource ChainSource, st store.Store, logger *zap.Logger) (*Runner, error) {
	if chainSource == nil {
		return nil, fmt.Errorf("chain source is nil")
	}
	if st == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if cfg.BatchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	classifier, err := NewClassifier()
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:        cfg,
		chain:      chainSource,
		store:      st,
		classifier: classifier,
		logger:     logger,
	}, nil
}

// Run executes the polling loop until the context is cancelled. A batch
// in flight finishes before the loop exits.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := r.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("poll failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll runs one indexing pass from the cursor to the chain head. A fetch
// error aborts only the current pass; the cursor stays at the last fully
// stored batch.
func (r *Runner) Poll(ctx context.Context) error {
	err := r.poll(ctx)
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
	return err
}

func (r *Runner) poll(ctx context.Context) error {
	from := r.cfg.StartBlock
	cursor, ok, err := r.store.LoadCursor(ctx)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	if ok && cursor.LastProcessedBlock+1 > from {
		from = cursor.LastProcessedBlock + 1
	}

	latest, err := r.latestBlockWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}

	r.mu.Lock()
	r.currentBlock = latest
	if ok {
		r.lastProcessed = cursor.LastProcessedBlock
	}
	r.mu.Unlock()

	if from > latest {
		return nil
	}

	ranges, err := SplitRange(from, latest, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := r.processBatch(ctx, blockRange); err != nil {
			return err
		}

		r.mu.Lock()
		r.lastProcessed = blockRange.To
		r.mu.Unlock()
	}

	return nil
}

func (r *Runner) processBatch(ctx context.Context, blockRange BlockRange) error {
	logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
	if err != nil {
		return fmt.Errorf("filter logs %d-%d: %w", blockRange.From, blockRange.To, err)
	}

	// Ascending (block, logIndex) keeps "most recent" listings meaningful;
	// the dedup key makes insertion order immaterial for correctness.
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	indexedAt := time.Now().UTC()
	stored := 0
	duplicates := 0
	for _, log := range logs {
		if !r.classifier.CanClassify(log) {
			r.logger.Debug("skip unknown topic0", zap.String("tx", log.TxHash.Hex()), zap.Uint("log_index", log.Index))
			continue
		}

		ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
		if err != nil {
			return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
		}

		rec, err := r.classifier.Classify(log, ts, indexedAt)
		if err != nil {
			return fmt.Errorf("classify %s:%d: %w", log.TxHash.Hex(), log.Index, err)
		}

		created, err := r.store.CreateDistribution(ctx, rec)
		if err != nil {
			return fmt.Errorf("store %s:%d: %w", log.TxHash.Hex(), log.Index, err)
		}
		if created == nil {
			duplicates++
			continue
		}
		stored++
	}

	if err := r.store.SaveCursor(ctx, blockRange.To); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}

	r.logger.Info("batch complete",
		zap.Uint64("from", blockRange.From),
		zap.Uint64("to", blockRange.To),
		zap.Int("stored", stored),
		zap.Int("duplicates", duplicates),
	)
	return nil
}

func (r *Runner) latestBlockWithRetry(ctx context.Context) (uint64, error) {
	var latest uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		latest, err = r.chain.LatestBlockNumber(ctx)
		return err
	})
	return latest, err
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, []common.Address{r.cfg.VaultAddress}, r.classifier.Topics())
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}
