package store

import (
	"context"
	"errors"

	"feeledger/internal/model"
)

// ErrUnavailable signals that the persistent backend cannot be reached.
// Startup uses it to fall back to the in-memory store.
var ErrUnavailable = errors.New("store: backend unavailable")

const (
	// DefaultLimit is the page size used when a filter does not set one.
	DefaultLimit = 20
	// MaxLimit caps the page size of every listing operation.
	MaxLimit = 100
)

// Filter narrows distribution listings. Zero values mean "any".
type Filter struct {
	PoolID     string
	DevAddress string
	EventType  model.EventType
	ProjectID  string
	Limit      int
	Offset     int
}

// Clamp normalizes pagination bounds: limit into [1, MaxLimit] with
// DefaultLimit for the zero value, offset to >= 0.
func (f Filter) Clamp() Filter {
	if f.Limit == 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit < 1 {
		f.Limit = 1
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Store is the durable repository of distribution records, the indexer
// cursor, and the project linkage reads the routing layer depends on.
// Implementations: postgres (persistent) and memory (volatile fallback
// with an identical contract).
type Store interface {
	// CreateDistribution inserts a record, returning nil (no error) when
	// a record with the same (tx_hash, log_index) already exists.
	CreateDistribution(ctx context.Context, rec model.DistributionRecord) (*model.DistributionRecord, error)

	FindByPoolID(ctx context.Context, poolID string, limit, offset int) ([]model.DistributionRecord, error)
	FindByDevAddress(ctx context.Context, dev string, limit, offset int) ([]model.DistributionRecord, error)
	// FindByTxHash returns all records of one transaction ordered by
	// log_index ascending.
	FindByTxHash(ctx context.Context, txHash string) ([]model.DistributionRecord, error)
	FindDistributions(ctx context.Context, f Filter) ([]model.DistributionRecord, error)

	AggregateStats(ctx context.Context) (model.AggregateStats, error)

	// LinkPoolToProject sets project_id on records for poolID where it is
	// currently unset. First write wins; returns the number updated.
	LinkPoolToProject(ctx context.Context, poolID, projectID string) (int64, error)

	LoadCursor(ctx context.Context) (model.IndexerCursor, bool, error)
	// SaveCursor advances the cursor; a block lower than the stored one
	// is ignored (the cursor is monotone).
	SaveCursor(ctx context.Context, block uint64) error

	// ProjectsWithPool lists projects that have a pool linked, for the
	// backfill sweep.
	ProjectsWithPool(ctx context.Context) ([]model.Project, error)
	ProjectByPool(ctx context.Context, poolID string) (*model.Project, error)

	Close()
}
