package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"feeledger/internal/model"
	"feeledger/internal/store"
)

// Store provides Postgres persistence for the distribution ledger, the
// indexer cursor, and project linkage reads.
type Store struct {
	pool *pgxpool.Pool
}

// New connects and pings the database. A connection or ping failure is
// wrapped in store.ErrUnavailable so startup can fall back to memory.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: pg dsn is required", store.ErrUnavailable)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables this store owns if they do not exist.
// The projects table is owned by the verification subsystem and only
// read here.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{`
		CREATE TABLE IF NOT EXISTS distributions (
			tx_hash           text        NOT NULL,
			log_index         bigint      NOT NULL,
			event_type        text        NOT NULL,
			pool_id           text        NOT NULL,
			token_address     text        NOT NULL DEFAULT '',
			amount            numeric(78,0) NOT NULL DEFAULT 0,
			dev_amount        numeric(78,0) NOT NULL DEFAULT 0,
			protocol_amount   numeric(78,0) NOT NULL DEFAULT 0,
			dev_address       text        NOT NULL DEFAULT '',
			recipient_address text        NOT NULL DEFAULT '',
			block_number      bigint      NOT NULL,
			block_timestamp   bigint      NOT NULL,
			indexed_at        timestamptz NOT NULL DEFAULT now(),
			project_id        text,
			PRIMARY KEY (tx_hash, log_index)
		)`,
		`CREATE INDEX IF NOT EXISTS distributions_pool_idx ON distributions (pool_id, block_number DESC)`,
		`CREATE INDEX IF NOT EXISTS distributions_dev_idx ON distributions (dev_address, block_number DESC)`,
		`CREATE TABLE IF NOT EXISTS indexer_cursor (
			id                   bool PRIMARY KEY DEFAULT true CHECK (id),
			last_processed_block bigint      NOT NULL,
			updated_at           timestamptz NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const distributionColumns = `
	tx_hash, log_index, event_type, pool_id, token_address,
	amount::text, dev_amount::text, protocol_amount::text,
	dev_address, recipient_address, block_number, block_timestamp,
	to_char(indexed_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"'), project_id
`

// CreateDistribution inserts a record; the (tx_hash, log_index) conflict
// target makes replayed events a silent no-op, signalled as (nil, nil).
func (s *Store) CreateDistribution(ctx context.Context, rec model.DistributionRecord) (*model.DistributionRecord, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO distributions (
			tx_hash, log_index, event_type, pool_id, token_address,
			amount, dev_amount, protocol_amount, dev_address, recipient_address,
			block_number, block_timestamp, indexed_at, project_id
		) VALUES (
			$1, $2, $3, $4, $5,
			COALESCE(NULLIF($6,''),'0')::numeric, COALESCE(NULLIF($7,''),'0')::numeric, COALESCE(NULLIF($8,''),'0')::numeric,
			$9, $10, $11, $12, now(), $13
		)
		ON CONFLICT (tx_hash, log_index) DO NOTHING
		RETURNING `+distributionColumns,
		rec.TxHash,
		int64(rec.LogIndex),
		string(rec.EventType),
		rec.PoolID,
		rec.TokenAddress,
		rec.Amount,
		rec.DevAmount,
		rec.ProtocolAmount,
		rec.DevAddress,
		rec.RecipientAddress,
		int64(rec.BlockNumber),
		int64(rec.BlockTimestamp),
		rec.ProjectID,
	)

	stored, err := scanDistribution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return stored, nil
}

func (s *Store) FindByPoolID(ctx context.Context, poolID string, limit, offset int) ([]model.DistributionRecord, error) {
	return s.FindDistributions(ctx, store.Filter{PoolID: poolID, Limit: limit, Offset: offset})
}

func (s *Store) FindByDevAddress(ctx context.Context, dev string, limit, offset int) ([]model.DistributionRecord, error) {
	return s.FindDistributions(ctx, store.Filter{DevAddress: dev, Limit: limit, Offset: offset})
}

// FindByTxHash returns every record of one transaction, log_index ascending.
func (s *Store) FindByTxHash(ctx context.Context, txHash string) ([]model.DistributionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+distributionColumns+`
		FROM distributions
		WHERE tx_hash = $1
		ORDER BY log_index ASC
	`, txHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDistributions(rows)
}

func (s *Store) FindDistributions(ctx context.Context, f store.Filter) ([]model.DistributionRecord, error) {
	f = f.Clamp()

	where := "TRUE"
	args := make([]interface{}, 0, 6)
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.PoolID != "" {
		where += " AND pool_id = " + next(f.PoolID)
	}
	if f.DevAddress != "" {
		where += " AND dev_address = " + next(f.DevAddress)
	}
	if f.EventType != "" {
		where += " AND event_type = " + next(string(f.EventType))
	}
	if f.ProjectID != "" {
		where += " AND project_id = " + next(f.ProjectID)
	}
	query := `
		SELECT ` + distributionColumns + `
		FROM distributions
		WHERE ` + where + `
		ORDER BY block_number DESC, log_index DESC
		LIMIT ` + next(f.Limit) + ` OFFSET ` + next(f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDistributions(rows)
}

// AggregateStats computes ledger totals in one pass, using NUMERIC sums
// so wei amounts never touch floating point.
func (s *Store) AggregateStats(ctx context.Context) (model.AggregateStats, error) {
	var stats model.AggregateStats
	var lastAt *string
	row := s.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN event_type = 'deposit' THEN dev_amount + protocol_amount ELSE 0 END), 0)::text,
			COALESCE(SUM(CASE WHEN event_type = 'dev_claimed' THEN amount ELSE 0 END), 0)::text,
			COALESCE(SUM(CASE WHEN event_type = 'protocol_claimed' THEN amount ELSE 0 END), 0)::text,
			COALESCE(SUM(CASE WHEN event_type = 'escrow' THEN amount ELSE 0 END), 0)::text,
			COUNT(*),
			COUNT(DISTINCT NULLIF(dev_address, '')),
			COUNT(DISTINCT NULLIF(pool_id, '')),
			COALESCE(MAX(block_number), 0),
			to_char(MAX(indexed_at) AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"')
		FROM distributions
	`)
	if err := row.Scan(
		&stats.TotalDistributedWei,
		&stats.TotalDevClaimedWei,
		&stats.TotalProtocolClaimedWei,
		&stats.TotalEscrowedWei,
		&stats.DistributionCount,
		&stats.UniqueDevs,
		&stats.UniquePools,
		&stats.LastIndexedBlock,
		&lastAt,
	); err != nil {
		return model.AggregateStats{}, err
	}
	if lastAt != nil {
		stats.LastIndexedAt = *lastAt
	}
	return stats, nil
}

// LinkPoolToProject backfills project_id where it is still unset.
func (s *Store) LinkPoolToProject(ctx context.Context, poolID, projectID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE distributions
		SET project_id = $2
		WHERE pool_id = $1 AND project_id IS NULL
	`, poolID, projectID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) LoadCursor(ctx context.Context) (model.IndexerCursor, bool, error) {
	var cur model.IndexerCursor
	row := s.pool.QueryRow(ctx, `
		SELECT last_processed_block,
		       to_char(updated_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"')
		FROM indexer_cursor WHERE id
	`)
	if err := row.Scan(&cur.LastProcessedBlock, &cur.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.IndexerCursor{}, false, nil
		}
		return model.IndexerCursor{}, false, err
	}
	return cur, true, nil
}

// SaveCursor upserts the singleton row; GREATEST keeps it monotone even
// under a replayed lower block.
func (s *Store) SaveCursor(ctx context.Context, block uint64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_cursor (id, last_processed_block, updated_at)
		VALUES (true, $1, now())
		ON CONFLICT (id) DO UPDATE
		SET last_processed_block = GREATEST(indexer_cursor.last_processed_block, EXCLUDED.last_processed_block),
		    updated_at = now()
	`, int64(block))
	return err
}

func (s *Store) ProjectsWithPool(ctx context.Context) ([]model.Project, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, COALESCE(pool_id, ''), COALESCE(owner_wallet, ''), COALESCE(verification_method, '')
		FROM projects
		WHERE pool_id IS NOT NULL AND pool_id <> ''
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Project, 0, 64)
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ID, &p.PoolID, &p.OwnerWallet, &p.VerificationMethod); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ProjectByPool(ctx context.Context, poolID string) (*model.Project, error) {
	var p model.Project
	row := s.pool.QueryRow(ctx, `
		SELECT id, COALESCE(pool_id, ''), COALESCE(owner_wallet, ''), COALESCE(verification_method, '')
		FROM projects
		WHERE pool_id = $1
		LIMIT 1
	`, poolID)
	if err := row.Scan(&p.ID, &p.PoolID, &p.OwnerWallet, &p.VerificationMethod); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func scanDistribution(row pgx.Row) (*model.DistributionRecord, error) {
	var rec model.DistributionRecord
	var eventType string
	var logIndex, blockNumber, blockTimestamp int64
	if err := row.Scan(
		&rec.TxHash,
		&logIndex,
		&eventType,
		&rec.PoolID,
		&rec.TokenAddress,
		&rec.Amount,
		&rec.DevAmount,
		&rec.ProtocolAmount,
		&rec.DevAddress,
		&rec.RecipientAddress,
		&blockNumber,
		&blockTimestamp,
		&rec.IndexedAt,
		&rec.ProjectID,
	); err != nil {
		return nil, err
	}
	rec.LogIndex = uint64(logIndex)
	rec.EventType = model.EventType(eventType)
	rec.BlockNumber = uint64(blockNumber)
	rec.BlockTimestamp = uint64(blockTimestamp)
	return &rec, nil
}

func collectDistributions(rows pgx.Rows) ([]model.DistributionRecord, error) {
	out := make([]model.DistributionRecord, 0, 32)
	for rows.Next() {
		rec, err := scanDistribution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
