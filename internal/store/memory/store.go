package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"feeledger/internal/model"
	"feeledger/internal/store"
)

// Store is the volatile fallback implementation of store.Store. It keeps
// the identical external contract as the postgres store; state is lost
// on restart, which is a documented limitation of fallback mode rather
// than an error callers must handle.
type Store struct {
	mu       sync.RWMutex
	records  map[string]*model.DistributionRecord
	order    []string
	cursor   model.IndexerCursor
	hasCur   bool
	projects map[string]*model.Project
}

func New() *Store {
	return &Store{
		records:  make(map[string]*model.DistributionRecord),
		projects: make(map[string]*model.Project),
	}
}

func (s *Store) Close() {}

// CreateDistribution inserts the record unless its (tx_hash, log_index)
// key is already present, in which case it returns (nil, nil).
func (s *Store) CreateDistribution(_ context.Context, rec model.DistributionRecord) (*model.DistributionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Key()
	if _, ok := s.records[key]; ok {
		return nil, nil
	}
	if rec.IndexedAt == "" {
		rec.IndexedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	stored := rec
	s.records[key] = &stored
	s.order = append(s.order, key)

	out := stored
	return &out, nil
}

func (s *Store) FindByPoolID(ctx context.Context, poolID string, limit, offset int) ([]model.DistributionRecord, error) {
	return s.FindDistributions(ctx, store.Filter{PoolID: poolID, Limit: limit, Offset: offset})
}

func (s *Store) FindByDevAddress(ctx context.Context, dev string, limit, offset int) ([]model.DistributionRecord, error) {
	return s.FindDistributions(ctx, store.Filter{DevAddress: dev, Limit: limit, Offset: offset})
}

// FindByTxHash returns every record of one transaction, log_index ascending.
func (s *Store) FindByTxHash(_ context.Context, txHash string) ([]model.DistributionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.DistributionRecord, 0, 4)
	for _, rec := range s.records {
		if rec.TxHash == txHash {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LogIndex < out[j].LogIndex })
	return out, nil
}

func (s *Store) FindDistributions(_ context.Context, f store.Filter) ([]model.DistributionRecord, error) {
	f = f.Clamp()

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]model.DistributionRecord, 0, len(s.records))
	for _, rec := range s.records {
		if f.PoolID != "" && rec.PoolID != f.PoolID {
			continue
		}
		if f.DevAddress != "" && rec.DevAddress != f.DevAddress {
			continue
		}
		if f.EventType != "" && rec.EventType != f.EventType {
			continue
		}
		if f.ProjectID != "" && (rec.ProjectID == nil || *rec.ProjectID != f.ProjectID) {
			continue
		}
		matched = append(matched, *rec)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].BlockNumber != matched[j].BlockNumber {
			return matched[i].BlockNumber > matched[j].BlockNumber
		}
		return matched[i].LogIndex > matched[j].LogIndex
	})

	if f.Offset >= len(matched) {
		return []model.DistributionRecord{}, nil
	}
	matched = matched[f.Offset:]
	if len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

// AggregateStats sums the ledger with arbitrary-precision addition:
// dev+protocol amounts over deposits for "distributed", amount over the
// claim and escrow event types for their respective totals.
func (s *Store) AggregateStats(_ context.Context) (model.AggregateStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	distributed := new(big.Int)
	devClaimed := new(big.Int)
	protocolClaimed := new(big.Int)
	escrowed := new(big.Int)
	devs := make(map[string]struct{})
	pools := make(map[string]struct{})

	var lastBlock uint64
	var lastAt string
	for _, rec := range s.records {
		switch rec.EventType {
		case model.EventDeposit:
			addDecimal(distributed, rec.DevAmount)
			addDecimal(distributed, rec.ProtocolAmount)
		case model.EventDevClaimed:
			addDecimal(devClaimed, rec.Amount)
		case model.EventProtocolClaimed:
			addDecimal(protocolClaimed, rec.Amount)
		case model.EventEscrow:
			addDecimal(escrowed, rec.Amount)
		}
		if rec.DevAddress != "" {
			devs[rec.DevAddress] = struct{}{}
		}
		if rec.PoolID != "" {
			pools[rec.PoolID] = struct{}{}
		}
		if rec.BlockNumber > lastBlock {
			lastBlock = rec.BlockNumber
			lastAt = rec.IndexedAt
		}
	}

	return model.AggregateStats{
		TotalDistributedWei:     distributed.String(),
		TotalDevClaimedWei:      devClaimed.String(),
		TotalProtocolClaimedWei: protocolClaimed.String(),
		TotalEscrowedWei:        escrowed.String(),
		DistributionCount:       uint64(len(s.records)),
		UniqueDevs:              uint64(len(devs)),
		UniquePools:             uint64(len(pools)),
		LastIndexedBlock:        lastBlock,
		LastIndexedAt:           lastAt,
	}, nil
}

// LinkPoolToProject backfills project_id on records that do not have one
// yet. Records with a project already linked are never overwritten.
func (s *Store) LinkPoolToProject(_ context.Context, poolID, projectID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated int64
	for _, rec := range s.records {
		if rec.PoolID != poolID || rec.ProjectID != nil {
			continue
		}
		id := projectID
		rec.ProjectID = &id
		updated++
	}
	return updated, nil
}

func (s *Store) LoadCursor(_ context.Context) (model.IndexerCursor, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor, s.hasCur, nil
}

// SaveCursor advances the cursor; lower blocks are ignored.
func (s *Store) SaveCursor(_ context.Context, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasCur && block < s.cursor.LastProcessedBlock {
		return nil
	}
	s.cursor = model.IndexerCursor{
		LastProcessedBlock: block,
		UpdatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
	}
	s.hasCur = true
	return nil
}

func (s *Store) ProjectsWithPool(_ context.Context) ([]model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Project, 0, len(s.projects))
	for _, p := range s.projects {
		if p.PoolID != "" {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ProjectByPool(_ context.Context, poolID string) (*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.projects {
		if p.PoolID == poolID {
			out := *p
			return &out, nil
		}
	}
	return nil, nil
}

// PutProject upserts a project row. The verification subsystem owns
// project records; this entry point exists for fallback mode and tests.
func (s *Store) PutProject(p model.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := p
	s.projects[p.ID] = &stored
}

func addDecimal(sum *big.Int, dec string) {
	if dec == "" {
		return
	}
	v, ok := new(big.Int).SetString(dec, 10)
	if !ok {
		return
	}
	sum.Add(sum, v)
}
