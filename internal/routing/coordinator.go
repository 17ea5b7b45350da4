package routing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"feeledger/internal/contracts"
	"feeledger/internal/model"
	"feeledger/internal/store"
)

// VaultContract is the escrow surface the coordinator converges.
type VaultContract interface {
	PoolAssigned(ctx context.Context, poolID string) (bool, error)
	UnclaimedFeeBalances(ctx context.Context, poolID string) (contracts.UnclaimedBalances, error)
	AssignDev(ctx context.Context, poolID, wallet string) (common.Hash, error)
	ReassignDev(ctx context.Context, poolID, wallet string) (common.Hash, error)
}

// LockerRouting is the per-pool fee-recipient pointer of one locker.
type LockerRouting interface {
	Version() string
	SetFeeRecipient(ctx context.Context, poolID, wallet string) (common.Hash, error)
}

// HookContract is the swap-path routing surface.
type HookContract interface {
	RoutingLocked(ctx context.Context, poolID string) (bool, error)
	SetPoolRoute(ctx context.Context, poolID, wallet string) (common.Hash, error)
}

// Request identifies the pool and the wallet its fees belong to.
type Request struct {
	PoolID    string
	Wallet    string
	ProjectID string
	PoolToken string
}

// Coordinator converges on-chain assignment state across the vault, the
// lockers, and the hook so escrowed and future fees reach the verified
// wallet. Calls are idempotent: state is read before every write, so a
// repeat with identical arguments ends as a no-op.
type Coordinator struct {
	vault   VaultContract
	lockers []LockerRouting
	hook    HookContract
	store   store.Store
	logger  *zap.Logger

	// Serializes concurrent calls for the same pool; calls on different
	// pools proceed in parallel.
	poolMu    sync.Mutex
	poolLocks map[string]*sync.Mutex
}

func NewCoordinator(vault VaultContract, lockers []LockerRouting, hook HookContract, st store.Store, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		vault:     vault,
		lockers:   lockers,
		hook:      hook,
		store:     st,
		logger:    logger,
		poolLocks: make(map[string]*sync.Mutex),
	}
}

// Ensure guarantees that escrowed fees for the pool become claimable by
// the wallet and that future fees route there directly. It returns an
// error only when the vault is unreachable; locker and hook updates are
// best effort and a blocked route never fails the call.
func (c *Coordinator) Ensure(ctx context.Context, req Request) (model.RoutingResult, error) {
	result := model.RoutingResult{
		PoolID:       req.PoolID,
		Wallet:       req.Wallet,
		EscrowAction: model.EscrowNone,
	}
	if req.PoolID == "" {
		return result, fmt.Errorf("pool id is required")
	}
	if req.Wallet == "" {
		return result, fmt.Errorf("wallet is required")
	}

	lock := c.lockFor(req.PoolID)
	lock.Lock()
	defer lock.Unlock()

	assigned, err := c.vault.PoolAssigned(ctx, req.PoolID)
	if err != nil {
		return result, fmt.Errorf("read poolAssigned: %w", err)
	}

	// A failed balance read is treated as fees being present: a false
	// negative strands escrowed money, a false positive wastes one call.
	hasFees := true
	currentDev := ""
	balances, err := c.vault.UnclaimedFeeBalances(ctx, req.PoolID)
	if err != nil {
		c.logger.Warn("unclaimed balance read failed, assuming fees present",
			zap.String("pool_id", req.PoolID), zap.Error(err))
	} else {
		hasFees = balances.HasFees()
		if balances.Assigned != (common.Address{}) {
			currentDev = balances.Assigned.Hex()
		}
	}

	if hasFees {
		action, err := c.convergeEscrow(ctx, req, assigned, currentDev)
		result.EscrowAction = action
		if err != nil {
			return result, err
		}
	}

	result.LockerRoutingUpdated = c.updateLockerRouting(ctx, req)
	result.HookRoutingUpdated = c.updateHookRouting(ctx, req)

	if req.ProjectID != "" && c.store != nil {
		if _, err := c.store.LinkPoolToProject(ctx, req.PoolID, req.ProjectID); err != nil {
			c.logger.Warn("pool-project backfill link failed",
				zap.String("pool_id", req.PoolID), zap.String("project_id", req.ProjectID), zap.Error(err))
		}
	}

	return result, nil
}

// EnsureAsync runs Ensure in a supervised goroutine. Used after a claim
// commits: a routing failure must never fail the parent claim, only log
// a warning, since the next backfill sweep retries it.
func (c *Coordinator) EnsureAsync(req Request, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		result, err := c.Ensure(ctx, req)
		if err != nil {
			c.logger.Warn("async routing failed, backfill will retry",
				zap.String("pool_id", req.PoolID), zap.String("wallet", req.Wallet), zap.Error(err))
			return
		}
		c.logger.Info("async routing complete",
			zap.String("pool_id", req.PoolID),
			zap.String("escrow_action", string(result.EscrowAction)),
			zap.Bool("locker_updated", result.LockerRoutingUpdated),
			zap.Bool("hook_updated", result.HookRoutingUpdated),
		)
	}()
}

func (c *Coordinator) convergeEscrow(ctx context.Context, req Request, assigned bool, currentDev string) (model.EscrowAction, error) {
	switch {
	case !assigned:
		if _, err := c.vault.AssignDev(ctx, req.PoolID, req.Wallet); err != nil {
			if isRevert(err) {
				c.logger.Warn("assignDev reverted", zap.String("pool_id", req.PoolID), zap.Error(err))
				return model.EscrowBlocked, nil
			}
			return model.EscrowNone, fmt.Errorf("assignDev: %w", err)
		}
		return model.EscrowAssigned, nil

	case !strings.EqualFold(currentDev, req.Wallet):
		// Covers both a genuinely different wallet and an unknown one
		// after a failed balance read; reassigning to the same wallet
		// converges at the cost of one wasted call.
		if _, err := c.vault.ReassignDev(ctx, req.PoolID, req.Wallet); err != nil {
			if isRevert(err) {
				c.logger.Warn("reassignDev reverted", zap.String("pool_id", req.PoolID), zap.Error(err))
				return model.EscrowBlocked, nil
			}
			return model.EscrowNone, fmt.Errorf("reassignDev: %w", err)
		}
		return model.EscrowReassigned, nil

	default:
		return model.EscrowNone, nil
	}
}

func (c *Coordinator) updateLockerRouting(ctx context.Context, req Request) bool {
	updated := false
	for _, locker := range c.lockers {
		if _, err := locker.SetFeeRecipient(ctx, req.PoolID, req.Wallet); err != nil {
			c.logger.Warn("locker routing update failed",
				zap.String("pool_id", req.PoolID), zap.String("locker", locker.Version()), zap.Error(err))
			continue
		}
		updated = true
	}
	return updated
}

func (c *Coordinator) updateHookRouting(ctx context.Context, req Request) bool {
	if c.hook == nil {
		return false
	}

	locked, err := c.hook.RoutingLocked(ctx, req.PoolID)
	if err != nil {
		c.logger.Warn("hook routing flag read failed", zap.String("pool_id", req.PoolID), zap.Error(err))
	} else if locked {
		// Finalized pools cannot be rerouted; terminal for the automatic
		// path, left to the next sweep or operator run.
		c.logger.Warn("hook routing blocked: pool finalized", zap.String("pool_id", req.PoolID))
		return false
	}

	if _, err := c.hook.SetPoolRoute(ctx, req.PoolID, req.Wallet); err != nil {
		c.logger.Warn("hook routing update failed", zap.String("pool_id", req.PoolID), zap.Error(err))
		return false
	}
	return true
}

func (c *Coordinator) lockFor(poolID string) *sync.Mutex {
	c.poolMu.Lock()
	defer c.poolMu.Unlock()
	lock, ok := c.poolLocks[poolID]
	if !ok {
		lock = &sync.Mutex{}
		c.poolLocks[poolID] = lock
	}
	return lock
}

func isRevert(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "revert") || strings.Contains(msg, "execution reverted")
}
