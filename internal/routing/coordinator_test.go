package routing

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"feeledger/internal/contracts"
	"feeledger/internal/model"
	"feeledger/internal/store/memory"
)

type fakeVault struct {
	mu          sync.Mutex
	assigned    bool
	currentDev  common.Address
	balances    []*big.Int
	balancesErr error

	assignCalls   int
	reassignCalls int
	assignErr     error
	reassignErr   error
}

func (f *fakeVault) PoolAssigned(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.assigned, nil
}

func (f *fakeVault) UnclaimedFeeBalances(context.Context, string) (contracts.UnclaimedBalances, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balancesErr != nil {
		return contracts.UnclaimedBalances{}, f.balancesErr
	}
	return contracts.UnclaimedBalances{
		Tokens:   []common.Address{common.HexToAddress("0x1111111111111111111111111111111111111111")},
		Balances: f.balances,
		Assigned: f.currentDev,
	}, nil
}

func (f *fakeVault) AssignDev(_ context.Context, _, wallet string) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignCalls++
	if f.assignErr != nil {
		return common.Hash{}, f.assignErr
	}
	f.assigned = true
	f.currentDev = common.HexToAddress(wallet)
	return common.HexToHash("0x01"), nil
}

func (f *fakeVault) ReassignDev(_ context.Context, _, wallet string) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reassignCalls++
	if f.reassignErr != nil {
		return common.Hash{}, f.reassignErr
	}
	f.currentDev = common.HexToAddress(wallet)
	return common.HexToHash("0x02"), nil
}

type fakeLocker struct {
	calls int
	err   error
}

func (f *fakeLocker) Version() string { return "current" }

func (f *fakeLocker) SetFeeRecipient(context.Context, string, string) (common.Hash, error) {
	f.calls++
	if f.err != nil {
		return common.Hash{}, f.err
	}
	return common.HexToHash("0x03"), nil
}

type fakeHook struct {
	locked    bool
	calls     int
	routeErr  error
	lockedErr error
}

func (f *fakeHook) RoutingLocked(context.Context, string) (bool, error) {
	return f.locked, f.lockedErr
}

func (f *fakeHook) SetPoolRoute(context.Context, string, string) (common.Hash, error) {
	f.calls++
	if f.routeErr != nil {
		return common.Hash{}, f.routeErr
	}
	return common.HexToHash("0x04"), nil
}

const (
	testPool   = "0x0000000000000000000000000000000000000000000000000000000000000042"
	walletA    = "0x2222222222222222222222222222222222222222"
	walletB    = "0x3333333333333333333333333333333333333333"
	projectOne = "project-1"
)

func newTestCoordinator(vault *fakeVault, locker *fakeLocker, hook *fakeHook) (*Coordinator, *memory.Store) {
	st := memory.New()
	var lockers []LockerRouting
	if locker != nil {
		lockers = []LockerRouting{locker}
	}
	var hookContract HookContract
	if hook != nil {
		hookContract = hook
	}
	return NewCoordinator(vault, lockers, hookContract, st, nil), st
}

func TestEnsureConverges(t *testing.T) {
	vault := &fakeVault{balances: []*big.Int{big.NewInt(100)}}
	coordinator, _ := newTestCoordinator(vault, &fakeLocker{}, &fakeHook{})

	req := Request{PoolID: testPool, Wallet: walletA}

	result, err := coordinator.Ensure(context.Background(), req)
	if err != nil {
		t.Fatalf("first ensure failed: %v", err)
	}
	if result.EscrowAction != model.EscrowAssigned {
		t.Fatalf("first call should assign, got %s", result.EscrowAction)
	}
	if vault.assignCalls != 1 || vault.reassignCalls != 0 {
		t.Fatalf("expected one assignDev, got assign=%d reassign=%d", vault.assignCalls, vault.reassignCalls)
	}

	result, err = coordinator.Ensure(context.Background(), req)
	if err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}
	if result.EscrowAction != model.EscrowNone {
		t.Fatalf("repeat call should be a no-op, got %s", result.EscrowAction)
	}
	if vault.assignCalls != 1 || vault.reassignCalls != 0 {
		t.Fatalf("repeat call must not write, got assign=%d reassign=%d", vault.assignCalls, vault.reassignCalls)
	}
}

func TestEnsureReassignsDifferentWallet(t *testing.T) {
	vault := &fakeVault{
		assigned:   true,
		currentDev: common.HexToAddress(walletB),
		balances:   []*big.Int{big.NewInt(100)},
	}
	coordinator, _ := newTestCoordinator(vault, nil, nil)

	result, err := coordinator.Ensure(context.Background(), Request{PoolID: testPool, Wallet: walletA})
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if result.EscrowAction != model.EscrowReassigned {
		t.Fatalf("expected reassigned, got %s", result.EscrowAction)
	}
	if vault.assignCalls != 0 {
		t.Fatalf("must never assignDev on an already-assigned pool, got %d calls", vault.assignCalls)
	}
	if vault.reassignCalls != 1 {
		t.Fatalf("expected one reassignDev, got %d", vault.reassignCalls)
	}
}

func TestEnsureBalanceReadFailureAssumesFees(t *testing.T) {
	vault := &fakeVault{balancesErr: fmt.Errorf("rpc timeout")}
	coordinator, _ := newTestCoordinator(vault, nil, nil)

	result, err := coordinator.Ensure(context.Background(), Request{PoolID: testPool, Wallet: walletA})
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if result.EscrowAction != model.EscrowAssigned {
		t.Fatalf("failed balance read must not skip assignment, got %s", result.EscrowAction)
	}
	if vault.assignCalls != 1 {
		t.Fatalf("expected assignDev despite unreadable balances, got %d", vault.assignCalls)
	}
}

func TestEnsureZeroBalancesSkipEscrow(t *testing.T) {
	vault := &fakeVault{balances: []*big.Int{big.NewInt(0)}}
	coordinator, _ := newTestCoordinator(vault, &fakeLocker{}, nil)

	result, err := coordinator.Ensure(context.Background(), Request{PoolID: testPool, Wallet: walletA})
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if result.EscrowAction != model.EscrowNone {
		t.Fatalf("zero balances should not assign, got %s", result.EscrowAction)
	}
	if vault.assignCalls != 0 {
		t.Fatalf("expected no vault write, got %d", vault.assignCalls)
	}
	if !result.LockerRoutingUpdated {
		t.Fatalf("locker routing still updates without escrowed fees")
	}
}

func TestEnsureBlockedReassignDoesNotFail(t *testing.T) {
	vault := &fakeVault{
		assigned:    true,
		currentDev:  common.HexToAddress(walletB),
		balances:    []*big.Int{big.NewInt(100)},
		reassignErr: fmt.Errorf("execution reverted: pool finalized"),
	}
	hook := &fakeHook{}
	coordinator, _ := newTestCoordinator(vault, &fakeLocker{}, hook)

	result, err := coordinator.Ensure(context.Background(), Request{PoolID: testPool, Wallet: walletA})
	if err != nil {
		t.Fatalf("blocked reassign must not fail the call: %v", err)
	}
	if result.EscrowAction != model.EscrowBlocked {
		t.Fatalf("expected blocked, got %s", result.EscrowAction)
	}
	if hook.calls != 1 {
		t.Fatalf("routing layers still run after a blocked escrow action, hook calls=%d", hook.calls)
	}
}

func TestEnsureLockedHookIsBestEffort(t *testing.T) {
	vault := &fakeVault{balances: []*big.Int{big.NewInt(100)}}
	hook := &fakeHook{locked: true}
	coordinator, _ := newTestCoordinator(vault, nil, hook)

	result, err := coordinator.Ensure(context.Background(), Request{PoolID: testPool, Wallet: walletA})
	if err != nil {
		t.Fatalf("locked hook must not fail the call: %v", err)
	}
	if result.HookRoutingUpdated {
		t.Fatalf("locked hook should report no update")
	}
	if hook.calls != 0 {
		t.Fatalf("locked hook must not be written, calls=%d", hook.calls)
	}
	if result.EscrowAction != model.EscrowAssigned {
		t.Fatalf("escrow assignment proceeds regardless, got %s", result.EscrowAction)
	}
}

func TestEnsureLinksPoolToProject(t *testing.T) {
	vault := &fakeVault{balances: []*big.Int{big.NewInt(100)}}
	coordinator, st := newTestCoordinator(vault, nil, nil)

	rec := model.DistributionRecord{
		TxHash: "0xaaa", LogIndex: 0, EventType: model.EventDeposit,
		PoolID: testPool, Amount: "1", DevAmount: "1", ProtocolAmount: "0",
		BlockNumber: 1,
	}
	if _, err := st.CreateDistribution(context.Background(), rec); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	_, err := coordinator.Ensure(context.Background(), Request{PoolID: testPool, Wallet: walletA, ProjectID: projectOne})
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}

	recs, err := st.FindByTxHash(context.Background(), "0xaaa")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if recs[0].ProjectID == nil || *recs[0].ProjectID != projectOne {
		t.Fatalf("ensure should backfill the project link, got %v", recs[0].ProjectID)
	}
}

func TestEnsureSerializesSamePool(t *testing.T) {
	vault := &fakeVault{balances: []*big.Int{big.NewInt(100)}}
	coordinator, _ := newTestCoordinator(vault, nil, nil)

	req := Request{PoolID: testPool, Wallet: walletA}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := coordinator.Ensure(context.Background(), req); err != nil {
				t.Errorf("ensure failed: %v", err)
			}
		}()
	}
	wg.Wait()

	// Serialized same-pool calls read the assignment left by the first
	// writer, so exactly one vault write happens.
	if vault.assignCalls != 1 {
		t.Fatalf("expected exactly one assignDev across concurrent calls, got %d", vault.assignCalls)
	}
	if vault.reassignCalls != 0 {
		t.Fatalf("expected no reassignDev, got %d", vault.reassignCalls)
	}
}

func TestEnsureAsyncNeverPanicsAndConverges(t *testing.T) {
	vault := &fakeVault{balances: []*big.Int{big.NewInt(100)}}
	coordinator, _ := newTestCoordinator(vault, nil, nil)

	coordinator.EnsureAsync(Request{PoolID: testPool, Wallet: walletA}, time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		vault.mu.Lock()
		calls := vault.assignCalls
		vault.mu.Unlock()
		if calls == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("async routing never reached the vault")
}

func TestEnsureValidatesRequest(t *testing.T) {
	coordinator, _ := newTestCoordinator(&fakeVault{}, nil, nil)

	if _, err := coordinator.Ensure(context.Background(), Request{Wallet: walletA}); err == nil {
		t.Fatalf("expected error for missing pool id")
	}
	if _, err := coordinator.Ensure(context.Background(), Request{PoolID: testPool}); err == nil {
		t.Fatalf("expected error for missing wallet")
	}
}
