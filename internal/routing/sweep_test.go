package routing

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"feeledger/internal/model"
)

var errNetwork = errors.New("connection refused")

func TestSweepSummaryCounts(t *testing.T) {
	vault := &fakeVault{balances: []*big.Int{big.NewInt(100)}}
	coordinator, st := newTestCoordinator(vault, &fakeLocker{}, nil)

	st.PutProject(model.Project{ID: "p1", PoolID: testPool, OwnerWallet: walletA, VerificationMethod: "dns"})
	st.PutProject(model.Project{ID: "p2", PoolID: "0x99", OwnerWallet: "", VerificationMethod: "dns"})
	st.PutProject(model.Project{ID: "p3"}) // no pool, excluded from the listing entirely

	summary, err := coordinator.Sweep(context.Background(), SweepConfig{InterCallDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	if summary.Scanned != 2 {
		t.Fatalf("expected 2 scanned, got %d", summary.Scanned)
	}
	if summary.Updated != 1 {
		t.Fatalf("expected 1 updated, got %d", summary.Updated)
	}
	if summary.SkippedNoVerification != 1 {
		t.Fatalf("expected 1 skipped for missing verification, got %d", summary.SkippedNoVerification)
	}
	if summary.Failed != 0 {
		t.Fatalf("expected no failures, got %d", summary.Failed)
	}
}

func TestSweepCountsNothingToDo(t *testing.T) {
	// Already assigned to the right wallet with no escrowed fees and no
	// routing layers configured: nothing to update.
	vault := &fakeVault{assigned: true, balances: []*big.Int{big.NewInt(0)}}
	coordinator, st := newTestCoordinator(vault, nil, nil)

	st.PutProject(model.Project{ID: "p1", PoolID: testPool, OwnerWallet: walletA, VerificationMethod: "oauth"})

	summary, err := coordinator.Sweep(context.Background(), SweepConfig{InterCallDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if summary.SkippedNoFees != 1 {
		t.Fatalf("expected 1 skipped for no fees, got %d", summary.SkippedNoFees)
	}
	if summary.Updated != 0 {
		t.Fatalf("expected nothing updated, got %d", summary.Updated)
	}
}

func TestSweepContinuesPastFailures(t *testing.T) {
	vault := &fakeVault{balances: []*big.Int{big.NewInt(100)}, assignErr: errNetwork}
	coordinator, st := newTestCoordinator(vault, nil, nil)

	st.PutProject(model.Project{ID: "p1", PoolID: testPool, OwnerWallet: walletA, VerificationMethod: "dns"})
	st.PutProject(model.Project{ID: "p2", PoolID: "0x99", OwnerWallet: walletB, VerificationMethod: "dns"})

	summary, err := coordinator.Sweep(context.Background(), SweepConfig{InterCallDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("sweep itself must not fail: %v", err)
	}
	if summary.Failed != 2 {
		t.Fatalf("expected both items to fail, got %d", summary.Failed)
	}
	if summary.Scanned != 2 {
		t.Fatalf("one failure must not stop the sweep, scanned=%d", summary.Scanned)
	}
}
