package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"feeledger/internal/chain"
)

// Locker wraps one liquidity locker contract. Deployments keep legacy
// locker versions alive for historical positions, so a process usually
// holds more than one of these.
type Locker struct {
	client  *chain.Client
	sender  *chain.Transactor
	address common.Address
	version string
}

func NewLocker(client *chain.Client, sender *chain.Transactor, address common.Address, version string) *Locker {
	return &Locker{client: client, sender: sender, address: address, version: version}
}

// Address returns the locker contract address.
func (l *Locker) Address() common.Address {
	return l.address
}

// Version labels the locker deployment for logs (e.g. "v2", "v1-legacy").
func (l *Locker) Version() string {
	return l.version
}

// LockedCount returns the number of locked positions.
func (l *Locker) LockedCount(ctx context.Context) (uint64, error) {
	values, err := l.call(ctx, "getLockedCount")
	if err != nil {
		return 0, err
	}
	count, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("getLockedCount: unexpected return type %T", values[0])
	}
	if !count.IsUint64() {
		return 0, fmt.Errorf("getLockedCount: count does not fit in uint64: %s", count)
	}
	return count.Uint64(), nil
}

// LockedTokenID returns the position id at the given enumeration index.
func (l *Locker) LockedTokenID(ctx context.Context, index uint64) (*big.Int, error) {
	values, err := l.call(ctx, "lockedTokenIds", new(big.Int).SetUint64(index))
	if err != nil {
		return nil, err
	}
	id, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("lockedTokenIds: unexpected return type %T", values[0])
	}
	return id, nil
}

// CollectFees harvests accrued trading fees from one locked position.
func (l *Locker) CollectFees(ctx context.Context, tokenID *big.Int) (common.Hash, error) {
	return l.send(ctx, "collectFees", tokenID)
}

// SetFeeRecipient points the locker's fee routing for a pool at the
// given wallet so future harvests bypass escrow.
func (l *Locker) SetFeeRecipient(ctx context.Context, poolID, wallet string) (common.Hash, error) {
	return l.send(ctx, "setFeeRecipient", poolHash(poolID), common.HexToAddress(wallet))
}

func (l *Locker) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	lockerABI, err := LockerABI()
	if err != nil {
		return nil, fmt.Errorf("parse locker abi: %w", err)
	}
	return callContract(ctx, l.client, l.address, lockerABI, method, args...)
}

func (l *Locker) send(ctx context.Context, method string, args ...interface{}) (common.Hash, error) {
	lockerABI, err := LockerABI()
	if err != nil {
		return common.Hash{}, fmt.Errorf("parse locker abi: %w", err)
	}
	data, err := lockerABI.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", method, err)
	}
	return l.sender.Send(ctx, l.address, data)
}
