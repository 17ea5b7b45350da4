package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"feeledger/internal/chain"
)

// UnclaimedBalances is the vault's escrow snapshot for one pool.
type UnclaimedBalances struct {
	Tokens      []common.Address
	Balances    []*big.Int
	DepositedAt *big.Int
	Expired     bool
	Assigned    common.Address
}

// HasFees reports whether any escrowed balance is non-zero.
func (b UnclaimedBalances) HasFees() bool {
	for _, bal := range b.Balances {
		if bal != nil && bal.Sign() > 0 {
			return true
		}
	}
	return false
}

// Vault wraps the fee vault contract: the escrow that holds swap fees
// until a developer wallet is assigned.
type Vault struct {
	client  *chain.Client
	sender  *chain.Transactor
	address common.Address
}

func NewVault(client *chain.Client, sender *chain.Transactor, address common.Address) *Vault {
	return &Vault{client: client, sender: sender, address: address}
}

// Address returns the vault contract address.
func (v *Vault) Address() common.Address {
	return v.address
}

// PoolAssigned reports whether a dev wallet has ever been assigned for
// the pool.
func (v *Vault) PoolAssigned(ctx context.Context, poolID string) (bool, error) {
	values, err := v.call(ctx, "poolAssigned", poolHash(poolID))
	if err != nil {
		return false, err
	}
	assigned, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("poolAssigned: unexpected return type %T", values[0])
	}
	return assigned, nil
}

// UnclaimedFeeBalances reads the pool's escrow snapshot.
func (v *Vault) UnclaimedFeeBalances(ctx context.Context, poolID string) (UnclaimedBalances, error) {
	values, err := v.call(ctx, "getUnclaimedFeeBalances", poolHash(poolID))
	if err != nil {
		return UnclaimedBalances{}, err
	}
	if len(values) != 5 {
		return UnclaimedBalances{}, fmt.Errorf("getUnclaimedFeeBalances: expected 5 values, got %d", len(values))
	}

	out := UnclaimedBalances{}
	var ok bool
	if out.Tokens, ok = values[0].([]common.Address); !ok {
		return UnclaimedBalances{}, fmt.Errorf("getUnclaimedFeeBalances: tokens type %T", values[0])
	}
	if out.Balances, ok = values[1].([]*big.Int); !ok {
		return UnclaimedBalances{}, fmt.Errorf("getUnclaimedFeeBalances: balances type %T", values[1])
	}
	if out.DepositedAt, ok = values[2].(*big.Int); !ok {
		return UnclaimedBalances{}, fmt.Errorf("getUnclaimedFeeBalances: depositedAt type %T", values[2])
	}
	if out.Expired, ok = values[3].(bool); !ok {
		return UnclaimedBalances{}, fmt.Errorf("getUnclaimedFeeBalances: expired type %T", values[3])
	}
	if out.Assigned, ok = values[4].(common.Address); !ok {
		return UnclaimedBalances{}, fmt.Errorf("getUnclaimedFeeBalances: assigned type %T", values[4])
	}
	return out, nil
}

// AssignDev assigns the pool's escrowed fees to a dev wallet for the
// first time.
func (v *Vault) AssignDev(ctx context.Context, poolID, wallet string) (common.Hash, error) {
	return v.send(ctx, "assignDev", poolHash(poolID), common.HexToAddress(wallet))
}

// ReassignDev moves an already-assigned pool to a different dev wallet.
func (v *Vault) ReassignDev(ctx context.Context, poolID, wallet string) (common.Hash, error) {
	return v.send(ctx, "reassignDev", poolHash(poolID), common.HexToAddress(wallet))
}

func (v *Vault) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	vaultABI, err := FeeVaultABI()
	if err != nil {
		return nil, fmt.Errorf("parse vault abi: %w", err)
	}
	return callContract(ctx, v.client, v.address, vaultABI, method, args...)
}

func (v *Vault) send(ctx context.Context, method string, args ...interface{}) (common.Hash, error) {
	vaultABI, err := FeeVaultABI()
	if err != nil {
		return common.Hash{}, fmt.Errorf("parse vault abi: %w", err)
	}
	data, err := vaultABI.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", method, err)
	}
	return v.sender.Send(ctx, v.address, data)
}

func poolHash(poolID string) common.Hash {
	return common.HexToHash(poolID)
}

func callContract(ctx context.Context, client *chain.Client, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := contractABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}
