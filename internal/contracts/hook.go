package contracts

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"feeledger/internal/chain"
)

// Hook wraps the fee-collection hook: the swap-path contract that routes
// a pool's future fees directly to its dev wallet.
type Hook struct {
	client  *chain.Client
	sender  *chain.Transactor
	address common.Address
}

func NewHook(client *chain.Client, sender *chain.Transactor, address common.Address) *Hook {
	return &Hook{client: client, sender: sender, address: address}
}

// Address returns the hook contract address.
func (h *Hook) Address() common.Address {
	return h.address
}

// RoutingLocked reports whether the pool's routing is finalized and can
// no longer be changed.
func (h *Hook) RoutingLocked(ctx context.Context, poolID string) (bool, error) {
	hookABI, err := FeeHookABI()
	if err != nil {
		return false, fmt.Errorf("parse hook abi: %w", err)
	}
	values, err := callContract(ctx, h.client, h.address, hookABI, "routingLocked", poolHash(poolID))
	if err != nil {
		return false, err
	}
	locked, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("routingLocked: unexpected return type %T", values[0])
	}
	return locked, nil
}

// SetPoolRoute points the pool's fee route at the given wallet.
func (h *Hook) SetPoolRoute(ctx context.Context, poolID, wallet string) (common.Hash, error) {
	hookABI, err := FeeHookABI()
	if err != nil {
		return common.Hash{}, fmt.Errorf("parse hook abi: %w", err)
	}
	data, err := hookABI.Pack("setPoolRoute", poolHash(poolID), common.HexToAddress(wallet))
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack setPoolRoute: %w", err)
	}
	return h.sender.Send(ctx, h.address, data)
}
