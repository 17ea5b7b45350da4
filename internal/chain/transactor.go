package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Transactor signs and submits contract writes, waiting for one
// confirmation per call. Every call fetches a fresh pending nonce.
type Transactor struct {
	client       *Client
	key          *ecdsa.PrivateKey
	sender       common.Address
	chainID      *big.Int
	pollInterval time.Duration
	waitTimeout  time.Duration
}

// NewTransactor derives the sender address from the hex private key and
// pins the chain ID for EIP-155 signing.
func NewTransactor(ctx context.Context, client *Client, privateKeyHex string) (*Transactor, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	chainID, err := client.GetChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	return &Transactor{
		client:       client,
		key:          key,
		sender:       crypto.PubkeyToAddress(key.PublicKey),
		chainID:      chainID,
		pollInterval: 2 * time.Second,
		waitTimeout:  2 * time.Minute,
	}, nil
}

// Sender returns the signing address.
func (t *Transactor) Sender() common.Address {
	return t.sender
}

// Send submits calldata to a contract and blocks until the transaction
// is mined. A receipt with a failed status is returned as an error.
func (t *Transactor) Send(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	nonce, err := t.client.PendingNonceAt(ctx, t.sender)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get nonce: %w", err)
	}
	gasPrice, err := t.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
	}
	gasLimit, err := t.client.EstimateGas(ctx, ethereum.CallMsg{
		From: t.sender,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(t.chainID), t.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := t.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}

	if err := t.waitMined(ctx, signed.Hash()); err != nil {
		return signed.Hash(), err
	}
	return signed.Hash(), nil
}

func (t *Transactor) waitMined(ctx context.Context, txHash common.Hash) error {
	deadline := time.Now().Add(t.waitTimeout)
	for {
		receipt, err := t.client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("tx %s reverted", txHash.Hex())
			}
			return nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return fmt.Errorf("receipt %s: %w", txHash.Hex(), err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("tx %s not mined within %s", txHash.Hex(), t.waitTimeout)
		}

		timer := time.NewTimer(t.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
