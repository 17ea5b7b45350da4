package contracts

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const feeVaultABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "token", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "devAmount", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "protocolAmount", "type": "uint256"}
    ],
    "name": "FeesDeposited",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "token", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "FeesEscrowed",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "dev", "type": "address"}
    ],
    "name": "DevAssigned",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "token", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "EscrowExpired",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "token", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "dev", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "DevFeesClaimed",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "token", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "recipient", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "ProtocolFeesClaimed",
    "type": "event"
  },
  {
    "inputs": [{"internalType": "bytes32", "name": "poolId", "type": "bytes32"}],
    "name": "poolAssigned",
    "outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "bytes32", "name": "poolId", "type": "bytes32"}],
    "name": "getUnclaimedFeeBalances",
    "outputs": [
      {"internalType": "address[]", "name": "tokens", "type": "address[]"},
      {"internalType": "uint256[]", "name": "balances", "type": "uint256[]"},
      {"internalType": "uint256", "name": "depositedAt", "type": "uint256"},
      {"internalType": "bool", "name": "expired", "type": "bool"},
      {"internalType": "address", "name": "assigned", "type": "address"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"internalType": "address", "name": "dev", "type": "address"}
    ],
    "name": "assignDev",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"internalType": "address", "name": "dev", "type": "address"}
    ],
    "name": "reassignDev",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

const lockerABIJSON = `[
  {
    "inputs": [],
    "name": "getLockedCount",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "index", "type": "uint256"}],
    "name": "lockedTokenIds",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "tokenId", "type": "uint256"}],
    "name": "collectFees",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"internalType": "address", "name": "recipient", "type": "address"}
    ],
    "name": "setFeeRecipient",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

const feeHookABIJSON = `[
  {
    "inputs": [{"internalType": "bytes32", "name": "poolId", "type": "bytes32"}],
    "name": "routingLocked",
    "outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"internalType": "address", "name": "recipient", "type": "address"}
    ],
    "name": "setPoolRoute",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

var (
	feeVaultABI     abi.ABI
	feeVaultABIOnce sync.Once
	feeVaultABIErr  error

	lockerABI     abi.ABI
	lockerABIOnce sync.Once
	lockerABIErr  error

	feeHookABI     abi.ABI
	feeHookABIOnce sync.Once
	feeHookABIErr  error
)

// FeeVaultABI returns the parsed fee vault ABI.
func FeeVaultABI() (abi.ABI, error) {
	feeVaultABIOnce.Do(func() {
		feeVaultABI, feeVaultABIErr = abi.JSON(strings.NewReader(feeVaultABIJSON))
	})
	return feeVaultABI, feeVaultABIErr
}

// LockerABI returns the parsed liquidity locker ABI.
func LockerABI() (abi.ABI, error) {
	lockerABIOnce.Do(func() {
		lockerABI, lockerABIErr = abi.JSON(strings.NewReader(lockerABIJSON))
	})
	return lockerABI, lockerABIErr
}

// FeeHookABI returns the parsed fee-collection hook ABI.
func FeeHookABI() (abi.ABI, error) {
	feeHookABIOnce.Do(func() {
		feeHookABI, feeHookABIErr = abi.JSON(strings.NewReader(feeHookABIJSON))
	})
	return feeHookABI, feeHookABIErr
}
