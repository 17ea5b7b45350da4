package model

// EscrowAction describes what the fee vault did during a routing pass.
type EscrowAction string

const (
	EscrowNone       EscrowAction = "none"
	EscrowAssigned   EscrowAction = "assigned"
	EscrowReassigned EscrowAction = "reassigned"
	EscrowBlocked    EscrowAction = "blocked"
)

// RoutingResult describes the outcome of one routing pass per contract
// layer. It is returned to the caller for logging and never persisted.
type RoutingResult struct {
	PoolID               string       `json:"pool_id"`
	Wallet               string       `json:"wallet"`
	EscrowAction         EscrowAction `json:"escrow_action"`
	LockerRoutingUpdated bool         `json:"locker_routing_updated"`
	HookRoutingUpdated   bool         `json:"hook_routing_updated"`
}

// IndexerCursor is the singleton resume point for the ledger indexer.
// LastProcessedBlock is monotonically non-decreasing and advances only
// after a full batch of records is durably stored.
type IndexerCursor struct {
	LastProcessedBlock uint64 `json:"last_processed_block"`
	UpdatedAt          string `json:"updated_at"`
}

// Project is the verification subsystem's record linking a pool to the
// wallet entitled to its fees. Read here, owned elsewhere.
type Project struct {
	ID                 string `json:"id"`
	PoolID             string `json:"pool_id,omitempty"`
	OwnerWallet        string `json:"owner_wallet,omitempty"`
	VerificationMethod string `json:"verification_method,omitempty"`
}

// AggregateStats summarizes the distribution ledger. Wei totals are
// decimal strings produced by arbitrary-precision addition.
type AggregateStats struct {
	TotalDistributedWei     string `json:"total_distributed_wei"`
	TotalDevClaimedWei      string `json:"total_dev_claimed_wei"`
	TotalProtocolClaimedWei string `json:"total_protocol_claimed_wei"`
	TotalEscrowedWei        string `json:"total_escrowed_wei"`
	DistributionCount       uint64 `json:"distribution_count"`
	UniqueDevs              uint64 `json:"unique_devs"`
	UniquePools             uint64 `json:"unique_pools"`
	LastIndexedBlock        uint64 `json:"last_indexed_block"`
	LastIndexedAt           string `json:"last_indexed_at,omitempty"`
}
