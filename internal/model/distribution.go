package model

import (
	"encoding/json"
	"strconv"
)

// EventType classifies a fee-vault log into its distribution category.
type EventType string

const (
	EventDeposit         EventType = "deposit"
	EventEscrow          EventType = "escrow"
	EventDevAssigned     EventType = "dev_assigned"
	EventExpired         EventType = "expired"
	EventDevClaimed      EventType = "dev_claimed"
	EventProtocolClaimed EventType = "protocol_claimed"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventDeposit, EventEscrow, EventDevAssigned, EventExpired, EventDevClaimed, EventProtocolClaimed:
		return true
	}
	return false
}

// DistributionRecord is one immutable audit entry per on-chain fee log.
// Identity is (tx_hash, log_index); monetary fields are decimal strings.
type DistributionRecord struct {
	TxHash           string    `json:"tx_hash"`
	LogIndex         uint64    `json:"log_index"`
	EventType        EventType `json:"event_type"`
	PoolID           string    `json:"pool_id"`
	TokenAddress     string    `json:"token_address"`
	Amount           string    `json:"amount"`
	DevAmount        string    `json:"dev_amount"`
	ProtocolAmount   string    `json:"protocol_amount"`
	DevAddress       string    `json:"dev_address,omitempty"`
	RecipientAddress string    `json:"recipient_address,omitempty"`
	BlockNumber      uint64    `json:"block_number"`
	BlockTimestamp   uint64    `json:"block_timestamp"`
	IndexedAt        string    `json:"indexed_at"`
	ProjectID        *string   `json:"project_id,omitempty"`
}

// Key returns the dedup identity of the record.
func (r DistributionRecord) Key() string {
	return r.TxHash + ":" + strconv.FormatUint(r.LogIndex, 10)
}

// MarshalJSON ensures DistributionRecord is encoded with stable field names.
func (r DistributionRecord) MarshalJSON() ([]byte, error) {
	type Alias DistributionRecord
	return json.Marshal(Alias(r))
}

// UnmarshalJSON decodes a DistributionRecord from JSON.
func (r *DistributionRecord) UnmarshalJSON(data []byte) error {
	type Alias DistributionRecord
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = DistributionRecord(a)
	return nil
}
