package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestDistributionRecordJSONRoundTrip(t *testing.T) {
	projectID := "project-1"
	original := DistributionRecord{
		TxHash:           "0xdef456",
		LogIndex:         12,
		EventType:        EventDeposit,
		PoolID:           "0x42",
		TokenAddress:     "0x1111111111111111111111111111111111111111",
		Amount:           "120",
		DevAmount:        "100",
		ProtocolAmount:   "20",
		DevAddress:       "0x2222222222222222222222222222222222222222",
		RecipientAddress: "0x2222222222222222222222222222222222222222",
		BlockNumber:      36000000,
		BlockTimestamp:   1700000000,
		IndexedAt:        "2024-01-01T00:00:00Z",
		ProjectID:        &projectID,
	}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded DistributionRecord
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", original, decoded)
	}
}

func TestDistributionRecordAmountsAreStrings(t *testing.T) {
	rec := DistributionRecord{Amount: "12345678901234567890", DevAmount: "0", ProtocolAmount: "0"}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := decoded["amount"].(string); !ok {
		t.Fatalf("amount should be string")
	}
}

func TestEventTypeValid(t *testing.T) {
	for _, et := range []EventType{
		EventDeposit, EventEscrow, EventDevAssigned,
		EventExpired, EventDevClaimed, EventProtocolClaimed,
	} {
		if !et.Valid() {
			t.Fatalf("%s should be valid", et)
		}
	}
	if EventType("refund").Valid() {
		t.Fatalf("unknown event type should be invalid")
	}
}

func TestRecordKey(t *testing.T) {
	rec := DistributionRecord{TxHash: "0xabc", LogIndex: 7}
	if rec.Key() != "0xabc:7" {
		t.Fatalf("unexpected key: %s", rec.Key())
	}
}
