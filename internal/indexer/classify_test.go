package indexer

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"feeledger/internal/contracts"
	"feeledger/internal/model"
)

var (
	testPoolID = common.HexToHash("0x0000000000000000000000000000000000000000000000000000000000000042")
	testToken  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testDev    = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func vaultLog(t *testing.T, eventName string, topics []common.Hash, dataValues ...interface{}) types.Log {
	t.Helper()
	vaultABI, err := contracts.FeeVaultABI()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	event, ok := vaultABI.Events[eventName]
	if !ok {
		t.Fatalf("unknown event %s", eventName)
	}

	data, err := event.Inputs.NonIndexed().Pack(dataValues...)
	if err != nil {
		t.Fatalf("pack %s data: %v", eventName, err)
	}

	return types.Log{
		Topics:      append([]common.Hash{event.ID}, topics...),
		Data:        data,
		BlockNumber: 1234,
		TxHash:      common.HexToHash("0xabc"),
		Index:       7,
	}
}

func TestClassifyDeposit(t *testing.T) {
	classifier, err := NewClassifier()
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}

	log := vaultLog(t, "FeesDeposited",
		[]common.Hash{testPoolID, common.BytesToHash(testToken.Bytes())},
		big.NewInt(100), big.NewInt(20),
	)

	rec, err := classifier.Classify(log, 1700000000, time.Now())
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}

	if rec.EventType != model.EventDeposit {
		t.Fatalf("expected deposit, got %s", rec.EventType)
	}
	if rec.PoolID != testPoolID.Hex() {
		t.Fatalf("pool id mismatch: %s", rec.PoolID)
	}
	if rec.TokenAddress != testToken.Hex() {
		t.Fatalf("token mismatch: %s", rec.TokenAddress)
	}
	if rec.DevAmount != "100" || rec.ProtocolAmount != "20" || rec.Amount != "120" {
		t.Fatalf("amounts mismatch: amount=%s dev=%s protocol=%s", rec.Amount, rec.DevAmount, rec.ProtocolAmount)
	}
	if rec.BlockNumber != 1234 || rec.LogIndex != 7 {
		t.Fatalf("identity mismatch: block=%d index=%d", rec.BlockNumber, rec.LogIndex)
	}
}

func TestClassifyDevClaimed(t *testing.T) {
	classifier, err := NewClassifier()
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}

	log := vaultLog(t, "DevFeesClaimed",
		[]common.Hash{testPoolID, common.BytesToHash(testToken.Bytes()), common.BytesToHash(testDev.Bytes())},
		big.NewInt(50),
	)

	rec, err := classifier.Classify(log, 1700000000, time.Now())
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}

	if rec.EventType != model.EventDevClaimed {
		t.Fatalf("expected dev_claimed, got %s", rec.EventType)
	}
	if rec.DevAddress != testDev.Hex() {
		t.Fatalf("dev address mismatch: %s", rec.DevAddress)
	}
	if rec.Amount != "50" {
		t.Fatalf("amount mismatch: %s", rec.Amount)
	}
}

func TestClassifyDevAssignedHasNoAmounts(t *testing.T) {
	classifier, err := NewClassifier()
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}

	log := vaultLog(t, "DevAssigned", []common.Hash{testPoolID, common.BytesToHash(testDev.Bytes())})

	rec, err := classifier.Classify(log, 1700000000, time.Now())
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if rec.EventType != model.EventDevAssigned {
		t.Fatalf("expected dev_assigned, got %s", rec.EventType)
	}
	if rec.Amount != "0" || rec.DevAmount != "0" || rec.ProtocolAmount != "0" {
		t.Fatalf("assignment carries no amounts: %s/%s/%s", rec.Amount, rec.DevAmount, rec.ProtocolAmount)
	}
	if rec.DevAddress != testDev.Hex() {
		t.Fatalf("dev address mismatch: %s", rec.DevAddress)
	}
}

func TestClassifyRejectsUnknownTopic(t *testing.T) {
	classifier, err := NewClassifier()
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}

	log := types.Log{Topics: []common.Hash{common.HexToHash("0xdead")}}
	if classifier.CanClassify(log) {
		t.Fatalf("unknown topic0 should not classify")
	}
	if _, err := classifier.Classify(log, 0, time.Now()); err == nil {
		t.Fatalf("expected error for unknown topic0")
	}
}

func TestClassifierTopicsCoverAllEvents(t *testing.T) {
	classifier, err := NewClassifier()
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	if got := len(classifier.Topics()); got != 6 {
		t.Fatalf("expected 6 vault event topics, got %d", got)
	}
}
