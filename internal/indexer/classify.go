package indexer

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"feeledger/internal/contracts"
	"feeledger/internal/model"
)

// Classifier maps fee vault logs onto distribution records by topic0.
type Classifier struct {
	vaultABI    abi.ABI
	topicToName map[common.Hash]string
}

// NewClassifier builds a classifier over the fee vault event set.
func NewClassifier() (*Classifier, error) {
	vaultABI, err := contracts.FeeVaultABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[common.Hash]string)
	for _, name := range []string{
		"FeesDeposited", "FeesEscrowed", "DevAssigned",
		"EscrowExpired", "DevFeesClaimed", "ProtocolFeesClaimed",
	} {
		event, ok := vaultABI.Events[name]
		if !ok {
			return nil, fmt.Errorf("vault abi missing event %s", name)
		}
		topicToName[event.ID] = name
	}

	return &Classifier{vaultABI: vaultABI, topicToName: topicToName}, nil
}

// Topics returns the topic0 set to filter logs by.
func (c *Classifier) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(c.topicToName))
	for topic := range c.topicToName {
		out = append(out, topic)
	}
	return out
}

// CanClassify checks whether the log's topic0 is a known vault event.
func (c *Classifier) CanClassify(log types.Log) bool {
	if len(log.Topics) == 0 {
		return false
	}
	_, ok := c.topicToName[log.Topics[0]]
	return ok
}

// Classify converts one vault log into a distribution record.
func (c *Classifier) Classify(log types.Log, timestamp uint64, indexedAt time.Time) (model.DistributionRecord, error) {
	if len(log.Topics) == 0 {
		return model.DistributionRecord{}, fmt.Errorf("missing topics")
	}
	name, ok := c.topicToName[log.Topics[0]]
	if !ok {
		return model.DistributionRecord{}, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}

	rec := model.DistributionRecord{
		TxHash:         log.TxHash.Hex(),
		LogIndex:       uint64(log.Index),
		BlockNumber:    log.BlockNumber,
		BlockTimestamp: timestamp,
		IndexedAt:      indexedAt.UTC().Format(time.RFC3339Nano),
		Amount:         "0",
		DevAmount:      "0",
		ProtocolAmount: "0",
	}

	event := c.vaultABI.Events[name]
	indexedCount := len(indexedArguments(event.Inputs))
	if len(log.Topics) != indexedCount+1 {
		return model.DistributionRecord{}, fmt.Errorf("%s: expected %d topics, got %d", name, indexedCount+1, len(log.Topics))
	}
	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.DistributionRecord{}, fmt.Errorf("unpack %s: %w", name, err)
	}

	// topics[1] is the pool id on every vault event.
	rec.PoolID = log.Topics[1].Hex()

	switch name {
	case "FeesDeposited":
		rec.EventType = model.EventDeposit
		rec.TokenAddress = topicAddress(log.Topics[2])
		devAmount, err := asBigInt(values, 0, name)
		if err != nil {
			return model.DistributionRecord{}, err
		}
		protocolAmount, err := asBigInt(values, 1, name)
		if err != nil {
			return model.DistributionRecord{}, err
		}
		rec.DevAmount = devAmount.String()
		rec.ProtocolAmount = protocolAmount.String()
		rec.Amount = new(big.Int).Add(devAmount, protocolAmount).String()

	case "FeesEscrowed":
		rec.EventType = model.EventEscrow
		rec.TokenAddress = topicAddress(log.Topics[2])
		amount, err := asBigInt(values, 0, name)
		if err != nil {
			return model.DistributionRecord{}, err
		}
		rec.Amount = amount.String()

	case "DevAssigned":
		rec.EventType = model.EventDevAssigned
		rec.DevAddress = topicAddress(log.Topics[2])

	case "EscrowExpired":
		rec.EventType = model.EventExpired
		rec.TokenAddress = topicAddress(log.Topics[2])
		amount, err := asBigInt(values, 0, name)
		if err != nil {
			return model.DistributionRecord{}, err
		}
		rec.Amount = amount.String()

	case "DevFeesClaimed":
		rec.EventType = model.EventDevClaimed
		rec.TokenAddress = topicAddress(log.Topics[2])
		rec.DevAddress = topicAddress(log.Topics[3])
		rec.RecipientAddress = rec.DevAddress
		amount, err := asBigInt(values, 0, name)
		if err != nil {
			return model.DistributionRecord{}, err
		}
		rec.Amount = amount.String()

	case "ProtocolFeesClaimed":
		rec.EventType = model.EventProtocolClaimed
		rec.TokenAddress = topicAddress(log.Topics[2])
		rec.RecipientAddress = topicAddress(log.Topics[3])
		amount, err := asBigInt(values, 0, name)
		if err != nil {
			return model.DistributionRecord{}, err
		}
		rec.Amount = amount.String()
	}

	return rec, nil
}

func topicAddress(topic common.Hash) string {
	return common.BytesToAddress(topic.Bytes()).Hex()
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func asBigInt(values []interface{}, i int, event string) (*big.Int, error) {
	if i >= len(values) {
		return nil, fmt.Errorf("%s: missing value %d", event, i)
	}
	v, ok := values[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: value %d has type %T", event, i, values[i])
	}
	return v, nil
}
