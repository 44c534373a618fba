package model

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ChangeKind tells whether a reported value replaces the stored one or is added to it.
type ChangeKind uint8

const (
	ChangeAbsolute ChangeKind = iota + 1
	ChangeDelta
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAbsolute:
		return "absolute"
	case ChangeDelta:
		return "delta"
	default:
		return fmt.Sprintf("change_kind(%d)", uint8(k))
	}
}

// AttributeChange is a decoded field value observed for a component.
type AttributeChange struct {
	Key     string        `json:"key"`
	Value   hexutil.Bytes `json:"value"`
	Ordinal uint64        `json:"ordinal"`
}

// BalanceDelta is a signed change of a tracked balance at an ordinal.
type BalanceDelta struct {
	SubjectKey string
	Pool       common.Address
	Token      common.Address
	Ordinal    uint64
	Delta      *big.Int
}

type balanceDeltaJSON struct {
	SubjectKey string         `json:"subject_key"`
	Pool       common.Address `json:"pool"`
	Token      common.Address `json:"token"`
	Ordinal    uint64         `json:"ordinal"`
	Delta      string         `json:"delta"`
}

// MarshalJSON encodes the delta as a decimal string.
func (d BalanceDelta) MarshalJSON() ([]byte, error) {
	delta := "0"
	if d.Delta != nil {
		delta = d.Delta.String()
	}
	return json.Marshal(balanceDeltaJSON{
		SubjectKey: d.SubjectKey,
		Pool:       d.Pool,
		Token:      d.Token,
		Ordinal:    d.Ordinal,
		Delta:      delta,
	})
}

// UnmarshalJSON decodes a BalanceDelta written by MarshalJSON.
func (d *BalanceDelta) UnmarshalJSON(data []byte) error {
	var raw balanceDeltaJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	delta, ok := new(big.Int).SetString(raw.Delta, 10)
	if !ok {
		return fmt.Errorf("invalid delta: %q", raw.Delta)
	}
	*d = BalanceDelta{
		SubjectKey: raw.SubjectKey,
		Pool:       raw.Pool,
		Token:      raw.Token,
		Ordinal:    raw.Ordinal,
		Delta:      delta,
	}
	return nil
}

// ComponentChanges groups the attribute changes of one pool within a block.
type ComponentChanges struct {
	Pool       common.Address    `json:"pool"`
	Attributes []AttributeChange `json:"attributes"`
}

// BlockChanges is the output of processing one block.
type BlockChanges struct {
	ChainID       uint64             `json:"chain_id"`
	BlockNumber   uint64             `json:"block_number"`
	BlockHash     string             `json:"block_hash"`
	Timestamp     uint64             `json:"timestamp"`
	Components    []ComponentChanges `json:"components"`
	BalanceDeltas []BalanceDelta     `json:"balance_deltas"`
	StoreWrites   int                `json:"store_writes"`
}
