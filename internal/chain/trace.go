package chain

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SlotWrite is one storage slot changed by a transaction.
type SlotWrite struct {
	Address common.Address
	Slot    common.Hash
	Old     common.Hash
	New     common.Hash
}

// TxStorageDiff lists the slots a transaction changed, sorted by address then slot.
type TxStorageDiff struct {
	TxHash  string
	TxIndex uint64
	Writes  []SlotWrite
}

type accountState struct {
	Storage map[common.Hash]common.Hash `json:"storage"`
}

type prestateDiff struct {
	Pre  map[common.Address]accountState `json:"pre"`
	Post map[common.Address]accountState `json:"post"`
}

type txTrace struct {
	TxHash common.Hash  `json:"txHash"`
	Result prestateDiff `json:"result"`
	Error  string       `json:"error,omitempty"`
}

// TraceStorageDiff returns per-transaction storage writes for a block using
// the prestate tracer in diff mode. Requires a node with the debug namespace.
func (c *Client) TraceStorageDiff(ctx context.Context, number uint64) ([]TxStorageDiff, error) {
	var traces []txTrace
	cfg := map[string]interface{}{
		"tracer":       "prestateTracer",
		"tracerConfig": map[string]interface{}{"diffMode": true},
	}
	if err := c.rpcClient.CallContext(ctx, &traces, "debug_traceBlockByNumber", hexutil.EncodeUint64(number), cfg); err != nil {
		return nil, fmt.Errorf("trace block %d: %w", number, err)
	}
	return storageDiffs(traces)
}

// storageDiffs flattens tracer output. A slot present in pre but absent from
// post was cleared to zero.
func storageDiffs(traces []txTrace) ([]TxStorageDiff, error) {
	out := make([]TxStorageDiff, 0, len(traces))
	for i, trace := range traces {
		if trace.Error != "" {
			return nil, fmt.Errorf("trace tx %d (%s): %s", i, trace.TxHash.Hex(), trace.Error)
		}
		diff := TxStorageDiff{TxHash: trace.TxHash.Hex(), TxIndex: uint64(i)}

		for addr, post := range trace.Result.Post {
			pre := trace.Result.Pre[addr].Storage
			for slot, value := range post.Storage {
				old := pre[slot]
				if old == value {
					continue
				}
				diff.Writes = append(diff.Writes, SlotWrite{Address: addr, Slot: slot, Old: old, New: value})
			}
		}
		for addr, pre := range trace.Result.Pre {
			post := trace.Result.Post[addr].Storage
			for slot, value := range pre.Storage {
				if _, ok := post[slot]; ok || value == (common.Hash{}) {
					continue
				}
				diff.Writes = append(diff.Writes, SlotWrite{Address: addr, Slot: slot, Old: value})
			}
		}

		sort.Slice(diff.Writes, func(a, b int) bool {
			wa, wb := diff.Writes[a], diff.Writes[b]
			if cmp := bytes.Compare(wa.Address[:], wb.Address[:]); cmp != 0 {
				return cmp < 0
			}
			return bytes.Compare(wa.Slot[:], wb.Slot[:]) < 0
		})
		out = append(out, diff)
	}
	return out, nil
}
