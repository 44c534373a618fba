package aggregate

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"poolstate/internal/model"
)

// Accumulator collects the observable output of one block while its events
// are processed.
type Accumulator struct {
	bundle     model.BlockBundle
	attributes map[common.Address][]model.AttributeChange
	deltas     []model.BalanceDelta
}

func NewAccumulator(bundle model.BlockBundle) *Accumulator {
	return &Accumulator{
		bundle:     bundle,
		attributes: make(map[common.Address][]model.AttributeChange),
	}
}

// AddAttributes records attribute changes observed on pool.
func (a *Accumulator) AddAttributes(pool common.Address, changes []model.AttributeChange) {
	if len(changes) == 0 {
		return
	}
	a.attributes[pool] = append(a.attributes[pool], changes...)
}

// AddDeltas records balance deltas.
func (a *Accumulator) AddDeltas(deltas []model.BalanceDelta) {
	a.deltas = append(a.deltas, deltas...)
}

// Build returns the block's change set. Components are ordered by pool
// address, everything else keeps event order.
func (a *Accumulator) Build(writes int) model.BlockChanges {
	pools := make([]common.Address, 0, len(a.attributes))
	for pool := range a.attributes {
		pools = append(pools, pool)
	}
	sort.Slice(pools, func(i, j int) bool { return bytes.Compare(pools[i][:], pools[j][:]) < 0 })

	components := make([]model.ComponentChanges, 0, len(pools))
	for _, pool := range pools {
		components = append(components, model.ComponentChanges{Pool: pool, Attributes: a.attributes[pool]})
	}
	deltas := a.deltas
	if deltas == nil {
		deltas = []model.BalanceDelta{}
	}

	return model.BlockChanges{
		ChainID:       a.bundle.ChainID,
		BlockNumber:   a.bundle.Number,
		BlockHash:     a.bundle.Hash,
		Timestamp:     a.bundle.Timestamp,
		Components:    components,
		BalanceDeltas: deltas,
		StoreWrites:   writes,
	}
}
