package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolstate/internal/extract"
	"poolstate/internal/fault"
	"poolstate/internal/model"
	"poolstate/internal/statediff"
	"poolstate/internal/store"
)

// Processor applies one block bundle to a store. A block either commits in
// full or leaves the store untouched.
type Processor struct {
	logger *zap.Logger
}

func NewProcessor(logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{logger: logger}
}

// ProcessBlock runs every event of bundle in ordinal order against a staging
// transaction on st and commits it. Any error discards the whole block.
func (p *Processor) ProcessBlock(ctx context.Context, st *store.Store, bundle model.BlockBundle) (model.BlockChanges, error) {
	events, err := orderedEvents(bundle)
	if err != nil {
		return model.BlockChanges{}, fmt.Errorf("block %d: %w", bundle.Number, err)
	}

	tx, err := st.Begin(ctx, bundle.Number)
	if err != nil {
		return model.BlockChanges{}, err
	}
	defer tx.Discard()

	acc := NewAccumulator(bundle)
	// last event ordinal per contract; writes at or below it are already credited
	previous := make(map[string]uint64)
	for _, rec := range events {
		emitter := strings.ToLower(rec.Address)
		if err := p.applyEvent(tx, bundle, rec, previous[emitter], acc); err != nil {
			return model.BlockChanges{}, fmt.Errorf("block %d event %d (%s): %w", bundle.Number, rec.Ordinal, rec.Kind, err)
		}
		previous[emitter] = rec.Ordinal
	}

	writes := tx.Writes()
	if err := tx.Commit(); err != nil {
		return model.BlockChanges{}, err
	}
	return acc.Build(writes), nil
}

func (p *Processor) applyEvent(tx *store.Tx, bundle model.BlockBundle, rec model.EventRecord, from uint64, acc *Accumulator) error {
	ev, err := extract.ParseEvent(rec)
	if err != nil {
		return err
	}
	if _, ok := ev.(extract.Unrecognized); ok {
		return nil
	}
	if !common.IsHexAddress(rec.Address) {
		return fmt.Errorf("address %q: %w", rec.Address, fault.ErrMalformedPayload)
	}
	contract := common.HexToAddress(rec.Address)

	var pool extract.PoolState
	if created, ok := ev.(extract.PoolCreated); ok {
		pool = extract.PoolState{Address: created.Pool, Tokens: []common.Address{created.Token0, created.Token1}}
	} else {
		var found bool
		pool, found, err = loadPool(tx, contract)
		if err != nil {
			return err
		}
		if !found {
			p.logger.Debug("event for unregistered pool",
				zap.Uint64("block", bundle.Number),
				zap.Uint64("ordinal", rec.Ordinal),
				zap.String("pool", rec.Address),
				zap.String("event", rec.Kind),
			)
			return nil
		}
	}

	attrs, err := extract.ChangedAttributes(ev, bundle.StorageChanges, contract, from, rec.Ordinal)
	if err != nil {
		return err
	}
	deltas, err := extract.BalanceDeltas(ev, pool, rec.Ordinal)
	if err != nil {
		return err
	}
	ops, err := extract.Updates(ev, pool, extract.BlockContext{
		Number:    bundle.Number,
		Timestamp: bundle.Timestamp,
		TxHash:    rec.TxHash,
	}, rec.Ordinal)
	if err != nil {
		return err
	}

	for _, d := range deltas {
		if err := tx.Add(store.BalanceKey(d.Pool, d.Token), d.Ordinal, d.Delta); err != nil {
			return err
		}
	}
	for _, op := range ops {
		if err := op.Apply(tx); err != nil {
			return err
		}
	}

	acc.AddAttributes(contract, attrs)
	acc.AddDeltas(deltas)
	return nil
}

// loadPool reads the registration record and current tick of addr as seen by tx.
func loadPool(tx *store.Tx, addr common.Address) (extract.PoolState, bool, error) {
	e, ok, err := tx.Get(string(store.PoolKey(addr)))
	if err != nil || !ok {
		return extract.PoolState{}, false, err
	}
	var record model.Pool
	if err := json.Unmarshal(e.Bytes, &record); err != nil {
		return extract.PoolState{}, false, fmt.Errorf("pool record %s: %v: %w", addr.Hex(), err, fault.ErrMalformedPayload)
	}

	state := extract.PoolState{Address: addr}
	for _, t := range record.Tokens() {
		state.Tokens = append(state.Tokens, common.HexToAddress(t))
	}
	tick, ok, err := tx.Get(string(store.CurrentTickKey(addr)))
	if err != nil {
		return extract.PoolState{}, false, err
	}
	if ok {
		state.Tick = tick.Int
	}
	return state, true, nil
}

// orderedEvents validates the bundle's ordinals and returns its events sorted
// by ordinal. An event may share its ordinal with the storage write it caused.
func orderedEvents(bundle model.BlockBundle) ([]model.EventRecord, error) {
	if err := statediff.ValidateOrder(bundle.StorageChanges); err != nil {
		return nil, err
	}
	events := append([]model.EventRecord(nil), bundle.Events...)
	sort.SliceStable(events, func(i, j int) bool { return events[i].Ordinal < events[j].Ordinal })
	for i := 1; i < len(events); i++ {
		if events[i].Ordinal == events[i-1].Ordinal {
			return nil, fmt.Errorf("ordinal %d: %w", events[i].Ordinal, fault.ErrDuplicateOrdinal)
		}
	}
	return events, nil
}
