package indexer

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolstate/internal/chain"
	"poolstate/internal/dex"
	"poolstate/internal/model"
)

type decodedLog struct {
	log     model.LogRecord
	decoded dex.Decoded
}

// assemble assigns block ordinals and builds the bundle. Ordinals run per
// transaction in index order: first the transaction's storage writes sorted
// by address and slot, then its events by log index. A pool seen for the
// first time gets a synthetic PoolCreated just before its first event.
func assemble(
	bundle model.BlockBundle,
	records []model.LogRecord,
	diffs []chain.TxStorageDiff,
	decoders []dex.Decoder,
	meta dex.DecodeContext,
	logger *zap.Logger,
) (model.BlockBundle, []model.DecodeError, error) {
	var decodeErrs []model.DecodeError
	byTx := make(map[uint64][]decodedLog)
	emitters := make(map[common.Address]struct{})

	for _, record := range records {
		decoder, ok := dex.Find(decoders, record.Topic0())
		if !ok {
			logger.Debug("skip log with unknown topic",
				zap.Uint64("block", record.BlockNumber),
				zap.String("address", record.Address),
				zap.String("topic0", record.Topic0()))
			continue
		}
		decoded, err := decoder.Decode(record, meta)
		if err != nil {
			decodeErrs = append(decodeErrs, record.DecodeError(err))
			continue
		}
		byTx[record.TxIndex] = append(byTx[record.TxIndex], decodedLog{log: record, decoded: decoded})
		emitters[common.HexToAddress(record.Address)] = struct{}{}
	}

	writes := make(map[uint64][]chain.SlotWrite)
	for _, diff := range diffs {
		for _, w := range diff.Writes {
			if _, ok := emitters[w.Address]; ok {
				writes[diff.TxIndex] = append(writes[diff.TxIndex], w)
			}
		}
	}

	txs := make([]uint64, 0, len(byTx)+len(writes))
	for tx := range byTx {
		txs = append(txs, tx)
	}
	for tx := range writes {
		if _, ok := byTx[tx]; !ok {
			txs = append(txs, tx)
		}
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i] < txs[j] })

	var ordinal uint64
	next := func() uint64 {
		ordinal++
		return ordinal
	}

	for _, tx := range txs {
		for _, w := range writes[tx] {
			bundle.StorageChanges = append(bundle.StorageChanges, storageChange(w, next()))
		}
		for _, item := range byTx[tx] {
			if item.decoded.Kind == model.KindPoolCreated {
				rememberCreatedPool(meta, item.decoded)
			} else {
				synthetic, ok, err := registerPool(meta, item.log, next)
				if err != nil {
					return model.BlockBundle{}, nil, err
				}
				if ok {
					bundle.Events = append(bundle.Events, synthetic)
				}
			}
			rec, err := item.decoded.Record(next(), item.log)
			if err != nil {
				return model.BlockBundle{}, nil, fmt.Errorf("encode %s at log %d: %w", item.decoded.Kind, item.log.LogIndex, err)
			}
			bundle.Events = append(bundle.Events, rec)
		}
	}
	return bundle, decodeErrs, nil
}

// registerPool emits a PoolCreated for a pool not yet registered in this run.
func registerPool(meta dex.DecodeContext, log model.LogRecord, next func() uint64) (model.EventRecord, bool, error) {
	pool := common.HexToAddress(log.Address)
	reg, first, err := dex.LoadRegistration(meta, pool)
	if err != nil {
		return model.EventRecord{}, false, fmt.Errorf("load registration %s: %w", log.Address, err)
	}
	if !first {
		return model.EventRecord{}, false, nil
	}
	created := dex.Decoded{Kind: model.KindPoolCreated, Payload: reg}
	rec, err := created.Record(next(), log)
	if err != nil {
		return model.EventRecord{}, false, err
	}
	return rec, true, nil
}

func rememberCreatedPool(meta dex.DecodeContext, decoded dex.Decoded) {
	created, ok := decoded.Payload.(model.PoolCreatedEventData)
	if !ok || meta.Registrations == nil || !common.IsHexAddress(created.Pool) {
		return
	}
	meta.Registrations.Set(common.HexToAddress(created.Pool), created)
}

func storageChange(w chain.SlotWrite, ordinal uint64) model.StorageChange {
	return model.StorageChange{
		Address:  w.Address,
		Slot:     w.Slot,
		OldValue: w.Old.Bytes(),
		NewValue: w.New.Bytes(),
		Ordinal:  ordinal,
	}
}
