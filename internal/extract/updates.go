package extract

import (
	"encoding/json"
	"fmt"
	"math/big"

	"poolstate/internal/model"
	"poolstate/internal/store"
)

// BlockContext carries the block and transaction facts some updates record.
type BlockContext struct {
	Number    uint64
	Timestamp uint64
	TxHash    string
}

// Updates returns the store writes of ev other than balance changes.
func Updates(ev Event, pool PoolState, block BlockContext, ordinal uint64) ([]store.Op, error) {
	addr := pool.Address
	switch e := ev.(type) {
	case PoolCreated:
		record, err := json.Marshal(model.Pool{
			Protocol:     e.Protocol,
			Address:      e.Pool.Hex(),
			Token0:       e.Token0.Hex(),
			Token1:       e.Token1.Hex(),
			Fee:          e.Fee,
			TickSpacing:  e.TickSpacing,
			CreatedBlock: block.Number,
			CreatedTx:    block.TxHash,
		})
		if err != nil {
			return nil, fmt.Errorf("encode pool record: %w", err)
		}
		return []store.Op{store.SetOp(store.PoolKey(e.Pool), ordinal, record)}, nil

	case Initialize:
		return []store.Op{tickOp(pool, ordinal, e.Tick)}, nil

	case Swap:
		return []store.Op{
			store.SumOp(store.LiquidityKey(addr), ordinal, e.Liquidity, model.ChangeAbsolute),
			tickOp(pool, ordinal, e.Tick),
		}, nil

	case Swapped:
		return []store.Op{
			store.SumOp(store.LiquidityKey(addr), ordinal, e.Liquidity, model.ChangeAbsolute),
			tickOp(pool, ordinal, e.Tick),
		}, nil

	case Mint:
		return positionOps(pool, ordinal, e.TickLower, e.TickUpper, e.Amount), nil

	case Burn:
		return positionOps(pool, ordinal, e.TickLower, e.TickUpper, neg(e.Amount)), nil

	case PositionUpdated:
		return positionOps(pool, ordinal, e.TickLower, e.TickUpper, e.LiquidityDelta), nil

	case OrderUpdated:
		if _, err := pool.token(e.SellSide); err != nil {
			return nil, fmt.Errorf("%s: %w", ev.Kind(), err)
		}
		var ops []store.Op
		if e.StartTime > block.Timestamp {
			ops = append(ops, store.AddOp(store.TimeBucketKey(addr, e.StartTime, e.SellSide), ordinal, e.SaleRateDelta))
		}
		ops = append(ops, store.AddOp(store.TimeBucketKey(addr, e.EndTime, e.SellSide), ordinal, neg(e.SaleRateDelta)))
		if e.StartTime <= block.Timestamp && block.Timestamp < e.EndTime {
			ops = append(ops, store.SumOp(store.SaleRateKey(addr, e.SellSide), ordinal, e.SaleRateDelta, model.ChangeDelta))
		}
		return ops, nil

	case VirtualOrdersExecuted:
		return []store.Op{
			store.SumOp(store.SaleRateKey(addr, 0), ordinal, e.SaleRate0, model.ChangeAbsolute),
			store.SumOp(store.SaleRateKey(addr, 1), ordinal, e.SaleRate1, model.ChangeAbsolute),
		}, nil

	default:
		return nil, nil
	}
}

func tickOp(pool PoolState, ordinal uint64, tick int32) store.Op {
	return store.SumOp(store.CurrentTickKey(pool.Address), ordinal, big.NewInt(int64(tick)), model.ChangeAbsolute)
}

// positionOps moves liquidity onto [lower, upper) and, when the current tick
// is inside the range, into the pool's active liquidity.
func positionOps(pool PoolState, ordinal uint64, lower, upper int32, delta *big.Int) []store.Op {
	if delta == nil || delta.Sign() == 0 {
		return nil
	}
	ops := []store.Op{
		store.AddOp(store.TickKey(pool.Address, int64(lower)), ordinal, delta),
		store.AddOp(store.TickKey(pool.Address, int64(upper)), ordinal, neg(delta)),
	}
	if pool.Tick != nil && pool.Tick.Cmp(big.NewInt(int64(lower))) >= 0 && pool.Tick.Cmp(big.NewInt(int64(upper))) < 0 {
		ops = append(ops, store.SumOp(store.LiquidityKey(pool.Address), ordinal, delta, model.ChangeDelta))
	}
	return ops
}
