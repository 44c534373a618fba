package extract

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"poolstate/internal/fault"
	"poolstate/internal/model"
	"poolstate/internal/store"
)

// PoolState is what extraction needs to know about the pool an event belongs to.
type PoolState struct {
	Address common.Address
	Tokens  []common.Address
	// Tick is the current tick, nil when the pool has not reported one.
	Tick *big.Int
}

func (p PoolState) token(i int) (common.Address, error) {
	if i >= len(p.Tokens) {
		return common.Address{}, fmt.Errorf("pool %s needs token%d, has %d tokens: %w", p.Address.Hex(), i, len(p.Tokens), fault.ErrMissingTokens)
	}
	return p.Tokens[i], nil
}

// BalanceDeltas returns the pool balance changes caused by ev. Zero amounts are omitted.
func BalanceDeltas(ev Event, pool PoolState, ordinal uint64) ([]model.BalanceDelta, error) {
	var amounts []*big.Int
	switch e := ev.(type) {
	case Swap:
		amounts = []*big.Int{e.Amount0, e.Amount1}
	case Mint:
		amounts = []*big.Int{e.Amount0, e.Amount1}
	case Collect:
		amounts = []*big.Int{neg(e.Amount0), neg(e.Amount1)}
	case CollectProtocol:
		amounts = []*big.Int{neg(e.Amount0), neg(e.Amount1)}
	case PositionUpdated:
		amounts = []*big.Int{e.Delta0, e.Delta1}
	case Swapped:
		amounts = []*big.Int{e.Delta0, e.Delta1}
	default:
		return []model.BalanceDelta{}, nil
	}

	out := make([]model.BalanceDelta, 0, len(amounts))
	for i, amount := range amounts {
		token, err := pool.token(i)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ev.Kind(), err)
		}
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		out = append(out, model.BalanceDelta{
			SubjectKey: string(store.BalanceKey(pool.Address, token)),
			Pool:       pool.Address,
			Token:      token,
			Ordinal:    ordinal,
			Delta:      new(big.Int).Set(amount),
		})
	}
	return out, nil
}

func neg(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Neg(v)
}
