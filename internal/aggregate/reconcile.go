package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolstate/internal/chain"
	"poolstate/internal/dex"
	"poolstate/internal/model"
	"poolstate/internal/store"
)

// Where an on-chain value was read.
const (
	readAtBlock  = "block"
	readAtLatest = "latest"
)

// Discrepancy compares one stored value with the chain.
type Discrepancy struct {
	Pool    string `json:"pool"`
	Field   string `json:"field"`
	Token   string `json:"token,omitempty"`
	Stored  string `json:"stored"`
	OnChain string `json:"on_chain"`
	Diff    string `json:"diff"`
	// Units is Diff scaled by the token's decimals when they are known.
	Units  string `json:"units,omitempty"`
	ReadAt string `json:"read_at"`
	Match  bool   `json:"match"`
}

// Reconciler checks stored balances, pool liquidity and current tick against
// balanceOf, liquidity() and slot0() calls.
type Reconciler struct {
	store    *store.Store
	chain    chain.Caller
	decimals *dex.Cache[uint8] // zero when decimals() is unavailable
	logger   *zap.Logger
}

func NewReconciler(st *store.Store, caller chain.Caller, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: st, chain: caller, decimals: dex.NewCache[uint8](), logger: logger}
}

// RegisteredPools lists every pool registration in the store.
func (r *Reconciler) RegisteredPools(ctx context.Context) ([]common.Address, error) {
	var pools []common.Address
	err := r.store.Iterate(ctx, "Pool:", func(e store.Entry) error {
		addr := strings.TrimPrefix(e.Key, "Pool:")
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("bad registration key %q", e.Key)
		}
		pools = append(pools, common.HexToAddress(addr))
		return nil
	})
	return pools, err
}

// Reconcile compares each pool's token balances and, for V3 pools, its
// active liquidity and current tick. A zero block reads the latest state.
// Pools without a registration are skipped.
func (r *Reconciler) Reconcile(ctx context.Context, pools []common.Address, block uint64) ([]Discrepancy, error) {
	var out []Discrepancy
	for _, pool := range pools {
		entry, ok, err := r.store.Get(ctx, string(store.PoolKey(pool)))
		if err != nil {
			return nil, err
		}
		if !ok {
			r.logger.Warn("pool not registered", zap.String("pool", pool.Hex()))
			continue
		}
		var record model.Pool
		if err := json.Unmarshal(entry.Bytes, &record); err != nil {
			return nil, fmt.Errorf("pool record %s: %w", pool.Hex(), err)
		}

		for _, t := range record.Tokens() {
			token := common.HexToAddress(t)
			d, err := r.balance(ctx, pool, token, block)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}

		if record.Protocol == model.ProtocolUniswapV3 {
			ds, err := r.liveState(ctx, pool, block)
			if err != nil {
				return nil, err
			}
			out = append(out, ds...)
		}
	}
	return out, nil
}

func (r *Reconciler) balance(ctx context.Context, pool, token common.Address, block uint64) (Discrepancy, error) {
	stored, err := r.storedInt(ctx, string(store.BalanceKey(pool, token)))
	if err != nil {
		return Discrepancy{}, err
	}

	readAt := readAtBlock
	onChain, err := dex.FetchBalance(ctx, r.chain, token, pool, block)
	if err != nil && block > 0 {
		// Non-archive nodes refuse historical calls.
		r.logger.Debug("balanceOf at block failed, retrying latest", zap.String("token", token.Hex()), zap.Error(err))
		readAt = readAtLatest
		onChain, err = dex.FetchBalance(ctx, r.chain, token, pool, 0)
	}
	if err != nil {
		return Discrepancy{}, fmt.Errorf("balanceOf %s for %s: %w", token.Hex(), pool.Hex(), err)
	}
	if block == 0 {
		readAt = readAtLatest
	}

	d := compare(pool, "balance", stored, onChain, readAt)
	d.Token = token.Hex()
	if decimals := r.tokenDecimals(ctx, token); decimals > 0 {
		d.Units = formatTokenAmount(new(big.Int).Sub(onChain, stored), decimals)
	}
	return d, nil
}

func (r *Reconciler) liveState(ctx context.Context, pool common.Address, block uint64) ([]Discrepancy, error) {
	liq, err := r.storedInt(ctx, string(store.LiquidityKey(pool)))
	if err != nil {
		return nil, err
	}
	tick, err := r.storedInt(ctx, string(store.CurrentTickKey(pool)))
	if err != nil {
		return nil, err
	}
	state, err := dex.FetchLiveState(ctx, r.chain, pool, block)
	if err != nil {
		return nil, fmt.Errorf("pool state %s: %w", pool.Hex(), err)
	}
	readAt := readAtBlock
	if block == 0 {
		readAt = readAtLatest
	}
	return []Discrepancy{
		compare(pool, "liquidity", liq, state.Liquidity, readAt),
		compare(pool, "tick", tick, big.NewInt(int64(state.Tick)), readAt),
	}, nil
}

func (r *Reconciler) storedInt(ctx context.Context, key string) (*big.Int, error) {
	e, ok, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok || e.Int == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(e.Int), nil
}

func (r *Reconciler) tokenDecimals(ctx context.Context, token common.Address) uint8 {
	if d, ok := r.decimals.Get(token); ok {
		return d
	}
	d, err := dex.FetchDecimals(ctx, r.chain, token)
	if err != nil {
		r.logger.Debug("decimals fetch failed", zap.String("token", token.Hex()), zap.Error(err))
	}
	r.decimals.Set(token, d)
	return d
}

func compare(pool common.Address, field string, stored, onChain *big.Int, readAt string) Discrepancy {
	diff := new(big.Int).Sub(onChain, stored)
	return Discrepancy{
		Pool:    pool.Hex(),
		Field:   field,
		Stored:  stored.String(),
		OnChain: onChain.String(),
		Diff:    diff.String(),
		ReadAt:  readAt,
		Match:   diff.Sign() == 0,
	}
}

func formatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	text := new(big.Rat).SetFrac(abs, denom).FloatString(int(decimals))
	if sign < 0 {
		return "-" + text
	}
	return text
}
