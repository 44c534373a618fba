package dex

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"poolstate/internal/chain"
	"poolstate/internal/model"
)

// Cache is a concurrency-safe map keyed by contract address.
type Cache[V any] struct {
	mu   sync.RWMutex
	data map[common.Address]V
}

func NewCache[V any]() *Cache[V] {
	return &Cache[V]{data: make(map[common.Address]V)}
}

func (c *Cache[V]) Get(address common.Address) (V, bool) {
	c.mu.RLock()
	v, ok := c.data[address]
	c.mu.RUnlock()
	return v, ok
}

func (c *Cache[V]) Set(address common.Address, v V) {
	c.mu.Lock()
	c.data[address] = v
	c.mu.Unlock()
}

// registrationGetters are the immutable pool getters a registration is built from.
var registrationGetters = []string{"token0", "token1", "fee", "tickSpacing"}

// LoadRegistration returns the registration of pool, reading it from chain
// on first use. The bool reports whether this call populated the cache.
func LoadRegistration(ctx DecodeContext, pool common.Address) (model.PoolCreatedEventData, bool, error) {
	if ctx.Registrations != nil {
		if reg, ok := ctx.Registrations.Get(pool); ok {
			return reg, false, nil
		}
	}
	callCtx := ctx.Context
	if callCtx == nil {
		callCtx = context.Background()
	}
	reg, err := FetchRegistration(callCtx, ctx.Chain, pool)
	if err != nil {
		return model.PoolCreatedEventData{}, false, err
	}
	if ctx.Registrations != nil {
		ctx.Registrations.Set(pool, reg)
	}
	return reg, true, nil
}

// FetchRegistration rebuilds the factory's PoolCreated payload for a pool
// deployed before the indexed range, from its immutable getters.
func FetchRegistration(ctx context.Context, caller chain.Caller, pool common.Address) (model.PoolCreatedEventData, error) {
	if caller == nil {
		return model.PoolCreatedEventData{}, fmt.Errorf("chain client is nil")
	}
	poolABI, err := V3PoolABI()
	if err != nil {
		return model.PoolCreatedEventData{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values := make(map[string]interface{}, len(registrationGetters)+1)
	for _, getter := range registrationGetters {
		out, err := viewCall(ctx, caller, pool, poolABI, nil, getter)
		if err != nil {
			return model.PoolCreatedEventData{}, err
		}
		values[getter] = out[0]
	}
	values["pool"] = pool

	r := &fieldReader{values: values}
	reg := registration(r)
	if r.err != nil {
		return model.PoolCreatedEventData{}, fmt.Errorf("pool %s: %w", pool.Hex(), r.err)
	}
	return reg, nil
}

// LiveState is the part of a pool's slot0 and liquidity that the store mirrors.
type LiveState struct {
	Liquidity *big.Int
	Tick      int32
}

// FetchLiveState reads liquidity() and the slot0 tick at a block height. A
// zero block number means latest.
func FetchLiveState(ctx context.Context, caller chain.Caller, pool common.Address, blockNumber uint64) (LiveState, error) {
	if caller == nil {
		return LiveState{}, fmt.Errorf("chain client is nil")
	}
	poolABI, err := V3PoolABI()
	if err != nil {
		return LiveState{}, fmt.Errorf("parse pool abi: %w", err)
	}
	block := blockArg(blockNumber)

	liq, err := viewCall(ctx, caller, pool, poolABI, block, "liquidity")
	if err != nil {
		return LiveState{}, err
	}
	slot0, err := viewCall(ctx, caller, pool, poolABI, block, "slot0")
	if err != nil {
		return LiveState{}, err
	}
	if len(slot0) < 2 {
		return LiveState{}, fmt.Errorf("slot0 returned %d values", len(slot0))
	}

	r := &fieldReader{values: map[string]interface{}{"liquidity": liq[0], "tick": slot0[1]}}
	state := LiveState{Liquidity: r.bigInt("liquidity"), Tick: r.int24("tick")}
	if r.err != nil {
		return LiveState{}, fmt.Errorf("pool %s: %w", pool.Hex(), r.err)
	}
	return state, nil
}

// FetchBalance returns token.balanceOf(owner) at a block height. A zero
// block number means latest.
func FetchBalance(ctx context.Context, caller chain.Caller, token, owner common.Address, blockNumber uint64) (*big.Int, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	parsed, err := erc20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	out, err := viewCall(ctx, caller, token, parsed, blockArg(blockNumber), "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return asBigInt(out[0])
}

// FetchDecimals returns token.decimals() at the latest block.
func FetchDecimals(ctx context.Context, caller chain.Caller, token common.Address) (uint8, error) {
	if caller == nil {
		return 0, fmt.Errorf("chain client is nil")
	}
	parsed, err := erc20ABI()
	if err != nil {
		return 0, fmt.Errorf("parse erc20 abi: %w", err)
	}
	out, err := viewCall(ctx, caller, token, parsed, nil, "decimals")
	if err != nil {
		return 0, err
	}
	return asUint8(out[0])
}

func viewCall(ctx context.Context, caller chain.Caller, to common.Address, parsed abi.ABI, block *big.Int, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

func blockArg(number uint64) *big.Int {
	if number == 0 {
		return nil
	}
	return new(big.Int).SetUint64(number)
}
