package store

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Keys are typed by the merge policy they may be written with.
type (
	SetKey string
	AddKey string
	SumKey string
)

// Hex returns the lowercase, unprefixed hex form used in keys.
func Hex(addr common.Address) string {
	return hex.EncodeToString(addr.Bytes())
}

// PoolKey is the one-time registration record of a pool.
func PoolKey(pool common.Address) SetKey {
	return SetKey("Pool:" + Hex(pool))
}

// BalanceKey accumulates the pool's balance of token.
func BalanceKey(pool, token common.Address) AddKey {
	return AddKey(fmt.Sprintf("pool:%s:token:%s", Hex(pool), Hex(token)))
}

// TickKey accumulates net liquidity crossing tick.
func TickKey(pool common.Address, tick int64) AddKey {
	return AddKey(fmt.Sprintf("pool:%s:tick:%d", Hex(pool), tick))
}

// LiquidityKey holds active pool liquidity.
func LiquidityKey(pool common.Address) SumKey {
	return SumKey("pool:" + Hex(pool))
}

// CurrentTickKey holds the pool's current tick.
func CurrentTickKey(pool common.Address) SumKey {
	return SumKey(fmt.Sprintf("pool:%s:tick", Hex(pool)))
}

// SaleRateKey holds the active sale rate selling token<side>.
func SaleRateKey(pool common.Address, side int) SumKey {
	return SumKey(fmt.Sprintf("pool:%s:token%d", Hex(pool), side))
}

// TimeBucketPrefix is the prefix shared by all keys of one time bucket.
func TimeBucketPrefix(pool common.Address, bucket uint64) string {
	return fmt.Sprintf("pool:%s:time:%d:", Hex(pool), bucket)
}

// TimeBucketKey accumulates sale-rate changes taking effect at bucket.
func TimeBucketKey(pool common.Address, bucket uint64, side int) AddKey {
	return AddKey(fmt.Sprintf("%stoken%d", TimeBucketPrefix(pool, bucket), side))
}

// TickPrefix matches the tick liquidity keys of pool.
func TickPrefix(pool common.Address) string {
	return fmt.Sprintf("pool:%s:tick:", Hex(pool))
}
