package model

import "github.com/ethereum/go-ethereum/common/hexutil"

// Event kinds carried in EventRecord.Kind.
const (
	KindPoolCreated           = "PoolCreated"
	KindInitialize            = "Initialize"
	KindSwap                  = "Swap"
	KindMint                  = "Mint"
	KindBurn                  = "Burn"
	KindCollect               = "Collect"
	KindSetFeeProtocol        = "SetFeeProtocol"
	KindCollectProtocol       = "CollectProtocol"
	KindPositionUpdated       = "PositionUpdated"
	KindSwapped               = "Swapped"
	KindOrderUpdated          = "OrderUpdated"
	KindVirtualOrdersExecuted = "VirtualOrdersExecuted"
)

// Pool protocols.
const (
	ProtocolUniswapV3 = "uniswap_v3"
	ProtocolTWAMM     = "twamm"
)

// PoolCreatedEventData registers a pool. Pool is the created pool, which may
// differ from the emitting address when a factory emits the log.
type PoolCreatedEventData struct {
	Protocol    string `json:"protocol"`
	Pool        string `json:"pool"`
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`
	Fee         uint32 `json:"fee"`
	TickSpacing int32  `json:"tick_spacing"`
}

// InitializeEventData is the decoded Initialize event payload.
type InitializeEventData struct {
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Tick         int32  `json:"tick"`
}

// SwapEventData is the decoded Swap event payload.
type SwapEventData struct {
	Sender       string `json:"sender"`
	Recipient    string `json:"recipient"`
	Amount0      string `json:"amount0"`
	Amount1      string `json:"amount1"`
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Liquidity    string `json:"liquidity"`
	Tick         int32  `json:"tick"`
}

// MintEventData is the decoded Mint event payload.
type MintEventData struct {
	Sender    string `json:"sender"`
	Owner     string `json:"owner"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Amount    string `json:"amount"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

// BurnEventData is the decoded Burn event payload.
type BurnEventData struct {
	Owner     string `json:"owner"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Amount    string `json:"amount"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

// CollectEventData is the decoded Collect event payload.
type CollectEventData struct {
	Owner     string `json:"owner"`
	Recipient string `json:"recipient"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

// SetFeeProtocolEventData is the decoded SetFeeProtocol event payload.
type SetFeeProtocolEventData struct {
	FeeProtocol0Old uint8 `json:"fee_protocol0_old"`
	FeeProtocol1Old uint8 `json:"fee_protocol1_old"`
	FeeProtocol0New uint8 `json:"fee_protocol0_new"`
	FeeProtocol1New uint8 `json:"fee_protocol1_new"`
}

// CollectProtocolEventData is the decoded CollectProtocol event payload.
type CollectProtocolEventData struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

// SignedMagnitude is an unsigned big-endian magnitude with a separate sign flag.
type SignedMagnitude struct {
	Magnitude hexutil.Bytes `json:"magnitude"`
	Negative  bool          `json:"negative"`
}

// PositionUpdatedEventData is a liquidity change on a sale-rate pool.
// Delta0 and Delta1 are two's complement.
type PositionUpdatedEventData struct {
	Owner          string          `json:"owner"`
	TickLower      int32           `json:"tick_lower"`
	TickUpper      int32           `json:"tick_upper"`
	LiquidityDelta SignedMagnitude `json:"liquidity_delta"`
	Delta0         hexutil.Bytes   `json:"delta0"`
	Delta1         hexutil.Bytes   `json:"delta1"`
}

// SwappedEventData is a swap on a sale-rate pool. Delta0 and Delta1 are two's complement.
type SwappedEventData struct {
	Delta0    hexutil.Bytes `json:"delta0"`
	Delta1    hexutil.Bytes `json:"delta1"`
	Liquidity string        `json:"liquidity"`
	SqrtRatio string        `json:"sqrt_ratio"`
	Tick      int32         `json:"tick"`
}

// OrderUpdatedEventData changes the sale rate of a long-term order.
// SellSide is 0 when token0 is sold. SaleRateDelta is two's complement.
type OrderUpdatedEventData struct {
	Owner         string        `json:"owner"`
	SellSide      uint8         `json:"sell_side"`
	StartTime     uint64        `json:"start_time"`
	EndTime       uint64        `json:"end_time"`
	SaleRateDelta hexutil.Bytes `json:"sale_rate_delta"`
}

// VirtualOrdersExecutedEventData reports the pool's sale rates after execution.
type VirtualOrdersExecutedEventData struct {
	SaleRateToken0 string `json:"sale_rate_token0"`
	SaleRateToken1 string `json:"sale_rate_token1"`
}
