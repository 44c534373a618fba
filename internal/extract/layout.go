package extract

import (
	"fmt"

	"poolstate/internal/model"
	"poolstate/internal/slot"
)

// Storage indexes of Uniswap V3 pools and sale-rate pools.
const (
	v3Slot0Index           = 0
	v3FeeGrowth0Index      = 1
	v3FeeGrowth1Index      = 2
	v3ProtocolFeesIndex    = 3
	v3LiquidityIndex       = 4
	v3TicksMappingIndex    = 5
	twammSaleRatesIndex    = 0
	twammLastExecutedIndex = 1
)

var (
	v3SqrtPrice = loc("sqrt_price_x96", v3Slot0Index, 0, 20, false)
	v3Tick      = loc("tick", v3Slot0Index, 20, 3, true)
	v3ObsIndex  = loc("observation_index", v3Slot0Index, 23, 2, false)
	v3ObsCard   = loc("observation_cardinality", v3Slot0Index, 25, 2, false)
	v3ObsNext   = loc("observation_cardinality_next", v3Slot0Index, 27, 2, false)
	v3FeeProto  = loc("fee_protocol", v3Slot0Index, 29, 1, false)

	v3FeeGrowth0     = loc("fee_growth_global0_x128", v3FeeGrowth0Index, 0, 32, false)
	v3FeeGrowth1     = loc("fee_growth_global1_x128", v3FeeGrowth1Index, 0, 32, false)
	v3ProtocolFees0  = loc("protocol_fees/token0", v3ProtocolFeesIndex, 0, 16, false)
	v3ProtocolFees1  = loc("protocol_fees/token1", v3ProtocolFeesIndex, 16, 16, false)
	v3PoolLiquidity  = loc("liquidity", v3LiquidityIndex, 0, 16, false)
	twammSaleRate0   = loc("sale_rate_token0", twammSaleRatesIndex, 0, 16, false)
	twammSaleRate1   = loc("sale_rate_token1", twammSaleRatesIndex, 16, 16, false)
	twammLastExecute = loc("last_virtual_order_time", twammLastExecutedIndex, 0, 8, false)

	v3Slot0 = []model.StorageLocation{v3SqrtPrice, v3Tick, v3ObsIndex, v3ObsCard, v3ObsNext, v3FeeProto}

	v3SwapLocations = append(append([]model.StorageLocation{}, v3Slot0...),
		v3FeeGrowth0, v3FeeGrowth1, v3ProtocolFees0, v3ProtocolFees1, v3PoolLiquidity)
	twammLocations = []model.StorageLocation{twammSaleRate0, twammSaleRate1, twammLastExecute}
)

func loc(name string, index uint64, offset, width uint, signed bool) model.StorageLocation {
	return model.StorageLocation{Name: name, Slot: slot.Index(index), Offset: offset, Width: width, Signed: signed}
}

// tickLocations returns the tracked fields of ticks[tick], the first word of
// the Tick.Info struct in the ticks mapping.
func tickLocations(tick int32) []model.StorageLocation {
	word := slot.MappingSlot(slot.IntKey(int64(tick)), slot.Index(v3TicksMappingIndex))
	return []model.StorageLocation{
		{Name: fmt.Sprintf("ticks/%d/liquidity-gross", tick), Slot: word, Offset: 0, Width: 16},
		{Name: fmt.Sprintf("ticks/%d/net-liquidity", tick), Slot: word, Offset: 16, Width: 16, Signed: true},
	}
}

// TrackedLocations returns the storage fields an event kind may change.
func TrackedLocations(ev Event) []model.StorageLocation {
	switch e := ev.(type) {
	case Initialize:
		return v3Slot0
	case Swap:
		return v3SwapLocations
	case Mint:
		return rangeLocations(e.TickLower, e.TickUpper)
	case Burn:
		return rangeLocations(e.TickLower, e.TickUpper)
	case SetFeeProtocol:
		return []model.StorageLocation{v3FeeProto}
	case CollectProtocol:
		return []model.StorageLocation{v3ProtocolFees0, v3ProtocolFees1}
	case OrderUpdated, VirtualOrdersExecuted:
		return twammLocations
	default:
		return nil
	}
}

func rangeLocations(lower, upper int32) []model.StorageLocation {
	out := []model.StorageLocation{v3PoolLiquidity}
	out = append(out, tickLocations(lower)...)
	return append(out, tickLocations(upper)...)
}

// ValidateLayouts checks every static location.
func ValidateLayouts() error {
	for _, l := range append(append([]model.StorageLocation{}, v3SwapLocations...), twammLocations...) {
		if err := slot.Validate(l); err != nil {
			return err
		}
	}
	return nil
}
