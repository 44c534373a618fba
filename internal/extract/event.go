// Package extract turns decoded events into attribute changes, balance deltas
// and store updates.
//
// Event is a closed set: every kind is a struct in this file and every
// operation dispatches with a type switch. Kinds without tracked state fall
// through to empty results.
package extract

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"poolstate/internal/codec"
	"poolstate/internal/fault"
	"poolstate/internal/model"
)

// Event is implemented only by the types in this package.
type Event interface {
	Kind() string
	event()
}

type PoolCreated struct {
	Protocol    string
	Pool        common.Address
	Token0      common.Address
	Token1      common.Address
	Fee         uint32
	TickSpacing int32
}

type Initialize struct {
	SqrtPriceX96 *big.Int
	Tick         int32
}

type Swap struct {
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         int32
}

type Mint struct {
	TickLower int32
	TickUpper int32
	Amount    *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
}

type Burn struct {
	TickLower int32
	TickUpper int32
	Amount    *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
}

type Collect struct {
	TickLower int32
	TickUpper int32
	Amount0   *big.Int
	Amount1   *big.Int
}

type SetFeeProtocol struct {
	Old0, Old1 uint8
	New0, New1 uint8
}

type CollectProtocol struct {
	Amount0 *big.Int
	Amount1 *big.Int
}

// PositionUpdated changes liquidity on a sale-rate pool.
type PositionUpdated struct {
	TickLower      int32
	TickUpper      int32
	LiquidityDelta *big.Int
	Delta0         *big.Int
	Delta1         *big.Int
}

// Swapped is a swap on a sale-rate pool.
type Swapped struct {
	Delta0    *big.Int
	Delta1    *big.Int
	Liquidity *big.Int
	SqrtRatio *big.Int
	Tick      int32
}

// OrderUpdated changes the sale rate of a long-term order selling token<SellSide>
// between StartTime and EndTime.
type OrderUpdated struct {
	SellSide      int
	StartTime     uint64
	EndTime       uint64
	SaleRateDelta *big.Int
}

// VirtualOrdersExecuted reports the sale rates after executing virtual orders.
type VirtualOrdersExecuted struct {
	SaleRate0 *big.Int
	SaleRate1 *big.Int
}

// Unrecognized is any kind without tracked state.
type Unrecognized struct {
	Name string
}

func (PoolCreated) Kind() string           { return model.KindPoolCreated }
func (Initialize) Kind() string            { return model.KindInitialize }
func (Swap) Kind() string                  { return model.KindSwap }
func (Mint) Kind() string                  { return model.KindMint }
func (Burn) Kind() string                  { return model.KindBurn }
func (Collect) Kind() string               { return model.KindCollect }
func (SetFeeProtocol) Kind() string        { return model.KindSetFeeProtocol }
func (CollectProtocol) Kind() string       { return model.KindCollectProtocol }
func (PositionUpdated) Kind() string       { return model.KindPositionUpdated }
func (Swapped) Kind() string               { return model.KindSwapped }
func (OrderUpdated) Kind() string          { return model.KindOrderUpdated }
func (VirtualOrdersExecuted) Kind() string { return model.KindVirtualOrdersExecuted }
func (u Unrecognized) Kind() string        { return u.Name }

func (PoolCreated) event()           {}
func (Initialize) event()            {}
func (Swap) event()                  {}
func (Mint) event()                  {}
func (Burn) event()                  {}
func (Collect) event()               {}
func (SetFeeProtocol) event()        {}
func (CollectProtocol) event()       {}
func (PositionUpdated) event()       {}
func (Swapped) event()               {}
func (OrderUpdated) event()          {}
func (VirtualOrdersExecuted) event() {}
func (Unrecognized) event()          {}

// ParseEvent decodes rec.Decoded according to rec.Kind. Unknown kinds yield
// Unrecognized without looking at the payload.
func ParseEvent(rec model.EventRecord) (Event, error) {
	p := parser{kind: rec.Kind}
	var ev Event
	switch rec.Kind {
	case model.KindPoolCreated:
		var d model.PoolCreatedEventData
		if p.unmarshal(rec.Decoded, &d) {
			protocol := d.Protocol
			if protocol == "" {
				protocol = model.ProtocolUniswapV3
			}
			ev = PoolCreated{
				Protocol:    protocol,
				Pool:        p.address("pool", d.Pool),
				Token0:      p.address("token0", d.Token0),
				Token1:      p.address("token1", d.Token1),
				Fee:         d.Fee,
				TickSpacing: d.TickSpacing,
			}
		}
	case model.KindInitialize:
		var d model.InitializeEventData
		if p.unmarshal(rec.Decoded, &d) {
			ev = Initialize{SqrtPriceX96: p.decimal("sqrt_price_x96", d.SqrtPriceX96), Tick: d.Tick}
		}
	case model.KindSwap:
		var d model.SwapEventData
		if p.unmarshal(rec.Decoded, &d) {
			ev = Swap{
				Amount0:      p.decimal("amount0", d.Amount0),
				Amount1:      p.decimal("amount1", d.Amount1),
				SqrtPriceX96: p.decimal("sqrt_price_x96", d.SqrtPriceX96),
				Liquidity:    p.decimal("liquidity", d.Liquidity),
				Tick:         d.Tick,
			}
		}
	case model.KindMint:
		var d model.MintEventData
		if p.unmarshal(rec.Decoded, &d) {
			ev = Mint{
				TickLower: d.TickLower,
				TickUpper: d.TickUpper,
				Amount:    p.decimal("amount", d.Amount),
				Amount0:   p.decimal("amount0", d.Amount0),
				Amount1:   p.decimal("amount1", d.Amount1),
			}
		}
	case model.KindBurn:
		var d model.BurnEventData
		if p.unmarshal(rec.Decoded, &d) {
			ev = Burn{
				TickLower: d.TickLower,
				TickUpper: d.TickUpper,
				Amount:    p.decimal("amount", d.Amount),
				Amount0:   p.decimal("amount0", d.Amount0),
				Amount1:   p.decimal("amount1", d.Amount1),
			}
		}
	case model.KindCollect:
		var d model.CollectEventData
		if p.unmarshal(rec.Decoded, &d) {
			ev = Collect{
				TickLower: d.TickLower,
				TickUpper: d.TickUpper,
				Amount0:   p.decimal("amount0", d.Amount0),
				Amount1:   p.decimal("amount1", d.Amount1),
			}
		}
	case model.KindSetFeeProtocol:
		var d model.SetFeeProtocolEventData
		if p.unmarshal(rec.Decoded, &d) {
			ev = SetFeeProtocol{Old0: d.FeeProtocol0Old, Old1: d.FeeProtocol1Old, New0: d.FeeProtocol0New, New1: d.FeeProtocol1New}
		}
	case model.KindCollectProtocol:
		var d model.CollectProtocolEventData
		if p.unmarshal(rec.Decoded, &d) {
			ev = CollectProtocol{Amount0: p.decimal("amount0", d.Amount0), Amount1: p.decimal("amount1", d.Amount1)}
		}
	case model.KindPositionUpdated:
		var d model.PositionUpdatedEventData
		if p.unmarshal(rec.Decoded, &d) {
			negative := d.LiquidityDelta.Negative
			ev = PositionUpdated{
				TickLower:      d.TickLower,
				TickUpper:      d.TickUpper,
				LiquidityDelta: codec.Decode(d.LiquidityDelta.Magnitude, &negative),
				Delta0:         codec.Decode(d.Delta0, nil),
				Delta1:         codec.Decode(d.Delta1, nil),
			}
		}
	case model.KindSwapped:
		var d model.SwappedEventData
		if p.unmarshal(rec.Decoded, &d) {
			ev = Swapped{
				Delta0:    codec.Decode(d.Delta0, nil),
				Delta1:    codec.Decode(d.Delta1, nil),
				Liquidity: p.decimal("liquidity", d.Liquidity),
				SqrtRatio: p.decimal("sqrt_ratio", d.SqrtRatio),
				Tick:      d.Tick,
			}
		}
	case model.KindOrderUpdated:
		var d model.OrderUpdatedEventData
		if p.unmarshal(rec.Decoded, &d) {
			if d.SellSide > 1 {
				p.fail("sell_side %d", d.SellSide)
			}
			if d.EndTime <= d.StartTime {
				p.fail("end_time %d not after start_time %d", d.EndTime, d.StartTime)
			}
			ev = OrderUpdated{
				SellSide:      int(d.SellSide),
				StartTime:     d.StartTime,
				EndTime:       d.EndTime,
				SaleRateDelta: codec.Decode(d.SaleRateDelta, nil),
			}
		}
	case model.KindVirtualOrdersExecuted:
		var d model.VirtualOrdersExecutedEventData
		if p.unmarshal(rec.Decoded, &d) {
			ev = VirtualOrdersExecuted{
				SaleRate0: p.decimal("sale_rate_token0", d.SaleRateToken0),
				SaleRate1: p.decimal("sale_rate_token1", d.SaleRateToken1),
			}
		}
	default:
		return Unrecognized{Name: rec.Kind}, nil
	}
	if p.err != nil {
		return nil, p.err
	}
	return ev, nil
}

// parser keeps the first conversion error so payload fields can be decoded inline.
type parser struct {
	kind string
	err  error
}

func (p *parser) fail(format string, args ...interface{}) {
	if p.err == nil {
		p.err = fmt.Errorf("%s: %s: %w", p.kind, fmt.Sprintf(format, args...), fault.ErrMalformedPayload)
	}
}

func (p *parser) unmarshal(data json.RawMessage, v interface{}) bool {
	if len(data) == 0 {
		p.fail("empty payload")
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		p.fail("%v", err)
		return false
	}
	return true
}

func (p *parser) decimal(field, s string) *big.Int {
	v, err := codec.ParseDecimal(s)
	if err != nil {
		p.fail("%s: %v", field, err)
		return new(big.Int)
	}
	return v
}

func (p *parser) address(field, s string) common.Address {
	if !common.IsHexAddress(s) {
		p.fail("%s: invalid address %q", field, s)
		return common.Address{}
	}
	return common.HexToAddress(s)
}
