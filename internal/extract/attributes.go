package extract

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"poolstate/internal/codec"
	"poolstate/internal/model"
	"poolstate/internal/slot"
	"poolstate/internal/statediff"
)

// ChangedAttributes decodes the tracked fields of ev from the writes made by
// contract after from and up to and including ordinal. from is the ordinal of
// the contract's previous event in the block, or zero. A field is reported when
// its value after the last such write differs from its value before the first
// one. Each write is credited to exactly one event.
func ChangedAttributes(ev Event, changes []model.StorageChange, contract common.Address, from, ordinal uint64) ([]model.AttributeChange, error) {
	out := make([]model.AttributeChange, 0)
	locations := TrackedLocations(ev)
	if len(locations) == 0 {
		return out, nil
	}

	scoped := statediff.FilterByAddress(changes, contract)
	for _, l := range locations {
		before, after, ok := statediff.SlotWindow(scoped, l.Slot, from, ordinal)
		if !ok {
			continue
		}
		next, err := slot.Decode(l, after)
		if err != nil {
			return nil, err
		}
		if len(before) > 0 {
			prev, err := slot.Decode(l, before)
			if err != nil {
				return nil, err
			}
			if prev.Cmp(next) == 0 {
				continue
			}
		}
		out = append(out, model.AttributeChange{
			Key:     l.Name,
			Value:   encodeValue(next, l.Signed),
			Ordinal: ordinal,
		})
	}
	return out, nil
}

// encodeValue returns the minimal big-endian form of v, two's complement for
// signed fields. Zero encodes as a single 0x00 byte.
func encodeValue(v *big.Int, signed bool) []byte {
	if signed {
		return codec.ToTwosComplement(v)
	}
	if v.Sign() == 0 {
		return []byte{0x00}
	}
	return v.Bytes()
}
