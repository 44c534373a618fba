// Package statediff narrows a block's storage writes to one contract.
package statediff

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"poolstate/internal/fault"
	"poolstate/internal/model"
)

// FilterByAddress returns the writes made by address, in their original order.
// Every write is kept, including repeated writes to the same slot.
func FilterByAddress(changes []model.StorageChange, address common.Address) []model.StorageChange {
	out := make([]model.StorageChange, 0)
	for _, c := range changes {
		if c.Address == address {
			out = append(out, c)
		}
	}
	return out
}

// ValidateOrder checks that ordinals strictly increase.
func ValidateOrder(changes []model.StorageChange) error {
	for i := 1; i < len(changes); i++ {
		if changes[i].Ordinal <= changes[i-1].Ordinal {
			return fmt.Errorf("ordinal %d after %d: %w", changes[i].Ordinal, changes[i-1].Ordinal, fault.ErrUnorderedChanges)
		}
	}
	return nil
}

// SlotWindow returns the value of slot before its first write and after its
// last write with from < ordinal <= to. ok is false when no such write exists.
func SlotWindow(changes []model.StorageChange, slot common.Hash, from, to uint64) (before, after []byte, ok bool) {
	for _, c := range changes {
		if c.Ordinal > to {
			break
		}
		if c.Ordinal <= from || c.Slot != slot {
			continue
		}
		if !ok {
			before = c.OldValue
			ok = true
		}
		after = c.NewValue
	}
	return before, after, ok
}

// Slots returns the distinct slots written in changes, in first-write order.
func Slots(changes []model.StorageChange) []common.Hash {
	seen := make(map[common.Hash]struct{}, len(changes))
	out := make([]common.Hash, 0, len(changes))
	for _, c := range changes {
		if _, dup := seen[c.Slot]; dup {
			continue
		}
		seen[c.Slot] = struct{}{}
		out = append(out, c.Slot)
	}
	return out
}
