package statediff

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"poolstate/internal/fault"
	"poolstate/internal/model"
)

var (
	addrA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	addrB = common.HexToAddress("0x000000000000000000000000000000000000000b")
	addrC = common.HexToAddress("0x000000000000000000000000000000000000000c")
	slotS = common.HexToHash("0x01")
	slotT = common.HexToHash("0x02")
)

func change(addr common.Address, slot common.Hash, ordinal uint64, old, next byte) model.StorageChange {
	return model.StorageChange{
		Address:  addr,
		Slot:     slot,
		OldValue: common.LeftPadBytes([]byte{old}, 32),
		NewValue: common.LeftPadBytes([]byte{next}, 32),
		Ordinal:  ordinal,
	}
}

func TestFilterByAddressKeepsOrder(t *testing.T) {
	changes := []model.StorageChange{
		change(addrA, slotS, 10, 0, 1),
		change(addrB, slotS, 11, 0, 2),
		change(addrA, slotS, 12, 1, 3),
		change(addrB, slotS, 13, 2, 4),
	}

	got := FilterByAddress(changes, addrA)
	require.Len(t, got, 2)
	require.Equal(t, uint64(10), got[0].Ordinal)
	require.Equal(t, uint64(12), got[1].Ordinal)

	none := FilterByAddress(changes, addrC)
	require.NotNil(t, none)
	require.Empty(t, none)

	require.Empty(t, FilterByAddress(nil, addrA))
}

func TestValidateOrder(t *testing.T) {
	require.NoError(t, ValidateOrder(nil))
	require.NoError(t, ValidateOrder([]model.StorageChange{change(addrA, slotS, 1, 0, 0), change(addrA, slotS, 2, 0, 0)}))

	err := ValidateOrder([]model.StorageChange{change(addrA, slotS, 2, 0, 0), change(addrA, slotS, 2, 0, 0)})
	require.ErrorIs(t, err, fault.ErrUnorderedChanges)
	require.True(t, fault.IsStructure(err))
}

func TestSlotWindow(t *testing.T) {
	changes := []model.StorageChange{
		change(addrA, slotS, 10, 0, 1),
		change(addrA, slotT, 15, 7, 8),
		change(addrA, slotS, 20, 1, 5),
		change(addrA, slotS, 30, 5, 9),
	}

	before, after, ok := SlotWindow(changes, slotS, 0, 20)
	require.True(t, ok)
	require.Equal(t, byte(0), before[31])
	require.Equal(t, byte(5), after[31])

	_, after, ok = SlotWindow(changes, slotS, 0, 10)
	require.True(t, ok)
	require.Equal(t, byte(1), after[31])

	before, after, ok = SlotWindow(changes, slotS, 10, 30)
	require.True(t, ok)
	require.Equal(t, byte(1), before[31])
	require.Equal(t, byte(9), after[31])

	_, _, ok = SlotWindow(changes, slotS, 30, 40)
	require.False(t, ok)

	_, _, ok = SlotWindow(changes, slotT, 0, 12)
	require.False(t, ok)

	require.Equal(t, []common.Hash{slotS, slotT}, Slots(changes))
}
