package slot

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"poolstate/internal/fault"
	"poolstate/internal/model"
)

// put writes v into a 32-byte word at offset/width, leaving noise elsewhere.
func put(v *big.Int, offset, width uint) []byte {
	word := make([]byte, model.WordSize)
	for i := range word {
		word[i] = 0xa5
	}
	mod := new(big.Int).Lsh(big.NewInt(1), width*8)
	u := new(big.Int).Mod(v, mod)
	field := u.FillBytes(make([]byte, width))
	copy(word[model.WordSize-offset-width:model.WordSize-offset], field)
	return word
}

func TestRoundTripEveryLayout(t *testing.T) {
	one := big.NewInt(1)
	for width := uint(1); width <= model.WordSize; width++ {
		bits := width * 8
		maxUnsigned := new(big.Int).Sub(new(big.Int).Lsh(one, bits), one)
		maxSigned := new(big.Int).Sub(new(big.Int).Lsh(one, bits-1), one)
		minSigned := new(big.Int).Neg(new(big.Int).Lsh(one, bits-1))

		for offset := uint(0); offset+width <= model.WordSize; offset++ {
			for _, v := range []*big.Int{big.NewInt(0), one, maxUnsigned} {
				got, err := Read(put(v, offset, width), offset, width, false)
				require.NoError(t, err)
				require.Zero(t, got.Cmp(v), "unsigned offset=%d width=%d v=%s got=%s", offset, width, v, got)
			}
			for _, v := range []*big.Int{big.NewInt(0), big.NewInt(-1), maxSigned, minSigned} {
				got, err := Read(put(v, offset, width), offset, width, true)
				require.NoError(t, err)
				require.Zero(t, got.Cmp(v), "signed offset=%d width=%d v=%s got=%s", offset, width, v, got)
			}
		}
	}
}

func TestReadUsesRightAlignedRange(t *testing.T) {
	word := common.FromHex("0x000000000000000000000000000000000000000000000000000000000000abcd")
	v, err := Read(word, 0, 1, false)
	require.NoError(t, err)
	require.Equal(t, int64(0xcd), v.Int64())

	v, err = Read(word, 1, 1, false)
	require.NoError(t, err)
	require.Equal(t, int64(0xab), v.Int64())

	v, err = Read(word, 0, 1, true)
	require.NoError(t, err)
	require.Equal(t, int64(-51), v.Int64())
}

func TestReadShortBufferIsRightAligned(t *testing.T) {
	v, err := Read([]byte{0x12, 0x34}, 0, 2, false)
	require.NoError(t, err)
	require.Equal(t, int64(0x1234), v.Int64())
}

func TestReadRejectsBadLayouts(t *testing.T) {
	word := make([]byte, 32)

	_, err := Read(word, 20, 13, false)
	require.ErrorIs(t, err, fault.ErrFieldOverflow)

	_, err = Read(word, 0, 0, false)
	require.ErrorIs(t, err, fault.ErrZeroWidth)

	_, err = Read(make([]byte, 33), 0, 1, false)
	require.ErrorIs(t, err, fault.ErrWordTooLong)

	_, err = Read(make([]byte, 19), 0, 20, false)
	require.ErrorIs(t, err, fault.ErrWordOverrun)
	require.True(t, fault.IsLayout(err))
}

func TestFieldAndDecode(t *testing.T) {
	loc := model.StorageLocation{Name: "tick", Offset: 20, Width: 3, Signed: true}
	word := put(big.NewInt(-887272), 20, 3)

	raw, err := Field(loc, word)
	require.NoError(t, err)
	require.Len(t, raw, 3)

	v, err := Decode(loc, word)
	require.NoError(t, err)
	require.Equal(t, int64(-887272), v.Int64())

	_, err = Decode(loc, word[:10])
	require.ErrorContains(t, err, "tick")
	require.True(t, fault.IsLayout(err))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(model.StorageLocation{Name: "a", Offset: 16, Width: 16}))
	require.ErrorIs(t, Validate(model.StorageLocation{Name: "b", Offset: 17, Width: 16}), fault.ErrFieldOverflow)
	require.ErrorIs(t, Validate(model.StorageLocation{Name: "c"}), fault.ErrZeroWidth)
}

func TestMappingSlotMatchesSolidityLayout(t *testing.T) {
	key := IntKey(-60)
	require.Equal(t, "0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffc4", key.Hex())

	index := Index(5)
	require.Equal(t, byte(5), index[31])

	want := crypto.Keccak256Hash(append(key.Bytes(), index.Bytes()...))
	require.Equal(t, want, MappingSlot(key, index))
	require.NotEqual(t, MappingSlot(IntKey(60), index), MappingSlot(key, index))
}
