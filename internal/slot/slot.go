// Package slot reads packed fields out of 32-byte contract storage words.
//
// A field is addressed from the least-significant end of the word: byte 0 of
// the field is the last byte of the word, so a field at offset o with width w
// occupies word[len(word)-o-w : len(word)-o].
package slot

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"poolstate/internal/fault"
	"poolstate/internal/model"
)

// Read extracts the field at offset/width from word. Signed fields are two's complement.
func Read(word []byte, offset, width uint, signed bool) (*big.Int, error) {
	if err := check(word, offset, width); err != nil {
		return nil, err
	}

	v := new(uint256.Int).SetBytes(word)
	v.Rsh(v, offset*8)
	v.And(v, mask(width))

	if !signed {
		return v.ToBig(), nil
	}
	if width < model.WordSize {
		v.ExtendSign(v, uint256.NewInt(uint64(width-1)))
	}
	if v.Sign() >= 0 {
		return v.ToBig(), nil
	}
	// magnitude of a negative word; Neg of the minimum value wraps to itself
	// and ToBig still yields 2^255
	mag := new(uint256.Int).Neg(v).ToBig()
	return mag.Neg(mag), nil
}

// Decode applies loc to word.
func Decode(loc model.StorageLocation, word []byte) (*big.Int, error) {
	v, err := Read(word, loc.Offset, loc.Width, loc.Signed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", loc.Name, err)
	}
	return v, nil
}

// Field returns a copy of the raw big-endian bytes of loc within word.
func Field(loc model.StorageLocation, word []byte) ([]byte, error) {
	if err := check(word, loc.Offset, loc.Width); err != nil {
		return nil, fmt.Errorf("%s: %w", loc.Name, err)
	}
	end := uint(len(word)) - loc.Offset
	out := make([]byte, loc.Width)
	copy(out, word[end-loc.Width:end])
	return out, nil
}

// Validate reports whether loc can be applied to a full storage word.
func Validate(loc model.StorageLocation) error {
	if loc.Width == 0 {
		return fmt.Errorf("%s: %w", loc.Name, fault.ErrZeroWidth)
	}
	if loc.Offset+loc.Width > model.WordSize {
		return fmt.Errorf("%s: offset %d width %d: %w", loc.Name, loc.Offset, loc.Width, fault.ErrFieldOverflow)
	}
	return nil
}

// MappingSlot returns the storage slot of mapping[key] for a mapping declared
// at slot index: keccak256(key ++ index).
func MappingSlot(key, index common.Hash) common.Hash {
	return crypto.Keccak256Hash(key.Bytes(), index.Bytes())
}

// IntKey encodes a signed mapping key the way the ABI pads it, sign-extended to 32 bytes.
func IntKey(v int64) common.Hash {
	u := uint256.NewInt(uint64(v))
	u.ExtendSign(u, uint256.NewInt(7))
	return common.Hash(u.Bytes32())
}

// Index returns the slot hash of a plain storage index.
func Index(i uint64) common.Hash {
	return common.Hash(uint256.NewInt(i).Bytes32())
}

func check(word []byte, offset, width uint) error {
	if width == 0 {
		return fault.ErrZeroWidth
	}
	if offset+width > model.WordSize {
		return fmt.Errorf("offset %d width %d: %w", offset, width, fault.ErrFieldOverflow)
	}
	if len(word) > model.WordSize {
		return fmt.Errorf("%d bytes: %w", len(word), fault.ErrWordTooLong)
	}
	if uint(len(word)) < offset+width {
		return fmt.Errorf("need %d bytes, have %d: %w", offset+width, len(word), fault.ErrWordOverrun)
	}
	return nil
}

func mask(width uint) *uint256.Int {
	// for width 32 the shift overflows to zero and the subtraction wraps to all ones
	m := new(uint256.Int).Lsh(uint256.NewInt(1), width*8)
	return m.SubUint64(m, 1)
}
