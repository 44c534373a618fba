// Package codec converts signed amounts between byte encodings and *big.Int.
//
// Two encodings appear in block data: an unsigned big-endian magnitude with a
// separate sign flag, and big-endian two's complement. Values are unbounded.
package codec

import (
	"fmt"
	"math/big"
	"strings"
)

// Decode interprets b as a magnitude when sign is non-nil (true means
// negative) and as two's complement otherwise. An empty buffer is zero.
func Decode(b []byte, sign *bool) *big.Int {
	if sign != nil {
		return FromMagnitude(b, *sign)
	}
	return FromTwosComplement(b)
}

// FromMagnitude returns the magnitude b negated when negative is set.
func FromMagnitude(b []byte, negative bool) *big.Int {
	v := new(big.Int).SetBytes(b)
	if negative {
		v.Neg(v)
	}
	return v
}

// FromTwosComplement decodes big-endian two's complement bytes.
func FromTwosComplement(b []byte) *big.Int {
	v := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(len(b))*8))
	}
	return v
}

// ToTwosComplement encodes v in the fewest bytes that keep its sign.
// Zero encodes as a single 0x00 byte.
func ToTwosComplement(v *big.Int) []byte {
	if v == nil {
		return []byte{0}
	}
	m := v
	if v.Sign() < 0 {
		m = new(big.Int).Not(v)
	}
	size := m.BitLen()/8 + 1
	u := new(big.Int).Set(v)
	if v.Sign() < 0 {
		u.Add(u, new(big.Int).Lsh(big.NewInt(1), uint(size)*8))
	}
	return u.FillBytes(make([]byte, size))
}

// ParseDecimal parses a base-10 integer such as the amounts in decoded logs.
// Empty input is zero.
func ParseDecimal(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal %q", s)
	}
	return v, nil
}

// Copy returns an independent copy of v, treating nil as zero.
func Copy(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
