package codec

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeMagnitudeWithSign(t *testing.T) {
	neg, pos := true, false

	require.Equal(t, "-256", Decode([]byte{0x01, 0x00}, &neg).String())
	require.Equal(t, "256", Decode([]byte{0x01, 0x00}, &pos).String())
	// high bit is data, not sign, in magnitude form
	require.Equal(t, "255", Decode([]byte{0xff}, &pos).String())
	require.Equal(t, "0", Decode(nil, &neg).String())
}

func TestDecodeTwosComplement(t *testing.T) {
	cases := []struct {
		in   []byte
		want string
	}{
		{nil, "0"},
		{[]byte{0x00}, "0"},
		{[]byte{0x7f}, "127"},
		{[]byte{0x80}, "-128"},
		{[]byte{0xff}, "-1"},
		{[]byte{0xff, 0x7f}, "-129"},
		{[]byte{0x00, 0x80}, "128"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Decode(tc.in, nil).String(), "input %x", tc.in)
	}
}

func TestTwosComplementRoundTripsBeyond256Bits(t *testing.T) {
	max256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	values := []*big.Int{
		big.NewInt(0), big.NewInt(-1), big.NewInt(127), big.NewInt(128),
		big.NewInt(-128), big.NewInt(-129), max256,
		new(big.Int).Neg(max256),
		new(big.Int).Lsh(max256, 40),
	}
	for _, v := range values {
		enc := ToTwosComplement(v)
		require.Equal(t, 0, FromTwosComplement(enc).Cmp(v), "value %s enc %x", v, enc)
	}
	require.Equal(t, []byte{0x00, 0x80}, ToTwosComplement(big.NewInt(128)))
	require.Equal(t, []byte{0x80}, ToTwosComplement(big.NewInt(-128)))
	require.Equal(t, []byte{0x00}, ToTwosComplement(nil))
}

func TestParseDecimal(t *testing.T) {
	v, err := ParseDecimal("-340282366920938463463374607431768211456")
	require.NoError(t, err)
	require.Equal(t, 129, v.BitLen())
	require.Equal(t, -1, v.Sign())

	v, err = ParseDecimal("")
	require.NoError(t, err)
	require.Zero(t, v.Sign())

	_, err = ParseDecimal("12abc")
	require.Error(t, err)
}

func TestCopyIsIndependent(t *testing.T) {
	orig := big.NewInt(5)
	c := Copy(orig)
	c.Add(c, big.NewInt(1))
	require.Equal(t, int64(5), orig.Int64())
	require.Zero(t, Copy(nil).Sign())
}
