package postgres

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"poolstate/internal/store"
)

func TestRegistrationsDecodesPoolEntries(t *testing.T) {
	entries := []store.Entry{
		{Key: "Pool:aa", Policy: store.PolicySetIfNotExists, Bytes: []byte(`{"protocol":"twamm","address":"0xaa","token0":"0x01","token1":"0x02"}`)},
		{Key: "pool:aa", Policy: store.PolicySetOrSum, Int: big.NewInt(1)},
		{Key: "Token:bb", Policy: store.PolicySetIfNotExists, Bytes: []byte(`x`)},
	}
	pools, err := registrations(entries)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	require.Equal(t, "twamm", pools[0].Protocol)
	require.Equal(t, "0x02", pools[0].Token1)

	_, err = registrations([]store.Entry{{Key: "Pool:cc", Policy: store.PolicySetIfNotExists, Bytes: []byte(`not json`)}})
	require.ErrorContains(t, err, "Pool:cc")
}
