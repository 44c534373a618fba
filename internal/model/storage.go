package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// WordSize is the size of a contract storage word in bytes.
const WordSize = 32

// StorageLocation describes where a field lives inside a storage word.
// Offset counts bytes from the least-significant (right) end of the word.
type StorageLocation struct {
	Name   string
	Slot   common.Hash
	Offset uint
	Width  uint
	Signed bool
}

// StorageChange is a single write to a contract storage slot observed in a block.
type StorageChange struct {
	Address  common.Address `json:"address"`
	Slot     common.Hash    `json:"slot"`
	OldValue hexutil.Bytes  `json:"old_value"`
	NewValue hexutil.Bytes  `json:"new_value"`
	Ordinal  uint64         `json:"ordinal"`
}
