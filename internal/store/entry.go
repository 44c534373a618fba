package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"poolstate/internal/codec"
)

// Policy is the merge policy an entry was created with.
type Policy uint8

const (
	PolicySetIfNotExists Policy = iota + 1
	PolicyAdd
	PolicySetOrSum
)

func (p Policy) String() string {
	switch p {
	case PolicySetIfNotExists:
		return "set_if_not_exists"
	case PolicyAdd:
		return "add"
	case PolicySetOrSum:
		return "set_or_sum"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// ParsePolicy is the inverse of Policy.String.
func ParsePolicy(s string) (Policy, error) {
	for _, p := range []Policy{PolicySetIfNotExists, PolicyAdd, PolicySetOrSum} {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown policy %q", s)
}

// Entry is one keyed value. SetIfNotExists entries carry Bytes, the others Int.
// Ordinal and Block record the last write.
type Entry struct {
	Key     string
	Policy  Policy
	Ordinal uint64
	Block   uint64
	Int     *big.Int
	Bytes   []byte
}

// Clone returns a deep copy.
func (e Entry) Clone() Entry {
	out := e
	if e.Int != nil {
		out.Int = new(big.Int).Set(e.Int)
	}
	if e.Bytes != nil {
		out.Bytes = append([]byte(nil), e.Bytes...)
	}
	return out
}

// Equal compares two entries by value.
func (e Entry) Equal(o Entry) bool {
	if e.Key != o.Key || e.Policy != o.Policy || e.Ordinal != o.Ordinal || e.Block != o.Block {
		return false
	}
	if (e.Int == nil) != (o.Int == nil) || (e.Int != nil && e.Int.Cmp(o.Int) != 0) {
		return false
	}
	return bytes.Equal(e.Bytes, o.Bytes)
}

// Value renders the entry value for display: decimal for integers, the raw
// text for printable bytes, hex otherwise.
func (e Entry) Value() string {
	if e.Policy != PolicySetIfNotExists {
		return codec.Copy(e.Int).String()
	}
	if json.Valid(e.Bytes) {
		return string(e.Bytes)
	}
	return hexutil.Encode(e.Bytes)
}

type entryJSON struct {
	Key     string        `json:"key"`
	Policy  string        `json:"policy"`
	Ordinal uint64        `json:"ordinal"`
	Block   uint64        `json:"block"`
	Int     string        `json:"int,omitempty"`
	Bytes   hexutil.Bytes `json:"bytes,omitempty"`
}

// MarshalJSON writes integers as decimal strings.
func (e Entry) MarshalJSON() ([]byte, error) {
	raw := entryJSON{
		Key:     e.Key,
		Policy:  e.Policy.String(),
		Ordinal: e.Ordinal,
		Block:   e.Block,
		Bytes:   e.Bytes,
	}
	if e.Int != nil {
		raw.Int = e.Int.String()
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes an Entry written by MarshalJSON.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	policy, err := ParsePolicy(raw.Policy)
	if err != nil {
		return err
	}
	out := Entry{
		Key:     raw.Key,
		Policy:  policy,
		Ordinal: raw.Ordinal,
		Block:   raw.Block,
		Bytes:   raw.Bytes,
	}
	if raw.Int != "" {
		v, err := codec.ParseDecimal(raw.Int)
		if err != nil {
			return fmt.Errorf("entry %s: %w", raw.Key, err)
		}
		out.Int = v
	}
	*e = out
	return nil
}
