package store

import (
	"fmt"
	"math/big"

	"poolstate/internal/codec"
	"poolstate/internal/model"
)

// Op is a recorded store mutation. Extractors return Ops so the caller decides
// when and against which Tx they are applied.
type Op struct {
	Policy  Policy
	Key     string
	Ordinal uint64
	Bytes   []byte
	Int     *big.Int
	Kind    model.ChangeKind
}

// SetOp records a SetIfNotExists write.
func SetOp(key SetKey, ordinal uint64, value []byte) Op {
	return Op{Policy: PolicySetIfNotExists, Key: string(key), Ordinal: ordinal, Bytes: value}
}

// AddOp records an Add write.
func AddOp(key AddKey, ordinal uint64, delta *big.Int) Op {
	return Op{Policy: PolicyAdd, Key: string(key), Ordinal: ordinal, Int: codec.Copy(delta)}
}

// SumOp records a SetOrSum write.
func SumOp(key SumKey, ordinal uint64, value *big.Int, kind model.ChangeKind) Op {
	return Op{Policy: PolicySetOrSum, Key: string(key), Ordinal: ordinal, Int: codec.Copy(value), Kind: kind}
}

// Apply performs the write on tx.
func (o Op) Apply(tx *Tx) error {
	switch o.Policy {
	case PolicySetIfNotExists:
		return tx.SetIfNotExists(SetKey(o.Key), o.Ordinal, o.Bytes)
	case PolicyAdd:
		return tx.Add(AddKey(o.Key), o.Ordinal, o.Int)
	case PolicySetOrSum:
		return tx.SetOrSum(SumKey(o.Key), o.Ordinal, o.Int, o.Kind)
	default:
		return fmt.Errorf("op %s: unknown policy %s", o.Key, o.Policy)
	}
}

func (o Op) String() string {
	switch o.Policy {
	case PolicySetIfNotExists:
		return fmt.Sprintf("%s(%s@%d, %d bytes)", o.Policy, o.Key, o.Ordinal, len(o.Bytes))
	case PolicySetOrSum:
		return fmt.Sprintf("%s(%s@%d, %s %s)", o.Policy, o.Key, o.Ordinal, o.Kind, codec.Copy(o.Int))
	default:
		return fmt.Sprintf("%s(%s@%d, %s)", o.Policy, o.Key, o.Ordinal, codec.Copy(o.Int))
	}
}
