package store

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"go.uber.org/zap"

	"poolstate/internal/codec"
	"poolstate/internal/fault"
	"poolstate/internal/model"
)

type deltaID struct {
	key     string
	ordinal uint64
}

// Tx stages the writes of one block. Reads see staged writes first. After a
// write fails the Tx is poisoned: later writes and Commit return that error.
//
// A Tx keeps the context it was opened with for backend reads, the same way
// database/sql transactions do.
type Tx struct {
	ctx   context.Context
	store *Store
	block uint64

	view   map[string]Entry
	dirty  map[string]struct{}
	last   map[string]uint64
	deltas map[deltaID]struct{}
	writes int
	err    error
	closed bool
}

func newTx(ctx context.Context, s *Store, block uint64) *Tx {
	return &Tx{
		ctx:    ctx,
		store:  s,
		block:  block,
		view:   make(map[string]Entry),
		dirty:  make(map[string]struct{}),
		last:   make(map[string]uint64),
		deltas: make(map[deltaID]struct{}),
	}
}

// Writes returns the number of writes that changed staged state.
func (t *Tx) Writes() int { return t.writes }

// Get returns the staged or committed entry for key.
func (t *Tx) Get(key string) (Entry, bool, error) {
	if err := t.usable(); err != nil {
		return Entry{}, false, err
	}
	e, ok, err := t.load(key)
	if err != nil || !ok {
		return Entry{}, ok, err
	}
	return e.Clone(), true, nil
}

// Int returns the integer value of key, zero when absent.
func (t *Tx) Int(key string) (*big.Int, error) {
	e, ok, err := t.Get(key)
	if err != nil || !ok {
		return new(big.Int), err
	}
	return codec.Copy(e.Int), nil
}

// SetIfNotExists writes value unless key already exists.
func (t *Tx) SetIfNotExists(key SetKey, ordinal uint64, value []byte) error {
	k := string(key)
	return t.write(k, func() error {
		e, ok, err := t.prepare(k, PolicySetIfNotExists, ordinal, true)
		if err != nil {
			return err
		}
		t.last[k] = ordinal
		if ok {
			return nil
		}
		e.Bytes = append([]byte(nil), value...)
		t.stage(e, ordinal)
		return nil
	})
}

// Add adds delta to key. A (key, ordinal) pair may be applied once per block.
func (t *Tx) Add(key AddKey, ordinal uint64, delta *big.Int) error {
	k := string(key)
	return t.write(k, func() error {
		id := deltaID{key: k, ordinal: ordinal}
		if _, dup := t.deltas[id]; dup {
			return fmt.Errorf("ordinal %d: %w", ordinal, fault.ErrDuplicateDelta)
		}
		e, _, err := t.prepare(k, PolicyAdd, ordinal, false)
		if err != nil {
			return err
		}
		t.deltas[id] = struct{}{}
		e.Int = new(big.Int).Add(codec.Copy(e.Int), codec.Copy(delta))
		if e.Block == t.block && e.Ordinal > ordinal {
			ordinal = e.Ordinal
		}
		t.stage(e, ordinal)
		return nil
	})
}

// SetOrSum replaces the value of key (Absolute) or adds to it (Delta).
func (t *Tx) SetOrSum(key SumKey, ordinal uint64, value *big.Int, kind model.ChangeKind) error {
	k := string(key)
	return t.write(k, func() error {
		e, _, err := t.prepare(k, PolicySetOrSum, ordinal, true)
		if err != nil {
			return err
		}
		switch kind {
		case model.ChangeAbsolute:
			e.Int = codec.Copy(value)
		case model.ChangeDelta:
			e.Int = new(big.Int).Add(codec.Copy(e.Int), codec.Copy(value))
		default:
			return fmt.Errorf("unknown change kind %s", kind)
		}
		t.last[k] = ordinal
		t.stage(e, ordinal)
		return nil
	})
}

// Entries returns the staged entries in key order.
func (t *Tx) Entries() []Entry {
	keys := make([]string, 0, len(t.dirty))
	for k := range t.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, t.view[k].Clone())
	}
	return out
}

// Commit writes the staged entries and the block height through the backend.
func (t *Tx) Commit() error {
	if t.closed {
		return fault.ErrTxClosed
	}
	t.closed = true
	if t.err != nil {
		return t.err
	}
	entries := t.Entries()
	if err := t.store.backend.Commit(t.ctx, t.block, entries); err != nil {
		return fmt.Errorf("commit block %d: %w", t.block, err)
	}
	t.store.logger.Debug("block committed",
		zap.Uint64("block", t.block),
		zap.Int("entries", len(entries)),
		zap.Int("writes", t.writes),
	)
	return nil
}

// Discard drops the staged entries. It is safe to call after Commit.
func (t *Tx) Discard() {
	t.closed = true
	t.view = nil
	t.dirty = nil
}

func (t *Tx) usable() error {
	if t.closed {
		return fault.ErrTxClosed
	}
	return t.err
}

func (t *Tx) write(key string, fn func() error) error {
	if err := t.usable(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		t.err = fmt.Errorf("key %s: %w", key, err)
		return t.err
	}
	return nil
}

// prepare loads key and checks policy and, when ordered, the ordinal against
// earlier writes to the same key in this block.
func (t *Tx) prepare(key string, policy Policy, ordinal uint64, ordered bool) (Entry, bool, error) {
	e, ok, err := t.load(key)
	if err != nil {
		return Entry{}, false, err
	}
	if ok && e.Policy != policy {
		return Entry{}, false, fmt.Errorf("created as %s, written as %s: %w", e.Policy, policy, fault.ErrPolicyMismatch)
	}
	if ordered {
		if prev, seen := t.last[key]; seen && ordinal <= prev {
			return Entry{}, false, fmt.Errorf("ordinal %d after %d: %w", ordinal, prev, fault.ErrOrdinalRegressed)
		}
	}
	if !ok {
		e = Entry{Key: key, Policy: policy}
	}
	return e, ok, nil
}

func (t *Tx) stage(e Entry, ordinal uint64) {
	e.Block = t.block
	e.Ordinal = ordinal
	t.view[e.Key] = e
	t.dirty[e.Key] = struct{}{}
	t.writes++
}

func (t *Tx) load(key string) (Entry, bool, error) {
	if e, ok := t.view[key]; ok {
		return e, true, nil
	}
	e, ok, err := t.store.backend.Get(t.ctx, key)
	if err != nil {
		return Entry{}, false, fmt.Errorf("get %s: %w", key, err)
	}
	if ok {
		t.view[key] = e.Clone()
	}
	return e, ok, nil
}
