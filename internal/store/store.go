// Package store folds per-block updates into long-lived keyed state.
//
// Every key is written under one of three merge policies:
//
//   - SetIfNotExists: the first write wins, later writes are ignored.
//   - Add: value += delta, starting from zero.
//   - SetOrSum: an Absolute write replaces the value, a Delta write adds to it.
//
// Writes for one block are staged in a Tx and reach the Backend only on
// Commit, so a block that fails part way leaves no trace. Blocks must be
// committed in strictly increasing height.
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"poolstate/internal/fault"
)

// Backend persists committed entries. Commit must apply the entries and the
// block height atomically. Iterate visits entries in ascending key order.
type Backend interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Iterate(ctx context.Context, prefix string, fn func(Entry) error) error
	LastBlock(ctx context.Context) (uint64, bool, error)
	Commit(ctx context.Context, block uint64, entries []Entry) error
	Close() error
}

// Store is the aggregation store. It is not safe for concurrent writers.
type Store struct {
	backend Backend
	logger  *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for commit diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New wraps backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin opens a staging transaction for block.
func (s *Store) Begin(ctx context.Context, block uint64) (*Tx, error) {
	last, ok, err := s.backend.LastBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("load last block: %w", err)
	}
	if ok && block <= last {
		return nil, fmt.Errorf("block %d, last committed %d: %w", block, last, fault.ErrStaleBlock)
	}
	return newTx(ctx, s, block), nil
}

// Get returns the committed entry for key.
func (s *Store) Get(ctx context.Context, key string) (Entry, bool, error) {
	return s.backend.Get(ctx, key)
}

// Iterate visits committed entries whose key starts with prefix.
func (s *Store) Iterate(ctx context.Context, prefix string, fn func(Entry) error) error {
	return s.backend.Iterate(ctx, prefix, fn)
}

// LastBlock returns the height of the last committed block.
func (s *Store) LastBlock(ctx context.Context) (uint64, bool, error) {
	return s.backend.LastBlock(ctx)
}

// Entries collects committed entries under prefix.
func (s *Store) Entries(ctx context.Context, prefix string) ([]Entry, error) {
	var out []Entry
	err := s.backend.Iterate(ctx, prefix, func(e Entry) error {
		out = append(out, e.Clone())
		return nil
	})
	return out, err
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
