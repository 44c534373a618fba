package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poolstate/internal/codec"
	"poolstate/internal/fault"
	"poolstate/internal/model"
	"poolstate/internal/store"
)

// StateName is the indexer_state row that tracks the last committed block.
const StateName = "poolstate"

const schema = `
CREATE TABLE IF NOT EXISTS state_entries (
	key         text PRIMARY KEY,
	policy      smallint NOT NULL,
	block       bigint NOT NULL,
	ordinal     bigint NOT NULL,
	int_value   numeric,
	bytes_value bytea
);
CREATE TABLE IF NOT EXISTS pools (
	pool_address  text PRIMARY KEY,
	protocol      text NOT NULL,
	token0        text NOT NULL,
	token1        text NOT NULL,
	fee           integer NOT NULL,
	tick_spacing  integer NOT NULL,
	created_block bigint NOT NULL,
	created_tx    text NOT NULL
);
CREATE TABLE IF NOT EXISTS indexer_state (
	name       text PRIMARY KEY,
	last_block bigint NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);
`

// Store is a store.Backend on Postgres. Each block commits in one transaction.
type Store struct {
	pool *pgxpool.Pool
	name string
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{pool: pool, name: StateName}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (store.Entry, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT key, policy, block, ordinal, int_value::text, bytes_value
		FROM state_entries WHERE key = $1
	`, key)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Entry{}, false, nil
		}
		return store.Entry{}, false, err
	}
	return e, true, nil
}

func (s *Store) Iterate(ctx context.Context, prefix string, fn func(store.Entry) error) error {
	rows, err := s.pool.Query(ctx, `
		SELECT key, policy, block, ordinal, int_value::text, bytes_value
		FROM state_entries
		WHERE starts_with(key, $1)
		ORDER BY key COLLATE "C"
	`, prefix)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Store) LastBlock(ctx context.Context) (uint64, bool, error) {
	return s.LoadState(ctx, s.name)
}

// Commit upserts entries, mirrors registrations into pools and advances
// indexer_state in one transaction.
func (s *Store) Commit(ctx context.Context, block uint64, entries []store.Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var last int64
	err = tx.QueryRow(ctx, `SELECT last_block FROM indexer_state WHERE name=$1 FOR UPDATE`, s.name).Scan(&last)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return err
	case block <= uint64(last):
		return fmt.Errorf("block %d, last committed %d: %w", block, last, fault.ErrStaleBlock)
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		var intValue *string
		if e.Int != nil {
			v := e.Int.String()
			intValue = &v
		}
		batch.Queue(`
			INSERT INTO state_entries (key, policy, block, ordinal, int_value, bytes_value)
			VALUES ($1, $2, $3, $4, $5::text::numeric, $6)
			ON CONFLICT (key) DO UPDATE SET
				block = EXCLUDED.block,
				ordinal = EXCLUDED.ordinal,
				int_value = EXCLUDED.int_value,
				bytes_value = EXCLUDED.bytes_value
		`, e.Key, int16(e.Policy), int64(e.Block), int64(e.Ordinal), intValue, e.Bytes)
	}

	pools, err := registrations(entries)
	if err != nil {
		return err
	}
	queuePools(batch, pools)

	batch.Queue(`
		INSERT INTO indexer_state (name, last_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_block = EXCLUDED.last_block, updated_at = now()
	`, s.name, int64(block))

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// LoadState returns last_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var last int64
	row := s.pool.QueryRow(ctx, `SELECT last_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(last), true, nil
}

func queuePools(batch *pgx.Batch, pools []model.Pool) {
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				pool_address, protocol, token0, token1, fee, tick_spacing, created_block, created_tx
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (pool_address) DO NOTHING
		`,
			pool.Address,
			pool.Protocol,
			pool.Token0,
			pool.Token1,
			int32(pool.Fee),
			pool.TickSpacing,
			int64(pool.CreatedBlock),
			pool.CreatedTx,
		)
	}
}

// registrations decodes the pool records among entries.
func registrations(entries []store.Entry) ([]model.Pool, error) {
	var pools []model.Pool
	for _, e := range entries {
		if e.Policy != store.PolicySetIfNotExists || !strings.HasPrefix(e.Key, "Pool:") {
			continue
		}
		var p model.Pool
		if err := json.Unmarshal(e.Bytes, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Key, err)
		}
		pools = append(pools, p)
	}
	return pools, nil
}

func scanEntry(row pgx.Row) (store.Entry, error) {
	var (
		e        store.Entry
		policy   int16
		block    int64
		ordinal  int64
		intValue *string
		bytesVal []byte
	)
	if err := row.Scan(&e.Key, &policy, &block, &ordinal, &intValue, &bytesVal); err != nil {
		return store.Entry{}, err
	}
	e.Policy = store.Policy(policy)
	e.Block = uint64(block)
	e.Ordinal = uint64(ordinal)
	e.Bytes = bytesVal
	if intValue != nil {
		v, err := codec.ParseDecimal(*intValue)
		if err != nil {
			return store.Entry{}, fmt.Errorf("entry %s: %w", e.Key, err)
		}
		e.Int = v
	}
	return e, nil
}
