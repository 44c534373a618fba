package store

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"poolstate/internal/fault"
	"poolstate/internal/model"
)

type backendFactory struct {
	name   string
	open   func(t *testing.T, dir string) Backend
	reopen bool
}

func factories() []backendFactory {
	return []backendFactory{
		{name: "memory", open: func(t *testing.T, _ string) Backend { return NewMemoryBackend() }},
		{name: "file", reopen: true, open: func(t *testing.T, dir string) Backend {
			b, err := OpenFileBackend(filepath.Join(dir, "state", "store.json"))
			require.NoError(t, err)
			return b
		}},
		{name: "leveldb", reopen: true, open: func(t *testing.T, dir string) Backend {
			b, err := OpenLevelDB(filepath.Join(dir, "ldb"))
			require.NoError(t, err)
			return b
		}},
		{name: "cached-memory", open: func(t *testing.T, _ string) Backend {
			return NewCachedBackend(NewMemoryBackend(), time.Minute)
		}},
	}
}

func fillBlocks(t *testing.T, s *Store) {
	t.Helper()
	tx := begin(t, s, 100)
	require.NoError(t, tx.SetIfNotExists(PoolKey(testPool), 1, []byte(`{"protocol":"uniswap_v3"}`)))
	require.NoError(t, tx.Add(BalanceKey(testPool, testToken), 2, big.NewInt(1000)))
	require.NoError(t, tx.Add(TickKey(testPool, -60), 3, big.NewInt(-77)))
	require.NoError(t, tx.SetOrSum(LiquidityKey(testPool), 4, big.NewInt(500), model.ChangeAbsolute))
	require.NoError(t, tx.Commit())

	tx = begin(t, s, 101)
	huge, _ := new(big.Int).SetString("-115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	require.NoError(t, tx.Add(BalanceKey(testPool, testToken), 1, big.NewInt(-1)))
	require.NoError(t, tx.Add(TickKey(testPool, 60), 2, huge))
	require.NoError(t, tx.SetOrSum(LiquidityKey(testPool), 3, big.NewInt(-20), model.ChangeDelta))
	require.NoError(t, tx.Commit())
}

func TestBackendParity(t *testing.T) {
	var reference []Entry
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			dir := t.TempDir()
			backend := f.open(t, dir)
			s := New(backend)
			fillBlocks(t, s)

			entries, err := s.Entries(context.Background(), "")
			require.NoError(t, err)
			require.Len(t, entries, 5)

			if f.reopen {
				require.NoError(t, s.Close())
				s = New(f.open(t, dir))
				reopened, err := s.Entries(context.Background(), "")
				require.NoError(t, err)
				require.Len(t, reopened, len(entries))
				for i := range entries {
					require.True(t, entries[i].Equal(reopened[i]), "%s: %+v != %+v", entries[i].Key, entries[i], reopened[i])
				}
				last, ok, err := s.LastBlock(context.Background())
				require.NoError(t, err)
				require.True(t, ok)
				require.Equal(t, uint64(101), last)
			}
			defer s.Close()

			if reference == nil {
				reference = entries
				return
			}
			for i := range reference {
				require.True(t, reference[i].Equal(entries[i]), "%s differs", reference[i].Key)
			}
		})
	}
	require.Equal(t, "480", findEntry(t, reference, string(LiquidityKey(testPool))).Int.String())
	require.Equal(t, "999", findEntry(t, reference, string(BalanceKey(testPool, testToken))).Int.String())
}

func TestBackendIterateByPrefix(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			s := New(f.open(t, t.TempDir()))
			defer s.Close()
			fillBlocks(t, s)

			ticks, err := s.Entries(context.Background(), TickPrefix(testPool))
			require.NoError(t, err)
			require.Len(t, ticks, 2)
			require.Equal(t, string(TickKey(testPool, -60)), ticks[0].Key)

			stop := errors.New("stop")
			calls := 0
			err = s.Iterate(context.Background(), "", func(Entry) error {
				calls++
				return stop
			})
			require.ErrorIs(t, err, stop)
			require.Equal(t, 1, calls)
		})
	}
}

func TestBackendRejectsStaleCommit(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			b := f.open(t, t.TempDir())
			defer b.Close()
			require.NoError(t, b.Commit(context.Background(), 7, nil))
			require.ErrorIs(t, b.Commit(context.Background(), 7, nil), fault.ErrStaleBlock)
		})
	}
}

func TestFileSnapshotIsDeterministic(t *testing.T) {
	var snapshots [][]byte
	for i := 0; i < 2; i++ {
		path := filepath.Join(t.TempDir(), "store.json")
		b, err := OpenFileBackend(path)
		require.NoError(t, err)
		fillBlocks(t, New(b))
		require.NoError(t, b.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		snapshots = append(snapshots, data)
	}
	require.Equal(t, string(snapshots[0]), string(snapshots[1]))
	require.NotContains(t, string(snapshots[0]), "updated_at")
}

func TestCachedBackendCachesMisses(t *testing.T) {
	inner := NewMemoryBackend()
	c := NewCachedBackend(inner, 0)

	_, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, c.Len())

	require.NoError(t, c.Commit(context.Background(), 1, []Entry{{Key: "missing", Policy: PolicyAdd, Int: big.NewInt(3)}}))
	e, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(3), e.Int.Int64())

	// returned values are copies
	e.Int.SetInt64(99)
	e, _, _ = c.Get(context.Background(), "missing")
	require.Equal(t, int64(3), e.Int.Int64())
	require.NoError(t, c.Close())
}

func TestLevelDBEntryEncoding(t *testing.T) {
	e := Entry{Key: "k", Policy: PolicySetOrSum, Block: 12, Ordinal: 3, Int: big.NewInt(-129)}
	got, err := decodeEntry("k", encodeEntry(e))
	require.NoError(t, err)
	require.True(t, e.Equal(got))

	_, err = decodeEntry("k", []byte{1, 2})
	require.Error(t, err)
	_, err = decodeEntry("k", make([]byte, entryHeaderSize))
	require.Error(t, err)
}

func findEntry(t *testing.T, entries []Entry, key string) Entry {
	t.Helper()
	for _, e := range entries {
		if e.Key == key {
			return e
		}
	}
	t.Fatalf("entry %s not found", key)
	return Entry{}
}
