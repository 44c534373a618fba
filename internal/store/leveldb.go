package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"poolstate/internal/codec"
	"poolstate/internal/fault"
)

var (
	entryPrefix  = []byte("e/")
	lastBlockKey = []byte("m/last_block")
)

const entryHeaderSize = 1 + 8 + 8

// LevelDBBackend stores entries in a goleveldb database. Each commit is a
// single synced batch holding the entries and the new block height.
type LevelDBBackend struct {
	db *leveldb.DB
}

// OpenLevelDB opens or creates the database at path.
func OpenLevelDB(path string) (*LevelDBBackend, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDBBackend{db: db}, nil
}

func (l *LevelDBBackend) Get(_ context.Context, key string) (Entry, bool, error) {
	data, err := l.db.Get(dbKey(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	e, err := decodeEntry(key, data)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (l *LevelDBBackend) Iterate(ctx context.Context, prefix string, fn func(Entry) error) error {
	iter := l.db.NewIterator(util.BytesPrefix(dbKey(prefix)), nil)
	defer iter.Release()
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := string(iter.Key()[len(entryPrefix):])
		e, err := decodeEntry(key, iter.Value())
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (l *LevelDBBackend) LastBlock(_ context.Context) (uint64, bool, error) {
	data, err := l.db.Get(lastBlockKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(data) != 8 {
		return 0, false, fmt.Errorf("corrupt last block record: %d bytes", len(data))
	}
	return binary.BigEndian.Uint64(data), true, nil
}

func (l *LevelDBBackend) Commit(ctx context.Context, block uint64, entries []Entry) error {
	last, ok, err := l.LastBlock(ctx)
	if err != nil {
		return err
	}
	if ok && block <= last {
		return fmt.Errorf("block %d, last committed %d: %w", block, last, fault.ErrStaleBlock)
	}

	batch := new(leveldb.Batch)
	for _, e := range entries {
		batch.Put(dbKey(e.Key), encodeEntry(e))
	}
	var height [8]byte
	binary.BigEndian.PutUint64(height[:], block)
	batch.Put(lastBlockKey, height[:])

	return l.db.Write(batch, &opt.WriteOptions{Sync: true})
}

func (l *LevelDBBackend) Close() error {
	return l.db.Close()
}

func dbKey(key string) []byte {
	out := make([]byte, 0, len(entryPrefix)+len(key))
	out = append(out, entryPrefix...)
	return append(out, key...)
}

// encodeEntry lays out policy, block, ordinal and the value. Integer values
// are two's complement, byte values are stored as is.
func encodeEntry(e Entry) []byte {
	var value []byte
	if e.Policy == PolicySetIfNotExists {
		value = e.Bytes
	} else {
		value = codec.ToTwosComplement(e.Int)
	}
	out := make([]byte, entryHeaderSize, entryHeaderSize+len(value))
	out[0] = byte(e.Policy)
	binary.BigEndian.PutUint64(out[1:9], e.Block)
	binary.BigEndian.PutUint64(out[9:17], e.Ordinal)
	return append(out, value...)
}

func decodeEntry(key string, data []byte) (Entry, error) {
	if len(data) < entryHeaderSize {
		return Entry{}, fmt.Errorf("entry %s: short record (%d bytes)", key, len(data))
	}
	e := Entry{
		Key:     key,
		Policy:  Policy(data[0]),
		Block:   binary.BigEndian.Uint64(data[1:9]),
		Ordinal: binary.BigEndian.Uint64(data[9:17]),
	}
	value := data[entryHeaderSize:]
	switch e.Policy {
	case PolicySetIfNotExists:
		e.Bytes = append([]byte{}, value...)
	case PolicyAdd, PolicySetOrSum:
		e.Int = codec.FromTwosComplement(value)
	default:
		return Entry{}, fmt.Errorf("entry %s: unknown policy %d", key, data[0])
	}
	return e, nil
}
