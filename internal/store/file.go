package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// FileBackend is a MemoryBackend persisted as a JSON snapshot after every
// commit. The snapshot is written to a temp file and renamed into place. Its
// bytes depend only on the committed state.
type FileBackend struct {
	*MemoryBackend
	Path string
}

type snapshotRecord struct {
	LastBlock *uint64 `json:"last_block,omitempty"`
	Entries   []Entry `json:"entries"`
}

// OpenFileBackend loads the snapshot at path if it exists.
func OpenFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot path is required")
	}
	f := &FileBackend{MemoryBackend: NewMemoryBackend(), Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var rec snapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	var last uint64
	if rec.LastBlock != nil {
		last = *rec.LastBlock
	}
	f.restore(rec.Entries, last, rec.LastBlock != nil)
	return f, nil
}

// Commit writes the snapshot first so a failed write leaves memory unchanged.
func (f *FileBackend) Commit(ctx context.Context, block uint64, entries []Entry) error {
	current, last, hasLast := f.snapshot()
	if hasLast && block <= last {
		// let the memory backend produce the error
		return f.MemoryBackend.Commit(ctx, block, entries)
	}

	merged := make(map[string]Entry, len(current)+len(entries))
	for _, e := range current {
		merged[e.Key] = e
	}
	for _, e := range entries {
		merged[e.Key] = e
	}
	all := make([]Entry, 0, len(merged))
	for _, e := range merged {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Key < all[j].Key })

	if err := f.write(snapshotRecord{LastBlock: &block, Entries: all}); err != nil {
		return err
	}
	return f.MemoryBackend.Commit(ctx, block, entries)
}

func (f *FileBackend) write(rec snapshotRecord) error {
	dir := filepath.Dir(f.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
