package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"poolstate/internal/model"
)

const maxLineSize = 64 * 1024 * 1024

// JsonlStorage appends records to a JSONL file.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// Path returns the output file path.
func (s *JsonlStorage) Path() string { return s.path }

// PutBundles appends block bundles as JSON lines.
func (s *JsonlStorage) PutBundles(bundles []model.BlockBundle) error {
	return s.append(len(bundles), func(i int) interface{} { return bundles[i] })
}

// PutChanges appends block change sets as JSON lines.
func (s *JsonlStorage) PutChanges(changes []model.BlockChanges) error {
	return s.append(len(changes), func(i int) interface{} { return changes[i] })
}

// PutDecodeErrors appends decode failures as JSON lines.
func (s *JsonlStorage) PutDecodeErrors(errs []model.DecodeError) error {
	return s.append(len(errs), func(i int) interface{} { return errs[i] })
}

func (s *JsonlStorage) append(n int, item func(int) interface{}) error {
	if n == 0 {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for i := 0; i < n; i++ {
		line, err := json.Marshal(item(i))
		if err != nil {
			return fmt.Errorf("marshal record %d: %w", i, err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// ReadBundles decodes one BlockBundle per non-empty line and calls fn for
// each. It stops at the first error.
func ReadBundles(r io.Reader, fn func(line int, bundle model.BlockBundle) error) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var bundle model.BlockBundle
		if err := json.Unmarshal(line, &bundle); err != nil {
			return fmt.Errorf("line %d: decode bundle: %w", lineNo, err)
		}
		if err := fn(lineNo, bundle); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	return nil
}
