package store

import (
	"bufio"
	"fmt"
	"io"
)

// WriteDump prints one tab-separated line per entry:
// key, policy, block, ordinal, value.
func WriteDump(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%d\t%d\t%s\n", e.Key, e.Policy, e.Block, e.Ordinal, e.Value()); err != nil {
			return err
		}
	}
	return bw.Flush()
}
