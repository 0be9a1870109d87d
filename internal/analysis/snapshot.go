package analysis

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/rustypig91/smart-chessboard-logic/internal/engine"
)

// SnapshotRecord is one completed cache entry in portable form.
type SnapshotRecord struct {
	Fingerprint string
	Depth       int
	Result      engine.Result
}

// Snapshot extracts all completed, successful entries. Pending entries
// and rejected ones are skipped.
func (c *Cache) Snapshot() []SnapshotRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	recs := make([]SnapshotRecord, 0, len(c.entries))
	for key, e := range c.entries {
		if !completed(e) || e.err != nil {
			continue
		}
		recs = append(recs, SnapshotRecord{
			Fingerprint: key.Fingerprint,
			Depth:       key.Depth,
			Result:      e.res,
		})
	}
	return recs
}

// Restore loads snapshot records as completed entries and reports how
// many were added. Keys that already have an entry, pending or not, are
// left alone.
func (c *Cache) Restore(recs []SnapshotRecord) int {
	added := 0
	for _, r := range recs {
		e, created := c.GetOrCreate(r.Fingerprint, r.Depth)
		if !created {
			continue
		}
		e.res = r.Result
		close(e.done)
		added++
	}
	return added
}

// SaveSnapshot writes the cache's completed entries to path as a
// zstd-compressed gob stream.
func SaveSnapshot(path string, c *Cache) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(c.Snapshot()); err != nil {
		zw.Close()
		f.Close()
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("save snapshot: %w", err)
	}
	return f.Close()
}

// LoadSnapshot reads a snapshot written by SaveSnapshot. A missing file
// is not an error; it returns an empty slice.
func LoadSnapshot(path string) ([]SnapshotRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer zr.Close()

	var recs []SnapshotRecord
	if err := gob.NewDecoder(zr).Decode(&recs); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return recs, nil
}
