package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.etcd.io/bbolt"
)

// SnapshotInterval is how often RunSnapshotLoop takes a hot backup.
const SnapshotInterval = 5 * time.Minute

// Backup writes a gzip-compressed copy of the live database to
// dir/shoplist-<nodeID>.db.gz, using bbolt's own consistent-snapshot
// transaction so it never blocks concurrent Save/Get calls for longer than
// the time it takes to open a read-only transaction.
func (s *Storage) Backup(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("shoplist-%s.db.gz", s.nodeID))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create snapshot file: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	err = s.db.View(func(tx *bbolt.Tx) error {
		_, err := tx.WriteTo(gz)
		return err
	})
	if err != nil {
		gz.Close()
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("close snapshot: %w", err)
	}
	return path, nil
}

// RunSnapshotLoop blocks, taking a Backup into dir every SnapshotInterval
// until ctx is cancelled. Failures are logged by the caller via onErr rather
// than stopping the loop — a missed snapshot is not fatal.
func (s *Storage) RunSnapshotLoop(ctx context.Context, dir string, onBackup func(path string), onErr func(error)) {
	ticker := time.NewTicker(SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			path, err := s.Backup(dir)
			if err != nil {
				onErr(err)
				continue
			}
			onBackup(path)
		}
	}
}
