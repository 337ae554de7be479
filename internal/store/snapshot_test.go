package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"shoplist/internal/crdt"
)

func TestBackupWritesReadableGzip(t *testing.T) {
	s := newTestStorage(t)

	list := crdt.New("list-1")
	list.AddItem("actor-1", "Bread", 2, 0)
	_, err := s.Save(list, SaveOptions{})
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "snapshots")
	path, err := s.Backup(dir)
	require.NoError(t, err)
	require.FileExists(t, path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	n, err := gz.Read(make([]byte, 16))
	require.NoError(t, err)
	require.Greater(t, n, 0)
}
