package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"shoplist/internal/crdt"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(t.TempDir(), "node-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveThenGetRoundTrips(t *testing.T) {
	s := newTestStorage(t)

	list := crdt.New("list-1")
	list.AddItem("actor-1", "Bread", 2, 0)

	merged, err := s.Save(list, SaveOptions{Name: strPtr("Groceries")})
	require.NoError(t, err)
	require.Equal(t, map[string]crdt.VisibleItem{"Bread": {Needed: 2, Acquired: 0}}, merged.GetVisibleItems())

	rec, ok, err := s.Get("list-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Groceries", rec.Name)
	require.Equal(t, map[string]crdt.VisibleItem{"Bread": {Needed: 2, Acquired: 0}}, rec.List.GetVisibleItems())
}

func TestSaveMergesWithExisting(t *testing.T) {
	s := newTestStorage(t)

	first := crdt.New("list-1")
	first.AddItem("actor-1", "Bread", 1, 0)
	_, err := s.Save(first, SaveOptions{})
	require.NoError(t, err)

	second := crdt.New("list-1")
	second.AddItem("actor-2", "Milk", 1, 0)
	merged, err := s.Save(second, SaveOptions{})
	require.NoError(t, err)

	visible := merged.GetVisibleItems()
	require.Contains(t, visible, "Bread")
	require.Contains(t, visible, "Milk")
}

func TestSaveIsIdempotent(t *testing.T) {
	s := newTestStorage(t)

	list := crdt.New("list-1")
	list.AddItem("actor-1", "Bread", 3, 0)

	_, err := s.Save(list, SaveOptions{})
	require.NoError(t, err)
	merged, err := s.Save(list, SaveOptions{})
	require.NoError(t, err)

	require.Equal(t, int64(3), merged.GetVisibleItems()["Bread"].Needed)
}

func TestSaveOptionsDefaultsPreserveExistingMetadata(t *testing.T) {
	s := newTestStorage(t)

	list := crdt.New("list-1")
	list.AddItem("actor-1", "Bread", 1, 0)
	_, err := s.Save(list, SaveOptions{IsReplica: boolPtr(true), ReplicaID: intPtr(2)})
	require.NoError(t, err)

	_, err = s.Save(list, SaveOptions{})
	require.NoError(t, err)

	rec, ok, err := s.Get("list-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, rec.IsReplica)
	require.Equal(t, 2, rec.ReplicaID)
}

func TestGetMissingReturnsNotOK(t *testing.T) {
	s := newTestStorage(t)
	_, ok, err := s.Get("does-not-exist")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetAllFilters(t *testing.T) {
	s := newTestStorage(t)

	owned := crdt.New("owned")
	owned.AddItem("actor-1", "Bread", 1, 0)
	_, err := s.Save(owned, SaveOptions{})
	require.NoError(t, err)

	replica := crdt.New("replica")
	replica.AddItem("actor-1", "Milk", 1, 0)
	_, err = s.Save(replica, SaveOptions{IsReplica: boolPtr(true), NotSent: boolPtr(true)})
	require.NoError(t, err)

	all, err := s.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 2)

	nonReplica, err := s.GetAllNonReplica()
	require.NoError(t, err)
	require.Len(t, nonReplica, 1)
	require.Equal(t, "owned", nonReplica[0].UUID)

	replicas, err := s.GetAllReplicas()
	require.NoError(t, err)
	require.Len(t, replicas, 1)
	require.Equal(t, "replica", replicas[0].UUID)

	notSent, err := s.GetAllNotSent()
	require.NoError(t, err)
	require.Len(t, notSent, 1)
	require.Equal(t, "replica", notSent[0].UUID)
}

func TestGetAllNotSentIgnoresIsReplica(t *testing.T) {
	s := newTestStorage(t)

	clientQueued := crdt.New("client-queued")
	clientQueued.AddItem("actor-1", "Bread", 1, 0)
	_, err := s.Save(clientQueued, SaveOptions{NotSent: boolPtr(true)})
	require.NoError(t, err)

	sent := crdt.New("sent")
	sent.AddItem("actor-1", "Milk", 1, 0)
	_, err = s.Save(sent, SaveOptions{NotSent: boolPtr(false)})
	require.NoError(t, err)

	notSent, err := s.GetAllNotSent()
	require.NoError(t, err)
	require.Len(t, notSent, 1)
	require.Equal(t, "client-queued", notSent[0].UUID)
	require.False(t, notSent[0].IsReplica)
}

func TestDeleteRemovesRecord(t *testing.T) {
	s := newTestStorage(t)

	list := crdt.New("list-1")
	list.AddItem("actor-1", "Bread", 1, 0)
	_, err := s.Save(list, SaveOptions{})
	require.NoError(t, err)

	require.NoError(t, s.Delete("list-1"))

	_, ok, err := s.Get("list-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestViewRowsIsStableAndVisibleOnly(t *testing.T) {
	s := newTestStorage(t)

	list := crdt.New("list-1")
	list.AddItem("actor-1", "Bread", 2, 1)
	list.AddItem("actor-1", "Eggs", 1, 0)
	list.RemoveItem("Eggs")
	merged, err := s.Save(list, SaveOptions{})
	require.NoError(t, err)

	rec := &Record{UUID: "list-1", List: merged}
	rows := rec.ViewRows()
	require.Len(t, rows, 1)
	require.Equal(t, "Bread", rows[0].ItemName)
	require.Equal(t, int64(2), rows[0].QuantityNeed)
	require.Equal(t, int64(1), rows[0].QuantityAcqu)
}
