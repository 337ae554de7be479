package crdt

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomOps(r *rand.Rand, l *ShoppingList, actor string, n int) {
	names := []string{"Bread", "Milk", "Eggs", "Butter"}
	for i := 0; i < n; i++ {
		name := names[r.Intn(len(names))]
		switch r.Intn(4) {
		case 0:
			l.AddItem(actor, name, int64(r.Intn(5)), int64(r.Intn(3)))
		case 1:
			l.RemoveItem(name)
		case 2:
			l.UpdateNeeded(actor, name, int64(r.Intn(7)-3))
		case 3:
			l.UpdateAcquired(actor, name, int64(r.Intn(7)-3))
		}
	}
}

func equalVisible(t *testing.T, a, b *ShoppingList) {
	t.Helper()
	require.Equal(t, a.GetVisibleItems(), b.GetVisibleItems())
}

func TestMergeIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	a := New("L")
	randomOps(r, a, "actor-1", 30)

	merged := a.Clone()
	merged.Merge(a)

	equalVisible(t, a, merged)
}

func TestMergeCommutative(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	a := New("L")
	randomOps(r, a, "actor-1", 15)
	b := New("L")
	randomOps(r, b, "actor-2", 15)

	ab := a.Clone()
	ab.Merge(b)

	ba := b.Clone()
	ba.Merge(a)

	equalVisible(t, ab, ba)
}

func TestMergeAssociative(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	a := New("L")
	randomOps(r, a, "actor-1", 10)
	b := New("L")
	randomOps(r, b, "actor-2", 10)
	c := New("L")
	randomOps(r, c, "actor-3", 10)

	abThenC := a.Clone()
	abThenC.Merge(b)
	abThenC.Merge(c)

	bcFirst := b.Clone()
	bcFirst.Merge(c)
	aThenBC := a.Clone()
	aThenBC.Merge(bcFirst)

	equalVisible(t, abThenC, aThenBC)
}

func TestReAddAfterRemoveResumesQuantity(t *testing.T) {
	l := New("L")
	l.AddItem("actor-1", "Bread", 5, 0)
	l.RemoveItem("Bread")
	l.AddItem("actor-1", "Bread", 2, 0)

	visible := l.GetVisibleItems()
	require.Contains(t, visible, "Bread")
	require.GreaterOrEqual(t, visible["Bread"].Needed, int64(2))
	require.Equal(t, int64(7), visible["Bread"].Needed)
}

func TestDisplayedNeverNegative(t *testing.T) {
	l := New("L")
	l.AddItem("actor-1", "Bread", 1, 0)
	l.UpdateNeeded("actor-1", "Bread", -10)

	visible := l.GetVisibleItems()
	require.Equal(t, int64(0), visible["Bread"].Needed)

	item := l.Items["Bread"]
	require.Less(t, item.Needed.Value(), int64(0))
}

func TestConcurrentAddsConverge(t *testing.T) {
	base := New("L")
	base.AddItem("alice", "Bread", 1, 0)

	alice := base.Clone()
	alice.AddItem("alice", "Milk", 1, 0)

	bob := base.Clone()
	bob.AddItem("bob", "Eggs", 1, 0)

	merged := alice.Clone()
	merged.Merge(bob)

	visible := merged.GetVisibleItems()
	require.Len(t, visible, 3)
	require.Contains(t, visible, "Bread")
	require.Contains(t, visible, "Milk")
	require.Contains(t, visible, "Eggs")
}

func TestConcurrentAddWinsOverRemove(t *testing.T) {
	base := New("L")
	base.AddItem("alice", "Bread", 1, 0)

	removed := base.Clone()
	removed.RemoveItem("Bread")

	readded := base.Clone()
	readded.RemoveItem("Bread")
	readded.AddItem("bob", "Bread", 1, 0)

	merged := removed.Clone()
	merged.Merge(readded)

	require.Contains(t, merged.GetVisibleItems(), "Bread")
}

func TestSerializeRoundTrip(t *testing.T) {
	l := New("L")
	l.AddItem("actor-1", "Bread", 3, 1)
	l.AddItem("actor-1", "Milk", 2, 0)
	l.RemoveItem("Milk")

	data, err := l.Serialize()
	require.NoError(t, err)

	restored, err := Deserialize(data)
	require.NoError(t, err)

	equalVisible(t, l, restored)
	require.Equal(t, l.Clock, restored.Clock)
}

func TestDeserializeInvalidDoesNotPanic(t *testing.T) {
	_, err := Deserialize([]byte("not json"))
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = Deserialize([]byte(`{"name":"no uuid field"}`))
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestORSetDeduplicatesOnRehydrate(t *testing.T) {
	l := New("L")
	l.AddItem("actor-1", "Bread", 1, 0)
	data, err := l.Serialize()
	require.NoError(t, err)

	restored, err := Deserialize(data)
	require.NoError(t, err)

	item := restored.Items["Bread"]
	require.Len(t, item.Existence.Elements, 1)
}
