package membership

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReconcileIgnoresStaleVersion(t *testing.T) {
	m := New("8000", false, []string{"8001"}, nil)
	m.Reconcile(View{Servers: []string{"8001", "8002"}, Version: 0}, false)
	require.ElementsMatch(t, []string{"8001"}, m.KnownServers())
}

func TestReconcileEqualVersionUnionsAndBumps(t *testing.T) {
	m := New("8000", false, []string{"8001"}, nil)
	before := m.View().Version
	m.Reconcile(View{Servers: []string{"8001", "8002"}, Version: before}, false)

	require.ElementsMatch(t, []string{"8001", "8002"}, m.KnownServers())
	require.Equal(t, before+1, m.View().Version)
}

func TestReconcileEqualVersionEqualSetsIsNoop(t *testing.T) {
	m := New("8000", false, []string{"8001"}, nil)
	before := m.View()
	m.Reconcile(View{Servers: before.Servers, Proxies: before.Proxies, Version: before.Version}, false)
	require.Equal(t, before.Version, m.View().Version)
}

func TestReconcileHigherVersionAdoptsAndKeepsSelf(t *testing.T) {
	m := New("8000", false, []string{"8001", "8002"}, nil)
	m.Reconcile(View{Servers: []string{"8001"}, Version: 99}, false)

	servers := m.View().Servers
	require.Contains(t, servers, "8000")
	require.Contains(t, servers, "8001")
	require.NotContains(t, servers, "8002")
	require.Equal(t, uint64(99), m.View().Version)
}

func TestIntroductionIsUnconditionalUnion(t *testing.T) {
	m := New("8000", false, nil, nil)
	m.Reconcile(View{Servers: []string{"8001"}, Version: 0}, true)
	require.Contains(t, m.KnownServers(), "8001")
}

func TestRingOwnerWrapsAround(t *testing.T) {
	r := NewRing([]string{"8000", "8001", "8002"})
	key := HashKey("some-list-uuid")
	owner, ok := r.Owner(key)
	require.True(t, ok)
	require.Contains(t, []string{"8000", "8001", "8002"}, owner)
}

func TestRingSuccessorsAreDistinct(t *testing.T) {
	r := NewRing([]string{"8000", "8001", "8002"})
	succ := r.Successors(HashKey("list-1"), 3)
	require.Len(t, succ, 3)
	require.ElementsMatch(t, []string{"8000", "8001", "8002"}, succ)
}

func TestNthSuccessorWrapsToStart(t *testing.T) {
	r := NewRing([]string{"8000", "8001"})
	ports := r.Ports()
	next, ok := r.NthSuccessor(ports[1], 1)
	require.True(t, ok)
	require.Equal(t, ports[0], next)
}
