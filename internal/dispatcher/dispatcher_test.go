package dispatcher

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"shoplist/internal/crdt"
	"shoplist/internal/membership"
	"shoplist/internal/store"
	"shoplist/internal/wire"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func startServer(t *testing.T, ctx context.Context, addr string, m *membership.Membership) (*Server, *store.Storage) {
	t.Helper()
	s, err := store.New(t.TempDir(), addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	srv := NewServer(addr, s, m, zerolog.Nop())
	r := wire.NewRouter(addr, 4, zerolog.Nop())
	r.Handle(wire.SentFullList, srv.HandleSentFullList)
	r.Handle(wire.RequestFullList, srv.HandleRequestFullList)
	r.Handle(wire.Replica, srv.HandleReplica)
	r.Handle(wire.HintedHandoff, srv.HandleHintedHandoff)
	go func() { _ = r.Serve(ctx) }()
	waitUp(t, addr)
	return srv, s
}

func waitUp(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("%s never came up", addr)
}

func TestProxySendThenRequestFullListRoundTrips(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverAddr := freeAddr(t)
	replicaAddr := freeAddr(t)
	m := membership.New(serverAddr, false, []string{replicaAddr}, nil)
	_, serverStore := startServer(t, ctx, serverAddr, m)
	_, replicaStore := startServer(t, ctx, replicaAddr, m)

	pubAddr := freeAddr(t)
	pub := wire.NewPublisher(pubAddr, zerolog.Nop())
	go func() { _ = pub.Serve(ctx) }()
	waitUp(t, pubAddr)

	proxy := NewProxy(m, pub, zerolog.Nop())

	list := crdt.New("list-1")
	list.AddItem("actor-1", "Bread", 2, 0)

	merged, ok := proxy.SendFullList(ctx, list)
	require.True(t, ok)
	require.Equal(t, int64(2), merged.GetVisibleItems()["Bread"].Needed)

	// The read path needs successfulReads copies, so wait for the async
	// replica push to reach the second server.
	require.Eventually(t, func() bool {
		_, okA, _ := serverStore.Get("list-1")
		_, okB, _ := replicaStore.Get("list-1")
		return okA && okB
	}, time.Second, 10*time.Millisecond)

	got, ok := proxy.RequestFullList(ctx, "list-1")
	require.True(t, ok)
	require.Equal(t, int64(2), got.GetVisibleItems()["Bread"].Needed)
}

func TestProxySendFullListNacksWhenNoServers(t *testing.T) {
	ctx := context.Background()
	m := membership.New("8000", false, nil, nil)
	m.RemoveServer("8000")

	pub := wire.NewPublisher(freeAddr(t), zerolog.Nop())
	proxy := NewProxy(m, pub, zerolog.Nop())

	list := crdt.New("list-1")
	_, ok := proxy.SendFullList(ctx, list)
	require.False(t, ok)
}

func TestServerPushesReplicaOnWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	primaryAddr := freeAddr(t)
	replicaAddr := freeAddr(t)

	m := membership.New(primaryAddr, false, []string{replicaAddr}, nil)
	// Replicas are placed after the ring owner of the list, so make
	// primaryAddr that owner.
	if owner, _ := m.Ring().Owner(membership.HashKey("list-1")); owner != primaryAddr {
		primaryAddr, replicaAddr = replicaAddr, primaryAddr
	}
	_, primaryStore := startServer(t, ctx, primaryAddr, m)
	_, replicaStore := startServer(t, ctx, replicaAddr, m)

	srv := NewServer(primaryAddr, primaryStore, m, zerolog.Nop())

	list := crdt.New("list-1")
	list.AddItem("actor-1", "Bread", 1, 0)
	data, err := list.Serialize()
	require.NoError(t, err)

	reply := srv.HandleSentFullList(ctx, wire.NewMessage(wire.SentFullList, listPayload{ShoppingList: data}))
	require.Equal(t, wire.SentFullListAck, reply.Type)

	require.Eventually(t, func() bool {
		all, err := replicaStore.GetAllReplicas()
		return err == nil && len(all) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestHintedHandoffMovesOwnershipAfterRingChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodeA := freeAddr(t)
	nodeB := freeAddr(t)

	mA := membership.New(nodeA, false, nil, nil)
	srvA, storageA := startServer(t, ctx, nodeA, mA)

	list := crdt.New("list-1")
	list.AddItem("actor-1", "Bread", 1, 0)
	_, err := storageA.Save(list, store.SaveOptions{IsReplica: boolPtr(false)})
	require.NoError(t, err)

	mB := membership.New(nodeB, false, nil, nil)
	_, storageB := startServer(t, ctx, nodeB, mB)

	mA.AddServer(nodeB)

	srvA.handoffTick(ctx)

	owner, _ := mA.Ring().Owner(membership.HashKey("list-1"))
	if owner == nodeA {
		t.Skip("hash placement kept ownership on node A for this uuid; handoff tick correctly no-ops")
	}

	require.Eventually(t, func() bool {
		_, ok, _ := storageB.Get("list-1")
		return ok
	}, time.Second, 10*time.Millisecond)
}
