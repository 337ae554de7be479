package wire

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	msg := NewMessage(RequestFullList, struct {
		ListID string `json:"list_id"`
	}{ListID: "abc"})

	go func() {
		_ = WriteFrame(client, msg)
	}()

	got, err := ReadFrame(server)
	require.NoError(t, err)
	require.Equal(t, RequestFullList, got.Type)

	var payload struct {
		ListID string `json:"list_id"`
	}
	require.NoError(t, got.Decode(&payload))
	require.Equal(t, "abc", payload.ListID)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := DefaultBackoff()
	require.Equal(t, 1000*time.Millisecond, b.Delay(0))
	require.Equal(t, 2000*time.Millisecond, b.Delay(1))
	require.Equal(t, 4000*time.Millisecond, b.Delay(2))
	require.Equal(t, 8000*time.Millisecond, b.Delay(3))
	require.Equal(t, 8000*time.Millisecond, b.Delay(10))
}

func TestRouterDispatchesToHandler(t *testing.T) {
	log := zerolog.Nop()
	r := NewRouter("127.0.0.1:0", 2, log)
	r.Handle(RequestFullList, func(ctx context.Context, req Message) Message {
		return NewMessage(RequestFullListAck, struct{}{})
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	r.addr = addr

	go func() { _ = r.Serve(ctx) }()
	waitForListener(t, addr)

	reply, err := Call(ctx, log, addr, NewMessage(RequestFullList, struct{}{}), Backoff{Attempts: 1, Initial: time.Second, Max: time.Second})
	require.NoError(t, err)
	require.Equal(t, RequestFullListAck, reply.Type)
}

func waitForListener(t *testing.T, addr string) {
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
	t.Fatalf("listener at %s never came up", addr)
}

func TestIsNack(t *testing.T) {
	require.True(t, IsNack(RequestFullListNack))
	require.True(t, IsNack(SentFullListNack))
	require.False(t, IsNack(RequestFullListAck))
}
