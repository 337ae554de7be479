package wire

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// Call opens a fresh TCP connection to addr, sends req, and waits for a
// single reply frame, retrying up to backoff.Attempts times with the
// standard doubling schedule. Every attempt is a brand new socket — sockets
// are never shared across goroutines or reused across attempts (spec §5).
// A bare port (the form membership keys nodes on) is dialed on 127.0.0.1.
func Call(ctx context.Context, log zerolog.Logger, addr string, req Message, backoff Backoff) (Message, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort("127.0.0.1", addr)
	}
	var lastErr error
	for attempt := 0; attempt < backoff.Attempts; attempt++ {
		reply, err := callOnce(ctx, addr, req, backoff.Delay(attempt))
		if err == nil {
			return reply, nil
		}
		lastErr = err
		log.Debug().Err(err).Str("addr", addr).Int("attempt", attempt).Str("type", req.Type.String()).Msg("dealer call failed, retrying")
	}
	return Message{}, fmt.Errorf("wire: call %s to %s failed after %d attempts: %w", req.Type, addr, backoff.Attempts, lastErr)
}

func callOnce(ctx context.Context, addr string, req Message, timeout time.Duration) (Message, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return Message{}, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return Message{}, fmt.Errorf("set deadline: %w", err)
	}

	if err := WriteFrame(conn, req); err != nil {
		return Message{}, fmt.Errorf("write request: %w", err)
	}

	reply, err := ReadFrame(conn)
	if err != nil {
		return Message{}, fmt.Errorf("read reply: %w", err)
	}
	return reply, nil
}

// IsNack reports whether t is one of this protocol's negative-acknowledgment
// codes. A NACK is a semantic negative (spec §7): the caller moves on to the
// next peer rather than retrying the same one.
func IsNack(t MessageType) bool {
	switch t {
	case RequestFullListNack, SentFullListNack:
		return true
	default:
		return false
	}
}
