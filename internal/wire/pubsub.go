package wire

import (
	"context"
	"net"
	"sync"

	"github.com/rs/zerolog"
)

// Publisher is the PUB half of a proxy's list-update fan-out. It listens on
// its own port (conventionally the dealer port + 1, spec §6.1) and keeps one
// long-lived connection per subscriber, filtering each publish by the
// topics that subscriber asked for.
type Publisher struct {
	addr string
	log  zerolog.Logger

	mu   sync.Mutex
	subs map[*subscriberConn]struct{}
}

type subscriberConn struct {
	conn   net.Conn
	mu     sync.Mutex
	topics map[string]struct{}
}

// NewPublisher builds a publisher bound to addr once Serve runs.
func NewPublisher(addr string, log zerolog.Logger) *Publisher {
	return &Publisher{addr: addr, log: log.With().Str("component", "publisher").Str("addr", addr).Logger(), subs: make(map[*subscriberConn]struct{})}
}

// Serve accepts subscriber connections until ctx is cancelled. Each
// connection first sends zero or more SUBSCRIBE frames naming topics, then
// receives LIST_UPDATE frames for any topic it subscribed to.
func (p *Publisher) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", p.addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				p.log.Warn().Err(err).Msg("accept failed")
				continue
			}
		}
		sub := &subscriberConn{conn: conn, topics: make(map[string]struct{})}
		p.mu.Lock()
		p.subs[sub] = struct{}{}
		p.mu.Unlock()
		go p.readSubscriptions(ctx, sub)
	}
}

func (p *Publisher) readSubscriptions(ctx context.Context, sub *subscriberConn) {
	defer func() {
		p.mu.Lock()
		delete(p.subs, sub)
		p.mu.Unlock()
		sub.conn.Close()
	}()
	for {
		msg, err := ReadFrame(sub.conn)
		if err != nil {
			return
		}
		var body struct {
			Topic string `json:"topic"`
		}
		if err := msg.Decode(&body); err != nil {
			continue
		}
		sub.mu.Lock()
		switch msg.Type {
		case Subscribe:
			sub.topics[body.Topic] = struct{}{}
		case Unsubscribe:
			delete(sub.topics, body.Topic)
		}
		sub.mu.Unlock()
	}
}

// Publish sends msg to every subscriber currently subscribed to topic.
// Best-effort: a subscriber whose write fails is dropped from the fan-out
// (spec §5's "drops are tolerable"). Writes carry no deadline, so a
// subscriber that stops reading can hold up the publish.
func (p *Publisher) Publish(topic string, msg Message) {
	p.mu.Lock()
	targets := make([]*subscriberConn, 0, len(p.subs))
	for s := range p.subs {
		targets = append(targets, s)
	}
	p.mu.Unlock()

	for _, sub := range targets {
		sub.mu.Lock()
		_, want := sub.topics[topic]
		sub.mu.Unlock()
		if !want {
			continue
		}
		if err := WriteFrame(sub.conn, msg); err != nil {
			p.mu.Lock()
			delete(p.subs, sub)
			p.mu.Unlock()
			sub.conn.Close()
		}
	}
}

// Subscriber dials a publisher's PUB port and delivers LIST_UPDATE frames to
// a callback until the connection drops or is closed; the ctx given to
// DialSubscriber bounds only the dial. Reconnection,
// if desired, is the caller's responsibility — the client communicator
// re-subscribes on every successful send/request per spec §4.4.6.
type Subscriber struct {
	conn net.Conn
}

// DialSubscriber connects to a publisher at addr.
func DialSubscriber(ctx context.Context, addr string) (*Subscriber, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Subscriber{conn: conn}, nil
}

// SubscribeTopic sends a SUBSCRIBE control frame for topic.
func (s *Subscriber) SubscribeTopic(topic string) error {
	return WriteFrame(s.conn, NewMessage(Subscribe, struct {
		Topic string `json:"topic"`
	}{Topic: topic}))
}

// Listen blocks reading frames and invoking onUpdate for each LIST_UPDATE
// received, returning when the connection closes or errors.
func (s *Subscriber) Listen(onUpdate func(Message)) error {
	for {
		msg, err := ReadFrame(s.conn)
		if err != nil {
			return err
		}
		if msg.Type == ListUpdate {
			onUpdate(msg)
		}
	}
}

// Close closes the underlying connection.
func (s *Subscriber) Close() error {
	return s.conn.Close()
}
