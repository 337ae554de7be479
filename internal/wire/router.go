package wire

import (
	"context"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"shoplist/internal/metrics"
)

// Handler answers one request frame with a reply frame. It must never panic;
// the router recovers around it and logs, per spec §7 ("the router thread
// never throws").
type Handler func(ctx context.Context, req Message) Message

// Router is one listening endpoint dispatching accepted connections to a
// fixed-size worker pool, mirroring spec §5's "one I/O router thread per
// listening endpoint ... handlers are dispatched to a fixed-size worker
// pool". Each accepted connection carries exactly one request/reply pair,
// matching the dealer's one-shot-connection-per-call convention.
type Router struct {
	addr     string
	workers  int
	handlers map[MessageType]Handler
	log      zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	jobs     chan net.Conn
	wg       sync.WaitGroup
}

// NewRouter builds a router with workers goroutines ready to serve, none of
// them started until Serve is called.
func NewRouter(addr string, workers int, log zerolog.Logger) *Router {
	return &Router{
		addr:     addr,
		workers:  workers,
		handlers: make(map[MessageType]Handler),
		log:      log.With().Str("component", "router").Str("addr", addr).Logger(),
	}
}

// Handle registers the handler for a message type. Must be called before Serve.
func (r *Router) Handle(t MessageType, h Handler) {
	r.handlers[t] = h
}

// Serve binds the listener and blocks, accepting connections and feeding the
// worker pool until ctx is cancelled.
func (r *Router) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.listener = ln
	r.jobs = make(chan net.Conn, r.workers*4)
	r.mu.Unlock()

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
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
				close(r.jobs)
				r.wg.Wait()
				return nil
			default:
				r.log.Warn().Err(err).Msg("accept failed")
				continue
			}
		}
		select {
		case r.jobs <- conn:
		case <-ctx.Done():
			conn.Close()
		}
	}
}

func (r *Router) worker(ctx context.Context) {
	defer r.wg.Done()
	for conn := range r.jobs {
		r.serveConn(ctx, conn)
	}
}

func (r *Router) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Msg("handler panicked, connection dropped")
			metrics.MessagesHandled.WithLabelValues("unknown", "panic").Inc()
		}
	}()

	req, err := ReadFrame(conn)
	if err != nil {
		r.log.Debug().Err(err).Msg("read frame failed")
		return
	}

	handler, ok := r.handlers[req.Type]
	if !ok {
		r.log.Warn().Str("type", req.Type.String()).Msg("no handler registered, dropping")
		metrics.MessagesHandled.WithLabelValues(req.Type.String(), "no_handler").Inc()
		return
	}

	reply := handler(ctx, req)
	outcome := "ok"
	if IsNack(reply.Type) {
		outcome = "nack"
	}
	metrics.MessagesHandled.WithLabelValues(req.Type.String(), outcome).Inc()
	if err := WriteFrame(conn, reply); err != nil {
		r.log.Debug().Err(err).Msg("write reply failed")
	}
}

// Addr returns the bound listener address, useful when addr was ":0" in tests.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}
