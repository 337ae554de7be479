package membership

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"shoplist/internal/metrics"
	"shoplist/internal/wire"
)

// GossipInterval and GossipFanout are the nominal values from spec §4.3.
const (
	GossipInterval = 500 * time.Millisecond
	GossipFanout   = 2
)

// Gossiper periodically ticks a Membership outward to a sample of known
// peers, using errgroup to fan the per-tick sends out concurrently without
// letting one slow peer delay the others.
type Gossiper struct {
	m   *Membership
	log zerolog.Logger

	mu          sync.Mutex
	introduced  map[string]bool
	rng         *rand.Rand
}

// NewGossiper wraps m with a ticker that will fan out GOSSIP messages.
func NewGossiper(m *Membership, log zerolog.Logger) *Gossiper {
	return &Gossiper{
		m:          m,
		log:        log.With().Str("component", "gossiper").Logger(),
		introduced: make(map[string]bool),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run blocks ticking every GossipInterval until ctx is cancelled.
func (g *Gossiper) Run(ctx context.Context) {
	ticker := time.NewTicker(GossipInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.tick(ctx)
		}
	}
}

func (g *Gossiper) tick(ctx context.Context) {
	servers := g.m.KnownServers()
	proxies := g.m.KnownProxies()

	peers := append(sample(g.rng, servers, GossipFanout), sample(g.rng, proxies, GossipFanout)...)
	if len(peers) == 0 {
		return
	}

	view := g.m.View()
	eg, egCtx := errgroup.WithContext(ctx)
	for _, peer := range peers {
		peer := peer
		eg.Go(func() error {
			g.sendTo(egCtx, peer, view)
			return nil
		})
	}
	_ = eg.Wait()
	metrics.GossipRounds.Inc()
	metrics.KnownServers.Set(float64(g.m.Ring().Len()))
	metrics.MembershipVersion.Set(float64(g.m.View().Version))
}

func (g *Gossiper) sendTo(ctx context.Context, addr string, view View) {
	msgType := wire.Gossip
	g.mu.Lock()
	if !g.introduced[addr] {
		msgType = wire.GossipIntroduction
		g.introduced[addr] = true
	}
	g.mu.Unlock()

	_, err := wire.Call(ctx, g.log, addr, wire.NewMessage(msgType, view), wire.Backoff{Attempts: 1, Initial: GossipInterval, Max: GossipInterval})
	if err != nil {
		g.log.Debug().Err(err).Str("peer", addr).Msg("gossip send failed")
	}
}

// HandleGossip is the Router handler a server/proxy registers for both
// GOSSIP and GOSSIP_INTRODUCTION frames.
func (g *Gossiper) HandleGossip(introduction bool) wire.Handler {
	return func(ctx context.Context, req wire.Message) wire.Message {
		var view View
		if err := req.Decode(&view); err != nil {
			return wire.NewMessage(wire.Gossip, View{})
		}
		g.m.Reconcile(view, introduction)
		return wire.NewMessage(wire.Gossip, g.m.View())
	}
}

func sample(rng *rand.Rand, pool []string, n int) []string {
	if len(pool) <= n {
		return pool
	}
	shuffled := make([]string, len(pool))
	copy(shuffled, pool)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:n]
}
