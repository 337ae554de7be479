package membership

import (
	"sort"
	"sync"
)

// View is the wire shape of a node's membership knowledge: the servers and
// proxies it knows about, and the version that knowledge was last bumped at
// (spec §4.3).
type View struct {
	Servers []string `json:"servers"`
	Proxies []string `json:"proxies"`
	Version uint64   `json:"hash_ring_version"`
}

// Membership is one node's view of the cluster: the server and proxy sets
// plus the monotonic version the gossip protocol reconciles on. SelfID is
// excluded from removal during adoption (spec §4.3: "except self").
type Membership struct {
	mu      sync.RWMutex
	servers map[string]struct{}
	proxies map[string]struct{}
	version uint64
	selfID  string
	isProxy bool

	ring *Ring
}

// New builds a membership view seeded with this node's own identity.
// selfID is this node's port; isProxy marks whether self belongs in the
// proxies set instead of the servers set.
func New(selfID string, isProxy bool, knownServers, knownProxies []string) *Membership {
	m := &Membership{
		servers: make(map[string]struct{}),
		proxies: make(map[string]struct{}),
		version: 1,
		selfID:  selfID,
		isProxy: isProxy,
	}
	if isProxy {
		m.proxies[selfID] = struct{}{}
	} else {
		m.servers[selfID] = struct{}{}
	}
	for _, s := range knownServers {
		m.servers[s] = struct{}{}
	}
	for _, p := range knownProxies {
		m.proxies[p] = struct{}{}
	}
	m.rebuildRing()
	return m
}

func (m *Membership) rebuildRing() {
	ports := make([]string, 0, len(m.servers))
	for s := range m.servers {
		ports = append(ports, s)
	}
	m.ring = NewRing(ports)
}

// View returns a stable snapshot suitable for sending in a GOSSIP message.
func (m *Membership) View() View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return View{Servers: setToSortedSlice(m.servers), Proxies: setToSortedSlice(m.proxies), Version: m.version}
}

// Ring returns the current consistent-hash ring over known servers.
func (m *Membership) Ring() *Ring {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ring
}

// AddServer performs an explicit local membership change (e.g. this node
// joining, or an admin-driven add) and bumps the version, per spec §4.3's
// rule that only the node performing the explicit change bumps it.
func (m *Membership) AddServer(port string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.servers[port]; ok {
		return
	}
	m.servers[port] = struct{}{}
	m.version++
	m.rebuildRing()
}

// RemoveServer performs an explicit local removal (spec §4.4.7) and bumps
// the version so the removal deterministically outranks peers still
// carrying the old membership.
func (m *Membership) RemoveServer(port string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.servers[port]; !ok {
		return
	}
	delete(m.servers, port)
	m.version++
	m.rebuildRing()
}

// AddProxy records a newly known proxy and bumps the version.
func (m *Membership) AddProxy(port string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.proxies[port]; ok {
		return
	}
	m.proxies[port] = struct{}{}
	m.version++
}

// Reconcile applies an incoming GOSSIP or GOSSIP_INTRODUCTION view per the
// table in spec §4.3. introduction=true means "treat as unconditional
// union" regardless of version, the behavior the first message a node ever
// sends gets on the receiving side.
func (m *Membership) Reconcile(incoming View, introduction bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if introduction {
		m.unionInto(incoming)
		m.rebuildRing()
		return
	}

	switch {
	case incoming.Version < m.version:
		// stale, ignore.
	case incoming.Version == m.version:
		if setsEqual(m.servers, incoming.Servers) && setsEqual(m.proxies, incoming.Proxies) {
			return
		}
		m.unionInto(incoming)
		m.version++
		m.rebuildRing()
	default:
		m.adopt(incoming)
	}
}

func (m *Membership) unionInto(incoming View) {
	for _, s := range incoming.Servers {
		m.servers[s] = struct{}{}
	}
	for _, p := range incoming.Proxies {
		m.proxies[p] = struct{}{}
	}
}

// adopt replaces the local view with incoming as authoritative, preserving
// self even if incoming omits it (spec §4.3: "except self").
func (m *Membership) adopt(incoming View) {
	newServers := make(map[string]struct{}, len(incoming.Servers))
	for _, s := range incoming.Servers {
		newServers[s] = struct{}{}
	}
	newProxies := make(map[string]struct{}, len(incoming.Proxies))
	for _, p := range incoming.Proxies {
		newProxies[p] = struct{}{}
	}
	if m.isProxy {
		newProxies[m.selfID] = struct{}{}
	} else {
		newServers[m.selfID] = struct{}{}
	}
	m.servers = newServers
	m.proxies = newProxies
	m.version = incoming.Version
	m.rebuildRing()
}

func setToSortedSlice(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func setsEqual(local map[string]struct{}, incoming []string) bool {
	if len(local) != len(incoming) {
		return false
	}
	for _, s := range incoming {
		if _, ok := local[s]; !ok {
			return false
		}
	}
	return true
}

// KnownServers returns every server port known to this node, excluding self.
func (m *Membership) KnownServers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.servers))
	for s := range m.servers {
		if s != m.selfID {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// KnownProxies returns every proxy port known to this node, excluding self.
func (m *Membership) KnownProxies() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.proxies))
	for p := range m.proxies {
		if p != m.selfID {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
