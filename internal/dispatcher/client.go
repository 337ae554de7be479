package dispatcher

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"shoplist/internal/crdt"
	"shoplist/internal/store"
	"shoplist/internal/wire"
)

// HeartbeatInterval is the client retry period from spec §4.4.6.
const HeartbeatInterval = 10 * time.Second

// Communicator is the client-side half of the dispatcher (spec §4.4.6): it
// shuffles through known proxies on every send/request, persists results
// locally, and subscribes to LIST_UPDATE fan-out for lists it cares about.
type Communicator struct {
	storage *store.Storage
	log     zerolog.Logger
	rng     *rand.Rand

	proxies []string
}

// NewCommunicator builds a Communicator over the given proxy dealer
// addresses (host:port for REQUEST/SENT_FULL_LIST traffic; the matching PUB
// port is addr's port + 1 by convention).
func NewCommunicator(s *store.Storage, proxies []string, log zerolog.Logger) *Communicator {
	return &Communicator{
		storage: s,
		log:     log.With().Str("component", "client").Logger(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		proxies: proxies,
	}
}

func (c *Communicator) shuffledProxies() []string {
	out := make([]string, len(c.proxies))
	copy(out, c.proxies)
	c.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// SendFullList tries each known proxy in random order until one ACKs,
// stores the merged result locally with not_sent=false, and subscribes to
// the list's update topic (spec §4.4.6).
func (c *Communicator) SendFullList(ctx context.Context, list *crdt.ShoppingList) (*crdt.ShoppingList, error) {
	data, err := list.Serialize()
	if err != nil {
		return nil, err
	}
	req := wire.NewMessage(wire.SentFullList, listPayload{ShoppingList: data})

	for _, addr := range c.shuffledProxies() {
		reply, err := wire.Call(ctx, c.log, addr, req, wire.DefaultBackoff())
		if err != nil {
			c.log.Debug().Err(err).Str("proxy", addr).Msg("send_full_list attempt failed")
			continue
		}
		if reply.Type != wire.SentFullListAck {
			continue
		}
		var payload listPayload
		if err := reply.Decode(&payload); err != nil {
			continue
		}
		merged, err := crdt.Deserialize(payload.ShoppingList)
		if err != nil {
			continue
		}
		if _, err := c.storage.Save(merged, store.SaveOptions{NotSent: boolPtr(false)}); err != nil {
			return nil, err
		}
		go c.subscribe(context.Background(), addr, merged.UUID)
		return merged, nil
	}
	// Every proxy refused or was unreachable: persist locally flagged not_sent
	// so the heartbeat loop retries it.
	if _, err := c.storage.Save(list, store.SaveOptions{NotSent: boolPtr(true)}); err != nil {
		return nil, err
	}
	return nil, errAllProxiesFailed
}

// RequestFullList tries each known proxy until one ACKs with a CRDT,
// storing it locally and subscribing to its topic.
func (c *Communicator) RequestFullList(ctx context.Context, listUUID string) (*crdt.ShoppingList, error) {
	req := wire.NewMessage(wire.RequestFullList, listIDPayload{ListID: listUUID})

	for _, addr := range c.shuffledProxies() {
		reply, err := wire.Call(ctx, c.log, addr, req, wire.DefaultBackoff())
		if err != nil {
			c.log.Debug().Err(err).Str("proxy", addr).Msg("request_full_list attempt failed")
			continue
		}
		if reply.Type != wire.RequestFullListAck {
			continue
		}
		var payload listPayload
		if err := reply.Decode(&payload); err != nil {
			continue
		}
		list, err := crdt.Deserialize(payload.ShoppingList)
		if err != nil {
			continue
		}
		if _, err := c.storage.Save(list, store.SaveOptions{}); err != nil {
			return nil, err
		}
		go c.subscribe(context.Background(), addr, listUUID)
		return list, nil
	}
	return nil, errAllProxiesFailed
}

// subscribe opens the PUB connection (dealer port + 1) for proxyAddr and
// merges every LIST_UPDATE it receives for topic into local storage.
func (c *Communicator) subscribe(ctx context.Context, proxyAddr, topic string) {
	pubAddr, err := pubAddrOf(proxyAddr)
	if err != nil {
		c.log.Warn().Err(err).Str("proxy", proxyAddr).Msg("cannot derive pub address")
		return
	}
	sub, err := wire.DialSubscriber(ctx, pubAddr)
	if err != nil {
		c.log.Debug().Err(err).Str("pub_addr", pubAddr).Msg("subscribe dial failed")
		return
	}
	defer sub.Close()
	if err := sub.SubscribeTopic(topic); err != nil {
		return
	}
	_ = sub.Listen(func(msg wire.Message) {
		var payload listPayload
		if err := msg.Decode(&payload); err != nil {
			return
		}
		list, err := crdt.Deserialize(payload.ShoppingList)
		if err != nil {
			return
		}
		if _, err := c.storage.Save(list, store.SaveOptions{}); err != nil {
			c.log.Error().Err(err).Str("uuid", list.UUID).Msg("background subscriber save failed")
		}
	})
}

// RunHeartbeat blocks, retrying every not-sent list every HeartbeatInterval
// (spec §4.4.6).
func (c *Communicator) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.heartbeatTick(ctx)
		}
	}
}

func (c *Communicator) heartbeatTick(ctx context.Context) {
	pending, err := c.storage.GetAllNotSent()
	if err != nil {
		c.log.Error().Err(err).Msg("heartbeat scan failed")
		return
	}
	for _, rec := range pending {
		if _, err := c.SendFullList(ctx, rec.List); err != nil {
			c.log.Debug().Err(err).Str("uuid", rec.UUID).Msg("heartbeat retry still failing")
		}
	}
}
