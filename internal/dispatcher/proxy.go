package dispatcher

import (
	"context"

	"github.com/rs/zerolog"

	"shoplist/internal/crdt"
	"shoplist/internal/membership"
	"shoplist/internal/wire"
)

// Proxy implements the client-facing fan-out described in spec §4.4.1 and
// §4.4.2: a proxy never stores a list itself, it only routes a client's
// request to the right server(s) on the ring and publishes the result.
type Proxy struct {
	membership *membership.Membership
	publisher  *wire.Publisher
	log        zerolog.Logger
}

// NewProxy builds a Proxy. publisher is the PUB socket LIST_UPDATE is
// broadcast on after a successful write.
func NewProxy(m *membership.Membership, publisher *wire.Publisher, log zerolog.Logger) *Proxy {
	return &Proxy{membership: m, publisher: publisher, log: log.With().Str("component", "proxy").Logger()}
}

// SendFullList implements spec §4.4.1: try servers on the ring starting at
// the primary for list.UUID until one ACKs, publish the result, and return
// it. ok is false when the whole ring refused (the caller replies
// SENT_FULL_LIST_NACK).
func (p *Proxy) SendFullList(ctx context.Context, list *crdt.ShoppingList) (*crdt.ShoppingList, bool) {
	ring := p.membership.Ring()
	servers := ring.Successors(membership.HashKey(list.UUID), ring.Len())
	if len(servers) == 0 {
		return nil, false
	}

	data, err := list.Serialize()
	if err != nil {
		p.log.Error().Err(err).Msg("serialize outgoing list failed")
		return nil, false
	}
	req := wire.NewMessage(wire.SentFullList, listPayload{ShoppingList: data})

	for _, addr := range servers {
		reply, err := wire.Call(ctx, p.log, addr, req, wire.DefaultBackoff())
		if err != nil {
			p.log.Debug().Err(err).Str("server", addr).Msg("SENT_FULL_LIST attempt failed")
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
		p.publisher.Publish(list.UUID, wire.NewMessage(wire.ListUpdate, listPayload{ShoppingList: payload.ShoppingList}))
		return merged, true
	}
	return nil, false
}

// RequestFullList implements spec §4.4.2: walk up to nextNumber ring
// positions starting at the primary, collect successfulReads CRDTs, and
// merge them. ok is false if fewer than successfulReads were gathered.
func (p *Proxy) RequestFullList(ctx context.Context, listUUID string) (*crdt.ShoppingList, bool) {
	ring := p.membership.Ring()
	servers := ring.Successors(membership.HashKey(listUUID), nextNumber)
	if len(servers) == 0 {
		return nil, false
	}

	req := wire.NewMessage(wire.RequestFullList, listIDPayload{ListID: listUUID})

	var merged *crdt.ShoppingList
	collected := 0
	for _, addr := range servers {
		reply, err := wire.Call(ctx, p.log, addr, req, wire.DefaultBackoff())
		if err != nil {
			p.log.Debug().Err(err).Str("server", addr).Msg("REQUEST_FULL_LIST attempt failed")
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
		if merged == nil {
			merged = list
		} else {
			merged.Merge(list)
		}
		collected++
		if collected >= successfulReads {
			break
		}
	}

	if collected < successfulReads {
		return nil, false
	}
	return merged, true
}

// HandleSentFullList is the Router handler a proxy registers for client
// SENT_FULL_LIST requests.
func (p *Proxy) HandleSentFullList(ctx context.Context, req wire.Message) wire.Message {
	var payload listPayload
	if err := req.Decode(&payload); err != nil {
		return wire.NewMessage(wire.SentFullListNack, struct{}{})
	}
	list, err := crdt.Deserialize(payload.ShoppingList)
	if err != nil {
		return wire.NewMessage(wire.SentFullListNack, struct{}{})
	}
	merged, ok := p.SendFullList(ctx, list)
	if !ok {
		return wire.NewMessage(wire.SentFullListNack, struct{}{})
	}
	data, err := merged.Serialize()
	if err != nil {
		return wire.NewMessage(wire.SentFullListNack, struct{}{})
	}
	return wire.NewMessage(wire.SentFullListAck, listPayload{ShoppingList: data})
}

// HandleRequestFullList is the Router handler a proxy registers for client
// REQUEST_FULL_LIST requests.
func (p *Proxy) HandleRequestFullList(ctx context.Context, req wire.Message) wire.Message {
	var payload listIDPayload
	if err := req.Decode(&payload); err != nil {
		return wire.NewMessage(wire.RequestFullListNack, struct{}{})
	}
	merged, ok := p.RequestFullList(ctx, payload.ListID)
	if !ok {
		return wire.NewMessage(wire.RequestFullListNack, struct{}{})
	}
	data, err := merged.Serialize()
	if err != nil {
		return wire.NewMessage(wire.RequestFullListNack, struct{}{})
	}
	return wire.NewMessage(wire.RequestFullListAck, listPayload{ShoppingList: data})
}
