package dispatcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"shoplist/internal/crdt"
	"shoplist/internal/membership"
	"shoplist/internal/metrics"
	"shoplist/internal/store"
	"shoplist/internal/wire"
)

// HintedHandoffInterval is the repair-loop period named in spec §4.4.5.
const HintedHandoffInterval = 10 * time.Second

// Server implements the storage-owning half of the dispatcher: write/read
// handling (spec §4.4.3, §4.4.4), asynchronous replica push, and the
// hinted-handoff scanner (spec §4.4.5).
type Server struct {
	selfPort   string
	storage    *store.Storage
	membership *membership.Membership
	log        zerolog.Logger
}

// NewServer builds a Server bound to selfPort (used for ring math).
func NewServer(selfPort string, s *store.Storage, m *membership.Membership, log zerolog.Logger) *Server {
	return &Server{selfPort: selfPort, storage: s, membership: m, log: log.With().Str("component", "server").Str("port", selfPort).Logger()}
}

// HandleSentFullList answers SENT_FULL_LIST: merge into local storage as a
// primary copy, reply with the merged result, and asynchronously push
// replicas (spec §4.4.3).
func (s *Server) HandleSentFullList(ctx context.Context, req wire.Message) wire.Message {
	var payload listPayload
	if err := req.Decode(&payload); err != nil {
		return wire.NewMessage(wire.SentFullListNack, struct{}{})
	}
	incoming, err := crdt.Deserialize(payload.ShoppingList)
	if err != nil {
		return wire.NewMessage(wire.SentFullListNack, struct{}{})
	}

	merged, err := s.storage.Save(incoming, store.SaveOptions{IsReplica: boolPtr(false)})
	if err != nil {
		s.log.Error().Err(err).Str("uuid", incoming.UUID).Msg("save failed")
		return wire.NewMessage(wire.SentFullListNack, struct{}{})
	}

	go s.sendReplica(context.Background(), merged)

	data, err := merged.Serialize()
	if err != nil {
		return wire.NewMessage(wire.SentFullListNack, struct{}{})
	}
	return wire.NewMessage(wire.SentFullListAck, listPayload{ShoppingList: data})
}

// HandleRequestFullList answers REQUEST_FULL_LIST with whatever local copy
// (primary or replica) exists for the list, or a NACK (spec §4.4.4). Quorum
// across multiple servers is the proxy's job, not this handler's.
func (s *Server) HandleRequestFullList(ctx context.Context, req wire.Message) wire.Message {
	var payload listIDPayload
	if err := req.Decode(&payload); err != nil {
		return wire.NewMessage(wire.RequestFullListNack, struct{}{})
	}
	rec, ok, err := s.storage.Get(payload.ListID)
	if err != nil {
		s.log.Error().Err(err).Str("uuid", payload.ListID).Msg("get failed")
		return wire.NewMessage(wire.RequestFullListNack, struct{}{})
	}
	if !ok {
		return wire.NewMessage(wire.RequestFullListNack, struct{}{})
	}
	data, err := rec.List.Serialize()
	if err != nil {
		return wire.NewMessage(wire.RequestFullListNack, struct{}{})
	}
	return wire.NewMessage(wire.RequestFullListAck, listPayload{ShoppingList: data})
}

// HandleReplica answers a REPLICA push from a primary: store as a replica
// copy at the given replica_id.
func (s *Server) HandleReplica(ctx context.Context, req wire.Message) wire.Message {
	var payload replicaPayload
	if err := req.Decode(&payload); err != nil {
		return wire.NewMessage(wire.ReplicaAck, struct{}{})
	}
	list, err := crdt.Deserialize(payload.ReplicaList)
	if err != nil {
		return wire.NewMessage(wire.ReplicaAck, struct{}{})
	}
	if _, err := s.storage.Save(list, store.SaveOptions{IsReplica: boolPtr(true), ReplicaID: intPtr(payload.ReplicaID)}); err != nil {
		s.log.Error().Err(err).Str("uuid", list.UUID).Msg("replica save failed")
	}
	return wire.NewMessage(wire.ReplicaAck, struct{}{})
}

// sendReplica walks the ring clockwise from the primary+1 position and
// pushes list to replicaCount distinct successors, each tagged with its own
// replica_id. Each push gets the DefaultBackoff attempts; a push that still
// fails is not re-queued: the hinted-handoff loop reconciles it (spec §4.4.3).
func (s *Server) sendReplica(ctx context.Context, list *crdt.ShoppingList) {
	ring := s.membership.Ring()
	primary, ok := ring.Owner(membership.HashKey(list.UUID))
	if !ok {
		return
	}

	data, err := list.Serialize()
	if err != nil {
		s.log.Error().Err(err).Msg("serialize for replica failed")
		return
	}

	for replicaID := 1; replicaID <= replicaCount; replicaID++ {
		target, ok := ring.NthSuccessor(primary, replicaID)
		if !ok || target == primary {
			continue
		}
		req := wire.NewMessage(wire.Replica, replicaPayload{ReplicaList: data, ReplicaID: replicaID})
		if _, err := wire.Call(ctx, s.log, target, req, wire.DefaultBackoff()); err != nil {
			s.log.Debug().Err(err).Str("target", target).Int("replica_id", replicaID).Msg("replica push failed, leaving for hinted handoff")
		}
	}
}

// RunHintedHandoff blocks, scanning storage every HintedHandoffInterval and
// handing off any list whose intended owner is no longer this node (spec
// §4.4.5). Membership changes therefore rebalance data without a separate
// rebalance protocol.
func (s *Server) RunHintedHandoff(ctx context.Context) {
	ticker := time.NewTicker(HintedHandoffInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.handoffTick(ctx)
		}
	}
}

func (s *Server) handoffTick(ctx context.Context) {
	records, err := s.storage.GetAll()
	if err != nil {
		s.log.Error().Err(err).Msg("hinted handoff scan failed")
		return
	}

	ring := s.membership.Ring()
	hintsByTarget := make(map[string]*handoffPayload)

	for _, rec := range records {
		target := s.intendedServer(ring, rec)
		if target == "" || target == s.selfPort {
			continue
		}
		data, err := rec.List.Serialize()
		if err != nil {
			continue
		}
		group, ok := hintsByTarget[target]
		if !ok {
			group = &handoffPayload{}
			hintsByTarget[target] = group
		}
		if rec.IsReplica {
			group.ReplicaLists = append(group.ReplicaLists, data)
		} else {
			group.MainLists = append(group.MainLists, data)
		}
	}

	for target, group := range hintsByTarget {
		req := wire.NewMessage(wire.HintedHandoff, *group)
		reply, err := wire.Call(ctx, s.log, target, req, wire.DefaultBackoff())
		if err != nil || reply.Type != wire.HintedHandoffAck {
			s.log.Debug().Err(err).Str("target", target).Msg("hinted handoff failed, retrying next tick")
			continue
		}
		metrics.HintedHandoffsSent.Inc()
		for _, rec := range records {
			if s.intendedServer(ring, rec) == target {
				_ = s.storage.Delete(rec.UUID)
			}
		}
	}
}

// intendedServer computes who should own rec per spec §4.4.5: the primary
// for a main copy, the replica_id-th successor of the primary for a replica.
func (s *Server) intendedServer(ring *membership.Ring, rec *store.Record) string {
	key := membership.HashKey(rec.UUID)
	primary, ok := ring.Owner(key)
	if !ok {
		return ""
	}
	if !rec.IsReplica {
		return primary
	}
	target, ok := ring.NthSuccessor(primary, rec.ReplicaID)
	if !ok {
		return ""
	}
	return target
}

// HandleHintedHandoff answers a HINTED_HANDOFF push from another server by
// saving every carried list under the right replica flags.
func (s *Server) HandleHintedHandoff(ctx context.Context, req wire.Message) wire.Message {
	var payload handoffPayload
	if err := req.Decode(&payload); err != nil {
		return wire.NewMessage(wire.HintedHandoffAck, struct{}{})
	}
	for _, raw := range payload.MainLists {
		if list, err := crdt.Deserialize(raw); err == nil {
			_, _ = s.storage.Save(list, store.SaveOptions{IsReplica: boolPtr(false)})
		}
	}
	for _, raw := range payload.ReplicaLists {
		if list, err := crdt.Deserialize(raw); err == nil {
			_, _ = s.storage.Save(list, store.SaveOptions{IsReplica: boolPtr(true)})
		}
	}
	return wire.NewMessage(wire.HintedHandoffAck, struct{}{})
}

// HandleRemoveServer answers an admin REMOVE_SERVER request: acknowledge,
// then let the caller terminate the process (spec §4.4.7).
func (s *Server) HandleRemoveServer(ctx context.Context, req wire.Message) wire.Message {
	return wire.NewMessage(wire.RemoveServerAck, struct{}{})
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int { return &i }
