// Package dispatcher implements the quorum fan-out data plane from spec
// §4.4: the proxy-side write/read paths, server-side write/read handling,
// the hinted-handoff repair loop, and the client-side communicator. It sits
// on top of internal/wire for framing and internal/membership for ring
// lookups, the way the teacher's cluster.Replicator sat on top of its HTTP
// handlers and Ring.
package dispatcher

import "encoding/json"

// Tunable constants named directly in spec §4.4.
const (
	nextNumber      = 5 // proxy read path: ring positions to try
	successfulReads = 2 // proxy read path: CRDTs needed before merging and replying
	replicaCount    = 2 // server write path: distinct replica acks to collect
)

// listPayload carries a single CRDT blob, the shape used by
// SENT_FULL_LIST, its ACK, and LIST_UPDATE.
type listPayload struct {
	ShoppingList json.RawMessage `json:"shopping_list"`
}

// listIDPayload is the REQUEST_FULL_LIST request body.
type listIDPayload struct {
	ListID string `json:"list_id"`
}

// replicaPayload is the REPLICA request body (spec §6.1).
type replicaPayload struct {
	ReplicaList json.RawMessage `json:"replica_list"`
	ReplicaID   int             `json:"replicaID"`
}

// handoffPayload is the HINTED_HANDOFF request body.
type handoffPayload struct {
	MainLists    []json.RawMessage `json:"main_lists"`
	ReplicaLists []json.RawMessage `json:"replica_lists"`
}
