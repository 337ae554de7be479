// Package store is the single-node key→CRDT contract from spec §4.2: every
// save reloads the existing list (if any), merges the incoming list into it
// under an exclusive lock, and writes the merge back; the materialized view
// is projected from the stored CRDT when read. The "many readers OR one writer"
// rule the spec asks for is the rule bbolt already enforces on one
// *bbolt.DB — Update() takes the single writer transaction, View() takes a
// concurrent reader transaction — so Storage leans on that instead of
// layering a redundant sync.RWMutex on top, the way the teacher's store.Store
// layers one over its in-memory map.
package store

import (
	"sort"

	"shoplist/internal/crdt"
)

// Record is one row of the ShoppingList table (spec §3.2): the CRDT blob
// plus the replication metadata that travels alongside it.
type Record struct {
	UUID         string
	Name         string
	List         *crdt.ShoppingList
	LogicalClock uint64
	IsReplica    bool
	ReplicaID    int
	NotSent      bool
}

// ViewRow is one row of the materialized ShoppingListItem projection (spec
// §3.2/§6.3): a pure function of Record.List, computed by ViewRows on each
// call rather than stored.
type ViewRow struct {
	ItemName      string
	QuantityNeed  int64
	QuantityAcqu  int64
	Position      int
}

// SaveOptions carries the optional metadata fields spec §4.2's
// save(list, {name?, is_replica?, replica_id?, not_sent?}) can set. A nil
// field leaves the stored value (or the zero value, on first insert)
// untouched.
type SaveOptions struct {
	Name      *string
	IsReplica *bool
	ReplicaID *int
	NotSent   *bool
}

// ViewRows projects the record's CRDT state into the materialized view rows
// an API handler would actually render: visible items only, quantities
// already clamped, in a stable order.
func (r *Record) ViewRows() []ViewRow {
	visible := r.List.GetVisibleItems()
	names := make([]string, 0, len(visible))
	for name := range visible {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]ViewRow, 0, len(names))
	for i, name := range names {
		v := visible[name]
		rows = append(rows, ViewRow{
			ItemName:     name,
			QuantityNeed: v.Needed,
			QuantityAcqu: v.Acquired,
			Position:     i,
		})
	}
	return rows
}

func boolPtr(b bool) *bool    { return &b }
func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }
