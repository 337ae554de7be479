package crdt

import "encoding/json"

// Item is the CRDT payload for one named entry on a shopping list: two
// PN-counters (needed/acquired quantities) and an OR-Set that tracks whether
// the item is currently visible at all. Counter state survives a remove and
// re-add — only existence is reset, so a re-add resumes from the observed
// quantity (spec invariant 2).
type Item struct {
	Needed    PNCounter `json:"needed"`
	Acquired  PNCounter `json:"acquired"`
	Existence ORSet     `json:"existence"`
}

func newItem() Item {
	return Item{Needed: NewPNCounter(), Acquired: NewPNCounter(), Existence: NewORSet()}
}

func (it Item) clone() Item {
	return Item{Needed: it.Needed.Clone(), Acquired: it.Acquired.Clone(), Existence: it.Existence.Clone()}
}

// ShoppingList is the top-level state-based CRDT. Name and Clock are
// debug-only: Name is merged "whoever wrote last during merge" (no
// authoritative tie-break rule), Clock is a local edit counter with no
// cross-replica meaning. Items is the only field with merge semantics that
// matter for convergence.
type ShoppingList struct {
	UUID  string
	Name  string
	Clock uint64
	Items map[string]Item
}

// New returns an empty list identified by uuid.
func New(uuid string) *ShoppingList {
	return &ShoppingList{UUID: uuid, Items: make(map[string]Item)}
}

func (l *ShoppingList) bump() uint64 {
	l.Clock++
	return l.Clock
}

func (l *ShoppingList) ensureItems() {
	if l.Items == nil {
		l.Items = make(map[string]Item)
	}
}

// AddItem adds a fresh (name, tag) existence tuple for name, creating the
// item's counters if this is the first time name has been seen. actorID
// identifies the edit origin and must be stable per (device, list) per spec
// invariant 3 — never the list's own uuid (see design note on actor ids).
func (l *ShoppingList) AddItem(actorID, name string, needed, acquired int64) {
	l.bump()
	l.ensureItems()
	item, ok := l.Items[name]
	if !ok {
		item = newItem()
	}
	item.Needed.Change(actorID, needed)
	item.Acquired.Change(actorID, acquired)
	item.Existence.Add(name, NewTag())
	l.Items[name] = item
}

// RemoveItem tombstones every live existence tuple for name. Counter state is
// untouched so a later AddItem resumes from the observed quantity.
func (l *ShoppingList) RemoveItem(name string) {
	l.bump()
	l.ensureItems()
	item, ok := l.Items[name]
	if !ok {
		return
	}
	item.Existence.Remove(name)
	l.Items[name] = item
}

// UpdateNeeded applies a signed delta to name's needed counter. No-op if name
// was never added.
func (l *ShoppingList) UpdateNeeded(actorID, name string, delta int64) {
	l.bump()
	l.ensureItems()
	item, ok := l.Items[name]
	if !ok {
		return
	}
	item.Needed.Change(actorID, delta)
	l.Items[name] = item
}

// UpdateAcquired applies a signed delta to name's acquired counter. No-op if
// name was never added.
func (l *ShoppingList) UpdateAcquired(actorID, name string, delta int64) {
	l.bump()
	l.ensureItems()
	item, ok := l.Items[name]
	if !ok {
		return
	}
	item.Acquired.Change(actorID, delta)
	l.Items[name] = item
}

// VisibleItem is one row of the materialized view: an item with at least one
// live existence tuple, quantities clamped to >= 0.
type VisibleItem struct {
	Needed   int64
	Acquired int64
}

// GetVisibleItems returns the pure projection of the CRDT that every
// materialized view must match: items with no live existence tuple are
// hidden regardless of their counter values.
func (l *ShoppingList) GetVisibleItems() map[string]VisibleItem {
	out := make(map[string]VisibleItem, len(l.Items))
	for name, item := range l.Items {
		if !item.Existence.Contains(name) {
			continue
		}
		out[name] = VisibleItem{
			Needed:   item.Needed.Displayed(),
			Acquired: item.Acquired.Displayed(),
		}
	}
	return out
}

// Merge joins other into l. Commutative, associative, idempotent over the
// three per-item sub-CRDTs and therefore over the whole list (spec
// invariant 1). Name follows "whoever merges last wins" per spec §9 — no
// stronger tie-break is specified.
func (l *ShoppingList) Merge(other *ShoppingList) {
	if other == nil {
		return
	}
	if other.Clock > l.Clock {
		l.Clock = other.Clock
	}
	if other.Name != "" {
		l.Name = other.Name
	}
	l.ensureItems()
	for name, otherItem := range other.Items {
		item, ok := l.Items[name]
		if !ok {
			item = newItem()
		}
		item.Needed.Merge(otherItem.Needed)
		item.Acquired.Merge(otherItem.Acquired)
		item.Existence.Merge(otherItem.Existence)
		l.Items[name] = item
	}
}

// Clone returns a deep copy.
func (l *ShoppingList) Clone() *ShoppingList {
	items := make(map[string]Item, len(l.Items))
	for name, item := range l.Items {
		items[name] = item.clone()
	}
	return &ShoppingList{UUID: l.UUID, Name: l.Name, Clock: l.Clock, Items: items}
}

// wireShoppingList is the canonical on-the-wire shape from spec §4.1.
type wireShoppingList struct {
	UUID  string          `json:"uuid"`
	Name  string          `json:"name"`
	Clock uint64          `json:"clock"`
	Items map[string]Item `json:"items"`
}

// Serialize encodes the list in the canonical wire shape.
func (l *ShoppingList) Serialize() ([]byte, error) {
	return json.Marshal(wireShoppingList{UUID: l.UUID, Name: l.Name, Clock: l.Clock, Items: l.Items})
}

// Deserialize decodes the canonical wire shape into a new list. On error it
// returns ErrInvalidState and no partially-built list.
func Deserialize(data []byte) (*ShoppingList, error) {
	var w wireShoppingList
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, ErrInvalidState
	}
	if w.UUID == "" {
		return nil, ErrInvalidState
	}
	if w.Items == nil {
		w.Items = make(map[string]Item)
	}
	return &ShoppingList{UUID: w.UUID, Name: w.Name, Clock: w.Clock, Items: w.Items}, nil
}
