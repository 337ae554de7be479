package crdt

import "github.com/google/uuid"

// Tuple is a single OR-Set element: a value paired with a unique tag. Two
// adds of the same value never collide because each gets a fresh tag.
type Tuple struct {
	Value string
	Tag   string
}

// ORSet is an observed-removed set: add-wins on concurrent add/remove of the
// same value, because remove only tombstones the tuples it has actually
// observed — a concurrent add carries a tag the remover never saw.
type ORSet struct {
	Elements   map[Tuple]struct{}
	Tombstones map[Tuple]struct{}
}

// NewORSet returns an empty set.
func NewORSet() ORSet {
	return ORSet{
		Elements:   make(map[Tuple]struct{}),
		Tombstones: make(map[Tuple]struct{}),
	}
}

// NewTag mints a fresh, globally unique tag for an Add.
func NewTag() string {
	return uuid.New().String()
}

// Add inserts (value, tag) as a live element.
func (s *ORSet) Add(value, tag string) {
	if s.Elements == nil {
		s.Elements = make(map[Tuple]struct{})
	}
	s.Elements[Tuple{Value: value, Tag: tag}] = struct{}{}
}

// Remove moves every currently-live tuple for value into the tombstone set.
// A concurrent add elsewhere with a tag this replica has not observed yet is
// untouched — it resurrects the value once merged in.
func (s *ORSet) Remove(value string) {
	if s.Tombstones == nil {
		s.Tombstones = make(map[Tuple]struct{})
	}
	for t := range s.Elements {
		if t.Value == value {
			s.Tombstones[t] = struct{}{}
			delete(s.Elements, t)
		}
	}
}

// Contains reports whether value has at least one live, non-tombstoned tuple.
func (s ORSet) Contains(value string) bool {
	for t := range s.Elements {
		if t.Value == value {
			if _, dead := s.Tombstones[t]; !dead {
				return true
			}
		}
	}
	return false
}

// Merge unions elements and tombstones, then removes any element tuple that
// is also a tombstone. Commutative, associative, idempotent.
func (s *ORSet) Merge(other ORSet) {
	if s.Elements == nil {
		s.Elements = make(map[Tuple]struct{})
	}
	if s.Tombstones == nil {
		s.Tombstones = make(map[Tuple]struct{})
	}
	for t := range other.Elements {
		s.Elements[t] = struct{}{}
	}
	for t := range other.Tombstones {
		s.Tombstones[t] = struct{}{}
	}
	for t := range s.Tombstones {
		delete(s.Elements, t)
	}
}

// Clone returns a deep copy.
func (s ORSet) Clone() ORSet {
	elements := make(map[Tuple]struct{}, len(s.Elements))
	for t := range s.Elements {
		elements[t] = struct{}{}
	}
	tombstones := make(map[Tuple]struct{}, len(s.Tombstones))
	for t := range s.Tombstones {
		tombstones[t] = struct{}{}
	}
	return ORSet{Elements: elements, Tombstones: tombstones}
}
