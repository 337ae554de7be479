package crdt

import "encoding/json"

// wireORSet is the canonical on-the-wire shape from spec §4.1: sets become
// lists of [value, tag] pairs so they survive JSON, then are re-hydrated
// without duplicates on the way back in.
type wireORSet struct {
	Elements   [][2]string `json:"elements"`
	Tombstones [][2]string `json:"tombstones"`
}

// MarshalJSON implements the canonical {elements, tombstones} shape.
func (s ORSet) MarshalJSON() ([]byte, error) {
	w := wireORSet{
		Elements:   make([][2]string, 0, len(s.Elements)),
		Tombstones: make([][2]string, 0, len(s.Tombstones)),
	}
	for t := range s.Elements {
		w.Elements = append(w.Elements, [2]string{t.Value, t.Tag})
	}
	for t := range s.Tombstones {
		w.Tombstones = append(w.Tombstones, [2]string{t.Value, t.Tag})
	}
	return json.Marshal(w)
}

// UnmarshalJSON rebuilds the set from the wire shape, deduplicating tuples.
func (s *ORSet) UnmarshalJSON(data []byte) error {
	var w wireORSet
	if err := json.Unmarshal(data, &w); err != nil {
		return ErrInvalidState
	}
	elements := make(map[Tuple]struct{}, len(w.Elements))
	for _, pair := range w.Elements {
		elements[Tuple{Value: pair[0], Tag: pair[1]}] = struct{}{}
	}
	tombstones := make(map[Tuple]struct{}, len(w.Tombstones))
	for _, pair := range w.Tombstones {
		tombstones[Tuple{Value: pair[0], Tag: pair[1]}] = struct{}{}
	}
	s.Elements = elements
	s.Tombstones = tombstones
	return nil
}
