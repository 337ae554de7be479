package crdt

// PNCounter is a pair of G-counters. Observed value is Positive − Negative;
// internal sub-counters are never clamped, so a merge can reveal a larger
// negative than any single replica had observed (spec invariant: displayed
// value is clamped to >= 0, internal state is not).
type PNCounter struct {
	Positive GCounter `json:"positive"`
	Negative GCounter `json:"negative"`
}

// NewPNCounter returns a zero-valued counter.
func NewPNCounter() PNCounter {
	return PNCounter{Positive: NewGCounter(), Negative: NewGCounter()}
}

// Change routes a signed delta into the appropriate sub-counter. A zero delta
// is a no-op.
func (p *PNCounter) Change(actor string, delta int64) {
	switch {
	case delta > 0:
		p.Positive.Increment(actor, uint64(delta))
	case delta < 0:
		p.Negative.Increment(actor, uint64(-delta))
	}
}

// Value returns Positive − Negative, which may be negative.
func (p PNCounter) Value() int64 {
	return int64(p.Positive.Value()) - int64(p.Negative.Value())
}

// Displayed returns Value clamped to zero, the quantity shown to users.
func (p PNCounter) Displayed() int64 {
	v := p.Value()
	if v < 0 {
		return 0
	}
	return v
}

// Merge joins both sub-counters independently.
func (p *PNCounter) Merge(other PNCounter) {
	p.Positive.Merge(other.Positive)
	p.Negative.Merge(other.Negative)
}

// Clone returns a deep copy.
func (p PNCounter) Clone() PNCounter {
	return PNCounter{Positive: p.Positive.Clone(), Negative: p.Negative.Clone()}
}
