package wire

import "time"

// Backoff is a retry schedule: Attempts tries, each with a per-attempt
// timeout that starts at Initial and doubles up to Max. DefaultBackoff
// (1000ms, 2000ms, 4000ms, capped at 8000ms, three attempts) is the schedule
// most callers use (spec §4.4.1, §5); RemoveServerBackoff and the gossiper's
// single 500ms attempt are the exceptions.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// DefaultBackoff is the schedule named throughout the spec.
func DefaultBackoff() Backoff {
	return Backoff{Attempts: 3, Initial: 1000 * time.Millisecond, Max: 8000 * time.Millisecond}
}

// Delay returns the per-attempt timeout for a zero-indexed attempt number,
// doubling from Initial and capping at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	return d
}

// RemoveServerBackoff is the 1s→2s→4s→8s, 4-attempt schedule spec §4.4.7
// names for admin-initiated server removal, distinct from the 3-attempt
// DefaultBackoff used everywhere else: one more doubling so the ladder
// actually reaches its 8s cap instead of topping out at 4s.
func RemoveServerBackoff() Backoff {
	return Backoff{Attempts: 4, Initial: 1000 * time.Millisecond, Max: 8000 * time.Millisecond}
}
