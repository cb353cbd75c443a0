package observer

import "sync"

// Tracker remembers the last sequence number seen from each beacon.
type Tracker struct {
	mu   sync.Mutex
	last map[string]uint8
}

// NewTracker starts from seed, usually the sequences already stored.
func NewTracker(seed map[string]uint8) *Tracker {
	last := make(map[string]uint8, len(seed))
	for addr, seq := range seed {
		last[addr] = seq
	}
	return &Tracker{last: last}
}

// Observe records seq for addr. A repeat of the last sequence is a
// duplicate; otherwise missed counts the sequence numbers skipped since,
// modulo 256. The first sighting of a beacon never counts as missed.
func (t *Tracker) Observe(addr string, seq uint8) (missed int, duplicate bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.last[addr]
	if ok && last == seq {
		return 0, true
	}
	t.last[addr] = seq
	if !ok {
		return 0, false
	}
	return int(seq - last - 1), false
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}
