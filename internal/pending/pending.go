// Package pending tracks link creation requests that have been submitted
// to the bridge but not yet confirmed by a LinkAdded event.
//
// The tracker exists to close a race: preset evaluation can run again
// before the service confirms a link, and without the tracker the same
// pair would be requested twice. A pair is added before its command is
// even enqueued, and removed when the confirming LinkAdded arrives or when
// a LinkRemoved for a link with those endpoints fires first.
//
// There is no expiry. A request whose confirmation never arrives leaves
// its entry behind for the rest of the process lifetime; this is accepted
// rather than papered over with a timeout.
package pending

// Pair identifies a requested connection by its two port endpoints.
type Pair struct {
	OutputPortID uint32
	InputPortID  uint32
}

// Tracker is an unordered set of in-flight pairs. It is owned by the
// session goroutine and is not safe for concurrent use.
type Tracker struct {
	pairs map[Pair]struct{}
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{pairs: make(map[Pair]struct{})}
}

// Add marks a pair as in flight. It returns false if the pair was already
// tracked.
func (t *Tracker) Add(p Pair) bool {
	if _, ok := t.pairs[p]; ok {
		return false
	}
	t.pairs[p] = struct{}{}
	return true
}

// Contains reports whether a pair is in flight.
func (t *Tracker) Contains(p Pair) bool {
	_, ok := t.pairs[p]
	return ok
}

// Remove clears a pair. Removing an untracked pair is a no-op; the return
// value reports whether anything was removed.
func (t *Tracker) Remove(p Pair) bool {
	if _, ok := t.pairs[p]; !ok {
		return false
	}
	delete(t.pairs, p)
	return true
}

// Len reports the number of in-flight pairs.
func (t *Tracker) Len() int {
	return len(t.pairs)
}
