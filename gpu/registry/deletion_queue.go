package registry

import "sync"

// deletionQueue is the concurrent, unordered collection of handles whose
// reference count reached zero. Any number of releasing threads may push;
// the drain is single-consumer and invoked only once the caller has confirmed
// the relevant GPU work has retired.
type deletionQueue struct {
	mu      sync.Mutex
	entries []Handle
}

func (q *deletionQueue) push(h Handle) {
	q.mu.Lock()
	q.entries = append(q.entries, h)
	q.mu.Unlock()
}

func (q *deletionQueue) take() []Handle {
	q.mu.Lock()
	entries := q.entries
	q.entries = nil
	q.mu.Unlock()
	return entries
}

func (q *deletionQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// DrainDeletions destroys every pending-deletion record whose last-used epoch
// is at or below retiredEpoch, removing it from the registry and releasing
// its driver objects. Records used by submissions that have not yet retired
// are re-queued untouched.
//
// Destroying a composite record (descriptor set, pipeline) releases the
// handles it retained, in reverse creation order, which can push further
// entries into the queue; those are consumed in the same pass, so a set whose
// destruction drops the last reference on a buffer destroys the buffer too,
// provided its epoch has retired.
//
// Calling DrainDeletions twice in a row with no intervening resource use is
// idempotent: the second call finds an empty queue and destroys nothing.
//
// Parameters:
//   - retiredEpoch: the highest submission epoch the caller has confirmed retired
//
// Returns:
//   - int: the number of records destroyed
func (r *Registry) DrainDeletions(retiredEpoch uint64) int {
	destroyed := 0
	var deferred []Handle

	for {
		batch := r.deletions.take()
		if len(batch) == 0 {
			break
		}
		for _, h := range batch {
			record, err := r.Get(h)
			if err != nil {
				// The invariant "enqueued exactly once, destroyed at most
				// once" means a queued handle always resolves.
				panic("registry: deletion queue held a dead handle " + h.String())
			}
			if record.LastUsedEpoch() > retiredEpoch {
				deferred = append(deferred, h)
				continue
			}
			refs := record.references()
			r.Remove(h)
			record.destroy()
			destroyed++
			for _, ref := range refs {
				r.Release(ref)
			}
		}
	}

	for _, h := range deferred {
		r.deletions.push(h)
	}
	return destroyed
}
