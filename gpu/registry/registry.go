// package registry owns every driver-object record behind stable,
// generation-checked integer handles. It is the single point of truth for
// whether a GPU object is still alive: handle front types, the scheduler, and
// the executor all query the registry rather than caching their own liveness
// flags.
//
// Slot storage is sharded so that many threads can validate handles with Get
// while a single writer performs Insert/Remove, the same striped layout used
// for high-concurrency caches.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// shardCount is the number of slot shards. Must be a power of 2 so shard
// selection is a bitwise AND on the handle index.
const shardCount = 16

// shardMask selects the shard bits of a handle index.
const shardMask = shardCount - 1

// shardShift is the number of low bits a handle index devotes to shard selection.
const shardShift = 4

// ErrInvalidHandle is returned by Get when a handle's slot has been freed or
// its generation no longer matches, meaning the resource was destroyed.
var ErrInvalidHandle = errors.New("registry: invalid handle")

// ErrRegistryFull is returned by Insert when the configured allocation limit
// has been reached. This is a recoverable resource-exhaustion failure: the
// caller can release resources, drain deletions, and retry.
var ErrRegistryFull = errors.New("registry: allocation limit reached")

// slot is one entry of a shard's slot table.
type slot struct {
	// generation is incremented every time the slot is freed, invalidating
	// all handles issued for earlier generations.
	generation uint32

	// record is the live record, or nil while the slot is free.
	record *Record
}

// shard is one stripe of the registry's slot storage with its own lock and
// free list.
type shard struct {
	mu    sync.RWMutex
	slots []slot
	free  []uint32
}

// Registry owns all resource records. See the package comment for the
// concurrency contract.
type Registry struct {
	shards [shardCount]shard

	// next round-robins Insert calls across shards.
	next atomic.Uint32

	// count is the number of live records, checked against limit.
	count atomic.Int64

	// limit caps live records; 0 means unlimited.
	limit int64

	// deletions collects handles whose reference count reached zero.
	deletions deletionQueue
}

// RegistryOption is a functional option used to configure a Registry during construction.
type RegistryOption func(*Registry)

// WithAllocationLimit caps the number of live records the registry will hold.
// Insert returns ErrRegistryFull once the limit is reached.
//
// Parameters:
//   - limit: the maximum number of live records; 0 disables the cap
//
// Returns:
//   - RegistryOption: a function that sets the allocation limit
func WithAllocationLimit(limit int) RegistryOption {
	return func(r *Registry) {
		r.limit = int64(limit)
	}
}

// NewRegistry creates an empty registry.
//
// Parameters:
//   - options: a variadic list of options to configure the registry
//
// Returns:
//   - *Registry: the new registry
func NewRegistry(options ...RegistryOption) *Registry {
	r := &Registry{}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Insert adds a record to the registry with reference count 1 and returns its
// handle. Insert never blocks on other shards and never reuses a slot while
// any live handle to its previous occupant exists: freed slots re-enter use
// only with a bumped generation, so stale handles keep failing Get.
//
// Parameters:
//   - record: the record to insert
//
// Returns:
//   - Handle: the generation-checked handle for the record
//   - error: ErrRegistryFull if the allocation limit is reached
func (r *Registry) Insert(record *Record) (Handle, error) {
	// Reserve the slot count up front so racing inserts cannot land past the
	// limit between a check and a later increment.
	if n := r.count.Add(1); r.limit > 0 && n > r.limit {
		r.count.Add(-1)
		return Handle{}, fmt.Errorf("%w (limit %d)", ErrRegistryFull, r.limit)
	}

	shardIdx := r.next.Add(1) & shardMask
	s := &r.shards[shardIdx]

	s.mu.Lock()
	var pos uint32
	if n := len(s.free); n > 0 {
		pos = s.free[n-1]
		s.free = s.free[:n-1]
		s.slots[pos].record = record
	} else {
		pos = uint32(len(s.slots))
		s.slots = append(s.slots, slot{generation: 1, record: record})
	}
	generation := s.slots[pos].generation
	s.mu.Unlock()

	record.refs.Store(1)

	return Handle{
		index:      pos<<shardShift | shardIdx,
		generation: generation,
		kind:       record.kind,
	}, nil
}

// Get resolves a handle to its live record.
//
// Parameters:
//   - h: the handle to resolve
//
// Returns:
//   - *Record: the record, if the handle is still live
//   - error: ErrInvalidHandle if the slot was freed or the generation mismatches
func (r *Registry) Get(h Handle) (*Record, error) {
	if !h.Valid() {
		return nil, fmt.Errorf("%w: zero handle", ErrInvalidHandle)
	}
	s := &r.shards[h.index&shardMask]
	pos := h.index >> shardShift

	s.mu.RLock()
	defer s.mu.RUnlock()
	if pos >= uint32(len(s.slots)) {
		return nil, fmt.Errorf("%w: %s out of range", ErrInvalidHandle, h)
	}
	sl := &s.slots[pos]
	if sl.record == nil || sl.generation != h.generation {
		return nil, fmt.Errorf("%w: %s was destroyed", ErrInvalidHandle, h)
	}
	return sl.record, nil
}

// Retain increments the record's reference count. Retaining a destroyed
// handle is a programmer error and panics.
//
// Parameters:
//   - h: the handle to retain
func (r *Registry) Retain(h Handle) {
	record, err := r.Get(h)
	if err != nil {
		panic(fmt.Sprintf("registry: retain of dead handle %s", h))
	}
	if record.refs.Add(1) <= 1 {
		panic(fmt.Sprintf("registry: retain of %s after its count reached zero", h))
	}
}

// Release decrements the record's reference count with an atomic
// decrement-and-test. When the count reaches zero the handle is pushed into
// the deletion queue exactly once; the record is never destroyed
// synchronously, because the GPU may still be executing commands that
// reference it even though no CPU-side handle remains.
//
// Parameters:
//   - h: the handle to release
func (r *Registry) Release(h Handle) {
	record, err := r.Get(h)
	if err != nil {
		panic(fmt.Sprintf("registry: release of dead handle %s", h))
	}
	switch n := record.refs.Add(-1); {
	case n > 0:
		return
	case n < 0:
		panic(fmt.Sprintf("registry: over-release of %s", h))
	}
	if !record.state.CompareAndSwap(int32(recordStateLive), int32(recordStatePendingDeletion)) {
		panic(fmt.Sprintf("registry: %s reached zero while already pending deletion", h))
	}
	r.deletions.push(h)
}

// Remove frees a handle's slot. Only the deletion drain calls Remove, and
// only for records whose reference count is zero; any other caller indicates
// a defect and Remove panics.
//
// Parameters:
//   - h: the handle to remove
//
// Returns:
//   - *Record: the removed record, ready to be destroyed
func (r *Registry) Remove(h Handle) *Record {
	s := &r.shards[h.index&shardMask]
	pos := h.index >> shardShift

	s.mu.Lock()
	defer s.mu.Unlock()
	if pos >= uint32(len(s.slots)) || s.slots[pos].record == nil || s.slots[pos].generation != h.generation {
		panic(fmt.Sprintf("registry: remove of dead handle %s", h))
	}
	record := s.slots[pos].record
	if record.refs.Load() != 0 {
		panic(fmt.Sprintf("registry: remove of %s with nonzero refcount %d", h, record.refs.Load()))
	}
	s.slots[pos].record = nil
	s.slots[pos].generation++
	s.free = append(s.free, pos)
	r.count.Add(-1)
	return record
}

// Len returns the number of live records.
//
// Returns:
//   - int: the live record count
func (r *Registry) Len() int {
	return int(r.count.Load())
}

// PendingDeletions returns the number of handles currently waiting in the
// deletion queue.
//
// Returns:
//   - int: the queue length
func (r *Registry) PendingDeletions() int {
	return r.deletions.len()
}
