package registry

import (
	"fmt"

	"github.com/Carmen-Shannon/oxide-go/common"
)

// Handle is an opaque, generation-checked index into a Registry. Identity is
// structural (slot index + generation), never pointer identity: a handle to a
// freed slot fails every lookup with ErrInvalidHandle instead of aliasing a
// reused slot. The zero Handle is invalid.
//
// Handles are plain comparable values and may be copied freely; copying a
// Handle does not affect the record's reference count. Reference counting is
// the job of the front types in the gpu package, which call Retain and
// Release explicitly.
type Handle struct {
	// index encodes the shard and slot position of the record.
	index uint32

	// generation is the slot generation the handle was issued for.
	generation uint32

	// kind is the resource kind of the record, carried on the handle so
	// commands can be validated without a registry lookup.
	kind common.ResourceKind
}

// Valid reports whether the handle was issued by a Registry. A valid handle
// may still fail lookups if its record has since been destroyed.
//
// Returns:
//   - bool: true if the handle is non-zero
func (h Handle) Valid() bool {
	return h.generation != 0
}

// Kind returns the resource kind the handle refers to.
//
// Returns:
//   - common.ResourceKind: the record's kind
func (h Handle) Kind() common.ResourceKind {
	return h.kind
}

// String returns a debug representation of the handle.
//
// Returns:
//   - string: "<kind>#<index>@<generation>"
func (h Handle) String() string {
	if !h.Valid() {
		return "invalid_handle"
	}
	return fmt.Sprintf("%s#%d@%d", h.kind, h.index, h.generation)
}
