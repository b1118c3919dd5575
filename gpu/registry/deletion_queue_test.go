package registry_test

import (
	"testing"

	"github.com/Carmen-Shannon/oxide-go/gpu/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainDefersUnretiredEpochs(t *testing.T) {
	reg := registry.NewRegistry()
	rec := newBuffer("in-flight")
	h, err := reg.Insert(rec)
	require.NoError(t, err)

	rec.MarkUsed(3)
	reg.Release(h)

	// Epoch 3 has not retired yet, so the record must survive the drain.
	assert.Equal(t, 0, reg.DrainDeletions(2))
	assert.Equal(t, 1, reg.PendingDeletions())
	_, err = reg.Get(h)
	assert.NoError(t, err)

	assert.Equal(t, 1, reg.DrainDeletions(3))
	assert.Equal(t, 0, reg.PendingDeletions())
	_, err = reg.Get(h)
	assert.ErrorIs(t, err, registry.ErrInvalidHandle)
}

func TestDrainIsIdempotent(t *testing.T) {
	reg := registry.NewRegistry()
	h, err := reg.Insert(newBuffer("gone"))
	require.NoError(t, err)

	reg.Release(h)
	assert.Equal(t, 1, reg.DrainDeletions(0))
	assert.Equal(t, 0, reg.DrainDeletions(0))
	assert.Equal(t, 0, reg.DrainDeletions(0))
}

// A descriptor set retains its layout and every bound resource; destroying
// the set drops those references, and when that leaves a resource at zero the
// same drain pass destroys it too.
func TestDrainCascadesThroughDescriptorSet(t *testing.T) {
	reg := registry.NewRegistry()

	buf, err := reg.Insert(newBuffer("uniforms"))
	require.NoError(t, err)
	layout, err := reg.Insert(registry.NewLayoutRecord("layout", &registry.LayoutRecord{}))
	require.NoError(t, err)

	// The set's ownership share of its layout and bound buffer.
	reg.Retain(buf)
	reg.Retain(layout)
	set, err := reg.Insert(registry.NewSetRecord("set", &registry.SetRecord{
		Layout: layout,
		Bound:  map[uint32][]registry.Handle{0: {buf}},
	}))
	require.NoError(t, err)

	// Drop the user references; the set keeps both alive.
	reg.Release(buf)
	reg.Release(layout)
	assert.Equal(t, 0, reg.PendingDeletions())

	reg.Release(set)
	assert.Equal(t, 3, reg.DrainDeletions(0))
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 0, reg.PendingDeletions())
}

func TestDrainCascadeHonorsEpochs(t *testing.T) {
	reg := registry.NewRegistry()

	bufRec := newBuffer("uniforms")
	buf, err := reg.Insert(bufRec)
	require.NoError(t, err)
	layout, err := reg.Insert(registry.NewLayoutRecord("layout", &registry.LayoutRecord{}))
	require.NoError(t, err)

	reg.Retain(buf)
	reg.Retain(layout)
	setRec := registry.NewSetRecord("set", &registry.SetRecord{
		Layout: layout,
		Bound:  map[uint32][]registry.Handle{0: {buf}},
	})
	set, err := reg.Insert(setRec)
	require.NoError(t, err)

	reg.Release(buf)
	reg.Release(layout)

	setRec.MarkUsed(5)
	bufRec.MarkUsed(5)
	reg.Release(set)

	assert.Equal(t, 0, reg.DrainDeletions(4))
	assert.Equal(t, 1, reg.PendingDeletions())

	assert.Equal(t, 3, reg.DrainDeletions(5))
	assert.Equal(t, 0, reg.Len())
}
