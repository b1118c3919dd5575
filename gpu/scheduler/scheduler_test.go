package scheduler_test

import (
	"testing"

	"github.com/Carmen-Shannon/oxide-go/common"
	"github.com/Carmen-Shannon/oxide-go/gpu/command"
	"github.com/Carmen-Shannon/oxide-go/gpu/registry"
	"github.com/Carmen-Shannon/oxide-go/gpu/scheduler"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertBuffer(t *testing.T, reg *registry.Registry, label string, size uint64) registry.Handle {
	t.Helper()
	h, err := reg.Insert(registry.NewBufferRecord(label, &registry.BufferRecord{Size: size}))
	require.NoError(t, err)
	return h
}

func insertTexture(t *testing.T, reg *registry.Registry, label string, mips uint32) registry.Handle {
	t.Helper()
	h, err := reg.Insert(registry.NewTextureRecord(label, &registry.TextureRecord{
		Width:     256,
		Height:    256,
		MipLevels: mips,
		Format:    wgpu.TextureFormatRGBA8Unorm,
	}))
	require.NoError(t, err)
	return h
}

func barriers(steps []scheduler.Step) []scheduler.BarrierStep {
	var out []scheduler.BarrierStep
	for _, s := range steps {
		if b, ok := s.(scheduler.BarrierStep); ok {
			out = append(out, b)
		}
	}
	return out
}

func commands(steps []scheduler.Step) []scheduler.CommandStep {
	var out []scheduler.CommandStep
	for _, s := range steps {
		if c, ok := s.(scheduler.CommandStep); ok {
			out = append(out, c)
		}
	}
	return out
}

// A first write to an untouched buffer needs nothing to order against: one
// command step, no barriers, and the registry records the transfer write.
func TestScheduleFirstWriteNoBarrier(t *testing.T) {
	reg := registry.NewRegistry()
	buf := insertBuffer(t, reg, "storage", 4096)

	steps, err := scheduler.Schedule(nil, []command.Command{
		command.WriteBuffer{Dst: buf, Data: make([]byte, 128), ViaStaging: true},
	}, reg, 1)
	require.NoError(t, err)

	assert.Len(t, commands(steps), 1)
	assert.Empty(t, barriers(steps))

	rec, err := reg.Get(buf)
	require.NoError(t, err)
	assert.Equal(t, common.AccessState{
		Access: common.AccessTransferWrite,
		Stage:  common.StageTransfer,
	}, rec.AccessState(0))
	assert.Equal(t, uint64(1), rec.LastUsedEpoch())
}

func TestScheduleBarrierBetweenConflictingAccesses(t *testing.T) {
	reg := registry.NewRegistry()
	src := insertBuffer(t, reg, "src", 256)
	dst := insertBuffer(t, reg, "dst", 256)

	steps, err := scheduler.Schedule(nil, []command.Command{
		command.WriteBuffer{Dst: src, Data: make([]byte, 256), ViaStaging: true},
		command.CopyBufferToBuffer{Src: src, Dst: dst, Size: 256},
	}, reg, 1)
	require.NoError(t, err)

	// The copy's read of src follows its write, so exactly one barrier sits
	// between the two command steps.
	bs := barriers(steps)
	require.Len(t, bs, 1)
	assert.Equal(t, src, bs[0].Target)
	assert.Equal(t, common.AccessTransferWrite, bs[0].Old.Access)
	assert.Equal(t, common.AccessTransferRead, bs[0].New.Access)

	require.Len(t, steps, 3)
	assert.IsType(t, scheduler.CommandStep{}, steps[0])
	assert.IsType(t, scheduler.BarrierStep{}, steps[1])
	assert.IsType(t, scheduler.CommandStep{}, steps[2])
}

func TestScheduleReadReadMergesWithoutBarrier(t *testing.T) {
	reg := registry.NewRegistry()
	src := insertBuffer(t, reg, "src", 256)
	a := insertBuffer(t, reg, "a", 256)
	b := insertBuffer(t, reg, "b", 256)

	steps, err := scheduler.Schedule(nil, []command.Command{
		command.CopyBufferToBuffer{Src: src, Dst: a, Size: 256},
		command.CopyBufferToBuffer{Src: src, Dst: b, Size: 256},
	}, reg, 1)
	require.NoError(t, err)

	// Both copies read src; read-read never synchronizes.
	assert.Empty(t, barriers(steps))
	assert.Len(t, commands(steps), 2)
}

func TestScheduleTextureMipsTrackedIndependently(t *testing.T) {
	reg := registry.NewRegistry()
	tex := insertTexture(t, reg, "mipped", 4)

	data := make([]byte, 256*256*4)
	steps, err := scheduler.Schedule(nil, []command.Command{
		command.WriteTexture{Dst: tex, MipLevel: 0, Data: data, BytesPerRow: 256 * 4, RowsPerImage: 256},
		command.WriteTexture{Dst: tex, MipLevel: 1, Data: data[:128*128*4], BytesPerRow: 128 * 4, RowsPerImage: 128},
	}, reg, 1)
	require.NoError(t, err)
	assert.Empty(t, barriers(steps))

	// Writing the same mip twice is a write-write conflict on one cell.
	steps, err = scheduler.Schedule(nil, []command.Command{
		command.WriteTexture{Dst: tex, MipLevel: 2, Data: data[:64*64*4], BytesPerRow: 64 * 4, RowsPerImage: 64},
		command.WriteTexture{Dst: tex, MipLevel: 2, Data: data[:64*64*4], BytesPerRow: 64 * 4, RowsPerImage: 64},
	}, reg, 2)
	require.NoError(t, err)
	bs := barriers(steps)
	require.Len(t, bs, 1)
	assert.Equal(t, common.SubresourceRange{BaseMipLevel: 2, MipLevelCount: 1}, bs[0].Range)
}

func TestScheduleForcedTransitionBarriersOnStateChange(t *testing.T) {
	reg := registry.NewRegistry()
	buf := insertBuffer(t, reg, "seeded", 256)

	rec, err := reg.Get(buf)
	require.NoError(t, err)
	rec.SetAccessState(0, common.AccessState{
		Access: common.AccessShaderRead,
		Stage:  common.StageFragmentShader,
	})

	// Read-to-read would normally merge, but an explicit transition forces
	// the barrier on any state difference.
	steps, err := scheduler.Schedule(nil, []command.Command{
		command.Transition{
			Target: buf,
			Range:  common.WholeResource(),
			Access: common.AccessShaderRead,
			Stage:  common.StageComputeShader,
		},
	}, reg, 1)
	require.NoError(t, err)

	bs := barriers(steps)
	require.Len(t, bs, 1)
	assert.Equal(t, common.StageFragmentShader|common.StageComputeShader, bs[0].StageSpan())
}

func TestScheduleForcedTransitionNoBarrierWhenUnchanged(t *testing.T) {
	reg := registry.NewRegistry()
	buf := insertBuffer(t, reg, "steady", 256)

	rec, err := reg.Get(buf)
	require.NoError(t, err)
	state := common.AccessState{Access: common.AccessShaderRead, Stage: common.StageComputeShader}
	rec.SetAccessState(0, state)

	steps, err := scheduler.Schedule(nil, []command.Command{
		command.Transition{Target: buf, Range: common.WholeResource(), Access: state.Access, Stage: state.Stage},
	}, reg, 1)
	require.NoError(t, err)
	assert.Empty(t, barriers(steps))
}

// Driver queue writes execute before the submitted command buffer, so a
// direct host write recorded after another command touched the destination
// must be rerouted through staging to keep its recorded position.
func TestScheduleDirectWriteAfterPriorUseGoesViaStaging(t *testing.T) {
	reg := registry.NewRegistry()
	src := insertBuffer(t, reg, "upload", 256)
	dst := insertBuffer(t, reg, "dst", 256)

	steps, err := scheduler.Schedule(nil, []command.Command{
		command.CopyBufferToBuffer{Src: src, Dst: dst, Size: 256},
		command.WriteBuffer{Dst: src, Data: make([]byte, 16)},
	}, reg, 1)
	require.NoError(t, err)

	cs := commands(steps)
	require.Len(t, cs, 2)
	wb := cs[1].Command.(command.WriteBuffer)
	assert.True(t, wb.ViaStaging)

	// A destination nothing has touched yet keeps the cheap direct path.
	fresh := insertBuffer(t, reg, "fresh", 256)
	steps, err = scheduler.Schedule(nil, []command.Command{
		command.WriteBuffer{Dst: fresh, Data: make([]byte, 16)},
	}, reg, 2)
	require.NoError(t, err)
	wb = commands(steps)[0].Command.(command.WriteBuffer)
	assert.False(t, wb.ViaStaging)
}

func TestScheduleForcedTransitionNoBarrierOnIdenticalWriteState(t *testing.T) {
	reg := registry.NewRegistry()
	buf := insertBuffer(t, reg, "written", 256)

	state := common.AccessState{Access: common.AccessShaderWrite, Stage: common.StageComputeShader}
	rec, err := reg.Get(buf)
	require.NoError(t, err)
	rec.SetAccessState(0, state)

	// Write states never merge, but a forced transition that changes nothing
	// has nothing to synchronize.
	steps, err := scheduler.Schedule(nil, []command.Command{
		command.Transition{Target: buf, Range: common.WholeResource(), Access: state.Access, Stage: state.Stage},
	}, reg, 1)
	require.NoError(t, err)
	assert.Empty(t, barriers(steps))
}

func TestScheduleBindingBarriersFollowBindingOrder(t *testing.T) {
	reg := registry.NewRegistry()
	a := insertBuffer(t, reg, "a", 256)
	b := insertBuffer(t, reg, "b", 256)
	for _, h := range []registry.Handle{a, b} {
		rec, err := reg.Get(h)
		require.NoError(t, err)
		rec.SetAccessState(0, common.AccessState{
			Access: common.AccessShaderRead,
			Stage:  common.StageComputeShader,
		})
	}

	pipeline, err := reg.Insert(registry.NewPipelineRecord("scatter", &registry.PipelineRecord{
		Kind: registry.PipelineKindCompute,
		AccessMasks: map[registry.BindingLocation]registry.BindingAccess{
			{Group: 0, Binding: 0}: {Access: common.AccessShaderWrite, Stages: common.StageComputeShader},
			{Group: 0, Binding: 1}: {Access: common.AccessShaderWrite, Stages: common.StageComputeShader},
		},
	}))
	require.NoError(t, err)
	set, err := reg.Insert(registry.NewSetRecord("outputs", &registry.SetRecord{
		Bound: map[uint32][]registry.Handle{0: {a}, 1: {b}},
	}))
	require.NoError(t, err)

	// Both bindings need a read-to-write barrier; the barriers come out in
	// binding order, not map iteration order.
	steps, err := scheduler.Schedule(nil, []command.Command{
		command.ComputePass{
			Dispatches: []command.Dispatch{{Pipeline: pipeline, Sets: []registry.Handle{set}, Workgroups: [3]uint32{1, 1, 1}}},
		},
	}, reg, 1)
	require.NoError(t, err)

	bs := barriers(steps)
	require.Len(t, bs, 2)
	assert.Equal(t, a, bs[0].Target)
	assert.Equal(t, b, bs[1].Target)
}

func TestSchedulePriorityCommandsRunFirst(t *testing.T) {
	reg := registry.NewRegistry()
	buf := insertBuffer(t, reg, "ordered", 256)

	steps, err := scheduler.Schedule(
		[]command.Command{command.Transition{
			Target: buf,
			Range:  common.WholeResource(),
			Access: common.AccessTransferWrite,
			Stage:  common.StageTransfer,
		}},
		[]command.Command{command.WriteBuffer{Dst: buf, Data: make([]byte, 4), ViaStaging: true}},
		reg, 1)
	require.NoError(t, err)

	cs := commands(steps)
	require.Len(t, cs, 2)
	assert.IsType(t, command.Transition{}, cs[0].Command)
	assert.IsType(t, command.WriteBuffer{}, cs[1].Command)
}

func TestScheduleDeadHandleFails(t *testing.T) {
	reg := registry.NewRegistry()
	buf := insertBuffer(t, reg, "doomed", 256)
	reg.Release(buf)
	reg.DrainDeletions(0)

	_, err := scheduler.Schedule(nil, []command.Command{
		command.WriteBuffer{Dst: buf, Data: make([]byte, 4), ViaStaging: true},
	}, reg, 1)
	assert.ErrorIs(t, err, registry.ErrInvalidHandle)
}

// Building the sampled-read render pass and the storage-write compute pass by
// hand: the pipelines carry reflection-derived access masks, the sets bind the
// same texture, and exactly one barrier separates the two passes.
func TestScheduleSampledThenStorageTexture(t *testing.T) {
	reg := registry.NewRegistry()
	tex := insertTexture(t, reg, "shadow", 1)
	target := insertTexture(t, reg, "color", 1)

	renderPipeline, err := reg.Insert(registry.NewPipelineRecord("sample", &registry.PipelineRecord{
		Kind: registry.PipelineKindRender,
		AccessMasks: map[registry.BindingLocation]registry.BindingAccess{
			{Group: 0, Binding: 0}: {Access: common.AccessShaderRead, Stages: common.StageFragmentShader},
		},
	}))
	require.NoError(t, err)
	computePipeline, err := reg.Insert(registry.NewPipelineRecord("blur", &registry.PipelineRecord{
		Kind: registry.PipelineKindCompute,
		AccessMasks: map[registry.BindingLocation]registry.BindingAccess{
			{Group: 0, Binding: 0}: {Access: common.AccessShaderWrite, Stages: common.StageComputeShader},
		},
	}))
	require.NoError(t, err)

	set, err := reg.Insert(registry.NewSetRecord("inputs", &registry.SetRecord{
		Bound: map[uint32][]registry.Handle{0: {tex}},
	}))
	require.NoError(t, err)

	steps, err := scheduler.Schedule(nil, []command.Command{
		command.RenderPass{
			ColorAttachments: []command.ColorAttachment{{Target: target, LoadOp: wgpu.LoadOpClear}},
			Draws:            []command.Draw{{Pipeline: renderPipeline, Sets: []registry.Handle{set}, Kind: command.DrawKindVertices, VertexCount: 3}},
		},
		command.ComputePass{
			Dispatches: []command.Dispatch{{Pipeline: computePipeline, Sets: []registry.Handle{set}, Workgroups: [3]uint32{16, 16, 1}}},
		},
	}, reg, 1)
	require.NoError(t, err)

	bs := barriers(steps)
	require.Len(t, bs, 1)
	assert.Equal(t, tex, bs[0].Target)
	assert.Equal(t, common.AccessShaderRead, bs[0].Old.Access)
	assert.Equal(t, common.AccessShaderWrite, bs[0].New.Access)

	// The barrier sits between the two pass command steps.
	require.Len(t, steps, 3)
	assert.IsType(t, scheduler.CommandStep{}, steps[0])
	assert.IsType(t, scheduler.BarrierStep{}, steps[1])
	assert.IsType(t, scheduler.CommandStep{}, steps[2])
}
