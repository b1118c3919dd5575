package gpu_test

import (
	"testing"

	"github.com/Carmen-Shannon/oxide-go/common"
	"github.com/Carmen-Shannon/oxide-go/gpu"
	"github.com/Carmen-Shannon/oxide-go/gpu/command"
	"github.com/Carmen-Shannon/oxide-go/gpu/registry"
	"github.com/Carmen-Shannon/oxide-go/gpu/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRenderSource = `
@vertex
fn vs_main(@builtin(vertex_index) index: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0, 0.0, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.0, 1.0, 1.0);
}
`

// A single host write to a fresh buffer schedules
// exactly one command beyond the creation, zero barriers, and the bytes land
// in the destination through a staging buffer of exactly the data size.
func TestExecuteStagedWriteRoundTrip(t *testing.T) {
	q, driver := newTestQueue(t)
	exec := gpu.NewCommandExecutor(q, driver)

	buf, err := q.CreateBuffer("storage", 4096, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	require.NoError(t, err)

	data := make([]byte, 128)
	for i := range data {
		data[i] = byte(i)
	}
	q.WriteBuffer(buf, 0, data)

	encoder := newFakeEncoder(driver)
	tr, err := exec.Execute(encoder)
	require.NoError(t, err)

	assert.Equal(t, 2, tr.Stats.Commands) // creation + write
	assert.Equal(t, 0, tr.Stats.Barriers)
	assert.Equal(t, uint64(128), tr.Stats.StagingBytes)
	assert.True(t, encoder.finished)

	rec, err := q.Registry().Get(buf.Handle())
	require.NoError(t, err)
	assert.Equal(t, data, driver.contents[rec.Buffer][:128])
	assert.Equal(t, common.AccessState{
		Access: common.AccessTransferWrite,
		Stage:  common.StageTransfer,
	}, rec.AccessState(0))
	assert.Equal(t, uint64(1), tr.Epoch)
	assert.Equal(t, uint64(1), exec.Epoch())
}

func TestExecuteDirectWriteForHostVisible(t *testing.T) {
	q, driver := newTestQueue(t)
	exec := gpu.NewCommandExecutor(q, driver)

	buf, err := q.CreateBuffer("upload", 64, wgpu.BufferUsageMapWrite|wgpu.BufferUsageCopyDst)
	require.NoError(t, err)
	assert.True(t, buf.HostVisible())

	data := []byte{9, 8, 7, 6}
	q.WriteBuffer(buf, 4, data)

	tr, err := exec.Execute(newFakeEncoder(driver))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), tr.Stats.StagingBytes)

	rec, err := q.Registry().Get(buf.Handle())
	require.NoError(t, err)
	assert.Equal(t, data, driver.contents[rec.Buffer][4:8])
}

// A write recorded after another command used the destination cannot go out
// as a queue write, because queue writes land before the submitted command
// buffer. The scheduler stages it instead, preserving the recorded order.
func TestExecuteStagesDirectWriteAfterPriorUse(t *testing.T) {
	q, driver := newTestQueue(t)
	exec := gpu.NewCommandExecutor(q, driver)

	src, err := q.CreateBuffer("upload", 64, wgpu.BufferUsageMapWrite|wgpu.BufferUsageCopySrc|wgpu.BufferUsageCopyDst)
	require.NoError(t, err)
	dst, err := q.CreateBuffer("dst", 64, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	require.NoError(t, err)

	q.WriteBuffer(src, 0, make([]byte, 64))
	q.CopyBufferToBuffer(src, 0, dst, 0, 64)
	q.WriteBuffer(src, 0, []byte{4, 5, 6, 7})

	tr, err := exec.Execute(newFakeEncoder(driver))
	require.NoError(t, err)

	// The first write stays direct; the one after the copy goes via staging.
	assert.Equal(t, uint64(4), tr.Stats.StagingBytes)

	srcRec, err := q.Registry().Get(src.Handle())
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5, 6, 7}, driver.contents[srcRec.Buffer][:4])
}

// Mutating the caller's slice after recording must not change what reaches
// the destination: the queue copies the bytes at record time.
func TestWriteBufferDetachesFromCallerSlice(t *testing.T) {
	q, driver := newTestQueue(t)
	exec := gpu.NewCommandExecutor(q, driver)

	buf, err := q.CreateBuffer("upload", 64, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	require.NoError(t, err)

	data := []byte{1, 2, 3, 4}
	q.WriteBuffer(buf, 0, data)
	for i := range data {
		data[i] = 0xFF
	}

	_, err = exec.Execute(newFakeEncoder(driver))
	require.NoError(t, err)

	rec, err := q.Registry().Get(buf.Handle())
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, driver.contents[rec.Buffer][:4])
}

func TestExecuteEmitsBarrierBetweenWriteAndCopy(t *testing.T) {
	q, driver := newTestQueue(t)
	exec := gpu.NewCommandExecutor(q, driver)

	src, err := q.CreateBuffer("src", 256, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst|wgpu.BufferUsageCopySrc)
	require.NoError(t, err)
	dst, err := q.CreateBuffer("dst", 256, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	require.NoError(t, err)

	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(255 - i)
	}
	q.WriteBuffer(src, 0, payload)
	q.CopyBufferToBuffer(src, 0, dst, 0, 256)

	encoder := newFakeEncoder(driver)
	tr, err := exec.Execute(encoder)
	require.NoError(t, err)

	assert.Equal(t, 1, tr.Stats.Barriers)
	assert.Contains(t, encoder.ops, "barrier src mip=0")

	dstRec, err := q.Registry().Get(dst.Handle())
	require.NoError(t, err)
	assert.Equal(t, payload, driver.contents[dstRec.Buffer])
}

func TestExecuteMaterializesInRecordedOrder(t *testing.T) {
	q, driver := newTestQueue(t)
	exec := gpu.NewCommandExecutor(q, driver)

	layout, err := q.CreateDescriptorSetLayout("frame", []registry.LayoutBinding{
		{Binding: 0, Kind: common.BindingKindUniformBuffer, Visibility: common.StageVertexShader, Count: 1},
	})
	require.NoError(t, err)
	uniforms, err := q.CreateBuffer("uniforms", 256, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	require.NoError(t, err)
	_, err = q.CreateDescriptorSet("frame", layout, map[uint32][]gpu.Resource{0: {uniforms}})
	require.NoError(t, err)

	_, err = exec.Execute(newFakeEncoder(driver))
	require.NoError(t, err)

	assert.Equal(t, []string{"layout frame", "buffer uniforms", "set frame"}, driver.materialized)
}

func TestExecuteComputePassFlow(t *testing.T) {
	q, driver := newTestQueue(t)
	exec := gpu.NewCommandExecutor(q, driver)

	values, err := q.CreateBuffer("values", 1024, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	require.NoError(t, err)
	layout, err := q.CreateDescriptorSetLayout("data", []registry.LayoutBinding{
		{Binding: 0, Kind: common.BindingKindStorageBuffer, Visibility: common.StageComputeShader, Count: 1},
	})
	require.NoError(t, err)
	set, err := q.CreateDescriptorSet("data", layout, map[uint32][]gpu.Resource{0: {values}})
	require.NoError(t, err)
	pipe, err := q.CreatePipeline(gpu.PipelineDescriptor{
		Label:   "double",
		Compute: mustModule(t, "double", shader.ShaderTypeCompute, testComputeSource),
		Layouts: []gpu.DescriptorSetLayout{layout},
	})
	require.NoError(t, err)

	q.WriteBuffer(values, 0, make([]byte, 1024))
	q.RunComputePass("double").Dispatch(gpu.DispatchDescriptor{
		Pipeline:   pipe,
		Sets:       []gpu.DescriptorSet{set},
		Workgroups: [3]uint32{4, 1, 1},
	}).End()

	encoder := newFakeEncoder(driver)
	tr, err := exec.Execute(encoder)
	require.NoError(t, err)

	// The dispatch reads and writes the buffer the preceding write targeted,
	// so exactly one barrier separates the upload from the pass.
	assert.Equal(t, 1, tr.Stats.Barriers)

	var passOps []string
	for _, op := range encoder.ops {
		if op == "begin_compute_pass double" || passOps != nil {
			passOps = append(passOps, op)
			if op == "end_compute_pass" {
				break
			}
		}
	}
	assert.Equal(t, []string{
		"begin_compute_pass double",
		"bind_compute_pipeline",
		"bind_set 0",
		"dispatch 4,1,1",
		"end_compute_pass",
	}, passOps)
}

func TestExecuteRenderPassFlow(t *testing.T) {
	q, driver := newTestQueue(t)
	exec := gpu.NewCommandExecutor(q, driver)

	target, err := q.CreateTexture(gpu.TextureDescriptor{
		Label: "color", Width: 128, Height: 128,
		Format: wgpu.TextureFormatRGBA8Unorm,
		Usage:  wgpu.TextureUsageRenderAttachment,
	})
	require.NoError(t, err)
	pipe, err := q.CreatePipeline(gpu.PipelineDescriptor{
		Label:        "tri",
		Vertex:       mustModule(t, "tri_vert", shader.ShaderTypeVertex, testRenderSource),
		Fragment:     mustModule(t, "tri_frag", shader.ShaderTypeFragment, testRenderSource),
		ColorFormats: []wgpu.TextureFormat{wgpu.TextureFormatRGBA8Unorm},
	})
	require.NoError(t, err)

	q.RunRenderPass(gpu.RenderPassDescriptor{
		Label: "main",
		ColorAttachments: []gpu.ColorTarget{{
			Texture: target,
			LoadOp:  wgpu.LoadOpClear,
			StoreOp: wgpu.StoreOpStore,
		}},
	}).Draw(gpu.DrawDescriptor{
		Pipeline:    pipe,
		VertexCount: 3,
	}).End()

	encoder := newFakeEncoder(driver)
	_, err = exec.Execute(encoder)
	require.NoError(t, err)

	assert.Contains(t, encoder.ops, "begin_render_pass main")
	assert.Contains(t, encoder.ops, "draw 3")
	assert.Contains(t, encoder.ops, "end_render_pass")
}

// Depth-only pipelines carry no fragment module; creation and
// materialization accept the nil Fragment.
func TestExecuteMaterializesDepthOnlyPipeline(t *testing.T) {
	q, driver := newTestQueue(t)
	exec := gpu.NewCommandExecutor(q, driver)

	pipe, err := q.CreatePipeline(gpu.PipelineDescriptor{
		Label:             "shadow",
		Vertex:            mustModule(t, "shadow_vert", shader.ShaderTypeVertex, testRenderSource),
		DepthFormat:       wgpu.TextureFormatDepth32Float,
		DepthWriteEnabled: true,
	})
	require.NoError(t, err)

	rec, err := q.Registry().Get(pipe.Handle())
	require.NoError(t, err)
	assert.Equal(t, registry.PipelineKindRender, rec.Pipeline.Kind)
	assert.Nil(t, rec.Pipeline.Fragment)

	_, err = exec.Execute(newFakeEncoder(driver))
	require.NoError(t, err)
	assert.Contains(t, driver.materialized, "pipeline shadow")
}

func TestDestroyGatesOnEpoch(t *testing.T) {
	q, driver := newTestQueue(t)
	exec := gpu.NewCommandExecutor(q, driver)

	buf, err := q.CreateBuffer("frame-local", 64, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	require.NoError(t, err)
	tr1, err := exec.Execute(newFakeEncoder(driver))
	require.NoError(t, err)

	// The buffer is used again by epoch 2, then released.
	q.WriteBuffer(buf, 0, make([]byte, 8))
	tr2, err := exec.Execute(newFakeEncoder(driver))
	require.NoError(t, err)
	buf.Release()

	// Retiring epoch 1 must not destroy a record epoch 2 still uses.
	exec.Destroy(tr1)
	_, err = q.Registry().Get(buf.Handle())
	assert.NoError(t, err)

	exec.Destroy(tr2)
	_, err = q.Registry().Get(buf.Handle())
	assert.ErrorIs(t, err, registry.ErrInvalidHandle)
}

func TestCleanupIsIdempotent(t *testing.T) {
	q, driver := newTestQueue(t)
	exec := gpu.NewCommandExecutor(q, driver)

	buf, err := q.CreateBuffer("gone", 64, wgpu.BufferUsageStorage)
	require.NoError(t, err)
	tr, err := exec.Execute(newFakeEncoder(driver))
	require.NoError(t, err)
	buf.Release()

	assert.Equal(t, 1, exec.Cleanup(tr.Epoch))
	assert.Equal(t, 0, exec.Cleanup(tr.Epoch))
}

func TestRecordConcurrentKeepsPerGoroutineOrder(t *testing.T) {
	q, _ := newTestQueue(t, gpu.WithRecordWorkers(4))

	buffers := make([]gpu.Buffer, 4)
	for i := range buffers {
		buf, err := q.CreateBuffer("lane", 1024, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
		require.NoError(t, err)
		buffers[i] = buf
	}
	q.Recorder().Drain()

	fns := make([]func(), len(buffers))
	for i, buf := range buffers {
		bufCap := buf
		fns[i] = func() {
			for step := uint64(0); step < 8; step++ {
				q.WriteBuffer(bufCap, step*16, make([]byte, 16))
			}
		}
	}
	q.RecordConcurrent(fns...)

	_, main := q.Recorder().Drain()
	require.Len(t, main, len(buffers)*8)

	// Each lane's writes keep their recorded order; interleaving across
	// lanes is unspecified.
	lastOffset := make(map[registry.Handle]int64)
	for _, cmd := range main {
		wb := cmd.(command.WriteBuffer)
		if prev, ok := lastOffset[wb.Dst]; ok {
			assert.Greater(t, int64(wb.Offset), prev)
		}
		lastOffset[wb.Dst] = int64(wb.Offset)
	}
	assert.Len(t, lastOffset, len(buffers))
}
