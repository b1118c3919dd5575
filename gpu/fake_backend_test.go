package gpu_test

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxide-go/common"
	"github.com/Carmen-Shannon/oxide-go/gpu/backend"
	"github.com/Carmen-Shannon/oxide-go/gpu/registry"
	"github.com/cogentcore/webgpu/wgpu"
)

// fakeDriver implements backend.Driver in memory: materialization is a label
// log, staging buffers remember their bytes, and direct writes land in a
// per-record byte slice so tests can assert what reached the "GPU".
type fakeDriver struct {
	mu           sync.Mutex
	materialized []string
	contents     map[*registry.BufferRecord][]byte
	staged       map[*backend.StagingBuffer][]byte
}

var _ backend.Driver = &fakeDriver{}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		contents: make(map[*registry.BufferRecord][]byte),
		staged:   make(map[*backend.StagingBuffer][]byte),
	}
}

func (d *fakeDriver) log(format string, args ...any) {
	d.mu.Lock()
	d.materialized = append(d.materialized, fmt.Sprintf(format, args...))
	d.mu.Unlock()
}

func (d *fakeDriver) MaterializeBuffer(label string, rec *registry.BufferRecord) error {
	d.log("buffer %s", label)
	d.mu.Lock()
	d.contents[rec] = make([]byte, rec.Size)
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) MaterializeTexture(label string, rec *registry.TextureRecord) error {
	d.log("texture %s", label)
	return nil
}

func (d *fakeDriver) MaterializeSampler(label string, rec *registry.SamplerRecord) error {
	d.log("sampler %s", label)
	return nil
}

func (d *fakeDriver) MaterializeLayout(label string, rec *registry.LayoutRecord) error {
	d.log("layout %s", label)
	return nil
}

func (d *fakeDriver) MaterializeSet(label string, rec *registry.SetRecord, layout *registry.LayoutRecord, resolve func(registry.Handle) (*registry.Record, error)) error {
	for _, slots := range rec.Bound {
		for _, h := range slots {
			if _, err := resolve(h); err != nil {
				return err
			}
		}
	}
	d.log("set %s", label)
	return nil
}

func (d *fakeDriver) MaterializePipeline(label string, rec *registry.PipelineRecord, layouts []*registry.LayoutRecord) error {
	d.log("pipeline %s", label)
	return nil
}

func (d *fakeDriver) CreateStagingBuffer(label string, data []byte) (*backend.StagingBuffer, error) {
	staging := &backend.StagingBuffer{Size: uint64(len(data))}
	d.mu.Lock()
	d.staged[staging] = append([]byte(nil), data...)
	d.mu.Unlock()
	return staging, nil
}

func (d *fakeDriver) WriteBuffer(rec *registry.BufferRecord, offset uint64, data []byte) {
	d.mu.Lock()
	copy(d.contents[rec][offset:], data)
	d.mu.Unlock()
}

func (d *fakeDriver) Capabilities(format wgpu.TextureFormat) common.FormatCapabilities {
	return common.FormatCapabilities{
		Usage: wgpu.TextureUsageCopySrc | wgpu.TextureUsageCopyDst |
			wgpu.TextureUsageTextureBinding | wgpu.TextureUsageStorageBinding |
			wgpu.TextureUsageRenderAttachment,
	}
}

func (d *fakeDriver) NewEncoder(label string) (backend.Encoder, error) {
	return newFakeEncoder(d), nil
}

// fakeEncoder logs every call so tests can assert the emitted step order.
type fakeEncoder struct {
	driver   *fakeDriver
	ops      []string
	finished bool
}

var _ backend.Encoder = &fakeEncoder{}

func newFakeEncoder(driver *fakeDriver) *fakeEncoder {
	return &fakeEncoder{driver: driver}
}

func (e *fakeEncoder) op(format string, args ...any) {
	e.ops = append(e.ops, fmt.Sprintf(format, args...))
}

func (e *fakeEncoder) CopyBufferToBuffer(src, dst *registry.BufferRecord, srcOffset, dstOffset, size uint64) {
	e.op("copy_buffer %d", size)
	e.driver.mu.Lock()
	if from, ok := e.driver.contents[src]; ok {
		copy(e.driver.contents[dst][dstOffset:dstOffset+size], from[srcOffset:srcOffset+size])
	}
	e.driver.mu.Unlock()
}

func (e *fakeEncoder) CopyStagingToBuffer(src *backend.StagingBuffer, dst *registry.BufferRecord, dstOffset uint64) {
	e.op("copy_staging_buffer %d", src.Size)
	e.driver.mu.Lock()
	copy(e.driver.contents[dst][dstOffset:], e.driver.staged[src])
	e.driver.mu.Unlock()
}

func (e *fakeEncoder) CopyStagingToTexture(src *backend.StagingBuffer, dst *registry.TextureRecord, mipLevel, bytesPerRow, rowsPerImage uint32) {
	e.op("copy_staging_texture mip=%d", mipLevel)
}

func (e *fakeEncoder) CopyBufferToTexture(src *registry.BufferRecord, srcOffset uint64, bytesPerRow, rowsPerImage uint32, dst *registry.TextureRecord, mipLevel uint32) {
	e.op("copy_buffer_to_texture mip=%d", mipLevel)
}

func (e *fakeEncoder) CopyTextureToTexture(src *registry.TextureRecord, srcMip uint32, dst *registry.TextureRecord, dstMip uint32) {
	e.op("copy_texture mip=%d->%d", srcMip, dstMip)
}

func (e *fakeEncoder) Transition(target *registry.Record, subresources common.SubresourceRange, old, next common.AccessState) {
	e.op("barrier %s mip=%d", target.Label(), subresources.BaseMipLevel)
}

func (e *fakeEncoder) BeginRenderPass(label string, colors []backend.EncoderColorAttachment, depth *backend.EncoderDepthAttachment) error {
	e.op("begin_render_pass %s", label)
	return nil
}

func (e *fakeEncoder) BindRenderPipeline(rec *registry.PipelineRecord) {
	e.op("bind_render_pipeline")
}

func (e *fakeEncoder) BindDescriptorSet(group uint32, rec *registry.SetRecord) {
	e.op("bind_set %d", group)
}

func (e *fakeEncoder) BindVertexBuffer(rec *registry.BufferRecord) {
	e.op("bind_vertex_buffer")
}

func (e *fakeEncoder) BindIndexBuffer(rec *registry.BufferRecord) {
	e.op("bind_index_buffer")
}

func (e *fakeEncoder) PushConstants(pipeline *registry.PipelineRecord, data []byte) {
	e.op("push_constants %d", len(data))
}

func (e *fakeEncoder) Draw(vertexCount, instanceCount uint32) {
	e.op("draw %d", vertexCount)
}

func (e *fakeEncoder) DrawIndexed(indexCount, instanceCount uint32) {
	e.op("draw_indexed %d", indexCount)
}

func (e *fakeEncoder) DrawIndirect(args *registry.BufferRecord, offset uint64) {
	e.op("draw_indirect")
}

func (e *fakeEncoder) EndRenderPass() {
	e.op("end_render_pass")
}

func (e *fakeEncoder) BeginComputePass(label string) {
	e.op("begin_compute_pass %s", label)
}

func (e *fakeEncoder) BindComputePipeline(rec *registry.PipelineRecord) {
	e.op("bind_compute_pipeline")
}

func (e *fakeEncoder) Dispatch(x, y, z uint32) {
	e.op("dispatch %d,%d,%d", x, y, z)
}

func (e *fakeEncoder) DispatchIndirect(args *registry.BufferRecord, offset uint64) {
	e.op("dispatch_indirect")
}

func (e *fakeEncoder) EndComputePass() {
	e.op("end_compute_pass")
}

func (e *fakeEncoder) Finish() error {
	e.finished = true
	return nil
}

func (e *fakeEncoder) Transients() []backend.Transient {
	return nil
}
