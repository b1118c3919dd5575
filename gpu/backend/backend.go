// package backend defines the boundary to the low-level driver: the Driver
// interface that materializes registry records into GPU objects, and the
// Encoder interface the executor emits scheduled steps into. The production
// implementation sits on WebGPU; tests substitute a recording fake.
package backend

import (
	"github.com/Carmen-Shannon/oxide-go/common"
	"github.com/Carmen-Shannon/oxide-go/gpu/registry"
	"github.com/cogentcore/webgpu/wgpu"
)

// Transient is a driver object created implicitly during encoding (staging
// buffers, push-constant scratch allocations) that must be kept alive until
// the submitted GPU work has retired, then released.
type Transient interface {
	// Release frees the underlying driver object.
	Release()
}

// StagingBuffer is a temporary host-visible buffer used to shuttle data into
// a destination resource that cannot be written directly from host memory.
type StagingBuffer struct {
	// Size is the staging buffer size in bytes, exactly the length of the
	// data it was created for.
	Size uint64

	// Driver is the underlying driver buffer, or nil under a fake driver.
	Driver *wgpu.Buffer
}

// Release frees the underlying driver buffer.
func (s *StagingBuffer) Release() {
	if s.Driver != nil {
		s.Driver.Release()
		s.Driver = nil
	}
}

// Driver is the narrow interface to the low-level GPU driver consumed by the
// command queue (capability validation) and the executor (object
// materialization). All methods are synchronous; creation failures are
// recoverable resource-exhaustion errors.
type Driver interface {
	// MaterializeBuffer creates the driver buffer for a buffer record and
	// stores it on the record.
	//
	// Parameters:
	//   - label: debug label for the driver object
	//   - rec: the buffer record to materialize
	//
	// Returns:
	//   - error: an error if the driver allocation fails
	MaterializeBuffer(label string, rec *registry.BufferRecord) error

	// MaterializeTexture creates the driver texture and its whole-texture
	// view for a texture record and stores both on the record.
	//
	// Parameters:
	//   - label: debug label for the driver object
	//   - rec: the texture record to materialize
	//
	// Returns:
	//   - error: an error if the driver allocation fails
	MaterializeTexture(label string, rec *registry.TextureRecord) error

	// MaterializeSampler creates the driver sampler for a sampler record.
	//
	// Parameters:
	//   - label: debug label for the driver object
	//   - rec: the sampler record to materialize
	//
	// Returns:
	//   - error: an error if the driver allocation fails
	MaterializeSampler(label string, rec *registry.SamplerRecord) error

	// MaterializeLayout creates the driver bind group layout for a
	// descriptor set layout record.
	//
	// Parameters:
	//   - label: debug label for the driver object
	//   - rec: the layout record to materialize
	//
	// Returns:
	//   - error: an error if the driver allocation fails
	MaterializeLayout(label string, rec *registry.LayoutRecord) error

	// MaterializeSet creates the driver bind group for a descriptor set
	// record. Every bound record and the layout record must already be
	// materialized, which recorded order guarantees.
	//
	// Parameters:
	//   - label: debug label for the driver object
	//   - rec: the set record to materialize
	//   - layout: the materialized layout the set was created against
	//   - resolve: resolves a bound handle to its record
	//
	// Returns:
	//   - error: an error if the driver allocation fails
	MaterializeSet(label string, rec *registry.SetRecord, layout *registry.LayoutRecord, resolve func(registry.Handle) (*registry.Record, error)) error

	// MaterializePipeline creates the driver render or compute pipeline for
	// a pipeline record, compiling its shader modules and assembling the
	// pipeline layout from the referenced descriptor set layouts.
	//
	// Parameters:
	//   - label: debug label for the driver object
	//   - rec: the pipeline record to materialize
	//   - layouts: the materialized layout records, indexed by group
	//
	// Returns:
	//   - error: an error if compilation or creation fails
	MaterializePipeline(label string, rec *registry.PipelineRecord, layouts []*registry.LayoutRecord) error

	// CreateStagingBuffer allocates a host-visible buffer of exactly
	// len(data) bytes, uploads data into it, and returns it. The caller owns
	// the staging buffer and must keep it alive until the GPU work that
	// reads it has retired.
	//
	// Parameters:
	//   - label: debug label for the driver object
	//   - data: the bytes to upload
	//
	// Returns:
	//   - *StagingBuffer: the staging buffer
	//   - error: an error if the driver allocation fails
	CreateStagingBuffer(label string, data []byte) (*StagingBuffer, error)

	// WriteBuffer performs a direct host write into a host-visible buffer
	// through the driver queue. Queued writes land before any command buffer
	// submitted afterwards on the same queue, so the scheduler only routes a
	// write here when no earlier command of the submission touched the
	// destination.
	//
	// Parameters:
	//   - rec: the materialized destination buffer record
	//   - offset: the destination byte offset
	//   - data: the bytes to write
	WriteBuffer(rec *registry.BufferRecord, offset uint64, data []byte)

	// Capabilities returns what the given texture format supports on the
	// current adapter. Used for eager creation-time validation.
	//
	// Parameters:
	//   - format: the texture format to query
	//
	// Returns:
	//   - common.FormatCapabilities: the supported usage for the format
	Capabilities(format wgpu.TextureFormat) common.FormatCapabilities

	// NewEncoder creates a command encoder for one execute call.
	//
	// Parameters:
	//   - label: debug label for the encoder
	//
	// Returns:
	//   - Encoder: the encoder
	//   - error: an error if the driver cannot create an encoder
	NewEncoder(label string) (Encoder, error)
}

// EncoderColorAttachment is a render pass color target resolved to its record.
type EncoderColorAttachment struct {
	// Texture is the materialized target texture record.
	Texture *registry.TextureRecord

	// MipLevel is the mip level rendered to.
	MipLevel uint32

	// LoadOp selects clear or load on pass begin.
	LoadOp wgpu.LoadOp

	// StoreOp selects store or discard on pass end.
	StoreOp wgpu.StoreOp

	// ClearValue is the clear color used when LoadOp is clear.
	ClearValue wgpu.Color
}

// EncoderDepthAttachment is a render pass depth target resolved to its record.
type EncoderDepthAttachment struct {
	// Texture is the materialized depth texture record.
	Texture *registry.TextureRecord

	// LoadOp selects clear or load on pass begin.
	LoadOp wgpu.LoadOp

	// StoreOp selects store or discard on pass end.
	StoreOp wgpu.StoreOp

	// ClearDepth is the clear depth used when LoadOp is clear.
	ClearDepth float32
}

// Encoder receives the executor's walk of the scheduled step list, one call
// per step, and submits the accumulated work on Finish. Encoders are
// single-threaded and used for exactly one execute call.
type Encoder interface {
	// CopyBufferToBuffer encodes a buffer-to-buffer copy.
	CopyBufferToBuffer(src, dst *registry.BufferRecord, srcOffset, dstOffset, size uint64)

	// CopyStagingToBuffer encodes a copy from a staging buffer into a
	// destination buffer. Source and destination lengths match by
	// construction.
	CopyStagingToBuffer(src *StagingBuffer, dst *registry.BufferRecord, dstOffset uint64)

	// CopyStagingToTexture encodes a copy from a staging buffer into one mip
	// level of a destination texture.
	CopyStagingToTexture(src *StagingBuffer, dst *registry.TextureRecord, mipLevel, bytesPerRow, rowsPerImage uint32)

	// CopyBufferToTexture encodes a buffer-to-texture copy.
	CopyBufferToTexture(src *registry.BufferRecord, srcOffset uint64, bytesPerRow, rowsPerImage uint32, dst *registry.TextureRecord, mipLevel uint32)

	// CopyTextureToTexture encodes a texture-to-texture copy between mip levels.
	CopyTextureToTexture(src *registry.TextureRecord, srcMip uint32, dst *registry.TextureRecord, dstMip uint32)

	// Transition encodes a pipeline barrier transitioning a subresource
	// range between access states. On APIs with implicit synchronization
	// this is a validation point rather than an instruction.
	Transition(target *registry.Record, subresources common.SubresourceRange, old, next common.AccessState)

	// BeginRenderPass begins a render pass over the given attachments.
	// Returns an error if the pass cannot begin (lost surface, invalid
	// attachment state).
	BeginRenderPass(label string, colors []EncoderColorAttachment, depth *EncoderDepthAttachment) error

	// BindRenderPipeline binds a render pipeline in the open render pass.
	BindRenderPipeline(rec *registry.PipelineRecord)

	// BindDescriptorSet binds a descriptor set at the given group index in
	// the open pass.
	BindDescriptorSet(group uint32, rec *registry.SetRecord)

	// BindVertexBuffer binds a vertex buffer at slot 0 in the open render pass.
	BindVertexBuffer(rec *registry.BufferRecord)

	// BindIndexBuffer binds a 32-bit index buffer in the open render pass.
	BindIndexBuffer(rec *registry.BufferRecord)

	// PushConstants uploads a push-constant byte blob for the next draw or
	// dispatch bound against the given pipeline.
	PushConstants(pipeline *registry.PipelineRecord, data []byte)

	// Draw encodes a non-indexed draw in the open render pass.
	Draw(vertexCount, instanceCount uint32)

	// DrawIndexed encodes an indexed draw in the open render pass.
	DrawIndexed(indexCount, instanceCount uint32)

	// DrawIndirect encodes an indexed indirect draw reading arguments from a buffer.
	DrawIndirect(args *registry.BufferRecord, offset uint64)

	// EndRenderPass ends the open render pass.
	EndRenderPass()

	// BeginComputePass begins a compute pass.
	BeginComputePass(label string)

	// BindComputePipeline binds a compute pipeline in the open compute pass.
	BindComputePipeline(rec *registry.PipelineRecord)

	// Dispatch encodes a direct dispatch in the open compute pass.
	Dispatch(x, y, z uint32)

	// DispatchIndirect encodes an indirect dispatch reading arguments from a buffer.
	DispatchIndirect(args *registry.BufferRecord, offset uint64)

	// EndComputePass ends the open compute pass.
	EndComputePass()

	// Finish submits the accumulated work to the driver queue.
	//
	// Returns:
	//   - error: an error if command buffer creation or submission fails
	Finish() error

	// Transients returns the driver objects the encoder allocated implicitly
	// (push-constant scratch uniforms and their bind groups). The caller
	// takes ownership and must keep them alive until the submission retires.
	//
	// Returns:
	//   - []Transient: the implicitly allocated objects
	Transients() []Transient
}
