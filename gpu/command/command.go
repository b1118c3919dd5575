// package command defines the abstract operation queue the scheduler
// consumes: a tagged union of recorder entries covering object creation,
// writes, copies, render/compute passes, and explicit transitions, plus the
// mutex-guarded Recorder they accumulate in. Commands reference resources
// only by registry handle, never by raw driver pointer, so the scheduler can
// inspect and batch them safely.
package command

import (
	"github.com/Carmen-Shannon/oxide-go/common"
	"github.com/Carmen-Shannon/oxide-go/gpu/registry"
	"github.com/cogentcore/webgpu/wgpu"
)

// Command is one recorded operation. Implementations are the exported
// variant structs in this package; the unexported marker keeps the union closed.
type Command interface {
	isCommand()
}

// CreateBuffer records the creation of a buffer. The executor materializes
// the driver object when the command is reached.
type CreateBuffer struct {
	// Buffer is the handle of the buffer record to materialize.
	Buffer registry.Handle
}

// CreateTexture records the creation of a texture.
type CreateTexture struct {
	// Texture is the handle of the texture record to materialize.
	Texture registry.Handle
}

// CreateSampler records the creation of a sampler.
type CreateSampler struct {
	// Sampler is the handle of the sampler record to materialize.
	Sampler registry.Handle
}

// CreateDescriptorSetLayout records the creation of a descriptor set layout.
type CreateDescriptorSetLayout struct {
	// Layout is the handle of the layout record to materialize.
	Layout registry.Handle
}

// CreateDescriptorSet records the creation of a descriptor set. The set's
// driver object can only be built once every bound resource has been
// materialized, which recorded order guarantees.
type CreateDescriptorSet struct {
	// Set is the handle of the set record to materialize.
	Set registry.Handle
}

// CreatePipeline records the creation of a render or compute pipeline.
type CreatePipeline struct {
	// Pipeline is the handle of the pipeline record to materialize.
	Pipeline registry.Handle
}

// WriteBuffer records a host-to-buffer write. When ViaStaging is set the
// destination is not host visible: the executor allocates a staging buffer of
// exactly len(Data) bytes, uploads into it, and emits a copy; the staging
// buffer joins the execute call's temporary resources.
type WriteBuffer struct {
	// Dst is the destination buffer handle.
	Dst registry.Handle

	// Offset is the destination byte offset.
	Offset uint64

	// Data is the bytes to write.
	Data []byte

	// ViaStaging selects the staging-buffer upload path.
	ViaStaging bool
}

// WriteTexture records a host-to-texture write targeting one mip level.
type WriteTexture struct {
	// Dst is the destination texture handle.
	Dst registry.Handle

	// MipLevel is the destination mip level.
	MipLevel uint32

	// Data is the texel bytes to write.
	Data []byte

	// BytesPerRow is the stride of one texel row in Data.
	BytesPerRow uint32

	// RowsPerImage is the number of rows in Data.
	RowsPerImage uint32
}

// CopyBufferToBuffer records a buffer-to-buffer copy.
type CopyBufferToBuffer struct {
	// Src is the source buffer handle.
	Src registry.Handle

	// SrcOffset is the source byte offset.
	SrcOffset uint64

	// Dst is the destination buffer handle.
	Dst registry.Handle

	// DstOffset is the destination byte offset.
	DstOffset uint64

	// Size is the number of bytes to copy.
	Size uint64
}

// CopyBufferToTexture records a buffer-to-texture copy targeting one mip level.
type CopyBufferToTexture struct {
	// Src is the source buffer handle.
	Src registry.Handle

	// SrcOffset is the source byte offset.
	SrcOffset uint64

	// BytesPerRow is the stride of one texel row in the source buffer.
	BytesPerRow uint32

	// RowsPerImage is the number of rows per image in the source buffer.
	RowsPerImage uint32

	// Dst is the destination texture handle.
	Dst registry.Handle

	// MipLevel is the destination mip level.
	MipLevel uint32
}

// CopyTextureToTexture records a texture-to-texture copy between two mip levels.
type CopyTextureToTexture struct {
	// Src is the source texture handle.
	Src registry.Handle

	// SrcMipLevel is the source mip level.
	SrcMipLevel uint32

	// Dst is the destination texture handle.
	Dst registry.Handle

	// DstMipLevel is the destination mip level.
	DstMipLevel uint32
}

// Transition records an explicit resource transition to a declared access
// state. First-of-frame global transitions are recorded into the recorder's
// priority queue so they execute before the frame's main commands.
type Transition struct {
	// Target is the buffer or texture handle to transition.
	Target registry.Handle

	// Range is the affected subresource range.
	Range common.SubresourceRange

	// Access is the access state to transition to.
	Access common.AccessFlags

	// Stage is the stage set the new access happens in.
	Stage common.StageFlags
}

// ColorAttachment describes one color target of a recorded render pass.
type ColorAttachment struct {
	// Target is the texture handle rendered to.
	Target registry.Handle

	// MipLevel is the mip level rendered to.
	MipLevel uint32

	// LoadOp selects clear or load on pass begin.
	LoadOp wgpu.LoadOp

	// StoreOp selects store or discard on pass end.
	StoreOp wgpu.StoreOp

	// ClearValue is the clear color used when LoadOp is clear.
	ClearValue wgpu.Color
}

// DepthAttachment describes the depth target of a recorded render pass.
type DepthAttachment struct {
	// Target is the depth texture handle.
	Target registry.Handle

	// LoadOp selects clear or load on pass begin.
	LoadOp wgpu.LoadOp

	// StoreOp selects store or discard on pass end.
	StoreOp wgpu.StoreOp

	// ClearDepth is the clear depth used when LoadOp is clear.
	ClearDepth float32
}

// DrawKind selects the draw variant of a Draw sub-command.
type DrawKind int

const (
	// DrawKindVertices is a non-indexed draw.
	DrawKindVertices DrawKind = iota

	// DrawKindIndexed is an indexed draw.
	DrawKindIndexed

	// DrawKindIndirect is an indexed indirect draw reading its arguments from a buffer.
	DrawKindIndirect
)

// Draw is one draw sub-command nested inside a RenderPass command.
type Draw struct {
	// Pipeline is the render pipeline handle to bind.
	Pipeline registry.Handle

	// Sets are the descriptor set handles to bind, indexed by group.
	Sets []registry.Handle

	// VertexBuffer is the vertex buffer handle, or the zero handle for
	// vertex-pulling pipelines.
	VertexBuffer registry.Handle

	// IndexBuffer is the index buffer handle; required for indexed draws.
	IndexBuffer registry.Handle

	// PushConstants is the raw push constant bytes, or nil.
	PushConstants []byte

	// Kind selects the draw variant.
	Kind DrawKind

	// VertexCount is the vertex count for DrawKindVertices.
	VertexCount uint32

	// IndexCount is the index count for DrawKindIndexed.
	IndexCount uint32

	// InstanceCount is the instance count; 0 is treated as 1 by validation.
	InstanceCount uint32

	// Indirect is the argument buffer handle for DrawKindIndirect.
	Indirect registry.Handle

	// IndirectOffset is the byte offset of the arguments in Indirect.
	IndirectOffset uint64
}

// RenderPass is a recorded render pass with its nested draw sub-commands.
type RenderPass struct {
	// Label is the debug label for the pass.
	Label string

	// ColorAttachments are the pass's color targets.
	ColorAttachments []ColorAttachment

	// Depth is the pass's depth target, or nil.
	Depth *DepthAttachment

	// Draws are the nested draw sub-commands in recorded order.
	Draws []Draw
}

// Dispatch is one dispatch sub-command nested inside a ComputePass command.
type Dispatch struct {
	// Pipeline is the compute pipeline handle to bind.
	Pipeline registry.Handle

	// Sets are the descriptor set handles to bind, indexed by group.
	Sets []registry.Handle

	// PushConstants is the raw push constant bytes, or nil.
	PushConstants []byte

	// Workgroups is the workgroup count for a direct dispatch.
	Workgroups [3]uint32

	// Indirect is the argument buffer handle for an indirect dispatch, or
	// the zero handle for a direct dispatch.
	Indirect registry.Handle

	// IndirectOffset is the byte offset of the arguments in Indirect.
	IndirectOffset uint64
}

// ComputePass is a recorded compute pass with its nested dispatch sub-commands.
type ComputePass struct {
	// Label is the debug label for the pass.
	Label string

	// Dispatches are the nested dispatch sub-commands in recorded order.
	Dispatches []Dispatch
}

func (CreateBuffer) isCommand()              {}
func (CreateTexture) isCommand()             {}
func (CreateSampler) isCommand()             {}
func (CreateDescriptorSetLayout) isCommand() {}
func (CreateDescriptorSet) isCommand()       {}
func (CreatePipeline) isCommand()            {}
func (WriteBuffer) isCommand()               {}
func (WriteTexture) isCommand()              {}
func (CopyBufferToBuffer) isCommand()        {}
func (CopyBufferToTexture) isCommand()       {}
func (CopyTextureToTexture) isCommand()      {}
func (Transition) isCommand()                {}
func (RenderPass) isCommand()                {}
func (ComputePass) isCommand()               {}
