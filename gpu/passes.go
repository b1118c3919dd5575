package gpu

import (
	"fmt"

	"github.com/Carmen-Shannon/oxide-go/gpu/command"
	"github.com/Carmen-Shannon/oxide-go/gpu/registry"
	"github.com/cogentcore/webgpu/wgpu"
)

// ColorTarget names one color attachment of a render pass.
type ColorTarget struct {
	// Texture is the texture rendered to. It must carry render-attachment usage.
	Texture Texture

	// MipLevel is the mip level rendered to.
	MipLevel uint32

	// LoadOp selects clear or load on pass begin.
	LoadOp wgpu.LoadOp

	// StoreOp selects store or discard on pass end.
	StoreOp wgpu.StoreOp

	// ClearValue is the clear color used when LoadOp is clear.
	ClearValue wgpu.Color
}

// DepthTarget names the depth attachment of a render pass.
type DepthTarget struct {
	// Texture is the depth texture. It must carry render-attachment usage.
	Texture Texture

	// LoadOp selects clear or load on pass begin.
	LoadOp wgpu.LoadOp

	// StoreOp selects store or discard on pass end.
	StoreOp wgpu.StoreOp

	// ClearDepth is the clear depth used when LoadOp is clear.
	ClearDepth float32
}

// RenderPassDescriptor describes a render pass to open.
type RenderPassDescriptor struct {
	// Label is the debug label for the pass.
	Label string

	// ColorAttachments are the pass's color targets; at least one is
	// required unless Depth is set.
	ColorAttachments []ColorTarget

	// Depth is the pass's depth target, or nil.
	Depth *DepthTarget
}

// DrawDescriptor describes one draw inside a render pass. The draw variant
// is inferred: a non-nil Indirect buffer selects an indirect draw, a non-nil
// IndexBuffer an indexed draw, otherwise a plain vertex draw.
type DrawDescriptor struct {
	// Pipeline is the render pipeline to bind.
	Pipeline Pipeline

	// Sets are the descriptor sets to bind, indexed by group. Each set's
	// layout must be the layout the pipeline declared for that group.
	Sets []DescriptorSet

	// VertexBuffer is the vertex buffer, or nil for vertex-pulling pipelines.
	VertexBuffer Buffer

	// IndexBuffer is the index buffer; required for indexed and indirect draws.
	IndexBuffer Buffer

	// PushConstants is the push constant blob, or nil. Its length must not
	// exceed the pipeline's declared range.
	PushConstants []byte

	// VertexCount is the vertex count of a plain draw.
	VertexCount uint32

	// IndexCount is the index count of an indexed draw.
	IndexCount uint32

	// InstanceCount is the instance count; 0 is treated as 1.
	InstanceCount uint32

	// Indirect is the argument buffer of an indirect draw, or nil. It must
	// carry indirect usage.
	Indirect Buffer

	// IndirectOffset is the byte offset of the arguments in Indirect.
	IndirectOffset uint64
}

// DispatchDescriptor describes one dispatch inside a compute pass. A non-nil
// Indirect buffer selects an indirect dispatch.
type DispatchDescriptor struct {
	// Pipeline is the compute pipeline to bind.
	Pipeline Pipeline

	// Sets are the descriptor sets to bind, indexed by group.
	Sets []DescriptorSet

	// PushConstants is the push constant blob, or nil.
	PushConstants []byte

	// Workgroups is the workgroup count of a direct dispatch. Each dimension
	// must be non-zero.
	Workgroups [3]uint32

	// Indirect is the argument buffer of an indirect dispatch, or nil.
	Indirect Buffer

	// IndirectOffset is the byte offset of the arguments in Indirect.
	IndirectOffset uint64
}

// RenderPass accumulates draws and records the composite pass command on
// End. Builders are single-goroutine; record different passes concurrently
// via CommandQueue.RecordConcurrent instead of sharing one builder.
type RenderPass struct {
	queue *commandQueue
	pass  command.RenderPass
	ended bool
}

// ComputePass accumulates dispatches and records the composite pass command
// on End.
type ComputePass struct {
	queue *commandQueue
	pass  command.ComputePass
	ended bool
}

func (q *commandQueue) RunRenderPass(desc RenderPassDescriptor) *RenderPass {
	if len(desc.ColorAttachments) == 0 && desc.Depth == nil {
		panic(fmt.Sprintf("gpu: render pass %q has no attachments", desc.Label))
	}

	pass := command.RenderPass{Label: desc.Label}
	for _, att := range desc.ColorAttachments {
		rec := mustRecord(q.reg, att.Texture.Handle()).Texture
		if rec.Usage&wgpu.TextureUsageRenderAttachment == 0 {
			panic(fmt.Sprintf("gpu: render pass %q color target lacks render-attachment usage", desc.Label))
		}
		if att.MipLevel >= rec.MipLevels {
			panic(fmt.Sprintf("gpu: render pass %q targets mip %d of %d-level texture", desc.Label, att.MipLevel, rec.MipLevels))
		}
		pass.ColorAttachments = append(pass.ColorAttachments, command.ColorAttachment{
			Target:     att.Texture.Handle(),
			MipLevel:   att.MipLevel,
			LoadOp:     att.LoadOp,
			StoreOp:    att.StoreOp,
			ClearValue: att.ClearValue,
		})
	}
	if desc.Depth != nil {
		rec := mustRecord(q.reg, desc.Depth.Texture.Handle()).Texture
		if rec.Usage&wgpu.TextureUsageRenderAttachment == 0 {
			panic(fmt.Sprintf("gpu: render pass %q depth target lacks render-attachment usage", desc.Label))
		}
		pass.Depth = &command.DepthAttachment{
			Target:     desc.Depth.Texture.Handle(),
			LoadOp:     desc.Depth.LoadOp,
			StoreOp:    desc.Depth.StoreOp,
			ClearDepth: desc.Depth.ClearDepth,
		}
	}

	return &RenderPass{queue: q, pass: pass}
}

func (q *commandQueue) RunComputePass(label string) *ComputePass {
	return &ComputePass{queue: q, pass: command.ComputePass{Label: label}}
}

// Draw appends one draw to the pass.
//
// Parameters:
//   - desc: the draw descriptor
//
// Returns:
//   - *RenderPass: the pass, for chaining
func (p *RenderPass) Draw(desc DrawDescriptor) *RenderPass {
	if p.ended {
		panic("gpu: draw recorded after End")
	}
	if desc.Pipeline == nil {
		panic("gpu: draw with nil pipeline")
	}

	rec := mustRecord(p.queue.reg, desc.Pipeline.Handle()).Pipeline
	if rec.Kind != registry.PipelineKindRender {
		panic("gpu: draw with compute pipeline")
	}
	sets := validateSets(rec, desc.Sets)
	validatePushConstants(rec, desc.PushConstants)

	draw := command.Draw{
		Pipeline:       desc.Pipeline.Handle(),
		Sets:           sets,
		PushConstants:  desc.PushConstants,
		InstanceCount:  max(desc.InstanceCount, 1),
		IndirectOffset: desc.IndirectOffset,
	}
	if desc.VertexBuffer != nil {
		bufferNeedsUsage(p.queue, desc.VertexBuffer, wgpu.BufferUsageVertex, "vertex")
		draw.VertexBuffer = desc.VertexBuffer.Handle()
	}
	if desc.IndexBuffer != nil {
		bufferNeedsUsage(p.queue, desc.IndexBuffer, wgpu.BufferUsageIndex, "index")
		draw.IndexBuffer = desc.IndexBuffer.Handle()
	}

	switch {
	case desc.Indirect != nil:
		if desc.IndexBuffer == nil {
			panic("gpu: indirect draw without index buffer")
		}
		bufferNeedsUsage(p.queue, desc.Indirect, wgpu.BufferUsageIndirect, "indirect")
		draw.Kind = command.DrawKindIndirect
		draw.Indirect = desc.Indirect.Handle()
	case desc.IndexBuffer != nil:
		if desc.IndexCount == 0 {
			panic("gpu: indexed draw with zero index count")
		}
		draw.Kind = command.DrawKindIndexed
		draw.IndexCount = desc.IndexCount
	default:
		if desc.VertexCount == 0 {
			panic("gpu: draw with zero vertex count")
		}
		draw.Kind = command.DrawKindVertices
		draw.VertexCount = desc.VertexCount
	}

	p.pass.Draws = append(p.pass.Draws, draw)
	return p
}

// End records the composite pass command. The builder is dead afterwards.
func (p *RenderPass) End() {
	if p.ended {
		panic("gpu: render pass ended twice")
	}
	p.ended = true
	p.queue.recorder.Record(p.pass)
}

// Dispatch appends one dispatch to the pass.
//
// Parameters:
//   - desc: the dispatch descriptor
//
// Returns:
//   - *ComputePass: the pass, for chaining
func (p *ComputePass) Dispatch(desc DispatchDescriptor) *ComputePass {
	if p.ended {
		panic("gpu: dispatch recorded after End")
	}
	if desc.Pipeline == nil {
		panic("gpu: dispatch with nil pipeline")
	}

	rec := mustRecord(p.queue.reg, desc.Pipeline.Handle()).Pipeline
	if rec.Kind != registry.PipelineKindCompute {
		panic("gpu: dispatch with render pipeline")
	}
	sets := validateSets(rec, desc.Sets)
	validatePushConstants(rec, desc.PushConstants)

	dispatch := command.Dispatch{
		Pipeline:       desc.Pipeline.Handle(),
		Sets:           sets,
		PushConstants:  desc.PushConstants,
		Workgroups:     desc.Workgroups,
		IndirectOffset: desc.IndirectOffset,
	}
	if desc.Indirect != nil {
		bufferNeedsUsage(p.queue, desc.Indirect, wgpu.BufferUsageIndirect, "indirect")
		dispatch.Indirect = desc.Indirect.Handle()
	} else if desc.Workgroups[0] == 0 || desc.Workgroups[1] == 0 || desc.Workgroups[2] == 0 {
		panic("gpu: dispatch with zero workgroup dimension")
	}

	p.pass.Dispatches = append(p.pass.Dispatches, dispatch)
	return p
}

// End records the composite pass command. The builder is dead afterwards.
func (p *ComputePass) End() {
	if p.ended {
		panic("gpu: compute pass ended twice")
	}
	p.ended = true
	p.queue.recorder.Record(p.pass)
}

// validateSets checks the bound sets against the pipeline's declared layouts
// and returns their handles indexed by group.
func validateSets(rec *registry.PipelineRecord, sets []DescriptorSet) []registry.Handle {
	if len(sets) != len(rec.Layouts) {
		panic(fmt.Sprintf("gpu: %d descriptor sets bound against %d declared layouts", len(sets), len(rec.Layouts)))
	}
	handles := make([]registry.Handle, len(sets))
	for group, set := range sets {
		if set == nil {
			panic(fmt.Sprintf("gpu: nil descriptor set at group %d", group))
		}
		if set.Layout() != rec.Layouts[group] {
			panic(fmt.Sprintf("gpu: descriptor set at group %d was created against a different layout", group))
		}
		handles[group] = set.Handle()
	}
	return handles
}

// validatePushConstants panics when a blob is supplied without a declared
// range or overruns it.
func validatePushConstants(rec *registry.PipelineRecord, data []byte) {
	if len(data) == 0 {
		return
	}
	if rec.PushConstantSize == 0 {
		panic("gpu: push constants on a pipeline without a declared range")
	}
	if uint32(len(data)) > rec.PushConstantSize {
		panic(fmt.Sprintf("gpu: %d push constant bytes exceed the declared %d", len(data), rec.PushConstantSize))
	}
}

func bufferNeedsUsage(q *commandQueue, buf Buffer, usage wgpu.BufferUsage, what string) {
	if mustRecord(q.reg, buf.Handle()).Buffer.Usage&usage == 0 {
		panic(fmt.Sprintf("gpu: %s buffer lacks required usage", what))
	}
}
