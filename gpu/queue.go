// package gpu is the public surface of the command-stream and
// resource-lifetime scheduler. Rendering code creates resources and records
// work through a CommandQueue, hands the accumulated commands to a
// CommandExecutor once per frame, and confirms GPU completion back through
// Destroy/Cleanup so deferred destruction can make progress.
//
// Contract violations (bad usage flags, out-of-range writes, unbound
// descriptor slots) panic at the call site; resource exhaustion is returned
// as an error.
package gpu

import (
	"errors"
	"fmt"
	"math/bits"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxide-go/common"
	"github.com/Carmen-Shannon/oxide-go/gpu/backend"
	"github.com/Carmen-Shannon/oxide-go/gpu/command"
	"github.com/Carmen-Shannon/oxide-go/gpu/registry"
	"github.com/Carmen-Shannon/oxide-go/gpu/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// ErrBindingMismatch is returned by CreatePipeline when a shader's reflected
// binding disagrees with the descriptor set layout declared at the same
// location.
var ErrBindingMismatch = errors.New("gpu: binding kind mismatch")

// TextureDescriptor describes a texture to create.
type TextureDescriptor struct {
	// Label is the debug label for the texture.
	Label string

	// Width, Height are the level-0 dimensions in texels. Both must be non-zero.
	Width, Height uint32

	// MipLevels is the number of mip levels; 0 is treated as 1.
	MipLevels uint32

	// Format is the texel format.
	Format wgpu.TextureFormat

	// Usage is the set of usage flags; every flag must be supported for
	// Format on the current adapter.
	Usage wgpu.TextureUsage
}

// PipelineDescriptor describes a render or compute pipeline to create. A
// non-nil Compute module selects a compute pipeline; otherwise Vertex is
// required and Fragment is optional (depth-only passes).
type PipelineDescriptor struct {
	// Label is the debug label for the pipeline.
	Label string

	// Vertex and Fragment are the shader modules of a render pipeline.
	Vertex, Fragment shader.Module

	// Compute is the shader module of a compute pipeline.
	Compute shader.Module

	// Layouts are the descriptor set layouts the pipeline binds against,
	// indexed by group. The pipeline retains each for its lifetime.
	Layouts []DescriptorSetLayout

	// PushConstantSize is the push constant range size in bytes; 0 disables
	// push constants. When non-zero the shader must declare its push constant
	// uniform in the group immediately after Layouts.
	PushConstantSize uint32

	// VertexLayouts are the vertex buffer layouts; empty for vertex-pulling
	// pipelines.
	VertexLayouts []wgpu.VertexBufferLayout

	// Topology is the primitive topology; defaults to triangle list.
	Topology wgpu.PrimitiveTopology

	// CullMode is the face culling mode.
	CullMode wgpu.CullMode

	// FrontFace is the front-face winding.
	FrontFace wgpu.FrontFace

	// ColorFormats are the color target formats, one per attachment.
	ColorFormats []wgpu.TextureFormat

	// DepthFormat is the depth target format, or TextureFormatUndefined.
	DepthFormat wgpu.TextureFormat

	// DepthWriteEnabled enables depth writes when DepthFormat is set.
	DepthWriteEnabled bool

	// BlendEnabled enables standard alpha blending on all color targets.
	BlendEnabled bool
}

// CommandQueue is the facade rendering code creates resources and records
// work through. Creation calls validate eagerly, insert a registry record
// with reference count one, and append a creation command; write, copy and
// pass calls only append commands. Recording is safe from multiple
// goroutines; the per-goroutine recorded order is preserved.
type CommandQueue interface {
	// CreateBuffer creates a buffer handle.
	//
	// Parameters:
	//   - label: debug label for the buffer
	//   - size: buffer size in bytes, must be non-zero
	//   - usage: buffer usage flags
	//
	// Returns:
	//   - Buffer: the new handle with reference count one
	//   - error: an error if the allocation limit is reached
	CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (Buffer, error)

	// CreateTexture creates a texture handle. Panics if a dimension is zero,
	// the mip count exceeds what the dimensions allow, or the requested usage
	// is unsupported for the format.
	//
	// Parameters:
	//   - desc: the texture descriptor
	//
	// Returns:
	//   - Texture: the new handle with reference count one
	//   - error: an error if the allocation limit is reached
	CreateTexture(desc TextureDescriptor) (Texture, error)

	// CreateSampler creates a sampler handle.
	//
	// Parameters:
	//   - label: debug label for the sampler
	//   - desc: the driver sampler configuration; nil selects driver defaults
	//
	// Returns:
	//   - Sampler: the new handle with reference count one
	//   - error: an error if the allocation limit is reached
	CreateSampler(label string, desc *wgpu.SamplerDescriptor) (Sampler, error)

	// CreateDescriptorSetLayout creates a descriptor set layout handle.
	// Panics on duplicate binding indices or a zero array count.
	//
	// Parameters:
	//   - label: debug label for the layout
	//   - bindings: the ordered layout entries
	//
	// Returns:
	//   - DescriptorSetLayout: the new handle with reference count one
	//   - error: an error if the allocation limit is reached
	CreateDescriptorSetLayout(label string, bindings []registry.LayoutBinding) (DescriptorSetLayout, error)

	// CreateDescriptorSet creates a descriptor set bound against a layout.
	// Panics before anything is recorded if a layout binding is unbound, an
	// array count is not fully covered, or a bound resource's kind or usage
	// does not match the layout entry. The set retains the layout and every
	// bound resource until it is destroyed.
	//
	// Parameters:
	//   - label: debug label for the set
	//   - layout: the layout to bind against
	//   - bound: the resources bound per binding index; slice length must
	//     equal the entry's array count
	//
	// Returns:
	//   - DescriptorSet: the new handle with reference count one
	//   - error: an error if the allocation limit is reached
	CreateDescriptorSet(label string, layout DescriptorSetLayout, bound map[uint32][]Resource) (DescriptorSet, error)

	// CreatePipeline creates a render or compute pipeline. Every binding
	// reflected from the shader modules is checked against the declared
	// layouts; a kind mismatch fails with ErrBindingMismatch before any
	// command is recorded or GPU call made. The reflected per-binding access
	// masks are stored on the record for the scheduler.
	//
	// Parameters:
	//   - desc: the pipeline descriptor
	//
	// Returns:
	//   - Pipeline: the new handle with reference count one
	//   - error: ErrBindingMismatch on reflection disagreement, or an error
	//     if the allocation limit is reached
	CreatePipeline(desc PipelineDescriptor) (Pipeline, error)

	// WriteBuffer records a host write into a buffer. Panics if the
	// destination lacks copy-destination usage or the data overruns the
	// buffer. Host-invisible destinations go through a staging buffer
	// allocated at execute time. The data bytes are copied at record time,
	// so the caller may reuse the slice immediately.
	//
	// Parameters:
	//   - dst: the destination buffer
	//   - offset: the destination byte offset
	//   - data: the bytes to write
	WriteBuffer(dst Buffer, offset uint64, data []byte)

	// WriteTexture records a host write into one mip level of a texture.
	// Panics if the mip level is out of range, the destination lacks
	// copy-destination usage, the row stride is not 256-byte aligned, or the
	// data length disagrees with the strides. The data bytes are copied at
	// record time, so the caller may reuse the slice immediately.
	//
	// Parameters:
	//   - dst: the destination texture
	//   - mipLevel: the destination mip level
	//   - data: the texel bytes
	//   - bytesPerRow: the stride of one texel row, 256-byte aligned
	//   - rowsPerImage: the number of rows
	WriteTexture(dst Texture, mipLevel uint32, data []byte, bytesPerRow, rowsPerImage uint32)

	// CopyBufferToBuffer records a buffer-to-buffer copy. Panics on missing
	// copy usage flags or an out-of-bounds range.
	CopyBufferToBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset, size uint64)

	// CopyBufferToTexture records a buffer-to-texture copy targeting one mip
	// level. Panics on missing copy usage flags or an out-of-range mip.
	CopyBufferToTexture(src Buffer, srcOffset uint64, bytesPerRow, rowsPerImage uint32, dst Texture, mipLevel uint32)

	// CopyTextureToTexture records a texture-to-texture copy between mip
	// levels. Panics on missing copy usage flags or an out-of-range mip.
	CopyTextureToTexture(src Texture, srcMip uint32, dst Texture, dstMip uint32)

	// Transition records an explicit transition of a buffer or texture to a
	// declared access state.
	//
	// Parameters:
	//   - target: the buffer or texture to transition
	//   - subresources: the affected mip range; ignored for buffers
	//   - access: the access state to declare
	//   - stage: the stage set the access happens in
	Transition(target Resource, subresources common.SubresourceRange, access common.AccessFlags, stage common.StageFlags)

	// PriorityTransition records a transition into the priority queue, which
	// schedules before every main-queue command of the same execute call.
	// Used for first-of-frame global resource transitions.
	PriorityTransition(target Resource, subresources common.SubresourceRange, access common.AccessFlags, stage common.StageFlags)

	// RunRenderPass opens a render pass builder. Draws accumulate on the
	// builder; End records the composite pass command.
	//
	// Parameters:
	//   - desc: the pass descriptor naming the attachments
	//
	// Returns:
	//   - *RenderPass: the pass builder
	RunRenderPass(desc RenderPassDescriptor) *RenderPass

	// RunComputePass opens a compute pass builder. Dispatches accumulate on
	// the builder; End records the composite pass command.
	//
	// Parameters:
	//   - label: debug label for the pass
	//
	// Returns:
	//   - *ComputePass: the pass builder
	RunComputePass(label string) *ComputePass

	// RecordConcurrent runs the given recording functions on the queue's
	// worker pool and returns when all have finished. Each function's
	// commands keep their relative order; ordering between functions is
	// unspecified.
	//
	// Parameters:
	//   - fns: the recording functions to run
	RecordConcurrent(fns ...func())

	// Registry returns the resource registry backing the queue.
	Registry() *registry.Registry

	// Recorder returns the command recorder backing the queue.
	Recorder() *command.Recorder
}

type commandQueue struct {
	reg      *registry.Registry
	recorder *command.Recorder
	driver   backend.Driver

	workers int
	pool    worker.DynamicWorkerPool

	// taskID feeds the worker pool's task identifiers.
	taskMu sync.Mutex
	taskID int
}

var _ CommandQueue = &commandQueue{}

// CommandQueueOption configures a command queue at construction.
type CommandQueueOption func(*commandQueue)

// WithRecordWorkers sets the worker pool size used by RecordConcurrent.
//
// Parameters:
//   - workers: the number of pool workers, minimum 1
//
// Returns:
//   - CommandQueueOption: the option to pass to NewCommandQueue
func WithRecordWorkers(workers int) CommandQueueOption {
	return func(q *commandQueue) {
		q.workers = max(workers, 1)
	}
}

// WithAllocationLimit caps the number of live registry records; creation
// calls beyond the cap fail with registry.ErrRegistryFull.
//
// Parameters:
//   - limit: the maximum number of live records
//
// Returns:
//   - CommandQueueOption: the option to pass to NewCommandQueue
func WithAllocationLimit(limit int) CommandQueueOption {
	return func(q *commandQueue) {
		q.reg = registry.NewRegistry(registry.WithAllocationLimit(limit))
	}
}

// NewCommandQueue creates a command queue over the given driver.
//
// Parameters:
//   - driver: the low-level driver used for capability validation and, at
//     execute time, object materialization
//   - options: optional configuration
//
// Returns:
//   - CommandQueue: the new queue
func NewCommandQueue(driver backend.Driver, options ...CommandQueueOption) CommandQueue {
	q := &commandQueue{
		reg:      registry.NewRegistry(),
		recorder: command.NewRecorder(),
		driver:   driver,
		workers:  4,
	}

	for _, option := range options {
		option(q)
	}

	// Queue size of 64 covers typical per-frame pass recording fan-out.
	q.pool = worker.NewDynamicWorkerPool(q.workers, 64, 1*time.Second)

	return q
}

func (q *commandQueue) Registry() *registry.Registry { return q.reg }

func (q *commandQueue) Recorder() *command.Recorder { return q.recorder }

func (q *commandQueue) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (Buffer, error) {
	if size == 0 {
		panic("gpu: create buffer with zero size")
	}

	hostVisible := usage&wgpu.BufferUsageMapWrite != 0
	record := registry.NewBufferRecord(label, &registry.BufferRecord{
		Size:        size,
		Usage:       usage,
		HostVisible: hostVisible,
	})
	handle, err := q.reg.Insert(record)
	if err != nil {
		return nil, err
	}

	q.recorder.Record(command.CreateBuffer{Buffer: handle})
	return &buffer{reg: q.reg, handle: handle}, nil
}

func (q *commandQueue) CreateTexture(desc TextureDescriptor) (Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		panic("gpu: create texture with zero dimension")
	}
	mipLevels := max(desc.MipLevels, 1)
	if maxMips := uint32(bits.Len32(max(desc.Width, desc.Height))); mipLevels > maxMips {
		panic(fmt.Sprintf("gpu: %d mip levels exceed the %d allowed for %dx%d", mipLevels, maxMips, desc.Width, desc.Height))
	}
	if caps := q.driver.Capabilities(desc.Format); !caps.Supports(desc.Usage) {
		panic(fmt.Sprintf("gpu: usage %#x unsupported for format %v", desc.Usage, desc.Format))
	}

	record := registry.NewTextureRecord(desc.Label, &registry.TextureRecord{
		Width:     desc.Width,
		Height:    desc.Height,
		MipLevels: mipLevels,
		Format:    desc.Format,
		Usage:     desc.Usage,
	})
	handle, err := q.reg.Insert(record)
	if err != nil {
		return nil, err
	}

	q.recorder.Record(command.CreateTexture{Texture: handle})
	return &texture{reg: q.reg, handle: handle}, nil
}

func (q *commandQueue) CreateSampler(label string, desc *wgpu.SamplerDescriptor) (Sampler, error) {
	record := registry.NewSamplerRecord(label, &registry.SamplerRecord{Desc: desc})
	handle, err := q.reg.Insert(record)
	if err != nil {
		return nil, err
	}

	q.recorder.Record(command.CreateSampler{Sampler: handle})
	return &sampler{reg: q.reg, handle: handle}, nil
}

func (q *commandQueue) CreateDescriptorSetLayout(label string, bindings []registry.LayoutBinding) (DescriptorSetLayout, error) {
	seen := make(map[uint32]bool, len(bindings))
	for _, entry := range bindings {
		if seen[entry.Binding] {
			panic(fmt.Sprintf("gpu: layout %q declares binding %d twice", label, entry.Binding))
		}
		seen[entry.Binding] = true
		if entry.Count == 0 {
			panic(fmt.Sprintf("gpu: layout %q binding %d has zero array count", label, entry.Binding))
		}
	}

	record := registry.NewLayoutRecord(label, &registry.LayoutRecord{Bindings: bindings})
	handle, err := q.reg.Insert(record)
	if err != nil {
		return nil, err
	}

	q.recorder.Record(command.CreateDescriptorSetLayout{Layout: handle})
	return &descriptorSetLayout{reg: q.reg, handle: handle}, nil
}

func (q *commandQueue) CreateDescriptorSet(label string, layout DescriptorSetLayout, bound map[uint32][]Resource) (DescriptorSet, error) {
	entries := layout.Bindings()

	declared := make(map[uint32]registry.LayoutBinding, len(entries))
	for _, entry := range entries {
		declared[entry.Binding] = entry
	}
	for binding := range bound {
		if _, ok := declared[binding]; !ok {
			panic(fmt.Sprintf("gpu: set %q binds undeclared binding %d", label, binding))
		}
	}

	handles := make(map[uint32][]registry.Handle, len(entries))
	for _, entry := range entries {
		resources := bound[entry.Binding]
		if len(resources) == 0 {
			panic(fmt.Sprintf("gpu: set %q leaves binding %d unbound", label, entry.Binding))
		}
		if uint32(len(resources)) != entry.Count {
			panic(fmt.Sprintf("gpu: set %q binding %d covers %d of %d array entries", label, entry.Binding, len(resources), entry.Count))
		}
		slots := make([]registry.Handle, len(resources))
		for i, res := range resources {
			q.validateBinding(label, entry, res)
			slots[i] = res.Handle()
		}
		handles[entry.Binding] = slots
	}

	// Validation passed: retain everything the set references for its lifetime.
	q.reg.Retain(layout.Handle())
	for _, slots := range handles {
		for _, h := range slots {
			q.reg.Retain(h)
		}
	}

	record := registry.NewSetRecord(label, &registry.SetRecord{
		Layout: layout.Handle(),
		Bound:  handles,
	})
	handle, err := q.reg.Insert(record)
	if err != nil {
		q.reg.Release(layout.Handle())
		for _, slots := range handles {
			for _, h := range slots {
				q.reg.Release(h)
			}
		}
		return nil, err
	}

	q.recorder.Record(command.CreateDescriptorSet{Set: handle})
	return &descriptorSet{reg: q.reg, handle: handle}, nil
}

// validateBinding panics unless the bound resource's kind and usage satisfy
// the layout entry.
func (q *commandQueue) validateBinding(label string, entry registry.LayoutBinding, res Resource) {
	rec := mustRecord(q.reg, res.Handle())
	if rec.Kind() != entry.Kind.ResourceKind() {
		panic(fmt.Sprintf("gpu: set %q binding %d wants %v, got %v", label, entry.Binding, entry.Kind.ResourceKind(), rec.Kind()))
	}

	switch entry.Kind {
	case common.BindingKindUniformBuffer:
		if rec.Buffer.Usage&wgpu.BufferUsageUniform == 0 {
			panic(fmt.Sprintf("gpu: set %q binding %d buffer lacks uniform usage", label, entry.Binding))
		}
	case common.BindingKindStorageBuffer, common.BindingKindReadOnlyStorageBuffer:
		if rec.Buffer.Usage&wgpu.BufferUsageStorage == 0 {
			panic(fmt.Sprintf("gpu: set %q binding %d buffer lacks storage usage", label, entry.Binding))
		}
	case common.BindingKindSampledTexture:
		if rec.Texture.Usage&wgpu.TextureUsageTextureBinding == 0 {
			panic(fmt.Sprintf("gpu: set %q binding %d texture lacks texture-binding usage", label, entry.Binding))
		}
	case common.BindingKindStorageTexture:
		if rec.Texture.Usage&wgpu.TextureUsageStorageBinding == 0 {
			panic(fmt.Sprintf("gpu: set %q binding %d texture lacks storage-binding usage", label, entry.Binding))
		}
	}
}

func (q *commandQueue) CreatePipeline(desc PipelineDescriptor) (Pipeline, error) {
	kind := registry.PipelineKindRender
	modules := []shader.Module{desc.Vertex, desc.Fragment}
	if desc.Compute != nil {
		kind = registry.PipelineKindCompute
		modules = []shader.Module{desc.Compute}
	} else if desc.Vertex == nil {
		panic(fmt.Sprintf("gpu: pipeline %q has neither vertex nor compute module", desc.Label))
	}

	masks, err := q.reflectAccessMasks(desc, modules)
	if err != nil {
		return nil, err
	}

	layoutHandles := make([]registry.Handle, len(desc.Layouts))
	for i, layout := range desc.Layouts {
		layoutHandles[i] = layout.Handle()
	}

	for _, h := range layoutHandles {
		q.reg.Retain(h)
	}

	record := registry.NewPipelineRecord(desc.Label, &registry.PipelineRecord{
		Kind:              kind,
		Layouts:           layoutHandles,
		AccessMasks:       masks,
		PushConstantSize:  desc.PushConstantSize,
		Vertex:            desc.Vertex,
		Fragment:          desc.Fragment,
		Compute:           desc.Compute,
		VertexLayouts:     desc.VertexLayouts,
		Topology:          common.Coalesce(desc.Topology, wgpu.PrimitiveTopologyTriangleList),
		CullMode:          desc.CullMode,
		FrontFace:         desc.FrontFace,
		ColorFormats:      desc.ColorFormats,
		DepthFormat:       desc.DepthFormat,
		DepthWriteEnabled: desc.DepthWriteEnabled,
		BlendEnabled:      desc.BlendEnabled,
		PushGroup:         uint32(len(desc.Layouts)),
	})
	handle, err := q.reg.Insert(record)
	if err != nil {
		for _, h := range layoutHandles {
			q.reg.Release(h)
		}
		return nil, err
	}

	q.recorder.Record(command.CreatePipeline{Pipeline: handle})
	return &pipeline{reg: q.reg, handle: handle}, nil
}

// reflectAccessMasks checks every reflected binding against the declared
// layouts and builds the scheduler's per-binding access table. Bindings in
// the reserved push-constant group are skipped.
func (q *commandQueue) reflectAccessMasks(desc PipelineDescriptor, modules []shader.Module) (map[registry.BindingLocation]registry.BindingAccess, error) {
	masks := make(map[registry.BindingLocation]registry.BindingAccess)
	pushGroup := uint32(len(desc.Layouts))

	for _, module := range modules {
		if module == nil {
			continue
		}
		stage := module.Type().Stage()
		for _, info := range module.Bindings() {
			if desc.PushConstantSize > 0 && info.Group == pushGroup {
				continue
			}
			if info.Group >= uint32(len(desc.Layouts)) {
				return nil, fmt.Errorf("gpu: pipeline %q: shader %q binds group %d but only %d layouts are declared",
					desc.Label, module.Key(), info.Group, len(desc.Layouts))
			}

			entry, ok := layoutEntry(desc.Layouts[info.Group], info.Binding)
			if !ok {
				return nil, fmt.Errorf("gpu: pipeline %q: shader %q binds %d.%d but the layout declares no such binding: %w",
					desc.Label, module.Key(), info.Group, info.Binding, ErrBindingMismatch)
			}
			if !bindingKindsAgree(entry.Kind, info.Kind) {
				return nil, fmt.Errorf("gpu: pipeline %q: binding %d.%d declared %v but shader %q wants %v: %w",
					desc.Label, info.Group, info.Binding, entry.Kind, module.Key(), info.Kind, ErrBindingMismatch)
			}

			loc := registry.BindingLocation{Group: info.Group, Binding: info.Binding}
			mask := masks[loc]
			mask.Access |= info.Kind.Access()
			mask.Stages |= stage
			masks[loc] = mask
		}
	}

	return masks, nil
}

// layoutEntry finds the layout entry at the given binding index.
func layoutEntry(layout DescriptorSetLayout, binding uint32) (registry.LayoutBinding, bool) {
	for _, entry := range layout.Bindings() {
		if entry.Binding == binding {
			return entry, true
		}
	}
	return registry.LayoutBinding{}, false
}

// bindingKindsAgree reports whether a shader's reflected binding kind
// satisfies the layout's declared kind. A read-write storage declaration
// accepts a shader that only reads.
func bindingKindsAgree(declared, reflected common.BindingKind) bool {
	if declared == reflected {
		return true
	}
	return declared == common.BindingKindStorageBuffer && reflected == common.BindingKindReadOnlyStorageBuffer
}

func (q *commandQueue) WriteBuffer(dst Buffer, offset uint64, data []byte) {
	rec := mustRecord(q.reg, dst.Handle()).Buffer
	if rec.Usage&wgpu.BufferUsageCopyDst == 0 {
		panic("gpu: write buffer without copy-destination usage")
	}
	if offset+uint64(len(data)) > rec.Size {
		panic(fmt.Sprintf("gpu: write of %d bytes at offset %d overruns %d-byte buffer", len(data), offset, rec.Size))
	}

	q.recorder.Record(command.WriteBuffer{
		Dst:        dst.Handle(),
		Offset:     offset,
		Data:       slices.Clone(data),
		ViaStaging: !rec.HostVisible,
	})
}

func (q *commandQueue) WriteTexture(dst Texture, mipLevel uint32, data []byte, bytesPerRow, rowsPerImage uint32) {
	rec := mustRecord(q.reg, dst.Handle()).Texture
	if rec.Usage&wgpu.TextureUsageCopyDst == 0 {
		panic("gpu: write texture without copy-destination usage")
	}
	if mipLevel >= rec.MipLevels {
		panic(fmt.Sprintf("gpu: write to mip %d of %d-level texture", mipLevel, rec.MipLevels))
	}
	if bytesPerRow%256 != 0 {
		panic(fmt.Sprintf("gpu: texture row stride %d is not 256-byte aligned", bytesPerRow))
	}
	if uint64(len(data)) != uint64(bytesPerRow)*uint64(rowsPerImage) {
		panic(fmt.Sprintf("gpu: %d data bytes disagree with %dx%d strides", len(data), bytesPerRow, rowsPerImage))
	}

	q.recorder.Record(command.WriteTexture{
		Dst:          dst.Handle(),
		MipLevel:     mipLevel,
		Data:         slices.Clone(data),
		BytesPerRow:  bytesPerRow,
		RowsPerImage: rowsPerImage,
	})
}

func (q *commandQueue) CopyBufferToBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset, size uint64) {
	srcRec := mustRecord(q.reg, src.Handle()).Buffer
	dstRec := mustRecord(q.reg, dst.Handle()).Buffer
	if srcRec.Usage&wgpu.BufferUsageCopySrc == 0 {
		panic("gpu: copy source buffer lacks copy-source usage")
	}
	if dstRec.Usage&wgpu.BufferUsageCopyDst == 0 {
		panic("gpu: copy destination buffer lacks copy-destination usage")
	}
	if srcOffset+size > srcRec.Size || dstOffset+size > dstRec.Size {
		panic("gpu: buffer copy range out of bounds")
	}

	q.recorder.Record(command.CopyBufferToBuffer{
		Src:       src.Handle(),
		SrcOffset: srcOffset,
		Dst:       dst.Handle(),
		DstOffset: dstOffset,
		Size:      size,
	})
}

func (q *commandQueue) CopyBufferToTexture(src Buffer, srcOffset uint64, bytesPerRow, rowsPerImage uint32, dst Texture, mipLevel uint32) {
	srcRec := mustRecord(q.reg, src.Handle()).Buffer
	dstRec := mustRecord(q.reg, dst.Handle()).Texture
	if srcRec.Usage&wgpu.BufferUsageCopySrc == 0 {
		panic("gpu: copy source buffer lacks copy-source usage")
	}
	if dstRec.Usage&wgpu.TextureUsageCopyDst == 0 {
		panic("gpu: copy destination texture lacks copy-destination usage")
	}
	if mipLevel >= dstRec.MipLevels {
		panic(fmt.Sprintf("gpu: copy to mip %d of %d-level texture", mipLevel, dstRec.MipLevels))
	}

	q.recorder.Record(command.CopyBufferToTexture{
		Src:          src.Handle(),
		SrcOffset:    srcOffset,
		BytesPerRow:  bytesPerRow,
		RowsPerImage: rowsPerImage,
		Dst:          dst.Handle(),
		MipLevel:     mipLevel,
	})
}

func (q *commandQueue) CopyTextureToTexture(src Texture, srcMip uint32, dst Texture, dstMip uint32) {
	srcRec := mustRecord(q.reg, src.Handle()).Texture
	dstRec := mustRecord(q.reg, dst.Handle()).Texture
	if srcRec.Usage&wgpu.TextureUsageCopySrc == 0 {
		panic("gpu: copy source texture lacks copy-source usage")
	}
	if dstRec.Usage&wgpu.TextureUsageCopyDst == 0 {
		panic("gpu: copy destination texture lacks copy-destination usage")
	}
	if srcMip >= srcRec.MipLevels || dstMip >= dstRec.MipLevels {
		panic("gpu: texture copy mip level out of range")
	}

	q.recorder.Record(command.CopyTextureToTexture{
		Src:         src.Handle(),
		SrcMipLevel: srcMip,
		Dst:         dst.Handle(),
		DstMipLevel: dstMip,
	})
}

func (q *commandQueue) Transition(target Resource, subresources common.SubresourceRange, access common.AccessFlags, stage common.StageFlags) {
	q.recorder.Record(q.transitionCommand(target, subresources, access, stage))
}

func (q *commandQueue) PriorityTransition(target Resource, subresources common.SubresourceRange, access common.AccessFlags, stage common.StageFlags) {
	q.recorder.RecordPriority(q.transitionCommand(target, subresources, access, stage))
}

func (q *commandQueue) transitionCommand(target Resource, subresources common.SubresourceRange, access common.AccessFlags, stage common.StageFlags) command.Transition {
	kind := target.Handle().Kind()
	if kind != common.ResourceKindBuffer && kind != common.ResourceKindTexture {
		panic(fmt.Sprintf("gpu: transition of %v resource", kind))
	}
	return command.Transition{
		Target: target.Handle(),
		Range:  subresources,
		Access: access,
		Stage:  stage,
	}
}

func (q *commandQueue) RecordConcurrent(fns ...func()) {
	var wg sync.WaitGroup
	for _, fn := range fns {
		wg.Add(1)
		fnCap := fn
		q.taskMu.Lock()
		id := q.taskID
		q.taskID++
		q.taskMu.Unlock()
		q.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				fnCap()
				return nil, nil
			},
		})
	}
	wg.Wait()
}
