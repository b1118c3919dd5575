package registry

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxide-go/common"
	"github.com/Carmen-Shannon/oxide-go/gpu/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// recordState tracks a record's position in the Live -> PendingDeletion ->
// Destroyed lifecycle. No transition skips PendingDeletion and no transition
// re-enters Live after Destroyed.
type recordState int32

const (
	recordStateLive recordState = iota
	recordStatePendingDeletion
	recordStateDestroyed
)

// BindingLocation addresses one shader binding as (group, binding) indices.
type BindingLocation struct {
	// Group is the descriptor set (bind group) index.
	Group uint32

	// Binding is the binding index within the group.
	Binding uint32
}

// BindingAccess is a pipeline's reflected access pattern for one binding:
// what the shader does with it and in which stages.
type BindingAccess struct {
	// Access is the access pattern derived from shader reflection.
	Access common.AccessFlags

	// Stages is the set of shader stages that use the binding.
	Stages common.StageFlags
}

// LayoutBinding is one entry of a descriptor set layout: the schema a bound
// resource must match.
type LayoutBinding struct {
	// Binding is the binding index within the group.
	Binding uint32

	// Kind is the kind of resource the entry accepts.
	Kind common.BindingKind

	// Visibility is the set of shader stages the binding is visible to.
	Visibility common.StageFlags

	// Count is the array count of the binding; 1 for non-array bindings.
	Count uint32

	// Format is the texel format for storage texture bindings; ignored for
	// other kinds.
	Format wgpu.TextureFormat
}

// BufferRecord is the buffer-specific payload of a Record.
type BufferRecord struct {
	// Size is the buffer size in bytes.
	Size uint64

	// Usage is the buffer's usage flags.
	Usage wgpu.BufferUsage

	// HostVisible reports whether the buffer can be written directly from the
	// host without a staging copy.
	HostVisible bool

	// Driver is the underlying driver buffer, or nil before executor creation.
	Driver *wgpu.Buffer
}

// TextureRecord is the texture-specific payload of a Record.
type TextureRecord struct {
	// Width, Height are the level-0 dimensions in texels.
	Width, Height uint32

	// MipLevels is the number of mip levels; one access-state cell is tracked per level.
	MipLevels uint32

	// Format is the texel format.
	Format wgpu.TextureFormat

	// Usage is the texture's usage flags.
	Usage wgpu.TextureUsage

	// Driver is the underlying driver texture, or nil before executor creation.
	Driver *wgpu.Texture

	// View is the whole-texture view used for bindings, or nil before executor creation.
	View *wgpu.TextureView
}

// SamplerRecord is the sampler-specific payload of a Record.
type SamplerRecord struct {
	// Desc is the sampler configuration used at materialization.
	Desc *wgpu.SamplerDescriptor

	// Driver is the underlying driver sampler, or nil before executor creation.
	Driver *wgpu.Sampler
}

// PipelineKind identifies whether a pipeline record holds a render or compute pipeline.
type PipelineKind int

const (
	// PipelineKindRender is a render pipeline with vertex and fragment entry points.
	PipelineKindRender PipelineKind = iota

	// PipelineKindCompute is a compute pipeline with a single compute entry point.
	PipelineKindCompute
)

// PipelineRecord is the pipeline-specific payload of a Record. The pipeline
// holds references to the descriptor set layouts it was built against plus a
// per-binding access mask table inferred from shader reflection; the
// scheduler reads the table to know which bindings are read vs. written in
// which stage.
type PipelineRecord struct {
	// Kind selects render or compute.
	Kind PipelineKind

	// Layouts are the descriptor set layout handles the pipeline was built
	// against, indexed by group. Each is retained for the pipeline's lifetime.
	Layouts []Handle

	// AccessMasks maps each reflected binding location to its access pattern.
	AccessMasks map[BindingLocation]BindingAccess

	// PushConstantSize is the declared push constant range size in bytes.
	PushConstantSize uint32

	// Vertex and Fragment are the shader modules of a render pipeline.
	Vertex, Fragment shader.Module

	// Compute is the shader module of a compute pipeline.
	Compute shader.Module

	// VertexLayouts are the vertex buffer layouts of a render pipeline;
	// empty for vertex-pulling pipelines that read geometry from storage
	// buffers.
	VertexLayouts []wgpu.VertexBufferLayout

	// Topology is the primitive topology of a render pipeline.
	Topology wgpu.PrimitiveTopology

	// CullMode is the face culling mode of a render pipeline.
	CullMode wgpu.CullMode

	// FrontFace is the front-face winding of a render pipeline.
	FrontFace wgpu.FrontFace

	// ColorFormats are the color target formats of a render pipeline, one per attachment.
	ColorFormats []wgpu.TextureFormat

	// DepthFormat is the depth target format, or TextureFormatUndefined for no depth.
	DepthFormat wgpu.TextureFormat

	// DepthWriteEnabled enables depth writes when a depth target is present.
	DepthWriteEnabled bool

	// BlendEnabled enables standard alpha blending on all color targets.
	BlendEnabled bool

	// DriverRender is the driver render pipeline when Kind is PipelineKindRender.
	DriverRender *wgpu.RenderPipeline

	// DriverCompute is the driver compute pipeline when Kind is PipelineKindCompute.
	DriverCompute *wgpu.ComputePipeline

	// PushLayout is the internal bind group layout the driver reserves for
	// push-constant emulation, when PushConstantSize > 0.
	PushLayout *wgpu.BindGroupLayout

	// PushGroup is the group index the push-constant scratch uniform binds at.
	PushGroup uint32
}

// LayoutRecord is the descriptor-set-layout payload of a Record.
type LayoutRecord struct {
	// Bindings is the ordered list of layout entries.
	Bindings []LayoutBinding

	// Driver is the underlying driver bind group layout, or nil before executor creation.
	Driver *wgpu.BindGroupLayout
}

// SetRecord is the descriptor-set payload of a Record. The set holds retained
// handles on its layout and every bound resource for its own lifetime,
// released in reverse when the set is destroyed.
type SetRecord struct {
	// Layout is the retained handle of the layout the set was created against.
	Layout Handle

	// Bound maps binding index to the retained handles bound at that index.
	// The slice length equals the layout entry's array count.
	Bound map[uint32][]Handle

	// Driver is the underlying driver bind group, or nil before executor creation.
	Driver *wgpu.BindGroup
}

// Record is one registry entry: the driver object for a resource, its
// reference count, its per-subresource access state, and the epoch of the
// last submission that used it. Exactly one of the kind-specific payload
// fields is non-nil, matching Kind.
type Record struct {
	kind  common.ResourceKind
	label string

	// refs is the shared-ownership count. Only the decrement-to-zero
	// transition mutates anything beyond the counter itself.
	refs atomic.Int32

	// state walks Live -> PendingDeletion -> Destroyed.
	state atomic.Int32

	// lastUsedEpoch is the submission epoch of the last execute() that
	// touched this record. The deletion drain skips records whose epoch has
	// not yet retired.
	lastUsedEpoch atomic.Uint64

	// accessMu guards access. Scheduling is single-threaded but write-back
	// races with concurrent Get callers reading state for validation.
	accessMu sync.Mutex

	// access holds one cell per subresource: len 1 for buffers, one per mip
	// level for textures, nil for kinds with no tracked access state.
	access []common.AccessState

	// Buffer is the payload when kind is ResourceKindBuffer.
	Buffer *BufferRecord

	// Texture is the payload when kind is ResourceKindTexture.
	Texture *TextureRecord

	// Sampler is the payload when kind is ResourceKindSampler.
	Sampler *SamplerRecord

	// Pipeline is the payload when kind is ResourceKindPipeline.
	Pipeline *PipelineRecord

	// Layout is the payload when kind is ResourceKindDescriptorSetLayout.
	Layout *LayoutRecord

	// Set is the payload when kind is ResourceKindDescriptorSet.
	Set *SetRecord
}

// NewBufferRecord creates a buffer record with a single access-state cell.
//
// Parameters:
//   - label: debug label for the record
//   - payload: the buffer payload
//
// Returns:
//   - *Record: the new record with reference count zero (Insert sets it to one)
func NewBufferRecord(label string, payload *BufferRecord) *Record {
	return &Record{
		kind:   common.ResourceKindBuffer,
		label:  label,
		access: make([]common.AccessState, 1),
		Buffer: payload,
	}
}

// NewTextureRecord creates a texture record with one access-state cell per mip level.
//
// Parameters:
//   - label: debug label for the record
//   - payload: the texture payload; MipLevels must be >= 1
//
// Returns:
//   - *Record: the new record
func NewTextureRecord(label string, payload *TextureRecord) *Record {
	return &Record{
		kind:    common.ResourceKindTexture,
		label:   label,
		access:  make([]common.AccessState, payload.MipLevels),
		Texture: payload,
	}
}

// NewSamplerRecord creates a sampler record. Samplers carry no access state.
func NewSamplerRecord(label string, payload *SamplerRecord) *Record {
	return &Record{kind: common.ResourceKindSampler, label: label, Sampler: payload}
}

// NewPipelineRecord creates a pipeline record. Pipelines carry no access state.
func NewPipelineRecord(label string, payload *PipelineRecord) *Record {
	return &Record{kind: common.ResourceKindPipeline, label: label, Pipeline: payload}
}

// NewLayoutRecord creates a descriptor set layout record.
func NewLayoutRecord(label string, payload *LayoutRecord) *Record {
	return &Record{kind: common.ResourceKindDescriptorSetLayout, label: label, Layout: payload}
}

// NewSetRecord creates a descriptor set record.
func NewSetRecord(label string, payload *SetRecord) *Record {
	return &Record{kind: common.ResourceKindDescriptorSet, label: label, Set: payload}
}

// Kind returns the record's resource kind.
func (r *Record) Kind() common.ResourceKind {
	return r.kind
}

// Label returns the record's debug label.
func (r *Record) Label() string {
	return r.label
}

// RefCount returns the current reference count.
//
// Returns:
//   - int: the number of outstanding references
func (r *Record) RefCount() int {
	return int(r.refs.Load())
}

// SubresourceCount returns the number of tracked access-state cells: one for
// buffers, the mip level count for textures, zero for other kinds.
func (r *Record) SubresourceCount() int {
	return len(r.access)
}

// AccessState returns the last known access state of one subresource.
//
// Parameters:
//   - subresource: the subresource index (0 for buffers, mip level for textures)
//
// Returns:
//   - common.AccessState: the last recorded access
func (r *Record) AccessState(subresource int) common.AccessState {
	r.accessMu.Lock()
	defer r.accessMu.Unlock()
	return r.access[subresource]
}

// SetAccessState writes back the access state of one subresource. Called by
// the scheduler after a successful execute() so the next call continues from
// the correct state.
//
// Parameters:
//   - subresource: the subresource index
//   - state: the new access state
func (r *Record) SetAccessState(subresource int, state common.AccessState) {
	r.accessMu.Lock()
	defer r.accessMu.Unlock()
	r.access[subresource] = state
}

// MarkUsed records that the record was referenced by the submission with the
// given epoch. Epochs only move forward.
//
// Parameters:
//   - epoch: the submission epoch
func (r *Record) MarkUsed(epoch uint64) {
	for {
		cur := r.lastUsedEpoch.Load()
		if cur >= epoch || r.lastUsedEpoch.CompareAndSwap(cur, epoch) {
			return
		}
	}
}

// LastUsedEpoch returns the epoch of the last submission that used the record.
func (r *Record) LastUsedEpoch() uint64 {
	return r.lastUsedEpoch.Load()
}

// destroy releases the record's driver objects. Called exactly once, by the
// deletion drain, after the record has left the registry.
func (r *Record) destroy() {
	if !r.state.CompareAndSwap(int32(recordStatePendingDeletion), int32(recordStateDestroyed)) {
		panic(fmt.Sprintf("registry: record %q destroyed twice or destroyed while live", r.label))
	}
	switch {
	case r.Buffer != nil:
		if r.Buffer.Driver != nil {
			r.Buffer.Driver.Release()
			r.Buffer.Driver = nil
		}
	case r.Texture != nil:
		if r.Texture.View != nil {
			r.Texture.View.Release()
			r.Texture.View = nil
		}
		if r.Texture.Driver != nil {
			r.Texture.Driver.Release()
			r.Texture.Driver = nil
		}
	case r.Sampler != nil:
		if r.Sampler.Driver != nil {
			r.Sampler.Driver.Release()
			r.Sampler.Driver = nil
		}
	case r.Pipeline != nil:
		if r.Pipeline.DriverRender != nil {
			r.Pipeline.DriverRender.Release()
			r.Pipeline.DriverRender = nil
		}
		if r.Pipeline.DriverCompute != nil {
			r.Pipeline.DriverCompute.Release()
			r.Pipeline.DriverCompute = nil
		}
		if r.Pipeline.PushLayout != nil {
			r.Pipeline.PushLayout.Release()
			r.Pipeline.PushLayout = nil
		}
	case r.Layout != nil:
		if r.Layout.Driver != nil {
			r.Layout.Driver.Release()
			r.Layout.Driver = nil
		}
	case r.Set != nil:
		if r.Set.Driver != nil {
			r.Set.Driver.Release()
			r.Set.Driver = nil
		}
	}
}

// references returns the handles a composite record retains: the layout and
// bound resources of a descriptor set, or the layouts of a pipeline. The
// deletion drain releases these in reverse order when the record is destroyed,
// which may enqueue further deletions consumed in the same pass.
func (r *Record) references() []Handle {
	switch {
	case r.Set != nil:
		// Release in reverse creation order: bound resources from the highest
		// binding down, then the layout last.
		bindings := make([]uint32, 0, len(r.Set.Bound))
		for binding := range r.Set.Bound {
			bindings = append(bindings, binding)
		}
		slices.Sort(bindings)
		slices.Reverse(bindings)
		refs := make([]Handle, 0, len(bindings)+1)
		for _, binding := range bindings {
			handles := r.Set.Bound[binding]
			for i := len(handles) - 1; i >= 0; i-- {
				refs = append(refs, handles[i])
			}
		}
		refs = append(refs, r.Set.Layout)
		return refs
	case r.Pipeline != nil:
		return r.Pipeline.Layouts
	default:
		return nil
	}
}
