// access.go defines the shared GPU access vocabulary used by the registry,
// scheduler, and backend: resource kinds, access flag bitsets describing how
// a command touches a resource, and pipeline stage bitsets describing where
// that access happens. The scheduler compares AccessState values to decide
// whether a barrier is required between two commands.
package common

import "strings"

// ResourceKind identifies the kind of GPU resource a registry record holds.
type ResourceKind int

const (
	// ResourceKindBuffer is a linear GPU memory allocation.
	ResourceKindBuffer ResourceKind = iota

	// ResourceKindTexture is an image resource with one or more mip levels.
	ResourceKindTexture

	// ResourceKindSampler is a texture sampling configuration object.
	ResourceKindSampler

	// ResourceKindPipeline is a compiled render or compute pipeline.
	ResourceKindPipeline

	// ResourceKindDescriptorSetLayout is the schema for a group of shader bindings.
	ResourceKindDescriptorSetLayout

	// ResourceKindDescriptorSet is a concrete group of bound resources matching a layout.
	ResourceKindDescriptorSet
)

// String returns the lowercase name of the resource kind for labels and errors.
func (k ResourceKind) String() string {
	switch k {
	case ResourceKindBuffer:
		return "buffer"
	case ResourceKindTexture:
		return "texture"
	case ResourceKindSampler:
		return "sampler"
	case ResourceKindPipeline:
		return "pipeline"
	case ResourceKindDescriptorSetLayout:
		return "descriptor_set_layout"
	case ResourceKindDescriptorSet:
		return "descriptor_set"
	default:
		return "unknown"
	}
}

// AccessFlags is a bitset describing how a command touches a resource.
// Read bits and write bits are distinct; any combination containing a write
// bit conflicts with every other access to the same subresource.
type AccessFlags uint32

const (
	// AccessTransferRead marks the resource as the source of a copy.
	AccessTransferRead AccessFlags = 1 << iota

	// AccessTransferWrite marks the resource as the destination of a copy or write.
	AccessTransferWrite

	// AccessShaderRead marks the resource as read by shader code (uniform,
	// read-only storage, or sampled texture).
	AccessShaderRead

	// AccessShaderWrite marks the resource as written by shader code
	// (read-write storage buffer or storage texture).
	AccessShaderWrite

	// AccessAttachmentRead marks a texture read as a render pass attachment
	// (depth test, blend source).
	AccessAttachmentRead

	// AccessAttachmentWrite marks a texture written as a render pass attachment.
	AccessAttachmentWrite

	// AccessHostWrite marks a direct host-visible write outside any GPU pass.
	AccessHostWrite

	// AccessIndexRead marks a buffer bound as an index buffer.
	AccessIndexRead

	// AccessVertexRead marks a buffer bound as a vertex buffer.
	AccessVertexRead

	// AccessIndirectRead marks a buffer read for indirect draw/dispatch arguments.
	AccessIndirectRead

	// AccessNone indicates no recorded access, the state of a freshly created resource.
	AccessNone AccessFlags = 0
)

// accessWriteMask covers every write bit in AccessFlags.
const accessWriteMask = AccessTransferWrite | AccessShaderWrite | AccessAttachmentWrite | AccessHostWrite

// IsWrite reports whether the access includes any write bit.
//
// Returns:
//   - bool: true if any write bit is set
func (a AccessFlags) IsWrite() bool {
	return a&accessWriteMask != 0
}

// String returns a pipe-separated list of the set access bits, or "none".
func (a AccessFlags) String() string {
	if a == AccessNone {
		return "none"
	}
	names := []struct {
		flag AccessFlags
		name string
	}{
		{AccessTransferRead, "transfer_read"},
		{AccessTransferWrite, "transfer_write"},
		{AccessShaderRead, "shader_read"},
		{AccessShaderWrite, "shader_write"},
		{AccessAttachmentRead, "attachment_read"},
		{AccessAttachmentWrite, "attachment_write"},
		{AccessHostWrite, "host_write"},
		{AccessIndexRead, "index_read"},
		{AccessVertexRead, "vertex_read"},
		{AccessIndirectRead, "indirect_read"},
	}
	parts := make([]string, 0, 4)
	for _, n := range names {
		if a&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// StageFlags is a bitset describing the pipeline stages in which an access occurs.
type StageFlags uint32

const (
	// StageTransfer covers copy and clear operations.
	StageTransfer StageFlags = 1 << iota

	// StageVertexShader covers vertex shader execution and vertex/index fetch.
	StageVertexShader

	// StageFragmentShader covers fragment shader execution.
	StageFragmentShader

	// StageComputeShader covers compute shader execution.
	StageComputeShader

	// StageAttachment covers color and depth attachment output.
	StageAttachment

	// StageHost covers host-side writes submitted through the driver queue.
	StageHost

	// StageDrawIndirect covers indirect argument fetch at the start of a draw or dispatch.
	StageDrawIndirect

	// StageNone indicates no recorded stage.
	StageNone StageFlags = 0
)

// Span returns the union of two stage sets. The scheduler uses this to compute
// the minimal pipeline-stage span a barrier must cover: from the stages of the
// previous access to the stages of the next one.
//
// Parameters:
//   - other: the stage set to combine with
//
// Returns:
//   - StageFlags: the combined stage set
func (s StageFlags) Span(other StageFlags) StageFlags {
	return s | other
}

// AccessState is one subresource's last known GPU access: what kind of access
// it was and in which stages it happened. The registry stores one AccessState
// per buffer and one per texture mip level.
type AccessState struct {
	// Access is the access pattern of the last command that touched the subresource.
	Access AccessFlags

	// Stage is the pipeline stage set of that command.
	Stage StageFlags
}

// Compatible reports whether a new access can follow an old one on the same
// subresource without a barrier. Two accesses are compatible only when neither
// includes a write bit; read-read never requires synchronization. A transition
// out of AccessNone is always compatible because there is nothing to order
// against.
//
// Parameters:
//   - old: the subresource's current access state
//   - next: the access the upcoming command requires
//
// Returns:
//   - bool: true if no barrier is needed between the two accesses
func Compatible(old, next AccessState) bool {
	if old.Access == AccessNone {
		return true
	}
	if old.Access.IsWrite() || next.Access.IsWrite() {
		return false
	}
	return true
}
