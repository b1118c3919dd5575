package common

// BindingKind identifies the kind of resource a descriptor set layout entry
// accepts. It is the schema-level counterpart of ResourceKind: a layout entry
// of kind BindingKindStorageBuffer can only be satisfied by a buffer created
// with storage usage, and so on.
type BindingKind int

const (
	// BindingKindUniformBuffer is a read-only uniform buffer binding.
	BindingKindUniformBuffer BindingKind = iota

	// BindingKindStorageBuffer is a read-write storage buffer binding.
	BindingKindStorageBuffer

	// BindingKindReadOnlyStorageBuffer is a read-only storage buffer binding.
	BindingKindReadOnlyStorageBuffer

	// BindingKindSampledTexture is a sampled texture binding.
	BindingKindSampledTexture

	// BindingKindStorageTexture is a writable storage texture binding.
	BindingKindStorageTexture

	// BindingKindSampler is a sampler binding.
	BindingKindSampler
)

// String returns the lowercase name of the binding kind for labels and errors.
func (k BindingKind) String() string {
	switch k {
	case BindingKindUniformBuffer:
		return "uniform_buffer"
	case BindingKindStorageBuffer:
		return "storage_buffer"
	case BindingKindReadOnlyStorageBuffer:
		return "read_only_storage_buffer"
	case BindingKindSampledTexture:
		return "sampled_texture"
	case BindingKindStorageTexture:
		return "storage_texture"
	case BindingKindSampler:
		return "sampler"
	default:
		return "unknown"
	}
}

// Access returns the access pattern shader code performs through a binding of
// this kind. Uniform buffers, read-only storage, sampled textures, and
// samplers are reads; writable storage buffers and storage textures are
// read-write.
//
// Returns:
//   - AccessFlags: the access bits implied by the binding kind
func (k BindingKind) Access() AccessFlags {
	switch k {
	case BindingKindStorageBuffer, BindingKindStorageTexture:
		return AccessShaderRead | AccessShaderWrite
	default:
		return AccessShaderRead
	}
}

// ResourceKind returns the registry resource kind a binding of this kind binds.
//
// Returns:
//   - ResourceKind: buffer, texture, or sampler
func (k BindingKind) ResourceKind() ResourceKind {
	switch k {
	case BindingKindUniformBuffer, BindingKindStorageBuffer, BindingKindReadOnlyStorageBuffer:
		return ResourceKindBuffer
	case BindingKindSampledTexture, BindingKindStorageTexture:
		return ResourceKindTexture
	default:
		return ResourceKindSampler
	}
}
