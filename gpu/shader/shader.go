// package shader parses WGSL shader source into the reflection data the
// scheduler and pipeline validation consume: per-entry-point lists of
// (binding location, resource kind, read/write access). The reflection
// boundary is the Module type; nothing outside this package parses WGSL.
package shader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxide-go/common"
)

// ShaderType identifies which pipeline stage a shader module targets.
type ShaderType int

const (
	// ShaderTypeVertex is a vertex shader.
	ShaderTypeVertex ShaderType = iota

	// ShaderTypeFragment is a fragment shader.
	ShaderTypeFragment

	// ShaderTypeCompute is a compute shader.
	ShaderTypeCompute
)

// Stage returns the pipeline stage flag matching the shader type.
//
// Returns:
//   - common.StageFlags: the stage bit for this shader type
func (t ShaderType) Stage() common.StageFlags {
	switch t {
	case ShaderTypeVertex:
		return common.StageVertexShader
	case ShaderTypeFragment:
		return common.StageFragmentShader
	default:
		return common.StageComputeShader
	}
}

// BindingInfo is the reflected description of one shader binding: where it
// lives, what kind of resource it accepts, and how the shader accesses it.
type BindingInfo struct {
	// Group is the @group index of the binding.
	Group uint32

	// Binding is the @binding index within the group.
	Binding uint32

	// Name is the WGSL variable name, kept for error messages.
	Name string

	// Kind is the binding kind derived from the declaration's address space
	// and type.
	Kind common.BindingKind

	// Access is the access pattern the shader performs through the binding.
	Access common.AccessFlags
}

// module is the implementation of the Module interface.
type module struct {
	// key is the unique identifier for this module, used for caching and labels.
	key string

	// shaderType is the pipeline stage the module targets.
	shaderType ShaderType

	// source is the WGSL source text.
	source string

	// entryPoint is the name of the entry function for shaderType.
	entryPoint string

	// workgroupSize is the compute workgroup size; zero for non-compute shaders.
	workgroupSize [3]uint32

	// bindings is the reflected binding list, sorted by (group, binding).
	bindings []BindingInfo
}

// Module defines the interface for a parsed shader module. A Module carries
// the WGSL source for driver-side compilation plus the reflection data used
// for pipeline validation and barrier scheduling.
type Module interface {
	// Key returns the unique identifier for this module.
	//
	// Returns:
	//   - string: the module key
	Key() string

	// Type returns the pipeline stage the module targets.
	//
	// Returns:
	//   - ShaderType: vertex, fragment, or compute
	Type() ShaderType

	// Source returns the WGSL source text.
	//
	// Returns:
	//   - string: the source
	Source() string

	// EntryPoint returns the entry function name for the module's stage.
	//
	// Returns:
	//   - string: the entry point name
	EntryPoint() string

	// WorkgroupSize returns the compute workgroup size declared on the entry
	// point. Zero for non-compute shaders.
	//
	// Returns:
	//   - [3]uint32: the x, y, z workgroup dimensions
	WorkgroupSize() [3]uint32

	// Bindings returns the reflected binding list, sorted by group then binding.
	//
	// Returns:
	//   - []BindingInfo: the reflected bindings
	Bindings() []BindingInfo

	// Binding looks up the reflected info for one binding location.
	//
	// Parameters:
	//   - group: the @group index
	//   - binding: the @binding index
	//
	// Returns:
	//   - BindingInfo: the reflected info
	//   - bool: false if the shader does not declare the location
	Binding(group, binding uint32) (BindingInfo, bool)
}

// Compile-time check that module implements Module.
var _ Module = &module{}

// NewModule parses WGSL source into a Module. Parsing failures (no entry
// point for the declared type, malformed binding declarations) are
// recoverable errors, not panics, because shader source is often loaded from
// disk at runtime.
//
// Parameters:
//   - key: the unique identifier for this module
//   - shaderType: the pipeline stage the module targets
//   - source: the WGSL source text
//
// Returns:
//   - Module: the parsed module
//   - error: an error if the source could not be parsed
func NewModule(key string, shaderType ShaderType, source string) (Module, error) {
	entry, err := parseEntryPoint(source, shaderType)
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", key, err)
	}
	bindings, err := parseBindings(source)
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", key, err)
	}
	m := &module{
		key:        key,
		shaderType: shaderType,
		source:     source,
		entryPoint: entry,
		bindings:   bindings,
	}
	if shaderType == ShaderTypeCompute {
		m.workgroupSize = parseWorkgroupSize(source)
	}
	return m, nil
}

func (m *module) Key() string {
	return m.key
}

func (m *module) Type() ShaderType {
	return m.shaderType
}

func (m *module) Source() string {
	return m.source
}

func (m *module) EntryPoint() string {
	return m.entryPoint
}

func (m *module) WorkgroupSize() [3]uint32 {
	return m.workgroupSize
}

func (m *module) Bindings() []BindingInfo {
	return m.bindings
}

func (m *module) Binding(group, binding uint32) (BindingInfo, bool) {
	for _, b := range m.bindings {
		if b.Group == group && b.Binding == binding {
			return b, true
		}
	}
	return BindingInfo{}, false
}
