// reflection.go scans WGSL source for the declarations that matter to the
// scheduler: entry points, workgroup sizes, and @group/@binding variable
// declarations. The address space and access qualifier of each declaration
// determine the binding kind and the read/write access mask.
package shader

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxide-go/common"
)

var (
	// bindGroupDeclRegex matches a full binding declaration, capturing the
	// group index, binding index, address space (with optional access
	// qualifier), variable name, and type.
	bindGroupDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)

	// vertexEntryRegex matches the function name following an @vertex attribute.
	vertexEntryRegex = regexp.MustCompile(`(?s)@vertex\b.*?\bfn\s+(\w+)`)

	// fragmentEntryRegex matches the function name following an @fragment attribute.
	fragmentEntryRegex = regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+(\w+)`)

	// computeEntryRegex matches the function name following a @compute attribute.
	computeEntryRegex = regexp.MustCompile(`(?s)@compute\b.*?\bfn\s+(\w+)`)

	// workgroupSizeRegex matches @workgroup_size with one to three dimensions.
	workgroupSizeRegex = regexp.MustCompile(`@workgroup_size\(\s*(\d+)\s*(?:,\s*(\d+)\s*(?:,\s*(\d+)\s*)?)?\)`)
)

// parseEntryPoint finds the entry function for the given shader type.
func parseEntryPoint(source string, shaderType ShaderType) (string, error) {
	var re *regexp.Regexp
	var attr string
	switch shaderType {
	case ShaderTypeVertex:
		re, attr = vertexEntryRegex, "@vertex"
	case ShaderTypeFragment:
		re, attr = fragmentEntryRegex, "@fragment"
	case ShaderTypeCompute:
		re, attr = computeEntryRegex, "@compute"
	}
	match := re.FindStringSubmatch(source)
	if match == nil {
		return "", fmt.Errorf("no %s entry point found", attr)
	}
	return match[1], nil
}

// parseWorkgroupSize reads the @workgroup_size attribute, defaulting missing
// dimensions to 1 and returning {1, 1, 1} when the attribute is absent.
func parseWorkgroupSize(source string) [3]uint32 {
	size := [3]uint32{1, 1, 1}
	match := workgroupSizeRegex.FindStringSubmatch(source)
	if match == nil {
		return size
	}
	for i := 0; i < 3; i++ {
		if match[i+1] != "" {
			v, err := strconv.ParseUint(match[i+1], 10, 32)
			if err == nil {
				size[i] = uint32(v)
			}
		}
	}
	return size
}

// parseBindings scans all @group/@binding declarations and classifies each
// one into a BindingInfo. Duplicate (group, binding) locations are an error.
func parseBindings(source string) ([]BindingInfo, error) {
	matches := bindGroupDeclRegex.FindAllStringSubmatch(source, -1)
	bindings := make([]BindingInfo, 0, len(matches))
	seen := make(map[[2]uint32]string, len(matches))

	for _, match := range matches {
		group, _ := strconv.ParseUint(match[1], 10, 32)
		binding, _ := strconv.ParseUint(match[2], 10, 32)
		addressSpace := strings.TrimSpace(match[3])
		varName := strings.TrimSpace(match[4])
		typeName := strings.TrimSpace(match[5])

		loc := [2]uint32{uint32(group), uint32(binding)}
		if prev, dup := seen[loc]; dup {
			return nil, fmt.Errorf("duplicate binding @group(%d) @binding(%d): %q and %q", group, binding, prev, varName)
		}
		seen[loc] = varName

		kind, err := classifyBinding(addressSpace, typeName)
		if err != nil {
			return nil, fmt.Errorf("binding %q at @group(%d) @binding(%d): %w", varName, group, binding, err)
		}

		bindings = append(bindings, BindingInfo{
			Group:   uint32(group),
			Binding: uint32(binding),
			Name:    varName,
			Kind:    kind,
			Access:  kind.Access(),
		})
	}

	sort.Slice(bindings, func(i, j int) bool {
		if bindings[i].Group != bindings[j].Group {
			return bindings[i].Group < bindings[j].Group
		}
		return bindings[i].Binding < bindings[j].Binding
	})
	return bindings, nil
}

// classifyBinding maps a WGSL declaration's address space and type to a
// binding kind. Storage textures declare their access in the type's template
// arguments; storage buffers declare it in the address space.
func classifyBinding(addressSpace, typeName string) (common.BindingKind, error) {
	switch {
	case strings.HasPrefix(typeName, "sampler"):
		return common.BindingKindSampler, nil
	case strings.HasPrefix(typeName, "texture_storage_"):
		// texture_storage_2d<format, access>
		if strings.Contains(typeName, "read_write") || strings.Contains(typeName, ", write") || strings.Contains(typeName, ",write") {
			return common.BindingKindStorageTexture, nil
		}
		return common.BindingKindSampledTexture, nil
	case strings.HasPrefix(typeName, "texture_"):
		return common.BindingKindSampledTexture, nil
	}

	space := addressSpace
	access := ""
	if i := strings.Index(addressSpace, ","); i >= 0 {
		space = strings.TrimSpace(addressSpace[:i])
		access = strings.TrimSpace(addressSpace[i+1:])
	}
	switch space {
	case "uniform":
		return common.BindingKindUniformBuffer, nil
	case "storage":
		if access == "read" {
			return common.BindingKindReadOnlyStorageBuffer, nil
		}
		// WGSL defaults storage to read, but bindings declared without a
		// qualifier are treated as read_write here so the scheduler never
		// under-synchronizes on a shader that relies on the legacy default.
		return common.BindingKindStorageBuffer, nil
	case "":
		return 0, fmt.Errorf("missing address space for non-texture binding of type %q", typeName)
	default:
		return 0, fmt.Errorf("unsupported address space %q", space)
	}
}
