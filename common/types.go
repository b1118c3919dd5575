// package common contains common types used throughout the scheduler. They are
// not interface-wrapped structs, just plain structs and bitsets that express
// commonly used data-types shared by the registry, scheduler, and backend.
package common

import "github.com/cogentcore/webgpu/wgpu"

// FormatCapabilities describes what a texture format supports on the current
// adapter. The driver backend fills one of these per format; texture creation
// validates requested usage against it before any GPU call is made.
type FormatCapabilities struct {
	// Usage is the set of texture usage flags the format supports.
	Usage wgpu.TextureUsage

	// RenderableSampleCounts lists the MSAA sample counts the format can be
	// rendered with. Empty if the format is not renderable.
	RenderableSampleCounts []uint32
}

// Supports reports whether every bit of the requested usage is supported.
//
// Parameters:
//   - usage: the requested texture usage flags
//
// Returns:
//   - bool: true if the format supports all requested usage bits
func (c FormatCapabilities) Supports(usage wgpu.TextureUsage) bool {
	return c.Usage&usage == usage
}

// SubresourceRange addresses the independently trackable portion of a resource
// that a barrier applies to. For buffers the range is always the whole object.
// For textures it selects a run of mip levels.
type SubresourceRange struct {
	// BaseMipLevel is the first mip level covered by the range.
	BaseMipLevel uint32

	// MipLevelCount is the number of mip levels covered, starting at BaseMipLevel.
	MipLevelCount uint32
}

// WholeResource returns the subresource range covering a single-subresource
// object such as a buffer or a one-mip texture.
//
// Returns:
//   - SubresourceRange: the range {0, 1}
func WholeResource() SubresourceRange {
	return SubresourceRange{BaseMipLevel: 0, MipLevelCount: 1}
}
