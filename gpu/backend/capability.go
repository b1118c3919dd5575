package backend

import (
	"github.com/Carmen-Shannon/oxide-go/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// bindingUsage is the usage set every bindable format supports.
const bindingUsage = wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopySrc | wgpu.TextureUsageCopyDst

// formatCapabilities is the per-format capability table used for eager
// creation-time validation. WebGPU guarantees these as baseline support; the
// table errs on the guaranteed side rather than probing adapter extensions.
var formatCapabilities = map[wgpu.TextureFormat]common.FormatCapabilities{
	wgpu.TextureFormatRGBA8Unorm: {
		Usage:                  bindingUsage | wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageStorageBinding,
		RenderableSampleCounts: []uint32{1, 4},
	},
	wgpu.TextureFormatRGBA8UnormSrgb: {
		Usage:                  bindingUsage | wgpu.TextureUsageRenderAttachment,
		RenderableSampleCounts: []uint32{1, 4},
	},
	wgpu.TextureFormatBGRA8Unorm: {
		Usage:                  bindingUsage | wgpu.TextureUsageRenderAttachment,
		RenderableSampleCounts: []uint32{1, 4},
	},
	wgpu.TextureFormatBGRA8UnormSrgb: {
		Usage:                  bindingUsage | wgpu.TextureUsageRenderAttachment,
		RenderableSampleCounts: []uint32{1, 4},
	},
	wgpu.TextureFormatRGBA16Float: {
		Usage:                  bindingUsage | wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageStorageBinding,
		RenderableSampleCounts: []uint32{1, 4},
	},
	wgpu.TextureFormatRGBA32Float: {
		Usage: bindingUsage | wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageStorageBinding,
		// 32-bit float targets are not multisampled in baseline WebGPU.
		RenderableSampleCounts: []uint32{1},
	},
	wgpu.TextureFormatR32Float: {
		Usage:                  bindingUsage | wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageStorageBinding,
		RenderableSampleCounts: []uint32{1},
	},
	wgpu.TextureFormatR8Unorm: {
		Usage:                  bindingUsage | wgpu.TextureUsageRenderAttachment,
		RenderableSampleCounts: []uint32{1, 4},
	},
	wgpu.TextureFormatRG8Unorm: {
		Usage:                  bindingUsage | wgpu.TextureUsageRenderAttachment,
		RenderableSampleCounts: []uint32{1, 4},
	},
	wgpu.TextureFormatDepth24Plus: {
		Usage:                  wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding,
		RenderableSampleCounts: []uint32{1, 4},
	},
	wgpu.TextureFormatDepth32Float: {
		Usage:                  wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopySrc,
		RenderableSampleCounts: []uint32{1, 4},
	},
}

// lookupCapabilities returns the capability entry for a format, falling back
// to copy/binding-only support for formats outside the table.
func lookupCapabilities(format wgpu.TextureFormat) common.FormatCapabilities {
	if caps, ok := formatCapabilities[format]; ok {
		return caps
	}
	return common.FormatCapabilities{Usage: bindingUsage}
}
