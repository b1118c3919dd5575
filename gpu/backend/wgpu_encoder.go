package backend

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxide-go/common"
	"github.com/Carmen-Shannon/oxide-go/gpu/registry"
	"github.com/cogentcore/webgpu/wgpu"
)

// wgpuEncoder encodes scheduled steps into a WebGPU command encoder and
// submits on Finish. It is single-use and not safe for concurrent calls.
//
// Encoding errors are sticky: the first failure is retained and every later
// call becomes a no-op, so the executor only has to check Finish.
type wgpuEncoder struct {
	driver  *wgpuDriver
	label   string
	encoder *wgpu.CommandEncoder

	renderPass  *wgpu.RenderPassEncoder
	computePass *wgpu.ComputePassEncoder

	// attachment views created for non-zero mip levels, plus push-constant
	// scratch buffers and bind groups. Handed to the caller via Transients.
	transients []Transient

	err error
}

var _ Encoder = &wgpuEncoder{}

func (e *wgpuEncoder) CopyBufferToBuffer(src, dst *registry.BufferRecord, srcOffset, dstOffset, size uint64) {
	if e.err != nil {
		return
	}
	if err := e.encoder.CopyBufferToBuffer(src.Driver, srcOffset, dst.Driver, dstOffset, size); err != nil {
		e.err = fmt.Errorf("backend: copy buffer to buffer: %w", err)
	}
}

func (e *wgpuEncoder) CopyStagingToBuffer(src *StagingBuffer, dst *registry.BufferRecord, dstOffset uint64) {
	if e.err != nil {
		return
	}
	if err := e.encoder.CopyBufferToBuffer(src.Driver, 0, dst.Driver, dstOffset, src.Size); err != nil {
		e.err = fmt.Errorf("backend: copy staging to buffer: %w", err)
	}
}

func (e *wgpuEncoder) CopyStagingToTexture(src *StagingBuffer, dst *registry.TextureRecord, mipLevel, bytesPerRow, rowsPerImage uint32) {
	if e.err != nil {
		return
	}
	err := e.encoder.CopyBufferToTexture(
		&wgpu.ImageCopyBuffer{
			Buffer: src.Driver,
			Layout: wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  bytesPerRow,
				RowsPerImage: rowsPerImage,
			},
		},
		&wgpu.ImageCopyTexture{
			Texture:  dst.Driver,
			MipLevel: mipLevel,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		mipExtent(dst, mipLevel),
	)
	if err != nil {
		e.err = fmt.Errorf("backend: copy staging to texture: %w", err)
	}
}

func (e *wgpuEncoder) CopyBufferToTexture(src *registry.BufferRecord, srcOffset uint64, bytesPerRow, rowsPerImage uint32, dst *registry.TextureRecord, mipLevel uint32) {
	if e.err != nil {
		return
	}
	err := e.encoder.CopyBufferToTexture(
		&wgpu.ImageCopyBuffer{
			Buffer: src.Driver,
			Layout: wgpu.TextureDataLayout{
				Offset:       srcOffset,
				BytesPerRow:  bytesPerRow,
				RowsPerImage: rowsPerImage,
			},
		},
		&wgpu.ImageCopyTexture{
			Texture:  dst.Driver,
			MipLevel: mipLevel,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		mipExtent(dst, mipLevel),
	)
	if err != nil {
		e.err = fmt.Errorf("backend: copy buffer to texture: %w", err)
	}
}

func (e *wgpuEncoder) CopyTextureToTexture(src *registry.TextureRecord, srcMip uint32, dst *registry.TextureRecord, dstMip uint32) {
	if e.err != nil {
		return
	}
	err := e.encoder.CopyTextureToTexture(
		&wgpu.ImageCopyTexture{
			Texture:  src.Driver,
			MipLevel: srcMip,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		&wgpu.ImageCopyTexture{
			Texture:  dst.Driver,
			MipLevel: dstMip,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		mipExtent(src, srcMip),
	)
	if err != nil {
		e.err = fmt.Errorf("backend: copy texture to texture: %w", err)
	}
}

// Transition is a validation point only. WebGPU inserts barriers implicitly
// at pass and copy boundaries, so there is nothing to encode.
func (e *wgpuEncoder) Transition(target *registry.Record, subresources common.SubresourceRange, old, next common.AccessState) {
}

func (e *wgpuEncoder) BeginRenderPass(label string, colors []EncoderColorAttachment, depth *EncoderDepthAttachment) error {
	if e.err != nil {
		return e.err
	}

	colorAttachments := make([]wgpu.RenderPassColorAttachment, len(colors))
	for i, att := range colors {
		view, err := e.attachmentView(att.Texture, att.MipLevel)
		if err != nil {
			e.err = err
			return err
		}
		colorAttachments[i] = wgpu.RenderPassColorAttachment{
			View:       view,
			LoadOp:     att.LoadOp,
			StoreOp:    att.StoreOp,
			ClearValue: att.ClearValue,
		}
	}

	descriptor := &wgpu.RenderPassDescriptor{
		Label:            label,
		ColorAttachments: colorAttachments,
	}
	if depth != nil {
		descriptor.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            depth.Texture.View,
			DepthLoadOp:     depth.LoadOp,
			DepthStoreOp:    depth.StoreOp,
			DepthClearValue: depth.ClearDepth,
		}
	}

	e.renderPass = e.encoder.BeginRenderPass(descriptor)
	return nil
}

func (e *wgpuEncoder) BindRenderPipeline(rec *registry.PipelineRecord) {
	if e.err != nil {
		return
	}
	e.renderPass.SetPipeline(rec.DriverRender)
}

func (e *wgpuEncoder) BindDescriptorSet(group uint32, rec *registry.SetRecord) {
	if e.err != nil {
		return
	}
	if e.renderPass != nil {
		e.renderPass.SetBindGroup(group, rec.Driver, nil)
		return
	}
	e.computePass.SetBindGroup(group, rec.Driver, nil)
}

func (e *wgpuEncoder) BindVertexBuffer(rec *registry.BufferRecord) {
	if e.err != nil {
		return
	}
	e.renderPass.SetVertexBuffer(0, rec.Driver, 0, wgpu.WholeSize)
}

func (e *wgpuEncoder) BindIndexBuffer(rec *registry.BufferRecord) {
	if e.err != nil {
		return
	}
	e.renderPass.SetIndexBuffer(rec.Driver, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
}

// PushConstants emulates push constants with a scratch uniform buffer bound
// through the pipeline's reserved bind group. The scratch buffer and bind
// group live until the submission retires.
func (e *wgpuEncoder) PushConstants(pipeline *registry.PipelineRecord, data []byte) {
	if e.err != nil {
		return
	}
	if pipeline.PushLayout == nil {
		e.err = errors.New("backend: push constants on a pipeline without a push constant range")
		return
	}

	size := common.AlignUp(uint64(len(data)), 16)
	scratch, err := e.driver.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: e.label + " push constants",
		Size:  size,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		e.err = fmt.Errorf("backend: create push constant scratch: %w", err)
		return
	}
	e.transients = append(e.transients, scratch)
	e.driver.queue.WriteBuffer(scratch, 0, data)

	bindGroup, err := e.driver.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  e.label + " push constants",
		Layout: pipeline.PushLayout,
		Entries: []wgpu.BindGroupEntry{
			{
				Binding: 0,
				Buffer:  scratch,
				Offset:  0,
				Size:    wgpu.WholeSize,
			},
		},
	})
	if err != nil {
		e.err = fmt.Errorf("backend: create push constant bind group: %w", err)
		return
	}
	e.transients = append(e.transients, bindGroup)

	if e.renderPass != nil {
		e.renderPass.SetBindGroup(pipeline.PushGroup, bindGroup, nil)
		return
	}
	e.computePass.SetBindGroup(pipeline.PushGroup, bindGroup, nil)
}

func (e *wgpuEncoder) Draw(vertexCount, instanceCount uint32) {
	if e.err != nil {
		return
	}
	e.renderPass.Draw(vertexCount, instanceCount, 0, 0)
}

func (e *wgpuEncoder) DrawIndexed(indexCount, instanceCount uint32) {
	if e.err != nil {
		return
	}
	e.renderPass.DrawIndexed(indexCount, instanceCount, 0, 0, 0)
}

func (e *wgpuEncoder) DrawIndirect(args *registry.BufferRecord, offset uint64) {
	if e.err != nil {
		return
	}
	e.renderPass.DrawIndexedIndirect(args.Driver, offset)
}

func (e *wgpuEncoder) EndRenderPass() {
	if e.err != nil {
		return
	}
	e.renderPass.End()
	e.renderPass.Release()
	e.renderPass = nil
}

func (e *wgpuEncoder) BeginComputePass(label string) {
	if e.err != nil {
		return
	}
	e.computePass = e.encoder.BeginComputePass(&wgpu.ComputePassDescriptor{Label: label})
}

func (e *wgpuEncoder) BindComputePipeline(rec *registry.PipelineRecord) {
	if e.err != nil {
		return
	}
	e.computePass.SetPipeline(rec.DriverCompute)
}

func (e *wgpuEncoder) Dispatch(x, y, z uint32) {
	if e.err != nil {
		return
	}
	e.computePass.DispatchWorkgroups(x, y, z)
}

func (e *wgpuEncoder) DispatchIndirect(args *registry.BufferRecord, offset uint64) {
	if e.err != nil {
		return
	}
	e.computePass.DispatchWorkgroupsIndirect(args.Driver, offset)
}

func (e *wgpuEncoder) EndComputePass() {
	if e.err != nil {
		return
	}
	e.computePass.End()
	e.computePass.Release()
	e.computePass = nil
}

func (e *wgpuEncoder) Finish() error {
	if e.err != nil {
		e.encoder.Release()
		e.encoder = nil
		return e.err
	}

	commandBuffer, err := e.encoder.Finish(nil)
	if err != nil {
		e.encoder.Release()
		e.encoder = nil
		return fmt.Errorf("backend: finish %q: %w", e.label, err)
	}

	e.driver.queue.Submit(commandBuffer)

	commandBuffer.Release()
	e.encoder.Release()
	e.encoder = nil
	return nil
}

func (e *wgpuEncoder) Transients() []Transient {
	return e.transients
}

// attachmentView returns a view of one mip level of the target texture. The
// record's whole-texture view serves for single-mip textures; otherwise a
// dedicated view is created and tracked as a transient.
func (e *wgpuEncoder) attachmentView(rec *registry.TextureRecord, mipLevel uint32) (*wgpu.TextureView, error) {
	if rec.MipLevels == 1 && mipLevel == 0 {
		return rec.View, nil
	}
	view, err := rec.Driver.CreateView(&wgpu.TextureViewDescriptor{
		Format:          rec.Format,
		Dimension:       wgpu.TextureViewDimension2D,
		BaseMipLevel:    mipLevel,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: 1,
		Aspect:          wgpu.TextureAspectAll,
	})
	if err != nil {
		return nil, fmt.Errorf("backend: create attachment view mip %d: %w", mipLevel, err)
	}
	e.transients = append(e.transients, view)
	return view, nil
}

// mipExtent is the full extent of one mip level of a texture.
func mipExtent(rec *registry.TextureRecord, mipLevel uint32) *wgpu.Extent3D {
	return &wgpu.Extent3D{
		Width:              max(1, rec.Width>>mipLevel),
		Height:             max(1, rec.Height>>mipLevel),
		DepthOrArrayLayers: 1,
	}
}
