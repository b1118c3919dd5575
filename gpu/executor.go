package gpu

import (
	"fmt"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxide-go/gpu/backend"
	"github.com/Carmen-Shannon/oxide-go/gpu/command"
	"github.com/Carmen-Shannon/oxide-go/gpu/registry"
	"github.com/Carmen-Shannon/oxide-go/gpu/scheduler"
)

// FrameStats summarizes one execute call.
type FrameStats struct {
	// Commands is the number of scheduled command steps.
	Commands int

	// Barriers is the number of barrier steps the scheduler inserted.
	Barriers int

	// StagingBytes is the total staging buffer bytes allocated for writes.
	StagingBytes uint64
}

// TemporaryResources bundles the driver objects an execute call created
// implicitly: staging buffers, push-constant scratch allocations, transient
// attachment views. They must outlive the submitted GPU work; hand the
// bundle back to Destroy once the submission is known retired.
type TemporaryResources struct {
	// Epoch is the submission epoch of the execute call that produced the
	// bundle. Destroying the bundle marks this epoch retired.
	Epoch uint64

	// Stats summarizes the execute call.
	Stats FrameStats

	items []backend.Transient
}

// CommandExecutor drains the queue's recorder once per frame, schedules the
// commands, and walks the resulting steps into a driver encoder. Execute is
// single-threaded and synchronous; it runs to completion once started.
type CommandExecutor interface {
	// Execute drains the recorder, schedules the drained commands against
	// the registry's access state, and emits one encoder call per step,
	// finishing with a queue submission. Staging buffers for host writes are
	// allocated here and returned in the bundle.
	//
	// Parameters:
	//   - encoder: the driver encoder for this submission
	//
	// Returns:
	//   - *TemporaryResources: objects that must outlive the submission
	//   - error: an error if scheduling, materialization, or submission fails
	Execute(encoder backend.Encoder) (*TemporaryResources, error)

	// Destroy releases a bundle's driver objects and drains the deletion
	// queue up to the bundle's epoch. Call only after the bundle's
	// submission is externally confirmed retired.
	//
	// Parameters:
	//   - tr: the bundle to destroy
	Destroy(tr *TemporaryResources)

	// Cleanup drains the deletion queue, destroying pending records whose
	// last use is at or before the given retired epoch. Records used by a
	// later submission stay pending. Calling twice with no intervening use
	// is a no-op the second time.
	//
	// Parameters:
	//   - retiredEpoch: the highest submission epoch known to have retired
	//
	// Returns:
	//   - int: the number of records destroyed
	Cleanup(retiredEpoch uint64) int

	// Epoch returns the submission epoch of the most recent Execute call.
	Epoch() uint64
}

type commandExecutor struct {
	queue  *commandQueue
	driver backend.Driver
	epoch  atomic.Uint64
}

var _ CommandExecutor = &commandExecutor{}

// NewCommandExecutor creates the executor paired with a command queue.
//
// Parameters:
//   - queue: the command queue whose recorder the executor drains
//   - driver: the driver that materializes objects and allocates staging
//
// Returns:
//   - CommandExecutor: the new executor
func NewCommandExecutor(queue CommandQueue, driver backend.Driver) CommandExecutor {
	return &commandExecutor{
		queue:  queue.(*commandQueue),
		driver: driver,
	}
}

func (e *commandExecutor) Epoch() uint64 {
	return e.epoch.Load()
}

func (e *commandExecutor) Execute(encoder backend.Encoder) (*TemporaryResources, error) {
	epoch := e.epoch.Add(1)
	reg := e.queue.reg

	priority, main := e.queue.recorder.Drain()
	steps, err := scheduler.Schedule(priority, main, reg, epoch)
	if err != nil {
		return nil, err
	}

	tr := &TemporaryResources{Epoch: epoch}
	for _, step := range steps {
		switch s := step.(type) {
		case scheduler.BarrierStep:
			rec, err := reg.Get(s.Target)
			if err != nil {
				return tr, err
			}
			encoder.Transition(rec, s.Range, s.Old, s.New)
			tr.Stats.Barriers++
		case scheduler.CommandStep:
			if err := e.emit(encoder, s.Command, tr); err != nil {
				return tr, err
			}
			tr.Stats.Commands++
		}
	}

	tr.items = append(tr.items, encoder.Transients()...)
	if err := encoder.Finish(); err != nil {
		return tr, err
	}
	return tr, nil
}

// emit translates one scheduled command into encoder or driver calls.
func (e *commandExecutor) emit(encoder backend.Encoder, cmd command.Command, tr *TemporaryResources) error {
	reg := e.queue.reg

	switch c := cmd.(type) {
	case command.CreateBuffer:
		rec, err := reg.Get(c.Buffer)
		if err != nil {
			return err
		}
		return e.driver.MaterializeBuffer(rec.Label(), rec.Buffer)

	case command.CreateTexture:
		rec, err := reg.Get(c.Texture)
		if err != nil {
			return err
		}
		return e.driver.MaterializeTexture(rec.Label(), rec.Texture)

	case command.CreateSampler:
		rec, err := reg.Get(c.Sampler)
		if err != nil {
			return err
		}
		return e.driver.MaterializeSampler(rec.Label(), rec.Sampler)

	case command.CreateDescriptorSetLayout:
		rec, err := reg.Get(c.Layout)
		if err != nil {
			return err
		}
		return e.driver.MaterializeLayout(rec.Label(), rec.Layout)

	case command.CreateDescriptorSet:
		rec, err := reg.Get(c.Set)
		if err != nil {
			return err
		}
		layoutRec, err := reg.Get(rec.Set.Layout)
		if err != nil {
			return err
		}
		return e.driver.MaterializeSet(rec.Label(), rec.Set, layoutRec.Layout, reg.Get)

	case command.CreatePipeline:
		rec, err := reg.Get(c.Pipeline)
		if err != nil {
			return err
		}
		layouts := make([]*registry.LayoutRecord, len(rec.Pipeline.Layouts))
		for i, h := range rec.Pipeline.Layouts {
			layoutRec, err := reg.Get(h)
			if err != nil {
				return err
			}
			layouts[i] = layoutRec.Layout
		}
		return e.driver.MaterializePipeline(rec.Label(), rec.Pipeline, layouts)

	case command.WriteBuffer:
		rec, err := reg.Get(c.Dst)
		if err != nil {
			return err
		}
		if !c.ViaStaging {
			e.driver.WriteBuffer(rec.Buffer, c.Offset, c.Data)
			return nil
		}
		staging, err := e.driver.CreateStagingBuffer(rec.Label()+" staging", c.Data)
		if err != nil {
			return err
		}
		tr.items = append(tr.items, staging)
		tr.Stats.StagingBytes += staging.Size
		encoder.CopyStagingToBuffer(staging, rec.Buffer, c.Offset)
		return nil

	case command.WriteTexture:
		rec, err := reg.Get(c.Dst)
		if err != nil {
			return err
		}
		staging, err := e.driver.CreateStagingBuffer(rec.Label()+" staging", c.Data)
		if err != nil {
			return err
		}
		tr.items = append(tr.items, staging)
		tr.Stats.StagingBytes += staging.Size
		encoder.CopyStagingToTexture(staging, rec.Texture, c.MipLevel, c.BytesPerRow, c.RowsPerImage)
		return nil

	case command.CopyBufferToBuffer:
		src, err := reg.Get(c.Src)
		if err != nil {
			return err
		}
		dst, err := reg.Get(c.Dst)
		if err != nil {
			return err
		}
		encoder.CopyBufferToBuffer(src.Buffer, dst.Buffer, c.SrcOffset, c.DstOffset, c.Size)
		return nil

	case command.CopyBufferToTexture:
		src, err := reg.Get(c.Src)
		if err != nil {
			return err
		}
		dst, err := reg.Get(c.Dst)
		if err != nil {
			return err
		}
		encoder.CopyBufferToTexture(src.Buffer, c.SrcOffset, c.BytesPerRow, c.RowsPerImage, dst.Texture, c.MipLevel)
		return nil

	case command.CopyTextureToTexture:
		src, err := reg.Get(c.Src)
		if err != nil {
			return err
		}
		dst, err := reg.Get(c.Dst)
		if err != nil {
			return err
		}
		encoder.CopyTextureToTexture(src.Texture, c.SrcMipLevel, dst.Texture, c.DstMipLevel)
		return nil

	case command.Transition:
		// Fully expressed by the barrier steps the scheduler derived from it.
		return nil

	case command.RenderPass:
		return e.emitRenderPass(encoder, c)

	case command.ComputePass:
		return e.emitComputePass(encoder, c)

	default:
		return fmt.Errorf("gpu: unhandled command %T", cmd)
	}
}

func (e *commandExecutor) emitRenderPass(encoder backend.Encoder, pass command.RenderPass) error {
	reg := e.queue.reg

	colors := make([]backend.EncoderColorAttachment, len(pass.ColorAttachments))
	for i, att := range pass.ColorAttachments {
		rec, err := reg.Get(att.Target)
		if err != nil {
			return err
		}
		colors[i] = backend.EncoderColorAttachment{
			Texture:    rec.Texture,
			MipLevel:   att.MipLevel,
			LoadOp:     att.LoadOp,
			StoreOp:    att.StoreOp,
			ClearValue: att.ClearValue,
		}
	}
	var depth *backend.EncoderDepthAttachment
	if pass.Depth != nil {
		rec, err := reg.Get(pass.Depth.Target)
		if err != nil {
			return err
		}
		depth = &backend.EncoderDepthAttachment{
			Texture:    rec.Texture,
			LoadOp:     pass.Depth.LoadOp,
			StoreOp:    pass.Depth.StoreOp,
			ClearDepth: pass.Depth.ClearDepth,
		}
	}

	if err := encoder.BeginRenderPass(pass.Label, colors, depth); err != nil {
		return err
	}

	for _, draw := range pass.Draws {
		pipelineRec, err := reg.Get(draw.Pipeline)
		if err != nil {
			return err
		}
		encoder.BindRenderPipeline(pipelineRec.Pipeline)

		if err := e.bindSets(encoder, draw.Sets); err != nil {
			return err
		}
		if len(draw.PushConstants) > 0 {
			encoder.PushConstants(pipelineRec.Pipeline, draw.PushConstants)
		}

		if draw.VertexBuffer.Valid() {
			rec, err := reg.Get(draw.VertexBuffer)
			if err != nil {
				return err
			}
			encoder.BindVertexBuffer(rec.Buffer)
		}
		if draw.IndexBuffer.Valid() {
			rec, err := reg.Get(draw.IndexBuffer)
			if err != nil {
				return err
			}
			encoder.BindIndexBuffer(rec.Buffer)
		}

		switch draw.Kind {
		case command.DrawKindVertices:
			encoder.Draw(draw.VertexCount, draw.InstanceCount)
		case command.DrawKindIndexed:
			encoder.DrawIndexed(draw.IndexCount, draw.InstanceCount)
		case command.DrawKindIndirect:
			rec, err := reg.Get(draw.Indirect)
			if err != nil {
				return err
			}
			encoder.DrawIndirect(rec.Buffer, draw.IndirectOffset)
		}
	}

	encoder.EndRenderPass()
	return nil
}

func (e *commandExecutor) emitComputePass(encoder backend.Encoder, pass command.ComputePass) error {
	reg := e.queue.reg

	encoder.BeginComputePass(pass.Label)
	for _, dispatch := range pass.Dispatches {
		pipelineRec, err := reg.Get(dispatch.Pipeline)
		if err != nil {
			return err
		}
		encoder.BindComputePipeline(pipelineRec.Pipeline)

		if err := e.bindSets(encoder, dispatch.Sets); err != nil {
			return err
		}
		if len(dispatch.PushConstants) > 0 {
			encoder.PushConstants(pipelineRec.Pipeline, dispatch.PushConstants)
		}

		if dispatch.Indirect.Valid() {
			rec, err := reg.Get(dispatch.Indirect)
			if err != nil {
				return err
			}
			encoder.DispatchIndirect(rec.Buffer, dispatch.IndirectOffset)
		} else {
			encoder.Dispatch(dispatch.Workgroups[0], dispatch.Workgroups[1], dispatch.Workgroups[2])
		}
	}
	encoder.EndComputePass()
	return nil
}

func (e *commandExecutor) bindSets(encoder backend.Encoder, sets []registry.Handle) error {
	for group, set := range sets {
		rec, err := e.queue.reg.Get(set)
		if err != nil {
			return err
		}
		encoder.BindDescriptorSet(uint32(group), rec.Set)
	}
	return nil
}

func (e *commandExecutor) Destroy(tr *TemporaryResources) {
	if tr == nil {
		return
	}
	for _, item := range tr.items {
		item.Release()
	}
	tr.items = nil
	e.Cleanup(tr.Epoch)
}

func (e *commandExecutor) Cleanup(retiredEpoch uint64) int {
	return e.queue.reg.DrainDeletions(retiredEpoch)
}
