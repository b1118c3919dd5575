// package scheduler converts a drained command queue plus the registry's last
// known access states into an ordered list of execution steps, inserting
// synchronization barriers only where access conflicts require them.
//
// Commands are never reordered relative to their recorded order: the
// scheduler only decides whether to insert a barrier before a command, never
// when the command runs relative to other commands. That keeps the algorithm
// O(commands x touched-resources) with no dependency graph or topological
// sort.
package scheduler

import (
	"fmt"
	"sort"

	"github.com/Carmen-Shannon/oxide-go/common"
	"github.com/Carmen-Shannon/oxide-go/gpu/command"
	"github.com/Carmen-Shannon/oxide-go/gpu/registry"
	"github.com/cogentcore/webgpu/wgpu"
)

// subresourceKey addresses one tracked access-state cell during scheduling.
type subresourceKey struct {
	handle      registry.Handle
	subresource int
}

// scheduleState is the transient per-call bookkeeping: the working access map
// seeded lazily from the registry, the set of records the submission uses,
// and the step list under construction.
type scheduleState struct {
	reg    *registry.Registry
	epoch  uint64
	states map[subresourceKey]common.AccessState
	used   map[registry.Handle]*registry.Record
	steps  []Step
}

// Schedule walks the drained command queues in recorded order (priority
// commands first) and produces the execution step list. For every
// (resource, subresource, access) pair a command touches, the requested
// access is compared against the subresource's current state; an incompatible
// pair (any write involved, or an explicit state change) gets a BarrierStep
// emitted immediately before the command, computed as the minimal stage span
// covering both accesses. Compatible pairs (read-read) emit nothing.
//
// On success the final access state of every touched subresource is written
// back into the registry and every referenced record is marked as used by the
// given submission epoch, so the deletion drain defers their destruction
// until the epoch retires.
//
// Parameters:
//   - priority: the drained priority queue in recorded order
//   - main: the drained main queue in recorded order
//   - reg: the registry holding the seed access states
//   - epoch: the submission epoch of the upcoming execute call
//
// Returns:
//   - []Step: the ordered execution steps
//   - error: an error if a command references a dead handle
func Schedule(priority, main []command.Command, reg *registry.Registry, epoch uint64) ([]Step, error) {
	s := &scheduleState{
		reg:    reg,
		epoch:  epoch,
		states: make(map[subresourceKey]common.AccessState),
		used:   make(map[registry.Handle]*registry.Record),
	}

	for _, cmd := range priority {
		if err := s.schedule(cmd); err != nil {
			return nil, err
		}
	}
	for _, cmd := range main {
		if err := s.schedule(cmd); err != nil {
			return nil, err
		}
	}

	// Write the final states back so the next execute call continues from
	// the correct seed, and stamp the epoch on every record the submission
	// references.
	for key, state := range s.states {
		record := s.used[key.handle]
		record.SetAccessState(key.subresource, state)
	}
	for _, record := range s.used {
		record.MarkUsed(epoch)
	}
	return s.steps, nil
}

// schedule resolves one command's touched set, emits any required barriers
// before it, and appends the command step.
func (s *scheduleState) schedule(cmd command.Command) error {
	cmd = s.reroute(cmd)
	touches, err := s.touches(cmd)
	if err != nil {
		return err
	}
	for _, t := range touches {
		if err := s.apply(t); err != nil {
			return err
		}
	}
	s.steps = append(s.steps, CommandStep{Command: cmd})
	return nil
}

// reroute rewrites a direct host write into a staged one when an earlier
// command of the same submission already touched the destination. Driver
// queue writes land before the submitted command buffer regardless of when
// they were recorded, so keeping the write direct would let it jump ahead of
// the commands it was recorded after.
func (s *scheduleState) reroute(cmd command.Command) command.Command {
	wb, ok := cmd.(command.WriteBuffer)
	if !ok || wb.ViaStaging {
		return cmd
	}
	if _, seen := s.states[subresourceKey{handle: wb.Dst}]; seen {
		wb.ViaStaging = true
		return wb
	}
	return cmd
}

// touch is one (resource, subresource, access) requirement of a command.
type touch struct {
	handle      registry.Handle
	subresource int
	state       common.AccessState

	// forced marks explicit Transition commands, which emit a barrier on any
	// state difference, not only on read/write conflicts.
	forced bool
}

// apply compares a touch against the working access state and emits a
// barrier step when the accesses are incompatible. Compatible reads merge
// their stage sets so a later writer synchronizes against every reader.
func (s *scheduleState) apply(t touch) error {
	record, err := s.track(t.handle)
	if err != nil {
		return err
	}
	key := subresourceKey{handle: t.handle, subresource: t.subresource}
	old, seen := s.states[key]
	if !seen {
		old = record.AccessState(t.subresource)
	}

	switch {
	case t.forced:
		if old != t.state {
			s.emitBarrier(t, old)
		}
		s.states[key] = t.state
	case common.Compatible(old, t.state):
		merged := old
		merged.Access |= t.state.Access
		merged.Stage = merged.Stage.Span(t.state.Stage)
		s.states[key] = merged
	default:
		s.emitBarrier(t, old)
		s.states[key] = t.state
	}
	return nil
}

func (s *scheduleState) emitBarrier(t touch, old common.AccessState) {
	r := common.WholeResource()
	if t.handle.Kind() == common.ResourceKindTexture {
		r = common.SubresourceRange{BaseMipLevel: uint32(t.subresource), MipLevelCount: 1}
	}
	s.steps = append(s.steps, BarrierStep{
		Target: t.handle,
		Range:  r,
		Old:    old,
		New:    t.state,
	})
}

// track resolves a handle once per schedule call and remembers its record in
// the used set.
func (s *scheduleState) track(h registry.Handle) (*registry.Record, error) {
	if record, ok := s.used[h]; ok {
		return record, nil
	}
	record, err := s.reg.Get(h)
	if err != nil {
		return nil, fmt.Errorf("scheduler: command references %s: %w", h, err)
	}
	s.used[h] = record
	return record, nil
}

// touches resolves the set of subresource accesses a command performs, using
// explicit fields for create/write/copy commands and reflection-derived
// access masks for pass sub-commands.
func (s *scheduleState) touches(cmd command.Command) ([]touch, error) {
	switch c := cmd.(type) {
	case command.CreateBuffer:
		_, err := s.track(c.Buffer)
		return nil, err
	case command.CreateTexture:
		_, err := s.track(c.Texture)
		return nil, err
	case command.CreateSampler:
		_, err := s.track(c.Sampler)
		return nil, err
	case command.CreateDescriptorSetLayout:
		_, err := s.track(c.Layout)
		return nil, err
	case command.CreateDescriptorSet:
		_, err := s.track(c.Set)
		return nil, err
	case command.CreatePipeline:
		_, err := s.track(c.Pipeline)
		return nil, err

	case command.WriteBuffer:
		state := common.AccessState{Access: common.AccessHostWrite, Stage: common.StageHost}
		if c.ViaStaging {
			state = common.AccessState{Access: common.AccessTransferWrite, Stage: common.StageTransfer}
		}
		return []touch{{handle: c.Dst, subresource: 0, state: state}}, nil

	case command.WriteTexture:
		return []touch{{
			handle:      c.Dst,
			subresource: int(c.MipLevel),
			state:       common.AccessState{Access: common.AccessTransferWrite, Stage: common.StageTransfer},
		}}, nil

	case command.CopyBufferToBuffer:
		return []touch{
			{handle: c.Src, subresource: 0, state: common.AccessState{Access: common.AccessTransferRead, Stage: common.StageTransfer}},
			{handle: c.Dst, subresource: 0, state: common.AccessState{Access: common.AccessTransferWrite, Stage: common.StageTransfer}},
		}, nil

	case command.CopyBufferToTexture:
		return []touch{
			{handle: c.Src, subresource: 0, state: common.AccessState{Access: common.AccessTransferRead, Stage: common.StageTransfer}},
			{handle: c.Dst, subresource: int(c.MipLevel), state: common.AccessState{Access: common.AccessTransferWrite, Stage: common.StageTransfer}},
		}, nil

	case command.CopyTextureToTexture:
		return []touch{
			{handle: c.Src, subresource: int(c.SrcMipLevel), state: common.AccessState{Access: common.AccessTransferRead, Stage: common.StageTransfer}},
			{handle: c.Dst, subresource: int(c.DstMipLevel), state: common.AccessState{Access: common.AccessTransferWrite, Stage: common.StageTransfer}},
		}, nil

	case command.Transition:
		record, err := s.track(c.Target)
		if err != nil {
			return nil, err
		}
		touches := make([]touch, 0, c.Range.MipLevelCount)
		for mip := c.Range.BaseMipLevel; mip < c.Range.BaseMipLevel+c.Range.MipLevelCount; mip++ {
			if int(mip) >= record.SubresourceCount() {
				break
			}
			touches = append(touches, touch{
				handle:      c.Target,
				subresource: int(mip),
				state:       common.AccessState{Access: c.Access, Stage: c.Stage},
				forced:      true,
			})
		}
		return touches, nil

	case command.RenderPass:
		return s.renderPassTouches(c)

	case command.ComputePass:
		return s.computePassTouches(c)

	default:
		panic(fmt.Sprintf("scheduler: unknown command type %T", cmd))
	}
}

// renderPassTouches gathers attachment accesses plus the reflection-derived
// accesses of every draw's pipeline bindings, merged per subresource so a
// pass produces at most one barrier per subresource.
func (s *scheduleState) renderPassTouches(pass command.RenderPass) ([]touch, error) {
	merged := newTouchSet()

	for _, att := range pass.ColorAttachments {
		access := common.AccessAttachmentWrite
		if att.LoadOp == wgpu.LoadOpLoad {
			access |= common.AccessAttachmentRead
		}
		merged.add(att.Target, int(att.MipLevel), common.AccessState{Access: access, Stage: common.StageAttachment})
	}
	if pass.Depth != nil {
		access := common.AccessAttachmentWrite
		if pass.Depth.LoadOp == wgpu.LoadOpLoad {
			access |= common.AccessAttachmentRead
		}
		merged.add(pass.Depth.Target, 0, common.AccessState{Access: access, Stage: common.StageAttachment})
	}

	for _, draw := range pass.Draws {
		if err := s.bindingTouches(draw.Pipeline, draw.Sets, merged); err != nil {
			return nil, err
		}
		if draw.VertexBuffer.Valid() {
			merged.add(draw.VertexBuffer, 0, common.AccessState{Access: common.AccessVertexRead, Stage: common.StageVertexShader})
		}
		if draw.IndexBuffer.Valid() {
			merged.add(draw.IndexBuffer, 0, common.AccessState{Access: common.AccessIndexRead, Stage: common.StageVertexShader})
		}
		if draw.Indirect.Valid() {
			merged.add(draw.Indirect, 0, common.AccessState{Access: common.AccessIndirectRead, Stage: common.StageDrawIndirect})
		}
	}
	return merged.list, nil
}

// computePassTouches gathers the reflection-derived accesses of every
// dispatch's pipeline bindings.
func (s *scheduleState) computePassTouches(pass command.ComputePass) ([]touch, error) {
	merged := newTouchSet()
	for _, dispatch := range pass.Dispatches {
		if err := s.bindingTouches(dispatch.Pipeline, dispatch.Sets, merged); err != nil {
			return nil, err
		}
		if dispatch.Indirect.Valid() {
			merged.add(dispatch.Indirect, 0, common.AccessState{Access: common.AccessIndirectRead, Stage: common.StageDrawIndirect})
		}
	}
	return merged.list, nil
}

// bindingTouches resolves one pipeline's per-binding access mask table
// against the bound descriptor sets, producing a touch for every buffer and
// every texture mip a binding can reach.
func (s *scheduleState) bindingTouches(pipelineHandle registry.Handle, sets []registry.Handle, merged *touchSet) error {
	pipelineRecord, err := s.track(pipelineHandle)
	if err != nil {
		return err
	}
	for _, setHandle := range sets {
		if _, err := s.track(setHandle); err != nil {
			return err
		}
	}
	// Map iteration order would make the relative order of the emitted
	// barriers vary between runs.
	locs := make([]registry.BindingLocation, 0, len(pipelineRecord.Pipeline.AccessMasks))
	for loc := range pipelineRecord.Pipeline.AccessMasks {
		locs = append(locs, loc)
	}
	sort.Slice(locs, func(i, j int) bool {
		if locs[i].Group != locs[j].Group {
			return locs[i].Group < locs[j].Group
		}
		return locs[i].Binding < locs[j].Binding
	})
	for _, loc := range locs {
		mask := pipelineRecord.Pipeline.AccessMasks[loc]
		if int(loc.Group) >= len(sets) {
			continue
		}
		setRecord := s.used[sets[loc.Group]]
		for _, bound := range setRecord.Set.Bound[loc.Binding] {
			boundRecord, err := s.track(bound)
			if err != nil {
				return err
			}
			if boundRecord.SubresourceCount() == 0 {
				continue // samplers carry no access state
			}
			for sub := 0; sub < boundRecord.SubresourceCount(); sub++ {
				merged.add(bound, sub, common.AccessState{Access: mask.Access, Stage: mask.Stages})
			}
		}
	}
	return nil
}

// touchSet merges accesses per subresource within a single command, keeping
// the first-seen order stable so barrier emission is deterministic.
type touchSet struct {
	index map[subresourceKey]int
	list  []touch
}

func newTouchSet() *touchSet {
	return &touchSet{index: make(map[subresourceKey]int)}
}

func (ts *touchSet) add(h registry.Handle, subresource int, state common.AccessState) {
	key := subresourceKey{handle: h, subresource: subresource}
	if i, ok := ts.index[key]; ok {
		ts.list[i].state.Access |= state.Access
		ts.list[i].state.Stage = ts.list[i].state.Stage.Span(state.Stage)
		return
	}
	ts.index[key] = len(ts.list)
	ts.list = append(ts.list, touch{handle: h, subresource: subresource, state: state})
}
