package scheduler

import (
	"github.com/Carmen-Shannon/oxide-go/common"
	"github.com/Carmen-Shannon/oxide-go/gpu/command"
	"github.com/Carmen-Shannon/oxide-go/gpu/registry"
)

// Step is one unit of scheduled work: either a recorded command or a
// synchronization barrier inserted before the next command. Steps are
// produced fresh for every execute call and never persisted.
type Step interface {
	isStep()
}

// CommandStep runs one recorded command.
type CommandStep struct {
	// Command is the recorded command to run.
	Command command.Command
}

// BarrierStep instructs the driver that a subresource's access pattern is
// changing before the next command runs. The stage span to synchronize is
// the minimal span covering both the last and the next access.
type BarrierStep struct {
	// Target is the buffer or texture being transitioned.
	Target registry.Handle

	// Range is the affected subresource range.
	Range common.SubresourceRange

	// Old is the subresource's access state before the barrier.
	Old common.AccessState

	// New is the access state required by the next command.
	New common.AccessState
}

// StageSpan returns the pipeline-stage span the barrier must cover.
//
// Returns:
//   - common.StageFlags: the union of the old and new access stages
func (b BarrierStep) StageSpan() common.StageFlags {
	return b.Old.Stage.Span(b.New.Stage)
}

func (CommandStep) isStep() {}
func (BarrierStep) isStep() {}
