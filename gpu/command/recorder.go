package command

import "sync"

// Recorder accumulates commands until the executor drains them. It is
// append-only and multi-producer: independent render passes may be recorded
// from different goroutines, so every operation holds the single mutex. The
// priority queue holds commands that must execute before the main queue,
// used for first-of-frame global resource transitions.
type Recorder struct {
	mu       sync.Mutex
	main     []Command
	priority []Command
}

// NewRecorder creates an empty recorder.
//
// Returns:
//   - *Recorder: the new recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends a command to the main queue.
//
// Parameters:
//   - cmd: the command to append
func (r *Recorder) Record(cmd Command) {
	r.mu.Lock()
	r.main = append(r.main, cmd)
	r.mu.Unlock()
}

// RecordPriority appends a command to the priority queue, which the scheduler
// places before every main-queue command of the same drain.
//
// Parameters:
//   - cmd: the command to append
func (r *Recorder) RecordPriority(cmd Command) {
	r.mu.Lock()
	r.priority = append(r.priority, cmd)
	r.mu.Unlock()
}

// Drain returns both queues and clears internal state atomically with respect
// to producers: commands recorded after Drain returns belong to the next drain.
//
// Returns:
//   - []Command: the priority queue in recorded order
//   - []Command: the main queue in recorded order
func (r *Recorder) Drain() (priority, main []Command) {
	r.mu.Lock()
	priority, main = r.priority, r.main
	r.priority, r.main = nil, nil
	r.mu.Unlock()
	return priority, main
}

// Len returns the number of commands currently recorded across both queues.
//
// Returns:
//   - int: the pending command count
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.priority) + len(r.main)
}
