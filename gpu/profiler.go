package gpu

import (
	"log"
	"runtime"
	"time"
)

// FrameProfiler aggregates per-frame execute statistics and host memory usage
// for performance monitoring. Outputs stats to the log at a configurable
// interval. Feed it the FrameStats of every execute call.
type FrameProfiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats

	commands     int
	barriers     int
	stagingBytes uint64
}

// NewFrameProfiler creates a profiler with a one second update interval.
//
// Returns:
//   - *FrameProfiler: the newly created profiler instance
func NewFrameProfiler() *FrameProfiler {
	return &FrameProfiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
}

// Tick accumulates one frame's execute statistics and logs the aggregate when
// the update interval has elapsed. Logged values cover frames since the last
// log line: FPS, average scheduled commands and barriers per frame, staging
// upload rate, and heap usage.
//
// Parameters:
//   - stats: the FrameStats of the frame's execute call
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *FrameProfiler) Tick(stats FrameStats) bool {
	p.frameCount++
	p.commands += stats.Commands
	p.barriers += stats.Barriers
	p.stagingBytes += stats.StagingBytes

	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	frames := float64(p.frameCount)
	fps := frames / elapsed.Seconds()
	stagingMB := float64(p.stagingBytes) / 1024 / 1024 / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	heapMB := float64(p.memStats.Alloc) / 1024 / 1024

	log.Printf("[FrameProfiler] FPS: %.2f | Commands/frame: %.1f | Barriers/frame: %.1f | Staging: %.2f MB/s | Heap: %.2f MB",
		fps, float64(p.commands)/frames, float64(p.barriers)/frames, stagingMB, heapMB)

	p.frameCount = 0
	p.commands = 0
	p.barriers = 0
	p.stagingBytes = 0
	p.lastTime = currentTime
	return true
}
