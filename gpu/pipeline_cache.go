package gpu

import "sync"

// Builder builds a pipeline on cache miss. Implementations typically close
// over shader modules and layouts and call CreatePipeline on the queue they
// are given.
type Builder interface {
	// Build creates the pipeline for a cache key.
	//
	// Parameters:
	//   - queue: the command queue to create the pipeline on
	//
	// Returns:
	//   - Pipeline: the built pipeline
	//   - error: an error if pipeline creation fails
	Build(queue CommandQueue) (Pipeline, error)
}

// BuilderFunc adapts a plain function to the Builder interface.
type BuilderFunc func(queue CommandQueue) (Pipeline, error)

// Build implements Builder.
func (f BuilderFunc) Build(queue CommandQueue) (Pipeline, error) {
	return f(queue)
}

// PipelineCache is a keyed cache of built pipelines with explicit
// invalidation. A key typically encodes the target format and shader
// variant. The cache holds one reference on each cached pipeline and
// releases it on invalidation.
type PipelineCache interface {
	// Get returns the cached pipeline for the key, building it with the
	// given builder on miss.
	//
	// Parameters:
	//   - key: the cache key
	//   - builder: the builder invoked on miss
	//
	// Returns:
	//   - Pipeline: the cached or freshly built pipeline
	//   - error: an error if the builder fails
	Get(key string, builder Builder) (Pipeline, error)

	// Invalidate drops the cached pipeline for the key, releasing the
	// cache's reference. The next Get for the key rebuilds. Unknown keys
	// are ignored.
	//
	// Parameters:
	//   - key: the cache key to drop
	Invalidate(key string)

	// InvalidateAll drops every cached pipeline.
	InvalidateAll()

	// Len returns the number of cached pipelines.
	Len() int
}

type pipelineCache struct {
	mu      sync.Mutex
	queue   CommandQueue
	entries map[string]Pipeline
}

var _ PipelineCache = &pipelineCache{}

// NewPipelineCache creates an empty cache over the given queue.
//
// Parameters:
//   - queue: the command queue builders create pipelines on
//
// Returns:
//   - PipelineCache: the new cache
func NewPipelineCache(queue CommandQueue) PipelineCache {
	return &pipelineCache{
		queue:   queue,
		entries: make(map[string]Pipeline),
	}
}

func (c *pipelineCache) Get(key string, builder Builder) (Pipeline, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.entries[key]; ok {
		return p, nil
	}

	p, err := builder.Build(c.queue)
	if err != nil {
		return nil, err
	}
	c.entries[key] = p
	return p, nil
}

func (c *pipelineCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.entries[key]; ok {
		p.Release()
		delete(c.entries, key)
	}
}

func (c *pipelineCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, p := range c.entries {
		p.Release()
		delete(c.entries, key)
	}
}

func (c *pipelineCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
