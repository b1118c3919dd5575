package gpu_test

import (
	"testing"

	"github.com/Carmen-Shannon/oxide-go/gpu"
	"github.com/Carmen-Shannon/oxide-go/gpu/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingBuilder(t *testing.T, builds *int) gpu.Builder {
	t.Helper()
	return gpu.BuilderFunc(func(q gpu.CommandQueue) (gpu.Pipeline, error) {
		*builds++
		return q.CreatePipeline(gpu.PipelineDescriptor{
			Label:        "cached",
			Vertex:       mustModule(t, "tri_vert", shader.ShaderTypeVertex, testRenderSource),
			Fragment:     mustModule(t, "tri_frag", shader.ShaderTypeFragment, testRenderSource),
			ColorFormats: []wgpu.TextureFormat{wgpu.TextureFormatRGBA8Unorm},
		})
	})
}

func TestPipelineCacheHit(t *testing.T) {
	q, _ := newTestQueue(t)
	cache := gpu.NewPipelineCache(q)

	builds := 0
	builder := countingBuilder(t, &builds)

	first, err := cache.Get("rgba8/tri", builder)
	require.NoError(t, err)
	second, err := cache.Get("rgba8/tri", builder)
	require.NoError(t, err)

	assert.Equal(t, 1, builds)
	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.Len())
}

func TestPipelineCacheInvalidateRebuilds(t *testing.T) {
	q, _ := newTestQueue(t)
	cache := gpu.NewPipelineCache(q)

	builds := 0
	builder := countingBuilder(t, &builds)

	first, err := cache.Get("rgba8/tri", builder)
	require.NoError(t, err)

	cache.Invalidate("rgba8/tri")
	assert.Equal(t, 0, cache.Len())

	// The cache held the only reference, so the old pipeline is now queued
	// for deferred destruction.
	assert.Equal(t, 1, q.Registry().PendingDeletions())

	rebuilt, err := cache.Get("rgba8/tri", builder)
	require.NoError(t, err)
	assert.Equal(t, 2, builds)
	assert.NotEqual(t, first.Handle(), rebuilt.Handle())
}

func TestPipelineCacheInvalidateUnknownKey(t *testing.T) {
	q, _ := newTestQueue(t)
	cache := gpu.NewPipelineCache(q)
	cache.Invalidate("never-built")
	assert.Equal(t, 0, cache.Len())
}

func TestPipelineCacheInvalidateAll(t *testing.T) {
	q, _ := newTestQueue(t)
	cache := gpu.NewPipelineCache(q)

	builds := 0
	builder := countingBuilder(t, &builds)
	_, err := cache.Get("a", builder)
	require.NoError(t, err)
	_, err = cache.Get("b", builder)
	require.NoError(t, err)
	require.Equal(t, 2, cache.Len())

	cache.InvalidateAll()
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, 2, q.Registry().PendingDeletions())
}

func TestPipelineCacheBuilderError(t *testing.T) {
	q, _ := newTestQueue(t)
	cache := gpu.NewPipelineCache(q)

	failing := gpu.BuilderFunc(func(gpu.CommandQueue) (gpu.Pipeline, error) {
		_, err := q.CreatePipeline(gpu.PipelineDescriptor{Label: "broken"})
		return nil, err
	})

	// A pipeline with neither vertex nor compute module is a contract
	// violation surfaced by CreatePipeline; the builder's failure must not
	// poison the cache.
	assert.Panics(t, func() { cache.Get("broken", failing) })
	assert.Equal(t, 0, cache.Len())
}
