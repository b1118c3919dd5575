package gpu

import (
	"github.com/Carmen-Shannon/oxide-go/gpu/registry"
	"github.com/cogentcore/webgpu/wgpu"
)

// Resource is the capability shared by every handle front type: it names a
// registry record. Commands and descriptor set bindings accept any Resource.
type Resource interface {
	// Handle returns the underlying registry handle.
	Handle() registry.Handle
}

// Buffer is a reference-counted handle to a GPU buffer. Clone and Release
// adjust the record's reference count; when the count reaches zero the record
// enters the deletion queue and is destroyed on a later cleanup, never
// synchronously.
type Buffer interface {
	Resource

	// Size returns the buffer size in bytes.
	Size() uint64

	// Usage returns the buffer's usage flags.
	Usage() wgpu.BufferUsage

	// HostVisible reports whether writes go directly through the driver queue
	// instead of a staging copy.
	HostVisible() bool

	// Clone returns a new handle to the same buffer, incrementing its
	// reference count.
	Clone() Buffer

	// Release decrements the reference count. On reaching zero the buffer is
	// enqueued for deferred destruction. Using the handle after Release is a
	// programmer error.
	Release()
}

// Texture is a reference-counted handle to a GPU texture.
type Texture interface {
	Resource

	// Width returns the level-0 width in texels.
	Width() uint32

	// Height returns the level-0 height in texels.
	Height() uint32

	// MipLevels returns the number of mip levels.
	MipLevels() uint32

	// Format returns the texel format.
	Format() wgpu.TextureFormat

	// Usage returns the texture's usage flags.
	Usage() wgpu.TextureUsage

	// Clone returns a new handle to the same texture, incrementing its
	// reference count.
	Clone() Texture

	// Release decrements the reference count, deferring destruction through
	// the deletion queue on zero.
	Release()
}

// Sampler is a reference-counted handle to a GPU sampler.
type Sampler interface {
	Resource

	// Clone returns a new handle to the same sampler, incrementing its
	// reference count.
	Clone() Sampler

	// Release decrements the reference count, deferring destruction through
	// the deletion queue on zero.
	Release()
}

// DescriptorSetLayout is a reference-counted handle to a descriptor set
// layout: the schema descriptor sets and pipelines are created against.
type DescriptorSetLayout interface {
	Resource

	// Bindings returns the ordered layout entries.
	Bindings() []registry.LayoutBinding

	// Clone returns a new handle to the same layout, incrementing its
	// reference count.
	Clone() DescriptorSetLayout

	// Release decrements the reference count, deferring destruction through
	// the deletion queue on zero.
	Release()
}

// DescriptorSet is a reference-counted handle to a concrete descriptor set.
// The set holds its own references on its layout and every bound resource,
// released when the set itself is destroyed.
type DescriptorSet interface {
	Resource

	// Layout returns the handle of the layout the set was created against.
	Layout() registry.Handle

	// Clone returns a new handle to the same set, incrementing its
	// reference count.
	Clone() DescriptorSet

	// Release decrements the reference count, deferring destruction through
	// the deletion queue on zero.
	Release()
}

// Pipeline is a reference-counted handle to a render or compute pipeline.
type Pipeline interface {
	Resource

	// Kind returns whether this is a render or compute pipeline.
	Kind() registry.PipelineKind

	// PushConstantSize returns the declared push constant range size in bytes.
	PushConstantSize() uint32

	// Clone returns a new handle to the same pipeline, incrementing its
	// reference count.
	Clone() Pipeline

	// Release decrements the reference count, deferring destruction through
	// the deletion queue on zero.
	Release()
}

type buffer struct {
	reg    *registry.Registry
	handle registry.Handle
}

type texture struct {
	reg    *registry.Registry
	handle registry.Handle
}

type sampler struct {
	reg    *registry.Registry
	handle registry.Handle
}

type descriptorSetLayout struct {
	reg    *registry.Registry
	handle registry.Handle
}

type descriptorSet struct {
	reg    *registry.Registry
	handle registry.Handle
}

type pipeline struct {
	reg    *registry.Registry
	handle registry.Handle
}

var _ Buffer = &buffer{}
var _ Texture = &texture{}
var _ Sampler = &sampler{}
var _ DescriptorSetLayout = &descriptorSetLayout{}
var _ DescriptorSet = &descriptorSet{}
var _ Pipeline = &pipeline{}

// mustRecord resolves a handle that the front type holds a reference on.
// Failure means the handle was used after Release, a programmer error.
func mustRecord(reg *registry.Registry, h registry.Handle) *registry.Record {
	rec, err := reg.Get(h)
	if err != nil {
		panic("gpu: handle used after release: " + h.String())
	}
	return rec
}

func (b *buffer) Handle() registry.Handle { return b.handle }

func (b *buffer) Size() uint64 {
	return mustRecord(b.reg, b.handle).Buffer.Size
}

func (b *buffer) Usage() wgpu.BufferUsage {
	return mustRecord(b.reg, b.handle).Buffer.Usage
}

func (b *buffer) HostVisible() bool {
	return mustRecord(b.reg, b.handle).Buffer.HostVisible
}

func (b *buffer) Clone() Buffer {
	b.reg.Retain(b.handle)
	return &buffer{reg: b.reg, handle: b.handle}
}

func (b *buffer) Release() {
	b.reg.Release(b.handle)
}

func (t *texture) Handle() registry.Handle { return t.handle }

func (t *texture) Width() uint32 {
	return mustRecord(t.reg, t.handle).Texture.Width
}

func (t *texture) Height() uint32 {
	return mustRecord(t.reg, t.handle).Texture.Height
}

func (t *texture) MipLevels() uint32 {
	return mustRecord(t.reg, t.handle).Texture.MipLevels
}

func (t *texture) Format() wgpu.TextureFormat {
	return mustRecord(t.reg, t.handle).Texture.Format
}

func (t *texture) Usage() wgpu.TextureUsage {
	return mustRecord(t.reg, t.handle).Texture.Usage
}

func (t *texture) Clone() Texture {
	t.reg.Retain(t.handle)
	return &texture{reg: t.reg, handle: t.handle}
}

func (t *texture) Release() {
	t.reg.Release(t.handle)
}

func (s *sampler) Handle() registry.Handle { return s.handle }

func (s *sampler) Clone() Sampler {
	s.reg.Retain(s.handle)
	return &sampler{reg: s.reg, handle: s.handle}
}

func (s *sampler) Release() {
	s.reg.Release(s.handle)
}

func (l *descriptorSetLayout) Handle() registry.Handle { return l.handle }

func (l *descriptorSetLayout) Bindings() []registry.LayoutBinding {
	return mustRecord(l.reg, l.handle).Layout.Bindings
}

func (l *descriptorSetLayout) Clone() DescriptorSetLayout {
	l.reg.Retain(l.handle)
	return &descriptorSetLayout{reg: l.reg, handle: l.handle}
}

func (l *descriptorSetLayout) Release() {
	l.reg.Release(l.handle)
}

func (d *descriptorSet) Handle() registry.Handle { return d.handle }

func (d *descriptorSet) Layout() registry.Handle {
	return mustRecord(d.reg, d.handle).Set.Layout
}

func (d *descriptorSet) Clone() DescriptorSet {
	d.reg.Retain(d.handle)
	return &descriptorSet{reg: d.reg, handle: d.handle}
}

func (d *descriptorSet) Release() {
	d.reg.Release(d.handle)
}

func (p *pipeline) Handle() registry.Handle { return p.handle }

func (p *pipeline) Kind() registry.PipelineKind {
	return mustRecord(p.reg, p.handle).Pipeline.Kind
}

func (p *pipeline) PushConstantSize() uint32 {
	return mustRecord(p.reg, p.handle).Pipeline.PushConstantSize
}

func (p *pipeline) Clone() Pipeline {
	p.reg.Retain(p.handle)
	return &pipeline{reg: p.reg, handle: p.handle}
}

func (p *pipeline) Release() {
	p.reg.Release(p.handle)
}
