package backend

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxide-go/common"
	"github.com/Carmen-Shannon/oxide-go/gpu/registry"
	"github.com/Carmen-Shannon/oxide-go/gpu/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// standardAlphaBlend is the premultiplied-style alpha blend applied when a
// pipeline enables blending.
var standardAlphaBlend = &wgpu.BlendState{
	Color: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorSrcAlpha,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		Operation: wgpu.BlendOperationAdd,
	},
	Alpha: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorOne,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		Operation: wgpu.BlendOperationAdd,
	},
}

// wgpuDriver is the WebGPU implementation of the Driver interface.
type wgpuDriver struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	compatibleSurface    *wgpu.Surface
	deviceLabel          string
	maxBindGroups        uint32
}

// WGPUDriver is the WebGPU driver backend. Beyond the Driver contract it
// exposes the underlying device objects so surface-backed callers (the
// window package, the examples) can configure presentation.
type WGPUDriver interface {
	Driver

	// Device returns the underlying WebGPU device.
	//
	// Returns:
	//   - *wgpu.Device: the device
	Device() *wgpu.Device

	// Queue returns the underlying WebGPU queue.
	//
	// Returns:
	//   - *wgpu.Queue: the queue
	Queue() *wgpu.Queue

	// Instance returns the underlying WebGPU instance.
	//
	// Returns:
	//   - *wgpu.Instance: the instance
	Instance() *wgpu.Instance

	// Adapter returns the underlying WebGPU adapter.
	//
	// Returns:
	//   - *wgpu.Adapter: the adapter
	Adapter() *wgpu.Adapter

	// Release frees the device, adapter, and instance. The driver must not
	// be used afterwards.
	Release()
}

// Compile-time check that wgpuDriver implements WGPUDriver.
var _ WGPUDriver = &wgpuDriver{}

// WGPUDriverOption is a functional option used to configure the WebGPU driver during construction.
type WGPUDriverOption func(*wgpuDriver)

// WithForceFallbackAdapter forces the software fallback adapter, useful in CI
// environments without a GPU.
//
// Parameters:
//   - force: whether to force the fallback adapter
//
// Returns:
//   - WGPUDriverOption: a function that sets the fallback flag
func WithForceFallbackAdapter(force bool) WGPUDriverOption {
	return func(d *wgpuDriver) {
		d.forceFallbackAdapter = force
	}
}

// WithCompatibleSurface requests an adapter compatible with the given
// surface. Required when the device will present to a window.
//
// Parameters:
//   - surface: the surface the adapter must support
//
// Returns:
//   - WGPUDriverOption: a function that sets the compatible surface
func WithCompatibleSurface(surface *wgpu.Surface) WGPUDriverOption {
	return func(d *wgpuDriver) {
		d.compatibleSurface = surface
	}
}

// WithDeviceLabel sets the debug label of the created device.
//
// Parameters:
//   - label: the device label
//
// Returns:
//   - WGPUDriverOption: a function that sets the device label
func WithDeviceLabel(label string) WGPUDriverOption {
	return func(d *wgpuDriver) {
		d.deviceLabel = label
	}
}

// WithMaxBindGroups raises the device's bind group limit above the WebGPU
// default, needed when pipelines use many descriptor sets plus the
// push-constant scratch group.
//
// Parameters:
//   - limit: the maximum number of bind groups
//
// Returns:
//   - WGPUDriverOption: a function that sets the limit
func WithMaxBindGroups(limit uint32) WGPUDriverOption {
	return func(d *wgpuDriver) {
		d.maxBindGroups = limit
	}
}

// NewWGPUDriver creates a WebGPU driver: instance, adapter, device, and
// queue. Without WithCompatibleSurface the driver is headless, suitable for
// compute-only use and tests on real hardware.
//
// Parameters:
//   - options: a variadic list of options to configure the driver
//
// Returns:
//   - WGPUDriver: the driver
//   - error: an error if no adapter or device could be acquired
func NewWGPUDriver(options ...WGPUDriverOption) (WGPUDriver, error) {
	d := &wgpuDriver{
		mu:            &sync.Mutex{},
		deviceLabel:   "Oxide Device",
		maxBindGroups: 8,
	}
	for _, opt := range options {
		opt(d)
	}

	d.instance = wgpu.CreateInstance(nil)

	adapter, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallbackAdapter,
		CompatibleSurface:    d.compatibleSurface,
	})
	if err != nil {
		return nil, fmt.Errorf("backend: no compatible adapter: %w", err)
	}
	d.adapter = adapter

	limits := wgpu.DefaultLimits()
	limits.MaxBindGroups = d.maxBindGroups

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: d.deviceLabel,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("backend: device request failed: %w", err)
	}
	d.device = device
	d.queue = device.GetQueue()

	return d, nil
}

func (d *wgpuDriver) Device() *wgpu.Device {
	return d.device
}

func (d *wgpuDriver) Queue() *wgpu.Queue {
	return d.queue
}

func (d *wgpuDriver) Instance() *wgpu.Instance {
	return d.instance
}

func (d *wgpuDriver) Adapter() *wgpu.Adapter {
	return d.adapter
}

func (d *wgpuDriver) Release() {
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

func (d *wgpuDriver) MaterializeBuffer(label string, rec *registry.BufferRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  rec.Size,
		Usage: rec.Usage,
	})
	if err != nil {
		return fmt.Errorf("backend: create buffer %q: %w", label, err)
	}
	rec.Driver = buf
	return nil
}

func (d *wgpuDriver) MaterializeTexture(label string, rec *registry.TextureRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     label,
		Usage:     rec.Usage,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              rec.Width,
			Height:             rec.Height,
			DepthOrArrayLayers: 1,
		},
		Format:        rec.Format,
		MipLevelCount: rec.MipLevels,
		SampleCount:   1,
	})
	if err != nil {
		return fmt.Errorf("backend: create texture %q: %w", label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return fmt.Errorf("backend: create view for %q: %w", label, err)
	}
	rec.Driver = tex
	rec.View = view
	return nil
}

func (d *wgpuDriver) MaterializeSampler(label string, rec *registry.SamplerRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	desc := rec.Desc
	if desc == nil {
		desc = &wgpu.SamplerDescriptor{
			AddressModeU:  wgpu.AddressModeRepeat,
			AddressModeV:  wgpu.AddressModeRepeat,
			AddressModeW:  wgpu.AddressModeRepeat,
			MagFilter:     wgpu.FilterModeLinear,
			MinFilter:     wgpu.FilterModeLinear,
			MipmapFilter:  wgpu.MipmapFilterModeLinear,
			LodMaxClamp:   32.0,
			MaxAnisotropy: 1,
		}
	}
	desc.Label = label

	samp, err := d.device.CreateSampler(desc)
	if err != nil {
		return fmt.Errorf("backend: create sampler %q: %w", label, err)
	}
	rec.Driver = samp
	return nil
}

func (d *wgpuDriver) MaterializeLayout(label string, rec *registry.LayoutRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Array bindings are expanded into consecutive binding indices, the
	// portable emulation for WebGPU's missing binding arrays. Shader sources
	// targeting this layout declare each element at binding+i.
	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(rec.Bindings))
	for _, binding := range rec.Bindings {
		for i := uint32(0); i < binding.Count; i++ {
			entries = append(entries, layoutEntry(binding, binding.Binding+i))
		}
	}

	layout, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   label,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("backend: create bind group layout %q: %w", label, err)
	}
	rec.Driver = layout
	return nil
}

// layoutEntry converts one layout binding element into a WebGPU layout entry.
func layoutEntry(binding registry.LayoutBinding, index uint32) wgpu.BindGroupLayoutEntry {
	entry := wgpu.BindGroupLayoutEntry{
		Binding:    index,
		Visibility: shaderStages(binding.Visibility),
	}
	switch binding.Kind {
	case common.BindingKindUniformBuffer:
		entry.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}
	case common.BindingKindStorageBuffer:
		entry.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}
	case common.BindingKindReadOnlyStorageBuffer:
		entry.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}
	case common.BindingKindSampledTexture:
		entry.Texture = wgpu.TextureBindingLayout{
			SampleType:    wgpu.TextureSampleTypeFloat,
			ViewDimension: wgpu.TextureViewDimension2D,
		}
	case common.BindingKindStorageTexture:
		entry.StorageTexture = wgpu.StorageTextureBindingLayout{
			Access:        wgpu.StorageTextureAccessWriteOnly,
			Format:        binding.Format,
			ViewDimension: wgpu.TextureViewDimension2D,
		}
	case common.BindingKindSampler:
		entry.Sampler = wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering}
	}
	return entry
}

// shaderStages converts scheduler stage flags into WebGPU visibility flags.
func shaderStages(stages common.StageFlags) wgpu.ShaderStage {
	var visibility wgpu.ShaderStage
	if stages&common.StageVertexShader != 0 {
		visibility |= wgpu.ShaderStageVertex
	}
	if stages&common.StageFragmentShader != 0 {
		visibility |= wgpu.ShaderStageFragment
	}
	if stages&common.StageComputeShader != 0 {
		visibility |= wgpu.ShaderStageCompute
	}
	return visibility
}

func (d *wgpuDriver) MaterializeSet(label string, rec *registry.SetRecord, layout *registry.LayoutRecord, resolve func(registry.Handle) (*registry.Record, error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries := make([]wgpu.BindGroupEntry, 0, len(layout.Bindings))
	for _, binding := range layout.Bindings {
		bound := rec.Bound[binding.Binding]
		for i := uint32(0); i < binding.Count; i++ {
			record, err := resolve(bound[i])
			if err != nil {
				return fmt.Errorf("backend: bind group %q binding %d: %w", label, binding.Binding, err)
			}
			entry := wgpu.BindGroupEntry{Binding: binding.Binding + i}
			switch {
			case record.Buffer != nil:
				entry.Buffer = record.Buffer.Driver
				entry.Offset = 0
				entry.Size = wgpu.WholeSize
			case record.Texture != nil:
				entry.TextureView = record.Texture.View
			case record.Sampler != nil:
				entry.Sampler = record.Sampler.Driver
			default:
				return fmt.Errorf("backend: bind group %q binding %d: unbindable resource kind %s", label, binding.Binding, record.Kind())
			}
			entries = append(entries, entry)
		}
	}

	group, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   label,
		Layout:  layout.Driver,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("backend: create bind group %q: %w", label, err)
	}
	rec.Driver = group
	return nil
}

func (d *wgpuDriver) MaterializePipeline(label string, rec *registry.PipelineRecord, layouts []*registry.LayoutRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	bindGroupLayouts := make([]*wgpu.BindGroupLayout, 0, len(layouts)+1)
	for _, layout := range layouts {
		bindGroupLayouts = append(bindGroupLayouts, layout.Driver)
	}

	if rec.PushConstantSize > 0 {
		pushLayout, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label: label + " Push Constants",
			Entries: []wgpu.BindGroupLayoutEntry{{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment | wgpu.ShaderStageCompute,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
			}},
		})
		if err != nil {
			return fmt.Errorf("backend: create push constant layout for %q: %w", label, err)
		}
		rec.PushLayout = pushLayout
		rec.PushGroup = uint32(len(bindGroupLayouts))
		bindGroupLayouts = append(bindGroupLayouts, pushLayout)
	}

	pipelineLayout, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label + " Layout",
		BindGroupLayouts: bindGroupLayouts,
	})
	if err != nil {
		return fmt.Errorf("backend: create pipeline layout for %q: %w", label, err)
	}
	defer pipelineLayout.Release()

	switch rec.Kind {
	case registry.PipelineKindRender:
		return d.createRenderPipeline(label, rec, pipelineLayout)
	case registry.PipelineKindCompute:
		return d.createComputePipeline(label, rec, pipelineLayout)
	default:
		return errors.New("backend: unknown pipeline kind")
	}
}

func (d *wgpuDriver) createRenderPipeline(label string, rec *registry.PipelineRecord, layout *wgpu.PipelineLayout) error {
	vs, err := d.shaderModule(rec.Vertex)
	if err != nil {
		return err
	}
	defer vs.Release()

	// Fragment is optional; depth-only pipelines rasterize without one.
	var fragment *wgpu.FragmentState
	if rec.Fragment != nil {
		fs, err := d.shaderModule(rec.Fragment)
		if err != nil {
			return err
		}
		defer fs.Release()

		targets := make([]wgpu.ColorTargetState, len(rec.ColorFormats))
		for i, format := range rec.ColorFormats {
			state := wgpu.ColorTargetState{
				Format:    format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}
			if rec.BlendEnabled {
				state.Blend = standardAlphaBlend
			}
			targets[i] = state
		}
		fragment = &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: rec.Fragment.EntryPoint(),
			Targets:    targets,
		}
	}

	var depthStencil *wgpu.DepthStencilState
	if rec.DepthFormat != wgpu.TextureFormatUndefined {
		depthStencil = &wgpu.DepthStencilState{
			Format:            rec.DepthFormat,
			DepthWriteEnabled: rec.DepthWriteEnabled,
			DepthCompare:      wgpu.CompareFunctionLess,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilReadMask:  0xFFFFFFFF,
			StencilWriteMask: 0xFFFFFFFF,
		}
	}

	created, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  label,
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: rec.Vertex.EntryPoint(),
			Buffers:    rec.VertexLayouts,
		},
		Fragment: fragment,
		Primitive: wgpu.PrimitiveState{
			Topology:  rec.Topology,
			FrontFace: rec.FrontFace,
			CullMode:  rec.CullMode,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: depthStencil,
	})
	if err != nil {
		return fmt.Errorf("backend: create render pipeline %q: %w", label, err)
	}
	rec.DriverRender = created
	return nil
}

func (d *wgpuDriver) createComputePipeline(label string, rec *registry.PipelineRecord, layout *wgpu.PipelineLayout) error {
	cs, err := d.shaderModule(rec.Compute)
	if err != nil {
		return err
	}
	defer cs.Release()

	created, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  label,
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     cs,
			EntryPoint: rec.Compute.EntryPoint(),
		},
	})
	if err != nil {
		return fmt.Errorf("backend: create compute pipeline %q: %w", label, err)
	}
	rec.DriverCompute = created
	return nil
}

func (d *wgpuDriver) shaderModule(module shader.Module) (*wgpu.ShaderModule, error) {
	compiled, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: module.Key(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: module.Source(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("backend: compile shader %q: %w", module.Key(), err)
	}
	return compiled, nil
}

func (d *wgpuDriver) CreateStagingBuffer(label string, data []byte) (*StagingBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("backend: create staging buffer %q: %w", label, err)
	}
	d.queue.WriteBuffer(buf, 0, data)
	return &StagingBuffer{Size: uint64(len(data)), Driver: buf}, nil
}

func (d *wgpuDriver) WriteBuffer(rec *registry.BufferRecord, offset uint64, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue.WriteBuffer(rec.Driver, offset, data)
}

func (d *wgpuDriver) Capabilities(format wgpu.TextureFormat) common.FormatCapabilities {
	return lookupCapabilities(format)
}

func (d *wgpuDriver) NewEncoder(label string) (Encoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("backend: create command encoder %q: %w", label, err)
	}
	return &wgpuEncoder{
		driver:  d,
		label:   label,
		encoder: encoder,
	}, nil
}
