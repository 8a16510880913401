// Package haltest provides an in-memory hal.Device that records what the
// renderer asks of it. Fences, swapchains and descriptor pools behave like a
// well-behaved GPU unless told otherwise.
package haltest

import (
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

// Call is one recorded command or device operation.
type Call struct {
	Op       string
	Cmd      hal.CommandBufferID
	Pipeline hal.PipelineID
	Buffer   hal.BufferID
	Image    hal.ImageID
	Fence    hal.FenceID
	Sets     []hal.SetID
	Count    uint32
	First    uint32
	Barrier  hal.ImageBarrier
	Data     []byte
}

type Buffer struct {
	Desc   hal.BufferDesc
	Data   []byte
	Mapped bool
}

type Image struct {
	Desc hal.ImageDesc
}

type pool struct {
	desc      hal.PoolDesc
	allocated uint32
}

type Device struct {
	mu     sync.Mutex
	nextID uint64

	limits  hal.Limits
	surface hal.SurfaceInfo

	Buffers    map[hal.BufferID]*Buffer
	Images     map[hal.ImageID]*Image
	Layouts    map[hal.LayoutID][]hal.LayoutBinding
	Fences     map[hal.FenceID]bool
	Swapchains map[hal.SwapchainID]hal.SwapchainDesc
	pools      map[hal.PoolID]*pool

	// ManualFences keeps submitted fences unsignaled until SignalFence.
	ManualFences bool

	Calls            []Call
	FenceWaits       []hal.FenceID
	DescriptorWrites [][]hal.DescriptorWrite
	PoolsCreated     int
	SetsAllocated    int
	OneShotSubmits   int
	Submits          []hal.SubmitDesc
	Presents         []uint32
	Pipelines        []hal.PipelineDesc
	IdleWaits        int
	CommandPools     int

	exhaustions int
	acquireErrs []error
	presentErrs []error
	nextImage   map[hal.SwapchainID]uint32
	failures    map[string]error
}

func New() *Device {
	return &Device{
		limits: hal.Limits{
			MaxPerStageSamplers:             16,
			MaxImageDimension2D:             4096,
			MaxPushConstantsSize:            128,
			MinUniformBufferOffsetAlignment: 256,
			MinStorageBufferOffsetAlignment: 64,
			MaxSamplerAnisotropy:            16,
		},
		surface: hal.SurfaceInfo{
			MinImageCount: 2,
			MaxImageCount: 8,
			CurrentExtent: hal.Extent{Width: hal.UndefinedExtent, Height: hal.UndefinedExtent},
			MinExtent:     hal.Extent{Width: 1, Height: 1},
			MaxExtent:     hal.Extent{Width: 8192, Height: 8192},
			Format:        hal.FormatBGRA8Unorm,
			PresentModes:  []hal.PresentMode{hal.PresentModeFifo, hal.PresentModeMailbox, hal.PresentModeImmediate},
		},
		Buffers:    map[hal.BufferID]*Buffer{},
		Images:     map[hal.ImageID]*Image{},
		Layouts:    map[hal.LayoutID][]hal.LayoutBinding{},
		Fences:     map[hal.FenceID]bool{},
		Swapchains: map[hal.SwapchainID]hal.SwapchainDesc{},
		pools:      map[hal.PoolID]*pool{},
		nextImage:  map[hal.SwapchainID]uint32{},
		failures:   map[string]error{},
	}
}

// SetLimits replaces the reported device limits.
func (d *Device) SetLimits(l hal.Limits) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.limits = l
}

// SetSurface replaces the reported surface capabilities.
func (d *Device) SetSurface(s hal.SurfaceInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.surface = s
}

// FailOn makes the next call of op return err. op is the method name.
func (d *Device) FailOn(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = err
}

// ExhaustPools makes the next n descriptor set allocations fail with
// hal.ErrOutOfPoolMemory whatever pool they target.
func (d *Device) ExhaustPools(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exhaustions = n
}

// QueueAcquireResult makes upcoming AcquireNextImage calls return err, in order.
func (d *Device) QueueAcquireResult(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquireErrs = append(d.acquireErrs, err)
}

// QueuePresentResult makes upcoming Present calls return err, in order.
func (d *Device) QueuePresentResult(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presentErrs = append(d.presentErrs, err)
}

// SignalFence marks a fence as signaled, as the GPU would on completion.
func (d *Device) SignalFence(id hal.FenceID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Fences[id] = true
}

// CallsOf returns the recorded calls with the given op, in order.
func (d *Device) CallsOf(op string) []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Call
	for _, c := range d.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the command log.
func (d *Device) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = nil
}

func (d *Device) id() uint64 {
	d.nextID++
	return d.nextID
}

func (d *Device) fail(op string) error {
	if err, ok := d.failures[op]; ok {
		delete(d.failures, op)
		return err
	}
	return nil
}

func (d *Device) record(c Call) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, c)
}

func (d *Device) Limits() hal.Limits {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.limits
}

func (d *Device) CreateBuffer(desc hal.BufferDesc) (hal.BufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateBuffer"); err != nil {
		return 0, err
	}
	id := hal.BufferID(d.id())
	d.Buffers[id] = &Buffer{Desc: desc, Data: make([]byte, desc.Size)}
	return id, nil
}

func (d *Device) DestroyBuffer(id hal.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.Buffers, id)
}

func (d *Device) MapBuffer(id hal.BufferID) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.Buffers[id]
	if !ok {
		return nil, fmt.Errorf("map of unknown buffer %d", id)
	}
	if b.Desc.Memory != hal.MemoryHostVisible {
		return nil, fmt.Errorf("map of device-local buffer %q", b.Desc.Label)
	}
	b.Mapped = true
	return b.Data, nil
}

func (d *Device) UnmapBuffer(id hal.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.Buffers[id]; ok {
		b.Mapped = false
	}
}

func (d *Device) CreateImage(desc hal.ImageDesc) (hal.ImageID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateImage"); err != nil {
		return 0, err
	}
	id := hal.ImageID(d.id())
	d.Images[id] = &Image{Desc: desc}
	return id, nil
}

func (d *Device) DestroyImage(id hal.ImageID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.Images, id)
}

func (d *Device) CreateSampler(desc hal.SamplerDesc) (hal.SamplerID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateSampler"); err != nil {
		return 0, err
	}
	return hal.SamplerID(d.id()), nil
}

func (d *Device) DestroySampler(hal.SamplerID) {}

func (d *Device) CreateShaderModule(label string, stage hal.ShaderStage, code []byte) (hal.ShaderID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateShaderModule"); err != nil {
		return 0, err
	}
	return hal.ShaderID(d.id()), nil
}

func (d *Device) DestroyShaderModule(hal.ShaderID) {}

func (d *Device) CreateDescriptorSetLayout(label string, bindings []hal.LayoutBinding) (hal.LayoutID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateDescriptorSetLayout"); err != nil {
		return 0, err
	}
	id := hal.LayoutID(d.id())
	d.Layouts[id] = append([]hal.LayoutBinding(nil), bindings...)
	return id, nil
}

func (d *Device) DestroyDescriptorSetLayout(id hal.LayoutID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.Layouts, id)
}

func (d *Device) CreateDescriptorPool(desc hal.PoolDesc) (hal.PoolID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateDescriptorPool"); err != nil {
		return 0, err
	}
	id := hal.PoolID(d.id())
	d.pools[id] = &pool{desc: desc}
	d.PoolsCreated++
	return id, nil
}

func (d *Device) DestroyDescriptorPool(id hal.PoolID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pools, id)
}

func (d *Device) AllocateDescriptorSet(poolID hal.PoolID, layout hal.LayoutID) (hal.SetID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pools[poolID]
	if !ok {
		return 0, fmt.Errorf("allocate from unknown pool %d", poolID)
	}
	if d.exhaustions > 0 {
		d.exhaustions--
		return 0, hal.ErrOutOfPoolMemory
	}
	if p.allocated >= p.desc.MaxSets {
		return 0, hal.ErrOutOfPoolMemory
	}
	p.allocated++
	d.SetsAllocated++
	return hal.SetID(d.id()), nil
}

func (d *Device) UpdateDescriptorSets(writes []hal.DescriptorWrite) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DescriptorWrites = append(d.DescriptorWrites, append([]hal.DescriptorWrite(nil), writes...))
}

func (d *Device) CreateRenderPass(desc hal.RenderPassDesc) (hal.RenderPassID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateRenderPass"); err != nil {
		return 0, err
	}
	return hal.RenderPassID(d.id()), nil
}

func (d *Device) DestroyRenderPass(hal.RenderPassID) {}

func (d *Device) CreateFramebuffer(desc hal.FramebufferDesc) (hal.FramebufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return hal.FramebufferID(d.id()), nil
}

func (d *Device) DestroyFramebuffer(hal.FramebufferID) {}

func (d *Device) CreatePipeline(desc hal.PipelineDesc) (hal.PipelineID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreatePipeline"); err != nil {
		return 0, err
	}
	d.Pipelines = append(d.Pipelines, desc)
	return hal.PipelineID(d.id()), nil
}

func (d *Device) DestroyPipeline(hal.PipelineID) {}

func (d *Device) CreateCommandPool(label string) (hal.CommandPoolID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CommandPools++
	return hal.CommandPoolID(d.id()), nil
}

func (d *Device) DestroyCommandPool(hal.CommandPoolID) {}

func (d *Device) AllocateCommandBuffers(pool hal.CommandPoolID, count int) ([]hal.CommandBufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]hal.CommandBufferID, count)
	for i := range out {
		out[i] = hal.CommandBufferID(d.id())
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(hal.CommandPoolID, []hal.CommandBufferID) {}

func (d *Device) BeginCommandBuffer(cmd hal.CommandBufferID, oneShot bool) error {
	d.record(Call{Op: "Begin", Cmd: cmd})
	return nil
}

func (d *Device) EndCommandBuffer(cmd hal.CommandBufferID) error {
	d.record(Call{Op: "End", Cmd: cmd})
	return nil
}

func (d *Device) Submit(desc hal.SubmitDesc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Submits = append(d.Submits, desc)
	if desc.Fence != 0 && !d.ManualFences {
		d.Fences[desc.Fence] = true
	}
	return nil
}

func (d *Device) SubmitAndWait(cmd hal.CommandBufferID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OneShotSubmits++
	return nil
}

func (d *Device) CreateFence(signaled bool) (hal.FenceID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := hal.FenceID(d.id())
	d.Fences[id] = signaled
	return id, nil
}

func (d *Device) DestroyFence(id hal.FenceID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.Fences, id)
}

// WaitFence never blocks: an unsignaled fence reports a timeout immediately.
func (d *Device) WaitFence(id hal.FenceID, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.FenceWaits = append(d.FenceWaits, id)
	if err := d.fail("WaitFence"); err != nil {
		return err
	}
	if !d.Fences[id] {
		return hal.ErrTimeout
	}
	return nil
}

func (d *Device) ResetFence(id hal.FenceID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Fences[id] = false
	return nil
}

func (d *Device) CreateSemaphore() (hal.SemaphoreID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return hal.SemaphoreID(d.id()), nil
}

func (d *Device) DestroySemaphore(hal.SemaphoreID) {}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.IdleWaits++
	if !d.ManualFences {
		for id := range d.Fences {
			d.Fences[id] = true
		}
	}
	return nil
}

func (d *Device) CmdCopyBuffer(cmd hal.CommandBufferID, src, dst hal.BufferID, srcOffset, dstOffset, size uint64) {
	d.mu.Lock()
	if s, ok := d.Buffers[src]; ok {
		if t, ok := d.Buffers[dst]; ok {
			copy(t.Data[dstOffset:dstOffset+size], s.Data[srcOffset:srcOffset+size])
		}
	}
	d.mu.Unlock()
	d.record(Call{Op: "CopyBuffer", Cmd: cmd, Buffer: dst, Count: uint32(size)})
}

func (d *Device) CmdCopyBufferToImage(cmd hal.CommandBufferID, src hal.BufferID, dst hal.ImageID, width, height uint32) {
	d.record(Call{Op: "CopyBufferToImage", Cmd: cmd, Buffer: src, Image: dst})
}

func (d *Device) CmdImageBarrier(cmd hal.CommandBufferID, barrier hal.ImageBarrier) {
	d.record(Call{Op: "ImageBarrier", Cmd: cmd, Image: barrier.Image, Barrier: barrier})
}

func (d *Device) CmdBeginRenderPass(cmd hal.CommandBufferID, begin hal.RenderPassBegin) {
	d.record(Call{Op: "BeginRenderPass", Cmd: cmd})
}

func (d *Device) CmdEndRenderPass(cmd hal.CommandBufferID) {
	d.record(Call{Op: "EndRenderPass", Cmd: cmd})
}

func (d *Device) CmdSetViewport(cmd hal.CommandBufferID, width, height float32) {
	d.record(Call{Op: "SetViewport", Cmd: cmd})
}

func (d *Device) CmdSetScissor(cmd hal.CommandBufferID, width, height uint32) {
	d.record(Call{Op: "SetScissor", Cmd: cmd})
}

func (d *Device) CmdBindPipeline(cmd hal.CommandBufferID, pipeline hal.PipelineID) {
	d.record(Call{Op: "BindPipeline", Cmd: cmd, Pipeline: pipeline})
}

func (d *Device) CmdBindDescriptorSets(cmd hal.CommandBufferID, pipeline hal.PipelineID, first uint32, sets []hal.SetID) {
	d.record(Call{Op: "BindDescriptorSets", Cmd: cmd, Pipeline: pipeline, First: first, Sets: append([]hal.SetID(nil), sets...)})
}

func (d *Device) CmdBindVertexBuffer(cmd hal.CommandBufferID, buffer hal.BufferID, offset uint64) {
	d.record(Call{Op: "BindVertexBuffer", Cmd: cmd, Buffer: buffer})
}

func (d *Device) CmdBindIndexBuffer(cmd hal.CommandBufferID, buffer hal.BufferID, offset uint64) {
	d.record(Call{Op: "BindIndexBuffer", Cmd: cmd, Buffer: buffer})
}

func (d *Device) CmdPushConstants(cmd hal.CommandBufferID, pipeline hal.PipelineID, data []byte) {
	d.record(Call{Op: "PushConstants", Cmd: cmd, Pipeline: pipeline, Data: append([]byte(nil), data...)})
}

func (d *Device) CmdDraw(cmd hal.CommandBufferID, vertexCount, instanceCount uint32) {
	d.record(Call{Op: "Draw", Cmd: cmd, Count: vertexCount})
}

func (d *Device) CmdDrawIndexed(cmd hal.CommandBufferID, indexCount, instanceCount, firstIndex uint32, vertexOffset int32) {
	d.record(Call{Op: "DrawIndexed", Cmd: cmd, Count: indexCount, First: firstIndex})
}

func (d *Device) SurfaceInfo() (hal.SurfaceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.surface, nil
}

func (d *Device) CreateSwapchain(desc hal.SwapchainDesc) (hal.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateSwapchain"); err != nil {
		return hal.Swapchain{}, err
	}
	id := hal.SwapchainID(d.id())
	d.Swapchains[id] = desc
	sc := hal.Swapchain{
		ID:          id,
		Format:      desc.Format,
		Extent:      hal.Extent{Width: desc.Width, Height: desc.Height},
		PresentMode: desc.PresentMode,
	}
	for i := uint32(0); i < desc.MinImages; i++ {
		img := hal.ImageID(d.id())
		d.Images[img] = &Image{Desc: hal.ImageDesc{Label: desc.Label, Width: desc.Width, Height: desc.Height, Format: desc.Format}}
		sc.Images = append(sc.Images, img)
	}
	return sc, nil
}

func (d *Device) DestroySwapchain(id hal.SwapchainID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.Swapchains, id)
}

// AcquireNextImage hands out images round-robin.
func (d *Device) AcquireNextImage(sc hal.SwapchainID, timeout time.Duration, signal hal.SemaphoreID) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.acquireErrs) > 0 {
		err := d.acquireErrs[0]
		d.acquireErrs = d.acquireErrs[1:]
		if err != nil && err != hal.ErrSuboptimal {
			return 0, err
		}
		idx := d.advanceImage(sc)
		return idx, err
	}
	return d.advanceImage(sc), nil
}

func (d *Device) advanceImage(sc hal.SwapchainID) uint32 {
	count := d.Swapchains[sc].MinImages
	if count == 0 {
		count = 1
	}
	idx := d.nextImage[sc] % count
	d.nextImage[sc] = idx + 1
	return idx
}

func (d *Device) Present(sc hal.SwapchainID, imageIndex uint32, wait hal.SemaphoreID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Presents = append(d.Presents, imageIndex)
	if len(d.presentErrs) > 0 {
		err := d.presentErrs[0]
		d.presentErrs = d.presentErrs[1:]
		return err
	}
	return nil
}

func (d *Device) Destroy() {}

var _ hal.Device = (*Device)(nil)
