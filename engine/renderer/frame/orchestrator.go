package frame

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/descriptor"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
)

type Config struct {
	Width, Height  uint32
	VSync          bool
	FramesInFlight int
	// FenceTimeout bounds every fence and acquire wait. Zero waits forever.
	FenceTimeout time.Duration
	// GlobalLayout and GlobalPool serve the per-slot global sets. When nil a
	// layout with a single uniform buffer at UniformBinding is created.
	GlobalLayout *descriptor.Layout
	GlobalPool   *descriptor.Pool
	// UniformSize is the byte size of the per-slot uniform buffer.
	UniformSize uint64
}

// Rebuild describes what changed after a resize, a vsync toggle or a change
// of frames in flight.
type Rebuild struct {
	Swapchain      hal.Swapchain
	FramesInFlight int
	FramesChanged  bool
}

type RebuildListener func(Rebuild)

/**
 * @brief Drives the acquire, record, submit and present cycle over a ring of
 * frame slots, and owns the swapchain.
 */
type Orchestrator struct {
	dev   hal.Device
	alloc *resources.Allocator
	cfg   Config

	ownsGlobals bool

	state   State
	pool    hal.CommandPoolID
	cmds    []hal.CommandBufferID
	slots   []*Slot
	// slots dropped by a shrink, by index. Their uniform buffer and global
	// set come back when frames in flight grows again.
	parked  map[int]*Slot
	current int
	/** @brief Frames begun so far; the first frame is 1. */
	frame uint64

	swapchain hal.Swapchain
	/** @brief Slot whose submission last used each swapchain image. */
	imagesInFlight []*Slot
	imageIndex     uint32
	suboptimal     bool

	listeners []RebuildListener
}

func clampFrames(n int) int {
	if n <= 0 {
		return 2
	}
	return min(n, core.MaxFramesInFlight)
}

// New creates the swapchain and the frame slots. A minimized window is not an
// error: the swapchain is built by the first BeginFrame with a usable size.
func New(ctx *metadata.GraphicsContext, cfg Config) *Orchestrator {
	cfg.FramesInFlight = clampFrames(cfg.FramesInFlight)
	if cfg.FenceTimeout <= 0 {
		cfg.FenceTimeout = hal.WaitForever
	}
	if cfg.UniformSize == 0 {
		cfg.UniformSize = 256
	}

	o := &Orchestrator{dev: ctx.Device, alloc: ctx.Allocator}
	if cfg.GlobalLayout == nil {
		cfg.GlobalLayout = descriptor.NewLayout(ctx.Device, "globals", []descriptor.Binding{{
			Slot:   UniformBinding,
			Stages: hal.ShaderStageVertex | hal.ShaderStageFragment,
			Kind:   hal.DescriptorUniformBuffer,
		}})
		cfg.GlobalPool = descriptor.NewPool(ctx.Device, descriptor.PoolConfig{
			Label:   "globals",
			MaxSets: core.MaxFramesInFlight,
			Sizes:   cfg.GlobalLayout.PoolSizes(core.MaxFramesInFlight),
		})
		o.ownsGlobals = true
	}
	o.cfg = cfg

	o.buildSlots(cfg.FramesInFlight)
	if err := o.buildSwapchain(); err != nil && !errors.Is(err, core.ErrSwapchainBooting) {
		core.Fatal(err, "swapchain")
	}
	core.LogInfo("frame orchestrator ready: %d frames in flight", len(o.slots))
	return o
}

func (o *Orchestrator) GlobalLayout() *descriptor.Layout {
	return o.cfg.GlobalLayout
}

func (o *Orchestrator) State() State {
	return o.state
}

func (o *Orchestrator) FramesInFlight() int {
	return len(o.slots)
}

func (o *Orchestrator) VSync() bool {
	return o.cfg.VSync
}

// Current returns the slot of the frame being recorded, or the slot the next
// frame will use when idle.
func (o *Orchestrator) Current() *Slot {
	return o.slots[o.current]
}

func (o *Orchestrator) Slots() []*Slot {
	return o.slots
}

// ImageIndex is the swapchain image acquired for the current frame.
func (o *Orchestrator) ImageIndex() uint32 {
	return o.imageIndex
}

func (o *Orchestrator) Swapchain() hal.Swapchain {
	return o.swapchain
}

// Frame returns the number of the current frame, 0 before the first one.
func (o *Orchestrator) Frame() uint64 {
	return o.frame
}

// OnRebuild registers fn to run after every swapchain rebuild.
func (o *Orchestrator) OnRebuild(fn RebuildListener) {
	o.listeners = append(o.listeners, fn)
}

func (o *Orchestrator) waitFence(fence hal.FenceID, label string) {
	err := o.dev.WaitFence(fence, o.cfg.FenceTimeout)
	switch {
	case err == nil:
	case errors.Is(err, hal.ErrTimeout):
		core.Fatal(fmt.Errorf("%w after %s", core.ErrFenceTimeout, o.cfg.FenceTimeout), label)
	case errors.Is(err, hal.ErrDeviceLost):
		core.Fatal(fmt.Errorf("%w: %w", core.ErrDeviceLost, err), label)
	default:
		core.Fatal(err, label)
	}
}

// BeginFrame waits until the next slot is free, acquires a swapchain image and
// starts recording the slot command buffer. ErrOutOfDate means nothing was
// acquired and the caller should Resize. A suboptimal swapchain is used for
// this frame and reported by EndFrame.
func (o *Orchestrator) BeginFrame() (*Slot, error) {
	if o.state != Idle {
		return nil, fmt.Errorf("%w: begin while %s", ErrFrameState, o.state)
	}
	if o.swapchain.ID == 0 {
		if err := o.rebuild(len(o.slots)); err != nil {
			return nil, err
		}
	}

	slot := o.slots[o.current]
	o.waitFence(slot.Fence, slot.label())
	// fences signal in submission order, so every frame up to this slot's
	// last one has finished
	o.alloc.Collect(slot.frame)

	idx, err := o.dev.AcquireNextImage(o.swapchain.ID, o.cfg.FenceTimeout, slot.ImageAcquired)
	switch {
	case err == nil:
	case errors.Is(err, hal.ErrOutOfDate):
		core.LogDebug("swapchain out of date at acquire")
		return nil, err
	case errors.Is(err, hal.ErrSuboptimal):
		o.suboptimal = true
	case errors.Is(err, hal.ErrTimeout):
		core.Fatal(fmt.Errorf("%w: acquire after %s", core.ErrFenceTimeout, o.cfg.FenceTimeout), "swapchain")
	case errors.Is(err, hal.ErrDeviceLost):
		core.Fatal(fmt.Errorf("%w: %w", core.ErrDeviceLost, err), "swapchain")
	default:
		core.Fatal(err, "swapchain")
	}
	o.state = Acquired

	// an earlier slot may still be rendering into this image
	if prev := o.imagesInFlight[idx]; prev != nil && prev != slot {
		o.waitFence(prev.Fence, prev.label())
	}
	o.imagesInFlight[idx] = slot
	o.imageIndex = idx

	o.frame++
	slot.frame = o.frame
	o.alloc.SetFrame(o.frame)
	if err := o.dev.BeginCommandBuffer(slot.Cmd, false); err != nil {
		core.Fatal(err, slot.label())
	}
	o.state = Recording
	return slot, nil
}

// EndFrame submits the recorded slot and presents its image. The slot ring
// advances even when presentation reports ErrOutOfDate or ErrSuboptimal.
func (o *Orchestrator) EndFrame() error {
	if o.state != Recording {
		return fmt.Errorf("%w: end while %s", ErrFrameState, o.state)
	}
	slot := o.slots[o.current]
	if err := o.dev.EndCommandBuffer(slot.Cmd); err != nil {
		core.Fatal(err, slot.label())
	}
	if err := o.dev.ResetFence(slot.Fence); err != nil {
		core.Fatal(err, slot.label())
	}
	err := o.dev.Submit(hal.SubmitDesc{
		Cmd:       slot.Cmd,
		Wait:      slot.ImageAcquired,
		WaitStage: hal.StageColorAttachmentOutput,
		Signal:    slot.RenderFinished,
		Fence:     slot.Fence,
	})
	if err != nil {
		if errors.Is(err, hal.ErrDeviceLost) {
			err = fmt.Errorf("%w: %w", core.ErrDeviceLost, err)
		}
		core.Fatal(err, slot.label())
	}
	o.state = Submitted

	err = o.dev.Present(o.swapchain.ID, o.imageIndex, slot.RenderFinished)
	o.state = Presented
	o.current = (o.current + 1) % len(o.slots)
	o.state = Idle

	suboptimal := o.suboptimal
	o.suboptimal = false
	switch {
	case err == nil:
	case hal.IsSwapchainError(err):
		return err
	case errors.Is(err, hal.ErrDeviceLost):
		core.Fatal(fmt.Errorf("%w: %w", core.ErrDeviceLost, err), "swapchain")
	default:
		core.Fatal(err, "swapchain")
	}
	if suboptimal {
		return hal.ErrSuboptimal
	}
	return nil
}

// Resize rebuilds the swapchain for the new window size. A zero area returns
// core.ErrSwapchainBooting until a usable size arrives.
func (o *Orchestrator) Resize(width, height uint32) error {
	if o.state != Idle {
		return fmt.Errorf("%w: resize while %s", ErrFrameState, o.state)
	}
	o.cfg.Width, o.cfg.Height = width, height
	return o.rebuild(len(o.slots))
}

func (o *Orchestrator) SetVSync(vsync bool) error {
	if o.state != Idle {
		return fmt.Errorf("%w: vsync change while %s", ErrFrameState, o.state)
	}
	if vsync == o.cfg.VSync {
		return nil
	}
	o.cfg.VSync = vsync
	return o.rebuild(len(o.slots))
}

func (o *Orchestrator) SetFramesInFlight(n int) error {
	if o.state != Idle {
		return fmt.Errorf("%w: frames in flight change while %s", ErrFrameState, o.state)
	}
	n = clampFrames(n)
	if n == len(o.slots) {
		return nil
	}
	return o.rebuild(n)
}

// rebuild waits for the device, rebuilds the swapchain with the old one as a
// hint and recreates the slots when framesInFlight changed.
func (o *Orchestrator) rebuild(framesInFlight int) error {
	if err := o.dev.WaitIdle(); err != nil {
		core.Fatal(err, "device")
	}
	changed := framesInFlight != len(o.slots)
	if changed {
		o.buildSlots(framesInFlight)
	}

	err := o.buildSwapchain()
	if err != nil && !errors.Is(err, core.ErrSwapchainBooting) {
		core.Fatal(err, "swapchain")
	}
	if err == nil || changed {
		ev := Rebuild{Swapchain: o.swapchain, FramesInFlight: len(o.slots), FramesChanged: changed}
		for _, fn := range o.listeners {
			fn(ev)
		}
	}
	return err
}

func (o *Orchestrator) buildSwapchain() error {
	old := o.swapchain.ID
	sc, err := createSwapchain(o.dev, o.cfg.Width, o.cfg.Height, o.cfg.VSync, old)
	if old != 0 {
		o.dev.DestroySwapchain(old)
	}
	if err != nil {
		o.swapchain = hal.Swapchain{}
		o.imagesInFlight = nil
		if errors.Is(err, core.ErrSwapchainBooting) {
			core.LogDebug("surface has zero area, booting")
		}
		return err
	}
	o.swapchain = sc
	o.imagesInFlight = make([]*Slot, len(sc.Images))
	return nil
}

// buildSlots recreates the command pool and sync objects for n slots. Uniform
// buffers and global sets are never freed before Destroy: the global pool
// cannot free single sets, so dropped slots are parked for reuse.
func (o *Orchestrator) buildSlots(n int) {
	old := o.slots
	for i, s := range old {
		s.destroySync(o.dev)
		if i >= n {
			if o.parked == nil {
				o.parked = map[int]*Slot{}
			}
			s.frame = 0
			o.parked[i] = s
		}
	}
	if o.pool != 0 {
		o.dev.FreeCommandBuffers(o.pool, o.cmds)
		o.dev.DestroyCommandPool(o.pool)
	}

	var err error
	if o.pool, err = o.dev.CreateCommandPool("frames"); err != nil {
		core.Fatal(err, "frame command pool")
	}
	if o.cmds, err = o.dev.AllocateCommandBuffers(o.pool, n); err != nil {
		core.Fatal(err, "frame command buffers")
	}

	o.slots = make([]*Slot, n)
	for i := range o.slots {
		switch s, ok := o.parked[i]; {
		case i < len(old):
			o.slots[i] = old[i]
		case ok:
			delete(o.parked, i)
			o.slots[i] = s
		default:
			o.slots[i] = &Slot{Index: i}
			newUniforms(o.alloc, o.cfg, o.slots[i])
		}
		newSync(o.dev, o.cmds[i], o.slots[i])
	}
	o.current = 0
	for i := range o.imagesInFlight {
		o.imagesInFlight[i] = nil
	}
}

func (o *Orchestrator) Destroy() {
	if err := o.dev.WaitIdle(); err != nil {
		core.LogError("wait idle on shutdown: %s", err)
	}
	for _, s := range o.slots {
		s.destroy(o.dev)
	}
	o.slots = nil
	for i, s := range o.parked {
		s.Uniform.Destroy()
		delete(o.parked, i)
	}
	o.dev.FreeCommandBuffers(o.pool, o.cmds)
	o.dev.DestroyCommandPool(o.pool)
	if o.swapchain.ID != 0 {
		o.dev.DestroySwapchain(o.swapchain.ID)
	}
	if o.ownsGlobals {
		o.cfg.GlobalPool.Destroy()
		o.cfg.GlobalLayout.Destroy()
	}
}
