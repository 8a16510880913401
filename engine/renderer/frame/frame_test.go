package frame

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/haltest"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func newOrchestrator(t *testing.T, dev *haltest.Device, frames int) *Orchestrator {
	t.Helper()
	ctx := metadata.NewGraphicsContext(dev, core.DefaultConfig())
	o := New(ctx, Config{Width: 640, Height: 480, VSync: true, FramesInFlight: frames, FenceTimeout: time.Second})
	t.Cleanup(func() {
		o.Destroy()
		ctx.Destroy()
	})
	return o
}

func runFrame(t *testing.T, o *Orchestrator) *Slot {
	t.Helper()
	slot, err := o.BeginFrame()
	require.NoError(t, err)
	require.NoError(t, o.EndFrame())
	return slot
}

func TestSlotsRotate(t *testing.T) {
	dev := haltest.New()
	o := newOrchestrator(t, dev, 2)
	require.Equal(t, 2, o.FramesInFlight())

	var used []int
	for i := 0; i < 4; i++ {
		used = append(used, runFrame(t, o).Index)
	}
	assert.Equal(t, []int{0, 1, 0, 1}, used)
	assert.Equal(t, uint64(4), o.Frame())
	assert.Equal(t, Idle, o.State())

	require.Len(t, dev.Submits, 4)
	first := dev.Submits[0]
	slot0 := o.Slots()[0]
	assert.Equal(t, slot0.Cmd, first.Cmd)
	assert.Equal(t, slot0.ImageAcquired, first.Wait)
	assert.Equal(t, slot0.RenderFinished, first.Signal)
	assert.Equal(t, slot0.Fence, first.Fence)
	assert.Equal(t, hal.StageColorAttachmentOutput, first.WaitStage)
	assert.Equal(t, []uint32{0, 1, 2, 0}, dev.Presents)
}

func TestThirdFrameWaitsOnFirstSlotFence(t *testing.T) {
	dev := haltest.New()
	dev.ManualFences = true
	o := newOrchestrator(t, dev, 2)
	slot0 := o.Slots()[0]

	runFrame(t, o)
	runFrame(t, o)

	err := haltest.CatchFatal(t, func() { o.BeginFrame() })
	assert.ErrorIs(t, err, core.ErrFenceTimeout)
	assert.Equal(t, slot0.Fence, dev.FenceWaits[len(dev.FenceWaits)-1])
	assert.Equal(t, Idle, o.State())

	dev.SignalFence(slot0.Fence)
	slot, err := o.BeginFrame()
	require.NoError(t, err)
	assert.Same(t, slot0, slot)
	require.NoError(t, o.EndFrame())
}

func TestImageHeldByAnotherSlotIsWaitedOn(t *testing.T) {
	dev := haltest.New()
	o := newOrchestrator(t, dev, 2)
	require.Len(t, o.Swapchain().Images, 3)

	for i := 0; i < 3; i++ {
		runFrame(t, o)
	}
	dev.FenceWaits = nil
	// fourth frame: slot 1 gets image 0, last used by slot 0
	runFrame(t, o)
	assert.Equal(t, []hal.FenceID{o.Slots()[1].Fence, o.Slots()[0].Fence}, dev.FenceWaits)
}

func TestDeviceLostIsFatal(t *testing.T) {
	dev := haltest.New()
	o := newOrchestrator(t, dev, 2)
	dev.FailOn("WaitFence", hal.ErrDeviceLost)

	err := haltest.CatchFatal(t, func() { o.BeginFrame() })
	assert.ErrorIs(t, err, core.ErrDeviceLost)
}

func TestOutOfDateAtAcquireReturns(t *testing.T) {
	dev := haltest.New()
	o := newOrchestrator(t, dev, 2)
	dev.QueueAcquireResult(hal.ErrOutOfDate)

	slot, err := o.BeginFrame()
	assert.Nil(t, slot)
	assert.ErrorIs(t, err, ErrOutOfDate)
	assert.Equal(t, Idle, o.State())
	for _, c := range dev.CallsOf("Begin") {
		assert.NotEqual(t, o.Current().Cmd, c.Cmd)
	}

	require.NoError(t, o.Resize(800, 600))
	runFrame(t, o)
}

func TestSuboptimalIsReportedAtEnd(t *testing.T) {
	dev := haltest.New()
	o := newOrchestrator(t, dev, 2)
	dev.QueueAcquireResult(hal.ErrSuboptimal)

	_, err := o.BeginFrame()
	require.NoError(t, err)
	assert.Equal(t, Recording, o.State())
	assert.ErrorIs(t, o.EndFrame(), ErrSuboptimal)
	assert.Len(t, dev.Presents, 1)

	dev.QueuePresentResult(hal.ErrOutOfDate)
	_, err = o.BeginFrame()
	require.NoError(t, err)
	assert.ErrorIs(t, o.EndFrame(), ErrOutOfDate)
	assert.Equal(t, 0, o.Current().Index)
}

func TestCallsOutOfOrder(t *testing.T) {
	o := newOrchestrator(t, haltest.New(), 2)

	assert.ErrorIs(t, o.EndFrame(), ErrFrameState)
	_, err := o.BeginFrame()
	require.NoError(t, err)
	_, err = o.BeginFrame()
	assert.ErrorIs(t, err, ErrFrameState)
	assert.ErrorIs(t, o.Resize(10, 10), ErrFrameState)
	require.NoError(t, o.EndFrame())
}

func TestZeroAreaBoots(t *testing.T) {
	dev := haltest.New()
	o := newOrchestrator(t, dev, 2)

	assert.ErrorIs(t, o.Resize(0, 480), core.ErrSwapchainBooting)
	assert.Zero(t, o.Swapchain().ID)
	_, err := o.BeginFrame()
	assert.ErrorIs(t, err, core.ErrSwapchainBooting)

	require.NoError(t, o.Resize(320, 240))
	assert.Equal(t, hal.Extent{Width: 320, Height: 240}, o.Swapchain().Extent)
	runFrame(t, o)
}

func TestResizeRebuildsWithOldHint(t *testing.T) {
	dev := haltest.New()
	o := newOrchestrator(t, dev, 2)
	old := o.Swapchain().ID
	pools := dev.CommandPools

	var events []Rebuild
	o.OnRebuild(func(ev Rebuild) { events = append(events, ev) })

	idle := dev.IdleWaits
	require.NoError(t, o.Resize(1024, 768))
	assert.Greater(t, dev.IdleWaits, idle)
	sc := o.Swapchain()
	assert.Equal(t, old, dev.Swapchains[sc.ID].Old)
	assert.NotContains(t, dev.Swapchains, old)
	assert.Equal(t, pools, dev.CommandPools)
	require.Len(t, events, 1)
	assert.False(t, events[0].FramesChanged)
	assert.Equal(t, sc.ID, events[0].Swapchain.ID)
}

func TestVSyncSelectsPresentMode(t *testing.T) {
	dev := haltest.New()
	o := newOrchestrator(t, dev, 2)
	assert.Equal(t, hal.PresentModeFifo, o.Swapchain().PresentMode)

	require.NoError(t, o.SetVSync(false))
	assert.Equal(t, hal.PresentModeMailbox, o.Swapchain().PresentMode)

	assert.Equal(t, hal.PresentModeImmediate, ChoosePresentMode(false, []hal.PresentMode{hal.PresentModeFifo, hal.PresentModeImmediate}))
	assert.Equal(t, hal.PresentModeFifo, ChoosePresentMode(false, []hal.PresentMode{hal.PresentModeFifo}))
	assert.Equal(t, hal.PresentModeFifo, ChoosePresentMode(true, []hal.PresentMode{hal.PresentModeMailbox}))
}

func TestFramesInFlightChange(t *testing.T) {
	dev := haltest.New()
	o := newOrchestrator(t, dev, 2)
	runFrame(t, o)
	keep := o.Slots()[0]
	uniform := keep.Uniform
	pools := dev.CommandPools

	var events []Rebuild
	o.OnRebuild(func(ev Rebuild) { events = append(events, ev) })

	require.NoError(t, o.SetFramesInFlight(3))
	assert.Equal(t, 3, o.FramesInFlight())
	assert.Equal(t, pools+1, dev.CommandPools)
	assert.Same(t, uniform, o.Slots()[0].Uniform)
	assert.Equal(t, 0, o.Current().Index)
	require.Len(t, events, 1)
	assert.True(t, events[0].FramesChanged)
	assert.Equal(t, 3, events[0].FramesInFlight)

	require.NoError(t, o.SetFramesInFlight(3))
	assert.Len(t, events, 1)

	require.NoError(t, o.SetFramesInFlight(9))
	assert.Equal(t, core.MaxFramesInFlight, o.FramesInFlight())
	require.NoError(t, o.SetFramesInFlight(1))
	for i := 0; i < 3; i++ {
		assert.Equal(t, 0, runFrame(t, o).Index)
	}
}

func TestShrinkingKeepsGlobalSetsForReuse(t *testing.T) {
	dev := haltest.New()
	o := newOrchestrator(t, dev, 3)
	third := o.Slots()[2]
	sets := dev.SetsAllocated

	for i := 0; i < 4; i++ {
		require.NoError(t, o.SetFramesInFlight(1))
		require.NoError(t, o.SetFramesInFlight(3))
	}
	assert.Equal(t, sets, dev.SetsAllocated)
	assert.Same(t, third.Globals, o.Slots()[2].Globals)
	assert.Same(t, third.Uniform, o.Slots()[2].Uniform)
	for i := 0; i < 3; i++ {
		assert.Equal(t, i, runFrame(t, o).Index)
	}
}

func TestGlobalSetReferencesUniform(t *testing.T) {
	dev := haltest.New()
	o := newOrchestrator(t, dev, 2)

	for _, slot := range o.Slots() {
		var found bool
		for _, writes := range dev.DescriptorWrites {
			for _, w := range writes {
				if w.Set == slot.Globals.ID() {
					found = true
					assert.Equal(t, slot.Uniform.ID(), w.Buffer)
					assert.Equal(t, hal.DescriptorUniformBuffer, w.Kind)
				}
			}
		}
		assert.True(t, found, "slot %d", slot.Index)
	}
}

func TestStagingIsCollectedWhenSlotIsFree(t *testing.T) {
	dev := haltest.New()
	ctx := metadata.NewGraphicsContext(dev, core.DefaultConfig())
	o := New(ctx, Config{Width: 64, Height: 64, FramesInFlight: 2})
	defer ctx.Destroy()
	defer o.Destroy()

	slot, err := o.BeginFrame()
	require.NoError(t, err)
	img := ctx.Allocator.CreateImage(resources.ImageConfig{
		Label:  "streamed",
		Width:  4,
		Height: 4,
		Format: hal.FormatRGBA8Unorm,
		Usage:  hal.ImageUsageSampled | hal.ImageUsageTransferDst,
	})
	defer img.Destroy()
	img.Upload(make([]byte, 4*4*4), slot.Cmd)
	assert.Equal(t, 1, ctx.Allocator.Pending())
	require.NoError(t, o.EndFrame())

	runFrame(t, o)
	assert.Equal(t, 1, ctx.Allocator.Pending())
	// frame 3 reuses slot 0 whose fence covers frame 1
	runFrame(t, o)
	assert.Equal(t, 0, ctx.Allocator.Pending())
}
