package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState
	pool  hal.CommandPoolID
}

// command resolves a recording target. Recording into a buffer that is not
// recording is a renderer bug, it is logged and the command dropped.
func (d *Device) command(id hal.CommandBufferID) (*VulkanCommandBuffer, bool) {
	cb, ok := d.cmds.get(uint64(id))
	if !ok {
		core.LogWarn("command recorded into unknown command buffer %d", id)
		return nil, false
	}
	if cb.State != COMMAND_BUFFER_STATE_RECORDING && cb.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		core.LogWarn("command recorded into command buffer %d outside of Begin/End", id)
		return nil, false
	}
	return cb, true
}

// CreateCommandPool creates a resettable pool on the graphics family.
func (d *Device) CreateCommandPool(label string) (hal.CommandPoolID, error) {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.gpu.GraphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(d.gpu.LogicalDevice, &info, nil, &pool); res != vk.Success {
		return 0, resultError("vkCreateCommandPool "+label, res)
	}
	core.LogDebug("Command pool %s created.", label)
	return hal.CommandPoolID(d.cmdPools.put(pool)), nil
}

func (d *Device) DestroyCommandPool(id hal.CommandPoolID) {
	pool, ok := d.cmdPools.take(uint64(id))
	if !ok {
		return
	}
	d.locks.SafeCall(CommandPoolManagement, func() error {
		d.cmds.removeIf(func(cb *VulkanCommandBuffer) bool { return cb.pool == id })
		vk.DestroyCommandPool(d.gpu.LogicalDevice, pool, nil)
		return nil
	})
}

func (d *Device) AllocateCommandBuffers(poolID hal.CommandPoolID, count int) ([]hal.CommandBufferID, error) {
	pool, ok := d.cmdPools.get(uint64(poolID))
	if !ok {
		return nil, fmt.Errorf("allocate command buffers: unknown pool %d", poolID)
	}
	handles := make([]vk.CommandBuffer, count)
	err := d.locks.SafeCall(CommandPoolManagement, func() error {
		return resultError("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(d.gpu.LogicalDevice, &vk.CommandBufferAllocateInfo{
			SType:              vk.StructureTypeCommandBufferAllocateInfo,
			CommandPool:        pool,
			Level:              vk.CommandBufferLevelPrimary,
			CommandBufferCount: uint32(count),
		}, handles))
	})
	if err != nil {
		return nil, err
	}
	ids := make([]hal.CommandBufferID, count)
	for i, h := range handles {
		ids[i] = hal.CommandBufferID(d.cmds.put(&VulkanCommandBuffer{
			Handle: h,
			State:  COMMAND_BUFFER_STATE_READY,
			pool:   poolID,
		}))
	}
	return ids, nil
}

func (d *Device) FreeCommandBuffers(poolID hal.CommandPoolID, cmds []hal.CommandBufferID) {
	pool, ok := d.cmdPools.get(uint64(poolID))
	if !ok {
		return
	}
	handles := make([]vk.CommandBuffer, 0, len(cmds))
	for _, id := range cmds {
		if cb, ok := d.cmds.take(uint64(id)); ok {
			cb.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
			handles = append(handles, cb.Handle)
		}
	}
	if len(handles) == 0 {
		return
	}
	d.locks.SafeCall(CommandPoolManagement, func() error {
		vk.FreeCommandBuffers(d.gpu.LogicalDevice, pool, uint32(len(handles)), handles)
		return nil
	})
}

// BeginCommandBuffer starts recording. The pool resets buffers implicitly on
// begin, so a submitted buffer can be reused once its fence is signaled.
func (d *Device) BeginCommandBuffer(id hal.CommandBufferID, oneShot bool) error {
	cb, ok := d.cmds.get(uint64(id))
	if !ok {
		return fmt.Errorf("begin command buffer: unknown buffer %d", id)
	}
	info := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if oneShot {
		info.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if res := vk.BeginCommandBuffer(cb.Handle, &info); res != vk.Success {
		return resultError("vkBeginCommandBuffer", res)
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (d *Device) EndCommandBuffer(id hal.CommandBufferID) error {
	cb, ok := d.cmds.get(uint64(id))
	if !ok {
		return fmt.Errorf("end command buffer: unknown buffer %d", id)
	}
	if cb.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return fmt.Errorf("end command buffer %d: render pass still open", id)
	}
	if res := vk.EndCommandBuffer(cb.Handle); res != vk.Success {
		return resultError("vkEndCommandBuffer", res)
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (d *Device) Submit(desc hal.SubmitDesc) error {
	cb, ok := d.cmds.get(uint64(desc.Cmd))
	if !ok {
		return fmt.Errorf("submit: unknown command buffer %d", desc.Cmd)
	}
	info := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb.Handle},
	}
	if desc.Wait != 0 {
		sem, ok := d.semaphores.get(uint64(desc.Wait))
		if !ok {
			return fmt.Errorf("submit: unknown wait semaphore %d", desc.Wait)
		}
		info.WaitSemaphoreCount = 1
		info.PWaitSemaphores = []vk.Semaphore{sem}
		info.PWaitDstStageMask = []vk.PipelineStageFlags{vkStage(desc.WaitStage)}
	}
	if desc.Signal != 0 {
		sem, ok := d.semaphores.get(uint64(desc.Signal))
		if !ok {
			return fmt.Errorf("submit: unknown signal semaphore %d", desc.Signal)
		}
		info.SignalSemaphoreCount = 1
		info.PSignalSemaphores = []vk.Semaphore{sem}
	}
	fence := vk.NullFence
	if desc.Fence != 0 {
		f, ok := d.fences.get(uint64(desc.Fence))
		if !ok {
			return fmt.Errorf("submit: unknown fence %d", desc.Fence)
		}
		fence = f
	}

	err := d.locks.SafeCall(QueueManagement, func() error {
		return resultError("vkQueueSubmit", vk.QueueSubmit(d.gpu.GraphicsQueue, 1, []vk.SubmitInfo{info}, fence))
	})
	if err != nil {
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_SUBMITTED
	return nil
}

func (d *Device) SubmitAndWait(id hal.CommandBufferID) error {
	cb, ok := d.cmds.get(uint64(id))
	if !ok {
		return fmt.Errorf("submit: unknown command buffer %d", id)
	}
	info := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb.Handle},
	}
	err := d.locks.SafeCall(QueueManagement, func() error {
		if res := vk.QueueSubmit(d.gpu.GraphicsQueue, 1, []vk.SubmitInfo{info}, vk.NullFence); res != vk.Success {
			return resultError("vkQueueSubmit", res)
		}
		return resultError("vkQueueWaitIdle", vk.QueueWaitIdle(d.gpu.GraphicsQueue))
	})
	if err != nil {
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (d *Device) CmdCopyBuffer(cmd hal.CommandBufferID, src, dst hal.BufferID, srcOffset, dstOffset, size uint64) {
	cb, ok := d.command(cmd)
	if !ok {
		return
	}
	s, ok := d.buffers.get(uint64(src))
	if !ok {
		return
	}
	t, ok := d.buffers.get(uint64(dst))
	if !ok {
		return
	}
	vk.CmdCopyBuffer(cb.Handle, s.handle, t.handle, 1, []vk.BufferCopy{{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}})
}

// CmdCopyBufferToImage copies tightly packed pixels into mip 0. The image must
// be in the transfer destination layout.
func (d *Device) CmdCopyBufferToImage(cmd hal.CommandBufferID, src hal.BufferID, dst hal.ImageID, width, height uint32) {
	cb, ok := d.command(cmd)
	if !ok {
		return
	}
	buf, ok := d.buffers.get(uint64(src))
	if !ok {
		return
	}
	img, ok := d.images.get(uint64(dst))
	if !ok {
		return
	}
	vk.CmdCopyBufferToImage(cb.Handle, buf.handle, img.handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     aspectOf(img.format),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageExtent: vk.Extent3D{Width: width, Height: height, Depth: 1},
	}})
}

func (d *Device) CmdImageBarrier(cmd hal.CommandBufferID, barrier hal.ImageBarrier) {
	cb, ok := d.command(cmd)
	if !ok {
		return
	}
	img, ok := d.images.get(uint64(barrier.Image))
	if !ok {
		return
	}
	vk.CmdPipelineBarrier(cb.Handle, vkStage(barrier.SrcStage), vkStage(barrier.DstStage), 0,
		0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			OldLayout:           vkLayout(barrier.OldLayout),
			NewLayout:           vkLayout(barrier.NewLayout),
			SrcAccessMask:       vkAccess(barrier.SrcAccess),
			DstAccessMask:       vkAccess(barrier.DstAccess),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     aspectOf(img.format),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}})
}

func (d *Device) CmdSetViewport(cmd hal.CommandBufferID, width, height float32) {
	cb, ok := d.command(cmd)
	if !ok {
		return
	}
	vk.CmdSetViewport(cb.Handle, 0, 1, []vk.Viewport{{
		X:        0,
		Y:        0,
		Width:    width,
		Height:   height,
		MinDepth: 0,
		MaxDepth: 1,
	}})
}

func (d *Device) CmdSetScissor(cmd hal.CommandBufferID, width, height uint32) {
	cb, ok := d.command(cmd)
	if !ok {
		return
	}
	vk.CmdSetScissor(cb.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: width, Height: height},
	}})
}

func (d *Device) CmdBindVertexBuffer(cmd hal.CommandBufferID, buffer hal.BufferID, offset uint64) {
	cb, ok := d.command(cmd)
	if !ok {
		return
	}
	if b, ok := d.buffers.get(uint64(buffer)); ok {
		vk.CmdBindVertexBuffers(cb.Handle, 0, 1, []vk.Buffer{b.handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
	}
}

// CmdBindIndexBuffer binds 32 bit indices, the only index width the batches
// produce.
func (d *Device) CmdBindIndexBuffer(cmd hal.CommandBufferID, buffer hal.BufferID, offset uint64) {
	cb, ok := d.command(cmd)
	if !ok {
		return
	}
	if b, ok := d.buffers.get(uint64(buffer)); ok {
		vk.CmdBindIndexBuffer(cb.Handle, b.handle, vk.DeviceSize(offset), vk.IndexTypeUint32)
	}
}

func (d *Device) CmdDraw(cmd hal.CommandBufferID, vertexCount, instanceCount uint32) {
	if cb, ok := d.command(cmd); ok {
		vk.CmdDraw(cb.Handle, vertexCount, instanceCount, 0, 0)
	}
}

func (d *Device) CmdDrawIndexed(cmd hal.CommandBufferID, indexCount, instanceCount, firstIndex uint32, vertexOffset int32) {
	if cb, ok := d.command(cmd); ok {
		vk.CmdDrawIndexed(cb.Handle, indexCount, instanceCount, firstIndex, vertexOffset, 0)
	}
}
