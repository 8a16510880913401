package vulkan

import (
	"math"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

func (d *Device) CreateFence(signaled bool) (hal.FenceID, error) {
	info := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	// Make sure to signal the fence if required.
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if res := vk.CreateFence(d.gpu.LogicalDevice, &info, nil, &fence); res != vk.Success {
		return 0, resultError("vkCreateFence", res)
	}
	return hal.FenceID(d.fences.put(fence)), nil
}

func (d *Device) DestroyFence(id hal.FenceID) {
	if f, ok := d.fences.take(uint64(id)); ok {
		vk.DestroyFence(d.gpu.LogicalDevice, f, nil)
	}
}

// WaitFence blocks until the fence is signaled or the timeout expires.
func (d *Device) WaitFence(id hal.FenceID, timeout time.Duration) error {
	f, ok := d.fences.get(uint64(id))
	if !ok {
		return nil
	}
	ns := timeoutNanos(timeout)
	res := vk.WaitForFences(d.gpu.LogicalDevice, 1, []vk.Fence{f}, vk.True, ns)
	switch res {
	case vk.Success:
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
	case vk.ErrorDeviceLost:
		core.LogError("vk_fence_wait - VK_ERROR_DEVICE_LOST.")
	default:
		core.LogError("vk_fence_wait - %s", VulkanResultString(res))
	}
	return resultError("vkWaitForFences", res)
}

func (d *Device) ResetFence(id hal.FenceID) error {
	f, ok := d.fences.get(uint64(id))
	if !ok {
		return nil
	}
	return resultError("vkResetFences", vk.ResetFences(d.gpu.LogicalDevice, 1, []vk.Fence{f}))
}

func (d *Device) CreateSemaphore() (hal.SemaphoreID, error) {
	var sem vk.Semaphore
	res := vk.CreateSemaphore(d.gpu.LogicalDevice, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &sem)
	if res != vk.Success {
		return 0, resultError("vkCreateSemaphore", res)
	}
	return hal.SemaphoreID(d.semaphores.put(sem)), nil
}

func (d *Device) DestroySemaphore(id hal.SemaphoreID) {
	if s, ok := d.semaphores.take(uint64(id)); ok {
		vk.DestroySemaphore(d.gpu.LogicalDevice, s, nil)
	}
}

func timeoutNanos(timeout time.Duration) uint64 {
	if timeout == hal.WaitForever || timeout < 0 {
		return math.MaxUint64
	}
	return uint64(timeout.Nanoseconds())
}
