package vulkan

import "sync"

// LockGroup names a family of Vulkan objects that need external
// synchronization when touched from more than one goroutine.
type LockGroup string

const (
	// vkQueueSubmit, vkQueuePresentKHR and vkQueueWaitIdle on the shared queues
	QueueManagement LockGroup = "queue_management"
	// allocation and reset on descriptor pools
	DescriptorPoolManagement LockGroup = "descriptor_pool_management"
	// allocation and free on command pools
	CommandPoolManagement LockGroup = "command_pool_management"
	SwapchainManagement   LockGroup = "swapchain_management"
)

type VulkanLockPool struct {
	mu    sync.Mutex
	locks map[LockGroup]*sync.Mutex
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{locks: make(map[LockGroup]*sync.Mutex)}
}

func (lp *VulkanLockPool) lock(group LockGroup) *sync.Mutex {
	lp.mu.Lock()
	l, ok := lp.locks[group]
	if !ok {
		l = &sync.Mutex{}
		lp.locks[group] = l
	}
	lp.mu.Unlock()
	return l
}

// SafeCall runs fn holding the lock of group. The group lock is taken after
// the pool lock is released so long calls do not serialize unrelated groups.
func (lp *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := lp.lock(group)
	l.Lock()
	defer l.Unlock()
	return fn()
}
