package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

type vulkanBuffer struct {
	handle vk.Buffer
	memory vk.DeviceMemory
	size   uint64
	mapped []byte
}

func (b *vulkanBuffer) destroy(dev vk.Device) {
	if b.mapped != nil {
		vk.UnmapMemory(dev, b.memory)
		b.mapped = nil
	}
	vk.DestroyBuffer(dev, b.handle, nil)
	vk.FreeMemory(dev, b.memory, nil)
}

func memoryFlags(kind hal.MemoryKind) vk.MemoryPropertyFlags {
	if kind == hal.MemoryHostVisible {
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
}

// allocate finds a memory type for reqs and allocates it.
func (d *Device) allocate(label string, reqs vk.MemoryRequirements, flags vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	reqs.Deref()
	index := d.gpu.FindMemoryIndex(reqs.MemoryTypeBits, flags)
	if index < 0 {
		return nil, fmt.Errorf("%s: no suitable memory type: %w", label, hal.ErrOutOfDeviceMemory)
	}
	var memory vk.DeviceMemory
	res := vk.AllocateMemory(d.gpu.LogicalDevice, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: uint32(index),
	}, nil, &memory)
	if res != vk.Success {
		return nil, resultError("vkAllocateMemory "+label, res)
	}
	return memory, nil
}

func (d *Device) CreateBuffer(desc hal.BufferDesc) (hal.BufferID, error) {
	dev := d.gpu.LogicalDevice
	var handle vk.Buffer
	res := vk.CreateBuffer(dev, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       vkBufferUsage(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &handle)
	if res != vk.Success {
		return 0, resultError("vkCreateBuffer "+desc.Label, res)
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(dev, handle, &reqs)
	memory, err := d.allocate(desc.Label, reqs, memoryFlags(desc.Memory))
	if err != nil {
		vk.DestroyBuffer(dev, handle, nil)
		return 0, err
	}
	if res := vk.BindBufferMemory(dev, handle, memory, 0); res != vk.Success {
		vk.DestroyBuffer(dev, handle, nil)
		vk.FreeMemory(dev, memory, nil)
		return 0, resultError("vkBindBufferMemory "+desc.Label, res)
	}
	return hal.BufferID(d.buffers.put(&vulkanBuffer{handle: handle, memory: memory, size: desc.Size})), nil
}

func (d *Device) DestroyBuffer(id hal.BufferID) {
	if b, ok := d.buffers.take(uint64(id)); ok {
		b.destroy(d.gpu.LogicalDevice)
	}
}

func (d *Device) MapBuffer(id hal.BufferID) ([]byte, error) {
	b, ok := d.buffers.get(uint64(id))
	if !ok {
		return nil, fmt.Errorf("map unknown buffer %d", id)
	}
	if b.mapped != nil {
		return b.mapped, nil
	}
	var ptr unsafe.Pointer
	res := vk.MapMemory(d.gpu.LogicalDevice, b.memory, 0, vk.DeviceSize(b.size), 0, &ptr)
	if res != vk.Success {
		return nil, resultError("vkMapMemory", res)
	}
	b.mapped = unsafe.Slice((*byte)(ptr), b.size)
	return b.mapped, nil
}

func (d *Device) UnmapBuffer(id hal.BufferID) {
	b, ok := d.buffers.get(uint64(id))
	if !ok || b.mapped == nil {
		return
	}
	vk.UnmapMemory(d.gpu.LogicalDevice, b.memory)
	b.mapped = nil
}
