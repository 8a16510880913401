package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

type vulkanSet struct {
	handle vk.DescriptorSet
	pool   hal.PoolID
}

func (d *Device) CreateDescriptorSetLayout(label string, bindings []hal.LayoutBinding) (hal.LayoutID, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		count := b.Count
		if count == 0 {
			count = 1
		}
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Slot,
			DescriptorType:  vkDescriptorType(b.Kind),
			DescriptorCount: count,
			StageFlags:      vkShaderStages(b.Stages),
		}
	}
	var layout vk.DescriptorSetLayout
	res := vk.CreateDescriptorSetLayout(d.gpu.LogicalDevice, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}, nil, &layout)
	if res != vk.Success {
		return 0, resultError("vkCreateDescriptorSetLayout "+label, res)
	}
	return hal.LayoutID(d.layouts.put(layout)), nil
}

func (d *Device) DestroyDescriptorSetLayout(id hal.LayoutID) {
	if l, ok := d.layouts.take(uint64(id)); ok {
		vk.DestroyDescriptorSetLayout(d.gpu.LogicalDevice, l, nil)
	}
}

func (d *Device) CreateDescriptorPool(desc hal.PoolDesc) (hal.PoolID, error) {
	sizes := make([]vk.DescriptorPoolSize, 0, len(desc.Sizes))
	for _, s := range desc.Sizes {
		if s.Count == 0 || s.Kind == hal.DescriptorAccelerationStructure {
			continue
		}
		sizes = append(sizes, vk.DescriptorPoolSize{Type: vkDescriptorType(s.Kind), DescriptorCount: s.Count})
	}
	var pool vk.DescriptorPool
	res := vk.CreateDescriptorPool(d.gpu.LogicalDevice, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       desc.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}, nil, &pool)
	if res != vk.Success {
		return 0, resultError("vkCreateDescriptorPool "+desc.Label, res)
	}
	core.LogDebug("descriptor pool %s created (%d sets)", desc.Label, desc.MaxSets)
	return hal.PoolID(d.pools.put(pool)), nil
}

// DestroyDescriptorPool frees every set allocated from the pool with it.
func (d *Device) DestroyDescriptorPool(id hal.PoolID) {
	pool, ok := d.pools.take(uint64(id))
	if !ok {
		return
	}
	d.sets.removeIf(func(s *vulkanSet) bool { return s.pool == id })
	d.locks.SafeCall(DescriptorPoolManagement, func() error {
		vk.DestroyDescriptorPool(d.gpu.LogicalDevice, pool, nil)
		return nil
	})
}

func (d *Device) AllocateDescriptorSet(poolID hal.PoolID, layoutID hal.LayoutID) (hal.SetID, error) {
	pool, ok := d.pools.get(uint64(poolID))
	if !ok {
		return 0, fmt.Errorf("allocate from unknown descriptor pool %d", poolID)
	}
	layout, ok := d.layouts.get(uint64(layoutID))
	if !ok {
		return 0, fmt.Errorf("allocate with unknown descriptor layout %d", layoutID)
	}
	var set vk.DescriptorSet
	err := d.locks.SafeCall(DescriptorPoolManagement, func() error {
		return resultError("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(d.gpu.LogicalDevice, &vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     pool,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{layout},
		}, &set))
	})
	if err != nil {
		return 0, err
	}
	return hal.SetID(d.sets.put(&vulkanSet{handle: set, pool: poolID})), nil
}

// UpdateDescriptorSets skips writes that name a destroyed set or resource;
// the descriptor layer only writes live handles.
func (d *Device) UpdateDescriptorSets(writes []hal.DescriptorWrite) {
	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		set, ok := d.sets.get(uint64(w.Set))
		if !ok {
			core.LogWarn("descriptor write to unknown set %d", w.Set)
			continue
		}
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.handle,
			DstBinding:      w.Slot,
			DstArrayElement: w.ArrayElement,
			DescriptorCount: 1,
			DescriptorType:  vkDescriptorType(w.Kind),
		}
		if w.Kind.IsImage() {
			img, ok := d.images.get(uint64(w.Image))
			if !ok {
				core.LogWarn("descriptor write of unknown image %d", w.Image)
				continue
			}
			info := vk.DescriptorImageInfo{
				ImageView:   img.view,
				ImageLayout: vkLayout(w.Layout),
			}
			if w.Kind == hal.DescriptorCombinedImageSampler {
				sampler, ok := d.samplers.get(uint64(w.Sampler))
				if !ok {
					core.LogWarn("descriptor write of unknown sampler %d", w.Sampler)
					continue
				}
				info.Sampler = sampler
			}
			write.PImageInfo = []vk.DescriptorImageInfo{info}
		} else {
			buf, ok := d.buffers.get(uint64(w.Buffer))
			if !ok {
				core.LogWarn("descriptor write of unknown buffer %d", w.Buffer)
				continue
			}
			rng := vk.DeviceSize(w.Range)
			if w.Range == 0 {
				rng = vk.DeviceSize(vk.WholeSize)
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buf.handle,
				Offset: vk.DeviceSize(w.Offset),
				Range:  rng,
			}}
		}
		vkWrites = append(vkWrites, write)
	}
	if len(vkWrites) == 0 {
		return
	}
	vk.UpdateDescriptorSets(d.gpu.LogicalDevice, uint32(len(vkWrites)), vkWrites, 0, nil)
}
