package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

func (d *Device) CreateFramebuffer(desc hal.FramebufferDesc) (hal.FramebufferID, error) {
	rp, ok := d.passes.get(uint64(desc.Pass))
	if !ok {
		return 0, fmt.Errorf("framebuffer %s: unknown render pass %d", desc.Label, desc.Pass)
	}
	views := make([]vk.ImageView, len(desc.Attachments))
	for i, id := range desc.Attachments {
		img, ok := d.images.get(uint64(id))
		if !ok {
			return 0, fmt.Errorf("framebuffer %s: unknown attachment image %d", desc.Label, id)
		}
		views[i] = img.view
	}

	var handle vk.Framebuffer
	res := vk.CreateFramebuffer(d.gpu.LogicalDevice, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.handle,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           desc.Width,
		Height:          desc.Height,
		Layers:          1,
	}, nil, &handle)
	if res != vk.Success {
		return 0, resultError("vkCreateFramebuffer "+desc.Label, res)
	}
	return hal.FramebufferID(d.framebuffers.put(handle)), nil
}

func (d *Device) DestroyFramebuffer(id hal.FramebufferID) {
	if fb, ok := d.framebuffers.take(uint64(id)); ok {
		vk.DestroyFramebuffer(d.gpu.LogicalDevice, fb, nil)
	}
}
