package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

type vulkanRenderPass struct {
	handle vk.RenderPass
	colors int
	depth  bool
}

// CreateRenderPass builds a single subpass pass: every color attachment in
// order, then the depth attachment if there is one.
func (d *Device) CreateRenderPass(desc hal.RenderPassDesc) (hal.RenderPassID, error) {
	attachments := make([]vk.AttachmentDescription, 0, len(desc.Colors)+1)
	colorRefs := make([]vk.AttachmentReference, 0, len(desc.Colors))
	for i, c := range desc.Colors {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         d.vkFormat(c.Format),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vkLoadOp(c.Load),
			StoreOp:        vkStoreOp(c.Store),
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vkLayout(c.Initial),
			FinalLayout:    vkLayout(c.Final),
		})
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}
	srcStage := vk.PipelineStageColorAttachmentOutputBit
	dstAccess := vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit
	if desc.Depth != nil {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         d.vkFormat(desc.Depth.Format),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vkLoadOp(desc.Depth.Load),
			StoreOp:        vkStoreOp(desc.Depth.Store),
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vkLayout(desc.Depth.Initial),
			FinalLayout:    vkLayout(desc.Depth.Final),
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(desc.Colors)),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		srcStage |= vk.PipelineStageEarlyFragmentTestsBit
		dstAccess |= vk.AccessDepthStencilAttachmentWriteBit
	}

	// Attachments written by an earlier pass of the same frame, a G-buffer
	// sampled by the lighting pass for one, must be finished before this
	// pass touches them.
	dependencies := []vk.SubpassDependency{
		{
			SrcSubpass:    vk.SubpassExternal,
			DstSubpass:    0,
			SrcStageMask:  vk.PipelineStageFlags(srcStage),
			SrcAccessMask: 0,
			DstStageMask:  vk.PipelineStageFlags(srcStage),
			DstAccessMask: vk.AccessFlags(dstAccess),
		},
		{
			SrcSubpass:    0,
			DstSubpass:    vk.SubpassExternal,
			SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			SrcAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
			DstAccessMask: vk.AccessFlags(vk.AccessShaderReadBit),
		},
	}

	var handle vk.RenderPass
	res := vk.CreateRenderPass(d.gpu.LogicalDevice, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}, nil, &handle)
	if res != vk.Success {
		return 0, resultError("vkCreateRenderPass "+desc.Label, res)
	}
	rp := &vulkanRenderPass{handle: handle, colors: len(desc.Colors), depth: desc.Depth != nil}
	return hal.RenderPassID(d.passes.put(rp)), nil
}

func (d *Device) DestroyRenderPass(id hal.RenderPassID) {
	if rp, ok := d.passes.take(uint64(id)); ok {
		vk.DestroyRenderPass(d.gpu.LogicalDevice, rp.handle, nil)
	}
}

func (d *Device) CmdBeginRenderPass(cmd hal.CommandBufferID, begin hal.RenderPassBegin) {
	cb, ok := d.command(cmd)
	if !ok {
		return
	}
	rp, ok := d.passes.get(uint64(begin.Pass))
	if !ok {
		return
	}
	fb, ok := d.framebuffers.get(uint64(begin.Framebuffer))
	if !ok {
		return
	}

	clearValues := make([]vk.ClearValue, 0, rp.colors+1)
	for i := 0; i < rp.colors; i++ {
		var cv vk.ClearValue
		cv.SetColor(begin.ClearColor[:])
		clearValues = append(clearValues, cv)
	}
	if rp.depth {
		var cv vk.ClearValue
		cv.SetDepthStencil(begin.ClearDepth, 0)
		clearValues = append(clearValues, cv)
	}

	vk.CmdBeginRenderPass(cb.Handle, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.handle,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: begin.Width, Height: begin.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}, vk.SubpassContentsInline)
	cb.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (d *Device) CmdEndRenderPass(cmd hal.CommandBufferID) {
	cb, ok := d.command(cmd)
	if !ok {
		return
	}
	vk.CmdEndRenderPass(cb.Handle)
	cb.State = COMMAND_BUFFER_STATE_RECORDING
}
