package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

var formats = map[hal.Format]vk.Format{
	hal.FormatRGBA8Unorm:  vk.FormatR8g8b8a8Unorm,
	hal.FormatRGBA8Srgb:   vk.FormatR8g8b8a8Srgb,
	hal.FormatBGRA8Unorm:  vk.FormatB8g8r8a8Unorm,
	hal.FormatBGRA8Srgb:   vk.FormatB8g8r8a8Srgb,
	hal.FormatRGBA16Float: vk.FormatR16g16b16a16Sfloat,
	hal.FormatRGBA32Float: vk.FormatR32g32b32a32Sfloat,
	hal.FormatD32Float:    vk.FormatD32Sfloat,
	hal.FormatD24UnormS8:  vk.FormatD24UnormS8Uint,
	hal.FormatFloat32:     vk.FormatR32Sfloat,
	hal.FormatFloat32x2:   vk.FormatR32g32Sfloat,
	hal.FormatFloat32x3:   vk.FormatR32g32b32Sfloat,
	hal.FormatFloat32x4:   vk.FormatR32g32b32a32Sfloat,
}

func vkFormat(f hal.Format) vk.Format {
	if v, ok := formats[f]; ok {
		return v
	}
	return vk.FormatUndefined
}

func halFormat(f vk.Format) hal.Format {
	for h, v := range formats {
		// the attribute aliases share vk formats with color formats
		if v == f && h < hal.FormatFloat32 {
			return h
		}
	}
	return hal.FormatUndefined
}

func vkLayout(l hal.ImageLayout) vk.ImageLayout {
	switch l {
	case hal.LayoutGeneral:
		return vk.ImageLayoutGeneral
	case hal.LayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case hal.LayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case hal.LayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case hal.LayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case hal.LayoutDepthAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case hal.LayoutPresent:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

func vkAccess(a hal.Access) vk.AccessFlags {
	var out vk.AccessFlagBits
	bits := []struct {
		h hal.Access
		v vk.AccessFlagBits
	}{
		{hal.AccessTransferRead, vk.AccessTransferReadBit},
		{hal.AccessTransferWrite, vk.AccessTransferWriteBit},
		{hal.AccessShaderRead, vk.AccessShaderReadBit},
		{hal.AccessShaderWrite, vk.AccessShaderWriteBit},
		{hal.AccessColorAttachmentRead, vk.AccessColorAttachmentReadBit},
		{hal.AccessColorAttachmentWrite, vk.AccessColorAttachmentWriteBit},
		{hal.AccessDepthAttachmentRead, vk.AccessDepthStencilAttachmentReadBit},
		{hal.AccessDepthAttachmentWrite, vk.AccessDepthStencilAttachmentWriteBit},
		{hal.AccessHostWrite, vk.AccessHostWriteBit},
		{hal.AccessMemoryRead, vk.AccessMemoryReadBit},
	}
	for _, b := range bits {
		if a&b.h != 0 {
			out |= b.v
		}
	}
	return vk.AccessFlags(out)
}

func vkStage(s hal.PipelineStage) vk.PipelineStageFlags {
	var out vk.PipelineStageFlagBits
	bits := []struct {
		h hal.PipelineStage
		v vk.PipelineStageFlagBits
	}{
		{hal.StageTopOfPipe, vk.PipelineStageTopOfPipeBit},
		{hal.StageTransfer, vk.PipelineStageTransferBit},
		{hal.StageVertexShader, vk.PipelineStageVertexShaderBit},
		{hal.StageFragmentShader, vk.PipelineStageFragmentShaderBit},
		{hal.StageComputeShader, vk.PipelineStageComputeShaderBit},
		{hal.StageEarlyFragmentTests, vk.PipelineStageEarlyFragmentTestsBit},
		{hal.StageColorAttachmentOutput, vk.PipelineStageColorAttachmentOutputBit},
		{hal.StageBottomOfPipe, vk.PipelineStageBottomOfPipeBit},
		{hal.StageAllCommands, vk.PipelineStageAllCommandsBit},
	}
	for _, b := range bits {
		if s&b.h != 0 {
			out |= b.v
		}
	}
	if out == 0 {
		out = vk.PipelineStageTopOfPipeBit
	}
	return vk.PipelineStageFlags(out)
}

func vkShaderStages(s hal.ShaderStage) vk.ShaderStageFlags {
	var out vk.ShaderStageFlagBits
	bits := []struct {
		h hal.ShaderStage
		v vk.ShaderStageFlagBits
	}{
		{hal.ShaderStageVertex, vk.ShaderStageVertexBit},
		{hal.ShaderStageFragment, vk.ShaderStageFragmentBit},
		{hal.ShaderStageGeometry, vk.ShaderStageGeometryBit},
		{hal.ShaderStageCompute, vk.ShaderStageComputeBit},
		{hal.ShaderStageTessControl, vk.ShaderStageTessellationControlBit},
		{hal.ShaderStageTessEvaluation, vk.ShaderStageTessellationEvaluationBit},
	}
	for _, b := range bits {
		if s&b.h != 0 {
			out |= b.v
		}
	}
	return vk.ShaderStageFlags(out)
}

func vkBufferUsage(u hal.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlagBits
	if u&hal.BufferUsageTransferSrc != 0 {
		out |= vk.BufferUsageTransferSrcBit
	}
	if u&hal.BufferUsageTransferDst != 0 {
		out |= vk.BufferUsageTransferDstBit
	}
	if u&hal.BufferUsageUniform != 0 {
		out |= vk.BufferUsageUniformBufferBit
	}
	if u&hal.BufferUsageStorage != 0 {
		out |= vk.BufferUsageStorageBufferBit
	}
	if u&hal.BufferUsageIndex != 0 {
		out |= vk.BufferUsageIndexBufferBit
	}
	if u&hal.BufferUsageVertex != 0 {
		out |= vk.BufferUsageVertexBufferBit
	}
	return vk.BufferUsageFlags(out)
}

func vkImageUsage(u hal.ImageUsage) vk.ImageUsageFlags {
	var out vk.ImageUsageFlagBits
	if u&hal.ImageUsageTransferSrc != 0 {
		out |= vk.ImageUsageTransferSrcBit
	}
	if u&hal.ImageUsageTransferDst != 0 {
		out |= vk.ImageUsageTransferDstBit
	}
	if u&hal.ImageUsageSampled != 0 {
		out |= vk.ImageUsageSampledBit
	}
	if u&hal.ImageUsageStorage != 0 {
		out |= vk.ImageUsageStorageBit
	}
	if u&hal.ImageUsageColorAttachment != 0 {
		out |= vk.ImageUsageColorAttachmentBit
	}
	if u&hal.ImageUsageDepthAttachment != 0 {
		out |= vk.ImageUsageDepthStencilAttachmentBit
	}
	return vk.ImageUsageFlags(out)
}

func vkDescriptorType(k hal.DescriptorKind) vk.DescriptorType {
	switch k {
	case hal.DescriptorStorageImage:
		return vk.DescriptorTypeStorageImage
	case hal.DescriptorUniformBuffer:
		return vk.DescriptorTypeUniformBuffer
	case hal.DescriptorStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	}
	return vk.DescriptorTypeCombinedImageSampler
}

func vkFilter(f hal.Filter) vk.Filter {
	if f == hal.FilterNearest {
		return vk.FilterNearest
	}
	return vk.FilterLinear
}

func vkAddressMode(m hal.AddressMode) vk.SamplerAddressMode {
	switch m {
	case hal.AddressMirroredRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	case hal.AddressClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case hal.AddressClampToBorder:
		return vk.SamplerAddressModeClampToBorder
	}
	return vk.SamplerAddressModeRepeat
}

func vkTopology(t hal.Topology) vk.PrimitiveTopology {
	switch t {
	case hal.TopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case hal.TopologyLineList:
		return vk.PrimitiveTopologyLineList
	case hal.TopologyPointList:
		return vk.PrimitiveTopologyPointList
	}
	return vk.PrimitiveTopologyTriangleList
}

func vkCullMode(c hal.CullMode) vk.CullModeFlags {
	switch c {
	case hal.CullNone:
		return vk.CullModeFlags(vk.CullModeNone)
	case hal.CullFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case hal.CullFrontAndBack:
		return vk.CullModeFlags(vk.CullModeFrontAndBack)
	}
	return vk.CullModeFlags(vk.CullModeBackBit)
}

func vkLoadOp(op hal.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case hal.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	case hal.LoadOpDontCare:
		return vk.AttachmentLoadOpDontCare
	}
	return vk.AttachmentLoadOpClear
}

func vkStoreOp(op hal.StoreOp) vk.AttachmentStoreOp {
	if op == hal.StoreOpDontCare {
		return vk.AttachmentStoreOpDontCare
	}
	return vk.AttachmentStoreOpStore
}

func vkPresentMode(p hal.PresentMode) vk.PresentMode {
	switch p {
	case hal.PresentModeFifoRelaxed:
		return vk.PresentModeFifoRelaxed
	case hal.PresentModeMailbox:
		return vk.PresentModeMailbox
	case hal.PresentModeImmediate:
		return vk.PresentModeImmediate
	}
	return vk.PresentModeFifo
}

func halPresentMode(p vk.PresentMode) (hal.PresentMode, bool) {
	switch p {
	case vk.PresentModeFifo:
		return hal.PresentModeFifo, true
	case vk.PresentModeFifoRelaxed:
		return hal.PresentModeFifoRelaxed, true
	case vk.PresentModeMailbox:
		return hal.PresentModeMailbox, true
	case vk.PresentModeImmediate:
		return hal.PresentModeImmediate, true
	}
	return 0, false
}

func aspectOf(f hal.Format) vk.ImageAspectFlags {
	if f.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}
