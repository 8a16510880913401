package vulkan

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

/**
 * @brief Holds a Vulkan pipeline and its layout.
 */
type VulkanPipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	PipelineLayout vk.PipelineLayout
	/** @brief Stages the push constant range is visible to, 0 without one. */
	pushStages vk.ShaderStageFlags
}

func (d *Device) CreatePipeline(desc hal.PipelineDesc) (hal.PipelineID, error) {
	rp, ok := d.passes.get(uint64(desc.Pass))
	if !ok {
		return 0, fmt.Errorf("pipeline %s: unknown render pass %d", desc.Label, desc.Pass)
	}
	if desc.PushConstantSize > d.limits.MaxPushConstantsSize {
		return 0, fmt.Errorf("pipeline %s: push constants of %d bytes exceed the device limit of %d: %w",
			desc.Label, desc.PushConstantSize, d.limits.MaxPushConstantsSize, hal.ErrUnsupported)
	}

	stages := make([]vk.PipelineShaderStageCreateInfo, len(desc.Stages))
	// backs the specialization data until the pipeline is created
	var specData [][]byte
	for i, s := range desc.Stages {
		module, ok := d.shaders.get(uint64(s.Module))
		if !ok {
			return 0, fmt.Errorf("pipeline %s: unknown shader module %d", desc.Label, s.Module)
		}
		entry := s.Entry
		if entry == "" {
			entry = "main"
		}
		stages[i] = vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFlagBits(vkShaderStages(s.Stage)),
			Module: module.handle,
			PName:  VulkanSafeString(entry),
		}
		if spec, data := vkSpecialization(s.Constants); spec != nil {
			stages[i].PSpecializationInfo = []vk.SpecializationInfo{*spec}
			specData = append(specData, data)
		}
	}

	setLayouts := make([]vk.DescriptorSetLayout, len(desc.SetLayouts))
	for i, id := range desc.SetLayouts {
		l, ok := d.layouts.get(uint64(id))
		if !ok {
			return 0, fmt.Errorf("pipeline %s: unknown set layout %d", desc.Label, id)
		}
		setLayouts[i] = l
	}

	out := &VulkanPipeline{}

	// Pipeline layout
	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	if desc.PushConstantSize > 0 {
		out.pushStages = vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)
		layoutInfo.PushConstantRangeCount = 1
		layoutInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: out.pushStages,
			Offset:     0,
			Size:       desc.PushConstantSize,
		}}
	}
	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(d.gpu.LogicalDevice, &layoutInfo, nil, &layout); res != vk.Success {
		return 0, resultError("vkCreatePipelineLayout "+desc.Label, res)
	}
	out.PipelineLayout = layout

	// Viewport and scissor are dynamic, only the counts matter here.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	// Rasterizer
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vkCullMode(desc.Cull),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}

	// Multisampling.
	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	// Depth and stencil testing.
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if desc.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLessOrEqual
	}
	if desc.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	writeMask := vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
		vk.ColorComponentBBit | vk.ColorComponentABit)
	blend := vk.PipelineColorBlendAttachmentState{
		BlendEnable:    vk.False,
		ColorWriteMask: writeMask,
	}
	if desc.Blend {
		blend = vk.PipelineColorBlendAttachmentState{
			BlendEnable:         vk.True,
			SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
			DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
			ColorBlendOp:        vk.BlendOpAdd,
			SrcAlphaBlendFactor: vk.BlendFactorOne,
			DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
			AlphaBlendOp:        vk.BlendOpAdd,
			ColorWriteMask:      writeMask,
		}
	}
	colorCount := desc.ColorAttachments
	if colorCount == 0 {
		colorCount = rp.colors
	}
	attachments := make([]vk.PipelineColorBlendAttachmentState, colorCount)
	for i := range attachments {
		attachments[i] = blend
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
	}

	// Dynamic state
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	// Vertex input. A stride of zero means the vertex shader generates its
	// own positions, as the full-screen triangle does.
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if desc.VertexStride > 0 {
		attrs := make([]vk.VertexInputAttributeDescription, len(desc.Attributes))
		for i, a := range desc.Attributes {
			attrs[i] = vk.VertexInputAttributeDescription{
				Location: a.Location,
				Binding:  0,
				Format:   vkFormat(a.Format),
				Offset:   a.Offset,
			}
		}
		vertexInput.VertexBindingDescriptionCount = 1
		vertexInput.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    desc.VertexStride,
			InputRate: vk.VertexInputRateVertex,
		}}
		vertexInput.VertexAttributeDescriptionCount = uint32(len(attrs))
		vertexInput.PVertexAttributeDescriptions = attrs
	}

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vkTopology(desc.Topology),
		PrimitiveRestartEnable: vk.False,
	}

	pipelineInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              out.PipelineLayout,
		RenderPass:          rp.handle,
		Subpass:             desc.Subpass,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	if rp.depth {
		pipelineInfo.PDepthStencilState = &depthStencil
	}

	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(d.gpu.LogicalDevice, vk.NullPipelineCache, 1,
		[]vk.GraphicsPipelineCreateInfo{pipelineInfo}, nil, pipelines)
	runtime.KeepAlive(specData)
	if !VulkanResultIsSuccess(res) {
		vk.DestroyPipelineLayout(d.gpu.LogicalDevice, out.PipelineLayout, nil)
		return 0, resultError("vkCreateGraphicsPipelines "+desc.Label, res)
	}
	out.Handle = pipelines[0]

	core.LogDebug("Graphics pipeline %s created.", desc.Label)
	return hal.PipelineID(d.pipelines.put(out)), nil
}

func (d *Device) DestroyPipeline(id hal.PipelineID) {
	if p, ok := d.pipelines.take(uint64(id)); ok {
		p.Destroy(d.gpu.LogicalDevice)
	}
}

func (p *VulkanPipeline) Destroy(dev vk.Device) {
	if p.Handle != vk.NullPipeline {
		vk.DestroyPipeline(dev, p.Handle, nil)
		p.Handle = vk.NullPipeline
	}
	if p.PipelineLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(dev, p.PipelineLayout, nil)
		p.PipelineLayout = vk.NullPipelineLayout
	}
}

func (d *Device) CmdBindPipeline(cmd hal.CommandBufferID, pipeline hal.PipelineID) {
	cb, ok := d.command(cmd)
	if !ok {
		return
	}
	if p, ok := d.pipelines.get(uint64(pipeline)); ok {
		vk.CmdBindPipeline(cb.Handle, vk.PipelineBindPointGraphics, p.Handle)
	}
}

func (d *Device) CmdBindDescriptorSets(cmd hal.CommandBufferID, pipeline hal.PipelineID, first uint32, sets []hal.SetID) {
	cb, ok := d.command(cmd)
	if !ok {
		return
	}
	p, ok := d.pipelines.get(uint64(pipeline))
	if !ok {
		return
	}
	handles := make([]vk.DescriptorSet, 0, len(sets))
	for _, id := range sets {
		s, ok := d.sets.get(uint64(id))
		if !ok {
			core.LogWarn("bind of unknown descriptor set %d skipped", id)
			return
		}
		handles = append(handles, s.handle)
	}
	vk.CmdBindDescriptorSets(cb.Handle, vk.PipelineBindPointGraphics, p.PipelineLayout,
		first, uint32(len(handles)), handles, 0, nil)
}

func (d *Device) CmdPushConstants(cmd hal.CommandBufferID, pipeline hal.PipelineID, data []byte) {
	if len(data) == 0 {
		return
	}
	cb, ok := d.command(cmd)
	if !ok {
		return
	}
	p, ok := d.pipelines.get(uint64(pipeline))
	if !ok || p.pushStages == 0 {
		return
	}
	vk.CmdPushConstants(cb.Handle, p.PipelineLayout, p.pushStages, 0, uint32(len(data)), unsafe.Pointer(&data[0]))
}

// vkSpecialization packs constants as consecutive 32-bit values. It returns
// nil for a stage without constants. data backs PData and must stay alive
// until the pipeline is created.
func vkSpecialization(constants []hal.SpecConstant) (*vk.SpecializationInfo, []byte) {
	if len(constants) == 0 {
		return nil, nil
	}
	entries := make([]vk.SpecializationMapEntry, len(constants))
	data := make([]byte, 0, 4*len(constants))
	for i, c := range constants {
		entries[i] = vk.SpecializationMapEntry{
			ConstantID: c.ID,
			Offset:     uint32(len(data)),
			Size:       4,
		}
		data = binary.LittleEndian.AppendUint32(data, c.Value)
	}
	return &vk.SpecializationInfo{
		MapEntryCount: uint32(len(entries)),
		PMapEntries:   entries,
		DataSize:      uint(len(data)),
		PData:         unsafe.Pointer(&data[0]),
	}, data
}
