package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

type vulkanImage struct {
	handle vk.Image
	// nil for swapchain images, the swapchain owns their memory
	memory vk.DeviceMemory
	view   vk.ImageView
	format hal.Format
	width  uint32
	height uint32
}

func (img *vulkanImage) destroy(dev vk.Device) {
	if img.view != vk.NullImageView {
		vk.DestroyImageView(dev, img.view, nil)
	}
	if img.memory != nil {
		vk.DestroyImage(dev, img.handle, nil)
		vk.FreeMemory(dev, img.memory, nil)
	}
}

func (d *Device) createView(handle vk.Image, format hal.Format) (vk.ImageView, error) {
	var view vk.ImageView
	res := vk.CreateImageView(d.gpu.LogicalDevice, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    handle,
		ViewType: vk.ImageViewType2d,
		Format:   d.vkFormat(format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspectOf(format),
			LevelCount: 1,
			LayerCount: 1,
		},
	}, nil, &view)
	if res != vk.Success {
		return vk.NullImageView, resultError("vkCreateImageView", res)
	}
	return view, nil
}

// vkFormat resolves the depth formats to the one the device supports.
func (d *Device) vkFormat(f hal.Format) vk.Format {
	if f.IsDepth() {
		return d.gpu.DepthFormat
	}
	return vkFormat(f)
}

func (d *Device) CreateImage(desc hal.ImageDesc) (hal.ImageID, error) {
	dev := d.gpu.LogicalDevice
	var handle vk.Image
	res := vk.CreateImage(dev, &vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        d.vkFormat(desc.Format),
		Extent:        vk.Extent3D{Width: desc.Width, Height: desc.Height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vkImageUsage(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &handle)
	if res != vk.Success {
		return 0, resultError("vkCreateImage "+desc.Label, res)
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(dev, handle, &reqs)
	memory, err := d.allocate(desc.Label, reqs, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(dev, handle, nil)
		return 0, err
	}
	if res := vk.BindImageMemory(dev, handle, memory, 0); res != vk.Success {
		vk.DestroyImage(dev, handle, nil)
		vk.FreeMemory(dev, memory, nil)
		return 0, resultError("vkBindImageMemory "+desc.Label, res)
	}

	img := &vulkanImage{handle: handle, memory: memory, format: desc.Format, width: desc.Width, height: desc.Height}
	if img.view, err = d.createView(handle, desc.Format); err != nil {
		img.destroy(dev)
		return 0, fmt.Errorf("%s: %w", desc.Label, err)
	}
	return hal.ImageID(d.images.put(img)), nil
}

func (d *Device) DestroyImage(id hal.ImageID) {
	if img, ok := d.images.take(uint64(id)); ok {
		img.destroy(d.gpu.LogicalDevice)
	}
}

func (d *Device) CreateSampler(desc hal.SamplerDesc) (hal.SamplerID, error) {
	info := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vkFilter(desc.MagFilter),
		MinFilter:               vkFilter(desc.MinFilter),
		AddressModeU:            vkAddressMode(desc.AddressMode),
		AddressModeV:            vkAddressMode(desc.AddressMode),
		AddressModeW:            vkAddressMode(desc.AddressMode),
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
	}
	if desc.Anisotropy && d.limits.MaxSamplerAnisotropy > 0 {
		info.AnisotropyEnable = vk.True
		info.MaxAnisotropy = d.limits.MaxSamplerAnisotropy
	}
	var sampler vk.Sampler
	if res := vk.CreateSampler(d.gpu.LogicalDevice, &info, nil, &sampler); res != vk.Success {
		return 0, resultError("vkCreateSampler "+desc.Label, res)
	}
	return hal.SamplerID(d.samplers.put(sampler)), nil
}

func (d *Device) DestroySampler(id hal.SamplerID) {
	if s, ok := d.samplers.take(uint64(id)); ok {
		vk.DestroySampler(d.gpu.LogicalDevice, s, nil)
	}
}

type vulkanShader struct {
	handle vk.ShaderModule
	stage  hal.ShaderStage
}

func (d *Device) CreateShaderModule(label string, stage hal.ShaderStage, code []byte) (hal.ShaderID, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return 0, fmt.Errorf("shader %s: code size %d is not a whole number of words", label, len(code))
	}
	var module vk.ShaderModule
	res := vk.CreateShaderModule(d.gpu.LogicalDevice, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    spirvWords(code),
	}, nil, &module)
	if res != vk.Success {
		return 0, resultError("vkCreateShaderModule "+label, res)
	}
	return hal.ShaderID(d.shaders.put(&vulkanShader{handle: module, stage: stage})), nil
}

func (d *Device) DestroyShaderModule(id hal.ShaderID) {
	if s, ok := d.shaders.take(uint64(id)); ok {
		vk.DestroyShaderModule(d.gpu.LogicalDevice, s.handle, nil)
	}
}
