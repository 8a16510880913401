package vulkan

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

var ErrNoSuitableDevice = errors.New("no physical device meets the requirements")

// minAPIVersion is needed for non-uniform indexing of the texture array.
var minAPIVersion = vk.MakeVersion(1, 2, 0)

// checkFeatures rejects devices that cannot index the batch texture array
// with a per-vertex slot.
func checkFeatures(properties *vk.PhysicalDeviceProperties, features *vk.PhysicalDeviceFeatures) error {
	if properties.ApiVersion < uint32(minAPIVersion) {
		v := vk.Version(properties.ApiVersion)
		return fmt.Errorf("Vulkan %d.%d, need 1.2: %w", v.Major(), v.Minor(), hal.ErrUnsupported)
	}
	if features.ShaderSampledImageArrayDynamicIndexing != vk.True {
		return fmt.Errorf("no dynamic indexing of sampled image arrays: %w", hal.ErrUnsupported)
	}
	return nil
}

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	GraphicsQueueIndex uint32
	PresentQueueIndex  uint32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format
	// anisotropic filtering was requested and granted
	Anisotropy bool
}

type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

type VulkanPhysicalDeviceRequirements struct {
	DeviceExtensionNames []string
	DiscreteGPU          bool
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int
	PresentFamilyIndex  int
}

// DeviceCreate selects a physical device able to present to surface and
// creates the logical device with one graphics and one present queue.
func DeviceCreate(instance vk.Instance, surface vk.Surface) (*VulkanDevice, error) {
	device, err := SelectPhysicalDevice(instance, surface)
	if err != nil {
		return nil, err
	}

	core.LogInfo("Creating logical device...")

	// NOTE: Do not create additional queues for shared indices.
	indices := []uint32{device.GraphicsQueueIndex}
	if device.PresentQueueIndex != device.GraphicsQueueIndex {
		indices = append(indices, device.PresentQueueIndex)
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	device.Anisotropy = device.Features.SamplerAnisotropy == vk.True
	deviceFeatures := vk.PhysicalDeviceFeatures{
		ShaderSampledImageArrayDynamicIndexing: vk.True,
	}
	if device.Anisotropy {
		deviceFeatures.SamplerAnisotropy = vk.True
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if hasDeviceExtension(device.PhysicalDevice, "VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
		PNext: unsafe.Pointer(&vk.PhysicalDeviceVulkan12Features{
			SType:                                     vk.StructureTypePhysicalDeviceVulkan12Features,
			// textures[nonuniformEXT(slot)] in the batch fragment shaders
			ShaderSampledImageArrayNonUniformIndexing: vk.True,
		}),
	}
	var logical vk.Device
	if res := vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, nil, &logical); res != vk.Success {
		return nil, resultError("vkCreateDevice", res)
	}
	device.LogicalDevice = logical
	core.LogInfo("Logical device created.")

	var graphics, present vk.Queue
	vk.GetDeviceQueue(logical, device.GraphicsQueueIndex, 0, &graphics)
	vk.GetDeviceQueue(logical, device.PresentQueueIndex, 0, &present)
	device.GraphicsQueue = graphics
	device.PresentQueue = present
	core.LogInfo("Queues obtained.")

	if !DeviceDetectDepthFormat(device) {
		device.destroy()
		return nil, fmt.Errorf("no supported depth format: %w", hal.ErrUnsupported)
	}
	return device, nil
}

func (device *VulkanDevice) destroy() {
	device.GraphicsQueue = nil
	device.PresentQueue = nil
	if device.LogicalDevice != nil {
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(device.LogicalDevice, nil)
		device.LogicalDevice = nil
	}
	// Physical devices are not destroyed.
	device.PhysicalDevice = nil
}

func (device *VulkanDevice) limits() hal.Limits {
	l := device.Properties.Limits
	l.Deref()
	limits := hal.Limits{
		MaxPerStageSamplers:             l.MaxPerStageDescriptorSamplers,
		MaxImageDimension2D:             l.MaxImageDimension2D,
		MaxPushConstantsSize:            l.MaxPushConstantsSize,
		MinUniformBufferOffsetAlignment: uint64(l.MinUniformBufferOffsetAlignment),
		MinStorageBufferOffsetAlignment: uint64(l.MinStorageBufferOffsetAlignment),
	}
	if device.Anisotropy {
		limits.MaxSamplerAnisotropy = l.MaxSamplerAnisotropy
	}
	return limits
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that
// has every bit of propertyFlags, or -1.
func (device *VulkanDevice) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	memoryProperties := device.Memory
	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		memoryProperties.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 && memoryProperties.MemoryTypes[i].PropertyFlags&propertyFlags == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface) (*VulkanSwapchainSupportInfo, error) {
	info := &VulkanSwapchainSupportInfo{}
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &info.Capabilities); res != vk.Success {
		return nil, resultError("vkGetPhysicalDeviceSurfaceCapabilities", res)
	}
	info.Capabilities.Deref()
	info.Capabilities.CurrentExtent.Deref()
	info.Capabilities.MinImageExtent.Deref()
	info.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil); res != vk.Success {
		return nil, resultError("vkGetPhysicalDeviceSurfaceFormats", res)
	}
	if formatCount != 0 {
		info.Formats = make([]vk.SurfaceFormat, formatCount)
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, info.Formats); res != vk.Success {
			return nil, resultError("vkGetPhysicalDeviceSurfaceFormats", res)
		}
		for i := range info.Formats {
			info.Formats[i].Deref()
		}
	}

	var modeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, nil); res != vk.Success {
		return nil, resultError("vkGetPhysicalDeviceSurfacePresentModes", res)
	}
	if modeCount != 0 {
		info.PresentModes = make([]vk.PresentMode, modeCount)
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, info.PresentModes); res != vk.Success {
			return nil, resultError("vkGetPhysicalDeviceSurfacePresentModes", res)
		}
	}
	return info, nil
}

// DeviceDetectDepthFormat picks the first depth format usable as an optimal
// tiling attachment. D32 comes first since the passes ask for it.
func DeviceDetectDepthFormat(device *VulkanDevice) bool {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(device.PhysicalDevice, candidate, &properties)
		properties.Deref()
		if properties.OptimalTilingFeatures&flags == flags {
			device.DepthFormat = candidate
			return true
		}
	}
	return false
}

func SelectPhysicalDevice(instance vk.Instance, surface vk.Surface) (*VulkanDevice, error) {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(instance, &count, nil); res != vk.Success {
		return nil, resultError("vkEnumeratePhysicalDevices", res)
	}
	if count == 0 {
		return nil, fmt.Errorf("no devices which support Vulkan were found: %w", hal.ErrUnsupported)
	}
	physicalDevices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(instance, &count, physicalDevices); res != vk.Success {
		return nil, resultError("vkEnumeratePhysicalDevices", res)
	}

	requirements := VulkanPhysicalDeviceRequirements{
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
		DiscreteGPU:          runtime.GOOS != "darwin",
	}

	// Discrete GPUs win, any other device that can present is the fallback.
	var fallback *VulkanDevice
	for _, physical := range physicalDevices {
		candidate := &VulkanDevice{PhysicalDevice: physical}
		vk.GetPhysicalDeviceProperties(physical, &candidate.Properties)
		candidate.Properties.Deref()
		vk.GetPhysicalDeviceFeatures(physical, &candidate.Features)
		candidate.Features.Deref()
		vk.GetPhysicalDeviceMemoryProperties(physical, &candidate.Memory)
		candidate.Memory.Deref()
		if err := checkFeatures(&candidate.Properties, &candidate.Features); err != nil {
			core.LogInfo("Skipping device '%s': %v", cString(candidate.Properties.DeviceName[:]), err)
			continue
		}

		queues, ok := PhysicalDeviceMeetsRequirements(physical, surface, &candidate.Properties, &requirements)
		if !ok {
			continue
		}
		candidate.GraphicsQueueIndex = uint32(queues.GraphicsFamilyIndex)
		candidate.PresentQueueIndex = uint32(queues.PresentFamilyIndex)
		if requirements.DiscreteGPU && candidate.Properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
			if fallback == nil {
				fallback = candidate
			}
			continue
		}
		logDevice(candidate)
		return candidate, nil
	}
	if fallback != nil {
		core.LogInfo("No discrete GPU found, falling back.")
		logDevice(fallback)
		return fallback, nil
	}
	return nil, ErrNoSuitableDevice
}

func logDevice(device *VulkanDevice) {
	properties := device.Properties
	core.LogInfo("Selected device: '%s'.", cString(properties.DeviceName[:]))
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	core.LogInfo(
		"GPU Driver version: %d.%d.%d",
		vk.Version(properties.DriverVersion).Major(),
		vk.Version(properties.DriverVersion).Minor(),
		vk.Version(properties.DriverVersion).Patch(),
	)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(properties.ApiVersion).Major(),
		vk.Version(properties.ApiVersion).Minor(),
		vk.Version(properties.ApiVersion).Patch(),
	)
	memory := device.Memory
	for j := uint32(0); j < memory.MemoryHeapCount; j++ {
		memory.MemoryHeaps[j].Deref()
		sizeGib := float64(memory.MemoryHeaps[j].Size) / 1024 / 1024 / 1024
		if memory.MemoryHeaps[j].Flags&vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit) != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", sizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", sizeGib)
		}
	}
}

// PhysicalDeviceMeetsRequirements looks for a graphics family and a family
// able to present to surface, preferring one family that does both.
func PhysicalDeviceMeetsRequirements(device vk.PhysicalDevice, surface vk.Surface, properties *vk.PhysicalDeviceProperties, requirements *VulkanPhysicalDeviceRequirements) (VulkanPhysicalDeviceQueueFamilyInfo, bool) {
	info := VulkanPhysicalDeviceQueueFamilyInfo{GraphicsFamilyIndex: -1, PresentFamilyIndex: -1}
	name := cString(properties.DeviceName[:])

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, families)

	for i := range families {
		families[i].Deref()
		graphics := families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent); res != vk.Success {
			return info, false
		}
		present := supportsPresent == vk.True
		if graphics && present {
			info.GraphicsFamilyIndex = i
			info.PresentFamilyIndex = i
			break
		}
		if graphics && info.GraphicsFamilyIndex < 0 {
			info.GraphicsFamilyIndex = i
		}
		if present && info.PresentFamilyIndex < 0 {
			info.PresentFamilyIndex = i
		}
	}
	if info.GraphicsFamilyIndex < 0 || info.PresentFamilyIndex < 0 {
		core.LogInfo("Device '%s' lacks a graphics or present queue, skipping.", name)
		return info, false
	}
	core.LogDebug("Graphics Family Index: %d", info.GraphicsFamilyIndex)
	core.LogDebug("Present Family Index:  %d", info.PresentFamilyIndex)

	support, err := DeviceQuerySwapchainSupport(device, surface)
	if err != nil || len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		core.LogInfo("Required swapchain support not present, skipping device '%s'.", name)
		return info, false
	}
	for _, ext := range requirements.DeviceExtensionNames {
		if !hasDeviceExtension(device, ext) {
			core.LogInfo("Required extension not found: '%s', skipping device.", ext)
			return info, false
		}
	}
	return info, true
}

func hasDeviceExtension(device vk.PhysicalDevice, name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success {
		return false
	}
	extensions := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, extensions); res != vk.Success {
		return false
	}
	for i := range extensions {
		extensions[i].Deref()
		if cString(extensions[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}
