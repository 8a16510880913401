// Package vulkan implements hal.Device on top of goki/vulkan. Every Vulkan
// object lives in a handle table and is only ever exposed as a hal id.
package vulkan

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

// Window is the platform side of the device: the instance extensions it needs
// and the surface it presents to.
type Window interface {
	RequiredInstanceExtensions() []string
	CreateSurface(instance vk.Instance) (vk.Surface, error)
}

type Config struct {
	AppName string
	// Validation enables the Khronos validation layer and the debug report
	// callback when both are available.
	Validation bool
}

// ConfigFrom picks the device settings out of the engine config.
func ConfigFrom(cfg *core.Config) Config {
	return Config{AppName: cfg.Window.Title, Validation: cfg.Renderer.Validation}
}

type Device struct {
	cfg Config

	instance vk.Instance
	debug    vk.DebugReportCallback
	surface  vk.Surface
	gpu      *VulkanDevice
	limits   hal.Limits
	locks    *VulkanLockPool

	buffers      *handleTable[*vulkanBuffer]
	images       *handleTable[*vulkanImage]
	samplers     *handleTable[vk.Sampler]
	shaders      *handleTable[*vulkanShader]
	layouts      *handleTable[vk.DescriptorSetLayout]
	pools        *handleTable[vk.DescriptorPool]
	sets         *handleTable[*vulkanSet]
	passes       *handleTable[*vulkanRenderPass]
	framebuffers *handleTable[vk.Framebuffer]
	pipelines    *handleTable[*VulkanPipeline]
	cmdPools     *handleTable[vk.CommandPool]
	cmds         *handleTable[*VulkanCommandBuffer]
	fences       *handleTable[vk.Fence]
	semaphores   *handleTable[vk.Semaphore]
	swapchains   *handleTable[*VulkanSwapchain]
}

var _ hal.Device = (*Device)(nil)

// New creates the instance, the window surface and the logical device.
func New(window Window, cfg Config) (*Device, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, errors.New("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize vk: %w", err)
	}

	d := &Device{
		cfg:          cfg,
		locks:        NewVulkanLockPool(),
		buffers:      newHandleTable[*vulkanBuffer](),
		images:       newHandleTable[*vulkanImage](),
		samplers:     newHandleTable[vk.Sampler](),
		shaders:      newHandleTable[*vulkanShader](),
		layouts:      newHandleTable[vk.DescriptorSetLayout](),
		pools:        newHandleTable[vk.DescriptorPool](),
		sets:         newHandleTable[*vulkanSet](),
		passes:       newHandleTable[*vulkanRenderPass](),
		framebuffers: newHandleTable[vk.Framebuffer](),
		pipelines:    newHandleTable[*VulkanPipeline](),
		cmdPools:     newHandleTable[vk.CommandPool](),
		cmds:         newHandleTable[*VulkanCommandBuffer](),
		fences:       newHandleTable[vk.Fence](),
		semaphores:   newHandleTable[vk.Semaphore](),
		swapchains:   newHandleTable[*VulkanSwapchain](),
	}

	if err := d.createInstance(window.RequiredInstanceExtensions()); err != nil {
		return nil, err
	}
	core.LogInfo("Vulkan Instance created.")

	if d.cfg.Validation {
		if err := d.createDebugCallback(); err != nil {
			// validation is a development aid, keep going without it
			core.LogWarn("vulkan debugger unavailable: %s", err)
		}
	}

	surface, err := window.CreateSurface(d.instance)
	if err != nil {
		d.destroyInstance()
		return nil, fmt.Errorf("vulkan surface creation failed: %w", err)
	}
	d.surface = surface
	core.LogDebug("Vulkan surface created.")

	gpu, err := DeviceCreate(d.instance, d.surface)
	if err != nil {
		d.destroyInstance()
		return nil, err
	}
	d.gpu = gpu
	d.limits = gpu.limits()

	core.LogInfo("Vulkan device initialized successfully.")
	return d, nil
}

func (d *Device) createInstance(windowExtensions []string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(minAPIVersion),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(d.cfg.AppName),
		PEngineName:        VulkanSafeString("Anima Engine"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := append([]string{"VK_KHR_surface"}, windowExtensions...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if d.cfg.Validation {
		if hasLayer("VK_LAYER_KHRONOS_validation") {
			layers = append(layers, "VK_LAYER_KHRONOS_validation")
			extensions = append(extensions, vk.ExtDebugReportExtensionName)
			core.LogInfo("Validation layers enabled.")
		} else {
			core.LogWarn("Required validation layer is missing: VK_LAYER_KHRONOS_validation")
			d.cfg.Validation = false
		}
	}
	for _, ext := range extensions {
		core.LogDebug("Required extension: %s", ext)
	}

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, nil, &instance); res != vk.Success {
		return resultError("vkCreateInstance", res)
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return err
	}
	d.instance = instance
	return nil
}

func hasLayer(name string) bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, layers); res != vk.Success {
		return false
	}
	for i := range layers {
		layers[i].Deref()
		if cString(layers[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

func (d *Device) createDebugCallback() error {
	core.LogDebug("Creating Vulkan debugger...")
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: dbgCallbackFunc,
	}
	var dbg vk.DebugReportCallback
	if err := vk.Error(vk.CreateDebugReportCallback(d.instance, &debugCreateInfo, nil, &dbg)); err != nil {
		return err
	}
	d.debug = dbg
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}

func (d *Device) Limits() hal.Limits {
	return d.limits
}

func (d *Device) WaitIdle() error {
	return d.locks.SafeCall(QueueManagement, func() error {
		return resultError("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.gpu.LogicalDevice))
	})
}

// Destroy releases whatever the renderer left behind, then the device,
// the surface and the instance, in the opposite order of creation.
func (d *Device) Destroy() {
	if d.gpu == nil {
		return
	}
	dev := d.gpu.LogicalDevice
	vk.DeviceWaitIdle(dev)

	leaked := d.buffers.len() + d.images.len() + d.pipelines.len() + d.swapchains.len()
	if leaked > 0 {
		core.LogWarn("destroying device with %d live resources", leaked)
	}
	d.swapchains.drain(func(sc *VulkanSwapchain) { sc.destroy(d) })
	d.pipelines.drain(func(p *VulkanPipeline) { p.Destroy(dev) })
	d.framebuffers.drain(func(fb vk.Framebuffer) { vk.DestroyFramebuffer(dev, fb, nil) })
	d.passes.drain(func(rp *vulkanRenderPass) { vk.DestroyRenderPass(dev, rp.handle, nil) })
	d.sets.drain(func(*vulkanSet) {})
	d.pools.drain(func(p vk.DescriptorPool) { vk.DestroyDescriptorPool(dev, p, nil) })
	d.layouts.drain(func(l vk.DescriptorSetLayout) { vk.DestroyDescriptorSetLayout(dev, l, nil) })
	d.shaders.drain(func(s *vulkanShader) { vk.DestroyShaderModule(dev, s.handle, nil) })
	d.samplers.drain(func(s vk.Sampler) { vk.DestroySampler(dev, s, nil) })
	d.images.drain(func(img *vulkanImage) { img.destroy(dev) })
	d.buffers.drain(func(b *vulkanBuffer) { b.destroy(dev) })
	d.cmds.drain(func(*VulkanCommandBuffer) {})
	d.cmdPools.drain(func(p vk.CommandPool) { vk.DestroyCommandPool(dev, p, nil) })
	d.fences.drain(func(f vk.Fence) { vk.DestroyFence(dev, f, nil) })
	d.semaphores.drain(func(s vk.Semaphore) { vk.DestroySemaphore(dev, s, nil) })

	core.LogDebug("Destroying Vulkan device...")
	d.gpu.destroy()
	d.gpu = nil

	core.LogDebug("Destroying Vulkan surface...")
	if d.surface != vk.NullSurface {
		vk.DestroySurface(d.instance, d.surface, nil)
		d.surface = vk.NullSurface
	}
	d.destroyInstance()
}

func (d *Device) destroyInstance() {
	if d.debug != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(d.instance, d.debug, nil)
		d.debug = vk.NullDebugReportCallback
	}
	if d.instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
}
