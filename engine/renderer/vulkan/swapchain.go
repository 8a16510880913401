package vulkan

import (
	"errors"
	"fmt"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

type VulkanSwapchain struct {
	Handle      vk.Swapchain
	ImageFormat vk.SurfaceFormat
	Extent      vk.Extent2D
	// hal ids of the swapchain images, registered with views and no memory
	Images []hal.ImageID
}

func (vs *VulkanSwapchain) destroy(d *Device) {
	// Only destroy the views, not the images, since those are owned by the
	// swapchain and are thus destroyed when it is.
	for _, id := range vs.Images {
		if img, ok := d.images.take(uint64(id)); ok {
			img.destroy(d.gpu.LogicalDevice)
		}
	}
	vk.DestroySwapchain(d.gpu.LogicalDevice, vs.Handle, nil)
	vs.Handle = vk.NullSwapchain
}

// surfaceFormat picks the preferred surface format among the ones the
// renderer can name.
func surfaceFormat(formats []vk.SurfaceFormat) (vk.SurfaceFormat, hal.Format, bool) {
	preferred := []vk.Format{vk.FormatB8g8r8a8Unorm, vk.FormatB8g8r8a8Srgb}
	for _, want := range preferred {
		for _, f := range formats {
			if f.Format == want && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
				return f, halFormat(f.Format), true
			}
		}
	}
	for _, f := range formats {
		if h := halFormat(f.Format); h != hal.FormatUndefined {
			return f, h, true
		}
	}
	return vk.SurfaceFormat{}, hal.FormatUndefined, false
}

func (d *Device) SurfaceInfo() (hal.SurfaceInfo, error) {
	support, err := DeviceQuerySwapchainSupport(d.gpu.PhysicalDevice, d.surface)
	if err != nil {
		return hal.SurfaceInfo{}, err
	}
	caps := support.Capabilities
	_, format, ok := surfaceFormat(support.Formats)
	if !ok {
		return hal.SurfaceInfo{}, fmt.Errorf("surface exposes no usable color format: %w", hal.ErrUnsupported)
	}
	info := hal.SurfaceInfo{
		MinImageCount: caps.MinImageCount,
		MaxImageCount: caps.MaxImageCount,
		CurrentExtent: hal.Extent{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height},
		MinExtent:     hal.Extent{Width: caps.MinImageExtent.Width, Height: caps.MinImageExtent.Height},
		MaxExtent:     hal.Extent{Width: caps.MaxImageExtent.Width, Height: caps.MaxImageExtent.Height},
		Format:        format,
	}
	for _, m := range support.PresentModes {
		if mode, ok := halPresentMode(m); ok {
			info.PresentModes = append(info.PresentModes, mode)
		}
	}
	return info, nil
}

func (d *Device) CreateSwapchain(desc hal.SwapchainDesc) (hal.Swapchain, error) {
	support, err := DeviceQuerySwapchainSupport(d.gpu.PhysicalDevice, d.surface)
	if err != nil {
		return hal.Swapchain{}, err
	}
	caps := support.Capabilities

	imageFormat, _, ok := surfaceFormat(support.Formats)
	if !ok {
		return hal.Swapchain{}, fmt.Errorf("surface exposes no usable color format: %w", hal.ErrUnsupported)
	}
	for _, f := range support.Formats {
		if halFormat(f.Format) == desc.Format && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			imageFormat = f
			break
		}
	}

	// Swapchain extent
	extent := vk.Extent2D{Width: desc.Width, Height: desc.Height}
	if caps.CurrentExtent.Width != hal.UndefinedExtent {
		extent = caps.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	extent.Width = clamp(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	extent.Height = clamp(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)

	imageCount := desc.MinImages
	if imageCount < caps.MinImageCount {
		imageCount = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    imageCount,
		ImageFormat:      imageFormat.Format,
		ImageColorSpace:  imageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vkPresentMode(desc.PresentMode),
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}
	// Setup the queue family indices
	if d.gpu.GraphicsQueueIndex != d.gpu.PresentQueueIndex {
		info.ImageSharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = 2
		info.PQueueFamilyIndices = []uint32{d.gpu.GraphicsQueueIndex, d.gpu.PresentQueueIndex}
	} else {
		info.ImageSharingMode = vk.SharingModeExclusive
	}
	if old, ok := d.swapchains.get(uint64(desc.Old)); ok {
		info.OldSwapchain = old.Handle
	}

	var handle vk.Swapchain
	if res := vk.CreateSwapchain(d.gpu.LogicalDevice, &info, nil, &handle); res != vk.Success {
		return hal.Swapchain{}, resultError("vkCreateSwapchainKHR "+desc.Label, res)
	}
	sc := &VulkanSwapchain{Handle: handle, ImageFormat: imageFormat, Extent: extent}

	images, err := d.swapchainImages(sc)
	if err != nil {
		sc.destroy(d)
		return hal.Swapchain{}, err
	}
	sc.Images = images

	out := hal.Swapchain{
		ID:          hal.SwapchainID(d.swapchains.put(sc)),
		Images:      append([]hal.ImageID(nil), images...),
		Format:      halFormat(imageFormat.Format),
		Extent:      hal.Extent{Width: extent.Width, Height: extent.Height},
		PresentMode: desc.PresentMode,
	}
	core.LogInfo("Swapchain %s created: %dx%d, %d images, %s.",
		desc.Label, extent.Width, extent.Height, len(images), desc.PresentMode)
	return out, nil
}

func (d *Device) swapchainImages(sc *VulkanSwapchain) ([]hal.ImageID, error) {
	var count uint32
	if res := vk.GetSwapchainImages(d.gpu.LogicalDevice, sc.Handle, &count, nil); res != vk.Success {
		return nil, resultError("vkGetSwapchainImagesKHR", res)
	}
	handles := make([]vk.Image, count)
	if res := vk.GetSwapchainImages(d.gpu.LogicalDevice, sc.Handle, &count, handles); res != vk.Success {
		return nil, resultError("vkGetSwapchainImagesKHR", res)
	}

	format := halFormat(sc.ImageFormat.Format)
	ids := make([]hal.ImageID, 0, count)
	for _, h := range handles {
		view, err := d.createView(h, format)
		if err != nil {
			for _, id := range ids {
				if img, ok := d.images.take(uint64(id)); ok {
					img.destroy(d.gpu.LogicalDevice)
				}
			}
			return nil, err
		}
		ids = append(ids, hal.ImageID(d.images.put(&vulkanImage{
			handle: h,
			view:   view,
			format: format,
			width:  sc.Extent.Width,
			height: sc.Extent.Height,
		})))
	}
	return ids, nil
}

func (d *Device) DestroySwapchain(id hal.SwapchainID) {
	sc, ok := d.swapchains.take(uint64(id))
	if !ok {
		return
	}
	d.locks.SafeCall(SwapchainManagement, func() error {
		sc.destroy(d)
		return nil
	})
}

// AcquireNextImage returns ErrSuboptimal together with a usable index when
// the image can still be presented.
func (d *Device) AcquireNextImage(id hal.SwapchainID, timeout time.Duration, signal hal.SemaphoreID) (uint32, error) {
	sc, ok := d.swapchains.get(uint64(id))
	if !ok {
		return 0, fmt.Errorf("acquire: unknown swapchain %d: %w", id, hal.ErrOutOfDate)
	}
	sem := vk.NullSemaphore
	if signal != 0 {
		s, ok := d.semaphores.get(uint64(signal))
		if !ok {
			return 0, fmt.Errorf("acquire: unknown semaphore %d", signal)
		}
		sem = s
	}

	var index uint32
	var res vk.Result
	d.locks.SafeCall(SwapchainManagement, func() error {
		res = vk.AcquireNextImage(d.gpu.LogicalDevice, sc.Handle, timeoutNanos(timeout), sem, vk.NullFence, &index)
		return nil
	})
	err := resultError("vkAcquireNextImageKHR", res)
	if err != nil && !errors.Is(err, hal.ErrSuboptimal) {
		return 0, err
	}
	return index, err
}

func (d *Device) Present(id hal.SwapchainID, imageIndex uint32, wait hal.SemaphoreID) error {
	sc, ok := d.swapchains.get(uint64(id))
	if !ok {
		return fmt.Errorf("present: unknown swapchain %d: %w", id, hal.ErrOutOfDate)
	}
	info := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{sc.Handle},
		PImageIndices:  []uint32{imageIndex},
	}
	if wait != 0 {
		sem, ok := d.semaphores.get(uint64(wait))
		if !ok {
			return fmt.Errorf("present: unknown semaphore %d", wait)
		}
		info.WaitSemaphoreCount = 1
		info.PWaitSemaphores = []vk.Semaphore{sem}
	}
	// Return the image to the swapchain for presentation.
	return d.locks.SafeCall(QueueManagement, func() error {
		return resultError("vkQueuePresentKHR", vk.QueuePresent(d.gpu.PresentQueue, &info))
	})
}
