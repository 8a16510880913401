package frame

import (
	"fmt"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

// ChoosePresentMode picks FIFO with vsync on. Without vsync it prefers
// mailbox, then immediate, and falls back to FIFO which every device offers.
func ChoosePresentMode(vsync bool, available []hal.PresentMode) hal.PresentMode {
	if vsync {
		return hal.PresentModeFifo
	}
	for _, want := range []hal.PresentMode{hal.PresentModeMailbox, hal.PresentModeImmediate} {
		for _, mode := range available {
			if mode == want {
				return mode
			}
		}
	}
	return hal.PresentModeFifo
}

func clamp(v, lo, hi uint32) uint32 {
	return max(lo, min(v, hi))
}

// chooseExtent returns the surface extent when the surface dictates one and
// the requested size clamped to the surface limits otherwise. A zero area
// means the window is minimized.
func chooseExtent(info hal.SurfaceInfo, width, height uint32) hal.Extent {
	if info.CurrentExtent.Width != hal.UndefinedExtent {
		return info.CurrentExtent
	}
	if width == 0 || height == 0 {
		return hal.Extent{}
	}
	return hal.Extent{
		Width:  clamp(width, info.MinExtent.Width, info.MaxExtent.Width),
		Height: clamp(height, info.MinExtent.Height, info.MaxExtent.Height),
	}
}

// imageCount asks for one image more than the minimum so the driver never
// blocks on us, within the surface maximum.
func imageCount(info hal.SurfaceInfo) uint32 {
	n := info.MinImageCount + 1
	if info.MaxImageCount > 0 && n > info.MaxImageCount {
		n = info.MaxImageCount
	}
	return n
}

// createSwapchain builds a swapchain for the surface. old is only a hint for
// the device; the caller destroys it afterwards.
func createSwapchain(dev hal.Device, width, height uint32, vsync bool, old hal.SwapchainID) (hal.Swapchain, error) {
	info, err := dev.SurfaceInfo()
	if err != nil {
		return hal.Swapchain{}, fmt.Errorf("failed to query surface: %w", err)
	}
	extent := chooseExtent(info, width, height)
	if extent.Width == 0 || extent.Height == 0 {
		return hal.Swapchain{}, core.ErrSwapchainBooting
	}

	mode := ChoosePresentMode(vsync, info.PresentModes)
	sc, err := dev.CreateSwapchain(hal.SwapchainDesc{
		Label:       "swapchain",
		Width:       extent.Width,
		Height:      extent.Height,
		MinImages:   imageCount(info),
		Format:      info.Format,
		PresentMode: mode,
		Old:         old,
	})
	if err != nil {
		return hal.Swapchain{}, fmt.Errorf("failed to create swapchain: %w", err)
	}
	core.LogInfo("swapchain created: %dx%d, %d images, present mode %s", extent.Width, extent.Height, len(sc.Images), mode)
	return sc, nil
}
