package resources

import (
	"fmt"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

type ImageConfig struct {
	Label  string
	Width  uint32
	Height uint32
	Format hal.Format
	Usage  hal.ImageUsage
	// Pixels, when set, are staged in and the image ends up shader-readable.
	Pixels []byte
}

type Image struct {
	alloc *Allocator

	id     hal.ImageID
	label  string
	width  uint32
	height uint32
	format hal.Format
	layout hal.ImageLayout
	// swapchain images belong to the swapchain
	owned bool
}

func (a *Allocator) CreateImage(cfg ImageConfig) *Image {
	img := &Image{
		alloc:  a,
		label:  label("image", cfg.Label),
		width:  cfg.Width,
		height: cfg.Height,
		format: cfg.Format,
		layout: hal.LayoutUndefined,
		owned:  true,
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		core.Fatal(fmt.Errorf("zero sized image %dx%d", cfg.Width, cfg.Height), img.label)
	}

	usage := cfg.Usage
	if len(cfg.Pixels) > 0 {
		usage |= hal.ImageUsageTransferDst | hal.ImageUsageSampled
	}
	id, err := a.dev.CreateImage(hal.ImageDesc{
		Label:  img.label,
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: cfg.Format,
		Usage:  usage,
	})
	if err != nil {
		core.Fatal(fmt.Errorf("create image %dx%d: %w", cfg.Width, cfg.Height, err), img.label)
	}
	img.id = id

	if len(cfg.Pixels) > 0 {
		var staging *Buffer
		a.OneShot(img.label+".upload", func(cmd hal.CommandBufferID) {
			staging = img.stage(cfg.Pixels, cmd)
			img.Transition(hal.LayoutShaderReadOnly, cmd)
		})
		staging.Destroy()
	}
	return img
}

// WrapImage adopts an image owned by someone else, typically the swapchain.
func (a *Allocator) WrapImage(id hal.ImageID, label string, width, height uint32, format hal.Format) *Image {
	return &Image{
		alloc:  a,
		id:     id,
		label:  label,
		width:  width,
		height: height,
		format: format,
		layout: hal.LayoutUndefined,
	}
}

func (img *Image) ID() hal.ImageID {
	return img.id
}

func (img *Image) Label() string {
	return img.label
}

func (img *Image) Size() (uint32, uint32) {
	return img.width, img.height
}

func (img *Image) Format() hal.Format {
	return img.format
}

// Layout is the layout the image was last transitioned to.
func (img *Image) Layout() hal.ImageLayout {
	return img.layout
}

// SetLayout records a layout change performed outside Transition, e.g. by a
// render pass final layout.
func (img *Image) SetLayout(l hal.ImageLayout) {
	img.layout = l
}

// Upload copies pixels into the image through a staging buffer recorded in cmd.
// The image is moved to transfer-dst first.
func (img *Image) Upload(pixels []byte, cmd hal.CommandBufferID) {
	img.alloc.retire(img.stage(pixels, cmd))
}

func (img *Image) stage(pixels []byte, cmd hal.CommandBufferID) *Buffer {
	expected := int(img.width) * int(img.height) * img.format.TexelSize()
	if expected > 0 && len(pixels) != expected {
		core.Fatal(fmt.Errorf("pixel data is %d bytes, expected %d", len(pixels), expected), img.label)
	}
	staging := img.alloc.CreateBuffer(BufferConfig{
		Label:        img.label + ".staging",
		InstanceSize: uint64(len(pixels)),
		Usage:        hal.BufferUsageTransferSrc,
		Memory:       hal.MemoryHostVisible,
		Data:         pixels,
	})
	img.Transition(hal.LayoutTransferDst, cmd)
	img.alloc.dev.CmdCopyBufferToImage(cmd, staging.ID(), img.id, img.width, img.height)
	return staging
}

// Transition records a barrier moving the image from its tracked layout to
// newLayout. cmd may be zero, in which case a one-shot buffer is used.
func (img *Image) Transition(newLayout hal.ImageLayout, cmd hal.CommandBufferID) {
	if newLayout == img.layout {
		return
	}
	if cmd == 0 {
		img.alloc.OneShot(img.label+".transition", func(cmd hal.CommandBufferID) {
			img.Transition(newLayout, cmd)
		})
		return
	}
	barrier, err := LayoutBarrier(img.id, img.layout, newLayout)
	if err != nil {
		core.Fatal(err, img.label)
	}
	img.alloc.dev.CmdImageBarrier(cmd, barrier)
	img.layout = newLayout
}

// LayoutBarrier derives access masks and stages for a layout change.
func LayoutBarrier(id hal.ImageID, from, to hal.ImageLayout) (hal.ImageBarrier, error) {
	if to == hal.LayoutUndefined {
		return hal.ImageBarrier{}, fmt.Errorf("cannot transition %s image back to undefined", from)
	}
	srcAccess, srcStage := layoutUsage(from)
	dstAccess, dstStage := layoutUsage(to)
	if from == hal.LayoutUndefined {
		srcAccess = hal.AccessNone
	}
	return hal.ImageBarrier{
		Image:     id,
		OldLayout: from,
		NewLayout: to,
		SrcAccess: srcAccess,
		DstAccess: dstAccess,
		SrcStage:  srcStage,
		DstStage:  dstStage,
	}, nil
}

func layoutUsage(l hal.ImageLayout) (hal.Access, hal.PipelineStage) {
	switch l {
	case hal.LayoutGeneral:
		return hal.AccessShaderRead | hal.AccessShaderWrite, hal.StageComputeShader | hal.StageFragmentShader
	case hal.LayoutShaderReadOnly:
		return hal.AccessShaderRead, hal.StageFragmentShader
	case hal.LayoutTransferSrc:
		return hal.AccessTransferRead, hal.StageTransfer
	case hal.LayoutTransferDst:
		return hal.AccessTransferWrite, hal.StageTransfer
	case hal.LayoutColorAttachment:
		return hal.AccessColorAttachmentRead | hal.AccessColorAttachmentWrite, hal.StageColorAttachmentOutput
	case hal.LayoutDepthAttachment:
		return hal.AccessDepthAttachmentRead | hal.AccessDepthAttachmentWrite, hal.StageEarlyFragmentTests
	case hal.LayoutPresent:
		return hal.AccessMemoryRead, hal.StageBottomOfPipe
	}
	return hal.AccessNone, hal.StageTopOfPipe
}

func (img *Image) Destroy() {
	if img.id == 0 {
		return
	}
	if img.owned {
		img.alloc.dev.DestroyImage(img.id)
	}
	img.id = 0
}
