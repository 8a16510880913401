package passes

import (
	"fmt"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
)

// DepthFormat is used by every depth attachment the passes create.
const DepthFormat = hal.FormatD32Float

type TargetConfig struct {
	Label string
	// Load keeps what an earlier pass drew into the swapchain image.
	Load       bool
	ClearColor [4]float32
	// Present makes the image presentable at the end of the pass.
	Present bool
}

/**
 * @brief A render pass drawing into the swapchain images, with one
 * framebuffer per image and a depth image of the swapchain size.
 */
type Target struct {
	ctx *metadata.GraphicsContext
	cfg TargetConfig

	pass         hal.RenderPassID
	format       hal.Format
	extent       hal.Extent
	depth        *resources.Image
	framebuffers []hal.FramebufferID
}

func NewTarget(ctx *metadata.GraphicsContext, cfg TargetConfig, sc hal.Swapchain) *Target {
	t := &Target{ctx: ctx, cfg: cfg}
	t.Rebuild(sc)
	return t
}

func (t *Target) createPass(format hal.Format) {
	color := hal.AttachmentDesc{
		Format:  format,
		Load:    hal.LoadOpClear,
		Store:   hal.StoreOpStore,
		Initial: hal.LayoutUndefined,
		Final:   hal.LayoutColorAttachment,
	}
	if t.cfg.Load {
		color.Load = hal.LoadOpLoad
		color.Initial = hal.LayoutColorAttachment
	}
	if t.cfg.Present {
		color.Final = hal.LayoutPresent
	}
	id, err := t.ctx.Device.CreateRenderPass(hal.RenderPassDesc{
		Label:  t.cfg.Label,
		Colors: []hal.AttachmentDesc{color},
		Depth: &hal.AttachmentDesc{
			Format:  DepthFormat,
			Load:    hal.LoadOpClear,
			Store:   hal.StoreOpDontCare,
			Initial: hal.LayoutUndefined,
			Final:   hal.LayoutDepthAttachment,
		},
	})
	if err != nil {
		core.Fatal(fmt.Errorf("create render pass: %w", err), t.cfg.Label)
	}
	t.pass = id
	t.format = format
}

// Rebuild recreates the framebuffers and depth image for sc. The render pass
// itself only changes with the swapchain format.
func (t *Target) Rebuild(sc hal.Swapchain) {
	t.destroyFramebuffers()
	if t.pass == 0 || t.format != sc.Format {
		if t.pass != 0 {
			t.ctx.Device.DestroyRenderPass(t.pass)
		}
		t.createPass(sc.Format)
	}
	t.extent = sc.Extent
	if len(sc.Images) == 0 {
		return
	}

	t.depth = t.ctx.Allocator.CreateImage(resources.ImageConfig{
		Label:  t.cfg.Label + ".depth",
		Width:  sc.Extent.Width,
		Height: sc.Extent.Height,
		Format: DepthFormat,
		Usage:  hal.ImageUsageDepthAttachment,
	})
	t.framebuffers = make([]hal.FramebufferID, len(sc.Images))
	for i, img := range sc.Images {
		fb, err := t.ctx.Device.CreateFramebuffer(hal.FramebufferDesc{
			Label:       fmt.Sprintf("%s.framebuffer%d", t.cfg.Label, i),
			Pass:        t.pass,
			Attachments: []hal.ImageID{img, t.depth.ID()},
			Width:       sc.Extent.Width,
			Height:      sc.Extent.Height,
		})
		if err != nil {
			core.Fatal(fmt.Errorf("create framebuffer %d: %w", i, err), t.cfg.Label)
		}
		t.framebuffers[i] = fb
	}
}

func (t *Target) Pass() hal.RenderPassID {
	return t.pass
}

func (t *Target) Extent() hal.Extent {
	return t.extent
}

// Begin starts the render pass on the framebuffer of imageIndex and sets a
// full-target viewport and scissor.
func (t *Target) Begin(cmd hal.CommandBufferID, imageIndex uint32) {
	beginPass(t.ctx.Device, cmd, hal.RenderPassBegin{
		Pass:        t.pass,
		Framebuffer: t.framebuffers[imageIndex],
		Width:       t.extent.Width,
		Height:      t.extent.Height,
		ClearColor:  t.cfg.ClearColor,
		ClearDepth:  1,
		ColorCount:  1,
		HasDepth:    true,
	})
}

func beginPass(dev hal.Recorder, cmd hal.CommandBufferID, begin hal.RenderPassBegin) {
	dev.CmdBeginRenderPass(cmd, begin)
	dev.CmdSetViewport(cmd, float32(begin.Width), float32(begin.Height))
	dev.CmdSetScissor(cmd, begin.Width, begin.Height)
}

func (t *Target) End(cmd hal.CommandBufferID) {
	t.ctx.Device.CmdEndRenderPass(cmd)
}

func (t *Target) destroyFramebuffers() {
	for _, fb := range t.framebuffers {
		t.ctx.Device.DestroyFramebuffer(fb)
	}
	t.framebuffers = nil
	if t.depth != nil {
		t.depth.Destroy()
		t.depth = nil
	}
}

func (t *Target) Destroy() {
	t.destroyFramebuffers()
	t.ctx.Device.DestroyRenderPass(t.pass)
}
