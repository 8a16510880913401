package passes

import (
	"fmt"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/descriptor"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/frame"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/pipeline"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
)

// G-buffer attachments, in attachment and binding order.
var gbufferFormats = [...]hal.Format{
	hal.FormatRGBA8Unorm,  // albedo
	hal.FormatRGBA16Float, // normal
	hal.FormatRGBA16Float, // position
}

var gbufferNames = [...]string{"albedo", "normal", "position"}

type gbuffer struct {
	colors [len(gbufferFormats)]*resources.Image
	depth  *resources.Image
	fb     hal.FramebufferID
}

func (g *gbuffer) destroy(dev hal.Device) {
	dev.DestroyFramebuffer(g.fb)
	for _, img := range g.colors {
		img.Destroy()
	}
	g.depth.Destroy()
}

// Deferred3D renders meshes into a per-slot G-buffer, then shades the
// swapchain image with one full-screen triangle that samples it.
type Deferred3D struct {
	world

	geometry hal.RenderPassID
	target   *Target
	lighting *pipeline.Pipeline

	sampler *resources.Sampler
	layout  *descriptor.Layout
	pool    *descriptor.Pool
	// indexed by frame slot; sets outlive the G-buffers they point at
	sets     []*descriptor.Set
	gbuffers []*gbuffer
	extent   hal.Extent
}

func NewDeferred3D(ctx *metadata.GraphicsContext, cfg Config) *Deferred3D {
	d := &Deferred3D{world: newWorld(ctx, "world", cfg.Swapchain)}
	d.createGeometryPass()
	d.buildPipelines("deferred", d.geometry, cfg.Globals, cfg.Shaders, "gbuffer.frag", len(gbufferFormats))

	d.target = NewTarget(ctx, TargetConfig{
		Label:      "deferred3d.lighting",
		Load:       cfg.Load,
		ClearColor: cfg.ClearColor,
		Present:    cfg.Present,
	}, cfg.Swapchain)
	d.extent = cfg.Swapchain.Extent

	d.sampler = ctx.Allocator.CreateSampler(resources.SamplerConfig{
		Label:       "gbuffer",
		MagFilter:   hal.FilterNearest,
		MinFilter:   hal.FilterNearest,
		AddressMode: hal.AddressClampToEdge,
	})
	bindings := make([]descriptor.Binding, len(gbufferFormats))
	for i := range bindings {
		bindings[i] = descriptor.Binding{Slot: uint32(i), Stages: hal.ShaderStageFragment, Kind: hal.DescriptorCombinedImageSampler}
	}
	d.layout = descriptor.NewLayout(ctx.Device, "gbuffer", bindings)
	d.pool = descriptor.NewPool(ctx.Device, descriptor.PoolConfig{
		Label:   "gbuffer",
		MaxSets: core.MaxFramesInFlight,
		Sizes:   d.layout.PoolSizes(core.MaxFramesInFlight),
	})

	d.lighting = pipeline.New(ctx.Device, pipeline.Config{
		Label: "deferred.lighting",
		Pass:  d.target.Pass(),
		Shaders: []*resources.Shader{
			cfg.Shaders.Shader("fullscreen.vert", hal.ShaderStageVertex),
			cfg.Shaders.Shader("lighting.frag", hal.ShaderStageFragment),
		},
		Topology: hal.TopologyTriangleList,
		Cull:     hal.CullNone,
		Layouts:  []*descriptor.Layout{cfg.Globals, d.layout},
	})
	return d
}

func (d *Deferred3D) createGeometryPass() {
	colors := make([]hal.AttachmentDesc, len(gbufferFormats))
	for i, f := range gbufferFormats {
		colors[i] = hal.AttachmentDesc{
			Format:  f,
			Load:    hal.LoadOpClear,
			Store:   hal.StoreOpStore,
			Initial: hal.LayoutUndefined,
			Final:   hal.LayoutShaderReadOnly,
		}
	}
	id, err := d.ctx.Device.CreateRenderPass(hal.RenderPassDesc{
		Label:  "deferred3d.geometry",
		Colors: colors,
		Depth: &hal.AttachmentDesc{
			Format:  DepthFormat,
			Load:    hal.LoadOpClear,
			Store:   hal.StoreOpDontCare,
			Initial: hal.LayoutUndefined,
			Final:   hal.LayoutDepthAttachment,
		},
	})
	if err != nil {
		core.Fatal(fmt.Errorf("create render pass: %w", err), "deferred3d.geometry")
	}
	d.geometry = id
}

func (d *Deferred3D) Target() *Target {
	return d.target
}

// gbuffer returns the G-buffer of slot, creating it at the current extent.
func (d *Deferred3D) gbuffer(slot int) *gbuffer {
	for len(d.gbuffers) <= slot {
		d.gbuffers = append(d.gbuffers, nil)
	}
	if g := d.gbuffers[slot]; g != nil {
		return g
	}

	alloc := d.ctx.Allocator
	g := &gbuffer{}
	attachments := make([]hal.ImageID, 0, len(gbufferFormats)+1)
	for i, f := range gbufferFormats {
		g.colors[i] = alloc.CreateImage(resources.ImageConfig{
			Label:  fmt.Sprintf("gbuffer%d.%s", slot, gbufferNames[i]),
			Width:  d.extent.Width,
			Height: d.extent.Height,
			Format: f,
			Usage:  hal.ImageUsageColorAttachment | hal.ImageUsageSampled,
		})
		attachments = append(attachments, g.colors[i].ID())
	}
	g.depth = alloc.CreateImage(resources.ImageConfig{
		Label:  fmt.Sprintf("gbuffer%d.depth", slot),
		Width:  d.extent.Width,
		Height: d.extent.Height,
		Format: DepthFormat,
		Usage:  hal.ImageUsageDepthAttachment,
	})
	attachments = append(attachments, g.depth.ID())

	fb, err := d.ctx.Device.CreateFramebuffer(hal.FramebufferDesc{
		Label:       fmt.Sprintf("gbuffer%d", slot),
		Pass:        d.geometry,
		Attachments: attachments,
		Width:       d.extent.Width,
		Height:      d.extent.Height,
	})
	if err != nil {
		core.Fatal(fmt.Errorf("create framebuffer: %w", err), fmt.Sprintf("gbuffer%d", slot))
	}
	g.fb = fb

	for len(d.sets) <= slot {
		d.sets = append(d.sets, descriptor.NewSet(d.pool, d.layout, fmt.Sprintf("gbuffer%d", len(d.sets))))
	}
	set := d.sets[slot]
	for i, img := range g.colors {
		set.UpdateImage(uint32(i), 0, img, d.sampler, hal.LayoutShaderReadOnly)
	}
	set.Build()

	d.gbuffers[slot] = g
	return g
}

func (d *Deferred3D) Record(slot *frame.Slot, imageIndex uint32) int {
	d.begin(slot)
	g := d.gbuffer(slot.Index)

	beginPass(d.ctx.Device, slot.Cmd, hal.RenderPassBegin{
		Pass:        d.geometry,
		Framebuffer: g.fb,
		Width:       d.extent.Width,
		Height:      d.extent.Height,
		ClearDepth:  1,
		ColorCount:  len(gbufferFormats),
		HasDepth:    true,
	})
	d.controller.Render(d)
	d.ctx.Device.CmdEndRenderPass(slot.Cmd)
	for _, img := range g.colors {
		img.SetLayout(hal.LayoutShaderReadOnly)
	}

	d.target.Begin(slot.Cmd, imageIndex)
	d.bind(d.lighting)
	d.lighting.BindSets(slot.Cmd, 1, d.sets[slot.Index].ID())
	d.ctx.Device.CmdDraw(slot.Cmd, 3, 1)
	d.target.End(slot.Cmd)
	return d.draws + 1
}

func (d *Deferred3D) dropGBuffers(keep int) {
	for i := range d.gbuffers {
		if d.gbuffers[i] != nil && i >= keep {
			d.gbuffers[i].destroy(d.ctx.Device)
			d.gbuffers[i] = nil
		}
	}
}

// OnRebuild drops every G-buffer; they are recreated at the new size on
// their next use.
func (d *Deferred3D) OnRebuild(ev frame.Rebuild) {
	d.target.Rebuild(ev.Swapchain)
	d.extent = ev.Swapchain.Extent
	d.dropGBuffers(0)
	d.rebuilt(ev)
	core.LogDebug("deferred pass rebuilt for %dx%d", d.extent.Width, d.extent.Height)
}

func (d *Deferred3D) Destroy() {
	d.dropGBuffers(0)
	d.lighting.Destroy()
	d.destroy()
	d.pool.Destroy()
	d.layout.Destroy()
	d.sampler.Destroy()
	d.ctx.Device.DestroyRenderPass(d.geometry)
	d.target.Destroy()
}
