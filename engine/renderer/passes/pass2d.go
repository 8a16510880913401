package passes

import (
	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/batch"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/components"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/descriptor"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/frame"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/pipeline"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
)

type Config struct {
	Globals   *descriptor.Layout
	Swapchain hal.Swapchain
	Shaders   ShaderSource
	// Load draws on top of what an earlier pass left in the swapchain image.
	Load       bool
	ClearColor [4]float32
	// Present marks the last pass of the frame.
	Present bool
}

// Pass2D draws screen-space sprites and strips with an orthographic camera.
// Depth testing is on so painter depth decides overlap.
type Pass2D struct {
	recorder

	ctx        *metadata.GraphicsContext
	target     *Target
	controller *batch.Controller2D
	camera     *components.Camera
	regular    *pipeline.Pipeline
	strip      *pipeline.Pipeline
}

func NewPass2D(ctx *metadata.GraphicsContext, cfg Config) *Pass2D {
	p := &Pass2D{
		recorder:   recorder{dev: ctx.Device},
		ctx:        ctx,
		controller: batch.NewController2D(ctx, "sprites"),
		camera:     components.NewCamera(components.Orthographic),
	}
	p.target = NewTarget(ctx, TargetConfig{
		Label:      "pass2d",
		Load:       cfg.Load,
		ClearColor: cfg.ClearColor,
		Present:    cfg.Present,
	}, cfg.Swapchain)
	p.camera.SetViewport(cfg.Swapchain.Extent.Width, cfg.Swapchain.Extent.Height)

	shaders := cfg.Shaders
	base := pipeline.Config{
		Pass: p.target.Pass(),
		Shaders: []*resources.Shader{
			shaders.Shader("sprite.vert", hal.ShaderStageVertex),
			shaders.Shader("sprite.frag", hal.ShaderStageFragment),
		},
		VertexStride: batch.Vertex2DSize,
		Attributes:   batch.Vertex2DAttributes(),
		Cull:         hal.CullNone,
		Blend:        true,
		DepthTest:    true,
		DepthWrite:   true,
		Layouts:      []*descriptor.Layout{cfg.Globals, p.controller.TextureLayout()},
		Constants:    batch.TextureConstants(ctx),
	}
	regular := base
	regular.Label = "sprites.regular"
	regular.Topology = batch.Regular.Topology()
	p.regular = pipeline.New(ctx.Device, regular)

	strip := base
	strip.Label = "sprites.strip"
	strip.Topology = batch.Stripped.Topology()
	p.strip = pipeline.New(ctx.Device, strip)
	return p
}

func (p *Pass2D) Controller() *batch.Controller2D {
	return p.controller
}

func (p *Pass2D) Camera() *components.Camera {
	return p.camera
}

func (p *Pass2D) Target() *Target {
	return p.target
}

// Draw records one batch; it implements batch.Pass.
func (p *Pass2D) Draw(call batch.DrawCall) {
	pl := p.regular
	if call.Mode == batch.Stripped {
		pl = p.strip
	}
	p.draw(pl, call)
}

// Record draws everything queued on the controller into the swapchain image
// and returns the number of draw calls.
func (p *Pass2D) Record(slot *frame.Slot, imageIndex uint32) int {
	p.begin(slot)
	p.target.Begin(slot.Cmd, imageIndex)
	p.controller.Render(p)
	p.target.End(slot.Cmd)
	return p.draws
}

// OnRebuild follows swapchain and frame slot changes.
func (p *Pass2D) OnRebuild(ev frame.Rebuild) {
	p.target.Rebuild(ev.Swapchain)
	p.camera.SetViewport(ev.Swapchain.Extent.Width, ev.Swapchain.Extent.Height)
	if ev.FramesChanged {
		p.controller.Resize(ev.FramesInFlight)
	}
	core.LogDebug("2D pass rebuilt for %dx%d", ev.Swapchain.Extent.Width, ev.Swapchain.Extent.Height)
}

func (p *Pass2D) Destroy() {
	p.regular.Destroy()
	p.strip.Destroy()
	p.controller.Destroy()
	p.target.Destroy()
}
