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

// World is a 3D pass: forward or deferred.
type World interface {
	batch.Pass
	Controller() *batch.Controller3D
	Camera() *components.Camera
	Record(slot *frame.Slot, imageIndex uint32) int
	OnRebuild(ev frame.Rebuild)
	Destroy()
}

// ModelPushSize is the push constant block of model pipelines: one mat4.
const ModelPushSize = 64

// world holds what both 3D passes share: the controller, the camera and the
// batch and model pipelines.
type world struct {
	recorder

	ctx        *metadata.GraphicsContext
	controller *batch.Controller3D
	camera     *components.Camera
	batched    *pipeline.Pipeline
	models     *pipeline.Pipeline
}

func newWorld(ctx *metadata.GraphicsContext, label string, sc hal.Swapchain) world {
	cam := components.NewCamera(components.Perspective)
	cam.SetViewport(sc.Extent.Width, sc.Extent.Height)
	return world{
		recorder:   recorder{dev: ctx.Device},
		ctx:        ctx,
		controller: batch.NewController3D(ctx, label),
		camera:     cam,
	}
}

// buildPipelines creates the batch and model pipelines for pass. fragment
// names the fragment shader, colors the number of color attachments.
func (w *world) buildPipelines(label string, pass hal.RenderPassID, globals *descriptor.Layout, shaders ShaderSource, fragment string, colors int) {
	frag := shaders.Shader(fragment, hal.ShaderStageFragment)
	base := pipeline.Config{
		Pass:             pass,
		VertexStride:     batch.Vertex3DSize,
		Attributes:       batch.Vertex3DAttributes(),
		Topology:         hal.TopologyTriangleList,
		Cull:             hal.CullBack,
		DepthTest:        true,
		DepthWrite:       true,
		Layouts:          []*descriptor.Layout{globals, w.controller.TextureLayout()},
		ColorAttachments: colors,
		Constants:        batch.TextureConstants(w.ctx),
	}

	batched := base
	batched.Label = label + ".batched"
	batched.Shaders = []*resources.Shader{shaders.Shader("world.vert", hal.ShaderStageVertex), frag}
	w.batched = pipeline.New(w.ctx.Device, batched)

	models := base
	models.Label = label + ".models"
	models.Shaders = []*resources.Shader{shaders.Shader("model.vert", hal.ShaderStageVertex), frag}
	models.PushConstantSize = ModelPushSize
	w.models = pipeline.New(w.ctx.Device, models)
}

func (w *world) Controller() *batch.Controller3D {
	return w.controller
}

func (w *world) Camera() *components.Camera {
	return w.camera
}

// Draw picks the model pipeline for standalone models; it implements
// batch.Pass.
func (w *world) Draw(call batch.DrawCall) {
	if call.Model != nil {
		w.draw(w.models, call)
		return
	}
	w.draw(w.batched, call)
}

func (w *world) rebuilt(ev frame.Rebuild) {
	w.camera.SetViewport(ev.Swapchain.Extent.Width, ev.Swapchain.Extent.Height)
	if ev.FramesChanged {
		w.controller.Resize(ev.FramesInFlight)
	}
}

func (w *world) destroy() {
	w.batched.Destroy()
	w.models.Destroy()
	w.controller.Destroy()
}

// Forward3D shades meshes directly into the swapchain image.
type Forward3D struct {
	world
	target *Target
}

func NewForward3D(ctx *metadata.GraphicsContext, cfg Config) *Forward3D {
	f := &Forward3D{world: newWorld(ctx, "world", cfg.Swapchain)}
	f.target = NewTarget(ctx, TargetConfig{
		Label:      "forward3d",
		Load:       cfg.Load,
		ClearColor: cfg.ClearColor,
		Present:    cfg.Present,
	}, cfg.Swapchain)
	f.buildPipelines("forward", f.target.Pass(), cfg.Globals, cfg.Shaders, "world.frag", 1)
	return f
}

func (f *Forward3D) Target() *Target {
	return f.target
}

func (f *Forward3D) Record(slot *frame.Slot, imageIndex uint32) int {
	f.begin(slot)
	f.target.Begin(slot.Cmd, imageIndex)
	f.controller.Render(f)
	f.target.End(slot.Cmd)
	return f.draws
}

func (f *Forward3D) OnRebuild(ev frame.Rebuild) {
	f.target.Rebuild(ev.Swapchain)
	f.rebuilt(ev)
	core.LogDebug("forward pass rebuilt for %dx%d", ev.Swapchain.Extent.Width, ev.Swapchain.Extent.Height)
}

func (f *Forward3D) Destroy() {
	f.destroy()
	f.target.Destroy()
}

var (
	_ World = (*Forward3D)(nil)
	_ World = (*Deferred3D)(nil)
)
