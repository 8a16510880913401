package renderer

import (
	"errors"
	"fmt"
	"image"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/batch"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/frame"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/passes"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
)

var ErrUnknownMesh = errors.New("unknown mesh")

type Options struct {
	Width, Height uint32
	// LoadShader returns the SPIR-V binary of a named shader, e.g. "sprite.vert".
	LoadShader func(name string) ([]byte, error)
}

/**
 * @brief The entry point of the engine into the GPU: resource intake, the
 * sprite and world controllers and frame driving.
 */
type Renderer struct {
	ctx     *metadata.GraphicsContext
	frames  *frame.Orchestrator
	shaders *shaderLibrary
	sprites *passes.Pass2D
	world   passes.World

	width, height uint32
	slot          *frame.Slot
	globals       passes.Globals
	scratch       []byte
	quad          [4]batch.Vertex2D
	strip         []batch.Vertex2D
	/** @brief Draw calls recorded by the last frame. */
	draws int
}

func New(dev hal.Device, cfg *core.Config, opts Options) (*Renderer, error) {
	if opts.LoadShader == nil {
		return nil, errors.New("renderer needs a shader loader")
	}
	ctx := metadata.NewGraphicsContext(dev, cfg)
	r := &Renderer{
		ctx:     ctx,
		width:   opts.Width,
		height:  opts.Height,
		globals: passes.DefaultGlobals(),
	}
	r.shaders = newShaderLibrary(ctx.Allocator, opts.LoadShader)
	r.frames = frame.New(ctx, frame.Config{
		Width:          opts.Width,
		Height:         opts.Height,
		VSync:          cfg.Renderer.VSync,
		FramesInFlight: cfg.Renderer.FramesInFlight,
		FenceTimeout:   cfg.Renderer.FenceTimeout.Duration,
		UniformSize:    passes.GlobalsSize,
	})

	world := passes.Config{
		Globals:    r.frames.GlobalLayout(),
		Swapchain:  r.frames.Swapchain(),
		Shaders:    r.shaders,
		ClearColor: cfg.Renderer.ClearColor,
	}
	switch cfg.Renderer.WorldPath {
	case "deferred":
		r.world = passes.NewDeferred3D(ctx, world)
	case "forward", "":
		r.world = passes.NewForward3D(ctx, world)
	default:
		r.frames.Destroy()
		r.shaders.destroy()
		ctx.Destroy()
		return nil, fmt.Errorf("unknown world path %q", cfg.Renderer.WorldPath)
	}

	// sprites go on top of the world and end the frame
	sprites := world
	sprites.Load = true
	sprites.Present = true
	r.sprites = passes.NewPass2D(ctx, sprites)

	r.frames.OnRebuild(r.world.OnRebuild)
	r.frames.OnRebuild(r.sprites.OnRebuild)
	core.LogInfo("renderer ready: %s world path", cfg.Renderer.WorldPath)
	return r, nil
}

func (r *Renderer) Context() *metadata.GraphicsContext {
	return r.ctx
}

// Sprites is the 2D controller of the current frame.
func (r *Renderer) Sprites() *batch.Controller2D {
	return r.sprites.Controller()
}

// World is the 3D pass; its controller takes meshes for the current frame.
func (r *Renderer) World() passes.World {
	return r.world
}

func (r *Renderer) Frames() *frame.Orchestrator {
	return r.frames
}

// Draws is the number of draw calls recorded by the last finished frame.
func (r *Renderer) Draws() int {
	return r.draws
}

// debugName gives anonymous resources a unique label, so validation messages
// and fatal logs can still tell them apart.
func debugName(name string) string {
	if name != "" {
		return name
	}
	return "anon-" + uuid.NewString()
}

func (r *Renderer) CreateTexture(name string, pixels []byte, width, height uint32, format hal.Format) *resources.Texture {
	return r.ctx.Allocator.CreateTexture(debugName(name), pixels, width, height, format, r.ctx.DefaultSampler)
}

// CreateTextureFromImage uploads a decoded image as RGBA8, scaled down to the
// device image limit when needed.
func (r *Renderer) CreateTextureFromImage(name string, img image.Image) *resources.Texture {
	pixels, w, h := resources.TextureFromImage(img, r.ctx.Limits.MaxImageDimension2D)
	return r.CreateTexture(name, pixels, w, h, hal.FormatRGBA8Unorm)
}

// CreateMesh uploads a mesh and returns the handle models refer to it by.
func (r *Renderer) CreateMesh(name string, vertices []batch.Vertex3D, indices []uint32) uint32 {
	mesh := batch.NewMesh(r.ctx.Allocator, debugName(name), vertices, indices)
	return r.ctx.Meshes.Acquire(mesh)
}

func (r *Renderer) Mesh(id uint32) (*batch.Mesh, bool) {
	mesh, ok := r.ctx.Meshes.Owner(id).(*batch.Mesh)
	return mesh, ok
}

// DestroyMesh waits for the device since earlier frames may still read the
// mesh buffers.
func (r *Renderer) DestroyMesh(id uint32) error {
	mesh, ok := r.Mesh(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownMesh, id)
	}
	if err := r.ctx.Device.WaitIdle(); err != nil {
		core.Fatal(err, mesh.Label())
	}
	mesh.Destroy()
	return r.ctx.Meshes.Release(id)
}

func (r *Renderer) CreateShader(name string, stage hal.ShaderStage, code []byte) *resources.Shader {
	return r.ctx.Allocator.CreateShader(debugName(name), stage, code)
}

// SetLight sets the directional light of the world pass.
func (r *Renderer) SetLight(direction mgl32.Vec3, ambient mgl32.Vec4) {
	r.globals.LightDirection = direction.Vec4(0)
	r.globals.AmbientColor = ambient
}

// Resize records the new framebuffer size and rebuilds the swapchain. A zero
// area is not an error; frames are skipped until the window has a size again.
func (r *Renderer) Resize(width, height uint32) error {
	r.width, r.height = width, height
	err := r.frames.Resize(width, height)
	if errors.Is(err, core.ErrSwapchainBooting) {
		return nil
	}
	return err
}

func (r *Renderer) SetVSync(vsync bool) error {
	return r.skipBooting(r.frames.SetVSync(vsync))
}

func (r *Renderer) SetFramesInFlight(n int) error {
	return r.skipBooting(r.frames.SetFramesInFlight(n))
}

func (r *Renderer) skipBooting(err error) error {
	if errors.Is(err, core.ErrSwapchainBooting) {
		return nil
	}
	return err
}

// BeginFrame acquires the next swapchain image and returns its index. Draws
// queued on Sprites and World after it land in this frame.
func (r *Renderer) BeginFrame() (uint32, error) {
	slot, err := r.frames.BeginFrame()
	if err != nil {
		return 0, err
	}
	r.slot = slot
	return r.frames.ImageIndex(), nil
}

// EndFrame uploads the frame globals, records the world and sprite passes and
// hands the frame to the orchestrator.
func (r *Renderer) EndFrame() error {
	if r.slot == nil {
		return fmt.Errorf("%w: end without begin", frame.ErrFrameState)
	}
	slot := r.slot
	r.slot = nil

	r.globals.View2D, r.globals.Projection2D = r.sprites.Camera().ViewProjection()
	cam := r.world.Camera()
	r.globals.View3D, r.globals.Projection3D = cam.ViewProjection()
	r.globals.CameraPosition = cam.GetPosition().Vec4(1)
	r.scratch = passes.WriteGlobals(slot, &r.globals, r.scratch)

	idx := r.frames.ImageIndex()
	r.draws = r.world.Record(slot, idx)
	r.draws += r.sprites.Record(slot, idx)
	return r.frames.EndFrame()
}

// DrawFrame renders one packet. A stale swapchain is rebuilt and the frame
// skipped; the caller just keeps going.
func (r *Renderer) DrawFrame(packet *metadata.RenderPacket) error {
	if _, err := r.BeginFrame(); err != nil {
		return r.recover(err)
	}
	queueErr := r.queue(packet)
	if err := r.recover(r.EndFrame()); err != nil {
		return err
	}
	return queueErr
}

func (r *Renderer) recover(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrSwapchainBooting):
		return nil
	case errors.Is(err, frame.ErrOutOfDate), errors.Is(err, frame.ErrSuboptimal):
		core.LogDebug("rebuilding swapchain: %s", err)
		return r.Resize(r.width, r.height)
	}
	return err
}

// queue hands the packet to the controllers. Failing draws are skipped and
// their errors joined once everything else is queued.
func (r *Renderer) queue(packet *metadata.RenderPacket) error {
	var errs []error
	keep := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if packet.Layers2D == nil {
		for i := range packet.Sprites {
			keep(r.drawSprite(&packet.Sprites[i]))
		}
		for i := range packet.Strips {
			keep(r.drawStrip(&packet.Strips[i]))
		}
	} else {
		for _, l := range packet.Layers2D {
			switch {
			case l.Strip && l.Index < len(packet.Strips):
				keep(r.drawStrip(&packet.Strips[l.Index]))
			case !l.Strip && l.Index < len(packet.Sprites):
				keep(r.drawSprite(&packet.Sprites[l.Index]))
			default:
				keep(fmt.Errorf("2D layer index %d out of range", l.Index))
			}
		}
	}

	world := r.world.Controller()
	for _, m := range packet.Models {
		mesh, ok := r.Mesh(m.MeshID)
		if !ok {
			keep(fmt.Errorf("%w: %d", ErrUnknownMesh, m.MeshID))
			continue
		}
		keep(world.AddMesh(mesh, m.Transform, m.Textures))
	}
	return errors.Join(errs...)
}

func (r *Renderer) drawSprite(s *metadata.Sprite) error {
	uv := s.UV
	if uv == (mgl32.Vec4{}) {
		uv = mgl32.Vec4{0, 0, 1, 1}
	}
	x0, y0 := s.Position.X(), s.Position.Y()
	x1, y1 := x0+s.Size.X(), y0+s.Size.Y()
	corners := [4][4]float32{
		{x0, y0, uv[0], uv[1]},
		{x1, y0, uv[2], uv[1]},
		{x1, y1, uv[2], uv[3]},
		{x0, y1, uv[0], uv[3]},
	}
	useCamera := float32(0)
	if s.UseCamera {
		useCamera = 1
	}
	for i, c := range corners {
		r.quad[i] = batch.Vertex2D{
			Position:  mgl32.Vec3{c[0], c[1], 0},
			Rotation:  s.Rotation,
			Origin:    s.Position.Add(s.Origin),
			Color:     s.Color,
			UV:        mgl32.Vec2{c[2], c[3]},
			Clip:      s.Clip,
			UseCamera: useCamera,
		}
	}
	return r.sprites.Controller().DrawQuad(r.quad[:], s.Texture)
}

func (r *Renderer) drawStrip(s *metadata.Strip) error {
	n := len(s.Points)
	r.strip = r.strip[:0]
	for i, p := range s.Points {
		u := float32(0)
		if n > 1 {
			u = float32(i) / float32(n-1)
		}
		r.strip = append(r.strip, batch.Vertex2D{
			Position: mgl32.Vec3{p.X(), p.Y(), 0},
			Color:    s.Color,
			UV:       mgl32.Vec2{u, float32(i % 2)},
		})
	}
	return r.sprites.Controller().DrawStrip(r.strip, s.Texture)
}

func (r *Renderer) Shutdown() {
	if err := r.ctx.Device.WaitIdle(); err != nil {
		core.LogError("wait idle on shutdown: %s", err)
	}
	r.sprites.Destroy()
	r.world.Destroy()
	r.frames.Destroy()
	r.shaders.destroy()
	r.ctx.Meshes.Each(func(id uint32, owner interface{}) {
		owner.(*batch.Mesh).Destroy()
	})
	r.ctx.Destroy()
	core.LogInfo("renderer shut down")
}
