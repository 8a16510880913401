package testbed

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/anima-gfx/engine"
	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/math"
	"github.com/spaghettifunk/anima-gfx/engine/renderer"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
)

const (
	spriteCount = 200
	cubeCount   = 3
	// scene layout is reproducible from one run to the next
	sceneSeed = 1337
	// optional; the cubes keep the checker texture when it is missing
	crateTexture = "crate.png"
)

var tempMoveSpeed float32 = 50.0

// camera travel per wheel tick
const zoomStep float32 = 2.0

type TestGame struct {
	*engine.Game
}

type gameState struct {
	renderer *renderer.Renderer

	width  uint32
	height uint32

	checker  *resources.Texture
	crate    *resources.Texture
	cubeMesh uint32
	rotation float32

	sprites  []metadata.Sprite
	velocity []mgl32.Vec2
	strip    metadata.Strip

	keyHandler uint64
}

func NewTestGame(configPath string) (*TestGame, error) {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				ConfigPath: configPath,
				Name:       "Anima Game Engine",
			},
			State: &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) Initialize(ctx *engine.Context) error {
	core.LogInfo("initializing testbed...")
	state := g.State.(*gameState)
	r := ctx.Renderer
	state.renderer = r

	state.checker = r.CreateTexture("checker", checkerPixels(64, 8), 64, 64, hal.FormatRGBA8Unorm)
	if ctx.Assets != nil && ctx.Jobs != nil {
		err := ctx.Assets.LoadImageAsync(ctx.Jobs, crateTexture, func(img image.Image) {
			state.crate = r.CreateTextureFromImage("crate", img)
		}, func(err error) {
			core.LogWarn("keeping the checker on the cubes: %s", err)
		})
		if err != nil {
			return err
		}
	}

	vertices, indices := math.GenerateCube(10.0, 10.0, 10.0, 1.0, 1.0)
	state.cubeMesh = r.CreateMesh("test_cube", vertices, indices)

	camera := r.World().Camera()
	camera.SetPosition(mgl32.Vec3{0, 10, 40})
	camera.Pitch(math.DegToRad(-10))
	r.SetLight(mgl32.Vec3{-0.57735, -0.57735, -0.57735}, mgl32.Vec4{0.25, 0.25, 0.25, 1})

	rng := math.NewRandom(sceneSeed)
	state.sprites = make([]metadata.Sprite, spriteCount)
	state.velocity = make([]mgl32.Vec2, spriteCount)
	for i := range state.sprites {
		size := rng.Float32InRange(8, 32)
		state.sprites[i] = metadata.Sprite{
			Position: mgl32.Vec2{rng.Float32InRange(0, 1280), rng.Float32InRange(0, 720)},
			Size:     mgl32.Vec2{size, size},
			Origin:   mgl32.Vec2{size / 2, size / 2},
			Color:    mgl32.Vec4{rng.Float32InRange(0.2, 1), rng.Float32InRange(0.2, 1), rng.Float32InRange(0.2, 1), 1},
		}
		if rng.Int32InRange(0, 1) == 1 {
			state.sprites[i].Texture = state.checker
		}
		state.velocity[i] = mgl32.Vec2{rng.Float32InRange(-120, 120), rng.Float32InRange(-120, 120)}
	}

	state.strip = metadata.Strip{
		Points: []mgl32.Vec2{{20, 20}, {20, 60}, {220, 20}, {220, 60}},
		Color:  mgl32.Vec4{0.9, 0.4, 0.1, 0.8},
	}

	state.keyHandler = core.EventRegister(core.EVENT_CODE_KEY_RELEASED, g.gameOnKey)
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	camera := state.renderer.World().Camera()
	dt := float32(deltaTime)

	// HACK: temp hack to move camera around.
	if core.InputIsKeyDown(core.KEY_A) || core.InputIsKeyDown(core.KEY_LEFT) {
		camera.Yaw(1.0 * dt)
	}
	if core.InputIsKeyDown(core.KEY_D) || core.InputIsKeyDown(core.KEY_RIGHT) {
		camera.Yaw(-1.0 * dt)
	}
	if core.InputIsKeyDown(core.KEY_UP) {
		camera.Pitch(1.0 * dt)
	}
	if core.InputIsKeyDown(core.KEY_DOWN) {
		camera.Pitch(-1.0 * dt)
	}
	if core.InputIsKeyDown(core.KEY_W) {
		camera.MoveForward(tempMoveSpeed * dt)
	}
	if core.InputIsKeyDown(core.KEY_S) {
		camera.MoveBackward(tempMoveSpeed * dt)
	}
	if core.InputIsKeyDown(core.KEY_Q) {
		camera.MoveLeft(tempMoveSpeed * dt)
	}
	if core.InputIsKeyDown(core.KEY_E) {
		camera.MoveRight(tempMoveSpeed * dt)
	}
	if core.InputIsKeyDown(core.KEY_SPACE) {
		camera.MoveUp(tempMoveSpeed * dt)
	}
	if core.InputIsKeyDown(core.KEY_X) {
		camera.MoveDown(tempMoveSpeed * dt)
	}
	if ticks := core.InputScrollDelta(); ticks != 0 {
		camera.MoveForward(float32(ticks) * zoomStep)
	}

	if core.InputKeyPressed(core.KEY_V) {
		vsync := !state.renderer.Frames().VSync()
		if err := state.renderer.SetVSync(vsync); err != nil {
			core.LogError("toggle vsync: %s", err)
		} else {
			core.LogInfo("vsync %t", vsync)
		}
	}

	// Perform a small rotation on the cubes.
	state.rotation += 0.5 * dt

	w, h := float32(state.width), float32(state.height)
	for i := range state.sprites {
		s := &state.sprites[i]
		s.Position = s.Position.Add(state.velocity[i].Mul(dt))
		s.Rotation += dt
		// bounce off the window edges
		if s.Position.X() < 0 || s.Position.X()+s.Size.X() > w {
			state.velocity[i][0] = -state.velocity[i][0]
			s.Position[0] = math.Clamp(s.Position.X(), 0, max(w-s.Size.X(), 0))
		}
		if s.Position.Y() < 0 || s.Position.Y()+s.Size.Y() > h {
			state.velocity[i][1] = -state.velocity[i][1]
			s.Position[1] = math.Clamp(s.Position.Y(), 0, max(h-s.Size.Y(), 0))
		}
	}
	return nil
}

func (g *TestGame) Render(packet *metadata.RenderPacket, deltaTime float64) error {
	state := g.State.(*gameState)

	packet.DeltaTime = deltaTime
	cubeTexture := state.checker
	if state.crate != nil {
		cubeTexture = state.crate
	}
	rotation := mgl32.HomogRotate3DY(state.rotation)
	for i := 0; i < cubeCount; i++ {
		offset := mgl32.Translate3D(float32(i-cubeCount/2)*15, 0, 0)
		packet.Models = append(packet.Models, metadata.ModelInstance{
			MeshID:    state.cubeMesh,
			Transform: offset.Mul4(rotation),
			Textures:  []*resources.Texture{cubeTexture},
		})
	}
	packet.Sprites = append(packet.Sprites, state.sprites...)
	packet.Strips = append(packet.Strips, state.strip)
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	core.EventUnregister(core.EVENT_CODE_KEY_RELEASED, state.keyHandler)
	if state.renderer == nil {
		return nil
	}
	if err := state.renderer.DestroyMesh(state.cubeMesh); err != nil {
		return err
	}
	state.checker.Destroy()
	if state.crate != nil {
		state.crate.Destroy()
	}
	return nil
}

func (g *TestGame) gameOnKey(context core.EventContext) bool {
	ke, ok := context.Data.(*core.KeyEvent)
	if !ok {
		return false
	}
	state := g.State.(*gameState)
	switch ke.KeyCode {
	case core.KEY_P:
		pos := state.renderer.World().Camera().GetPosition()
		core.LogDebug("Pos:[%.2f, %.2f, %.2f]", pos.X(), pos.Y(), pos.Z())
		return true
	case core.KEY_F:
		core.LogInfo("draws last frame: %d", state.renderer.Draws())
		return true
	}
	return false
}

// checkerPixels fills an RGBA8 image of size x size with cells of cell pixels.
func checkerPixels(size, cell int) []byte {
	pixels := make([]byte, size*size*4)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := byte(255)
			if (x/cell+y/cell)%2 == 1 {
				v = 64
			}
			o := (y*size + x) * 4
			pixels[o], pixels[o+1], pixels[o+2], pixels[o+3] = v, v, v, 255
		}
	}
	return pixels
}
