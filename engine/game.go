package engine

import (
	"github.com/spaghettifunk/anima-gfx/engine/assets"
	"github.com/spaghettifunk/anima-gfx/engine/renderer"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gfx/engine/systems"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

// Context is what a game gets to build its scene with.
type Context struct {
	Renderer *renderer.Renderer
	// nil when shaders come from Options.LoadShader
	Assets *assets.AssetManager
	// Job callbacks run on the main loop, before the game update.
	Jobs *systems.JobSystem
}

// Initialize runs once the renderer is ready, to create textures and meshes.
type Initialize func(ctx *Context) error
type Update func(deltaTime float64) error

// Render fills the packet the engine draws at the end of the frame.
type Render func(packet *metadata.RenderPacket, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
