package engine

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/spaghettifunk/anima-gfx/engine/assets"
	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/platform"
	"github.com/spaghettifunk/anima-gfx/engine/renderer"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/vulkan"
	"github.com/spaghettifunk/anima-gfx/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Everything has been released
	EngineStageShutdown
)

// Platform is the window the engine runs in. *platform.Platform is the
// desktop implementation.
type Platform interface {
	Startup(applicationName string, x uint32, y uint32, width uint32, height uint32) error
	Shutdown() error
	PumpMessages() bool
	WaitMessages(timeout time.Duration)
	FramebufferSize() (uint32, uint32)
	GetAbsoluteTime() float64
}

// DeviceOpener creates the GPU device for a started platform.
type DeviceOpener func(p Platform, cfg *core.Config) (hal.Device, error)

type Options struct {
	// Defaults to a GLFW window.
	Platform Platform
	// Defaults to the Vulkan backend.
	OpenDevice DeviceOpener
	// Defaults to the asset manager shader directory.
	LoadShader func(name string) ([]byte, error)
}

// OpenVulkan is the default DeviceOpener. The platform must be able to
// create a Vulkan surface.
func OpenVulkan(p Platform, cfg *core.Config) (hal.Device, error) {
	w, ok := p.(vulkan.Window)
	if !ok {
		return nil, fmt.Errorf("platform %T cannot create a vulkan surface", p)
	}
	return vulkan.New(w, vulkan.ConfigFrom(cfg))
}

const (
	// how long a minimized window blocks in the event queue per loop
	suspendedWait = 100 * time.Millisecond
	jobQueueSize  = 64
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	isRunning    bool
	isSuspended  bool

	config  *core.Config
	opts    Options
	watcher *core.ConfigWatcher

	platform     Platform
	assetManager *assets.AssetManager
	jobSystem    *systems.JobSystem
	device       hal.Device
	renderer     *renderer.Renderer

	width    uint32
	height   uint32
	clock    *core.Clock
	metrics  *core.Metrics
	fpsTimer float64

	handlers []registration
}

type registration struct {
	code core.EventCode
	id   uint64
}

func New(g *Game, opts Options) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, errors.New("engine needs a game with an application config")
	}
	cfg := core.DefaultConfig()
	if path := g.ApplicationConfig.ConfigPath; path != "" {
		loaded, err := core.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if g.ApplicationConfig.Name != "" {
		cfg.Window.Title = g.ApplicationConfig.Name
	}
	core.SetLogLevel(cfg.Log.Level)
	core.SetLogFormat(cfg.Log.Format)

	if opts.Platform == nil {
		p, err := platform.New()
		if err != nil {
			return nil, err
		}
		opts.Platform = p
	}
	if opts.OpenDevice == nil {
		opts.OpenDevice = OpenVulkan
	}

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		opts:         opts,
		platform:     opts.Platform,
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		width:        cfg.Window.Width,
		height:       cfg.Window.Height,
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	if err := core.InputInitialize(); err != nil {
		return err
	}
	if !core.EventSystemInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}

	e.register(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	e.register(core.EVENT_CODE_KEY_PRESSED, e.onKey)
	e.register(core.EVENT_CODE_RESIZED, e.onResized)
	e.register(core.EVENT_CODE_CONFIG_RELOADED, e.onConfigReloaded)
	e.register(core.EVENT_CODE_ASSET_CHANGED, e.onAssetChanged)

	w := e.config.Window
	if err := e.platform.Startup(w.Title, w.X, w.Y, w.Width, w.Height); err != nil {
		return err
	}
	e.width, e.height = e.platform.FramebufferSize()

	loadShader := e.opts.LoadShader
	if loadShader == nil {
		am, err := assets.NewAssetManager(e.config.Assets)
		if err != nil {
			return err
		}
		if err := am.Initialize(); err != nil {
			return err
		}
		e.assetManager = am
		loadShader = am.LoadShader
	}

	dev, err := e.opts.OpenDevice(e.platform, e.config)
	if err != nil {
		return fmt.Errorf("failed to open the graphics device: %w", err)
	}
	e.device = dev

	r, err := renderer.New(dev, e.config, renderer.Options{
		Width:      e.width,
		Height:     e.height,
		LoadShader: loadShader,
	})
	if err != nil {
		return err
	}
	e.renderer = r

	if path := e.gameInstance.ApplicationConfig.ConfigPath; path != "" {
		watcher, err := core.WatchConfig(path, func(cfg *core.Config) {
			// the watcher runs on its own goroutine, hand over to the loop
			if err := core.EventPost(core.EventContext{Type: core.EVENT_CODE_CONFIG_RELOADED, Data: cfg}); err != nil {
				core.LogWarn("config reload dropped: %s", err)
			}
		})
		if err != nil {
			core.LogWarn("config reloading disabled: %s", err)
		} else {
			e.watcher = watcher
		}
	}

	jobs, err := systems.NewJobSystem(runtime.NumCPU(), jobQueueSize)
	if err != nil {
		return err
	}
	e.jobSystem = jobs

	if e.gameInstance.FnInitialize != nil {
		ctx := &Context{Renderer: r, Assets: e.assetManager, Jobs: jobs}
		if err := e.gameInstance.FnInitialize(ctx); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}
	e.isRunning = true
	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) register(code core.EventCode, fn core.FnOnEvent) {
	e.handlers = append(e.handlers, registration{code: code, id: core.EventRegister(code, fn)})
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine run before initialize")
	}
	e.currentStage = EngineStageRunning

	e.clock.Start()

	for e.isRunning {
		if !e.platform.PumpMessages() {
			e.isRunning = false
			break
		}
		core.EventDispatchPending()
		if !e.isRunning {
			break
		}

		if e.isSuspended {
			e.platform.WaitMessages(suspendedWait)
			continue
		}
		if err := e.frame(); err != nil {
			return err
		}
	}
	return nil
}

// frame runs one update and render of the game. Errors from the game stop
// the engine, errors from drawing only lose the frame.
func (e *Engine) frame() error {
	delta := e.clock.Tick()
	frameStartTime := e.platform.GetAbsoluteTime()

	e.jobSystem.Update()
	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(delta); err != nil {
			e.isRunning = false
			return fmt.Errorf("game update failed, shutting down: %w", err)
		}
	}

	packet := &metadata.RenderPacket{DeltaTime: delta}
	if e.gameInstance.FnRender != nil {
		if err := e.gameInstance.FnRender(packet, delta); err != nil {
			e.isRunning = false
			return fmt.Errorf("game render failed, shutting down: %w", err)
		}
	}

	if err := e.renderer.DrawFrame(packet); err != nil {
		core.LogError("frame %d: %s", e.renderer.Frames().Frame(), err)
	}

	frameElapsedTime := e.platform.GetAbsoluteTime() - frameStartTime
	e.metrics.Update(frameElapsedTime)
	e.fpsTimer += delta
	if e.fpsTimer >= 1 {
		e.fpsTimer = 0
		fps, ms := e.metrics.Frame()
		core.LogDebug("fps: %.0f, frame: %.2fms, draws: %d", fps, ms, e.renderer.Draws())
	}

	// NOTE: Input update/state copying should always be handled
	// after any input should be recorded; I.E. before this line.
	// As a safety, input is the last thing to be updated before
	// this frame ends.
	core.InputUpdate(delta)
	return nil
}

// Shutdown releases everything Initialize created, in reverse order. It is
// safe to call after a failed Initialize.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning = false

	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
		e.watcher = nil
	}
	for _, h := range e.handlers {
		core.EventUnregister(h.code, h.id)
	}
	e.handlers = nil

	if e.jobSystem != nil {
		errs = append(errs, e.jobSystem.Shutdown())
		e.jobSystem = nil
	}
	if e.renderer != nil {
		if e.gameInstance.FnShutdown != nil {
			errs = append(errs, e.gameInstance.FnShutdown())
		}
		e.renderer.Shutdown()
		e.renderer = nil
	}
	if e.device != nil {
		e.device.Destroy()
		e.device = nil
	}
	if e.assetManager != nil {
		errs = append(errs, e.assetManager.Shutdown())
		e.assetManager = nil
	}
	errs = append(errs, e.platform.Shutdown())
	errs = append(errs, core.EventSystemShutdown())
	errs = append(errs, core.InputShutdown())

	e.currentStage = EngineStageShutdown
	core.LogInfo("engine shut down")
	return errors.Join(errs...)
}

// Quit asks the loop to stop after the current frame. Safe from any
// goroutine.
func (e *Engine) Quit() {
	if err := core.EventPost(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT}); err != nil {
		core.LogWarn("quit request dropped: %s", err)
	}
}

// GetFramebufferSize returns the width and height (in this order)
// of the application Framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

func (e *Engine) Config() *core.Config {
	return e.config
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) onEvent(context core.EventContext) bool {
	switch context.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning = false
		return true
	}
	return false
}

func (e *Engine) onKey(context core.EventContext) bool {
	ke, ok := context.Data.(*core.KeyEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	if ke.KeyCode == core.KEY_ESCAPE {
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		core.EventFire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
		// Block anything else from processing this.
		return true
	}
	return false
}

func (e *Engine) onResized(context core.EventContext) bool {
	se, ok := context.Data.(*core.SystemEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	width, height := se.WindowWidth, se.WindowHeight

	// Check if different. If so, trigger a resize event.
	if width == e.width && height == e.height {
		return false
	}
	e.width, e.height = width, height
	core.LogDebug("Window resize: %d, %d", width, height)

	if e.renderer != nil {
		if err := e.renderer.Resize(width, height); err != nil {
			core.LogError("resize to %dx%d: %s", width, height, err)
		}
	}

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return false
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError("game resize: %s", err)
		}
	}
	// other listeners may want the new size too
	return false
}

// onConfigReloaded applies what can change on a running renderer. The rest
// waits for a restart.
func (e *Engine) onConfigReloaded(context core.EventContext) bool {
	cfg, ok := context.Data.(*core.Config)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	old := e.config

	core.SetLogLevel(cfg.Log.Level)
	core.SetLogFormat(cfg.Log.Format)
	if e.renderer != nil {
		if cfg.Renderer.VSync != old.Renderer.VSync {
			if err := e.renderer.SetVSync(cfg.Renderer.VSync); err != nil {
				core.LogError("apply vsync: %s", err)
				cfg.Renderer.VSync = old.Renderer.VSync
			}
		}
		if cfg.Renderer.FramesInFlight != old.Renderer.FramesInFlight {
			if err := e.renderer.SetFramesInFlight(cfg.Renderer.FramesInFlight); err != nil {
				core.LogError("apply frames_in_flight: %s", err)
				cfg.Renderer.FramesInFlight = old.Renderer.FramesInFlight
			}
		}
	}
	if cfg.Renderer.WorldPath != old.Renderer.WorldPath || cfg.Renderer.ClearColor != old.Renderer.ClearColor || cfg.Batch != old.Batch {
		core.LogWarn("world_path, clear_color and batch settings apply on the next start")
		cfg.Renderer.WorldPath = old.Renderer.WorldPath
		cfg.Renderer.ClearColor = old.Renderer.ClearColor
		cfg.Batch = old.Batch
	}
	// the window keeps its runtime title
	cfg.Window.Title = old.Window.Title

	e.config = cfg
	core.LogInfo("config reloaded")
	return true
}

func (e *Engine) onAssetChanged(context core.EventContext) bool {
	ae, ok := context.Data.(*core.AssetEvent)
	if !ok {
		return false
	}
	// shader modules are built once at startup
	core.LogInfo("asset %s changed, restart to pick it up", ae.Path)
	return false
}
