package engine

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/haltest"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gfx/engine/systems"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

type fakePlatform struct {
	width, height uint32
	maxPumps      int
	pumps         int
	waits         int
	onPump        func(n int)
	started       bool
	stopped       bool
}

func (p *fakePlatform) Startup(string, uint32, uint32, uint32, uint32) error {
	p.started = true
	return nil
}

func (p *fakePlatform) Shutdown() error {
	p.stopped = true
	return nil
}

func (p *fakePlatform) PumpMessages() bool {
	p.pumps++
	if p.onPump != nil {
		p.onPump(p.pumps)
	}
	return p.pumps <= p.maxPumps
}

func (p *fakePlatform) WaitMessages(time.Duration) { p.waits++ }

func (p *fakePlatform) FramebufferSize() (uint32, uint32) { return p.width, p.height }

func (p *fakePlatform) GetAbsoluteTime() float64 { return 0 }

func loadShader(string) ([]byte, error) {
	return binary.LittleEndian.AppendUint32(nil, 0x07230203), nil
}

type harness struct {
	engine   *Engine
	platform *fakePlatform
	device   *haltest.Device
	renders  int
	resizes  [][2]uint32
	initWith *renderer.Renderer
	ctx      *Context
}

func newHarness(t *testing.T, configPath string) *harness {
	t.Helper()
	h := &harness{
		platform: &fakePlatform{width: 800, height: 600, maxPumps: 3},
		device:   haltest.New(),
	}
	g := &Game{
		ApplicationConfig: &ApplicationConfig{ConfigPath: configPath, Name: "test"},
		FnInitialize: func(ctx *Context) error {
			h.initWith = ctx.Renderer
			h.ctx = ctx
			return nil
		},
		FnRender: func(packet *metadata.RenderPacket, _ float64) error {
			h.renders++
			packet.Sprites = append(packet.Sprites, metadata.Sprite{Size: mgl32.Vec2{8, 8}, Color: mgl32.Vec4{1, 1, 1, 1}})
			return nil
		},
		FnOnResize: func(w, hgt uint32) error {
			h.resizes = append(h.resizes, [2]uint32{w, hgt})
			return nil
		},
	}
	e, err := New(g, Options{
		Platform:   h.platform,
		OpenDevice: func(Platform, *core.Config) (hal.Device, error) { return h.device, nil },
		LoadShader: loadShader,
	})
	require.NoError(t, err)
	h.engine = e
	t.Cleanup(func() { e.Shutdown() })
	return h
}

func TestRunDrawsUntilWindowCloses(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.engine.Initialize())
	assert.True(t, h.platform.started)
	assert.Same(t, h.engine.Renderer(), h.initWith)
	assert.Equal(t, [][2]uint32{{800, 600}}, h.resizes)
	assert.Equal(t, "test", h.engine.Config().Window.Title)

	require.NoError(t, h.engine.Run())
	assert.Equal(t, 3, h.renders)
	assert.Len(t, h.device.Presents, 3)

	require.NoError(t, h.engine.Shutdown())
	assert.True(t, h.platform.stopped)
	assert.Equal(t, EngineStageShutdown, h.engine.Stage())
	require.NoError(t, h.engine.Shutdown())
}

func TestRunBeforeInitialize(t *testing.T) {
	h := newHarness(t, "")
	assert.Error(t, h.engine.Run())
}

func TestEscapeQuits(t *testing.T) {
	h := newHarness(t, "")
	h.platform.maxPumps = 100
	h.platform.onPump = func(n int) {
		if n == 2 {
			core.InputProcessKey(core.KEY_ESCAPE, true)
		}
	}
	require.NoError(t, h.engine.Initialize())
	require.NoError(t, h.engine.Run())
	assert.Equal(t, 1, h.renders)
}

func TestQuitFromAnotherGoroutine(t *testing.T) {
	h := newHarness(t, "")
	h.platform.maxPumps = 100
	require.NoError(t, h.engine.Initialize())

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.engine.Quit()
	}()
	<-done
	require.NoError(t, h.engine.Run())
	assert.Zero(t, h.renders)
}

func TestMinimizeSuspendsTheLoop(t *testing.T) {
	h := newHarness(t, "")
	h.platform.maxPumps = 6
	resize := func(w, hgt uint32) {
		core.EventFire(core.EventContext{Type: core.EVENT_CODE_RESIZED, Data: &core.SystemEvent{WindowWidth: w, WindowHeight: hgt}})
	}
	h.platform.onPump = func(n int) {
		switch n {
		case 2:
			resize(0, 0)
		case 4:
			resize(1024, 768)
		}
	}
	require.NoError(t, h.engine.Initialize())
	require.NoError(t, h.engine.Run())

	// pumps 2 and 3 are spent waiting
	assert.Equal(t, 2, h.platform.waits)
	assert.Equal(t, 4, h.renders)
	assert.Equal(t, [][2]uint32{{800, 600}, {1024, 768}}, h.resizes)
	assert.Equal(t, hal.Extent{Width: 1024, Height: 768}, h.engine.Renderer().Frames().Swapchain().Extent)
	w, hgt := h.engine.GetFramebufferSize()
	assert.Equal(t, uint32(1024), w)
	assert.Equal(t, uint32(768), hgt)
}

func TestGameErrorsStopTheLoop(t *testing.T) {
	h := newHarness(t, "")
	h.platform.maxPumps = 100
	boom := errors.New("boom")
	h.engine.gameInstance.FnUpdate = func(float64) error { return boom }
	require.NoError(t, h.engine.Initialize())
	assert.ErrorIs(t, h.engine.Run(), boom)
}

func TestDeviceFailureAbortsInitialize(t *testing.T) {
	h := newHarness(t, "")
	missing := errors.New("no vulkan")
	h.engine.opts.OpenDevice = func(Platform, *core.Config) (hal.Device, error) { return nil, missing }
	assert.ErrorIs(t, h.engine.Initialize(), missing)
	require.NoError(t, h.engine.Shutdown())
	assert.True(t, h.platform.stopped)
}

func TestConfigReloadAppliesLiveSettings(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.engine.Initialize())
	before := h.engine.Renderer().Frames().Swapchain().ID

	cfg := core.DefaultConfig()
	cfg.Renderer.VSync = false
	cfg.Renderer.FramesInFlight = 3
	cfg.Renderer.WorldPath = "deferred"
	assert.True(t, core.EventFire(core.EventContext{Type: core.EVENT_CODE_CONFIG_RELOADED, Data: cfg}))

	got := h.engine.Config()
	assert.False(t, got.Renderer.VSync)
	assert.Equal(t, 3, h.engine.Renderer().Frames().FramesInFlight())
	assert.NotEqual(t, before, h.engine.Renderer().Frames().Swapchain().ID)
	// needs a restart
	assert.Equal(t, "forward", got.Renderer.WorldPath)
	assert.Equal(t, "test", got.Window.Title)
}

func TestConfigFileChangesReachTheLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anima.toml")
	require.NoError(t, os.WriteFile(path, []byte("[renderer]\nframes_in_flight = 2\n"), 0o644))

	h := newHarness(t, path)
	require.NoError(t, h.engine.Initialize())
	require.NotNil(t, h.engine.watcher)

	require.NoError(t, os.WriteFile(path, []byte("[renderer]\nframes_in_flight = 1\n"), 0o644))
	require.Eventually(t, func() bool {
		// the loop dispatches posted events once per pump
		core.EventDispatchPending()
		return h.engine.Config().Renderer.FramesInFlight == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, h.engine.Renderer().Frames().FramesInFlight())
}

func TestBrokenConfigFileFailsNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anima.toml")
	require.NoError(t, os.WriteFile(path, []byte("[renderer]\nframes_in_flight = 0\n"), 0o644))
	_, err := New(&Game{ApplicationConfig: &ApplicationConfig{ConfigPath: path}}, Options{Platform: &fakePlatform{}})
	assert.Error(t, err)

	_, err = New(&Game{}, Options{})
	assert.Error(t, err)
}

func TestJobCallbacksRunInTheLoop(t *testing.T) {
	h := newHarness(t, "")
	// only the job callback ends the loop
	h.platform.maxPumps = 1 << 30
	require.NoError(t, h.engine.Initialize())
	assert.Nil(t, h.ctx.Assets)

	var delivered int
	require.NoError(t, h.ctx.Jobs.Submit(systems.JobTask{
		Name: "answer",
		Run: func() (interface{}, error) {
			return 42, nil
		},
		OnComplete: func(r interface{}) {
			delivered = r.(int)
			h.engine.Quit()
		},
	}))
	require.NoError(t, h.engine.Run())
	assert.Equal(t, 42, delivered)
	assert.Positive(t, h.renders)
}
