package testbed

import (
	"encoding/binary"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gfx/engine"
	"github.com/spaghettifunk/anima-gfx/engine/assets"
	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/haltest"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gfx/engine/systems"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func newGame(t *testing.T) (*TestGame, *renderer.Renderer, *haltest.Device) {
	t.Helper()
	return newGameWith(t, func(r *renderer.Renderer) *engine.Context {
		return &engine.Context{Renderer: r}
	})
}

func newGameWith(t *testing.T, context func(*renderer.Renderer) *engine.Context) (*TestGame, *renderer.Renderer, *haltest.Device) {
	t.Helper()
	require.True(t, core.EventSystemInitialize())
	require.NoError(t, core.InputInitialize())

	dev := haltest.New()
	r, err := renderer.New(dev, core.DefaultConfig(), renderer.Options{
		Width:  1280,
		Height: 720,
		LoadShader: func(string) ([]byte, error) {
			return binary.LittleEndian.AppendUint32(nil, 0x07230203), nil
		},
	})
	require.NoError(t, err)

	g, err := NewTestGame("")
	require.NoError(t, err)
	require.NoError(t, g.FnInitialize(context(r)))
	require.NoError(t, g.FnOnResize(1280, 720))
	t.Cleanup(func() {
		assert.NoError(t, g.FnShutdown())
		r.Shutdown()
		core.InputShutdown()
		core.EventSystemShutdown()
	})
	return g, r, dev
}

func TestSceneRendersEveryFrame(t *testing.T) {
	g, r, dev := newGame(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, g.FnUpdate(1.0/60))
		packet := &metadata.RenderPacket{}
		require.NoError(t, g.FnRender(packet, 1.0/60))
		assert.Len(t, packet.Models, cubeCount)
		assert.Len(t, packet.Sprites, spriteCount)
		assert.Len(t, packet.Strips, 1)
		require.NoError(t, r.DrawFrame(packet))
	}
	assert.Len(t, dev.Presents, 3)
	assert.Positive(t, r.Draws())
}

func TestSpritesStayOnScreen(t *testing.T) {
	g, _, _ := newGame(t)
	state := g.State.(*gameState)

	for i := 0; i < 600; i++ {
		require.NoError(t, g.FnUpdate(1.0/30))
	}
	for _, s := range state.sprites {
		assert.GreaterOrEqual(t, s.Position.X(), float32(0))
		assert.GreaterOrEqual(t, s.Position.Y(), float32(0))
		assert.LessOrEqual(t, s.Position.X()+s.Size.X(), float32(1280)+1)
		assert.LessOrEqual(t, s.Position.Y()+s.Size.Y(), float32(720)+1)
	}
}

func TestCameraFollowsKeys(t *testing.T) {
	g, r, _ := newGame(t)
	camera := r.World().Camera()
	before := camera.GetPosition()

	require.NoError(t, core.InputProcessKey(core.KEY_W, true))
	require.NoError(t, g.FnUpdate(0.1))
	assert.NotEqual(t, before, camera.GetPosition())
}

func TestVKeyTogglesVSyncOncePerPress(t *testing.T) {
	g, r, _ := newGame(t)
	before := r.Frames().VSync()

	require.NoError(t, core.InputProcessKey(core.KEY_V, true))
	require.NoError(t, g.FnUpdate(1.0/60))
	assert.Equal(t, !before, r.Frames().VSync())

	// still held on the next frame
	require.NoError(t, core.InputUpdate(1.0/60))
	require.NoError(t, g.FnUpdate(1.0/60))
	assert.Equal(t, !before, r.Frames().VSync())
}

func TestWheelZoomsTheCamera(t *testing.T) {
	g, r, _ := newGame(t)
	camera := r.World().Camera()
	before := camera.GetPosition()

	require.NoError(t, core.InputProcessMouseWheel(3))
	require.NoError(t, g.FnUpdate(0))
	moved := camera.GetPosition().Sub(before).Len()
	assert.InDelta(t, 3*zoomStep, moved, 1e-3)
}

func TestCubesSwitchToTheCrateOnceLoaded(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "textures"), 0o755))
	f, err := os.Create(filepath.Join(root, "textures", crateTexture))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 16, 16))))
	require.NoError(t, f.Close())

	am, err := assets.NewAssetManager(core.AssetsConfig{Root: root, Shaders: "shaders", Textures: "textures"})
	require.NoError(t, err)
	require.NoError(t, am.Initialize())
	jobs, err := systems.NewJobSystem(1, 4)
	require.NoError(t, err)
	t.Cleanup(func() {
		jobs.Shutdown()
		am.Shutdown()
	})

	g, _, _ := newGameWith(t, func(r *renderer.Renderer) *engine.Context {
		return &engine.Context{Renderer: r, Assets: am, Jobs: jobs}
	})
	state := g.State.(*gameState)

	require.Eventually(t, func() bool {
		return jobs.Update() == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.NotNil(t, state.crate)

	packet := &metadata.RenderPacket{}
	require.NoError(t, g.FnRender(packet, 1.0/60))
	assert.Same(t, state.crate, packet.Models[0].Textures[0])
}
