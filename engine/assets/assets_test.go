package assets

import (
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
	"github.com/spaghettifunk/anima-gfx/engine/systems"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func spirv() []byte {
	return binary.LittleEndian.AppendUint32(nil, resources.SpirvMagic)
}

func writeFile(t *testing.T, p string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
}

func writePNG(t *testing.T, p string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	f, err := os.Create(p)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func newManager(t *testing.T, watch bool) (*AssetManager, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "shaders", "sprite.vert.spv"), spirv())
	writeFile(t, filepath.Join(root, "shaders", "broken.frag.spv"), []byte{1, 2, 3})
	writeFile(t, filepath.Join(root, "shaders", "sprite.vert"), []byte("#version 450"))
	writePNG(t, filepath.Join(root, "textures", "crate.png"), 8, 4)

	am, err := NewAssetManager(core.AssetsConfig{Root: root, Shaders: "shaders", Textures: "textures", Watch: watch})
	require.NoError(t, err)
	require.NoError(t, am.Initialize())
	t.Cleanup(func() { am.Shutdown() })
	return am, root
}

func TestIndexSkipsUnknownFiles(t *testing.T) {
	am, _ := newManager(t, false)
	assert.Equal(t, 3, am.Len())

	info, ok := am.Info("shaders/sprite.vert.spv")
	require.True(t, ok)
	assert.Equal(t, "shader", info.Kind.String())

	_, ok = am.Info("shaders/sprite.vert")
	assert.False(t, ok)
}

func TestLoadShader(t *testing.T) {
	am, _ := newManager(t, false)

	code, err := am.LoadShader("sprite.vert")
	require.NoError(t, err)
	assert.Equal(t, spirv(), code)

	_, err = am.LoadShader("broken.frag")
	assert.ErrorIs(t, err, resources.ErrInvalidSpirv)

	_, err = am.LoadShader("missing.frag")
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestLoadImage(t *testing.T) {
	am, _ := newManager(t, false)

	res, err := am.Load("textures/crate.png")
	require.NoError(t, err)
	assert.Equal(t, uint64(8*4*4), res.DataSize)
	require.NoError(t, am.Unload(res))
	assert.Nil(t, res.Data)

	img, err := am.LoadImage("crate.png")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 4), img.Bounds())
}

type changes struct {
	mu     sync.Mutex
	events []core.AssetEvent
}

func (c *changes) seen(p string, removed bool) bool {
	// posted events are delivered on dispatch, like the main loop does
	core.EventDispatchPending()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e.Path == p && e.Removed == removed {
			return true
		}
	}
	return false
}

func TestWatcherFollowsTheDisk(t *testing.T) {
	require.True(t, core.EventSystemInitialize())
	t.Cleanup(func() { core.EventSystemShutdown() })

	got := &changes{}
	core.EventRegister(core.EVENT_CODE_ASSET_CHANGED, func(ctx core.EventContext) bool {
		got.mu.Lock()
		defer got.mu.Unlock()
		got.events = append(got.events, *ctx.Data.(*core.AssetEvent))
		return true
	})

	am, root := newManager(t, true)

	writeFile(t, filepath.Join(root, "shaders", "world.frag.spv"), spirv())
	require.Eventually(t, func() bool { return got.seen("shaders/world.frag.spv", false) }, 2*time.Second, 10*time.Millisecond)
	_, err := am.LoadShader("world.frag")
	require.NoError(t, err)

	// directories created after startup are watched too
	require.NoError(t, os.Mkdir(filepath.Join(root, "textures", "ui"), 0o755))
	require.Eventually(t, func() bool {
		writePNG(t, filepath.Join(root, "textures", "ui", "button.png"), 2, 2)
		return got.seen("textures/ui/button.png", false)
	}, 2*time.Second, 50*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(root, "textures", "crate.png")))
	require.Eventually(t, func() bool { return got.seen("textures/crate.png", true) }, 2*time.Second, 10*time.Millisecond)
	_, err = am.LoadImage("crate.png")
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestShutdownIsIdempotent(t *testing.T) {
	am, _ := newManager(t, true)
	require.NoError(t, am.Shutdown())
	require.NoError(t, am.Shutdown())
}

func TestLoadImageAsyncDeliversOnUpdate(t *testing.T) {
	am, _ := newManager(t, false)
	jobs, err := systems.NewJobSystem(2, 4)
	require.NoError(t, err)
	defer jobs.Shutdown()

	var loaded image.Image
	var failed error
	require.NoError(t, am.LoadImageAsync(jobs, "crate.png", func(img image.Image) { loaded = img }, nil))
	require.NoError(t, am.LoadImageAsync(jobs, "missing.png", nil, func(err error) { failed = err }))

	delivered := 0
	require.Eventually(t, func() bool {
		delivered += jobs.Update()
		return delivered == 2
	}, 2*time.Second, 5*time.Millisecond)

	require.NotNil(t, loaded)
	assert.Equal(t, image.Rect(0, 0, 8, 4), loaded.Bounds())
	assert.ErrorIs(t, failed, ErrAssetNotFound)
}
