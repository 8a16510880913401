package core

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2, cfg.Renderer.FramesInFlight)
	assert.Equal(t, time.Second, cfg.Renderer.FenceTimeout.Duration)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anima.toml")
	writeConfig(t, path, `
[renderer]
vsync = false
fence_timeout = "250ms"
world_path = "deferred"

[batch]
vertex_limit = 1030
max_textures = 999
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.Renderer.VSync)
	assert.Equal(t, 250*time.Millisecond, cfg.Renderer.FenceTimeout.Duration)
	assert.Equal(t, "deferred", cfg.Renderer.WorldPath)
	// rounded down to whole quads
	assert.Equal(t, 1028, cfg.Batch.VertexLimit)
	assert.Equal(t, TextureLimit, cfg.Batch.MaxTextures)
	// untouched keys keep their defaults
	assert.Equal(t, "Anima", cfg.Window.Title)
	assert.Equal(t, 2, cfg.Renderer.FramesInFlight)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"frames":  "[renderer]\nframes_in_flight = 9\n",
		"world":   "[renderer]\nworld_path = \"raytraced\"\n",
		"vertex":  "[batch]\nvertex_limit = 2\n",
		"format":  "[log]\nformat = \"xml\"\n",
		"garbage": "this is = = not toml",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name+".toml")
		writeConfig(t, path, body)
		_, err := LoadConfig(path)
		assert.Error(t, err, name)
	}
	_, err := LoadConfig(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestSaveConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anima.toml")
	cfg := DefaultConfig()
	cfg.Renderer.FramesInFlight = 3
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

type reloads struct {
	mu   sync.Mutex
	cfgs []*Config
}

func (r *reloads) add(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfgs = append(r.cfgs, cfg)
}

func (r *reloads) last() *Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cfgs) == 0 {
		return nil
	}
	return r.cfgs[len(r.cfgs)-1]
}

func (r *reloads) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cfgs)
}

func TestConfigWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "anima.toml")
	writeConfig(t, path, "[renderer]\nvsync = true\n")

	got := &reloads{}
	w, err := WatchConfig(path, got.add)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	// other files in the directory are ignored
	writeConfig(t, filepath.Join(dir, "other.toml"), "[renderer]\nvsync = false\n")
	writeConfig(t, path, "[renderer]\nvsync = false\nframes_in_flight = 3\n")

	require.Eventually(t, func() bool { return got.last() != nil }, 2*time.Second, 10*time.Millisecond)
	cfg := got.last()
	assert.False(t, cfg.Renderer.VSync)
	assert.Equal(t, 3, cfg.Renderer.FramesInFlight)
}

func TestConfigWatcherSkipsBrokenFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anima.toml")
	writeConfig(t, path, "[renderer]\nvsync = true\n")

	got := &reloads{}
	w, err := WatchConfig(path, got.add)
	require.NoError(t, err)

	writeConfig(t, path, "[renderer]\nframes_in_flight = 0\n")
	assert.Never(t, func() bool { return got.count() > 0 }, 4*configReloadDelay, 10*time.Millisecond)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
