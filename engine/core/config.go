package core

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// Hard cap for texture slots in a single batch; the usable count is clamped
	// further by the device sampler limit at startup.
	TextureLimit = 255
	// Upper bound for frames in flight, matches the largest swapchain we ask for.
	MaxFramesInFlight = 3
)

type WindowConfig struct {
	Title  string `toml:"title"`
	X      uint32 `toml:"x"`
	Y      uint32 `toml:"y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type RendererConfig struct {
	FramesInFlight int        `toml:"frames_in_flight"`
	VSync          bool       `toml:"vsync"`
	Validation     bool       `toml:"validation"`
	FenceTimeout   Duration   `toml:"fence_timeout"`
	ClearColor     [4]float32 `toml:"clear_color"`
	// "forward" or "deferred"
	WorldPath string `toml:"world_path"`
}

// AssetsConfig locates the asset tree. Shaders and Textures are relative to Root.
type AssetsConfig struct {
	Root     string `toml:"root"`
	Shaders  string `toml:"shaders"`
	Textures string `toml:"textures"`
	// Watch keeps the asset index and the config file live while running.
	Watch bool `toml:"watch"`
}

type BatchConfig struct {
	// Vertex capacity of a single batch.
	VertexLimit int `toml:"vertex_limit"`
	// Requested texture slots per batch, clamped to TextureLimit and the device.
	MaxTextures int `toml:"max_textures"`
	// 3D geometry under this vertex count is merged into batches.
	SimpleVertexLimit int `toml:"simple_vertex_limit"`
}

type DescriptorConfig struct {
	PoolMaxSets uint32 `toml:"pool_max_sets"`
}

type LogConfig struct {
	Level string `toml:"level"`
	// "text", "json" or "logfmt"
	Format string `toml:"format"`
}

type Config struct {
	Window     WindowConfig     `toml:"window"`
	Renderer   RendererConfig   `toml:"renderer"`
	Batch      BatchConfig      `toml:"batch"`
	Descriptor DescriptorConfig `toml:"descriptor"`
	Assets     AssetsConfig     `toml:"assets"`
	Log        LogConfig        `toml:"log"`
}

// Duration lets durations be written as "500ms" in the config file.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Window: WindowConfig{
			Title:  "Anima",
			X:      100,
			Y:      100,
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererConfig{
			FramesInFlight: 2,
			VSync:          true,
			Validation:     true,
			FenceTimeout:   Duration{time.Second},
			ClearColor:     [4]float32{0.0, 0.0, 0.2, 1.0},
			WorldPath:      "forward",
		},
		Batch: BatchConfig{
			VertexLimit:       4096 * 4,
			MaxTextures:       TextureLimit,
			SimpleVertexLimit: 1024,
		},
		Descriptor: DescriptorConfig{
			PoolMaxSets: 64,
		},
		Assets: AssetsConfig{
			Root:     "assets",
			Shaders:  "shaders",
			Textures: "textures",
			Watch:    true,
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
		},
	}
}

// LoadConfig reads a TOML file on top of the defaults, so a file only needs
// the keys it wants to override.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects values the renderer cannot start with and clamps the ones
// that only need bounding.
func (c *Config) Validate() error {
	if c.Renderer.FramesInFlight < 1 || c.Renderer.FramesInFlight > MaxFramesInFlight {
		return fmt.Errorf("frames_in_flight must be within [1, %d], got %d", MaxFramesInFlight, c.Renderer.FramesInFlight)
	}
	if c.Batch.VertexLimit < 4 {
		return fmt.Errorf("vertex_limit must hold at least one quad, got %d", c.Batch.VertexLimit)
	}
	// keep every batch a whole number of quads
	c.Batch.VertexLimit -= c.Batch.VertexLimit % 4
	if c.Batch.MaxTextures < 1 || c.Batch.MaxTextures > TextureLimit {
		LogWarn("max_textures %d out of range, clamping to %d", c.Batch.MaxTextures, TextureLimit)
		c.Batch.MaxTextures = TextureLimit
	}
	if c.Batch.SimpleVertexLimit <= 0 || c.Batch.SimpleVertexLimit > c.Batch.VertexLimit {
		c.Batch.SimpleVertexLimit = c.Batch.VertexLimit
	}
	if c.Descriptor.PoolMaxSets == 0 {
		c.Descriptor.PoolMaxSets = 64
	}
	if c.Renderer.FenceTimeout.Duration <= 0 {
		c.Renderer.FenceTimeout = Duration{time.Second}
	}
	if c.Assets.Root == "" {
		c.Assets.Root = "."
	}
	switch c.Renderer.WorldPath {
	case "forward", "deferred":
	default:
		return fmt.Errorf("world_path must be forward or deferred, got %q", c.Renderer.WorldPath)
	}
	if _, ok := logFormatters[c.Log.Format]; !ok {
		return fmt.Errorf("log format must be text, json or logfmt, got %q", c.Log.Format)
	}
	return nil
}
