package metadata

import (
	"fmt"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
)

/**
 * @brief Device-derived values and shared objects every renderer component
 * needs. Built once after the device exists and handed to each constructor.
 */
type GraphicsContext struct {
	Device    hal.Device
	Allocator *resources.Allocator
	Config    *core.Config
	Limits    hal.Limits
	/** @brief Usable texture slots per batch, at most core.TextureLimit. */
	MaxTextures uint32
	/** @brief Vertex capacity of a batch, a multiple of 4. */
	VertexLimit uint32
	/** @brief 3D geometry under this many vertices is merged into batches. */
	SimpleVertexLimit uint32
	/** @brief Sampler used by every texture that does not bring its own. */
	DefaultSampler *resources.Sampler
	/** @brief 1x1 white texture bound to unused sampler array elements. */
	DummyTexture *resources.Texture
	/** @brief Mesh handles given out by the renderer. */
	Meshes *core.IdentifierPool
}

// MaxTexturesFor clamps the requested texture slot count by the static limit
// and the device sampler limit. One sampler is kept for the dummy slot 0.
func MaxTexturesFor(requested int, limits hal.Limits) uint32 {
	n := uint32(core.TextureLimit)
	if requested > 0 && uint32(requested) < n {
		n = uint32(requested)
	}
	if limits.MaxPerStageSamplers > 1 && limits.MaxPerStageSamplers-1 < n {
		n = limits.MaxPerStageSamplers - 1
	}
	return n
}

func NewGraphicsContext(dev hal.Device, cfg *core.Config) *GraphicsContext {
	limits := dev.Limits()
	if limits.MaxPerStageSamplers < 2 {
		core.Fatal(fmt.Errorf("device exposes %d samplers per stage, need at least 2", limits.MaxPerStageSamplers), "graphics context")
	}

	alloc := resources.NewAllocator(dev)
	ctx := &GraphicsContext{
		Device:            dev,
		Allocator:         alloc,
		Config:            cfg,
		Limits:            limits,
		MaxTextures:       MaxTexturesFor(cfg.Batch.MaxTextures, limits),
		VertexLimit:       uint32(cfg.Batch.VertexLimit),
		SimpleVertexLimit: uint32(cfg.Batch.SimpleVertexLimit),
		Meshes:            core.NewIdentifierPool(64),
	}
	ctx.DefaultSampler = alloc.CreateSampler(resources.SamplerConfig{
		Label:       "default",
		MagFilter:   hal.FilterLinear,
		MinFilter:   hal.FilterLinear,
		AddressMode: hal.AddressRepeat,
		Anisotropy:  true,
	})
	ctx.DummyTexture = alloc.CreateTexture("dummy", []byte{255, 255, 255, 255}, 1, 1, hal.FormatRGBA8Unorm, ctx.DefaultSampler)

	core.LogInfo("graphics context: %d texture slots per batch, %d vertices per batch", ctx.MaxTextures, ctx.VertexLimit)
	return ctx
}

func (g *GraphicsContext) Destroy() {
	g.DummyTexture.Destroy()
	g.DefaultSampler.Destroy()
	g.Allocator.Destroy()
}
