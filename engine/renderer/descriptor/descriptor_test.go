package descriptor

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/haltest"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func uniformLayout(dev Device) *Layout {
	return NewLayout(dev, "global", []Binding{
		{Slot: 0, Stages: hal.ShaderStageVertex, Kind: hal.DescriptorUniformBuffer},
	})
}

func TestNewLayoutDefaultsCount(t *testing.T) {
	dev := haltest.New()
	l := NewLayout(dev, "", []Binding{
		{Slot: 0, Stages: hal.ShaderStageVertex, Kind: hal.DescriptorUniformBuffer},
		{Slot: 1, Stages: hal.ShaderStageFragment, Kind: hal.DescriptorCombinedImageSampler, Count: 16},
	})

	declared := dev.Layouts[l.ID()]
	require.Len(t, declared, 2)
	assert.Equal(t, uint32(1), declared[0].Count)
	assert.Equal(t, uint32(16), declared[1].Count)
	assert.Contains(t, l.Label(), "layout-")

	sizes := l.PoolSizes(4)
	assert.ElementsMatch(t, []hal.PoolSize{
		{Kind: hal.DescriptorUniformBuffer, Count: 4},
		{Kind: hal.DescriptorCombinedImageSampler, Count: 64},
	}, sizes)
}

func TestUnsupportedKindsAreFatal(t *testing.T) {
	dev := haltest.New()

	err := haltest.CatchFatal(t, func() {
		NewLayout(dev, "bogus", []Binding{{Slot: 0, Kind: hal.DescriptorKind(42)}})
	})
	assert.Error(t, err)

	err = haltest.CatchFatal(t, func() {
		NewLayout(dev, "rt", []Binding{{Slot: 0, Kind: hal.DescriptorAccelerationStructure}})
	})
	assert.ErrorIs(t, err, hal.ErrUnsupported)

	limits := dev.Limits()
	limits.AccelerationStructures = true
	dev.SetLimits(limits)
	assert.NotPanics(t, func() {
		NewLayout(dev, "rt", []Binding{{Slot: 0, Kind: hal.DescriptorAccelerationStructure}})
	})

	err = haltest.CatchFatal(t, func() {
		NewLayout(dev, "dup", []Binding{
			{Slot: 3, Kind: hal.DescriptorUniformBuffer},
			{Slot: 3, Kind: hal.DescriptorStorageBuffer},
		})
	})
	assert.Error(t, err)
}

func TestPoolGrowsOnceWhenExhausted(t *testing.T) {
	dev := haltest.New()
	layout := uniformLayout(dev)
	pool := NewPool(dev, PoolConfig{Label: "frames", MaxSets: 3, Sizes: layout.PoolSizes(3)})

	seen := map[hal.SetID]bool{}
	for i := 0; i < 3; i++ {
		seen[pool.Allocate(layout)] = true
	}
	assert.Equal(t, 1, pool.Pools())
	assert.Equal(t, 1, dev.PoolsCreated)

	seen[pool.Allocate(layout)] = true
	assert.Equal(t, 2, pool.Pools())
	assert.Equal(t, 2, dev.PoolsCreated)
	assert.Len(t, seen, 4)
}

func TestSecondConsecutivePoolFailureIsFatal(t *testing.T) {
	dev := haltest.New()
	layout := uniformLayout(dev)
	pool := NewPool(dev, PoolConfig{Label: "frames", MaxSets: 8})

	dev.ExhaustPools(1)
	assert.NotZero(t, pool.Allocate(layout))
	assert.Equal(t, 2, pool.Pools())

	dev.ExhaustPools(2)
	err := haltest.CatchFatal(t, func() {
		pool.Allocate(layout)
	})
	assert.ErrorIs(t, err, hal.ErrOutOfPoolMemory)
	// exactly one more pool, no third attempt
	assert.Equal(t, 3, pool.Pools())
}

func TestPoolAllocationErrorsOtherThanExhaustionAreFatal(t *testing.T) {
	dev := haltest.New()
	dev.FailOn("CreateDescriptorPool", hal.ErrOutOfDeviceMemory)

	err := haltest.CatchFatal(t, func() {
		NewPool(dev, PoolConfig{MaxSets: 1})
	})
	assert.ErrorIs(t, err, hal.ErrOutOfDeviceMemory)
}

func newTexture(t *testing.T, a *resources.Allocator, sampler *resources.Sampler) *resources.Texture {
	t.Helper()
	return a.CreateTexture("", make([]byte, 4), 1, 1, hal.FormatRGBA8Unorm, sampler)
}

func TestSetBuildWritesEveryBindingOnce(t *testing.T) {
	dev := haltest.New()
	a := resources.NewAllocator(dev)
	sampler := a.CreateSampler(resources.SamplerConfig{})
	dummy := newTexture(t, a, sampler)
	tex := newTexture(t, a, sampler)
	ubo := a.CreateBuffer(resources.BufferConfig{InstanceSize: 128, Usage: hal.BufferUsageUniform, Memory: hal.MemoryHostVisible})

	layout := NewLayout(dev, "material", []Binding{
		{Slot: 0, Stages: hal.ShaderStageVertex, Kind: hal.DescriptorUniformBuffer},
		{Slot: 1, Stages: hal.ShaderStageFragment, Kind: hal.DescriptorCombinedImageSampler, Count: 4},
	})
	pool := NewPool(dev, PoolConfig{MaxSets: 2, Sizes: layout.PoolSizes(2)})

	set := NewSet(pool, layout, "material.0").SetFallback(dummy)
	set.AddBuffer(0, ubo, 0, 0).AddTexture(1, tex)
	assert.True(t, set.Dirty())
	set.Build()
	assert.False(t, set.Dirty())

	require.Len(t, dev.DescriptorWrites, 1)
	writes := dev.DescriptorWrites[0]
	require.Len(t, writes, 5)
	assert.Equal(t, ubo.ID(), writes[0].Buffer)
	assert.Equal(t, uint64(128), writes[0].Range)
	assert.Equal(t, tex.Image.ID(), writes[1].Image)
	for _, w := range writes[2:] {
		assert.Equal(t, dummy.Image.ID(), w.Image)
		assert.Equal(t, hal.LayoutShaderReadOnly, w.Layout)
	}

	set.UpdateTexture(1, 3, tex).Build()
	assert.Equal(t, tex.Image.ID(), dev.DescriptorWrites[1][4].Image)

	set.Reset(1).Build()
	assert.Equal(t, dummy.Image.ID(), dev.DescriptorWrites[2][1].Image)
}

func TestSetWithoutFallbackSkipsEmptyElements(t *testing.T) {
	dev := haltest.New()
	layout := NewLayout(dev, "", []Binding{
		{Slot: 0, Kind: hal.DescriptorUniformBuffer},
		{Slot: 1, Kind: hal.DescriptorCombinedImageSampler, Count: 2},
	})
	pool := NewPool(dev, PoolConfig{MaxSets: 1})

	NewSet(pool, layout, "").Build()
	assert.Empty(t, dev.DescriptorWrites)
}

func TestSetValidation(t *testing.T) {
	if !validateWrites {
		t.Skip("write validation is compiled out")
	}
	dev := haltest.New()
	a := resources.NewAllocator(dev)
	sampler := a.CreateSampler(resources.SamplerConfig{})
	tex := newTexture(t, a, sampler)
	ubo := a.CreateBuffer(resources.BufferConfig{InstanceSize: 64, Memory: hal.MemoryHostVisible})

	layout := NewLayout(dev, "", []Binding{
		{Slot: 0, Kind: hal.DescriptorUniformBuffer},
		{Slot: 1, Kind: hal.DescriptorCombinedImageSampler, Count: 1},
	})
	pool := NewPool(dev, PoolConfig{MaxSets: 4})

	cases := map[string]func(s *Set){
		"unknown slot":    func(s *Set) { s.AddBuffer(7, ubo, 0, 0) },
		"kind mismatch":   func(s *Set) { s.AddTexture(0, tex) },
		"buffer in image": func(s *Set) { s.AddBuffer(1, ubo, 0, 0) },
		"count exceeded":  func(s *Set) { s.AddTexture(1, tex).AddTexture(1, tex) },
		"update past end": func(s *Set) { s.UpdateTexture(1, 1, tex) },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			set := NewSet(pool, layout, name)
			err := haltest.CatchFatal(t, func() { fn(set) })
			assert.Error(t, err)
		})
	}
}
