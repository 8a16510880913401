package vulkan

import (
	"encoding/binary"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

func TestResultErrorMapsToHalErrors(t *testing.T) {
	cases := []struct {
		result vk.Result
		want   error
	}{
		{vk.Suboptimal, hal.ErrSuboptimal},
		{vk.ErrorOutOfDate, hal.ErrOutOfDate},
		{vk.Timeout, hal.ErrTimeout},
		{vk.ErrorDeviceLost, hal.ErrDeviceLost},
		{vk.ErrorOutOfDeviceMemory, hal.ErrOutOfDeviceMemory},
		{vk.ErrorOutOfPoolMemory, hal.ErrOutOfPoolMemory},
		{vk.ErrorFragmentedPool, hal.ErrOutOfPoolMemory},
		{vk.ErrorFormatNotSupported, hal.ErrUnsupported},
	}
	for _, c := range cases {
		err := resultError("op", c.result)
		assert.ErrorIs(t, err, c.want, VulkanResultString(c.result))
		assert.Contains(t, err.Error(), "op failed with")
	}
	assert.NoError(t, resultError("op", vk.Success))
	assert.Error(t, resultError("op", vk.ErrorInitializationFailed))
}

func TestHandleTableNeverReusesIds(t *testing.T) {
	table := newHandleTable[string]()
	a := table.put("a")
	b := table.put("b")
	assert.Equal(t, uint64(1), a)
	assert.Equal(t, uint64(2), b)

	v, ok := table.take(a)
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = table.get(a)
	assert.False(t, ok)
	assert.Equal(t, uint64(3), table.put("c"))

	table.removeIf(func(s string) bool { return s == "b" })
	assert.Equal(t, 1, table.len())

	var drained []string
	table.drain(func(s string) { drained = append(drained, s) })
	assert.Equal(t, []string{"c"}, drained)
	assert.Zero(t, table.len())
}

func TestSpirvWordsAreLittleEndian(t *testing.T) {
	code := binary.LittleEndian.AppendUint32(nil, 0x07230203)
	code = binary.LittleEndian.AppendUint32(code, 42)
	assert.Equal(t, []uint32{0x07230203, 42}, spirvWords(code))
}

func TestSurfaceFormatPrefersBGRA(t *testing.T) {
	formats := []vk.SurfaceFormat{
		{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
	}
	_, f, ok := surfaceFormat(formats)
	assert.True(t, ok)
	assert.Equal(t, hal.FormatBGRA8Unorm, f)

	_, f, ok = surfaceFormat(formats[:1])
	assert.True(t, ok)
	assert.Equal(t, hal.FormatRGBA8Unorm, f)

	_, _, ok = surfaceFormat([]vk.SurfaceFormat{{Format: vk.FormatR5g6b5UnormPack16}})
	assert.False(t, ok)
}

func TestConversions(t *testing.T) {
	assert.Equal(t, vk.FormatR32g32b32Sfloat, vkFormat(hal.FormatFloat32x3))
	assert.Equal(t, hal.FormatRGBA32Float, halFormat(vk.FormatR32g32b32a32Sfloat))
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), vkStage(0))
	assert.Equal(t, uint64(1<<63-1), timeoutNanos(hal.WaitForever)>>1)
	assert.Equal(t, uint32(5), clamp(9, 1, 5))

	mode, ok := halPresentMode(vk.PresentModeMailbox)
	assert.True(t, ok)
	assert.Equal(t, hal.PresentModeMailbox, mode)
}

func TestSpecializationPacksConstants(t *testing.T) {
	spec, data := vkSpecialization(nil)
	assert.Nil(t, spec)
	assert.Nil(t, data)

	spec, data = vkSpecialization([]hal.SpecConstant{{ID: 0, Value: 101}, {ID: 3, Value: 7}})
	if assert.NotNil(t, spec) {
		assert.Equal(t, uint32(2), spec.MapEntryCount)
		assert.Equal(t, uint(8), spec.DataSize)
		assert.Equal(t, uint32(3), spec.PMapEntries[1].ConstantID)
		assert.Equal(t, uint32(4), spec.PMapEntries[1].Offset)
	}
	assert.Equal(t, uint32(101), binary.LittleEndian.Uint32(data))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(data[4:]))
}

func TestDevicesWithoutTextureIndexingAreRejected(t *testing.T) {
	props := vk.PhysicalDeviceProperties{ApiVersion: uint32(vk.MakeVersion(1, 3, 0))}
	features := vk.PhysicalDeviceFeatures{ShaderSampledImageArrayDynamicIndexing: vk.True}
	assert.NoError(t, checkFeatures(&props, &features))

	old := vk.PhysicalDeviceProperties{ApiVersion: uint32(vk.MakeVersion(1, 1, 0))}
	assert.ErrorIs(t, checkFeatures(&old, &features), hal.ErrUnsupported)

	features.ShaderSampledImageArrayDynamicIndexing = vk.False
	assert.ErrorIs(t, checkFeatures(&props, &features), hal.ErrUnsupported)
}
