package resources

import (
	"image"
	"image/color"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/haltest"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func TestAlignSize(t *testing.T) {
	assert.Equal(t, uint64(256), AlignSize(64, 256))
	assert.Equal(t, uint64(512), AlignSize(257, 256))
	assert.Equal(t, uint64(256), AlignSize(256, 256))
	assert.Equal(t, uint64(13), AlignSize(13, 0))
	assert.Equal(t, uint64(13), AlignSize(13, 1))
}

func TestCreateBufferAlignedInstances(t *testing.T) {
	dev := haltest.New()
	a := NewAllocator(dev)

	b := a.CreateBuffer(BufferConfig{
		Label:         "uniforms",
		InstanceSize:  192,
		InstanceCount: 3,
		Alignment:     dev.Limits().MinUniformBufferOffsetAlignment,
		Usage:         hal.BufferUsageUniform,
		Memory:        hal.MemoryHostVisible,
	})
	assert.Equal(t, uint64(256), b.InstanceSize())
	assert.Equal(t, uint64(768), b.Size())
	assert.Equal(t, "uniforms", b.Label())
}

func TestDeviceLocalInitialDataGoesThroughStaging(t *testing.T) {
	dev := haltest.New()
	a := NewAllocator(dev)
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	b := a.CreateBuffer(BufferConfig{
		InstanceSize: uint64(len(data)),
		Usage:        hal.BufferUsageVertex,
		Memory:       hal.MemoryDeviceLocal,
		Data:         data,
	})

	assert.Equal(t, 1, dev.OneShotSubmits)
	require.Len(t, dev.CallsOf("CopyBuffer"), 1)
	// staging buffer is gone, only the target remains
	require.Len(t, dev.Buffers, 1)
	stored := dev.Buffers[b.ID()]
	assert.Equal(t, data, stored.Data)
	assert.NotZero(t, stored.Desc.Usage&hal.BufferUsageTransferDst)
	assert.Contains(t, b.Label(), "buffer-")
}

func TestHostVisibleWriteUnmapsUnlessPersistent(t *testing.T) {
	dev := haltest.New()
	a := NewAllocator(dev)

	b := a.CreateBuffer(BufferConfig{InstanceSize: 16, Memory: hal.MemoryHostVisible})
	b.Write([]byte{9, 9}, 2, 0)
	assert.Equal(t, []byte{0, 0, 9, 9}, dev.Buffers[b.ID()].Data[:4])
	assert.False(t, dev.Buffers[b.ID()].Mapped)
	assert.Zero(t, dev.OneShotSubmits)

	p := a.CreateBuffer(BufferConfig{InstanceSize: 16, Memory: hal.MemoryHostVisible, Persistent: true})
	p.Write([]byte{1}, 0, 0)
	assert.True(t, dev.Buffers[p.ID()].Mapped)

	p.Destroy()
	p.Destroy()
	assert.NotContains(t, dev.Buffers, p.ID())
}

func TestRecordedWriteRetiresStagingUntilFrameCompletes(t *testing.T) {
	dev := haltest.New()
	a := NewAllocator(dev)
	b := a.CreateBuffer(BufferConfig{InstanceSize: 64, Memory: hal.MemoryDeviceLocal})

	a.SetFrame(5)
	b.Write([]byte{1, 2, 3, 4}, 8, hal.CommandBufferID(99))

	copies := dev.CallsOf("CopyBuffer")
	require.Len(t, copies, 1)
	assert.Equal(t, hal.CommandBufferID(99), copies[0].Cmd)
	assert.Zero(t, dev.OneShotSubmits)
	assert.Equal(t, 1, a.Pending())

	assert.Zero(t, a.Collect(4))
	assert.Equal(t, 1, a.Collect(5))
	assert.Zero(t, a.Pending())
	assert.Len(t, dev.Buffers, 1)
}

func TestWriteOutOfBoundsIsFatal(t *testing.T) {
	dev := haltest.New()
	a := NewAllocator(dev)
	b := a.CreateBuffer(BufferConfig{InstanceSize: 4, Memory: hal.MemoryHostVisible})

	err := haltest.CatchFatal(t, func() {
		b.Write([]byte{1, 2, 3}, 2, 0)
	})
	assert.Error(t, err)
}

func TestCreateBufferFailureIsFatal(t *testing.T) {
	dev := haltest.New()
	a := NewAllocator(dev)
	dev.FailOn("CreateBuffer", hal.ErrOutOfDeviceMemory)

	err := haltest.CatchFatal(t, func() {
		a.CreateBuffer(BufferConfig{Label: "big", InstanceSize: 1 << 20, Memory: hal.MemoryDeviceLocal})
	})
	assert.ErrorIs(t, err, hal.ErrOutOfDeviceMemory)
}

func TestImageTransitionDerivesMasksFromTrackedLayout(t *testing.T) {
	dev := haltest.New()
	a := NewAllocator(dev)
	img := a.CreateImage(ImageConfig{Width: 4, Height: 4, Format: hal.FormatRGBA8Unorm, Usage: hal.ImageUsageStorage})
	cmd := hal.CommandBufferID(42)

	img.Transition(hal.LayoutTransferDst, cmd)
	img.Transition(hal.LayoutShaderReadOnly, cmd)
	img.Transition(hal.LayoutShaderReadOnly, cmd)
	img.Transition(hal.LayoutGeneral, cmd)

	barriers := dev.CallsOf("ImageBarrier")
	require.Len(t, barriers, 3)

	first := barriers[0].Barrier
	assert.Equal(t, hal.LayoutUndefined, first.OldLayout)
	assert.Equal(t, hal.AccessNone, first.SrcAccess)
	assert.Equal(t, hal.StageTopOfPipe, first.SrcStage)
	assert.Equal(t, hal.AccessTransferWrite, first.DstAccess)
	assert.Equal(t, hal.StageTransfer, first.DstStage)

	second := barriers[1].Barrier
	assert.Equal(t, hal.AccessTransferWrite, second.SrcAccess)
	assert.Equal(t, hal.AccessShaderRead, second.DstAccess)
	assert.Equal(t, hal.StageFragmentShader, second.DstStage)

	third := barriers[2].Barrier
	assert.Equal(t, hal.LayoutShaderReadOnly, third.OldLayout)
	assert.Equal(t, hal.AccessShaderRead|hal.AccessShaderWrite, third.DstAccess)
	assert.Equal(t, hal.LayoutGeneral, img.Layout())
}

func TestTransitionToUndefinedIsFatal(t *testing.T) {
	dev := haltest.New()
	a := NewAllocator(dev)
	img := a.CreateImage(ImageConfig{Width: 1, Height: 1, Format: hal.FormatRGBA8Unorm})
	img.Transition(hal.LayoutGeneral, 7)

	err := haltest.CatchFatal(t, func() {
		img.Transition(hal.LayoutUndefined, 7)
	})
	assert.Error(t, err)
}

func TestCreateImageWithPixelsEndsShaderReadable(t *testing.T) {
	dev := haltest.New()
	a := NewAllocator(dev)
	pixels := make([]byte, 2*2*4)

	img := a.CreateImage(ImageConfig{Label: "checker", Width: 2, Height: 2, Format: hal.FormatRGBA8Unorm, Pixels: pixels})

	assert.Equal(t, hal.LayoutShaderReadOnly, img.Layout())
	assert.Len(t, dev.CallsOf("CopyBufferToImage"), 1)
	assert.Len(t, dev.CallsOf("ImageBarrier"), 2)
	assert.Equal(t, 1, dev.OneShotSubmits)
	assert.Empty(t, dev.Buffers)
	assert.NotZero(t, dev.Images[img.ID()].Desc.Usage&hal.ImageUsageSampled)
}

func TestWrappedImagesAreNotDestroyed(t *testing.T) {
	dev := haltest.New()
	a := NewAllocator(dev)
	id, err := dev.CreateImage(hal.ImageDesc{Width: 8, Height: 8})
	require.NoError(t, err)

	img := a.WrapImage(id, "swapchain-0", 8, 8, hal.FormatBGRA8Unorm)
	img.Destroy()
	assert.Contains(t, dev.Images, id)
}

func TestValidateSpirv(t *testing.T) {
	valid := []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 0, 0}
	assert.NoError(t, ValidateSpirv(valid))
	assert.ErrorIs(t, ValidateSpirv(valid[:6]), ErrInvalidSpirv)
	assert.ErrorIs(t, ValidateSpirv([]byte{1, 2, 3, 4}), ErrInvalidSpirv)

	dev := haltest.New()
	a := NewAllocator(dev)
	s := a.CreateShader("", hal.ShaderStageFragment, valid)
	assert.Contains(t, s.Label(), "shader.frag-")

	err := haltest.CatchFatal(t, func() {
		a.CreateShader("broken", hal.ShaderStageVertex, []byte{0, 0, 0, 0})
	})
	assert.ErrorIs(t, err, ErrInvalidSpirv)
}

func TestTexturesHaveDistinctIdentity(t *testing.T) {
	dev := haltest.New()
	a := NewAllocator(dev)
	sampler := a.CreateSampler(SamplerConfig{Label: "default"})
	pixels := make([]byte, 4)

	t1 := a.CreateTexture("a", pixels, 1, 1, hal.FormatRGBA8Unorm, sampler)
	t2 := a.CreateTexture("b", pixels, 1, 1, hal.FormatRGBA8Unorm, sampler)
	assert.NotEqual(t, t1.ID, t2.ID)
	assert.Same(t, t1.Sampler, t2.Sampler)
}

func TestCreateMeshUploadsBothBuffers(t *testing.T) {
	dev := haltest.New()
	a := NewAllocator(dev)

	m := a.CreateMesh("tri", make([]byte, 3*12), 12, []uint32{0, 1, 2})
	assert.Equal(t, uint32(3), m.VertexCount)
	assert.Equal(t, uint32(3), m.IndexCount)
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0}, dev.Buffers[m.Indices.ID()].Data)
	assert.Equal(t, 2, dev.OneShotSubmits)
}

func TestTextureFromImageDownscales(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 100, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 100; x++ {
			src.Set(x, y, color.NRGBA{R: 255, A: 255})
		}
	}

	pixels, w, h := TextureFromImage(src, 20)
	assert.Equal(t, uint32(20), w)
	assert.Equal(t, uint32(10), h)
	require.Len(t, pixels, 20*10*4)
	assert.Equal(t, byte(255), pixels[0])
	assert.Equal(t, byte(255), pixels[3])

	pixels, w, h = TextureFromImage(src, 0)
	assert.Equal(t, uint32(100), w)
	assert.Equal(t, uint32(50), h)
	assert.Len(t, pixels, 100*50*4)
}
