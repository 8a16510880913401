package pipeline

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/descriptor"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/haltest"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
)

var spirv = []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 0, 0}

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func shaders(a *resources.Allocator) []*resources.Shader {
	return []*resources.Shader{
		a.CreateShader("", hal.ShaderStageVertex, spirv),
		a.CreateShader("", hal.ShaderStageFragment, spirv),
	}
}

func TestPipelineBindAndPush(t *testing.T) {
	dev := haltest.New()
	a := resources.NewAllocator(dev)
	layout := descriptor.NewLayout(dev, "", []descriptor.Binding{{Slot: 0, Kind: hal.DescriptorUniformBuffer}})

	p := New(dev, Config{
		Label:            "model",
		Shaders:          shaders(a),
		Layouts:          []*descriptor.Layout{layout},
		PushConstantSize: 64,
	})
	cmd := hal.CommandBufferID(3)
	p.Bind(cmd)
	p.BindSets(cmd, 0, 11, 12)
	p.BindSets(cmd, 2)
	p.Push(cmd, make([]byte, 64))

	require.Len(t, dev.CallsOf("BindPipeline"), 1)
	sets := dev.CallsOf("BindDescriptorSets")
	require.Len(t, sets, 1)
	assert.Equal(t, []hal.SetID{11, 12}, sets[0].Sets)
	assert.Len(t, dev.CallsOf("PushConstants")[0].Data, 64)

	err := haltest.CatchFatal(t, func() { p.Push(cmd, make([]byte, 65)) })
	assert.Error(t, err)
}

func TestPipelineFailuresAreFatal(t *testing.T) {
	dev := haltest.New()
	a := resources.NewAllocator(dev)

	dev.FailOn("CreatePipeline", hal.ErrOutOfDeviceMemory)
	err := haltest.CatchFatal(t, func() { New(dev, Config{Shaders: shaders(a)}) })
	assert.ErrorIs(t, err, hal.ErrOutOfDeviceMemory)

	err = haltest.CatchFatal(t, func() { New(dev, Config{}) })
	assert.Error(t, err)

	err = haltest.CatchFatal(t, func() { New(dev, Config{Shaders: shaders(a), PushConstantSize: 256}) })
	assert.Error(t, err)
}
