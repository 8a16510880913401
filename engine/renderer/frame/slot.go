package frame

import (
	"fmt"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/descriptor"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
)

// UniformBinding is the binding of the per-frame uniform buffer in the
// global set.
const UniformBinding = 0

/**
 * @brief Everything one frame in flight owns. A slot is only written after
 * its fence has signaled.
 */
type Slot struct {
	Index int
	Cmd   hal.CommandBufferID
	/** @brief Per-frame matrices, persistently mapped. */
	Uniform *resources.Buffer
	/** @brief Global set referencing Uniform, bound at set 0. */
	Globals        *descriptor.Set
	ImageAcquired  hal.SemaphoreID
	RenderFinished hal.SemaphoreID
	Fence          hal.FenceID

	/** @brief Number of the last frame recorded into this slot. */
	frame uint64
}

func (s *Slot) label() string {
	return fmt.Sprintf("frame slot %d", s.Index)
}

// newUniforms creates the buffer and global set of slot index. They survive a
// change of frames in flight.
func newUniforms(alloc *resources.Allocator, cfg Config, slot *Slot) {
	slot.Uniform = alloc.CreateBuffer(resources.BufferConfig{
		Label:        fmt.Sprintf("frame%d.uniforms", slot.Index),
		InstanceSize: cfg.UniformSize,
		Alignment:    alloc.Limits().MinUniformBufferOffsetAlignment,
		Usage:        hal.BufferUsageUniform,
		Memory:       hal.MemoryHostVisible,
		Persistent:   true,
	})
	slot.Globals = descriptor.NewSet(cfg.GlobalPool, cfg.GlobalLayout, fmt.Sprintf("frame%d.globals", slot.Index)).
		AddBuffer(UniformBinding, slot.Uniform, 0, 0)
	slot.Globals.Build()
}

// newSync creates the command buffer and sync objects of slot. The fence
// starts signaled so the first wait on it returns at once.
func newSync(dev hal.Device, cmd hal.CommandBufferID, slot *Slot) {
	var err error
	slot.Cmd = cmd
	if slot.ImageAcquired, err = dev.CreateSemaphore(); err != nil {
		core.Fatal(err, slot.label())
	}
	if slot.RenderFinished, err = dev.CreateSemaphore(); err != nil {
		core.Fatal(err, slot.label())
	}
	if slot.Fence, err = dev.CreateFence(true); err != nil {
		core.Fatal(err, slot.label())
	}
}

func (s *Slot) destroySync(dev hal.Device) {
	dev.DestroySemaphore(s.ImageAcquired)
	dev.DestroySemaphore(s.RenderFinished)
	dev.DestroyFence(s.Fence)
}

func (s *Slot) destroy(dev hal.Device) {
	s.destroySync(dev)
	s.Uniform.Destroy()
}
