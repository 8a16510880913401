package resources

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

// Device is the slice of hal.Device the resource primitives need.
type Device interface {
	hal.ResourceDevice
	hal.CommandDevice
	hal.Recorder
}

type retired struct {
	frame  uint64
	buffer *Buffer
}

// Allocator creates buffers, images, samplers and shader modules, and owns the
// transient command pool used for one-shot staging uploads.
type Allocator struct {
	dev    Device
	limits hal.Limits
	pool   hal.CommandPoolID

	mu      sync.Mutex
	frame   uint64
	retired []retired
}

func NewAllocator(dev Device) *Allocator {
	pool, err := dev.CreateCommandPool("transient")
	if err != nil {
		core.Fatal(err, "transient command pool")
	}
	return &Allocator{
		dev:    dev,
		limits: dev.Limits(),
		pool:   pool,
	}
}

func (a *Allocator) Device() Device {
	return a.dev
}

func (a *Allocator) Limits() hal.Limits {
	return a.limits
}

// AlignSize rounds size up to the next multiple of alignment.
func AlignSize(size, alignment uint64) uint64 {
	if alignment <= 1 {
		return size
	}
	return (size + alignment - 1) / alignment * alignment
}

// label returns l, or a generated "<kind>-xxxxxxxx" label when l is empty so
// every fatal log names the object.
func label(kind, l string) string {
	if l != "" {
		return l
	}
	return fmt.Sprintf("%s-%s", kind, uuid.NewString()[:8])
}

// OneShot records fn into a fresh command buffer, submits it and waits for the
// queue to drain.
func (a *Allocator) OneShot(label string, fn func(cmd hal.CommandBufferID)) {
	cmds, err := a.dev.AllocateCommandBuffers(a.pool, 1)
	if err != nil {
		core.Fatal(err, label)
	}
	cmd := cmds[0]
	defer a.dev.FreeCommandBuffers(a.pool, cmds)

	if err := a.dev.BeginCommandBuffer(cmd, true); err != nil {
		core.Fatal(err, label)
	}
	fn(cmd)
	if err := a.dev.EndCommandBuffer(cmd); err != nil {
		core.Fatal(err, label)
	}
	if err := a.dev.SubmitAndWait(cmd); err != nil {
		core.Fatal(err, label)
	}
}

// SetFrame tags staging buffers retired from now on with frame.
func (a *Allocator) SetFrame(frame uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frame = frame
}

func (a *Allocator) retire(b *Buffer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.retired = append(a.retired, retired{frame: a.frame, buffer: b})
}

// Collect destroys staging buffers retired by frames up to and including
// completed, whose command buffers are known to have finished.
func (a *Allocator) Collect(completed uint64) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	kept := a.retired[:0]
	freed := 0
	for _, r := range a.retired {
		if r.frame <= completed {
			r.buffer.Destroy()
			freed++
			continue
		}
		kept = append(kept, r)
	}
	a.retired = kept
	return freed
}

// Pending reports how many retired staging buffers are still alive.
func (a *Allocator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.retired)
}

func (a *Allocator) Destroy() {
	a.mu.Lock()
	for _, r := range a.retired {
		r.buffer.Destroy()
	}
	a.retired = nil
	a.mu.Unlock()
	a.dev.DestroyCommandPool(a.pool)
}
