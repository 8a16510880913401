package resources

import (
	"fmt"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

type BufferConfig struct {
	Label string
	// InstanceSize is rounded up to Alignment and multiplied by InstanceCount.
	InstanceSize  uint64
	InstanceCount uint64
	Alignment     uint64
	Usage         hal.BufferUsage
	Memory        hal.MemoryKind
	// Data is uploaded at creation. Device-local buffers go through staging.
	Data []byte
	// Persistent keeps host-visible buffers mapped for their whole life.
	Persistent bool
}

type Buffer struct {
	alloc *Allocator

	id           hal.BufferID
	label        string
	size         uint64
	instanceSize uint64
	usage        hal.BufferUsage
	memory       hal.MemoryKind
	persistent   bool
	mapped       []byte
}

// CreateBuffer allocates a buffer. Device failures are fatal.
func (a *Allocator) CreateBuffer(cfg BufferConfig) *Buffer {
	count := cfg.InstanceCount
	if count == 0 {
		count = 1
	}
	b := &Buffer{
		alloc:        a,
		label:        label("buffer", cfg.Label),
		instanceSize: AlignSize(cfg.InstanceSize, cfg.Alignment),
		usage:        cfg.Usage,
		memory:       cfg.Memory,
		persistent:   cfg.Persistent && cfg.Memory == hal.MemoryHostVisible,
	}
	b.size = b.instanceSize * count
	if b.size == 0 {
		core.Fatal(fmt.Errorf("zero sized buffer"), b.label)
	}

	usage := cfg.Usage
	if cfg.Memory == hal.MemoryDeviceLocal {
		// device-local contents only ever arrive through a staging copy
		usage |= hal.BufferUsageTransferDst
	}
	id, err := a.dev.CreateBuffer(hal.BufferDesc{
		Label:  b.label,
		Size:   b.size,
		Usage:  usage,
		Memory: cfg.Memory,
	})
	if err != nil {
		core.Fatal(fmt.Errorf("create buffer (%d bytes, %s): %w", b.size, cfg.Memory, err), b.label)
	}
	b.id = id

	if b.persistent {
		b.mapped = b.mapMemory()
	}
	if len(cfg.Data) > 0 {
		b.Write(cfg.Data, 0, 0)
	}
	core.LogDebug("buffer %s created: %d bytes %s", b.label, b.size, cfg.Memory)
	return b
}

func (b *Buffer) ID() hal.BufferID {
	return b.id
}

func (b *Buffer) Label() string {
	return b.label
}

func (b *Buffer) Size() uint64 {
	return b.size
}

// InstanceSize is the per-instance stride after alignment.
func (b *Buffer) InstanceSize() uint64 {
	return b.instanceSize
}

func (b *Buffer) Memory() hal.MemoryKind {
	return b.memory
}

// Write copies data into the buffer at offset. Host-visible buffers are written
// through a mapping. Device-local buffers get a staging buffer and a copy that
// is recorded into cmd when one is given, or submitted right away otherwise.
func (b *Buffer) Write(data []byte, offset uint64, cmd hal.CommandBufferID) {
	if len(data) == 0 {
		return
	}
	if offset+uint64(len(data)) > b.size {
		core.Fatal(fmt.Errorf("write of %d bytes at %d overflows %d byte buffer", len(data), offset, b.size), b.label)
	}

	if b.memory == hal.MemoryHostVisible {
		mem := b.mapped
		if mem == nil {
			mem = b.mapMemory()
		}
		copy(mem[offset:], data)
		if !b.persistent {
			b.alloc.dev.UnmapBuffer(b.id)
		}
		return
	}

	staging := b.alloc.CreateBuffer(BufferConfig{
		Label:        b.label + ".staging",
		InstanceSize: uint64(len(data)),
		Usage:        hal.BufferUsageTransferSrc,
		Memory:       hal.MemoryHostVisible,
		Data:         data,
	})
	if cmd != 0 {
		b.alloc.dev.CmdCopyBuffer(cmd, staging.id, b.id, 0, offset, uint64(len(data)))
		// the copy runs later, the staging buffer lives until its frame completes
		b.alloc.retire(staging)
		return
	}
	b.alloc.OneShot(b.label+".upload", func(cmd hal.CommandBufferID) {
		b.alloc.dev.CmdCopyBuffer(cmd, staging.id, b.id, 0, offset, uint64(len(data)))
	})
	staging.Destroy()
}

func (b *Buffer) mapMemory() []byte {
	mem, err := b.alloc.dev.MapBuffer(b.id)
	if err != nil {
		core.Fatal(fmt.Errorf("map buffer: %w", err), b.label)
	}
	return mem
}

func (b *Buffer) Destroy() {
	if b.id == 0 {
		return
	}
	if b.mapped != nil {
		b.alloc.dev.UnmapBuffer(b.id)
		b.mapped = nil
	}
	b.alloc.dev.DestroyBuffer(b.id)
	b.id = 0
}
