package resources

import (
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

// Mesh owns device-local vertex and index buffers for geometry that is drawn
// on its own rather than merged into a batch.
type Mesh struct {
	Label       string
	Vertices    *Buffer
	Indices     *Buffer
	VertexCount uint32
	IndexCount  uint32
}

// CreateMesh uploads already encoded vertices and 32-bit indices. stride is the
// byte size of one vertex.
func (a *Allocator) CreateMesh(name string, vertices []byte, stride uint32, indices []uint32) *Mesh {
	m := &Mesh{Label: label("mesh", name)}
	if stride == 0 || len(vertices)%int(stride) != 0 {
		core.Fatal(fmt.Errorf("vertex data of %d bytes is not a multiple of stride %d", len(vertices), stride), m.Label)
	}
	m.VertexCount = uint32(len(vertices)) / stride
	m.IndexCount = uint32(len(indices))

	m.Vertices = a.CreateBuffer(BufferConfig{
		Label:        m.Label + ".vertices",
		InstanceSize: uint64(len(vertices)),
		Usage:        hal.BufferUsageVertex,
		Memory:       hal.MemoryDeviceLocal,
		Data:         vertices,
	})
	if len(indices) > 0 {
		m.Indices = a.CreateBuffer(BufferConfig{
			Label:         m.Label + ".indices",
			InstanceSize:  4,
			InstanceCount: uint64(len(indices)),
			Usage:         hal.BufferUsageIndex,
			Memory:        hal.MemoryDeviceLocal,
			Data:          IndexBytes(nil, indices),
		})
	}
	return m
}

// IndexBytes appends indices as little-endian uint32 to dst.
func IndexBytes(dst []byte, indices []uint32) []byte {
	for _, i := range indices {
		dst = binary.LittleEndian.AppendUint32(dst, i)
	}
	return dst
}

func (m *Mesh) Destroy() {
	m.Vertices.Destroy()
	if m.Indices != nil {
		m.Indices.Destroy()
	}
}
