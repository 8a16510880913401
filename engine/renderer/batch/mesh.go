package batch

import (
	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
)

// Mesh keeps the CPU copy of a mesh next to its device buffers: small meshes
// are merged into batches from the CPU copy, large ones draw from the buffers.
type Mesh struct {
	GPU      *resources.Mesh
	Vertices []Vertex3D
	Indices  []uint32
}

// NewMesh uploads vertices and indices and keeps them for batching. Meshes
// without indices are drawn as a plain triangle list.
func NewMesh(alloc *resources.Allocator, label string, vertices []Vertex3D, indices []uint32) *Mesh {
	if len(indices) == 0 {
		indices = make([]uint32, len(vertices))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	encoded := make([]byte, 0, len(vertices)*Vertex3DSize)
	for _, v := range vertices {
		encoded = v.AppendBytes(encoded)
	}
	return &Mesh{
		GPU:      alloc.CreateMesh(label, encoded, Vertex3DSize, indices),
		Vertices: vertices,
		Indices:  indices,
	}
}

func (m *Mesh) Label() string {
	return m.GPU.Label
}

func (m *Mesh) Destroy() {
	m.GPU.Destroy()
}
