package batch

import "github.com/spaghettifunk/anima-gfx/engine/renderer/hal"

// DrawMode is the topology a batch is homogeneous in.
type DrawMode uint8

const (
	// Regular batches hold independent quads and triangles as a triangle list.
	Regular DrawMode = iota
	// Stripped batches hold exactly one triangle strip.
	Stripped
)

func (m DrawMode) String() string {
	if m == Stripped {
		return "stripped"
	}
	return "regular"
}

func (m DrawMode) Topology() hal.Topology {
	if m == Stripped {
		return hal.TopologyTriangleStrip
	}
	return hal.TopologyTriangleList
}

var (
	quadPattern     = [...]uint32{0, 1, 2, 0, 2, 3}
	trianglePattern = [...]uint32{0, 1, 2}
)

// Indices appends the index pattern for a group of n vertices starting at
// vertex base. Regular quads become two triangles, shorter regular groups a
// single triangle over their padded vertices, and strips index every vertex
// in order.
func (m DrawMode) Indices(dst []uint32, base, n uint32) []uint32 {
	if m == Stripped {
		for i := uint32(0); i < n; i++ {
			dst = append(dst, base+i)
		}
		return dst
	}
	pattern := trianglePattern[:]
	if n == 4 {
		pattern = quadPattern[:]
	}
	for _, i := range pattern {
		dst = append(dst, base+i)
	}
	return dst
}
