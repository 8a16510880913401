package math

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/batch"
)

// GenerateNormals writes a face normal into the three vertices of every
// triangle. Shared vertices end up with the normal of the last triangle.
func GenerateNormals(vertices []batch.Vertex3D, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]

		edge1 := vertices[i1].Position.Sub(vertices[i0].Position)
		edge2 := vertices[i2].Position.Sub(vertices[i0].Position)

		// NOTE: This just generates a face normal. Smoothing out should be done in a separate pass if desired.
		normal := edge1.Cross(edge2).Normalize()
		vertices[i0].Normal = normal
		vertices[i1].Normal = normal
		vertices[i2].Normal = normal
	}
}

// DeduplicateVertices merges identical vertices and rewrites indices to
// point at the survivors. indices is updated in place.
func DeduplicateVertices(vertices []batch.Vertex3D, indices []uint32) []batch.Vertex3D {
	unique := make([]batch.Vertex3D, 0, len(vertices))
	seen := make(map[batch.Vertex3D]uint32, len(vertices))
	remap := make([]uint32, len(vertices))

	for v, vert := range vertices {
		if u, ok := seen[vert]; ok {
			remap[v] = u
			continue
		}
		seen[vert] = uint32(len(unique))
		remap[v] = uint32(len(unique))
		unique = append(unique, vert)
	}
	for i, idx := range indices {
		indices[i] = remap[idx]
	}

	core.LogDebug("deduplicate vertices: removed %d vertices, orig/now %d/%d", len(vertices)-len(unique), len(vertices), len(unique))
	return unique
}

// GenerateCube builds a cube centered on the origin with 4 vertices per face
// so every face keeps its own normal and UVs. tileX and tileY repeat the
// texture across each face.
func GenerateCube(width, height, depth, tileX, tileY float32) ([]batch.Vertex3D, []uint32) {
	if width == 0 {
		core.LogWarn("Width must be nonzero. Defaulting to one.")
		width = 1.0
	}
	if height == 0 {
		core.LogWarn("Height must be nonzero. Defaulting to one.")
		height = 1.0
	}
	if depth == 0 {
		core.LogWarn("Depth must be nonzero. Defaulting to one.")
		depth = 1.0
	}
	if tileX == 0 {
		tileX = 1.0
	}
	if tileY == 0 {
		tileY = 1.0
	}

	minX, minY, minZ := -width*0.5, -height*0.5, -depth*0.5
	maxX, maxY, maxZ := width*0.5, height*0.5, depth*0.5

	faces := [6]struct {
		normal  mgl32.Vec3
		corners [4]mgl32.Vec3
	}{
		// front
		{mgl32.Vec3{0, 0, 1}, [4]mgl32.Vec3{{minX, minY, maxZ}, {maxX, maxY, maxZ}, {minX, maxY, maxZ}, {maxX, minY, maxZ}}},
		// back
		{mgl32.Vec3{0, 0, -1}, [4]mgl32.Vec3{{maxX, minY, minZ}, {minX, maxY, minZ}, {maxX, maxY, minZ}, {minX, minY, minZ}}},
		// left
		{mgl32.Vec3{-1, 0, 0}, [4]mgl32.Vec3{{minX, minY, minZ}, {minX, maxY, maxZ}, {minX, maxY, minZ}, {minX, minY, maxZ}}},
		// right
		{mgl32.Vec3{1, 0, 0}, [4]mgl32.Vec3{{maxX, minY, maxZ}, {maxX, maxY, minZ}, {maxX, maxY, maxZ}, {maxX, minY, minZ}}},
		// bottom
		{mgl32.Vec3{0, -1, 0}, [4]mgl32.Vec3{{maxX, minY, maxZ}, {minX, minY, minZ}, {maxX, minY, minZ}, {minX, minY, maxZ}}},
		// top
		{mgl32.Vec3{0, 1, 0}, [4]mgl32.Vec3{{minX, maxY, maxZ}, {maxX, maxY, minZ}, {minX, maxY, minZ}, {maxX, maxY, maxZ}}},
	}
	uvs := [4]mgl32.Vec2{{0, 0}, {tileX, tileY}, {0, tileY}, {tileX, 0}}

	vertices := make([]batch.Vertex3D, 0, 24)
	indices := make([]uint32, 0, 36)
	for i, f := range faces {
		for c := range f.corners {
			vertices = append(vertices, batch.Vertex3D{
				Position: f.corners[c],
				Normal:   f.normal,
				UV:       uvs[c],
				Color:    mgl32.Vec4{1, 1, 1, 1},
			})
		}
		v := uint32(i * 4)
		indices = append(indices, v, v+1, v+2, v, v+3, v+1)
	}
	return vertices, indices
}
