package batch

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

// Vertex2D is one corner of a sprite, triangle or strip. Z of Position is
// overwritten with the painter depth when the vertex is batched.
type Vertex2D struct {
	Position mgl32.Vec3
	// Rotation in radians around Origin, applied in the vertex shader.
	Rotation float32
	Origin   mgl32.Vec2
	Color    mgl32.Vec4
	UV       mgl32.Vec2
	// TexSlot is the batch texture slot, 0 for untextured.
	TexSlot float32
	// Clip is (x0, y0, x1, y1); all zero disables clipping.
	Clip      mgl32.Vec4
	UseCamera float32
}

// Vertex2DSize is the encoded size of a Vertex2D in bytes.
const Vertex2DSize = 18 * 4

func appendFloats(dst []byte, fs ...float32) []byte {
	for _, f := range fs {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
	}
	return dst
}

// AppendBytes appends the little-endian encoding of v, in attribute order.
func (v Vertex2D) AppendBytes(dst []byte) []byte {
	dst = appendFloats(dst, v.Position[:]...)
	dst = appendFloats(dst, v.Rotation)
	dst = appendFloats(dst, v.Origin[:]...)
	dst = appendFloats(dst, v.Color[:]...)
	dst = appendFloats(dst, v.UV[:]...)
	dst = appendFloats(dst, v.TexSlot)
	dst = appendFloats(dst, v.Clip[:]...)
	return appendFloats(dst, v.UseCamera)
}

// Vertex2DAttributes describes Vertex2D to the pipeline.
func Vertex2DAttributes() []hal.VertexAttribute {
	return []hal.VertexAttribute{
		{Location: 0, Format: hal.FormatFloat32x3, Offset: 0},
		{Location: 1, Format: hal.FormatFloat32, Offset: 12},
		{Location: 2, Format: hal.FormatFloat32x2, Offset: 16},
		{Location: 3, Format: hal.FormatFloat32x4, Offset: 24},
		{Location: 4, Format: hal.FormatFloat32x2, Offset: 40},
		{Location: 5, Format: hal.FormatFloat32, Offset: 48},
		{Location: 6, Format: hal.FormatFloat32x4, Offset: 52},
		{Location: 7, Format: hal.FormatFloat32, Offset: 68},
	}
}

type Vertex3D struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
	Color    mgl32.Vec4
	// TexSlot indexes the textures the mesh is drawn with, 1-based. Batching
	// rewrites it to the batch slot.
	TexSlot float32
}

const Vertex3DSize = 13 * 4

func (v Vertex3D) AppendBytes(dst []byte) []byte {
	dst = appendFloats(dst, v.Position[:]...)
	dst = appendFloats(dst, v.Normal[:]...)
	dst = appendFloats(dst, v.UV[:]...)
	dst = appendFloats(dst, v.Color[:]...)
	return appendFloats(dst, v.TexSlot)
}

func Vertex3DAttributes() []hal.VertexAttribute {
	return []hal.VertexAttribute{
		{Location: 0, Format: hal.FormatFloat32x3, Offset: 0},
		{Location: 1, Format: hal.FormatFloat32x3, Offset: 12},
		{Location: 2, Format: hal.FormatFloat32x2, Offset: 24},
		{Location: 3, Format: hal.FormatFloat32x4, Offset: 32},
		{Location: 4, Format: hal.FormatFloat32, Offset: 48},
	}
}

// AppendMat4 appends m in column-major order, the layout GLSL expects.
func AppendMat4(dst []byte, m mgl32.Mat4) []byte {
	return appendFloats(dst, m[:]...)
}

func AppendVec4(dst []byte, v mgl32.Vec4) []byte {
	return appendFloats(dst, v[:]...)
}
