package metadata

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
)

/**
 * @brief A textured, optionally rotated rectangle in screen space.
 */
type Sprite struct {
	/** @brief Top-left corner in pixels. */
	Position mgl32.Vec2
	Size     mgl32.Vec2
	/** @brief Rotation in radians around Origin, relative to Position. */
	Rotation float32
	Origin   mgl32.Vec2
	Color    mgl32.Vec4
	/** @brief Optional texture; nil draws a flat colored quad. */
	Texture *resources.Texture
	/** @brief UV rectangle as (u0, v0, u1, v1). Zero means the whole texture. */
	UV mgl32.Vec4
	/** @brief Clip rectangle (x0, y0, x1, y1). Zero disables clipping. */
	Clip      mgl32.Vec4
	UseCamera bool
}

/**
 * @brief A triangle strip in screen space, drawn in its own batch.
 */
type Strip struct {
	Points  []mgl32.Vec2
	Color   mgl32.Vec4
	Texture *resources.Texture
}

/**
 * @brief One placement of a mesh created through the renderer.
 */
type ModelInstance struct {
	/** @brief The handle returned by Renderer.CreateMesh. */
	MeshID    uint32
	Transform mgl32.Mat4
	Textures  []*resources.Texture
}

/**
 * @brief A structure which is generated by the application and sent once
 * to the renderer to render a given frame. Draw order inside each list is
 * preserved: sprites and strips interleave in the order of Layers2D.
 */
type RenderPacket struct {
	DeltaTime float64
	Sprites   []Sprite
	Strips    []Strip
	/** @brief Optional interleaving of 2D draws; nil draws all sprites then all strips. */
	Layers2D []Layer2D
	Models   []ModelInstance
}

/**
 * @brief Picks one sprite or one strip, in draw order.
 */
type Layer2D struct {
	Strip bool
	Index int
}
