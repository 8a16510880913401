package components

import (
	"github.com/go-gl/mathgl/mgl32"
)

type ProjectionKind uint8

const (
	Perspective ProjectionKind = iota
	Orthographic
)

/**
 * @brief Represents a camera used to build the per-frame view and
 * projection matrices of a render pass.
 */
type Camera struct {
	/**
	 * @brief The position of this camera.
	 * NOTE: Do not set this directly, use SetPosition() instead
	 * so the view matrix is recalculated when needed.
	 */
	Position mgl32.Vec3
	/**
	 * @brief The rotation of this camera using Euler angles (pitch, yaw, roll).
	 * NOTE: Do not set this directly, use SetEulerRotation() instead
	 * so the view matrix is recalculated when needed.
	 */
	EulerRotation mgl32.Vec3
	/** @brief Internal flag used to determine when the view matrix needs to be rebuilt. */
	IsDirty bool
	/** @brief The cached view matrix, read it through GetView(). */
	ViewMatrix mgl32.Mat4

	Kind ProjectionKind
	/** @brief Vertical field of view in radians, perspective only. */
	FovY float32
	/** @brief Clip planes, perspective only. */
	Near   float32
	Far    float32
	width  float32
	height float32
}

/** @brief Default perspective field of view, 45 degrees. */
var DefaultFovY = mgl32.DegToRad(45)

func NewCamera(kind ProjectionKind) *Camera {
	camera := &Camera{Kind: kind}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.EulerRotation = mgl32.Vec3{}
	c.Position = mgl32.Vec3{}
	c.IsDirty = false
	c.ViewMatrix = mgl32.Ident4()
	c.FovY = DefaultFovY
	c.Near = 0.1
	c.Far = 1000.0
}

// SetViewport updates the size the projection is built for.
func (c *Camera) SetViewport(width, height uint32) {
	c.width = float32(width)
	c.height = float32(height)
}

func (c *Camera) GetPosition() mgl32.Vec3 {
	return c.Position
}

func (c *Camera) SetPosition(position mgl32.Vec3) {
	c.Position = position
	c.IsDirty = true
}

func (c *Camera) GetEulerRotation() mgl32.Vec3 {
	return c.EulerRotation
}

func (c *Camera) SetEulerRotation(rotation mgl32.Vec3) {
	c.EulerRotation = rotation
	c.IsDirty = true
}

func (c *Camera) GetView() mgl32.Mat4 {
	if c.IsDirty {
		rotation := mgl32.AnglesToQuat(c.EulerRotation.X(), c.EulerRotation.Y(), c.EulerRotation.Z(), mgl32.XYZ).Mat4()
		translation := mgl32.Translate3D(c.Position.X(), c.Position.Y(), c.Position.Z())

		c.ViewMatrix = translation.Mul4(rotation).Inv()
		c.IsDirty = false
	}
	return c.ViewMatrix
}

// GetProjection builds the projection for the current viewport with the Y axis
// flipped for Vulkan clip space. Orthographic cameras map pixels 1:1 with the
// origin in the top-left corner.
func (c *Camera) GetProjection() mgl32.Mat4 {
	w, h := c.width, c.height
	if w == 0 || h == 0 {
		w, h = 1, 1
	}
	if c.Kind == Orthographic {
		proj := mgl32.Ortho(0, w, 0, h, -1, 1)
		// vertex z already is a [0,1] painter depth, pass it through
		proj[10] = 1
		proj[14] = 0
		return proj
	}
	proj := mgl32.Perspective(c.FovY, w/h, c.Near, c.Far)
	proj[5] *= -1
	return proj
}

// ViewProjection is the matrix pair uploaded to the per-frame uniform buffer.
func (c *Camera) ViewProjection() (view, projection mgl32.Mat4) {
	return c.GetView(), c.GetProjection()
}

func (c *Camera) Forward() mgl32.Vec3 {
	view := c.GetView()
	return mgl32.Vec3{-view[2], -view[6], -view[10]}.Normalize()
}

func (c *Camera) Backward() mgl32.Vec3 {
	return c.Forward().Mul(-1)
}

func (c *Camera) Left() mgl32.Vec3 {
	return c.Right().Mul(-1)
}

func (c *Camera) Right() mgl32.Vec3 {
	view := c.GetView()
	return mgl32.Vec3{view[0], view[4], view[8]}.Normalize()
}

func (c *Camera) move(direction mgl32.Vec3, amount float32) {
	c.Position = c.Position.Add(direction.Mul(amount))
	c.IsDirty = true
}

func (c *Camera) MoveForward(amount float32) {
	c.move(c.Forward(), amount)
}

func (c *Camera) MoveBackward(amount float32) {
	c.move(c.Backward(), amount)
}

func (c *Camera) MoveLeft(amount float32) {
	c.move(c.Left(), amount)
}

func (c *Camera) MoveRight(amount float32) {
	c.move(c.Right(), amount)
}

func (c *Camera) MoveUp(amount float32) {
	c.move(mgl32.Vec3{0, 1, 0}, amount)
}

func (c *Camera) MoveDown(amount float32) {
	c.move(mgl32.Vec3{0, -1, 0}, amount)
}

func (c *Camera) Yaw(amount float32) {
	c.EulerRotation[1] += amount
	c.IsDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.EulerRotation[0] += amount

	// Clamp to avoid Gimbal lock.
	limit := mgl32.DegToRad(89)
	c.EulerRotation[0] = mgl32.Clamp(c.EulerRotation[0], -limit, limit)

	c.IsDirty = true
}
