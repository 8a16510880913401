package batch

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/descriptor"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
)

/**
 * @brief A mesh too large or too texture heavy to merge into a batch. It is
 * drawn from its own device buffers with the transform pushed as a constant.
 */
type StandaloneModel struct {
	Mesh      *Mesh
	Transform mgl32.Mat4
	Textures  []*resources.Texture

	label  string
	frames []*modelFrame
}

type modelFrame struct {
	set   *descriptor.Set
	bound boundTextures
}

func (m *StandaloneModel) Label() string {
	return m.label
}

func (m *StandaloneModel) frame(index int, sets *textureSets) *modelFrame {
	for len(m.frames) <= index {
		m.frames = append(m.frames, nil)
	}
	if f := m.frames[index]; f != nil {
		return f
	}
	f := &modelFrame{set: sets.newSet(fmt.Sprintf("%s.frame%d.textures", m.label, index))}
	m.frames[index] = f
	return f
}

func (m *StandaloneModel) render(pass Pass, sets *textureSets) {
	f := m.frame(pass.FrameIndex(), sets)
	sets.write(f.set, &f.bound, m.Textures)
	transform := m.Transform
	pass.Draw(DrawCall{
		Label:        m.Mesh.Label(),
		Mode:         Regular,
		VertexBuffer: m.Mesh.GPU.Vertices,
		IndexBuffer:  m.Mesh.GPU.Indices,
		IndexCount:   m.Mesh.GPU.IndexCount,
		Textures:     f.set,
		Model:        &transform,
	})
}

func (m *StandaloneModel) dropFrames(keep int) {
	if keep < len(m.frames) {
		m.frames = m.frames[:keep]
	}
}

// entry is one slot of the 3D controller. It holds either a batch or a model;
// the object of the other kind is parked so the slot can switch back without
// allocating new device resources.
type entry struct {
	isModel bool
	batch   *Batch
	model   *StandaloneModel
}

// Controller3D merges small meshes into batches on the CPU and keeps the rest
// as standalone models, in submission order.
type Controller3D struct {
	ctx   *metadata.GraphicsContext
	label string
	sets  *textureSets

	entries   []entry
	used      int
	current   int
	prevBatch int

	remap    []float32
	groupBuf []byte
}

func NewController3D(ctx *metadata.GraphicsContext, label string) *Controller3D {
	core.LogDebug("3D batch controller %s: simple geometry under %d vertices", label, ctx.SimpleVertexLimit)
	return &Controller3D{
		ctx:       ctx,
		label:     label,
		sets:      newTextureSets(ctx, label),
		current:   none,
		prevBatch: none,
	}
}

func (c *Controller3D) TextureLayout() *descriptor.Layout {
	return c.sets.layout
}

// Entries returns the number of slots used this frame.
func (c *Controller3D) Entries() int {
	return c.used
}

// Batch returns the batch at slot i, or nil when the slot holds a model.
func (c *Controller3D) Batch(i int) *Batch {
	if i >= c.used || c.entries[i].isModel {
		return nil
	}
	return c.entries[i].batch
}

// Model returns the model at slot i, or nil when the slot holds a batch.
func (c *Controller3D) Model(i int) *StandaloneModel {
	if i >= c.used || !c.entries[i].isModel {
		return nil
	}
	return c.entries[i].model
}

func (c *Controller3D) indexLimit() uint32 {
	return c.ctx.VertexLimit * 3
}

func (c *Controller3D) next() *entry {
	if c.used == len(c.entries) {
		c.entries = append(c.entries, entry{})
	}
	c.current = c.used
	c.used++
	return &c.entries[c.current]
}

func (c *Controller3D) advanceBatch() *Batch {
	e := c.next()
	e.isModel = false
	if e.batch == nil {
		label := fmt.Sprintf("%s.batch%d", c.label, c.current)
		e.batch = newBatch(label, Regular, Vertex3DSize, c.ctx.VertexLimit, c.indexLimit(), c.ctx.MaxTextures)
	} else {
		e.batch.reuse(Regular)
	}
	c.prevBatch = c.current
	return e.batch
}

func (c *Controller3D) advanceModel(mesh *Mesh, transform mgl32.Mat4, textures []*resources.Texture) *StandaloneModel {
	e := c.next()
	e.isModel = true
	if e.model == nil {
		e.model = &StandaloneModel{label: fmt.Sprintf("%s.model%d", c.label, c.current)}
	}
	e.model.Mesh = mesh
	e.model.Transform = transform
	e.model.Textures = append(e.model.Textures[:0], textures...)
	return e.model
}

// IsSimple reports whether mesh drawn with textures is merged into a batch.
func (c *Controller3D) IsSimple(mesh *Mesh, textures int) bool {
	v, i := uint32(len(mesh.Vertices)), uint32(len(mesh.Indices))
	return v < c.ctx.SimpleVertexLimit &&
		uint32(textures) < c.ctx.MaxTextures/4 &&
		v <= c.ctx.VertexLimit && i <= c.indexLimit()
}

func newTextures(b *Batch, textures []*resources.Texture) uint32 {
	var n uint32
	for i, tex := range textures {
		if b.FindTexture(tex) != 0 {
			continue
		}
		dup := false
		for _, prev := range textures[:i] {
			if prev.ID == tex.ID {
				dup = true
				break
			}
		}
		if !dup {
			n++
		}
	}
	return n
}

// AddMesh queues mesh placed by transform. Vertex TexSlot values index
// textures 1-based.
func (c *Controller3D) AddMesh(mesh *Mesh, transform mgl32.Mat4, textures []*resources.Texture) error {
	if len(mesh.Vertices) == 0 {
		return ErrInvalidGroup
	}
	if uint32(len(textures)) > c.ctx.MaxTextures {
		return fmt.Errorf("%w: mesh %s uses %d textures, batches hold %d", ErrTextureSlotsFull, mesh.Label(), len(textures), c.ctx.MaxTextures)
	}
	if !c.IsSimple(mesh, len(textures)) {
		c.advanceModel(mesh, transform, textures)
		return nil
	}

	v, i := uint32(len(mesh.Vertices)), uint32(len(mesh.Indices))
	var b *Batch
	if c.prevBatch != none {
		prev := c.entries[c.prevBatch].batch
		if prev.canHoldIndexed(v, i, newTextures(prev, textures)) {
			b = prev
			c.current = c.prevBatch
		}
	}
	if b == nil {
		b = c.advanceBatch()
	}

	c.remap = append(c.remap[:0], 0)
	for _, tex := range textures {
		slot, err := b.AddTexture(tex)
		if err != nil {
			return err
		}
		c.remap = append(c.remap, float32(slot))
	}

	normal := transform.Mat3().Inv().Transpose()
	buf := c.groupBuf[:0]
	for _, vert := range mesh.Vertices {
		vert.Position = transform.Mul4x1(vert.Position.Vec4(1)).Vec3()
		if n := normal.Mul3x1(vert.Normal); n.Len() > 0 {
			vert.Normal = n.Normalize()
		}
		if s := int(vert.TexSlot); s > 0 && s < len(c.remap) {
			vert.TexSlot = c.remap[s]
		} else {
			vert.TexSlot = 0
		}
		buf = vert.AppendBytes(buf)
	}
	c.groupBuf = buf
	b.appendIndexed(buf, v, mesh.Indices)
	return nil
}

// Render draws every used slot in order and resets the controller.
func (c *Controller3D) Render(pass Pass) int {
	draws := 0
	for i := range c.entries[:c.used] {
		e := &c.entries[i]
		if e.isModel {
			e.model.render(pass, c.sets)
			draws++
			continue
		}
		if !e.batch.Empty() {
			e.batch.render(pass, c.ctx, c.sets)
			draws++
		}
		e.batch.Clear()
	}
	c.used = 0
	c.current = none
	c.prevBatch = none
	return draws
}

func (c *Controller3D) Resize(framesInFlight int) {
	for _, e := range c.entries {
		if e.batch != nil {
			e.batch.dropFrames(framesInFlight)
		}
		if e.model != nil {
			e.model.dropFrames(framesInFlight)
		}
	}
}

func (c *Controller3D) Destroy() {
	for _, e := range c.entries {
		if e.batch != nil {
			e.batch.destroy()
		}
	}
	c.entries = nil
	c.sets.destroy()
}
