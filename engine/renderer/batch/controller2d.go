package batch

import (
	"fmt"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/descriptor"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
)

const none = -1

// Controller2D packs sprites, triangles and strips into batches. Batches live
// across frames and are cleared, not freed, after every Render.
type Controller2D struct {
	ctx   *metadata.GraphicsContext
	label string
	sets  *textureSets

	batches []*Batch
	// batches[:used] take part in the current frame
	used        int
	current     int
	prevRegular int
	depth       float32

	groupBuf []byte
}

func NewController2D(ctx *metadata.GraphicsContext, label string) *Controller2D {
	c := &Controller2D{
		ctx:         ctx,
		label:       label,
		sets:        newTextureSets(ctx, label),
		current:     none,
		prevRegular: none,
		depth:       DepthStart,
	}
	core.LogDebug("2D batch controller %s: %d vertices, %d textures per batch", label, ctx.VertexLimit, ctx.MaxTextures)
	return c
}

// TextureLayout is the layout of the texture set every draw binds at set 1.
func (c *Controller2D) TextureLayout() *descriptor.Layout {
	return c.sets.layout
}

// Batches returns the batches used this frame, in draw order.
func (c *Controller2D) Batches() []*Batch {
	return c.batches[:c.used]
}

// Current returns the batch accepting vertices, or nil before the first draw
// of a frame.
func (c *Controller2D) Current() *Batch {
	if c.current == none {
		return nil
	}
	return c.batches[c.current]
}

func (c *Controller2D) indexLimit() uint32 {
	// padded groups of 4 vertices emit at most 6 indices
	return c.ctx.VertexLimit / 4 * 6
}

func (c *Controller2D) advance(mode DrawMode) *Batch {
	next := c.used
	if next < len(c.batches) {
		c.batches[next].reuse(mode)
	} else {
		label := fmt.Sprintf("%s.batch%d", c.label, next)
		c.batches = append(c.batches, newBatch(label, mode, Vertex2DSize, c.ctx.VertexLimit, c.indexLimit(), c.ctx.MaxTextures))
	}
	c.used++
	c.current = next
	if mode == Regular {
		c.prevRegular = next
	}
	return c.batches[next]
}

// EnsureBatch makes the batch that will receive the next group of
// vertexCount vertices using textureCount new textures current, and returns it.
// A strip always starts in an empty batch of its own. Regular groups go back
// to the previous regular batch while it can hold them, even if a strip batch
// was opened in between.
func (c *Controller2D) EnsureBatch(mode DrawMode, vertexCount, textureCount uint32) (*Batch, error) {
	if vertexCount == 0 {
		return nil, ErrInvalidGroup
	}
	if mode == Regular {
		if vertexCount > 4 {
			return nil, fmt.Errorf("%w: regular group of %d vertices", ErrInvalidGroup, vertexCount)
		}
		vertexCount = 4
	}
	if vertexCount > c.ctx.VertexLimit || textureCount > c.ctx.MaxTextures {
		return nil, fmt.Errorf("%w: %d vertices, %d textures", ErrBatchOverflow, vertexCount, textureCount)
	}

	if mode == Stripped {
		if cur := c.Current(); cur != nil && cur.mode == Stripped && cur.Empty() && !cur.IsFullTexFor(textureCount) {
			return cur, nil
		}
		return c.advance(Stripped), nil
	}

	if c.prevRegular != none {
		if prev := c.batches[c.prevRegular]; prev.CanHold(vertexCount, textureCount) {
			c.current = c.prevRegular
			return prev, nil
		}
	}
	return c.advance(Regular), nil
}

// AddTexture registers tex with the regular batch the next AddVertices will
// write into and returns its slot. The batch is resolved the same way
// AddVertices resolves it, so a full batch or a strip in between moves the
// texture along with the vertices.
func (c *Controller2D) AddTexture(tex *resources.Texture) (uint32, error) {
	_, slot, err := c.reserve(Regular, 4, tex)
	return slot, err
}

// reserve makes the batch for a group of vertexCount vertices current and
// registers tex with it. A nil tex reserves no slot.
func (c *Controller2D) reserve(mode DrawMode, vertexCount uint32, tex *resources.Texture) (*Batch, uint32, error) {
	var textures uint32
	if tex != nil {
		textures = 1
		// a texture the target batch already holds costs no slot
		if mode == Regular && c.prevRegular != none && c.batches[c.prevRegular].FindTexture(tex) != 0 {
			textures = 0
		}
	}
	b, err := c.EnsureBatch(mode, vertexCount, textures)
	if err != nil || tex == nil {
		return b, 0, err
	}
	slot, err := b.AddTexture(tex)
	return b, slot, err
}

func (c *Controller2D) nextDepth() float32 {
	d := c.depth
	c.depth -= DepthStep
	if c.depth < DepthFloor {
		c.depth = DepthFloor
	}
	return d
}

// AddVertices queues a quad or triangle. Groups under 4 vertices are padded by
// repeating the last vertex. Texture slots in the group must come from the
// AddTexture call made right before it.
func (c *Controller2D) AddVertices(group []Vertex2D) error {
	n := uint32(len(group))
	b, err := c.EnsureBatch(Regular, n, 0)
	if err != nil {
		return err
	}
	depth := c.nextDepth()
	buf := c.groupBuf[:0]
	for i := uint32(0); i < 4; i++ {
		v := group[min(i, n-1)]
		v.Position[2] = depth
		buf = v.AppendBytes(buf)
	}
	c.groupBuf = buf
	b.appendGroup(buf, 4, n)
	return nil
}

// AddVerticesStripped queues one triangle strip in a batch of its own.
func (c *Controller2D) AddVerticesStripped(group []Vertex2D) error {
	n := uint32(len(group))
	b, err := c.EnsureBatch(Stripped, n, 0)
	if err != nil {
		return err
	}
	depth := c.nextDepth()
	buf := c.groupBuf[:0]
	for _, v := range group {
		v.Position[2] = depth
		buf = v.AppendBytes(buf)
	}
	c.groupBuf = buf
	b.appendGroup(buf, n, n)
	return nil
}

// DrawQuad queues a group with an optional texture, taking care of batch
// selection. TexSlot of every vertex in group is overwritten.
func (c *Controller2D) DrawQuad(group []Vertex2D, tex *resources.Texture) error {
	return c.draw(Regular, group, tex)
}

// DrawStrip is DrawQuad for triangle strips.
func (c *Controller2D) DrawStrip(group []Vertex2D, tex *resources.Texture) error {
	return c.draw(Stripped, group, tex)
}

func (c *Controller2D) draw(mode DrawMode, group []Vertex2D, tex *resources.Texture) error {
	_, slot, err := c.reserve(mode, uint32(len(group)), tex)
	if err != nil {
		return err
	}
	if tex != nil {
		for i := range group {
			group[i].TexSlot = float32(slot)
		}
	}
	if mode == Stripped {
		return c.AddVerticesStripped(group)
	}
	return c.AddVertices(group)
}

// Render draws every non-empty batch of this frame in controller order and
// resets the controller for the next frame.
func (c *Controller2D) Render(pass Pass) int {
	draws := 0
	for _, b := range c.batches[:c.used] {
		if !b.Empty() {
			b.render(pass, c.ctx, c.sets)
			draws++
		}
		b.Clear()
	}
	c.used = 0
	c.current = none
	c.prevRegular = none
	c.depth = DepthStart
	return draws
}

// Resize drops per-frame resources of frame slots that no longer exist. The
// remaining ones are rebuilt lazily.
func (c *Controller2D) Resize(framesInFlight int) {
	for _, b := range c.batches {
		b.dropFrames(framesInFlight)
	}
}

func (c *Controller2D) Destroy() {
	for _, b := range c.batches {
		b.destroy()
	}
	c.batches = nil
	c.sets.destroy()
}
