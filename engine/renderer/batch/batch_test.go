package batch

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/haltest"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

type recordingPass struct {
	frame int
	calls []DrawCall
}

func (p *recordingPass) FrameIndex() int { return p.frame }

func (p *recordingPass) Draw(call DrawCall) { p.calls = append(p.calls, call) }

// newContext builds a graphics context on the fake device with batches of
// vertexLimit vertices.
func newContext(t *testing.T, dev *haltest.Device, vertexLimit int) *metadata.GraphicsContext {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.Batch.VertexLimit = vertexLimit
	ctx := metadata.NewGraphicsContext(dev, cfg)
	t.Cleanup(ctx.Destroy)
	return ctx
}

func quad(x, y float32) []Vertex2D {
	white := mgl32.Vec4{1, 1, 1, 1}
	return []Vertex2D{
		{Position: mgl32.Vec3{x, y, 0}, Color: white, UV: mgl32.Vec2{0, 0}},
		{Position: mgl32.Vec3{x + 1, y, 0}, Color: white, UV: mgl32.Vec2{1, 0}},
		{Position: mgl32.Vec3{x + 1, y + 1, 0}, Color: white, UV: mgl32.Vec2{1, 1}},
		{Position: mgl32.Vec3{x, y + 1, 0}, Color: white, UV: mgl32.Vec2{0, 1}},
	}
}

func strip(n int) []Vertex2D {
	group := make([]Vertex2D, n)
	for i := range group {
		group[i].Position = mgl32.Vec3{float32(i), float32(i % 2), 0}
	}
	return group
}

func floatAt(b []byte, offset int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[offset:]))
}

func textures(ctx *metadata.GraphicsContext, n int) []*resources.Texture {
	out := make([]*resources.Texture, n)
	for i := range out {
		out[i] = ctx.Allocator.CreateTexture(fmt.Sprintf("tex%d", i), []byte{0, 0, 0, 255}, 1, 1, hal.FormatRGBA8Unorm, ctx.DefaultSampler)
	}
	return out
}

func TestQuadAndTriangleIndices(t *testing.T) {
	ctx := newContext(t, haltest.New(), 64)
	c := NewController2D(ctx, "sprites")

	require.NoError(t, c.DrawQuad(quad(0, 0), nil))
	require.NoError(t, c.DrawQuad(quad(5, 5)[:3], nil))

	b := c.Current()
	require.NotNil(t, b)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3, 4, 5, 6}, b.Indices())
	assert.Equal(t, uint32(8), b.VertexCount())

	// the triangle is padded with a copy of its last vertex
	verts := b.VertexBytes()
	assert.Equal(t, verts[6*Vertex2DSize:7*Vertex2DSize], verts[7*Vertex2DSize:8*Vertex2DSize])
}

func TestDrawModeIndices(t *testing.T) {
	assert.Equal(t, []uint32{8, 9, 10, 8, 10, 11}, Regular.Indices(nil, 8, 4))
	assert.Equal(t, []uint32{8, 9, 10}, Regular.Indices(nil, 8, 3))
	assert.Equal(t, []uint32{2, 3, 4, 5, 6}, Stripped.Indices(nil, 2, 5))
	assert.Equal(t, hal.TopologyTriangleStrip, Stripped.Topology())
}

func TestNoObjectIsLost(t *testing.T) {
	ctx := newContext(t, haltest.New(), 16)
	c := NewController2D(ctx, "sprites")

	const quads = 10
	for i := 0; i < quads; i++ {
		require.NoError(t, c.DrawQuad(quad(float32(i), 0), nil))
	}

	var vertices, indices uint32
	for _, b := range c.Batches() {
		vertices += b.VertexCount()
		indices += b.IndexCount()
	}
	assert.Equal(t, uint32(quads*4), vertices)
	assert.Equal(t, uint32(quads*6), indices)
	assert.GreaterOrEqual(t, len(c.Batches()), (quads*4+15)/16)

	pass := &recordingPass{}
	assert.Equal(t, 3, c.Render(pass))
	var drawn uint32
	for _, call := range pass.calls {
		drawn += call.IndexCount
		assert.Equal(t, Regular, call.Mode)
	}
	assert.Equal(t, uint32(quads*6), drawn)
	assert.Empty(t, c.Batches())
}

func TestTexturesAreDeduplicated(t *testing.T) {
	ctx := newContext(t, haltest.New(), 256)
	c := NewController2D(ctx, "sprites")
	texs := textures(ctx, 2)

	for i := 0; i < 4; i++ {
		group := quad(0, 0)
		require.NoError(t, c.DrawQuad(group, texs[i%2]))
		assert.Equal(t, float32(i%2+1), group[0].TexSlot)
	}
	require.Len(t, c.Batches(), 1)
	assert.Equal(t, uint32(2), c.Current().TextureCount())

	slot, err := c.AddTexture(texs[0])
	require.NoError(t, err)
	assert.Equal(t, uint32(1), slot)
}

func TestTextureSlotsFollowDeviceLimit(t *testing.T) {
	dev := haltest.New()
	limits := dev.Limits()
	limits.MaxPerStageSamplers = 5
	dev.SetLimits(limits)
	ctx := newContext(t, dev, 256)
	require.Equal(t, uint32(4), ctx.MaxTextures)

	c := NewController2D(ctx, "sprites")
	texs := textures(ctx, 6)
	for _, tex := range texs[:4] {
		_, err := c.AddTexture(tex)
		require.NoError(t, err)
	}
	b := c.Current()
	assert.True(t, b.IsTextureFull())
	assert.True(t, b.IsFullTexFor(1))
	assert.False(t, b.IsFullTexFor(0))
	assert.False(t, b.CanHold(4, 1))

	// a known texture still fits, a new one moves to a fresh batch
	require.NoError(t, c.DrawQuad(quad(0, 0), texs[2]))
	require.Len(t, c.Batches(), 1)
	slot, err := c.AddTexture(texs[4])
	require.NoError(t, err)
	assert.Equal(t, uint32(1), slot)
	require.Len(t, c.Batches(), 2)
	require.NoError(t, c.DrawQuad(quad(0, 0), texs[5]))
	require.Len(t, c.Batches(), 2)
	assert.Equal(t, uint32(2), c.Current().TextureCount())
	for _, b := range c.Batches() {
		assert.LessOrEqual(t, b.TextureCount(), ctx.MaxTextures)
	}

	_, err = c.EnsureBatch(Regular, 4, 5)
	assert.ErrorIs(t, err, ErrBatchOverflow)
}

func TestAddTextureFollowsTheVertices(t *testing.T) {
	ctx := newContext(t, haltest.New(), 8)
	c := NewController2D(ctx, "sprites")
	texs := textures(ctx, 4)

	texturedQuad := func(tex *resources.Texture) {
		slot, err := c.AddTexture(tex)
		require.NoError(t, err)
		group := quad(0, 0)
		for i := range group {
			group[i].TexSlot = float32(slot)
		}
		require.NoError(t, c.AddVertices(group))
		assert.Equal(t, slot, c.Current().FindTexture(tex), tex.Image.Label())
	}

	// two quads fill the first batch, the third opens a new one
	for _, tex := range texs[:3] {
		texturedQuad(tex)
	}
	batches := c.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, uint32(2), batches[0].TextureCount())
	assert.Equal(t, uint32(1), batches[1].TextureCount())
	assert.Equal(t, uint32(4), batches[1].VertexCount())

	// a strip in between does not steal the texture of the next quad
	require.NoError(t, c.AddVerticesStripped(strip(4)))
	texturedQuad(texs[3])
	batches = c.Batches()
	require.Len(t, batches, 3)
	assert.Equal(t, Stripped, batches[2].Mode())
	assert.Zero(t, batches[2].TextureCount())
	assert.Equal(t, uint32(2), batches[1].TextureCount())
	assert.Equal(t, uint32(8), batches[1].VertexCount())
}

func TestStripQuadStripOrdering(t *testing.T) {
	ctx := newContext(t, haltest.New(), 64)
	c := NewController2D(ctx, "sprites")

	require.NoError(t, c.DrawStrip(strip(5), nil))
	require.NoError(t, c.DrawQuad(quad(0, 0), nil))
	require.NoError(t, c.DrawStrip(strip(6), nil))
	// goes back to the regular batch opened between the strips
	require.NoError(t, c.DrawQuad(quad(1, 1), nil))

	batches := c.Batches()
	require.Len(t, batches, 3)
	assert.Equal(t, Stripped, batches[0].Mode())
	assert.Equal(t, Regular, batches[1].Mode())
	assert.Equal(t, Stripped, batches[2].Mode())
	assert.Equal(t, []uint32{0, 1, 2, 3, 4}, batches[0].Indices())
	assert.Equal(t, uint32(8), batches[1].VertexCount())

	pass := &recordingPass{}
	c.Render(pass)
	require.Len(t, pass.calls, 3)
	assert.Equal(t, []DrawMode{Stripped, Regular, Stripped}, []DrawMode{pass.calls[0].Mode, pass.calls[1].Mode, pass.calls[2].Mode})
	assert.Equal(t, uint32(6), pass.calls[2].IndexCount)
}

func TestInvalidGroups(t *testing.T) {
	ctx := newContext(t, haltest.New(), 16)
	c := NewController2D(ctx, "sprites")

	assert.ErrorIs(t, c.AddVertices(nil), ErrInvalidGroup)
	assert.ErrorIs(t, c.AddVertices(strip(5)), ErrInvalidGroup)
	assert.ErrorIs(t, c.AddVerticesStripped(strip(17)), ErrBatchOverflow)
	assert.Empty(t, c.Batches())
}

func TestPainterDepth(t *testing.T) {
	ctx := newContext(t, haltest.New(), 64)
	c := NewController2D(ctx, "sprites")

	require.NoError(t, c.DrawQuad(quad(0, 0), nil))
	require.NoError(t, c.DrawQuad(quad(0, 0), nil))
	verts := c.Current().VertexBytes()
	first := floatAt(verts, 8)
	second := floatAt(verts, 4*Vertex2DSize+8)
	assert.InDelta(t, DepthStart, first, 1e-6)
	assert.InDelta(t, DepthStart-DepthStep, second, 1e-6)
	assert.Less(t, second, first)

	c.Render(&recordingPass{})
	require.NoError(t, c.DrawQuad(quad(0, 0), nil))
	assert.InDelta(t, DepthStart, floatAt(c.Current().VertexBytes(), 8), 1e-6)

	for i := 0; i < 200000; i++ {
		c.nextDepth()
	}
	assert.InDelta(t, DepthFloor, c.nextDepth(), 1e-7)
}

func TestRenderIsIdempotent(t *testing.T) {
	dev := haltest.New()
	ctx := newContext(t, dev, 64)
	c := NewController2D(ctx, "sprites")
	texs := textures(ctx, 2)

	scene := func() {
		require.NoError(t, c.DrawQuad(quad(0, 0), texs[0]))
		require.NoError(t, c.DrawStrip(strip(4), texs[1]))
		require.NoError(t, c.DrawQuad(quad(2, 2), nil))
	}

	scene()
	first := &recordingPass{}
	c.Render(first)
	writes := len(dev.DescriptorWrites)
	contents := map[hal.BufferID][]byte{}
	for _, call := range first.calls {
		contents[call.VertexBuffer.ID()] = append([]byte(nil), dev.Buffers[call.VertexBuffer.ID()].Data...)
	}

	scene()
	second := &recordingPass{}
	c.Render(second)

	require.Equal(t, len(first.calls), len(second.calls))
	for i := range first.calls {
		assert.Equal(t, first.calls[i].Label, second.calls[i].Label)
		assert.Equal(t, first.calls[i].IndexCount, second.calls[i].IndexCount)
		assert.Same(t, first.calls[i].VertexBuffer, second.calls[i].VertexBuffer)
		assert.Equal(t, contents[first.calls[i].VertexBuffer.ID()], dev.Buffers[second.calls[i].VertexBuffer.ID()].Data)
	}
	// unchanged textures do not rewrite the sets
	assert.Equal(t, writes, len(dev.DescriptorWrites))
}

func TestFrameSlotsHaveOwnResources(t *testing.T) {
	dev := haltest.New()
	ctx := newContext(t, dev, 64)
	c := NewController2D(ctx, "sprites")

	require.NoError(t, c.DrawQuad(quad(0, 0), nil))
	frame0 := &recordingPass{frame: 0}
	c.Render(frame0)
	require.NoError(t, c.DrawQuad(quad(0, 0), nil))
	frame1 := &recordingPass{frame: 1}
	c.Render(frame1)

	assert.NotSame(t, frame0.calls[0].VertexBuffer, frame1.calls[0].VertexBuffer)
	assert.NotSame(t, frame0.calls[0].Textures, frame1.calls[0].Textures)

	buffers := len(dev.Buffers)
	c.Resize(1)
	assert.Equal(t, buffers-2, len(dev.Buffers))
}

func TestTextureSetUsesDummyFallback(t *testing.T) {
	dev := haltest.New()
	ctx := newContext(t, dev, 64)
	c := NewController2D(ctx, "sprites")
	tex := textures(ctx, 1)[0]

	declared := dev.Layouts[c.TextureLayout().ID()]
	require.Len(t, declared, 1)
	assert.Equal(t, ctx.MaxTextures+1, declared[0].Count)

	require.NoError(t, c.DrawQuad(quad(0, 0), tex))
	c.Render(&recordingPass{})

	last := dev.DescriptorWrites[len(dev.DescriptorWrites)-1]
	require.Len(t, last, int(ctx.MaxTextures+1))
	assert.Equal(t, ctx.DummyTexture.Image.ID(), last[0].Image)
	assert.Equal(t, tex.Image.ID(), last[1].Image)
	assert.Equal(t, ctx.DummyTexture.Image.ID(), last[2].Image)
}

func triangleMesh(ctx *metadata.GraphicsContext, label string, vertices int) *Mesh {
	verts := make([]Vertex3D, vertices)
	for i := range verts {
		verts[i] = Vertex3D{
			Position: mgl32.Vec3{float32(i), 0, 0},
			Normal:   mgl32.Vec3{1, 0, 0},
			Color:    mgl32.Vec4{1, 1, 1, 1},
			TexSlot:  1,
		}
	}
	return NewMesh(ctx.Allocator, label, verts, nil)
}

func TestSimpleMeshesAreBatched(t *testing.T) {
	ctx := newContext(t, haltest.New(), 64)
	c := NewController3D(ctx, "world")
	texs := textures(ctx, 2)
	mesh := triangleMesh(ctx, "tri", 3)
	defer mesh.Destroy()

	// occupy slot 1 so the mesh texture is remapped
	require.NoError(t, c.AddMesh(mesh, mgl32.Ident4(), texs[:1]))
	transform := mgl32.Translate3D(1, 2, 3).Mul4(mgl32.HomogRotate3DZ(mgl32.DegToRad(90)))
	require.NoError(t, c.AddMesh(mesh, transform, texs[1:]))

	require.Equal(t, 1, c.Entries())
	b := c.Batch(0)
	require.NotNil(t, b)
	assert.Equal(t, []uint32{0, 1, 2, 3, 4, 5}, b.Indices())
	assert.Equal(t, uint32(2), b.TextureCount())

	second := b.VertexBytes()[4*Vertex3DSize:]
	assert.InDelta(t, 1, floatAt(second, 0), 1e-5)
	assert.InDelta(t, 3, floatAt(second, 4), 1e-5)
	assert.InDelta(t, 3, floatAt(second, 8), 1e-5)
	// normal rotated by the model matrix
	assert.InDelta(t, 0, floatAt(second, 12), 1e-5)
	assert.InDelta(t, 1, floatAt(second, 16), 1e-5)
	assert.Equal(t, float32(2), floatAt(second, 48))
}

func TestLargeMeshesBecomeStandaloneModels(t *testing.T) {
	ctx := newContext(t, haltest.New(), 64)
	ctx.SimpleVertexLimit = 4
	c := NewController3D(ctx, "world")
	small := triangleMesh(ctx, "small", 3)
	large := triangleMesh(ctx, "large", 6)

	place := mgl32.Translate3D(0, 0, -5)
	require.NoError(t, c.AddMesh(small, mgl32.Ident4(), nil))
	require.NoError(t, c.AddMesh(large, place, nil))
	require.NoError(t, c.AddMesh(small, mgl32.Ident4(), nil))
	require.Equal(t, 2, c.Entries())
	assert.Equal(t, uint32(6), c.Batch(0).VertexCount())
	require.NotNil(t, c.Model(1))

	pass := &recordingPass{}
	assert.Equal(t, 2, c.Render(pass))
	require.Len(t, pass.calls, 2)
	assert.Nil(t, pass.calls[0].Model)
	require.NotNil(t, pass.calls[1].Model)
	assert.Equal(t, place, *pass.calls[1].Model)
	assert.Same(t, large.GPU.Vertices, pass.calls[1].VertexBuffer)
	assert.Equal(t, uint32(6), pass.calls[1].IndexCount)

	// the model now lands on the slot that held the batch
	require.NoError(t, c.AddMesh(large, place, nil))
	require.NoError(t, c.AddMesh(small, mgl32.Ident4(), nil))
	assert.Nil(t, c.Batch(0))
	require.NotNil(t, c.Model(0))
	require.NotNil(t, c.Batch(1))
	assert.Equal(t, uint32(3), c.Batch(1).VertexCount())

	tooMany := textures(ctx, int(ctx.MaxTextures)+1)
	assert.ErrorIs(t, c.AddMesh(small, mgl32.Ident4(), tooMany), ErrTextureSlotsFull)
}
