package batch

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/descriptor"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
)

var (
	// ErrBatchOverflow means a request is larger than an empty batch can hold.
	ErrBatchOverflow = errors.New("request exceeds batch capacity")
	// ErrTextureSlotsFull means the batch has no texture slot left.
	ErrTextureSlotsFull = errors.New("batch texture slots full")
	// ErrInvalidGroup means a vertex group is empty or too large for its mode.
	ErrInvalidGroup = errors.New("invalid vertex group")
)

// Painter depth for 2D batches: every object is drawn slightly closer than the
// previous one so later draws win the depth test.
const (
	DepthStart = 0.99
	DepthStep  = 1e-5
	DepthFloor = 1e-4
)

// DrawCall is what a batch or model hands to a pass.
type DrawCall struct {
	Label        string
	Mode         DrawMode
	VertexBuffer *resources.Buffer
	IndexBuffer  *resources.Buffer
	IndexCount   uint32
	Textures     *descriptor.Set
	// Model is set for standalone models and pushed as a constant.
	Model *mgl32.Mat4
}

// Pass receives draw calls while it is recording a frame.
type Pass interface {
	FrameIndex() int
	Draw(call DrawCall)
}

// textureSets owns the layout and pool of the sampler array sets every batch
// and model binds at set 1.
type textureSets struct {
	ctx    *metadata.GraphicsContext
	layout *descriptor.Layout
	pool   *descriptor.Pool
}

// TextureBinding is the sampler array binding of the texture set. Element 0 is
// always the dummy texture.
const TextureBinding = 0

// TextureCountConstant is the specialization constant sizing the sampler
// array in the shaders. It must match the layout's descriptor count.
const TextureCountConstant = 0

// TextureConstants specializes shaders that sample the texture set.
func TextureConstants(ctx *metadata.GraphicsContext) []hal.SpecConstant {
	return []hal.SpecConstant{{ID: TextureCountConstant, Value: ctx.MaxTextures + 1}}
}

func newTextureSets(ctx *metadata.GraphicsContext, label string) *textureSets {
	layout := descriptor.NewLayout(ctx.Device, label+".textures", []descriptor.Binding{{
		Slot:   TextureBinding,
		Stages: hal.ShaderStageFragment,
		Kind:   hal.DescriptorCombinedImageSampler,
		Count:  ctx.MaxTextures + 1,
	}})
	sets := ctx.Config.Descriptor.PoolMaxSets
	return &textureSets{
		ctx:    ctx,
		layout: layout,
		pool: descriptor.NewPool(ctx.Device, descriptor.PoolConfig{
			Label:   label + ".textures",
			MaxSets: sets,
			Sizes:   layout.PoolSizes(sets),
		}),
	}
}

func (ts *textureSets) newSet(label string) *descriptor.Set {
	return descriptor.NewSet(ts.pool, ts.layout, label).SetFallback(ts.ctx.DummyTexture)
}

// boundTextures remembers which texture ids a set was last written with.
type boundTextures struct {
	ids   []uint32
	built bool
}

func (bt *boundTextures) matches(textures []*resources.Texture) bool {
	if !bt.built || len(bt.ids) != len(textures) {
		return false
	}
	for i, tex := range textures {
		if bt.ids[i] != tex.ID {
			return false
		}
	}
	return true
}

// write rebuilds set when textures differ from what it was last built with.
func (ts *textureSets) write(set *descriptor.Set, bound *boundTextures, textures []*resources.Texture) {
	if bound.matches(textures) {
		return
	}
	set.Reset(TextureBinding)
	bound.ids = bound.ids[:0]
	for i, tex := range textures {
		set.UpdateTexture(TextureBinding, uint32(i+1), tex)
		bound.ids = append(bound.ids, tex.ID)
	}
	set.Build()
	bound.built = true
}

func (ts *textureSets) destroy() {
	ts.pool.Destroy()
	ts.layout.Destroy()
}

type frameResources struct {
	vertices *resources.Buffer
	indices  *resources.Buffer
	set      *descriptor.Set
	bound    boundTextures
}

func (f *frameResources) destroy() {
	f.vertices.Destroy()
	f.indices.Destroy()
}

// Batch accumulates vertices, indices and up to MaxTextures textures that are
// drawn with a single indexed draw.
type Batch struct {
	label       string
	mode        DrawMode
	stride      uint32
	vertexLimit uint32
	indexLimit  uint32
	maxTextures uint32

	// capacity is fixed at construction
	vertices    []byte
	vertexCount uint32
	indices     []uint32
	scratch     []byte

	textures [core.TextureLimit]*resources.Texture
	nextTex  uint32

	frames []*frameResources
}

func newBatch(label string, mode DrawMode, stride, vertexLimit, indexLimit, maxTextures uint32) *Batch {
	return &Batch{
		label:       label,
		mode:        mode,
		stride:      stride,
		vertexLimit: vertexLimit,
		indexLimit:  indexLimit,
		maxTextures: maxTextures,
		vertices:    make([]byte, 0, int(vertexLimit*stride)),
		indices:     make([]uint32, 0, indexLimit),
	}
}

func (b *Batch) Label() string {
	return b.label
}

func (b *Batch) Mode() DrawMode {
	return b.mode
}

func (b *Batch) VertexCount() uint32 {
	return b.vertexCount
}

func (b *Batch) IndexCount() uint32 {
	return uint32(len(b.indices))
}

// Indices returns the queued indices. The slice is reused after Render.
func (b *Batch) Indices() []uint32 {
	return b.indices
}

// VertexBytes returns the encoded vertices queued so far.
func (b *Batch) VertexBytes() []byte {
	return b.vertices
}

func (b *Batch) Empty() bool {
	return b.vertexCount == 0
}

// TextureCount is the number of distinct textures registered.
func (b *Batch) TextureCount() uint32 {
	return b.nextTex
}

// Textures returns the registered textures; slot i+1 holds element i.
func (b *Batch) Textures() []*resources.Texture {
	return b.textures[:b.nextTex]
}

// CanHold reports whether vertices more vertices and textures more texture
// slots fit.
func (b *Batch) CanHold(vertices, textures uint32) bool {
	return b.vertexCount+vertices <= b.vertexLimit && !b.IsFullTexFor(textures)
}

func (b *Batch) canHoldIndexed(vertices, indices, textures uint32) bool {
	return b.CanHold(vertices, textures) && uint32(len(b.indices))+indices <= b.indexLimit
}

// IsFullTexFor reports whether n more textures would exceed MaxTextures.
func (b *Batch) IsFullTexFor(n uint32) bool {
	return b.nextTex+n > b.maxTextures
}

// IsTextureFull reports whether every usable slot is taken.
func (b *Batch) IsTextureFull() bool {
	return b.nextTex == b.maxTextures
}

// FindTexture returns the slot of tex, or 0 when it is not registered.
func (b *Batch) FindTexture(tex *resources.Texture) uint32 {
	for i := uint32(0); i < b.nextTex; i++ {
		if b.textures[i].ID == tex.ID {
			return i + 1
		}
	}
	return 0
}

// AddTexture registers tex and returns its 1-based slot. A texture that is
// already registered keeps its slot.
func (b *Batch) AddTexture(tex *resources.Texture) (uint32, error) {
	if slot := b.FindTexture(tex); slot != 0 {
		return slot, nil
	}
	if b.IsTextureFull() {
		return 0, fmt.Errorf("%w: %d of %d used in %s", ErrTextureSlotsFull, b.nextTex, b.maxTextures, b.label)
	}
	b.textures[b.nextTex] = tex
	b.nextTex++
	return b.nextTex, nil
}

// appendGroup adds count encoded vertices and the index pattern for a group
// of size vertices. count exceeds size when the group was padded.
func (b *Batch) appendGroup(encoded []byte, count, size uint32) {
	base := b.vertexCount
	b.vertices = append(b.vertices, encoded...)
	b.vertexCount += count
	b.indices = b.mode.Indices(b.indices, base, size)
}

// appendIndexed adds encoded vertices with indices relative to the group.
func (b *Batch) appendIndexed(encoded []byte, count uint32, indices []uint32) {
	base := b.vertexCount
	b.vertices = append(b.vertices, encoded...)
	b.vertexCount += count
	for _, i := range indices {
		b.indices = append(b.indices, base+i)
	}
}

// reuse turns a cleared batch into an empty batch of mode.
func (b *Batch) reuse(mode DrawMode) {
	b.Clear()
	b.mode = mode
}

// Clear resets the counters. Buffers and per-frame resources are kept.
func (b *Batch) Clear() {
	b.vertices = b.vertices[:0]
	b.indices = b.indices[:0]
	b.vertexCount = 0
	clear(b.textures[:b.nextTex])
	b.nextTex = 0
}

func (b *Batch) frame(index int, ctx *metadata.GraphicsContext, sets *textureSets) *frameResources {
	for len(b.frames) <= index {
		b.frames = append(b.frames, nil)
	}
	if f := b.frames[index]; f != nil {
		return f
	}
	label := fmt.Sprintf("%s.frame%d", b.label, index)
	f := &frameResources{
		vertices: ctx.Allocator.CreateBuffer(resources.BufferConfig{
			Label:        label + ".vertices",
			InstanceSize: uint64(b.vertexLimit) * uint64(b.stride),
			Usage:        hal.BufferUsageVertex,
			Memory:       hal.MemoryHostVisible,
			Persistent:   true,
		}),
		indices: ctx.Allocator.CreateBuffer(resources.BufferConfig{
			Label:        label + ".indices",
			InstanceSize: uint64(b.indexLimit) * 4,
			Usage:        hal.BufferUsageIndex,
			Memory:       hal.MemoryHostVisible,
			Persistent:   true,
		}),
		set: sets.newSet(label + ".textures"),
	}
	b.frames[index] = f
	return f
}

// render uploads the batch into the resources of the pass frame slot and
// issues one draw.
func (b *Batch) render(pass Pass, ctx *metadata.GraphicsContext, sets *textureSets) {
	f := b.frame(pass.FrameIndex(), ctx, sets)
	f.vertices.Write(b.vertices, 0, 0)
	b.scratch = resources.IndexBytes(b.scratch[:0], b.indices)
	f.indices.Write(b.scratch, 0, 0)
	sets.write(f.set, &f.bound, b.Textures())

	pass.Draw(DrawCall{
		Label:        b.label,
		Mode:         b.mode,
		VertexBuffer: f.vertices,
		IndexBuffer:  f.indices,
		IndexCount:   uint32(len(b.indices)),
		Textures:     f.set,
	})
}

// dropFrames destroys per-frame resources at index keep and above.
func (b *Batch) dropFrames(keep int) {
	for i := keep; i < len(b.frames); i++ {
		if b.frames[i] != nil {
			b.frames[i].destroy()
		}
	}
	if keep < len(b.frames) {
		b.frames = slices.Clip(b.frames[:keep])
	}
}

func (b *Batch) destroy() {
	b.dropFrames(0)
}
