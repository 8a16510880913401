package passes

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/anima-gfx/engine/renderer/batch"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/frame"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/pipeline"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
)

/**
 * @brief The per-frame uniform block every pass binds at set 0. Matches
 * the std140 layout of the Globals block in the shaders.
 */
type Globals struct {
	Projection2D mgl32.Mat4
	View2D       mgl32.Mat4
	Projection3D mgl32.Mat4
	View3D       mgl32.Mat4
	/** @brief w is unused. */
	CameraPosition mgl32.Vec4
	/** @brief Direction the light travels in, w is unused. */
	LightDirection mgl32.Vec4
	AmbientColor   mgl32.Vec4
}

// GlobalsSize is the encoded size of Globals.
const GlobalsSize = 4*64 + 3*16

func (g *Globals) AppendBytes(dst []byte) []byte {
	dst = batch.AppendMat4(dst, g.Projection2D)
	dst = batch.AppendMat4(dst, g.View2D)
	dst = batch.AppendMat4(dst, g.Projection3D)
	dst = batch.AppendMat4(dst, g.View3D)
	dst = batch.AppendVec4(dst, g.CameraPosition)
	dst = batch.AppendVec4(dst, g.LightDirection)
	return batch.AppendVec4(dst, g.AmbientColor)
}

// DefaultGlobals has identity matrices and a light from above.
func DefaultGlobals() Globals {
	return Globals{
		Projection2D:   mgl32.Ident4(),
		View2D:         mgl32.Ident4(),
		Projection3D:   mgl32.Ident4(),
		View3D:         mgl32.Ident4(),
		LightDirection: mgl32.Vec4{-0.3, -1, -0.2, 0},
		AmbientColor:   mgl32.Vec4{0.2, 0.2, 0.2, 1},
	}
}

// WriteGlobals uploads g into the uniform buffer of slot.
func WriteGlobals(slot *frame.Slot, g *Globals, scratch []byte) []byte {
	scratch = g.AppendBytes(scratch[:0])
	slot.Uniform.Write(scratch, 0, 0)
	return scratch
}

// ShaderSource hands out shader modules by name, e.g. "sprite.vert".
type ShaderSource interface {
	Shader(name string, stage hal.ShaderStage) *resources.Shader
}

// recorder turns draw calls into commands on the command buffer of the frame
// being recorded. Pipelines are only rebound when they change.
type recorder struct {
	dev     hal.Recorder
	cmd     hal.CommandBufferID
	frame   int
	globals hal.SetID
	bound   *pipeline.Pipeline

	push  []byte
	draws int
}

func (r *recorder) begin(slot *frame.Slot) {
	r.cmd = slot.Cmd
	r.frame = slot.Index
	r.globals = slot.Globals.ID()
	r.bound = nil
	r.draws = 0
}

func (r *recorder) FrameIndex() int {
	return r.frame
}

func (r *recorder) bind(p *pipeline.Pipeline) {
	if r.bound == p {
		return
	}
	p.Bind(r.cmd)
	p.BindSets(r.cmd, 0, r.globals)
	r.bound = p
}

func (r *recorder) draw(p *pipeline.Pipeline, call batch.DrawCall) {
	r.bind(p)
	if call.Textures != nil {
		p.BindSets(r.cmd, 1, call.Textures.ID())
	}
	if call.Model != nil {
		r.push = batch.AppendMat4(r.push[:0], *call.Model)
		p.Push(r.cmd, r.push)
	}
	r.dev.CmdBindVertexBuffer(r.cmd, call.VertexBuffer.ID(), 0)
	r.dev.CmdBindIndexBuffer(r.cmd, call.IndexBuffer.ID(), 0)
	r.dev.CmdDrawIndexed(r.cmd, call.IndexCount, 1, 0, 0)
	r.draws++
}
