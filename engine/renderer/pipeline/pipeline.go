package pipeline

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/descriptor"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
)

type Device interface {
	hal.PipelineDevice
	hal.Recorder
	Limits() hal.Limits
}

/**
 * @brief The configuration of a graphics pipeline.
 */
type Config struct {
	Label string
	/** @brief The render pass the pipeline draws into. */
	Pass    hal.RenderPassID
	Subpass uint32
	/** @brief The shader stages, one module per stage. */
	Shaders []*resources.Shader
	/** @brief The stride of one vertex, 0 for pipelines without vertex input. */
	VertexStride uint32
	Attributes   []hal.VertexAttribute
	Topology     hal.Topology
	/** @brief The face cull mode. */
	Cull       hal.CullMode
	Blend      bool
	DepthTest  bool
	DepthWrite bool
	/** @brief The descriptor set layouts, in set index order. */
	Layouts []*descriptor.Layout
	/** @brief The size of the push constant block shared by all stages. */
	PushConstantSize uint32
	/** @brief The number of color attachments of the subpass. Zero means 1. */
	ColorAttachments int
	/** @brief Specialization constants handed to every stage. A stage ignores ids it does not declare. */
	Constants []hal.SpecConstant
}

// Pipeline is immutable once created.
type Pipeline struct {
	dev      Device
	id       hal.PipelineID
	label    string
	pushSize uint32
}

// New compiles cfg into a pipeline. Any failure is fatal.
func New(dev Device, cfg Config) *Pipeline {
	p := &Pipeline{dev: dev, label: cfg.Label, pushSize: cfg.PushConstantSize}
	if p.label == "" {
		p.label = "pipeline-" + uuid.NewString()[:8]
	}
	if len(cfg.Shaders) == 0 {
		core.Fatal(fmt.Errorf("pipeline without shader stages"), p.label)
	}
	if limit := dev.Limits().MaxPushConstantsSize; cfg.PushConstantSize > limit {
		core.Fatal(fmt.Errorf("push constant block of %d bytes exceeds device limit %d", cfg.PushConstantSize, limit), p.label)
	}

	stages := make([]hal.ShaderStageRef, 0, len(cfg.Shaders))
	for _, s := range cfg.Shaders {
		stages = append(stages, hal.ShaderStageRef{Stage: s.Stage(), Module: s.ID(), Entry: "main", Constants: cfg.Constants})
	}
	layouts := make([]hal.LayoutID, 0, len(cfg.Layouts))
	for _, l := range cfg.Layouts {
		layouts = append(layouts, l.ID())
	}
	colors := cfg.ColorAttachments
	if colors == 0 {
		colors = 1
	}

	id, err := dev.CreatePipeline(hal.PipelineDesc{
		Label:            p.label,
		Pass:             cfg.Pass,
		Subpass:          cfg.Subpass,
		Stages:           stages,
		VertexStride:     cfg.VertexStride,
		Attributes:       cfg.Attributes,
		Topology:         cfg.Topology,
		Cull:             cfg.Cull,
		Blend:            cfg.Blend,
		DepthTest:        cfg.DepthTest,
		DepthWrite:       cfg.DepthWrite,
		SetLayouts:       layouts,
		PushConstantSize: cfg.PushConstantSize,
		ColorAttachments: colors,
	})
	if err != nil {
		core.Fatal(fmt.Errorf("create graphics pipeline: %w", err), p.label)
	}
	p.id = id
	core.LogDebug("pipeline %s created with %d stages", p.label, len(stages))
	return p
}

func (p *Pipeline) ID() hal.PipelineID {
	return p.id
}

func (p *Pipeline) Label() string {
	return p.label
}

func (p *Pipeline) Bind(cmd hal.CommandBufferID) {
	p.dev.CmdBindPipeline(cmd, p.id)
}

// BindSets binds sets starting at set index first.
func (p *Pipeline) BindSets(cmd hal.CommandBufferID, first uint32, sets ...hal.SetID) {
	if len(sets) == 0 {
		return
	}
	p.dev.CmdBindDescriptorSets(cmd, p.id, first, sets)
}

// Push uploads push constants. data must fit the declared block.
func (p *Pipeline) Push(cmd hal.CommandBufferID, data []byte) {
	if uint32(len(data)) > p.pushSize {
		core.Fatal(fmt.Errorf("push of %d bytes into a %d byte block", len(data), p.pushSize), p.label)
	}
	p.dev.CmdPushConstants(cmd, p.id, data)
}

func (p *Pipeline) Destroy() {
	if p.id == 0 {
		return
	}
	p.dev.DestroyPipeline(p.id)
	p.id = 0
}
