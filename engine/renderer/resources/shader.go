package resources

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
)

// SpirvMagic is the first word of every SPIR-V module.
const SpirvMagic uint32 = 0x07230203

var ErrInvalidSpirv = errors.New("invalid SPIR-V binary")

type Shader struct {
	alloc *Allocator
	id    hal.ShaderID
	label string
	stage hal.ShaderStage
}

// ValidateSpirv checks the word alignment and magic number of a compiled module.
func ValidateSpirv(code []byte) error {
	if len(code) < 4 || len(code)%4 != 0 {
		return fmt.Errorf("%w: size %d is not a positive multiple of 4", ErrInvalidSpirv, len(code))
	}
	if magic := binary.LittleEndian.Uint32(code); magic != SpirvMagic {
		return fmt.Errorf("%w: magic 0x%08x", ErrInvalidSpirv, magic)
	}
	return nil
}

// CreateShader wraps a compiled SPIR-V blob in a shader module.
func (a *Allocator) CreateShader(name string, stage hal.ShaderStage, code []byte) *Shader {
	s := &Shader{alloc: a, stage: stage, label: label("shader."+stage.String(), name)}
	if err := ValidateSpirv(code); err != nil {
		core.Fatal(err, s.label)
	}
	id, err := a.dev.CreateShaderModule(s.label, stage, code)
	if err != nil {
		core.Fatal(fmt.Errorf("create %s shader module: %w", stage, err), s.label)
	}
	s.id = id
	return s
}

func (s *Shader) ID() hal.ShaderID {
	return s.id
}

func (s *Shader) Stage() hal.ShaderStage {
	return s.stage
}

func (s *Shader) Label() string {
	return s.label
}

func (s *Shader) Destroy() {
	if s.id == 0 {
		return
	}
	s.alloc.dev.DestroyShaderModule(s.id)
	s.id = 0
}
