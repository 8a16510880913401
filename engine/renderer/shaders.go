package renderer

import (
	"fmt"

	"github.com/spaghettifunk/anima-gfx/engine/core"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/hal"
	"github.com/spaghettifunk/anima-gfx/engine/renderer/resources"
)

// shaderLibrary creates each named shader module once and hands it to every
// pipeline asking for it.
type shaderLibrary struct {
	alloc   *resources.Allocator
	load    func(name string) ([]byte, error)
	modules map[string]*resources.Shader
}

func newShaderLibrary(alloc *resources.Allocator, load func(string) ([]byte, error)) *shaderLibrary {
	return &shaderLibrary{alloc: alloc, load: load, modules: map[string]*resources.Shader{}}
}

// Shader implements passes.ShaderSource. A shader that cannot be loaded is
// fatal: no pipeline can be built without it.
func (l *shaderLibrary) Shader(name string, stage hal.ShaderStage) *resources.Shader {
	if s, ok := l.modules[name]; ok {
		if s.Stage() != stage {
			core.Fatal(fmt.Errorf("shader %s requested as %s, loaded as %s", name, stage, s.Stage()), "shaders")
		}
		return s
	}
	code, err := l.load(name)
	if err != nil {
		core.Fatal(fmt.Errorf("load shader %s: %w", name, err), "shaders")
	}
	s := l.alloc.CreateShader(name, stage, code)
	l.modules[name] = s
	core.LogDebug("shader %s loaded (%d bytes)", name, len(code))
	return s
}

func (l *shaderLibrary) destroy() {
	for name, s := range l.modules {
		s.Destroy()
		delete(l.modules, name)
	}
}
