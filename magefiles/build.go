//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/target"
)

type Build mg.Namespace

const (
	shaderSrcDir = "shaders"
	shaderOutDir = "assets/shaders"
)

// Compiles every GLSL stage under shaders/ to assets/shaders/<name>.spv.
func (Build) Shaders() error {
	return buildShaders()
}

// Compiles the shaders and then the testbed binary.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	return goCmd("build", "-o", "bin/anima", ".")
}

func buildShaders() error {
	if err := os.MkdirAll(shaderOutDir, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(shaderSrcDir)
	if err != nil {
		return err
	}
	includes, err := filepath.Glob(filepath.Join(shaderSrcDir, "*.glsl"))
	if err != nil {
		return err
	}
	built := 0
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		// .glsl files are includes, not stages
		if e.IsDir() || (ext != ".vert" && ext != ".frag") {
			continue
		}
		src := filepath.Join(shaderSrcDir, e.Name())
		out := filepath.Join(shaderOutDir, e.Name()+".spv")
		// any include change rebuilds every stage
		rebuild, err := target.Path(out, append([]string{src}, includes...)...)
		if err != nil {
			return err
		}
		if !rebuild {
			continue
		}
		if err := glslc(src, out); err != nil {
			return err
		}
		built++
	}
	fmt.Printf("%d shaders compiled\n", built)
	return nil
}

// Removes compiled shaders and binaries.
func (Build) Clean() error {
	files, _ := filepath.Glob(filepath.Join(shaderOutDir, "*.spv"))
	for _, f := range files {
		if err := os.Remove(f); err != nil {
			return err
		}
	}
	return os.RemoveAll("bin")
}
