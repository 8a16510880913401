//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// goCmd runs the go tool mage was configured with, streaming its output.
func goCmd(args ...string) error {
	return sh.RunV(mg.GoCmd(), args...)
}

// glslc compiles one shader stage. Includes resolve against the source
// directory.
func glslc(src, out string) error {
	return sh.RunV("glslc", "-I", shaderSrcDir, src, "-o", out)
}
