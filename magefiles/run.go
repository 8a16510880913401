//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the testbed.
func (Run) Engine() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run engine...")
	return goCmd("run", ".", "-config", "anima.toml")
}

// Runs the unit tests. None of them need a GPU.
func (Run) Tests() error {
	return goCmd("test", "./...")
}
