//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the engine with a window.
func (Run) Engine() error {
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", ".", "--config", "marionette.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the engine without a window, driven by the control server only.
func (Run) Headless() error {
	fmt.Println("Run headless engine...")
	if _, err := executeCmd("go", withArgs("run", ".", "--config", "marionette.toml", "--headless"), withStream()); err != nil {
		return err
	}
	return nil
}
