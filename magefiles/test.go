//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every package test.
func (Test) Unit() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}

// Runs the tests with the race detector; the engine relies on it for the
// command queue and job callbacks.
func (Test) Race() error {
	_, err := executeCmd("go", withArgs("test", "-race", "-count=1", "./..."), withStream())
	return err
}

// Runs the tests of a single package, e.g. mage test:pkg ./engine/gaze
func (Test) Pkg(pkg string) error {
	_, err := executeCmd("go", withArgs("test", "-v", "-count=1", pkg), withStream())
	return err
}
