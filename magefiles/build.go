//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Tidies the module and builds the testbed binary into bin/.
func (Build) Testbed() error {
	if err := goModTidy(); err != nil {
		return err
	}
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/spark", "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the tests of every package with the race detector.
func Test() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream())
	return err
}

// Runs go vet on every package.
func Vet() error {
	_, err := executeCmd("go", withArgs("vet", "./..."), withStream())
	return err
}
