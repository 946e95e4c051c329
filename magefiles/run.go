//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed demo. SPARK_CONFIG selects the configuration file and
// SPARK_FRAMES the number of frames.
func (Run) Demo() error {
	args := []string{"run", "main.go"}
	if config := os.Getenv("SPARK_CONFIG"); config != "" {
		args = append(args, "-config", config)
	}
	if frames := os.Getenv("SPARK_FRAMES"); frames != "" {
		args = append(args, "-frames", frames)
	}
	fmt.Println("Run testbed...")
	if _, err := executeCmd("go", withArgs(args...), withStream()); err != nil {
		return err
	}
	return nil
}
