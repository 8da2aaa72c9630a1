//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/target"
)

var Default = Build

const demoBinary = "bin/session-demo"

// Build compiles the library and the demo binary.
func Build() error {
	fmt.Println("building...")
	if err := run("go", "build", "./..."); err != nil {
		return err
	}

	updated, err := target.Dir(demoBinary, "cmd/session-demo", ".", "pkg")
	if err != nil {
		return err
	}
	if !updated {
		return nil
	}
	return run("go", "build", "-o", demoBinary, "./cmd/session-demo")
}

// Test runs unit tests with the race detector.
func Test() error {
	mg.Deps(Build)

	fmt.Println("testing...")
	return run("go", "test", "-race", "-count=1", "./...")
}

// Demo runs the scripted loopback conference.
func Demo() error {
	mg.Deps(Build)

	return run(demoBinary)
}

func run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	connectStd(cmd)
	return cmd.Run()
}

func connectStd(cmd *exec.Cmd) {
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
}
