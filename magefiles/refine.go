// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

//go:build mage

package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Refine groups targets that drive a built refine binary against the
// working file in the current directory.
type Refine mg.Namespace

func refine(args ...string) error {
	return sh.RunV(filepath.Join(binDir, binName), args...)
}

// Sample runs the sampling and decision phases on a small sample.
// Set REFINE_SAMPLE_SIZE to change the sample size.
func (Refine) Sample() error {
	mg.Deps(Build)
	args := []string{"run"}
	if n := os.Getenv("REFINE_SAMPLE_SIZE"); n != "" {
		args = append(args, "--sample-size", n)
	}
	return refine(args...)
}

// Resume continues the batch session stored in dir.
func (Refine) Resume(dir string) error {
	mg.Deps(Build)
	return refine("run", "--resume", dir)
}

// Stats prints progress across the working file.
func (Refine) Stats() error {
	mg.Deps(Build)
	return refine("stats")
}

// Reconcile repairs the final file.
func (Refine) Reconcile() error {
	mg.Deps(Build)
	return refine("reconcile")
}
