//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides build targets for sitesync using Mage.
//
// Usage:
//
//	mage build             Compile sitesync to bin/
//	mage install           Install sitesync to GOPATH/bin
//	mage clean             Remove build artifacts
//	mage test:all          Run all tests
//	mage test:race         Run all tests with the race detector
//	mage test:cover        Write coverage.out and print a summary
//	mage lint              Run golangci-lint
//	mage sync              Build, then run a sync against the configured base
//	mage stats             Print Go line counts
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "sitesync"
	binaryDir  = "bin"
	cmdDir     = "./cmd/sitesync"
)

// Build compiles the sitesync binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-o", binaryPath(), cmdDir)
}

// Clean removes build artifacts.
func Clean() error {
	for _, p := range []string{binaryDir, "coverage.out"} {
		if err := os.RemoveAll(p); err != nil {
			return err
		}
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	return sh.Copy(filepath.Join(gopath, "bin", binaryName), binaryPath())
}

// Sync builds and runs one sync. Set SITESYNC_FORCE_FULL_SYNC=true to
// refetch everything.
func Sync() error {
	mg.Deps(Build)
	return sh.RunV(binaryPath(), "sync")
}

func binaryPath() string {
	return filepath.Join(binaryDir, binaryName)
}
