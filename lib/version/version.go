// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package version exposes build metadata for Chorus binaries.
//
// The package-level variables are populated at build time via -ldflags:
//
//	go build -ldflags "-X github.com/chorus-rtc/chorus/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Unset variables keep their development defaults, so test binaries and
// plain `go build` output report a "-dev" version with an unknown
// commit.
package version

import "fmt"

// Set via -ldflags at build time.
var (
	// GitCommit is the short git SHA the binary was built from.
	GitCommit = "unknown"

	// GitDirty is "true" when the working tree had uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version, set manually for releases.
	Version = "0.1.0-dev"
)

// Info returns the one-line version string used for --version output.
func Info() string {
	commit := GitCommit
	if GitDirty == "true" {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", Version, commit, BuildTime)
}

// Print writes the binary name and version information to stdout.
func Print(binary string) {
	fmt.Printf("%s %s\n", binary, Info())
}

// Short returns just the semantic version.
func Short() string {
	return Version
}

// Commit returns the short git SHA.
func Commit() string {
	return GitCommit
}
