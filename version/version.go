// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package version records the version of the proto host itself, as opposed
// to the versions of the tools it manages.
package version

import (
	"fmt"
	"runtime"
)

// Version is the main version number of the host, in semver syntax without
// a leading "v".
var Version = "0.31.0"

// Prerelease is a pre-release marker for the version. If this is "" (empty
// string) then it means that it is a final release. Otherwise, this is a
// pre-release such as "dev", "beta", "rc1", etc.
var Prerelease = "dev"

// String returns the complete version string, including prerelease.
func String() string {
	if Prerelease != "" {
		return fmt.Sprintf("%s-%s", Version, Prerelease)
	}
	return Version
}

// Platform returns the "os_arch" string for the platform this binary was
// built for, which is also the platform plugins are asked to download for.
func Platform() string {
	return runtime.GOOS + "_" + runtime.GOARCH
}
