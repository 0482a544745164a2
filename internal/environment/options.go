// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package environment

import (
	"os"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/toolproto/proto/internal/sandbox"
)

// Environment variables read by OptionsFromEnv. Nothing else in proto
// reads the process environment for these settings.
const (
	EnvHome       = "PROTO_HOME"
	EnvMode       = "PROTO_ENV"
	EnvOffline    = "PROTO_OFFLINE"
	EnvNoProgress = "PROTO_NO_PROGRESS"
)

// Options are the session-wide settings that are fixed when an
// Environment is created.
type Options struct {
	// StoreDir overrides the store location.
	StoreDir string

	// EnvMode selects the .prototools.<mode> variant files.
	EnvMode string

	// Offline forces offline (true) or online (false) mode. When nil,
	// proto probes the network the first time it needs to know.
	Offline *bool

	// NoProgress disables progress output.
	NoProgress bool

	// Runtime executes plugins. Defaults to a go-plugin process runtime.
	Runtime sandbox.Runtime

	// Fs is the filesystem configuration files are read from. Defaults
	// to the real filesystem.
	Fs afero.Fs
}

// OptionsFromEnv reads Options from the process environment.
func OptionsFromEnv() Options {
	opts := Options{
		StoreDir:   os.Getenv(EnvHome),
		EnvMode:    strings.TrimSpace(os.Getenv(EnvMode)),
		NoProgress: envBool(EnvNoProgress),
	}
	if _, ok := os.LookupEnv(EnvOffline); ok {
		offline := envBool(EnvOffline)
		opts.Offline = &offline
	}
	return opts
}

func envBool(name string) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		// Any other non-empty value, such as "yes", counts as set.
		return true
	}
	return b
}
