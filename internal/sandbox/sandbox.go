// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

//go:generate go tool go.uber.org/mock/mockgen -destination mock_sandbox/mock_sandbox.go -package mock_sandbox github.com/toolproto/proto/internal/sandbox Runtime,Handle

// Package sandbox defines the contract between proto and the isolated
// runtime that executes tool plugins, along with a runtime that runs
// plugins as separate processes.
//
// proto treats the runtime as a black box: it instantiates a plugin from
// a local file and calls named functions on it with JSON-encoded input.
package sandbox

import (
	"context"

	"github.com/toolproto/proto/internal/addrs"
)

// Manifest describes a plugin instance to create.
type Manifest struct {
	// ID is the tool the plugin instance serves.
	ID addrs.ToolID

	// Path is the local plugin file returned by the plugin loader.
	Path string

	// Config is passed to the plugin as-is. Schema-driven tools carry
	// their schema document here.
	Config map[string]string

	// VirtualPaths maps the stable virtual paths a plugin sees, such as
	// "/cwd", to real paths on the host.
	VirtualPaths map[string]string

	// Env is additional environment for the plugin.
	Env map[string]string
}

// Runtime creates plugin instances.
type Runtime interface {
	Instantiate(ctx context.Context, manifest Manifest) (Handle, error)
}

// Handle is a live plugin instance. A Handle is safe for concurrent use
// and stays valid until Close is called.
type Handle interface {
	// Call invokes the named plugin function with JSON input and returns
	// its JSON output.
	Call(ctx context.Context, function string, input []byte) ([]byte, error)

	Close() error
}
