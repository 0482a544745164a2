// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package tool wraps a live plugin instance with the operations proto
// performs on a tool: resolving versions, and downloading, verifying and
// installing prebuilt artifacts.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"path"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/toolproto/proto/internal/addrs"
	"github.com/toolproto/proto/internal/environment"
	"github.com/toolproto/proto/internal/sandbox"
)

// Tool is a single tool backed by a plugin instance. A Tool may be used
// from several goroutines.
type Tool struct {
	ID       addrs.ToolID
	Locator  addrs.PluginLocator
	Metadata RegisterToolOutput

	env    *environment.Environment
	handle sandbox.Handle

	mu       sync.Mutex
	versions *VersionSet
}

// New registers the plugin behind handle as the tool id.
func New(ctx context.Context, id addrs.ToolID, env *environment.Environment, handle sandbox.Handle, locator addrs.PluginLocator) (*Tool, error) {
	t := &Tool{
		ID:      id,
		Locator: locator,
		env:     env,
		handle:  handle,
	}
	var meta RegisterToolOutput
	if err := t.call(ctx, FuncRegisterTool, RegisterToolInput{ID: string(id)}, &meta); err != nil {
		return nil, err
	}
	if meta.Name == "" {
		meta.Name = string(id)
	}
	if meta.Executable == "" {
		meta.Executable = string(id)
	}
	t.Metadata = meta
	log.Printf("[TRACE] tool: registered %s (%s) from %s", id, meta.Name, locator)
	return t, nil
}

func (t *Tool) String() string {
	return t.ID.String()
}

// Environment returns the environment the tool was loaded into.
func (t *Tool) Environment() *environment.Environment {
	return t.env
}

// Close releases the plugin instance.
func (t *Tool) Close() error {
	return t.handle.Close()
}

// InstallDir is where the given version of the tool is installed.
func (t *Tool) InstallDir(version string) string {
	return t.env.Store.InstallDir(t.ID, version)
}

// ExecutablePath is the primary executable of an installed version.
func (t *Tool) ExecutablePath(version string) string {
	return filepath.Join(t.InstallDir(version), executableName(t.Metadata.Executable))
}

// DownloadPrebuilt asks the plugin where the artifact for version lives.
func (t *Tool) DownloadPrebuilt(ctx context.Context, version string) (*DownloadPrebuiltOutput, error) {
	in := DownloadPrebuiltInput{
		Version:    version,
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		InstallDir: t.env.ToVirtualPath(t.InstallDir(version)),
	}
	var out DownloadPrebuiltOutput
	if err := t.call(ctx, FuncDownloadPrebuilt, in, &out); err != nil {
		return nil, err
	}
	if out.DownloadURL == "" {
		return nil, fmt.Errorf("%s plugin did not return a download URL for version %s", t.ID, version)
	}
	if out.DownloadName == "" {
		u, err := url.Parse(out.DownloadURL)
		if err != nil {
			return nil, fmt.Errorf("%s plugin returned an invalid download URL %q: %w", t.ID, out.DownloadURL, err)
		}
		out.DownloadName = path.Base(u.Path)
	}
	return &out, nil
}

func (t *Tool) call(ctx context.Context, function string, in, out any) error {
	input, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode input for %s: %w", function, err)
	}
	output, err := t.handle.Call(ctx, function, input)
	if err != nil {
		return fmt.Errorf("%s plugin: %w", t.ID, err)
	}
	if err := json.Unmarshal(output, out); err != nil {
		return fmt.Errorf("%s plugin returned invalid output from %s: %w", t.ID, function, err)
	}
	return nil
}
