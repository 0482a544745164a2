// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package environment provides the session-wide state shared by every
// tool loaded in a proto invocation: the working, home and store
// directories, and the single configuration manager and plugin loader.
package environment

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/afero"

	"github.com/toolproto/proto/internal/httpclient"
	"github.com/toolproto/proto/internal/pluginloader"
	"github.com/toolproto/proto/internal/protoconfig"
	"github.com/toolproto/proto/internal/sandbox"
	"github.com/toolproto/proto/internal/store"
)

// Environment is shared by reference between all tools loaded in one
// session, so that they observe the same merged configuration and plugin
// cache.
//
// The configuration manager, plugin loader and plugin runtime are each
// built on first use, exactly once, even when first requested by several
// goroutines at the same time. A failure to build one is remembered and
// returned to every later caller.
type Environment struct {
	Cwd   string
	Home  string
	Root  string
	Store store.Store

	opts Options

	configManager func() (*protoconfig.Manager, error)
	pluginLoader  func() (*pluginloader.Loader, error)
	runtime       func() sandbox.Runtime
}

// New returns an environment for the current process, reading options
// from the process environment.
func New() (*Environment, error) {
	opts := OptionsFromEnv()
	root, err := store.ProtoHome(opts.StoreDir)
	if err != nil {
		return nil, err
	}
	return From(root, opts)
}

// From returns an environment for the current working directory and home
// directory, with its store at root.
func From(root string, opts Options) (*Environment, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to determine working directory: %w", err)
	}
	home, err := store.HomeDir()
	if err != nil {
		return nil, err
	}
	return newEnvironment(cwd, home, root, opts), nil
}

// NewTesting returns an environment confined to sandboxDir, which acts as
// working directory and home directory, with the store in
// sandboxDir/.proto. Unless opts says otherwise it is forced online so
// that tests never probe the network.
func NewTesting(sandboxDir string, opts Options) *Environment {
	if opts.Offline == nil {
		online := false
		opts.Offline = &online
	}
	return newEnvironment(sandboxDir, sandboxDir, filepath.Join(sandboxDir, store.DefaultDirName), opts)
}

func newEnvironment(cwd, home, root string, opts Options) *Environment {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	e := &Environment{
		Cwd:   filepath.Clean(cwd),
		Home:  filepath.Clean(home),
		Root:  filepath.Clean(root),
		Store: store.New(root),
		opts:  opts,
	}
	e.configManager = sync.OnceValues(e.loadConfigManager)
	e.pluginLoader = sync.OnceValues(e.buildPluginLoader)
	e.runtime = sync.OnceValue(func() sandbox.Runtime {
		if opts.Runtime != nil {
			return opts.Runtime
		}
		return sandbox.NewPluginRuntime()
	})
	return e
}

// Options returns the options the environment was created with.
func (e *Environment) Options() Options {
	return e.opts
}

// ConfigDir returns the directory whose configuration file is edited by
// commands: the store root for global changes, else the working
// directory.
func (e *Environment) ConfigDir(global bool) string {
	if global {
		return e.Root
	}
	return e.Cwd
}

// LoadConfigManager returns the configuration manager for the working
// directory, loading every applicable file on first use.
func (e *Environment) LoadConfigManager() (*protoconfig.Manager, error) {
	return e.configManager()
}

func (e *Environment) loadConfigManager() (*protoconfig.Manager, error) {
	log.Printf("[DEBUG] Loading configuration for %s", e.Cwd)
	loader := &protoconfig.Loader{Fs: e.opts.Fs}
	return loader.LoadWithGlobal(e.Cwd, e.Home, e.opts.EnvMode, e.Root)
}

// LoadConfig returns the merged configuration.
func (e *Environment) LoadConfig() (*protoconfig.Config, error) {
	m, err := e.LoadConfigManager()
	if err != nil {
		return nil, err
	}
	return m.MergedConfig(), nil
}

// PluginLoader returns the plugin loader, configured from the merged
// configuration on first use.
func (e *Environment) PluginLoader() (*pluginloader.Loader, error) {
	return e.pluginLoader()
}

func (e *Environment) buildPluginLoader() (*pluginloader.Loader, error) {
	cfg, err := e.LoadConfig()
	if err != nil {
		return nil, err
	}
	l := pluginloader.New(e.Store.PluginsDir, e.Store.TempDir)
	l.SetClientOptions(cfg.Settings.HTTP.ClientOptions())
	l.SetRegistryURL(cfg.Settings.RegistryURL)
	l.SetOfflineChecker(pluginloader.NewOfflineChecker(cfg.Settings.Offline, e.opts.Offline))
	return l, nil
}

// Runtime returns the plugin runtime.
func (e *Environment) Runtime() sandbox.Runtime {
	return e.runtime()
}

// HTTPClient returns a client following the configured HTTP settings,
// for tool artifact and checksum downloads.
func (e *Environment) HTTPClient(ctx context.Context) (*retryablehttp.Client, error) {
	cfg, err := e.LoadConfig()
	if err != nil {
		return nil, err
	}
	return httpclient.NewRetryable(ctx, cfg.Settings.HTTP.ClientOptions())
}
