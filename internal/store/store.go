// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package store computes the on-disk layout of a proto store: where
// plugins are cached, where downloads are staged and where tools are
// installed.
package store

import (
	"fmt"
	"path/filepath"

	"github.com/mitchellh/go-homedir"

	"github.com/toolproto/proto/internal/addrs"
)

// DefaultDirName is the name of the store directory under the user's
// home directory when no explicit store location is configured.
const DefaultDirName = ".proto"

// Store is the layout of a store rooted at Dir. It's a plain value and
// performs no filesystem operations itself.
type Store struct {
	Dir        string
	BinDir     string
	PluginsDir string
	TempDir    string
	ToolsDir   string
}

// New returns the layout of the store rooted at the given directory.
func New(dir string) Store {
	dir = filepath.Clean(dir)
	return Store{
		Dir:        dir,
		BinDir:     filepath.Join(dir, "bin"),
		PluginsDir: filepath.Join(dir, "plugins"),
		TempDir:    filepath.Join(dir, "temp"),
		ToolsDir:   filepath.Join(dir, "tools"),
	}
}

// ToolDir is the directory containing every installed version of a tool.
func (s Store) ToolDir(id addrs.ToolID) string {
	return filepath.Join(s.ToolsDir, string(id))
}

// InstallDir is the directory a single version of a tool is installed into.
func (s Store) InstallDir(id addrs.ToolID, version string) string {
	return filepath.Join(s.ToolDir(id), version)
}

// ToolTempDir is where downloads for a tool are staged before
// verification and installation.
func (s Store) ToolTempDir(id addrs.ToolID) string {
	return filepath.Join(s.TempDir, string(id))
}

// HomeDir returns the current user's home directory.
func HomeDir() (string, error) {
	dir, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Clean(dir), nil
}

// ProtoHome returns the store root. An explicit override, typically taken
// from the PROTO_HOME environment variable, wins; otherwise the store
// lives in DefaultDirName under the home directory.
func ProtoHome(override string) (string, error) {
	if override != "" {
		expanded, err := homedir.Expand(override)
		if err != nil {
			return "", fmt.Errorf("invalid store directory %q: %w", override, err)
		}
		return filepath.Abs(expanded)
	}
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultDirName), nil
}
