// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package environment

import (
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Virtual paths under which plugins see host directories.
const (
	VirtualCwd      = "/cwd"
	VirtualStore    = "/proto"
	VirtualUserHome = "/userhome"
)

// VirtualPaths maps each virtual path to the host directory it stands
// for.
func (e *Environment) VirtualPaths() map[string]string {
	return map[string]string{
		VirtualCwd:      e.Cwd,
		VirtualStore:    e.Root,
		VirtualUserHome: e.Home,
	}
}

type mapping struct {
	virtual string
	host    string
}

// mappings returns the virtual paths ordered so that deeper host paths
// come first. The store is usually inside the home directory and the
// most specific mapping must win.
func (e *Environment) mappings() []mapping {
	ret := make([]mapping, 0, 3)
	for v, h := range e.VirtualPaths() {
		ret = append(ret, mapping{virtual: v, host: h})
	}
	sort.Slice(ret, func(i, j int) bool {
		if len(ret[i].host) != len(ret[j].host) {
			return len(ret[i].host) > len(ret[j].host)
		}
		return ret[i].virtual < ret[j].virtual
	})
	return ret
}

// ToVirtualPath converts a host path to the path a plugin sees. Paths
// outside every mapped directory are returned unchanged.
func (e *Environment) ToVirtualPath(hostPath string) string {
	hostPath = filepath.Clean(hostPath)
	for _, m := range e.mappings() {
		rel, err := filepath.Rel(m.host, hostPath)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if rel == "." {
			return m.virtual
		}
		return path.Join(m.virtual, filepath.ToSlash(rel))
	}
	return hostPath
}

// FromVirtualPath converts a path reported by a plugin back to a host
// path. Paths outside every virtual directory are returned unchanged.
func (e *Environment) FromVirtualPath(virtualPath string) string {
	for _, m := range e.mappings() {
		if virtualPath == m.virtual {
			return m.host
		}
		if rest, ok := strings.CutPrefix(virtualPath, m.virtual+"/"); ok {
			return filepath.Join(m.host, filepath.FromSlash(rest))
		}
	}
	return virtualPath
}
