// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package addrs

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// PluginLocator describes where the plugin for a tool comes from.
//
// This is a closed interface: the only implementations are FileLocator,
// URLLocator and RegistryLocator. Code that consumes a locator should
// use a type switch covering all three and panic in the default case,
// so that adding a new kind of locator is a deliberate change.
//
// All implementations are comparable, and two locators are equal when
// both their kind and their payload are equal.
type PluginLocator interface {
	// String returns the canonical prefixed form of the locator, which
	// ParsePluginLocator accepts.
	String() string

	pluginLocatorSigil()
}

// FileLocator is a plugin file on the local filesystem.
type FileLocator struct {
	// File is the path as it was written in configuration.
	File string
	// Path is the absolute path, resolved against the directory of the
	// configuration file that declared it.
	Path string
}

var _ PluginLocator = FileLocator{}

func (l FileLocator) pluginLocatorSigil() {}

func (l FileLocator) String() string {
	return "path:" + l.File
}

// URLLocator is a plugin file downloaded from an http or https URL.
type URLLocator struct {
	URL string
}

var _ PluginLocator = URLLocator{}

func (l URLLocator) pluginLocatorSigil() {}

func (l URLLocator) String() string {
	return "url:" + l.URL
}

// RegistryLocator is a named plugin published in a plugin registry.
// An empty Version selects the latest published version.
type RegistryLocator struct {
	Name    string
	Version string
}

var _ PluginLocator = RegistryLocator{}

func (l RegistryLocator) pluginLocatorSigil() {}

func (l RegistryLocator) String() string {
	if l.Version == "" {
		return "registry:" + l.Name
	}
	return "registry:" + l.Name + "@" + l.Version
}

// IsPinned returns true if the locator names a specific version.
func (l RegistryLocator) IsPinned() bool {
	return l.Version != "" && l.Version != "latest"
}

// ParsePluginLocator parses a locator string as written in a config
// file. Relative file paths are resolved against baseDir, which should be
// the directory containing the file the locator came from.
func ParsePluginLocator(raw string, baseDir string) (PluginLocator, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("plugin locator must not be empty")
	}

	switch {
	case strings.HasPrefix(raw, "path:"):
		return parseFileLocator(strings.TrimPrefix(raw, "path:"), baseDir)
	case strings.HasPrefix(raw, "source:"):
		// Older configuration files used "source:" for local files.
		return parseFileLocator(strings.TrimPrefix(raw, "source:"), baseDir)
	case strings.HasPrefix(raw, "url:"):
		return parseURLLocator(strings.TrimPrefix(raw, "url:"))
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return parseURLLocator(raw)
	case strings.HasPrefix(raw, "registry:"):
		return parseRegistryLocator(strings.TrimPrefix(raw, "registry:"))
	default:
		return nil, fmt.Errorf("invalid plugin locator %q: must start with path:, url:, registry:, or be an http(s) URL", raw)
	}
}

func parseFileLocator(file string, baseDir string) (PluginLocator, error) {
	if file == "" {
		return nil, fmt.Errorf("file plugin locator must include a path")
	}
	abs := file
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(baseDir, filepath.FromSlash(file))
	}
	return FileLocator{File: file, Path: filepath.Clean(abs)}, nil
}

func parseURLLocator(raw string) (PluginLocator, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid plugin URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid plugin URL %q: only http and https are supported", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid plugin URL %q: missing host", raw)
	}
	return URLLocator{URL: raw}, nil
}

func parseRegistryLocator(raw string) (PluginLocator, error) {
	name, version, _ := strings.Cut(raw, "@")
	if name == "" {
		return nil, fmt.Errorf("registry plugin locator must include a plugin name")
	}
	if strings.ContainsAny(name, " /\\") {
		return nil, fmt.Errorf("invalid registry plugin name %q", name)
	}
	return RegistryLocator{Name: name, Version: version}, nil
}

// IsSchemaDocument returns true if the locator points at a schema
// document rather than an executable plugin. Tools described by a schema
// document are run by the shared schema plugin.
func IsSchemaDocument(locator PluginLocator) bool {
	var p string
	switch l := locator.(type) {
	case FileLocator:
		p = l.Path
	case URLLocator:
		u, err := url.Parse(l.URL)
		if err != nil {
			return false
		}
		p = u.Path
	case RegistryLocator:
		return false
	default:
		panic(fmt.Sprintf("unsupported plugin locator type %T", locator))
	}
	switch strings.ToLower(path.Ext(filepath.ToSlash(p))) {
	case ".toml", ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
