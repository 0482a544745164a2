// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package protoconfig loads and merges the .prototools configuration
// files that apply to a directory.
//
// Files are found by walking upward from a starting directory. Each file
// may pin tool versions, map tool ids to plugin locators and adjust
// settings. Files closer to the starting directory take precedence over
// files further away, key by key, and the store-level global file is
// always consulted last.
package protoconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/spf13/afero"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/toolproto/proto/internal/addrs"
)

// ConfigName is the file name looked for in each directory.
const ConfigName = ".prototools"

// ModeConfigName returns the file name of the variant of the
// configuration file for the given environment mode.
func ModeConfigName(mode string) string {
	return ConfigName + "." + mode
}

// Loader finds and parses configuration files on a filesystem.
type Loader struct {
	Fs afero.Fs
}

// NewLoader returns a loader for the real filesystem.
func NewLoader() *Loader {
	return &Loader{Fs: afero.NewOsFs()}
}

type rootSchema struct {
	Plugins  *pluginsSchema `hcl:"plugins,block"`
	Settings *FileSettings  `hcl:"settings,block"`
	Remain   hcl.Body       `hcl:",remain"`
}

type pluginsSchema struct {
	Remain hcl.Body `hcl:",remain"`
}

// LoadFile loads the configuration file at the given path. A missing file
// is not an error: the result has Exists set to false and an empty
// configuration.
func (l *Loader) LoadFile(path string, global bool) (*ConfigFile, error) {
	ret := &ConfigFile{
		Path:   path,
		Global: global,
		Config: emptyFileConfig(),
	}

	src, err := afero.ReadFile(l.Fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Printf("[TRACE] protoconfig: no configuration at %s", path)
			return ret, nil
		}
		return nil, &ConfigError{
			Path: path,
			Diags: hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Failed to read configuration file",
				Detail:   fmt.Sprintf("Could not read %s: %s.", path, err),
			}},
		}
	}

	log.Printf("[DEBUG] protoconfig: loading %s", path)
	cfg, diags := parseFileConfig(src, path)
	if diags.HasErrors() {
		return nil, &ConfigError{Path: path, Diags: diags}
	}
	ret.Exists = true
	ret.Config = cfg
	return ret, nil
}

func parseFileConfig(src []byte, path string) (*FileConfig, hcl.Diagnostics) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, diags
	}

	var root rootSchema
	diags = append(diags, gohcl.DecodeBody(file.Body, nil, &root)...)
	if diags.HasErrors() {
		return nil, diags
	}

	ret := emptyFileConfig()
	baseDir := filepath.Dir(path)

	attrs, moreDiags := root.Remain.JustAttributes()
	diags = append(diags, moreDiags...)
	for name, attr := range attrs {
		id, ok := decodeToolID(name, attr.NameRange, &diags)
		if !ok {
			continue
		}
		v, ok := decodeString(attr, &diags)
		if !ok {
			continue
		}
		ret.Versions[id] = v
	}

	if root.Plugins != nil {
		attrs, moreDiags := root.Plugins.Remain.JustAttributes()
		diags = append(diags, moreDiags...)
		for name, attr := range attrs {
			id, ok := decodeToolID(name, attr.NameRange, &diags)
			if !ok {
				continue
			}
			raw, ok := decodeString(attr, &diags)
			if !ok {
				continue
			}
			loc, err := addrs.ParsePluginLocator(raw, baseDir)
			if err != nil {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Invalid plugin locator",
					Detail:   fmt.Sprintf("Cannot use %q as the plugin for %q: %s.", raw, id, err),
					Subject:  attr.Expr.Range().Ptr(),
				})
				continue
			}
			ret.Plugins[id] = loc
		}
	}

	if root.Settings != nil {
		ret.Settings = *root.Settings
		if http := ret.Settings.HTTP; http != nil && http.RootCert != nil && *http.RootCert != "" && !filepath.IsAbs(*http.RootCert) {
			abs := filepath.Join(baseDir, filepath.FromSlash(*http.RootCert))
			http.RootCert = &abs
		}
		diags = append(diags, validateSettings(&ret.Settings)...)
	}

	return ret, diags
}

func decodeToolID(name string, rng hcl.Range, diags *hcl.Diagnostics) (addrs.ToolID, bool) {
	id, err := addrs.ParseToolID(name)
	if err != nil {
		*diags = append(*diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid tool id",
			Detail:   fmt.Sprintf("%s.", err),
			Subject:  rng.Ptr(),
		})
		return "", false
	}
	return id, true
}

func decodeString(attr *hcl.Attribute, diags *hcl.Diagnostics) (string, bool) {
	val, moreDiags := attr.Expr.Value(nil)
	*diags = append(*diags, moreDiags...)
	if moreDiags.HasErrors() {
		return "", false
	}
	strVal, err := convert.Convert(val, cty.String)
	if err != nil || strVal.IsNull() || !strVal.IsKnown() || strings.TrimSpace(strVal.AsString()) == "" {
		*diags = append(*diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid value",
			Detail:   fmt.Sprintf("The value for %q must be a non-empty string.", attr.Name),
			Subject:  attr.Expr.Range().Ptr(),
		})
		return "", false
	}
	return strVal.AsString(), true
}

func validateSettings(s *FileSettings) hcl.Diagnostics {
	var diags hcl.Diagnostics
	negative := func(name string) {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid setting",
			Detail:   fmt.Sprintf("The %s setting must not be negative.", name),
		})
	}
	if h := s.HTTP; h != nil {
		if h.RetryCount != nil && *h.RetryCount < 0 {
			negative("http.retry_count")
		}
		if h.TimeoutSeconds != nil && *h.TimeoutSeconds < 0 {
			negative("http.timeout_seconds")
		}
	}
	if o := s.Offline; o != nil && o.TimeoutMs != nil && *o.TimeoutMs < 0 {
		negative("offline.timeout_ms")
	}
	return diags
}

// Load walks upward from startDir, loading the base configuration file
// and, if envMode is set, the mode variant in each directory.
//
// When startDir is inside endDir the walk stops after endDir, so that
// configuration outside the user's home directory never applies to a
// project inside it. Otherwise the walk continues to the filesystem root.
//
// A ConfigFile is recorded for every file looked for, whether or not it
// exists. Any file that exists but is invalid fails the whole load with a
// ConfigError.
func (l *Loader) Load(startDir, endDir, envMode string) (*Manager, error) {
	files, err := l.walk(startDir, endDir, envMode)
	if err != nil {
		return nil, err
	}
	return NewManager(files), nil
}

// LoadWithGlobal is like Load but also appends the global configuration
// file in rootDir, which is always last.
func (l *Loader) LoadWithGlobal(startDir, endDir, envMode, rootDir string) (*Manager, error) {
	files, err := l.walk(startDir, endDir, envMode)
	if err != nil {
		return nil, err
	}
	global, err := l.LoadFile(filepath.Join(rootDir, ConfigName), true)
	if err != nil {
		return nil, err
	}
	return NewManager(append(files, global)), nil
}

func (l *Loader) walk(startDir, endDir, envMode string) ([]*ConfigFile, error) {
	current := filepath.Clean(startDir)
	boundary := ""
	if endDir != "" && isWithin(current, filepath.Clean(endDir)) {
		boundary = filepath.Clean(endDir)
	}

	var files []*ConfigFile
	for {
		file, err := l.LoadFile(filepath.Join(current, ConfigName), false)
		if err != nil {
			return nil, err
		}
		files = append(files, file)

		if envMode != "" {
			file, err := l.LoadFile(filepath.Join(current, ModeConfigName(envMode)), false)
			if err != nil {
				return nil, err
			}
			files = append(files, file)
		}

		if current == boundary {
			break
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return files, nil
}

// isWithin reports whether dir is base or a descendent of it.
func isWithin(dir, base string) bool {
	rel, err := filepath.Rel(base, dir)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
