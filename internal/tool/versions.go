// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package tool

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/toolproto/proto/internal/addrs"
)

// Version requirements naming the newest stable release.
const (
	AliasLatest = "latest"
	AliasStable = "stable"
)

// Plugin aliases may refer to other aliases, up to this depth.
const maxAliasDepth = 5

var partialVersionPattern = regexp.MustCompile(`^v?\d+(\.\d+)?$`)

// VersionSet is the set of versions a plugin makes available.
type VersionSet struct {
	ID addrs.ToolID

	// Versions is sorted from oldest to newest.
	Versions version.Collection
	Latest   *version.Version
	Aliases  map[string]string
}

// NewVersionSet builds a set from a plugin's load_versions output.
// Entries that aren't valid versions are skipped.
func NewVersionSet(id addrs.ToolID, out *LoadVersionsOutput) *VersionSet {
	vs := &VersionSet{ID: id, Aliases: out.Aliases}
	for _, raw := range out.Versions {
		v, err := version.NewVersion(raw)
		if err != nil {
			log.Printf("[WARN] tool: %s plugin listed invalid version %q: %s", id, raw, err)
			continue
		}
		vs.Versions = append(vs.Versions, v)
	}
	sort.Sort(vs.Versions)
	if out.Latest != "" {
		if v, err := version.NewVersion(out.Latest); err == nil {
			vs.Latest = v
		} else {
			log.Printf("[WARN] tool: %s plugin reported invalid latest version %q: %s", id, out.Latest, err)
		}
	}
	if vs.Latest == nil {
		vs.Latest = vs.newest(func(v *version.Version) bool { return v.Prerelease() == "" })
	}
	return vs
}

// Resolve finds the version a requirement refers to. A requirement is an
// alias, an exact version, a partial version such as "1" or "1.2" that
// selects the newest matching release, or a constraint such as
// ">= 1.2, < 2" or "~> 1.4".
func (vs *VersionSet) Resolve(req string) (*version.Version, error) {
	return vs.resolve(strings.TrimSpace(req), 0)
}

func (vs *VersionSet) resolve(req string, depth int) (*version.Version, error) {
	notFound := &VersionNotFoundError{ID: vs.ID, Requirement: req}

	switch req {
	case "", AliasLatest, AliasStable:
		if target, ok := vs.Aliases[req]; ok && req != "" {
			return vs.resolveAlias(req, target, depth)
		}
		if vs.Latest == nil {
			return nil, notFound
		}
		return vs.Latest, nil
	}
	if target, ok := vs.Aliases[req]; ok {
		return vs.resolveAlias(req, target, depth)
	}

	if partialVersionPattern.MatchString(req) {
		want, err := version.NewVersion(req)
		if err != nil {
			return nil, notFound
		}
		prefix := want.Segments()[:strings.Count(req, ".")+1]
		if v := vs.newest(func(v *version.Version) bool {
			return v.Prerelease() == "" && hasSegmentPrefix(v, prefix)
		}); v != nil {
			return v, nil
		}
		return nil, notFound
	}

	if want, err := version.NewVersion(req); err == nil {
		if v := vs.newest(want.Equal); v != nil {
			return v, nil
		}
		return nil, notFound
	}

	constraints, err := version.NewConstraint(req)
	if err != nil {
		return nil, fmt.Errorf("invalid version requirement %q for %s: %w", req, vs.ID, err)
	}
	if v := vs.newest(constraints.Check); v != nil {
		return v, nil
	}
	return nil, notFound
}

func (vs *VersionSet) resolveAlias(name, target string, depth int) (*version.Version, error) {
	if depth >= maxAliasDepth {
		return nil, fmt.Errorf("version alias %q for %s is nested too deeply", name, vs.ID)
	}
	if target == name {
		return nil, fmt.Errorf("version alias %q for %s refers to itself", name, vs.ID)
	}
	return vs.resolve(strings.TrimSpace(target), depth+1)
}

func (vs *VersionSet) newest(match func(*version.Version) bool) *version.Version {
	for i := len(vs.Versions) - 1; i >= 0; i-- {
		if match(vs.Versions[i]) {
			return vs.Versions[i]
		}
	}
	return nil
}

func hasSegmentPrefix(v *version.Version, prefix []int) bool {
	segs := v.Segments()
	for i, want := range prefix {
		if i >= len(segs) || segs[i] != want {
			return false
		}
	}
	return true
}

// LoadVersions asks the plugin for the available versions. The result is
// cached for the life of the Tool.
func (t *Tool) LoadVersions(ctx context.Context) (*VersionSet, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.versions != nil {
		return t.versions, nil
	}
	var out LoadVersionsOutput
	if err := t.call(ctx, FuncLoadVersions, LoadVersionsInput{}, &out); err != nil {
		return nil, err
	}
	t.versions = NewVersionSet(t.ID, &out)
	log.Printf("[DEBUG] tool: %s has %d available versions", t.ID, len(t.versions.Versions))
	return t.versions, nil
}

// ResolveVersion resolves a version requirement against the versions the
// plugin makes available, returning the version as the plugin spelled it.
func (t *Tool) ResolveVersion(ctx context.Context, req string) (string, error) {
	vs, err := t.LoadVersions(ctx)
	if err != nil {
		return "", err
	}
	v, err := vs.Resolve(req)
	if err != nil {
		return "", err
	}
	return v.Original(), nil
}
