// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package addrs

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ToolID is the identifier of a configured tool, such as "node" or "go".
//
// A ToolID is used as a map key throughout the configuration and loading
// layers, and so it is always in its normalized lowercase form. Construct
// values with ParseToolID rather than by direct conversion.
type ToolID string

// SchemaPluginID is the reserved id of the shared plugin that drives
// schema-described tools. It is infrastructure and is never loaded as a
// tool in its own right.
const SchemaPluginID ToolID = "internal-schema"

var validToolID = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ParseToolID validates the given string as a tool id.
func ParseToolID(s string) (ToolID, error) {
	if !validToolID.MatchString(s) {
		return "", fmt.Errorf("invalid tool id %q: must start with a lowercase letter and contain only lowercase letters, digits, dashes and underscores", s)
	}
	return ToolID(s), nil
}

// MustParseToolID is like ParseToolID but panics on error. It's for
// constants and tests.
func MustParseToolID(s string) ToolID {
	id, err := ParseToolID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ToolID) String() string {
	return string(id)
}

// IsSchemaPlugin returns true if the id is the reserved schema plugin id.
func (id ToolID) IsSchemaPlugin() bool {
	return id == SchemaPluginID
}

// ToolIDSet is a set of tool ids. The zero value is an empty set that
// can be read but not written.
type ToolIDSet map[ToolID]struct{}

func NewToolIDSet(ids ...ToolID) ToolIDSet {
	ret := make(ToolIDSet, len(ids))
	for _, id := range ids {
		ret[id] = struct{}{}
	}
	return ret
}

func (s ToolIDSet) Add(id ToolID) {
	s[id] = struct{}{}
}

func (s ToolIDSet) Has(id ToolID) bool {
	_, ok := s[id]
	return ok
}

func (s ToolIDSet) Len() int {
	return len(s)
}

// Sorted returns the members of the set in lexical order.
func (s ToolIDSet) Sorted() []ToolID {
	ret := make([]ToolID, 0, len(s))
	for id := range s {
		ret = append(ret, id)
	}
	slices.Sort(ret)
	return ret
}

func (s ToolIDSet) String() string {
	sorted := s.Sorted()
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
