// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package traceattrs

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute names for proto-specific semantic conventions, used alongside
// the general OpenTelemetry ones.
//
// The functions take strings rather than the richer types from elsewhere
// in this module so that this package has no internal imports and can be
// used from anywhere without import cycles.
const (
	ToolIDName        = "proto.tool.id"
	ToolVersionName   = "proto.tool.version"
	PluginLocatorName = "proto.plugin.locator"
)

// ToolID returns an attribute naming the tool a span relates to.
func ToolID(id string) attribute.KeyValue {
	return attribute.String(ToolIDName, id)
}

// ToolVersion returns an attribute naming the tool version a span relates
// to, typically alongside [ToolID].
func ToolVersion(v string) attribute.KeyValue {
	return attribute.String(ToolVersionName, v)
}

// PluginLocator returns an attribute for the canonical string form of a
// plugin locator.
func PluginLocator(locator string) attribute.KeyValue {
	return attribute.String(PluginLocatorName, locator)
}
