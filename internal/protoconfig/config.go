// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package protoconfig

import (
	"time"

	"github.com/toolproto/proto/internal/addrs"
	"github.com/toolproto/proto/internal/httpclient"
)

// Built-in defaults, applied to the merged configuration for any setting
// that no configuration file set.
var (
	// DefaultSchemaPluginLocator is where the shared schema plugin comes
	// from unless a configuration file overrides the internal-schema
	// plugin entry.
	DefaultSchemaPluginLocator addrs.PluginLocator = addrs.RegistryLocator{Name: "schema-plugin", Version: "0.1.0"}

	DefaultRegistryURL    = "https://plugins.toolproto.dev/v1"
	DefaultOfflineTimeout = 750 * time.Millisecond
)

// Config is the result of merging all of the configuration files that
// apply to a directory, with built-in defaults filled in.
//
// A Config is shared by every tool loaded in a session and must be
// treated as read-only.
type Config struct {
	Versions map[addrs.ToolID]string
	Plugins  map[addrs.ToolID]addrs.PluginLocator
	Settings Settings
}

// Settings is the merged settings block.
type Settings struct {
	AutoInstall bool
	AutoClean   bool
	RegistryURL string
	HTTP        HTTPSettings
	Offline     OfflineSettings
}

// HTTPSettings configures the client used for every download.
type HTTPSettings struct {
	AllowInvalidCerts bool
	Proxies           []string
	RootCert          string
	RetryCount        int
	Timeout           time.Duration
}

// ClientOptions converts the settings to the options understood by the
// httpclient package.
func (s HTTPSettings) ClientOptions() httpclient.Options {
	return httpclient.Options{
		AllowInvalidCerts: s.AllowInvalidCerts,
		Proxies:           s.Proxies,
		RootCert:          s.RootCert,
		RetryCount:        s.RetryCount,
		Timeout:           s.Timeout,
	}
}

// OfflineSettings configures how proto decides whether the network is
// reachable.
type OfflineSettings struct {
	Timeout              time.Duration
	OverrideDefaultHosts bool
	CustomHosts          []string
}

// PluginLocator returns the locator configured for the given tool.
func (c *Config) PluginLocator(id addrs.ToolID) (addrs.PluginLocator, bool) {
	loc, ok := c.Plugins[id]
	return loc, ok
}

// SchemaPluginLocator returns the locator of the shared schema plugin.
// It is always set, because a default is applied during the merge.
func (c *Config) SchemaPluginLocator() addrs.PluginLocator {
	return c.Plugins[addrs.SchemaPluginID]
}

// ToolIDs returns the ids of every configured tool plugin, in order,
// excluding the schema plugin.
func (c *Config) ToolIDs() []addrs.ToolID {
	ids := make(addrs.ToolIDSet, len(c.Plugins))
	for id := range c.Plugins {
		if !id.IsSchemaPlugin() {
			ids.Add(id)
		}
	}
	return ids.Sorted()
}
