// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package protoconfig

import (
	"github.com/toolproto/proto/internal/addrs"
)

// ConfigFile is one configuration file found while walking the directory
// hierarchy. It's immutable after loading.
type ConfigFile struct {
	// Path is the absolute path the file was expected at.
	Path string

	// Exists is false if there was no file at Path, in which case Config
	// is empty.
	Exists bool

	// Global is true only for the store-level configuration file that is
	// always consulted last.
	Global bool

	Config *FileConfig
}

// FileConfig is the content of a single configuration file.
//
// Settings fields are pointers so that a field a file does not mention
// can be told apart from one explicitly set to its zero value. This is
// what allows a closer file to set only some fields and leave the rest
// to files further away.
type FileConfig struct {
	Versions map[addrs.ToolID]string
	Plugins  map[addrs.ToolID]addrs.PluginLocator
	Settings FileSettings
}

// FileSettings is the "settings" block of a single file.
type FileSettings struct {
	AutoInstall *bool   `hcl:"auto_install,optional"`
	AutoClean   *bool   `hcl:"auto_clean,optional"`
	RegistryURL *string `hcl:"registry_url,optional"`

	HTTP    *FileHTTPSettings    `hcl:"http,block"`
	Offline *FileOfflineSettings `hcl:"offline,block"`
}

// FileHTTPSettings is the "http" block nested in "settings".
type FileHTTPSettings struct {
	AllowInvalidCerts *bool     `hcl:"allow_invalid_certs,optional"`
	Proxies           *[]string `hcl:"proxies,optional"`
	RootCert          *string   `hcl:"root_cert,optional"`
	RetryCount        *int      `hcl:"retry_count,optional"`
	TimeoutSeconds    *int      `hcl:"timeout_seconds,optional"`
}

// FileOfflineSettings is the "offline" block nested in "settings".
type FileOfflineSettings struct {
	TimeoutMs            *int      `hcl:"timeout_ms,optional"`
	OverrideDefaultHosts *bool     `hcl:"override_default_hosts,optional"`
	CustomHosts          *[]string `hcl:"custom_hosts,optional"`
}

func emptyFileConfig() *FileConfig {
	return &FileConfig{
		Versions: map[addrs.ToolID]string{},
		Plugins:  map[addrs.ToolID]addrs.PluginLocator{},
	}
}
