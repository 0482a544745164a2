// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package tool

// Functions a tool plugin exports. Each takes and returns a JSON object.
const (
	FuncRegisterTool     = "register_tool"
	FuncLoadVersions     = "load_versions"
	FuncDownloadPrebuilt = "download_prebuilt"
)

// ToolType classifies a tool for display purposes.
type ToolType string

const (
	ToolTypeLanguage          ToolType = "language"
	ToolTypeDependencyManager ToolType = "dependency-manager"
	ToolTypeCLI               ToolType = "cli"
)

type RegisterToolInput struct {
	ID string `json:"id"`
}

// RegisterToolOutput is the metadata a plugin reports about its tool.
type RegisterToolOutput struct {
	Name          string   `json:"name"`
	Type          ToolType `json:"type"`
	PluginVersion string   `json:"plugin_version,omitempty"`

	// Executable is the name of the primary executable inside an
	// installation. It defaults to the tool id.
	Executable string `json:"executable,omitempty"`
}

type LoadVersionsInput struct {
	Initial string `json:"initial,omitempty"`
}

// LoadVersionsOutput lists the versions available for a tool.
type LoadVersionsOutput struct {
	Versions []string          `json:"versions"`
	Latest   string            `json:"latest,omitempty"`
	Aliases  map[string]string `json:"aliases,omitempty"`
}

type DownloadPrebuiltInput struct {
	Version string `json:"version"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`

	// InstallDir is a virtual path.
	InstallDir string `json:"install_dir"`
}

// DownloadPrebuiltOutput tells proto where to fetch a prebuilt artifact
// and how to check it.
type DownloadPrebuiltOutput struct {
	DownloadURL  string `json:"download_url"`
	DownloadName string `json:"download_name,omitempty"`

	// ArchivePrefix is a directory inside the archive whose contents
	// become the root of the installation.
	ArchivePrefix string `json:"archive_prefix,omitempty"`

	// ChecksumURL locates a SHA-256 manifest covering the artifact. When
	// it's empty the tool does not support checksum verification.
	ChecksumURL  string `json:"checksum_url,omitempty"`
	ChecksumName string `json:"checksum_name,omitempty"`

	// ChecksumPublicKey is an ASCII-armored OpenPGP key. When set, the
	// manifest must carry a detached signature at ChecksumURL + ".sig".
	ChecksumPublicKey string `json:"checksum_public_key,omitempty"`
}
