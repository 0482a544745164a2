// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"github.com/mitchellh/cli"

	"github.com/toolproto/proto/internal/command"
	"github.com/toolproto/proto/version"
)

func initCommands(meta command.Meta) map[string]cli.CommandFactory {
	return map[string]cli.CommandFactory{
		"install": func() (cli.Command, error) {
			return &command.InstallCommand{Meta: meta}, nil
		},
		"plugins": func() (cli.Command, error) {
			return &command.PluginsCommand{Meta: meta}, nil
		},
		"version": func() (cli.Command, error) {
			return &command.VersionCommand{
				Meta:              meta,
				Version:           version.Version,
				VersionPrerelease: version.Prerelease,
				Platform:          version.Platform(),
			}, nil
		},
	}
}
