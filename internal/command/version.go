// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/cli"

	"github.com/toolproto/proto/internal/logging"
	"github.com/toolproto/proto/version"
)

// VersionCommand prints the version of proto.
type VersionCommand struct {
	Meta

	Version           string
	VersionPrerelease string
	Platform          string
}

type versionOutput struct {
	Version  string `json:"proto_version"`
	Platform string `json:"platform"`
}

func (c *VersionCommand) Help() string {
	helpText := `
Usage: proto version [options]

  Displays the version of proto.

Options:

  -json       Output the version information as a JSON object.
`
	return strings.TrimSpace(helpText)
}

func (c *VersionCommand) Synopsis() string {
	return "Show the current proto version"
}

func (c *VersionCommand) Run(args []string) int {
	var jsonOutput bool
	f := c.defaultFlagSet("version")
	f.BoolVar(&jsonOutput, "json", false, "json")
	if err := f.Parse(args); err != nil {
		c.Ui.Error(fmt.Sprintf("Error parsing command-line flags: %s\n", err))
		return cli.RunResultHelp
	}

	v := c.Version
	if c.VersionPrerelease != "" {
		v = fmt.Sprintf("%s-%s", v, c.VersionPrerelease)
	}

	if jsonOutput {
		out, err := json.MarshalIndent(versionOutput{Version: v, Platform: c.Platform}, "", "  ")
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Error: %s", err))
			return 1
		}
		c.Ui.Output(string(out))
		return 0
	}

	c.Ui.Output(fmt.Sprintf("proto v%s\non %s", v, c.Platform))
	if logging.IsDebugOrHigher() {
		for _, mod := range version.InterestingDependencies() {
			c.Ui.Output(fmt.Sprintf("  %s %s", mod.Path, mod.Version))
		}
	}
	return 0
}
