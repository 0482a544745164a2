// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/mitchellh/cli"

	"github.com/toolproto/proto/internal/addrs"
)

// PluginsCommand lists the configured plugins and where they come from.
type PluginsCommand struct {
	Meta
}

func (c *PluginsCommand) Help() string {
	helpText := `
Usage: proto plugins [options]

  Lists every configured tool plugin and its locator, as merged from all
  applicable .prototools files.

Options:

  -no-color   Disable color in the output.
`
	return strings.TrimSpace(helpText)
}

func (c *PluginsCommand) Synopsis() string {
	return "List configured plugins"
}

func (c *PluginsCommand) Run(args []string) int {
	f := c.defaultFlagSet("plugins")
	if err := f.Parse(args); err != nil {
		c.Ui.Error(fmt.Sprintf("Error parsing command-line flags: %s\n", err))
		return cli.RunResultHelp
	}
	if f.NArg() > 0 {
		c.Ui.Error("The plugins command expects no arguments.")
		return cli.RunResultHelp
	}

	cfg, err := c.Env.LoadConfig()
	if err != nil {
		c.errorUi().Error(errorMessage(err))
		return 1
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	for _, id := range cfg.ToolIDs() {
		locator, _ := cfg.PluginLocator(id)
		version := cfg.Versions[id]
		if version == "" {
			version = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", id, version, locator)
	}
	w.Flush()

	if buf.Len() == 0 {
		c.Ui.Output("No plugins are configured.")
	} else {
		c.Ui.Output(strings.TrimRight(buf.String(), "\n"))
	}
	c.Ui.Output(c.Colorize().Color(fmt.Sprintf("\n[dark_gray]%s: %s", addrs.SchemaPluginID, cfg.SchemaPluginLocator())))
	return 0
}
