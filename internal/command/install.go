// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mitchellh/cli"
	"golang.org/x/sync/errgroup"

	"github.com/toolproto/proto/internal/addrs"
	"github.com/toolproto/proto/internal/tool"
	"github.com/toolproto/proto/internal/toolloader"
)

// maxParallelInstalls limits how many tools are downloaded at once.
const maxParallelInstalls = 4

// InstallCommand installs the configured version of each configured
// tool.
type InstallCommand struct {
	Meta
}

func (c *InstallCommand) Help() string {
	helpText := `
Usage: proto install [options] [TOOL...]

  Installs the version of each tool pinned in .prototools files. With
  arguments, only the named tools are installed.

Options:

  -no-color   Disable color in the output.
`
	return strings.TrimSpace(helpText)
}

func (c *InstallCommand) Synopsis() string {
	return "Install configured tools"
}

func (c *InstallCommand) Run(args []string) int {
	f := c.defaultFlagSet("install")
	if err := f.Parse(args); err != nil {
		c.Ui.Error(fmt.Sprintf("Error parsing command-line flags: %s\n", err))
		return cli.RunResultHelp
	}
	ui := &cli.ConcurrentUi{Ui: c.errorUi()}
	color := c.Colorize()

	filter := addrs.NewToolIDSet()
	for _, arg := range f.Args() {
		id, err := addrs.ParseToolID(arg)
		if err != nil {
			ui.Error(errorMessage(err))
			return 1
		}
		filter.Add(id)
	}

	ctx := c.commandContext()
	cfg, err := c.Env.LoadConfig()
	if err != nil {
		ui.Error(errorMessage(err))
		return 1
	}
	for _, id := range filter.Sorted() {
		if _, ok := cfg.PluginLocator(id); !ok {
			ui.Warn(fmt.Sprintf("Warning: %s is not configured, skipping", id))
		}
	}

	tools, err := toolloader.LoadTools(ctx, c.Env, filter)
	if err != nil {
		ui.Error(errorMessage(err))
		return 1
	}
	defer func() {
		for _, t := range tools {
			t.Close()
		}
	}()
	if len(tools) == 0 {
		ui.Output("No tools to install.")
		return 0
	}
	slices.SortFunc(tools, func(a, b *tool.Tool) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})

	if c.ShowProgress {
		ctx = tool.ContextWithInstallerEvents(ctx, &tool.InstallerEvents{
			DownloadStart: func(id addrs.ToolID, version string, url string) {
				ui.Info(color.Color(fmt.Sprintf("[dark_gray]%s %s: downloading %s", id, version, url)))
			},
			Verified: func(id addrs.ToolID, version string, result tool.VerificationResult) {
				if result == tool.Skipped {
					ui.Warn(fmt.Sprintf("%s %s: no checksum published, installing unverified", id, version))
				}
			},
		})
	}

	var g errgroup.Group
	g.SetLimit(maxParallelInstalls)
	failed := make([]bool, len(tools))
	for i, t := range tools {
		g.Go(func() error {
			req := cfg.Versions[t.ID]
			version, err := t.ResolveVersion(ctx, req)
			if err == nil {
				var result *tool.InstallResult
				result, err = t.Install(ctx, version)
				if err == nil {
					ui.Output(color.Color(installOutcome(t, result)))
					return nil
				}
			}
			failed[i] = true
			ui.Error(errorMessage(fmt.Errorf("%s: %w", t.ID, err)))
			return nil
		})
	}
	_ = g.Wait()

	if slices.Contains(failed, true) {
		return 1
	}
	return 0
}

func installOutcome(t *tool.Tool, result *tool.InstallResult) string {
	if result.AlreadyInstalled {
		return fmt.Sprintf("%s %s is already installed", t.Metadata.Name, result.Version)
	}
	check := "[green]checksum verified"
	if result.Verification == tool.Skipped {
		check = "[yellow]checksum not verified"
	}
	return fmt.Sprintf("[bold]%s %s[reset] installed to %s (%s[reset])", t.Metadata.Name, result.Version, result.Dir, check)
}
