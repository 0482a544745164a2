// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"testing"

	"github.com/mitchellh/cli"

	"github.com/toolproto/proto/internal/command"
)

func TestInitCommands(t *testing.T) {
	commands := initCommands(command.Meta{Ui: cli.NewMockUi()})
	for _, name := range []string{"install", "plugins", "version"} {
		factory, ok := commands[name]
		if !ok {
			t.Errorf("missing command %q", name)
			continue
		}
		cmd, err := factory()
		if err != nil {
			t.Errorf("%s: %s", name, err)
			continue
		}
		if cmd.Synopsis() == "" || cmd.Help() == "" {
			t.Errorf("%s: missing help text", name)
		}
	}
}
