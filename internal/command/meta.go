// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package command implements the proto CLI commands.
package command

import (
	"context"
	"flag"
	"io"

	"github.com/mitchellh/cli"
	"github.com/mitchellh/colorstring"

	"github.com/toolproto/proto/internal/environment"
)

// Meta holds the state shared by all commands.
type Meta struct {
	// CallerContext is the context of the whole CLI run. Commands derive
	// their own contexts from it.
	CallerContext context.Context

	Env *environment.Environment
	Ui  cli.Ui

	// Color enables colored output.
	Color bool

	// ShowProgress enables per-tool progress lines during installs.
	ShowProgress bool
}

func (m *Meta) commandContext() context.Context {
	if m.CallerContext == nil {
		return context.Background()
	}
	return m.CallerContext
}

// Colorize returns the colorizer for the command's output.
func (m *Meta) Colorize() *colorstring.Colorize {
	return &colorstring.Colorize{
		Colors:  colorstring.DefaultColors,
		Disable: !m.Color,
		Reset:   true,
	}
}

// errorUi wraps Ui so that errors are shown in red.
func (m *Meta) errorUi() cli.Ui {
	return &ColorizeUi{
		Colorize:   m.Colorize(),
		ErrorColor: "[red]",
		WarnColor:  "[yellow]",
		Ui:         m.Ui,
	}
}

// defaultFlagSet returns a flag set for the named command with the
// options every command accepts.
func (m *Meta) defaultFlagSet(name string) *flag.FlagSet {
	f := flag.NewFlagSet(name, flag.ContinueOnError)
	f.SetOutput(io.Discard)
	f.Usage = func() {}
	f.BoolFunc("no-color", "disable color", func(string) error {
		m.Color = false
		return nil
	})
	return f
}
