// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package toolloader

import (
	"errors"
	"fmt"

	"github.com/toolproto/proto/internal/addrs"
)

// ErrNoPlugin is wrapped by a ToolLoadError for a tool that has no
// configured plugin.
var ErrNoPlugin = errors.New("no plugin is configured for this tool")

// ToolLoadError is returned when a tool could not be loaded. Err is the
// underlying cause, such as a *pluginloader.OfflineError.
type ToolLoadError struct {
	ID addrs.ToolID

	// Locator is nil when the tool has no configured plugin.
	Locator addrs.PluginLocator

	Err error
}

func (e *ToolLoadError) Error() string {
	if e.Locator == nil {
		return fmt.Sprintf("failed to load tool %s: %s", e.ID, e.Err)
	}
	return fmt.Sprintf("failed to load tool %s from %s: %s", e.ID, e.Locator, e.Err)
}

func (e *ToolLoadError) Unwrap() error {
	return e.Err
}
