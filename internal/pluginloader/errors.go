// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package pluginloader

import (
	"fmt"

	"github.com/toolproto/proto/internal/addrs"
)

// OfflineError is returned when a plugin must be downloaded but there is
// no network connection and no cached copy to fall back on. Callers can
// use it to suggest retrying once online.
type OfflineError struct {
	ID      addrs.ToolID
	Locator addrs.PluginLocator
}

func (e *OfflineError) Error() string {
	return fmt.Sprintf("cannot load the %s plugin from %s: an internet connection is required and no cached copy is available", e.ID, e.Locator)
}

// PluginFetchError is returned when a plugin could not be located,
// downloaded or validated for any reason other than being offline.
type PluginFetchError struct {
	ID      addrs.ToolID
	Locator addrs.PluginLocator
	Err     error
}

func (e *PluginFetchError) Error() string {
	return fmt.Sprintf("failed to load the %s plugin from %s: %s", e.ID, e.Locator, e.Err)
}

func (e *PluginFetchError) Unwrap() error {
	return e.Err
}
