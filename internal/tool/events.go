// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package tool

import (
	"context"

	"github.com/toolproto/proto/internal/addrs"
)

// InstallerEvents is a set of callbacks that Install calls as it makes
// progress. Any of the fields may be nil.
//
// Tools are installed concurrently, so the callbacks may be called from
// several goroutines at once.
type InstallerEvents struct {
	DownloadStart    func(id addrs.ToolID, version string, url string)
	DownloadComplete func(id addrs.ToolID, version string, size int64)
	Verified         func(id addrs.ToolID, version string, result VerificationResult)
	Installed        func(id addrs.ToolID, version string, dir string)
	AlreadyInstalled func(id addrs.ToolID, version string, dir string)
}

type installerEventsKey struct{}

// ContextWithInstallerEvents returns a child of the given context that
// carries the given events.
func ContextWithInstallerEvents(parent context.Context, events *InstallerEvents) context.Context {
	return context.WithValue(parent, installerEventsKey{}, events)
}

// InstallerEventsFromContext returns the events associated with ctx, or
// an empty set if there are none.
func InstallerEventsFromContext(ctx context.Context) *InstallerEvents {
	events, ok := ctx.Value(installerEventsKey{}).(*InstallerEvents)
	if !ok || events == nil {
		return &InstallerEvents{}
	}
	return events
}
