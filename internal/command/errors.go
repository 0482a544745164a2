// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"errors"
	"fmt"

	"github.com/toolproto/proto/internal/pluginloader"
	"github.com/toolproto/proto/internal/protoconfig"
	"github.com/toolproto/proto/internal/tool"
)

// errorMessage renders err for the user, with a hint for the failures a
// user can act on.
func errorMessage(err error) string {
	var configErr *protoconfig.ConfigError
	var offlineErr *pluginloader.OfflineError
	var checksumErr *tool.InvalidChecksumError
	var versionErr *tool.VersionNotFoundError

	switch {
	case errors.As(err, &configErr):
		return fmt.Sprintf("Error: %s\n\nFix the configuration file and run the command again.", err)
	case errors.As(err, &offlineErr):
		return fmt.Sprintf("Error: %s\n\nThe %s plugin is not cached yet. Connect to the internet and try again.", err, offlineErr.ID)
	case errors.As(err, &checksumErr):
		return fmt.Sprintf("Error: %s\n\nThe download was discarded. It may be corrupt or have been tampered with.", err)
	case errors.As(err, &versionErr):
		return fmt.Sprintf("Error: %s\n\nCheck the version in your configuration.", err)
	default:
		return fmt.Sprintf("Error: %s", err)
	}
}
