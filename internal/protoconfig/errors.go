// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package protoconfig

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
)

// ConfigError is returned when a configuration file exists but could not
// be read, parsed or decoded. A load that returns a ConfigError returns
// no configuration at all.
type ConfigError struct {
	Path  string
	Diags hcl.Diagnostics
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration file %s: %s", e.Path, e.Diags.Error())
}

func (e *ConfigError) Unwrap() error {
	return e.Diags
}
