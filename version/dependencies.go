// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package version

import "runtime/debug"

// These are the modules whose behavior most directly shapes how configuration
// is parsed, how plugins are fetched and how artifacts are unpacked, so their
// exact versions are worth having in a debug log.
var interestingDependencies = map[string]struct{}{
	"github.com/hashicorp/go-getter":        {},
	"github.com/hashicorp/go-plugin":        {},
	"github.com/hashicorp/go-retryablehttp": {},
	"github.com/hashicorp/hcl/v2":           {},
	"github.com/opencontainers/go-digest":   {},
	"github.com/zclconf/go-cty":             {},
}

// InterestingDependencies returns the compiled-in module version info for
// the small set of dependencies listed above.
func InterestingDependencies() []*debug.Module {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		// Weird to not be built in module mode, but not a big deal.
		return nil
	}

	ret := make([]*debug.Module, 0, len(interestingDependencies))

	for _, mod := range info.Deps {
		if _, ok := interestingDependencies[mod.Path]; !ok {
			continue
		}
		if mod.Replace != nil {
			mod = mod.Replace
		}
		ret = append(ret, mod)
	}

	return ret
}
