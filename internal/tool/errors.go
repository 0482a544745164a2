// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package tool

import (
	"fmt"

	"github.com/toolproto/proto/internal/addrs"
)

// InvalidChecksumError is returned when a downloaded artifact's digest is
// not listed in its checksum manifest. The artifact must not be used.
type InvalidChecksumError struct {
	DownloadPath string
	ChecksumPath string
}

func (e *InvalidChecksumError) Error() string {
	return fmt.Sprintf("checksum of %s does not match any entry in %s", e.DownloadPath, e.ChecksumPath)
}

// VerificationError is returned when verification could not be carried
// out at all, for example because the manifest could not be read.
type VerificationError struct {
	Path string
	Err  error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("failed to verify %s: %s", e.Path, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// VersionNotFoundError is returned when no available version satisfies a
// version requirement.
type VersionNotFoundError struct {
	ID          addrs.ToolID
	Requirement string
}

func (e *VersionNotFoundError) Error() string {
	return fmt.Sprintf("no version of %s matches %q", e.ID, e.Requirement)
}
