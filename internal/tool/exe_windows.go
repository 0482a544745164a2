// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

//go:build windows

package tool

const exeSuffix = ".exe"
