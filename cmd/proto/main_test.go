// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRegisterTempLogSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proto.log")

	done := registerTempLogSink(path)
	log.Printf("[TRACE] copied into the temp log")
	done()
	log.Printf("[TRACE] written after the sink was removed")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(content)
	if !strings.Contains(got, "copied into the temp log") {
		t.Errorf("temp log is missing the trace line:\n%s", got)
	}
	if strings.Contains(got, "after the sink was removed") {
		t.Errorf("temp log received a line after the sink was removed:\n%s", got)
	}
}

func TestRegisterTempLogSink_unset(t *testing.T) {
	registerTempLogSink("")()
}
