// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package store

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mitchellh/go-homedir"
)

func TestNew(t *testing.T) {
	root := filepath.FromSlash("/var/proto")
	got := New(root + string(filepath.Separator))
	want := Store{
		Dir:        root,
		BinDir:     filepath.Join(root, "bin"),
		PluginsDir: filepath.Join(root, "plugins"),
		TempDir:    filepath.Join(root, "temp"),
		ToolsDir:   filepath.Join(root, "tools"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("wrong layout\n%s", diff)
	}

	if got, want := got.InstallDir("node", "20.1.0"), filepath.Join(root, "tools", "node", "20.1.0"); got != want {
		t.Errorf("wrong install dir %q; want %q", got, want)
	}
	if got, want := got.ToolTempDir("node"), filepath.Join(root, "temp", "node"); got != want {
		t.Errorf("wrong temp dir %q; want %q", got, want)
	}
}

func TestProtoHome(t *testing.T) {
	override := t.TempDir()
	got, err := ProtoHome(override)
	if err != nil {
		t.Fatal(err)
	}
	if got != override {
		t.Errorf("override not honored: got %q, want %q", got, override)
	}

	homedir.DisableCache = true
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	got, err = ProtoHome("")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, DefaultDirName); got != want {
		t.Errorf("wrong default store: got %q, want %q", got, want)
	}
}
