// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package tool

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/toolproto/proto/internal/addrs"
	"github.com/toolproto/proto/internal/environment"
	"github.com/toolproto/proto/internal/sandbox/mock_sandbox"
)

func testVersionSet(latest string) *VersionSet {
	return NewVersionSet(addrs.MustParseToolID("node"), &LoadVersionsOutput{
		Versions: []string{"1.2.0", "1.0.0", "1.2.5", "1.10.0", "2.0.0-beta.1", "2.0.0", "invalid"},
		Latest:   latest,
		Aliases: map[string]string{
			"lts":    "1.2",
			"legacy": "~> 1.0.0",
			"old":    "legacy",
			"loop":   "loop",
		},
	})
}

func TestVersionSetResolve(t *testing.T) {
	vs := testVersionSet("")
	if got := len(vs.Versions); got != 6 {
		t.Errorf("wrong number of versions %d; invalid entries should be skipped", got)
	}

	tests := map[string]struct {
		req      string
		want     string
		notFound bool
		wantErr  bool
	}{
		"empty":              {req: "", want: "2.0.0"},
		"latest":             {req: "latest", want: "2.0.0"},
		"stable":             {req: "stable", want: "2.0.0"},
		"major":              {req: "1", want: "1.10.0"},
		"minor":              {req: "1.2", want: "1.2.5"},
		"minor with v":       {req: "v1.2", want: "1.2.5"},
		"exact":              {req: "1.2.0", want: "1.2.0"},
		"exact prerelease":   {req: "2.0.0-beta.1", want: "2.0.0-beta.1"},
		"exact missing":      {req: "1.3.0", notFound: true},
		"partial missing":    {req: "3", notFound: true},
		"range":              {req: ">= 1.2, < 2", want: "1.10.0"},
		"pessimistic":        {req: "~> 1.2.0", want: "1.2.5"},
		"unsatisfiable":      {req: "> 5", notFound: true},
		"alias":              {req: "lts", want: "1.2.5"},
		"alias constraint":   {req: "legacy", want: "1.0.0"},
		"alias of alias":     {req: "old", want: "1.0.0"},
		"self alias":         {req: "loop", wantErr: true},
		"invalid":            {req: "not a version", wantErr: true},
		"surrounding spaces": {req: "  1.2 ", want: "1.2.5"},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := vs.Resolve(test.req)
			var notFound *VersionNotFoundError
			switch {
			case test.notFound:
				if !errors.As(err, &notFound) {
					t.Fatalf("expected VersionNotFoundError, got %v", err)
				}
			case test.wantErr:
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				if errors.As(err, &notFound) {
					t.Fatalf("unexpected VersionNotFoundError: %s", err)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %s", err)
				}
				if got.Original() != test.want {
					t.Errorf("wrong version %s; want %s", got.Original(), test.want)
				}
			}
		})
	}
}

func TestVersionSetResolve_pluginLatest(t *testing.T) {
	vs := testVersionSet("1.10.0")
	got, err := vs.Resolve("latest")
	if err != nil {
		t.Fatal(err)
	}
	if got.Original() != "1.10.0" {
		t.Errorf("wrong version %s", got.Original())
	}
}

func TestVersionSetResolve_empty(t *testing.T) {
	vs := NewVersionSet(addrs.MustParseToolID("node"), &LoadVersionsOutput{})
	_, err := vs.Resolve("latest")
	var notFound *VersionNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("expected VersionNotFoundError, got %v", err)
	}
}

func TestToolResolveVersion(t *testing.T) {
	ctrl := gomock.NewController(t)
	handle := mock_sandbox.NewMockHandle(ctrl)
	handle.EXPECT().Call(gomock.Any(), FuncRegisterTool, []byte(`{"id":"node"}`)).
		Return([]byte(`{"name":"Node.js","type":"language"}`), nil)
	handle.EXPECT().Call(gomock.Any(), FuncLoadVersions, gomock.Any()).
		Return([]byte(`{"versions":["18.0.0","20.1.0","20.11.1"]}`), nil).
		Times(1)

	env := environment.NewTesting(t.TempDir(), environment.Options{})
	ctx := context.Background()
	tool, err := New(ctx, addrs.MustParseToolID("node"), env, handle, addrs.RegistryLocator{Name: "node"})
	if err != nil {
		t.Fatal(err)
	}
	if tool.Metadata.Name != "Node.js" || tool.Metadata.Type != ToolTypeLanguage || tool.Metadata.Executable != "node" {
		t.Errorf("wrong metadata %#v", tool.Metadata)
	}

	for req, want := range map[string]string{"20": "20.11.1", "18": "18.0.0"} {
		got, err := tool.ResolveVersion(ctx, req)
		if err != nil {
			t.Fatalf("%s: %s", req, err)
		}
		if got != want {
			t.Errorf("%s resolved to %s; want %s", req, got, want)
		}
	}
}

func TestNew_pluginError(t *testing.T) {
	ctrl := gomock.NewController(t)
	handle := mock_sandbox.NewMockHandle(ctrl)
	handle.EXPECT().Call(gomock.Any(), FuncRegisterTool, gomock.Any()).
		Return(nil, errors.New("plugin function register_tool failed: boom"))

	env := environment.NewTesting(t.TempDir(), environment.Options{})
	_, err := New(context.Background(), addrs.MustParseToolID("node"), env, handle, addrs.RegistryLocator{Name: "node"})
	if err == nil {
		t.Fatal("expected error")
	}
}
