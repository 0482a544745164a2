// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package toolloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/mock/gomock"

	"github.com/toolproto/proto/internal/addrs"
	"github.com/toolproto/proto/internal/environment"
	"github.com/toolproto/proto/internal/logging"
	"github.com/toolproto/proto/internal/pluginloader"
	"github.com/toolproto/proto/internal/sandbox"
	"github.com/toolproto/proto/internal/sandbox/mock_sandbox"
	"github.com/toolproto/proto/internal/tool"
)

const schemaPluginContent = "schema plugin binary"

type fakeHandle struct {
	mu     sync.Mutex
	closed bool
}

func (h *fakeHandle) Call(_ context.Context, function string, _ []byte) ([]byte, error) {
	if function != tool.FuncRegisterTool {
		return nil, fmt.Errorf("unexpected call to %s", function)
	}
	return []byte(`{"name":"test","type":"cli"}`), nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *fakeHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// fixture is a sandbox with a configuration file, a server for the schema
// plugin and a runtime that records every plugin it instantiates.
type fixture struct {
	dir    string
	env    *environment.Environment
	server *httptest.Server

	mu          sync.Mutex
	schemaHits  int
	manifests   map[addrs.ToolID]sandbox.Manifest
	handles     []*fakeHandle
	instantiate int
}

func newFixture(t *testing.T, plugins map[string]string, offline *bool) *fixture {
	t.Helper()
	f := &fixture{
		dir:       t.TempDir(),
		manifests: map[addrs.ToolID]sandbox.Manifest{},
	}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/schema_plugin" {
			http.NotFound(w, r)
			return
		}
		f.mu.Lock()
		f.schemaHits++
		f.mu.Unlock()
		fmt.Fprint(w, schemaPluginContent)
	}))
	t.Cleanup(f.server.Close)

	config := "plugins {\n"
	config += fmt.Sprintf("  internal-schema = %q\n", "url:"+f.server.URL+"/schema_plugin")
	for id, locator := range plugins {
		config += fmt.Sprintf("  %s = %q\n", id, locator)
	}
	config += "}\n"
	f.writeFile(t, ".prototools", config)
	f.writeFile(t, "foo.toml", "name = \"foo\"\n")
	f.writeFile(t, "bar.toml", "name = \"bar\"\n")
	f.writeFile(t, "baz_plugin", "baz plugin binary")

	ctrl := gomock.NewController(t)
	runtime := mock_sandbox.NewMockRuntime(ctrl)
	runtime.EXPECT().Instantiate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, m sandbox.Manifest) (sandbox.Handle, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.instantiate++
			f.manifests[m.ID] = m
			h := &fakeHandle{}
			f.handles = append(f.handles, h)
			return h, nil
		}).
		AnyTimes()

	f.env = environment.NewTesting(f.dir, environment.Options{Runtime: runtime, Offline: offline})
	return f
}

func (f *fixture) writeFile(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(f.dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) SchemaHits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schemaHits
}

func toolIDs(tools []*tool.Tool) []string {
	ret := make([]string, len(tools))
	for i, t := range tools {
		ret[i] = t.ID.String()
	}
	slices.Sort(ret)
	return ret
}

func TestLoadTools(t *testing.T) {
	f := newFixture(t, map[string]string{
		"foo": "path:./foo.toml",
		"bar": "path:./bar.toml",
		"baz": "path:./baz_plugin",
	}, nil)

	tools, err := LoadTools(context.Background(), f.env, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if diff := cmp.Diff([]string{"bar", "baz", "foo"}, toolIDs(tools)); diff != "" {
		t.Errorf("wrong tools\n%s", diff)
	}

	if n := f.SchemaHits(); n != 1 {
		t.Errorf("schema plugin downloaded %d times, want 1", n)
	}
	if _, ok := f.manifests[addrs.SchemaPluginID]; ok {
		t.Error("schema plugin was instantiated as a tool")
	}

	schemaPath, err := LoadSchemaPlugin(context.Background(), f.env)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"foo", "bar"} {
		m := f.manifests[addrs.MustParseToolID(id)]
		if m.Path != schemaPath {
			t.Errorf("%s: instantiated %s; want the schema plugin %s", id, m.Path, schemaPath)
		}
		want := map[string]string{SchemaConfigKey: fmt.Sprintf("name = %q\n", id)}
		if diff := cmp.Diff(want, m.Config); diff != "" {
			t.Errorf("%s: wrong plugin config\n%s", id, diff)
		}
		if m.VirtualPaths[environment.VirtualCwd] != f.env.Cwd {
			t.Errorf("%s: wrong virtual paths %v", id, m.VirtualPaths)
		}
	}
	baz := f.manifests[addrs.MustParseToolID("baz")]
	if baz.Path != filepath.Join(f.dir, "baz_plugin") || baz.Config != nil {
		t.Errorf("wrong manifest for baz: %#v", baz)
	}
	if n := f.SchemaHits(); n != 1 {
		t.Errorf("schema plugin downloaded %d times, want 1", n)
	}
}

func TestLoadTools_filter(t *testing.T) {
	f := newFixture(t, map[string]string{
		"foo": "path:./foo.toml",
		"bar": "path:./bar.toml",
		"baz": "path:./baz_plugin",
	}, nil)

	filter := addrs.NewToolIDSet(
		addrs.MustParseToolID("foo"),
		addrs.SchemaPluginID,
		addrs.MustParseToolID("unconfigured"),
	)
	tools, err := LoadTools(context.Background(), f.env, filter)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if diff := cmp.Diff([]string{"foo"}, toolIDs(tools)); diff != "" {
		t.Errorf("wrong tools\n%s", diff)
	}
	if f.instantiate != 1 {
		t.Errorf("instantiated %d plugins, want 1", f.instantiate)
	}
}

func TestLoadTools_failure(t *testing.T) {
	f := newFixture(t, map[string]string{
		"foo": "path:./foo.toml",
		"bar": "path:./bar.toml",
		"baz": "path:./missing_plugin",
	}, nil)
	var logs syncBuffer
	defer logging.RegisterSink(&logs)()

	tools, err := LoadTools(context.Background(), f.env, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if tools != nil {
		t.Errorf("expected no tools, got %v", toolIDs(tools))
	}

	var loadErr *ToolLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected ToolLoadError, got %T: %s", err, err)
	}
	if loadErr.ID.String() != "baz" {
		t.Errorf("wrong tool in error: %s", loadErr.ID)
	}
	var fetchErr *pluginloader.PluginFetchError
	if !errors.As(err, &fetchErr) {
		t.Errorf("expected PluginFetchError cause, got %s", err)
	}

	for _, h := range f.handles {
		if !h.Closed() {
			t.Error("plugin left open after failed load")
		}
	}

	got := logs.String()
	if !strings.Contains(got, "[ERROR]") || !strings.Contains(got, "of the selected tools failed to load") || !strings.Contains(got, "baz") {
		t.Errorf("single load failure was not logged at ERROR:\n%s", got)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLoadTools_offline(t *testing.T) {
	offline := true
	f := newFixture(t, map[string]string{"foo": "path:./foo.toml"}, &offline)

	_, err := LoadTools(context.Background(), f.env, nil)
	var offlineErr *pluginloader.OfflineError
	if !errors.As(err, &offlineErr) {
		t.Fatalf("expected OfflineError, got %v", err)
	}
	if offlineErr.ID != addrs.SchemaPluginID {
		t.Errorf("wrong plugin in error: %s", offlineErr.ID)
	}
	if f.instantiate != 0 {
		t.Errorf("instantiated %d plugins, want 0", f.instantiate)
	}
}

func TestLoadTool(t *testing.T) {
	f := newFixture(t, map[string]string{"foo": "path:./foo.toml"}, nil)

	got, err := LoadTool(context.Background(), f.env, addrs.MustParseToolID("foo"))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got.ID.String() != "foo" || got.Metadata.Name != "test" {
		t.Errorf("wrong tool %s (%#v)", got.ID, got.Metadata)
	}
	if _, ok := got.Locator.(addrs.FileLocator); !ok {
		t.Errorf("wrong locator %s", got.Locator)
	}

	_, err = LoadTool(context.Background(), f.env, addrs.MustParseToolID("unconfigured"))
	if !errors.Is(err, ErrNoPlugin) {
		t.Errorf("expected ErrNoPlugin, got %v", err)
	}
}
