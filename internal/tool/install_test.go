// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package tool

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/toolproto/proto/internal/addrs"
	"github.com/toolproto/proto/internal/environment"
	"github.com/toolproto/proto/internal/sandbox/mock_sandbox"
)

func testTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{
			Name:     name,
			Mode:     0755,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// artifactServer serves fixed content by path and counts requests.
type artifactServer struct {
	*httptest.Server
	files map[string][]byte

	mu   sync.Mutex
	hits map[string]int
}

func newArtifactServer(t *testing.T, files map[string][]byte) *artifactServer {
	s := &artifactServer{files: files, hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		content, ok := s.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(content)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *artifactServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func newTestTool(t *testing.T, env *environment.Environment, prebuilt DownloadPrebuiltOutput) (*Tool, *atomic.Int32) {
	t.Helper()
	ctrl := gomock.NewController(t)
	handle := mock_sandbox.NewMockHandle(ctrl)
	handle.EXPECT().Call(gomock.Any(), FuncRegisterTool, gomock.Any()).
		Return([]byte(`{"name":"Tool","type":"cli"}`), nil)

	var calls atomic.Int32
	out, err := json.Marshal(prebuilt)
	if err != nil {
		t.Fatal(err)
	}
	handle.EXPECT().Call(gomock.Any(), FuncDownloadPrebuilt, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, input []byte) ([]byte, error) {
			calls.Add(1)
			var in DownloadPrebuiltInput
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, err
			}
			if !strings.HasPrefix(in.InstallDir, environment.VirtualStore+"/") {
				t.Errorf("install dir %q is not a virtual path", in.InstallDir)
			}
			return out, nil
		}).
		AnyTimes()

	tool, err := New(context.Background(), addrs.MustParseToolID("tool"), env, handle, addrs.RegistryLocator{Name: "tool"})
	if err != nil {
		t.Fatal(err)
	}
	return tool, &calls
}

func TestInstall_verified(t *testing.T) {
	archive := testTarGz(t, map[string]string{
		"tool-1.0.0/bin/tool":   "#!/bin/sh\necho tool\n",
		"tool-1.0.0/README.txt": "readme\n",
	})
	srv := newArtifactServer(t, map[string][]byte{
		"/tool-1.0.0.tar.gz":   archive,
		"/SHASUMS256.txt":      []byte("0000  other.tar.gz\n" + sha256Hex(string(archive)) + "  tool-1.0.0.tar.gz\n"),
		"/unrelated-file.json": []byte("{}"),
	})

	env := environment.NewTesting(t.TempDir(), environment.Options{})
	tool, calls := newTestTool(t, env, DownloadPrebuiltOutput{
		DownloadURL:   srv.URL + "/tool-1.0.0.tar.gz",
		ArchivePrefix: "tool-1.0.0",
		ChecksumURL:   srv.URL + "/SHASUMS256.txt",
	})

	var verified []VerificationResult
	var installed []string
	ctx := ContextWithInstallerEvents(context.Background(), &InstallerEvents{
		Verified: func(_ addrs.ToolID, _ string, result VerificationResult) {
			verified = append(verified, result)
		},
		Installed: func(_ addrs.ToolID, _ string, dir string) {
			installed = append(installed, dir)
		},
	})

	got, err := tool.Install(ctx, "1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	wantDir := filepath.Join(env.Root, "tools", "tool", "1.0.0")
	if got.Dir != wantDir || got.Verification != Verified || got.AlreadyInstalled {
		t.Errorf("wrong result %#v", got)
	}
	if !strings.HasPrefix(got.Hash, "h1:") {
		t.Errorf("wrong hash %q", got.Hash)
	}
	if len(verified) != 1 || verified[0] != Verified || len(installed) != 1 || installed[0] != wantDir {
		t.Errorf("wrong events: verified %v, installed %v", verified, installed)
	}

	if content, err := os.ReadFile(filepath.Join(wantDir, "bin", "tool")); err != nil || !strings.Contains(string(content), "echo tool") {
		t.Errorf("executable not installed: %v", err)
	}
	marker, err := ReadInstallMarker(wantDir)
	if err != nil {
		t.Fatalf("missing install marker: %s", err)
	}
	if marker.Version != "1.0.0" || marker.Hash != got.Hash || marker.Verification != "verified" {
		t.Errorf("wrong marker %#v", marker)
	}
	if !tool.IsInstalled("1.0.0") {
		t.Error("IsInstalled returned false after install")
	}

	again, err := tool.Install(context.Background(), "1.0.0")
	if err != nil {
		t.Fatalf("unexpected error on second install: %s", err)
	}
	if !again.AlreadyInstalled || again.Hash != got.Hash {
		t.Errorf("wrong second result %#v", again)
	}
	if n := srv.Hits("/tool-1.0.0.tar.gz"); n != 1 {
		t.Errorf("artifact downloaded %d times, want 1", n)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("download_prebuilt called %d times, want 1", n)
	}
	if _, err := os.Stat(filepath.Join(env.Store.ToolTempDir(tool.ID), "v1.0.0-tool-1.0.0.tar.gz")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("artifact left in temp dir: %v", err)
	}
}

func TestInstall_invalidChecksum(t *testing.T) {
	archive := testTarGz(t, map[string]string{"tool": "binary"})
	srv := newArtifactServer(t, map[string][]byte{
		"/tool.tar.gz":    archive,
		"/SHASUMS256.txt": []byte("deadbeef  tool.tar.gz\n"),
	})

	env := environment.NewTesting(t.TempDir(), environment.Options{})
	tool, _ := newTestTool(t, env, DownloadPrebuiltOutput{
		DownloadURL: srv.URL + "/tool.tar.gz",
		ChecksumURL: srv.URL + "/SHASUMS256.txt",
	})

	_, err := tool.Install(context.Background(), "1.0.0")
	var checksumErr *InvalidChecksumError
	if !errors.As(err, &checksumErr) {
		t.Fatalf("expected InvalidChecksumError, got %v", err)
	}
	if tool.IsInstalled("1.0.0") {
		t.Error("tool reported installed after failed verification")
	}
	if _, err := os.Stat(tool.InstallDir("1.0.0")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("install dir exists after failed verification: %v", err)
	}
}

func TestInstall_skippedBareExecutable(t *testing.T) {
	srv := newArtifactServer(t, map[string][]byte{
		"/releases/tool-linux": []byte("#!/bin/sh\necho tool\n"),
	})

	env := environment.NewTesting(t.TempDir(), environment.Options{})
	tool, _ := newTestTool(t, env, DownloadPrebuiltOutput{
		DownloadURL: srv.URL + "/releases/tool-linux?token=abc",
	})

	got, err := tool.Install(context.Background(), "2.1.0")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got.Verification != Skipped {
		t.Errorf("wrong verification %s", got.Verification)
	}
	info, err := os.Stat(tool.ExecutablePath("2.1.0"))
	if err != nil {
		t.Fatalf("executable not installed: %s", err)
	}
	if info.Mode().Perm()&0100 == 0 {
		t.Errorf("executable is not executable: %s", info.Mode())
	}
	marker, err := ReadInstallMarker(got.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if marker.Verification != "skipped" {
		t.Errorf("wrong marker verification %q", marker.Verification)
	}
}

func TestInstall_missingArchivePrefix(t *testing.T) {
	archive := testTarGz(t, map[string]string{"other/tool": "binary"})
	srv := newArtifactServer(t, map[string][]byte{"/tool.tar.gz": archive})

	env := environment.NewTesting(t.TempDir(), environment.Options{})
	tool, _ := newTestTool(t, env, DownloadPrebuiltOutput{
		DownloadURL:   srv.URL + "/tool.tar.gz",
		ArchivePrefix: "tool-1.0.0",
	})

	if _, err := tool.Install(context.Background(), "1.0.0"); err == nil {
		t.Fatal("expected error")
	}
	if tool.IsInstalled("1.0.0") {
		t.Error("tool reported installed after failed unpack")
	}
}

func TestInstall_downloadFailure(t *testing.T) {
	srv := newArtifactServer(t, nil)

	env := environment.NewTesting(t.TempDir(), environment.Options{})
	tool, _ := newTestTool(t, env, DownloadPrebuiltOutput{DownloadURL: srv.URL + "/missing.tar.gz"})

	_, err := tool.Install(context.Background(), "1.0.0")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error should mention the status: %s", err)
	}
}
