// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/toolproto/proto/version"
)

func TestNewWithOptions_userAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client, err := NewWithOptions(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if want := "proto/" + version.String(); gotUA != want {
		t.Errorf("wrong User-Agent %q; want %q", gotUA, want)
	}
}

func TestNewWithOptions_insecure(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	strict, err := NewWithOptions(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := strict.Get(srv.URL); err == nil {
		t.Fatalf("expected certificate error from strict client")
	}

	lax, err := NewWithOptions(context.Background(), Options{AllowInvalidCerts: true, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := lax.Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	resp.Body.Close()
	if lax.Timeout != 5*time.Second {
		t.Errorf("timeout not applied: %s", lax.Timeout)
	}
}

func TestNewWithOptions_badRootCert(t *testing.T) {
	certFile := filepath.Join(t.TempDir(), "bad.pem")
	if err := os.WriteFile(certFile, []byte("not a certificate"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := NewWithOptions(context.Background(), Options{RootCert: certFile})
	if err == nil || !strings.Contains(err.Error(), "contains no PEM-encoded certificates") {
		t.Fatalf("wrong error: %v", err)
	}
}

func TestNewWithOptions_badProxy(t *testing.T) {
	_, err := NewWithOptions(context.Background(), Options{Proxies: []string{"://nope"}})
	if err == nil {
		t.Fatalf("expected error for invalid proxy URL")
	}
}

func TestNewRetryable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	client, err := NewRetryable(context.Background(), Options{RetryCount: 3})
	if err != nil {
		t.Fatal(err)
	}
	client.RetryWaitMin = time.Millisecond
	client.RetryWaitMax = time.Millisecond

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	resp.Body.Close()
	if got := calls.Load(); got != 3 {
		t.Errorf("wrong number of attempts %d; want 3", got)
	}

	client.RetryMax = 0
	calls.Store(0)
	_, err = client.Get(srv.URL)
	if err == nil || !strings.Contains(err.Error(), "502 Bad Gateway returned from") {
		t.Fatalf("wrong error: %v", err)
	}
}
