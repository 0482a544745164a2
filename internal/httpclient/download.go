// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	getter "github.com/hashicorp/go-getter"
	"github.com/hashicorp/go-retryablehttp"
)

// StatusError is returned when a download gets a response other than
// 200 OK.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unsuccessful request to %s: %s", e.URL, e.Status)
}

// DownloadFile fetches url and stores the body at dest.
//
// The body is first written to a temporary file in tempDir and only
// renamed to dest once it has been received completely, so dest is never
// observed partially written. tempDir and dest should be on the same
// filesystem.
func DownloadFile(ctx context.Context, client *retryablehttp.Client, url, tempDir, dest string) (int64, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("invalid download request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return 0, fmt.Errorf("download of %s was interrupted", url)
		}
		return 0, fmt.Errorf("%s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	//nolint: mnd // directory permissions
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create temporary directory: %w", err)
	}
	f, err := os.CreateTemp(tempDir, "download-*")
	if err != nil {
		return 0, fmt.Errorf("failed to open temporary file to download from %s: %w", url, err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	// go-getter's copy can be interrupted partway through by ctx.
	n, err := getter.Copy(ctx, f, resp.Body)
	if err == nil && resp.ContentLength >= 0 && n < resp.ContentLength {
		err = fmt.Errorf("incorrect response size: expected %d bytes, but got %d bytes", resp.ContentLength, n)
	}
	if err != nil {
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}

	//nolint: mnd // directory permissions
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, err
	}
	if err := os.Rename(f.Name(), dest); err != nil {
		return 0, fmt.Errorf("failed to move download into place at %s: %w", dest, err)
	}
	log.Printf("[DEBUG] Downloaded %s (%d bytes) to %s", url, n, dest)
	return n, nil
}
