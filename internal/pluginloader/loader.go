// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package pluginloader turns plugin locators into local plugin files,
// downloading and caching remote plugins as needed.
package pluginloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/opencontainers/go-digest"

	"github.com/toolproto/proto/internal/addrs"
	"github.com/toolproto/proto/internal/flock"
	"github.com/toolproto/proto/internal/httpclient"
	"github.com/toolproto/proto/internal/tracing"
	"github.com/toolproto/proto/internal/tracing/traceattrs"
)

// RefreshInterval is how long a cached plugin downloaded from a URL or an
// unpinned registry entry is used before it is downloaded again. Pinned
// registry versions never change and are cached forever.
const RefreshInterval = 7 * 24 * time.Hour

// Loader resolves plugin locators to local files, using a cache directory
// that is shared between processes.
//
// The Set methods configure the loader and must all be called before it
// is shared. LoadPlugin may then be called concurrently for distinct
// locators. Concurrent loads of the same locator are serialized by a lock
// on the cache entry, but callers should not rely on that to avoid
// duplicate work: the shared schema plugin in particular is expected to
// be loaded once, before any concurrent tool loads begin.
type Loader struct {
	pluginsDir  string
	tempDir     string
	clientOpts  httpclient.Options
	registryURL string
	offline     func() bool

	// now is replaced in tests.
	now func() time.Time
}

// New returns a loader that caches plugins in pluginsDir and stages
// downloads in tempDir.
func New(pluginsDir, tempDir string) *Loader {
	return &Loader{
		pluginsDir: pluginsDir,
		tempDir:    tempDir,
		clientOpts: httpclient.Options{
			RetryCount: httpclient.DefaultRetryCount,
			Timeout:    httpclient.DefaultTimeout,
		},
		offline: func() bool { return false },
		now:     time.Now,
	}
}

// SetClientOptions sets the HTTP client policy for downloads.
func (l *Loader) SetClientOptions(opts httpclient.Options) {
	l.clientOpts = opts
}

// SetOfflineChecker sets the predicate consulted before any network
// access.
func (l *Loader) SetOfflineChecker(offline func() bool) {
	l.offline = offline
}

// SetRegistryURL sets the base URL of the plugin registry that registry
// locators are resolved against.
func (l *Loader) SetRegistryURL(u string) {
	l.registryURL = u
}

// PluginsDir returns the cache directory.
func (l *Loader) PluginsDir() string {
	return l.pluginsDir
}

// IsOffline consults the offline checker.
func (l *Loader) IsOffline() bool {
	return l.offline()
}

// LoadPlugin returns the path of a local file containing the plugin for
// the given tool, downloading it into the cache first if necessary.
//
// It returns an *OfflineError if a download is required but proto is
// offline, and a *PluginFetchError for any other failure.
func (l *Loader) LoadPlugin(ctx context.Context, id addrs.ToolID, locator addrs.PluginLocator) (string, error) {
	ctx, span := tracing.Tracer().Start(ctx, "Load plugin",
		tracing.SpanAttributes(
			traceattrs.ToolID(id.String()),
			traceattrs.PluginLocator(locator.String()),
		),
	)
	defer span.End()

	log.Printf("[DEBUG] Loading %s plugin from %s", id, locator)

	var ret string
	var err error
	switch loc := locator.(type) {
	case addrs.FileLocator:
		ret, err = l.loadFile(loc)
	case addrs.URLLocator:
		ret, err = l.loadCached(ctx, id, locator, l.urlCachePath(id, loc), false, func(ctx context.Context, client *retryablehttp.Client, dest string) error {
			return l.download(ctx, client, loc.URL, dest, "", !addrs.IsSchemaDocument(loc))
		})
	case addrs.RegistryLocator:
		ret, err = l.loadCached(ctx, id, locator, l.registryCachePath(id, loc), loc.IsPinned(), func(ctx context.Context, client *retryablehttp.Client, dest string) error {
			return l.downloadFromRegistry(ctx, client, loc, dest)
		})
	default:
		panic(fmt.Sprintf("unsupported plugin locator type %T", locator))
	}

	if err != nil {
		var offlineErr *OfflineError
		if !errors.As(err, &offlineErr) {
			err = &PluginFetchError{ID: id, Locator: locator, Err: err}
		}
		tracing.SetSpanError(span, err)
		return "", err
	}
	span.SetAttributes(traceattrs.FilePath(ret))
	return ret, nil
}

func (l *Loader) loadFile(loc addrs.FileLocator) (string, error) {
	info, err := os.Stat(loc.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("plugin file %s does not exist", loc.Path)
		}
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("plugin path %s is a directory", loc.Path)
	}
	return loc.Path, nil
}

// urlCachePath names a URL plugin by a prefix of the SHA-256 of its URL,
// keeping the file extension so schema documents stay recognizable.
func (l *Loader) urlCachePath(id addrs.ToolID, loc addrs.URLLocator) string {
	sum := sha256.Sum256([]byte(loc.URL))
	ext := ""
	if u, err := url.Parse(loc.URL); err == nil {
		ext = path.Ext(u.Path)
	}
	return filepath.Join(l.pluginsDir, fmt.Sprintf("%s-%s%s", id, hex.EncodeToString(sum[:])[:16], ext))
}

// registryCachePath names a registry plugin by tool id, registry name and
// version, so two registry plugins configured under one id never share a
// cache entry.
func (l *Loader) registryCachePath(id addrs.ToolID, loc addrs.RegistryLocator) string {
	version := loc.Version
	if version == "" {
		version = "latest"
	}
	return filepath.Join(l.pluginsDir, fmt.Sprintf("%s-%s-%s%s", id, loc.Name, version, exeSuffix()))
}

func exeSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}

type fetchFunc func(ctx context.Context, client *retryablehttp.Client, dest string) error

func (l *Loader) loadCached(ctx context.Context, id addrs.ToolID, locator addrs.PluginLocator, dest string, pinned bool, fetch fetchFunc) (string, error) {
	guard, err := flock.Acquire(ctx, dest+".lock")
	if err != nil {
		return "", err
	}
	defer func() {
		if err := guard.Release(); err != nil {
			log.Printf("[WARN] %s", err)
		}
	}()

	info, statErr := os.Stat(dest)
	cached := statErr == nil && !info.IsDir()
	if cached {
		if pinned || l.now().Sub(info.ModTime()) < RefreshInterval {
			log.Printf("[TRACE] Using cached %s plugin %s", id, dest)
			return dest, nil
		}
		if l.offline() {
			log.Printf("[WARN] The cached %s plugin at %s is out of date, but proto is offline; using it anyway", id, dest)
			return dest, nil
		}
		log.Printf("[DEBUG] The cached %s plugin at %s is out of date; downloading again", id, dest)
	} else if l.offline() {
		return "", &OfflineError{ID: id, Locator: locator}
	}

	client, err := httpclient.NewRetryable(ctx, l.clientOpts)
	if err != nil {
		return "", err
	}
	if err := fetch(ctx, client, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (l *Loader) download(ctx context.Context, client *retryablehttp.Client, srcURL, dest, wantSHA256 string, executable bool) error {
	staged := filepath.Join(l.tempDir, "plugins", filepath.Base(dest))
	if _, err := httpclient.DownloadFile(ctx, client, srcURL, l.tempDir, staged); err != nil {
		return err
	}
	defer os.Remove(staged)

	if wantSHA256 != "" {
		if err := verifySHA256(staged, wantSHA256); err != nil {
			return err
		}
	}
	if executable {
		//nolint: mnd // executable permissions
		if err := os.Chmod(staged, 0755); err != nil {
			return err
		}
	}

	//nolint: mnd // directory permissions
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	if err := os.Rename(staged, dest); err != nil {
		return fmt.Errorf("failed to move plugin into the cache: %w", err)
	}
	log.Printf("[INFO] Downloaded plugin from %s to %s", srcURL, dest)
	return nil
}

// registryIndex is the document served at
// <registry>/<name>/<version>/index.json.
type registryIndex struct {
	Version     string `json:"version"`
	DownloadURL string `json:"download_url"`
	SHA256      string `json:"sha256"`
}

func (l *Loader) downloadFromRegistry(ctx context.Context, client *retryablehttp.Client, loc addrs.RegistryLocator, dest string) error {
	if l.registryURL == "" {
		return fmt.Errorf("no plugin registry is configured")
	}
	version := loc.Version
	if version == "" {
		version = "latest"
	}
	indexURL := strings.TrimSuffix(l.registryURL, "/") + "/" + url.PathEscape(loc.Name) + "/" + url.PathEscape(version) + "/index.json"

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, indexURL, nil)
	if err != nil {
		return fmt.Errorf("invalid registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to query plugin registry: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return fmt.Errorf("plugin %s does not exist in the registry at %s", loc, l.registryURL)
	default:
		return &httpclient.StatusError{URL: indexURL, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var index registryIndex
	if err := json.NewDecoder(resp.Body).Decode(&index); err != nil {
		return fmt.Errorf("invalid response from plugin registry at %s: %w", indexURL, err)
	}
	if index.DownloadURL == "" {
		return fmt.Errorf("plugin registry response from %s has no download_url", indexURL)
	}
	if index.SHA256 == "" {
		return fmt.Errorf("plugin registry response from %s has no sha256 checksum", indexURL)
	}

	base, err := url.Parse(indexURL)
	if err != nil {
		return err
	}
	ref, err := url.Parse(index.DownloadURL)
	if err != nil {
		return fmt.Errorf("invalid download_url %q from plugin registry: %w", index.DownloadURL, err)
	}
	downloadURL := base.ResolveReference(ref).String()

	log.Printf("[DEBUG] Registry resolved %s to %s (version %s)", loc, downloadURL, index.Version)
	return l.download(ctx, client, downloadURL, dest, index.SHA256, true)
}

func verifySHA256(filename, want string) error {
	expected := digest.NewDigestFromEncoded(digest.SHA256, strings.ToLower(want))
	if err := expected.Validate(); err != nil {
		return fmt.Errorf("plugin registry returned an invalid sha256 checksum %q: %w", want, err)
	}
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	got, err := digest.SHA256.FromReader(f)
	if err != nil {
		return fmt.Errorf("failed to hash downloaded plugin: %w", err)
	}
	if got != expected {
		return fmt.Errorf("downloaded plugin checksum %s does not match the registry checksum %s", got.Encoded(), expected.Encoded())
	}
	return nil
}
