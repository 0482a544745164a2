// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/mod/sumdb/dirhash"

	"github.com/toolproto/proto/internal/flock"
	"github.com/toolproto/proto/internal/httpclient"
	"github.com/toolproto/proto/internal/tracing"
	"github.com/toolproto/proto/internal/tracing/traceattrs"
)

// InstallMarkerName is the file whose presence means an installation is
// complete. It's written last, and only after the download was verified.
const InstallMarkerName = ".proto-install.json"

// InstallMarker is the content of the install marker.
type InstallMarker struct {
	ID           string    `json:"id"`
	Version      string    `json:"version"`
	Source       string    `json:"source"`
	Hash         string    `json:"hash"`
	Verification string    `json:"verification"`
	InstalledAt  time.Time `json:"installed_at"`
}

// InstallResult describes the outcome of Install.
type InstallResult struct {
	Version string
	Dir     string

	// Hash is the "h1:" directory hash of the installation.
	Hash string

	Verification VerificationResult

	// AlreadyInstalled is true if the version was found installed and
	// nothing was downloaded. Verification is then meaningless.
	AlreadyInstalled bool
}

// ReadInstallMarker reads the install marker in dir. It returns an error
// satisfying errors.Is(err, os.ErrNotExist) if the version in dir isn't
// installed.
func ReadInstallMarker(dir string) (*InstallMarker, error) {
	src, err := os.ReadFile(filepath.Join(dir, InstallMarkerName))
	if err != nil {
		return nil, err
	}
	var ret InstallMarker
	if err := json.Unmarshal(src, &ret); err != nil {
		return nil, fmt.Errorf("invalid install marker in %s: %w", dir, err)
	}
	return &ret, nil
}

// IsInstalled reports whether version is installed.
func (t *Tool) IsInstalled(version string) bool {
	_, err := ReadInstallMarker(t.InstallDir(version))
	return err == nil
}

// Install downloads, verifies and installs a prebuilt version of the
// tool. version must already be resolved.
//
// The artifact is only ever unpacked once its checksum was verified, or
// the tool publishes no checksum. A download that fails verification
// never results in an installed version.
func (t *Tool) Install(ctx context.Context, version string) (*InstallResult, error) {
	ctx, span := tracing.Tracer().Start(ctx, "Install tool",
		tracing.SpanAttributes(
			traceattrs.ToolID(t.ID.String()),
			traceattrs.ToolVersion(version),
		),
	)
	defer span.End()

	ret, err := t.install(ctx, version)
	if err != nil {
		tracing.SetSpanError(span, err)
		return nil, err
	}
	return ret, nil
}

func (t *Tool) install(ctx context.Context, version string) (*InstallResult, error) {
	events := InstallerEventsFromContext(ctx)
	installDir := t.InstallDir(version)

	guard, err := flock.Acquire(ctx, installDir+".lock")
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", installDir, err)
	}
	defer guard.Release()

	if marker, err := ReadInstallMarker(installDir); err == nil {
		log.Printf("[DEBUG] tool: %s %s is already installed in %s", t.ID, version, installDir)
		if events.AlreadyInstalled != nil {
			events.AlreadyInstalled(t.ID, version, installDir)
		}
		return &InstallResult{Version: version, Dir: installDir, Hash: marker.Hash, AlreadyInstalled: true}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Printf("[WARN] tool: reinstalling %s %s: %s", t.ID, version, err)
	}

	prebuilt, err := t.DownloadPrebuilt(ctx, version)
	if err != nil {
		return nil, err
	}
	client, err := t.env.HTTPClient(ctx)
	if err != nil {
		return nil, err
	}
	tempDir := t.env.Store.ToolTempDir(t.ID)
	fetch := func(ctx context.Context, url, dest string) error {
		_, err := httpclient.DownloadFile(ctx, client, url, tempDir, dest)
		return err
	}

	artifact := filepath.Join(tempDir, fmt.Sprintf("v%s-%s", version, prebuilt.DownloadName))
	defer os.Remove(artifact)
	if events.DownloadStart != nil {
		events.DownloadStart(t.ID, version, prebuilt.DownloadURL)
	}
	size, err := httpclient.DownloadFile(ctx, client, prebuilt.DownloadURL, tempDir, artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s %s: %w", t.ID, version, err)
	}
	tracing.SpanFromContext(ctx).SetAttributes(
		traceattrs.URLFull(prebuilt.DownloadURL),
		traceattrs.FileSize(int(size)),
	)
	if events.DownloadComplete != nil {
		events.DownloadComplete(t.ID, version, size)
	}

	verifier := &prebuiltVerifier{tempDir: tempDir, prebuilt: prebuilt}
	if prebuilt.ChecksumURL != "" && prebuilt.ChecksumPublicKey != "" {
		sigPath := verifier.ChecksumPath(version) + ".sig"
		if err := fetch(ctx, prebuilt.ChecksumURL+".sig", sigPath); err != nil {
			return nil, &VerificationError{Path: sigPath, Err: err}
		}
	}
	result, err := VerifyDownload(ctx, verifier, version, artifact, fetch)
	if err != nil {
		return nil, err
	}
	if events.Verified != nil {
		events.Verified(t.ID, version, result)
	}

	// Staging next to the final location keeps the last rename atomic.
	toolDir := t.env.Store.ToolDir(t.ID)
	//nolint: mnd // directory permissions
	if err := os.MkdirAll(toolDir, 0755); err != nil {
		return nil, err
	}
	staging, err := os.MkdirTemp(toolDir, ".staging-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(staging)

	root, err := unpackArtifact(artifact, staging, prebuilt.ArchivePrefix, t.Metadata.Executable)
	if err != nil {
		return nil, err
	}
	hash, err := dirhash.HashDir(root, "", dirhash.Hash1)
	if err != nil {
		return nil, fmt.Errorf("failed to hash installation: %w", err)
	}

	// Whatever is in installDir now has no marker, so it's the remains of
	// an interrupted install.
	if err := os.RemoveAll(installDir); err != nil {
		return nil, err
	}
	if err := os.Rename(root, installDir); err != nil {
		return nil, fmt.Errorf("failed to move installation into place: %w", err)
	}

	marker := InstallMarker{
		ID:           t.ID.String(),
		Version:      version,
		Source:       prebuilt.DownloadURL,
		Hash:         hash,
		Verification: result.String(),
		InstalledAt:  time.Now().UTC(),
	}
	if err := writeInstallMarker(installDir, &marker); err != nil {
		return nil, err
	}

	log.Printf("[INFO] tool: installed %s %s into %s (%s)", t.ID, version, installDir, hash)
	if events.Installed != nil {
		events.Installed(t.ID, version, installDir)
	}
	return &InstallResult{Version: version, Dir: installDir, Hash: hash, Verification: result}, nil
}

func writeInstallMarker(dir string, marker *InstallMarker) error {
	src, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, InstallMarkerName+".tmp")
	//nolint: mnd // file permissions
	if err := os.WriteFile(tmp, src, 0644); err != nil {
		return fmt.Errorf("failed to write install marker: %w", err)
	}
	return os.Rename(tmp, filepath.Join(dir, InstallMarkerName))
}
