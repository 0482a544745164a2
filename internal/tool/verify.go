// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package tool

import (
	"bufio"
	"bytes"
	"context"
	_ "crypto/sha256" // registers digest.SHA256
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/opencontainers/go-digest"
)

// VerificationResult reports what happened to a download's checksum.
type VerificationResult int

const (
	// Verified means the artifact matched its checksum manifest.
	Verified VerificationResult = iota

	// Skipped means the tool offers no checksum, so the artifact was
	// used unverified.
	Skipped
)

func (r VerificationResult) String() string {
	switch r {
	case Verified:
		return "verified"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("VerificationResult(%d)", int(r))
	}
}

// Verifiable is implemented by tools that publish checksums for their
// downloads.
type Verifiable interface {
	// ChecksumURL returns where the manifest for version can be fetched,
	// or false if none is published for it.
	ChecksumURL(version string) (string, bool)

	// ChecksumPath is where the manifest for version is stored locally.
	ChecksumPath(version string) string

	// VerifyChecksum checks the artifact at downloadPath against the
	// manifest at checksumPath. It fails with *InvalidChecksumError when
	// the artifact does not match, or *VerificationError when the check
	// could not be made.
	VerifyChecksum(checksumPath, downloadPath string) (bool, error)
}

// FetchFunc downloads url to dest.
type FetchFunc func(ctx context.Context, url, dest string) error

// VerifyDownload verifies the artifact at downloadPath using v, fetching
// the manifest with fetch if it isn't already present. A nil v, or one
// that publishes no checksum for version, skips verification.
func VerifyDownload(ctx context.Context, v Verifiable, version, downloadPath string, fetch FetchFunc) (VerificationResult, error) {
	if v == nil {
		log.Printf("[WARN] tool: no checksum available for %s, skipping verification", downloadPath)
		return Skipped, nil
	}
	url, ok := v.ChecksumURL(version)
	if !ok {
		log.Printf("[WARN] tool: no checksum available for %s, skipping verification", downloadPath)
		return Skipped, nil
	}

	checksumPath := v.ChecksumPath(version)
	if _, err := os.Stat(checksumPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return 0, &VerificationError{Path: checksumPath, Err: err}
		}
		log.Printf("[DEBUG] tool: fetching checksum manifest %s", url)
		if err := fetch(ctx, url, checksumPath); err != nil {
			return 0, &VerificationError{Path: checksumPath, Err: err}
		}
	}

	ok, err := v.VerifyChecksum(checksumPath, downloadPath)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &InvalidChecksumError{DownloadPath: downloadPath, ChecksumPath: checksumPath}
	}
	log.Printf("[DEBUG] tool: %s matches %s", downloadPath, checksumPath)
	return Verified, nil
}

// VerifySHA256Manifest checks an artifact against a manifest in the
// common SHASUMS256 format, with one "<hex digest>  <file name>" entry
// per line. The artifact is accepted when any line starts with its
// digest. Blank lines are ignored.
func VerifySHA256Manifest(checksumPath, downloadPath string) (bool, error) {
	f, err := os.Open(downloadPath)
	if err != nil {
		return false, &VerificationError{Path: downloadPath, Err: err}
	}
	defer f.Close()
	d, err := digest.SHA256.FromReader(f)
	if err != nil {
		return false, &VerificationError{Path: downloadPath, Err: err}
	}
	return MatchManifest(checksumPath, downloadPath, d.Encoded())
}

// MatchManifest reports whether any line of the manifest at checksumPath
// starts with the hex digest hash, failing with *InvalidChecksumError
// when none does.
func MatchManifest(checksumPath, downloadPath, hash string) (bool, error) {
	f, err := os.Open(checksumPath)
	if err != nil {
		return false, &VerificationError{Path: checksumPath, Err: err}
	}
	defer f.Close()

	hash = strings.ToLower(hash)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), hash) {
			return true, nil
		}
	}
	if err := sc.Err(); err != nil {
		return false, &VerificationError{Path: checksumPath, Err: err}
	}
	return false, &InvalidChecksumError{DownloadPath: downloadPath, ChecksumPath: checksumPath}
}

// VerifyManifestSignature checks a detached OpenPGP signature, binary or
// ASCII-armored, of the manifest against an armored public key.
func VerifyManifestSignature(checksumPath, signaturePath, armoredKey string) error {
	keyring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armoredKey))
	if err != nil {
		return &VerificationError{Path: signaturePath, Err: fmt.Errorf("invalid public key: %w", err)}
	}
	document, err := os.ReadFile(checksumPath)
	if err != nil {
		return &VerificationError{Path: checksumPath, Err: err}
	}
	signature, err := os.ReadFile(signaturePath)
	if err != nil {
		return &VerificationError{Path: signaturePath, Err: err}
	}

	if bytes.HasPrefix(bytes.TrimSpace(signature), []byte("-----BEGIN")) {
		_, err = openpgp.CheckArmoredDetachedSignature(keyring, bytes.NewReader(document), bytes.NewReader(signature), nil)
	} else {
		_, err = openpgp.CheckDetachedSignature(keyring, bytes.NewReader(document), bytes.NewReader(signature), nil)
	}
	if err != nil {
		return &VerificationError{Path: checksumPath, Err: fmt.Errorf("signature is not valid: %w", err)}
	}
	return nil
}

// prebuiltVerifier verifies downloads described by a plugin's
// download_prebuilt output. When the plugin publishes a public key, the
// manifest's signature must already be next to the manifest.
type prebuiltVerifier struct {
	tempDir  string
	prebuilt *DownloadPrebuiltOutput
}

var _ Verifiable = (*prebuiltVerifier)(nil)

func (v *prebuiltVerifier) ChecksumURL(string) (string, bool) {
	return v.prebuilt.ChecksumURL, v.prebuilt.ChecksumURL != ""
}

func (v *prebuiltVerifier) ChecksumPath(version string) string {
	name := v.prebuilt.ChecksumName
	if name == "" {
		name = "SHASUMS256.txt"
	}
	return filepath.Join(v.tempDir, fmt.Sprintf("v%s-%s", version, name))
}

func (v *prebuiltVerifier) VerifyChecksum(checksumPath, downloadPath string) (bool, error) {
	if key := v.prebuilt.ChecksumPublicKey; key != "" {
		if err := VerifyManifestSignature(checksumPath, checksumPath+".sig", key); err != nil {
			return false, err
		}
	}
	return VerifySHA256Manifest(checksumPath, downloadPath)
}
