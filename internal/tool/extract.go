// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package tool

import (
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	getter "github.com/hashicorp/go-getter"
	"github.com/ulikunitz/xz"
)

// unpackArtifact unpacks the artifact into dir and returns the directory
// whose contents form the installation. Archives are extracted with
// go-getter's decompressors, which guard against crafted archives.
// Anything that isn't a recognized archive is taken to be the tool's
// executable itself and is stored as dir/executable.
func unpackArtifact(artifact, dir, archivePrefix, executable string) (string, error) {
	f, err := os.Open(artifact)
	if err != nil {
		return "", err
	}
	decompressor, err := sniffDecompressor(f)
	f.Close()
	if err != nil {
		return "", err
	}

	if decompressor == nil {
		if archivePrefix != "" {
			return "", fmt.Errorf("%s is not an archive, but an archive prefix %q was given", filepath.Base(artifact), archivePrefix)
		}
		return dir, installExecutable(artifact, filepath.Join(dir, executableName(executable)))
	}

	if err := decompressor.Decompress(dir, artifact, true, 0 /*default umask*/); err != nil {
		return "", fmt.Errorf("failed to unpack %s: %w", filepath.Base(artifact), err)
	}
	if archivePrefix == "" {
		return dir, nil
	}

	root := filepath.Join(dir, filepath.FromSlash(archivePrefix))
	if rel, err := filepath.Rel(dir, root); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive prefix %q escapes the archive", archivePrefix)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("archive %s has no directory %q", filepath.Base(artifact), archivePrefix)
	}
	return root, nil
}

func executableName(name string) string {
	if exeSuffix != "" && filepath.Ext(name) == "" {
		return name + exeSuffix
	}
	return name
}

func installExecutable(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	//nolint: mnd // directory permissions
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	//nolint: mnd // executable permissions
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

var decompressSniffers = []func(*os.File, int64) getter.Decompressor{
	func(f *os.File, size int64) getter.Decompressor {
		if _, err := zip.NewReader(f, size); err != nil {
			return nil
		}
		return &getter.ZipDecompressor{}
	},
	func(f *os.File, _ int64) getter.Decompressor {
		// Any gzip stream is assumed to contain a tar stream.
		if _, err := gzip.NewReader(f); err != nil {
			return nil
		}
		return &getter.TarGzipDecompressor{}
	},
	func(f *os.File, _ int64) getter.Decompressor {
		buf := make([]byte, xz.HeaderLen)
		if n, err := f.Read(buf); err != nil || n != len(buf) || !xz.ValidHeader(buf) {
			return nil
		}
		return &getter.TarXzDecompressor{}
	},
	func(f *os.File, _ int64) getter.Decompressor {
		// Only the "BZ" magic number is checked here, so this sniffer
		// must stay last.
		buf := make([]byte, 4)
		if n, err := f.Read(buf); err != nil || n != len(buf) || buf[0] != 'B' || buf[1] != 'Z' {
			return nil
		}
		return &getter.TarBzip2Decompressor{}
	},
}

// sniffDecompressor returns the decompressor for f's format, or nil if f
// isn't a supported archive.
func sniffDecompressor(f *os.File) (getter.Decompressor, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	for _, sniffer := range decompressSniffers {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		if ret := sniffer(f, info.Size()); ret != nil {
			return ret, nil
		}
	}
	return nil, nil
}
