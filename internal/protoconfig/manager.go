// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package protoconfig

import (
	"log"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/toolproto/proto/internal/addrs"
	"github.com/toolproto/proto/internal/httpclient"
)

// Manager holds the configuration files that apply to a directory,
// ordered from nearest to farthest with the global file last.
type Manager struct {
	Files []*ConfigFile

	once   sync.Once
	merged *Config
	// merges counts merge computations, for tests.
	merges atomic.Int32
}

// NewManager returns a manager for the given files, which must already be
// in precedence order.
func NewManager(files []*ConfigFile) *Manager {
	return &Manager{Files: files}
}

// MergedConfig folds the files into a single Config. The merge happens on
// the first call only; concurrent first callers wait for that single
// computation and every caller receives the same *Config.
func (m *Manager) MergedConfig() *Config {
	m.once.Do(func() {
		m.merges.Add(1)
		m.merged = merge(m.Files)
	})
	return m.merged
}

// merge applies first-writer-wins per key: a value set by a file is never
// replaced by a file later in the sequence. Settings are merged field by
// field, with list settings treated as a single value.
func merge(files []*ConfigFile) *Config {
	ret := &Config{
		Versions: map[addrs.ToolID]string{},
		Plugins:  map[addrs.ToolID]addrs.PluginLocator{},
	}
	var s FileSettings
	s.HTTP = &FileHTTPSettings{}
	s.Offline = &FileOfflineSettings{}

	for _, file := range files {
		if !file.Exists {
			continue
		}
		log.Printf("[TRACE] protoconfig: merging %s", file.Path)
		cfg := file.Config

		// Sorted so that the log output is stable.
		for _, id := range slices.Sorted(maps.Keys(cfg.Versions)) {
			if _, exists := ret.Versions[id]; !exists {
				ret.Versions[id] = cfg.Versions[id]
			}
		}
		for _, id := range slices.Sorted(maps.Keys(cfg.Plugins)) {
			if existing, exists := ret.Plugins[id]; exists {
				log.Printf("[TRACE] protoconfig: %s in %s is overridden by %s", id, file.Path, existing)
				continue
			}
			ret.Plugins[id] = cfg.Plugins[id]
		}

		fs := cfg.Settings
		setOnce(&s.AutoInstall, fs.AutoInstall)
		setOnce(&s.AutoClean, fs.AutoClean)
		setOnce(&s.RegistryURL, fs.RegistryURL)
		if h := fs.HTTP; h != nil {
			setOnce(&s.HTTP.AllowInvalidCerts, h.AllowInvalidCerts)
			setOnce(&s.HTTP.Proxies, h.Proxies)
			setOnce(&s.HTTP.RootCert, h.RootCert)
			setOnce(&s.HTTP.RetryCount, h.RetryCount)
			setOnce(&s.HTTP.TimeoutSeconds, h.TimeoutSeconds)
		}
		if o := fs.Offline; o != nil {
			setOnce(&s.Offline.TimeoutMs, o.TimeoutMs)
			setOnce(&s.Offline.OverrideDefaultHosts, o.OverrideDefaultHosts)
			setOnce(&s.Offline.CustomHosts, o.CustomHosts)
		}
	}

	if _, exists := ret.Plugins[addrs.SchemaPluginID]; !exists {
		ret.Plugins[addrs.SchemaPluginID] = DefaultSchemaPluginLocator
	}
	ret.Settings = Settings{
		AutoInstall: valueOr(s.AutoInstall, false),
		AutoClean:   valueOr(s.AutoClean, false),
		RegistryURL: valueOr(s.RegistryURL, DefaultRegistryURL),
		HTTP: HTTPSettings{
			AllowInvalidCerts: valueOr(s.HTTP.AllowInvalidCerts, false),
			Proxies:           slices.Clone(valueOr(s.HTTP.Proxies, nil)),
			RootCert:          valueOr(s.HTTP.RootCert, ""),
			RetryCount:        valueOr(s.HTTP.RetryCount, httpclient.DefaultRetryCount),
			Timeout:           seconds(s.HTTP.TimeoutSeconds, httpclient.DefaultTimeout),
		},
		Offline: OfflineSettings{
			Timeout:              millis(s.Offline.TimeoutMs, DefaultOfflineTimeout),
			OverrideDefaultHosts: valueOr(s.Offline.OverrideDefaultHosts, false),
			CustomHosts:          slices.Clone(valueOr(s.Offline.CustomHosts, nil)),
		},
	}
	return ret
}

func setOnce[T any](dst **T, src *T) {
	if *dst == nil && src != nil {
		*dst = src
	}
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func seconds(p *int, def time.Duration) time.Duration {
	if p == nil {
		return def
	}
	return time.Duration(*p) * time.Second
}

func millis(p *int, def time.Duration) time.Duration {
	if p == nil {
		return def
	}
	return time.Duration(*p) * time.Millisecond
}
