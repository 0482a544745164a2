// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package pluginloader

import (
	"context"
	"log"
	"net"
	"sync"
	"time"

	"github.com/toolproto/proto/internal/protoconfig"
)

// DefaultOfflineHosts are public DNS resolvers probed to decide whether
// the network is reachable.
var DefaultOfflineHosts = []string{
	"1.1.1.1:53",
	"8.8.8.8:53",
	"8.8.4.4:53",
	"[2606:4700:4700::1111]:53",
}

// NewOfflineChecker returns a function that reports whether proto is
// offline.
//
// If forced is non-nil its value is always returned and no probing
// happens; this is how an explicit offline setting from the environment
// is honored. Otherwise the first call probes the configured hosts in
// parallel with a TCP connection attempt each, and proto is considered
// offline if none of them answered within the timeout. The result of the
// probe is remembered for the lifetime of the returned function.
func NewOfflineChecker(settings protoconfig.OfflineSettings, forced *bool) func() bool {
	if forced != nil {
		offline := *forced
		return func() bool { return offline }
	}

	var hosts []string
	if !settings.OverrideDefaultHosts {
		hosts = append(hosts, DefaultOfflineHosts...)
	}
	hosts = append(hosts, settings.CustomHosts...)
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = protoconfig.DefaultOfflineTimeout
	}

	return sync.OnceValue(func() bool {
		offline := !anyReachable(hosts, timeout)
		if offline {
			log.Printf("[WARN] None of %d probed hosts answered within %s; treating proto as offline", len(hosts), timeout)
		} else {
			log.Printf("[TRACE] Network connection detected")
		}
		return offline
	})
}

func anyReachable(hosts []string, timeout time.Duration) bool {
	if len(hosts) == 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	found := make(chan struct{}, len(hosts))
	var wg sync.WaitGroup
	for _, host := range hosts {
		wg.Go(func() {
			var d net.Dialer
			conn, err := d.DialContext(ctx, "tcp", host)
			if err != nil {
				return
			}
			conn.Close()
			found <- struct{}{}
		})
	}
	go func() {
		wg.Wait()
		close(found)
	}()

	_, ok := <-found
	return ok
}
