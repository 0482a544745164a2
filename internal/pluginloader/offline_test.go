// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package pluginloader

import (
	"net"
	"testing"
	"time"

	"github.com/toolproto/proto/internal/protoconfig"
)

func TestNewOfflineChecker_forced(t *testing.T) {
	yes, no := true, false
	if !NewOfflineChecker(protoconfig.OfflineSettings{}, &yes)() {
		t.Errorf("forced offline not honored")
	}
	if NewOfflineChecker(protoconfig.OfflineSettings{}, &no)() {
		t.Errorf("forced online not honored")
	}
}

func TestNewOfflineChecker_probe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	online := NewOfflineChecker(protoconfig.OfflineSettings{
		Timeout:              time.Second,
		OverrideDefaultHosts: true,
		CustomHosts:          []string{ln.Addr().String()},
	}, nil)
	if online() {
		t.Errorf("reachable host reported as offline")
	}

	// A listener that was closed gives a refused connection.
	closed, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := closed.Addr().String()
	closed.Close()

	offline := NewOfflineChecker(protoconfig.OfflineSettings{
		Timeout:              200 * time.Millisecond,
		OverrideDefaultHosts: true,
		CustomHosts:          []string{addr},
	}, nil)
	if !offline() {
		t.Errorf("unreachable host reported as online")
	}

	none := NewOfflineChecker(protoconfig.OfflineSettings{OverrideDefaultHosts: true}, nil)
	if !none() {
		t.Errorf("no probe hosts should mean offline")
	}
}
