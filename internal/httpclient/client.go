// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package httpclient builds the HTTP clients used for plugin, artifact
// and checksum downloads, so that they all share one policy for user
// agent, TLS, proxies, retries and tracing.
package httpclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/toolproto/proto/version"
)

// Defaults used when the configuration does not set the corresponding
// HTTP settings.
const (
	DefaultRetryCount = 2
	DefaultTimeout    = 60 * time.Second
)

// Options is the HTTP client policy taken from the merged configuration.
type Options struct {
	// AllowInvalidCerts disables TLS certificate verification.
	AllowInvalidCerts bool
	// Proxies are proxy URLs. Requests go through the first one.
	Proxies []string
	// RootCert is a PEM file of additional trusted certificate authorities.
	RootCert string
	// RetryCount is how many times a failed request is retried.
	RetryCount int
	// Timeout bounds each individual request.
	Timeout time.Duration
}

func wrapTransport(ctx context.Context, base http.RoundTripper) http.RoundTripper {
	var rt http.RoundTripper = &userAgentRoundTripper{
		userAgent: UserAgent(version.String()),
		inner:     base,
	}
	if span := otelTrace.SpanFromContext(ctx); span != nil && span.IsRecording() {
		// Only with an active span, since otherwise each request would
		// start its own single-request trace.
		rt = otelhttp.NewTransport(rt)
	}
	return rt
}

// NewWithOptions returns a client built on cleanhttp's pooled transport
// that sends a proto User-Agent string and applies the TLS, proxy and
// timeout parts of the given options.
//
// If the given context has an active OpenTelemetry trace span associated
// with it then the returned client is also configured to collect traces
// for outgoing requests. Those traces are children of the span in the
// context passed with each individual request, not of the span in ctx.
func NewWithOptions(ctx context.Context, opts Options) (*http.Client, error) {
	transport := cleanhttp.DefaultPooledTransport()

	if opts.AllowInvalidCerts || opts.RootCert != "" {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if opts.AllowInvalidCerts {
			log.Printf("[WARN] TLS certificate verification is disabled for plugin and tool downloads")
			tlsConfig.InsecureSkipVerify = true //nolint:gosec // explicitly requested by configuration
		}
		if opts.RootCert != "" {
			pool, err := loadRootCert(opts.RootCert)
			if err != nil {
				return nil, err
			}
			tlsConfig.RootCAs = pool
		}
		transport.TLSClientConfig = tlsConfig
	}

	if len(opts.Proxies) > 0 {
		proxyURL, err := url.Parse(opts.Proxies[0])
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", opts.Proxies[0], err)
		}
		if len(opts.Proxies) > 1 {
			log.Printf("[WARN] Multiple HTTP proxies configured; using only %s", proxyURL.Redacted())
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	cli := &http.Client{Transport: wrapTransport(ctx, transport)}
	if opts.Timeout > 0 {
		cli.Timeout = opts.Timeout
	}
	return cli, nil
}

func loadRootCert(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read root certificate %s: %w", path, err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("root certificate %s contains no PEM-encoded certificates", path)
	}
	return pool, nil
}
