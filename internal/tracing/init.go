// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package tracing wraps the optional OpenTelemetry tracing of plugin
// loads, downloads and installs.
package tracing

import (
	"context"
	"fmt"
	"log"

	"github.com/go-logr/stdr"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/toolproto/proto/internal/logging"
	"github.com/toolproto/proto/internal/tracing/traceattrs"
)

// OTELExporterEnvVar is the standard OpenTelemetry variable that selects
// a trace exporter. Tracing is only enabled when it is set to "otlp".
const OTELExporterEnvVar = "OTEL_TRACES_EXPORTER"

// isTracingEnabled is true if OpenTelemetry is enabled.
var isTracingEnabled bool

// InitOptions carries the environment values that OpenTelemetryInit
// needs. The caller reads them from the process environment.
type InitOptions struct {
	// Exporter is the value of OTEL_TRACES_EXPORTER.
	Exporter string
	// TraceParent and TraceState are the W3C trace context of a parent
	// process, from TRACEPARENT and TRACESTATE.
	TraceParent string
	TraceState  string
}

// OpenTelemetryInit initializes the optional OpenTelemetry exporter.
//
// proto is a CLI tool and so by default nothing is exported. Setting
// OTEL_TRACES_EXPORTER=otlp enables an OTLP exporter, which is in turn
// configured by the standard OTLP exporter environment variables.
//
// Returns the context with the parent trace context attached, if any.
func OpenTelemetryInit(ctx context.Context, opts InitOptions) (context.Context, error) {
	isTracingEnabled = false

	// autoexport assumes exporting is always wanted and would look for
	// an OTLP server on localhost, so check for ourselves first.
	if opts.Exporter != "otlp" {
		log.Printf("[TRACE] OpenTelemetry: %s not set, OTel tracing is not enabled", OTELExporterEnvVar)
		return ctx, nil
	}

	isTracingEnabled = true
	log.Printf("[TRACE] OpenTelemetry: enabled")

	otelResource, err := traceattrs.NewResource(ctx, "proto")
	if err != nil {
		return ctx, fmt.Errorf("failed to create resource: %w", err)
	}

	if opts.TraceParent != "" {
		log.Printf("[TRACE] OpenTelemetry: found trace parent in environment: %s", opts.TraceParent)
		// The TraceContext propagator expects lowercase keys.
		propCarrier := make(propagation.MapCarrier)
		propCarrier.Set("traceparent", opts.TraceParent)
		if opts.TraceState != "" {
			propCarrier.Set("tracestate", opts.TraceState)
		}
		ctx = propagation.TraceContext{}.Extract(ctx, propCarrier)
	}

	exporter, err := autoexport.NewSpanExporter(ctx)
	if err != nil {
		return ctx, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBlocking(),
		),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(otelResource),
	)
	otel.SetTracerProvider(provider)

	prop := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	otel.SetTextMapPropagator(prop)

	otel.SetLogger(stdr.New(log.New(logging.LogOutput(), "", 0)))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		log.Printf("[WARN] OpenTelemetry error: %v", err)
	}))

	return ctx, nil
}
