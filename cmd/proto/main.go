// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/mitchellh/cli"

	"github.com/toolproto/proto/internal/command"
	"github.com/toolproto/proto/internal/environment"
	"github.com/toolproto/proto/internal/logging"
	"github.com/toolproto/proto/internal/sandbox"
	"github.com/toolproto/proto/internal/tracing"
	"github.com/toolproto/proto/version"
)

// envTmpLogPath names a file that receives a full trace-level copy of the
// log, whatever PROTO_LOG is set to.
const envTmpLogPath = "PROTO_TEMP_LOG_PATH"

// Ui is the cli.Ui used for communicating to the outside world.
var Ui cli.Ui

func init() {
	Ui = command.NewBasicUI()
}

func main() {
	os.Exit(realMain())
}

func realMain() int {
	ctx, err := tracing.OpenTelemetryInit(context.Background(), tracing.InitOptions{
		Exporter:    os.Getenv(tracing.OTELExporterEnvVar),
		TraceParent: os.Getenv("TRACEPARENT"),
		TraceState:  os.Getenv("TRACESTATE"),
	})
	if err != nil {
		Ui.Error(fmt.Sprintf("Could not initialize telemetry: %s", err))
		Ui.Error(fmt.Sprintf("Unset environment variable %s if you don't intend to collect telemetry from proto.", tracing.OTELExporterEnvVar))
		return 1
	}
	defer tracing.ForceFlush(5 * time.Second)

	ctx, span := tracing.Tracer().Start(ctx, "proto")
	defer span.End()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	defer registerTempLogSink(os.Getenv(envTmpLogPath))()

	log.Printf("[INFO] proto version: %s (log level %s)", version.String(), logging.CurrentLogLevel())
	if logging.IsDebugOrHigher() {
		for _, depMod := range version.InterestingDependencies() {
			log.Printf("[DEBUG] using %s %s", depMod.Path, depMod.Version)
		}
	}
	log.Printf("[INFO] Go runtime version: %s", runtime.Version())
	log.Printf("[INFO] CLI args: %#v", os.Args)

	env, err := environment.New()
	if err != nil {
		Ui.Error(fmt.Sprintf("Failed to initialize proto: %s", err))
		return 1
	}
	log.Printf("[DEBUG] Store is %s, working directory is %s", env.Root, env.Cwd)

	stderrTerminal := isTerminal(os.Stderr)
	stdoutTerminal := isTerminal(os.Stdout)
	if stderrTerminal {
		log.Printf("[TRACE] Stderr is a terminal")
	} else {
		log.Printf("[TRACE] Stderr is not a terminal")
	}

	meta := command.Meta{
		CallerContext: ctx,
		Env:           env,
		Ui:            Ui,
		Color:         stdoutTerminal && os.Getenv("NO_COLOR") == "",
		ShowProgress:  !env.Options().NoProgress && stderrTerminal,
	}

	// Make sure we clean up any managed plugins at the end of this
	defer sandbox.CleanupClients()

	args := os.Args[1:]
	for _, arg := range args {
		if arg == "-v" || arg == "-version" || arg == "--version" {
			args = append([]string{"version"}, args...)
			break
		}
	}

	cliRunner := &cli.CLI{
		Name:       filepath.Base(os.Args[0]),
		Args:       args,
		Commands:   initCommands(meta),
		HelpWriter: os.Stdout,
	}
	exitCode, err := cliRunner.Run()
	if err != nil {
		Ui.Error(fmt.Sprintf("Error executing CLI: %s", err.Error()))
		return 1
	}
	return exitCode
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// registerTempLogSink copies the full log into the file at path. The
// returned function detaches the sink and closes the file.
func registerTempLogSink(path string) func() {
	if path == "" {
		return func() {}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Printf("[ERROR] Could not open temp log file: %v", err)
		return func() {}
	}

	log.Printf("[DEBUG] Adding temp file log sink: %s", f.Name())
	deregister := logging.RegisterSink(f)
	return func() {
		deregister()
		f.Close()
	}
}
