// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package logging configures the process-wide logger.
//
// Code throughout this module logs through the standard library "log"
// package using a "[LEVEL] message" prefix convention, and this package
// routes those lines through an hclog logger that filters them by level.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"syscall"

	"github.com/hashicorp/go-hclog"
)

// These are the environment variables that determine if we log, and if
// we log whether or not the log should go to a file.
const (
	envLog     = "PROTO_LOG"
	envLogFile = "PROTO_LOG_PATH"
)

// ValidLevels are the log level names that are accepted in PROTO_LOG.
var ValidLevels = []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR", "OFF"}

// logger is the global hclog logger
var logger hclog.Logger

// logWriter is a global writer for logs, to be used with the std log package
var logWriter io.Writer

func init() {
	logger = newHCLogger("")
	logWriter = logger.StandardWriter(&hclog.StandardLoggerOptions{InferLevels: true})

	// set up the default std library logger to use our output
	log.SetFlags(0)
	log.SetPrefix("")
	log.SetOutput(logWriter)
}

// LogOutput return the default global log io.Writer
func LogOutput() io.Writer {
	return logWriter
}

// HCLogger returns the default global hclog logger
func HCLogger() hclog.Logger {
	return logger
}

// NewLogger returns a named child of the global logger, for subsystems
// such as the plugin runtime that want their own log prefix.
func NewLogger(name string) hclog.Logger {
	return logger.Named(name)
}

// newHCLogger returns a new hclog.Logger instance with the given name
func newHCLogger(name string) hclog.Logger {
	logOutput := io.Writer(os.Stderr)
	logLevel, json := globalLogLevel()

	if logPath := os.Getenv(envLogFile); logPath != "" {
		f, err := os.OpenFile(logPath, syscall.O_CREAT|syscall.O_RDWR|syscall.O_APPEND, 0666)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		} else {
			logOutput = f
		}
	}

	return hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:              name,
		Level:             logLevel,
		Output:            logOutput,
		IndependentLevels: true,
		JSONFormat:        json,
	})
}

// RegisterSink adds a trace-level sink to the global logger, receiving
// every log line regardless of the level selected by PROTO_LOG. The
// returned function removes the sink again.
func RegisterSink(w io.Writer) func() {
	l, ok := logger.(hclog.InterceptLogger)
	if !ok {
		panic("global logger is not an InterceptLogger")
	}
	if w == nil {
		return func() {}
	}

	sink := hclog.NewSinkAdapter(&hclog.LoggerOptions{
		Level:  hclog.Trace,
		Output: w,
	})
	l.RegisterSink(sink)
	return func() {
		l.DeregisterSink(sink)
	}
}

// CurrentLogLevel returns the current log level string based the environment vars
func CurrentLogLevel() string {
	level, _ := globalLogLevel()
	return strings.ToUpper(level.String())
}

// IsDebugOrHigher returns whether or not the current log level is debug or trace
func IsDebugOrHigher() bool {
	level, _ := globalLogLevel()
	return level == hclog.Debug || level == hclog.Trace
}

func globalLogLevel() (hclog.Level, bool) {
	envLevel := strings.ToUpper(os.Getenv(envLog))
	if envLevel == "" {
		return hclog.Off, false
	}
	if envLevel == "JSON" {
		return hclog.Trace, true
	}
	return parseLogLevel(envLevel), false
}

func parseLogLevel(envLevel string) hclog.Level {
	if envLevel == "" {
		return hclog.Off
	}

	logLevel := hclog.Trace
	if isValidLogLevel(envLevel) {
		logLevel = hclog.LevelFromString(envLevel)
	} else {
		fmt.Fprintf(os.Stderr, "[WARN] Invalid log level: %q. Defaulting to level: TRACE. Valid levels are: %+v\n",
			envLevel, ValidLevels)
	}

	return logLevel
}

func isValidLogLevel(level string) bool {
	for _, l := range ValidLevels {
		if level == l {
			return true
		}
	}

	return false
}

// Indent adds two spaces to the beginning of each line of the given string,
// with the goal of making the log level filter understand it as a line
// continuation rather than possibly as new log lines.
func Indent(s string) string {
	var b strings.Builder
	for len(s) > 0 {
		end := strings.IndexByte(s, '\n')
		if end == -1 {
			end = len(s) - 1
		}
		var l string
		l, s = s[:end+1], s[end+1:]
		b.WriteString("  ")
		b.WriteString(l)
	}
	return b.String()
}
