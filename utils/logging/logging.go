/*
SPDX-FileCopyrightText: Copyright (c) 2026 NVIDIA CORPORATION & AFFILIATES. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.

SPDX-License-Identifier: Apache-2.0
*/

// Package logging provides the slog handler used by the authorization
// services. Text log lines follow the format:
//
//	<ISO8601_time> <service_name> [<LEVEL>] <source>: [user=<user> ][decision=<decision> ]<message>[ key=value ...]
//
// "user" and "decision" are lifted out of the attributes and placed before the
// message so the authz-log Fluent Bit parser can capture them as named groups.
package logging

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.corp.nvidia.com/osmo-authz/utils"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Attribute keys lifted before the message, in output order.
const (
	UserKey     = "user"
	DecisionKey = "decision"
)

var liftedKeys = []string{UserKey, DecisionKey}

// Config holds the logging configuration.
type Config struct {
	Level   slog.Level
	Format  string
	LogDir  string
	LogName string
}

// FlagPointers holds pointers to flag values for logging configuration.
type FlagPointers struct {
	logLevel  *string
	logFormat *string
	logDir    *string
	logName   *string
}

// RegisterFlags registers logging-related command-line flags and returns
// pointers that should be converted to Config after flag.Parse().
func RegisterFlags() *FlagPointers {
	return &FlagPointers{
		logLevel: flag.String("log-level",
			utils.GetEnv("OSMO_LOG_LEVEL", "info"),
			"Log level (debug, info, warn, error)"),
		logFormat: flag.String("log-format",
			utils.GetEnv("OSMO_LOG_FORMAT", FormatText),
			"Log format (text, json)"),
		logDir: flag.String("log-dir",
			utils.GetEnv("OSMO_LOG_DIR", ""),
			"Directory to write log files to"),
		logName: flag.String("log-name", "", "Name for the log file (without extension)"),
	}
}

// ToConfig converts flag pointers to Config. Must be called after flag.Parse().
func (f *FlagPointers) ToConfig() Config {
	return Config{
		Level:   ParseLevel(*f.logLevel),
		Format:  strings.ToLower(strings.TrimSpace(*f.logFormat)),
		LogDir:  *f.logDir,
		LogName: *f.logName,
	}
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ServiceHandler is a slog.Handler writing the text line format described in
// the package documentation. The <source> field is the calling Go package.
type ServiceHandler struct {
	serviceName string
	level       slog.Level
	writer      io.Writer
	mu          *sync.Mutex
	attrs       []groupedAttr
	groups      []string
}

// groupedAttr is a pre-set attribute with the groups open when it was added.
type groupedAttr struct {
	attr   slog.Attr
	groups []string
}

// NewServiceHandler creates a new ServiceHandler that writes to the given writer.
func NewServiceHandler(serviceName string, level slog.Level, writer io.Writer) *ServiceHandler {
	return &ServiceHandler{
		serviceName: serviceName,
		level:       level,
		writer:      writer,
		mu:          &sync.Mutex{},
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *ServiceHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle formats and writes the log record.
func (h *ServiceHandler) Handle(_ context.Context, r slog.Record) error {
	lifted := make(map[string]string, len(liftedKeys))
	var extraParts []string

	collectAttr := func(a slog.Attr, groups []string) {
		if len(groups) == 0 && isLifted(a.Key) {
			if _, seen := lifted[a.Key]; !seen {
				lifted[a.Key] = a.Value.String()
				return
			}
		}
		extraParts = append(extraParts, formatAttr(a, groups))
	}

	for _, a := range h.attrs {
		collectAttr(a.attr, a.groups)
	}
	r.Attrs(func(a slog.Attr) bool {
		collectAttr(a, h.groups)
		return true
	})

	var b strings.Builder
	b.WriteString(r.Time.Format("2006-01-02T15:04:05.000-07:00"))
	b.WriteString(" ")
	b.WriteString(h.serviceName)
	fmt.Fprintf(&b, " [%s] %s: ", r.Level.String(), callerSource(r.PC))
	for _, key := range liftedKeys {
		if value := lifted[key]; value != "" {
			b.WriteString(key + "=" + value + " ")
		}
	}
	b.WriteString(r.Message)
	for _, part := range extraParts {
		b.WriteString(" ")
		b.WriteString(part)
	}
	b.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, b.String())
	return err
}

// WithAttrs returns a new Handler with the given attributes pre-set.
// Attributes keep the groups that were open when they were added.
func (h *ServiceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]groupedAttr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(clone.attrs, h.attrs)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, groupedAttr{attr: a, groups: h.groups})
	}
	return &clone
}

// WithGroup returns a new Handler with the given group name prepended to
// subsequent attribute keys.
func (h *ServiceHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

// InitLogger builds the service logger, installs it as the slog default and
// returns it. Output always goes to stdout; if config.LogDir is set it is
// also written to <LogDir>/<timestamp>_<pid>_<LogName>.txt.
func InitLogger(serviceName string, config Config) *slog.Logger {
	writers := []io.Writer{os.Stdout}
	if file := openLogFile(serviceName, config); file != nil {
		writers = append(writers, file)
	}
	writer := io.MultiWriter(writers...)

	var handler slog.Handler
	if config.Format == FormatJSON {
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: config.Level}).
			WithAttrs([]slog.Attr{slog.String("service", serviceName)})
	} else {
		handler = NewServiceHandler(serviceName, config.Level, writer)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	logger.Info("Starting service ...")

	return logger
}

func openLogFile(serviceName string, config Config) *os.File {
	if config.LogDir == "" {
		return nil
	}
	if err := os.MkdirAll(config.LogDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory %s: %v\n", config.LogDir, err)
		return nil
	}

	logName := config.LogName
	if logName == "" {
		logName = serviceName
	}
	timestamp := time.Now().Format("2006-01-02T15-04-05")
	fileName := fmt.Sprintf("%s_%d_%s.txt", timestamp, os.Getpid(), logName)
	filePath := filepath.Join(config.LogDir, fileName)

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", filePath, err)
		return nil
	}
	return file
}

// callerSource extracts the Go package name from the program counter.
func callerSource(pc uintptr) string {
	if pc == 0 {
		return "unknown"
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	f, _ := frames.Next()
	if f.Function == "" {
		return "unknown"
	}
	parts := strings.Split(f.Function, "/")
	lastPart := parts[len(parts)-1]
	if idx := strings.Index(lastPart, "."); idx >= 0 {
		return lastPart[:idx]
	}
	return lastPart
}

func isLifted(key string) bool {
	for _, k := range liftedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// formatAttr formats a single slog.Attr as "key=value", applying the group
// prefix if provided. Values containing spaces are quoted.
func formatAttr(a slog.Attr, groups []string) string {
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	value := a.Value.String()
	if strings.ContainsAny(value, " \t\n\"") {
		value = strconv.Quote(value)
	}
	return key + "=" + value
}
