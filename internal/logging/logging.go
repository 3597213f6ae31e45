// Copyright 2025 The Searchsocket Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging initializes the process-wide structured logger.
//
// A filteringHandler keeps third-party library logs out of non-debug
// output, and the handler is swapped based on output format (text vs
// JSON lines) and whether the destination is a terminal.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

const modulePrefix = "github.com/gregpriday/searchsocket"

// ParseLevel converts a string log level to slog.Level. Unrecognized
// strings fall back to Warn.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Format selects the wire shape of log output.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Init installs the process-wide slog.Logger and returns it. In JSON
// format, records are emitted as {event, ts, data} lines on out,
// matching the CLI's --json mode. In text format, warnings
// and errors are prefixed WARN:/ERROR: and colorized when out is a
// terminal.
func Init(level slog.Level, out *os.File, format Format) *slog.Logger {
	var handler slog.Handler
	if format == FormatJSON {
		handler = newJSONLinesHandler(out, level)
	} else {
		handler = newTextHandler(out, level)
	}

	logger := slog.New(&filteringHandler{handler: handler, minLevel: level})
	slog.SetDefault(logger)
	return logger
}

// filteringHandler suppresses third-party library logs unless the
// level is Debug.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel && h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || h.isModulePackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *filteringHandler) isModulePackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	file, _ := fn.FileLine(pc)
	return strings.Contains(fn.Name(), modulePrefix) || strings.Contains(file, "searchsocket/")
}

// jsonLinesHandler renames slog's time/msg to ts/event and folds the
// remaining attributes under a data group, producing
// {event, ts, data} lines.
type jsonLinesHandler struct {
	slog.Handler
}

func newJSONLinesHandler(out io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				a.Key = "ts"
			case slog.MessageKey:
				a.Key = "event"
			case slog.LevelKey:
				return slog.Attr{}
			}
			return a
		},
	}
	return slog.NewJSONHandler(out, opts).WithGroup("data")
}

func newTextHandler(out *os.File, level slog.Level) slog.Handler {
	useColor := isTerminal(out)
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if a.Value.String() == "WARNING" {
					return slog.String(slog.LevelKey, "WARN")
				}
			}
			return a
		},
	}
	base := slog.NewTextHandler(out, opts)
	return &prefixedTextHandler{handler: base, writer: out, useColor: useColor}
}

// prefixedTextHandler writes WARN:/ERROR: prefixed lines to stderr-like
// output, colorized only when the destination is a terminal.
type prefixedTextHandler struct {
	handler  slog.Handler
	writer   io.Writer
	useColor bool
}

func (h *prefixedTextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *prefixedTextHandler) Handle(ctx context.Context, record slog.Record) error {
	prefix := ""
	switch {
	case record.Level >= slog.LevelError:
		prefix = "ERROR: "
	case record.Level >= slog.LevelWarn:
		prefix = "WARN: "
	}

	var b strings.Builder
	if h.useColor {
		b.WriteString(colorFor(record.Level))
	}
	b.WriteString(prefix)
	b.WriteString(record.Message)
	if h.useColor {
		b.WriteString("\033[0m")
	}
	record.Attrs(func(a slog.Attr) bool {
		b.WriteString(" ")
		b.WriteString(a.Key)
		b.WriteString("=")
		b.WriteString(a.Value.String())
		return true
	})
	b.WriteString("\n")
	_, err := h.writer.Write([]byte(b.String()))
	return err
}

func (h *prefixedTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &prefixedTextHandler{handler: h.handler.WithAttrs(attrs), writer: h.writer, useColor: h.useColor}
}

func (h *prefixedTextHandler) WithGroup(name string) slog.Handler {
	return &prefixedTextHandler{handler: h.handler.WithGroup(name), writer: h.writer, useColor: h.useColor}
}

func colorFor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m"
	case level >= slog.LevelWarn:
		return "\033[33m"
	default:
		return "\033[36m"
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
