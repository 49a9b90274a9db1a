// Copyright (C) 2024 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package corelog is the structured logging facade used across every Dive
// component. It is deliberately small: a context-scoped Logger with a
// minimum Severity, writing to an io.Writer, and a handful of package-level
// shorthand functions (I, D, W, E, Err, Errf) that mirror the call-site
// idiom of gapid's core/log (log.I(ctx, ...), log.Err(ctx, err, "...")).
package corelog

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// Severity defines the severity of a logging message. The ordering matches
// gapid's core/log.Severity; values below Verbose are never used by this
// module but are kept contiguous so future additions don't renumber.
type Severity int32

const (
	Verbose Severity = iota
	Debug
	Info
	Warning
	Error
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Verbose:
		return "V"
	case Debug:
		return "D"
	case Info:
		return "I"
	case Warning:
		return "W"
	case Error:
		return "E"
	case Fatal:
		return "F"
	default:
		return "?"
	}
}

// Logger writes severity-tagged, tag-prefixed messages to an underlying
// writer. The zero Logger writes every severity to os.Stderr; a nil *Logger
// uses the process-wide default (os.Stderr, Info and above).
type Logger struct {
	out   io.Writer
	min   Severity
	tags  []string
	clock func() time.Time
}

// New returns a Logger that writes to w, filtering out messages below min.
func New(w io.Writer, min Severity) *Logger {
	return &Logger{out: w, min: min, clock: time.Now}
}

// With returns a copy of the logger with an additional tag appended; tags
// are rendered as a bracketed prefix, outermost first.
func (l *Logger) With(tag string) *Logger {
	cp := *l
	cp.tags = append(append([]string{}, l.tags...), tag)
	return &cp
}

func (l *Logger) log(sev Severity, msg string) {
	if l == nil {
		l = defaultLogger
	}
	if sev < l.min {
		return
	}
	w := l.out
	if w == nil {
		w = os.Stderr
	}
	clock := l.clock
	if clock == nil {
		clock = time.Now
	}
	prefix := ""
	for _, t := range l.tags {
		prefix += "[" + t + "]"
	}
	fmt.Fprintf(w, "%s %s %s%s\n", clock().Format("15:04:05.000"), sev, prefix, msg)
}

var defaultLogger = New(os.Stderr, Info)

type ctxKey struct{}

// NewContext returns a context carrying l, retrievable with From.
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From extracts the Logger attached to ctx, or the process-wide default
// logger (stderr, Info) if none was attached.
func From(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok && l != nil {
		return l
	}
	return defaultLogger
}

// I logs an informational message against the logger in ctx.
func I(ctx context.Context, format string, args ...interface{}) {
	From(ctx).log(Info, fmt.Sprintf(format, args...))
}

// D logs a debug message against the logger in ctx.
func D(ctx context.Context, format string, args ...interface{}) {
	From(ctx).log(Debug, fmt.Sprintf(format, args...))
}

// W logs a warning against the logger in ctx.
func W(ctx context.Context, format string, args ...interface{}) {
	From(ctx).log(Warning, fmt.Sprintf(format, args...))
}

// E logs an error message against the logger in ctx.
func E(ctx context.Context, format string, args ...interface{}) {
	From(ctx).log(Error, fmt.Sprintf(format, args...))
}

// Err logs cause at Error severity and returns an error wrapping it with
// msg, the way gapid's log.Err does. A nil cause is still logged - the
// caller is reporting a failure, not necessarily propagating one.
func Err(ctx context.Context, cause error, msg string) error {
	From(ctx).log(Error, wrapMsg(msg, cause))
	if cause == nil {
		return fmt.Errorf("%s", msg)
	}
	return fmt.Errorf("%s: %w", msg, cause)
}

// Errf is Err with a format string.
func Errf(ctx context.Context, cause error, format string, args ...interface{}) error {
	return Err(ctx, cause, fmt.Sprintf(format, args...))
}

func wrapMsg(msg string, cause error) string {
	if cause == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, cause)
}
