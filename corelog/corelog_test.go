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

package corelog_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/dive/corelog"
)

func TestSeverityFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	l := corelog.New(buf, corelog.Warning)
	ctx := corelog.NewContext(context.Background(), l)

	corelog.I(ctx, "info message")
	if buf.Len() != 0 {
		t.Fatalf("expected Info to be filtered out, got %q", buf.String())
	}

	corelog.W(ctx, "warning message")
	if !strings.Contains(buf.String(), "warning message") {
		t.Fatalf("expected warning message to be logged, got %q", buf.String())
	}
}

func TestWithTagPrefix(t *testing.T) {
	buf := &bytes.Buffer{}
	l := corelog.New(buf, corelog.Verbose).With("server")
	ctx := corelog.NewContext(context.Background(), l)

	corelog.I(ctx, "listening")
	if !strings.Contains(buf.String(), "[server]listening") {
		t.Fatalf("expected tag prefix, got %q", buf.String())
	}
}

func TestErrWrapsCause(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := corelog.NewContext(context.Background(), corelog.New(buf, corelog.Verbose))

	cause := errors.New("boom")
	err := corelog.Err(ctx, cause, "operation failed")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected wrapped error to mention cause, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to unwrap to cause")
	}
}

func TestFromDefaultsWithoutLogger(t *testing.T) {
	l := corelog.From(context.Background())
	if l == nil {
		t.Fatalf("expected a non-nil default logger")
	}
}
