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

// Package corecrash gives every background worker goroutine (the server's
// accept loop, the client's keep-alive loop) the same panic-isolation
// gapid's core/app/crash.Go provides: a recovered panic is reported instead
// of taking the whole process down. This module has no global
// crash-reporting pipeline to dispatch to, so the default reporter just
// logs.
package corecrash

import (
	"context"
	"runtime/debug"

	"github.com/google/dive/corelog"
)

// Go runs f on a new goroutine, recovering and logging any panic rather
// than letting it crash the process.
func Go(ctx context.Context, f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				corelog.E(ctx, "recovered panic: %v\n%s", r, debug.Stack())
			}
		}()
		f()
	}()
}
