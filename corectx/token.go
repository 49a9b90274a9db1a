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

// Package corectx implements Dive's cooperative cancellation token (C9): a
// small owning handle around a single shared atomic flag. It is a
// simplified sibling of gapid's core/event/task.Signal - that type is a
// closed-channel signal meant for one-shot "has this finished" waits this
// module also uses internally (see rpc/server, rpc/client); Token is a
// coarser "please stop at your next opportunity" flag, polled rather than
// selected on.
package corectx

import (
	"context"
	"sync/atomic"
)

// Token is a cooperative cancellation flag. The zero Token never reports
// cancellation and Cancel on it does nothing; construct a cancellable one
// with New. A Token may be copied freely - all copies share
// the same underlying flag, since Token holds a pointer.
type Token struct {
	flag *int32
}

// New returns a fresh, non-cancelled Token.
func New() Token {
	var f int32
	return Token{flag: &f}
}

// Cancelled reports whether Cancel has been called. A null Token (the zero
// value, never passed through New) reports false, so callers that received
// no token at all can pass it through uniformly.
func (t Token) Cancelled() bool {
	if t.flag == nil {
		return false
	}
	return atomic.LoadInt32(t.flag) != 0
}

// Cancel sets the cancellation flag. It is safe to call more than once and
// from any goroutine; only the originator is expected to call it, but
// nothing enforces that.
func (t Token) Cancel() {
	if t.flag == nil {
		return
	}
	atomic.StoreInt32(t.flag, 1)
}

// Valid reports whether t was constructed by New (as opposed to being the
// zero Token).
func (t Token) Valid() bool {
	return t.flag != nil
}

type tokenKey struct{}

// WithToken attaches tok to ctx so a long-running operation several calls
// deep (file transfer, stats gathering) can poll it without threading a
// Token parameter through every intermediate signature.
func WithToken(ctx context.Context, tok Token) context.Context {
	return context.WithValue(ctx, tokenKey{}, tok)
}

// FromContext returns the Token attached by WithToken, or the zero Token
// (never cancelled) if none was attached.
func FromContext(ctx context.Context) Token {
	tok, _ := ctx.Value(tokenKey{}).(Token)
	return tok
}
