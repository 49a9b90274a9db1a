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

package corectx_test

import (
	"sync"
	"testing"

	"github.com/google/dive/corectx"
)

func TestNullTokenNeverCancelled(t *testing.T) {
	var zero corectx.Token
	if zero.Cancelled() {
		t.Fatalf("zero Token should never report Cancelled")
	}
	zero.Cancel() // must not panic
	if zero.Valid() {
		t.Fatalf("zero Token should not be Valid")
	}
}

func TestCancelIsObservedByCopies(t *testing.T) {
	tok := corectx.New()
	cp := tok
	if cp.Cancelled() {
		t.Fatalf("fresh token should not be cancelled")
	}
	tok.Cancel()
	if !cp.Cancelled() {
		t.Fatalf("copy should observe cancellation through shared flag")
	}
}

func TestCancelIdempotentAndConcurrent(t *testing.T) {
	tok := corectx.New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok.Cancel()
		}()
	}
	wg.Wait()
	if !tok.Cancelled() {
		t.Fatalf("expected token to be cancelled after concurrent Cancel calls")
	}
}
