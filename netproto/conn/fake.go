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

package conn

import (
	"context"
	"net"
	"time"
)

// fakeConn is an in-memory Conn backed by net.Pipe, used by every package's
// unit tests in place of a real TCP/UDS socket so tests don't depend on OS
// networking support. Unlike the real transports, a zero/negative timeout
// passed to Recv does not wait forever here - it falls back to
// fallbackTimeout, the same visible quirk the source implementation's
// in-memory test double has: preserved as behavior rather than "fixed"
// into a true infinite wait.
type fakeConn struct {
	netConn
}

// NewFakePair returns two Conns, each the other's peer, connected entirely
// in-process.
func NewFakePair() (a, b Conn) {
	ca, cb := net.Pipe()
	return &fakeConn{netConn{c: ca}}, &fakeConn{netConn{c: cb}}
}

func (f *fakeConn) Recv(ctx context.Context, p []byte, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = fallbackTimeout
	}
	return f.netConn.Recv(ctx, p, timeout)
}
