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

//go:build !windows

package conn

import (
	"context"
	"net"
	"time"

	"github.com/google/dive/status"
)

// listener wraps a net.Listener bound to an abstract-namespace Unix domain
// socket, matching the "at most one client" contract of C4: Accept is
// called in a loop by the server, which only ever holds one established
// Conn at a time.
type listener struct {
	l net.Listener
	// pending is the in-flight accept started by an earlier Accept call that
	// timed out; the next Accept call waits on it instead of starting another.
	pending chan acceptResult
}

type acceptResult struct {
	c   net.Conn
	err error
}

// BindListenUDS binds and listens on an abstract-namespace Unix domain
// socket named addr (no leading NUL required - it is added here, following
// the Linux convention that a socket path starting with NUL lives in the
// abstract namespace rather than the filesystace).
func BindListenUDS(addr string) (Listener, error) {
	l, err := net.Listen("unix", "@"+addr)
	if err != nil {
		return nil, status.Wrap(err, status.Internal, "bind unix socket "+addr)
	}
	return &listener{l: l}, nil
}

// Accept blocks until a client connects or timeout elapses, returning
// status.DeadlineExceeded if no client arrived in time. A client that
// connects after a timeout is returned by the next Accept call.
func (s *listener) Accept(ctx context.Context, timeout time.Duration) (Conn, error) {
	if s.pending == nil {
		ch := make(chan acceptResult, 1)
		go func() {
			c, err := s.l.Accept()
			ch <- acceptResult{c, err}
		}()
		s.pending = ch
	}
	select {
	case r := <-s.pending:
		s.pending = nil
		if r.err != nil {
			return nil, status.Wrap(r.err, status.Internal, "accept")
		}
		return &netConn{c: r.c}, nil
	case <-time.After(timeout):
		return nil, status.New(status.DeadlineExceeded, "accept timed out after %s", timeout)
	case <-ctx.Done():
		return nil, status.New(status.Cancelled, "accept cancelled")
	}
}

func (s *listener) Close() error {
	return s.l.Close()
}
