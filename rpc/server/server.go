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

// Package server implements Dive's on-device RPC service (C4): a
// single-client server bound to an abstract-namespace Unix domain socket,
// driving a user-supplied MessageHandler. The accept/dispatch worker
// follows the same "one dedicated goroutine, mutex-guarded shared state"
// shape as gapir/client's heartbeat worker (gapir/client/client.go), with
// panic isolation via corecrash.Go in place of that package's
// core/app/crash.Go.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/dive/corecrash"
	"github.com/google/dive/corelog"
	"github.com/google/dive/netproto/conn"
	"github.com/google/dive/netproto/protocol"
	"github.com/google/dive/status"
)

// State is the server's lifecycle state.
type State int32

const (
	Created State = iota
	Listening
	Connected
	Stopped
)

// MessageHandler reacts to the connection lifecycle and to each decoded
// message. HandleMessage is responsible for sending any response(s) over c.
type MessageHandler interface {
	OnConnect(ctx context.Context, c conn.Conn)
	HandleMessage(ctx context.Context, msg protocol.Message, c conn.Conn) error
	OnDisconnect(ctx context.Context)
}

// Server is a single-client UDS server (C4).
type Server struct {
	AcceptTimeout time.Duration // default 2s, so Stop is observed promptly
	RecvTimeout   time.Duration // default: no timeout (blocks until a message arrives or the client disconnects)

	mu       sync.Mutex
	state    State
	listener conn.Listener
	client   conn.Conn
	stopCh   chan struct{}
	doneCh   chan struct{}
	handler  MessageHandler
}

// New returns a Server bound to no address yet; call Start to begin
// listening.
func New(handler MessageHandler) *Server {
	return &Server{
		AcceptTimeout: 2 * time.Second,
		handler:       handler,
	}
}

// State reports the server's current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start binds addr as an abstract-namespace UDS and spawns the
// accept-and-dispatch worker. Returns status.AlreadyExists if already
// started, status.Unimplemented on Windows (propagated from
// conn.BindListenUDS).
func (s *Server) Start(ctx context.Context, addr string) error {
	s.mu.Lock()
	if s.state != Created {
		s.mu.Unlock()
		return status.New(status.AlreadyExists, "server already started")
	}
	l, err := conn.BindListenUDS(addr)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.listener = l
	s.state = Listening
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	corecrash.Go(ctx, func() { s.run(ctx) })
	return nil
}

// Stop marks the server for shutdown, closes the listening and client
// endpoints to unblock any in-flight accept/recv, and waits for the worker
// to exit. Idempotent.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.state == Created || s.state == Stopped {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	if s.listener != nil {
		s.listener.Close()
	}
	if s.client != nil {
		s.client.Close()
	}
	done := s.doneCh
	s.mu.Unlock()

	<-done
}

// Wait blocks until the server has stopped.
func (s *Server) Wait() {
	s.mu.Lock()
	done := s.doneCh
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Server) run(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.state = Stopped
		close(s.doneCh)
		s.mu.Unlock()
	}()

	for {
		if s.shuttingDown() {
			return
		}
		s.mu.Lock()
		client := s.client
		s.mu.Unlock()

		if client == nil {
			c, err := s.listener.Accept(ctx, s.AcceptTimeout)
			if err != nil {
				if status.Is(err, status.DeadlineExceeded) {
					continue
				}
				if s.shuttingDown() {
					return
				}
				corelog.E(ctx, "accept failed: %v", err)
				continue
			}
			s.mu.Lock()
			s.client = c
			s.state = Connected
			s.mu.Unlock()
			s.handler.OnConnect(ctx, c)
			continue
		}

		msg, err := protocol.Decode(ctx, client, s.RecvTimeout)
		if err != nil {
			if s.shuttingDown() {
				return
			}
			corelog.E(ctx, "client disconnected: %v", err)
			s.dropClient(ctx)
			continue
		}
		herr := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = status.New(status.Internal, "handler panic: %v", r)
				}
			}()
			return s.handler.HandleMessage(ctx, msg, client)
		}()
		if herr != nil {
			corelog.E(ctx, "handler error for %v: %v", msg.Type, herr)
			s.dropClient(ctx)
		}
	}
}

func (s *Server) dropClient(ctx context.Context) {
	s.mu.Lock()
	c := s.client
	s.client = nil
	s.state = Listening
	s.mu.Unlock()
	if c != nil {
		c.Close()
	}
	s.handler.OnDisconnect(ctx)
}

func (s *Server) shuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}
