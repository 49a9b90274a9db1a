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

// Package client implements Dive's host-side TCP client (C5): connect,
// handshake, a keep-alive goroutine, and typed request methods sharing a
// single per-connection mutex so keep-alive and user requests never
// interleave a half-framed message on the wire. Grounded on
// gapir/client/client.go's heartbeat-goroutine-plus-mutex-guarded-map shape
// (github.com/google/gapid/gapir/client), adapted from gRPC calls to raw
// TLV messages over netproto/protocol.
package client

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/dive/corecrash"
	"github.com/google/dive/corelog"
	"github.com/google/dive/netproto/conn"
	"github.com/google/dive/netproto/protocol"
	"github.com/google/dive/status"
)

// State is the client's connection lifecycle state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	ConnectionFailed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case ConnectionFailed:
		return "CONNECTION_FAILED"
	default:
		return "UNKNOWN"
	}
}

// ProgressFunc reports cumulative bytes downloaded so far.
type ProgressFunc = conn.ProgressFunc

// Version is the handshake version this client speaks, fixed at {1, 0}.
var Version = struct{ Major, Minor uint32 }{Major: 1, Minor: 0}

const (
	defaultKeepAliveInterval = 5 * time.Second
	defaultPongDeadline      = 5 * time.Second
)

// Client is a single connection to the on-device RPC server.
type Client struct {
	KeepAliveInterval time.Duration
	PongDeadline      time.Duration

	mu    sync.Mutex
	conn  conn.Conn
	state State

	stopKeepAlive chan struct{}
	keepAliveDone chan struct{}
}

// New returns a disconnected Client with the default keep-alive timings.
func New() *Client {
	return &Client{
		KeepAliveInterval: defaultKeepAliveInterval,
		PongDeadline:      defaultPongDeadline,
	}
}

// State reports the client's current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the client is usable for requests.
func (c *Client) IsConnected() bool {
	return c.State() == Connected
}

// Connect resolves and opens a TCP connection to host:port, performs the
// handshake, and starts the keep-alive goroutine.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	c.mu.Lock()
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return status.New(status.AlreadyExists, "client already connecting/connected")
	}
	c.state = Connecting
	c.mu.Unlock()

	nc, err := conn.Connect(ctx, host, port)
	if err != nil {
		c.setState(ConnectionFailed)
		return err
	}

	if err := protocol.Encode(ctx, nc, protocol.Message{
		Type:    protocol.HandshakeRequest,
		Payload: protocol.HandshakePayload{Major: Version.Major, Minor: Version.Minor},
	}, 0); err != nil {
		nc.Close()
		c.setState(ConnectionFailed)
		return err
	}
	resp, err := protocol.Decode(ctx, nc, 0)
	if err != nil {
		nc.Close()
		c.setState(ConnectionFailed)
		return err
	}
	hp, ok := resp.Payload.(protocol.HandshakePayload)
	if resp.Type != protocol.HandshakeResponse || !ok || hp.Major != Version.Major || hp.Minor != Version.Minor {
		nc.Close()
		c.setState(ConnectionFailed)
		return status.New(status.FailedPrecondition, "handshake version mismatch")
	}

	c.mu.Lock()
	c.conn = nc
	c.state = Connected
	c.stopKeepAlive = make(chan struct{})
	c.keepAliveDone = make(chan struct{})
	c.mu.Unlock()

	corecrash.Go(ctx, func() { c.keepAliveLoop(ctx) })
	return nil
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// keepAliveLoop sends a Ping every KeepAliveInterval and awaits a Pong
// within PongDeadline, holding the connection mutex across each exchange so
// it never interleaves with a concurrent request method. It exits promptly
// when stopKeepAlive is closed, and transitions the client to
// ConnectionFailed on any error.
func (c *Client) keepAliveLoop(ctx context.Context) {
	defer close(c.keepAliveDone)
	ticker := time.NewTicker(c.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopKeepAlive:
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			if conn == nil {
				c.mu.Unlock()
				return
			}
			err := c.sendRecvLocked(ctx, conn, protocol.Message{Type: protocol.Ping, Payload: protocol.EmptyPayload{}}, c.PongDeadline)
			c.mu.Unlock()
			if err != nil {
				corelog.E(ctx, "keep-alive failed: %v", err)
				c.setState(ConnectionFailed)
				return
			}
		}
	}
}

// sendRecvLocked sends req and waits for one decoded response, returning
// only the error (the response itself is discarded); caller must hold c.mu.
func (c *Client) sendRecvLocked(ctx context.Context, conn conn.Conn, req protocol.Message, timeout time.Duration) error {
	if err := protocol.Encode(ctx, conn, req, timeout); err != nil {
		return err
	}
	_, err := protocol.Decode(ctx, conn, timeout)
	return err
}

// request sends req and returns the decoded response, serialized against
// the keep-alive loop via the connection mutex.
func (c *Client) request(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	if !c.IsConnected() {
		return protocol.Message{}, status.New(status.FailedPrecondition, "client is not connected")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return protocol.Message{}, status.New(status.FailedPrecondition, "client is not connected")
	}
	if err := protocol.Encode(ctx, c.conn, req, 0); err != nil {
		return protocol.Message{}, err
	}
	return protocol.Decode(ctx, c.conn, 0)
}

// StartPm4Capture triggers a PM4 capture on the device and returns the
// resulting capture file's path.
func (c *Client) StartPm4Capture(ctx context.Context) (string, error) {
	resp, err := c.request(ctx, protocol.Message{Type: protocol.Pm4CaptureRequest, Payload: protocol.EmptyPayload{}})
	if err != nil {
		return "", err
	}
	if resp.Type != protocol.Pm4CaptureResponse {
		return "", status.New(status.Internal, "expected Pm4CaptureResponse, got %v", resp.Type)
	}
	return resp.Payload.(protocol.StringPayload).Value, nil
}

// GetCaptureFileSize asks the server for the size in bytes of the file at
// remotePath.
func (c *Client) GetCaptureFileSize(ctx context.Context, remotePath string) (uint64, error) {
	resp, err := c.request(ctx, protocol.Message{Type: protocol.FileSizeRequest, Payload: protocol.StringPayload{Value: remotePath}})
	if err != nil {
		return 0, err
	}
	if resp.Type != protocol.FileSizeResponse {
		return 0, status.New(status.Internal, "expected FileSizeResponse, got %v", resp.Type)
	}
	fr := resp.Payload.(protocol.FileResponsePayload)
	if !fr.Found {
		return 0, status.New(status.NotFound, "%s", fr.ErrorReason)
	}
	size, err := strconv.ParseUint(fr.FileSizeStr, 10, 64)
	if err != nil {
		return 0, status.Wrap(err, status.InvalidArgument, "malformed file size "+fr.FileSizeStr)
	}
	return size, nil
}

// DownloadFileFromServer requests remotePath from the server and streams
// its bytes into a newly created file at localPath, invoking progress
// after each chunk if non-nil.
func (c *Client) DownloadFileFromServer(ctx context.Context, remotePath, localPath string, progress ProgressFunc) error {
	if !c.IsConnected() {
		return status.New(status.FailedPrecondition, "client is not connected")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return status.New(status.FailedPrecondition, "client is not connected")
	}
	if err := protocol.Encode(ctx, c.conn, protocol.Message{
		Type:    protocol.DownloadFileRequest,
		Payload: protocol.StringPayload{Value: remotePath},
	}, 0); err != nil {
		return err
	}
	resp, err := protocol.Decode(ctx, c.conn, 0)
	if err != nil {
		return err
	}
	if resp.Type != protocol.DownloadFileResponse {
		return status.New(status.Internal, "expected DownloadFileResponse, got %v", resp.Type)
	}
	fr := resp.Payload.(protocol.FileResponsePayload)
	if !fr.Found {
		return status.New(status.NotFound, "%s", fr.ErrorReason)
	}
	size, err := strconv.ParseUint(fr.FileSizeStr, 10, 64)
	if err != nil {
		return status.Wrap(err, status.InvalidArgument, "malformed file size "+fr.FileSizeStr)
	}
	return c.conn.RecvFile(ctx, localPath, int64(size), progress)
}

// Close stops the keep-alive goroutine and closes the underlying
// connection. Idempotent.
//
// The underlying conn is closed without holding c.mu: the keep-alive
// goroutine may be blocked inside a locked send/recv pair awaiting a Pong,
// and closing the socket is what unblocks that read - acquiring the mutex
// first would instead make Close wait out the full pong deadline.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	stopKeepAlive := c.stopKeepAlive
	done := c.keepAliveDone
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if stopKeepAlive != nil {
		select {
		case <-stopKeepAlive:
		default:
			close(stopKeepAlive)
		}
	}
	if done != nil {
		<-done
	}

	c.mu.Lock()
	c.conn = nil
	c.state = Disconnected
	c.mu.Unlock()
}
