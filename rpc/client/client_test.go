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

package client_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/google/dive/netproto/conn"
	"github.com/google/dive/netproto/protocol"
	"github.com/google/dive/rpc/client"
	"github.com/google/dive/status"
)

// fakeDevice is a minimal hand-rolled protocol peer standing in for the
// on-device RPC server, so rpc/client can be exercised without depending on
// rpc/server's UDS-only transport (client.Connect only ever dials TCP; in
// production the bridge to the device's Unix socket is `adb forward`, which
// these tests don't need to reproduce).
type fakeDevice struct {
	t    *testing.T
	ln   net.Listener
	port int
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	return &fakeDevice{t: t, ln: ln, port: port}
}

func (d *fakeDevice) Close() { d.ln.Close() }

// accept accepts one connection and runs handle on it in the background.
func (d *fakeDevice) accept(handle func(c conn.Conn)) {
	go func() {
		nc, err := d.ln.Accept()
		if err != nil {
			return
		}
		handle(conn.WrapNetConn(nc))
	}()
}

func handshakeThenPong(c conn.Conn) {
	ctx := context.Background()
	msg, err := protocol.Decode(ctx, c, time.Second)
	if err != nil {
		return
	}
	hp := msg.Payload.(protocol.HandshakePayload)
	protocol.Encode(ctx, c, protocol.Message{Type: protocol.HandshakeResponse, Payload: hp}, time.Second)

	for {
		msg, err := protocol.Decode(ctx, c, 10*time.Second)
		if err != nil {
			return
		}
		switch msg.Type {
		case protocol.Ping:
			protocol.Encode(ctx, c, protocol.Message{Type: protocol.Pong, Payload: protocol.EmptyPayload{}}, time.Second)
		case protocol.FileSizeRequest:
			protocol.Encode(ctx, c, protocol.Message{Type: protocol.FileSizeResponse, Payload: protocol.NewFileSizeResponse(true, "", "33")}, time.Second)
		case protocol.DownloadFileRequest:
			protocol.Encode(ctx, c, protocol.Message{Type: protocol.DownloadFileResponse, Payload: protocol.NewDownloadFileResponse(true, "", "x", "33")}, time.Second)
			c.Send(ctx, []byte("This is a test file for download."))
		case protocol.Pm4CaptureRequest:
			protocol.Encode(ctx, c, protocol.Message{Type: protocol.Pm4CaptureResponse, Payload: protocol.StringPayload{Value: "/tmp/cap_trim_trigger_1.gfxr"}}, time.Second)
		default:
		}
	}
}

func TestConnectHandshakeSucceeds(t *testing.T) {
	dev := newFakeDevice(t)
	defer dev.Close()
	dev.accept(handshakeThenPong)

	c := client.New()
	if err := c.Connect(context.Background(), "127.0.0.1", dev.port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	if c.State() != client.Connected {
		t.Fatalf("expected Connected, got %v", c.State())
	}
}

func TestConnectRefusedSetsConnectionFailed(t *testing.T) {
	c := client.New()
	err := c.Connect(context.Background(), "127.0.0.1", 1) // port 1 is reserved, nothing listens
	if err == nil {
		t.Fatalf("expected connect failure")
	}
	if c.State() != client.ConnectionFailed {
		t.Fatalf("expected ConnectionFailed, got %v", c.State())
	}
}

func TestGetCaptureFileSize(t *testing.T) {
	dev := newFakeDevice(t)
	defer dev.Close()
	dev.accept(handshakeThenPong)

	c := client.New()
	if err := c.Connect(context.Background(), "127.0.0.1", dev.port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	size, err := c.GetCaptureFileSize(context.Background(), "/tmp/x")
	if err != nil {
		t.Fatalf("GetCaptureFileSize: %v", err)
	}
	if size != 33 {
		t.Fatalf("expected size 33, got %d", size)
	}
}

func TestDownloadFileFromServer(t *testing.T) {
	dev := newFakeDevice(t)
	defer dev.Close()
	dev.accept(handshakeThenPong)

	c := client.New()
	if err := c.Connect(context.Background(), "127.0.0.1", dev.port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	dir := t.TempDir()
	local := filepath.Join(dir, "downloaded")
	var lastProgress int64
	err := c.DownloadFileFromServer(context.Background(), "/tmp/x", local, func(n int64) { lastProgress = n })
	if err != nil {
		t.Fatalf("DownloadFileFromServer: %v", err)
	}
	if lastProgress != 33 {
		t.Fatalf("expected progress to reach 33, got %d", lastProgress)
	}
	got, err := os.ReadFile(local)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "This is a test file for download." {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestStartPm4Capture(t *testing.T) {
	dev := newFakeDevice(t)
	defer dev.Close()
	dev.accept(handshakeThenPong)

	c := client.New()
	if err := c.Connect(context.Background(), "127.0.0.1", dev.port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	path, err := c.StartPm4Capture(context.Background())
	if err != nil {
		t.Fatalf("StartPm4Capture: %v", err)
	}
	if path != "/tmp/cap_trim_trigger_1.gfxr" {
		t.Fatalf("unexpected path: %q", path)
	}
}

func TestRequestBeforeConnectFailsPrecondition(t *testing.T) {
	c := client.New()
	_, err := c.GetCaptureFileSize(context.Background(), "/tmp/x")
	if status.Code(err) != status.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v (%v)", status.Code(err), err)
	}
}

func TestKeepAliveFailureTransitionsToConnectionFailed(t *testing.T) {
	dev := newFakeDevice(t)
	defer dev.Close()
	dev.accept(func(c conn.Conn) {
		ctx := context.Background()
		msg, err := protocol.Decode(ctx, c, time.Second)
		if err != nil {
			return
		}
		hp := msg.Payload.(protocol.HandshakePayload)
		protocol.Encode(ctx, c, protocol.Message{Type: protocol.HandshakeResponse, Payload: hp}, time.Second)
		// Then go silent forever - no Pong will ever arrive.
	})

	c := client.New()
	c.KeepAliveInterval = 50 * time.Millisecond
	c.PongDeadline = 100 * time.Millisecond
	if err := c.Connect(context.Background(), "127.0.0.1", dev.port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == client.ConnectionFailed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected client to transition to ConnectionFailed, still %v", c.State())
}

func init() {
	// Sanity check that strconv parses the literal size used throughout
	// these tests the same way rpc/client parses server-supplied sizes.
	if _, err := strconv.ParseUint("33", 10, 64); err != nil {
		panic(err)
	}
}
