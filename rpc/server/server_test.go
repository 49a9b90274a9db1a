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

package server_test

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/dive/netproto/buffer"
	"github.com/google/dive/netproto/protocol"
	"github.com/google/dive/rpc/server"
)

func testAddr(t *testing.T) string {
	return fmt.Sprintf("dive-server-test-%d-%s", os.Getpid(), t.Name())
}

func dialAndHandshake(t *testing.T, addr string) net.Conn {
	t.Helper()
	var c net.Conn
	var err error
	for i := 0; i < 50; i++ {
		c, err = net.Dial("unix", "@"+addr)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

func sendMsg(t *testing.T, c net.Conn, ty protocol.MessageType, p protocol.Payload) {
	t.Helper()
	b := buffer.New()
	p.Serialize(b)
	h := buffer.New()
	h.WriteU32(uint32(ty))
	h.WriteU32(uint32(b.Len()))
	if _, err := c.Write(h.Bytes()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Write(b.Bytes()); err != nil {
		t.Fatal(err)
	}
}

func recvHeader(t *testing.T, c net.Conn) (protocol.MessageType, uint32) {
	t.Helper()
	h := make([]byte, 8)
	if _, err := readFull(c, h); err != nil {
		t.Fatal(err)
	}
	b := buffer.NewFromBytes(h)
	off := 0
	ty, _ := b.ReadU32(&off)
	length, _ := b.ReadU32(&off)
	return protocol.MessageType(ty), length
}

func readFull(c net.Conn, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := c.Read(p[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestHandshakeAndPingPong(t *testing.T) {
	addr := testAddr(t)
	h := &server.DefaultHandler{}
	s := server.New(h)
	ctx := context.Background()
	if err := s.Start(ctx, addr); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	c := dialAndHandshake(t, addr)
	defer c.Close()

	sendMsg(t, c, protocol.HandshakeRequest, protocol.HandshakePayload{Major: 345612, Minor: 567348})
	ty, length := recvHeader(t, c)
	if ty != protocol.HandshakeResponse {
		t.Fatalf("expected HandshakeResponse, got %v", ty)
	}
	payload := make([]byte, length)
	readFull(c, payload)
	off := 0
	pb := buffer.NewFromBytes(payload)
	major, _ := pb.ReadU32(&off)
	minor, _ := pb.ReadU32(&off)
	if major != 345612 || minor != 567348 {
		t.Fatalf("expected echoed version, got %d.%d", major, minor)
	}

	sendMsg(t, c, protocol.Ping, protocol.EmptyPayload{})
	ty, _ = recvHeader(t, c)
	if ty != protocol.Pong {
		t.Fatalf("expected Pong, got %v", ty)
	}
}

func TestFileSizeAndDownload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x")
	content := []byte("This is a test file for download.")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	addr := testAddr(t)
	s := server.New(&server.DefaultHandler{})
	ctx := context.Background()
	if err := s.Start(ctx, addr); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	c := dialAndHandshake(t, addr)
	defer c.Close()

	sendMsg(t, c, protocol.DownloadFileRequest, protocol.StringPayload{Value: path})
	ty, length := recvHeader(t, c)
	if ty != protocol.DownloadFileResponse {
		t.Fatalf("expected DownloadFileResponse, got %v", ty)
	}
	payload := make([]byte, length)
	readFull(c, payload)
	off := 0
	pb := buffer.NewFromBytes(payload)
	found, _ := pb.ReadU32(&off)
	reason, _ := pb.ReadString(&off)
	filePath, _ := pb.ReadString(&off)
	sizeStr, _ := pb.ReadString(&off)
	if found != 1 || reason != "" || filePath != path || sizeStr != fmt.Sprint(len(content)) {
		t.Fatalf("unexpected DownloadFileResponse: found=%d reason=%q path=%q size=%q", found, reason, filePath, sizeStr)
	}

	body := make([]byte, len(content))
	readFull(c, body)
	if string(body) != string(content) {
		t.Fatalf("downloaded body mismatch: got %q want %q", body, content)
	}
}

func TestFileSizeNotFound(t *testing.T) {
	addr := testAddr(t)
	s := server.New(&server.DefaultHandler{})
	ctx := context.Background()
	if err := s.Start(ctx, addr); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	c := dialAndHandshake(t, addr)
	defer c.Close()

	sendMsg(t, c, protocol.FileSizeRequest, protocol.StringPayload{Value: "/no/such/file"})
	ty, length := recvHeader(t, c)
	if ty != protocol.FileSizeResponse {
		t.Fatalf("expected FileSizeResponse, got %v", ty)
	}
	payload := make([]byte, length)
	readFull(c, payload)
	off := 0
	pb := buffer.NewFromBytes(payload)
	found, _ := pb.ReadU32(&off)
	if found != 0 {
		t.Fatalf("expected found=0 for missing file")
	}
}

func TestMalformedHandshakeClosesClient(t *testing.T) {
	addr := testAddr(t)
	s := server.New(&server.DefaultHandler{})
	ctx := context.Background()
	if err := s.Start(ctx, addr); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	c := dialAndHandshake(t, addr)
	defer c.Close()

	h := buffer.New()
	h.WriteU32(uint32(protocol.HandshakeRequest))
	h.WriteU32(0) // zero-length payload: malformed handshake
	c.Write(h.Bytes())

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err := c.Read(buf)
	if err == nil {
		t.Fatalf("expected server to close the connection after malformed handshake")
	}
}

func TestOversizePayloadClosesClient(t *testing.T) {
	addr := testAddr(t)
	s := server.New(&server.DefaultHandler{})
	ctx := context.Background()
	if err := s.Start(ctx, addr); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	c := dialAndHandshake(t, addr)
	defer c.Close()

	h := buffer.New()
	h.WriteU32(uint32(protocol.Ping))
	h.WriteU32(32 * 1024 * 1024)
	c.Write(h.Bytes())

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err := c.Read(buf)
	if err == nil {
		t.Fatalf("expected server to close the connection after oversize payload")
	}
}

func TestStopUnblocksAcceptAndJoinsWorker(t *testing.T) {
	addr := testAddr(t)
	s := server.New(&server.DefaultHandler{})
	ctx := context.Background()
	if err := s.Start(ctx, addr); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Stop did not return promptly")
	}
}
