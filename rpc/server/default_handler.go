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

package server

import (
	"context"
	"os"
	"strconv"

	"github.com/google/dive/corelog"
	"github.com/google/dive/netproto/conn"
	"github.com/google/dive/netproto/protocol"
)

// CaptureTrigger synchronously triggers a PM4 capture - the Vulkan layer and
// GPU-time finalization live outside this package, in vklayer and gputime -
// and returns the path to the resulting capture file.
type CaptureTrigger func(ctx context.Context) (path string, err error)

// DefaultHandler implements the built-in message handlers: handshake echo,
// ping/pong, file-size/download-file against the local filesystem, and a
// pluggable PM4 capture trigger.
type DefaultHandler struct {
	Version HandshakeVersion
	Trigger CaptureTrigger

	OnConnectFunc    func(ctx context.Context)
	OnDisconnectFunc func(ctx context.Context)
}

// HandshakeVersion is the protocol version this server speaks. Fixed at
// {1, 0} but kept as a struct rather than a magic literal pair.
type HandshakeVersion struct {
	Major, Minor uint32
}

// DefaultVersion is the current handshake version this server advertises.
var DefaultVersion = HandshakeVersion{Major: 1, Minor: 0}

func (h *DefaultHandler) OnConnect(ctx context.Context, c conn.Conn) {
	corelog.I(ctx, "client connected")
	if h.OnConnectFunc != nil {
		h.OnConnectFunc(ctx)
	}
}

func (h *DefaultHandler) OnDisconnect(ctx context.Context) {
	corelog.I(ctx, "client disconnected")
	if h.OnDisconnectFunc != nil {
		h.OnDisconnectFunc(ctx)
	}
}

func (h *DefaultHandler) HandleMessage(ctx context.Context, msg protocol.Message, c conn.Conn) error {
	switch msg.Type {
	case protocol.HandshakeRequest:
		hp := msg.Payload.(protocol.HandshakePayload)
		return protocol.Encode(ctx, c, protocol.Message{
			Type:    protocol.HandshakeResponse,
			Payload: hp,
		}, 0)

	case protocol.Ping:
		return protocol.Encode(ctx, c, protocol.Message{Type: protocol.Pong, Payload: protocol.EmptyPayload{}}, 0)

	case protocol.FileSizeRequest:
		path := msg.Payload.(protocol.StringPayload).Value
		return h.respondFileSize(ctx, c, path)

	case protocol.DownloadFileRequest:
		path := msg.Payload.(protocol.StringPayload).Value
		return h.respondDownloadFile(ctx, c, path)

	case protocol.Pm4CaptureRequest:
		return h.respondCaptureTrigger(ctx, c)

	default:
		corelog.W(ctx, "dropping unhandled message type %v", msg.Type)
		return nil
	}
}

func (h *DefaultHandler) respondFileSize(ctx context.Context, c conn.Conn, path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return protocol.Encode(ctx, c, protocol.Message{
			Type:    protocol.FileSizeResponse,
			Payload: protocol.NewFileSizeResponse(false, fileErrorReason(err), ""),
		}, 0)
	}
	return protocol.Encode(ctx, c, protocol.Message{
		Type:    protocol.FileSizeResponse,
		Payload: protocol.NewFileSizeResponse(true, "", strconv.FormatInt(info.Size(), 10)),
	}, 0)
}

func (h *DefaultHandler) respondDownloadFile(ctx context.Context, c conn.Conn, path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return protocol.Encode(ctx, c, protocol.Message{
			Type:    protocol.DownloadFileResponse,
			Payload: protocol.NewDownloadFileResponse(false, fileErrorReason(err), "", ""),
		}, 0)
	}
	if err := protocol.Encode(ctx, c, protocol.Message{
		Type:    protocol.DownloadFileResponse,
		Payload: protocol.NewDownloadFileResponse(true, "", path, strconv.FormatInt(info.Size(), 10)),
	}, 0); err != nil {
		return err
	}
	return c.SendFile(ctx, path)
}

func (h *DefaultHandler) respondCaptureTrigger(ctx context.Context, c conn.Conn) error {
	if h.Trigger == nil {
		return protocol.Encode(ctx, c, protocol.Message{
			Type:    protocol.Pm4CaptureResponse,
			Payload: protocol.StringPayload{Value: ""},
		}, 0)
	}
	path, err := h.Trigger(ctx)
	if err != nil {
		corelog.E(ctx, "capture trigger failed: %v", err)
		path = ""
	}
	return protocol.Encode(ctx, c, protocol.Message{
		Type:    protocol.Pm4CaptureResponse,
		Payload: protocol.StringPayload{Value: path},
	}, 0)
}

func fileErrorReason(err error) string {
	if err == nil {
		return "not a regular file"
	}
	return err.Error()
}
