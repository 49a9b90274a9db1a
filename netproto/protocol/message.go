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

// Package protocol implements Dive's message framing (C3): the TLV
// envelope {type:u32, length:u32, payload:bytes} on top of netproto/buffer,
// and the polymorphic Message variant gapii/client/header.go and
// protocol.go model as a magic-prefixed header plus a type/size switch over
// a raw net.Conn. Here polymorphic dispatch is a tagged interface with a
// statically initialized registry (the knownTypes map) rather than gapii's
// ad hoc switch; TestEveryMessageTypeRegistered checks that every
// MessageType has an entry.
package protocol

import (
	"fmt"

	"github.com/google/dive/netproto/buffer"
	"github.com/google/dive/status"
)

// MessageType is the 32-bit wire discriminator for a Message. Values are
// bit-exact on the wire and must never be renumbered.
type MessageType uint32

const (
	HandshakeRequest    MessageType = 1
	HandshakeResponse   MessageType = 2
	Ping                MessageType = 3
	Pong                MessageType = 4
	Pm4CaptureRequest   MessageType = 5
	Pm4CaptureResponse  MessageType = 6
	DownloadFileRequest  MessageType = 7
	DownloadFileResponse MessageType = 8
	FileSizeRequest      MessageType = 9
	FileSizeResponse     MessageType = 10
)

func (t MessageType) String() string {
	switch t {
	case HandshakeRequest:
		return "HandshakeRequest"
	case HandshakeResponse:
		return "HandshakeResponse"
	case Ping:
		return "Ping"
	case Pong:
		return "Pong"
	case Pm4CaptureRequest:
		return "Pm4CaptureRequest"
	case Pm4CaptureResponse:
		return "Pm4CaptureResponse"
	case DownloadFileRequest:
		return "DownloadFileRequest"
	case DownloadFileResponse:
		return "DownloadFileResponse"
	case FileSizeRequest:
		return "FileSizeRequest"
	case FileSizeResponse:
		return "FileSizeResponse"
	default:
		return fmt.Sprintf("MessageType(%d)", uint32(t))
	}
}

// MaxPayloadSize is the maximum payload length a single envelope may declare:
// 16 MiB. An envelope whose declared length exceeds this is treated as
// protocol corruption.
const MaxPayloadSize = 16 * 1024 * 1024

// Payload is implemented by every message's payload shape. Serialize
// appends the payload's wire bytes to b. Decoding is done by the package's
// unexported per-shape decoders registered in knownTypes.
type Payload interface {
	Serialize(b *buffer.Buffer)
}

// Message pairs a MessageType with its typed payload.
type Message struct {
	Type    MessageType
	Payload Payload
}

// EmptyPayload is used by Ping, Pong and Pm4CaptureRequest.
type EmptyPayload struct{}

func (EmptyPayload) Serialize(b *buffer.Buffer) {}

// HandshakePayload carries the protocol version, both directions.
type HandshakePayload struct {
	Major uint32
	Minor uint32
}

func (h HandshakePayload) Serialize(b *buffer.Buffer) {
	b.WriteU32(h.Major)
	b.WriteU32(h.Minor)
}

// StringPayload is a single length-prefixed UTF-8 string, used by
// Pm4CaptureResponse, DownloadFileRequest and FileSizeRequest.
type StringPayload struct {
	Value string
}

func (s StringPayload) Serialize(b *buffer.Buffer) {
	b.WriteString(s.Value)
}

// FileResponsePayload backs DownloadFileResponse and FileSizeResponse. For
// FileSizeResponse, FilePath is left empty and ignored on the wire.
type FileResponsePayload struct {
	Found       bool
	ErrorReason string
	FilePath    string
	FileSizeStr string
	// download reports whether FilePath is present on the wire; true for
	// DownloadFileResponse, false for FileSizeResponse.
	download bool
}

// NewDownloadFileResponse builds a FileResponsePayload that serializes the
// file_path field (DownloadFileResponse's wire shape).
func NewDownloadFileResponse(found bool, errorReason, filePath, fileSizeStr string) FileResponsePayload {
	return FileResponsePayload{Found: found, ErrorReason: errorReason, FilePath: filePath, FileSizeStr: fileSizeStr, download: true}
}

// NewFileSizeResponse builds a FileResponsePayload that omits file_path
// (FileSizeResponse's wire shape).
func NewFileSizeResponse(found bool, errorReason, fileSizeStr string) FileResponsePayload {
	return FileResponsePayload{Found: found, ErrorReason: errorReason, FileSizeStr: fileSizeStr, download: false}
}

func (f FileResponsePayload) Serialize(b *buffer.Buffer) {
	if f.Found {
		b.WriteU32(1)
	} else {
		b.WriteU32(0)
	}
	b.WriteString(f.ErrorReason)
	if f.download {
		b.WriteString(f.FilePath)
	}
	b.WriteString(f.FileSizeStr)
}

// knownTypes is the compile-time registry of every enumerated MessageType.
// Every MessageType must have an entry; a lookup miss during decoding is a
// protocol error (InvalidArgument), and a missing registration altogether
// would be a programming error caught by TestEveryMessageTypeRegistered.
var knownTypes = map[MessageType]func() Payload{
	HandshakeRequest:     func() Payload { return &handshakeDecoder{} },
	HandshakeResponse:    func() Payload { return &handshakeDecoder{} },
	Ping:                 func() Payload { return &emptyDecoder{} },
	Pong:                 func() Payload { return &emptyDecoder{} },
	Pm4CaptureRequest:    func() Payload { return &emptyDecoder{} },
	Pm4CaptureResponse:   func() Payload { return &stringDecoder{} },
	DownloadFileRequest:  func() Payload { return &stringDecoder{} },
	DownloadFileResponse: func() Payload { return &fileResponseDecoder{download: true} },
	FileSizeRequest:      func() Payload { return &stringDecoder{} },
	FileSizeResponse:     func() Payload { return &fileResponseDecoder{download: false} },
}

// IsKnown reports whether t is one of the enumerated MessageTypes.
func IsKnown(t MessageType) bool {
	_, ok := knownTypes[t]
	return ok
}

// decoder is implemented by the payload-shape-specific deserializers below;
// they read from a buffer at an offset and produce the typed Payload.
type decoder interface {
	Payload
	deserialize(b *buffer.Buffer, off *int) (Payload, error)
}

type emptyDecoder struct{ EmptyPayload }

func (emptyDecoder) deserialize(b *buffer.Buffer, off *int) (Payload, error) {
	return EmptyPayload{}, nil
}

type handshakeDecoder struct{ HandshakePayload }

func (handshakeDecoder) deserialize(b *buffer.Buffer, off *int) (Payload, error) {
	major, err := b.ReadU32(off)
	if err != nil {
		return nil, status.Wrap(err, status.OutOfRange, "handshake major version")
	}
	minor, err := b.ReadU32(off)
	if err != nil {
		return nil, status.Wrap(err, status.OutOfRange, "handshake minor version")
	}
	return HandshakePayload{Major: major, Minor: minor}, nil
}

type stringDecoder struct{ StringPayload }

func (stringDecoder) deserialize(b *buffer.Buffer, off *int) (Payload, error) {
	s, err := b.ReadString(off)
	if err != nil {
		return nil, status.Wrap(err, status.OutOfRange, "string payload")
	}
	return StringPayload{Value: s}, nil
}

type fileResponseDecoder struct {
	FileResponsePayload
	download bool
}

func (d fileResponseDecoder) deserialize(b *buffer.Buffer, off *int) (Payload, error) {
	found, err := b.ReadU32(off)
	if err != nil {
		return nil, status.Wrap(err, status.OutOfRange, "found flag")
	}
	reason, err := b.ReadString(off)
	if err != nil {
		return nil, status.Wrap(err, status.OutOfRange, "error reason")
	}
	var path string
	if d.download {
		path, err = b.ReadString(off)
		if err != nil {
			return nil, status.Wrap(err, status.OutOfRange, "file path")
		}
	}
	sizeStr, err := b.ReadString(off)
	if err != nil {
		return nil, status.Wrap(err, status.OutOfRange, "file size")
	}
	return FileResponsePayload{Found: found != 0, ErrorReason: reason, FilePath: path, FileSizeStr: sizeStr, download: d.download}, nil
}
