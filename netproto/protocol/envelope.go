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

package protocol

import (
	"context"
	"time"

	"github.com/google/dive/netproto/buffer"
	"github.com/google/dive/netproto/conn"
	"github.com/google/dive/status"
)

const envelopeHeaderSize = 8 // type:u32 + length:u32

// Encode serializes msg's payload, then writes it to c as
// [type u32][length u32][payload]. length is exactly the serialized
// payload's byte length (testable property #3).
func Encode(ctx context.Context, c conn.Conn, msg Message, timeout time.Duration) error {
	payload := buffer.New()
	msg.Payload.Serialize(payload)

	header := buffer.New()
	header.WriteU32(uint32(msg.Type))
	header.WriteU32(uint32(payload.Len()))

	if err := c.Send(ctx, header.Bytes()); err != nil {
		return err
	}
	if payload.Len() == 0 {
		return nil
	}
	return c.Send(ctx, payload.Bytes())
}

// Decode reads one envelope from c and deserializes its payload. It reads
// the 8-byte header, rejects an unknown type (InvalidArgument) or an
// oversize length (ResourceExhausted) before ever reading a payload byte,
// then reads and deserializes exactly `length` bytes.
func Decode(ctx context.Context, c conn.Conn, timeout time.Duration) (Message, error) {
	header := make([]byte, envelopeHeaderSize)
	if err := c.Recv(ctx, header, timeout); err != nil {
		return Message{}, err
	}
	hb := buffer.NewFromBytes(header)
	off := 0
	rawType, _ := hb.ReadU32(&off)
	length, _ := hb.ReadU32(&off)

	t := MessageType(rawType)
	if !IsKnown(t) {
		return Message{}, status.New(status.InvalidArgument, "unknown message type %d", rawType)
	}
	if length > MaxPayloadSize {
		return Message{}, status.New(status.ResourceExhausted, "payload length %d exceeds max %d", length, MaxPayloadSize)
	}

	payload := make([]byte, length)
	if length > 0 {
		if err := c.Recv(ctx, payload, timeout); err != nil {
			return Message{}, err
		}
	}

	dec := knownTypes[t]()
	pb := buffer.NewFromBytes(payload)
	poff := 0
	p, err := dec.(decoder).deserialize(pb, &poff)
	if err != nil {
		return Message{}, err
	}

	// An empty HandshakeRequest payload is rejected as malformed:
	// deserialize above already returns OutOfRange for it since reading the
	// two u32 version fields fails against a zero-length payload, so no
	// special case is needed here.

	return Message{Type: t, Payload: p}, nil
}
