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

// Package buffer implements Dive's length-prefixed, big-endian byte codec
// (C1): a growable byte vector with append-only writes and a cursor-based
// reader. It plays the role gapid's core/data/endian plays for that
// project's binary.Reader/Writer pair, but is specialized to the one thing
// the wire protocol in netproto/protocol needs: u32 and length-prefixed
// string encode/decode over network byte order (big-endian), regardless of
// host endianness.
package buffer

import (
	"encoding/binary"

	"github.com/google/dive/status"
)

// Buffer is an ordered sequence of octets. Writes always append; reads
// consume from a caller-supplied offset and never mutate the buffer.
type Buffer struct {
	data []byte
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// NewFromBytes wraps an existing byte slice for reading. The Buffer takes
// ownership of the slice; callers must not mutate it afterwards.
func NewFromBytes(b []byte) *Buffer {
	return &Buffer{data: b}
}

// Bytes returns the buffer's full contents. The returned slice aliases the
// Buffer's internal storage and must not be retained across further writes.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the number of bytes currently in the buffer.
func (b *Buffer) Len() int {
	return len(b.data)
}

// WriteU32 appends v's four bytes in network (big-endian) byte order. It
// never fails.
func (b *Buffer) WriteU32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.data = append(b.data, tmp[:]...)
}

// ReadU32 reads four bytes at *offset in network byte order and advances
// *offset by 4. It returns a status.OutOfRange error ("short read") if
// fewer than 4 bytes remain.
func (b *Buffer) ReadU32(offset *int) (uint32, error) {
	if *offset < 0 || *offset+4 > len(b.data) {
		return 0, status.New(status.OutOfRange, "short read: need 4 bytes at offset %d, have %d", *offset, len(b.data)-*offset)
	}
	v := binary.BigEndian.Uint32(b.data[*offset : *offset+4])
	*offset += 4
	return v, nil
}

// WriteBytes appends raw bytes verbatim, with no length prefix.
func (b *Buffer) WriteBytes(p []byte) {
	b.data = append(b.data, p...)
}

// WriteString emits WriteU32(byte length of s) followed by s's UTF-8 bytes.
// The length is the byte length, not the rune count.
func (b *Buffer) WriteString(s string) {
	b.WriteU32(uint32(len(s)))
	b.data = append(b.data, s...)
}

// ReadString reads a u32 length then that many bytes at *offset, advancing
// *offset past both. It fails with status.OutOfRange if the length field
// itself can't be read, or if the declared length would read past the end
// of the buffer.
func (b *Buffer) ReadString(offset *int) (string, error) {
	n, err := b.ReadU32(offset)
	if err != nil {
		return "", err
	}
	end := *offset + int(n)
	if n > uint32(len(b.data)) || end > len(b.data) || end < *offset {
		return "", status.New(status.OutOfRange, "string length %d exceeds remaining buffer (%d bytes)", n, len(b.data)-*offset)
	}
	s := string(b.data[*offset:end])
	*offset = end
	return s, nil
}
