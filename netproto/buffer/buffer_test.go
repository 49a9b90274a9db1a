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

package buffer_test

import (
	"testing"

	"github.com/google/dive/netproto/buffer"
	"github.com/google/dive/status"
)

func TestU32RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 0xdeadbeef, 0xffffffff} {
		b := buffer.New()
		b.WriteU32(v)
		off := 0
		got, err := b.ReadU32(&off)
		if err != nil {
			t.Fatalf("ReadU32(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("roundtrip mismatch: wrote %d got %d", v, got)
		}
		if off != 4 {
			t.Fatalf("expected offset to advance by 4, got %d", off)
		}
	}
}

func TestU32BigEndianOnWire(t *testing.T) {
	b := buffer.New()
	b.WriteU32(1)
	if got := b.Bytes(); len(got) != 4 || got[0] != 0 || got[3] != 1 {
		t.Fatalf("expected big-endian 00 00 00 01, got %x", got)
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "hello", "utf8-ßeta-测试"} {
		b := buffer.New()
		b.WriteString(s)
		off := 0
		got, err := b.ReadString(&off)
		if err != nil {
			t.Fatalf("ReadString(%q): %v", s, err)
		}
		if got != s {
			t.Fatalf("roundtrip mismatch: wrote %q got %q", s, got)
		}
		if off != len(b.Bytes()) {
			t.Fatalf("expected offset to consume entire buffer")
		}
	}
}

func TestReadU32ShortRead(t *testing.T) {
	b := buffer.NewFromBytes([]byte{1, 2, 3})
	off := 0
	_, err := b.ReadU32(&off)
	if status.Code(err) != status.OutOfRange {
		t.Fatalf("expected OutOfRange, got %v (%v)", status.Code(err), err)
	}
}

func TestReadStringLengthExceedsBuffer(t *testing.T) {
	b := buffer.New()
	b.WriteU32(1000)
	b.WriteBytes([]byte("short"))
	off := 0
	_, err := b.ReadString(&off)
	if status.Code(err) != status.OutOfRange {
		t.Fatalf("expected OutOfRange, got %v (%v)", status.Code(err), err)
	}
}

func TestWritesAppendOnly(t *testing.T) {
	b := buffer.New()
	b.WriteU32(1)
	b.WriteString("ab")
	if b.Len() != 4+4+2 {
		t.Fatalf("expected 10 bytes, got %d", b.Len())
	}
}
