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

// Package conn implements Dive's Connection abstraction (C2): an endpoint
// that is either a listening socket or an established stream, with blocking
// send/recv and file streaming. The split between POSIX and Windows
// listening sockets lives in listener_posix.go/listener_windows.go (//go:build
// tags), following the idiom of gapid's core/os/file/unix.go and
// windows.go: one small platform-specific file each, a shared
// platform-independent file for everything else. TCP connect/accept work
// identically on every platform Go supports, so they live here.
package conn

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/google/dive/corectx"
	"github.com/google/dive/status"
)

// chunkSize is the size of each read/write chunk used by SendFile/RecvFile.
const chunkSize = 4096

// fallbackTimeout is the wall-clock timeout substituted when a caller passes
// a zero or negative timeout to Recv on a transport that cannot wait
// indefinitely without a value (the in-memory fake connection used in tests).
// The real POSIX/TCP connections honor a true no-deadline wait for any
// timeout <= 0; this mirrors a
// quirk already present in the source implementation's in-memory test
// double and is preserved here rather than "fixed".
const fallbackTimeout = 5 * time.Second

// ProgressFunc is invoked with the cumulative byte count after each chunk
// RecvFile writes to disk.
type ProgressFunc func(totalSoFar int64)

// Conn is one stream endpoint: either listening (UDS server) or established
// (accepted or dialed). Exactly one role applies to any given Conn.
type Conn interface {
	// Send writes all of p, looping until every byte is written or a
	// terminal error occurs.
	Send(ctx context.Context, p []byte) error

	// Recv reads exactly len(p) bytes into p, looping until satisfied or a
	// terminal error occurs. timeout <= 0 means wait indefinitely (subject
	// to fallbackTimeout on transports that can't express "forever").
	Recv(ctx context.Context, p []byte, timeout time.Duration) error

	// SendFile streams the file at path in chunkSize chunks.
	SendFile(ctx context.Context, path string) error

	// RecvFile reads exactly size bytes from the connection into a newly
	// created file at path, invoking progress after each chunk if non-nil.
	// Polls a corectx.Token attached to ctx via corectx.WithToken at each
	// chunk boundary, returning status.Cancelled as soon as one is observed.
	RecvFile(ctx context.Context, path string, size int64, progress ProgressFunc) error

	// Close releases the endpoint. Idempotent.
	Close() error
}

// Listener is a bound, listening endpoint that hands out established Conns
// one at a time. BindListenUDS (POSIX) and its Windows counterpart
// (status.Unimplemented) are the two constructors.
type Listener interface {
	// Accept blocks until a client connects or timeout elapses.
	Accept(ctx context.Context, timeout time.Duration) (Conn, error)
	// Close stops listening. Idempotent; unblocks a concurrent Accept.
	Close() error
}

// netConn adapts a net.Conn (TCP, or a POSIX abstract-namespace UDS
// connection) to Conn.
type netConn struct {
	c        net.Conn
	listener bool
}

// WrapNetConn adapts an already-established net.Conn (e.g. one returned by
// net.Listener.Accept on a plain TCP listener used in tests, or by any
// other transport reachable through the standard library's net package) to
// Conn.
func WrapNetConn(c net.Conn) Conn {
	return &netConn{c: c}
}

// Connect opens a TCP connection to host:port. Typical deployment forwards
// an on-device UDS to a localhost TCP port via `adb forward`.
func Connect(ctx context.Context, host string, port int) (Conn, error) {
	addr := net.JoinHostPort(host, itoa(port))
	c, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, status.Wrap(err, status.Unavailable, "dial "+addr)
	}
	return &netConn{c: c}, nil
}

func itoa(port int) string {
	// Avoid pulling in strconv just for this; int ports are always small.
	if port == 0 {
		return "0"
	}
	neg := port < 0
	if neg {
		port = -port
	}
	var buf [12]byte
	i := len(buf)
	for port > 0 {
		i--
		buf[i] = byte('0' + port%10)
		port /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (c *netConn) Send(ctx context.Context, p []byte) error {
	if c.listener {
		return status.New(status.FailedPrecondition, "send on a listening endpoint")
	}
	total := 0
	for total < len(p) {
		if dl, ok := ctx.Deadline(); ok {
			c.c.SetWriteDeadline(dl)
		}
		n, err := c.c.Write(p[total:])
		total += n
		if err != nil {
			return translateIOErr(err, true)
		}
	}
	return nil
}

func (c *netConn) Recv(ctx context.Context, p []byte, timeout time.Duration) error {
	if c.listener {
		return status.New(status.FailedPrecondition, "recv on a listening endpoint")
	}
	if timeout > 0 {
		c.c.SetReadDeadline(time.Now().Add(timeout))
		defer c.c.SetReadDeadline(time.Time{})
	} else {
		c.c.SetReadDeadline(time.Time{})
	}
	n, err := io.ReadFull(c.c, p)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return status.New(status.OutOfRange, "peer closed after %d of %d bytes", n, len(p))
		}
		return translateIOErr(err, false)
	}
	return nil
}

func (c *netConn) SendFile(ctx context.Context, path string) error {
	f, err := openRead(path)
	if err != nil {
		return err
	}
	defer f.Close()
	buf := make([]byte, chunkSize)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if serr := c.Send(ctx, buf[:n]); serr != nil {
				return serr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return status.Wrap(rerr, status.DataLoss, "reading "+path)
		}
	}
}

func (c *netConn) RecvFile(ctx context.Context, path string, size int64, progress ProgressFunc) error {
	f, err := createWrite(path)
	if err != nil {
		return err
	}
	defer f.Close()
	tok := corectx.FromContext(ctx)
	var written int64
	buf := make([]byte, chunkSize)
	for written < size {
		if tok.Cancelled() {
			return status.New(status.Cancelled, "recv of "+path+" cancelled")
		}
		n := int64(len(buf))
		if remaining := size - written; remaining < n {
			n = remaining
		}
		if err := c.Recv(ctx, buf[:n], 0); err != nil {
			return err
		}
		if _, werr := f.Write(buf[:n]); werr != nil {
			return status.Wrap(werr, status.DataLoss, "writing "+path)
		}
		written += n
		if progress != nil {
			progress(written)
		}
	}
	return nil
}

func (c *netConn) Close() error {
	if c.c == nil {
		return nil
	}
	err := c.c.Close()
	c.c = nil
	return err
}

// translateIOErr maps a net/syscall error into the uniform status
// vocabulary (§7): would-block/timeout -> Unavailable/DeadlineExceeded,
// reset/broken-pipe -> Aborted, everything else -> Internal.
func translateIOErr(err error, sending bool) error {
	if err == nil {
		return nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return status.Wrap(err, status.DeadlineExceeded, "i/o timeout")
	}
	msg := err.Error()
	switch {
	case contains(msg, "connection reset"), contains(msg, "broken pipe"), contains(msg, "forcibly closed"):
		return status.Wrap(err, status.Aborted, "connection reset")
	case contains(msg, "use of closed network connection"):
		return status.Wrap(err, status.Aborted, "connection closed")
	case contains(msg, "would block"), contains(msg, "temporarily unavailable"):
		return status.Wrap(err, status.Unavailable, "would block")
	}
	if sending {
		return status.Wrap(err, status.Internal, "send failed")
	}
	return status.Wrap(err, status.Internal, "recv failed")
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
