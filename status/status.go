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

// Package status carries Dive's uniform error-kind vocabulary (Ok,
// Cancelled, InvalidArgument, DeadlineExceeded, NotFound, AlreadyExists,
// FailedPrecondition, OutOfRange, ResourceExhausted, Unavailable, Aborted,
// PermissionDenied, DataLoss, Internal, Unimplemented). Those names are
// exactly grpc's codes.Code, so rather than invent a parallel enum this
// package is a thin, import-friendly wrapper over
// google.golang.org/grpc/codes and google.golang.org/grpc/status - already a
// real dependency of gapid's gapir/gapis RPC traffic, repurposed here for
// the capture-and-delivery core's own in-process error taxonomy (this core
// does not itself speak gRPC on the wire; the wire format is the bespoke
// TLV framing in netproto/protocol).
package status

import (
	"errors"

	pkgerrors "github.com/pkg/errors"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Re-exported for convenience at call sites (status.NotFound instead of
// needing a second import of codes).
const (
	OK                 = codes.OK
	Cancelled          = codes.Cancelled
	InvalidArgument    = codes.InvalidArgument
	DeadlineExceeded   = codes.DeadlineExceeded
	NotFound           = codes.NotFound
	AlreadyExists      = codes.AlreadyExists
	FailedPrecondition = codes.FailedPrecondition
	OutOfRange         = codes.OutOfRange
	ResourceExhausted  = codes.ResourceExhausted
	Unavailable        = codes.Unavailable
	Aborted            = codes.Aborted
	PermissionDenied   = codes.PermissionDenied
	DataLoss           = codes.DataLoss
	Internal           = codes.Internal
	Unimplemented      = codes.Unimplemented
)

// New builds an error carrying code and a formatted message.
func New(code codes.Code, format string, args ...interface{}) error {
	return grpcstatus.Errorf(code, format, args...)
}

// Wrap attaches code to an existing error, keeping cause retrievable via
// errors.Cause/errors.Unwrap (pkg/errors.Wrap semantics), then tags the
// result with the status code so Code(err) reports it.
func Wrap(cause error, code codes.Code, msg string) error {
	if cause == nil {
		return New(code, "%s", msg)
	}
	return &coded{cause: pkgerrors.Wrap(cause, msg), code: code}
}

type coded struct {
	cause error
	code  codes.Code
}

func (c *coded) Error() string { return c.cause.Error() }
func (c *coded) Unwrap() error { return c.cause }
func (c *coded) GRPCStatus() *grpcstatus.Status {
	return grpcstatus.New(c.code, c.cause.Error())
}

// Code extracts the status code carried by err. A nil error reports OK; an
// error with no attached code reports Unknown via grpc's own convention,
// except that this package never produces Unknown - every error raised
// through New or Wrap carries one of the taxonomy's codes.
func Code(err error) codes.Code {
	if err == nil {
		return OK
	}
	type grpcStatuser interface{ GRPCStatus() *grpcstatus.Status }
	var gs grpcStatuser
	if errors.As(err, &gs) {
		return gs.GRPCStatus().Code()
	}
	return codes.Unknown
}

// Is reports whether err carries the given status code.
func Is(err error, code codes.Code) bool {
	return Code(err) == code
}
