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

// Package config implements Dive's layered configuration (A3): defaults,
// then DIVE_* environment overrides, then explicit fields the cmd/ flag
// parsers set last. Grounded on the layering gapid's core/app/flags-driven
// binaries use (flags as the final override over defaults/environment);
// implemented directly against os.Getenv rather than core/app/flags itself,
// since that package's generic struct-tag flag binder is out of scope for
// this core (see DESIGN.md).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/google/dive/netproto/protocol"
)

// Config holds every tunable the server and client binaries share.
type Config struct {
	// ServerSocket is the abstract-namespace UDS name rpc.Server binds.
	ServerSocket string
	// ClientHost and ClientPort address rpc.Client's TCP target.
	ClientHost string
	ClientPort int

	AcceptTimeout     time.Duration
	RecvTimeout       time.Duration
	KeepAliveInterval time.Duration
	PongDeadline      time.Duration
	MaxPayloadSize    int
}

// Default returns Dive's baseline configuration: 2s accept timeout,
// 5s keep-alive interval, 5s pong deadline, 16 MiB max payload.
func Default() Config {
	return Config{
		ServerSocket:      "dive-service",
		ClientHost:        "127.0.0.1",
		ClientPort:        9001,
		AcceptTimeout:     2 * time.Second,
		RecvTimeout:       30 * time.Second,
		KeepAliveInterval: 5 * time.Second,
		PongDeadline:      5 * time.Second,
		MaxPayloadSize:    protocol.MaxPayloadSize,
	}
}

// FromEnvironment returns Default() overridden by any DIVE_* environment
// variables that are set. Recognized variables:
//
//	DIVE_SERVER_SOCKET, DIVE_CLIENT_HOST, DIVE_CLIENT_PORT,
//	DIVE_ACCEPT_TIMEOUT_MS, DIVE_RECV_TIMEOUT_MS,
//	DIVE_KEEPALIVE_INTERVAL_MS, DIVE_PONG_DEADLINE_MS, DIVE_MAX_PAYLOAD_SIZE
//
// A malformed numeric override is ignored, keeping the default rather than
// failing startup.
func FromEnvironment() Config {
	c := Default()
	if v, ok := os.LookupEnv("DIVE_SERVER_SOCKET"); ok {
		c.ServerSocket = v
	}
	if v, ok := os.LookupEnv("DIVE_CLIENT_HOST"); ok {
		c.ClientHost = v
	}
	if v, ok := envInt("DIVE_CLIENT_PORT"); ok {
		c.ClientPort = v
	}
	if v, ok := envDurationMS("DIVE_ACCEPT_TIMEOUT_MS"); ok {
		c.AcceptTimeout = v
	}
	if v, ok := envDurationMS("DIVE_RECV_TIMEOUT_MS"); ok {
		c.RecvTimeout = v
	}
	if v, ok := envDurationMS("DIVE_KEEPALIVE_INTERVAL_MS"); ok {
		c.KeepAliveInterval = v
	}
	if v, ok := envDurationMS("DIVE_PONG_DEADLINE_MS"); ok {
		c.PongDeadline = v
	}
	if v, ok := envInt("DIVE_MAX_PAYLOAD_SIZE"); ok {
		c.MaxPayloadSize = v
	}
	return c
}

func envInt(name string) (int, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envDurationMS(name string) (time.Duration, bool) {
	n, ok := envInt(name)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Millisecond, true
}
