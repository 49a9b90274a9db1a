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

// Command dive-server runs Dive's on-device RPC service (C4): it binds an
// abstract-namespace Unix domain socket, serves handshake/ping/file-size/
// download-file/PM4-capture-trigger requests, and blocks until SIGINT or
// SIGTERM before shutting the server down cleanly.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/dive/config"
	"github.com/google/dive/corelog"
	"github.com/google/dive/gputime"
	"github.com/google/dive/rpc/server"
	"github.com/google/dive/vklayer"
)

func main() {
	cfg := config.FromEnvironment()

	socket := flag.String("socket", cfg.ServerSocket, "abstract-namespace UDS name to bind")
	flag.Parse()
	cfg.ServerSocket = *socket

	ctx := context.Background()
	log := corelog.New(os.Stderr, corelog.Info)
	ctx = corelog.NewContext(ctx, log)

	tracker := gputime.New()
	registry := vklayer.NewRegistry()
	_ = registry // constructed but not referenced by the capture trigger below

	handler := &server.DefaultHandler{
		Version: server.DefaultVersion,
		Trigger: func(ctx context.Context) (string, error) {
			// In the real deployment this is wired to the active vklayer
			// DeviceState's capture-finalize path; standing this core up
			// without a live Vulkan device means there is nothing yet to
			// finalize, so the trigger reports an empty path rather than
			// fabricating one.
			_ = tracker.Metrics()
			return "", nil
		},
	}

	s := server.New(handler)
	s.AcceptTimeout = cfg.AcceptTimeout
	s.RecvTimeout = cfg.RecvTimeout

	if err := s.Start(ctx, cfg.ServerSocket); err != nil {
		corelog.E(ctx, "failed to start server on %q: %v", cfg.ServerSocket, err)
		os.Exit(1)
	}
	corelog.I(ctx, "listening on abstract UDS %q", cfg.ServerSocket)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	corelog.I(ctx, "shutting down")
	s.Stop()
}
