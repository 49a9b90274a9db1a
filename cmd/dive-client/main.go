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

// Command dive-client is Dive's host-side CLI (C5): it connects to the
// on-device RPC service over TCP (typically reached via `adb forward`) and
// exposes three subcommands mirroring cmd/gapit's verb-per-subcommand
// style - capture, filesize, download - implemented directly against the
// standard library flag package rather than a generic verb-dispatch
// framework, since that framework is out of this core's scope (see
// SPEC_FULL.md §4.14).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/dive/config"
	"github.com/google/dive/corelog"
	"github.com/google/dive/rpc/client"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.FromEnvironment()
	ctx := corelog.NewContext(context.Background(), corelog.New(os.Stderr, corelog.Info))

	switch os.Args[1] {
	case "capture":
		runCapture(ctx, cfg, os.Args[2:])
	case "filesize":
		runFileSize(ctx, cfg, os.Args[2:])
	case "download":
		runDownload(ctx, cfg, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: dive-client <capture|filesize|download> [flags]")
}

// connect parses the shared -host/-port flags from fs and returns a
// connected Client. Callers must Close it.
func connect(ctx context.Context, cfg config.Config, fs *flag.FlagSet, args []string) (*client.Client, error) {
	host := fs.String("host", cfg.ClientHost, "on-device RPC service host")
	port := fs.Int("port", cfg.ClientPort, "on-device RPC service port")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	c := client.New()
	c.KeepAliveInterval = cfg.KeepAliveInterval
	c.PongDeadline = cfg.PongDeadline
	if err := c.Connect(ctx, *host, *port); err != nil {
		return nil, err
	}
	return c, nil
}

func runCapture(ctx context.Context, cfg config.Config, args []string) {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	c, err := connect(ctx, cfg, fs, args)
	if err != nil {
		corelog.E(ctx, "connect: %v", err)
		os.Exit(1)
	}
	defer c.Close()

	path, err := c.StartPm4Capture(ctx)
	if err != nil {
		corelog.E(ctx, "capture failed: %v", err)
		os.Exit(1)
	}
	fmt.Println(path)
}

func runFileSize(ctx context.Context, cfg config.Config, args []string) {
	fs := flag.NewFlagSet("filesize", flag.ExitOnError)
	remote := fs.String("remote", "", "remote file path")
	c, err := connect(ctx, cfg, fs, args)
	if err != nil {
		corelog.E(ctx, "connect: %v", err)
		os.Exit(1)
	}
	defer c.Close()

	size, err := c.GetCaptureFileSize(ctx, *remote)
	if err != nil {
		corelog.E(ctx, "filesize failed: %v", err)
		os.Exit(1)
	}
	fmt.Println(size)
}

func runDownload(ctx context.Context, cfg config.Config, args []string) {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	remote := fs.String("remote", "", "remote file path")
	local := fs.String("local", "", "local destination path")
	c, err := connect(ctx, cfg, fs, args)
	if err != nil {
		corelog.E(ctx, "connect: %v", err)
		os.Exit(1)
	}
	defer c.Close()

	err = c.DownloadFileFromServer(ctx, *remote, *local, func(n int64) {
		corelog.D(ctx, "downloaded %d bytes", n)
	})
	if err != nil {
		corelog.E(ctx, "download failed: %v", err)
		os.Exit(1)
	}
}
