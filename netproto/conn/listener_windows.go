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

//go:build windows

package conn

import "github.com/google/dive/status"

// BindListenUDS is unimplemented on Windows: the server side of Dive relies
// on Linux's abstract-namespace Unix domain sockets, which Windows has no
// equivalent for. The client, Conn and framing layers are fully portable;
// only hosting the on-device server is POSIX-only by design.
func BindListenUDS(addr string) (Listener, error) {
	return nil, status.New(status.Unimplemented, "unix domain socket server is not supported on windows")
}
