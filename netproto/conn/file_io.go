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

package conn

import (
	"os"

	"github.com/google/dive/status"
)

func openRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, status.Wrap(err, status.NotFound, "open "+path)
		}
		return nil, status.Wrap(err, status.PermissionDenied, "open "+path)
	}
	return f, nil
}

func createWrite(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, status.Wrap(err, status.PermissionDenied, "create "+path)
	}
	return f, nil
}
