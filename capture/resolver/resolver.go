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

// Package resolver implements Dive's Capture File Resolver (C8): a pure
// function mapping one gfxr capture file reference to the full set of
// sibling artifacts a capture produces. Grounded on
// gapir/client/host_log_parser.go's filename-convention parsing
// (github.com/google/gapid/gapir/client), adapted from gapid's single
// ".gfxtrace" naming rule to Dive's seven-artifact naming table.
package resolver

import (
	"strings"

	"github.com/google/dive/status"
)

// trimTriggerMarker is the substring every valid gfxr stem must contain;
// replacing it yields the stem used for the .gfxa sibling.
const trimTriggerMarker = "_trim_trigger_"

// assetFileMarker replaces trimTriggerMarker in the .gfxa sibling's stem.
const assetFileMarker = "_asset_file_"

// ComponentPaths is the full set of sibling artifacts derived from one gfxr
// capture stem.
type ComponentPaths struct {
	GFXR         string
	GFXA         string
	ProfilingCSV string
	GPUTimingCSV string
	PM4          string
	Screenshot   string
	RenderDocRDC string
}

// Resolve derives ComponentPaths from parentDir and gfxrStem (the gfxr
// file's base name without its .gfxr extension). gfxrStem must not contain a
// path separator and must contain trimTriggerMarker; either violation is a
// derivation failure (status.InvalidArgument).
func Resolve(parentDir, gfxrStem string) (ComponentPaths, error) {
	if strings.ContainsAny(gfxrStem, `/\`) {
		return ComponentPaths{}, status.New(status.InvalidArgument, "stem %q contains a path separator", gfxrStem)
	}
	if !strings.Contains(gfxrStem, trimTriggerMarker) {
		return ComponentPaths{}, status.New(status.InvalidArgument, "stem %q is missing the required %q marker", gfxrStem, trimTriggerMarker)
	}

	gfxaStem := strings.Replace(gfxrStem, trimTriggerMarker, assetFileMarker, 1)

	join := func(name string) string {
		if parentDir == "" {
			return name
		}
		return strings.TrimRight(parentDir, `/\`) + "/" + name
	}

	return ComponentPaths{
		GFXR:         join(gfxrStem + ".gfxr"),
		GFXA:         join(gfxaStem + ".gfxa"),
		ProfilingCSV: join(gfxrStem + "_profiling_metrics.csv"),
		GPUTimingCSV: join(gfxrStem + "_gpu_time.csv"),
		PM4:          join(gfxrStem + ".rd"),
		Screenshot:   join(gfxrStem + ".png"),
		RenderDocRDC: join(gfxrStem + "_capture.rdc"),
	}, nil
}
