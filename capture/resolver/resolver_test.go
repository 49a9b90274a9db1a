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

package resolver_test

import (
	"testing"

	"github.com/google/dive/capture/resolver"
	"github.com/google/dive/status"
)

func TestResolveProducesAllSiblings(t *testing.T) {
	paths, err := resolver.Resolve("/sdcard/dive", "com.example.app_trim_trigger_1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := resolver.ComponentPaths{
		GFXR:         "/sdcard/dive/com.example.app_trim_trigger_1.gfxr",
		GFXA:         "/sdcard/dive/com.example.app_asset_file_1.gfxa",
		ProfilingCSV: "/sdcard/dive/com.example.app_trim_trigger_1_profiling_metrics.csv",
		GPUTimingCSV: "/sdcard/dive/com.example.app_trim_trigger_1_gpu_time.csv",
		PM4:          "/sdcard/dive/com.example.app_trim_trigger_1.rd",
		Screenshot:   "/sdcard/dive/com.example.app_trim_trigger_1.png",
		RenderDocRDC: "/sdcard/dive/com.example.app_trim_trigger_1_capture.rdc",
	}
	if paths != want {
		t.Fatalf("unexpected paths:\ngot  %+v\nwant %+v", paths, want)
	}
}

func TestResolveRejectsMissingMarker(t *testing.T) {
	_, err := resolver.Resolve("/sdcard/dive", "com.example.app_1")
	if status.Code(err) != status.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestResolveRejectsPathSeparatorsInStem(t *testing.T) {
	_, err := resolver.Resolve("/sdcard/dive", "../com.example.app_trim_trigger_1")
	if status.Code(err) != status.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	_, err = resolver.Resolve("/sdcard/dive", `com.example\app_trim_trigger_1`)
	if status.Code(err) != status.InvalidArgument {
		t.Fatalf("expected InvalidArgument for backslash, got %v", err)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	a, err1 := resolver.Resolve("/d", "pkg_trim_trigger_2")
	b, err2 := resolver.Resolve("/d", "pkg_trim_trigger_2")
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v %v", err1, err2)
	}
	if a != b {
		t.Fatalf("expected deterministic derivation, got %+v vs %+v", a, b)
	}
}

func TestResolveWithEmptyParentDir(t *testing.T) {
	paths, err := resolver.Resolve("", "pkg_trim_trigger_3")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if paths.GFXR != "pkg_trim_trigger_3.gfxr" {
		t.Fatalf("expected no leading separator with empty parentDir, got %q", paths.GFXR)
	}
}
