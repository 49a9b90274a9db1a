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

package vklayer

import "github.com/google/dive/status"

// LayerName is the fixed name this layer advertises to the loader in its
// Vulkan layer manifest.
const LayerName = "VK_LAYER_Dive"

// OwnedExtensions are the instance/device extensions this layer itself
// implements, appended to whatever the next layer down already reports:
// debug-report and debug-utils at instance scope, debug-marker at device
// scope.
var OwnedExtensions = []string{
	"VK_EXT_debug_report",
	"VK_EXT_debug_utils",
	"VK_EXT_debug_marker",
}

// EnumerateResult is the outcome of a bounded-buffer enumeration call.
type EnumerateResult struct {
	Names      []string
	Incomplete bool
}

// EnumerateExtensions implements vkEnumerateInstanceExtensionProperties /
// vkEnumerateDeviceExtensionProperties's layer-filter behavior: when
// queriedLayer equals this layer's own name, return exactly its owned list;
// otherwise append the owned, de-duplicated extensions to whatever next
// reports. capacity bounds how many names are copied into the caller's
// buffer; 0 or negative means unbounded.
func EnumerateExtensions(queriedLayer string, next []string, capacity int) EnumerateResult {
	var all []string
	if queriedLayer == LayerName {
		all = append(all, OwnedExtensions...)
	} else {
		seen := make(map[string]bool, len(next))
		all = append(all, next...)
		for _, n := range next {
			seen[n] = true
		}
		for _, n := range OwnedExtensions {
			if !seen[n] {
				all = append(all, n)
				seen[n] = true
			}
		}
	}

	if capacity <= 0 || capacity >= len(all) {
		return EnumerateResult{Names: all}
	}
	return EnumerateResult{Names: all[:capacity], Incomplete: true}
}

// maxSupportedLoaderInterfaceVersion is the highest vk_layer negotiation
// version this shell implements.
const maxSupportedLoaderInterfaceVersion = 2

// NegotiateLoaderLayerInterface implements
// vkNegotiateLoaderLayerInterfaceVersion: accepts requested >= 2, returns the
// version actually supported (capped at 2) and whether negotiation
// succeeded.
func NegotiateLoaderLayerInterface(requested uint32) (agreed uint32, err error) {
	if requested < 2 {
		return 0, status.New(status.FailedPrecondition, "loader interface version %d is below the minimum of 2", requested)
	}
	if requested > maxSupportedLoaderInterfaceVersion {
		return maxSupportedLoaderInterfaceVersion, nil
	}
	return requested, nil
}
