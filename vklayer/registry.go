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

// Package vklayer implements Dive's Vulkan Layer Shell (C7): per-instance
// and per-device dispatch-table bookkeeping, feature-flag-driven call
// interception, extension enumeration and loader-version negotiation.
// Go cannot sit between an application and the Vulkan loader the way the
// C++ layer does - there is no real vkGetInstanceProcAddr trampoline to
// write - so this package models the layer's *state machine* (what a real
// layer's dispatch maps, flag checks and counters would do) so gputime and
// the RPC service can be driven and tested the same way the real layer
// would drive them. Grounded on gapis/api/vulkan/labels.go and
// vulkan_terminator.go's handle-keyed-map idiom
// (github.com/google/gapid/gapis/api/vulkan) and core/vulkan/loader/loader.go's
// layer-manifest/version-negotiation idiom (github.com/google/gapid/core/vulkan/loader).
package vklayer

import (
	"sync"
	"sync/atomic"

	"github.com/google/dive/gputime"
)

// Handle is the dispatchable-handle identity key: the first pointer-sized
// word of the Vulkan dispatchable handle.
type Handle uintptr

// ProcAddr stands in for a next-layer function pointer; the shell's job is
// only to remember it was installed and invoke it, never to interpret it.
type ProcAddr func(args ...interface{}) interface{}

// dispatchEntry is the per-instance/per-device record: the raw handle plus
// its dispatch table, installed once from the next layer's GetProcAddr.
type dispatchEntry struct {
	handle Handle
	table  map[string]ProcAddr
}

// Registry holds the layer's per-instance and per-device dispatch maps plus
// a shared "last touched" cache. Go has no per-goroutine-local storage
// equivalent to C's thread-local storage, so the fast-path cache here is a
// single shared atomic pointer rather than one cache per thread; this still
// avoids a mutex acquisition on the repeated-same-handle common case, but
// does not give the isolation a true TLS cache would (documented
// open-question resolution, see DESIGN.md).
type Registry struct {
	instMu sync.Mutex
	inst   map[Handle]*dispatchEntry

	devMu sync.Mutex
	dev   map[Handle]*dispatchEntry

	lastTouched atomic.Value // holds *dispatchEntry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		inst: make(map[Handle]*dispatchEntry),
		dev:  make(map[Handle]*dispatchEntry),
	}
}

// InstallInstance records h's dispatch table, populated from the next
// layer's vkGetInstanceProcAddr. Called from vkCreateInstance.
func (r *Registry) InstallInstance(h Handle, table map[string]ProcAddr) {
	r.instMu.Lock()
	defer r.instMu.Unlock()
	e := &dispatchEntry{handle: h, table: table}
	r.inst[h] = e
	r.lastTouched.Store(e)
}

// RemoveInstance discards h's dispatch table. Called from vkDestroyInstance.
func (r *Registry) RemoveInstance(h Handle) {
	r.instMu.Lock()
	defer r.instMu.Unlock()
	delete(r.inst, h)
	r.invalidateLastTouched(h)
}

// InstallDevice records h's dispatch table, populated from the next layer's
// vkGetDeviceProcAddr. Called from vkCreateDevice.
func (r *Registry) InstallDevice(h Handle, table map[string]ProcAddr) {
	r.devMu.Lock()
	defer r.devMu.Unlock()
	e := &dispatchEntry{handle: h, table: table}
	r.dev[h] = e
	r.lastTouched.Store(e)
}

// RemoveDevice discards h's dispatch table. Called from vkDestroyDevice.
func (r *Registry) RemoveDevice(h Handle) {
	r.devMu.Lock()
	defer r.devMu.Unlock()
	delete(r.dev, h)
	r.invalidateLastTouched(h)
}

// invalidateLastTouched clears the last-touched cache if it currently holds
// h, so a removed handle is never served stale after its map entry is gone.
func (r *Registry) invalidateLastTouched(h Handle) {
	if e, ok := r.lastTouched.Load().(*dispatchEntry); ok && e != nil && e.handle == h {
		r.lastTouched.Store((*dispatchEntry)(nil))
	}
}

// NextProc resolves the next layer's pointer for fname on the dispatchable
// object h, consulting the shared last-touched cache before falling back to
// the mutex-guarded maps.
func (r *Registry) NextProc(h Handle, fname string) (ProcAddr, bool) {
	if e, ok := r.lastTouched.Load().(*dispatchEntry); ok && e != nil && e.handle == h {
		if p, ok := e.table[fname]; ok {
			return p, true
		}
	}

	r.devMu.Lock()
	if e, ok := r.dev[h]; ok {
		r.devMu.Unlock()
		r.lastTouched.Store(e)
		p, ok := e.table[fname]
		return p, ok
	}
	r.devMu.Unlock()

	r.instMu.Lock()
	defer r.instMu.Unlock()
	if e, ok := r.inst[h]; ok {
		r.lastTouched.Store(e)
		p, ok := e.table[fname]
		return p, ok
	}
	return nil, false
}

// DeviceState is the per-device interception state the shell keeps in
// addition to the dispatch table: enabled feature flags, drawcall counters
// per command buffer, and the GPU-time tracker arming hook.
type DeviceState struct {
	Flags   FeatureFlags
	Tracker *gputime.Tracker

	mu        sync.Mutex
	drawcalls map[gputime.CommandBuffer]*drawcallCount
}

type drawcallCount struct {
	indexed    uint64
	indexTotal uint64
	suppressed uint64
}

// NewDeviceState returns a DeviceState with the given flags and an optional
// GPU-time tracker (nil disables enable_openxr_gpu_timing's effect).
func NewDeviceState(flags FeatureFlags, tracker *gputime.Tracker) *DeviceState {
	return &DeviceState{
		Flags:     flags,
		Tracker:   tracker,
		drawcalls: make(map[gputime.CommandBuffer]*drawcallCount),
	}
}
