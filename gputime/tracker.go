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

// Package gputime implements Dive's GPU-Time Tracker (C6): one device-wide
// timestamp query pool, a command-buffer -> query-pair bookkeeping map, and
// frame-boundary detection via a magic debug-utils label, grounded on
// gapis/api/vulkan/transform_query_timestamps.go's queryPoolInfo /
// queryTimestamps shape (github.com/google/gapid/gapis/api/vulkan). C7
// drives the tracker through the OnXxx hooks; gputime itself never touches
// Vulkan handles directly - it only tracks the query indices the layer
// shell must write into the command buffer it builds.
package gputime

import (
	"context"
	"sync"

	"github.com/google/dive/corelog"
	"github.com/google/dive/status"
)

// frameBoundaryLabel is the exact debug-utils label payload the layer shell
// must scan vkCmdInsertDebugUtilsLabelEXT calls for to detect a frame
// boundary.
const frameBoundaryLabel = "vr-marker,frame_end,type,application"

// CommandBuffer is an opaque per-layer handle identifying one Vulkan command
// buffer; the layer shell supplies whatever it uses as a dispatchable-handle
// key.
type CommandBuffer uintptr

// CommandBufferInfo is the per-command-buffer bookkeeping the tracker keeps:
// its assigned query-pair offset, whether it was the frame's boundary
// submission, and whether it was recorded one-time-submit-only.
type CommandBufferInfo struct {
	TimestampOffset uint32
	IsFrameBoundary bool
	OneTimeSubmit   bool
}

// queryPairCapacity is the number of (begin, end) timestamp pairs the
// device-wide pool is sized for - one frame's worth of command buffers.
const queryPairCapacity = 4096

// windowSize is how many recent frame durations FrameMetrics retains.
const windowSize = 64

// Tracker owns one device's query pool bookkeeping and rolling frame-time
// window. The zero value is not usable; construct with New.
type Tracker struct {
	mu sync.Mutex

	periodNS float32 // nanoseconds per timestamp tick, from OnCreateDevice

	counter uint32 // next free query-pair index
	cbInfo  map[CommandBuffer]*CommandBufferInfo
	frame   []CommandBuffer // command buffers recorded for the in-flight frame

	window []float64 // rolling frame durations in ms, oldest first
}

// New returns a Tracker with an empty query pool; call OnCreateDevice before
// using it.
func New() *Tracker {
	return &Tracker{cbInfo: make(map[CommandBuffer]*CommandBufferInfo)}
}

// OnCreateDevice records the timestamp period (nanoseconds/tick) and resets
// the pool and counter.
func (t *Tracker) OnCreateDevice(ctx context.Context, periodNS float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.periodNS = periodNS
	t.counter = 0
	t.cbInfo = make(map[CommandBuffer]*CommandBufferInfo)
	t.frame = nil
}

// OnDestroyDevice releases all tracked state. The caller is responsible for
// waiting the device idle before calling this.
func (t *Tracker) OnDestroyDevice(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cbInfo = make(map[CommandBuffer]*CommandBufferInfo)
	t.frame = nil
	t.counter = 0
}

// OnAllocateCommandBuffers registers cbs with no query pair assigned yet.
func (t *Tracker) OnAllocateCommandBuffers(cbs []CommandBuffer, oneTimeSubmit bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, cb := range cbs {
		t.cbInfo[cb] = &CommandBufferInfo{OneTimeSubmit: oneTimeSubmit}
	}
}

// OnFreeCommandBuffers removes cbs' bookkeeping entirely. Their query-pair
// indices are not returned to the pool; the pair counter is reset only at
// the next frame boundary (see OnQueueSubmit).
func (t *Tracker) OnFreeCommandBuffers(cbs []CommandBuffer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, cb := range cbs {
		delete(t.cbInfo, cb)
	}
}

// OnResetCommandBuffer clears cb's frame-boundary flag while keeping it
// registered for future recording. Its query-pair index is not returned to
// the pool before the next frame boundary.
func (t *Tracker) OnResetCommandBuffer(cb CommandBuffer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if info, ok := t.cbInfo[cb]; ok {
		info.IsFrameBoundary = false
	}
}

// OnResetCommandPool clears the frame-boundary flag of every cb in the pool,
// keeping them registered. Their query-pair indices are not returned to the
// pool before the next frame boundary.
func (t *Tracker) OnResetCommandPool(cbs []CommandBuffer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, cb := range cbs {
		if info, ok := t.cbInfo[cb]; ok {
			info.IsFrameBoundary = false
		}
	}
}

// OnDestroyCommandPool releases bookkeeping for every cb the pool owned.
func (t *Tracker) OnDestroyCommandPool(cbs []CommandBuffer) {
	t.OnFreeCommandBuffers(cbs)
}

// OnBeginCommandBuffer allocates the next free query-pair index for cb and
// appends it to the in-flight frame's recorded buffers. Returns the
// timestamp offset the layer shell should use for its paired
// vkCmdWriteTimestamp calls at TOP_OF_PIPE (begin) and BOTTOM_OF_PIPE (end).
//
// If the pool is exhausted, the error is non-fatal (status.ResourceExhausted)
// and the caller must skip timestamp emission for this command buffer,
// leaving the frame untimed rather than aborting recording.
func (t *Tracker) OnBeginCommandBuffer(ctx context.Context, cb CommandBuffer) (offset uint32, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.cbInfo[cb]
	if !ok {
		return 0, status.New(status.NotFound, "command buffer not allocated")
	}
	if t.counter >= queryPairCapacity {
		corelog.W(ctx, "query pool exhausted at %d pairs; frame will not be timed", t.counter)
		return 0, status.New(status.ResourceExhausted, "query pool exhausted")
	}
	offset = t.counter
	t.counter++
	info.TimestampOffset = offset
	info.IsFrameBoundary = false
	t.frame = append(t.frame, cb)
	return offset, nil
}

// OnEndCommandBuffer is a bookkeeping no-op beyond the contract that the
// layer shell has already written the end timestamp at cb's offset; kept as
// an explicit hook mirroring the command-buffer lifecycle.
func (t *Tracker) OnEndCommandBuffer(ctx context.Context, cb CommandBuffer) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.cbInfo[cb]; !ok {
		return status.New(status.NotFound, "command buffer not allocated")
	}
	return nil
}

// OnCmdInsertDebugUtilsLabelEXT marks cb as the frame boundary if label is
// the exact frame-end marker string.
func (t *Tracker) OnCmdInsertDebugUtilsLabelEXT(cb CommandBuffer, label string) {
	if label != frameBoundaryLabel {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if info, ok := t.cbInfo[cb]; ok {
		info.IsFrameBoundary = true
	}
}

// QueryResults maps a timestamp offset to its resolved device-clock tick
// value, abstracted into a caller-supplied lookup so gputime never calls
// into Vulkan itself.
type QueryResults func(offset uint32) (tick uint64, ok bool)

// OnQueueSubmit inspects the command buffers submitted in this batch; if any
// is flagged as a frame boundary, it resolves every query pair recorded this
// frame via getResults, converts ticks to milliseconds using the device's
// timestamp period, records the frame duration, and resets the pair counter
// for the next frame. The bookkeeping of one-time-submit buffers in the batch
// is then removed; re-recordable ones stay registered until freed or their
// pool is destroyed.
func (t *Tracker) OnQueueSubmit(ctx context.Context, submitted []CommandBuffer, getResults QueryResults) {
	t.mu.Lock()
	defer t.mu.Unlock()

	boundary := false
	for _, cb := range submitted {
		if info, ok := t.cbInfo[cb]; ok && info.IsFrameBoundary {
			boundary = true
		}
	}

	if boundary {
		var begin, end uint64
		haveBegin, haveEnd := false, false
		for _, cb := range t.frame {
			info, ok := t.cbInfo[cb]
			if !ok {
				continue
			}
			tick, ok := getResults(info.TimestampOffset)
			if !ok {
				continue
			}
			if !haveBegin || tick < begin {
				begin, haveBegin = tick, true
			}
			if !haveEnd || tick > end {
				end, haveEnd = tick, true
			}
		}

		if haveBegin && haveEnd && end >= begin {
			durationMS := float64(end-begin) * float64(t.periodNS) / 1e6
			t.window = append(t.window, durationMS)
			if len(t.window) > windowSize {
				t.window = t.window[len(t.window)-windowSize:]
			}
		} else {
			corelog.W(ctx, "frame boundary submitted with no resolvable query results")
		}

		t.counter = 0
		t.frame = t.frame[:0]
	}

	// One-time-submit buffers release their query-pair bookkeeping only
	// after this batch's results (if any) have been read above; re-recordable
	// ones stay registered until free/pool-destroy.
	for _, cb := range submitted {
		if info, ok := t.cbInfo[cb]; ok && info.OneTimeSubmit {
			delete(t.cbInfo, cb)
		}
	}
}

// FrameMetrics reports the rolling-window frame-duration statistics.
type FrameMetrics struct {
	Count  int
	Mean   float64
	Median float64
	Min    float64
	Max    float64
	StdDev float64
}

// Metrics computes FrameMetrics over the current rolling window. Returns the
// zero value with Count == 0 when no frame has completed yet.
func (t *Tracker) Metrics() FrameMetrics {
	t.mu.Lock()
	samples := append([]float64(nil), t.window...)
	t.mu.Unlock()

	return computeFrameMetrics(samples)
}
