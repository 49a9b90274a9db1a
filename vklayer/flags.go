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

import "github.com/google/dive/gputime"

// FeatureFlags selects which of the layer's interception behaviors are
// active.
type FeatureFlags struct {
	EnableDrawcallReport      bool
	EnableDrawcallLimit       bool
	EnableDrawcallFilter      bool
	EnableOpenXRGPUTiming     bool
	RemoveImageFlagFDMOffset  bool
	RemoveImageFlagSubsampled bool
	DisableTimestamp          bool
}

// drawcallLimit is the threshold past which enable_drawcall_limit suppresses
// further vkCmdDrawIndexed calls on a command buffer.
const drawcallLimit = 300

// filteredIndexCounts are the visibility-mask-quad index counts
// enable_drawcall_filter suppresses.
var filteredIndexCounts = map[uint32]bool{42: true, 84: true}

const (
	imageCreateFlagFragmentDensityMapOffset uint32 = 1 << 14
	imageCreateFlagSubsampled                uint32 = 1 << 15
)

// CmdDrawIndexedDecision is what OnCmdDrawIndexed decided to do with one
// draw call.
type CmdDrawIndexedDecision int

const (
	// DrawAllowed means the call should be forwarded to the next layer
	// unmodified.
	DrawAllowed CmdDrawIndexedDecision = iota
	// DrawSuppressedByLimit means enable_drawcall_limit suppressed the call
	// because the command buffer already recorded >= 300 draws.
	DrawSuppressedByLimit
	// DrawSuppressedByFilter means enable_drawcall_filter suppressed the
	// call because indexCount was a visibility-mask-quad value.
	DrawSuppressedByFilter
)

// OnCmdDrawIndexed applies enable_drawcall_limit and enable_drawcall_filter
// (filter takes precedence, since a filtered draw should never count toward
// the limit) and updates per-command-buffer drawcall counters for
// enable_drawcall_report.
func (d *DeviceState) OnCmdDrawIndexed(cb gputime.CommandBuffer, indexCount uint32) CmdDrawIndexedDecision {
	if d.Flags.EnableDrawcallFilter && filteredIndexCounts[indexCount] {
		d.recordDraw(cb, indexCount, true)
		return DrawSuppressedByFilter
	}

	if d.Flags.EnableDrawcallLimit {
		d.mu.Lock()
		dc := d.drawcallForLocked(cb)
		overLimit := dc.indexed >= drawcallLimit
		d.mu.Unlock()
		if overLimit {
			d.recordDraw(cb, indexCount, true)
			return DrawSuppressedByLimit
		}
	}

	d.recordDraw(cb, indexCount, false)
	return DrawAllowed
}

func (d *DeviceState) drawcallForLocked(cb gputime.CommandBuffer) *drawcallCount {
	dc, ok := d.drawcalls[cb]
	if !ok {
		dc = &drawcallCount{}
		d.drawcalls[cb] = dc
	}
	return dc
}

func (d *DeviceState) recordDraw(cb gputime.CommandBuffer, indexCount uint32, suppressed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dc := d.drawcallForLocked(cb)
	if suppressed {
		dc.suppressed++
		return
	}
	dc.indexed++
	dc.indexTotal += uint64(indexCount)
}

// DrawcallCounts reports the accumulated per-command-buffer draw and index
// counts for enable_drawcall_report to log at vkEndCommandBuffer.
func (d *DeviceState) DrawcallCounts(cb gputime.CommandBuffer) (drawCount, indexTotal, suppressed uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dc, ok := d.drawcalls[cb]
	if !ok {
		return 0, 0, 0
	}
	return dc.indexed, dc.indexTotal, dc.suppressed
}

// ResetCommandBuffer clears draw counters for cb, mirroring
// vkResetCommandBuffer/vkBeginCommandBuffer's reuse semantics.
func (d *DeviceState) ResetCommandBuffer(cb gputime.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.drawcalls, cb)
}

// RewriteImageCreateFlags applies remove_image_flag_fdm_offset and
// remove_image_flag_subsampled to a VkImageCreateInfo::flags bitmask.
func (d *DeviceState) RewriteImageCreateFlags(flags uint32) uint32 {
	if d.Flags.RemoveImageFlagFDMOffset {
		flags &^= imageCreateFlagFragmentDensityMapOffset
	}
	if d.Flags.RemoveImageFlagSubsampled {
		flags &^= imageCreateFlagSubsampled
	}
	return flags
}

// TimestampCallAllowed reports whether a timestamp-related call
// (vkCmdResetQueryPool, vkCmdWriteTimestamp, vkGetQueryPoolResults) should
// be forwarded; disable_timestamp drops all three.
func (d *DeviceState) TimestampCallAllowed() bool {
	return !d.Flags.DisableTimestamp
}
