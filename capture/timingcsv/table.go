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

// Package timingcsv implements Dive's Available-Timing CSV (C10): a strict
// parser for the per-frame/command-buffer/render-pass timing table a
// capture run produces, with by-type and by-row lookup. CSV parsing itself
// uses encoding/csv (stdlib) rather than a third-party CSV library: no repo
// in the example pack imports one, so there is nothing to ground a
// dependency choice on here (see DESIGN.md). Row/column validation is
// grounded on cmd/gapit/profile.go's strict-field-count parsing idiom
// (github.com/google/gapid/cmd/gapit).
package timingcsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/dive/status"
)

// RowType is the Type column's enumerated value.
type RowType int

const (
	Frame RowType = iota
	CommandBuffer
	RenderPass
)

func (t RowType) String() string {
	switch t {
	case Frame:
		return "Frame"
	case CommandBuffer:
		return "CommandBuffer"
	case RenderPass:
		return "RenderPass"
	default:
		return "Unknown"
	}
}

func parseRowType(s string) (RowType, bool) {
	switch s {
	case "Frame":
		return Frame, true
	case "CommandBuffer":
		return CommandBuffer, true
	case "RenderPass":
		return RenderPass, true
	}
	return 0, false
}

// Stat is one row's parsed values.
type Stat struct {
	Type   RowType
	ID     int
	Mean   float64
	Median float64
}

// wantHeader is the CSV's single required header row.
var wantHeader = []string{"Type", "Id", "Mean [ms]", "Median [ms]"}

// Table is the fully-parsed, row-ordered timing table. The zero value is a
// usable, empty Table ready for Load.
type Table struct {
	loaded         bool
	frame          Stat
	commandBuffers []Stat
	renderPasses   []Stat
	rows           []Stat // original row order, 1-based lookup via GetStatsByRow
}

// NewTable returns an empty, unloaded Table.
func NewTable() *Table { return &Table{} }

// Load reads a strict Available-Timing CSV from r into t. It rejects a
// mismatched header, any row with the wrong column count, a non-integer id,
// or an integer-looking mean/median (values must parse as floats containing
// a decimal point or exponent - "10" is rejected, "10.0" is accepted). Rows
// must appear in section order: exactly one Frame row first, then
// CommandBuffer rows with dense zero-based ids in arrival order, then
// RenderPass rows likewise.
//
// Load may only succeed once per instance: a Table that has already loaded
// returns (false, nil) and leaves its existing state untouched, rather than
// silently merging or replacing a prior load.
func (t *Table) Load(r io.Reader) (bool, error) {
	if t.loaded {
		return false, nil
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return false, status.Wrap(err, status.InvalidArgument, "reading CSV header")
	}
	if len(header) != len(wantHeader) {
		return false, status.New(status.InvalidArgument, "expected %d header columns, got %d", len(wantHeader), len(header))
	}
	for i, h := range wantHeader {
		if header[i] != h {
			return false, status.New(status.InvalidArgument, "header column %d: expected %q, got %q", i, h, header[i])
		}
	}

	parsed := &Table{}
	sawFrame := false
	nextCB, nextRP := 0, 0
	inCB, inRP := false, false

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return false, status.Wrap(err, status.InvalidArgument, "reading CSV row")
		}
		if len(rec) != 4 {
			return false, status.New(status.InvalidArgument, "row has %d columns, want 4", len(rec))
		}

		rt, ok := parseRowType(rec[0])
		if !ok {
			return false, status.New(status.InvalidArgument, "unknown row type %q", rec[0])
		}
		id, err := strconv.Atoi(rec[1])
		if err != nil {
			return false, status.Wrap(err, status.InvalidArgument, fmt.Sprintf("non-integer id %q", rec[1]))
		}
		mean, err := parseStrictFloat(rec[2])
		if err != nil {
			return false, status.Wrap(err, status.InvalidArgument, "mean column")
		}
		median, err := parseStrictFloat(rec[3])
		if err != nil {
			return false, status.Wrap(err, status.InvalidArgument, "median column")
		}
		stat := Stat{Type: rt, ID: id, Mean: mean, Median: median}

		switch rt {
		case Frame:
			if sawFrame {
				return false, status.New(status.InvalidArgument, "more than one Frame row")
			}
			if inCB || inRP {
				return false, status.New(status.InvalidArgument, "Frame row must be first")
			}
			sawFrame = true
			parsed.frame = stat
		case CommandBuffer:
			if !sawFrame {
				return false, status.New(status.InvalidArgument, "CommandBuffer row before Frame row")
			}
			if inRP {
				return false, status.New(status.InvalidArgument, "CommandBuffer row after RenderPass rows began")
			}
			if id != nextCB {
				return false, status.New(status.InvalidArgument, "CommandBuffer ids must be dense and zero-based; expected %d, got %d", nextCB, id)
			}
			inCB = true
			nextCB++
			parsed.commandBuffers = append(parsed.commandBuffers, stat)
		case RenderPass:
			if !sawFrame {
				return false, status.New(status.InvalidArgument, "RenderPass row before Frame row")
			}
			if id != nextRP {
				return false, status.New(status.InvalidArgument, "RenderPass ids must be dense and zero-based; expected %d, got %d", nextRP, id)
			}
			inRP = true
			nextRP++
			parsed.renderPasses = append(parsed.renderPasses, stat)
		}
		parsed.rows = append(parsed.rows, stat)
	}

	if !sawFrame {
		return false, status.New(status.InvalidArgument, "missing required Frame row")
	}

	t.frame = parsed.frame
	t.commandBuffers = parsed.commandBuffers
	t.renderPasses = parsed.renderPasses
	t.rows = parsed.rows
	t.loaded = true
	return true, nil
}

// parseStrictFloat rejects integer-looking literals ("10", "-3") that
// strconv.ParseFloat would otherwise happily accept; the column is defined
// as floats only.
func parseStrictFloat(s string) (float64, error) {
	if !strings.ContainsAny(s, ".eE") {
		return 0, status.New(status.InvalidArgument, "%q is not a float literal", s)
	}
	return strconv.ParseFloat(s, 64)
}

// GetStatsByType looks up a row by its section and id. kind == Frame returns
// the table's single Frame row regardless of id (see also the Frame()
// accessor). Returns ok=false if id is out of range for CommandBuffer or
// RenderPass.
func (t *Table) GetStatsByType(kind RowType, id int) (Stat, bool) {
	if kind == Frame {
		return t.frame, true
	}

	var section []Stat
	switch kind {
	case CommandBuffer:
		section = t.commandBuffers
	case RenderPass:
		section = t.renderPasses
	default:
		return Stat{}, false
	}
	if id < 0 || id >= len(section) {
		return Stat{}, false
	}
	return section[id], true
}

// GetStatsByRow looks up a row by its 1-based position in the original CSV
// row order. Returns ok=false if out of range.
func (t *Table) GetStatsByRow(row1Based int) (Stat, bool) {
	idx := row1Based - 1
	if idx < 0 || idx >= len(t.rows) {
		return Stat{}, false
	}
	return t.rows[idx], true
}

// Frame returns the table's single Frame row.
func (t *Table) Frame() Stat { return t.frame }

// CommandBufferCount and RenderPassCount report each section's row count.
func (t *Table) CommandBufferCount() int { return len(t.commandBuffers) }
func (t *Table) RenderPassCount() int    { return len(t.renderPasses) }

// IsValid reports whether the table's total row count equals
// CommandBuffer rows + RenderPass rows + 1.
func (t *Table) IsValid() bool {
	return len(t.rows) == len(t.commandBuffers)+len(t.renderPasses)+1
}

// IsLoaded reports whether Load has already populated this instance.
func (t *Table) IsLoaded() bool { return t.loaded }
