/*
 * Copyright 2014-2015 Jason Woods.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package rundata holds the per-(logfile,tag) continuation state persisted
// across runs, and the threshold/runlimit dispatch logic evaluated against
// it. The counter/threshold arithmetic is grounded on
// original_source/crates/rclf/src/logfile.rs's match-handling block.
package rundata

import (
	"math"
	"time"

	"clf/clf-lib/nagios"
)

// Unbounded is the "no limit" sentinel for the integer TagOptions fields, per
// the spec ("unset integers default to u64::MAX")
const Unbounded = math.MaxUint64

// Options is the tag's bitset-plus-integers configuration, unchanged in
// meaning from the spec's TagOptions
type Options struct {
	RunCallback     bool
	Rewind          bool
	FastForward     bool
	RunIfOk         bool
	SaveThresholds  bool
	KeepOutput      bool
	Protocol        string
	CriticalThreshold uint64
	WarningThreshold  uint64
	RunLimit          uint64
	Truncate          uint64
	StopAt            uint64
}

// DefaultOptions returns the zero-value-safe defaults: all integer limits
// unbounded, rewind/fastforward off
func DefaultOptions() Options {
	return Options{
		CriticalThreshold: Unbounded,
		WarningThreshold:  Unbounded,
		RunLimit:          Unbounded,
		Truncate:          Unbounded,
		StopAt:            Unbounded,
	}
}

// Normalize applies the mutual-exclusion rule between Rewind and FastForward:
// rewind wins if both are set, per the spec.
func (o *Options) Normalize() {
	if o.Rewind && o.FastForward {
		o.FastForward = false
	}
}

// Counters are the cumulative match/dispatch counters for a tag
type Counters struct {
	Critical uint64 `json:"critical"`
	Warning  uint64 `json:"warning"`
	Ok       uint64 `json:"ok"`
	Exec     uint64 `json:"exec"`
}

// RunData is the persisted continuation state for one (logfile, tag) pair
type RunData struct {
	PID          int       `json:"pid"`
	StartOffset  int64     `json:"start_offset"`
	StartLine    uint64    `json:"start_line"`
	LastOffset   int64     `json:"last_offset"`
	LastLine     uint64    `json:"last_line"`
	LastRun      time.Time `json:"last_run"`
	LastRunSecs  int64     `json:"last_run_secs"`
	Counters     Counters  `json:"counters"`
	LastError    string    `json:"last_error,omitempty"`
}

// New creates a fresh RunData starting at the given offset/line (0/0 unless
// fastforward or resume positions it elsewhere)
func New(startOffset int64, startLine uint64) *RunData {
	return &RunData{
		StartOffset: startOffset,
		StartLine:   startLine,
		LastOffset:  startOffset,
		LastLine:    startLine,
	}
}

// Advance records that a line at lineNumber ending at endOffset was consumed,
// whether or not it produced a classified hit (invariant: start_offset <=
// last_offset <= file.size, start_line <= last_line)
func (rd *RunData) Advance(endOffset int64, lineNumber uint64) {
	rd.LastOffset = endOffset
	rd.LastLine = lineNumber
}

// Observe applies the threshold/runlimit logic from the spec's RunData
// section to a classified match and returns whether the callback should be
// dispatched. The caller is responsible for actually invoking the callback
// and, on success, calling ExecDispatched.
func (rd *RunData) Observe(sev nagios.Severity, opts Options) (dispatch bool) {
	switch sev {
	case nagios.Critical:
		rd.Counters.Critical++
	case nagios.Warning:
		rd.Counters.Warning++
	case nagios.Ok:
		rd.Counters.Ok++
	}

	shouldDispatch := (sev == nagios.Critical && rd.Counters.Critical > opts.CriticalThreshold) ||
		(sev == nagios.Warning && rd.Counters.Warning > opts.WarningThreshold) ||
		(sev == nagios.Ok && opts.RunIfOk)

	dispatch = opts.RunCallback && shouldDispatch && rd.Counters.Exec < opts.RunLimit

	if sev == nagios.Ok {
		rd.Counters.Critical = 0
		rd.Counters.Warning = 0
	}

	return dispatch
}

// ExecDispatched records a successful callback dispatch
func (rd *RunData) ExecDispatched() {
	rd.Counters.Exec++
}

// StopReached reports whether lineNumber has passed the tag's configured
// stopat, at which point the scan loop for this tag must break
func StopReached(lineNumber uint64, opts Options) bool {
	return lineNumber > opts.StopAt
}

// Finalize stamps the run's completion time
func (rd *RunData) Finalize(now time.Time) {
	rd.LastRun = now
	rd.LastRunSecs = now.Unix()
	rd.PID = 0
}

// Severity computes this tag's contribution to the overall exit status
func (rd *RunData) Severity(opts Options, ioError bool) nagios.Severity {
	if ioError {
		return nagios.Unknown
	}
	if rd.Counters.Critical > opts.CriticalThreshold {
		return nagios.Critical
	}
	if rd.Counters.Warning > opts.WarningThreshold {
		return nagios.Warning
	}
	return nagios.Ok
}
