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

// Package scanner drives one logfile through its state machine: resolve,
// identify, detect rotation, seek to the right starting point, scan lines
// against a tag's PatternSet, apply threshold/gate logic, and dispatch
// callbacks. Grounded on the teacher's harvester package (the component that
// owns one file's read loop across the daemon's lifetime) adapted to a
// single-pass, start-to-EOF run instead of a long-lived tailing goroutine,
// and on original_source/crates/rclf/src/logfile.rs for the rotation and
// threshold semantics themselves.
package scanner

import (
	"context"
	"path/filepath"
	"regexp"
	"time"

	"clf/clf-lib/callback"
	"clf/clf-lib/compression"
	"clf/clf-lib/nagios"
	"clf/clf-lib/pattern"
	"clf/clf-lib/reader"
	"clf/clf-lib/rundata"
	"clf/clf-lib/signature"
	"clf/clf-lib/snapshot"

	"gopkg.in/op/go-logging.v1"
)

var log = logging.MustGetLogger("scanner")

// State names the scan state machine's phases, attached to log output so a
// failure or odd decision (e.g. "rotation detected, scanning predecessor
// first") is traceable after the fact
type State string

const (
	StateNew       State = "new"
	StateOpen      State = "open"
	StateRewound   State = "rewound"
	StateFastForward State = "fast_forward"
	StateResumed   State = "resumed"
	StateScanning  State = "scanning"
	StateStopped   State = "stopped"
	StateEOF       State = "eof"
	StateError     State = "error"
	StateFinalized State = "finalized"
)

// TagSpec bundles everything needed to scan a single tag against a logfile:
// its compiled pattern set, runtime options, optional gate, and dispatcher
type TagSpec struct {
	Name             string
	Patterns         *pattern.Set
	Options          rundata.Options
	Gate             *pattern.Gate
	Dispatcher       callback.Dispatcher
	VarsGlobal       map[string]string
	ConfigFile       string
	GeoEnricher      *callback.GeoEnricher
	GeoIPCapture     string
	UserAgentEnricher *callback.UserAgentEnricher
	UserAgentCapture  string
}

// TagResult is what one tag contributed to a logfile's overall status
type TagResult struct {
	Name          string
	Severity      nagios.Severity
	State         State
	LinesScanned  uint64
	MatchedLines  uint64
	DispatchCount uint64
	Output        []string // kept lines, when KeepOutput is set
	Err           error
}

// Options configures a single Scan invocation at the logfile level. Several
// fields (Exclude, ArchiveDir/ArchiveExtension, MissingSeverity, HashWindow)
// mirror the per-logfile configuration surface (spec §4.G) rather than
// anything tag-specific, since rotation, exclusion and missing-file policy
// apply identically to every tag scanning the same logfile.
type Options struct {
	HashWindow      int
	BufferSize      int
	MaxLine         int
	Compression     compression.Kind
	Now             time.Time
	DispatchTimeout time.Duration
	Exclude          *regexp.Regexp
	ArchiveDir       string
	ArchiveExtension string
	MissingSeverity  nagios.Severity
}

// DefaultOptions returns sane defaults mirroring reader/signature package
// defaults
func DefaultOptions() Options {
	return Options{
		HashWindow:      signature.DefaultHashWindow,
		BufferSize:      reader.DefaultBufferSize,
		MaxLine:         reader.DefaultMaxLineBytes,
		Compression:     compression.Plain,
		DispatchTimeout: 5 * time.Second,
		MissingSeverity: nagios.Unknown,
	}
}

// Scan runs every tag in tags against declaredPath, using snap for
// continuation state, and returns one TagResult per tag. A single io error
// opening/reading the file is reported using opts.MissingSeverity for every
// tag rather than aborting the whole run, so a sibling search's logfile is
// unaffected by one missing file. On rotation, the predecessor archive (if
// one can be located under ArchiveDir/ArchiveExtension) is scanned first
// from each tag's persisted offset through its EOF, before the live file is
// scanned from offset 0 - per spec §4.H.3 the reported lines are the union
// of the archive's unscanned suffix and the live file in full.
func Scan(ctx context.Context, declaredPath, canonicalPath string, tags []TagSpec, snap *snapshot.Snapshot, opts Options) []TagResult {
	results := make([]TagResult, len(tags))
	for i, t := range tags {
		results[i] = TagResult{Name: t.Name, State: StateNew}
	}

	sig, err := signature.Of(canonicalPath, opts.Compression, opts.HashWindow)
	if err != nil {
		log.Warning("Cannot stat/identify %s: %s", canonicalPath, err)
		for i := range results {
			results[i].State = StateError
			results[i].Severity = opts.MissingSeverity
			results[i].Err = err
		}
		return results
	}

	entry := snap.Get(canonicalPath)
	if entry == nil {
		entry = &snapshot.LogfileEntry{
			ID: snapshot.LogfileID{
				DeclaredPath:  declaredPath,
				CanonicalPath: canonicalPath,
				Directory:     dirOf(canonicalPath),
				Extension:     extOf(canonicalPath),
				Compression:   opts.Compression.String(),
				Signature:     sig,
			},
		}
		snap.Put(canonicalPath, entry)
	}

	prev := entry.ID.Signature
	rotated := prev != (signature.Signature{}) && !prev.Equal(sig)
	window := opts.HashWindow
	if window <= 0 {
		window = signature.DefaultHashWindow
	}
	if rotated && prev.Size > 0 && prev.Size < uint64(window) && sig.Size >= prev.Size {
		// A file shorter than the hash window that has only grown hashes a
		// longer prefix now; compare the same number of leading bytes instead.
		if grown, err := signature.Of(canonicalPath, opts.Compression, int(prev.Size)); err == nil {
			rotated = !prev.Equal(grown)
		}
	}
	entry.ID.Signature = sig

	var predRd *reader.Reader
	if rotated {
		if predPath := predecessorPath(canonicalPath, opts.ArchiveDir, opts.ArchiveExtension); predPath != "" {
			pr, err := reader.Open(predPath, compression.FromExtension(predPath), opts.BufferSize, opts.MaxLine)
			if err != nil {
				log.Warning("Rotation detected for %s but predecessor %s could not be opened: %s", canonicalPath, predPath, err)
			} else {
				predRd = pr
				defer predRd.Close()
			}
		} else {
			log.Warning("Rotation detected for %s but no archive.extension is configured, cannot locate predecessor", canonicalPath)
		}
		if predRd == nil {
			log.Warning("Rotation detected for %s with no usable predecessor, restarting from offset 0", canonicalPath)
		}
	}

	rd, err := reader.Open(canonicalPath, opts.Compression, opts.BufferSize, opts.MaxLine)
	if err != nil {
		log.Warning("Cannot open %s: %s", canonicalPath, err)
		for i := range results {
			results[i].State = StateError
			results[i].Severity = opts.MissingSeverity
			results[i].Err = err
		}
		return results
	}
	defer rd.Close()

	for i, t := range tags {
		results[i] = scanOneTag(ctx, rd, predRd, declaredPath, t, snapshot.EnsureTag(entry, t.Name, 0, 0), rotated, opts)
	}

	return results
}

// predecessorPath returns the candidate archive path for canonicalPath, or
// "" if no archive.extension is configured. archiveDir falls back to
// canonicalPath's own directory when unset, per spec §4.H.3.
func predecessorPath(canonicalPath, archiveDir, archiveExtension string) string {
	if archiveExtension == "" {
		return ""
	}
	if archiveDir == "" {
		archiveDir = dirOf(canonicalPath)
	}
	base := filepath.Base(canonicalPath)
	return filepath.Join(archiveDir, base+archiveExtension)
}

func scanOneTag(ctx context.Context, rd, predRd *reader.Reader, declaredPath string, t TagSpec, runData *rundata.RunData, rotated bool, opts Options) TagResult {
	res := TagResult{Name: t.Name, State: StateOpen}
	tagOpts := t.Options
	tagOpts.Normalize()

	if rotated && predRd != nil {
		if err := predRd.Seek(runData.LastOffset); err != nil {
			res.State = StateError
			res.Severity = opts.MissingSeverity
			res.Err = err
			return res
		}

		res.State = StateScanning
		if stopped := scanRange(predRd, declaredPath, t, tagOpts, runData, runData.LastLine, &res, ctx, opts.DispatchTimeout, opts.Exclude); stopped {
			res.State = StateStopped
			res.Severity = runData.Severity(tagOpts, false)
			runData.Finalize(opts.Now)
			return res
		}

		if err := rd.Seek(0); err != nil {
			res.State = StateError
			res.Severity = opts.MissingSeverity
			res.Err = err
			return res
		}

		res.State = StateScanning
		if stopped := scanRange(rd, declaredPath, t, tagOpts, runData, 0, &res, ctx, opts.DispatchTimeout, opts.Exclude); stopped {
			res.State = StateStopped
		} else {
			res.State = StateEOF
		}
		res.Severity = runData.Severity(tagOpts, false)
		runData.Finalize(opts.Now)
		return res
	}

	isFreshRun := runData.LastOffset == 0 && runData.LastLine == 0

	switch {
	case tagOpts.Rewind || rotated:
		if err := rd.Seek(0); err != nil {
			res.State = StateError
			res.Severity = opts.MissingSeverity
			res.Err = err
			return res
		}
		res.State = StateRewound
	case tagOpts.FastForward && isFreshRun:
		end, err := rd.SeekToEnd()
		if err != nil {
			res.State = StateError
			res.Severity = opts.MissingSeverity
			res.Err = err
			return res
		}
		runData.Advance(end, runData.LastLine)
		res.State = StateFastForward
	default:
		if err := rd.Seek(runData.LastOffset); err != nil {
			res.State = StateError
			res.Severity = opts.MissingSeverity
			res.Err = err
			return res
		}
		res.State = StateResumed
	}

	lineNumber := runData.LastLine
	if rotated || tagOpts.Rewind {
		lineNumber = 0
	}
	if res.State == StateFastForward {
		lineNumber = 0
	}

	res.State = StateScanning

	if stopped := scanRange(rd, declaredPath, t, tagOpts, runData, lineNumber, &res, ctx, opts.DispatchTimeout, opts.Exclude); stopped {
		res.State = StateStopped
	} else {
		res.State = StateEOF
	}

	res.Severity = runData.Severity(tagOpts, false)
	runData.Finalize(opts.Now)
	return res
}

// scanRange reads rd from its current position through EOF (or the tag's
// stopat), classifying and dispatching matches into res, and returns true
// if it stopped early because stopat was reached rather than running out of
// input. Lines matching opts' exclude regex are skipped before
// classification but still advance last_offset/last_line, per spec §4.H.5.
func scanRange(rd *reader.Reader, declaredPath string, t TagSpec, tagOpts rundata.Options, runData *rundata.RunData, startLine uint64, res *TagResult, ctx context.Context, dispatchTimeout time.Duration, exclude *regexp.Regexp) bool {
	lineNumber := startLine

	for {
		if rundata.StopReached(lineNumber, tagOpts) {
			return true
		}

		line, _, err := rd.ReadLine()
		if err != nil {
			return false
		}
		lineNumber++
		res.LinesScanned++
		runData.Advance(rd.Offset(), lineNumber)

		if exclude != nil && exclude.Match(line) {
			continue
		}

		classifyLine := line
		if tagOpts.Truncate < uint64(len(line)) {
			classifyLine = line[:tagOpts.Truncate]
		}

		match, ok := t.Patterns.Classify(classifyLine)
		if !ok {
			continue
		}
		res.MatchedLines++

		dispatch := runData.Observe(match.Severity, tagOpts)

		if t.Gate != nil && dispatch {
			dispatch = t.Gate.Allows(pattern.GateActivation{
				CriticalCount: runData.Counters.Critical,
				WarningCount:  runData.Counters.Warning,
				OkCount:       runData.Counters.Ok,
				ExecCount:     runData.Counters.Exec,
				Severity:      match.Severity.String(),
			})
		}

		if tagOpts.KeepOutput {
			res.Output = append(res.Output, string(line))
		}

		if dispatch && t.Dispatcher != nil {
			v := callback.NewVariables(declaredPath, t.Name, string(line), lineNumber, matchedRegexSource(match), match.Severity.String(), t.ConfigFile, runData.Counters.Ok, runData.Counters.Warning, runData.Counters.Critical)
			v.SetCaptures(match.NumberedCaps, match.Captures)

			if t.GeoEnricher != nil && t.GeoIPCapture != "" {
				if ip, ok := match.Captures[t.GeoIPCapture]; ok {
					country, city := t.GeoEnricher.Lookup(ip)
					v.SetGeo(country, city)
				}
			}
			if t.UserAgentEnricher != nil && t.UserAgentCapture != "" {
				if ua, ok := match.Captures[t.UserAgentCapture]; ok {
					family, os_, device := t.UserAgentEnricher.Parse(ua)
					v.SetUserAgent(family, os_, device)
				}
			}

			dispatchCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
			_, err := t.Dispatcher.Dispatch(dispatchCtx, v)
			cancel()
			if err != nil {
				log.Warning("Callback dispatch failed for tag %s: %s", t.Name, err)
			} else {
				runData.ExecDispatched()
				res.DispatchCount++
			}
		}
	}
}

func matchedRegexSource(m pattern.Match) string {
	if m.Regex == nil {
		return ""
	}
	return m.Regex.String()
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i+1:]
		}
	}
	return ""
}
