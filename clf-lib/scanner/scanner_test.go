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

package scanner

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"clf/clf-lib/callback"
	"clf/clf-lib/compression"
	"clf/clf-lib/nagios"
	"clf/clf-lib/pattern"
	"clf/clf-lib/rundata"
	"clf/clf-lib/snapshot"
)

type fakeDispatcher struct {
	calls    int
	lastVars map[string]string
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, v *callback.Variables) (string, error) {
	f.calls++
	f.lastVars = v.Map()
	return "", nil
}

func (f *fakeDispatcher) Close() {}

func writeLog(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "app.log")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func newSnapshot(t *testing.T, dir string) *snapshot.Snapshot {
	t.Helper()
	snap, err := snapshot.Load(filepath.Join(dir, "snap.json"))
	if err != nil {
		t.Fatalf("snapshot.Load: %v", err)
	}
	return snap
}

func criticalTagSpec(t *testing.T, name string, dispatcher callback.Dispatcher) TagSpec {
	t.Helper()
	critical, err := pattern.CompileGroup([]string{"ERROR"}, nil)
	if err != nil {
		t.Fatalf("CompileGroup: %v", err)
	}
	opts := rundata.DefaultOptions()
	opts.RunCallback = dispatcher != nil
	opts.CriticalThreshold = 0
	return TagSpec{
		Name:       name,
		Patterns:   &pattern.Set{Critical: critical},
		Options:    opts,
		Dispatcher: dispatcher,
	}
}

func TestScanFreshRunClassifiesAndDispatches(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "all fine\nERROR disk full\nall fine again\n")
	snap := newSnapshot(t, dir)
	defer snap.Discard()

	disp := &fakeDispatcher{}
	tag := criticalTagSpec(t, "errors", disp)

	results := Scan(context.Background(), path, path, []TagSpec{tag}, snap, DefaultOptions())
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]

	if r.Severity != nagios.Critical {
		t.Errorf("Severity = %v, want Critical", r.Severity)
	}
	if r.LinesScanned != 3 {
		t.Errorf("LinesScanned = %d, want 3", r.LinesScanned)
	}
	if r.MatchedLines != 1 {
		t.Errorf("MatchedLines = %d, want 1", r.MatchedLines)
	}
	if r.DispatchCount != 1 || disp.calls != 1 {
		t.Errorf("DispatchCount = %d, disp.calls = %d, want 1/1", r.DispatchCount, disp.calls)
	}
	if disp.lastVars["CLF_LINE"] != "ERROR disk full" {
		t.Errorf("CLF_LINE = %q", disp.lastVars["CLF_LINE"])
	}
}

func TestScanResumesFromPersistedOffset(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "ERROR first\n")
	snap := newSnapshot(t, dir)
	defer snap.Discard()

	tag := criticalTagSpec(t, "errors", nil)
	Scan(context.Background(), path, path, []TagSpec{tag}, snap, DefaultOptions())

	if err := os.WriteFile(path, []byte("ERROR first\nERROR second\n"), 0644); err != nil {
		t.Fatalf("append: %v", err)
	}

	results := Scan(context.Background(), path, path, []TagSpec{tag}, snap, DefaultOptions())
	r := results[0]
	if r.LinesScanned != 1 {
		t.Errorf("LinesScanned = %d, want 1 (only the newly appended line)", r.LinesScanned)
	}
	if r.State != StateEOF {
		t.Errorf("State = %v, want %v", r.State, StateEOF)
	}
}

func TestScanRewindReprocessesFromStart(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "ERROR first\n")
	snap := newSnapshot(t, dir)
	defer snap.Discard()

	tag := criticalTagSpec(t, "errors", nil)
	Scan(context.Background(), path, path, []TagSpec{tag}, snap, DefaultOptions())

	if err := os.WriteFile(path, []byte("ERROR first\nERROR second\n"), 0644); err != nil {
		t.Fatalf("append: %v", err)
	}

	tag.Options.Rewind = true
	results := Scan(context.Background(), path, path, []TagSpec{tag}, snap, DefaultOptions())
	r := results[0]
	if r.LinesScanned != 2 {
		t.Errorf("LinesScanned = %d, want 2 (rewind reprocesses everything)", r.LinesScanned)
	}
}

func TestScanFastForwardSkipsExistingBacklogOnFreshRun(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "ERROR pre-existing\nERROR also pre-existing\n")
	snap := newSnapshot(t, dir)
	defer snap.Discard()

	tag := criticalTagSpec(t, "errors", nil)
	tag.Options.FastForward = true

	results := Scan(context.Background(), path, path, []TagSpec{tag}, snap, DefaultOptions())
	r := results[0]
	if r.State != StateEOF {
		t.Errorf("State = %v, want %v", r.State, StateEOF)
	}
	if r.LinesScanned != 0 {
		t.Errorf("LinesScanned = %d, want 0 (fastforward skips the pre-existing backlog)", r.LinesScanned)
	}
}

func TestScanRotationScansPredecessorSuffixThenLiveFileFromZero(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "ERROR first run line\n")
	snap := newSnapshot(t, dir)
	defer snap.Discard()

	tag := criticalTagSpec(t, "errors", nil)
	opts := DefaultOptions()
	opts.ArchiveExtension = ".1"

	Scan(context.Background(), path, path, []TagSpec{tag}, snap, opts)

	// A second line lands in the old file after the last run but before the
	// rotator moves it aside - this is exactly the content a naive
	// restart-from-zero would lose.
	if err := os.WriteFile(path, []byte("ERROR first run line\nERROR written before rotation\n"), 0644); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := os.Rename(path, path+".1"); err != nil {
		t.Fatalf("rename to archive: %v", err)
	}
	writeLog(t, dir, "ERROR live after rotation\n")

	results := Scan(context.Background(), path, path, []TagSpec{tag}, snap, opts)
	r := results[0]
	if r.State != StateEOF {
		t.Errorf("State = %v, want %v", r.State, StateEOF)
	}
	if r.LinesScanned != 2 {
		t.Errorf("LinesScanned = %d, want 2 (1 unscanned line from the archive + 1 from the live file)", r.LinesScanned)
	}
	if r.MatchedLines != 2 {
		t.Errorf("MatchedLines = %d, want 2", r.MatchedLines)
	}
}

func TestScanRotationWithoutPredecessorRestartsLiveFileFromZero(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "ERROR old file line\n")
	snap := newSnapshot(t, dir)
	defer snap.Discard()

	tag := criticalTagSpec(t, "errors", nil)
	Scan(context.Background(), path, path, []TagSpec{tag}, snap, DefaultOptions())

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	writeLog(t, dir, "ERROR new file after rotation\n")

	results := Scan(context.Background(), path, path, []TagSpec{tag}, snap, DefaultOptions())
	r := results[0]
	if r.State != StateEOF {
		t.Errorf("State = %v, want %v", r.State, StateEOF)
	}
	if r.LinesScanned != 1 {
		t.Errorf("LinesScanned = %d, want 1 (no archive.extension configured, falls back to the live file from 0)", r.LinesScanned)
	}
}

func TestScanExcludeSkipsClassificationButAdvancesLine(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "ERROR noisy heartbeat\nERROR real failure\n")
	snap := newSnapshot(t, dir)
	defer snap.Discard()

	tag := criticalTagSpec(t, "errors", nil)
	opts := DefaultOptions()
	opts.Exclude = regexp.MustCompile("heartbeat")

	results := Scan(context.Background(), path, path, []TagSpec{tag}, snap, opts)
	r := results[0]
	if r.LinesScanned != 2 {
		t.Errorf("LinesScanned = %d, want 2 (the excluded line still advances last_line)", r.LinesScanned)
	}
	if r.MatchedLines != 1 {
		t.Errorf("MatchedLines = %d, want 1 (the excluded line is never classified)", r.MatchedLines)
	}
}

func TestScanTruncateLimitsClassificationToConfiguredBytes(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "ERROR and then it will explode\n")
	snap := newSnapshot(t, dir)
	defer snap.Discard()

	critical, err := pattern.CompileGroup([]string{"ERROR.*explode"}, nil)
	if err != nil {
		t.Fatalf("CompileGroup: %v", err)
	}
	opts := rundata.DefaultOptions()
	opts.Truncate = 5

	tag := TagSpec{
		Name:     "errors",
		Patterns: &pattern.Set{Critical: critical},
		Options:  opts,
	}

	results := Scan(context.Background(), path, path, []TagSpec{tag}, snap, DefaultOptions())
	r := results[0]
	if r.LinesScanned != 1 {
		t.Errorf("LinesScanned = %d, want 1", r.LinesScanned)
	}
	if r.MatchedLines != 0 {
		t.Errorf("MatchedLines = %d, want 0 ('explode' never reaches classification once truncated to 5 bytes)", r.MatchedLines)
	}
}

func TestScanStopsAtConfiguredLine(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "ERROR one\nERROR two\nERROR three\n")
	snap := newSnapshot(t, dir)
	defer snap.Discard()

	tag := criticalTagSpec(t, "errors", nil)
	tag.Options.StopAt = 1

	results := Scan(context.Background(), path, path, []TagSpec{tag}, snap, DefaultOptions())
	r := results[0]
	if r.State != StateStopped {
		t.Errorf("State = %v, want %v", r.State, StateStopped)
	}
	if r.LinesScanned != 2 {
		t.Errorf("LinesScanned = %d, want 2 (line 2 is the first past stopat=1 and is scanned before the loop stops)", r.LinesScanned)
	}
}

func TestScanKeepOutputCollectsMatchedLines(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "fine\nERROR boom\n")
	snap := newSnapshot(t, dir)
	defer snap.Discard()

	tag := criticalTagSpec(t, "errors", nil)
	tag.Options.KeepOutput = true

	results := Scan(context.Background(), path, path, []TagSpec{tag}, snap, DefaultOptions())
	r := results[0]
	if len(r.Output) != 1 || r.Output[0] != "ERROR boom" {
		t.Errorf("Output = %v, want [\"ERROR boom\"]", r.Output)
	}
}

func TestScanMissingFileReportsUnknownForEveryTag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.log")
	snap := newSnapshot(t, dir)
	defer snap.Discard()

	tag := criticalTagSpec(t, "errors", nil)
	results := Scan(context.Background(), path, path, []TagSpec{tag}, snap, DefaultOptions())

	if results[0].Severity != nagios.Unknown {
		t.Errorf("Severity = %v, want Unknown", results[0].Severity)
	}
	if results[0].Err == nil {
		t.Error("expected a non-nil Err for a missing file")
	}
}

func TestScanMissingFileUsesConfiguredMissingSeverity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.log")
	snap := newSnapshot(t, dir)
	defer snap.Discard()

	tag := criticalTagSpec(t, "errors", nil)
	opts := DefaultOptions()
	opts.MissingSeverity = nagios.Critical

	results := Scan(context.Background(), path, path, []TagSpec{tag}, snap, opts)
	if results[0].Severity != nagios.Critical {
		t.Errorf("Severity = %v, want Critical", results[0].Severity)
	}
}

func TestScanOptionsCompressionDefaultsToPlain(t *testing.T) {
	opts := DefaultOptions()
	if opts.Compression != compression.Plain {
		t.Errorf("Compression = %v, want Plain", opts.Compression)
	}
	if !opts.Now.IsZero() {
		t.Error("DefaultOptions().Now should be the zero time; callers set it explicitly per run")
	}
}
