/*
 * Copyright 2012-2020 Jason Woods and contributors
 *
 * This file is a modification of code from Logstash Forwarder.
 * Copyright 2012-2013 Jordan Sissel and contributors.
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

package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.json")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer s.Discard()

	if s.Get("/var/log/app.log") != nil {
		t.Error("expected no entry for unknown canonical path")
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.json")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	entry := &LogfileEntry{ID: LogfileID{DeclaredPath: "/var/log/app.log", CanonicalPath: "/var/log/app.log"}}
	rd := EnsureTag(entry, "errors", 0, 0)
	rd.Advance(128, 4)
	s.Put("/var/log/app.log", entry)

	if err := s.Save(time.Unix(1000, 0), 0); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected snapshot file to exist: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("expected .tmp file to be renamed away, not left behind")
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	defer reloaded.Discard()

	got := reloaded.Get("/var/log/app.log")
	if got == nil {
		t.Fatal("expected reloaded entry to exist")
	}
	gotRD := got.RunData["errors"]
	if gotRD == nil {
		t.Fatal("expected reloaded RunData for tag errors")
	}
	if gotRD.LastOffset != 128 || gotRD.LastLine != 4 {
		t.Errorf("RunData = %+v, want LastOffset=128 LastLine=4", gotRD)
	}
}

func TestEnsureTagCreatesOnceAndReusesAfter(t *testing.T) {
	entry := &LogfileEntry{}
	rd1 := EnsureTag(entry, "errors", 10, 1)
	rd1.Advance(50, 3)

	rd2 := EnsureTag(entry, "errors", 999, 999)
	if rd2 != rd1 {
		t.Error("expected EnsureTag to return the same RunData on second call")
	}
	if rd2.LastOffset != 50 {
		t.Errorf("LastOffset = %d, want 50 (should not be reset by second EnsureTag call)", rd2.LastOffset)
	}
}

func TestGCDropsStaleTagsAndEmptyEntries(t *testing.T) {
	s := &Snapshot{entries: make(map[string]*LogfileEntry)}

	entry := &LogfileEntry{}
	stale := EnsureTag(entry, "old-tag", 0, 0)
	stale.LastRunSecs = time.Unix(0, 0).Unix()
	fresh := EnsureTag(entry, "fresh-tag", 0, 0)
	fresh.LastRunSecs = time.Unix(2000, 0).Unix()
	s.entries["/var/log/app.log"] = entry

	s.GC(time.Unix(2000, 0), time.Second)

	if _, ok := entry.RunData["old-tag"]; ok {
		t.Error("expected stale tag to be GC'd")
	}
	if _, ok := entry.RunData["fresh-tag"]; !ok {
		t.Error("expected fresh tag to survive GC")
	}
}

func TestGCRemovesEntryWithNoRemainingTags(t *testing.T) {
	s := &Snapshot{entries: make(map[string]*LogfileEntry)}

	entry := &LogfileEntry{}
	stale := EnsureTag(entry, "only-tag", 0, 0)
	stale.LastRunSecs = time.Unix(0, 0).Unix()
	s.entries["/var/log/app.log"] = entry

	s.GC(time.Unix(10000, 0), time.Second)

	if _, ok := s.entries["/var/log/app.log"]; ok {
		t.Error("expected logfile entry with no remaining tags to be dropped")
	}
}

func TestGCDisabledWhenRetentionNonPositive(t *testing.T) {
	s := &Snapshot{entries: make(map[string]*LogfileEntry)}
	entry := &LogfileEntry{}
	stale := EnsureTag(entry, "old-tag", 0, 0)
	stale.LastRunSecs = time.Unix(0, 0).Unix()
	s.entries["/var/log/app.log"] = entry

	s.GC(time.Unix(100000, 0), 0)

	if _, ok := entry.RunData["old-tag"]; !ok {
		t.Error("expected GC to be a no-op when retention <= 0")
	}
}
