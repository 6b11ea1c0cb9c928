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

// Package snapshot persists per-(logfile,tag) RunData across runs, the way
// the teacher's own registrar package persists per-file offsets - but as a
// single load-then-save document suited to a one-shot, cron-invoked process
// rather than a long-running daemon's background writer goroutine.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"clf/clf-lib/rundata"
	"clf/clf-lib/signature"

	"github.com/gofrs/flock"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gopkg.in/op/go-logging.v1"
)

var log = logging.MustGetLogger("snapshot")

// LogfileEntry is the persisted record for one logfile, keyed by canonical
// path in the on-disk document
type LogfileEntry struct {
	ID      LogfileID                      `json:"id"`
	RunData map[string]*rundata.RunData    `json:"run_data"`
}

// LogfileID mirrors the spec's LogfileID: the primary key metadata stored
// alongside a logfile's RunData
type LogfileID struct {
	DeclaredPath  string              `json:"declared_path"`
	CanonicalPath string              `json:"canonical_path"`
	Directory     string              `json:"directory"`
	Extension     string              `json:"extension"`
	Compression   string              `json:"compression"`
	Signature     signature.Signature `json:"signature"`
}

// document is the on-disk JSON shape: {"snapshot": {canonical_path: entry}}
type document struct {
	Snapshot map[string]*LogfileEntry `json:"snapshot"`
}

// Snapshot is the in-memory, mutable view of the persisted document for the
// duration of one run
type Snapshot struct {
	path    string
	lock    *flock.Flock
	locked  bool
	entries map[string]*LogfileEntry
}

// Load reads path, returning an empty Snapshot if it does not exist. The
// snapshot file is flock'd for the lifetime of the returned Snapshot (through
// Save or Discard) so two concurrent clf invocations against the same
// --snapshot path cannot interleave writes - a guarantee the teacher's
// long-running Registrar gets for free from being single-process, and that a
// cron-invoked binary must take explicitly.
func Load(path string) (*Snapshot, error) {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("snapshot: lock %s: %w", path, err)
	}

	s := &Snapshot{
		path:    path,
		lock:    lock,
		locked:  true,
		entries: make(map[string]*LogfileEntry),
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("No previous snapshot at %s, starting fresh", path)
			return s, nil
		}
		s.unlock()
		return nil, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer f.Close()

	var doc document
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		s.unlock()
		return nil, fmt.Errorf("snapshot: decode %s: %w", path, err)
	}

	if doc.Snapshot != nil {
		s.entries = doc.Snapshot
	}

	return s, nil
}

func (s *Snapshot) unlock() {
	if s.locked {
		s.lock.Unlock()
		s.locked = false
	}
}

// Get returns the entry for canonicalPath, or nil if unknown
func (s *Snapshot) Get(canonicalPath string) *LogfileEntry {
	return s.entries[canonicalPath]
}

// Put stores (or replaces) the entry for canonicalPath
func (s *Snapshot) Put(canonicalPath string, entry *LogfileEntry) {
	s.entries[canonicalPath] = entry
}

// EnsureTag returns the RunData for (canonicalPath, tag), creating both the
// entry and the tag's RunData with the given fresh-start values if absent
func EnsureTag(entry *LogfileEntry, tag string, freshOffset int64, freshLine uint64) *rundata.RunData {
	if entry.RunData == nil {
		entry.RunData = make(map[string]*rundata.RunData)
	}
	rd, ok := entry.RunData[tag]
	if !ok {
		rd = rundata.New(freshOffset, freshLine)
		entry.RunData[tag] = rd
	}
	return rd
}

// GC drops any RunData entries whose LastRunSecs predates now-retention,
// leaving logfile entries with no remaining tags out of the written document
// entirely. retention <= 0 disables GC.
func (s *Snapshot) GC(now time.Time, retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := now.Add(-retention).Unix()

	for path, entry := range s.entries {
		for tag, rd := range entry.RunData {
			if rd.LastRunSecs < cutoff {
				log.Debug("Retention GC dropping %s tag %s (last run %s ago)", path, tag, now.Sub(time.Unix(rd.LastRunSecs, 0)))
				delete(entry.RunData, tag)
			}
		}
		if len(entry.RunData) == 0 {
			delete(s.entries, path)
		}
	}
}

// Save prunes by retention, then writes the document atomically: encode to
// "<path>.tmp", then rename over path. os.Rename is atomic on POSIX and on
// NTFS for a same-volume destination, so a crash between the two never
// leaves a partial snapshot file - only the old or the new complete content.
// Logfile paths are pulled and sorted via golang.org/x/exp/maps and
// golang.org/x/exp/slices (both already in the teacher's go.mod) before
// building the map handed to the encoder; encoding/json itself writes map
// keys in sorted order, so the output order is deterministic. GC walks the
// entries in Go's unspecified map order.
func (s *Snapshot) Save(now time.Time, retention time.Duration) (err error) {
	defer s.unlock()

	s.GC(now, retention)

	tmpPath := s.path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("snapshot: create %s: %w", tmpPath, err)
	}

	if err := s.encode(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("snapshot: encode: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("snapshot: sync %s: %w", tmpPath, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("snapshot: close %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("snapshot: rename %s -> %s: %w", tmpPath, s.path, err)
	}

	log.Debug("Written snapshot to %s", s.path)
	return nil
}

func (s *Snapshot) encode(f *os.File) error {
	paths := maps.Keys(s.entries)
	slices.Sort(paths)

	ordered := make(map[string]*LogfileEntry, len(s.entries))
	for _, p := range paths {
		ordered[p] = s.entries[p]
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(document{Snapshot: ordered})
}

// Discard releases the snapshot lock without writing - used by
// --delete-snapshot and error paths that must not persist partial state
func (s *Snapshot) Discard() {
	s.unlock()
}
