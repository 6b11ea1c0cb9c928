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

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"clf/clf-lib/nagios"
	"clf/clf-lib/runner"
	"clf/clf-lib/scanner"
	"clf/clf-lib/snapshot"
)

func removeSnapshotFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	os.Remove(path + ".lock")
	return nil
}

// execute resolves every search's logfile(s), scans each against its tags,
// aggregates the results and prints the Nagios summary, returning the exit
// code the process should use.
func (c *clf) execute() int {
	if c.deleteSnapshot {
		return c.runDeleteSnapshot()
	}

	snap, err := snapshot.Load(c.config.raw.Global.SnapshotFile)
	if err != nil {
		log.Error("Cannot load snapshot: %s", err)
		fmt.Println("CLF UNKNOWN - cannot load snapshot file")
		return 3
	}

	ctx := context.Background()
	now := time.Now()

	var logfiles []runner.LogfileResult

	for _, search := range c.config.searches {
		paths, err := search.logfile.Resolve()
		if err != nil {
			log.Warning("Cannot resolve logfile %s: %s", search.logfile.Path, err)
			logfiles = append(logfiles, runner.LogfileResult{
				DeclaredPath: search.logfile.Path,
				Missing:      true,
				Severity:     search.missingSeverity,
				Err:          err,
			})
			continue
		}

		for _, path := range paths {
			canonical, err := filepath.Abs(path)
			if err != nil {
				canonical = path
			}

			if _, statErr := os.Stat(canonical); statErr != nil && os.IsNotExist(statErr) {
				log.Warning("Logfile %s does not exist, reporting as %s per logfilemissing", canonical, search.missingSeverity)
				logfiles = append(logfiles, runner.LogfileResult{
					DeclaredPath:  path,
					CanonicalPath: canonical,
					Missing:       true,
					Severity:      search.missingSeverity,
					Err:           statErr,
				})
				continue
			}

			opts := scanner.DefaultOptions()
			opts.Compression = compressionKindFor(canonical)
			opts.Now = now
			opts.Exclude = search.exclude
			opts.ArchiveDir = search.logfile.Archive.Dir
			opts.ArchiveExtension = search.logfile.Archive.Extension
			opts.MissingSeverity = search.missingSeverity
			if search.logfile.HashWindow > 0 {
				opts.HashWindow = search.logfile.HashWindow
			}

			results := scanner.Scan(ctx, path, canonical, search.tags, snap, opts)
			logfiles = append(logfiles, runner.LogfileResult{
				DeclaredPath:  path,
				CanonicalPath: canonical,
				Tags:          results,
			})
		}
	}

	report := runner.Aggregate(logfiles)

	if err := snap.Save(now, c.config.raw.Global.SnapshotRetention); err != nil {
		log.Error("Cannot save snapshot: %s", err)
		report.Severity = nagios.Unknown
	}

	if c.auditDBPath != "" {
		if err := c.recordAudit(ctx, now, report); err != nil {
			log.Warning("Audit trail write failed: %s", err)
		}
	}

	color := false
	if fi, err := os.Stdout.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		color = true
	}
	fmt.Fprint(runner.Stdout(), report.Summary(color))
	return report.Severity.ExitCode()
}

func (c *clf) recordAudit(ctx context.Context, now time.Time, report runner.Report) error {
	trail, err := runner.OpenAuditTrail(ctx, c.auditDBPath)
	if err != nil {
		return err
	}
	defer trail.Close()
	return trail.RecordRun(ctx, c.configFile, now.Unix(), report)
}

func (c *clf) runDeleteSnapshot() int {
	path := c.config.raw.Global.SnapshotFile
	snap, err := snapshot.Load(path)
	if err != nil {
		log.Error("Cannot lock snapshot %s: %s", path, err)
		return 3
	}
	snap.Discard()

	if err := removeSnapshotFile(path); err != nil {
		log.Error("Cannot delete snapshot %s: %s", path, err)
		return 3
	}

	fmt.Printf("Deleted snapshot %s\n", path)
	return 0
}

// printOptions renders the fully-defaulted, resolved configuration for
// --show-options, so an operator can see what a tag's unset fields actually
// evaluate to (e.g. runlimit's u64::MAX-equivalent sentinel) without reading
// the rundata package's defaults by hand.
func (c *clf) printOptions() {
	fmt.Printf("Global:\n")
	fmt.Printf("  path: %s\n", c.config.raw.Global.Path)
	fmt.Printf("  snapshot_file: %s\n", c.config.raw.Global.SnapshotFile)
	fmt.Printf("  snapshot_retention: %s\n", c.config.raw.Global.SnapshotRetention)

	for _, search := range c.config.searches {
		fmt.Printf("Search %s:\n", search.logfile.Path)
		for _, tag := range search.tags {
			fmt.Printf("  tag %s: runcallback=%v critical_threshold=%d warning_threshold=%d runlimit=%d\n",
				tag.Name, tag.Options.RunCallback, tag.Options.CriticalThreshold, tag.Options.WarningThreshold, tag.Options.RunLimit)
		}
	}
}
