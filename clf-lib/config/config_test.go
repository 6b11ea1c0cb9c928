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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clf/clf-lib/nagios"
)

const sampleConfig = `
global:
  snapshot_retention: 3600000000000
  user_vars:
    env: prod

searches:
  - logfile:
      logfile: /var/log/app.log
      exclude: "DEBUG"
      archive:
        dir: /var/log/archive
        extension: ".1"
      logfilemissing: warning
      hash_window: 2048
    tags:
      - name: errors
        options:
          runcallback: true
          criticalthreshold: 2
        critical:
          regex:
            - "ERROR"
          exceptions:
            - "ERROR: benign"
        callback:
          path: /usr/local/bin/notify.sh

  - logfile: "/var/log/*.log"
    tags:
      - name: scalarform
        ok:
          regex:
            - "OK"
`

func TestDecodeScalarAndMappingLogfileForms(t *testing.T) {
	cfg, err := Decode(strings.NewReader(sampleConfig))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(cfg.Searches) != 2 {
		t.Fatalf("len(Searches) = %d, want 2", len(cfg.Searches))
	}

	first := cfg.Searches[0]
	if first.Logfile.Path != "/var/log/app.log" || first.Logfile.Format != "plain" {
		t.Errorf("first logfile = %+v", first.Logfile)
	}
	if first.Logfile.Exclude != "DEBUG" {
		t.Errorf("exclude = %q, want DEBUG", first.Logfile.Exclude)
	}
	if first.Logfile.Archive.Dir != "/var/log/archive" || first.Logfile.Archive.Extension != ".1" {
		t.Errorf("archive = %+v", first.Logfile.Archive)
	}
	if first.Logfile.HashWindow != 2048 {
		t.Errorf("hash_window = %d, want 2048", first.Logfile.HashWindow)
	}
	if sev, err := first.Logfile.MissingSeverity(); err != nil || sev != nagios.Warning {
		t.Errorf("MissingSeverity() = (%v, %v), want (Warning, nil)", sev, err)
	}
	if len(first.Tags) != 1 || first.Tags[0].Name != "errors" {
		t.Fatalf("tags = %+v", first.Tags)
	}
	if first.Tags[0].Options.CriticalThreshold == nil || *first.Tags[0].Options.CriticalThreshold != 2 {
		t.Errorf("criticalthreshold = %v", first.Tags[0].Options.CriticalThreshold)
	}
	if first.Tags[0].Callback == nil || first.Tags[0].Callback.Path != "/usr/local/bin/notify.sh" {
		t.Errorf("callback = %+v", first.Tags[0].Callback)
	}

	second := cfg.Searches[1]
	if second.Logfile.Path != "/var/log/*.log" {
		t.Errorf("second logfile path = %q", second.Logfile.Path)
	}

	if cfg.Global.UserVars["env"] != "prod" {
		t.Errorf("user_vars[env] = %q, want prod", cfg.Global.UserVars["env"])
	}
}

func TestDecodeRejectsSearchWithoutTags(t *testing.T) {
	_, err := Decode(strings.NewReader("searches:\n  - logfile: /var/log/a.log\n"))
	if err == nil {
		t.Fatal("expected error for search with no tags")
	}
}

func TestLogfileDefResolveGlob(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.log", "b.log", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	l := LogfileDef{Path: filepath.Join(dir, "*.log")}
	matches, err := l.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %v, want 2 entries", matches)
	}
}

func TestLogfileDefMissingSeverityDefaultsToUnknown(t *testing.T) {
	var l LogfileDef
	sev, err := l.MissingSeverity()
	if err != nil {
		t.Fatalf("MissingSeverity: %v", err)
	}
	if sev != nagios.Unknown {
		t.Errorf("MissingSeverity() = %v, want Unknown", sev)
	}
}

func TestLogfileDefMissingSeverityRejectsBadValue(t *testing.T) {
	l := LogfileDef{LogfileMissing: "disastrous"}
	if _, err := l.MissingSeverity(); err == nil {
		t.Error("expected error for invalid logfilemissing value")
	}
}

func TestGlobalSetDefaults(t *testing.T) {
	var g Global
	g.setDefaults()
	if g.SnapshotFile == "" {
		t.Error("SnapshotFile should have a default")
	}
	if g.SnapshotRetention != DefaultSnapshotRetention {
		t.Errorf("SnapshotRetention = %v, want %v", g.SnapshotRetention, DefaultSnapshotRetention)
	}
}
