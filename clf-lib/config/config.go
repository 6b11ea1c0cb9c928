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

// Package config loads and resolves the YAML search configuration: global
// options, per-search logfile definitions (plain path, glob, or command
// list), and the ordered tags each search is classified against. Structure
// is grounded on original_source/crates/config/src/config.rs; the loader
// itself follows the teacher's own config package's layering (Validate-style
// defaults, a distinct General/Search split) adapted to gopkg.in/yaml.v2
// instead of the teacher's in-house JSON-with-comments format, since the
// spec's configuration surface is YAML.
package config

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/op/go-logging.v1"
	"gopkg.in/yaml.v2"

	"clf/clf-lib/nagios"
)

var log = logging.MustGetLogger("config")

// DefaultSnapshotRetention mirrors the original's DEFAULT_RETENTION: 7 days
const DefaultSnapshotRetention = 7 * 86400 * time.Second

// Global holds the options that apply to every search unless overridden
type Global struct {
	Path              string            `yaml:"path"`
	OutputDir         string            `yaml:"output_dir"`
	SnapshotFile      string            `yaml:"snapshot_file"`
	SnapshotRetention time.Duration     `yaml:"snapshot_retention"`
	UserVars          map[string]string `yaml:"user_vars"`
	ScriptPath        string            `yaml:"script_path"`
	GeoIPDatabase     string            `yaml:"geoip_database"`
	UserAgentRules    string            `yaml:"useragent_rules"`
	AuditDB           string            `yaml:"audit_db"`
}

// setDefaults fills zero-valued fields with the same defaults the original
// GlobalOptions::default() computes
func (g *Global) setDefaults() {
	if g.Path == "" {
		if p := os.Getenv("PATH"); p != "" {
			g.Path = p
		} else {
			g.Path = "/usr/sbin:/usr/bin:/sbin:/bin"
		}
	}
	if g.OutputDir == "" {
		g.OutputDir = os.TempDir()
	}
	if g.SnapshotFile == "" {
		g.SnapshotFile = filepath.Join(os.TempDir(), "clf.snapshot")
	}
	if g.SnapshotRetention == 0 {
		g.SnapshotRetention = DefaultSnapshotRetention
	}
}

// PatternGroup is the raw YAML shape for one of a tag's three severity
// groups: an ordered regex list plus an ordered exception list
type PatternGroup struct {
	Regexes    []string `yaml:"regex"`
	Exceptions []string `yaml:"exceptions"`
}

// RawOptions is the YAML shape of a tag's "options" mapping; every field is
// a pointer so an absent key is distinguishable from an explicit false/0,
// letting merge-with-global-defaults work without losing "unset" information
type RawOptions struct {
	RunCallback       *bool   `yaml:"runcallback"`
	KeepOutput        *bool   `yaml:"keepoutput"`
	Rewind            *bool   `yaml:"rewind"`
	FastForward       *bool   `yaml:"fastforward"`
	RunIfOk           *bool   `yaml:"runifok"`
	SaveThresholds    *bool   `yaml:"savethresholdcount"`
	Protocol          *string `yaml:"protocol"`
	CriticalThreshold *uint64 `yaml:"criticalthreshold"`
	WarningThreshold  *uint64 `yaml:"warningthreshold"`
	RunLimit          *uint64 `yaml:"runlimit"`
	Truncate          *uint64 `yaml:"truncate"`
	StopAt            *uint64 `yaml:"stopat"`
	Gate              *string `yaml:"gate"`
	GeoIPCapture      *string `yaml:"geoip_capture"`
	UserAgentCapture  *string `yaml:"useragent_capture"`
}

// CallbackDef is the raw YAML shape of a tag's callback target
type CallbackDef struct {
	Path     string   `yaml:"path"`
	Args     []string `yaml:"args"`
	Address  string   `yaml:"address"`
	Protocol string   `yaml:"protocol"`
}

// Tag is one named classification rule within a search
type Tag struct {
	Name     string        `yaml:"name"`
	Process  *bool         `yaml:"process"`
	Options  RawOptions    `yaml:"options"`
	Callback *CallbackDef  `yaml:"callback"`
	Critical *PatternGroup `yaml:"critical"`
	Warning  *PatternGroup `yaml:"warning"`
	Ok       *PatternGroup `yaml:"ok"`
}

// ShouldProcess reports whether this tag is enabled, defaulting to true
func (t *Tag) ShouldProcess() bool {
	return t.Process == nil || *t.Process
}

// ArchiveDef names where a logfile's rotated predecessor is found: a
// directory to search (falling back to the logfile's own directory when
// unset) and the extension its rotator appends to the base name.
type ArchiveDef struct {
	Dir       string `yaml:"dir"`
	Extension string `yaml:"extension"`
}

// LogfileDef is the raw YAML shape of a search's logfile source: either a
// bare string path/glob, or a mapping with the keys below ("logfile" for a
// path/glob, or "cmd"/"args" for a command listing paths). Both forms
// marshal into this struct via custom UnmarshalYAML.
type LogfileDef struct {
	Path           string     `yaml:"logfile"`
	Format         string     `yaml:"format"`
	Command        string     `yaml:"cmd"`
	CommandArgs    []string   `yaml:"args"`
	Exclude        string     `yaml:"exclude"`
	Archive        ArchiveDef `yaml:"archive"`
	LogfileMissing string     `yaml:"logfilemissing"`
	HashWindow     int        `yaml:"hash_window"`
}

// UnmarshalYAML accepts either a bare scalar ("logfile: /var/log/x.log",
// resolved per the spec's Open Question as {path: X, format: plain}) or a
// full mapping, matching original_source's LogSource enum's two serde
// variants (LogFile / LogList) collapsed into one struct.
func (l *LogfileDef) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var scalar string
	if err := unmarshal(&scalar); err == nil {
		l.Path = scalar
		l.Format = "plain"
		return nil
	}

	type plain LogfileDef
	var p plain
	if err := unmarshal(&p); err != nil {
		return err
	}
	*l = LogfileDef(p)
	if l.Format == "" {
		l.Format = "plain"
	}
	return nil
}

// IsCommand reports whether this definition resolves paths by running a
// command rather than reading a direct path/glob
func (l *LogfileDef) IsCommand() bool {
	return l.Command != ""
}

// MissingSeverity parses the configured logfilemissing value, defaulting to
// Unknown when unset so a logfile with no explicit policy behaves the way
// it always has.
func (l *LogfileDef) MissingSeverity() (nagios.Severity, error) {
	return nagios.ParseSeverity(l.LogfileMissing)
}

// Resolve expands a LogfileDef into the concrete file paths it names: a
// direct path, a doublestar glob (supporting "**" recursive matching, a
// strict superset of the plain glob the spec requires), or the output lines
// of a configured command.
func (l *LogfileDef) Resolve() ([]string, error) {
	if l.IsCommand() {
		return l.resolveCommand()
	}
	if strings.ContainsAny(l.Path, "*?[") {
		matches, err := doublestar.FilepathGlob(l.Path)
		if err != nil {
			return nil, fmt.Errorf("config: glob %q: %w", l.Path, err)
		}
		return matches, nil
	}
	return []string{l.Path}, nil
}

func (l *LogfileDef) resolveCommand() ([]string, error) {
	cmd := exec.Command(l.Command, l.CommandArgs...)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("config: loglist command %q: %w", l.Command, err)
	}
	var paths []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// Search is one top-level entry in the "searches" list: a logfile source
// plus the ordered tags to classify against
type Search struct {
	Logfile LogfileDef
	Tags    []Tag `yaml:"tags"`
}

// UnmarshalYAML decodes the value under the search's "logfile" key through
// LogfileDef's own scalar-or-mapping UnmarshalYAML, alongside the ordered
// "tags" list.
func (s *Search) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var aux struct {
		Logfile LogfileDef `yaml:"logfile"`
		Tags    []Tag      `yaml:"tags"`
	}
	if err := unmarshal(&aux); err != nil {
		return fmt.Errorf("config: logfile source: %w", err)
	}

	s.Logfile = aux.Logfile
	s.Tags = aux.Tags
	return nil
}

// Config is the root document loaded from the YAML configuration file
type Config struct {
	Global   Global   `yaml:"global"`
	Searches []Search `yaml:"searches"`
}

// Load reads and parses the YAML configuration at path, applying Global
// defaults and checking structural completeness only; patterns are compiled
// (and so validated) when the run configuration is built from the result,
// not here.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode parses a YAML document from r, for --syntax-check and tests that
// don't want to touch the filesystem
func Decode(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	cfg.Global.setDefaults()

	for i := range cfg.Searches {
		if len(cfg.Searches[i].Tags) == 0 {
			return nil, fmt.Errorf("config: search %d: at least one tag is required", i)
		}
		for j, tag := range cfg.Searches[i].Tags {
			if tag.Name == "" {
				return nil, fmt.Errorf("config: search %d tag %d: name is required", i, j)
			}
		}
	}

	log.Debug("Loaded configuration with %d search(es)", len(cfg.Searches))
	return &cfg, nil
}
