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
	"flag"
	"fmt"
	stdlog "log"
	"os"

	"gopkg.in/op/go-logging.v1"
)

// startUp parses command-line flags, mirroring the teacher's own
// logCourier.startUp: flag.*Var into struct fields, then flag.Parse, then a
// couple of early-exit special cases (here, a missing --config).
func (c *clf) startUp() {
	flag.StringVar(&c.configFile, "config", "", "The YAML configuration file to load")
	flag.StringVar(&c.snapshotFile, "snapshot", "", "Override the snapshot file path from the configuration")
	flag.StringVar(&c.logFile, "log", "", "Write log output to this file instead of stderr")
	flag.StringVar(&c.logLevel, "log-level", "Info", "Off, Error, Warn, Info, Debug or Trace")
	flag.IntVar(&c.maxLogsizeMB, "max-logsize", 0, "Rotate --log once it exceeds this many megabytes (0 disables)")
	flag.BoolVar(&c.deleteSnapshot, "delete-snapshot", false, "Delete the snapshot file and exit")
	flag.BoolVar(&c.noCallback, "no-callback", false, "Evaluate patterns and thresholds but never dispatch callbacks")
	flag.BoolVar(&c.overwriteLog, "overwrite-log", false, "Truncate --log instead of appending")
	flag.BoolVar(&c.showOptions, "show-options", false, "Print the effective, defaulted configuration and exit")
	flag.BoolVar(&c.showRendered, "show-rendered", false, "Print the templated configuration before parsing and exit")
	flag.BoolVar(&c.syntaxCheck, "syntax-check", false, "Validate the configuration file and exit")
	// --context and --var are accepted and stored, but clf never substitutes
	// them itself: {{ var }} templating is an external pre-pass per the
	// design notes, so these two flags exist only to be forwarded to that
	// collaborator by whatever wraps clf in a templating pipeline.
	flag.StringVar(&c.contextJSON, "context", "", "JSON object of variables for {{ }} template substitution")
	flag.Var(&c.vars, "var", "Additional K:V template variable, may be repeated")
	flag.BoolVar(&c.updateGeoIP, "update-geoip", false, "Download the GeoLite2 City and Country databases into the system temp directory and exit")
	flag.StringVar(&c.auditDBPath, "audit-db", "", "Append every run's per-tag outcome to this SQLite database")

	flag.Parse()

	if c.configFile == "" {
		fmt.Fprintln(os.Stderr, "Please specify a configuration file with --config.")
		flag.PrintDefaults()
		os.Exit(3)
	}
}

// configureLogging wires the go-logging backend(s), mirroring the teacher's
// configureLogging: stderr unless --log is set, always through
// logging.SetBackend then logging.SetLevel (level must be set after the
// backend or SetBackend resets it, matching the teacher's own comment).
func (c *clf) configureLogging() error {
	level, err := logging.LogLevel(c.logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", c.logLevel, err)
	}

	backends := make([]logging.Backend, 0, 1)

	if c.logFile == "" {
		backends = append(backends, logging.NewLogBackend(os.Stderr, "", stdlog.LstdFlags|stdlog.Lmicroseconds))
	} else {
		maxBytes := int64(c.maxLogsizeMB) * 1024 * 1024
		backend, err := newDefaultLogBackend(c.logFile, c.overwriteLog, maxBytes)
		if err != nil {
			return fmt.Errorf("open --log %s: %w", c.logFile, err)
		}
		c.logBackend = backend
		backends = append(backends, backend)
	}

	logging.SetBackend(backends...)
	logging.SetLevel(level, "")

	return nil
}

// cleanShutdown releases anything startUp/execute acquired, mirroring the
// teacher's cleanShutdown hook called via defer from Run
func (c *clf) cleanShutdown() {
	if c.logBackend != nil {
		c.logBackend.Close()
	}
}
