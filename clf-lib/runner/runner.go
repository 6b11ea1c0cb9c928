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

// Package runner aggregates every search/tag's scanner.TagResult into the
// single worst-severity Nagios exit and a human-readable summary line,
// mirroring how the teacher's log-courier.go composes results from several
// components into one process outcome, but collapsed to the one-shot
// aggregate a Nagios plugin invocation returns instead of a long-running
// pipeline's ongoing state.
package runner

import (
	"fmt"
	"io"
	"os"
	"strings"

	"clf/clf-lib/nagios"
	"clf/clf-lib/scanner"

	"github.com/mattn/go-colorable"
	"github.com/mgutz/ansi"
)

// LogfileResult bundles one resolved logfile's tag results under its
// declared and canonical paths, for both the summary and audit trail. When
// the logfile could not be resolved or does not exist, Tags is empty and
// Missing/Severity/Err carry the logfilemissing-configured outcome instead.
type LogfileResult struct {
	DeclaredPath  string
	CanonicalPath string
	Tags          []scanner.TagResult
	Missing       bool
	Severity      nagios.Severity
	Err           error
}

// Report is the fully aggregated outcome of one clf invocation
type Report struct {
	Logfiles []LogfileResult
	Severity nagios.Severity
}

// Aggregate computes the overall Severity as the worst severity across every
// tag of every logfile, per the spec's whole-run exit code rule. A missing
// logfile contributes its configured logfilemissing severity instead of any
// tag severities, since it was never scanned.
func Aggregate(logfiles []LogfileResult) Report {
	r := Report{Logfiles: logfiles, Severity: nagios.Ok}
	for _, lf := range logfiles {
		if lf.Missing {
			r.Severity = nagios.Worse(r.Severity, lf.Severity)
			continue
		}
		for _, tag := range lf.Tags {
			r.Severity = nagios.Worse(r.Severity, tag.Severity)
		}
	}
	return r
}

// Summary renders the one-line-plus-detail Nagios plugin output. When color
// is true, the severity keyword is colorized via github.com/mgutz/ansi
// (wrapped in github.com/mattn/go-colorable so ANSI codes render correctly
// on Windows consoles too) - useful for interactive terminal runs; with
// color false the output carries no escape codes, which is what the caller
// passes when stdout is not a terminal (as when Nagios captures it).
func (r Report) Summary(color bool) string {
	var b strings.Builder

	label := r.Severity.String()
	if color {
		label = colorizeSeverity(r.Severity)
	}

	fmt.Fprintf(&b, "CLF %s - %d logfile(s) checked\n", label, len(r.Logfiles))

	for _, lf := range r.Logfiles {
		if lf.Missing {
			state := lf.Severity.String()
			if color {
				state = colorizeSeverity(lf.Severity)
			}
			msg := fmt.Sprintf("No such file: %s", lf.DeclaredPath)
			if lf.Err != nil && !os.IsNotExist(lf.Err) {
				msg = lf.Err.Error()
			}
			fmt.Fprintf(&b, "  [%s] %s\n", state, msg)
			continue
		}

		for _, tag := range lf.Tags {
			if tag.MatchedLines == 0 && tag.Err == nil {
				continue
			}
			state := tag.Severity.String()
			if color {
				state = colorizeSeverity(tag.Severity)
			}
			fmt.Fprintf(&b, "  [%s] %s tag=%s matched=%d dispatched=%d\n", state, lf.DeclaredPath, tag.Name, tag.MatchedLines, tag.DispatchCount)
			if tag.Err != nil {
				fmt.Fprintf(&b, "      error: %s\n", tag.Err)
			}
		}
	}

	return b.String()
}

func colorizeSeverity(sev nagios.Severity) string {
	switch sev {
	case nagios.Critical:
		return ansi.Color(sev.String(), "red+b")
	case nagios.Warning:
		return ansi.Color(sev.String(), "yellow+b")
	case nagios.Unknown:
		return ansi.Color(sev.String(), "magenta+b")
	default:
		return ansi.Color(sev.String(), "green+b")
	}
}

// Stdout returns a writer that renders ANSI color correctly on the current
// platform's terminal, including Windows consoles that don't natively
// interpret escape sequences.
func Stdout() io.Writer {
	return colorable.NewColorableStdout()
}
