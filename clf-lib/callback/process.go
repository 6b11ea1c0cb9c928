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

package callback

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

// ProcessDispatcher spawns the tag's configured script_path with the CLF_*
// variables in its environment, mirroring original_source/crates/rclf/src/
// callback.rs's Callback::spawn (env-based variable passing, optional args,
// optional PATH override) translated into os/exec idiom.
type ProcessDispatcher struct {
	path       string
	args       []string
	envPath    string // optional PATH override; empty means inherit
	keepOutput bool
}

// NewProcessDispatcher builds a dispatcher that spawns path with args.
// envPath, if non-empty, replaces PATH in the child's environment - the
// Go equivalent of the Rust implementation's env_path override used so a
// script_path relative to a configured directory resolves predictably
// regardless of the invoking cron environment's PATH.
func NewProcessDispatcher(path string, args []string, envPath string, keepOutput bool) *ProcessDispatcher {
	return &ProcessDispatcher{path: path, args: args, envPath: envPath, keepOutput: keepOutput}
}

// Dispatch runs the script to completion, passing v's variables as
// environment entries. If keepOutput is set, combined stdout+stderr is
// captured and returned to the caller; otherwise it is discarded.
func (d *ProcessDispatcher) Dispatch(ctx context.Context, v *Variables) (output string, err error) {
	cmd := exec.CommandContext(ctx, d.path, d.args...)

	env := os.Environ()
	for name, val := range v.Map() {
		env = append(env, name+"="+val)
	}
	if d.envPath != "" {
		env = append(env, "PATH="+d.envPath)
	}
	cmd.Env = env

	var buf bytes.Buffer
	if d.keepOutput {
		cmd.Stdout = &buf
		cmd.Stderr = &buf
	}

	if err := cmd.Run(); err != nil {
		return buf.String(), fmt.Errorf("callback: spawn %s: %w", d.path, err)
	}

	return buf.String(), nil
}
