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
	"context"
	"fmt"
	"strings"
)

// Protocol identifies which of the three callback mechanisms a tag uses
type Protocol string

const (
	ProtocolProcess Protocol = "process"
	ProtocolTCP     Protocol = "tcp"
	ProtocolUnix    Protocol = "unix"
)

// Target is the resolved, tag-level callback configuration needed to build
// a Dispatcher, independent of any particular matched line
type Target struct {
	Protocol   Protocol
	Path       string   // process: script path; unix: socket path
	Args       []string // process: extra argv
	EnvPath    string   // process: PATH override
	Address    string   // tcp: host:port
	KeepOutput bool
	PoolSize   int
}

// Dispatcher is the uniform interface the scanner drives regardless of which
// of the three backends a tag is configured to use
type Dispatcher interface {
	Dispatch(ctx context.Context, v *Variables) (output string, err error)
	Close()
}

type processAdapter struct{ d *ProcessDispatcher }

func (a processAdapter) Dispatch(ctx context.Context, v *Variables) (string, error) {
	return a.d.Dispatch(ctx, v)
}
func (a processAdapter) Close() {}

type socketAdapter struct{ d *SocketDispatcher }

func (a socketAdapter) Dispatch(_ context.Context, v *Variables) (string, error) {
	return "", a.d.Dispatch(v)
}
func (a socketAdapter) Close() { a.d.Close() }

// NewDispatcher builds the Dispatcher for t's protocol. global is the
// run-wide map that socket dispatchers attach to only the first frame of a
// pooled connection.
func NewDispatcher(t Target, global map[string]string) (Dispatcher, error) {
	switch t.Protocol {
	case ProtocolProcess, "":
		return processAdapter{NewProcessDispatcher(t.Path, t.Args, t.EnvPath, t.KeepOutput)}, nil
	case ProtocolTCP:
		d, err := NewSocketDispatcher("tcp", t.Address, t.PoolSize, global)
		if err != nil {
			return nil, err
		}
		return socketAdapter{d}, nil
	case ProtocolUnix:
		d, err := NewSocketDispatcher("unix", t.Path, t.PoolSize, global)
		if err != nil {
			return nil, err
		}
		return socketAdapter{d}, nil
	default:
		return nil, fmt.Errorf("callback: unknown protocol %q", t.Protocol)
	}
}

// ParseProtocol normalizes a configured protocol string, defaulting to
// process dispatch when unset
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "process", "exec":
		return ProtocolProcess, nil
	case "tcp":
		return ProtocolTCP, nil
	case "unix", "unixsocket", "unix_socket":
		return ProtocolUnix, nil
	default:
		return "", fmt.Errorf("callback: unknown protocol %q", s)
	}
}
