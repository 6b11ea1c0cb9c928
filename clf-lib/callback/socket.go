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
	"fmt"
	"net"
	"time"
)

// SocketDispatcher sends the length-prefixed JSON frame described in the
// spec's §4.F (callback protocol) to a TCP or UNIX domain socket target,
// pooling connections across dispatches within one run.
type SocketDispatcher struct {
	network string // "tcp" or "unix"
	address string
	pool    *connPool
	global  map[string]string
}

// NewSocketDispatcher builds a dispatcher for a TCP (network="tcp") or UNIX
// domain (network="unix") callback target. global is the run-wide map sent
// only on a connection's first frame.
func NewSocketDispatcher(network, address string, poolSize int, global map[string]string) (*SocketDispatcher, error) {
	pool, err := newConnPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("callback: socket pool: %w", err)
	}
	return &SocketDispatcher{network: network, address: address, pool: pool, global: global}, nil
}

func (d *SocketDispatcher) key() string {
	return d.network + ":" + d.address
}

// Dispatch sends one frame for the given variables, dialing or reusing a
// pooled connection as needed. A failed send (including a write deadline
// timeout) closes and drops the connection and fails this dispatch; the send
// is not retried.
func (d *SocketDispatcher) Dispatch(v *Variables) error {
	dial := func() (net.Conn, error) {
		return net.DialTimeout(d.network, d.address, DefaultDialTimeout)
	}

	pc, err := d.pool.get(d.key(), dial)
	if err != nil {
		return fmt.Errorf("callback: dial %s %s: %w", d.network, d.address, err)
	}

	if err := d.send(pc, v); err != nil {
		log.Warning("Dropping failed connection to %s %s: %s", d.network, d.address, err)
		d.pool.drop(d.key())
		return fmt.Errorf("callback: send %s %s: %w", d.network, d.address, err)
	}

	return nil
}

func (d *SocketDispatcher) send(pc *pooledConn, v *Variables) error {
	pc.conn.SetWriteDeadline(time.Now().Add(DefaultDispatchTimeout))

	payload := socketPayload{
		DispatchID: v.DispatchID(),
		Vars:       v.Map(),
	}
	if pc.first {
		payload.Global = d.global
	}

	return writeFrame(pc.conn, payload)
}

// Close releases every pooled connection this dispatcher holds
func (d *SocketDispatcher) Close() {
	d.pool.closeAll()
}
