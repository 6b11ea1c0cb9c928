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
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// maxFrameSize is the largest body the 16-bit length prefix can describe; the
// spec's variable set is small and bounded so anything past this indicates a
// misconfigured tag
const maxFrameSize = 1<<16 - 1

// frame is the socket payload: a 2-byte big-endian length prefix followed by
// a JSON object, mirroring the transport framing the teacher's own lc-lib
// uses for its event protocol (lc-lib/transport), reused here instead of the
// teacher's zmq/protobuf codec since a callback frame is a single flat
// object, not a streamed event batch.
func writeFrame(w io.Writer, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("callback: marshal frame: %w", err)
	}
	if len(body) > maxFrameSize {
		return fmt.Errorf("callback: frame too large (%d bytes)", len(body))
	}

	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(body)))

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("callback: write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("callback: write frame body: %w", err)
	}
	return nil
}

// socketPayload is the JSON object sent over TCP/UNIX callbacks. Global is
// only populated on the first frame of a connection, avoiding repeating the
// run-wide map handed to the dispatcher on every subsequent dispatch sent
// down a pooled, kept-alive connection.
type socketPayload struct {
	DispatchID string            `json:"dispatch_id"`
	Vars       map[string]string `json:"variables"`
	Global     map[string]string `json:"global,omitempty"`
}
