/*
 * Copyright 2014-2016 Jason Woods.
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

// Package reader provides a uniform line-oriented byte stream over plain,
// gzip, bzip2 and xz log files, reporting the byte offset of every line in
// terms of the *uncompressed* stream so that a persisted offset means the
// same thing regardless of the container format.
package reader

import (
	"fmt"
	"io"
	"os"

	"clf/clf-lib/compression"

	"gopkg.in/op/go-logging.v1"
)

var log = logging.MustGetLogger("reader")

// DefaultBufferSize is the read-ahead buffer size, matching the teacher's own
// LineBufferBytes default
const DefaultBufferSize = 16384

// DefaultMaxLineBytes is the maximum line length before a line is split, per
// the spec's recommendation
const DefaultMaxLineBytes = 1 << 20

// Reader streams lines from a possibly-compressed log file, tracking the
// uncompressed source offset of each line
type Reader struct {
	path       string
	kind       compression.Kind
	bufferSize int
	maxLine    int

	file   *os.File
	stream *compression.Stream
	lb     *lineBuffer

	offset int64 // offset of the next unread byte
}

// Open opens path for line-oriented reading, positioned at the start of the
// uncompressed stream. bufferSize/maxLine of 0 select their defaults.
func Open(path string, kind compression.Kind, bufferSize, maxLine int) (*Reader, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}

	r := &Reader{
		path:       path,
		kind:       kind,
		bufferSize: bufferSize,
		maxLine:    maxLine,
	}

	if err := r.reopen(); err != nil {
		return nil, err
	}

	return r, nil
}

// reopen (re)establishes the decompressed stream from byte 0 of the
// container, discarding any prior state
func (r *Reader) reopen() error {
	r.closeStream()

	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("reader: open %s: %w", r.path, err)
	}

	stream, err := compression.Decompress(f, r.kind)
	if err != nil {
		f.Close()
		return fmt.Errorf("reader: decompress %s: %w", r.path, err)
	}

	r.file = f
	r.stream = stream
	r.lb = newLineBuffer(stream, r.bufferSize, r.maxLine)
	r.offset = 0

	return nil
}

func (r *Reader) closeStream() {
	if r.stream != nil {
		r.stream.Close()
		r.stream = nil
	}
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
}

// Seek positions the reader so the next ReadLine returns the line starting at
// the given uncompressed offset. For plain files this re-opens the file (so
// no previously buffered bytes survive) and seeks it directly; for
// gzip/bzip2/xz, whose Go decoders don't support random
// access, it re-opens the container from the start and discards bytes up to
// offset - the cost is therefore linear in offset for compressed formats, as
// documented in the design notes.
func (r *Reader) Seek(offset int64) error {
	if offset < 0 {
		return fmt.Errorf("reader: negative seek offset %d", offset)
	}

	if r.kind == compression.Plain {
		if err := r.reopen(); err != nil {
			return err
		}
		if _, err := r.file.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("reader: seek %s: %w", r.path, err)
		}
		r.offset = offset
		return nil
	}

	if err := r.reopen(); err != nil {
		return err
	}

	if offset == 0 {
		return nil
	}

	log.Debug("Emulating seek to %d on non-seekable container %s (cost is linear in offset)", offset, r.path)

	discarded, err := io.CopyN(io.Discard, r.lb, offset)
	r.offset = discarded
	if err != nil && err != io.EOF {
		return fmt.Errorf("reader: seek-emulation %s: %w", r.path, err)
	}
	return nil
}

// Read satisfies io.Reader so Seek can discard bytes through io.CopyN without
// exposing readSlice's line-splitting semantics; it first hands out any bytes
// already sitting in the read-ahead buffer, then reads straight from the
// underlying stream. Seek calls it right after (re)opening a fresh lineBuffer,
// so in practice the buffer is empty.
func (lb *lineBuffer) Read(p []byte) (int, error) {
	if lb.end > lb.start {
		n := copy(p, lb.buf[lb.start:lb.end])
		lb.start += n
		return n, nil
	}
	return lb.rd.Read(p)
}

// ReadLine returns the next line (delimiter and trailing \r stripped) along
// with the uncompressed byte offset of its first byte. Returns io.EOF when no
// more data is currently available - callers own retry/backoff policy.
func (r *Reader) ReadLine() ([]byte, int64, error) {
	lineStart := r.offset

	raw, err := r.lb.readSlice()
	if raw == nil {
		if err == io.EOF || err == nil {
			return nil, lineStart, io.EOF
		}
		return nil, lineStart, fmt.Errorf("reader: %s: %w", r.path, err)
	}

	consumed := len(raw)
	r.offset += int64(consumed)

	split := false
	if err == ErrLineTooLong {
		split = true
		err = nil
	}

	var newline int
	if err == nil && !split {
		if len(raw) > 1 && raw[len(raw)-2] == '\r' {
			newline = 2
		} else {
			newline = 1
		}
	}

	line := raw[:len(raw)-newline]

	if err != nil && err != io.EOF {
		return nil, lineStart, fmt.Errorf("reader: %s: %w", r.path, err)
	}

	return line, lineStart, nil
}

// Offset returns the current uncompressed read offset
func (r *Reader) Offset() int64 {
	return r.offset
}

// SeekToEnd positions the reader at the end of the uncompressed stream and
// returns the resulting offset, for the fastforward tag option. Plain files
// seek directly using the container's size; compressed containers have no
// side channel for their uncompressed size, so this drains the stream via
// readSlice, which costs a full decompression pass exactly like the initial
// scan it's replacing would have.
func (r *Reader) SeekToEnd() (int64, error) {
	if r.kind == compression.Plain {
		info, err := r.file.Stat()
		if err != nil {
			return 0, fmt.Errorf("reader: stat %s: %w", r.path, err)
		}
		if err := r.Seek(info.Size()); err != nil {
			return 0, err
		}
		return r.offset, nil
	}

	for {
		if _, _, err := r.ReadLine(); err != nil {
			break
		}
	}
	return r.offset, nil
}

// Close releases the underlying file and any decompression subprocess
func (r *Reader) Close() error {
	r.closeStream()
	return nil
}
