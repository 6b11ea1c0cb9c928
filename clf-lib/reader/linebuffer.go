/*
 * Copyright 2012-2020 Jason Woods and contributors
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

package reader

import (
	"bytes"
	"errors"
	"io"
)

// ErrLineTooLong is returned internally by lineBuffer when a line exceeds the
// configured maximum; the caller (Reader) treats it as a split rather than a
// hard failure, per the spec's "split but still advance the offset" rule.
var ErrLineTooLong = errors.New("reader: line too long")

// lineBuffer is a read-ahead buffer that peels newline-terminated slices off
// an io.Reader, splitting (rather than failing) lines that exceed maxLine.
// Adapted from the harvester package's LineReader.
type lineBuffer struct {
	rd       io.Reader
	buf      []byte
	overflow [][]byte
	size     int
	maxLine  int
	curMax   int
	start    int
	end      int
}

func newLineBuffer(rd io.Reader, size, maxLine int) *lineBuffer {
	return &lineBuffer{
		rd:      rd,
		buf:     make([]byte, size),
		size:    size,
		maxLine: maxLine,
		curMax:  maxLine,
	}
}

// readSlice returns the next line, including its trailing '\n' (but not any
// further bytes). If the line exceeded maxLine it is returned in segments,
// the first segments erroring ErrLineTooLong and the final segment nil error.
func (lb *lineBuffer) readSlice() ([]byte, error) {
	var err error
	var line []byte

	if lb.end == 0 {
		err = lb.fill()
	}

	for {
		if n := bytes.IndexByte(lb.buf[lb.start:lb.end], '\n'); n >= 0 && n < lb.curMax {
			line = lb.buf[lb.start : lb.start+n+1]
			lb.start += n + 1
			err = nil
			break
		}

		if err != nil {
			return nil, err
		}

		if lb.end-lb.start >= lb.curMax {
			line = lb.buf[lb.start : lb.start+lb.curMax]
			lb.start += lb.curMax
			err = ErrLineTooLong
			break
		}

		if lb.end-lb.start >= len(lb.buf) {
			lb.start, lb.end = 0, 0
			if lb.overflow == nil {
				lb.overflow = make([][]byte, 0, 1)
			}
			lb.overflow = append(lb.overflow, lb.buf)
			lb.curMax -= len(lb.buf)
			lb.buf = make([]byte, lb.size)
		}

		err = lb.fill()
	}

	if lb.overflow != nil {
		lb.overflow = append(lb.overflow, line)
		line = bytes.Join(lb.overflow, []byte{})
		lb.overflow = nil
		lb.curMax = lb.maxLine
	}

	return line, err
}

func (lb *lineBuffer) fill() error {
	if lb.start != 0 {
		copy(lb.buf, lb.buf[lb.start:lb.end])
		lb.end -= lb.start
		lb.start = 0
	}

	n, err := lb.rd.Read(lb.buf[lb.end:])
	lb.end += n
	return err
}
