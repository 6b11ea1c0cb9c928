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

// Package signature derives an OS-independent identity for a log file so the
// scanner can tell, across runs, whether a path still refers to the same
// underlying file or whether it was rotated out from under it.
package signature

import (
	"encoding/json"
	"fmt"
	"hash/crc64"
	"io"
	"os"

	"clf/clf-lib/compression"

	"gopkg.in/op/go-logging.v1"
)

var log = logging.MustGetLogger("signature")

// DefaultHashWindow is the number of leading bytes hashed when no per-logfile
// hash_window override is configured
const DefaultHashWindow = 4096

var crc64Table = crc64.MakeTable(crc64.ISO)

// Signature identifies a file's content-at-a-time for rotation detection. Two
// signatures identify the same file iff Inode==Inode' && Dev==Dev' &&
// Hash==Hash'; where (Inode,Dev) is (0,0) the hash alone therefore decides
type Signature struct {
	Inode uint64 `json:"inode"`
	Dev   uint64 `json:"dev"`
	Size  uint64 `json:"size"`
	Hash  uint64 `json:"hash"`
}

// Equal implements the equality rule from the data model: real inode/dev
// pairs are authoritative once available, and the content hash disambiguates
// filesystems that recycle identifiers across rotations (network mounts,
// copy-on-write volumes). When no real inode/dev is available (Inode,Dev ==
// 0,0) the hash alone decides.
func (s Signature) Equal(o Signature) bool {
	if s.Inode != o.Inode || s.Dev != o.Dev {
		return false
	}
	if s.Inode == 0 && s.Dev == 0 {
		return s.Hash == o.Hash
	}
	return s.Hash == o.Hash
}

// String renders the signature for logging
func (s Signature) String() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Of computes the Signature of the file at path, decompressing it according
// to comp before hashing hashWindow leading bytes. hashWindow <= 0 selects
// DefaultHashWindow.
func Of(path string, comp compression.Kind, hashWindow int) (Signature, error) {
	if hashWindow <= 0 {
		hashWindow = DefaultHashWindow
	}

	info, err := os.Stat(path)
	if err != nil {
		return Signature{}, fmt.Errorf("signature: stat %s: %w", path, err)
	}

	inode, dev := platformFileID(info)

	f, err := os.Open(path)
	if err != nil {
		return Signature{}, fmt.Errorf("signature: open %s: %w", path, err)
	}
	defer f.Close()

	stream, err := compression.Decompress(f, comp)
	if err != nil {
		return Signature{}, fmt.Errorf("signature: decompress %s: %w", path, err)
	}
	defer stream.Close()

	hash, err := hashPrefix(stream, hashWindow)
	if err != nil {
		return Signature{}, fmt.Errorf("signature: hash %s: %w", path, err)
	}

	sig := Signature{
		Inode: inode,
		Dev:   dev,
		Size:  uint64(info.Size()),
		Hash:  hash,
	}

	if inode == 0 && dev == 0 {
		log.Debug("No native inode/dev available for %s, relying on content hash only", path)
	}

	return sig, nil
}

// hashPrefix computes CRC64 (ISO polynomial) of up to limit bytes read from r
func hashPrefix(r io.Reader, limit int) (uint64, error) {
	h := crc64.New(crc64Table)
	if _, err := io.CopyN(h, r, int64(limit)); err != nil && err != io.EOF {
		return 0, err
	}
	return h.Sum64(), nil
}
