//go:build !windows

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

package signature

import (
	"os"
	"syscall"
)

// platformFileID reaches the real inode/device off the os.FileInfo's
// underlying syscall.Stat_t, the same way zosmac-gomon's process inspection
// digs into platform-native stat structures. Falls back to (0,0), meaning
// content-hash-only identification, if the platform's Sys() doesn't expose
// one (rare, but seen on some FUSE filesystems).
func platformFileID(info os.FileInfo) (inode uint64, dev uint64) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0
	}
	return uint64(stat.Ino), uint64(stat.Dev)
}
