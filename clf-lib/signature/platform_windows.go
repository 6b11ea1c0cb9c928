//go:build windows

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

	"golang.org/x/sys/windows"
)

// platformFileID derives a 64-bit inode from nFileIndexHigh<<32|nFileIndexLow
// and a device id from dwVolumeSerialNumber, using
// GetFileInformationByHandle through golang.org/x/sys/windows.
//
// The teacher's own Windows file-state code (filestateos_windows.go) gets at
// the same numbers by reflecting into the unexported fields of the stdlib's
// os.fileStat, with a comment warning that a Go stdlib change could silently
// break it. golang.org/x/sys/windows exposes the underlying Win32 call
// directly, so clf uses that instead - same OS-level identity, without the
// reflection trick.
func platformFileID(info os.FileInfo) (inode uint64, dev uint64) {
	path := info.Name()
	h, err := windows.CreateFile(
		windows.StringToUTF16Ptr(path),
		0,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS,
		0,
	)
	if err != nil {
		return 0, 0
	}
	defer windows.CloseHandle(h)

	var fi windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(h, &fi); err != nil {
		return 0, 0
	}

	inode = uint64(fi.FileIndexHigh)<<32 | uint64(fi.FileIndexLow)
	dev = uint64(fi.VolumeSerialNumber)
	return inode, dev
}
