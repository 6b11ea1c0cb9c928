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
	"path/filepath"
	"testing"

	"clf/clf-lib/compression"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestOfSameContentSameSignature(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "app.log", "line one\nline two\n")

	a, err := Of(path, compression.Plain, 0)
	if err != nil {
		t.Fatalf("Of: %v", err)
	}
	b, err := Of(path, compression.Plain, 0)
	if err != nil {
		t.Fatalf("Of: %v", err)
	}
	if !a.Equal(b) {
		t.Errorf("expected %v == %v", a, b)
	}
}

func TestOfRotationChangesInode(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "app.log", "original content\n")

	before, err := Of(path, compression.Plain, 0)
	if err != nil {
		t.Fatalf("Of: %v", err)
	}

	// simulate logrotate's create-new-file-same-name pattern
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	writeTemp(t, dir, "app.log", "fresh content after rotation\n")

	after, err := Of(path, compression.Plain, 0)
	if err != nil {
		t.Fatalf("Of: %v", err)
	}

	if before.Equal(after) {
		t.Error("expected rotated file to produce a different signature")
	}
}

func TestHashWindowDefaultsWhenNonPositive(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "app.log", "short\n")

	sig, err := Of(path, compression.Plain, 0)
	if err != nil {
		t.Fatalf("Of: %v", err)
	}
	if sig.Hash == 0 {
		t.Error("expected a non-zero content hash for non-empty file")
	}
}

func TestOfMissingFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Of(filepath.Join(dir, "missing.log"), compression.Plain, 0); err == nil {
		t.Error("expected error for missing file")
	}
}
