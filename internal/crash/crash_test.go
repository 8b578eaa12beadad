/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package crash

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scenarist/internal/storage"
)

func TestWriteReportCreatesFileInTemp(t *testing.T) {
	path, err := writeReport(nil, "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	t.Cleanup(func() { _ = os.Remove(path) })
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "Scenarist Crash Report") {
		t.Fatalf("report header missing")
	}
	if !strings.Contains(s, "Panic: boom") {
		t.Fatalf("panic content missing: %s", s)
	}
}

func TestWriteReportCreatesFileInStoryDir(t *testing.T) {
	h, err := storage.InitStory(t.TempDir())
	if err != nil {
		t.Fatalf("init story: %v", err)
	}
	path, err := writeReport(h, "kaboom", []byte("stack"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	if !strings.Contains(path, filepath.Join(h.Root, storage.StoryDirName)) {
		t.Fatalf("expected crash report under %s, got %s", storage.StoryDirName, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("report file missing: %v", err)
	}
}

// TestRecoverPanic ensures Recover handles a panic, writes a report, saves
// the provided snapshot, and does not terminate the test process.
func TestRecoverPanic(t *testing.T) {
	// Capture stderr temporarily to avoid noisy test logs
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	defer func() {
		_ = w.Close()
		os.Stderr = oldStderr
		_, _ = io.Copy(io.Discard, r)
	}()

	called := 0
	oldExit := exitFn
	exitFn = func(code int) { called = code }
	defer func() { exitFn = oldExit }()

	h, err := storage.InitStory(t.TempDir())
	if err != nil {
		t.Fatalf("init story: %v", err)
	}
	blob := []byte(`{"version":1,"pc":2,"vars":{}}`)

	func() {
		defer Recover(h, func() ([]byte, string) { return blob, "fp" })
		panic("boom")
	}()

	if called != 2 {
		t.Fatalf("exit code = %d, want 2", called)
	}
	rec, err := storage.LoadLatest(context.Background(), h, storage.AutosaveSlot)
	if err != nil || rec == nil {
		t.Fatalf("crash autosave missing: %+v, %v", rec, err)
	}
	if string(rec.Blob) != string(blob) {
		t.Fatalf("autosave blob mismatch")
	}
}
