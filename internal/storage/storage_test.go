/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestInitStoryScaffoldsLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "mystory")
	h, err := InitStory(root)
	if err != nil {
		t.Fatalf("InitStory failed: %v", err)
	}
	for _, d := range []string{"assets/bgm", "assets/se", "assets/images", "assets/movies", "exports", StoryDirName} {
		if fi, err := os.Stat(filepath.Join(root, d)); err != nil || !fi.IsDir() {
			t.Errorf("missing subdir %s: %v", d, err)
		}
	}
	prog, err := h.LoadProgram()
	if err != nil {
		t.Fatalf("seed script does not parse: %v", err)
	}
	if prog.Len() == 0 {
		t.Fatalf("seed script has no instructions")
	}
}

func TestInitStoryKeepsExistingScript(t *testing.T) {
	root := t.TempDir()
	custom := "[SAY speaker=A]\nkeep me\n"
	if err := os.WriteFile(filepath.Join(root, ScriptFileName), []byte(custom), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	h, err := InitStory(root)
	if err != nil {
		t.Fatalf("InitStory failed: %v", err)
	}
	text, err := h.LoadScript()
	if err != nil {
		t.Fatalf("LoadScript failed: %v", err)
	}
	if text != custom {
		t.Fatalf("existing script was overwritten")
	}
}

func TestOpenStoryRequiresScript(t *testing.T) {
	if _, err := OpenStory(t.TempDir()); err == nil {
		t.Fatalf("OpenStory on an empty dir must fail")
	}
}

func TestFingerprintIsStable(t *testing.T) {
	a := Fingerprint("[SAY speaker=A]\nhi")
	b := Fingerprint("[SAY speaker=A]\nhi")
	c := Fingerprint("[SAY speaker=A]\nbye")
	if a != b {
		t.Fatalf("fingerprint not deterministic: %s vs %s", a, b)
	}
	if a == c {
		t.Fatalf("different scripts share a fingerprint")
	}
	if len(a) != 16 {
		t.Fatalf("fingerprint length = %d, want 16 hex chars", len(a))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	h, err := InitStory(t.TempDir())
	if err != nil {
		t.Fatalf("InitStory failed: %v", err)
	}
	ctx := context.Background()
	blob := []byte(`{"version":1,"pc":3,"vars":{}}`)

	if err := Save(ctx, h, "chapter1", "fp1", blob, time.Now()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	rec, err := LoadLatest(ctx, h, "chapter1")
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if rec == nil || string(rec.Blob) != string(blob) || rec.Fingerprint != "fp1" {
		t.Fatalf("round trip mismatch: %+v", rec)
	}

	if rec, err := LoadLatest(ctx, h, "empty_slot"); err != nil || rec != nil {
		t.Fatalf("empty slot should yield nil, nil; got %+v, %v", rec, err)
	}
}

func TestLoadLatestPicksNewest(t *testing.T) {
	h, err := InitStory(t.TempDir())
	if err != nil {
		t.Fatalf("InitStory failed: %v", err)
	}
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i, body := range []string{"old", "mid", "new"} {
		if err := Save(ctx, h, "s", "fp", []byte(body), base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
	}
	rec, err := LoadLatest(ctx, h, "s")
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if string(rec.Blob) != "new" {
		t.Fatalf("got %q, want the newest save", rec.Blob)
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	h, err := InitStory(t.TempDir())
	if err != nil {
		t.Fatalf("InitStory failed: %v", err)
	}
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		if err := Save(ctx, h, AutosaveSlot, "fp", []byte{byte('a' + i)}, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
	}
	deleted, err := Prune(ctx, h, AutosaveSlot, 2)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("deleted %d rows, want 3", deleted)
	}
	rec, err := LoadLatest(ctx, h, AutosaveSlot)
	if err != nil || string(rec.Blob) != "e" {
		t.Fatalf("newest save lost after prune: %+v, %v", rec, err)
	}
}

func TestListSlots(t *testing.T) {
	h, err := InitStory(t.TempDir())
	if err != nil {
		t.Fatalf("InitStory failed: %v", err)
	}
	ctx := context.Background()
	now := time.Now()
	if err := Save(ctx, h, "older", "fp", []byte("x"), now.Add(-time.Minute)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := Save(ctx, h, "newer", "fp", []byte("y"), now); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	slots, err := ListSlots(ctx, h)
	if err != nil {
		t.Fatalf("ListSlots failed: %v", err)
	}
	if len(slots) != 2 || slots[0].Slot != "newer" || slots[1].Slot != "older" {
		t.Fatalf("unexpected slot listing: %+v", slots)
	}
}

func TestAutosaveTrims(t *testing.T) {
	h, err := InitStory(t.TempDir())
	if err != nil {
		t.Fatalf("InitStory failed: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if err := Autosave(ctx, h, "fp", []byte{byte(i)}, 2); err != nil {
			t.Fatalf("Autosave %d failed: %v", i, err)
		}
		// Distinct timestamps so ordering is deterministic.
		time.Sleep(2 * time.Millisecond)
	}
	db, err := OpenSaves(h.Root)
	if err != nil {
		t.Fatalf("OpenSaves failed: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM saves WHERE slot = ?`, AutosaveSlot).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("autosave slot holds %d entries, want 2", n)
	}
}
