/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package engine

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/zclconf/go-cty/cty"
)

func sampleState() *State {
	st := NewState()
	st.PC = 7
	st.Vars["score"] = cty.NumberIntVal(-42)
	st.Vars["alive"] = cty.True
	st.Vars["mood"] = cty.StringVal("happy")
	st.Vars["title"] = cty.StringVal("3") // text that looks numeric
	st.WaitingChoice = true
	st.PendingTargets = []string{"good_end", "bad_end"}
	st.LastLabel = "chapter2"
	return st
}

func statesEqual(a, b *State) bool {
	if a.PC != b.PC || a.WaitingChoice != b.WaitingChoice || a.LastLabel != b.LastLabel {
		return false
	}
	if len(a.PendingTargets) != len(b.PendingTargets) {
		return false
	}
	for i := range a.PendingTargets {
		if a.PendingTargets[i] != b.PendingTargets[i] {
			return false
		}
	}
	if len(a.Vars) != len(b.Vars) {
		return false
	}
	for k, v := range a.Vars {
		w, ok := b.Vars[k]
		if !ok || !v.RawEquals(w) {
			return false
		}
	}
	return true
}

func TestSnapshotRoundTrip(t *testing.T) {
	orig := sampleState()
	blob, err := MarshalState(orig)
	if err != nil {
		t.Fatalf("MarshalState failed: %v", err)
	}
	got, err := UnmarshalState(blob)
	if err != nil {
		t.Fatalf("UnmarshalState failed: %v", err)
	}
	if !statesEqual(orig, got) {
		t.Fatalf("round trip changed state:\n  orig %+v\n  got  %+v", orig, got)
	}
	// The numeric-looking text must survive as text, not collapse to a number.
	if v := got.Vars["title"]; !v.RawEquals(cty.StringVal("3")) {
		t.Fatalf("typed encoding lost: title = %#v", v)
	}
}

func TestSnapshotFreshStateRoundTrip(t *testing.T) {
	blob, err := MarshalState(NewState())
	if err != nil {
		t.Fatalf("MarshalState failed: %v", err)
	}
	got, err := UnmarshalState(blob)
	if err != nil {
		t.Fatalf("UnmarshalState failed: %v", err)
	}
	if got.PC != 0 || got.WaitingChoice || len(got.Vars) != 0 || len(got.PendingTargets) != 0 {
		t.Fatalf("fresh state round trip: %+v", got)
	}
}

func TestSnapshotIsStableJSON(t *testing.T) {
	blob, err := MarshalState(sampleState())
	if err != nil {
		t.Fatalf("MarshalState failed: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(blob, &doc); err != nil {
		t.Fatalf("snapshot is not JSON: %v", err)
	}
	if doc["version"] != float64(SnapshotVersion) {
		t.Fatalf("version = %v, want %d", doc["version"], SnapshotVersion)
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	cases := []struct {
		name string
		blob string
	}{
		{"not json", "pc=7"},
		{"wrong shape", `{"pc":"seven"}`},
		{"missing version", `{"pc":1,"vars":{}}`},
		{"unknown version", `{"version":99,"pc":1,"vars":{}}`},
		{"negative pc", `{"version":1,"pc":-2,"vars":{}}`},
		{"bad var type", `{"version":1,"pc":0,"vars":{"x":{"type":"float","value":"1.5"}}}`},
		{"bad bool value", `{"version":1,"pc":0,"vars":{"x":{"type":"bool","value":"yes"}}}`},
	}
	for _, tc := range cases {
		if _, err := UnmarshalState([]byte(tc.blob)); err == nil {
			t.Errorf("%s: UnmarshalState accepted invalid input", tc.name)
		}
	}
}

func TestUnmarshalResumesExecution(t *testing.T) {
	prog := mustProgram(t, `[SET name=hp value=9]
[SAY speaker=A]
first
[SAY speaker=A]
second`)
	r := New(prog, nil)
	st := NewState()
	r.Step(st, NoEvent) // SET + "first"

	blob, err := MarshalState(st)
	if err != nil {
		t.Fatalf("MarshalState failed: %v", err)
	}
	restored, err := UnmarshalState(blob)
	if err != nil {
		t.Fatalf("UnmarshalState failed: %v", err)
	}
	out := r.Step(restored, NoEvent)
	if len(out.Lines) != 1 || out.Lines[0].Text != "second" {
		t.Fatalf("restored state resumed wrong: %+v", out.Lines)
	}
	if !restored.Finished(prog) {
		t.Fatalf("restored run should be finished")
	}
}

func TestSnapshotPersistsPendingChoice(t *testing.T) {
	prog := mustProgram(t, `[BRANCH choice=Go label=a, choice=Stay label=b]
[LABEL name=a]
[LABEL name=b]`)
	r := New(prog, nil)
	st := NewState()
	r.Step(st, NoEvent)
	if !st.WaitingChoice {
		t.Fatalf("expected waiting state")
	}

	blob, err := MarshalState(st)
	if err != nil {
		t.Fatalf("MarshalState failed: %v", err)
	}
	if !strings.Contains(string(blob), "pending_targets") {
		t.Fatalf("snapshot does not carry pending targets: %s", blob)
	}
	restored, err := UnmarshalState(blob)
	if err != nil {
		t.Fatalf("UnmarshalState failed: %v", err)
	}
	out := r.Step(restored, Event{Kind: EventChoice, Choice: 1})
	if len(out.Effects) != 1 || out.Effects[0].Args[0] != "b" {
		t.Fatalf("restored wait did not honor the selection: %+v", out)
	}
}
