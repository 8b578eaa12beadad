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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/zclconf/go-cty/cty"

	"scenarist/internal/script"
)

func mustProgram(t *testing.T, text string) *script.Program {
	t.Helper()
	p, err := script.Parse(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return p
}

// stubResolver resolves every name to a fixed path, or nothing at all.
type stubResolver struct{ ok bool }

func (s stubResolver) ResolveBgm(name string) (string, bool)   { return "/r/bgm/" + name, s.ok }
func (s stubResolver) ResolveSe(name string) (string, bool)    { return "/r/se/" + name, s.ok }
func (s stubResolver) ResolveImage(name string) (string, bool) { return "/r/img/" + name, s.ok }
func (s stubResolver) ResolveMovie(name string) (string, bool) { return "/r/mov/" + name, s.ok }

func TestSayEmitsOneLineAndSuspends(t *testing.T) {
	prog := mustProgram(t, "[SAY speaker=Alice]\nHi!")
	r := New(prog, nil)
	st := NewState()

	out := r.Step(st, NoEvent)
	want := []Line{{Speaker: "Alice", Text: "Hi!"}}
	if diff := cmp.Diff(want, out.Lines); diff != "" {
		t.Fatalf("lines mismatch (-want +got):\n%s", diff)
	}
	if st.PC != 1 {
		t.Fatalf("PC = %d, want 1", st.PC)
	}
	if out.Finished {
		t.Fatalf("the step emitting the final line must not yet report finished")
	}
	if !st.Finished(prog) {
		t.Fatalf("state should have run off the end")
	}
}

func TestContinuingInstructionsRunWithinOneStep(t *testing.T) {
	prog := mustProgram(t, `[SET name=score value=10]
[MODIFY name=score op=add value=5]
[SAY speaker=S]
Done`)
	r := New(prog, nil)
	st := NewState()

	out := r.Step(st, NoEvent)
	if len(out.Lines) != 1 || out.Lines[0].Text != "Done" {
		t.Fatalf("expected exactly one line \"Done\", got %+v", out.Lines)
	}
	if got := st.Vars["score"]; !got.RawEquals(cty.NumberIntVal(15)) {
		t.Fatalf("score = %s, want 15", script.FormatValue(got))
	}
}

func TestBranchSuspendsAndChoiceResumes(t *testing.T) {
	prog := mustProgram(t, `[BRANCH choice=A label=a, choice=B label=b]
[LABEL name=a]
[SAY speaker=N]
Went A.
[LABEL name=b]
[SAY speaker=N]
Went B.`)
	r := New(prog, nil)
	st := NewState()

	out := r.Step(st, NoEvent)
	if len(out.Choices) != 2 || !st.WaitingChoice {
		t.Fatalf("expected 2 choices and waiting state, got %+v waiting=%v", out.Choices, st.WaitingChoice)
	}
	if out.Choices[0].Label != "A" || out.Choices[1].ID != 1 {
		t.Fatalf("unexpected options: %+v", out.Choices)
	}

	// No event while waiting: state unchanged, empty output, no re-emission.
	before := st.Clone()
	for i := 0; i < 2; i++ {
		idle := r.Step(st, NoEvent)
		if len(idle.Choices) != 0 || len(idle.Lines) != 0 || len(idle.Effects) != 0 {
			t.Fatalf("idle step %d emitted output: %+v", i, idle)
		}
	}
	if diff := cmp.Diff(before, st); diff != "" {
		t.Fatalf("idle steps mutated state (-want +got):\n%s", diff)
	}

	// Selecting the first choice advances into label a.
	sel := r.Step(st, Event{Kind: EventChoice, Choice: 0})
	if st.WaitingChoice {
		t.Fatalf("still waiting after selection")
	}
	if len(sel.Effects) != 1 || sel.Effects[0].Tag != "label" || sel.Effects[0].Args[0] != "a" {
		t.Fatalf("expected label effect for a, got %+v", sel.Effects)
	}
	if st.LastLabel != "a" {
		t.Fatalf("LastLabel = %q, want a", st.LastLabel)
	}
	next := r.Step(st, NoEvent)
	if len(next.Lines) != 1 || next.Lines[0].Text != "Went A." {
		t.Fatalf("expected line from branch a, got %+v", next.Lines)
	}
}

func TestEventIgnoredWhenNotWaiting(t *testing.T) {
	prog := mustProgram(t, "[SAY speaker=A]\nx\n[SAY speaker=A]\ny")
	r := New(prog, nil)
	st := NewState()

	out := r.Step(st, Event{Kind: EventChoice, Choice: 3})
	if len(out.Lines) != 1 || out.Lines[0].Text != "x" {
		t.Fatalf("stray event should be ignored, got %+v", out)
	}
}

func TestOutOfRangeChoiceIgnored(t *testing.T) {
	prog := mustProgram(t, "[BRANCH choice=A label=a]\n[LABEL name=a]")
	r := New(prog, nil)
	st := NewState()
	r.Step(st, NoEvent)

	out := r.Step(st, Event{Kind: EventChoice, Choice: 5})
	if !st.WaitingChoice || len(out.Lines)+len(out.Effects)+len(out.Choices) != 0 {
		t.Fatalf("out-of-range selection must be ignored, got %+v waiting=%v", out, st.WaitingChoice)
	}
}

func TestJumpIfComparatorsAndPermissiveness(t *testing.T) {
	prog := mustProgram(t, `[SET name=hp value=3]
[JUMP_IF name=hp op=lt value=5 label=low]
[SAY speaker=N]
unreachable
[LABEL name=low]
[SAY speaker=N]
low hp`)
	r := New(prog, nil)
	st := NewState()

	out := r.Step(st, NoEvent) // SET + taken jump + LABEL suspension
	if len(out.Effects) != 1 || out.Effects[0].Tag != "label" {
		t.Fatalf("expected label suspension after taken jump, got %+v", out)
	}
	out = r.Step(st, NoEvent)
	if len(out.Lines) != 1 || out.Lines[0].Text != "low hp" {
		t.Fatalf("expected low hp line, got %+v", out.Lines)
	}
}

func TestJumpIfMissingVariableIsFalse(t *testing.T) {
	prog := mustProgram(t, `[JUMP_IF name=ghost op=eq value=1 label=end]
[SAY speaker=N]
fell through
[LABEL name=end]`)
	r := New(prog, nil)
	st := NewState()

	out := r.Step(st, NoEvent)
	if len(out.Lines) != 1 || out.Lines[0].Text != "fell through" {
		t.Fatalf("missing variable should evaluate false, got %+v", out)
	}
}

func TestJumpIfTextOrderingEvaluatesFalse(t *testing.T) {
	prog := mustProgram(t, `[SET name=mood value=happy]
[JUMP_IF name=mood op=gt value=aaa label=end]
[SAY speaker=N]
not taken
[LABEL name=end]`)
	r := New(prog, nil)
	st := NewState()

	out := r.Step(st, NoEvent)
	if len(out.Lines) != 1 || out.Lines[0].Text != "not taken" {
		t.Fatalf("text ordering comparator must be false, got %+v", out)
	}
}

func TestModifyDegradations(t *testing.T) {
	prog := mustProgram(t, `[MODIFY name=ghost op=add value=1]
[SET name=title value=hello]
[MODIFY name=title op=add value=1]
[SET name=n value=4]
[MODIFY name=n op=div value=0]
[SAY speaker=N]
done`)
	r := New(prog, nil)
	st := NewState()

	out := r.Step(st, NoEvent)
	if len(out.Lines) != 1 || out.Lines[0].Text != "done" {
		t.Fatalf("degraded modifies must not stop execution, got %+v", out)
	}
	if _, ok := st.Vars["ghost"]; ok {
		t.Fatalf("modify must not create missing variables")
	}
	if got := st.Vars["title"]; !got.RawEquals(cty.StringVal("hello")) {
		t.Fatalf("type-mismatched modify changed value: %s", script.FormatValue(got))
	}
	if got := st.Vars["n"]; !got.RawEquals(cty.NumberIntVal(4)) {
		t.Fatalf("divide by zero changed value: %s", script.FormatValue(got))
	}
}

func TestResolverPathsAndUnresolvedMarker(t *testing.T) {
	text := "[PLAY_BGM name=town]\n[SHOW_IMAGE name=alice layer=portrait]"
	prog := mustProgram(t, text)

	r := New(prog, stubResolver{ok: true})
	st := NewState()
	out := r.Step(st, NoEvent)
	if got := out.Effects[0]; got.Tag != "bgm" || got.Args[1] != "/r/bgm/town" {
		t.Fatalf("unexpected resolved bgm effect: %+v", got)
	}
	out = r.Step(st, NoEvent)
	want := Effect{Tag: "image", Args: []string{"alice", "/r/img/alice", "portrait"}}
	if diff := cmp.Diff(want, out.Effects[0]); diff != "" {
		t.Fatalf("image effect mismatch (-want +got):\n%s", diff)
	}

	// Without a resolver every resource degrades to the unresolved marker.
	r = New(mustProgram(t, text), nil)
	st = NewState()
	out = r.Step(st, NoEvent)
	if got := out.Effects[0]; got.Args[1] != UnresolvedMarker {
		t.Fatalf("expected unresolved marker, got %+v", got)
	}
}

func TestForwardProgramsTerminate(t *testing.T) {
	prog := mustProgram(t, `[LABEL name=start]
[SAY speaker=A]
one
[WAIT seconds=1]
[PLAY_SE name=ding]
[SAY speaker=B]
two
[CLEAR_LAYER layer=base]`)
	r := New(prog, nil)
	st := NewState()

	steps := 0
	for !st.Finished(prog) {
		r.Step(st, NoEvent)
		steps++
		if steps > prog.Len()+1 {
			t.Fatalf("program did not terminate in a bounded number of steps")
		}
	}
	if out := r.Step(st, NoEvent); !out.Finished {
		t.Fatalf("stepping a finished program must report Finished")
	}
}

func TestBackwardJumpWithConditionTerminates(t *testing.T) {
	prog := mustProgram(t, `[SET name=i value=0]
[LABEL name=loop]
[MODIFY name=i op=add value=1]
[SAY speaker=N]
tick
[JUMP_IF name=i op=lt value=3 label=loop]`)
	r := New(prog, nil)
	st := NewState()

	ticks := 0
	for i := 0; i < 50 && !st.Finished(prog); i++ {
		out := r.Step(st, NoEvent)
		ticks += len(out.Lines)
	}
	if !st.Finished(prog) {
		t.Fatalf("conditional loop did not terminate")
	}
	if ticks != 3 {
		t.Fatalf("loop body ran %d times, want 3", ticks)
	}
}
