/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package flow provides static diagnostics over a parsed scenario: a
// reachability pass, a backward-jump loop heuristic and a handful of
// script-quality checks. All passes are pure and run once over a finished
// program, independent of execution.
package flow

import (
	"fmt"
	"sort"

	"scenarist/internal/script"
)

// Severity ranks a diagnostic. Warnings point at probable authoring bugs,
// infos at style issues a script may legitimately have.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "info"
}

// Categories group diagnostics for filtering in tooling output.
const (
	CategoryReachability = "reachability"
	CategoryLoop         = "loop"
	CategoryQuality      = "quality"
)

// Diagnostic is one non-blocking finding. Line is the 1-based source line
// of the instruction it concerns, 0 when the finding has no single line.
type Diagnostic struct {
	Severity Severity
	Category string
	Line     int
	Message  string
}

func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s: line %d: %s", d.Severity, d.Line, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Severity, d.Message)
}

// Analyze runs every pass over prog and returns the findings ordered by
// source line. It never fails: an empty program yields no diagnostics.
func Analyze(prog *script.Program) []Diagnostic {
	if prog == nil || prog.Len() == 0 {
		return nil
	}
	var diags []Diagnostic
	diags = append(diags, reachability(prog)...)
	diags = append(diags, loopHeuristic(prog)...)
	diags = append(diags, quality(prog)...)
	sort.SliceStable(diags, func(i, j int) bool { return diags[i].Line < diags[j].Line })
	return diags
}

// reachability walks the instruction graph breadth-first from index 0.
// Every instruction edges to its sequential successor, except Jump which
// edges only to its target; Branch and JumpIf additionally edge to every
// choice or jump target. Unvisited non-label instructions are reported.
func reachability(prog *script.Program) []Diagnostic {
	visited := make([]bool, prog.Len())
	queue := []int{0}
	visited[0] = true
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		for _, next := range successors(prog, idx) {
			if next < prog.Len() && !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	var diags []Diagnostic
	for i := 0; i < prog.Len(); i++ {
		in := prog.At(i)
		if visited[i] || in.Kind == script.KindLabel {
			continue
		}
		diags = append(diags, Diagnostic{
			Severity: SeverityWarning,
			Category: CategoryReachability,
			Line:     in.Line,
			Message:  fmt.Sprintf("unreachable %s instruction", in.Kind),
		})
	}
	return diags
}

func successors(prog *script.Program, idx int) []int {
	in := prog.At(idx)
	switch in.Kind {
	case script.KindJump:
		t, _ := prog.LabelIndex(in.Target)
		return []int{t}
	case script.KindJumpIf:
		t, _ := prog.LabelIndex(in.Target)
		return []int{idx + 1, t}
	case script.KindBranch:
		out := []int{idx + 1}
		for _, c := range in.Choices {
			t, _ := prog.LabelIndex(c.Target)
			out = append(out, t)
		}
		return out
	default:
		return []int{idx + 1}
	}
}

// loopHeuristic flags every backward Jump whose inclusive range back to its
// target contains neither a JumpIf nor a Branch. Such a cycle has no
// conditional exit and will spin forever. This is a heuristic, not a
// termination proof: a conditional inside the range silences it even when
// the condition can never release.
func loopHeuristic(prog *script.Program) []Diagnostic {
	var diags []Diagnostic
	for i := 0; i < prog.Len(); i++ {
		in := prog.At(i)
		if in.Kind != script.KindJump {
			continue
		}
		target, ok := prog.LabelIndex(in.Target)
		if !ok || target > i {
			continue
		}
		conditional := false
		for j := target; j <= i; j++ {
			k := prog.At(j).Kind
			if k == script.KindJumpIf || k == script.KindBranch {
				conditional = true
				break
			}
		}
		if !conditional {
			diags = append(diags, Diagnostic{
				Severity: SeverityWarning,
				Category: CategoryLoop,
				Line:     in.Line,
				Message:  fmt.Sprintf("potential infinite loop: unconditional jump back to label %q with no conditional in between", in.Target),
			})
		}
	}
	return diags
}

// quality reports non-blocking style findings: labels nothing jumps to,
// single-option branches and choice conditions no instruction ever sets.
func quality(prog *script.Program) []Diagnostic {
	var diags []Diagnostic

	targeted := make(map[string]bool)
	assigned := make(map[string]bool)
	for i := 0; i < prog.Len(); i++ {
		in := prog.At(i)
		switch in.Kind {
		case script.KindJump, script.KindJumpIf:
			targeted[in.Target] = true
		case script.KindBranch:
			for _, c := range in.Choices {
				targeted[c.Target] = true
			}
		case script.KindSet, script.KindModify:
			assigned[in.Name] = true
		}
	}

	for i := 0; i < prog.Len(); i++ {
		in := prog.At(i)
		switch in.Kind {
		case script.KindLabel:
			if !targeted[in.Name] {
				diags = append(diags, Diagnostic{
					Severity: SeverityInfo,
					Category: CategoryQuality,
					Line:     in.Line,
					Message:  fmt.Sprintf("label %q is never targeted", in.Name),
				})
			}
		case script.KindBranch:
			if len(in.Choices) == 1 {
				diags = append(diags, Diagnostic{
					Severity: SeverityInfo,
					Category: CategoryQuality,
					Line:     in.Line,
					Message:  "branch offers a single choice",
				})
			}
		}
	}

	for _, name := range prog.Conditions() {
		if !assigned[name] {
			diags = append(diags, Diagnostic{
				Severity: SeverityInfo,
				Category: CategoryQuality,
				Message:  fmt.Sprintf("choice condition %q is never set by the script", name),
			})
		}
	}
	return diags
}
