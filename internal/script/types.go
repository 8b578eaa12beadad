/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package script

import (
	"sort"

	"github.com/zclconf/go-cty/cty"
)

// Kind identifies the command an Instruction was parsed from.
type Kind int

const (
	KindSay Kind = iota
	KindPlayBgm
	KindPlaySe
	KindPlayMovie
	KindShowImage
	KindWait
	KindBranch
	KindJump
	KindJumpIf
	KindSet
	KindModify
	KindLabel
	KindClearLayer
)

var kindNames = [...]string{
	KindSay:        "SAY",
	KindPlayBgm:    "PLAY_BGM",
	KindPlaySe:     "PLAY_SE",
	KindPlayMovie:  "PLAY_MOVIE",
	KindShowImage:  "SHOW_IMAGE",
	KindWait:       "WAIT",
	KindBranch:     "BRANCH",
	KindJump:       "JUMP",
	KindJumpIf:     "JUMP_IF",
	KindSet:        "SET",
	KindModify:     "MODIFY",
	KindLabel:      "LABEL",
	KindClearLayer: "CLEAR_LAYER",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "UNKNOWN"
}

// Choice is one option of a BRANCH instruction. ID is the zero-based ordinal
// within its branch; Condition is an optional name recorded for diagnostics.
type Choice struct {
	ID        int
	Text      string
	Target    string
	Condition string
}

// Instruction is one parsed command node. It is a flat record rather than a
// sealed interface; Kind determines which fields are meaningful.
// Line is the 1-based source line the command was parsed from.
type Instruction struct {
	Kind Kind
	Line int

	Speaker  string // Say
	Text     string // Say
	Resource string // PlayBgm, PlaySe, PlayMovie, ShowImage
	Layer    string // ShowImage, ClearLayer
	Seconds  float64
	Choices  []Choice // Branch
	Target   string   // Jump, JumpIf
	Name     string   // Label, Set, Modify, JumpIf (variable)
	Cmp      Comparator
	Op       ArithOp
	Value    cty.Value // Set, Modify, JumpIf literal
}

// Program is a parsed, validated scenario: an immutable instruction sequence,
// a label-name to index map, and the set of condition names declared by
// branch choices (used by diagnostics only). Every jump target has been
// verified to resolve to a declared label; the engine never re-checks.
type Program struct {
	ins        []Instruction
	labels     map[string]int
	conditions map[string]struct{}
}

// Len returns the number of instructions.
func (p *Program) Len() int { return len(p.ins) }

// At returns the instruction at index i.
func (p *Program) At(i int) Instruction { return p.ins[i] }

// LabelIndex resolves a label name to its instruction index.
func (p *Program) LabelIndex(name string) (int, bool) {
	i, ok := p.labels[name]
	return i, ok
}

// Labels returns a copy of the label map.
func (p *Program) Labels() map[string]int {
	out := make(map[string]int, len(p.labels))
	for k, v := range p.labels {
		out[k] = v
	}
	return out
}

// Conditions returns the declared condition names in sorted order.
func (p *Program) Conditions() []string {
	out := make([]string, 0, len(p.conditions))
	for name := range p.conditions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
