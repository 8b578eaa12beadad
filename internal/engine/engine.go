/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package engine runs a parsed scenario Program as a resumable, externally
// driven state machine. Step is the sole suspension point: the caller owns
// the driving loop, delivers at most one Event per call, and decides when to
// call again. The engine is single-threaded by contract; a (Program, State)
// pair must not be shared across concurrent callers.
package engine

import (
	"log/slog"
	"strconv"

	applog "scenarist/internal/log"
	"scenarist/internal/script"
)

// Resolver maps logical resource names to playable paths. It is consumed,
// not implemented, by the engine; unresolved names degrade to a marker in
// Output and never fail execution.
type Resolver interface {
	ResolveBgm(name string) (string, bool)
	ResolveSe(name string) (string, bool)
	ResolveImage(name string) (string, bool)
	ResolveMovie(name string) (string, bool)
}

// EventKind discriminates host events delivered to Step.
type EventKind int

const (
	// EventNone is the zero event; Step treats it as "no input".
	EventNone EventKind = iota
	// EventChoice selects a pending branch option by index.
	EventChoice
)

// Event is host input for one Step call.
type Event struct {
	Kind   EventKind
	Choice int
}

// NoEvent is the empty event for plain advancement calls.
var NoEvent = Event{}

// Line is one emitted dialogue line. Speaker may be empty for narration.
type Line struct {
	Speaker string
	Text    string
}

// Effect is an emitted presentation marker with opaque ordered arguments,
// e.g. {"bgm", ["town_theme", "/assets/bgm/town_theme.ogg"]} or
// {"wait", ["1.5"]}. Unresolved resources carry "unresolved" as the path.
type Effect struct {
	Tag  string
	Args []string
}

// Option is one selectable branch choice presented to the host.
type Option struct {
	ID    int
	Label string
}

// Output is the observable batch produced by one Step call: a pure
// projection of the instructions executed in that call. Finished is set
// only when a call runs off the end of the program with nothing left to
// execute; the call that emits the final line does not yet report it.
type Output struct {
	Lines    []Line
	Effects  []Effect
	Choices  []Option
	Finished bool
}

// State is the mutable resumption point of one execution. It is plain data:
// everything needed to resume is serializable via MarshalState.
//
// While WaitingChoice is set, PC already points past the Branch that raised
// it; PendingTargets keeps the ordered jump targets until a selection
// arrives. This rule (advance past the branch, persist the pending targets)
// is the documented resolution of the mid-branch resume question.
type State struct {
	PC             int
	Vars           script.Variables
	WaitingChoice  bool
	PendingTargets []string
	LastLabel      string
}

// NewState returns a fresh state at instruction 0 with an empty store.
func NewState() *State {
	return &State{Vars: make(script.Variables)}
}

// Finished reports whether the program counter has run off the end of prog.
// A state parked at a branch is not finished: a selection may still jump
// back into the program.
func (s *State) Finished(prog *script.Program) bool {
	return s.PC >= prog.Len() && !s.WaitingChoice
}

// Clone returns an independent deep copy of the state.
func (s *State) Clone() *State {
	return &State{
		PC:             s.PC,
		Vars:           s.Vars.Clone(),
		WaitingChoice:  s.WaitingChoice,
		PendingTargets: append([]string(nil), s.PendingTargets...),
		LastLabel:      s.LastLabel,
	}
}

// Runner executes one Program. The Resolver may be nil, in which case every
// resource is reported unresolved.
type Runner struct {
	prog *script.Program
	res  Resolver
	log  *slog.Logger
}

// New creates a Runner for prog.
func New(prog *script.Program, res Resolver) *Runner {
	return &Runner{prog: prog, res: res, log: applog.WithComponent("engine")}
}

// Program returns the program this runner executes.
func (r *Runner) Program() *script.Program { return r.prog }

// Step advances the scenario by one meaningful unit.
//
// A choice event received while waiting resolves to an index into the
// pending targets, moves the program counter to that label, clears the wait
// flags and falls through to normal advancement without emitting output of
// its own. An event not matching an active wait is ignored. If the state is
// still waiting after event handling, Step returns it unchanged with empty
// Output. Otherwise instructions execute from PC until one suspending
// instruction has run (Say, media, Wait, ClearLayer, Label) or a Branch
// suspends, or the program ends. Jump, JumpIf, Set and Modify continue
// within the same call.
//
// Run-time data problems (missing variables, type mismatches, division by
// zero) degrade to a false condition or a no-op; input was validated at
// parse time and the engine never aborts mid-scenario.
func (r *Runner) Step(st *State, ev Event) Output {
	var out Output

	if st.WaitingChoice {
		if ev.Kind == EventChoice && ev.Choice >= 0 && ev.Choice < len(st.PendingTargets) {
			target := st.PendingTargets[ev.Choice]
			// Targets were validated at parse time; a miss here means the
			// state does not belong to this program.
			if idx, ok := r.prog.LabelIndex(target); ok {
				st.PC = idx
				st.WaitingChoice = false
				st.PendingTargets = nil
			} else {
				r.log.Warn("pending choice target not in program", slog.String("target", target))
				out.Finished = st.Finished(r.prog)
				return out
			}
		} else {
			// Parked at a branch with no matching event.
			out.Finished = st.Finished(r.prog)
			return out
		}
	}

	for st.PC < r.prog.Len() {
		in := r.prog.At(st.PC)
		switch in.Kind {
		case script.KindJump:
			idx, _ := r.prog.LabelIndex(in.Target)
			st.PC = idx
			continue

		case script.KindJumpIf:
			cur, ok := st.Vars[in.Name]
			if !ok {
				// Missing variable: condition is false, keep going.
				r.log.Debug("jump_if on unset variable", slog.String("name", in.Name))
				st.PC++
				continue
			}
			if script.Compare(cur, in.Cmp, in.Value) {
				idx, _ := r.prog.LabelIndex(in.Target)
				st.PC = idx
			} else {
				st.PC++
			}
			continue

		case script.KindSet:
			st.Vars[in.Name] = in.Value
			st.PC++
			continue

		case script.KindModify:
			cur, ok := st.Vars[in.Name]
			if !ok {
				r.log.Warn("modify on unset variable", slog.String("name", in.Name))
				st.PC++
				continue
			}
			next, err := script.Apply(cur, in.Op, in.Value)
			if err != nil {
				r.log.Warn("modify skipped", slog.String("name", in.Name), slog.Any("err", err))
				st.PC++
				continue
			}
			st.Vars[in.Name] = next
			st.PC++
			continue

		case script.KindBranch:
			targets := make([]string, len(in.Choices))
			for i, c := range in.Choices {
				targets[i] = c.Target
				out.Choices = append(out.Choices, Option{ID: c.ID, Label: c.Text})
			}
			st.PendingTargets = targets
			st.WaitingChoice = true
			st.PC++
			return out

		case script.KindSay:
			out.Lines = append(out.Lines, Line{Speaker: in.Speaker, Text: in.Text})
			st.PC++
			return out

		case script.KindPlayBgm:
			out.Effects = append(out.Effects, r.resourceEffect("bgm", in.Resource, resolveBgm))
			st.PC++
			return out

		case script.KindPlaySe:
			out.Effects = append(out.Effects, r.resourceEffect("se", in.Resource, resolveSe))
			st.PC++
			return out

		case script.KindPlayMovie:
			out.Effects = append(out.Effects, r.resourceEffect("movie", in.Resource, resolveMovie))
			st.PC++
			return out

		case script.KindShowImage:
			eff := r.resourceEffect("image", in.Resource, resolveImage)
			if in.Layer != "" {
				eff.Args = append(eff.Args, in.Layer)
			}
			out.Effects = append(out.Effects, eff)
			st.PC++
			return out

		case script.KindWait:
			out.Effects = append(out.Effects, Effect{
				Tag:  "wait",
				Args: []string{strconv.FormatFloat(in.Seconds, 'f', -1, 64)},
			})
			st.PC++
			return out

		case script.KindClearLayer:
			out.Effects = append(out.Effects, Effect{Tag: "clear_layer", Args: []string{in.Layer}})
			st.PC++
			return out

		case script.KindLabel:
			st.LastLabel = in.Name
			out.Effects = append(out.Effects, Effect{Tag: "label", Args: []string{in.Name}})
			st.PC++
			return out
		}
	}

	out.Finished = true
	return out
}

// UnresolvedMarker is the path argument emitted for resources the resolver
// could not locate.
const UnresolvedMarker = "unresolved"

type resolveFn func(Resolver, string) (string, bool)

func resolveBgm(r Resolver, name string) (string, bool)   { return r.ResolveBgm(name) }
func resolveSe(r Resolver, name string) (string, bool)    { return r.ResolveSe(name) }
func resolveImage(r Resolver, name string) (string, bool) { return r.ResolveImage(name) }
func resolveMovie(r Resolver, name string) (string, bool) { return r.ResolveMovie(name) }

func (r *Runner) resourceEffect(tag, name string, resolve resolveFn) Effect {
	path := UnresolvedMarker
	if r.res != nil {
		if p, ok := resolve(r.res, name); ok {
			path = p
		} else {
			r.log.Debug("resource not resolved", slog.String("tag", tag), slog.String("name", name))
		}
	}
	return Effect{Tag: tag, Args: []string{name, path}}
}
