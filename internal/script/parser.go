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
	"strconv"
	"strings"
)

// Parse converts scenario script text into a validated Program.
// Supported syntax:
//   - Command lines: "[KEYWORD key=value ...]"; the first token inside the
//     brackets is the keyword, the remainder is whitespace-separated key=value
//     parameters. Values may be double-quoted to embed whitespace.
//   - BRANCH uses a second tokenizing mode: the parameter region is a
//     comma-separated list of groups, one group per choice, each group holding
//     choice=/label=/condition= tokens. Quoting admits embedded commas.
//   - SAY takes its text from trailing content after "]" or, if absent, from
//     the next non-empty, non-bracketed line.
//   - Lines that are blank, comments ("<!--") or headings ("#") are skipped,
//     as is loose prose outside any command.
//
// Parsing is pure and deterministic. The first error aborts with a
// *ParseError carrying the 1-based source line; no partial Program is ever
// produced. After the instruction list is built, a validation pass confirms
// that every JUMP, JUMP_IF and branch-choice target resolves to a declared
// LABEL.
func Parse(text string) (*Program, error) {
	lines := strings.Split(text, "\n")
	var ins []Instruction
	labels := make(map[string]int)
	conditions := make(map[string]struct{})
	consumed := make(map[int]bool)

	for i := 0; i < len(lines); i++ {
		if consumed[i] {
			continue
		}
		lineNo := i + 1
		t := strings.TrimSpace(strings.TrimRight(lines[i], "\r"))
		if t == "" || strings.HasPrefix(t, "<!--") || strings.HasPrefix(t, "#") {
			continue
		}
		if !strings.HasPrefix(t, "[") {
			// plain heading or loose prose outside any command
			continue
		}
		closeIdx := strings.Index(t, "]")
		if closeIdx < 0 {
			return nil, parseErr(ErrInvalidSyntax, lineNo, "", "missing closing bracket")
		}
		inside := strings.TrimSpace(t[1:closeIdx])
		trailing := strings.TrimSpace(t[closeIdx+1:])
		keyword, rest := inside, ""
		if idx := strings.IndexAny(inside, " \t"); idx >= 0 {
			keyword, rest = inside[:idx], inside[idx+1:]
		}
		keyword = strings.ToUpper(keyword)
		if keyword == "" {
			return nil, parseErr(ErrInvalidSyntax, lineNo, "", "empty command")
		}

		in := Instruction{Line: lineNo}
		switch keyword {
		case "SAY":
			params, err := parseParams(rest, lineNo)
			if err != nil {
				return nil, err
			}
			in.Kind = KindSay
			in.Speaker = params["speaker"]
			if trailing != "" {
				in.Text = trailing
			} else {
				body, bodyIdx := sayBody(lines, i+1)
				if bodyIdx < 0 {
					return nil, parseErr(ErrMissingParameter, lineNo, "text", "SAY has no trailing text and no body line")
				}
				in.Text = body
				consumed[bodyIdx] = true
			}

		case "PLAY_BGM", "PLAY_SE", "PLAY_MOVIE":
			params, err := parseParams(rest, lineNo)
			if err != nil {
				return nil, err
			}
			name, err := need(params, "name", lineNo)
			if err != nil {
				return nil, err
			}
			switch keyword {
			case "PLAY_BGM":
				in.Kind = KindPlayBgm
			case "PLAY_SE":
				in.Kind = KindPlaySe
			default:
				in.Kind = KindPlayMovie
			}
			in.Resource = name

		case "SHOW_IMAGE":
			params, err := parseParams(rest, lineNo)
			if err != nil {
				return nil, err
			}
			name, err := need(params, "name", lineNo)
			if err != nil {
				return nil, err
			}
			in.Kind = KindShowImage
			in.Resource = name
			in.Layer = params["layer"]

		case "CLEAR_LAYER":
			params, err := parseParams(rest, lineNo)
			if err != nil {
				return nil, err
			}
			layer, err := need(params, "layer", lineNo)
			if err != nil {
				return nil, err
			}
			in.Kind = KindClearLayer
			in.Layer = layer

		case "WAIT":
			params, err := parseParams(rest, lineNo)
			if err != nil {
				return nil, err
			}
			secs, err := need(params, "seconds", lineNo)
			if err != nil {
				return nil, err
			}
			f, ferr := strconv.ParseFloat(secs, 64)
			if ferr != nil || f < 0 {
				return nil, parseErr(ErrInvalidValue, lineNo, secs, "seconds must be a non-negative number")
			}
			in.Kind = KindWait
			in.Seconds = f

		case "LABEL":
			params, err := parseParams(rest, lineNo)
			if err != nil {
				return nil, err
			}
			name, err := need(params, "name", lineNo)
			if err != nil {
				return nil, err
			}
			if _, dup := labels[name]; dup {
				return nil, parseErr(ErrDuplicateLabel, lineNo, name, "")
			}
			in.Kind = KindLabel
			in.Name = name
			labels[name] = len(ins)

		case "JUMP":
			params, err := parseParams(rest, lineNo)
			if err != nil {
				return nil, err
			}
			target, err := need(params, "label", lineNo)
			if err != nil {
				return nil, err
			}
			in.Kind = KindJump
			in.Target = target

		case "JUMP_IF":
			params, err := parseParams(rest, lineNo)
			if err != nil {
				return nil, err
			}
			name, err := need(params, "name", lineNo)
			if err != nil {
				return nil, err
			}
			opTok, err := need(params, "op", lineNo)
			if err != nil {
				return nil, err
			}
			valTok, err := need(params, "value", lineNo)
			if err != nil {
				return nil, err
			}
			target, err := need(params, "label", lineNo)
			if err != nil {
				return nil, err
			}
			cmp, ok := ParseComparator(opTok)
			if !ok {
				return nil, parseErr(ErrInvalidValue, lineNo, opTok, "unknown comparator")
			}
			in.Kind = KindJumpIf
			in.Name = name
			in.Cmp = cmp
			in.Value = ParseLiteral(valTok)
			in.Target = target

		case "SET":
			params, err := parseParams(rest, lineNo)
			if err != nil {
				return nil, err
			}
			name, err := need(params, "name", lineNo)
			if err != nil {
				return nil, err
			}
			valTok, err := need(params, "value", lineNo)
			if err != nil {
				return nil, err
			}
			in.Kind = KindSet
			in.Name = name
			in.Value = ParseLiteral(valTok)

		case "MODIFY":
			params, err := parseParams(rest, lineNo)
			if err != nil {
				return nil, err
			}
			name, err := need(params, "name", lineNo)
			if err != nil {
				return nil, err
			}
			opTok, err := need(params, "op", lineNo)
			if err != nil {
				return nil, err
			}
			valTok, err := need(params, "value", lineNo)
			if err != nil {
				return nil, err
			}
			op, ok := ParseArithOp(opTok)
			if !ok {
				return nil, parseErr(ErrInvalidValue, lineNo, opTok, "unknown arithmetic operator")
			}
			if _, nerr := strconv.ParseInt(valTok, 10, 64); nerr != nil {
				return nil, parseErr(ErrInvalidValue, lineNo, valTok, "MODIFY value must be an integer")
			}
			in.Kind = KindModify
			in.Name = name
			in.Op = op
			in.Value = ParseLiteral(valTok)

		case "BRANCH":
			choices, err := parseBranch(rest, lineNo)
			if err != nil {
				return nil, err
			}
			in.Kind = KindBranch
			in.Choices = choices
			for _, c := range choices {
				if c.Condition != "" {
					conditions[c.Condition] = struct{}{}
				}
			}

		default:
			return nil, parseErr(ErrInvalidSyntax, lineNo, keyword, "unknown keyword")
		}

		ins = append(ins, in)
	}

	// Validation pass: every jump target must resolve to a declared label.
	for _, in := range ins {
		switch in.Kind {
		case KindJump, KindJumpIf:
			if _, ok := labels[in.Target]; !ok {
				return nil, parseErr(ErrUndefinedLabel, in.Line, in.Target, "")
			}
		case KindBranch:
			for _, c := range in.Choices {
				if _, ok := labels[c.Target]; !ok {
					return nil, parseErr(ErrUndefinedLabel, in.Line, c.Target, "")
				}
			}
		}
	}

	return &Program{ins: ins, labels: labels, conditions: conditions}, nil
}

// sayBody finds the next non-empty, non-bracketed line starting at index
// from, skipping comment lines. It returns the body text and the line's
// index, or -1 when no body line exists before the next command or heading.
func sayBody(lines []string, from int) (string, int) {
	for j := from; j < len(lines); j++ {
		t := strings.TrimSpace(strings.TrimRight(lines[j], "\r"))
		if t == "" || strings.HasPrefix(t, "<!--") {
			continue
		}
		if strings.HasPrefix(t, "[") || strings.HasPrefix(t, "#") {
			return "", -1
		}
		return t, j
	}
	return "", -1
}

// parseParams tokenizes a whitespace-separated key=value region. Values may
// be double-quoted; quotes are stripped.
func parseParams(rest string, line int) (map[string]string, error) {
	params := make(map[string]string)
	for _, tok := range fieldsQuoted(rest) {
		key, val, ok := strings.Cut(tok, "=")
		if !ok || key == "" {
			return nil, parseErr(ErrInvalidSyntax, line, tok, "expected key=value")
		}
		params[key] = unquote(val)
	}
	return params, nil
}

// parseBranch tokenizes the BRANCH parameter region: comma-separated groups,
// one group per choice, each group a whitespace-separated set of key=value
// tokens. One line encodes N independent choice/label[/condition] triples.
func parseBranch(rest string, line int) ([]Choice, error) {
	var choices []Choice
	for _, group := range splitQuoted(rest, ',') {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}
		params, err := parseParams(group, line)
		if err != nil {
			return nil, err
		}
		text, err := need(params, "choice", line)
		if err != nil {
			return nil, err
		}
		target, err := need(params, "label", line)
		if err != nil {
			return nil, err
		}
		choices = append(choices, Choice{
			ID:        len(choices),
			Text:      text,
			Target:    target,
			Condition: params["condition"],
		})
	}
	if len(choices) == 0 {
		return nil, parseErr(ErrMissingParameter, line, "choice", "BRANCH needs at least one choice")
	}
	return choices, nil
}

func need(params map[string]string, key string, line int) (string, error) {
	v, ok := params[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", parseErr(ErrMissingParameter, line, key, "")
	}
	return v, nil
}

// splitQuoted splits s on sep, ignoring separators inside double quotes.
func splitQuoted(s string, sep rune) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == sep && !inQuote:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	out = append(out, cur.String())
	return out
}

// fieldsQuoted splits s on whitespace, keeping double-quoted regions intact.
func fieldsQuoted(s string) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case (r == ' ' || r == '\t') && !inQuote:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}
