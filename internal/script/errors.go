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

import "fmt"

// ErrorKind classifies parse failures. Parse errors are fatal to Program
// construction and carry the offending 1-based source line; no partial
// Program is ever produced.
type ErrorKind int

const (
	ErrInvalidSyntax ErrorKind = iota
	ErrMissingParameter
	ErrInvalidValue
	ErrUndefinedLabel
	ErrDuplicateLabel
)

func (k ErrorKind) String() string {
	switch k {
	case ErrInvalidSyntax:
		return "invalid syntax"
	case ErrMissingParameter:
		return "missing parameter"
	case ErrInvalidValue:
		return "invalid value"
	case ErrUndefinedLabel:
		return "undefined label"
	case ErrDuplicateLabel:
		return "duplicate label"
	default:
		return "parse error"
	}
}

// ParseError is a structured parse failure. Name holds the offending token:
// the unknown keyword, missing parameter key, unparsable literal, or label.
type ParseError struct {
	Kind   ErrorKind
	Line   int
	Name   string
	Detail string
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("line %d: %s", e.Line, e.Kind)
	if e.Name != "" {
		msg += fmt.Sprintf(": %q", e.Name)
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func parseErr(kind ErrorKind, line int, name, detail string) *ParseError {
	return &ParseError{Kind: kind, Line: line, Name: name, Detail: detail}
}
