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
	"fmt"
	"strings"

	"scenarist/internal/script"

	"github.com/xeipuuv/gojsonschema"
	"github.com/zclconf/go-cty/cty"
)

// SnapshotVersion is the current save blob format. Bump on incompatible
// changes and extend UnmarshalState with a migration.
const SnapshotVersion = 1

// snapshotDTO is the versioned wire form of State. Variable values are
// stored as {type, value-string} pairs so that text like "42" or "true"
// survives a round trip without being re-inferred as a number or boolean.
type snapshotDTO struct {
	Version        int               `json:"version"`
	PC             int               `json:"pc"`
	Vars           map[string]varDTO `json:"vars"`
	WaitingChoice  bool              `json:"waiting_choice,omitempty"`
	PendingTargets []string          `json:"pending_targets,omitempty"`
	LastLabel      string            `json:"last_label,omitempty"`
}

type varDTO struct {
	Type  string `json:"type"` // "int" | "bool" | "text"
	Value string `json:"value"`
}

// snapshotSchema validates the outer shape of a blob before decoding, so
// malformed or truncated saves produce a clean error instead of silently
// resuming from garbage.
const snapshotSchema = `{
  "type": "object",
  "required": ["version", "pc", "vars"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "pc": {"type": "integer", "minimum": 0},
    "vars": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["type", "value"],
        "properties": {
          "type": {"enum": ["int", "bool", "text"]},
          "value": {"type": "string"}
        }
      }
    },
    "waiting_choice": {"type": "boolean"},
    "pending_targets": {"type": "array", "items": {"type": "string"}},
    "last_label": {"type": "string"}
  }
}`

var snapshotSchemaLoader = gojsonschema.NewStringLoader(snapshotSchema)

// MarshalState serializes a state into a versioned blob. The blob carries
// the program counter and variable store plus the branch wait fields, so a
// game saved while parked at a choice resumes exactly there.
func MarshalState(st *State) ([]byte, error) {
	if st == nil {
		return nil, fmt.Errorf("nil state")
	}
	dto := snapshotDTO{
		Version:        SnapshotVersion,
		PC:             st.PC,
		Vars:           make(map[string]varDTO, len(st.Vars)),
		WaitingChoice:  st.WaitingChoice,
		PendingTargets: st.PendingTargets,
		LastLabel:      st.LastLabel,
	}
	for name, v := range st.Vars {
		dto.Vars[name] = varDTO{Type: script.TypeName(v), Value: script.FormatValue(v)}
	}
	return json.Marshal(dto)
}

// UnmarshalState restores a state from a blob produced by MarshalState.
// Malformed bytes, schema violations and unknown versions are reported
// errors, never a crash.
func UnmarshalState(data []byte) (*State, error) {
	result, err := gojsonschema.Validate(snapshotSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("snapshot validate: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("snapshot schema: %s", strings.Join(msgs, "; "))
	}

	var dto snapshotDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("snapshot decode: %w", err)
	}
	if dto.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", dto.Version)
	}

	st := NewState()
	st.PC = dto.PC
	st.WaitingChoice = dto.WaitingChoice
	st.PendingTargets = dto.PendingTargets
	st.LastLabel = dto.LastLabel
	for name, v := range dto.Vars {
		val, err := decodeVar(v)
		if err != nil {
			return nil, fmt.Errorf("snapshot variable %q: %w", name, err)
		}
		st.Vars[name] = val
	}
	return st, nil
}

func decodeVar(v varDTO) (cty.Value, error) {
	switch v.Type {
	case "int":
		parsed := script.ParseLiteral(v.Value)
		if script.TypeName(parsed) != "int" {
			return cty.NilVal, fmt.Errorf("not an integer: %q", v.Value)
		}
		return parsed, nil
	case "bool":
		switch v.Value {
		case "true":
			return cty.True, nil
		case "false":
			return cty.False, nil
		}
		return cty.NilVal, fmt.Errorf("not a boolean: %q", v.Value)
	case "text":
		return cty.StringVal(v.Value), nil
	default:
		return cty.NilVal, fmt.Errorf("unknown type tag %q", v.Type)
	}
}
