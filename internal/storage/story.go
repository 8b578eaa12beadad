/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package storage manages a story directory on disk: the script file, the
// asset subfolders and the per-story save database under .scn/.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"scenarist/internal/script"
)

const (
	ScriptFileName = "story.md"

	// StoryDirName holds all per-story ephemeral data under the story root.
	StoryDirName = ".scn"
)

// Standard subfolders scaffolded for a new story.
var standardSubDirs = []string{
	"assets/bgm",
	"assets/se",
	"assets/images",
	"assets/movies",
	"exports",
	StoryDirName,
}

// StoryHandle tracks a story loaded from disk. Root is the directory
// containing story.md and the asset subfolders.
type StoryHandle struct {
	Root       string
	ScriptPath string
}

// InitStory creates a new story directory at root (creating it if needed),
// scaffolds the standard subfolders and writes an initial script file unless
// one already exists.
func InitStory(root string) (*StoryHandle, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root path is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create story root: %w", err)
	}
	for _, d := range standardSubDirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, fmt.Errorf("create subdir %s: %w", d, err)
		}
	}
	h := &StoryHandle{Root: root, ScriptPath: filepath.Join(root, ScriptFileName)}
	if _, err := os.Stat(h.ScriptPath); errors.Is(err, os.ErrNotExist) {
		seed := "# New story\n\n[SAY speaker=Narrator]\nOnce upon a time...\n"
		if werr := os.WriteFile(h.ScriptPath, []byte(seed), 0o644); werr != nil {
			return nil, fmt.Errorf("write initial script: %w", werr)
		}
	}
	return h, nil
}

// OpenStory loads an existing story from the given root directory.
func OpenStory(root string) (*StoryHandle, error) {
	spath := filepath.Join(root, ScriptFileName)
	if _, err := os.Stat(spath); err != nil {
		return nil, fmt.Errorf("open story: %w", err)
	}
	return &StoryHandle{Root: root, ScriptPath: spath}, nil
}

// LoadScript reads the raw script text.
func (h *StoryHandle) LoadScript() (string, error) {
	b, err := os.ReadFile(h.ScriptPath)
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(b), nil
}

// LoadProgram reads and parses the story script.
func (h *StoryHandle) LoadProgram() (*script.Program, error) {
	text, err := h.LoadScript()
	if err != nil {
		return nil, err
	}
	return script.Parse(text)
}

// AssetsDir returns the asset root a resolver should be pointed at.
func (h *StoryHandle) AssetsDir() string {
	return filepath.Join(h.Root, "assets")
}

// Fingerprint identifies a script revision. Saves record it so a load
// against a changed script can be flagged instead of resuming blind.
func Fingerprint(scriptText string) string {
	sum := sha256.Sum256([]byte(scriptText))
	return hex.EncodeToString(sum[:8])
}
