/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package rewind keeps a bounded in-memory history of serialized engine
// states so a running story can step back to an earlier point. Blobs are
// opaque; the history never re-executes anything.
package rewind

import (
	"sync"
	"time"
)

// Snapshot is one recorded resumption point. Blob content is opaque to the
// history; size is accounted as len(Blob). TS is when it was captured.
type Snapshot struct {
	PC   int
	Blob []byte
	TS   time.Time
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap; the oldest entries are pruned when exceeded.
	MaxBytes int
	// MaxDepth limits the number of snapshots kept (0 means unlimited).
	MaxDepth int
	// MinInterval coalesces snapshots captured within the interval,
	// replacing the previous one instead of pushing a new entry.
	MinInterval time.Duration
}

// History is a bounded snapshot stack. It is safe for concurrent use.
type History struct {
	cfg Config
	mu  sync.Mutex

	stack      []Snapshot
	totalBytes int
}

func NewHistory(cfg Config) *History {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 4 * 1024 * 1024 // 4 MiB
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 100 * time.Millisecond
	}
	return &History{cfg: cfg}
}

// Push records a snapshot. Within MinInterval of the previous entry it
// replaces it, so a burst of continuing instructions leaves one entry.
func (h *History) Push(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.stack); n > 0 {
		last := h.stack[n-1]
		if s.TS.Sub(last.TS) < h.cfg.MinInterval {
			h.totalBytes -= len(last.Blob)
			h.totalBytes += len(s.Blob)
			h.stack[n-1] = s
			h.enforceCapsLocked()
			return
		}
	}
	h.stack = append(h.stack, s)
	h.totalBytes += len(s.Blob)
	h.enforceCapsLocked()
}

// Back pops the most recent snapshot. The second return is false when the
// history is empty.
func (h *History) Back() (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.stack) == 0 {
		return Snapshot{}, false
	}
	s := h.stack[len(h.stack)-1]
	h.stack = h.stack[:len(h.stack)-1]
	h.totalBytes -= len(s.Blob)
	return s, true
}

// Clear drops the whole history to free memory.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stack = nil
	h.totalBytes = 0
}

// Stats returns current sizes for diagnostics.
func (h *History) Stats() (totalBytes, depth int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.totalBytes, len(h.stack)
}

func (h *History) enforceCapsLocked() {
	if h.cfg.MaxDepth > 0 && len(h.stack) > h.cfg.MaxDepth {
		toDrop := len(h.stack) - h.cfg.MaxDepth
		for i := 0; i < toDrop; i++ {
			h.totalBytes -= len(h.stack[i].Blob)
		}
		h.stack = append([]Snapshot{}, h.stack[toDrop:]...)
	}
	for h.cfg.MaxBytes > 0 && h.totalBytes > h.cfg.MaxBytes && len(h.stack) > 1 {
		h.totalBytes -= len(h.stack[0].Blob)
		h.stack = h.stack[1:]
	}
}
