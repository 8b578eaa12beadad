/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	applog "scenarist/internal/log"
	"scenarist/internal/version"
	"log/slog"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	SavesFileName = "saves.sqlite"

	// AutosaveSlot is the slot continuous autosaves and crash snapshots
	// are written to; named slots never collide with it.
	AutosaveSlot = "autosave"

	// schemaVersion tracks the local SQLite schema of the save database.
	// Bump on breaking changes and add a migration in runMigrations.
	schemaVersion = 1
)

// SavesPath returns the full path to the story's save database file.
func SavesPath(storyRoot string) string {
	return filepath.Join(storyRoot, StoryDirName, SavesFileName)
}

// OpenSaves opens (creating if needed) the per-story save database at
// .scn/saves.sqlite, enables WAL mode and ensures the schema exists. The
// returned *sql.DB is ready for use; callers close it when done.
func OpenSaves(storyRoot string) (*sql.DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "saves_open").With(
		slog.String("root", storyRoot),
	)
	if storyRoot == "" {
		return nil, errors.New("story root is required")
	}
	if err := os.MkdirAll(filepath.Join(storyRoot, StoryDirName), 0o755); err != nil {
		l.Error("create .scn dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create .scn dir: %w", err)
	}

	path := SavesPath(storyRoot)
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureSavesSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure saves schema failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("saves db ready", slog.String("path", path))
	return db, nil
}

func ensureSavesSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS saves (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			slot        TEXT NOT NULL,
			ts          TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			blob        BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_saves_slot_ts ON saves(slot, ts DESC);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// language=SQL
// dialect=SQLite
const insertSaveSQL = `INSERT INTO saves(slot, ts, fingerprint, blob) VALUES (?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestSaveSQL = `SELECT ts, fingerprint, blob FROM saves WHERE slot = ? ORDER BY ts DESC, id DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const listSlotsSQL = `SELECT slot, MAX(ts) FROM saves GROUP BY slot ORDER BY MAX(ts) DESC`

// language=SQL
// dialect=SQLite
const pruneSlotSQL = `DELETE FROM saves WHERE slot = ? AND id NOT IN (
	SELECT id FROM saves WHERE slot = ? ORDER BY ts DESC, id DESC LIMIT ?
)`

// Save persists a serialized engine state under a named slot.
func Save(ctx context.Context, h *StoryHandle, slot, fingerprint string, blob []byte, ts time.Time) error {
	if h == nil {
		return errors.New("nil StoryHandle")
	}
	if slot == "" {
		return errors.New("slot name is required")
	}
	db, err := OpenSaves(h.Root)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	_, err = db.ExecContext(ctx, insertSaveSQL, slot, ts.UTC().Format(time.RFC3339Nano), fingerprint, blob)
	return err
}

// SaveRecord is one loaded save slot entry.
type SaveRecord struct {
	Slot        string
	TS          time.Time
	Fingerprint string
	Blob        []byte
}

// LoadLatest returns the newest save in a slot, or nil if the slot is empty.
func LoadLatest(ctx context.Context, h *StoryHandle, slot string) (*SaveRecord, error) {
	if h == nil {
		return nil, errors.New("nil StoryHandle")
	}
	db, err := OpenSaves(h.Root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	var tsStr string
	rec := &SaveRecord{Slot: slot}
	err = db.QueryRowContext(ctx, selectLatestSaveSQL, slot).Scan(&tsStr, &rec.Fingerprint, &rec.Blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.TS, _ = time.Parse(time.RFC3339Nano, tsStr)
	return rec, nil
}

// SlotInfo summarizes one slot for listings.
type SlotInfo struct {
	Slot string
	TS   time.Time
}

// ListSlots returns every slot with its most recent timestamp, newest first.
func ListSlots(ctx context.Context, h *StoryHandle) ([]SlotInfo, error) {
	if h == nil {
		return nil, errors.New("nil StoryHandle")
	}
	db, err := OpenSaves(h.Root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	rows, err := db.QueryContext(ctx, listSlotsSQL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SlotInfo
	for rows.Next() {
		var si SlotInfo
		var tsStr string
		if err := rows.Scan(&si.Slot, &tsStr); err != nil {
			return nil, err
		}
		si.TS, _ = time.Parse(time.RFC3339Nano, tsStr)
		out = append(out, si)
	}
	return out, rows.Err()
}

// Prune keeps at most keepLast saves in a slot and deletes older ones.
func Prune(ctx context.Context, h *StoryHandle, slot string, keepLast int) (int64, error) {
	if h == nil {
		return 0, errors.New("nil StoryHandle")
	}
	if keepLast <= 0 {
		return 0, nil
	}
	db, err := OpenSaves(h.Root)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()
	res, err := db.ExecContext(ctx, pruneSlotSQL, slot, slot, keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Autosave writes a state blob into the autosave slot and trims the slot to
// the newest keepLast entries. It is best-effort and used both by the run
// loop and the crash handler; keepLast <= 0 skips trimming.
func Autosave(ctx context.Context, h *StoryHandle, fingerprint string, blob []byte, keepLast int) error {
	if err := Save(ctx, h, AutosaveSlot, fingerprint, blob, time.Now()); err != nil {
		return err
	}
	if keepLast > 0 {
		if _, err := Prune(ctx, h, AutosaveSlot, keepLast); err != nil {
			return err
		}
	}
	return nil
}
