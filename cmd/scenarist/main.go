/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"scenarist/internal/assets"
	"scenarist/internal/backend"
	"scenarist/internal/config"
	"scenarist/internal/crash"
	"scenarist/internal/engine"
	"scenarist/internal/export"
	"scenarist/internal/flow"
	applog "scenarist/internal/log"
	"scenarist/internal/rewind"
	"scenarist/internal/storage"
	"scenarist/internal/telemetry"
	"scenarist/internal/version"
)

func usage() {
	fmt.Println("Scenarist — branching story engine")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  scenarist version|-v|--version      Show version")
	fmt.Println("  scenarist init <dir>                Create a new story at <dir>")
	fmt.Println("  scenarist lint <dir>                Parse the story and print diagnostics")
	fmt.Println("  scenarist run <dir>                 Play the story interactively")
	fmt.Println("  scenarist export <dir> [out.pdf]    Write a PDF transcript")
	fmt.Println("  scenarist sync push|pull <dir>      Exchange saves with the sync server")
	fmt.Println()
	fmt.Println("During run: Enter advances, a number picks a choice, and")
	fmt.Println("  :save <slot>  :load <slot>  :back  :quit")
}

func main() {
	applog.Init(applog.FromEnv())
	l := applog.WithComponent("cli")
	var h *storage.StoryHandle
	defer func() { crash.Recover(h, nil) }()

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) < 2 {
		usage()
		return
	}

	switch args[1] {
	case "version", "--version", "-v":
		fmt.Println("Scenarist — branching story engine")
		fmt.Println(version.String())

	case "init":
		if len(args) < 3 {
			fmt.Println("init requires <dir>")
			usage()
			os.Exit(2)
		}
		abs, _ := filepath.Abs(args[2])
		l.Info("init story", slog.String("root", abs))
		sh, err := storage.InitStory(abs)
		if err != nil {
			l.Error("init failed", slog.Any("err", err))
			fmt.Println("Error:", err)
			os.Exit(1)
		}
		h = sh
		fmt.Println("Created story at", abs)

	case "lint":
		if len(args) < 3 {
			fmt.Println("lint requires <dir>")
			usage()
			os.Exit(2)
		}
		os.Exit(runLint(l, args[2]))

	case "run":
		if len(args) < 3 {
			fmt.Println("run requires <dir>")
			usage()
			os.Exit(2)
		}
		os.Exit(runStory(l, args[2]))

	case "export":
		if len(args) < 3 {
			fmt.Println("export requires <dir>")
			usage()
			os.Exit(2)
		}
		out := ""
		if len(args) >= 4 {
			out = args[3]
		}
		os.Exit(runExport(l, args[2], out))

	case "sync":
		if len(args) < 4 {
			fmt.Println("sync requires push|pull and <dir>")
			usage()
			os.Exit(2)
		}
		os.Exit(runSync(l, args[2], args[3]))

	default:
		usage()
		os.Exit(2)
	}
}

func openStory(l *slog.Logger, dir string) (*storage.StoryHandle, error) {
	abs, _ := filepath.Abs(dir)
	h, err := storage.OpenStory(abs)
	if err != nil {
		l.Error("open story failed", slog.Any("err", err))
		return nil, err
	}
	return h, nil
}

func runLint(l *slog.Logger, dir string) int {
	h, err := openStory(l, dir)
	if err != nil {
		fmt.Println("Error:", err)
		return 1
	}
	prog, err := h.LoadProgram()
	if err != nil {
		fmt.Println("Parse error:", err)
		return 1
	}
	fmt.Printf("Parsed %d instructions, %d labels.\n", prog.Len(), len(prog.Labels()))

	issues := 0
	for _, d := range flow.Analyze(prog) {
		fmt.Println(" ", d)
		issues++
	}
	for _, p := range assets.Check(assets.Open(h.AssetsDir()), prog) {
		fmt.Println("  asset:", p)
		issues++
	}
	if issues == 0 {
		fmt.Println("No findings.")
		return 0
	}
	fmt.Printf("%d finding(s).\n", issues)
	return 0
}

func runExport(l *slog.Logger, dir, out string) int {
	h, err := openStory(l, dir)
	if err != nil {
		fmt.Println("Error:", err)
		return 1
	}
	prog, err := h.LoadProgram()
	if err != nil {
		fmt.Println("Parse error:", err)
		return 1
	}
	if out == "" {
		out = filepath.Join(h.Root, "exports", "transcript.pdf")
	}
	err = export.ExportTranscriptPDF(prog, out, export.TranscriptOptions{
		Title:                  filepath.Base(h.Root),
		IncludeStageDirections: true,
		IncludeDiagnostics:     true,
	})
	if err != nil {
		l.Error("export failed", slog.Any("err", err))
		fmt.Println("Error:", err)
		return 1
	}
	fmt.Println("Wrote", out)
	return 0
}

// runStory drives the interactive loop: one engine step per line of input,
// with colon-commands for saves and rewind.
func runStory(l *slog.Logger, dir string) int {
	cfg, _, err := config.Load()
	if err != nil {
		l.Warn("config load failed", slog.Any("err", err))
		cfg = config.Defaults()
	}
	if cfg.General.TelemetryOptIn {
		telemetry.Event("run_started", nil)
	}

	h, err := openStory(l, dir)
	if err != nil {
		fmt.Println("Error:", err)
		return 1
	}
	text, err := h.LoadScript()
	if err != nil {
		fmt.Println("Error:", err)
		return 1
	}
	prog, err := h.LoadProgram()
	if err != nil {
		fmt.Println("Parse error:", err)
		return 1
	}
	fp := storage.Fingerprint(text)
	res := assets.Open(h.AssetsDir())
	runner := engine.New(prog, res)
	st := engine.NewState()
	history := rewind.NewHistory(rewind.Config{MaxDepth: cfg.Run.RewindDepth})

	defer crash.Recover(h, func() ([]byte, string) {
		blob, err := engine.MarshalState(st)
		if err != nil {
			return nil, ""
		}
		return blob, fp
	})

	ctx := context.Background()
	in := bufio.NewScanner(os.Stdin)
	ev := engine.NoEvent

	for {
		if blob, err := engine.MarshalState(st); err == nil {
			history.Push(rewind.Snapshot{PC: st.PC, Blob: blob, TS: time.Now()})
			if err := storage.Autosave(ctx, h, fp, blob, cfg.Run.AutosaveKeep); err != nil {
				l.Warn("autosave failed", slog.Any("err", err))
			}
		}

		out := runner.Step(st, ev)
		ev = engine.NoEvent
		printOutput(out)
		if out.Finished {
			fmt.Println("— the end —")
			return 0
		}

		for {
			if !in.Scan() {
				return 0
			}
			line := strings.TrimSpace(in.Text())
			if strings.HasPrefix(line, ":") {
				if quit := colonCommand(ctx, l, h, fp, history, st, line); quit {
					return 0
				}
				continue
			}
			if st.WaitingChoice {
				n, err := strconv.Atoi(line)
				if err != nil || n < 1 || n > len(st.PendingTargets) {
					fmt.Printf("Pick a choice between 1 and %d.\n", len(st.PendingTargets))
					continue
				}
				ev = engine.Event{Kind: engine.EventChoice, Choice: n - 1}
			}
			break
		}
	}
}

// colonCommand handles one :command line; it returns true when the run
// should end. st is mutated in place on :load and :back.
func colonCommand(ctx context.Context, l *slog.Logger, h *storage.StoryHandle, fp string, history *rewind.History, st *engine.State, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q":
		return true

	case ":save":
		if len(fields) < 2 {
			fmt.Println(":save requires a slot name")
			return false
		}
		blob, err := engine.MarshalState(st)
		if err != nil {
			fmt.Println("Error:", err)
			return false
		}
		if err := storage.Save(ctx, h, fields[1], fp, blob, time.Now()); err != nil {
			l.Error("save failed", slog.Any("err", err))
			fmt.Println("Error:", err)
			return false
		}
		fmt.Println("Saved to slot", fields[1])

	case ":load":
		if len(fields) < 2 {
			fmt.Println(":load requires a slot name")
			return false
		}
		rec, err := storage.LoadLatest(ctx, h, fields[1])
		if err != nil || rec == nil {
			fmt.Println("No such save.")
			return false
		}
		if rec.Fingerprint != fp {
			fmt.Println("Warning: this save was made against a different script revision.")
		}
		loaded, err := engine.UnmarshalState(rec.Blob)
		if err != nil {
			fmt.Println("Error:", err)
			return false
		}
		*st = *loaded
		history.Clear()
		fmt.Println("Loaded slot", fields[1])

	case ":back":
		// The top entry is the state the line on screen was stepped from;
		// the one below it is the previous visible position.
		snap, ok := history.Back()
		if !ok {
			fmt.Println("Nothing to rewind.")
			return false
		}
		if older, olderOK := history.Back(); olderOK {
			snap = older
		}
		loaded, err := engine.UnmarshalState(snap.Blob)
		if err != nil {
			fmt.Println("Error:", err)
			return false
		}
		*st = *loaded
		fmt.Println("Rewound one step.")

	default:
		fmt.Println("Commands: :save <slot>  :load <slot>  :back  :quit")
	}
	return false
}

func printOutput(out engine.Output) {
	for _, eff := range out.Effects {
		fmt.Printf("  [%s %s]\n", eff.Tag, strings.Join(eff.Args, " "))
	}
	for _, line := range out.Lines {
		if line.Speaker != "" {
			fmt.Printf("%s: %s\n", line.Speaker, line.Text)
		} else {
			fmt.Println(line.Text)
		}
	}
	for _, c := range out.Choices {
		fmt.Printf("  %d) %s\n", c.ID+1, c.Label)
	}
}

func runSync(l *slog.Logger, verb, dir string) int {
	cfg, token, err := config.Load()
	if err != nil {
		fmt.Println("Error:", err)
		return 1
	}
	if !cfg.Sync.Enabled || cfg.Sync.StoryID == 0 {
		fmt.Println("Sync is not configured; set sync.enabled and sync.story_id in the config file.")
		return 1
	}
	h, err := openStory(l, dir)
	if err != nil {
		fmt.Println("Error:", err)
		return 1
	}
	text, err := h.LoadScript()
	if err != nil {
		fmt.Println("Error:", err)
		return 1
	}
	fp := storage.Fingerprint(text)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Sync.TimeoutMs)*time.Millisecond)
	defer cancel()
	client := backend.NewClient(cfg.Sync.BaseURL, token)

	switch verb {
	case "push":
		rec, err := storage.LoadLatest(ctx, h, storage.AutosaveSlot)
		if err != nil || rec == nil {
			fmt.Println("No autosave to push.")
			return 1
		}
		if err := client.PushSave(ctx, cfg.Sync.StoryID, rec.Fingerprint, rec.Blob); err != nil {
			l.Error("push failed", slog.Any("err", err))
			fmt.Println("Error:", err)
			return 1
		}
		fmt.Println("Pushed latest autosave.")
		return 0

	case "pull":
		env, err := client.GetLatestSave(ctx, cfg.Sync.StoryID)
		if err != nil {
			l.Error("pull failed", slog.Any("err", err))
			fmt.Println("Error:", err)
			return 1
		}
		if env.Fingerprint != fp {
			fmt.Println("Warning: remote save was made against a different script revision.")
		}
		if _, err := engine.UnmarshalState(env.Snapshot); err != nil {
			fmt.Println("Remote save is not a valid snapshot:", err)
			return 1
		}
		if err := storage.Save(ctx, h, storage.AutosaveSlot, env.Fingerprint, env.Snapshot, time.Now()); err != nil {
			fmt.Println("Error:", err)
			return 1
		}
		fmt.Println("Pulled remote save into the autosave slot.")
		return 0

	default:
		fmt.Println("sync requires push or pull")
		return 2
	}
}
