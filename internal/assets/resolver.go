/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package assets maps logical resource names from scripts to files under a
// story directory. Audio lives in bgm/ and se/, pictures in images/, video
// in movies/; a logical name resolves to the first existing file with a
// known extension for its kind.
package assets

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"scenarist/internal/script"
)

var (
	audioExts = []string{".ogg", ".mp3", ".wav", ".flac"}
	imageExts = []string{".png", ".jpg", ".jpeg", ".webp", ".bmp", ".tiff", ".gif"}
	movieExts = []string{".mp4", ".webm", ".mkv"}
)

// Dir resolves logical names against <Root>/{bgm,se,images,movies}. The
// zero value is unusable; use Open.
type Dir struct {
	root string
}

// Open returns a resolver rooted at dir. The directory does not have to
// exist yet: resolution simply fails for every name until it does.
func Open(dir string) *Dir {
	return &Dir{root: dir}
}

// Root returns the directory the resolver searches under.
func (d *Dir) Root() string { return d.root }

func (d *Dir) resolve(sub, name string, exts []string) (string, bool) {
	for _, ext := range exts {
		p := filepath.Join(d.root, sub, name+ext)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

func (d *Dir) ResolveBgm(name string) (string, bool) {
	return d.resolve("bgm", name, audioExts)
}

func (d *Dir) ResolveSe(name string) (string, bool) {
	return d.resolve("se", name, audioExts)
}

func (d *Dir) ResolveImage(name string) (string, bool) {
	return d.resolve("images", name, imageExts)
}

func (d *Dir) ResolveMovie(name string) (string, bool) {
	return d.resolve("movies", name, movieExts)
}

// Problem is one asset finding from Check: a script resource that does not
// resolve, or an image file that resolves but cannot be decoded.
type Problem struct {
	Line     int
	Kind     string // "bgm", "se", "image", "movie"
	Name     string
	Detail   string
	Resolved string // path, empty when the name did not resolve
}

func (p Problem) String() string {
	if p.Resolved == "" {
		return fmt.Sprintf("line %d: %s %q not found", p.Line, p.Kind, p.Name)
	}
	return fmt.Sprintf("line %d: %s %q (%s): %s", p.Line, p.Kind, p.Name, p.Resolved, p.Detail)
}

// Check resolves every resource a program references and probes resolved
// images for decodability. Execution never needs this; it backs the lint
// command so authors hear about missing or broken files before a run.
func Check(d *Dir, prog *script.Program) []Problem {
	var problems []Problem
	for i := 0; i < prog.Len(); i++ {
		in := prog.At(i)
		switch in.Kind {
		case script.KindPlayBgm:
			if _, ok := d.ResolveBgm(in.Resource); !ok {
				problems = append(problems, Problem{Line: in.Line, Kind: "bgm", Name: in.Resource})
			}
		case script.KindPlaySe:
			if _, ok := d.ResolveSe(in.Resource); !ok {
				problems = append(problems, Problem{Line: in.Line, Kind: "se", Name: in.Resource})
			}
		case script.KindPlayMovie:
			if _, ok := d.ResolveMovie(in.Resource); !ok {
				problems = append(problems, Problem{Line: in.Line, Kind: "movie", Name: in.Resource})
			}
		case script.KindShowImage:
			path, ok := d.ResolveImage(in.Resource)
			if !ok {
				problems = append(problems, Problem{Line: in.Line, Kind: "image", Name: in.Resource})
				continue
			}
			if detail := probeImage(path); detail != "" {
				problems = append(problems, Problem{
					Line: in.Line, Kind: "image", Name: in.Resource,
					Resolved: path, Detail: detail,
				})
			}
		}
	}
	return problems
}

// probeImage decodes only the header. An empty return means the file is a
// readable image in a registered format (png, jpeg, gif, webp, bmp, tiff).
func probeImage(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return err.Error()
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Sprintf("undecodable image: %v", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Sprintf("degenerate dimensions %dx%d", cfg.Width, cfg.Height)
	}
	return ""
}
