/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package export renders a parsed story into reviewable documents.
package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jung-kurt/gofpdf"

	"scenarist/internal/flow"
	"scenarist/internal/script"
)

// TranscriptOptions controls PDF transcript behavior. Built-in Helvetica
// keeps text vector without font embedding.
type TranscriptOptions struct {
	Title string
	// IncludeStageDirections renders media, wait and layer commands as
	// bracketed stage directions between dialogue lines.
	IncludeStageDirections bool
	// IncludeDiagnostics appends the flow analyzer findings as a final
	// section.
	IncludeDiagnostics bool
}

// ExportTranscriptPDF writes a reading transcript of prog to outPath: label
// headings, dialogue in script order, choice tables at branches and,
// optionally, stage directions and a diagnostics appendix. The transcript
// follows instruction order, not execution order: every path appears once.
func ExportTranscriptPDF(prog *script.Program, outPath string, opt TranscriptOptions) error {
	if prog == nil {
		return fmt.Errorf("program is nil")
	}
	if opt.Title == "" {
		opt.Title = "Story transcript"
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(opt.Title, true)
	pdf.SetAuthor("Scenarist", false)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, opt.Title, "", "L", false)
	pdf.Ln(4)

	for i := 0; i < prog.Len(); i++ {
		in := prog.At(i)
		switch in.Kind {
		case script.KindLabel:
			pdf.Ln(3)
			pdf.SetFont("Helvetica", "B", 13)
			pdf.MultiCell(0, 7, in.Name, "", "L", false)
			pdf.SetDrawColor(120, 120, 120)
			x, y := pdf.GetXY()
			pdf.Line(x, y, x+80, y)
			pdf.Ln(2)

		case script.KindSay:
			pdf.SetFont("Helvetica", "B", 11)
			pdf.CellFormat(35, 6, in.Speaker, "", 0, "L", false, 0, "")
			pdf.SetFont("Helvetica", "", 11)
			pdf.MultiCell(0, 6, in.Text, "", "L", false)
			pdf.Ln(1)

		case script.KindBranch:
			pdf.Ln(1)
			pdf.SetFont("Helvetica", "I", 10)
			pdf.MultiCell(0, 5, "Choice:", "", "L", false)
			pdf.SetFont("Helvetica", "", 10)
			pdf.SetFillColor(240, 240, 240)
			for _, c := range in.Choices {
				row := fmt.Sprintf("%d. %s", c.ID+1, c.Text)
				pdf.CellFormat(90, 6, row, "1", 0, "L", true, 0, "")
				pdf.CellFormat(0, 6, "-> "+c.Target, "1", 1, "L", false, 0, "")
			}
			pdf.Ln(2)

		case script.KindJump:
			if opt.IncludeStageDirections {
				stageDirection(pdf, fmt.Sprintf("continue at %s", in.Target))
			}

		case script.KindPlayBgm, script.KindPlaySe, script.KindPlayMovie, script.KindShowImage:
			if opt.IncludeStageDirections {
				stageDirection(pdf, fmt.Sprintf("%s %s", in.Kind, in.Resource))
			}

		case script.KindWait:
			if opt.IncludeStageDirections {
				stageDirection(pdf, fmt.Sprintf("pause %gs", in.Seconds))
			}

		case script.KindClearLayer:
			if opt.IncludeStageDirections {
				stageDirection(pdf, fmt.Sprintf("clear layer %s", in.Layer))
			}
		}
	}

	if opt.IncludeDiagnostics {
		if diags := flow.Analyze(prog); len(diags) > 0 {
			pdf.AddPage()
			pdf.SetFont("Helvetica", "B", 13)
			pdf.MultiCell(0, 7, "Diagnostics", "", "L", false)
			pdf.Ln(2)
			pdf.SetFont("Helvetica", "", 10)
			for _, d := range diags {
				pdf.MultiCell(0, 5, d.String(), "", "L", false)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func stageDirection(pdf *gofpdf.Fpdf, text string) {
	pdf.SetFont("Helvetica", "I", 9)
	pdf.SetTextColor(100, 100, 100)
	pdf.MultiCell(0, 5, "["+text+"]", "", "L", false)
	pdf.SetTextColor(0, 0, 0)
}
