package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/backmassage/autoencode/internal/compiler"
	"github.com/backmassage/autoencode/internal/display"
	"github.com/backmassage/autoencode/internal/event"
	"github.com/backmassage/autoencode/internal/manifest"
	"github.com/backmassage/autoencode/internal/term"
)

// Format selects how compiled graphs are printed.
type Format string

const (
	FormatText Format = "" // Node table.
	FormatJSON Format = "json"
	FormatYAML Format = "yaml" // Full manifest.
)

// ParseFormat accepts "text", "json" and "yaml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("invalid format %q (use 'text', 'json' or 'yaml')", s)
}

func (p *Pipeline) writeGraph(job event.RenderJob, res *compiler.Result) error {
	switch p.Format {
	case FormatJSON:
		enc := json.NewEncoder(p.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Graph)
	case FormatYAML:
		return manifest.Encode(p.Out, manifest.FromResult(job, res))
	}
	display.PrintGraph(p.Out, res.Graph)
	return nil
}

const (
	statusCompiled  = "compiled"
	statusSubmitted = "submitted"
	statusDuplicate = "duplicate"
	statusDone      = "done"
	statusFailed    = "failed"
)

// jobRow is one line of the batch table.
type jobRow struct {
	Job        string
	Codec      string
	Resolution string
	FrameRate  string
	Chunks     int
	Nodes      int
	Status     string
}

func newJobRow(name string, res *compiler.Result) jobRow {
	return jobRow{
		Job:        name,
		Codec:      string(res.Profile.Codec),
		Resolution: fmt.Sprintf("%dx%d", res.Profile.Width, res.Profile.Height),
		FrameRate:  res.Profile.FrameRate.String(),
		Chunks:     len(res.Chunks),
		Nodes:      len(res.Graph.Nodes),
		Status:     statusCompiled,
	}
}

func printJobTable(w io.Writer, rows []jobRow) {
	jobW, codecW, resW, fpsW, statusW := len("Job"), len("Codec"), len("Resolution"), len("FPS"), len("Status")
	for _, r := range rows {
		jobW = max(jobW, len(r.Job))
		codecW = max(codecW, len(r.Codec))
		resW = max(resW, len(r.Resolution))
		fpsW = max(fpsW, len(r.FrameRate))
		statusW = max(statusW, len(r.Status))
	}
	jobW = min(jobW, 50)

	header := fmt.Sprintf("  %-*s  %-*s  %-*s  %-*s  %6s  %5s  %s",
		jobW, "Job", codecW, "Codec", resW, "Resolution", fpsW, "FPS", "Chunks", "Nodes", "Status")
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, "  "+strings.Repeat("─", len(header)-2+statusW-len("Status")))

	for _, r := range rows {
		name := r.Job
		if len(name) > jobW {
			name = name[:jobW-1] + "…"
		}
		chunks, nodes := "-", "-"
		if r.Nodes > 0 {
			chunks, nodes = fmt.Sprint(r.Chunks), fmt.Sprint(r.Nodes)
		}
		fmt.Fprintf(w, "  %-*s  %-*s  %-*s  %-*s  %6s  %5s  %s\n",
			jobW, name, codecW, r.Codec, resW, r.Resolution, fpsW, r.FrameRate,
			chunks, nodes, colorPad(r.Status, statusW))
	}
	fmt.Fprintln(w)
}

// colorPad pads s to width before coloring it, so %-*s alignment is not
// thrown off by escape bytes.
func colorPad(s string, width int) string {
	padded := fmt.Sprintf("%-*s", width, s)
	switch s {
	case statusFailed:
		return term.Paint(term.Red, padded)
	case statusDuplicate:
		return term.Paint(term.Yellow, padded)
	case statusDone, statusSubmitted:
		return term.Paint(term.Green, padded)
	}
	return padded
}
