package display

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/backmassage/autoencode/internal/graph"
	"github.com/backmassage/autoencode/internal/term"
)

const maxOutputWidth = 48

// PrintGraph writes a node table for g: id, kind, frames, dependencies and
// output file, with the terminal node highlighted.
func PrintGraph(w io.Writer, g *graph.JobGraph) {
	fmt.Fprintf(w, "  Graph %s  %s\n", term.Paint(term.Cyan, g.ID), g.Name)
	fmt.Fprintf(w, "  Output %s  (max %d concurrent)\n", g.Output, g.MaxConcurrent)
	if g.Layout == graph.LayoutTasks {
		fmt.Fprintf(w, "  Tasks of %s\n", g.TaskJob)
	}
	fmt.Fprintln(w)

	type row struct{ id, kind, frames, deps, out string }
	rows := make([]row, 0, len(g.Nodes))
	idW, kindW, framesW, depsW, outW := len("Node"), len("Kind"), len("Frames"), len("Depends"), len("Output")
	for _, n := range g.Nodes {
		r := row{
			id:     n.ID,
			kind:   string(n.Kind),
			frames: FormatFrames(n.StartFrame, n.EndFrame),
			deps:   fmt.Sprintf("%d", len(n.DependsOn)),
			out:    truncate(strings.Join(baseNames(n.Outputs), ","), maxOutputWidth),
		}
		if len(n.DependsOn) == 0 {
			r.deps = "-"
		}
		idW = max(idW, len(r.id))
		kindW = max(kindW, len(r.kind))
		framesW = max(framesW, len(r.frames))
		depsW = max(depsW, len(r.deps))
		outW = max(outW, len([]rune(r.out)))
		rows = append(rows, r)
	}

	header := fmt.Sprintf("  %-*s  %-*s  %-*s  %-*s  %s", idW, "Node", kindW, "Kind", framesW, "Frames", depsW, "Depends", "Output")
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, "  "+strings.Repeat("─", len(header)-2+outW-len("Output")))

	for i, r := range rows {
		// Pad before coloring so escape bytes do not count toward width.
		id := fmt.Sprintf("%-*s", idW, r.id)
		if g.Nodes[i].ID == g.TerminalID {
			id = term.Paint(term.Green, id)
		}
		fmt.Fprintf(w, "  %s  %-*s  %-*s  %-*s  %s\n", id, kindW, r.kind, framesW, r.frames, depsW, r.deps, r.out)
	}
	if t := g.Terminal(); t != nil && len(t.Cleanup) > 0 {
		fmt.Fprintf(w, "\n  %s\n", term.Paint(term.Dim, fmt.Sprintf("%d file(s) removed after %s succeeds", len(t.Cleanup), t.ID)))
	}
	fmt.Fprintln(w)
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
