package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/backmassage/autoencode/internal/graph"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0 B"},
		{"small bytes", 512, "512 B"},
		{"exactly 1 KiB", 1024, "1.0 KiB"},
		{"1.5 KiB", 1536, "1.5 KiB"},
		{"1 MiB", 1024 * 1024, "1.0 MiB"},
		{"1 GiB", 1024 * 1024 * 1024, "1.0 GiB"},
		{"typical chunk 700 MiB", 734003200, "700.0 MiB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatBytes(tt.bytes); got != tt.want {
				t.Errorf("FormatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{850 * time.Millisecond, "850ms"},
		{12400 * time.Millisecond, "12.4s"},
		{3*time.Minute + 5*time.Second, "3m05s"},
		{time.Hour + 2*time.Minute, "1h02m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatFrames(t *testing.T) {
	if got := FormatFrames(1, 150); got != "1-150 (150)" {
		t.Errorf("got %q", got)
	}
	if got := FormatFrames(5, 4); got != "-" {
		t.Errorf("got %q", got)
	}
}

func TestPrintGraph(t *testing.T) {
	g := &graph.JobGraph{
		ID: "abc", Name: "shot010", Output: "/r/shot010_h265.mp4", TerminalID: "c", MaxConcurrent: 2,
		Nodes: []graph.JobNode{
			{ID: "e1", Kind: graph.KindEncode, StartFrame: 1, EndFrame: 150, Outputs: []string{"/r/shot010_chunk001.mp4"}},
			{ID: "e2", Kind: graph.KindEncode, StartFrame: 151, EndFrame: 300, Outputs: []string{"/r/shot010_chunk002.mp4"}},
			{ID: "c", Kind: graph.KindConcat, StartFrame: 1, EndFrame: 300, DependsOn: []string{"e1", "e2"},
				Outputs: []string{"/r/shot010_h265.mp4"}, Cleanup: []graph.CleanupAction{{Delete: "a"}, {Delete: "b"}}},
		},
	}
	var buf bytes.Buffer
	PrintGraph(&buf, g)
	out := buf.String()

	for _, want := range []string{"Graph abc", "151-300 (150)", "shot010_chunk002.mp4", "concat", "2 file(s) removed after c succeeds"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Tasks of") {
		t.Errorf("job layout printed a task job:\n%s", out)
	}

	g.Layout, g.TaskJob = graph.LayoutTasks, "shot010_Encode"
	buf.Reset()
	PrintGraph(&buf, g)
	if !strings.Contains(buf.String(), "Tasks of shot010_Encode") {
		t.Errorf("task layout not shown:\n%s", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Errorf("got %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Errorf("got %q", got)
	}
}
