package graph

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/backmassage/autoencode/internal/chunk"
	"github.com/backmassage/autoencode/internal/config"
	"github.com/backmassage/autoencode/internal/media"
	"github.com/backmassage/autoencode/internal/profile"
)

// namespace seeds every node and graph id, so that ids depend only on the
// job and node identity.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/backmassage/autoencode/graph"))

// ErrBuild is returned for inputs the builder cannot turn into a graph.
var ErrBuild = errors.New("cannot build job graph")

// Input is everything the builder needs. Chunks must come from chunk.Plan
// over the sequence's range.
type Input struct {
	JobID      string
	JobName    string
	Sequence   media.Sequence
	Chunks     []chunk.Chunk
	Profile    *profile.EncodingProfile
	OutputPath string
	// AudioPath is an optional sidecar track muxed by the terminal node.
	AudioPath string
	FFmpeg    string

	// Extra user arguments placed before the input and before the output.
	InputArgs  []string
	OutputArgs []string

	Scheduling Scheduling
	// Priority overrides Scheduling.Priority unless it is
	// config.PriorityInherit.
	Priority          int
	KeepIntermediates bool
	MaxConcurrent     int
	// Layout defaults to LayoutJobs.
	Layout  Layout
	Verbose bool
}

// NodeID returns the deterministic id of a node.
func NodeID(jobID string, kind Kind, index int) string {
	return uuid.NewSHA1(namespace, []byte(jobID+"/"+string(kind)+"/"+strconv.Itoa(index))).String()
}

// ChunkPath returns the intermediate file for chunk index next to the final
// output: <dir>/<base>_<jobid>_chunk001<ext>.
func ChunkPath(output, jobID string, index int, ext string) string {
	return filepath.Join(filepath.Dir(output), fmt.Sprintf("%s_%s_chunk%03d%s", stem(output), safeID(jobID), index, ext))
}

// ConcatListPath returns the concat demuxer list for output.
func ConcatListPath(output, jobID string) string {
	return filepath.Join(filepath.Dir(output), fmt.Sprintf("%s_%s_concat.txt", stem(output), safeID(jobID)))
}

func stem(p string) string {
	b := filepath.Base(p)
	return strings.TrimSuffix(b, filepath.Ext(b))
}

// safeID keeps job ids usable in file names.
func safeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}

// Build assembles the graph. One chunk yields a single terminal encode node
// writing the final output; more yield independent chunk encodes plus a
// concat node depending on all of them. With LayoutTasks the nodes are
// numbered as tasks of one farm job named after the render job. The result
// is validated.
func Build(in Input) (*JobGraph, error) {
	if len(in.Chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks", ErrBuild)
	}
	if in.Profile == nil {
		return nil, fmt.Errorf("%w: no encoding profile", ErrBuild)
	}
	if in.JobID == "" || in.OutputPath == "" {
		return nil, fmt.Errorf("%w: job id and output path are required", ErrBuild)
	}
	if in.FFmpeg == "" {
		in.FFmpeg = "ffmpeg"
	}
	switch in.Layout {
	case "":
		in.Layout = LayoutJobs
	case LayoutJobs, LayoutTasks:
	default:
		return nil, fmt.Errorf("%w: unknown layout %q", ErrBuild, in.Layout)
	}

	sched := in.Scheduling
	if in.Priority != config.PriorityInherit {
		sched.Priority = in.Priority
	}

	g := &JobGraph{
		ID:            uuid.NewSHA1(namespace, []byte(in.JobID+"|"+in.OutputPath)).String(),
		SourceJobID:   in.JobID,
		Name:          in.JobName,
		Output:        in.OutputPath,
		MaxConcurrent: max(in.MaxConcurrent, 1),
		Layout:        in.Layout,
	}
	if in.Layout == LayoutTasks {
		g.TaskJob = in.JobName + "_Encode"
	}
	workDir := filepath.Dir(in.OutputPath)

	if len(in.Chunks) == 1 {
		c := in.Chunks[0]
		c.OutputPath = in.OutputPath
		n := in.encodeNode(c, sched, workDir, true)
		n.Name = in.JobName + "_Encode"
		g.Nodes = []JobNode{n}
		g.TerminalID = n.ID
		return g, g.Validate()
	}

	chunkFiles := make([]string, 0, len(in.Chunks))
	deps := make([]string, 0, len(in.Chunks))
	for _, c := range in.Chunks {
		c.OutputPath = ChunkPath(in.OutputPath, in.JobID, c.Index, in.Profile.Extension)
		n := in.encodeNode(c, sched, workDir, false)
		g.Nodes = append(g.Nodes, n)
		chunkFiles = append(chunkFiles, c.OutputPath)
		deps = append(deps, n.ID)
	}

	concat := in.concatNode(chunkFiles, deps, sched, workDir)
	concat.Task = len(in.Chunks)
	g.Nodes = append(g.Nodes, concat)
	g.TerminalID = concat.ID
	return g, g.Validate()
}

func (in *Input) preamble() []string {
	level := "error"
	if in.Verbose {
		level = "info"
	}
	return []string{"-hide_banner", "-nostdin", "-y", "-loglevel", level}
}

// encodeNode encodes one chunk. When final is set the node writes the
// deliverable, so it also carries audio and container flags.
func (in *Input) encodeNode(c chunk.Chunk, sched Scheduling, workDir string, final bool) JobNode {
	p := in.Profile
	seq := in.Sequence
	frames := c.End - c.Start + 1

	args := in.preamble()
	args = append(args, in.InputArgs...)
	var src string
	if seq.IsMovie() {
		src = seq.Pattern
		if off := c.Start - seq.First; off > 0 {
			args = append(args, "-ss", seekSeconds(off, p.FrameRate))
		}
	} else {
		src = seq.PrintfPattern()
		args = append(args, "-framerate", p.FrameRate.String(), "-start_number", strconv.Itoa(c.Start))
	}
	args = append(args, "-i", src)

	audio := final && in.AudioPath != "" && len(p.AudioArgs) > 0
	if audio {
		args = append(args, "-i", in.AudioPath)
	}
	args = append(args, "-map", "0:v:0")
	if audio {
		args = append(args, "-map", "1:a:0")
	}
	args = append(args, "-frames:v", strconv.Itoa(frames))
	args = append(args, p.VideoArgs()...)
	if audio {
		args = append(args, p.AudioArgs...)
		args = append(args, "-shortest")
	}
	if final {
		args = append(args, p.MuxArgs...)
	}
	args = append(args, in.OutputArgs...)
	args = append(args, c.OutputPath)

	inputs := []string{src}
	if audio {
		inputs = append(inputs, in.AudioPath)
	}
	return JobNode{
		ID:         NodeID(in.JobID, KindEncode, c.Index),
		Name:       fmt.Sprintf("%s_chunk%03d_Encode", in.JobName, c.Index),
		Kind:       KindEncode,
		ChunkIndex: c.Index,
		Task:       c.Index - 1,
		StartFrame: c.Start,
		EndFrame:   c.End,
		Inputs:     inputs,
		Outputs:    []string{c.OutputPath},
		Command:    Command{Executable: in.FFmpeg, Args: args, WorkDir: workDir},
		Scheduling: sched,
	}
}

// concatNode joins the chunk files with the concat demuxer, copying the
// video bitstream.
func (in *Input) concatNode(chunkFiles, deps []string, sched Scheduling, workDir string) JobNode {
	p := in.Profile
	list := ConcatListPath(in.OutputPath, in.JobID)

	args := in.preamble()
	args = append(args, "-f", "concat", "-safe", "0", "-i", list)
	audio := in.AudioPath != "" && len(p.AudioArgs) > 0
	if audio {
		args = append(args, "-i", in.AudioPath)
	}
	args = append(args, "-map", "0:v:0")
	if audio {
		args = append(args, "-map", "1:a:0")
	}
	args = append(args, "-c:v", "copy")
	if audio {
		args = append(args, p.AudioArgs...)
		args = append(args, "-shortest")
	}
	args = append(args, p.MuxArgs...)
	args = append(args, in.OutputPath)

	var cleanup []CleanupAction
	if !in.KeepIntermediates {
		for _, f := range chunkFiles {
			cleanup = append(cleanup, CleanupAction{Delete: f})
		}
		cleanup = append(cleanup, CleanupAction{Delete: list})
	}

	inputs := append([]string{list}, chunkFiles...)
	if audio {
		inputs = append(inputs, in.AudioPath)
	}
	return JobNode{
		ID:         NodeID(in.JobID, KindConcat, 0),
		Name:       in.JobName + "_Concat",
		Kind:       KindConcat,
		StartFrame: in.Chunks[0].Start,
		EndFrame:   in.Chunks[len(in.Chunks)-1].End,
		Inputs:     inputs,
		Outputs:    []string{in.OutputPath},
		DependsOn:  deps,
		Command:    Command{Executable: in.FFmpeg, Args: args, WorkDir: workDir},
		Files:      []File{{Path: list, Content: concatList(chunkFiles)}},
		Cleanup:    cleanup,
		Scheduling: sched,
	}
}

// concatList renders the concat demuxer script. Paths use forward slashes
// and single quotes are escaped the way the demuxer expects.
func concatList(files []string) string {
	var b strings.Builder
	for _, f := range files {
		f = strings.ReplaceAll(filepath.ToSlash(f), "'", `'\''`)
		b.WriteString("file '" + f + "'\n")
	}
	return b.String()
}

// seekSeconds renders a frame offset as seconds with microsecond precision.
func seekSeconds(frames int, rate media.Rate) string {
	sec := float64(frames) * float64(rate.Den) / float64(rate.Num)
	return strconv.FormatFloat(sec, 'f', 6, 64)
}
