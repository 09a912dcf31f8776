// Package compiler turns one render-completion event into a validated job
// graph: loop guard, path templates, tokens, settings, detection, profile,
// chunk plan and graph assembly, in that order. Compile never touches the
// farm; submitting the graph is the caller's concern.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/backmassage/autoencode/internal/chunk"
	"github.com/backmassage/autoencode/internal/config"
	"github.com/backmassage/autoencode/internal/detect"
	"github.com/backmassage/autoencode/internal/event"
	"github.com/backmassage/autoencode/internal/graph"
	"github.com/backmassage/autoencode/internal/logging"
	"github.com/backmassage/autoencode/internal/media"
	"github.com/backmassage/autoencode/internal/pathtmpl"
	"github.com/backmassage/autoencode/internal/profile"
	"github.com/backmassage/autoencode/internal/settings"
	"github.com/backmassage/autoencode/internal/tokens"
)

// ErrPrecondition is returned when the job cannot be compiled as described:
// no output, no frames, a missing input directory or sequence.
var ErrPrecondition = errors.New("precondition failed")

// Detector resolves the source's video properties. *detect.Detector
// satisfies it.
type Detector interface {
	Detect(ctx context.Context, seq media.Sequence, eff settings.EffectiveConfig, job detect.JobInfo) (media.VideoProperties, error)
}

// Deps are the collaborators Compile needs.
type Deps struct {
	Detector Detector
	Log      *logging.Logger
	// FFmpeg is the executable written into node commands. Empty means
	// "ffmpeg" resolved on the farm worker.
	FFmpeg string
}

// Result is the outcome of one compile. When Skipped is set, Reason says why
// and every other field is zero.
type Result struct {
	Skipped bool
	Reason  string

	Graph      *graph.JobGraph
	Effective  settings.EffectiveConfig
	Tokens     tokens.Set
	Properties media.VideoProperties
	Profile    *profile.EncodingProfile
	Sequence   media.Sequence
	Chunks     []chunk.Chunk
	AudioPath  string
}

func skipped(reason string) *Result { return &Result{Skipped: true, Reason: reason} }

// Compile runs the whole pipeline for job. Any error aborts with no graph.
func Compile(ctx context.Context, job event.RenderJob, cfg *config.Config, deps Deps) (*Result, error) {
	log := deps.Log
	if log == nil {
		log = logging.Discard()
	}
	log = log.With("job", job.ID)
	if deps.Detector == nil {
		return nil, errors.New("compiler: no detector")
	}

	if reason, skip := loopGuard(cfg, job); skip {
		log.Debug("skipping %s: %s", job.Name, reason)
		return skipped(reason), nil
	}
	if !job.Completed() {
		return skipped("job status is " + job.Status), nil
	}

	delim, err := pathtmpl.ParseDelimiters(cfg.Delimiter)
	if err != nil {
		return nil, err
	}
	lookup := pathtmpl.Lookup{
		pathtmpl.NSInfo:   job.InfoValues(),
		pathtmpl.NSPlugin: nonNil(job.PluginInfo),
		pathtmpl.NSMeta:   nonNil(job.Metadata),
	}

	inputPath, err := resolveInput(cfg, job, delim, lookup)
	if err != nil {
		return nil, err
	}

	jobTokens := tokens.Parse(job.Name)
	fileTokens := tokens.Parse(filepath.Base(inputPath))
	res, err := settings.Resolve(settings.Input{
		Config:     cfg,
		JobName:    job.Name,
		Plugin:     job.Plugin,
		Metadata:   job.Metadata,
		JobTokens:  jobTokens,
		FileTokens: fileTokens,
	})
	if err != nil {
		return nil, err
	}
	if !res.Fire {
		log.Debug("not firing for %s: %s", job.Name, res.Reason)
		return skipped(res.Reason), nil
	}
	eff := res.Effective
	log.Info("Encoding %s as %s (tokens %s)", job.Name, eff.Codec, res.Tokens)

	first, last, ok := job.FrameRange()
	if !ok {
		return nil, fmt.Errorf("%w: job %s has no frames", ErrPrecondition, job.ID)
	}
	seq, err := media.NewSequence(inputPath, first, last)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrecondition, err)
	}
	if err := checkSequence(seq); err != nil {
		return nil, err
	}

	props, err := deps.Detector.Detect(ctx, seq, eff, detect.JobInfo{
		Name:             job.Name,
		OutputName:       filepath.Base(inputPath),
		Properties:       job.Info,
		PluginProperties: job.PluginInfo,
	})
	if err != nil {
		return nil, fmt.Errorf("detect %s: %w", seq.Pattern, err)
	}

	if field, ok := eff.PreserveAlpha(props.HasAlpha); ok {
		log.Info("Source has alpha; %s switched to keep it", field)
	}

	prof, err := profile.Build(eff, props)
	if err != nil {
		return nil, err
	}

	lookup[pathtmpl.NSProfile] = profileValues(prof)
	outputPath, err := resolveOutput(cfg, seq, prof, delim, lookup)
	if err != nil {
		return nil, err
	}
	if outputPath == inputPath {
		return nil, fmt.Errorf("%w: output %s would overwrite the input", ErrPrecondition, outputPath)
	}

	var audio string
	if eff.Audio {
		audio = FindAudio(filepath.Dir(outputPath), stripCodecSuffix(seq.Base()))
		if audio == "" {
			log.Warn("Audio requested but no sidecar found near %s; encoding without audio", outputPath)
		} else {
			log.Info("Using audio %s", audio)
		}
	}

	var chunks []chunk.Chunk
	layout := graph.LayoutJobs
	switch {
	case eff.TaskChunking:
		layout = graph.LayoutTasks
		chunks, err = chunk.Plan(first, last, eff.ChunkSize, eff.MinChunks)
	case eff.Chunking:
		chunks, err = chunk.Plan(first, last, eff.ChunkSize, eff.MinChunks)
	default:
		chunks, err = chunk.Single(first, last)
	}
	if err != nil {
		return nil, err
	}
	if len(chunks) > 1 {
		log.Debug("%d chunks as %s", len(chunks), layout)
	}

	g, err := graph.Build(graph.Input{
		JobID:             job.ID,
		JobName:           job.Name,
		Sequence:          seq,
		Chunks:            chunks,
		Profile:           prof,
		OutputPath:        outputPath,
		AudioPath:         audio,
		FFmpeg:            deps.FFmpeg,
		InputArgs:         strings.Fields(cfg.InputArgs),
		OutputArgs:        strings.Fields(cfg.OutputArgs),
		Scheduling:        job.Scheduling,
		Priority:          eff.Priority,
		KeepIntermediates: eff.KeepIntermediates,
		MaxConcurrent:     eff.ConcurrentTasks,
		Layout:            layout,
		Verbose:           cfg.Verbose,
	})
	if err != nil {
		return nil, err
	}
	log.Success("Compiled %d node(s) for %s -> %s", len(g.Nodes), job.Name, filepath.Base(outputPath))

	return &Result{
		Graph:      g,
		Effective:  eff,
		Tokens:     res.Tokens,
		Properties: props,
		Profile:    prof,
		Sequence:   seq,
		Chunks:     chunks,
		AudioPath:  audio,
	}, nil
}

// loopGuard keeps the compiler from reacting to the jobs it submitted.
func loopGuard(cfg *config.Config, job event.RenderJob) (string, bool) {
	for _, p := range cfg.SkipPlugins {
		if strings.EqualFold(job.Plugin, p) {
			return "plugin " + job.Plugin + " is skipped", true
		}
	}
	for _, s := range cfg.SkipSuffixes {
		if s != "" && strings.HasSuffix(job.Name, s) {
			return "job name ends with " + s, true
		}
	}
	return "", false
}

func resolveInput(cfg *config.Config, job event.RenderJob, d pathtmpl.Delimiters, lookup pathtmpl.Lookup) (string, error) {
	if cfg.InputFile != "" {
		p, err := pathtmpl.Expand(cfg.InputFile, d, lookup)
		if err != nil {
			return "", fmt.Errorf("input template: %w", err)
		}
		return filepath.Clean(p), nil
	}
	dir, file, ok := job.FirstOutput()
	if !ok {
		return "", fmt.Errorf("%w: job %s has no output directory or file name", ErrPrecondition, job.ID)
	}
	return filepath.Join(dir, file), nil
}

// resolveOutput expands the output template, or derives the name from the
// input. Either way the extension is the profile's.
func resolveOutput(cfg *config.Config, seq media.Sequence, p *profile.EncodingProfile, d pathtmpl.Delimiters, lookup pathtmpl.Lookup) (string, error) {
	if cfg.OutputFile == "" {
		return filepath.Join(seq.Dir(), OutputName(seq.Base(), p.Codec, p.Extension)), nil
	}
	out, err := pathtmpl.Expand(cfg.OutputFile, d, lookup)
	if err != nil {
		return "", fmt.Errorf("output template: %w", err)
	}
	out = filepath.Clean(out)
	if !strings.EqualFold(filepath.Ext(out), p.Extension) {
		out = strings.TrimSuffix(out, filepath.Ext(out)) + p.Extension
	}
	if !filepath.IsAbs(out) {
		out = filepath.Join(seq.Dir(), out)
	}
	return out, nil
}

// checkSequence verifies the input directory exists and at least one file
// matches the sequence.
func checkSequence(seq media.Sequence) error {
	fi, err := os.Stat(seq.Dir())
	if err != nil || !fi.IsDir() {
		return fmt.Errorf("%w: input directory %s does not exist", ErrPrecondition, seq.Dir())
	}
	matches, err := filepath.Glob(seq.Wildcard())
	if err != nil || len(matches) == 0 {
		return fmt.Errorf("%w: no files match %s", ErrPrecondition, seq.Pattern)
	}
	return nil
}

func profileValues(p *profile.EncodingProfile) map[string]string {
	return map[string]string{
		"codec":  string(p.Codec),
		"ext":    p.Extension,
		"width":  strconv.Itoa(p.Width),
		"height": strconv.Itoa(p.Height),
		"fps":    p.FrameRate.String(),
	}
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
