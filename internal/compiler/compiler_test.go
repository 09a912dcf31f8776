package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/autoencode/internal/config"
	"github.com/backmassage/autoencode/internal/detect"
	"github.com/backmassage/autoencode/internal/event"
	"github.com/backmassage/autoencode/internal/graph"
	"github.com/backmassage/autoencode/internal/media"
	"github.com/backmassage/autoencode/internal/settings"
)

type fakeDetector struct {
	props media.VideoProperties
	err   error
	calls int
	last  detect.JobInfo
}

func (f *fakeDetector) Detect(_ context.Context, _ media.Sequence, eff settings.EffectiveConfig, job detect.JobInfo) (media.VideoProperties, error) {
	f.calls++
	f.last = job
	if f.err != nil {
		return media.VideoProperties{}, f.err
	}
	p := f.props
	if !eff.FrameRateOverride.IsZero() {
		p.FrameRate = eff.FrameRateOverride
	}
	return p, nil
}

func exrDetector() *fakeDetector {
	return &fakeDetector{props: media.VideoProperties{
		Width: 1920, Height: 1080, FrameRate: media.NewRate(24, 1),
		Transfer: media.TransferLinear, PixelFormat: "gbrpf32le", SourceCodec: "exr",
	}}
}

// renderJob writes a few frames of shot010_####.exr into a temp dir and
// returns a completed job covering frames 1-300.
func renderJob(t *testing.T) (event.RenderJob, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "shot010")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for i := 1; i <= 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("shot010_%04d.exr", i)), nil, 0o644))
	}
	frames := make([]int, 300)
	for i := range frames {
		frames[i] = i + 1
	}
	return event.RenderJob{
		ID:                "5f3c9e2a",
		Name:              "Shot010_v002 [h265]",
		Plugin:            "Blender",
		OutputDirectories: []string{dir},
		OutputFilenames:   []string{"shot010_####.exr"},
		Frames:            frames,
		Scheduling:        graph.Scheduling{Priority: 50, Pool: "encode"},
		Status:            event.StatusCompleted,
	}, dir
}

func TestCompile_ChunkedGraph(t *testing.T) {
	job, dir := renderJob(t)
	cfg := config.DefaultConfig()
	det := exrDetector()

	res, err := Compile(context.Background(), job, &cfg, Deps{Detector: det, FFmpeg: "ffmpeg"})
	require.NoError(t, err)
	require.False(t, res.Skipped)

	g := res.Graph
	require.NoError(t, g.Validate())
	assert.Len(t, g.Nodes, 3, "two chunks of 150 plus the concat")
	assert.Equal(t, filepath.Join(dir, "shot010_h265.mp4"), g.Output)
	assert.Equal(t, graph.KindConcat, g.Terminal().Kind)
	assert.Equal(t, 2, g.MaxConcurrent, "NVENC ceiling")
	assert.Equal(t, 50, g.Nodes[0].Scheduling.Priority)

	assert.Equal(t, "Shot010_v002 [h265]", det.last.Name)
	assert.Equal(t, "shot010_####.exr", det.last.OutputName)
	assert.Equal(t, config.CodecH265, res.Effective.Codec)
	assert.Equal(t, "hevc_nvenc", res.Profile.Encoder)
}

func TestCompile_Idempotent(t *testing.T) {
	job, _ := renderJob(t)
	cfg := config.DefaultConfig()

	a, err := Compile(context.Background(), job, &cfg, Deps{Detector: exrDetector()})
	require.NoError(t, err)
	b, err := Compile(context.Background(), job, &cfg, Deps{Detector: exrDetector()})
	require.NoError(t, err)
	assert.Equal(t, a.Graph, b.Graph)
}

func TestCompile_SingleChunkWithAudio(t *testing.T) {
	job, dir := renderJob(t)
	job.Frames = job.Frames[:100]
	job.Name = "Shot010_v002 [prores] [audio]"
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "audio"), 0o755))
	wav := filepath.Join(dir, "audio", "shot010.wav")
	require.NoError(t, os.WriteFile(wav, []byte("RIFF"), 0o644))

	cfg := config.DefaultConfig()
	res, err := Compile(context.Background(), job, &cfg, Deps{Detector: exrDetector()})
	require.NoError(t, err)

	require.Len(t, res.Graph.Nodes, 1)
	n := res.Graph.Nodes[0]
	assert.Equal(t, res.Graph.TerminalID, n.ID)
	assert.Equal(t, wav, res.AudioPath)
	assert.Contains(t, n.Command.Args, wav)
	assert.Equal(t, []string{filepath.Join(dir, "shot010_prores.mov")}, n.Outputs)
	assert.Equal(t, 1, res.Graph.MaxConcurrent, "ProRes runs one task at a time")
}

func TestCompile_AlphaSourceKeepsAlpha(t *testing.T) {
	job, _ := renderJob(t)
	job.Name = "Shot010_v002 [prores]"
	det := exrDetector()
	det.props.PixelFormat = "gbrapf32le"
	det.props.HasAlpha = true

	cfg := config.DefaultConfig()
	res, err := Compile(context.Background(), job, &cfg, Deps{Detector: det})
	require.NoError(t, err)
	assert.Equal(t, "4444", res.Effective.ProResProfile)
	assert.Equal(t, settings.SourceDetected, res.Effective.Sources["prores_profile"])
	assert.Equal(t, "yuva444p10le", res.Profile.PixelFormat)

	job.Name = "Shot010_v002 [prores422hq]"
	res, err = Compile(context.Background(), job, &cfg, Deps{Detector: det})
	require.NoError(t, err)
	assert.Equal(t, "422hq", res.Effective.ProResProfile, "an explicit tier wins")

	job.Name = "Shot010_v002 [hap]"
	res, err = Compile(context.Background(), job, &cfg, Deps{Detector: det})
	require.NoError(t, err)
	assert.Contains(t, res.Profile.CodecArgs, "hap_alpha")
}

func TestCompile_TaskChunking(t *testing.T) {
	job, _ := renderJob(t)
	cfg := config.DefaultConfig()
	cfg.EnableChunking = false
	cfg.TaskChunking = true

	res, err := Compile(context.Background(), job, &cfg, Deps{Detector: exrDetector()})
	require.NoError(t, err)
	g := res.Graph
	require.Len(t, g.Nodes, 3, "task chunking plans chunks on its own")
	assert.Equal(t, graph.LayoutTasks, g.Layout)
	assert.Equal(t, "Shot010_v002 [h265]_Encode", g.TaskJob)
	assert.Equal(t, 2, g.Terminal().Task)

	cfg.TaskChunking = false
	res, err = Compile(context.Background(), job, &cfg, Deps{Detector: exrDetector()})
	require.NoError(t, err)
	assert.Len(t, res.Graph.Nodes, 1)
	assert.Equal(t, graph.LayoutJobs, res.Graph.Layout)
}

func TestCompile_MissingAudioDegrades(t *testing.T) {
	job, _ := renderJob(t)
	job.Name = "Shot010_v002 [h264] [audio]"
	cfg := config.DefaultConfig()

	res, err := Compile(context.Background(), job, &cfg, Deps{Detector: exrDetector()})
	require.NoError(t, err)
	assert.True(t, res.Effective.Audio)
	assert.Empty(t, res.AudioPath)
	assert.NotContains(t, strings.Join(res.Graph.Terminal().Command.Args, " "), "1:a:0")
}

func TestCompile_TokenFrameRate(t *testing.T) {
	job, _ := renderJob(t)
	job.Name = "Shot010_v002 [h265] [25fps]"
	cfg := config.DefaultConfig()

	res, err := Compile(context.Background(), job, &cfg, Deps{Detector: exrDetector()})
	require.NoError(t, err)
	assert.Equal(t, media.NewRate(25, 1), res.Profile.FrameRate)
	assert.Contains(t, strings.Join(res.Graph.Nodes[0].Command.Args, " "), "-framerate 25")
}

func TestCompile_Templates(t *testing.T) {
	job, dir := renderJob(t)
	job.Info = map[string]string{"Shot": "sh010"}
	cfg := config.DefaultConfig()
	cfg.InputFile = "<info.OutputDirectory0>/<info.OutputFilename0>"
	cfg.OutputFile = "<info.OutputDirectory0>/delivery/<info.Shot>_<profile.codec>_<profile.width>.mov"

	res, err := Compile(context.Background(), job, &cfg, Deps{Detector: exrDetector()})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "delivery", "sh010_h265_1920.mp4"), res.Graph.Output, "extension follows the codec")

	cfg.OutputFile = "<info.Missing>.mp4"
	_, err = Compile(context.Background(), job, &cfg, Deps{Detector: exrDetector()})
	assert.Error(t, err)
}

func TestCompile_Skips(t *testing.T) {
	cfg := config.DefaultConfig()
	det := exrDetector()

	job, _ := renderJob(t)
	job.Plugin = "AutoEncode"
	res, err := Compile(context.Background(), job, &cfg, Deps{Detector: det})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Nil(t, res.Graph)

	job, _ = renderJob(t)
	job.Name = "Shot010_v002_chunk001_Encode"
	res, err = Compile(context.Background(), job, &cfg, Deps{Detector: det})
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	job, _ = renderJob(t)
	job.Name = "Shot010_v002"
	res, err = Compile(context.Background(), job, &cfg, Deps{Detector: det})
	require.NoError(t, err)
	assert.True(t, res.Skipped, "no tokens in token-based mode")
	assert.NotEmpty(t, res.Reason)

	job, _ = renderJob(t)
	job.Status = event.StatusFailed
	res, err = Compile(context.Background(), job, &cfg, Deps{Detector: det})
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	assert.Zero(t, det.calls, "skipped jobs are never probed")
}

func TestCompile_Preconditions(t *testing.T) {
	cfg := config.DefaultConfig()

	job, _ := renderJob(t)
	job.Frames = nil
	_, err := Compile(context.Background(), job, &cfg, Deps{Detector: exrDetector()})
	assert.ErrorIs(t, err, ErrPrecondition)

	job, _ = renderJob(t)
	job.OutputDirectories = []string{filepath.Join(t.TempDir(), "missing")}
	_, err = Compile(context.Background(), job, &cfg, Deps{Detector: exrDetector()})
	assert.ErrorIs(t, err, ErrPrecondition)

	job, _ = renderJob(t)
	job.OutputFilenames = []string{"other_####.exr"}
	_, err = Compile(context.Background(), job, &cfg, Deps{Detector: exrDetector()})
	assert.ErrorIs(t, err, ErrPrecondition)

	job, _ = renderJob(t)
	job.OutputDirectories = nil
	_, err = Compile(context.Background(), job, &cfg, Deps{Detector: exrDetector()})
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestCompile_DetectionFailure(t *testing.T) {
	job, _ := renderJob(t)
	cfg := config.DefaultConfig()
	det := &fakeDetector{err: &detect.UndeterminedError{Attempts: []string{"timecode: none"}}}

	res, err := Compile(context.Background(), job, &cfg, Deps{Detector: det})
	assert.ErrorIs(t, err, detect.ErrFrameRateUndetermined)
	assert.Nil(t, res)
}

func TestCompile_InvalidMetadata(t *testing.T) {
	job, _ := renderJob(t)
	job.Metadata = map[string]string{"AutoEncode.Quality": "abc"}
	cfg := config.DefaultConfig()

	_, err := Compile(context.Background(), job, &cfg, Deps{Detector: exrDetector()})
	assert.ErrorIs(t, err, settings.ErrInvalidMetadata)
}

func TestOutputName(t *testing.T) {
	cases := []struct {
		base  string
		codec config.Codec
		ext   string
		want  string
	}{
		{"shot010", config.CodecH265, ".mp4", "shot010_h265.mp4"},
		{"shot010_h264", config.CodecH265, ".mp4", "shot010_h265.mp4"},
		{"shot010_[audio]_h264_prores", config.CodecHAP, ".mov", "shot010_hap.mov"},
		{"[h265]", config.CodecH265, ".mp4", "output_h265.mp4"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, OutputName(tc.base, tc.codec, tc.ext), tc.base)
	}
}

func TestFindAudio(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "renders")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "audio"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "audio"), 0o755))

	assert.Empty(t, FindAudio(dir, "shot"))

	parent := filepath.Join(root, "audio", "shot.m4a")
	require.NoError(t, os.WriteFile(parent, nil, 0o644))
	assert.Equal(t, parent, FindAudio(dir, "shot"))

	generic := filepath.Join(dir, "audio", "audio.mp3")
	require.NoError(t, os.WriteFile(generic, nil, 0o644))
	assert.Equal(t, generic, FindAudio(dir, "shot"))

	exact := filepath.Join(dir, "shot.aac")
	require.NoError(t, os.WriteFile(exact, nil, 0o644))
	assert.Equal(t, exact, FindAudio(dir, "shot"))
}
