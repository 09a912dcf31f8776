package config

// This file registers CLI flags. Flags are bound to viper keys in Load, so a
// flag the user did not pass leaves file and environment values in place.

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"state":            "state",
	"codec":            "codec",
	"quality":          "quality",
	"gpu":              "enable_gpu",
	"max-width":        "max_width",
	"max-height":       "max_height",
	"prores-profile":   "prores_profile",
	"hap-variant":      "hap_variant",
	"audio":            "audio",
	"frame-rate":       "frame_rate",
	"chunking":         "enable_chunking",
	"chunk-size":       "chunk_size",
	"min-chunks":       "min_chunks",
	"keep-chunks":      "keep_chunks",
	"concurrent-tasks": "concurrent_tasks",
	"task-chunking":    "task_chunking",
	"max-prores-tasks": "ceilings.prores",
	"max-h264-gpu":     "ceilings.h264_gpu",
	"max-h264-cpu":     "ceilings.h264_cpu",
	"max-h265-gpu":     "ceilings.h265_gpu",
	"max-h265-cpu":     "ceilings.h265_cpu",
	"max-hap-tasks":    "ceilings.hap",
	"priority":         "priority",
	"ffmpeg":           "ffmpeg_path",
	"ffprobe":          "ffprobe_path",
	"color":            "color",
	"verbose":          "verbose",
	"log":              "log_file",
}

// BindFlags registers the configuration flags on fs with DefaultConfig values
// as their defaults.
func BindFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()

	// Trigger and encoding.
	fs.Var(&triggerModeValue{v: d.State}, "state", "Trigger mode: disabled | opt-in | token-based | global-enabled")
	fs.Var(&codecValue{v: d.Codec}, "codec", "Default codec: h265 | h264 | prores | hap")
	fs.IntP("quality", "q", d.Quality, "CRF (CPU) or CQ (GPU) for H.264/H.265")
	fs.Bool("gpu", d.EnableGPU, "Use NVENC for H.264/H.265")
	fs.Int("max-width", d.MaxWidth, "Maximum output width")
	fs.Int("max-height", d.MaxHeight, "Maximum output height")
	fs.String("prores-profile", d.ProResProfile, "ProRes tier: "+strings.Join(ProResProfiles, " | "))
	fs.String("hap-variant", d.HapVariant, "HAP variant: "+strings.Join(HapVariants, " | "))
	fs.Bool("audio", d.Audio, "Search for a sidecar audio file and mux it")
	fs.String("frame-rate", d.FrameRate, "Frame rate override (e.g. 23.976); empty detects")

	// Chunking.
	fs.Bool("chunking", d.EnableChunking, "Split long sequences into parallel chunks")
	fs.Int("chunk-size", d.ChunkSize, "Frames per chunk")
	fs.Int("min-chunks", d.MinChunks, "Minimum chunk count before chunking applies")
	fs.Bool("keep-chunks", d.KeepChunks, "Keep intermediate chunk files after concat")
	fs.Int("concurrent-tasks", d.ConcurrentTasks, "Maximum concurrently running tasks per graph")
	fs.Bool("task-chunking", d.TaskChunking, "Submit chunks as tasks of a single farm job")

	// Per-codec concurrency ceilings.
	fs.Int("max-prores-tasks", d.Ceilings.ProRes, "Concurrent task ceiling for ProRes")
	fs.Int("max-h264-gpu", d.Ceilings.H264GPU, "Concurrent task ceiling for H.264 on NVENC")
	fs.Int("max-h264-cpu", d.Ceilings.H264CPU, "Concurrent task ceiling for H.264 on CPU")
	fs.Int("max-h265-gpu", d.Ceilings.H265GPU, "Concurrent task ceiling for H.265 on NVENC")
	fs.Int("max-h265-cpu", d.Ceilings.H265CPU, "Concurrent task ceiling for H.265 on CPU")
	fs.Int("max-hap-tasks", d.Ceilings.HAP, "Concurrent task ceiling for HAP")
	fs.Int("priority", d.Priority, "Node priority (-1 inherits the render job's)")

	// Executables and display.
	fs.String("ffmpeg", d.FFmpegPath, "Path to ffmpeg")
	fs.String("ffprobe", d.FFprobePath, "Path to ffprobe")
	fs.Var(&colorModeValue{v: d.Color}, "color", "Color output: auto | always | never")
	fs.BoolP("verbose", "v", d.Verbose, "Verbose output")
	fs.StringP("log", "l", d.LogFile, "Append JSON logs to file")
}

// pflag.Value adapters so enum types are validated while flags are parsed.

type triggerModeValue struct{ v TriggerMode }

func (t *triggerModeValue) String() string { return string(t.v) }
func (t *triggerModeValue) Type() string   { return "state" }
func (t *triggerModeValue) Set(s string) error {
	m, err := ParseTriggerMode(s)
	if err != nil {
		return err
	}
	t.v = m
	return nil
}

type codecValue struct{ v Codec }

func (c *codecValue) String() string { return string(c.v) }
func (c *codecValue) Type() string   { return "codec" }
func (c *codecValue) Set(s string) error {
	codec, err := ParseCodec(s)
	if err != nil {
		return err
	}
	c.v = codec
	return nil
}

type colorModeValue struct{ v ColorMode }

func (c *colorModeValue) String() string { return string(c.v) }
func (c *colorModeValue) Type() string   { return "mode" }
func (c *colorModeValue) Set(s string) error {
	switch m := ColorMode(strings.ToLower(s)); m {
	case ColorAuto, ColorAlways, ColorNever:
		c.v = m
		return nil
	}
	return fmt.Errorf("invalid color mode %q (use 'auto', 'always' or 'never')", s)
}
