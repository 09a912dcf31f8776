package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Runner executes a command and returns its stdout. The default runs the
// real process; tests substitute canned ffprobe output.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Output runs name with args and returns stdout.
func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Prober runs ffprobe. The zero value uses "ffprobe" from PATH.
type Prober struct {
	Exe    string // ffprobe path; "ffprobe" when empty.
	Runner Runner // ExecRunner when nil.
}

// New returns a Prober for the resolved ffprobe executable.
func New(exe string) *Prober {
	return &Prober{Exe: exe}
}

func (p *Prober) run(ctx context.Context, args ...string) ([]byte, error) {
	exe := p.Exe
	if exe == "" {
		exe = "ffprobe"
	}
	r := p.Runner
	if r == nil {
		r = ExecRunner{}
	}
	return r.Output(ctx, exe, args...)
}

// Probe runs a single ffprobe JSON call against path and returns the
// parsed streams and container metadata.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	out, err := p.run(ctx,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", path, err)
	}
	return ParseJSON(out)
}

// FrameTags returns the metadata tags of the first video frame of path merged
// over its stream and format tags. Image formats such as EXR expose header
// attributes (timecode among them) only at frame level.
func (p *Prober) FrameTags(ctx context.Context, path string) (map[string]string, error) {
	out, err := p.run(ctx,
		"-v", "quiet",
		"-print_format", "json",
		"-select_streams", "v:0",
		"-read_intervals", "%+#1",
		"-show_entries", "frame_tags:stream_tags:format_tags",
		"-show_frames",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("ffprobe frames %q: %w", path, err)
	}
	pr, err := ParseJSON(out)
	if err != nil {
		return nil, err
	}
	return pr.Tags(), nil
}

// ParseJSON converts raw ffprobe JSON output into a ProbeResult.
// Exported for testing without a real ffprobe binary.
func ParseJSON(data []byte) (*ProbeResult, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}
	return buildResult(&raw), nil
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
	Frames  []ffprobeFrame  `json:"frames"`
}

type ffprobeFormat struct {
	Filename       string            `json:"filename"`
	NbStreams      int               `json:"nb_streams"`
	FormatName     string            `json:"format_name"`
	FormatLongName string            `json:"format_long_name"`
	Duration       string            `json:"duration"`
	Size           string            `json:"size"`
	BitRate        string            `json:"bit_rate"`
	Tags           map[string]string `json:"tags"`
}

type ffprobeStream struct {
	Index          int               `json:"index"`
	CodecName      string            `json:"codec_name"`
	CodecType      string            `json:"codec_type"`
	Profile        string            `json:"profile"`
	PixFmt         string            `json:"pix_fmt"`
	Width          int               `json:"width"`
	Height         int               `json:"height"`
	BitRate        string            `json:"bit_rate"`
	FieldOrder     string            `json:"field_order"`
	ColorRange     string            `json:"color_range"`
	ColorTransfer  string            `json:"color_transfer"`
	ColorPrimaries string            `json:"color_primaries"`
	ColorSpace     string            `json:"color_space"`
	RFrameRate     string            `json:"r_frame_rate"`
	AvgFrameRate   string            `json:"avg_frame_rate"`
	NbFrames       string            `json:"nb_frames"`
	Channels       int               `json:"channels"`
	ChannelLayout  string            `json:"channel_layout"`
	SampleRate     string            `json:"sample_rate"`
	Disposition    map[string]int    `json:"disposition"`
	Tags           map[string]string `json:"tags"`
}

type ffprobeFrame struct {
	MediaType string            `json:"media_type"`
	Tags      map[string]string `json:"tags"`
}

// --- Conversion from wire types to domain types ---

func buildResult(raw *ffprobeOutput) *ProbeResult {
	pr := &ProbeResult{
		Format: convertFormat(&raw.Format),
	}

	for i := range raw.Streams {
		s := &raw.Streams[i]
		switch s.CodecType {
		case "video":
			vs := convertVideo(s)
			if !vs.IsAttachedPic && pr.PrimaryVideo == nil {
				pr.PrimaryVideo = &vs
			}
		case "audio":
			pr.AudioStreams = append(pr.AudioStreams, convertAudio(s))
		}
	}
	for _, f := range raw.Frames {
		if f.MediaType != "" && f.MediaType != "video" {
			continue
		}
		pr.FrameTags = f.Tags
		break
	}
	return pr
}

func convertFormat(f *ffprobeFormat) FormatInfo {
	return FormatInfo{
		Filename:       f.Filename,
		NbStreams:      f.NbStreams,
		FormatName:     f.FormatName,
		FormatLongName: f.FormatLongName,
		Duration:       parseFloat(f.Duration),
		Size:           parseInt64(f.Size),
		BitRate:        parseInt64(f.BitRate),
		Tags:           f.Tags,
	}
}

func convertVideo(s *ffprobeStream) VideoStream {
	return VideoStream{
		Index:          s.Index,
		Codec:          s.CodecName,
		Profile:        s.Profile,
		PixFmt:         s.PixFmt,
		Width:          s.Width,
		Height:         s.Height,
		BitRate:        parseInt64(s.BitRate),
		FieldOrder:     s.FieldOrder,
		ColorRange:     s.ColorRange,
		ColorTransfer:  s.ColorTransfer,
		ColorPrimaries: s.ColorPrimaries,
		ColorSpace:     s.ColorSpace,
		IsAttachedPic:  s.Disposition["attached_pic"] == 1,
		RFrameRate:     s.RFrameRate,
		AvgFrameRate:   s.AvgFrameRate,
		NbFrames:       parseInt64(s.NbFrames),
		Tags:           s.Tags,
	}
}

func convertAudio(s *ffprobeStream) AudioStream {
	return AudioStream{
		Index:         s.Index,
		Codec:         s.CodecName,
		Channels:      s.Channels,
		ChannelLayout: s.ChannelLayout,
		SampleRate:    parseInt(s.SampleRate),
		Language:      s.Tags["language"],
		IsDefault:     s.Disposition["default"] == 1,
	}
}

// --- Numeric parsing helpers (ffprobe returns numbers as strings) ---

func parseInt64(s string) int64 {
	s = strings.TrimSpace(s)
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseInt(s string) int {
	s = strings.TrimSpace(s)
	n, _ := strconv.Atoi(s)
	return n
}
