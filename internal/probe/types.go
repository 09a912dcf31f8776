package probe

import (
	"strconv"
	"strings"
)

// FormatInfo holds container-level metadata from ffprobe's format section.
type FormatInfo struct {
	Filename       string
	NbStreams      int
	FormatName     string
	FormatLongName string
	Duration       float64
	Size           int64
	BitRate        int64
	Tags           map[string]string
}

// VideoStream holds the parsed properties of a single video stream.
type VideoStream struct {
	Index          int
	Codec          string
	Profile        string
	PixFmt         string
	Width          int
	Height         int
	BitRate        int64
	FieldOrder     string
	ColorRange     string
	ColorTransfer  string
	ColorPrimaries string
	ColorSpace     string
	IsAttachedPic  bool
	RFrameRate     string
	AvgFrameRate   string
	NbFrames       int64
	Tags           map[string]string
}

// AudioStream holds the parsed properties of a single audio stream.
type AudioStream struct {
	Index         int
	Codec         string
	Channels      int
	ChannelLayout string
	SampleRate    int
	Language      string
	IsDefault     bool
}

// ProbeResult is the parsed output of one ffprobe JSON call.
// PrimaryVideo is the first non-attached-pic video stream (nil if none).
// FrameTags is set only when frames were requested.
type ProbeResult struct {
	Format       FormatInfo
	PrimaryVideo *VideoStream
	AudioStreams []AudioStream
	FrameTags    map[string]string
}

// HasAudio reports whether the container carries at least one audio stream.
func (p *ProbeResult) HasAudio() bool { return len(p.AudioStreams) > 0 }

// Tags merges format, stream and frame tags, most specific last.
func (p *ProbeResult) Tags() map[string]string {
	out := make(map[string]string)
	for k, v := range p.Format.Tags {
		out[k] = v
	}
	if p.PrimaryVideo != nil {
		for k, v := range p.PrimaryVideo.Tags {
			out[k] = v
		}
	}
	for k, v := range p.FrameTags {
		out[k] = v
	}
	return out
}

// Resolution returns "WxH" for the primary video stream, or "unknown".
func (p *ProbeResult) Resolution() string {
	if p.PrimaryVideo == nil || p.PrimaryVideo.Width <= 0 || p.PrimaryVideo.Height <= 0 {
		return "unknown"
	}
	return strconv.Itoa(p.PrimaryVideo.Width) + "x" + strconv.Itoa(p.PrimaryVideo.Height)
}

// HasAlpha reports whether the primary video pixel format carries alpha
// (rgba, gbrapf32le, yuva444p10le, ...).
func (p *ProbeResult) HasAlpha() bool {
	if p.PrimaryVideo == nil {
		return false
	}
	pf := strings.ToLower(p.PrimaryVideo.PixFmt)
	return strings.HasPrefix(pf, "rgba") || strings.HasPrefix(pf, "bgra") ||
		strings.HasPrefix(pf, "argb") || strings.HasPrefix(pf, "abgr") ||
		strings.HasPrefix(pf, "gbrap") || strings.HasPrefix(pf, "yuva") ||
		strings.HasPrefix(pf, "ya")
}
