package compiler

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/backmassage/autoencode/internal/config"
)

// reBrackets matches bracketed tokens like [h265] or [audio].
var reBrackets = regexp.MustCompile(`\[[^\]]*\]`)

// reCodecSuffix matches a trailing codec suffix left by an earlier encode.
var reCodecSuffix = regexp.MustCompile(`(?i)[_.-](h265|h264|hevc|avc|x265|x264|prores|hap)$`)

// AudioExtensions are tried in order for every sidecar location.
var AudioExtensions = []string{".wav", ".mp3", ".aac", ".m4a"}

// OutputName derives the delivery file name from a source base name:
// bracketed tokens and existing codec suffixes are removed, then
// _<codec><ext> appended. shot010_[audio]_h264 with h265 gives
// shot010_h265.mp4.
func OutputName(base string, codec config.Codec, ext string) string {
	name := stripCodecSuffix(base)
	if name == "" {
		name = "output"
	}
	return name + "_" + string(codec) + ext
}

// stripCodecSuffix removes bracketed tokens and any number of trailing codec
// suffixes, then trailing separators.
func stripCodecSuffix(base string) string {
	s := reBrackets.ReplaceAllString(base, "")
	for {
		s = strings.TrimRight(s, "_.- ")
		loc := reCodecSuffix.FindStringIndex(s)
		if loc == nil {
			return s
		}
		s = s[:loc[0]]
	}
}

// FindAudio looks for a sidecar audio track for base next to dir. Locations
// in priority order: dir/base, dir/audio, dir/audio/base, dir/audio/audio,
// ../audio/base. Returns "" when nothing exists.
func FindAudio(dir, base string) string {
	parentAudio := filepath.Join(filepath.Dir(dir), "audio")
	candidates := [][2]string{
		{dir, base},
		{dir, "audio"},
		{filepath.Join(dir, "audio"), base},
		{filepath.Join(dir, "audio"), "audio"},
		{parentAudio, base},
	}
	for _, c := range candidates {
		if c[1] == "" {
			continue
		}
		for _, ext := range AudioExtensions {
			p := filepath.Join(c[0], c[1]+ext)
			if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
				return p
			}
		}
	}
	return ""
}
