package detect

import (
	"context"
	"maps"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/backmassage/autoencode/internal/media"
)

// timecodeKeys are the tag names renderers use for per-frame timecode,
// compared case-insensitively.
var timecodeKeys = []string{"timecode", "timecodestring", "smpte:timecode", "time"}

var (
	// HH:MM:SS:FF or HH:MM:SS;FF (drop frame).
	smpteRe = regexp.MustCompile(`^(\d{1,2}):(\d{2}):(\d{2})[:;](\d{1,3})$`)
	// HH:MM:SS.fraction, HH:MM:SS or plain seconds.
	clockRe = regexp.MustCompile(`^(?:(\d{1,2}):(\d{2}):)?(\d+(?:\.\d+)?)$`)
)

// timecode is one parsed tag. SMPTE timecodes carry whole seconds plus a
// frame count whose base is the unknown rate; clock timecodes carry
// fractional seconds.
type timecode struct {
	seconds float64
	frames  int
	smpte   bool
}

// parseTimecode accepts SMPTE timecodes and clock times. A dot always
// introduces fractional seconds.
func parseTimecode(s string) (timecode, bool) {
	s = strings.TrimSpace(s)
	if m := smpteRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		sec, _ := strconv.Atoi(m[3])
		ff, _ := strconv.Atoi(m[4])
		return timecode{seconds: float64(h*3600 + mi*60 + sec), frames: ff, smpte: true}, true
	}
	if m := clockRe.FindStringSubmatch(s); m != nil {
		sec, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return timecode{}, false
		}
		if m[1] != "" {
			h, _ := strconv.Atoi(m[1])
			mi, _ := strconv.Atoi(m[2])
			sec += float64(h*3600 + mi*60)
		}
		return timecode{seconds: sec}, true
	}
	return timecode{}, false
}

// findTimecode returns the first parsable tag in timecodeKeys order. Tags
// differing only in case are visited in sorted order.
func findTimecode(tags map[string]string) (timecode, bool) {
	byKey := make(map[string][]string, len(tags))
	for _, k := range slices.Sorted(maps.Keys(tags)) {
		lk := strings.ToLower(k)
		byKey[lk] = append(byKey[lk], tags[k])
	}
	for _, want := range timecodeKeys {
		for _, v := range byKey[want] {
			if tc, ok := parseTimecode(v); ok {
				return tc, true
			}
		}
	}
	return timecode{}, false
}

type tcSample struct {
	frame int
	tc    timecode
}

// frameDurations turns consecutive samples into seconds-per-frame values.
// SMPTE pairs need at least one second between them: within a second the
// frame field just counts up and says nothing about the rate.
func frameDurations(samples []tcSample) []float64 {
	var out []float64
	for i := 1; i < len(samples); i++ {
		a, b := samples[i-1], samples[i]
		dn := float64(b.frame - a.frame)
		if dn <= 0 || a.tc.smpte != b.tc.smpte {
			continue
		}
		ds := b.tc.seconds - a.tc.seconds
		if ds <= 0 {
			continue
		}
		if !a.tc.smpte {
			out = append(out, ds/dn)
			continue
		}
		rate := (dn - float64(b.tc.frames-a.tc.frames)) / ds
		if rate > 0 {
			out = append(out, 1/rate)
		}
	}
	return out
}

// timecodeRate samples frame timecodes across the sequence and returns the
// reciprocal of the median frame duration after outlier rejection. It needs
// timecodes on at least two distinct frames.
func (d *Detector) timecodeRate(ctx context.Context, seq media.Sequence) (media.Rate, string) {
	offsets := append([]int{0}, d.TimecodeOffsets...)
	seen := make(map[int]bool)
	var samples []tcSample
	for _, off := range offsets {
		f := seq.First + off
		if off < 0 || f > seq.Last || seen[f] {
			continue
		}
		seen[f] = true
		path := seq.FramePath(f)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		tags, err := d.Prober.FrameTags(ctx, path)
		if err != nil {
			d.Log.Debug("timecode probe of frame %d failed: %v", f, err)
			continue
		}
		if tc, ok := findTimecode(tags); ok {
			samples = append(samples, tcSample{frame: f, tc: tc})
		}
	}
	if len(samples) < 2 {
		return media.Rate{}, "timecode: fewer than two frames carry a timecode"
	}

	durations := frameDurations(samples)
	kept, rejected := inliers(durations)
	if rejected > 0 {
		d.Log.Debug("timecode: rejected %d outlier frame durations", rejected)
	}
	m := median(kept)
	if m <= 0 {
		return media.Rate{}, "timecode: samples do not advance"
	}
	rate := media.RateFromFloat(1/m, 0.1)
	if rate.Float() < minRate || rate.Float() > maxRate {
		return media.Rate{}, "timecode: measured " + rate.String() + " out of range"
	}
	return rate, ""
}
