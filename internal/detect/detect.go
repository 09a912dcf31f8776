// Package detect derives VideoProperties for a source sequence: geometry and
// color from one ffprobe call on a representative frame, and frame rate from
// an ordered fallback chain that fails closed rather than guessing.
package detect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/backmassage/autoencode/internal/config"
	"github.com/backmassage/autoencode/internal/logging"
	"github.com/backmassage/autoencode/internal/media"
	"github.com/backmassage/autoencode/internal/probe"
	"github.com/backmassage/autoencode/internal/settings"
)

// Accepted frame rate range for every detection step.
const (
	minRate = 1
	maxRate = 120
)

var (
	// ErrFrameRateUndetermined is returned when every step of the chain fails.
	ErrFrameRateUndetermined = errors.New("frame rate could not be determined")
	// ErrProbeFailed is returned when the representative frame is missing or
	// ffprobe cannot read it.
	ErrProbeFailed = errors.New("probe failed")
)

// UndeterminedError carries the reason each attempted step gave up.
type UndeterminedError struct {
	Attempts []string
}

func (e *UndeterminedError) Error() string {
	return ErrFrameRateUndetermined.Error() + " (tried " + strings.Join(e.Attempts, "; ") + ")"
}

func (e *UndeterminedError) Unwrap() error { return ErrFrameRateUndetermined }

// Prober is the ffprobe surface detection needs. *probe.Prober satisfies it.
type Prober interface {
	Probe(ctx context.Context, path string) (*probe.ProbeResult, error)
	FrameTags(ctx context.Context, path string) (map[string]string, error)
}

// JobInfo is the part of the render job description detection reads.
type JobInfo struct {
	Name             string
	OutputName       string
	Properties       map[string]string
	PluginProperties map[string]string
}

// Detector runs property detection. Build it with NewDetector.
type Detector struct {
	Prober          Prober
	Log             *logging.Logger
	TimecodeOffsets []int

	rules []nameRule
}

// NewDetector returns a Detector using cfg's timecode offsets and name rule
// order. A nil log discards output.
func NewDetector(p Prober, log *logging.Logger, cfg *config.Config) (*Detector, error) {
	rules, err := orderRules(cfg.NameRateRules)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Detector{
		Prober:          p,
		Log:             log,
		TimecodeOffsets: cfg.TimecodeOffsets,
		rules:           rules,
	}, nil
}

// Detect probes seq and resolves its frame rate. The returned properties are
// a fresh value; nothing in the Detector retains them.
func (d *Detector) Detect(ctx context.Context, seq media.Sequence, eff settings.EffectiveConfig, job JobInfo) (media.VideoProperties, error) {
	frame, err := representativeFrame(seq)
	if err != nil {
		return media.VideoProperties{}, err
	}
	pr, err := d.Prober.Probe(ctx, frame)
	if err != nil {
		return media.VideoProperties{}, fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}
	props, err := fromProbe(pr)
	if err != nil {
		return media.VideoProperties{}, fmt.Errorf("%w: %s: %v", ErrProbeFailed, frame, err)
	}

	rate, src, err := d.frameRate(ctx, seq, eff, job, pr)
	if err != nil {
		return media.VideoProperties{}, err
	}
	props.FrameRate = rate
	props.RateSource = src
	d.Log.Debug("detected %s @ %s (%s) transfer=%q pix_fmt=%s alpha=%t",
		pr.Resolution(), rate, src, props.Transfer, props.PixelFormat, props.HasAlpha)
	return props, nil
}

func (d *Detector) frameRate(ctx context.Context, seq media.Sequence, eff settings.EffectiveConfig, job JobInfo, pr *probe.ProbeResult) (media.Rate, media.RateSource, error) {
	if !eff.FrameRateOverride.IsZero() {
		return eff.FrameRateOverride, media.RateFromOverride, nil
	}

	var attempts []string
	if seq.IsMovie() {
		r, why := containerRate(pr)
		if why == "" {
			return r, media.RateFromContainer, nil
		}
		attempts = append(attempts, why)
	} else {
		r, why := d.timecodeRate(ctx, seq)
		if why == "" {
			return r, media.RateFromTimecode, nil
		}
		attempts = append(attempts, why)
	}

	r, why := propertyRate(job)
	if why == "" {
		return r, media.RateFromProperties, nil
	}
	attempts = append(attempts, why)

	if r, rule, ok := d.nameRate(job.Name, job.OutputName); ok {
		d.Log.Debug("frame rate %s from name rule %s", r, rule)
		return r, media.RateFromName, nil
	}
	attempts = append(attempts, "name-pattern: no rule matched")

	return media.Rate{}, "", &UndeterminedError{Attempts: attempts}
}

// representativeFrame returns the first frame of the range when it exists,
// otherwise the first frame on disk matching the pattern.
func representativeFrame(seq media.Sequence) (string, error) {
	if seq.IsMovie() {
		if _, err := os.Stat(seq.Pattern); err != nil {
			return "", fmt.Errorf("%w: %v", ErrProbeFailed, err)
		}
		return seq.Pattern, nil
	}
	first := seq.FramePath(seq.First)
	if _, err := os.Stat(first); err == nil {
		return first, nil
	}
	matches, err := filepath.Glob(seq.Wildcard())
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("%w: no frames found for %s", ErrProbeFailed, seq.Pattern)
	}
	sort.Strings(matches)
	return matches[0], nil
}

func fromProbe(pr *probe.ProbeResult) (media.VideoProperties, error) {
	v := pr.PrimaryVideo
	if v == nil {
		return media.VideoProperties{}, errors.New("no video stream")
	}
	if v.Width <= 0 || v.Height <= 0 {
		return media.VideoProperties{}, fmt.Errorf("invalid dimensions %dx%d", v.Width, v.Height)
	}
	return media.VideoProperties{
		Width:       v.Width,
		Height:      v.Height,
		Transfer:    pr.Transfer(),
		Matrix:      v.ColorSpace,
		Primaries:   v.ColorPrimaries,
		PixelFormat: v.PixFmt,
		SourceCodec: v.Codec,
		HasAudio:    pr.HasAudio(),
		HasAlpha:    pr.HasAlpha(),
		Interlaced:  pr.IsInterlaced(),
	}, nil
}

// containerRate reads the movie's declared rate, preferring r_frame_rate.
func containerRate(pr *probe.ProbeResult) (media.Rate, string) {
	v := pr.PrimaryVideo
	for _, s := range []string{v.RFrameRate, v.AvgFrameRate} {
		if s == "" || s == "0/0" {
			continue
		}
		r, err := media.ParseRate(s)
		if err != nil || r.Float() < minRate || r.Float() > maxRate {
			continue
		}
		return r, ""
	}
	return media.Rate{}, "container: no usable rate in stream"
}
