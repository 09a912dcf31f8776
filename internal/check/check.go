// Package check provides system diagnostics (the check command) and the
// pre-flight validation run before a worker starts: ffmpeg and ffprobe must
// resolve, and the configured codec needs an encoder ffmpeg actually has.
package check

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/backmassage/autoencode/internal/config"
	"github.com/backmassage/autoencode/internal/profile"
)

var (
	ErrEncoderMissing = errors.New("no usable encoder for codec")
	ErrNVENCFailed    = errors.New("NVENC test encode failed")
)

// Logger is the subset of logging.Logger RunCheck writes to.
type Logger interface {
	Info(string, ...any)
	Success(string, ...any)
	Warn(string, ...any)
	Error(string, ...any)
}

// RunCheck prints tool versions, the encoders available for each codec and
// the result of a short NVENC encode. It never stops on failure.
func RunCheck(ctx context.Context, cfg *config.Config, log Logger) {
	log.Info("=== System Check ===")

	ffmpeg, err := cfg.FFmpeg()
	if err != nil {
		log.Error("ffmpeg: %v", err)
		return
	}
	logVersion(ctx, log, "ffmpeg", ffmpeg)
	if ffprobe, err := cfg.FFprobe(); err != nil {
		log.Error("ffprobe: %v", err)
	} else {
		logVersion(ctx, log, "ffprobe", ffprobe)
	}

	have, err := Encoders(ctx, ffmpeg)
	if err != nil {
		log.Warn("Could not list encoders: %v", err)
		return
	}
	for _, c := range config.Codecs {
		v, _ := profile.Lookup(c)
		var found, missing []string
		for _, e := range v.Encoders() {
			if have[e] {
				found = append(found, e)
			} else {
				missing = append(missing, e)
			}
		}
		switch {
		case len(missing) == 0:
			log.Success("%s: %s", c, strings.Join(found, ", "))
		case len(found) > 0:
			log.Warn("%s: %s (missing %s)", c, strings.Join(found, ", "), strings.Join(missing, ", "))
		default:
			log.Error("%s: no encoder (need one of %s)", c, strings.Join(missing, ", "))
		}
	}

	if have["hevc_nvenc"] {
		log.Info("Testing NVENC...")
		if runSilent(ctx, ffmpeg, nvencTestArgs("hevc_nvenc")...) {
			log.Success("NVENC works")
		} else {
			log.Warn("NVENC test encode failed; set enable_gpu: false on CPU-only workers")
		}
	}
}

// CheckDeps verifies the tools and the encoder the configured codec will
// select. With GPU enabled for H.264/H.265 a one-frame NVENC encode must
// succeed.
func CheckDeps(ctx context.Context, cfg *config.Config) error {
	ffmpeg, err := cfg.FFmpeg()
	if err != nil {
		return err
	}
	if _, err := cfg.FFprobe(); err != nil {
		return err
	}
	have, err := Encoders(ctx, ffmpeg)
	if err != nil {
		return err
	}

	want := requiredEncoder(cfg)
	if !have[want] {
		return fmt.Errorf("%w %s: ffmpeg has no %s", ErrEncoderMissing, cfg.Codec, want)
	}
	if strings.HasSuffix(want, "_nvenc") && !runSilent(ctx, ffmpeg, nvencTestArgs(want)...) {
		return ErrNVENCFailed
	}
	return nil
}

// requiredEncoder is the encoder Build picks for the global defaults.
func requiredEncoder(cfg *config.Config) string {
	v, ok := profile.Lookup(cfg.Codec)
	if !ok {
		return ""
	}
	encs := v.Encoders()
	if len(encs) == 2 && !cfg.EnableGPU {
		return encs[1]
	}
	return encs[0]
}

// Encoders lists the encoder names reported by ffmpeg -encoders.
func Encoders(ctx context.Context, ffmpeg string) (map[string]bool, error) {
	out, err := exec.CommandContext(ctx, ffmpeg, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg -encoders: %w", err)
	}
	return ParseEncoders(string(out)), nil
}

// ParseEncoders reads the table printed by ffmpeg -encoders. Rows look like
// " V....D libx265              libx265 H.265 / HEVC"; everything before the
// "------" separator is the legend.
func ParseEncoders(out string) map[string]bool {
	have := map[string]bool{}
	body := false
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !body {
			body = strings.HasPrefix(line, "------")
			continue
		}
		f := strings.Fields(line)
		if len(f) >= 2 {
			have[f[1]] = true
		}
	}
	return have
}

func logVersion(ctx context.Context, log Logger, name, path string) {
	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		log.Warn("%s found at %s but -version failed: %v", name, path, err)
		return
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	log.Success("%s: %s", name, first)
}

func nvencTestArgs(encoder string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=black:s=256x256:d=0.1",
		"-c:v", encoder,
		"-f", "null", "-",
	}
}

// runSilent reports whether the command exits 0. Output is discarded.
func runSilent(ctx context.Context, name string, args ...string) bool {
	return exec.CommandContext(ctx, name, args...).Run() == nil
}
