// Package settings merges the three configuration layers of a render job
// into one EffectiveConfig. Precedence is decided per field: job UI metadata,
// then tokens from the job name and output filename, then global config.
package settings

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/backmassage/autoencode/internal/config"
	"github.com/backmassage/autoencode/internal/media"
	"github.com/backmassage/autoencode/internal/tokens"
)

// ErrInvalidMetadata is returned when a UI metadata value cannot be parsed.
var ErrInvalidMetadata = errors.New("invalid job metadata")

// Source names the layer that supplied a field.
type Source string

const (
	SourceConfig   Source = "config"
	SourceToken    Source = "token"
	SourceMetadata Source = "metadata"
	// SourceDetected marks a config value replaced after probing the input.
	SourceDetected Source = "detected"
)

// EffectiveConfig is the fully resolved per-job configuration. Every field
// holds a definite value; FrameRateOverride is the zero Rate when detection
// should run, ProResProfile and HapVariant are empty for other codecs and
// Priority may be config.PriorityInherit.
type EffectiveConfig struct {
	Codec             config.Codec
	Quality           int
	GPU               bool
	MaxWidth          int
	MaxHeight         int
	ProResProfile     string
	HapVariant        string
	FrameRateOverride media.Rate
	Audio             bool
	AudioBitrate      string
	Chunking          bool
	TaskChunking      bool
	ChunkSize         int
	MinChunks         int
	KeepIntermediates bool
	Priority          int
	ConcurrentTasks   int

	// Sources records which layer won each field, keyed by field name.
	Sources map[string]Source
}

// Input is everything resolution looks at.
type Input struct {
	Config     *config.Config
	JobName    string
	Plugin     string
	Metadata   map[string]string
	JobTokens  tokens.Set
	FileTokens tokens.Set
}

// Resolution is the outcome of Resolve. When Fire is false the job is left
// alone and Reason says why; Effective is then the zero value.
type Resolution struct {
	Fire      bool
	Reason    string
	Tokens    tokens.Set
	Effective EffectiveConfig
}

// Resolve decides whether the job fires and, if so, computes its
// EffectiveConfig. Filename tokens are applied after job-name tokens, so they
// win when both name the same field. Malformed metadata is an error even when
// the job would not fire.
func Resolve(in Input) (Resolution, error) {
	cfg := in.Config
	md, err := parseMetadata(in.Metadata, cfg.MetadataPrefix)
	if err != nil {
		return Resolution{}, err
	}
	toks := in.JobTokens.Merge(in.FileTokens)

	fire, reason, err := decide(cfg, md, toks, in.JobName, in.Plugin)
	if err != nil {
		return Resolution{}, err
	}
	if !fire {
		return Resolution{Fire: false, Reason: reason, Tokens: toks}, nil
	}

	eff, err := merge(cfg, md, toks)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Fire: true, Reason: reason, Tokens: toks, Effective: eff}, nil
}

// decide applies the trigger mode. An explicit metadata Enabled=false always
// wins; Enabled=true stands in for a trigger token.
func decide(cfg *config.Config, md metadata, toks tokens.Set, jobName, plugin string) (bool, string, error) {
	if md.Enabled.ok && !md.Enabled.v {
		return false, "disabled by job metadata", nil
	}
	explicit := md.Enabled.ok && md.Enabled.v

	switch cfg.State {
	case config.TriggerDisabled:
		return false, "auto-encode is disabled", nil

	case config.TriggerOptIn:
		if !explicit && !toks.Trigger {
			return false, "opt-in: no enable flag or trigger token", nil
		}
		if ok, why, err := filtersMatch(cfg, jobName, plugin); err != nil || !ok {
			return false, why, err
		}
		return true, "opt-in", nil

	case config.TriggerTokenBased:
		if !explicit && !toks.Directive() {
			return false, "no trigger or codec token", nil
		}
		return true, "token " + toks.String(), nil

	case config.TriggerGlobalEnabled:
		if ok, why, err := filtersMatch(cfg, jobName, plugin); err != nil || !ok {
			return false, why, err
		}
		if cfg.RequireTokens && !explicit && !toks.Any() {
			return false, "no tokens and require_tokens is set", nil
		}
		return true, "global", nil
	}
	return false, "", fmt.Errorf("unknown trigger state %q", cfg.State)
}

func filtersMatch(cfg *config.Config, jobName, plugin string) (bool, string, error) {
	ok, err := matches(cfg.JobNameFilter, jobName)
	if err != nil {
		return false, "", fmt.Errorf("job name filter: %w", err)
	}
	if !ok {
		return false, fmt.Sprintf("job name %q does not match filter", jobName), nil
	}
	ok, err = matches(cfg.PluginNameFilter, plugin)
	if err != nil {
		return false, "", fmt.Errorf("plugin name filter: %w", err)
	}
	if !ok {
		return false, fmt.Sprintf("plugin %q does not match filter", plugin), nil
	}
	return true, "", nil
}

// matches anchors pattern at the start of s, so "Final" matches
// "Final_v001" but not "NotFinal".
func matches(pattern, s string) (bool, error) {
	if pattern == "" {
		return true, nil
	}
	return regexp.MatchString("^(?:"+pattern+")", s)
}

// merge resolves every field independently.
func merge(cfg *config.Config, md metadata, toks tokens.Set) (EffectiveConfig, error) {
	eff := EffectiveConfig{Sources: make(map[string]Source)}
	set := func(field string, src Source) { eff.Sources[field] = src }

	var src Source
	eff.Codec, src = pick(md.Codec, tokenOpt(toks.Codec, toks.Codec != ""), some(cfg.Codec, SourceConfig))
	set("codec", src)
	eff.Quality, src = pick(md.Quality, some(cfg.Quality, SourceConfig))
	set("quality", src)
	eff.GPU, src = pick(md.GPU, some(cfg.EnableGPU, SourceConfig))
	set("gpu", src)
	eff.MaxWidth, src = pick(md.MaxWidth, some(cfg.MaxWidth, SourceConfig))
	set("max_width", src)
	eff.MaxHeight, src = pick(md.MaxHeight, some(cfg.MaxHeight, SourceConfig))
	set("max_height", src)
	eff.Audio, src = pick(md.Audio, tokenOpt(true, toks.Audio), some(cfg.Audio, SourceConfig))
	set("audio", src)
	eff.AudioBitrate = cfg.NormalizedAudioBitrate()
	set("audio_bitrate", SourceConfig)
	eff.Chunking, src = pick(md.Chunking, some(cfg.EnableChunking, SourceConfig))
	set("chunking", src)
	eff.TaskChunking, src = pick(md.TaskChunking, some(cfg.TaskChunking, SourceConfig))
	set("task_chunking", src)
	eff.ChunkSize, src = pick(md.ChunkSize, some(cfg.ChunkSize, SourceConfig))
	set("chunk_size", src)
	eff.MinChunks, src = pick(md.MinChunks, some(cfg.MinChunks, SourceConfig))
	set("min_chunks", src)
	eff.KeepIntermediates, src = pick(md.KeepChunks, some(cfg.KeepChunks, SourceConfig))
	set("keep_intermediates", src)
	eff.Priority, src = pick(md.Priority, some(cfg.Priority, SourceConfig))
	set("priority", src)

	var cfgRate opt[media.Rate]
	if cfg.FrameRate != "" {
		r, err := media.ParseRate(cfg.FrameRate)
		if err != nil {
			return EffectiveConfig{}, fmt.Errorf("config frame_rate: %w", err)
		}
		cfgRate = some(r, SourceConfig)
	}
	eff.FrameRateOverride, src = pick(md.FrameRate, tokenOpt(toks.FrameRate, !toks.FrameRate.IsZero()), cfgRate)
	if !eff.FrameRateOverride.IsZero() {
		set("frame_rate", src)
	}

	// Codec-specific parameters only survive for their codec.
	switch eff.Codec {
	case config.CodecProRes:
		eff.ProResProfile, src = pick(md.ProResProfile, tokenOpt(toks.ProResProfile, toks.ProResProfile != ""), some(cfg.ProResProfile, SourceConfig))
		set("prores_profile", src)
	case config.CodecHAP:
		eff.HapVariant, src = pick(md.HapVariant, tokenOpt(toks.HapVariant, toks.HapVariant != ""), some(cfg.HapVariant, SourceConfig))
		set("hap_variant", src)
	}

	tasks, src := pick(md.ConcurrentTasks, some(cfg.ConcurrentTasks, SourceConfig))
	eff.ConcurrentTasks = min(tasks, cfg.CodecCeiling(eff.Codec, eff.GPU))
	set("concurrent_tasks", src)

	return eff, nil
}

// PreserveAlpha switches a config-supplied ProRes profile or HAP variant to
// its alpha-carrying form when the source has an alpha channel. Values set
// by metadata or tokens are kept. It returns the changed field, if any.
func (e *EffectiveConfig) PreserveAlpha(hasAlpha bool) (string, bool) {
	if !hasAlpha {
		return "", false
	}
	switch {
	case e.Codec == config.CodecProRes && e.Sources["prores_profile"] == SourceConfig &&
		e.ProResProfile != "4444" && e.ProResProfile != "4444xq":
		e.ProResProfile = "4444"
		e.Sources["prores_profile"] = SourceDetected
		return "prores_profile", true
	case e.Codec == config.CodecHAP && e.Sources["hap_variant"] == SourceConfig && e.HapVariant == "hap":
		e.HapVariant = "alpha"
		e.Sources["hap_variant"] = SourceDetected
		return "hap_variant", true
	}
	return "", false
}
