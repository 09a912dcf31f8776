package settings

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/backmassage/autoencode/internal/config"
	"github.com/backmassage/autoencode/internal/media"
)

// Metadata field names, used as "<prefix>.<Field>" keys in job metadata.
const (
	FieldEnabled         = "Enabled"
	FieldCodec           = "Codec"
	FieldQuality         = "Quality"
	FieldGPU             = "GPU"
	FieldMaxWidth        = "MaxWidth"
	FieldMaxHeight       = "MaxHeight"
	FieldProResProfile   = "ProResProfile"
	FieldHapVariant      = "HapVariant"
	FieldFrameRate       = "FrameRate"
	FieldAudio           = "Audio"
	FieldChunking        = "Chunking"
	FieldTaskChunking    = "TaskChunking"
	FieldChunkSize       = "ChunkSize"
	FieldMinChunks       = "MinChunks"
	FieldKeepChunks      = "KeepChunks"
	FieldPriority        = "Priority"
	FieldConcurrentTasks = "ConcurrentTasks"
)

// metadata is the parsed UI layer. Fields absent from the job stay !ok.
type metadata struct {
	Enabled         opt[bool]
	Codec           opt[config.Codec]
	Quality         opt[int]
	GPU             opt[bool]
	MaxWidth        opt[int]
	MaxHeight       opt[int]
	ProResProfile   opt[string]
	HapVariant      opt[string]
	FrameRate       opt[media.Rate]
	Audio           opt[bool]
	Chunking        opt[bool]
	TaskChunking    opt[bool]
	ChunkSize       opt[int]
	MinChunks       opt[int]
	KeepChunks      opt[bool]
	Priority        opt[int]
	ConcurrentTasks opt[int]
}

// parseMetadata reads "<prefix>.<Field>" keys case-insensitively. Empty
// values count as absent so a cleared UI field falls back to tokens.
func parseMetadata(raw map[string]string, prefix string) (metadata, error) {
	vals := make(map[string]string, len(raw))
	p := strings.ToLower(prefix) + "."
	for k, v := range raw {
		lk := strings.ToLower(k)
		if !strings.HasPrefix(lk, p) {
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			vals[strings.TrimPrefix(lk, p)] = v
		}
	}

	var md metadata
	var err error
	get := func(field string) (string, bool) {
		v, ok := vals[strings.ToLower(field)]
		return v, ok
	}

	if md.Enabled, err = boolField(get, FieldEnabled); err != nil {
		return md, err
	}
	if v, ok := get(FieldCodec); ok {
		c, perr := config.ParseCodec(v)
		if perr != nil {
			return md, fmt.Errorf("%w: %s: %v", ErrInvalidMetadata, FieldCodec, perr)
		}
		md.Codec = some(c, SourceMetadata)
	}
	if md.Quality, err = intField(get, FieldQuality, 0, 51); err != nil {
		return md, err
	}
	if md.GPU, err = boolField(get, FieldGPU); err != nil {
		return md, err
	}
	if md.MaxWidth, err = intField(get, FieldMaxWidth, 2, 1<<16); err != nil {
		return md, err
	}
	if md.MaxHeight, err = intField(get, FieldMaxHeight, 2, 1<<16); err != nil {
		return md, err
	}
	if md.ProResProfile, err = enumField(get, FieldProResProfile, config.ProResProfiles); err != nil {
		return md, err
	}
	if md.HapVariant, err = enumField(get, FieldHapVariant, config.HapVariants); err != nil {
		return md, err
	}
	if v, ok := get(FieldFrameRate); ok {
		r, perr := media.ParseRate(strings.TrimSuffix(strings.ToLower(v), "fps"))
		if perr != nil {
			return md, fmt.Errorf("%w: %s: %v", ErrInvalidMetadata, FieldFrameRate, perr)
		}
		md.FrameRate = some(r, SourceMetadata)
	}
	if md.Audio, err = boolField(get, FieldAudio); err != nil {
		return md, err
	}
	if md.Chunking, err = boolField(get, FieldChunking); err != nil {
		return md, err
	}
	if md.TaskChunking, err = boolField(get, FieldTaskChunking); err != nil {
		return md, err
	}
	if md.ChunkSize, err = intField(get, FieldChunkSize, 1, 1<<20); err != nil {
		return md, err
	}
	if md.MinChunks, err = intField(get, FieldMinChunks, 1, 1<<10); err != nil {
		return md, err
	}
	if md.KeepChunks, err = boolField(get, FieldKeepChunks); err != nil {
		return md, err
	}
	if md.Priority, err = intField(get, FieldPriority, config.PriorityInherit, 100); err != nil {
		return md, err
	}
	if md.ConcurrentTasks, err = intField(get, FieldConcurrentTasks, 1, 64); err != nil {
		return md, err
	}
	return md, nil
}

type getter func(field string) (string, bool)

func boolField(get getter, field string) (opt[bool], error) {
	v, ok := get(field)
	if !ok {
		return opt[bool]{}, nil
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return some(true, SourceMetadata), nil
	case "0", "false", "no", "off":
		return some(false, SourceMetadata), nil
	}
	return opt[bool]{}, fmt.Errorf("%w: %s must be true or false (got %q)", ErrInvalidMetadata, field, v)
}

func intField(get getter, field string, lo, hi int) (opt[int], error) {
	v, ok := get(field)
	if !ok {
		return opt[int]{}, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return opt[int]{}, fmt.Errorf("%w: %s must be a whole number (got %q)", ErrInvalidMetadata, field, v)
	}
	if n < lo || n > hi {
		return opt[int]{}, fmt.Errorf("%w: %s must be between %d and %d (got %d)", ErrInvalidMetadata, field, lo, hi, n)
	}
	return some(n, SourceMetadata), nil
}

func enumField(get getter, field string, allowed []string) (opt[string], error) {
	v, ok := get(field)
	if !ok {
		return opt[string]{}, nil
	}
	v = strings.ToLower(v)
	if !slices.Contains(allowed, v) {
		return opt[string]{}, fmt.Errorf("%w: %s must be one of %s (got %q)", ErrInvalidMetadata, field, strings.Join(allowed, ", "), v)
	}
	return some(v, SourceMetadata), nil
}
