// Package profile turns an EffectiveConfig and detected VideoProperties into
// a concrete, deterministic ffmpeg encoding profile. Each codec family is a
// Variant; Build dispatches to it once and assembles the shared parts
// (scaling, color conversion, deinterlacing, color tags).
package profile

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/backmassage/autoencode/internal/config"
	"github.com/backmassage/autoencode/internal/media"
	"github.com/backmassage/autoencode/internal/settings"
)

var (
	// ErrMissingParameter is returned when a codec-required field is empty.
	ErrMissingParameter = errors.New("missing codec parameter")
	// ErrInvalidParameter is returned for a codec field with a bad value.
	ErrInvalidParameter = errors.New("invalid codec parameter")
	// ErrUnknownCodec is returned for a codec with no registered variant.
	ErrUnknownCodec = errors.New("unknown codec")
)

// EncodingProfile is the resolved encode for one (EffectiveConfig,
// VideoProperties) pair. Build always yields the same profile for the same
// inputs.
type EncodingProfile struct {
	Codec     config.Codec `json:"codec" yaml:"codec"`
	Encoder   string       `json:"encoder" yaml:"encoder"`
	Hardware  bool         `json:"hardware" yaml:"hardware"`
	Container string       `json:"container" yaml:"container"`
	Extension string       `json:"extension" yaml:"extension"`

	Width     int        `json:"width" yaml:"width"`
	Height    int        `json:"height" yaml:"height"`
	Scaled    bool       `json:"scaled" yaml:"scaled"`
	FrameRate media.Rate `json:"frame_rate" yaml:"frame_rate"`

	Filters     []string `json:"filters,omitempty" yaml:"filters,omitempty"`
	PixelFormat string   `json:"pixel_format" yaml:"pixel_format"`
	Range       Range    `json:"range" yaml:"range"`

	CodecArgs []string `json:"codec_args" yaml:"codec_args"`
	ColorArgs []string `json:"color_args,omitempty" yaml:"color_args,omitempty"`
	TagArgs   []string `json:"tag_args,omitempty" yaml:"tag_args,omitempty"`
	MuxArgs   []string `json:"mux_args,omitempty" yaml:"mux_args,omitempty"`
	Metadata  []string `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	AudioArgs []string `json:"audio_args,omitempty" yaml:"audio_args,omitempty"`
}

// Build validates the codec's parameters and produces the profile. A zero
// frame rate is rejected: detection must have resolved it.
func Build(eff settings.EffectiveConfig, props media.VideoProperties) (*EncodingProfile, error) {
	v, ok := Lookup(eff.Codec)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownCodec, eff.Codec)
	}
	if err := v.Validate(eff); err != nil {
		return nil, err
	}
	if props.FrameRate.IsZero() {
		return nil, fmt.Errorf("%w: frame rate", ErrMissingParameter)
	}
	if props.Width <= 0 || props.Height <= 0 {
		return nil, fmt.Errorf("%w: source dimensions %dx%d", ErrMissingParameter, props.Width, props.Height)
	}
	if props.Width < 2 || props.Height < 2 {
		return nil, fmt.Errorf("%w: source %dx%d is below 2x2", ErrInvalidParameter, props.Width, props.Height)
	}
	if eff.MaxWidth < 2 || eff.MaxHeight < 2 {
		return nil, fmt.Errorf("%w: resolution cap %dx%d", ErrInvalidParameter, eff.MaxWidth, eff.MaxHeight)
	}

	enc := v.encoder(eff)
	ct := v.Container()
	w, h := FitWithin(props.Width, props.Height, eff.MaxWidth, eff.MaxHeight)

	p := &EncodingProfile{
		Codec:       eff.Codec,
		Encoder:     enc.name,
		Hardware:    enc.hardware,
		Container:   ct.Name,
		Extension:   ct.Ext,
		Width:       w,
		Height:      h,
		Scaled:      w != props.Width || h != props.Height,
		FrameRate:   props.FrameRate,
		PixelFormat: enc.pixelFormat,
		Range:       enc.rng,
		CodecArgs:   enc.args,
		TagArgs:     enc.tagArgs,
		MuxArgs:     ct.MuxArgs,
		Metadata:    []string{"-metadata", "encoded_by=autoencode"},
	}
	p.Filters = buildFilters(props, enc, w, h, p.Scaled)
	p.ColorArgs = colorArgs(enc)
	if eff.Audio {
		p.AudioArgs = ct.AudioArgs(eff.AudioBitrate)
	}
	return p, nil
}

// VideoFilter returns the comma-joined filter chain.
func (p *EncodingProfile) VideoFilter() string { return strings.Join(p.Filters, ",") }

// VideoArgs returns the output-side video arguments shared by every encode
// node: codec, rate control, filters, pixel format, rate and color tags.
func (p *EncodingProfile) VideoArgs() []string {
	args := make([]string, 0, 32+len(p.CodecArgs))
	args = append(args, "-c:v", p.Encoder)
	args = append(args, p.CodecArgs...)
	if len(p.Filters) > 0 {
		args = append(args, "-vf", p.VideoFilter())
	}
	args = append(args, "-pix_fmt", p.PixelFormat, "-r", p.FrameRate.String())
	args = append(args, p.ColorArgs...)
	args = append(args, p.TagArgs...)
	args = append(args, p.Metadata...)
	return args
}

// FitWithin scales w x h down to fit maxW x maxH preserving aspect ratio.
// Both results are even, never exceed the caps or the source, and a source
// already inside the caps is only trimmed to even dimensions.
func FitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return floorEven(w), floorEven(h)
	}
	s := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	return nearestEven(float64(w)*s, min(w, maxW)), nearestEven(float64(h)*s, min(h, maxH))
}

func nearestEven(x float64, limit int) int {
	n := 2 * int(x/2+0.5)
	if n > limit {
		n = floorEven(limit)
	}
	return max(n, min(2, limit))
}

// floorEven trims n to even. A 1-pixel dimension has no even size that
// does not upscale, so it is returned as is.
func floorEven(n int) int {
	if n < 2 {
		return n
	}
	return n - n%2
}

// buildFilters orders the chain: deinterlace, scale, color conversion, then
// the target pixel format.
func buildFilters(props media.VideoProperties, enc encoder, w, h int, scaled bool) []string {
	var f []string
	if props.Interlaced {
		f = append(f, "bwdif=mode=send_frame:parity=auto:deint=interlaced")
	}
	if scaled {
		f = append(f, "scale="+strconv.Itoa(w)+":"+strconv.Itoa(h)+":flags=lanczos")
	}
	switch {
	case props.IsLinear():
		f = append(f, linearChain(enc.rng))
	case props.IsHDR():
		f = append(f, tonemapChain(enc.rng))
	case enc.yuv && isRGB(props.PixelFormat):
		f = append(f, "scale=out_color_matrix=bt709:out_range="+string(enc.rng))
	}
	if len(f) > 0 {
		f = append(f, "format="+enc.pixelFormat)
	}
	return f
}

// linearChain converts scene-linear light to bt709 transfer, matrix and
// primaries. The input transfer is stated explicitly: EXR carries none.
func linearChain(r Range) string {
	return "zscale=tin=linear:t=bt709:m=bt709:p=bt709:r=" + string(r)
}

// tonemapChain maps PQ/HLG to bt709 SDR via linear light.
func tonemapChain(r Range) string {
	return "zscale=t=linear:npl=100,format=gbrpf32le,zscale=p=bt709," +
		"tonemap=tonemap=hable:desat=0," +
		"zscale=t=bt709:m=bt709:r=" + string(r)
}

// colorArgs tags every output bt709. HAP is RGB at full range and is tagged
// "pc" so players do not expand it a second time.
func colorArgs(enc encoder) []string {
	rng := "tv"
	if enc.rng == RangeFull {
		rng = "pc"
	}
	return []string{
		"-color_primaries", "bt709",
		"-color_trc", "bt709",
		"-colorspace", "bt709",
		"-color_range", rng,
	}
}

func isRGB(pixFmt string) bool {
	for _, p := range []string{"rgb", "bgr", "gbr", "argb", "abgr"} {
		if strings.HasPrefix(pixFmt, p) {
			return true
		}
	}
	return false
}
