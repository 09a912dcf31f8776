package profile

import (
	"fmt"
	"strconv"

	"github.com/backmassage/autoencode/internal/config"
	"github.com/backmassage/autoencode/internal/settings"
)

// Container is an output container family. The extension follows from the
// codec alone.
type Container struct {
	Name string
	Ext  string
	// MuxArgs apply to the final output only (chunks are never streamed).
	MuxArgs []string
	// AudioArgs encode a sidecar audio track for this container.
	AudioArgs func(bitrate string) []string
}

var (
	ContainerMP4 = Container{
		Name:    "mp4",
		Ext:     ".mp4",
		MuxArgs: []string{"-movflags", "+faststart"},
		AudioArgs: func(bitrate string) []string {
			return []string{"-c:a", "aac", "-b:a", bitrate}
		},
	}
	ContainerMOV = Container{
		Name: "mov",
		Ext:  ".mov",
		AudioArgs: func(string) []string {
			return []string{"-c:a", "pcm_s16le"}
		},
	}
)

// Range is the output signal range.
type Range string

const (
	RangeLimited Range = "limited"
	RangeFull    Range = "full"
)

// encoder is what a variant contributes to a profile.
type encoder struct {
	name        string
	hardware    bool
	args        []string // rate control and codec options, after -c:v
	pixelFormat string
	rng         Range
	yuv         bool
	tagArgs     []string
}

// Variant is one codec family.
type Variant interface {
	Family() config.Codec
	// Validate checks the family's required parameters.
	Validate(eff settings.EffectiveConfig) error
	Container() Container
	// Encoders lists every ffmpeg encoder the family may select.
	Encoders() []string
	encoder(eff settings.EffectiveConfig) encoder
}

var (
	h265 = h26x{
		family:  config.CodecH265,
		gpu:     "hevc_nvenc",
		cpu:     "libx265",
		cpuArgs: []string{"-x265-params", "log-level=error"},
		tag:     "hvc1",
	}
	h264 = h26x{
		family: config.CodecH264,
		gpu:    "h264_nvenc",
		cpu:    "libx264",
	}
)

var variants = map[config.Codec]Variant{
	config.CodecH265:   h265,
	config.CodecH264:   h264,
	config.CodecProRes: prores{},
	config.CodecHAP:    hap{},
}

// Lookup returns the variant for codec.
func Lookup(codec config.Codec) (Variant, bool) {
	v, ok := variants[codec]
	return v, ok
}

// --- H.264 / H.265 ---

type h26x struct {
	family  config.Codec
	gpu     string
	cpu     string
	cpuArgs []string
	tag     string
}

func (v h26x) Family() config.Codec { return v.family }
func (v h26x) Container() Container { return ContainerMP4 }
func (v h26x) Encoders() []string   { return []string{v.gpu, v.cpu} }

func (v h26x) Validate(eff settings.EffectiveConfig) error {
	if eff.Quality < 0 || eff.Quality > 51 {
		return fmt.Errorf("%w: %s quality %d outside 0-51", ErrInvalidParameter, v.family, eff.Quality)
	}
	return nil
}

func (v h26x) encoder(eff settings.EffectiveConfig) encoder {
	q := strconv.Itoa(eff.Quality)
	e := encoder{pixelFormat: "yuv420p", rng: RangeLimited, yuv: true}
	if v.tag != "" {
		e.tagArgs = []string{"-tag:v", v.tag}
	}
	if eff.GPU {
		e.name, e.hardware = v.gpu, true
		e.args = []string{
			"-preset", "p4", "-tune", "hq", "-rc", "vbr",
			"-cq", q, "-b:v", "0",
			"-maxrate", "50M", "-bufsize", "100M",
			"-bf", "3", "-spatial_aq", "1", "-temporal_aq", "1",
		}
		return e
	}
	e.name = v.cpu
	e.args = append([]string{"-preset", "medium", "-crf", q}, v.cpuArgs...)
	return e
}

// --- ProRes ---

// proresIndex maps profile names to prores_ks -profile:v values.
var proresIndex = map[string]int{
	"proxy": 0, "lt": 1, "422": 2, "422hq": 3, "4444": 4, "4444xq": 5,
}

type prores struct{}

func (prores) Family() config.Codec { return config.CodecProRes }
func (prores) Container() Container { return ContainerMOV }
func (prores) Encoders() []string   { return []string{"prores_ks"} }

func (prores) Validate(eff settings.EffectiveConfig) error {
	if eff.ProResProfile == "" {
		return fmt.Errorf("%w: prores requires a profile", ErrMissingParameter)
	}
	if _, ok := proresIndex[eff.ProResProfile]; !ok {
		return fmt.Errorf("%w: prores profile %q", ErrInvalidParameter, eff.ProResProfile)
	}
	return nil
}

func (prores) encoder(eff settings.EffectiveConfig) encoder {
	pix := "yuv422p10le"
	if eff.ProResProfile == "4444" || eff.ProResProfile == "4444xq" {
		pix = "yuva444p10le"
	}
	return encoder{
		name:        "prores_ks",
		args:        []string{"-profile:v", strconv.Itoa(proresIndex[eff.ProResProfile]), "-vendor", "apl0"},
		pixelFormat: pix,
		rng:         RangeLimited,
		yuv:         true,
	}
}

// --- HAP ---

var hapFormat = map[string]string{
	"hap":   "hap",
	"alpha": "hap_alpha",
	"q":     "hap_q",
}

type hap struct{}

func (hap) Family() config.Codec { return config.CodecHAP }
func (hap) Container() Container { return ContainerMOV }
func (hap) Encoders() []string   { return []string{"hap"} }

func (hap) Validate(eff settings.EffectiveConfig) error {
	if eff.HapVariant == "" {
		return fmt.Errorf("%w: hap requires a variant", ErrMissingParameter)
	}
	if _, ok := hapFormat[eff.HapVariant]; !ok {
		return fmt.Errorf("%w: hap variant %q", ErrInvalidParameter, eff.HapVariant)
	}
	return nil
}

// The hap encoder only takes rgba input; DXT compression is RGB so the range
// is full.
func (hap) encoder(eff settings.EffectiveConfig) encoder {
	return encoder{
		name:        "hap",
		args:        []string{"-format", hapFormat[eff.HapVariant]},
		pixelFormat: "rgba",
		rng:         RangeFull,
	}
}
