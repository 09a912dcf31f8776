package media

// RateSource names the detection step that produced a frame rate.
type RateSource string

const (
	RateFromOverride   RateSource = "override"
	RateFromContainer  RateSource = "container"
	RateFromTimecode   RateSource = "timecode"
	RateFromProperties RateSource = "job-properties"
	RateFromName       RateSource = "name-pattern"
)

// Transfer characteristics we act on. Anything else is passed through as
// reported by ffprobe.
const (
	TransferLinear = "linear"
	TransferBT709  = "bt709"
	TransferSRGB   = "iec61966-2-1"
	TransferPQ     = "smpte2084"
	TransferHLG    = "arib-std-b67"
)

// VideoProperties describes the source as detected. It is a value: detection
// builds a new one and nothing mutates it afterwards.
type VideoProperties struct {
	Width       int        `json:"width" yaml:"width"`
	Height      int        `json:"height" yaml:"height"`
	FrameRate   Rate       `json:"frame_rate" yaml:"frame_rate"`
	RateSource  RateSource `json:"rate_source" yaml:"rate_source"`
	Transfer    string     `json:"transfer,omitempty" yaml:"transfer,omitempty"`
	Matrix      string     `json:"matrix,omitempty" yaml:"matrix,omitempty"`
	Primaries   string     `json:"primaries,omitempty" yaml:"primaries,omitempty"`
	PixelFormat string     `json:"pixel_format,omitempty" yaml:"pixel_format,omitempty"`
	SourceCodec string     `json:"source_codec,omitempty" yaml:"source_codec,omitempty"`
	HasAudio    bool       `json:"has_audio" yaml:"has_audio"`
	HasAlpha    bool       `json:"has_alpha" yaml:"has_alpha"`
	Interlaced  bool       `json:"interlaced" yaml:"interlaced"`
}

// IsLinear reports whether the source is scene-linear light and needs an
// explicit transfer conversion before display-referred encoding.
func (p VideoProperties) IsLinear() bool { return p.Transfer == TransferLinear }

// IsHDR reports a PQ or HLG source that must be tone mapped for bt709 delivery.
func (p VideoProperties) IsHDR() bool {
	return p.Transfer == TransferPQ || p.Transfer == TransferHLG
}
