package probe

import "strings"

// linearCodecs are image codecs whose pixels are scene-linear unless the file
// says otherwise. ffprobe reports no transfer for EXR.
var linearCodecs = map[string]bool{
	"exr": true,
}

// Transfer returns the effective transfer characteristic of the primary
// video: "linear" for float image formats, otherwise what the stream reports.
func (p *ProbeResult) Transfer() string {
	if p.PrimaryVideo == nil {
		return ""
	}
	trc := strings.ToLower(p.PrimaryVideo.ColorTransfer)
	if trc == "linear" || (linearCodecs[p.PrimaryVideo.Codec] && (trc == "" || trc == "unknown")) {
		return "linear"
	}
	if trc == "unknown" {
		return ""
	}
	return trc
}
