package probe

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// ffprobe JSON for one frame of a 16-bit half float EXR render with alpha.
const sampleEXR = `{
  "streams": [
    {
      "index": 0,
      "codec_name": "exr",
      "codec_type": "video",
      "pix_fmt": "gbrapf32le",
      "width": 4096,
      "height": 2160,
      "r_frame_rate": "25/1",
      "avg_frame_rate": "25/1",
      "disposition": { "default": 0, "attached_pic": 0 },
      "tags": {}
    }
  ],
  "format": {
    "filename": "/renders/shot010/shot010_01001.exr",
    "nb_streams": 1,
    "format_name": "image2",
    "format_long_name": "image2 sequence",
    "size": "48211904"
  }
}`

// QuickTime playblast: interlaced ProRes with PCM audio and a timecode tag.
const sampleMOV = `{
  "streams": [
    {
      "index": 0,
      "codec_name": "prores",
      "codec_type": "video",
      "profile": "HQ",
      "pix_fmt": "yuv422p10le",
      "width": 1920,
      "height": 1080,
      "field_order": "tt",
      "color_transfer": "bt709",
      "color_primaries": "bt709",
      "color_space": "bt709",
      "r_frame_rate": "30000/1001",
      "avg_frame_rate": "30000/1001",
      "nb_frames": "2400",
      "disposition": { "default": 1, "attached_pic": 0 },
      "tags": { "timecode": "01:00:00;00" }
    },
    {
      "index": 1,
      "codec_name": "pcm_s24le",
      "codec_type": "audio",
      "channels": 2,
      "channel_layout": "stereo",
      "sample_rate": "48000",
      "disposition": { "default": 1, "attached_pic": 0 },
      "tags": { "language": "eng" }
    }
  ],
  "format": {
    "filename": "/renders/playblast.mov",
    "nb_streams": 2,
    "format_name": "mov,mp4,m4a,3gp,3g2,mj2",
    "duration": "80.080000",
    "size": "1234567890",
    "bit_rate": "123333000",
    "tags": { "major_brand": "qt  " }
  }
}`

// Frame-level output of FrameTags for an EXR with a timecode attribute.
const sampleFrames = `{
  "frames": [
    {
      "media_type": "video",
      "tags": { "timeCode": "00:00:41:17", "owner": "lighting" }
    }
  ],
  "streams": [
    { "index": 0, "codec_type": "video", "tags": { "owner": "render" } }
  ],
  "format": { "tags": { "software": "Karma" } }
}`

func TestParseJSON_EXR(t *testing.T) {
	pr, err := ParseJSON([]byte(sampleEXR))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if pr.PrimaryVideo == nil {
		t.Fatal("PrimaryVideo is nil")
	}
	if pr.Resolution() != "4096x2160" {
		t.Errorf("resolution: got %q", pr.Resolution())
	}
	if pr.Format.Size != 48211904 {
		t.Errorf("size: got %d", pr.Format.Size)
	}
	if got := pr.Transfer(); got != "linear" {
		t.Errorf("transfer: got %q, want linear", got)
	}
	if !pr.HasAlpha() {
		t.Error("gbrapf32le should have alpha")
	}
	if pr.HasAudio() {
		t.Error("EXR has no audio")
	}
	if pr.IsInterlaced() {
		t.Error("EXR is progressive")
	}
}

func TestParseJSON_MOV(t *testing.T) {
	pr, err := ParseJSON([]byte(sampleMOV))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	v := pr.PrimaryVideo
	if v == nil {
		t.Fatal("PrimaryVideo is nil")
	}
	if v.RFrameRate != "30000/1001" || v.NbFrames != 2400 {
		t.Errorf("rate/frames: got %q / %d", v.RFrameRate, v.NbFrames)
	}
	if pr.Format.Duration != 80.08 {
		t.Errorf("duration: got %f", pr.Format.Duration)
	}
	if !pr.HasAudio() || pr.AudioStreams[0].SampleRate != 48000 || pr.AudioStreams[0].Language != "eng" {
		t.Errorf("audio: %+v", pr.AudioStreams)
	}
	if !pr.IsInterlaced() {
		t.Error("field order tt should be interlaced")
	}
	if got := pr.Transfer(); got != "bt709" {
		t.Errorf("transfer: got %q, want bt709", got)
	}
	if pr.HasAlpha() {
		t.Error("yuv422p10le has no alpha")
	}
	if pr.Tags()["timecode"] != "01:00:00;00" {
		t.Errorf("stream tags not merged: %v", pr.Tags())
	}
}

func TestTransfer(t *testing.T) {
	cases := []struct {
		name string
		vs   *VideoStream
		want string
	}{
		{"pq", &VideoStream{ColorTransfer: "smpte2084"}, "smpte2084"},
		{"tagged linear png", &VideoStream{Codec: "png", ColorTransfer: "linear"}, "linear"},
		{"exr tagged unknown", &VideoStream{Codec: "exr", ColorTransfer: "unknown"}, "linear"},
		{"exr untagged", &VideoStream{Codec: "exr"}, "linear"},
		{"srgb png", &VideoStream{Codec: "png", ColorTransfer: "iec61966-2-1"}, "iec61966-2-1"},
		{"unknown png", &VideoStream{Codec: "png", ColorTransfer: "unknown"}, ""},
		{"no video", nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pr := &ProbeResult{PrimaryVideo: tc.vs}
			if got := pr.Transfer(); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolution(t *testing.T) {
	pr := &ProbeResult{PrimaryVideo: &VideoStream{Width: 1920, Height: 1080}}
	if got := pr.Resolution(); got != "1920x1080" {
		t.Errorf("got %q", got)
	}
	pr = &ProbeResult{}
	if got := pr.Resolution(); got != "unknown" {
		t.Errorf("got %q, want unknown", got)
	}
}

func TestIsInterlaced(t *testing.T) {
	cases := []struct {
		fieldOrder string
		want       bool
	}{
		{"progressive", false},
		{"tt", true},
		{"bb", true},
		{"tb", true},
		{"BT", true},
		{"", false},
	}
	for _, tc := range cases {
		pr := &ProbeResult{PrimaryVideo: &VideoStream{FieldOrder: tc.fieldOrder}}
		if got := pr.IsInterlaced(); got != tc.want {
			t.Errorf("IsInterlaced(%q) = %v, want %v", tc.fieldOrder, got, tc.want)
		}
	}
}

func TestParseJSON_Invalid(t *testing.T) {
	if _, err := ParseJSON([]byte("not json")); err == nil {
		t.Error("expected error")
	}
}

type fakeRunner struct {
	out  string
	err  error
	args []string
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	f.args = append([]string{name}, args...)
	return []byte(f.out), f.err
}

func TestProber_Probe(t *testing.T) {
	r := &fakeRunner{out: sampleEXR}
	p := &Prober{Exe: "/opt/ffmpeg/bin/ffprobe", Runner: r}
	pr, err := p.Probe(context.Background(), "/renders/shot010/shot010_01001.exr")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if pr.PrimaryVideo.Codec != "exr" {
		t.Errorf("codec: got %q", pr.PrimaryVideo.Codec)
	}
	if r.args[0] != "/opt/ffmpeg/bin/ffprobe" || r.args[len(r.args)-1] != "/renders/shot010/shot010_01001.exr" {
		t.Errorf("args: %v", r.args)
	}
}

func TestProber_ProbeError(t *testing.T) {
	p := &Prober{Runner: &fakeRunner{err: errors.New("exit status 1")}}
	_, err := p.Probe(context.Background(), "missing.exr")
	if err == nil || !strings.Contains(err.Error(), "missing.exr") {
		t.Errorf("got %v", err)
	}
}

func TestProber_FrameTags(t *testing.T) {
	r := &fakeRunner{out: sampleFrames}
	p := &Prober{Runner: r}
	tags, err := p.FrameTags(context.Background(), "shot_01001.exr")
	if err != nil {
		t.Fatalf("FrameTags: %v", err)
	}
	if tags["timeCode"] != "00:00:41:17" {
		t.Errorf("timeCode: got %q", tags["timeCode"])
	}
	if tags["owner"] != "lighting" {
		t.Errorf("frame tags should win: got %q", tags["owner"])
	}
	if tags["software"] != "Karma" {
		t.Errorf("format tags missing: %v", tags)
	}
	if r.args[0] != "ffprobe" {
		t.Errorf("default exe: got %q", r.args[0])
	}
	if !strings.Contains(strings.Join(r.args, " "), "-show_frames") {
		t.Errorf("args: %v", r.args)
	}
}
