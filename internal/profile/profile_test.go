package profile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/autoencode/internal/config"
	"github.com/backmassage/autoencode/internal/media"
	"github.com/backmassage/autoencode/internal/settings"
)

func effective(codec config.Codec) settings.EffectiveConfig {
	return settings.EffectiveConfig{
		Codec:         codec,
		Quality:       23,
		GPU:           true,
		MaxWidth:      4096,
		MaxHeight:     2160,
		ProResProfile: "422hq",
		HapVariant:    "hap",
		AudioBitrate:  "192k",
	}
}

func exrProps(w, h int) media.VideoProperties {
	return media.VideoProperties{
		Width:       w,
		Height:      h,
		FrameRate:   media.NewRate(24, 1),
		Transfer:    media.TransferLinear,
		PixelFormat: "gbrapf32le",
		SourceCodec: "exr",
	}
}

func TestFitWithin(t *testing.T) {
	cases := []struct {
		name         string
		w, h         int
		maxW, maxH   int
		wantW, wantH int
	}{
		{"downscale keeps aspect", 5000, 3000, 4096, 2160, 3600, 2160},
		{"no upscale", 1000, 1000, 4096, 2160, 1000, 1000},
		{"exact fit", 4096, 2160, 4096, 2160, 4096, 2160},
		{"odd source trimmed", 1921, 1081, 4096, 2160, 1920, 1080},
		{"width bound", 8192, 2160, 4096, 2160, 4096, 1080},
		{"one over", 4097, 2160, 4096, 2160, 4096, 2160},
		{"odd cap", 3000, 3000, 1001, 1001, 1000, 1000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, h := FitWithin(tc.w, tc.h, tc.maxW, tc.maxH)
			assert.Equal(t, tc.wantW, w)
			assert.Equal(t, tc.wantH, h)
			assert.Zero(t, w%2)
			assert.Zero(t, h%2)
			assert.LessOrEqual(t, w, tc.maxW)
			assert.LessOrEqual(t, h, tc.maxH)
		})
	}
}

func TestBuild_H265GPU(t *testing.T) {
	p, err := Build(effective(config.CodecH265), exrProps(5000, 3000))
	require.NoError(t, err)

	assert.Equal(t, "hevc_nvenc", p.Encoder)
	assert.True(t, p.Hardware)
	assert.Equal(t, ".mp4", p.Extension)
	assert.Equal(t, 3600, p.Width)
	assert.Equal(t, 2160, p.Height)
	assert.True(t, p.Scaled)
	assert.Equal(t, []string{
		"scale=3600:2160:flags=lanczos",
		"zscale=tin=linear:t=bt709:m=bt709:p=bt709:r=limited",
		"format=yuv420p",
	}, p.Filters)
	assert.Equal(t, []string{"-movflags", "+faststart"}, p.MuxArgs)
	assert.Equal(t, []string{"-tag:v", "hvc1"}, p.TagArgs)

	args := strings.Join(p.VideoArgs(), " ")
	assert.Contains(t, args, "-c:v hevc_nvenc")
	assert.Contains(t, args, "-cq 23")
	assert.Contains(t, args, "-r 24")
	assert.Contains(t, args, "-color_range tv")
	assert.Nil(t, p.AudioArgs)
}

func TestBuild_H264CPUFallback(t *testing.T) {
	eff := effective(config.CodecH264)
	eff.GPU = false
	eff.Quality = 18
	p, err := Build(eff, exrProps(1920, 1080))
	require.NoError(t, err)

	assert.Equal(t, "libx264", p.Encoder)
	assert.False(t, p.Hardware)
	assert.Equal(t, []string{"-preset", "medium", "-crf", "18"}, p.CodecArgs)
	assert.False(t, p.Scaled)
	assert.Nil(t, p.TagArgs)
}

func TestBuild_ProRes(t *testing.T) {
	eff := effective(config.CodecProRes)
	eff.ProResProfile = "4444"
	eff.Audio = true
	p, err := Build(eff, exrProps(1920, 1080))
	require.NoError(t, err)

	assert.Equal(t, "prores_ks", p.Encoder)
	assert.Equal(t, ".mov", p.Extension)
	assert.Equal(t, "yuva444p10le", p.PixelFormat)
	assert.Equal(t, []string{"-profile:v", "4", "-vendor", "apl0"}, p.CodecArgs)
	assert.Equal(t, []string{"-c:a", "pcm_s16le"}, p.AudioArgs)
	assert.Nil(t, p.MuxArgs)

	eff.ProResProfile = ""
	_, err = Build(eff, exrProps(1920, 1080))
	assert.ErrorIs(t, err, ErrMissingParameter)

	eff.ProResProfile = "ultra"
	_, err = Build(eff, exrProps(1920, 1080))
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestBuild_HAP(t *testing.T) {
	eff := effective(config.CodecHAP)
	eff.HapVariant = "alpha"
	p, err := Build(eff, exrProps(1920, 1080))
	require.NoError(t, err)

	assert.Equal(t, []string{"-format", "hap_alpha"}, p.CodecArgs)
	assert.Equal(t, "rgba", p.PixelFormat)
	assert.Equal(t, RangeFull, p.Range)
	assert.Contains(t, p.Filters, "zscale=tin=linear:t=bt709:m=bt709:p=bt709:r=full")
	assert.Equal(t, []string{
		"-color_primaries", "bt709", "-color_trc", "bt709", "-colorspace", "bt709", "-color_range", "pc",
	}, p.ColorArgs)
	assert.Contains(t, strings.Join(p.VideoArgs(), " "), "-pix_fmt rgba -r 24 -color_primaries bt709")

	eff.HapVariant = ""
	_, err = Build(eff, exrProps(1920, 1080))
	assert.ErrorIs(t, err, ErrMissingParameter)
}

func TestBuild_AudioMP4(t *testing.T) {
	eff := effective(config.CodecH264)
	eff.Audio = true
	eff.AudioBitrate = "256k"
	p, err := Build(eff, exrProps(1920, 1080))
	require.NoError(t, err)
	assert.Equal(t, []string{"-c:a", "aac", "-b:a", "256k"}, p.AudioArgs)
}

func TestBuild_ColorPaths(t *testing.T) {
	hdr := media.VideoProperties{
		Width: 3840, Height: 2160, FrameRate: media.NewRate(25, 1),
		Transfer: media.TransferPQ, PixelFormat: "yuv420p10le",
	}
	p, err := Build(effective(config.CodecH265), hdr)
	require.NoError(t, err)
	require.Len(t, p.Filters, 2)
	assert.True(t, strings.HasPrefix(p.Filters[0], "zscale=t=linear:npl=100"))
	assert.Contains(t, p.Filters[0], "tonemap=tonemap=hable")

	interlaced := media.VideoProperties{
		Width: 1920, Height: 1080, FrameRate: media.NewRate(30000, 1001),
		Transfer: media.TransferBT709, PixelFormat: "yuv422p10le", Interlaced: true,
	}
	p, err = Build(effective(config.CodecH264), interlaced)
	require.NoError(t, err)
	assert.Equal(t, []string{"bwdif=mode=send_frame:parity=auto:deint=interlaced", "format=yuv420p"}, p.Filters)
	assert.Contains(t, strings.Join(p.VideoArgs(), " "), "-r 30000/1001")

	srgb := media.VideoProperties{
		Width: 1920, Height: 1080, FrameRate: media.NewRate(24, 1),
		Transfer: media.TransferSRGB, PixelFormat: "rgb24",
	}
	p, err = Build(effective(config.CodecH264), srgb)
	require.NoError(t, err)
	assert.Equal(t, []string{"scale=out_color_matrix=bt709:out_range=limited", "format=yuv420p"}, p.Filters)

	plain := srgb
	plain.PixelFormat = "yuv420p"
	p, err = Build(effective(config.CodecH264), plain)
	require.NoError(t, err)
	assert.Empty(t, p.Filters)
	assert.NotContains(t, p.VideoArgs(), "-vf")
}

func TestBuild_DegenerateSource(t *testing.T) {
	for _, dims := range [][2]int{{1, 1}, {1, 5000}, {5000, 1}} {
		_, err := Build(effective(config.CodecH265), exrProps(dims[0], dims[1]))
		assert.ErrorIs(t, err, ErrInvalidParameter, "%dx%d", dims[0], dims[1])
	}

	p, err := Build(effective(config.CodecH265), exrProps(2, 5000))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Width, "never wider than the source")
	assert.LessOrEqual(t, p.Height, 2160)
}

func TestFitWithin_NeverUpscalesTinySources(t *testing.T) {
	w, h := FitWithin(1, 1, 4096, 2160)
	assert.Equal(t, 1, w)
	assert.Equal(t, 1, h)

	w, h = FitWithin(1, 5000, 4096, 2160)
	assert.LessOrEqual(t, w, 1)
	assert.Equal(t, 2160, h)
}

func TestBuild_Deterministic(t *testing.T) {
	a, err := Build(effective(config.CodecH265), exrProps(5000, 3000))
	require.NoError(t, err)
	b, err := Build(effective(config.CodecH265), exrProps(5000, 3000))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, a.VideoArgs(), b.VideoArgs())
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(effective("vp9"), exrProps(1920, 1080))
	assert.ErrorIs(t, err, ErrUnknownCodec)

	props := exrProps(1920, 1080)
	props.FrameRate = media.Rate{}
	_, err = Build(effective(config.CodecH265), props)
	assert.ErrorIs(t, err, ErrMissingParameter)

	eff := effective(config.CodecH265)
	eff.Quality = 60
	_, err = Build(eff, exrProps(1920, 1080))
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestVariants_Encoders(t *testing.T) {
	for _, c := range config.Codecs {
		v, ok := Lookup(c)
		require.True(t, ok, c)
		assert.Equal(t, c, v.Family())
		assert.NotEmpty(t, v.Encoders())
	}
}
