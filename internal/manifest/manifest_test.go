package manifest

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/autoencode/internal/config"
	"github.com/backmassage/autoencode/internal/graph"
	"github.com/backmassage/autoencode/internal/media"
	"github.com/backmassage/autoencode/internal/profile"
)

func sample() *Manifest {
	return &Manifest{
		JobID:      "5f3c9e2a",
		JobName:    "Shot010_v002",
		Source:     "/renders/shot010_####.exr",
		FirstFrame: 1,
		LastFrame:  300,
		Properties: media.VideoProperties{Width: 1920, Height: 1080, FrameRate: media.NewRate(24000, 1001), RateSource: media.RateFromTimecode},
		Profile:    &profile.EncodingProfile{Codec: config.CodecH265, Encoder: "hevc_nvenc", Extension: ".mp4", FrameRate: media.NewRate(24000, 1001)},
		Graph: &graph.JobGraph{
			ID: "0b5c", SourceJobID: "5f3c9e2a", TerminalID: "n1", MaxConcurrent: 2,
			Nodes: []graph.JobNode{{
				ID: "n1", Name: "Shot010_v002_Encode", Kind: graph.KindEncode, StartFrame: 1, EndFrame: 300,
				Inputs: []string{"/renders/shot010_%04d.exr"}, Outputs: []string{"/renders/shot010_h265.mp4"},
				Command:    graph.Command{Executable: "ffmpeg", Args: []string{"-i", "in", "out"}, WorkDir: "/renders"},
				Scheduling: graph.Scheduling{Priority: 50, Pool: "encode"},
			}},
		},
	}
}

func TestEncode_ReadableYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sample()))
	out := buf.String()
	assert.Contains(t, out, "frame_rate: 24000/1001")
	assert.Contains(t, out, "terminal_id: n1")
	assert.Contains(t, out, "  nodes:")
}

func TestFSStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	m := sample()
	path, err := s.Put(ctx, m)
	require.NoError(t, err)
	assert.FileExists(t, path)

	got, err := s.Get(ctx, m.Key())
	require.NoError(t, err)
	assert.Equal(t, m.Graph, got.Graph)
	assert.Equal(t, m.Properties.FrameRate, got.Properties.FrameRate)
	assert.Equal(t, "hevc_nvenc", got.Profile.Encoder)

	_, err = s.Get(ctx, "missing.yaml")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPut_RequiresGraph(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	m := sample()
	m.Graph = nil
	_, err = s.Put(context.Background(), m)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	st, err := Open(context.Background(), config.Storage{})
	require.NoError(t, err)
	assert.Nil(t, st)

	st, err = Open(context.Background(), config.Storage{Kind: "fs", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FSStore{}, st)

	_, err = Open(context.Background(), config.Storage{Kind: "ftp"})
	assert.Error(t, err)
}
